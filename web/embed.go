package web

import (
	"embed"
	"io/fs"
)

// StaticFiles embeds the entire web/static directory into the binary.
//
//go:embed static/*
var StaticFiles embed.FS

// Examples returns the bundled BKK example payloads and GTFS reference
// tables, laid out as the static host serves them under "BKK Examples/".
func Examples() fs.FS {
	sub, _ := fs.Sub(StaticFiles, "static/bkk-examples")
	return sub
}
