package feed

import (
	"regexp"
	"strings"
)

// hungarianRepair undoes one observed corruption of the upstream dump:
// UTF-8 bytes of Hungarian letters arrive either as octal escapes
// (\303\251) or as their Latin-1 reading (Ã©). Only these letters are
// covered; this is not a general encoding fix.
var hungarianRepair = strings.NewReplacer(
	`\303\241`, "á", "Ã¡", "á",
	`\303\251`, "é", "Ã©", "é",
	`\303\255`, "í", "Ã\u00ad", "í",
	`\303\263`, "ó", "Ã³", "ó",
	`\303\266`, "ö", "Ã¶", "ö",
	`\305\221`, "ő", "Å\u0091", "ő",
	`\303\272`, "ú", "Ãº", "ú",
	`\303\274`, "ü", "Ã¼", "ü",
	`\305\261`, "ű", "Å±", "ű",
	`\303\201`, "Á", "Ã\u0081", "Á",
	`\303\211`, "É", "Ã\u0089", "É",
	`\303\215`, "Í", "Ã\u008d", "Í",
	`\303\223`, "Ó", "Ã\u0093", "Ó",
	`\303\226`, "Ö", "Ã\u0096", "Ö",
	`\305\220`, "Ő", "Å\u0090", "Ő",
	`\303\232`, "Ú", "Ã\u009a", "Ú",
	`\303\234`, "Ü", "Ã\u009c", "Ü",
	`\305\260`, "Ű", "Å°", "Ű",
)

var unescape = strings.NewReplacer(
	`\"`, `"`,
	`\'`, `'`,
	`\n`, " ",
	`\r`, " ",
	`\t`, " ",
	`\\`, `\`,
)

var (
	htmlTag    = regexp.MustCompile(`<[^>]*>`)
	whitespace = regexp.MustCompile(`\s+`)
)

// DecodeText cleans a quoted feed string for display: repairs the known
// Hungarian mis-encoding, unescapes, strips HTML tags, collapses whitespace.
func DecodeText(s string) string {
	s = hungarianRepair.Replace(s)
	s = unescape.Replace(s)
	s = htmlTag.ReplaceAllString(s, " ")
	s = whitespace.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}
