package classify

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"bkkrt/internal/transit"
)

type routeMap map[string]transit.Route

func (m routeMap) Route(id string) (transit.Route, bool) {
	r, ok := m[id]
	return r, ok
}

func TestShortName(t *testing.T) {
	tests := []struct {
		name string
		want transit.Category
	}{
		{"M3", transit.Metro},
		{"M1", transit.Metro},
		{"H5", transit.Suburban},
		{"D11", transit.Ferry},
		{"907", transit.NightBus},
		{"990", transit.NightBus},
		{"9", transit.Bus},
		{"99", transit.Bus},
		{"7", transit.Bus},
		{"133", transit.Bus},
		{"9999", transit.Bus},
		{"4A", transit.Tram},
		{"56A", transit.Tram},
		{"", transit.Bus},
		{"   ", transit.Bus},
		{"BKK_3060", transit.Bus},
		{"ismeretlen", transit.Bus},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ShortName(tt.name))
		})
	}
}

func TestShortName_Total(t *testing.T) {
	inputs := []string{"", "x", "M", "Mx", "90", "9a9", "ÉJ", "\x00", "1 2", "H", "DD"}
	for _, in := range inputs {
		got := ShortName(in)
		assert.True(t, got.Valid(), "ShortName(%q) = %q is not a valid category", in, got)
	}
}

func TestRoute(t *testing.T) {
	tests := []struct {
		name  string
		route transit.Route
		want  transit.Category
	}{
		{"tram", transit.Route{Type: 0, ShortName: "4"}, transit.Tram},
		{"extended tram", transit.Route{Type: 900, ShortName: "6"}, transit.Tram},
		{"subway", transit.Route{Type: 1, ShortName: "M2"}, transit.Metro},
		{"bus", transit.Route{Type: 3, ShortName: "7"}, transit.Bus},
		{"night bus", transit.Route{Type: 3, ShortName: "907"}, transit.NightBus},
		{"extended bus night", transit.Route{Type: 700, ShortName: "956"}, transit.NightBus},
		{"trolleybus", transit.Route{Type: 11, ShortName: "72"}, transit.Trolleybus},
		{"extended trolleybus", transit.Route{Type: 800, ShortName: "75"}, transit.Trolleybus},
		{"rail", transit.Route{Type: 2, ShortName: "H5"}, transit.Suburban},
		{"suburban railway", transit.Route{Type: 109, ShortName: "H8"}, transit.Suburban},
		{"ferry", transit.Route{Type: 4, ShortName: "D12"}, transit.Ferry},
		{"unknown type falls back to name", transit.Route{Type: 7, ShortName: "M4"}, transit.Metro},
		{"unknown type and name", transit.Route{Type: 42}, transit.Bus},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Route(tt.route))
		})
	}
}

func TestResolve(t *testing.T) {
	routes := routeMap{
		"BKK_5300": {ID: "BKK_5300", ShortName: "M3", Type: 1},
		"BKK_3040": {ID: "BKK_3040", ShortName: "4", Type: 0},
	}

	assert.Equal(t, transit.Tram, Resolve(routes, "BKK_3040", "4"), "reference type beats name rules")
	assert.Equal(t, transit.Metro, Resolve(routes, "BKK_5300", ""))
	assert.Equal(t, transit.Tram, Resolve(routes, "missing", "4A"))
	assert.Equal(t, transit.NightBus, Resolve(routes, "", "914"))
	assert.Equal(t, transit.Bus, Resolve(nil, "unknown", ""))
}

func TestAlert(t *testing.T) {
	routes := routeMap{
		"BKK_5300": {ID: "BKK_5300", ShortName: "M3", Type: 1},
	}

	assert.Equal(t, transit.Metro, Alert(routes, []string{"BKK_x", "BKK_5300"}))
	assert.Equal(t, transit.Bus, Alert(routes, nil))
	assert.Equal(t, transit.Metro, Alert(nil, []string{"M2"}))
	assert.Equal(t, transit.Bus, Alert(routes, []string{"BKK_unknown"}))
}
