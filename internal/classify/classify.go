// Package classify maps routes and route names to transport categories.
//
// Classification is an ordered list of rules evaluated top to bottom; the
// first match wins and the list always ends in a default, so every input
// maps to exactly one category.
package classify

import (
	"regexp"
	"strings"

	"bkkrt/internal/transit"
)

// GTFS route_type codes, basic and extended (HVT) ranges used by BKK.
const (
	typeTram       = 0
	typeSubway     = 1
	typeRail       = 2
	typeBus        = 3
	typeFerry      = 4
	typeTrolleybus = 11
)

var nightName = regexp.MustCompile(`^9\d{2}$`)

type nameRule struct {
	pattern  *regexp.Regexp
	category transit.Category
}

// nameRules apply when no reference route is known. Order matters.
var nameRules = []nameRule{
	{regexp.MustCompile(`^M\d`), transit.Metro},
	{regexp.MustCompile(`^H\d`), transit.Suburban},
	{regexp.MustCompile(`^D\d`), transit.Ferry},
	{nightName, transit.NightBus},
	{regexp.MustCompile(`^\d+$`), transit.Bus},
	{regexp.MustCompile(`^\d+[A-Za-z]$`), transit.Tram},
}

// ShortName classifies a route by its display name alone. Defaults to busz.
func ShortName(name string) transit.Category {
	name = strings.TrimSpace(name)
	for _, r := range nameRules {
		if r.pattern.MatchString(name) {
			return r.category
		}
	}
	return transit.Bus
}

type typeRule struct {
	match    func(routeType int) bool
	category func(r transit.Route) transit.Category
}

func fixed(c transit.Category) func(transit.Route) transit.Category {
	return func(transit.Route) transit.Category { return c }
}

// nightOr returns the night category for 9xx short names, c otherwise.
func nightOr(c transit.Category) func(transit.Route) transit.Category {
	return func(r transit.Route) transit.Category {
		if nightName.MatchString(strings.TrimSpace(r.ShortName)) {
			return transit.NightBus
		}
		return c
	}
}

func between(lo, hi int) func(int) bool {
	return func(t int) bool { return t >= lo && t <= hi }
}

func oneOf(codes ...int) func(int) bool {
	return func(t int) bool {
		for _, c := range codes {
			if t == c {
				return true
			}
		}
		return false
	}
}

var typeRules = []typeRule{
	{oneOf(typeTram), fixed(transit.Tram)},
	{between(900, 906), fixed(transit.Tram)},
	{oneOf(typeSubway), fixed(transit.Metro)},
	{between(400, 405), fixed(transit.Metro)},
	{oneOf(typeTrolleybus, 800), nightOr(transit.Trolleybus)},
	{oneOf(typeBus), nightOr(transit.Bus)},
	{between(700, 716), nightOr(transit.Bus)},
	{oneOf(typeRail), fixed(transit.Suburban)},
	{between(100, 117), fixed(transit.Suburban)},
	{oneOf(typeFerry), fixed(transit.Ferry)},
	{between(1000, 1200), fixed(transit.Ferry)},
}

// Route classifies a reference route by its route_type, falling back to
// the short name rules for codes outside the known ranges.
func Route(r transit.Route) transit.Category {
	for _, rule := range typeRules {
		if rule.match(r.Type) {
			return rule.category(r)
		}
	}
	return ShortName(r.ShortName)
}

// Resolve classifies a route id, preferring the reference table entry and
// otherwise applying the name rules to displayName (or the raw id).
func Resolve(routes transit.RouteResolver, routeID, displayName string) transit.Category {
	if routes != nil && routeID != "" {
		if r, ok := routes.Route(routeID); ok {
			return Route(r)
		}
	}
	if displayName != "" {
		return ShortName(displayName)
	}
	return ShortName(routeID)
}

// Alert classifies an alert from its raw, pre-enrichment route ids. The
// first id found in the reference table decides; otherwise the first id is
// classified by name.
func Alert(routes transit.RouteResolver, rawRouteIDs []string) transit.Category {
	if routes != nil {
		for _, id := range rawRouteIDs {
			if r, ok := routes.Route(id); ok {
				return Route(r)
			}
		}
	}
	if len(rawRouteIDs) == 0 {
		return transit.Bus
	}
	return ShortName(rawRouteIDs[0])
}
