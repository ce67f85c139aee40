// Package feed parses the textual GTFS-Realtime dumps served by the BKK
// proxy. The dump is a sequence of "entity { ... }" blocks; each block is
// parsed on its own so one malformed entity never aborts the batch.
package feed

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	gtfsrt "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"

	"bkkrt/internal/classify"
	"bkkrt/internal/transit"
)

// UnknownTitle is the alert title used when no Hungarian header exists.
const UnknownTitle = "Ismeretlen zavar"

const (
	language        = "hu"
	defaultPriority = 2
)

var (
	errMissingID       = errors.New("entity without id")
	errMissingPosition = errors.New("vehicle without position")
)

// Parser turns text dumps into alerts and vehicle positions, enriching
// route ids through the reference tables.
type Parser struct {
	routes transit.RouteResolver
	logger *slog.Logger
	now    func() time.Time
}

// NewParser creates a Parser. routes may be nil, in which case raw ids are
// used as display names.
func NewParser(routes transit.RouteResolver, logger *slog.Logger) *Parser {
	return &Parser{routes: routes, logger: logger, now: time.Now}
}

// ParseAlerts extracts every well-formed alert entity from text.
func (p *Parser) ParseAlerts(text string) []transit.Alert {
	alerts := make([]transit.Alert, 0)
	skipped := 0
	for _, block := range Blocks(text) {
		body, ok := section(block, "alert")
		if !ok {
			continue
		}
		a, err := p.parseAlert(block, body)
		if err != nil {
			skipped++
			p.logger.Debug("alert entity skipped", "error", err)
			continue
		}
		alerts = append(alerts, a)
	}
	if skipped > 0 {
		p.logger.Warn("alert entities skipped", "skipped", skipped, "parsed", len(alerts))
	}
	return alerts
}

// ParseVehicles extracts every well-formed vehicle position entity from text.
func (p *Parser) ParseVehicles(text string) []transit.VehiclePosition {
	vehicles := make([]transit.VehiclePosition, 0)
	skipped := 0
	for _, block := range Blocks(text) {
		body, ok := section(block, "vehicle")
		if !ok {
			continue
		}
		v, err := p.parseVehicle(block, body)
		if err != nil {
			skipped++
			p.logger.Debug("vehicle entity skipped", "error", err)
			continue
		}
		vehicles = append(vehicles, v)
	}
	if skipped > 0 {
		p.logger.Warn("vehicle entities skipped", "skipped", skipped, "parsed", len(vehicles))
	}
	return vehicles
}

func (p *Parser) parseAlert(block, body string) (transit.Alert, error) {
	id, ok := stringValue(topLevel(block), "id")
	if !ok || id == "" {
		return transit.Alert{}, errMissingID
	}

	a := transit.Alert{
		ID:       id,
		Title:    UnknownTitle,
		Priority: defaultPriority,
	}

	if header, ok := section(body, "header_text"); ok {
		if text, ok := translation(header, language); ok {
			a.Title = text
		}
	}
	if desc, ok := section(body, "description_text"); ok {
		if text, ok := translation(desc, language); ok {
			a.Description = text
		}
	}
	if u, ok := section(body, "url"); ok {
		if text, ok := translation(u, language); ok {
			a.URL = text
		} else if all := stringValues(u, "text"); len(all) > 0 {
			a.URL = DecodeText(all[0])
		}
	}

	rawIDs := unique(stringValues(body, "route_id"))
	a.AffectedRoutes = make([]string, 0, len(rawIDs))
	for _, id := range rawIDs {
		a.AffectedRoutes = append(a.AffectedRoutes, p.routeName(id))
	}
	a.Category = classify.Alert(p.routes, rawIDs)

	a.Start = time.Unix(0, 0).UTC()
	if period, ok := section(body, "active_period"); ok {
		if v, ok := rawValue(period, "start"); ok {
			start, err := epoch(v)
			if err != nil {
				return transit.Alert{}, fmt.Errorf("alert %s start: %w", id, err)
			}
			a.Start = start
		}
		if v, ok := rawValue(period, "end"); ok {
			end, err := epoch(v)
			if err != nil {
				return transit.Alert{}, fmt.Errorf("alert %s end: %w", id, err)
			}
			a.End = &end
		}
	}

	top := topLevel(body)
	cause, _ := rawValue(top, "cause")
	effect, _ := rawValue(top, "effect")
	a.Cause = normalizeCause(cause)
	a.Effect = normalizeEffect(effect)

	if v, ok := rawValue(top, "priority"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return transit.Alert{}, fmt.Errorf("alert %s priority: %w", id, err)
		}
		a.Priority = n
	}

	return a, nil
}

func (p *Parser) parseVehicle(block, body string) (transit.VehiclePosition, error) {
	entityID, ok := stringValue(topLevel(block), "id")
	if !ok || entityID == "" {
		return transit.VehiclePosition{}, errMissingID
	}

	v := transit.VehiclePosition{VehicleID: entityID}

	if desc, ok := section(body, "vehicle"); ok {
		if id, ok := stringValue(desc, "id"); ok && id != "" {
			v.VehicleID = id
		}
		if plate, ok := stringValue(desc, "license_plate"); ok {
			v.LicensePlate = DecodeText(plate)
		}
	}

	if routeID, ok := stringValue(body, "route_id"); ok {
		v.RouteID = routeID
		v.RouteName = p.routeName(routeID)
	}

	pos, ok := section(body, "position")
	if !ok {
		return transit.VehiclePosition{}, errMissingPosition
	}
	latRaw, okLat := rawValue(pos, "latitude")
	lngRaw, okLng := rawValue(pos, "longitude")
	if !okLat || !okLng {
		return transit.VehiclePosition{}, errMissingPosition
	}
	lat, err := strconv.ParseFloat(latRaw, 64)
	if err != nil {
		return transit.VehiclePosition{}, fmt.Errorf("vehicle %s latitude: %w", entityID, err)
	}
	lng, err := strconv.ParseFloat(lngRaw, 64)
	if err != nil {
		return transit.VehiclePosition{}, fmt.Errorf("vehicle %s longitude: %w", entityID, err)
	}
	v.Position = transit.Position{Lat: lat, Lng: lng}

	top := topLevel(body)
	v.Timestamp = p.now()
	if ts, ok := rawValue(top, "timestamp"); ok {
		t, err := epoch(ts)
		if err != nil {
			return transit.VehiclePosition{}, fmt.Errorf("vehicle %s timestamp: %w", entityID, err)
		}
		v.Timestamp = t
	}

	status, _ := rawValue(top, "current_status")
	v.Status = normalizeStatus(status)
	if stop, ok := stringValue(top, "stop_id"); ok {
		v.CurrentStop = stop
	}

	v.VehicleType = classify.Resolve(p.routes, v.RouteID, v.RouteName)
	return v, nil
}

// routeName enriches a raw route id to its short name, or returns the id.
func (p *Parser) routeName(id string) string {
	if p.routes != nil {
		if r, ok := p.routes.Route(id); ok && r.ShortName != "" {
			return r.ShortName
		}
	}
	return id
}

// translation picks the text of the translation entry in lang.
func translation(s, lang string) (string, bool) {
	for _, t := range sections(s, "translation", -1) {
		l, _ := stringValue(t, "language")
		if !strings.EqualFold(l, lang) {
			continue
		}
		if text, ok := stringValue(t, "text"); ok {
			return DecodeText(text), true
		}
	}
	return "", false
}

func epoch(v string) (time.Time, error) {
	secs, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.Unix(secs, 0).UTC(), nil
}

func normalizeCause(v string) string {
	if n, err := strconv.Atoi(v); err == nil {
		if name, ok := gtfsrt.Alert_Cause_name[int32(n)]; ok {
			return name
		}
	}
	if n, ok := gtfsrt.Alert_Cause_value[strings.ToUpper(v)]; ok {
		return gtfsrt.Alert_Cause(n).String()
	}
	return gtfsrt.Alert_UNKNOWN_CAUSE.String()
}

func normalizeEffect(v string) string {
	if n, err := strconv.Atoi(v); err == nil {
		if name, ok := gtfsrt.Alert_Effect_name[int32(n)]; ok {
			return name
		}
	}
	if n, ok := gtfsrt.Alert_Effect_value[strings.ToUpper(v)]; ok {
		return gtfsrt.Alert_Effect(n).String()
	}
	return gtfsrt.Alert_UNKNOWN_EFFECT.String()
}

func normalizeStatus(v string) string {
	if n, err := strconv.Atoi(v); err == nil {
		if name, ok := gtfsrt.VehiclePosition_VehicleStopStatus_name[int32(n)]; ok {
			return name
		}
	}
	if n, ok := gtfsrt.VehiclePosition_VehicleStopStatus_value[strings.ToUpper(v)]; ok {
		return gtfsrt.VehiclePosition_VehicleStopStatus(n).String()
	}
	return gtfsrt.VehiclePosition_IN_TRANSIT_TO.String()
}
