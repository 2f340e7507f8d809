package telemetry

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Parser normalizes one raw upstream record into a station id and a
// Fragment. Upstream records vary in key casing and nesting between the two
// feeds, so every lookup tries an ordered list of candidate key names. The
// parser is pure and never fails: any unusable value becomes a nil field.
type Parser struct {
	loc *time.Location
}

// NewParser returns a parser that converts timestamps into the given fixed
// local zone.
func NewParser(loc *time.Location) *Parser {
	return &Parser{loc: loc}
}

var (
	stationIDKeys       = []string{"StationId", "stationId", "StationID", "STID", "stno"}
	nestedStationIDKeys = []string{"StationId", "stationId", "StationID"}
)

// ParseRecord extracts the station id and telemetry fragment from a raw
// record. An empty station id means the record is unusable and the caller
// should skip it.
func (p *Parser) ParseRecord(rec map[string]any) (string, Fragment) {
	sid := extractStationID(rec)
	we := flattenWeatherElement(rec)

	var frag Fragment

	frag.Speed = safeFloat(lookup(we, "WindSpeed", "WDSD", "WIND_SPEED"))
	frag.Dir = safeStr(lookup(we, "WindDirection", "WDIR"))

	gust := p.parseGust(lookup(we, "GustInfo", "GUST", "Gust"))
	frag.GustSpeed = gust.Speed
	frag.GustDir = gust.Dir
	frag.GustTime = gust.Time

	frag.ObsTime = p.extractObsTime(rec)

	if now := asMap(lookup(we, "Now", "now")); now != nil {
		frag.Precip = safeFloat(lookup(now, "Precipitation", "precipitation"))
	}

	frag.AirTemp = safeFloat(lookup(we, "AirTemperature", "airTemperature"))
	frag.RH = safeFloat(lookup(we, "RelativeHumidity", "relativeHumidity"))
	frag.Pres = safeFloat(lookup(we, "AirPressure", "airPressure"))

	de := asMap(lookup(we, "DailyExtreme", "dailyExtreme"))
	frag.TMax, frag.TMaxTime = p.parseDailyExtreme(de, "DailyHigh", "dailyHigh")
	frag.TMin, frag.TMinTime = p.parseDailyExtreme(de, "DailyLow", "dailyLow")

	return sid, frag
}

func extractStationID(rec map[string]any) string {
	for _, k := range stationIDKeys {
		if s := safeStr(rec[k]); s != nil {
			return *s
		}
	}
	if st := asMap(rec["Station"]); st != nil {
		for _, k := range nestedStationIDKeys {
			if s := safeStr(st[k]); s != nil {
				return *s
			}
		}
	}
	return ""
}

// flattenWeatherElement overlays the nested weather sub-object onto a copy of
// the top-level record, so field lookups see both. Sub-object keys win on
// collision.
func flattenWeatherElement(rec map[string]any) map[string]any {
	we := asMap(lookup(rec, "WeatherElement", "weatherElement"))
	if we == nil {
		return rec
	}
	flat := make(map[string]any, len(rec)+len(we))
	for k, v := range rec {
		flat[k] = v
	}
	for k, v := range we {
		flat[k] = v
	}
	return flat
}

// extractObsTime prefers ObsTime.DateTime, then the lowercase variants, and
// converts the result to the local civil format.
func (p *Parser) extractObsTime(rec map[string]any) *string {
	obs := asMap(lookup(rec, "ObsTime", "obsTime", "time"))
	if obs == nil {
		return nil
	}
	return p.isoToCivil(safeStr(lookup(obs, "DateTime", "obsTime")))
}

type gustInfo struct {
	Speed *float64
	Dir   *string
	Time  *string
}

// parseGust accepts the gust sub-structure either as a nested object or as a
// JSON-encoded string. Any parse failure yields all-nil fields.
func (p *Parser) parseGust(raw any) gustInfo {
	if s, ok := raw.(string); ok {
		var decoded map[string]any
		if err := json.Unmarshal([]byte(s), &decoded); err != nil {
			return gustInfo{}
		}
		raw = decoded
	}
	g := asMap(raw)
	if g == nil {
		return gustInfo{}
	}

	var out gustInfo
	out.Speed = safeFloat(lookup(g, "PeakGustSpeed", "peakGustSpeed"))
	if occ := asMap(lookup(g, "Occurred_at", "occurred_at")); occ != nil {
		out.Dir = safeStr(lookup(occ, "WindDirection", "windDirection"))
		out.Time = p.isoToCivil(safeStr(lookup(occ, "DateTime", "dateTime")))
	}
	return out
}

// parseDailyExtreme descends DailyExtreme.<High|Low>.TemperatureInfo and
// returns the extreme value plus its occurrence time.
func (p *Parser) parseDailyExtreme(de map[string]any, keys ...string) (*float64, *string) {
	side := asMap(lookup(de, keys...))
	if side == nil {
		return nil, nil
	}
	info := asMap(lookup(side, "TemperatureInfo", "temperatureInfo"))
	if info == nil {
		return nil, nil
	}

	val := safeFloat(lookup(info, "AirTemperature", "airTemperature"))

	var ts *string
	if occ := asMap(lookup(info, "Occurred_at", "occurred_at")); occ != nil {
		ts = p.isoToCivil(safeStr(lookup(occ, "DateTime", "dateTime")))
	}
	return val, ts
}

// isoToCivil converts an ISO-8601 timestamp (with or without an offset) to
// the local civil format. Timestamps without an explicit offset are assumed
// UTC. Unparsable strings pass through unchanged.
func (p *Parser) isoToCivil(s *string) *string {
	if s == nil {
		return nil
	}
	raw := *s

	layouts := []string{
		time.RFC3339,
		"2006-01-02T15:04:05",
		"2006-01-02 15:04:05Z07:00",
		CivilLayout,
	}
	for _, layout := range layouts {
		t, err := time.Parse(layout, raw)
		if err != nil {
			continue
		}
		if layout == "2006-01-02T15:04:05" || layout == CivilLayout {
			t = time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), 0, time.UTC)
		}
		return strPtr(t.In(p.loc).Format(CivilLayout))
	}
	return s
}

// lookup returns the value of the first candidate key present with a non-nil
// value.
func lookup(m map[string]any, keys ...string) any {
	if m == nil {
		return nil
	}
	for _, k := range keys {
		if v, ok := m[k]; ok && v != nil {
			return v
		}
	}
	return nil
}

func asMap(v any) map[string]any {
	m, _ := v.(map[string]any)
	return m
}

// safeFloat coerces a raw value to a float, mapping the upstream sentinel
// values (-99, "", "nan", "null") to nil.
func safeFloat(v any) *float64 {
	switch x := v.(type) {
	case nil:
		return nil
	case float64:
		if x == -99 {
			return nil
		}
		return &x
	case int:
		return safeFloat(float64(x))
	case json.Number:
		return safeFloat(x.String())
	case string:
		s := strings.TrimSpace(x)
		switch strings.ToLower(s) {
		case "", "nan", "null", "-99":
			return nil
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil
		}
		return &f
	default:
		return safeFloat(fmt.Sprint(v))
	}
}

// safeStr coerces a raw value to a trimmed string, mapping "" and the -99
// sentinel to nil.
func safeStr(v any) *string {
	if v == nil {
		return nil
	}
	var s string
	switch x := v.(type) {
	case string:
		s = strings.TrimSpace(x)
	case float64:
		s = strconv.FormatFloat(x, 'f', -1, 64)
	default:
		s = strings.TrimSpace(fmt.Sprint(v))
	}
	if s == "" || s == "-99" {
		return nil
	}
	return &s
}
