package query

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/stationwatch/stationwatch/internal/telemetry"
)

// Window is a named relative time interval for representative-row queries.
type Window int

const (
	// WindowInstant means "latest known per station", with no time bounds.
	WindowInstant Window = iota
	Window1h
	Window24h
	WindowToday
)

// ParseWindow maps the wire vocabulary to a Window. "now" is the wire alias
// for instant; unknown names resolve to instant.
func ParseWindow(s string) Window {
	switch s {
	case "now", "instant":
		return WindowInstant
	case "1h":
		return Window1h
	case "24h":
		return Window24h
	case "today":
		return WindowToday
	default:
		return WindowInstant
	}
}

// Metric selects the column used to rank candidate rows within a window.
type Metric int

const (
	MetricAvgWind Metric = iota
	MetricGust
	MetricDailyPrecip
	MetricAirTemp
	MetricRH
)

// ParseMetric maps the wire vocabulary to a Metric; unknown names fall back
// to wind speed.
func ParseMetric(s string) Metric {
	switch s {
	case "avg-wind":
		return MetricAvgWind
	case "gust":
		return MetricGust
	case "daily-precip":
		return MetricDailyPrecip
	case "air-temp":
		return MetricAirTemp
	case "rh":
		return MetricRH
	default:
		return MetricAvgWind
	}
}

// Store is the slice of the observation store the engine reads from.
type Store interface {
	Between(ctx context.Context, start, end string) ([]telemetry.Observation, error)
	LatestPerStation(ctx context.Context) ([]telemetry.Observation, error)
}

// Engine answers time-windowed representative-observation queries: exactly
// one row per station per (window, metric), chosen by deterministic ranking.
type Engine struct {
	store Store
	loc   *time.Location
	now   func() time.Time
}

// New creates an Engine resolving windows against the given local zone.
func New(store Store, loc *time.Location, now func() time.Time) *Engine {
	if now == nil {
		now = time.Now
	}
	return &Engine{store: store, loc: loc, now: now}
}

// Select returns one representative row per station for the window and
// metric. An empty store or window yields an empty result, not an error.
func (e *Engine) Select(ctx context.Context, w Window, m Metric) ([]map[string]any, error) {
	if w == WindowInstant {
		rows, err := e.store.LatestPerStation(ctx)
		if err != nil {
			return nil, fmt.Errorf("instant query: %w", err)
		}
		return projectAll(m, rows), nil
	}

	start, end := e.bounds(w)
	rows, err := e.store.Between(ctx, start, end)
	if err != nil {
		return nil, fmt.Errorf("window query: %w", err)
	}
	return projectAll(m, Rank(rows, m)), nil
}

// bounds resolves a bounded window to the half-open-on-the-left interval
// (start, now].
func (e *Engine) bounds(w Window) (string, string) {
	now := e.now().In(e.loc)

	var start time.Time
	switch w {
	case Window1h:
		start = now.Add(-1 * time.Hour)
	case Window24h:
		start = now.Add(-24 * time.Hour)
	case WindowToday:
		start = time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, e.loc)
	default:
		start = now.Add(-1 * time.Hour)
	}
	return telemetry.FormatCivil(start), telemetry.FormatCivil(now)
}

// Rank reduces candidate rows to one per station. Within a station, rows
// order by: metric value present before absent, metric value descending,
// obs_time descending as final tie-break. The first-ranked row represents
// the station.
func Rank(rows []telemetry.Observation, m Metric) []telemetry.Observation {
	byStation := make(map[string][]telemetry.Observation)
	var order []string
	for _, r := range rows {
		if _, seen := byStation[r.StationID]; !seen {
			order = append(order, r.StationID)
		}
		byStation[r.StationID] = append(byStation[r.StationID], r)
	}
	sort.Strings(order)

	out := make([]telemetry.Observation, 0, len(order))
	for _, sid := range order {
		candidates := byStation[sid]
		sort.SliceStable(candidates, func(i, j int) bool {
			vi, vj := metricValue(candidates[i], m), metricValue(candidates[j], m)
			if (vi != nil) != (vj != nil) {
				return vi != nil
			}
			if vi != nil && vj != nil && *vi != *vj {
				return *vi > *vj
			}
			return civil(candidates[i].ObsTime) > civil(candidates[j].ObsTime)
		})
		out = append(out, candidates[0])
	}
	return out
}

func metricValue(o telemetry.Observation, m Metric) *float64 {
	switch m {
	case MetricGust:
		return o.GustSpeed
	case MetricDailyPrecip:
		return o.Precip
	case MetricAirTemp:
		return o.AirTemp
	case MetricRH:
		return o.RH
	default:
		return o.Speed
	}
}

func civil(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func projectAll(m Metric, rows []telemetry.Observation) []map[string]any {
	out := make([]map[string]any, 0, len(rows))
	for _, r := range rows {
		out = append(out, project(m, r))
	}
	return out
}

// project surfaces the output columns for a metric under the dashboard's key
// names. The gust tab reports the gust's own occurrence time as the row
// time; every other tab reports the observation time.
func project(m Metric, o telemetry.Observation) map[string]any {
	row := map[string]any{
		"station_id": o.StationID,
		"name":       o.Name,
	}
	switch m {
	case MetricGust:
		row["gust_speed"] = o.GustSpeed
		row["gust_dir"] = o.GustDir
		row["time"] = o.GustTime
	case MetricDailyPrecip:
		row["precip"] = o.Precip
		row["time"] = o.ObsTime
	case MetricAirTemp:
		row["air_temp"] = o.AirTemp
		row["time"] = o.ObsTime
	case MetricRH:
		row["rh"] = o.RH
		row["time"] = o.ObsTime
	default:
		row["speed"] = o.Speed
		row["dir"] = o.Dir
		row["time"] = o.ObsTime
	}
	return row
}
