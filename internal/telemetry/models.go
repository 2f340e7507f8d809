package telemetry

import (
	"context"
	"time"
)

// CivilLayout is the fixed-format local timestamp used everywhere: in the
// store, in comparisons and in the API. It sorts lexicographically in
// chronological order.
const CivilLayout = "2006-01-02 15:04:05"

// Fragment holds the optional telemetry fields parsed from one upstream
// record. Upstreams frequently omit fields, so everything is pointer-typed
// and nil means "not reported".
type Fragment struct {
	ObsTime   *string  `json:"obs_time"`
	Speed     *float64 `json:"speed"`
	Dir       *string  `json:"dir"`
	GustSpeed *float64 `json:"gust_speed"`
	GustDir   *string  `json:"gust_dir"`
	GustTime  *string  `json:"gust_time"`
	Precip    *float64 `json:"precip"`
	AirTemp   *float64 `json:"air_temp"`
	RH        *float64 `json:"rh"`
	Pres      *float64 `json:"pres"`
	TMax      *float64 `json:"tmax"`
	TMaxTime  *string  `json:"tmax_time"`
	TMin      *float64 `json:"tmin"`
	TMinTime  *string  `json:"tmin_time"`
}

// Empty reports whether no field of the fragment carries a value.
func (f Fragment) Empty() bool {
	return f.ObsTime == nil && f.Speed == nil && f.Dir == nil &&
		f.GustSpeed == nil && f.GustDir == nil && f.GustTime == nil &&
		f.Precip == nil && f.AirTemp == nil && f.RH == nil && f.Pres == nil &&
		f.TMax == nil && f.TMaxTime == nil && f.TMin == nil && f.TMinTime == nil
}

// Overlay fills the fragment's nil fields from fill. Values already present
// are never replaced, and empty strings in fill are treated as absent.
func (f *Fragment) Overlay(fill Fragment) {
	f.ObsTime = pickStr(f.ObsTime, fill.ObsTime)
	f.Speed = pickFloat(f.Speed, fill.Speed)
	f.Dir = pickStr(f.Dir, fill.Dir)
	f.GustSpeed = pickFloat(f.GustSpeed, fill.GustSpeed)
	f.GustDir = pickStr(f.GustDir, fill.GustDir)
	f.GustTime = pickStr(f.GustTime, fill.GustTime)
	f.Precip = pickFloat(f.Precip, fill.Precip)
	f.AirTemp = pickFloat(f.AirTemp, fill.AirTemp)
	f.RH = pickFloat(f.RH, fill.RH)
	f.Pres = pickFloat(f.Pres, fill.Pres)
	f.TMax = pickFloat(f.TMax, fill.TMax)
	f.TMaxTime = pickStr(f.TMaxTime, fill.TMaxTime)
	f.TMin = pickFloat(f.TMin, fill.TMin)
	f.TMinTime = pickStr(f.TMinTime, fill.TMinTime)
}

func pickFloat(base, fill *float64) *float64 {
	if base != nil {
		return base
	}
	return fill
}

func pickStr(base, fill *string) *string {
	if base != nil {
		return base
	}
	if fill != nil && *fill != "" {
		return fill
	}
	return base
}

// Observation is one station's canonical telemetry at one instant. Identity
// is (StationID, ObsTime); a row missing either is not persistable.
type Observation struct {
	StationID string  `json:"station_id"`
	Name      *string `json:"name"`
	Fragment
}

// Source abstracts one upstream telemetry feed queried by station-id batch.
type Source interface {
	Name() string
	Fetch(ctx context.Context, stationIDs []string) (map[string]Fragment, error)
}

// Store is the contract the persistent observation store must satisfy.
type Store interface {
	Upsert(ctx context.Context, rows []Observation) (int, error)
	Prune(ctx context.Context, cutoff string) (int64, error)
}

// Directory supplies the authoritative station set. It is loaded by an
// external collaborator at startup and read-only from here on.
type Directory interface {
	IDs() []string
	DisplayName(id string) string
}

// SnapshotCache receives the full row set of each completed cycle.
type SnapshotCache interface {
	Replace(rows []Observation, at time.Time)
}

// DailyExporter writes the per-day artifact for the civil day an observation
// belongs to.
type DailyExporter interface {
	WriteFor(ctx context.Context, obsTime time.Time) (string, error)
}

// FormatCivil renders t in the fixed civil-time layout.
func FormatCivil(t time.Time) string {
	return t.Format(CivilLayout)
}

// ParseCivil parses a civil timestamp string. The result is naive: it carries
// no offset and is only ever compared with other civil timestamps.
func ParseCivil(s string) (time.Time, bool) {
	t, err := time.Parse(CivilLayout, s)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

func strPtr(s string) *string { return &s }
