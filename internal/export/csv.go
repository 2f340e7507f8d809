package export

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/stationwatch/stationwatch/internal/telemetry"
)

// Store is the slice of the observation store the exporter reads from.
type Store interface {
	Between(ctx context.Context, start, end string) ([]telemetry.Observation, error)
}

var header = []string{
	"station_id", "station_name", "obs_time",
	"wind_speed_ms", "wind_dir",
	"gust_speed_ms", "gust_dir", "gust_time",
	"precip_mm", "air_temp_c", "rh_pct", "pres_hpa",
	"tmax_c", "tmax_time", "tmin_c", "tmin_time",
}

// Exporter writes one CSV artifact per civil day, named YYYYMMDD.csv,
// containing every row with obs_time in (day 00:00, day+1 00:00]. The file
// is rewritten in full on every call.
type Exporter struct {
	store Store
	dir   string
	loc   *time.Location
}

// New creates an Exporter writing into dir.
func New(store Store, dir string, loc *time.Location) *Exporter {
	return &Exporter{store: store, dir: dir, loc: loc}
}

// DayFor returns the civil day an observation belongs to. A row stamped
// exactly at midnight belongs to the day that just ended.
func DayFor(obsTime time.Time) time.Time {
	day := time.Date(obsTime.Year(), obsTime.Month(), obsTime.Day(), 0, 0, 0, 0, obsTime.Location())
	if obsTime.Hour() == 0 && obsTime.Minute() == 0 && obsTime.Second() == 0 {
		day = day.AddDate(0, 0, -1)
	}
	return day
}

// WriteFor writes the artifact for the day obsTime belongs to.
func (e *Exporter) WriteFor(ctx context.Context, obsTime time.Time) (string, error) {
	return e.WriteDay(ctx, DayFor(obsTime))
}

// WriteDay writes the artifact for the given civil day and returns its path.
func (e *Exporter) WriteDay(ctx context.Context, day time.Time) (string, error) {
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, e.loc)
	end := start.AddDate(0, 0, 1)

	rows, err := e.store.Between(ctx, telemetry.FormatCivil(start), telemetry.FormatCivil(end))
	if err != nil {
		return "", fmt.Errorf("select day rows: %w", err)
	}

	if err := os.MkdirAll(e.dir, 0o755); err != nil {
		return "", fmt.Errorf("create export dir: %w", err)
	}
	path := filepath.Join(e.dir, start.Format("20060102")+".csv")

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()

	// UTF-8 BOM so spreadsheet tools detect the encoding.
	if _, err := f.Write([]byte{0xEF, 0xBB, 0xBF}); err != nil {
		return "", fmt.Errorf("write bom: %w", err)
	}

	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		return "", fmt.Errorf("write header: %w", err)
	}
	for _, r := range rows {
		if err := w.Write(record(r)); err != nil {
			return "", fmt.Errorf("write row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", fmt.Errorf("flush csv: %w", err)
	}
	return path, nil
}

func record(r telemetry.Observation) []string {
	return []string{
		r.StationID,
		text(r.Name),
		text(r.ObsTime),
		num(r.Speed),
		text(r.Dir),
		num(r.GustSpeed),
		text(r.GustDir),
		text(r.GustTime),
		num(r.Precip),
		num(r.AirTemp),
		num(r.RH),
		num(r.Pres),
		num(r.TMax),
		text(r.TMaxTime),
		num(r.TMin),
		text(r.TMinTime),
	}
}

// num formats a numeric value to one decimal place, blank when null.
func num(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', 1, 64)
}

func text(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}
