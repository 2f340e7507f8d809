package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stationwatch/stationwatch/internal/export"
	"github.com/stationwatch/stationwatch/internal/query"
	"github.com/stationwatch/stationwatch/internal/snapshot"
	"github.com/stationwatch/stationwatch/internal/station"
	"github.com/stationwatch/stationwatch/internal/telemetry"
)

var testZone = time.FixedZone("UTC+8", 8*60*60)

func f64(v float64) *float64 { return &v }
func str(s string) *string   { return &s }

type fakeStore struct {
	rows []telemetry.Observation
	err  error
}

func (s *fakeStore) Between(_ context.Context, _, _ string) ([]telemetry.Observation, error) {
	return s.rows, s.err
}

func (s *fakeStore) LatestPerStation(_ context.Context) ([]telemetry.Observation, error) {
	return s.rows, s.err
}

func testDirectory(t *testing.T) *station.Directory {
	t.Helper()
	path := filepath.Join(t.TempDir(), "stns.json")
	require.NoError(t, os.WriteFile(path, []byte(
		`[{"stno": "466920", "zone": "north", "name": "Xinyi", "groups": ["tea"]}]`,
	), 0o644))
	d, err := station.Load(path)
	require.NoError(t, err)
	return d
}

func newTestApp(t *testing.T, st *fakeStore, snap *snapshot.Service) *fiber.App {
	t.Helper()
	app := fiber.New()
	RegisterRoutes(app, Deps{
		Engine:    query.New(st, testZone, func() time.Time { return time.Date(2024, 1, 2, 12, 0, 0, 0, testZone) }),
		Snapshot:  snap,
		Directory: testDirectory(t),
		Exporter:  export.New(st, t.TempDir(), testZone),
		Location:  testZone,
		Logger:    zerolog.Nop(),
	})
	return app
}

type dataResponse struct {
	UpdatedAt *string          `json:"updated_at"`
	Rows      []map[string]any `json:"rows"`
}

func getData(t *testing.T, app *fiber.App, url string) (int, dataResponse) {
	t.Helper()
	resp, err := app.Test(httptest.NewRequest(http.MethodGet, url, nil))
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var out dataResponse
	require.NoError(t, json.Unmarshal(body, &out))
	return resp.StatusCode, out
}

func TestDataRoute_WithoutParamsServesSnapshot(t *testing.T) {
	snap := snapshot.New()
	snap.Replace([]telemetry.Observation{
		{StationID: "466920", Fragment: telemetry.Fragment{ObsTime: str("2024-01-02 11:59:00"), Speed: f64(4.0)}},
	}, time.Date(2024, 1, 2, 12, 0, 0, 0, testZone))

	app := newTestApp(t, &fakeStore{}, snap)
	code, out := getData(t, app, "/api/data")

	assert.Equal(t, http.StatusOK, code)
	require.NotNil(t, out.UpdatedAt)
	assert.Equal(t, "2024-01-02 12:00:00", *out.UpdatedAt)
	require.Len(t, out.Rows, 1)
	assert.Equal(t, "466920", out.Rows[0]["station_id"])
}

func TestDataRoute_WindowQueryReturnsRankedRows(t *testing.T) {
	st := &fakeStore{rows: []telemetry.Observation{
		{StationID: "A", Fragment: telemetry.Fragment{ObsTime: str("2024-01-02 11:00:00"), Speed: f64(2.1)}},
		{StationID: "A", Fragment: telemetry.Fragment{ObsTime: str("2024-01-02 11:30:00"), Speed: f64(2.1)}},
	}}

	app := newTestApp(t, st, snapshot.New())
	code, out := getData(t, app, "/api/data?window=1h&tab=avg-wind")

	assert.Equal(t, http.StatusOK, code)
	require.Len(t, out.Rows, 1)
	assert.Equal(t, "2024-01-02 11:30:00", out.Rows[0]["time"])
	assert.Equal(t, 2.1, out.Rows[0]["speed"])
}

func TestDataRoute_QueryFailureFallsBackToSnapshot(t *testing.T) {
	snap := snapshot.New()
	snap.Replace([]telemetry.Observation{
		{StationID: "466920", Fragment: telemetry.Fragment{ObsTime: str("2024-01-02 11:59:00")}},
	}, time.Date(2024, 1, 2, 12, 0, 0, 0, testZone))

	app := newTestApp(t, &fakeStore{err: errors.New("db locked")}, snap)
	code, out := getData(t, app, "/api/data?window=1h&tab=avg-wind")

	// Degrades to the cached rows, never to an error response.
	assert.Equal(t, http.StatusOK, code)
	require.Len(t, out.Rows, 1)
	assert.Equal(t, "466920", out.Rows[0]["station_id"])
}

func TestDataRoute_NoDataIsEmptyNotError(t *testing.T) {
	app := newTestApp(t, &fakeStore{}, snapshot.New())
	code, out := getData(t, app, "/api/data?window=24h&tab=gust")

	assert.Equal(t, http.StatusOK, code)
	assert.Nil(t, out.UpdatedAt)
	assert.Empty(t, out.Rows)
}

func TestStationsRoute(t *testing.T) {
	app := newTestApp(t, &fakeStore{}, snapshot.New())

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/stations", nil))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var out struct {
		Groups   []string       `json:"groups"`
		Stations []station.Meta `json:"stations"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, []string{"tea"}, out.Groups)
	require.Len(t, out.Stations, 1)
	assert.Equal(t, "466920", out.Stations[0].StationID)
	assert.Equal(t, "north", out.Stations[0].Zone)
}

func TestExportRoute_DateValidation(t *testing.T) {
	app := newTestApp(t, &fakeStore{}, snapshot.New())

	for _, url := range []string{
		"/api/export",
		"/api/export?date=02-01-2024",
		"/api/export?date=not-a-date",
	} {
		resp, err := app.Test(httptest.NewRequest(http.MethodGet, url, nil))
		require.NoError(t, err)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, url)
	}
}

func TestExportRoute_WritesArtifact(t *testing.T) {
	app := newTestApp(t, &fakeStore{}, snapshot.New())

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/export?date=2024-01-02", nil))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out struct {
		File string `json:"file"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, "20240102.csv", filepath.Base(out.File))
	_, err = os.Stat(out.File)
	assert.NoError(t, err)
}
