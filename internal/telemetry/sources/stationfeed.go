package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"github.com/stationwatch/stationwatch/internal/telemetry"
)

// DefaultElements is the weather-element list requested from the upstream
// open-data API.
const DefaultElements = "Now,WindDirection,WindSpeed,AirTemperature,RelativeHumidity,AirPressure,GustInfo,DailyHigh,DailyLow"

// StationFeed implements telemetry.Source for one upstream open-data
// endpoint. The primary and secondary feeds share this shape and differ only
// in base URL; their payloads differ in key casing and nesting, which the
// record parser absorbs.
type StationFeed struct {
	name     string
	baseURL  string
	token    string
	elements string
	parser   *telemetry.Parser
	httpCfg  HTTPClientConfig
	circuit  *gobreaker.CircuitBreaker
}

// NewStationFeed creates a feed client for the given endpoint.
func NewStationFeed(name, baseURL, token string, client *http.Client, parser *telemetry.Parser) *StationFeed {
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 5,
		Interval:    1 * time.Minute,
		Timeout:     2 * time.Minute,
	})

	return &StationFeed{
		name:     name,
		baseURL:  baseURL,
		token:    token,
		elements: DefaultElements,
		parser:   parser,
		httpCfg: HTTPClientConfig{
			Client: client,
			Backoff: BackoffConfig{
				MaxRetries:      2,
				InitialInterval: 500 * time.Millisecond,
				MaxInterval:     5 * time.Second,
			},
		},
		circuit: cb,
	}
}

func (f *StationFeed) Name() string {
	return f.name
}

// Fetch requests the given stations in one batched call and returns a
// fragment per station that produced a parsable record. Per-record parse
// failures are skipped, never fatal.
func (f *StationFeed) Fetch(ctx context.Context, stationIDs []string) (map[string]telemetry.Fragment, error) {
	out := make(map[string]telemetry.Fragment, len(stationIDs))
	if len(stationIDs) == 0 {
		return out, nil
	}
	if f.token == "" {
		return nil, fmt.Errorf("%s: access token is not configured", f.name)
	}

	buildRequest := func() (*http.Request, error) {
		values := url.Values{}
		values.Set("Authorization", f.token)
		values.Set("format", "JSON")
		values.Set("StationId", strings.Join(stationIDs, ","))
		values.Set("WeatherElement", f.elements)

		return http.NewRequest(http.MethodGet, fmt.Sprintf("%s?%s", f.baseURL, values.Encode()), nil)
	}

	resp, err := doRequestWithResilience(ctx, f.httpCfg, f.circuit, buildRequest)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", f.name, err)
	}
	defer resp.Body.Close()

	var payload struct {
		Records map[string]json.RawMessage `json:"records"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("%s: decode payload: %w", f.name, err)
	}

	records := extractRecords(payload.Records)
	if records == nil {
		return nil, fmt.Errorf("%s: unexpected payload shape: no station records", f.name)
	}

	for _, rec := range records {
		sid, frag := f.parser.ParseRecord(rec)
		if sid == "" {
			continue
		}
		out[sid] = frag
	}
	return out, nil
}

// extractRecords accepts both upstream array shapes: records.Station (newer
// feed) and records.location (legacy feed).
func extractRecords(records map[string]json.RawMessage) []map[string]any {
	for _, key := range []string{"Station", "location"} {
		raw, ok := records[key]
		if !ok {
			continue
		}
		var recs []map[string]any
		if err := json.Unmarshal(raw, &recs); err != nil {
			continue
		}
		return recs
	}
	return nil
}
