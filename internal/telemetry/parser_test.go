package telemetry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testZone = time.FixedZone("UTC+8", 8*60*60)

func f64(v float64) *float64 { return &v }
func str(s string) *string   { return &s }

func TestParseRecord_SentinelValuesBecomeNil(t *testing.T) {
	p := NewParser(testZone)

	for name, raw := range map[string]any{
		"numeric -99":  float64(-99),
		"string -99":   "-99",
		"empty string": "",
		"nan":          "nan",
		"NaN upper":    "NaN",
		"null":         "null",
		"NULL upper":   "NULL",
	} {
		t.Run(name, func(t *testing.T) {
			_, frag := p.ParseRecord(map[string]any{
				"StationId": "466920",
				"WeatherElement": map[string]any{
					"WindSpeed":        raw,
					"AirTemperature":   raw,
					"RelativeHumidity": raw,
				},
			})
			assert.Nil(t, frag.Speed)
			assert.Nil(t, frag.AirTemp)
			assert.Nil(t, frag.RH)
		})
	}
}

func TestParseRecord_StationIDAliases(t *testing.T) {
	p := NewParser(testZone)

	tests := []struct {
		name string
		rec  map[string]any
		want string
	}{
		{"canonical", map[string]any{"StationId": "466920"}, "466920"},
		{"lower camel", map[string]any{"stationId": "466921"}, "466921"},
		{"upper id", map[string]any{"StationID": "466922"}, "466922"},
		{"stid", map[string]any{"STID": "466923"}, "466923"},
		{"stno", map[string]any{"stno": "466924"}, "466924"},
		{"numeric id", map[string]any{"stno": float64(466925)}, "466925"},
		{"nested station", map[string]any{"Station": map[string]any{"StationId": "C0A520"}}, "C0A520"},
		{"first alias wins", map[string]any{"StationId": "A", "stno": "B"}, "A"},
		{"no match", map[string]any{"foo": "bar"}, ""},
		{"empty id skipped", map[string]any{"StationId": "", "stno": "C"}, "C"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			sid, _ := p.ParseRecord(tc.rec)
			assert.Equal(t, tc.want, sid)
		})
	}
}

func TestParseRecord_FlattensWeatherElement(t *testing.T) {
	p := NewParser(testZone)

	// Sub-object keys win over top-level keys on collision.
	_, frag := p.ParseRecord(map[string]any{
		"StationId":      "466920",
		"AirTemperature": 10.0,
		"WeatherElement": map[string]any{
			"AirTemperature": 23.5,
		},
	})
	require.NotNil(t, frag.AirTemp)
	assert.Equal(t, 23.5, *frag.AirTemp)
}

func TestParseRecord_ObsTimeConversion(t *testing.T) {
	p := NewParser(testZone)

	tests := []struct {
		name string
		in   any
		want *string
	}{
		{"zulu", "2024-01-02T03:04:05Z", str("2024-01-02 11:04:05")},
		{"explicit offset", "2024-01-02T03:04:05+08:00", str("2024-01-02 03:04:05")},
		{"no offset assumes UTC", "2024-01-02T03:04:05", str("2024-01-02 11:04:05")},
		{"unparsable passes through", "yesterday-ish", str("yesterday-ish")},
		{"missing", nil, nil},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := map[string]any{"StationId": "466920"}
			if tc.in != nil {
				rec["ObsTime"] = map[string]any{"DateTime": tc.in}
			}
			_, frag := p.ParseRecord(rec)
			assert.Equal(t, tc.want, frag.ObsTime)
		})
	}
}

func TestParseRecord_GustAsObjectAndString(t *testing.T) {
	p := NewParser(testZone)

	gustObj := map[string]any{
		"PeakGustSpeed": 17.2,
		"Occurred_at": map[string]any{
			"WindDirection": "NE",
			"DateTime":      "2024-01-01T15:55:00+08:00",
		},
	}

	t.Run("nested object", func(t *testing.T) {
		_, frag := p.ParseRecord(map[string]any{
			"StationId":      "466920",
			"WeatherElement": map[string]any{"GustInfo": gustObj},
		})
		require.NotNil(t, frag.GustSpeed)
		assert.Equal(t, 17.2, *frag.GustSpeed)
		assert.Equal(t, str("NE"), frag.GustDir)
		assert.Equal(t, str("2024-01-01 15:55:00"), frag.GustTime)
	})

	t.Run("json-encoded string", func(t *testing.T) {
		_, frag := p.ParseRecord(map[string]any{
			"StationId": "466920",
			"WeatherElement": map[string]any{
				"GustInfo": `{"PeakGustSpeed": 17.2, "Occurred_at": {"WindDirection": "NE", "DateTime": "2024-01-01T15:55:00+08:00"}}`,
			},
		})
		require.NotNil(t, frag.GustSpeed)
		assert.Equal(t, 17.2, *frag.GustSpeed)
		assert.Equal(t, str("NE"), frag.GustDir)
	})

	t.Run("garbage yields all nil", func(t *testing.T) {
		for _, raw := range []any{"not json", 42.0, []any{"x"}} {
			_, frag := p.ParseRecord(map[string]any{
				"StationId":      "466920",
				"WeatherElement": map[string]any{"GustInfo": raw},
			})
			assert.Nil(t, frag.GustSpeed)
			assert.Nil(t, frag.GustDir)
			assert.Nil(t, frag.GustTime)
		}
	})
}

func TestParseRecord_DailyExtremes(t *testing.T) {
	p := NewParser(testZone)

	_, frag := p.ParseRecord(map[string]any{
		"StationId": "466920",
		"WeatherElement": map[string]any{
			"DailyExtreme": map[string]any{
				"DailyHigh": map[string]any{
					"TemperatureInfo": map[string]any{
						"AirTemperature": 31.4,
						"Occurred_at":    map[string]any{"DateTime": "2024-06-01T13:20:00+08:00"},
					},
				},
				"dailyLow": map[string]any{
					"temperatureInfo": map[string]any{
						"airTemperature": "18.9",
						"occurred_at":    map[string]any{"dateTime": "2024-06-01T05:10:00+08:00"},
					},
				},
			},
		},
	})

	require.NotNil(t, frag.TMax)
	assert.Equal(t, 31.4, *frag.TMax)
	assert.Equal(t, str("2024-06-01 13:20:00"), frag.TMaxTime)
	require.NotNil(t, frag.TMin)
	assert.Equal(t, 18.9, *frag.TMin)
	assert.Equal(t, str("2024-06-01 05:10:00"), frag.TMinTime)
}

func TestParseRecord_PrecipFromNowObject(t *testing.T) {
	p := NewParser(testZone)

	_, frag := p.ParseRecord(map[string]any{
		"StationId": "466920",
		"WeatherElement": map[string]any{
			"Now": map[string]any{"Precipitation": 12.5},
		},
	})
	require.NotNil(t, frag.Precip)
	assert.Equal(t, 12.5, *frag.Precip)
}

func TestParseRecord_NeverPanicsOnHostileShapes(t *testing.T) {
	p := NewParser(testZone)

	hostile := []map[string]any{
		nil,
		{},
		{"StationId": []any{"x"}},
		{"StationId": "ok", "WeatherElement": "not a map"},
		{"StationId": "ok", "ObsTime": "not a map"},
		{"StationId": "ok", "WeatherElement": map[string]any{"DailyExtreme": "nope"}},
		{"StationId": "ok", "WeatherElement": map[string]any{"Now": []any{1, 2}}},
	}
	for _, rec := range hostile {
		assert.NotPanics(t, func() { p.ParseRecord(rec) })
	}
}
