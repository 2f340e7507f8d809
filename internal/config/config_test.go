package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("TIMEZONE", "UTC")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, time.Minute, cfg.FetchInterval)
	assert.Equal(t, 15*time.Second, cfg.FetchTimeout)
	assert.Equal(t, 48, cfg.RetentionHours)
	assert.Equal(t, "01:00", cfg.PruneAt)
	assert.Equal(t, "record.db", cfg.DBPath)
	assert.Equal(t, "csv", cfg.CSVDir)
	assert.Equal(t, "stns.json", cfg.StationListPath)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, defaultPrimaryURL, cfg.PrimaryURL)
	assert.Equal(t, defaultSecondaryURL, cfg.SecondaryURL)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("TIMEZONE", "UTC")
	t.Setenv("FETCH_INTERVAL_MIN", "5")
	t.Setenv("FETCH_TIMEOUT", "30")
	t.Setenv("RETENTION_HOURS", "72")
	t.Setenv("PRIMARY_API_URL", "http://localhost:9000/primary")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 5*time.Minute, cfg.FetchInterval)
	assert.Equal(t, 30*time.Second, cfg.FetchTimeout)
	assert.Equal(t, 72, cfg.RetentionHours)
	assert.Equal(t, "http://localhost:9000/primary", cfg.PrimaryURL)
}

func TestLoad_RejectsInvalidValues(t *testing.T) {
	t.Setenv("TIMEZONE", "UTC")

	t.Setenv("FETCH_INTERVAL_MIN", "-1")
	_, err := Load()
	assert.Error(t, err)
	t.Setenv("FETCH_INTERVAL_MIN", "")

	t.Setenv("RETENTION_HOURS", "0")
	_, err = Load()
	assert.Error(t, err)
	t.Setenv("RETENTION_HOURS", "")

	t.Setenv("TIMEZONE", "Not/AZone")
	_, err = Load()
	assert.Error(t, err)
}
