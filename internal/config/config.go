package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

const (
	defaultPrimaryURL   = "https://opendata.cwa.gov.tw/api/v1/rest/datastore/O-A0003-001"
	defaultSecondaryURL = "https://opendata.cwa.gov.tw/api/v1/rest/datastore/O-A0001-001"
)

// AppConfig holds everything the process needs from the environment.
type AppConfig struct {
	// AccessToken authorizes requests against both upstream feeds.
	AccessToken string

	// Upstream endpoints. The secondary feed is only consulted to fill gaps.
	PrimaryURL   string
	SecondaryURL string

	// FetchInterval controls how often a fetch-merge-persist cycle runs.
	FetchInterval time.Duration

	// FetchTimeout bounds each upstream HTTP request.
	FetchTimeout time.Duration

	// RetentionHours is the store's retention horizon; PruneAt is the local
	// wall-clock time the daily prune fires.
	RetentionHours int
	PruneAt        string

	// Location is the fixed local zone all civil timestamps live in.
	Location *time.Location

	DBPath          string
	CSVDir          string
	StationListPath string
	Port            string
}

// Load reads configuration from environment with sensible defaults.
func Load() (*AppConfig, error) {
	// A missing .env file is fine; real environment variables still apply.
	_ = godotenv.Load()

	cfg := &AppConfig{}

	cfg.AccessToken = os.Getenv("CWA_TOKEN")
	cfg.PrimaryURL = getenvDefault("PRIMARY_API_URL", defaultPrimaryURL)
	cfg.SecondaryURL = getenvDefault("SECONDARY_API_URL", defaultSecondaryURL)

	interval := getenvInt("FETCH_INTERVAL_MIN", 1)
	if interval <= 0 {
		return nil, fmt.Errorf("invalid FETCH_INTERVAL_MIN: %d", interval)
	}
	cfg.FetchInterval = time.Duration(interval) * time.Minute

	timeout := getenvInt("FETCH_TIMEOUT", 15)
	if timeout <= 0 {
		return nil, fmt.Errorf("invalid FETCH_TIMEOUT: %d", timeout)
	}
	cfg.FetchTimeout = time.Duration(timeout) * time.Second

	cfg.RetentionHours = getenvInt("RETENTION_HOURS", 48)
	if cfg.RetentionHours <= 0 {
		return nil, fmt.Errorf("invalid RETENTION_HOURS: %d", cfg.RetentionHours)
	}
	cfg.PruneAt = getenvDefault("PRUNE_AT", "01:00")

	tz := getenvDefault("TIMEZONE", "Asia/Taipei")
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("invalid TIMEZONE %q: %w", tz, err)
	}
	cfg.Location = loc

	cfg.DBPath = getenvDefault("DB_PATH", "record.db")
	cfg.CSVDir = getenvDefault("CSV_DIR_NAME", "csv")
	cfg.StationListPath = getenvDefault("STATION_LIST_FILENAME", "stns.json")
	cfg.Port = getenvDefault("PORT", "8080")

	return cfg, nil
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		n, err := strconv.Atoi(v)
		if err == nil {
			return n
		}
	}
	return def
}
