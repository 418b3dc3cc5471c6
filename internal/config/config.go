package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// AppConfig is the full process configuration.
type AppConfig struct {
	Port string

	AEMET    AEMETConfig
	Cache    CacheConfig
	Store    StoreConfig
	Warmup   WarmupConfig
	Logger   LoggerConfig
	Timezone TimezoneConfig
}

// AEMETConfig configures the upstream client.
type AEMETConfig struct {
	APIKey  string
	BaseURL string
	// HTTPTimeout bounds each of the two upstream calls.
	HTTPTimeout time.Duration
}

// CacheConfig tunes when cached rows are considered enough.
type CacheConfig struct {
	MinRows int
	MaxGap  time.Duration // 0 disables the gap check
}

// StoreConfig selects and locates the measurement store.
type StoreConfig struct {
	Driver     string // "sqlite" or "memory"
	SQLitePath string
}

// WarmupConfig drives the periodic refresh of the most recent window.
type WarmupConfig struct {
	Interval time.Duration // 0 disables the job
	Window   time.Duration
	Stations []string // empty = every known station
}

// LoggerConfig configures zerolog.
type LoggerConfig struct {
	Level  string
	Format string // "console" or "json"
}

// TimezoneConfig names the zones used by the pipeline.
type TimezoneConfig struct {
	Display       *time.Location
	DefaultInput  *time.Location
	UpstreamNaive *time.Location
}

// Load reads configuration from .env and the environment with sensible defaults.
func Load() (*AppConfig, error) {
	// A missing .env file is fine; the environment may carry everything.
	_ = godotenv.Load()

	cfg := &AppConfig{}
	var err error

	cfg.Port = getenvDefault("PORT", "8080")

	cfg.AEMET.APIKey = os.Getenv("AEMET_API_KEY")
	if cfg.AEMET.APIKey == "" {
		return nil, fmt.Errorf("AEMET_API_KEY is required")
	}
	cfg.AEMET.BaseURL = getenvDefault("AEMET_BASE_URL", "https://opendata.aemet.es/opendata")
	if cfg.AEMET.HTTPTimeout, err = getenvDuration("HTTP_TIMEOUT", "40s"); err != nil {
		return nil, err
	}

	if cfg.Cache.MinRows, err = getenvInt("CACHE_MIN_ROWS", 100); err != nil {
		return nil, err
	}
	if cfg.Cache.MaxGap, err = getenvDuration("CACHE_MAX_GAP", "0"); err != nil {
		return nil, err
	}

	cfg.Store.Driver = strings.ToLower(getenvDefault("STORE_DRIVER", "sqlite"))
	if cfg.Store.Driver != "sqlite" && cfg.Store.Driver != "memory" {
		return nil, fmt.Errorf("invalid STORE_DRIVER %q: use sqlite or memory", cfg.Store.Driver)
	}
	cfg.Store.SQLitePath = getenvDefault("SQLITE_PATH", "./data/db.sqlite")

	if cfg.Warmup.Interval, err = getenvDuration("WARMUP_INTERVAL", "0"); err != nil {
		return nil, err
	}
	if cfg.Warmup.Window, err = getenvDuration("WARMUP_WINDOW", "6h"); err != nil {
		return nil, err
	}
	cfg.Warmup.Stations = getenvList("WARMUP_STATIONS")

	cfg.Logger.Level = getenvDefault("LOG_LEVEL", "info")
	cfg.Logger.Format = getenvDefault("LOG_FORMAT", "console")

	if cfg.Timezone.Display, err = getenvLocation("DISPLAY_TIMEZONE", "Europe/Madrid"); err != nil {
		return nil, err
	}
	if cfg.Timezone.DefaultInput, err = getenvLocation("DEFAULT_INPUT_TIMEZONE", "Europe/Berlin"); err != nil {
		return nil, err
	}
	if cfg.Timezone.UpstreamNaive, err = getenvLocation("UPSTREAM_SOURCE_TIMEZONE", "UTC"); err != nil {
		return nil, err
	}

	return cfg, nil
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if n < 0 {
		return 0, fmt.Errorf("invalid %s: must not be negative", key)
	}
	return n, nil
}

func getenvDuration(key, def string) (time.Duration, error) {
	d, err := time.ParseDuration(getenvDefault(key, def))
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("invalid %s: must not be negative", key)
	}
	return d, nil
}

func getenvLocation(key, def string) (*time.Location, error) {
	loc, err := time.LoadLocation(getenvDefault(key, def))
	if err != nil {
		return nil, fmt.Errorf("invalid %s: %w", key, err)
	}
	return loc, nil
}

func getenvList(key string) []string {
	var out []string
	for _, item := range strings.Split(os.Getenv(key), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
