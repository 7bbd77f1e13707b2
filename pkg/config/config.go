package config

import (
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"
	"unicode"

	"github.com/creasty/defaults"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/pkg/errors"
)

type Config struct {
	// DatabaseFilePath is required; everything else has a usable default.
	DatabaseFilePath string `koanf:"database_file_path"`

	DatabaseBusyTimeout       time.Duration `koanf:"database_busy_timeout" default:"5s"`
	DatabaseConnectRetryCount int           `koanf:"database_connect_retry_count" default:"5"`
	DatabaseConnectRetryDelay time.Duration `koanf:"database_connect_retry_delay" default:"2s"`
	DatabaseDebug             bool          `koanf:"database_debug"`

	Hostname string `koanf:"-"`

	// Worker pool and scheduler cadence.
	WorkerProcesses int           `koanf:"worker_processes" default:"4"`
	TickInterval    time.Duration `koanf:"tick_interval" default:"1s"`

	// Retry policy. The backoff horizon is days, not seconds: external
	// catalogs refresh slowly, so hammering them sooner buys nothing.
	MaxRetries          int     `koanf:"max_retries" default:"3"`
	BackoffBaseDays     float64 `koanf:"backoff_base_days" default:"1"`
	BackoffGrowthFactor float64 `koanf:"backoff_growth_factor" default:"3"`

	// Merge and chain tuning.
	ConfidenceFloor       float64 `koanf:"confidence_floor" default:"0.5"`
	ConfidenceEpsilon     float64 `koanf:"confidence_epsilon" default:"0.05"`
	CompletenessThreshold float64 `koanf:"completeness_threshold" default:"60"`

	// Completeness scanning.
	ScanBatchSize       int           `koanf:"scan_batch_size" default:"10"`
	TopNPerCategory     int           `koanf:"top_n_per_category" default:"10"`
	CorrectionRetention time.Duration `koanf:"correction_retention" default:"720h"`

	// Source adapter limits, applied per adapter.
	AdapterTimeout       time.Duration `koanf:"adapter_timeout" default:"15s"`
	AdapterRatePerMinute int           `koanf:"adapter_rate_per_minute" default:"30"`

	TorrentTrackerBaseURL   string `koanf:"torrent_tracker_base_url"`
	TorrentTrackerAPIKey    string `koanf:"torrent_tracker_api_key"`
	BiblioAPIBaseURL        string `koanf:"biblio_api_base_url" default:"https://www.googleapis.com/books/v1"`
	BiblioAPIKey            string `koanf:"biblio_api_key"`
	CommunityScraperBaseURL string `koanf:"community_scraper_base_url"`

	// Triggers maps trigger names to cron expressions.
	Triggers map[string]string `koanf:"triggers"`
}

const configFileENV = "CONFIG_FILE"

func defaultTriggers() map[string]string {
	return map[string]string{
		"discovery":         "0 1 * * *",
		"top_n_scan":        "30 1 * * *",
		"author_scan":       "0 2 * * *",
		"series_scan":       "30 2 * * *",
		"full_refresh":      "0 3 * * 0",
		"partial_refresh":   "0 4 * * *",
		"corrections_sweep": "0 5 * * *",
	}
}

// New loads configuration in three layers: struct defaults, then the YAML
// config file (CONFIG_FILE, default /config/config.yaml), then environment
// variables (DATABASE_FILE_PATH style names).
func New() (*Config, error) {
	cfg := &Config{}
	if err := defaults.Set(cfg); err != nil {
		return nil, errors.WithStack(err)
	}

	k := koanf.New(".")

	configFile := os.Getenv(configFileENV)
	if configFile == "" {
		configFile = "/config/config.yaml"
	}
	if err := k.Load(file.Provider(configFile), yaml.Parser()); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, errors.WithStack(err)
		}
	}

	err := k.Load(env.Provider("", ".", strings.ToLower), nil)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	if err := k.Unmarshal("", cfg); err != nil {
		return nil, errors.WithStack(err)
	}

	hostname, err := os.Hostname()
	if err != nil {
		return nil, errors.WithStack(err)
	}
	cfg.Hostname = hostname

	if len(cfg.Triggers) == 0 {
		cfg.Triggers = defaultTriggers()
	}

	if cfg.DatabaseFilePath == "" {
		return nil, errors.Errorf(
			"missing required config: %s (%s)",
			strings.ToUpper(toSnakeCase("DatabaseFilePath")), toSnakeCase("DatabaseFilePath"),
		)
	}

	return cfg, nil
}

// NewForTest returns a config backed by an in-memory database with the same
// defaults New applies. Tests mutate the returned struct as needed.
func NewForTest() *Config {
	cfg := &Config{}
	if err := defaults.Set(cfg); err != nil {
		panic(fmt.Sprintf("config defaults: %v", err))
	}
	cfg.DatabaseFilePath = ":memory:"
	cfg.Hostname = "test"
	cfg.Triggers = defaultTriggers()
	return cfg
}

func toSnakeCase(s string) string {
	var b strings.Builder
	for i, r := range s {
		if unicode.IsUpper(r) {
			if i > 0 {
				b.WriteByte('_')
			}
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
