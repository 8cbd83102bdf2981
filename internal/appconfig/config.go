// Package appconfig is the single configuration record populated at
// startup from defaults, an optional TOML file, and environment variable
// overrides — replacing the scattered per-module environment reads of the
// original scripts with one typed record passed down to every component.
package appconfig

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/robfig/cron/v3"
)

// LoggingConfig controls the applog setup.
type LoggingConfig struct {
	Level      string   `toml:"level"`
	Output     []string `toml:"output"`
	Dir        string   `toml:"dir"`
	TimeFormat string   `toml:"time_format"`
}

// ObjectStoreConfig configures one S3-compatible bucket/endpoint pair.
type ObjectStoreConfig struct {
	Bucket   string `toml:"bucket"`
	Endpoint string `toml:"endpoint"`
	Region   string `toml:"region"`
}

// StreamConfig configures one JetStream stream's retention knobs.
type StreamConfig struct {
	Name                string `toml:"name"`
	MaxAgeSeconds       int    `toml:"max_age_seconds"`
	DedupeWindowSeconds int    `toml:"dedupe_window_seconds"`
	MaxBytes            int64  `toml:"max_bytes"`
}

func (s StreamConfig) MaxAge() time.Duration       { return time.Duration(s.MaxAgeSeconds) * time.Second }
func (s StreamConfig) DedupeWindow() time.Duration { return time.Duration(s.DedupeWindowSeconds) * time.Second }

// WorkerConfig configures pull-consumer batching and durable identity.
type WorkerConfig struct {
	Batch          int    `toml:"batch"`
	FetchTimeoutMS int    `toml:"fetch_timeout_ms"`
	Durable        string `toml:"durable"`
	MaxDeliveries  int    `toml:"max_deliveries"`
}

func (w WorkerConfig) FetchTimeout() time.Duration { return time.Duration(w.FetchTimeoutMS) * time.Millisecond }

// RendererConfig configures the image-worker's subprocess screenshot job.
type RendererConfig struct {
	Width          int  `toml:"width"`
	Height         int  `toml:"height"`
	Count          int  `toml:"count"`
	Panorama       bool `toml:"panorama"`
	TimeoutSeconds int  `toml:"timeout_seconds"`
	MaxDeliveries  int  `toml:"max_deliveries"`
}

func (r RendererConfig) Timeout() time.Duration { return time.Duration(r.TimeoutSeconds) * time.Second }

// CacheConfig configures the Redis-compatible sidecar.
type CacheConfig struct {
	Host     string `toml:"host"`
	Port     int    `toml:"port"`
	Username string `toml:"username"`
	Password string `toml:"password"`
	TLS      bool   `toml:"tls"`
}

// MetricsConfig configures the /metrics listener.
type MetricsConfig struct {
	Enabled bool   `toml:"enabled"`
	Addr    string `toml:"addr"`
	Port    int    `toml:"port"`
}

// DispatcherConfig configures corpus index locations and dispatch scope.
type DispatcherConfig struct {
	PrimaryIndexPath   string `toml:"primary_index_path"`
	CrossRefIndexPath  string `toml:"cross_ref_index_path"`
	ReadmesIndexPath   string `toml:"readmes_index_path"`
	Start              int    `toml:"start"`
	Limit              int    `toml:"limit"`
	SleepMillis        int    `toml:"sleep_millis"`
	SmokeTestID        string `toml:"smoke_test_id"`
	PublishTimeoutSecs int    `toml:"publish_timeout_seconds"`
	WatchSchedule      string `toml:"watch_schedule"` // cron expression; empty disables --watch
}

func (d DispatcherConfig) PublishTimeout() time.Duration {
	return time.Duration(d.PublishTimeoutSecs) * time.Second
}

// Config is the fully-resolved, process-wide configuration record.
type Config struct {
	NatsURL        string `toml:"nats_url"`
	CatalogBaseURL string `toml:"catalog_base_url"`
	LegacyProbe    bool   `toml:"legacy_probe"`

	Logging    LoggingConfig     `toml:"logging"`
	WadStore   ObjectStoreConfig `toml:"wad_store"`
	ImageStore ObjectStoreConfig `toml:"image_store"`
	MetaStream StreamConfig      `toml:"meta_stream"`
	ImgStream  StreamConfig      `toml:"images_stream"`
	Worker     WorkerConfig      `toml:"worker"`
	Renderer   RendererConfig    `toml:"renderer"`
	Cache      CacheConfig       `toml:"cache"`
	Metrics    MetricsConfig     `toml:"metrics"`
	Dispatcher DispatcherConfig  `toml:"dispatcher"`

	ScratchDir string `toml:"scratch_dir"`
	LedgerPath string `toml:"ledger_path"`
}

// Default returns the built-in configuration before any file or env
// overrides are applied.
func Default() *Config {
	return &Config{
		NatsURL:        "nats://127.0.0.1:4222",
		CatalogBaseURL: "http://127.0.0.1:8080",
		LegacyProbe:    false,
		Logging: LoggingConfig{
			Level:  "info",
			Output: []string{"stdout"},
		},
		MetaStream: StreamConfig{
			Name:                "DORCH_META",
			MaxAgeSeconds:       7 * 24 * 3600,
			DedupeWindowSeconds: 3600,
		},
		ImgStream: StreamConfig{
			Name:                "DORCH_IMAGES",
			MaxAgeSeconds:       7 * 24 * 3600,
			DedupeWindowSeconds: 3600,
		},
		Worker: WorkerConfig{
			Batch:          10,
			FetchTimeoutMS: 1000,
			Durable:        "dorch-meta-worker",
			MaxDeliveries:  3,
		},
		Renderer: RendererConfig{
			Width: 1920, Height: 1080, Count: 3,
			TimeoutSeconds: 900,
			MaxDeliveries:  3,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Addr:    "0.0.0.0",
			Port:    2112,
		},
		Dispatcher: DispatcherConfig{
			PublishTimeoutSecs: 5,
		},
		ScratchDir: "./scratch",
		LedgerPath: "./data/ledger",
	}
}

// LoadFile merges a TOML file's contents on top of cfg in place.
func LoadFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading config file %s: %w", path, err)
	}
	if err := toml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parsing config file %s: %w", path, err)
	}
	return nil
}

// ApplyEnvOverrides overlays the §6 environment variables on top of cfg.
func ApplyEnvOverrides(cfg *Config) {
	str(&cfg.WadStore.Bucket, "DORCH_WAD_BUCKET")
	str(&cfg.WadStore.Endpoint, "DORCH_WAD_ENDPOINT")
	str(&cfg.ImageStore.Bucket, "DORCH_IMAGES_BUCKET")
	str(&cfg.ImageStore.Endpoint, "DORCH_IMAGES_ENDPOINT")

	str(&cfg.MetaStream.Name, "DORCH_META_STREAM")
	str(&cfg.ImgStream.Name, "DORCH_IMAGES_STREAM")

	intVal(&cfg.MetaStream.MaxAgeSeconds, "DORCH_META_MAX_AGE_SECONDS")
	intVal(&cfg.MetaStream.DedupeWindowSeconds, "DORCH_META_DEDUPE_WINDOW_SECONDS")
	int64Val(&cfg.MetaStream.MaxBytes, "DORCH_META_MAX_BYTES")

	intVal(&cfg.Worker.Batch, "DORCH_META_BATCH")
	intVal(&cfg.Worker.FetchTimeoutMS, "DORCH_META_FETCH_TIMEOUT")
	str(&cfg.Worker.Durable, "DORCH_META_DURABLE")

	intVal(&cfg.Renderer.Width, "DORCH_SCREENSHOT_WIDTH")
	intVal(&cfg.Renderer.Height, "DORCH_SCREENSHOT_HEIGHT")
	intVal(&cfg.Renderer.Count, "DORCH_SCREENSHOT_COUNT")
	boolVal(&cfg.Renderer.Panorama, "DORCH_PANORAMA")
	intVal(&cfg.Renderer.MaxDeliveries, "DORCH_SCREENSHOT_MAX_DELIVERIES")

	str(&cfg.CatalogBaseURL, "WADINFO_BASE_URL")

	str(&cfg.Cache.Host, "REDIS_HOST")
	intVal(&cfg.Cache.Port, "REDIS_PORT")
	str(&cfg.Cache.Username, "REDIS_USERNAME")
	str(&cfg.Cache.Password, "REDIS_PASSWORD")
	if proto := os.Getenv("REDIS_PROTO"); proto == "rediss" || proto == "tls" {
		cfg.Cache.TLS = true
	}

	boolVal(&cfg.Metrics.Enabled, "DORCH_METRICS_ENABLED")
	str(&cfg.Metrics.Addr, "DORCH_METRICS_ADDR")
	intVal(&cfg.Metrics.Port, "DORCH_METRICS_PORT")
}

func str(dst *string, env string) {
	if v := os.Getenv(env); v != "" {
		*dst = v
	}
}

func intVal(dst *int, env string) {
	if v := os.Getenv(env); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func int64Val(dst *int64, env string) {
	if v := os.Getenv(env); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func boolVal(dst *bool, env string) {
	if v := os.Getenv(env); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

// ValidateWatchSchedule parses the dispatcher's --watch cron expression and
// rejects intervals shorter than five minutes, mirroring the minimum
// dispatch cadence the original archiver script enforced.
func ValidateWatchSchedule(expr string) error {
	if expr == "" {
		return nil
	}
	schedule, err := cron.ParseStandard(expr)
	if err != nil {
		return fmt.Errorf("invalid watch schedule %q: %w", expr, err)
	}
	next := schedule.Next(time.Now())
	if schedule.Next(next).Sub(next) < 5*time.Minute {
		return fmt.Errorf("watch schedule %q fires more often than every 5 minutes", expr)
	}
	return nil
}

// Load builds the final Config: defaults, then an optional file, then
// environment overrides.
func Load(filePath string) (*Config, error) {
	cfg := Default()
	if filePath != "" {
		if err := LoadFile(cfg, filePath); err != nil {
			return nil, err
		}
	}
	ApplyEnvOverrides(cfg)
	if err := ValidateWatchSchedule(cfg.Dispatcher.WatchSchedule); err != nil {
		return nil, err
	}
	return cfg, nil
}
