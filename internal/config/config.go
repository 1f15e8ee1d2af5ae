package config

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const (
	envPrefix     = "PIXELKIT_"
	envConfigPath = "PIXELKIT_CONFIG"
)

type Config struct {
	Log       LogConfig       `koanf:"log"`
	API       APIConfig       `koanf:"api"`
	Dashboard DashboardConfig `koanf:"dashboard"`
	Queue     QueueConfig     `koanf:"queue"`
	RateLimit RateLimitConfig `koanf:"rate_limit"`
	Worker    WorkerConfig    `koanf:"worker"`
	Storage   StorageConfig   `koanf:"storage"`
	Database  DatabaseConfig  `koanf:"database"`
	Webhook   WebhookConfig   `koanf:"webhook"`
	Tracing   TracingConfig   `koanf:"tracing"`
}

type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

type APIConfig struct {
	Addr           string   `koanf:"addr"`
	MaxUploadBytes int64    `koanf:"max_upload_bytes"`
	JPEGQuality    int      `koanf:"jpeg_quality"`
	CORSOrigins    []string `koanf:"cors_origins"`
}

// DefaultFeedURL is the City of Winnipeg 311 wait time dataset.
const DefaultFeedURL = "https://data.winnipeg.ca/resource/vrzk-mj7v.json"

type DashboardConfig struct {
	Addr         string        `koanf:"addr"`
	FeedURL      string        `koanf:"feed_url"`
	FetchTimeout time.Duration `koanf:"fetch_timeout"`
	Debug        bool          `koanf:"debug"`
	ChartWidth   int           `koanf:"chart_width"`
	ChartHeight  int           `koanf:"chart_height"`
}

type QueueConfig struct {
	Enabled       bool   `koanf:"enabled"`
	RedisAddr     string `koanf:"redis_addr"`
	RedisPassword string `koanf:"redis_password"`
	RedisDB       int    `koanf:"redis_db"`
	Name          string `koanf:"name"`
}

func (q QueueConfig) RedisClientOpt() asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     q.RedisAddr,
		Password: q.RedisPassword,
		DB:       q.RedisDB,
	}
}

// RateLimitConfig shares the queue's Redis connection settings.
type RateLimitConfig struct {
	Enabled      bool          `koanf:"enabled"`
	Capacity     int           `koanf:"capacity"`
	Window       time.Duration `koanf:"window"`
	UserIDHeader string        `koanf:"user_id_header"`
}

type WorkerConfig struct {
	Concurrency int    `koanf:"concurrency"`
	MetricsAddr string `koanf:"metrics_addr"`
}

type StorageConfig struct {
	Enabled   bool   `koanf:"enabled"`
	Endpoint  string `koanf:"endpoint"`
	AccessKey string `koanf:"access_key"`
	SecretKey string `koanf:"secret_key"`
	Bucket    string `koanf:"bucket"`
	UseSSL    bool   `koanf:"use_ssl"`
}

type DatabaseConfig struct {
	DSN string `koanf:"dsn"`
}

type WebhookConfig struct {
	URL            string        `koanf:"url"`
	SigningSecret  string        `koanf:"signing_secret"`
	Timeout        time.Duration `koanf:"timeout"`
	MaxAttempts    int           `koanf:"max_attempts"`
	InitialBackoff time.Duration `koanf:"initial_backoff"`
	MaxBackoff     time.Duration `koanf:"max_backoff"`
}

type TracingConfig struct {
	ServiceName  string  `koanf:"service_name"`
	Exporter     string  `koanf:"exporter"`
	OTLPEndpoint string  `koanf:"otlp_endpoint"`
	OTLPInsecure bool    `koanf:"otlp_insecure"`
	SampleRatio  float64 `koanf:"sample_ratio"`
}

// New returns the built-in defaults.
func New() *Config {
	return &Config{
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
		API: APIConfig{
			Addr:           ":8080",
			MaxUploadBytes: 32 << 20,
			JPEGQuality:    75,
			CORSOrigins:    []string{"*"},
		},
		Dashboard: DashboardConfig{
			Addr:         ":8050",
			FeedURL:      DefaultFeedURL,
			FetchTimeout: 30 * time.Second,
			Debug:        true,
			ChartWidth:   1024,
			ChartHeight:  400,
		},
		Queue: QueueConfig{
			RedisAddr: "localhost:6379",
			Name:      "default",
		},
		RateLimit: RateLimitConfig{
			Capacity:     60,
			Window:       time.Minute,
			UserIDHeader: "X-User-ID",
		},
		Worker: WorkerConfig{
			Concurrency: max(2, runtime.NumCPU()),
			MetricsAddr: ":9091",
		},
		Storage: StorageConfig{
			Endpoint:  "localhost:9000",
			AccessKey: "minioadmin",
			SecretKey: "minioadmin",
			Bucket:    "pixelkit-conversions",
		},
		Webhook: WebhookConfig{
			Timeout:        10 * time.Second,
			MaxAttempts:    3,
			InitialBackoff: time.Second,
			MaxBackoff:     10 * time.Second,
		},
		Tracing: TracingConfig{
			ServiceName: "pixelkit",
			Exporter:    "none",
			SampleRatio: 1,
		},
	}
}

// Load layers defaults, a .env file, an optional YAML file named by
// PIXELKIT_CONFIG and PIXELKIT_-prefixed environment variables, in that
// order. Nested keys use a double underscore: PIXELKIT_API__ADDR.
func Load() (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")

	if path := strings.TrimSpace(os.Getenv(envConfigPath)); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	envProvider := env.Provider(envPrefix, ".", func(s string) string {
		if s == envConfigPath {
			return ""
		}
		s = strings.TrimPrefix(s, envPrefix)
		return strings.ReplaceAll(strings.ToLower(s), "__", ".")
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("load env config: %w", err)
	}

	cfg := New()
	if err := k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.API.CORSOrigins = splitList(cfg.API.CORSOrigins)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.API.Addr) == "" {
		errs = append(errs, errors.New("api.addr must not be empty"))
	}
	if c.API.MaxUploadBytes <= 0 {
		errs = append(errs, errors.New("api.max_upload_bytes must be positive"))
	}
	if c.API.JPEGQuality < 1 || c.API.JPEGQuality > 100 {
		errs = append(errs, fmt.Errorf("api.jpeg_quality must be within 1..100, got %d", c.API.JPEGQuality))
	}
	if strings.TrimSpace(c.Dashboard.Addr) == "" {
		errs = append(errs, errors.New("dashboard.addr must not be empty"))
	}
	if strings.TrimSpace(c.Dashboard.FeedURL) == "" {
		errs = append(errs, errors.New("dashboard.feed_url must not be empty"))
	}
	if c.Dashboard.ChartWidth <= 0 || c.Dashboard.ChartHeight <= 0 {
		errs = append(errs, errors.New("dashboard chart dimensions must be positive"))
	}
	if c.RateLimit.Enabled {
		if c.RateLimit.Capacity <= 0 {
			errs = append(errs, errors.New("rate_limit.capacity must be positive"))
		}
		if c.RateLimit.Window <= 0 {
			errs = append(errs, errors.New("rate_limit.window must be positive"))
		}
	}
	if c.Tracing.SampleRatio < 0 || c.Tracing.SampleRatio > 1 {
		errs = append(errs, fmt.Errorf("tracing.sample_ratio must be within 0..1, got %g", c.Tracing.SampleRatio))
	}
	if c.Storage.Enabled && strings.TrimSpace(c.Storage.Bucket) == "" {
		errs = append(errs, errors.New("storage.bucket is required when storage is enabled"))
	}
	return errors.Join(errs...)
}

// splitList accepts both YAML lists and comma separated env values.
func splitList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
