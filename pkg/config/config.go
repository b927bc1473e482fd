package config

import (
	"bytes"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ethpandaops/bundleoor/pkg/budget"
	"github.com/ethpandaops/bundleoor/pkg/sizeunit"
	"github.com/mitchellh/mapstructure"
	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"
)

const (
	// EnvPrefix prefixes environment variable overrides, e.g.
	// BUNDLEOOR_DATABASE_DRIVER.
	EnvPrefix = "BUNDLEOOR"

	// DefaultLogLevel is the default logging level.
	DefaultLogLevel = "info"

	// DefaultSQLitePath is the default history database location.
	DefaultSQLitePath = ".bundleoor/history.db"

	// DefaultWatchDebounce is the default quiet period before re-analysis.
	DefaultWatchDebounce = time.Second

	// DefaultWatchThreshold is the default total size change worth
	// reporting.
	DefaultWatchThreshold = "5KB"

	// DefaultRetentionDays is the default history retention window.
	DefaultRetentionDays = 30

	// DefaultRetentionSchedule is when the API server prunes history.
	DefaultRetentionSchedule = "@daily"

	// DefaultListen is the default API listen address.
	DefaultListen = ":8080"

	// TotalBudgetKey is the bundle budget key that bounds the total size.
	TotalBudgetKey = "total"
)

// Database drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config is the root configuration for bundleoor.
type Config struct {
	Global    GlobalConfig    `yaml:"global" mapstructure:"global"`
	Database  DatabaseConfig  `yaml:"database" mapstructure:"database"`
	Targets   []TargetConfig  `yaml:"targets" mapstructure:"targets"`
	Budgets   BudgetsConfig   `yaml:"budgets" mapstructure:"budgets"`
	Watch     WatchConfig     `yaml:"watch" mapstructure:"watch"`
	Retention RetentionConfig `yaml:"retention" mapstructure:"retention"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Upload    UploadConfig    `yaml:"upload" mapstructure:"upload"`
}

// GlobalConfig contains global application settings.
type GlobalConfig struct {
	LogLevel string `yaml:"log_level" mapstructure:"log_level"`
}

// DatabaseConfig contains build history database settings.
type DatabaseConfig struct {
	Driver   string               `yaml:"driver" mapstructure:"driver"`
	SQLite   SQLiteDatabaseConfig `yaml:"sqlite,omitempty" mapstructure:"sqlite"`
	Postgres PostgresConfig       `yaml:"postgres,omitempty" mapstructure:"postgres"`
}

// SQLiteDatabaseConfig contains SQLite-specific settings.
type SQLiteDatabaseConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// PostgresConfig contains PostgreSQL connection settings.
type PostgresConfig struct {
	Host     string `yaml:"host" mapstructure:"host"`
	Port     int    `yaml:"port" mapstructure:"port"`
	User     string `yaml:"user" mapstructure:"user"`
	Password string `yaml:"password" mapstructure:"password"`
	Database string `yaml:"database" mapstructure:"database"`
	SSLMode  string `yaml:"ssl_mode,omitempty" mapstructure:"ssl_mode"`
}

// TargetConfig describes one build output directory to analyze.
type TargetConfig struct {
	Name        string   `yaml:"name" mapstructure:"name"`
	OutputPath  string   `yaml:"output_path" mapstructure:"output_path"`
	Gzip        bool     `yaml:"gzip" mapstructure:"gzip"`
	IgnorePaths []string `yaml:"ignore_paths,omitempty" mapstructure:"ignore_paths"`
}

// BudgetsConfig holds size budgets per bundle category (plus "total") and
// metric budgets per metric key.
type BudgetsConfig struct {
	Bundles map[string]budget.SizeBudget   `yaml:"bundles,omitempty" mapstructure:"bundles"`
	Metrics map[string]budget.MetricBudget `yaml:"metrics,omitempty" mapstructure:"metrics"`
}

// WatchConfig configures the change watcher.
type WatchConfig struct {
	Debounce  time.Duration `yaml:"debounce" mapstructure:"debounce"`
	Threshold string        `yaml:"threshold" mapstructure:"threshold"`
}

// RetentionConfig configures history cleanup.
type RetentionConfig struct {
	Days int `yaml:"days" mapstructure:"days"`
	// Schedule is a cron expression for periodic cleanup while serving.
	// Empty disables it.
	Schedule string `yaml:"schedule,omitempty" mapstructure:"schedule"`
}

// ServerConfig contains HTTP API settings.
type ServerConfig struct {
	Listen      string          `yaml:"listen" mapstructure:"listen"`
	CORSOrigins []string        `yaml:"cors_origins,omitempty" mapstructure:"cors_origins"`
	RateLimit   RateLimitConfig `yaml:"rate_limit,omitempty" mapstructure:"rate_limit"`
}

// RateLimitConfig configures per-IP rate limiting.
type RateLimitConfig struct {
	Enabled           bool `yaml:"enabled" mapstructure:"enabled"`
	RequestsPerMinute int  `yaml:"requests_per_minute" mapstructure:"requests_per_minute"`
}

// UploadConfig contains report upload settings.
type UploadConfig struct {
	S3 S3UploadConfig `yaml:"s3,omitempty" mapstructure:"s3"`
}

// S3UploadConfig contains S3-compatible storage settings.
type S3UploadConfig struct {
	Enabled         bool   `yaml:"enabled" mapstructure:"enabled"`
	EndpointURL     string `yaml:"endpoint_url,omitempty" mapstructure:"endpoint_url"`
	Region          string `yaml:"region,omitempty" mapstructure:"region"`
	Bucket          string `yaml:"bucket" mapstructure:"bucket"`
	Prefix          string `yaml:"prefix,omitempty" mapstructure:"prefix"`
	AccessKeyID     string `yaml:"access_key_id,omitempty" mapstructure:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key,omitempty" mapstructure:"secret_access_key"`
	ForcePathStyle  bool   `yaml:"force_path_style" mapstructure:"force_path_style"`
}

// setDefaults registers defaults. Keys known to viper are also the keys
// that can be overridden from the environment.
func setDefaults(v *viper.Viper) {
	v.SetDefault("global.log_level", DefaultLogLevel)

	v.SetDefault("database.driver", DriverSQLite)
	v.SetDefault("database.sqlite.path", DefaultSQLitePath)
	v.SetDefault("database.postgres.host", "localhost")
	v.SetDefault("database.postgres.port", 5432)
	v.SetDefault("database.postgres.user", "")
	v.SetDefault("database.postgres.password", "")
	v.SetDefault("database.postgres.database", "bundleoor")
	v.SetDefault("database.postgres.ssl_mode", "disable")

	v.SetDefault("watch.debounce", DefaultWatchDebounce.String())
	v.SetDefault("watch.threshold", DefaultWatchThreshold)

	v.SetDefault("retention.days", DefaultRetentionDays)
	v.SetDefault("retention.schedule", DefaultRetentionSchedule)

	v.SetDefault("server.listen", DefaultListen)
	v.SetDefault("server.rate_limit.enabled", false)
	v.SetDefault("server.rate_limit.requests_per_minute", 120)

	v.SetDefault("upload.s3.enabled", false)
	v.SetDefault("upload.s3.endpoint_url", "")
	v.SetDefault("upload.s3.region", "us-east-1")
	v.SetDefault("upload.s3.bucket", "")
	v.SetDefault("upload.s3.prefix", "bundleoor")
	v.SetDefault("upload.s3.access_key_id", "")
	v.SetDefault("upload.s3.secret_access_key", "")
	v.SetDefault("upload.s3.force_path_style", false)
}

// Load reads and merges configuration files in order, applies defaults and
// environment overrides. With no paths only defaults and environment are
// used.
func Load(paths ...string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	setDefaults(v)

	for i, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}

		if i == 0 {
			err = v.ReadConfig(bytes.NewReader(data))
		} else {
			err = v.MergeConfig(bytes.NewReader(data))
		}

		if err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config

	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
		WeaklyTypedInput: true,
		Result:           &cfg,
	})
	if err != nil {
		return nil, fmt.Errorf("creating config decoder: %w", err)
	}

	if err := dec.Decode(v.AllSettings()); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}

	return &cfg, nil
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case DriverSQLite:
		if c.Database.SQLite.Path == "" {
			return fmt.Errorf("database.sqlite.path is required")
		}
	case DriverPostgres:
		if c.Database.Postgres.Host == "" {
			return fmt.Errorf("database.postgres.host is required")
		}
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}

	seen := make(map[string]struct{}, len(c.Targets))

	for i, t := range c.Targets {
		if t.Name == "" {
			return fmt.Errorf("target %d: name is required", i)
		}

		if _, exists := seen[t.Name]; exists {
			return fmt.Errorf("target %d: duplicate name %q", i, t.Name)
		}

		seen[t.Name] = struct{}{}

		if t.OutputPath == "" {
			return fmt.Errorf("target %q: output_path is required", t.Name)
		}
	}

	for category, b := range c.Budgets.Bundles {
		if _, _, err := b.Bytes(); err != nil {
			return fmt.Errorf("budget %q: %w", category, err)
		}
	}

	if err := budget.ValidateMetricBudgets(c.Budgets.Metrics); err != nil {
		return err
	}

	if c.Watch.Debounce <= 0 {
		return fmt.Errorf("watch.debounce must be positive")
	}

	if _, err := sizeunit.Parse(c.Watch.Threshold); err != nil {
		return fmt.Errorf("watch.threshold: %w", err)
	}

	if c.Retention.Days < 0 {
		return fmt.Errorf("retention.days must not be negative")
	}

	if c.Retention.Schedule != "" {
		if _, err := cron.ParseStandard(c.Retention.Schedule); err != nil {
			return fmt.Errorf("retention.schedule: %w", err)
		}
	}

	if c.Upload.S3.Enabled && c.Upload.S3.Bucket == "" {
		return fmt.Errorf("upload.s3.bucket is required when s3 upload is enabled")
	}

	return nil
}

// Target returns the named target. An empty name selects the only
// configured target.
func (c *Config) Target(name string) (*TargetConfig, error) {
	if name == "" {
		if len(c.Targets) == 1 {
			return &c.Targets[0], nil
		}

		return nil, fmt.Errorf("%d targets configured, select one with --target", len(c.Targets))
	}

	for i := range c.Targets {
		if c.Targets[i].Name == name {
			return &c.Targets[i], nil
		}
	}

	return nil, fmt.Errorf("unknown target %q", name)
}

// BudgetSet converts the configured budgets for evaluation. The "total"
// bundle budget bounds the total size instead of a category.
func (c *Config) BudgetSet() budget.Budgets {
	out := budget.Budgets{
		Bundles: make(map[string]budget.SizeBudget, len(c.Budgets.Bundles)),
		Metrics: c.Budgets.Metrics,
	}

	for category, b := range c.Budgets.Bundles {
		if category == TotalBudgetKey {
			total := b
			out.Total = &total

			continue
		}

		out.Bundles[category] = b
	}

	return out
}

// ThresholdBytes returns the parsed watch threshold.
func (w WatchConfig) ThresholdBytes() (int64, error) {
	return sizeunit.Parse(w.Threshold)
}
