/*
Package config loads server configuration.

SOURCES (later wins):
  1. Defaults below
  2. Optional YAML file (-config flag)
  3. .env file in the working directory
  4. ENROLL_* environment variables, e.g. ENROLL_GATEWAY_SECRET_KEY

Command-line flags in cmd/server override the loaded values.
*/
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

const EnvPrefix = "ENROLL"

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Reports   ReportsConfig   `mapstructure:"reports"`
	Gateway   GatewayConfig   `mapstructure:"gateway"`
	Notify    NotifyConfig    `mapstructure:"notify"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
}

type ServerConfig struct {
	Port           int      `mapstructure:"port"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

type CacheConfig struct {
	TTL     time.Duration `mapstructure:"ttl"`
	LockTTL time.Duration `mapstructure:"lock_ttl"`
}

type ReportsConfig struct {
	// PlatformCut is the platform's share of every sale, 0..1.
	PlatformCut string `mapstructure:"platform_cut"`
}

type GatewayConfig struct {
	BaseURL   string        `mapstructure:"base_url"`
	SecretKey string        `mapstructure:"secret_key"`
	Timeout   time.Duration `mapstructure:"timeout"`
	UseStub   bool          `mapstructure:"use_stub"`
}

type NotifyConfig struct {
	QueueSize int `mapstructure:"queue_size"`
}

type SchedulerConfig struct {
	ReconcileSpec string `mapstructure:"reconcile_spec"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"http://localhost:5173", "http://localhost:8080"})
	v.SetDefault("database.path", "enrollment.db")
	v.SetDefault("cache.ttl", "5m")
	v.SetDefault("cache.lock_ttl", "60s")
	v.SetDefault("reports.platform_cut", "0.2")
	v.SetDefault("gateway.base_url", "https://api.stripe.com")
	v.SetDefault("gateway.secret_key", "")
	v.SetDefault("gateway.timeout", "10s")
	v.SetDefault("gateway.use_stub", false)
	v.SetDefault("notify.queue_size", 256)
	v.SetDefault("scheduler.reconcile_spec", "@every 1h")
}

// Load reads configuration from path (optional, YAML), .env and the
// environment, then validates it.
func Load(path string) (*Config, error) {
	// A missing .env is normal outside development.
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks value ranges and the cron spec.
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	if c.Database.Path == "" {
		errs = append(errs, errors.New("database.path is required"))
	}
	if c.Cache.TTL <= 0 {
		errs = append(errs, errors.New("cache.ttl must be positive"))
	}
	if c.Cache.LockTTL <= 0 {
		errs = append(errs, errors.New("cache.lock_ttl must be positive"))
	}
	if _, err := c.PlatformCut(); err != nil {
		errs = append(errs, err)
	}
	if c.Notify.QueueSize < 1 {
		errs = append(errs, errors.New("notify.queue_size must be at least 1"))
	}
	if _, err := cron.ParseStandard(c.Scheduler.ReconcileSpec); err != nil {
		errs = append(errs, fmt.Errorf("scheduler.reconcile_spec: %w", err))
	}
	return errors.Join(errs...)
}

// PlatformCut parses reports.platform_cut.
func (c *Config) PlatformCut() (decimal.Decimal, error) {
	cut, err := decimal.NewFromString(c.Reports.PlatformCut)
	if err != nil {
		return decimal.Zero, fmt.Errorf("reports.platform_cut: %w", err)
	}
	if cut.IsNegative() || cut.GreaterThan(decimal.NewFromInt(1)) {
		return decimal.Zero, fmt.Errorf("reports.platform_cut %s must be within 0..1", cut)
	}
	return cut, nil
}

// StubGateway reports whether the in-process gateway stub should be used.
// Without a secret key there is nothing to talk to.
func (c *Config) StubGateway() bool {
	return c.Gateway.UseStub || c.Gateway.SecretKey == ""
}
