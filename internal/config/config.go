// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/viper"

	"scrapewatch/internal/price"
	"scrapewatch/internal/scheduler"
	"scrapewatch/internal/scrape"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Fetch     FetchConfig     `mapstructure:"fetch"`
	Price     PriceConfig     `mapstructure:"price"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Jobs      []JobConfig     `mapstructure:"jobs"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// SchedulerConfig governs the recurring scrape loop.
type SchedulerConfig struct {
	TickMs                 int `mapstructure:"tick_ms"`
	MaxConcurrent          int `mapstructure:"max_concurrent"`
	DefaultIntervalSeconds int `mapstructure:"default_interval_seconds"`
	DefaultMaxRetries      int `mapstructure:"default_max_retries"`
	BackoffBaseSeconds     int `mapstructure:"backoff_base_seconds"`
	BackoffMaxSeconds      int `mapstructure:"backoff_max_seconds"`
}

// FetchConfig configures the HTTP fetcher.
type FetchConfig struct {
	UserAgent      string `mapstructure:"user_agent"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// PriceConfig controls price alerting thresholds.
type PriceConfig struct {
	DefaultThresholdPct float64            `mapstructure:"default_threshold_pct"`
	Thresholds          map[string]float64 `mapstructure:"thresholds"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// JobConfig describes one recurring scrape job from configuration.
type JobConfig struct {
	Name                string              `mapstructure:"name"`
	URL                 string              `mapstructure:"url"`
	SourceKey           string              `mapstructure:"source_key"`
	IntervalSeconds     int                 `mapstructure:"interval_seconds"`
	MaxRetries          int                 `mapstructure:"max_retries"`
	FetchTimeoutSeconds int                 `mapstructure:"fetch_timeout_seconds"`
	Headers             map[string]string   `mapstructure:"headers"`
	Selector            scrape.SelectorSpec `mapstructure:"selector"`
	NameField           string              `mapstructure:"name_field"`
	PriceField          string              `mapstructure:"price_field"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("SCRAPEWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("scheduler.tick_ms", 1000)
	v.SetDefault("scheduler.max_concurrent", 4)
	v.SetDefault("scheduler.default_interval_seconds", 3600)
	v.SetDefault("scheduler.default_max_retries", 3)
	v.SetDefault("scheduler.backoff_base_seconds", 30)
	v.SetDefault("scheduler.backoff_max_seconds", 1800)
	v.SetDefault("fetch.user_agent", "scrapewatch-bot/0.1")
	v.SetDefault("fetch.timeout_seconds", 15)
	v.SetDefault("price.default_threshold_pct", 5.0)
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Scheduler.MaxConcurrent <= 0 {
		return fmt.Errorf("scheduler.max_concurrent must be > 0")
	}
	if c.Fetch.TimeoutSeconds <= 0 {
		return fmt.Errorf("fetch.timeout_seconds must be > 0")
	}
	if c.Price.DefaultThresholdPct <= 0 {
		return fmt.Errorf("price.default_threshold_pct must be > 0")
	}
	for i, job := range c.Jobs {
		if job.URL == "" {
			return fmt.Errorf("jobs[%d].url is required", i)
		}
		if (job.NameField == "") != (job.PriceField == "") {
			return fmt.Errorf("jobs[%d]: name_field and price_field must be set together", i)
		}
	}
	return nil
}

// SchedulerConfig converts the loaded knobs into the scheduler's form.
func (c Config) SchedulerConfig() scheduler.Config {
	return scheduler.Config{
		Tick:                time.Duration(c.Scheduler.TickMs) * time.Millisecond,
		MaxConcurrent:       c.Scheduler.MaxConcurrent,
		DefaultInterval:     time.Duration(c.Scheduler.DefaultIntervalSeconds) * time.Second,
		DefaultMaxRetries:   c.Scheduler.DefaultMaxRetries,
		DefaultFetchTimeout: time.Duration(c.Fetch.TimeoutSeconds) * time.Second,
		Backoff: scheduler.Backoff{
			Base: time.Duration(c.Scheduler.BackoffBaseSeconds) * time.Second,
			Max:  time.Duration(c.Scheduler.BackoffMaxSeconds) * time.Second,
		},
	}
}

// PriceConfig converts the loaded thresholds into the monitor's form.
func (c Config) PriceConfig() price.Config {
	return price.Config{
		DefaultThresholdPct: c.Price.DefaultThresholdPct,
		ThresholdOverrides:  c.Price.Thresholds,
	}
}

// JobDef converts one configured job into the scheduler's form.
func (j JobConfig) JobDef() scheduler.JobDef {
	var headers http.Header
	if len(j.Headers) > 0 {
		headers = make(http.Header, len(j.Headers))
		for k, v := range j.Headers {
			headers.Set(k, v)
		}
	}
	return scheduler.JobDef{
		Name:         j.Name,
		URL:          j.URL,
		SourceKey:    j.SourceKey,
		Interval:     time.Duration(j.IntervalSeconds) * time.Second,
		MaxRetries:   j.MaxRetries,
		FetchTimeout: time.Duration(j.FetchTimeoutSeconds) * time.Second,
		Headers:      headers,
		Selector:     j.Selector,
		NameField:    j.NameField,
		PriceField:   j.PriceField,
	}
}
