// Package config loads and validates es-scroll configuration via Viper.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/Sternrassler/es-scroll-stream/pkg/client"
	"github.com/Sternrassler/es-scroll-stream/pkg/logging"
)

// EnvPrefix prefixes every environment override, e.g. ESSCROLL_ELASTICSEARCH_URL.
const EnvPrefix = "ESSCROLL"

// Config captures all configuration knobs loaded via Viper.
type Config struct {
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
	Scroll        ScrollConfig        `mapstructure:"scroll"`
	Retry         RetryConfig         `mapstructure:"retry"`
	Redis         RedisConfig         `mapstructure:"redis"`
	Metrics       MetricsConfig       `mapstructure:"metrics"`
	Logging       LoggingConfig       `mapstructure:"logging"`
}

// ElasticsearchConfig names the search to scroll.
type ElasticsearchConfig struct {
	URL string `mapstructure:"url"`

	// Query is a JSON object merged into the initial search body, or
	// @path to read it from a file.
	Query   string            `mapstructure:"query"`
	Headers map[string]string `mapstructure:"headers"`
	Timeout time.Duration     `mapstructure:"timeout"`
}

// ScrollConfig controls a run.
type ScrollConfig struct {
	KeepAlive string `mapstructure:"keep_alive"`
	Strict    bool   `mapstructure:"strict"`

	// Select is a gjson path applied to every hit before it is written.
	Select string `mapstructure:"select"`

	// Clear releases the server-side scroll context when the run ends.
	Clear bool `mapstructure:"clear"`
}

// RetryConfig configures request retries.
type RetryConfig struct {
	MaxAttempts       int           `mapstructure:"max_attempts"`
	InitialBackoff    time.Duration `mapstructure:"initial_backoff"`
	MaxBackoff        time.Duration `mapstructure:"max_backoff"`
	BackoffMultiplier float64       `mapstructure:"backoff_multiplier"`
}

// RedisConfig enables checkpoints when Addr is set.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`

	// RunID names the checkpoint to write, or to resume from with Resume.
	RunID  string `mapstructure:"run_id"`
	Resume bool   `mapstructure:"resume"`
}

// MetricsConfig exposes Prometheus metrics when Addr is set.
type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

// LoggingConfig configures zerolog.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
}

// NewViper returns a Viper instance with defaults and environment overrides.
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)
	return v
}

// Load builds a Config from v, reading path first when it is set.
func Load(v *viper.Viper, path string) (Config, error) {
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
	retry := client.DefaultRetryConfig()

	// Keys without a default are invisible to AutomaticEnv during Unmarshal.
	v.SetDefault("elasticsearch.url", "")
	v.SetDefault("elasticsearch.query", "")
	v.SetDefault("elasticsearch.timeout", "30s")
	v.SetDefault("scroll.keep_alive", "")
	v.SetDefault("scroll.strict", false)
	v.SetDefault("scroll.select", "")
	v.SetDefault("scroll.clear", true)
	v.SetDefault("retry.max_attempts", retry.MaxAttempts)
	v.SetDefault("retry.initial_backoff", retry.InitialBackoff.String())
	v.SetDefault("retry.max_backoff", retry.MaxBackoff.String())
	v.SetDefault("retry.backoff_multiplier", retry.BackoffMultiplier)
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.run_id", "")
	v.SetDefault("redis.resume", false)
	v.SetDefault("metrics.addr", "")
	v.SetDefault("logging.level", string(logging.LevelInfo))
	v.SetDefault("logging.pretty", false)
}

// Validate ensures required fields are present and sane.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Elasticsearch.URL) == "" {
		return errors.New("elasticsearch.url is required")
	}
	if c.Elasticsearch.Timeout < 0 {
		return errors.New("elasticsearch.timeout must not be negative")
	}
	if c.Scroll.KeepAlive != "" {
		if _, err := client.ParseKeepAlive(c.Scroll.KeepAlive); err != nil {
			return fmt.Errorf("scroll.keep_alive: %w", err)
		}
	}
	if c.Retry.MaxAttempts < 1 {
		return errors.New("retry.max_attempts must be >= 1")
	}
	if c.Retry.BackoffMultiplier < 1 {
		return errors.New("retry.backoff_multiplier must be >= 1")
	}
	if c.Redis.Resume {
		if c.Redis.Addr == "" {
			return errors.New("redis.resume requires redis.addr")
		}
		if c.Redis.RunID == "" {
			return errors.New("redis.resume requires redis.run_id")
		}
	}
	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("logging.level: %w", err)
	}
	return nil
}

// Params decodes the query into initial search parameters.
func (c Config) Params() (map[string]any, error) {
	raw := strings.TrimSpace(c.Elasticsearch.Query)
	if raw == "" {
		return nil, nil
	}

	if path, ok := strings.CutPrefix(raw, "@"); ok {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read query: %w", err)
		}
		raw = string(data)
	}

	var params map[string]any
	if err := json.Unmarshal([]byte(raw), &params); err != nil {
		return nil, fmt.Errorf("query must be a JSON object: %w", err)
	}
	return params, nil
}

// ClientConfig maps the configuration onto client.Config.
func (c Config) ClientConfig() (client.Config, error) {
	params, err := c.Params()
	if err != nil {
		return client.Config{}, err
	}

	return client.Config{
		BaseURL: c.Elasticsearch.URL,
		Scroll:  c.Scroll.KeepAlive,
		Params:  params,
		Headers: c.Elasticsearch.Headers,
		Timeout: c.Elasticsearch.Timeout,
		Retry: client.RetryConfig{
			MaxAttempts:       c.Retry.MaxAttempts,
			InitialBackoff:    c.Retry.InitialBackoff,
			MaxBackoff:        c.Retry.MaxBackoff,
			BackoffMultiplier: c.Retry.BackoffMultiplier,
		},
	}, nil
}

// LoggingSetup maps the configuration onto logging.Config.
func (c Config) LoggingSetup(runID string) logging.Config {
	cfg := logging.DefaultConfig()
	cfg.Level, _ = logging.ParseLevel(c.Logging.Level)
	cfg.Pretty = c.Logging.Pretty
	cfg.RunID = runID
	return cfg
}
