// File: internal/config/config.go
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds the entire application configuration.
type Config struct {
	Logger      LoggerConfig      `mapstructure:"logger" yaml:"logger"`
	Database    DatabaseConfig    `mapstructure:"database" yaml:"database"`
	Browser     BrowserConfig     `mapstructure:"browser" yaml:"browser"`
	Crawler     CrawlerConfig     `mapstructure:"crawler" yaml:"crawler"`
	Motion      MotionConfig      `mapstructure:"motion" yaml:"motion"`
	Credentials CredentialsConfig `mapstructure:"credentials" yaml:"credentials"`
	Pricing     PricingConfig     `mapstructure:"pricing" yaml:"pricing"`
	Translator  TranslatorConfig  `mapstructure:"translator" yaml:"translator"`
}

// LoggerConfig configures the zap logger and file rotation.
type LoggerConfig struct {
	Level       string `mapstructure:"level" yaml:"level"`
	Format      string `mapstructure:"format" yaml:"format"`
	AddSource   bool   `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int    `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int    `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool   `mapstructure:"compress" yaml:"compress"`
}

// DatabaseConfig configures the catalog persistence layer.
type DatabaseConfig struct {
	URL              string        `mapstructure:"url" yaml:"url"`
	MaxConns         int32         `mapstructure:"max_conns" yaml:"max_conns"`
	ConnectTimeout   time.Duration `mapstructure:"connect_timeout" yaml:"connect_timeout"`
	StatementTimeout time.Duration `mapstructure:"statement_timeout" yaml:"statement_timeout"`
}

// BrowserConfig configures the headless browser process.
type BrowserConfig struct {
	Headless        bool          `mapstructure:"headless" yaml:"headless"`
	UserDataDir     string        `mapstructure:"user_data_dir" yaml:"user_data_dir"`
	IgnoreTLSErrors bool          `mapstructure:"ignore_tls_errors" yaml:"ignore_tls_errors"`
	Args            []string      `mapstructure:"args" yaml:"args"`
	AttachRetries   int           `mapstructure:"attach_retries" yaml:"attach_retries"`
	StartupTimeout  time.Duration `mapstructure:"startup_timeout" yaml:"startup_timeout"`
}

// LayoutMode selects how a listing screen-full is divided into click regions.
type LayoutMode string

const (
	LayoutQuadrant     LayoutMode = "quadrant"
	LayoutVerticalSlot LayoutMode = "slots"
)

// CrawlerConfig drives the navigation state machine.
type CrawlerConfig struct {
	ListingURL        string        `mapstructure:"listing_url" yaml:"listing_url"`
	ProductLimit      int           `mapstructure:"product_limit" yaml:"product_limit"`
	Layout            LayoutMode    `mapstructure:"layout" yaml:"layout"`
	RandomizeOrder    bool          `mapstructure:"randomize_order" yaml:"randomize_order"`
	ObserveWindow     time.Duration `mapstructure:"observe_window" yaml:"observe_window"`
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`
	BackAttempts      int           `mapstructure:"back_attempts" yaml:"back_attempts"`
	ActionsPerSecond  float64       `mapstructure:"actions_per_second" yaml:"actions_per_second"`
	BackoffInitial    time.Duration `mapstructure:"backoff_initial" yaml:"backoff_initial"`
	BackoffMax        time.Duration `mapstructure:"backoff_max" yaml:"backoff_max"`
	RestEveryMin      int           `mapstructure:"rest_every_min" yaml:"rest_every_min"`
	RestEveryMax      int           `mapstructure:"rest_every_max" yaml:"rest_every_max"`
}

// CredentialsConfig points at the session-credential pool directory.
type CredentialsConfig struct {
	Dir string `mapstructure:"dir" yaml:"dir"`
}

// PricingConfig controls source-to-target currency normalization.
type PricingConfig struct {
	ExchangeRate  float64 `mapstructure:"exchange_rate" yaml:"exchange_rate"`
	MarginPercent float64 `mapstructure:"margin_percent" yaml:"margin_percent"`
	RoundUnit     int64   `mapstructure:"round_unit" yaml:"round_unit"`
}

// LLMProvider identifies the remote completion service backing a model.
type LLMProvider string

const (
	ProviderGemini LLMProvider = "gemini"
)

// LLMModelConfig defines the configuration for a single LLM.
type LLMModelConfig struct {
	Provider    LLMProvider   `mapstructure:"provider" yaml:"provider"`
	Model       string        `mapstructure:"model" yaml:"model"`
	APIKey      string        `mapstructure:"api_key" yaml:"api_key"`
	Endpoint    string        `mapstructure:"endpoint" yaml:"endpoint"`
	APITimeout  time.Duration `mapstructure:"api_timeout" yaml:"api_timeout"`
	Temperature float64       `mapstructure:"temperature" yaml:"temperature"`
	MaxTokens   int           `mapstructure:"max_tokens" yaml:"max_tokens"`
}

// TranslatorConfig configures the translation and metadata pipeline.
type TranslatorConfig struct {
	DefaultFastModel     string                    `mapstructure:"default_fast_model" yaml:"default_fast_model"`
	DefaultPowerfulModel string                    `mapstructure:"default_powerful_model" yaml:"default_powerful_model"`
	Models               map[string]LLMModelConfig `mapstructure:"models" yaml:"models"`
	// CallTimeout is the hard client-side ceiling raced against every remote
	// call, independent of the per-model API timeout.
	CallTimeout    time.Duration `mapstructure:"call_timeout" yaml:"call_timeout"`
	BatchAttempts  int           `mapstructure:"batch_attempts" yaml:"batch_attempts"`
	EmbeddingModel string        `mapstructure:"embedding_model" yaml:"embedding_model"`
}

// SetDefaults initializes default values for all configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "chinak2")
	v.SetDefault("logger.log_file", "chinak2.log")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)

	// -- Database --
	v.SetDefault("database.max_conns", 4)
	v.SetDefault("database.connect_timeout", "10s")
	v.SetDefault("database.statement_timeout", "30s")

	// -- Browser --
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.ignore_tls_errors", false)
	v.SetDefault("browser.attach_retries", 2)
	v.SetDefault("browser.startup_timeout", "30s")

	// -- Crawler --
	v.SetDefault("crawler.product_limit", 50)
	v.SetDefault("crawler.layout", string(LayoutQuadrant))
	v.SetDefault("crawler.randomize_order", true)
	v.SetDefault("crawler.observe_window", "4s")
	v.SetDefault("crawler.navigation_timeout", "45s")
	v.SetDefault("crawler.back_attempts", 3)
	v.SetDefault("crawler.actions_per_second", 0.5)
	v.SetDefault("crawler.backoff_initial", "30s")
	v.SetDefault("crawler.backoff_max", "10m")
	v.SetDefault("crawler.rest_every_min", 5)
	v.SetDefault("crawler.rest_every_max", 9)

	// -- Motion --
	setMotionDefaults(v)

	// -- Credentials --
	v.SetDefault("credentials.dir", "./cookies")

	// -- Pricing --
	v.SetDefault("pricing.exchange_rate", 200.0)
	v.SetDefault("pricing.margin_percent", 15.0)
	v.SetDefault("pricing.round_unit", 10)

	// -- Translator --
	v.SetDefault("translator.default_fast_model", "flash")
	v.SetDefault("translator.default_powerful_model", "pro")
	v.SetDefault("translator.call_timeout", "50s")
	v.SetDefault("translator.batch_attempts", 2)
	v.SetDefault("translator.embedding_model", "text-embedding-004")
	v.SetDefault("translator.models.flash.provider", string(ProviderGemini))
	v.SetDefault("translator.models.flash.model", "gemini-2.5-flash")
	v.SetDefault("translator.models.flash.api_timeout", "60s")
	v.SetDefault("translator.models.flash.temperature", 0.2)
	v.SetDefault("translator.models.pro.provider", string(ProviderGemini))
	v.SetDefault("translator.models.pro.model", "gemini-2.5-pro")
	v.SetDefault("translator.models.pro.api_timeout", "60s")
	v.SetDefault("translator.models.pro.temperature", 0.2)
}

// Load reads the config file (if any), binds environment variables, and
// returns a validated Config.
func Load(cfgFile string) (*Config, error) {
	v := viper.New()
	SetDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix("CHINAK2")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found; proceed with defaults and env vars.
	}

	return NewConfigFromViper(v)
}

// NewConfigFromViper creates a configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config

	// Bind environment variables for sensitive data.
	v.BindEnv("database.url", "CHINAK2_DATABASE_URL")

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	// Unmarshal does not see env bindings for dynamic map keys, so the API
	// key is filled in manually for any model that lacks one.
	for name, m := range cfg.Translator.Models {
		if m.APIKey == "" {
			m.APIKey = os.Getenv("GEMINI_API_KEY")
			cfg.Translator.Models[name] = m
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if c.Crawler.ProductLimit <= 0 {
		return fmt.Errorf("crawler.product_limit must be a positive integer")
	}
	if c.Crawler.Layout != LayoutQuadrant && c.Crawler.Layout != LayoutVerticalSlot {
		return fmt.Errorf("crawler.layout must be %q or %q", LayoutQuadrant, LayoutVerticalSlot)
	}
	if c.Crawler.BackoffInitial <= 0 || c.Crawler.BackoffMax < c.Crawler.BackoffInitial {
		return fmt.Errorf("crawler backoff bounds are inconsistent")
	}
	if c.Crawler.RestEveryMin <= 0 || c.Crawler.RestEveryMax < c.Crawler.RestEveryMin {
		return fmt.Errorf("crawler.rest_every bounds are inconsistent")
	}
	if c.Pricing.ExchangeRate <= 0 {
		return fmt.Errorf("pricing.exchange_rate must be positive")
	}
	if c.Pricing.MarginPercent < 0 {
		return fmt.Errorf("pricing.margin_percent must not be negative")
	}
	if c.Pricing.RoundUnit <= 0 {
		return fmt.Errorf("pricing.round_unit must be positive")
	}
	if err := c.Motion.Validate(); err != nil {
		return fmt.Errorf("motion configuration invalid: %w", err)
	}
	return nil
}
