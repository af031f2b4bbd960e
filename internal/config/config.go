package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"yield-health-alerts/internal/logging"
)

// Config materialises application configuration.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Logging   logging.Config  `mapstructure:"logging"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Feed      FeedConfig      `mapstructure:"feed"`
	Quotes    QuotesConfig    `mapstructure:"quotes"`
	APY       APYConfig       `mapstructure:"apy"`
	Alerting  AlertingConfig  `mapstructure:"alerting"`
	Sweep     SweepConfig     `mapstructure:"sweep"`
	Export    ExportConfig    `mapstructure:"export"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// DatabaseConfig encapsulates PostgreSQL connectivity.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// SchedulerConfig governs sweep cadence.
type SchedulerConfig struct {
	Interval      time.Duration `mapstructure:"interval"`
	AlignToBucket bool          `mapstructure:"align_to_bucket"`
	StartupDelay  time.Duration `mapstructure:"startup_delay"`
}

// FeedConfig covers the position/discovery collaborator.
type FeedConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	UserAgent      string        `mapstructure:"user_agent"`
}

// QuotesConfig covers stablecoin price sources. Source selects between the
// HTTP API and on-chain Chainlink-style aggregators.
type QuotesConfig struct {
	Source         string            `mapstructure:"source"`
	BaseURL        string            `mapstructure:"base_url"`
	Symbols        []string          `mapstructure:"symbols"`
	RPCURL         string            `mapstructure:"rpc_url"`
	Aggregators    map[string]string `mapstructure:"aggregators"`
	RequestTimeout time.Duration     `mapstructure:"request_timeout"`
	UserAgent      string            `mapstructure:"user_agent"`
}

// APYConfig tunes the return calculator.
type APYConfig struct {
	MinObservationWindow time.Duration `mapstructure:"min_observation_window"`
}

// AlertingConfig defines dispatch behaviour and delivery routing.
type AlertingConfig struct {
	Enabled      bool                     `mapstructure:"enabled"`
	DedupeSlot   time.Duration            `mapstructure:"dedupe_slot"`
	Cooldowns    map[string]time.Duration `mapstructure:"cooldowns"`
	LogRetention time.Duration            `mapstructure:"log_retention"`
	Telegram     TelegramConfig           `mapstructure:"telegram"`
}

// TelegramConfig describes the Telegram delivery transport.
type TelegramConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
	APIBase  string `mapstructure:"api_base"`
}

// SweepConfig bounds the evaluation worker pool.
type SweepConfig struct {
	Workers int `mapstructure:"workers"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	MaxDataPoints int `mapstructure:"max_data_points"`
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("YIELDWATCHER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "yieldwatcher")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("scheduler.interval", "15m")
	v.SetDefault("scheduler.align_to_bucket", true)
	v.SetDefault("scheduler.startup_delay", "0s")

	v.SetDefault("feed.request_timeout", "10s")
	v.SetDefault("feed.user_agent", "yieldwatcher/1.0")

	v.SetDefault("quotes.source", "http")
	v.SetDefault("quotes.symbols", []string{"USDT", "USDC", "DAI"})
	v.SetDefault("quotes.request_timeout", "10s")
	v.SetDefault("quotes.user_agent", "yieldwatcher/1.0")

	v.SetDefault("apy.min_observation_window", "1h")

	v.SetDefault("alerting.enabled", true)
	v.SetDefault("alerting.dedupe_slot", "1m")
	v.SetDefault("alerting.log_retention", "2160h")
	v.SetDefault("alerting.telegram.enabled", false)
	v.SetDefault("alerting.telegram.api_base", "https://api.telegram.org")

	v.SetDefault("sweep.workers", 4)

	v.SetDefault("export.max_data_points", 100000)

	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

// Validate performs basic sanity checks on the configuration values.
func (c *Config) Validate() error {
	if c.Scheduler.Interval <= 0 {
		return fmt.Errorf("scheduler.interval must be greater than zero")
	}
	if c.Sweep.Workers <= 0 {
		return fmt.Errorf("sweep.workers must be greater than zero")
	}
	if c.APY.MinObservationWindow < 0 {
		return fmt.Errorf("apy.min_observation_window cannot be negative")
	}
	if c.Alerting.LogRetention < 0 {
		return fmt.Errorf("alerting.log_retention cannot be negative")
	}
	if c.Export.MaxDataPoints <= 0 {
		return fmt.Errorf("export.max_data_points must be greater than zero")
	}
	switch c.Quotes.Source {
	case "http", "onchain", "":
	default:
		return fmt.Errorf("quotes.source must be http or onchain")
	}
	if c.Alerting.Telegram.Enabled {
		if c.Alerting.Telegram.BotToken == "" {
			return fmt.Errorf("alerting.telegram.bot_token is required")
		}
		if c.Alerting.Telegram.ChatID == "" {
			return fmt.Errorf("alerting.telegram.chat_id is required")
		}
	}
	return nil
}

// ResolveMaxPoints returns either the CLI override or config default.
func (c *Config) ResolveMaxPoints(override int) int {
	if override > 0 {
		return override
	}
	return c.Export.MaxDataPoints
}
