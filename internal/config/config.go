package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/newthinker/nvtrotate/internal/core"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Universe  []string        `mapstructure:"universe" yaml:"universe"`
	Backtest  BacktestConfig  `mapstructure:"backtest" yaml:"backtest"`
	Fetch     FetchConfig     `mapstructure:"fetch" yaml:"fetch"`
	Providers ProvidersConfig `mapstructure:"providers" yaml:"providers"`
	Cache     StorageConfig   `mapstructure:"cache" yaml:"cache"`
	Results   StorageConfig   `mapstructure:"results" yaml:"results"`
	Metrics   MetricsConfig   `mapstructure:"metrics" yaml:"metrics"`
	Log       LogConfig       `mapstructure:"log" yaml:"log"`
}

// BacktestConfig holds the simulation parameters.
type BacktestConfig struct {
	EndDate      string  `mapstructure:"end_date" yaml:"end_date"` // YYYY-MM-DD
	LookbackDays int     `mapstructure:"lookback_days" yaml:"lookback_days"`
	SeedBalance  float64 `mapstructure:"seed_balance" yaml:"seed_balance"`
	TopN         int     `mapstructure:"top_n" yaml:"top_n"`
}

// FetchConfig controls outbound request pacing.
type FetchConfig struct {
	Throttle   time.Duration `mapstructure:"throttle" yaml:"throttle"`
	MaxRetries int           `mapstructure:"max_retries" yaml:"max_retries"`
	Timeout    time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

type ProvidersConfig struct {
	CoinGecko     CoinGeckoConfig     `mapstructure:"coingecko" yaml:"coingecko"`
	CryptoCompare CryptoCompareConfig `mapstructure:"cryptocompare" yaml:"cryptocompare"`
}

type CoinGeckoConfig struct {
	BaseURL    string `mapstructure:"base_url" yaml:"base_url"`
	APIKey     string `mapstructure:"api_key" yaml:"api_key"`
	VsCurrency string `mapstructure:"vs_currency" yaml:"vs_currency"`
	Precision  int    `mapstructure:"precision" yaml:"precision"`
}

type CryptoCompareConfig struct {
	BaseURL string `mapstructure:"base_url" yaml:"base_url"`
	APIKey  string `mapstructure:"api_key" yaml:"api_key"`
	Limit   int    `mapstructure:"limit" yaml:"limit"`
}

// StorageConfig selects a blob backend for the cache or the results.
type StorageConfig struct {
	Type string   `mapstructure:"type" yaml:"type"` // "localfs" or "s3"
	Path string   `mapstructure:"path" yaml:"path"` // For localfs
	S3   S3Config `mapstructure:"s3" yaml:"s3"`     // For S3
}

type S3Config struct {
	Bucket    string `mapstructure:"bucket" yaml:"bucket"`
	Endpoint  string `mapstructure:"endpoint" yaml:"endpoint"`
	Region    string `mapstructure:"region" yaml:"region"`
	AccessKey string `mapstructure:"access_key" yaml:"access_key"`
	SecretKey string `mapstructure:"secret_key" yaml:"secret_key"`
	Prefix    string `mapstructure:"prefix" yaml:"prefix"`
}

// MetricsConfig holds metrics configuration.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	File    string `mapstructure:"file" yaml:"file"`
}

type LogConfig struct {
	Level string `mapstructure:"level" yaml:"level"`
}

// DefaultUniverse is the asset list the strategy was designed around.
var DefaultUniverse = []string{
	"ADA", "BCH", "BTC", "DASH", "DOGE", "ETC", "ETH", "HT", "KCS", "LTC",
	"LINK", "MANA", "MKR", "NEXO", "SNX", "THETA", "USDT", "VET", "ZEC", "ZIL",
}

// Load reads configuration from file. An empty path yields the defaults
// with environment overrides applied.
func Load(path string) (*Config, error) {
	// .env is optional
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	// Support environment variable overrides
	v.SetEnvPrefix("NVT")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	// Expand environment variables in string values
	for _, key := range v.AllKeys() {
		val, ok := v.Get(key).(string)
		if !ok {
			continue
		}
		if strings.HasPrefix(val, "${") && strings.HasSuffix(val, "}") {
			envKey := strings.TrimSuffix(strings.TrimPrefix(val, "${"), "}")
			v.Set(key, os.Getenv(envKey))
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	// Provider keys are commonly kept in .env under their vendor names
	if cfg.Providers.CryptoCompare.APIKey == "" {
		cfg.Providers.CryptoCompare.APIKey = os.Getenv("CRYPTOCOMPARE_API_KEY")
	}
	if cfg.Providers.CoinGecko.APIKey == "" {
		cfg.Providers.CoinGecko.APIKey = os.Getenv("COINGECKO_API_KEY")
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	d := Defaults()
	v.SetDefault("universe", d.Universe)
	v.SetDefault("backtest.end_date", d.Backtest.EndDate)
	v.SetDefault("backtest.lookback_days", d.Backtest.LookbackDays)
	v.SetDefault("backtest.seed_balance", d.Backtest.SeedBalance)
	v.SetDefault("backtest.top_n", d.Backtest.TopN)
	v.SetDefault("fetch.throttle", d.Fetch.Throttle)
	v.SetDefault("fetch.max_retries", d.Fetch.MaxRetries)
	v.SetDefault("fetch.timeout", d.Fetch.Timeout)
	v.SetDefault("providers.coingecko.base_url", d.Providers.CoinGecko.BaseURL)
	v.SetDefault("providers.coingecko.api_key", "")
	v.SetDefault("providers.coingecko.vs_currency", d.Providers.CoinGecko.VsCurrency)
	v.SetDefault("providers.coingecko.precision", d.Providers.CoinGecko.Precision)
	v.SetDefault("providers.cryptocompare.base_url", d.Providers.CryptoCompare.BaseURL)
	v.SetDefault("providers.cryptocompare.api_key", "")
	v.SetDefault("providers.cryptocompare.limit", d.Providers.CryptoCompare.Limit)
	v.SetDefault("cache.type", d.Cache.Type)
	v.SetDefault("cache.path", d.Cache.Path)
	v.SetDefault("results.type", d.Results.Type)
	v.SetDefault("results.path", d.Results.Path)
	v.SetDefault("metrics.enabled", d.Metrics.Enabled)
	v.SetDefault("metrics.file", d.Metrics.File)
	v.SetDefault("log.level", "")
}

// Defaults returns a config with sensible defaults
func Defaults() *Config {
	return &Config{
		Universe: append([]string(nil), DefaultUniverse...),
		Backtest: BacktestConfig{
			EndDate:      "2018-10-01",
			LookbackDays: 2000,
			SeedBalance:  10000,
			TopN:         4,
		},
		Fetch: FetchConfig{
			Throttle:   6 * time.Second,
			MaxRetries: 2,
			Timeout:    30 * time.Second,
		},
		Providers: ProvidersConfig{
			CoinGecko: CoinGeckoConfig{
				BaseURL:    "https://api.coingecko.com/api/v3",
				VsCurrency: "usd",
				Precision:  6,
			},
			CryptoCompare: CryptoCompareConfig{
				BaseURL: "https://min-api.cryptocompare.com/data",
				Limit:   2000,
			},
		},
		Cache: StorageConfig{
			Type: "localfs",
			Path: "cache",
		},
		Results: StorageConfig{
			Type: "localfs",
			Path: "results",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			File:    "metrics.prom",
		},
	}
}

// Range returns the backtest window [end-lookback, end] in UTC.
func (c *Config) Range() (start, end time.Time, err error) {
	end, err = core.ParseDate(c.Backtest.EndDate)
	if err != nil {
		return time.Time{}, time.Time{}, core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("end_date must be YYYY-MM-DD: %w", err))
	}
	start = end.AddDate(0, 0, -c.Backtest.LookbackDays)
	return start, end, nil
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if len(c.Universe) == 0 {
		return core.WrapError(core.ErrConfigInvalid, fmt.Errorf("universe cannot be empty"))
	}

	// Backtest validation
	if _, _, err := c.Range(); err != nil {
		return err
	}
	if c.Backtest.LookbackDays < 1 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("lookback_days must be positive, got %d", c.Backtest.LookbackDays))
	}
	if c.Backtest.SeedBalance <= 0 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("seed_balance must be positive, got %f", c.Backtest.SeedBalance))
	}
	if c.Backtest.TopN < 1 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("top_n must be at least 1, got %d", c.Backtest.TopN))
	}

	// Fetch validation
	if c.Fetch.Throttle < 0 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("throttle cannot be negative, got %s", c.Fetch.Throttle))
	}
	if c.Fetch.MaxRetries < 0 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("max_retries cannot be negative, got %d", c.Fetch.MaxRetries))
	}

	if c.Providers.CryptoCompare.APIKey == "" {
		return core.WrapError(core.ErrConfigMissing,
			fmt.Errorf("cryptocompare api_key required"))
	}

	if err := c.Cache.validate("cache"); err != nil {
		return err
	}
	return c.Results.validate("results")
}

func (s StorageConfig) validate(name string) error {
	switch s.Type {
	case "localfs":
		if s.Path == "" {
			return core.WrapError(core.ErrConfigMissing,
				fmt.Errorf("%s.path required for localfs", name))
		}
	case "s3":
		if s.S3.Bucket == "" {
			return core.WrapError(core.ErrConfigMissing,
				fmt.Errorf("%s.s3.bucket required for s3", name))
		}
	default:
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("%s.type must be localfs or s3, got %q", name, s.Type))
	}
	return nil
}

// YAML renders the effective configuration with secrets masked.
func (c *Config) YAML() ([]byte, error) {
	masked := *c
	masked.Providers.CoinGecko.APIKey = mask(c.Providers.CoinGecko.APIKey)
	masked.Providers.CryptoCompare.APIKey = mask(c.Providers.CryptoCompare.APIKey)
	masked.Cache.S3.SecretKey = mask(c.Cache.S3.SecretKey)
	masked.Results.S3.SecretKey = mask(c.Results.S3.SecretKey)
	return yaml.Marshal(&masked)
}

func mask(s string) string {
	if s == "" {
		return ""
	}
	return "****"
}
