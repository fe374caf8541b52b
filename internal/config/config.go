package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
	"github.com/subosito/gotenv"
)

type Config struct {
	Env      string `mapstructure:"SYN_ENV"`
	HTTPAddr string `mapstructure:"SYN_HTTP_ADDR"`

	Pool     PoolConfig     `mapstructure:",squash"`
	Database DBConfig       `mapstructure:",squash"`
	Cache    CacheConfig    `mapstructure:",squash"`
	Oracle   OracleConfig   `mapstructure:",squash"`
	Security SecurityConfig `mapstructure:",squash"`
}

type PoolConfig struct {
	// Threshold is the collateralization ratio, e.g. "1.5".
	Threshold        string `mapstructure:"SYN_POOL_THRESHOLD"`
	CollateralSymbol string `mapstructure:"SYN_COLLATERAL_SYMBOL"`
	UnitOfAccount    string `mapstructure:"SYN_UNIT_OF_ACCOUNT"`
}

type DBConfig struct {
	PostgresDSN string `mapstructure:"SYN_POSTGRES_DSN"`
}

type CacheConfig struct {
	RedisAddr string        `mapstructure:"SYN_REDIS_ADDR"`
	TTL       time.Duration `mapstructure:"SYN_CACHE_TTL"`
}

type OracleConfig struct {
	// SeedPrices is a comma-separated list of SYMBOL=PRICE pairs loaded into
	// the price gateway at startup, e.g. "SNX=1.0,TSLA=242.5".
	SeedPrices []string      `mapstructure:"SYN_ORACLE_SEED_PRICES"`
	MaxAge     time.Duration `mapstructure:"SYN_ORACLE_MAX_AGE"`
}

type SecurityConfig struct {
	RateLimitRPM       int      `mapstructure:"SYN_RATE_LIMIT_RPM"`
	CORSAllowedOrigins []string `mapstructure:"SYN_CORS_ALLOWED_ORIGINS"`
}

func loadDotEnvFiles() {
	candidates := []string{
		".env",
		filepath.Join("..", ".env"),
	}

	seen := make(map[string]struct{})
	for _, path := range candidates {
		abs := path
		if !filepath.IsAbs(path) {
			if resolved, err := filepath.Abs(path); err == nil {
				abs = resolved
			}
		}
		if _, ok := seen[abs]; ok {
			continue
		}
		seen[abs] = struct{}{}

		if _, err := os.Stat(path); err == nil {
			_ = gotenv.Load(path) // ignore errors; env vars already set take precedence
		}
	}
}

func Load() (*Config, error) {
	loadDotEnvFiles()

	viper.Reset()
	viper.SetConfigType("env")
	viper.AutomaticEnv()

	viper.SetDefault("SYN_ENV", "dev")
	viper.SetDefault("SYN_HTTP_ADDR", ":8080")
	viper.SetDefault("SYN_POOL_THRESHOLD", "1.5")
	viper.SetDefault("SYN_COLLATERAL_SYMBOL", "SNX")
	viper.SetDefault("SYN_UNIT_OF_ACCOUNT", "USD")
	viper.SetDefault("SYN_POSTGRES_DSN", "")
	viper.SetDefault("SYN_REDIS_ADDR", "127.0.0.1:6379")
	viper.SetDefault("SYN_CACHE_TTL", "5s")
	viper.SetDefault("SYN_ORACLE_MAX_AGE", "60s")
	viper.SetDefault("SYN_RATE_LIMIT_RPM", 120)
	viper.SetDefault("SYN_CORS_ALLOWED_ORIGINS", "http://localhost:3000,http://localhost:5173")

	// Comma-separated values arrive as single strings from the environment.
	if prices := viper.GetString("SYN_ORACLE_SEED_PRICES"); prices != "" {
		viper.Set("SYN_ORACLE_SEED_PRICES", strings.Split(prices, ","))
	}
	if origins := viper.GetString("SYN_CORS_ALLOWED_ORIGINS"); origins != "" {
		viper.Set("SYN_CORS_ALLOWED_ORIGINS", strings.Split(origins, ","))
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

func (c *Config) validate() error {
	threshold, err := c.Pool.ThresholdDecimal()
	if err != nil {
		return err
	}
	if !threshold.IsPositive() {
		return fmt.Errorf("SYN_POOL_THRESHOLD must be positive, got %s", threshold)
	}
	if c.Pool.CollateralSymbol == "" {
		return fmt.Errorf("SYN_COLLATERAL_SYMBOL is required")
	}
	if c.Pool.UnitOfAccount == "" {
		return fmt.Errorf("SYN_UNIT_OF_ACCOUNT is required")
	}
	if c.Security.RateLimitRPM <= 0 {
		return fmt.Errorf("SYN_RATE_LIMIT_RPM must be positive, got %d", c.Security.RateLimitRPM)
	}
	if _, err := c.Oracle.ParseSeedPrices(); err != nil {
		return err
	}
	return nil
}

func (c *Config) IsDev() bool {
	return c.Env == "dev"
}

func (c *Config) IsProd() bool {
	return c.Env == "prod"
}

func (p *PoolConfig) ThresholdDecimal() (decimal.Decimal, error) {
	threshold, err := decimal.NewFromString(strings.TrimSpace(p.Threshold))
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("invalid SYN_POOL_THRESHOLD %q: %w", p.Threshold, err)
	}
	return threshold, nil
}

// ParseSeedPrices splits the SYMBOL=PRICE pairs into a symbol-to-price map.
func (o *OracleConfig) ParseSeedPrices() (map[string]decimal.Decimal, error) {
	prices := make(map[string]decimal.Decimal, len(o.SeedPrices))
	for _, pair := range o.SeedPrices {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		symbol, raw, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, fmt.Errorf("invalid SYN_ORACLE_SEED_PRICES entry %q (want SYMBOL=PRICE)", pair)
		}
		price, err := decimal.NewFromString(strings.TrimSpace(raw))
		if err != nil {
			return nil, fmt.Errorf("invalid price in SYN_ORACLE_SEED_PRICES entry %q: %w", pair, err)
		}
		prices[strings.ToUpper(strings.TrimSpace(symbol))] = price
	}
	return prices, nil
}
