package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Engine    EngineConfig    `mapstructure:"engine"`
	Keeper    KeeperConfig    `mapstructure:"keeper"`
	Indexer   IndexerConfig   `mapstructure:"indexer"`
	Faucet    FaucetConfig    `mapstructure:"faucet"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	JWT       JWTConfig       `mapstructure:"jwt"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Security  SecurityConfig  `mapstructure:"security"`
	Log       LogConfig       `mapstructure:"log"`
}

type SecurityConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	TrustedProxies []string `mapstructure:"trusted_proxies"`
}

type ServerConfig struct {
	Addr         string        `mapstructure:"addr"`
	Mode         string        `mapstructure:"mode"` // debug, release
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

type DatabaseConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	User         string        `mapstructure:"user"`
	Password     string        `mapstructure:"password"`
	DBName       string        `mapstructure:"dbname"`
	SSLMode      string        `mapstructure:"sslmode"`
	MaxIdleConns int           `mapstructure:"max_idle_conns"`
	MaxOpenConns int           `mapstructure:"max_open_conns"`
	MaxLifetime  time.Duration `mapstructure:"max_lifetime"`
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode)
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
}

// EngineConfig carries the oracle policy and collateral minimums.
type EngineConfig struct {
	MaxOracleStaleness time.Duration `mapstructure:"max_oracle_staleness"`
	MaxConfidenceBps   uint64        `mapstructure:"max_confidence_bps"`
	MaxFundingRate     int64         `mapstructure:"max_funding_rate"`
	MinDeposit         uint64        `mapstructure:"min_deposit"`
	MinWithdrawal      uint64        `mapstructure:"min_withdrawal"`
}

type KeeperConfig struct {
	Enabled             bool          `mapstructure:"enabled"`
	Address             string        `mapstructure:"address"` // liquidator / order filler identity
	OracleAuthority     string        `mapstructure:"oracle_authority"`
	FundingInterval     time.Duration `mapstructure:"funding_interval"`
	LiquidationInterval time.Duration `mapstructure:"liquidation_interval"`
	OrderInterval       time.Duration `mapstructure:"order_interval"`
	PriceInterval       time.Duration `mapstructure:"price_interval"`
	PriceFeedURL        string        `mapstructure:"price_feed_url"` // optional external feed
}

// IndexerConfig drives the event indexer. Redis notifications are used when
// available; PollInterval bounds the lag without them. Embedded runs the
// indexer inside the API process; disable it when cmd/indexer is deployed.
type IndexerConfig struct {
	Embedded     bool          `mapstructure:"embedded"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
	BatchSize    int           `mapstructure:"batch_size"`
}

// FaucetConfig enables minting of custody tokens. An empty authority
// disables the faucet.
type FaucetConfig struct {
	Authority string `mapstructure:"authority"`
	MaxAmount uint64 `mapstructure:"max_amount"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

type JWTConfig struct {
	Secret     string        `mapstructure:"secret"`
	Expiration time.Duration `mapstructure:"expiration"`
}

type RateLimitConfig struct {
	PublicLimit  int `mapstructure:"public_limit"`  // per minute
	PrivateLimit int `mapstructure:"private_limit"` // per minute
	OrderLimit   int `mapstructure:"order_limit"`   // per minute
}

type LogConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // json, console
	Output string `mapstructure:"output"` // stdout, file path
}

func Load() (*Config, error) {
	// Set defaults first (only non-sensitive defaults)
	setDefaults()

	// 1. Read base config file
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath(".")
	viper.AddConfigPath("/etc/vammperp/")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read base config: %w", err)
		}
	}

	// 2. Override with environment-specific config (e.g., config.local.yaml, config.production.yaml)
	env := os.Getenv("APP_ENV")
	if env == "" {
		env = "local"
	}

	viper.SetConfigName(fmt.Sprintf("config.%s", env))
	if err := viper.MergeInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to merge env config: %w", err)
		}
	}

	// 3. Override with environment variables (highest priority)
	viper.SetEnvPrefix("VAMMPERP")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// 4. Validate required fields
	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

func setDefaults() {
	// Server
	viper.SetDefault("server.addr", ":8080")
	viper.SetDefault("server.mode", "debug")
	viper.SetDefault("server.read_timeout", 10*time.Second)
	viper.SetDefault("server.write_timeout", 10*time.Second)

	// Database (non-sensitive defaults only)
	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.user", "postgres")
	viper.SetDefault("database.dbname", "vammperp")
	viper.SetDefault("database.sslmode", "disable")
	viper.SetDefault("database.max_idle_conns", 10)
	viper.SetDefault("database.max_open_conns", 100)
	viper.SetDefault("database.max_lifetime", time.Hour)

	// Redis
	viper.SetDefault("redis.addr", "localhost:6379")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("redis.pool_size", 10)

	// Engine
	viper.SetDefault("engine.max_oracle_staleness", 60*time.Second)
	viper.SetDefault("engine.max_confidence_bps", 100)
	viper.SetDefault("engine.max_funding_rate", 10_000)
	viper.SetDefault("engine.min_deposit", 1)
	viper.SetDefault("engine.min_withdrawal", 1)

	// Keepers
	viper.SetDefault("keeper.enabled", true)
	viper.SetDefault("keeper.funding_interval", 30*time.Second)
	viper.SetDefault("keeper.liquidation_interval", 2*time.Second)
	viper.SetDefault("keeper.order_interval", time.Second)
	viper.SetDefault("keeper.price_interval", time.Second)

	// Indexer
	viper.SetDefault("indexer.embedded", true)
	viper.SetDefault("indexer.poll_interval", 5*time.Second)
	viper.SetDefault("indexer.batch_size", 500)

	// Faucet
	viper.SetDefault("faucet.max_amount", 1_000_000_000)

	// Metrics
	viper.SetDefault("metrics.enabled", true)
	viper.SetDefault("metrics.path", "/metrics")

	// JWT
	viper.SetDefault("jwt.expiration", 24*time.Hour)

	// Rate Limit
	viper.SetDefault("rate_limit.public_limit", 1200)
	viper.SetDefault("rate_limit.private_limit", 600)
	viper.SetDefault("rate_limit.order_limit", 300)

	// Security
	viper.SetDefault("security.allowed_origins", []string{"http://localhost:3000"})
	viper.SetDefault("security.trusted_proxies", []string{})

	// Log
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.format", "json")
	viper.SetDefault("log.output", "stdout")
}

// validateConfig validates that all required configuration fields are set
func validateConfig(cfg *Config) error {
	var errors []string

	if cfg.JWT.Secret == "" {
		errors = append(errors, "jwt.secret is required (set VAMMPERP_JWT_SECRET environment variable)")
	}
	if len(cfg.JWT.Secret) < 32 {
		errors = append(errors, "jwt.secret must be at least 32 characters for security")
	}

	if cfg.Server.Mode == "release" || cfg.Server.Mode == "production" {
		if cfg.Database.Password == "" || cfg.Database.Password == "postgres" {
			errors = append(errors, "database.password must be set securely in production (set VAMMPERP_DATABASE_PASSWORD)")
		}
		if cfg.Database.SSLMode == "disable" {
			errors = append(errors, "database.sslmode should be 'require' or 'verify-full' in production")
		}
		if len(cfg.Security.AllowedOrigins) == 0 || (len(cfg.Security.AllowedOrigins) == 1 && cfg.Security.AllowedOrigins[0] == "*") {
			errors = append(errors, "security.allowed_origins must be explicitly configured in production (not '*')")
		}
	}

	if cfg.Engine.MaxConfidenceBps > 10_000 {
		errors = append(errors, "engine.max_confidence_bps must not exceed 10000")
	}
	if cfg.Engine.MaxFundingRate < 0 {
		errors = append(errors, "engine.max_funding_rate must not be negative")
	}

	if cfg.Keeper.Enabled {
		if !common.IsHexAddress(cfg.Keeper.Address) {
			errors = append(errors, "keeper.address must be a hex address when keepers are enabled (set VAMMPERP_KEEPER_ADDRESS)")
		}
		if cfg.Keeper.PriceFeedURL != "" && !common.IsHexAddress(cfg.Keeper.OracleAuthority) {
			errors = append(errors, "keeper.oracle_authority is required when keeper.price_feed_url is set")
		}
	}

	if cfg.Faucet.Authority != "" && !common.IsHexAddress(cfg.Faucet.Authority) {
		errors = append(errors, "faucet.authority must be a hex address")
	}

	if cfg.Indexer.BatchSize <= 0 {
		errors = append(errors, "indexer.batch_size must be positive")
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n  - %s", strings.Join(errors, "\n  - "))
	}

	return nil
}
