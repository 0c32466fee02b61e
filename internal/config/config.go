package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"github.com/trogers1052/paper-trader/internal/logger"
	"github.com/trogers1052/paper-trader/internal/pricefeed"
	"github.com/trogers1052/paper-trader/internal/simulator"
	"github.com/trogers1052/paper-trader/internal/strategy"
	"github.com/trogers1052/paper-trader/internal/trading"
)

// Config holds all application configuration
type Config struct {
	Server         ServerConfig
	Database       DatabaseConfig
	Kafka          KafkaConfig
	Redis          RedisConfig
	InitialBalance decimal.Decimal
	Trading        trading.Config
	PriceFeed      pricefeed.Config
	Strategy       strategy.Config
	Simulator      simulator.Config
	Log            logger.Config
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            string
	Host            string
	ShutdownTimeout time.Duration
}

// Addr is the listen address
func (s ServerConfig) Addr() string {
	return s.Host + ":" + s.Port
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	Host          string
	Port          string
	User          string
	Password      string
	DBName        string
	SSLMode       string
	MigrationsDir string
}

// KafkaConfig holds Kafka configuration. An empty broker list disables
// both the producer and the consumer.
type KafkaConfig struct {
	Brokers       []string
	TradesTopic   string
	RequestsTopic string
	GroupID       string
}

// Enabled reports whether brokers are configured
func (k KafkaConfig) Enabled() bool {
	return len(k.Brokers) > 0
}

// RedisConfig holds the snapshot publisher settings. An empty Addr
// disables it.
type RedisConfig struct {
	Addr        string
	Password    string
	DB          int
	SnapshotKey string
	SnapshotTTL time.Duration
}

// Enabled reports whether a Redis address is configured
func (r RedisConfig) Enabled() bool {
	return r.Addr != ""
}

// Load reads configuration from environment variables, after loading a
// .env file when one is present. Malformed values are errors rather than
// silently replaced by defaults.
func Load() (*Config, error) {
	_ = godotenv.Load()

	e := &env{}
	tradingDefaults := trading.DefaultConfig()
	feedDefaults := pricefeed.DefaultConfig()
	strategyDefaults := strategy.DefaultConfig()
	simDefaults := simulator.DefaultConfig()
	logDefaults := logger.DefaultConfig()

	stopLoss := e.decimal("STOP_LOSS_PCT", strategyDefaults.StopLossPct)
	takeProfit := e.decimal("TAKE_PROFIT_PCT", strategyDefaults.TakeProfitPct)

	cfg := &Config{
		Server: ServerConfig{
			Port:            getEnv("SERVER_PORT", "8080"),
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			ShutdownTimeout: e.duration("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		Database: DatabaseConfig{
			Host:          getEnv("DB_HOST", "localhost"),
			Port:          getEnv("DB_PORT", "5432"),
			User:          getEnv("DB_USER", "postgres"),
			Password:      getEnv("DB_PASSWORD", "postgres"),
			DBName:        getEnv("DB_NAME", "papertrader"),
			SSLMode:       getEnv("DB_SSLMODE", "disable"),
			MigrationsDir: getEnv("DB_MIGRATIONS_DIR", "db/migrations"),
		},
		Kafka: KafkaConfig{
			Brokers:       getEnvList("KAFKA_BROKERS", nil),
			TradesTopic:   getEnv("KAFKA_TRADES_TOPIC", "paper-trades"),
			RequestsTopic: getEnv("KAFKA_REQUESTS_TOPIC", "open-position-requests"),
			GroupID:       getEnv("KAFKA_GROUP_ID", "paper-trader"),
		},
		Redis: RedisConfig{
			Addr:        getEnv("REDIS_ADDR", ""),
			Password:    getEnv("REDIS_PASSWORD", ""),
			DB:          e.int("REDIS_DB", 0),
			SnapshotKey: getEnv("REDIS_SNAPSHOT_KEY", "paper-trader:snapshot"),
			SnapshotTTL: e.duration("REDIS_SNAPSHOT_TTL", time.Minute),
		},
		InitialBalance: e.decimal("INITIAL_BALANCE", decimal.NewFromInt(10)),
		Trading: trading.Config{
			BuyAmount:          e.decimal("BUY_AMOUNT", tradingDefaults.BuyAmount),
			BuyFeeLamports:     e.int64("BUY_FEE_LAMPORTS", tradingDefaults.BuyFeeLamports),
			SellFeeLamports:    e.int64("SELL_FEE_LAMPORTS", tradingDefaults.SellFeeLamports),
			MaxBuySlippageBps:  e.int64("MAX_BUY_SLIPPAGE_BPS", tradingDefaults.MaxBuySlippageBps),
			MaxSellSlippageBps: e.int64("MAX_SELL_SLIPPAGE_BPS", tradingDefaults.MaxSellSlippageBps),
			MaxOpenPositions:   e.int("MAX_OPEN_POSITIONS", tradingDefaults.MaxOpenPositions),
			StopLossPct:        stopLoss,
			TakeProfitPct:      takeProfit,
		},
		PriceFeed: pricefeed.Config{
			BaseURL:           getEnv("PRICE_FEED_URL", feedDefaults.BaseURL),
			Chain:             getEnv("PRICE_FEED_CHAIN", feedDefaults.Chain),
			TrustedDexes:      getEnvList("PRICE_FEED_TRUSTED_DEXES", feedDefaults.TrustedDexes),
			Timeout:           e.duration("PRICE_FEED_TIMEOUT", feedDefaults.Timeout),
			MaxAttempts:       e.int("PRICE_FEED_MAX_ATTEMPTS", feedDefaults.MaxAttempts),
			InitialDelay:      e.duration("PRICE_FEED_INITIAL_DELAY", feedDefaults.InitialDelay),
			MaxDelay:          e.duration("PRICE_FEED_MAX_DELAY", feedDefaults.MaxDelay),
			ReferenceURL:      getEnv("REFERENCE_PRICE_URL", feedDefaults.ReferenceURL),
			ReferenceMint:     getEnv("REFERENCE_PRICE_MINT", feedDefaults.ReferenceMint),
			ReferenceInterval: e.duration("REFERENCE_PRICE_INTERVAL", feedDefaults.ReferenceInterval),
		},
		Strategy: strategy.Config{
			StopLossPct:   stopLoss,
			TakeProfitPct: takeProfit,
			LiquidityDrop: strategy.LiquidityDropConfig{
				Enabled:      e.bool("LIQUIDITY_DROP_ENABLED", strategyDefaults.LiquidityDrop.Enabled),
				ThresholdPct: e.decimal("LIQUIDITY_DROP_PCT", strategyDefaults.LiquidityDrop.ThresholdPct),
				MinInterval:  e.duration("LIQUIDITY_DROP_INTERVAL", strategyDefaults.LiquidityDrop.MinInterval),
			},
			TrailingStop: strategy.TrailingStopConfig{
				Enabled:     e.bool("TRAILING_STOP_ENABLED", strategyDefaults.TrailingStop.Enabled),
				TrailPct:    e.decimal("TRAILING_STOP_PCT", strategyDefaults.TrailingStop.TrailPct),
				MinInterval: e.duration("TRAILING_STOP_INTERVAL", strategyDefaults.TrailingStop.MinInterval),
			},
		},
		Simulator: simulator.Config{
			TickInterval:      e.duration("SIM_TICK_INTERVAL", simDefaults.TickInterval),
			TickTimeout:       e.duration("SIM_TICK_TIMEOUT", simDefaults.TickTimeout),
			Workers:           e.int("SIM_WORKERS", simDefaults.Workers),
			PriceRetention:    e.duration("PRICE_HISTORY_RETENTION", simDefaults.PriceRetention),
			RetentionInterval: e.duration("PRICE_HISTORY_SWEEP_INTERVAL", simDefaults.RetentionInterval),
		},
		Log: logger.Config{
			Level:       getEnv("LOG_LEVEL", logDefaults.Level),
			Development: e.bool("LOG_DEVELOPMENT", logDefaults.Development),
			File:        getEnv("LOG_FILE", logDefaults.File),
			MaxSizeMB:   e.int("LOG_MAX_SIZE_MB", logDefaults.MaxSizeMB),
			MaxBackups:  e.int("LOG_MAX_BACKUPS", logDefaults.MaxBackups),
			MaxAgeDays:  e.int("LOG_MAX_AGE_DAYS", logDefaults.MaxAgeDays),
			Compress:    e.bool("LOG_COMPRESS", logDefaults.Compress),
		},
	}

	if err := e.err(); err != nil {
		return nil, fmt.Errorf("invalid environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// Validate checks every section
func (c *Config) Validate() error {
	if c.InitialBalance.IsNegative() {
		return fmt.Errorf("INITIAL_BALANCE must not be negative, got %s", c.InitialBalance)
	}
	if c.PriceFeed.MaxAttempts < 1 {
		return errors.New("PRICE_FEED_MAX_ATTEMPTS must be at least 1")
	}
	if c.PriceFeed.Timeout <= 0 || c.PriceFeed.InitialDelay <= 0 || c.PriceFeed.ReferenceInterval <= 0 {
		return errors.New("price feed timeout, delay and reference interval must be positive")
	}
	if c.Redis.Enabled() && c.Redis.SnapshotTTL <= 0 {
		return errors.New("REDIS_SNAPSHOT_TTL must be positive")
	}
	if err := c.Trading.Validate(); err != nil {
		return fmt.Errorf("trading: %w", err)
	}
	if err := c.Strategy.Validate(); err != nil {
		return fmt.Errorf("strategy: %w", err)
	}
	if err := c.Simulator.Validate(); err != nil {
		return fmt.Errorf("simulator: %w", err)
	}
	return nil
}

// ConnectionString returns the PostgreSQL connection string
func (d *DatabaseConfig) ConnectionString() string {
	return "postgres://" + d.User + ":" + d.Password + "@" + d.Host + ":" + d.Port + "/" + d.DBName + "?sslmode=" + d.SSLMode
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvList splits a comma separated variable, dropping empty entries
func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// env parses typed variables and remembers every malformed one
type env struct {
	errs []error
}

func (e *env) fail(key, value string, err error) {
	e.errs = append(e.errs, fmt.Errorf("%s=%q: %w", key, value, err))
}

func (e *env) err() error {
	return errors.Join(e.errs...)
}

func (e *env) int(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		e.fail(key, value, err)
		return defaultValue
	}
	return n
}

func (e *env) int64(key string, defaultValue int64) int64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		e.fail(key, value, err)
		return defaultValue
	}
	return n
}

func (e *env) bool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		e.fail(key, value, err)
		return defaultValue
	}
	return b
}

func (e *env) duration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		e.fail(key, value, err)
		return defaultValue
	}
	return d
}

// decimal parses from the string form so no precision is lost
func (e *env) decimal(key string, defaultValue decimal.Decimal) decimal.Decimal {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	d, err := decimal.NewFromString(value)
	if err != nil {
		e.fail(key, value, err)
		return defaultValue
	}
	return d
}
