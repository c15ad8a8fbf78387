package config

import (
	"strings"
	"time"
)

// LedgerConfig holds runtime configuration for the ledger service.
type LedgerConfig struct {
	Environment        string        `yaml:"environment"`
	Addr               string        `yaml:"addr"`
	DatabaseURL        string        `yaml:"database_url"`
	LogLevel           string        `yaml:"log_level"`
	JWTSecret          string        `yaml:"jwt_secret"`
	AccessTokenTTL     time.Duration `yaml:"access_token_ttl"`
	BcryptCost         int           `yaml:"bcrypt_cost"`
	TransferAttempts   int           `yaml:"transfer_attempts"`
	BackoffBase        time.Duration `yaml:"backoff_base"`
	BackoffMax         time.Duration `yaml:"backoff_max"`
	NotifyTimeout      time.Duration `yaml:"notify_timeout"`
	NotifyRedisAddr    string        `yaml:"notify_redis_addr"`
	NotifyRedisPass    string        `yaml:"notify_redis_password"`
	NotifyRedisDB      int           `yaml:"notify_redis_db"`
	NotifyChannel      string        `yaml:"notify_channel"`
	RateLimitRedisAddr string        `yaml:"rate_limit_redis_addr"`
	RateLimitRedisPass string        `yaml:"rate_limit_redis_password"`
	RateLimitRedisDB   int           `yaml:"rate_limit_redis_db"`
}

// DefaultLedgerConfig returns the built-in defaults.
func DefaultLedgerConfig() LedgerConfig {
	return LedgerConfig{
		Environment:      "development",
		Addr:             ":4000",
		LogLevel:         "info",
		JWTSecret:        "supersecuresecret",
		AccessTokenTTL:   15 * time.Minute,
		BcryptCost:       10,
		TransferAttempts: 5,
		BackoffBase:      5 * time.Millisecond,
		BackoffMax:       100 * time.Millisecond,
		NotifyTimeout:    2 * time.Second,
		NotifyChannel:    "ledger:notifications",
	}
}

// LoadLedgerConfig starts from defaults, applies the YAML file named by
// LEDGER_CONFIG when set, then applies environment variables.
func LoadLedgerConfig() (LedgerConfig, error) {
	cfg := DefaultLedgerConfig()
	if path := strings.TrimSpace(GetString("LEDGER_CONFIG", "")); path != "" {
		if err := LoadFile(path, &cfg); err != nil {
			return LedgerConfig{}, err
		}
	}
	cfg.applyEnv()
	return cfg, nil
}

func (c *LedgerConfig) applyEnv() {
	c.Environment = GetString("APP_ENV", c.Environment)
	c.Addr = GetString("API_ADDR", c.Addr)
	c.DatabaseURL = GetString("DATABASE_URL", c.DatabaseURL)
	c.LogLevel = GetString("LOG_LEVEL", c.LogLevel)
	c.JWTSecret = GetString("JWT_SECRET", c.JWTSecret)
	c.AccessTokenTTL = time.Duration(GetInt("ACCESS_TOKEN_TTL_MIN", int(c.AccessTokenTTL/time.Minute))) * time.Minute
	c.BcryptCost = GetInt("BCRYPT_COST", c.BcryptCost)
	c.TransferAttempts = GetInt("TRANSFER_MAX_ATTEMPTS", c.TransferAttempts)
	c.BackoffBase = time.Duration(GetInt("TRANSFER_BACKOFF_BASE_MS", int(c.BackoffBase/time.Millisecond))) * time.Millisecond
	c.BackoffMax = time.Duration(GetInt("TRANSFER_BACKOFF_MAX_MS", int(c.BackoffMax/time.Millisecond))) * time.Millisecond
	c.NotifyTimeout = time.Duration(GetInt("NOTIFY_TIMEOUT_MS", int(c.NotifyTimeout/time.Millisecond))) * time.Millisecond
	c.NotifyRedisAddr = GetString("NOTIFY_REDIS_ADDR", c.NotifyRedisAddr)
	c.NotifyRedisPass = GetString("NOTIFY_REDIS_PASSWORD", c.NotifyRedisPass)
	c.NotifyRedisDB = GetInt("NOTIFY_REDIS_DB", c.NotifyRedisDB)
	c.NotifyChannel = GetString("NOTIFY_CHANNEL", c.NotifyChannel)
	c.RateLimitRedisAddr = GetString("RATE_LIMIT_REDIS_ADDR", c.RateLimitRedisAddr)
	c.RateLimitRedisPass = GetString("RATE_LIMIT_REDIS_PASSWORD", c.RateLimitRedisPass)
	c.RateLimitRedisDB = GetInt("RATE_LIMIT_REDIS_DB", c.RateLimitRedisDB)
}
