package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads the TOML file at path, merges it over Defaults, applies
// CROSSARB_* environment overrides, and returns the result unvalidated;
// call Config.Validate after Load. An empty path skips the file and uses
// defaults plus environment.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, err
		}
	}

	// .env is optional.
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)
	return &cfg, nil
}

// applyEnvOverrides overwrites Config fields from CROSSARB_* variables so
// operators can inject secrets at deploy time without touching the TOML.
func applyEnvOverrides(cfg *Config) {
	setStr(&cfg.Wallet.PrivateKey, "CROSSARB_WALLET_PRIVATE_KEY")
	setStr(&cfg.Wallet.EncryptedKeyPath, "CROSSARB_WALLET_ENCRYPTED_KEY_PATH")
	setStr(&cfg.Wallet.KeyPassword, "CROSSARB_WALLET_KEY_PASSWORD")

	setStr(&cfg.Polymarket.RestURL, "CROSSARB_POLYMARKET_REST_URL")
	setStr(&cfg.Polymarket.WSURL, "CROSSARB_POLYMARKET_WS_URL")
	setStr(&cfg.Polymarket.APIKey, "CROSSARB_POLYMARKET_API_KEY")
	setStr(&cfg.Polymarket.APISecret, "CROSSARB_POLYMARKET_API_SECRET")
	setStr(&cfg.Polymarket.APIPassphrase, "CROSSARB_POLYMARKET_API_PASSPHRASE")
	setFloat64(&cfg.Polymarket.FeeRate, "CROSSARB_POLYMARKET_FEE_RATE")

	setStr(&cfg.Betfair.BaseURL, "CROSSARB_BETFAIR_BASE_URL")
	setStr(&cfg.Betfair.AppKey, "CROSSARB_BETFAIR_APP_KEY")
	setStr(&cfg.Betfair.SessionToken, "CROSSARB_BETFAIR_SESSION_TOKEN")
	setFloat64(&cfg.Betfair.FeeRate, "CROSSARB_BETFAIR_FEE_RATE")
	setDuration(&cfg.Betfair.PollInterval, "CROSSARB_BETFAIR_POLL_INTERVAL")
	setFloat64(&cfg.Betfair.RPS, "CROSSARB_BETFAIR_RPS")

	setStr(&cfg.SX.RestURL, "CROSSARB_SXBET_REST_URL")
	setStr(&cfg.SX.WSURL, "CROSSARB_SXBET_WS_URL")
	setInt(&cfg.SX.ChainID, "CROSSARB_SXBET_CHAIN_ID")
	setStr(&cfg.SX.BaseToken, "CROSSARB_SXBET_BASE_TOKEN")
	setStr(&cfg.SX.Executor, "CROSSARB_SXBET_EXECUTOR")
	setFloat64(&cfg.SX.FeeRate, "CROSSARB_SXBET_FEE_RATE")

	setStr(&cfg.Postgres.DSN, "CROSSARB_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "CROSSARB_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "CROSSARB_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "CROSSARB_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "CROSSARB_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "CROSSARB_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "CROSSARB_POSTGRES_SSLMODE")
	setInt(&cfg.Postgres.PoolMaxConns, "CROSSARB_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "CROSSARB_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "CROSSARB_POSTGRES_RUN_MIGRATIONS")

	setStr(&cfg.Redis.Addr, "CROSSARB_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "CROSSARB_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "CROSSARB_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "CROSSARB_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "CROSSARB_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "CROSSARB_REDIS_TLS_ENABLED")

	setBool(&cfg.S3.Enabled, "CROSSARB_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "CROSSARB_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "CROSSARB_S3_REGION")
	setStr(&cfg.S3.Bucket, "CROSSARB_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "CROSSARB_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "CROSSARB_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "CROSSARB_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "CROSSARB_S3_FORCE_PATH_STYLE")

	setFloat64(&cfg.Resolver.DefaultMinConfidence, "CROSSARB_RESOLVER_DEFAULT_MIN_CONFIDENCE")
	setFloat64(&cfg.Resolver.MaxDivergence, "CROSSARB_RESOLVER_MAX_DIVERGENCE")
	setDuration(&cfg.Resolver.MappingTTL, "CROSSARB_RESOLVER_MAPPING_TTL")
	setDuration(&cfg.Resolver.NegativeTTL, "CROSSARB_RESOLVER_NEGATIVE_TTL")
	setDuration(&cfg.Resolver.CandidateWindow, "CROSSARB_RESOLVER_CANDIDATE_WINDOW")

	setStr(&cfg.Scan.SourceVenue, "CROSSARB_SCAN_SOURCE_VENUE")
	setDuration(&cfg.Scan.Interval, "CROSSARB_SCAN_INTERVAL")
	setInt(&cfg.Scan.Concurrency, "CROSSARB_SCAN_CONCURRENCY")
	setFloat64(&cfg.Scan.MinROIPct, "CROSSARB_SCAN_MIN_ROI_PCT")
	setFloat64(&cfg.Scan.MinLiquidityUSD, "CROSSARB_SCAN_MIN_LIQUIDITY_USD")
	setDuration(&cfg.Scan.MaxFeedAge, "CROSSARB_SCAN_MAX_FEED_AGE")

	setDuration(&cfg.Suggestions.Interval, "CROSSARB_SUGGESTIONS_INTERVAL")
	setInt(&cfg.Suggestions.PromoteAfter, "CROSSARB_SUGGESTIONS_PROMOTE_AFTER")
	setBool(&cfg.Suggestions.AutoPromote, "CROSSARB_SUGGESTIONS_AUTO_PROMOTE")
	setFloat64(&cfg.Suggestions.MinScore, "CROSSARB_SUGGESTIONS_MIN_SCORE")

	setFloat64(&cfg.Breaker.InitialCapital, "CROSSARB_BREAKER_INITIAL_CAPITAL")
	setFloat64(&cfg.Breaker.MaxDrawdownPct, "CROSSARB_BREAKER_MAX_DRAWDOWN_PCT")
	setFloat64(&cfg.Breaker.MaxErrorRate, "CROSSARB_BREAKER_MAX_ERROR_RATE")
	setFloat64(&cfg.Breaker.MinSafeBalance, "CROSSARB_BREAKER_MIN_SAFE_BALANCE")
	setInt(&cfg.Breaker.WarmupAttempts, "CROSSARB_BREAKER_WARMUP_ATTEMPTS")

	setFloat64(&cfg.Executor.RollbackSlippage, "CROSSARB_EXECUTOR_ROLLBACK_SLIPPAGE")
	setFloat64(&cfg.Executor.EmergencySlippage, "CROSSARB_EXECUTOR_EMERGENCY_SLIPPAGE")
	setDuration(&cfg.Executor.LockTTL, "CROSSARB_EXECUTOR_LOCK_TTL")
	setBool(&cfg.Executor.DryRun, "CROSSARB_EXECUTOR_DRY_RUN")

	setBool(&cfg.Server.Enabled, "CROSSARB_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "CROSSARB_SERVER_PORT")

	setStr(&cfg.Notify.TelegramToken, "CROSSARB_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "CROSSARB_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "CROSSARB_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "CROSSARB_NOTIFY_EVENTS")

	setStr(&cfg.Mode, "CROSSARB_MODE")
	setStr(&cfg.LogLevel, "CROSSARB_LOG_LEVEL")
}

// Typed env helpers. Each mutates the target only when the variable is set
// and parses cleanly.

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	parts := strings.Split(v, ",")
	cleaned := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			cleaned = append(cleaned, p)
		}
	}
	if len(cleaned) > 0 {
		*dst = cleaned
	}
}
