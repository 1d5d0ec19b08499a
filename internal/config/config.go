// Package config defines the engine's top-level configuration and its
// validation. Values come from a TOML file merged over defaults, with
// CROSSARB_* environment variables taking final precedence.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure.
type Config struct {
	Wallet      WalletConfig      `toml:"wallet"`
	Polymarket  PolymarketConfig  `toml:"polymarket"`
	Betfair     BetfairConfig     `toml:"betfair"`
	SX          SXConfig          `toml:"sxbet"`
	Postgres    PostgresConfig    `toml:"postgres"`
	Redis       RedisConfig       `toml:"redis"`
	S3          S3Config          `toml:"s3"`
	Resolver    ResolverConfig    `toml:"resolver"`
	Scan        ScanConfig        `toml:"scan"`
	Suggestions SuggestionsConfig `toml:"suggestions"`
	Breaker     BreakerConfig     `toml:"breaker"`
	Executor    ExecutorConfig    `toml:"executor"`
	Server      ServerConfig      `toml:"server"`
	Notify      NotifyConfig      `toml:"notify"`
	Mode        string            `toml:"mode"`
	LogLevel    string            `toml:"log_level"`
}

// WalletConfig holds the signing key for the blockchain-settled venue.
type WalletConfig struct {
	PrivateKey       string `toml:"private_key"`
	EncryptedKeyPath string `toml:"encrypted_key_path"`
	KeyPassword      string `toml:"key_password"`
}

// PolymarketConfig holds the CLOB venue's endpoints and API credentials.
type PolymarketConfig struct {
	RestURL       string  `toml:"rest_url"`
	WSURL         string  `toml:"ws_url"`
	APIKey        string  `toml:"api_key"`
	APISecret     string  `toml:"api_secret"`
	APIPassphrase string  `toml:"api_passphrase"`
	FeeRate       float64 `toml:"fee_rate"`
}

// BetfairConfig holds the sports exchange's endpoints and credentials.
type BetfairConfig struct {
	BaseURL      string  `toml:"base_url"`
	AppKey       string  `toml:"app_key"`
	SessionToken string  `toml:"session_token"`
	FeeRate      float64 `toml:"fee_rate"`
	PollInterval duration `toml:"poll_interval"`
	RPS          float64 `toml:"rps"`
}

// SXConfig holds the blockchain-settled venue's endpoints and chain
// parameters.
type SXConfig struct {
	RestURL   string  `toml:"rest_url"`
	WSURL     string  `toml:"ws_url"`
	ChainID   int     `toml:"chain_id"`
	BaseToken string  `toml:"base_token"`
	Executor  string  `toml:"executor"`
	FeeRate   float64 `toml:"fee_rate"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds S3-compatible object storage parameters for the audit
// archiver.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// ResolverConfig tunes cross-venue market resolution.
type ResolverConfig struct {
	// MinConfidence overrides the default floor per venue pair, keyed
	// "source:target".
	MinConfidence        map[string]float64 `toml:"min_confidence"`
	DefaultMinConfidence float64            `toml:"default_min_confidence"`
	MaxDivergence        float64            `toml:"max_divergence"`
	MappingTTL           duration           `toml:"mapping_ttl"`
	NegativeTTL          duration           `toml:"negative_ttl"`
	CandidateWindow      duration           `toml:"candidate_window"`
}

// ScanConfig tunes the scan cycle.
type ScanConfig struct {
	SourceVenue     string             `toml:"source_venue"`
	Interval        duration           `toml:"interval"`
	Concurrency     int                `toml:"concurrency"`
	MinROIPct       float64            `toml:"min_roi_pct"`
	MinLiquidityUSD float64            `toml:"min_liquidity_usd"`
	MaxFeedAge      duration           `toml:"max_feed_age"`
	FeeRates        map[string]float64 `toml:"fee_rates"`
}

// SuggestionsConfig tunes the graph suggestion pipeline.
type SuggestionsConfig struct {
	Interval    duration `toml:"interval"`
	PromoteAfter int     `toml:"promote_after"`
	AutoPromote bool     `toml:"auto_promote"`
	MinScore    float64  `toml:"min_score"`
}

// BreakerConfig tunes the circuit breaker.
type BreakerConfig struct {
	InitialCapital float64 `toml:"initial_capital"`
	MaxDrawdownPct float64 `toml:"max_drawdown_pct"`
	MaxErrorRate   float64 `toml:"max_error_rate"`
	MinSafeBalance float64 `toml:"min_safe_balance"`
	WarmupAttempts int     `toml:"warmup_attempts"`
}

// ExecutorConfig tunes two-leg execution.
type ExecutorConfig struct {
	RollbackSlippage  float64  `toml:"rollback_slippage"`
	EmergencySlippage float64  `toml:"emergency_slippage"`
	LockTTL           duration `toml:"lock_ttl"`
	// DryRun replaces the venue gateways with simulated fills.
	DryRun bool `toml:"dry_run"`
}

// ServerConfig holds the operator API settings.
type ServerConfig struct {
	Enabled bool `toml:"enabled"`
	Port    int  `toml:"port"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// duration wraps time.Duration so the TOML decoder accepts "5m" / "30s".
type duration struct {
	time.Duration
}

func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with working development values.
func Defaults() Config {
	return Config{
		Polymarket: PolymarketConfig{
			RestURL: "https://clob.polymarket.com",
			WSURL:   "wss://ws-subscriptions-clob.polymarket.com/ws/market",
			FeeRate: 0,
		},
		Betfair: BetfairConfig{
			BaseURL:      "https://api.betfair.com/exchange/betting/json-rpc/v1",
			FeeRate:      0.065,
			PollInterval: duration{30 * time.Second},
			RPS:          2,
		},
		SX: SXConfig{
			RestURL: "https://api.sx.bet",
			WSURL:   "wss://api.sx.bet/ws",
			ChainID: 4162,
			FeeRate: 0.02,
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "crossarb",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			PoolSize:   20,
			MaxRetries: 3,
		},
		S3: S3Config{
			Enabled:        false,
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "crossarb-audit",
			ForcePathStyle: true,
		},
		Resolver: ResolverConfig{
			MinConfidence:        map[string]float64{},
			DefaultMinConfidence: 0.75,
			MaxDivergence:        0.20,
			MappingTTL:           duration{24 * time.Hour},
			NegativeTTL:          duration{time.Hour},
			CandidateWindow:      duration{24 * time.Hour},
		},
		Scan: ScanConfig{
			SourceVenue:     "polymarket",
			Interval:        duration{time.Minute},
			Concurrency:     15,
			MinROIPct:       2,
			MinLiquidityUSD: 10,
			MaxFeedAge:      duration{2 * time.Minute},
			FeeRates:        map[string]float64{},
		},
		Suggestions: SuggestionsConfig{
			Interval:     duration{10 * time.Minute},
			PromoteAfter: 3,
			AutoPromote:  false,
			MinScore:     75,
		},
		Breaker: BreakerConfig{
			InitialCapital: 1000,
			MaxDrawdownPct: 0.05,
			MaxErrorRate:   0.20,
			MinSafeBalance: 10,
			WarmupAttempts: 10,
		},
		Executor: ExecutorConfig{
			RollbackSlippage:  0.01,
			EmergencySlippage: 0.05,
			LockTTL:           duration{30 * time.Second},
			DryRun:            true,
		},
		Server: ServerConfig{
			Enabled: true,
			Port:    8080,
		},
		Notify: NotifyConfig{
			Events: []string{"opportunity", "execution", "rollback", "manual_intervention", "breaker_tripped"},
		},
		Mode:     "full",
		LogLevel: "info",
	}
}

var validModes = map[string]bool{
	"scan":    true,
	"resolve": true,
	"monitor": true,
	"full":    true,
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks the Config and returns one combined error listing every
// problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: scan, resolve, monitor, full)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Live execution needs a signing key for the settled venue; dry-run and
	// non-executing modes do not.
	executes := c.Mode == "scan" || c.Mode == "full"
	if executes && !c.Executor.DryRun {
		if c.Wallet.PrivateKey == "" && c.Wallet.EncryptedKeyPath == "" {
			errs = append(errs, "wallet: either private_key or encrypted_key_path must be set for live execution")
		}
		if c.Wallet.EncryptedKeyPath != "" && c.Wallet.KeyPassword == "" {
			errs = append(errs, "wallet: key_password is required when encrypted_key_path is set")
		}
	}

	if c.Polymarket.RestURL == "" {
		errs = append(errs, "polymarket: rest_url must not be empty")
	}
	if c.Betfair.BaseURL == "" {
		errs = append(errs, "betfair: base_url must not be empty")
	}
	if c.SX.RestURL == "" {
		errs = append(errs, "sxbet: rest_url must not be empty")
	}
	if c.SX.ChainID <= 0 {
		errs = append(errs, "sxbet: chain_id must be positive")
	}

	if strings.TrimSpace(c.Postgres.DSN) == "" {
		if c.Postgres.Host == "" {
			errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
		}
		if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
			errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
		}
		if c.Postgres.Database == "" {
			errs = append(errs, "postgres: database must not be empty")
		}
	}
	if c.Postgres.PoolMaxConns < 1 {
		errs = append(errs, "postgres: pool_max_conns must be >= 1")
	}
	if c.Postgres.PoolMinConns < 0 || c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
		errs = append(errs, "postgres: pool_min_conns must be 0..pool_max_conns")
	}

	if c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty")
	}
	if c.Redis.PoolSize < 1 {
		errs = append(errs, "redis: pool_size must be >= 1")
	}

	if c.S3.Enabled {
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty when enabled")
		}
		if c.S3.Region == "" {
			errs = append(errs, "s3: region must not be empty when enabled")
		}
	}

	if c.Resolver.DefaultMinConfidence <= 0 || c.Resolver.DefaultMinConfidence > 1 {
		errs = append(errs, "resolver: default_min_confidence must be in (0,1]")
	}
	for pair, v := range c.Resolver.MinConfidence {
		if v <= 0 || v > 1 {
			errs = append(errs, fmt.Sprintf("resolver: min_confidence[%s] must be in (0,1]", pair))
		}
	}
	if c.Resolver.MaxDivergence <= 0 || c.Resolver.MaxDivergence >= 1 {
		errs = append(errs, "resolver: max_divergence must be in (0,1)")
	}

	if c.Scan.Concurrency < 1 {
		errs = append(errs, "scan: concurrency must be >= 1")
	}
	if c.Scan.MinLiquidityUSD < 0 {
		errs = append(errs, "scan: min_liquidity_usd must be >= 0")
	}
	if c.Scan.SourceVenue == "" {
		errs = append(errs, "scan: source_venue must not be empty")
	}

	if c.Suggestions.PromoteAfter < 1 {
		errs = append(errs, "suggestions: promote_after must be >= 1")
	}
	if c.Suggestions.MinScore < 0 || c.Suggestions.MinScore > 100 {
		errs = append(errs, "suggestions: min_score must be 0..100")
	}

	if c.Breaker.InitialCapital <= 0 {
		errs = append(errs, "breaker: initial_capital must be > 0")
	}
	if c.Breaker.MaxDrawdownPct <= 0 || c.Breaker.MaxDrawdownPct >= 1 {
		errs = append(errs, "breaker: max_drawdown_pct must be in (0,1)")
	}
	if c.Breaker.MaxErrorRate <= 0 || c.Breaker.MaxErrorRate >= 1 {
		errs = append(errs, "breaker: max_error_rate must be in (0,1)")
	}

	if c.Executor.RollbackSlippage < 0 || c.Executor.RollbackSlippage > c.Executor.EmergencySlippage {
		errs = append(errs, "executor: rollback_slippage must be 0..emergency_slippage")
	}

	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
