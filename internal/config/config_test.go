package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultsValidate(t *testing.T) {
	cfg := Defaults()
	require.NoError(t, cfg.Validate(), "defaults must be self-consistent")
}

func TestLoadMergesTOMLOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	data := `
mode = "monitor"

[scan]
min_roi_pct = 3.5
interval = "45s"

[resolver]
default_min_confidence = 0.8

[resolver.min_confidence]
"polymarket:sxbet" = 0.9
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "monitor", cfg.Mode)
	assert.Equal(t, 3.5, cfg.Scan.MinROIPct)
	assert.Equal(t, "45s", cfg.Scan.Interval.Duration.String())
	assert.Equal(t, 0.8, cfg.Resolver.DefaultMinConfidence)
	assert.Equal(t, 0.9, cfg.Resolver.MinConfidence["polymarket:sxbet"])

	// Untouched sections keep defaults.
	assert.Equal(t, 15, cfg.Scan.Concurrency)
	assert.Equal(t, 0.065, cfg.Betfair.FeeRate)
}

func TestEnvOverridesWinOverTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`log_level = "info"`), 0o600))

	t.Setenv("CROSSARB_LOG_LEVEL", "debug")
	t.Setenv("CROSSARB_SCAN_CONCURRENCY", "4")
	t.Setenv("CROSSARB_EXECUTOR_DRY_RUN", "false")
	t.Setenv("CROSSARB_NOTIFY_EVENTS", "breaker_tripped, manual_intervention")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 4, cfg.Scan.Concurrency)
	assert.False(t, cfg.Executor.DryRun)
	assert.Equal(t, []string{"breaker_tripped", "manual_intervention"}, cfg.Notify.Events)
}

func TestValidateCollectsAllProblems(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "bogus"
	cfg.Scan.Concurrency = 0
	cfg.Breaker.MaxDrawdownPct = 2

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
	assert.Contains(t, err.Error(), "concurrency")
	assert.Contains(t, err.Error(), "max_drawdown_pct")
}

func TestLiveExecutionRequiresSigningKey(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "full"
	cfg.Executor.DryRun = false

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "wallet")

	cfg.Wallet.PrivateKey = "abc123"
	assert.NoError(t, cfg.Validate())
}

func TestRedactedConfigHidesSecrets(t *testing.T) {
	cfg := Defaults()
	cfg.Wallet.PrivateKey = "deadbeef"
	cfg.Redis.Password = "hunter2"
	cfg.Notify.TelegramToken = "123:abc"

	red := RedactedConfig(&cfg)
	assert.Equal(t, "***", red.Wallet.PrivateKey)
	assert.Equal(t, "***", red.Redis.Password)
	assert.Equal(t, "***", red.Notify.TelegramToken)

	// Original untouched.
	assert.Equal(t, "deadbeef", cfg.Wallet.PrivateKey)
}
