package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jag2430/fix-executor/internal/execution"
	"github.com/jag2430/fix-executor/internal/types"
)

func TestLoadWithoutPathReturnsDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "IMMEDIATE_FULL", cfg.Execution.FillMode)
	assert.Equal(t, 30, cfg.MarketData.CacheTTLSeconds)

	engineCfg, err := cfg.Execution.ToEngineConfig()
	require.NoError(t, err)
	assert.NoError(t, engineCfg.Validate())
}

func TestLoadOverlaysFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: 9090
execution:
  fill_mode: MANUAL
  reject_probability: 0.25
  price_slippage: 0.05
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "MANUAL", cfg.Execution.FillMode)
	assert.Equal(t, 0.25, cfg.Execution.RejectProbability)

	// Fields the file does not set keep their defaults.
	assert.Equal(t, int64(1000), cfg.Execution.DelayMs)
	assert.Equal(t, "test_key", cfg.Auth.APIKey)

	engineCfg, err := cfg.Execution.ToEngineConfig()
	require.NoError(t, err)
	assert.Equal(t, execution.ModeManual, engineCfg.FillMode)
	assert.True(t, engineCfg.PriceSlippage.Equal(decimal.RequireFromString("0.05")))
}

func TestLoadRejectsUnknownMode(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
execution:
  fill_mode: SOMETIMES
`), 0o644))

	_, err := Load(path)
	assert.ErrorIs(t, err, types.ErrUnknownMode)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: [not a mapping"), 0o644))
	_, err := Load(path)
	assert.Error(t, err)
}

func TestWatchAppliesReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("execution:\n  fill_mode: IMMEDIATE_FULL\n"), 0o644))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	applied := make(chan AppConfig, 1)
	go func() {
		_ = Watch(ctx, path, zerolog.Nop(), func(cfg AppConfig) {
			select {
			case applied <- cfg:
			default:
			}
		})
	}()

	// Give the watcher a moment to arm before writing.
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte("execution:\n  fill_mode: MANUAL\n"), 0o644))

	select {
	case cfg := <-applied:
		assert.Equal(t, "MANUAL", cfg.Execution.FillMode)
	case <-time.After(10 * time.Second):
		t.Fatal("reload was never applied")
	}
}

func TestWatchIgnoresInvalidReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("execution:\n  fill_mode: IMMEDIATE_FULL\n"), 0o644))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	applied := make(chan AppConfig, 4)
	go func() {
		_ = Watch(ctx, path, zerolog.Nop(), func(cfg AppConfig) {
			applied <- cfg
		})
	}()

	time.Sleep(100 * time.Millisecond)
	// A broken config must not reach apply; the good one after it must.
	require.NoError(t, os.WriteFile(path, []byte("execution:\n  fill_mode: BROKEN\n"), 0o644))
	time.Sleep(1500 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte("execution:\n  fill_mode: DELAYED\n"), 0o644))

	select {
	case cfg := <-applied:
		assert.Equal(t, "DELAYED", cfg.Execution.FillMode)
	case <-time.After(10 * time.Second):
		t.Fatal("valid reload was never applied")
	}
}
