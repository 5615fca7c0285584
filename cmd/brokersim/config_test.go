package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cfg.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Listen)
	assert.Equal(t, ".cache", cfg.CacheDir)
	assert.True(t, cfg.StrictMoneyBalance)
	assert.True(t, cfg.StrictQuantityBalance)
}

func TestLoadConfigOverrides(t *testing.T) {
	path := writeTempConfig(t, `
listen: ":9090"
cacheDir: /tmp/candles
logMode: prod
strictMoneyBalance: false
`)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.Listen)
	assert.Equal(t, "/tmp/candles", cfg.CacheDir)
	assert.Equal(t, "prod", cfg.LogMode)
	assert.False(t, cfg.StrictMoneyBalance)
	// untouched fields keep their defaults
	assert.True(t, cfg.StrictQuantityBalance)
}

func TestLoadConfigEnvOverridesListen(t *testing.T) {
	path := writeTempConfig(t, `listen: ":9090"`)
	t.Setenv("BROKERSIM_LISTEN", ":7070")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, ":7070", cfg.Listen)
}

func TestLoadConfigRejectsBadLogMode(t *testing.T) {
	path := writeTempConfig(t, "logMode: silly\n")
	_, err := LoadConfig(path)
	require.Error(t, err)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}
