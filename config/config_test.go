package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingExplicitFileErrors(t *testing.T) {
	cfg, err := Load("/nonexistent-path-for-test.toml")
	require.Error(t, err, "an explicit file that doesn't exist should error, not silently fall back")
	_ = cfg
}

func TestLoadWithExplicitFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "syncprov.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
suffix = "dc=test,dc=org"

[listen]
address = ":3389"

[checkpoint]
ops = 50
seconds = 60
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "dc=test,dc=org", cfg.Suffix)
	assert.Equal(t, ":3389", cfg.Listen.Address)
	assert.Equal(t, 50, cfg.Checkpoint.Ops)
	assert.Equal(t, 60, cfg.Checkpoint.Seconds)
	assert.Equal(t, 128, cfg.IDSet.BatchSize, "unset keys still take their default")
}

func TestLoadNoExplicitFileUsesDefaults(t *testing.T) {
	dir := t.TempDir()
	oldWd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	defer os.Chdir(oldWd)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, ":1389", cfg.Listen.Address)
	assert.Equal(t, "syncprov.db", cfg.Database.Path)
	assert.False(t, cfg.NoPresent)
}
