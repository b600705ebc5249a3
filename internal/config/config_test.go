package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flvmnt/pgfence/internal/config"
	"github.com/flvmnt/pgfence/internal/risk"
)

func TestDefault(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	assert.Equal(t, 11, cfg.MinPGVersion)
	assert.Equal(t, risk.High, cfg.MaxRisk)
	assert.True(t, cfg.RequireLockTimeout)
	assert.True(t, cfg.RequireStatementTimeout)
	assert.Equal(t, int64(5_000), cfg.MaxLockTimeoutMs)
	assert.Equal(t, int64(600_000), cfg.MaxStatementTimeoutMs)
}

func TestLoadFileOverlay(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), ".pgfence.yaml")
	body := `minPGVersion: 14
maxRisk: medium
requireStatementTimeout: false
maxLockTimeoutMs: 3000
disableRules:
  - prefer-text-field
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	cfg, err := config.LoadFile(path, config.Default())
	require.NoError(t, err)

	assert.Equal(t, 14, cfg.MinPGVersion)
	assert.Equal(t, risk.Medium, cfg.MaxRisk)
	assert.True(t, cfg.RequireLockTimeout) // untouched key keeps its default
	assert.False(t, cfg.RequireStatementTimeout)
	assert.Equal(t, int64(3000), cfg.MaxLockTimeoutMs)
	assert.Equal(t, []string{"prefer-text-field"}, cfg.DisabledRules)
}

func TestLoadFileBadRisk(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), ".pgfence.yaml")
	require.NoError(t, os.WriteFile(path, []byte("maxRisk: radioactive\n"), 0o644))

	_, err := config.LoadFile(path, config.Default())
	assert.Error(t, err)
}

func TestRuleEnabled(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	assert.True(t, cfg.RuleEnabled("drop-table"))

	cfg.DisabledRules = []string{"drop-table"}
	assert.False(t, cfg.RuleEnabled("drop-table"))
	assert.True(t, cfg.RuleEnabled("truncate"))

	cfg = config.Default()
	cfg.EnabledRules = []string{"truncate"}
	assert.True(t, cfg.RuleEnabled("truncate"))
	assert.False(t, cfg.RuleEnabled("drop-table"))

	// Disable wins over enable.
	cfg.DisabledRules = []string{"truncate"}
	assert.False(t, cfg.RuleEnabled("truncate"))
}
