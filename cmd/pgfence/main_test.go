package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTemp(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestRunAnalyzeSafeMigration(t *testing.T) {
	path := writeTemp(t, "0001_safe.sql", `SET lock_timeout = '2s';
SET statement_timeout = '5min';
CREATE INDEX CONCURRENTLY idx ON users(email);
`)
	code := run([]string{"analyze", "--output", "json", path})
	assert.Equal(t, exitOK, code)
}

func TestRunCIGateFailsOnCritical(t *testing.T) {
	path := writeTemp(t, "0002_drop.sql", "DROP TABLE old_data;\n")
	code := run([]string{"analyze", "--ci", "--no-lock-timeout", "--no-statement-timeout", "--output", "json", path})
	assert.Equal(t, exitCI, code)
}

func TestRunCIGatePassesUnderCeiling(t *testing.T) {
	path := writeTemp(t, "0003_drop.sql", "DROP TABLE old_data;\n")
	code := run([]string{"analyze", "--ci", "--max-risk", "critical", "--no-lock-timeout", "--no-statement-timeout", "--output", "json", path})
	assert.Equal(t, exitOK, code)
}

func TestRunCIGateFailsOnErrorViolation(t *testing.T) {
	// Max risk critical, but the missing lock_timeout is an error-grade
	// policy violation.
	path := writeTemp(t, "0004_alter.sql", "ALTER TABLE t DROP COLUMN c;\n")
	code := run([]string{"analyze", "--ci", "--max-risk", "critical", "--output", "json", path})
	assert.Equal(t, exitCI, code)
}

func TestRunWithoutCINeverGates(t *testing.T) {
	path := writeTemp(t, "0005_drop.sql", "DROP TABLE old_data;\n")
	code := run([]string{"analyze", "--output", "json", path})
	assert.Equal(t, exitOK, code)
}

func TestRunFatalOnMissingFile(t *testing.T) {
	code := run([]string{"analyze", filepath.Join(t.TempDir(), "nope.sql")})
	assert.Equal(t, exitFatal, code)
}

func TestRunFatalOnParseError(t *testing.T) {
	path := writeTemp(t, "0006_broken.sql", "ALTER TABEL x;\n")
	code := run([]string{"analyze", path})
	assert.Equal(t, exitFatal, code)
}

func TestRunFatalOnBadFlagValue(t *testing.T) {
	path := writeTemp(t, "0007_ok.sql", "SELECT 1;\n")
	assert.Equal(t, exitFatal, run([]string{"analyze", "--max-risk", "radioactive", path}))
	assert.Equal(t, exitFatal, run([]string{"analyze", "--format", "mystery", path}))
	assert.Equal(t, exitFatal, run([]string{"analyze", "--output", "fax", path}))
}

func TestRunStatsFile(t *testing.T) {
	migration := writeTemp(t, "0008_index.sql", "SET lock_timeout='2s';\nSET statement_timeout='1min';\nCREATE INDEX idx ON users(email);\n")
	stats := writeTemp(t, "stats.json", `[{"schemaName":"public","tableName":"users","rowCount":12000000,"totalBytes":1}]`)

	// MEDIUM finding adjusted to CRITICAL by table size; ceiling high → gate.
	code := run([]string{"analyze", "--ci", "--stats-file", stats, "--output", "json", migration})
	assert.Equal(t, exitCI, code)
}
