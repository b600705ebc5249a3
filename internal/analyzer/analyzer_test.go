package analyzer_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flvmnt/pgfence/internal/analyzer"
	"github.com/flvmnt/pgfence/internal/config"
	"github.com/flvmnt/pgfence/internal/extract"
	"github.com/flvmnt/pgfence/internal/parser"
	"github.com/flvmnt/pgfence/internal/plugin"
	"github.com/flvmnt/pgfence/internal/risk"
	"github.com/flvmnt/pgfence/internal/rules"
)

func analyzeSQL(t *testing.T, cfg config.Config, sql string, opts ...analyzer.Option) *analyzer.Result {
	t.Helper()

	a := analyzer.New(cfg, opts...)
	res, err := a.AnalyzeSource("migration.sql", []byte(sql), extract.FormatSQL)
	require.NoError(t, err)
	return res
}

func checksByID(res *analyzer.Result, id string) []rules.CheckResult {
	var out []rules.CheckResult
	for _, c := range res.Checks {
		if c.RuleID == id {
			out = append(out, c)
		}
	}
	return out
}

func TestPipelineBasicFinding(t *testing.T) {
	t.Parallel()

	res := analyzeSQL(t, config.Default(), "ALTER TABLE users ADD COLUMN status varchar(20) NOT NULL;")

	matched := checksByID(res, "add-column-not-null-no-default")
	require.Len(t, matched, 1)
	assert.Equal(t, "users", matched[0].Table)
	assert.Equal(t, risk.High, res.MaxRisk)
	assert.Equal(t, 1, res.StatementCount)
}

func TestPipelineParseErrorPropagates(t *testing.T) {
	t.Parallel()

	a := analyzer.New(config.Default())
	_, err := a.AnalyzeSource("bad.sql", []byte("ALTER TABEL x;"), extract.FormatSQL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad.sql")
}

func TestPipelineEmptyFileIsSafe(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	cfg.RequireLockTimeout = false
	cfg.RequireStatementTimeout = false

	res := analyzeSQL(t, cfg, "")
	assert.Equal(t, risk.Safe, res.MaxRisk)
	assert.Equal(t, 0, res.StatementCount)
	assert.Empty(t, res.Checks)
}

// Seed scenario: a suppressed rule is silenced while other rules on the
// same statement still fire.
func TestInlineSuppression(t *testing.T) {
	t.Parallel()

	sql := "-- pgfence-ignore: drop-table\nDROP TABLE old_data;"
	res := analyzeSQL(t, config.Default(), sql)

	assert.Empty(t, checksByID(res, "drop-table"))
	assert.NotEmpty(t, checksByID(res, "prefer-robust-drop-table"))
}

func TestBareSuppressionSilencesEverything(t *testing.T) {
	t.Parallel()

	sql := "-- pgfence-ignore\nDROP TABLE old_data;"
	res := analyzeSQL(t, config.Default(), sql)
	assert.Empty(t, res.Checks)
	assert.Equal(t, risk.Safe, res.MaxRisk)
}

// Tables created earlier in the same file are invisible to lock-oriented
// rules but not to rules that opt in.
func TestVisibilityWithinFile(t *testing.T) {
	t.Parallel()

	sql := `CREATE TABLE fresh (id bigint);
ALTER TABLE fresh ADD COLUMN status varchar(20) NOT NULL;
ALTER TABLE fresh ADD COLUMN payload json;`
	res := analyzeSQL(t, config.Default(), sql)

	// Lock finding on the brand-new table is suppressed.
	assert.Empty(t, checksByID(res, "add-column-not-null-no-default"))
	// add-column-json applies to new tables and survives.
	assert.Len(t, checksByID(res, "add-column-json"), 1)
}

func TestVisibilityAcrossFiles(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	first := filepath.Join(dir, "001_create.sql")
	second := filepath.Join(dir, "002_alter.sql")
	require.NoError(t, os.WriteFile(first, []byte("CREATE TABLE fresh (id bigint);"), 0o644))
	require.NoError(t, os.WriteFile(second, []byte("ALTER TABLE fresh DROP COLUMN id;"), 0o644))

	a := analyzer.New(config.Default())
	results, err := a.AnalyzeFiles([]analyzer.Input{
		{Path: first, Format: extract.FormatSQL},
		{Path: second, Format: extract.FormatSQL},
	})
	require.NoError(t, err)
	require.Len(t, results, 2)

	// The second file's drop-column targets a table created in the first.
	for _, c := range results[1].Checks {
		assert.NotEqual(t, "drop-column", c.RuleID)
	}
}

func TestVisibilityOrderMatters(t *testing.T) {
	t.Parallel()

	// The ALTER precedes the CREATE, so the table is not yet "new".
	sql := `ALTER TABLE fresh ADD COLUMN status varchar(20) NOT NULL;
CREATE TABLE fresh (id bigint);`
	res := analyzeSQL(t, config.Default(), sql)
	assert.Len(t, checksByID(res, "add-column-not-null-no-default"), 1)
}

func TestRiskAdjustment(t *testing.T) {
	t.Parallel()

	stats := risk.NewStatsMap([]risk.TableStats{
		{SchemaName: "public", TableName: "users", RowCount: 12_000_000},
	})

	res := analyzeSQL(t, config.Default(),
		"CREATE INDEX idx ON users(email);",
		analyzer.WithStats(stats))

	matched := checksByID(res, "create-index-not-concurrent")
	require.Len(t, matched, 1)
	require.NotNil(t, matched[0].AdjustedRisk)
	assert.Equal(t, risk.Medium, matched[0].BaseRisk)
	assert.Equal(t, risk.Critical, *matched[0].AdjustedRisk)
	assert.Equal(t, risk.Critical, res.MaxRisk)
}

func TestRiskAdjustmentUnknownTable(t *testing.T) {
	t.Parallel()

	stats := risk.NewStatsMap([]risk.TableStats{
		{SchemaName: "public", TableName: "other", RowCount: 12_000_000},
	})

	res := analyzeSQL(t, config.Default(),
		"CREATE INDEX idx ON users(email);",
		analyzer.WithStats(stats))

	matched := checksByID(res, "create-index-not-concurrent")
	require.Len(t, matched, 1)
	assert.Nil(t, matched[0].AdjustedRisk)
	assert.Equal(t, risk.Medium, res.MaxRisk)
}

func TestDisabledRules(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	cfg.DisabledRules = []string{"drop-table"}

	res := analyzeSQL(t, cfg, "DROP TABLE old_data;")
	assert.Empty(t, checksByID(res, "drop-table"))
	assert.NotEmpty(t, checksByID(res, "prefer-robust-drop-table"))
}

func TestEnabledRulesAllowlist(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	cfg.EnabledRules = []string{"drop-table"}

	res := analyzeSQL(t, cfg, "DROP TABLE old_data;\nCREATE INDEX idx ON users(email);")
	assert.Len(t, checksByID(res, "drop-table"), 1)
	assert.Empty(t, checksByID(res, "create-index-not-concurrent"))
}

func TestPolicyViolationsFlow(t *testing.T) {
	t.Parallel()

	sql := `BEGIN;
ALTER TABLE t ADD CONSTRAINT c CHECK (x > 0) NOT VALID;
ALTER TABLE t VALIDATE CONSTRAINT c;
COMMIT;`
	res := analyzeSQL(t, config.Default(), sql)

	var found bool
	for _, v := range res.Violations {
		if v.RuleID == "not-valid-validate-same-tx" {
			found = true
		}
	}
	assert.True(t, found)
	assert.True(t, res.HasErrorViolation())
}

// Running the analyzer twice on the same input yields identical results.
func TestIdempotence(t *testing.T) {
	t.Parallel()

	sql := `SET lock_timeout = '2s';
CREATE INDEX idx ON users(email);
DROP TABLE old_data;`

	first := analyzeSQL(t, config.Default(), sql)
	second := analyzeSQL(t, config.Default(), sql)
	assert.Equal(t, first, second)
}

// panicRule is a plugin rule that always panics.
type panicRule struct{}

func (r *panicRule) ID() string { return "plugin:explodes" }

func (r *panicRule) Check(parser.ParsedStatement, *rules.Context) []rules.CheckResult {
	panic("plugin bug")
}

// okRule is a plugin rule that flags every statement.
type okRule struct{}

func (r *okRule) ID() string { return "plugin:everything" }

func (r *okRule) Check(stmt parser.ParsedStatement, ctx *rules.Context) []rules.CheckResult {
	return []rules.CheckResult{{
		Statement: stmt.SQL,
		RuleID:    r.ID(),
		BaseRisk:  risk.Low,
		Message:   "flagged by plugin",
	}}
}

func TestPluginFaultIsolation(t *testing.T) {
	t.Parallel()

	manifest := &plugin.Manifest{
		Name:  "test-plugin",
		Rules: []rules.Rule{&panicRule{}, &okRule{}},
	}

	res := analyzeSQL(t, config.Default(), "SELECT 1;", analyzer.WithPlugins([]*plugin.Manifest{manifest}))

	// The panicking rule's findings are dropped; the healthy one's flow
	// through the normal pipeline.
	assert.Empty(t, checksByID(res, "plugin:explodes"))
	assert.Len(t, checksByID(res, "plugin:everything"), 1)
}
