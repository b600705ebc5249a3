package parser_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flvmnt/pgfence/internal/parser"
)

func TestParseEmpty(t *testing.T) {
	t.Parallel()

	for _, sql := range []string{"", "   ", "\n\n", "-- only a comment\n"} {
		res, err := parser.Parse(sql)
		require.NoError(t, err, "input %q", sql)
		assert.Empty(t, res.Statements, "input %q", sql)
	}
}

func TestParseError(t *testing.T) {
	t.Parallel()

	_, err := parser.Parse("ALTER TABEL users ADD COLUMN x int;")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse error")
}

func TestParseStatements(t *testing.T) {
	t.Parallel()

	sql := "CREATE TABLE users (id bigint);\nALTER TABLE users ADD COLUMN email text;\n"
	res, err := parser.Parse(sql)
	require.NoError(t, err)
	require.Len(t, res.Statements, 2)

	assert.Equal(t, "CreateStmt", res.Statements[0].NodeKind)
	assert.Equal(t, "CREATE TABLE users (id bigint)", res.Statements[0].SQL)
	assert.Equal(t, 1, res.Statements[0].Line)

	assert.Equal(t, "AlterTableStmt", res.Statements[1].NodeKind)
	assert.Equal(t, "ALTER TABLE users ADD COLUMN email text", res.Statements[1].SQL)
	assert.Equal(t, 2, res.Statements[1].Line)
}

func TestParseStripsBOM(t *testing.T) {
	t.Parallel()

	res, err := parser.Parse("\xEF\xBB\xBFSELECT 1;")
	require.NoError(t, err)
	require.Len(t, res.Statements, 1)
	assert.Equal(t, "SELECT 1", res.Statements[0].SQL)
}

func TestParseNoTrailingSemicolon(t *testing.T) {
	t.Parallel()

	res, err := parser.Parse("DROP TABLE old_data")
	require.NoError(t, err)
	require.Len(t, res.Statements, 1)
	assert.Equal(t, "DROP TABLE old_data", res.Statements[0].SQL)
}

func TestSuppressionBare(t *testing.T) {
	t.Parallel()

	sql := "-- pgfence-ignore\nDROP TABLE old_data;\nDROP TABLE other;"
	res, err := parser.Parse(sql)
	require.NoError(t, err)
	require.Len(t, res.Statements, 2)

	assert.True(t, res.Statements[0].Suppresses("drop-table"))
	assert.True(t, res.Statements[0].Suppresses("anything-at-all"))

	// The directive must not bleed past the statement it precedes.
	assert.False(t, res.Statements[1].Suppresses("drop-table"))
}

func TestSuppressionListed(t *testing.T) {
	t.Parallel()

	sql := "-- pgfence-ignore: drop-table, prefer-robust-drop-table\nDROP TABLE old_data;"
	res, err := parser.Parse(sql)
	require.NoError(t, err)
	require.Len(t, res.Statements, 1)

	stmt := res.Statements[0]
	assert.True(t, stmt.Suppresses("drop-table"))
	assert.True(t, stmt.Suppresses("prefer-robust-drop-table"))
	assert.False(t, stmt.Suppresses("truncate"))
}

func TestSuppressionLegacyForm(t *testing.T) {
	t.Parallel()

	sql := "-- pgfence: ignore drop-table truncate\nDROP TABLE old_data;"
	res, err := parser.Parse(sql)
	require.NoError(t, err)
	require.Len(t, res.Statements, 1)

	assert.True(t, res.Statements[0].Suppresses("drop-table"))
	assert.True(t, res.Statements[0].Suppresses("truncate"))
	assert.False(t, res.Statements[0].Suppresses("rename-table"))
}

func TestSuppressionCaseInsensitive(t *testing.T) {
	t.Parallel()

	sql := "-- PGFENCE-IGNORE: Drop-Table\nDROP TABLE old_data;"
	res, err := parser.Parse(sql)
	require.NoError(t, err)
	require.Len(t, res.Statements, 1)
	assert.True(t, res.Statements[0].Suppresses("drop-table"))
}

func TestSuppressionAttachesToFollowingStatementOnly(t *testing.T) {
	t.Parallel()

	sql := "CREATE TABLE a (id int);\n-- pgfence-ignore: drop-table\nDROP TABLE b;\nDROP TABLE c;"
	res, err := parser.Parse(sql)
	require.NoError(t, err)
	require.Len(t, res.Statements, 3)

	assert.False(t, res.Statements[0].Suppresses("drop-table"))
	assert.True(t, res.Statements[1].Suppresses("drop-table"))
	assert.False(t, res.Statements[2].Suppresses("drop-table"))
}

func TestPreview(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		sql   string
		width int
		want  string
	}{
		{
			name:  "collapses whitespace",
			sql:   "ALTER TABLE users\n  ADD COLUMN   email text",
			width: 80,
			want:  "ALTER TABLE users ADD COLUMN email text",
		},
		{
			name:  "strips line comments",
			sql:   "DROP TABLE x -- gone\n",
			width: 80,
			want:  "DROP TABLE x",
		},
		{
			name:  "strips block comments",
			sql:   "DROP /* the old */ TABLE x",
			width: 80,
			want:  "DROP TABLE x",
		},
		{
			name:  "truncates with ellipsis",
			sql:   "SELECT aaaaaaaaaa, bbbbbbbbbb, cccccccccc",
			width: 20,
			want:  "SELECT aaaaaaaaaa, b...",
		},
		{
			name:  "keeps quoted dashes",
			sql:   "SELECT '--not a comment'",
			width: 80,
			want:  "SELECT '--not a comment'",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, parser.Preview(tt.sql, tt.width))
		})
	}
}
