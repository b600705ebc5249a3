package pgast_test

import (
	"testing"

	pg_query "github.com/pganalyze/pg_query_go/v6"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flvmnt/pgfence/internal/pgast"
)

func parseOne(t *testing.T, sql string) *pg_query.Node {
	t.Helper()
	res, err := pg_query.Parse(sql)
	require.NoError(t, err)
	require.Len(t, res.Stmts, 1)
	return res.Stmts[0].Stmt
}

func TestNodeTag(t *testing.T) {
	t.Parallel()

	tests := []struct {
		sql  string
		want string
	}{
		{"ALTER TABLE t ADD COLUMN c int", "AlterTableStmt"},
		{"CREATE INDEX i ON t(c)", "IndexStmt"},
		{"DROP TABLE t", "DropStmt"},
		{"TRUNCATE t", "TruncateStmt"},
		{"BEGIN", "TransactionStmt"},
		{"SET lock_timeout = '2s'", "VariableSetStmt"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, pgast.NodeTag(parseOne(t, tt.sql)), tt.sql)
	}

	assert.Equal(t, "", pgast.NodeTag(nil))
}

func TestTableNameCaseFolds(t *testing.T) {
	t.Parallel()

	node := parseOne(t, `ALTER TABLE Billing."Users" ADD COLUMN c int`)
	alter := node.GetAlterTableStmt()
	require.NotNil(t, alter)
	assert.Equal(t, "billing.users", pgast.TableName(alter.Relation))

	assert.Equal(t, "", pgast.TableName(nil))
}

func TestTypeNameString(t *testing.T) {
	t.Parallel()

	tests := []struct {
		sql  string
		want string
	}{
		{"ALTER TABLE t ADD COLUMN c varchar(20)", "varchar"},
		{"ALTER TABLE t ADD COLUMN c int", "int4"},
		{"ALTER TABLE t ADD COLUMN c timestamp", "timestamp"},
		{"ALTER TABLE t ADD COLUMN c json", "json"},
	}

	for _, tt := range tests {
		alter := parseOne(t, tt.sql).GetAlterTableStmt()
		col := alter.Cmds[0].GetAlterTableCmd().Def.GetColumnDef()
		assert.Equal(t, tt.want, pgast.TypeNameString(col.TypeName), tt.sql)
	}
}

func TestTypeMods(t *testing.T) {
	t.Parallel()

	alter := parseOne(t, "ALTER TABLE t ADD COLUMN c varchar(20)").GetAlterTableStmt()
	col := alter.Cmds[0].GetAlterTableCmd().Def.GetColumnDef()
	assert.True(t, pgast.TypeHasMods(col.TypeName))
	n, ok := pgast.FirstTypeMod(col.TypeName)
	require.True(t, ok)
	assert.Equal(t, int32(20), n)

	alter = parseOne(t, "ALTER TABLE t ADD COLUMN c text").GetAlterTableStmt()
	col = alter.Cmds[0].GetAlterTableCmd().Def.GetColumnDef()
	assert.False(t, pgast.TypeHasMods(col.TypeName))
}

func TestIsConstantExpr(t *testing.T) {
	t.Parallel()

	defaultOf := func(sql string) *pg_query.Node {
		alter := parseOne(t, sql).GetAlterTableStmt()
		col := alter.Cmds[0].GetAlterTableCmd().Def.GetColumnDef()
		return pgast.DefaultExpr(col)
	}

	assert.True(t, pgast.IsConstantExpr(defaultOf("ALTER TABLE t ADD COLUMN c int DEFAULT 0")))
	assert.True(t, pgast.IsConstantExpr(defaultOf("ALTER TABLE t ADD COLUMN c text DEFAULT 'x'")))
	assert.True(t, pgast.IsConstantExpr(defaultOf("ALTER TABLE t ADD COLUMN c text DEFAULT 'x'::text")))
	assert.False(t, pgast.IsConstantExpr(defaultOf("ALTER TABLE t ADD COLUMN c timestamptz DEFAULT now()")))
	assert.False(t, pgast.IsConstantExpr(nil))
}

func TestDropObjectNames(t *testing.T) {
	t.Parallel()

	drop := parseOne(t, "DROP TABLE a, billing.b").GetDropStmt()
	require.NotNil(t, drop)
	assert.Equal(t, []string{"a", "billing.b"}, pgast.DropObjectNames(drop))
}

func TestQuoteIdentifier(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "users", pgast.QuoteIdentifier("users"))
	assert.Equal(t, `"user"`, pgast.QuoteIdentifier("user"))
	assert.Equal(t, `"Users"`, pgast.QuoteIdentifier("Users"))
	assert.Equal(t, `"odd""name"`, pgast.QuoteIdentifier(`odd"name`))
	assert.Equal(t, `billing."order"`, pgast.QuoteQualified("billing.order"))
}
