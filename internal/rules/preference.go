package rules

import (
	"fmt"

	pg_query "github.com/pganalyze/pg_query_go/v6"

	"github.com/flvmnt/pgfence/internal/parser"
	"github.com/flvmnt/pgfence/internal/pgast"
	"github.com/flvmnt/pgfence/internal/rewrite"
	"github.com/flvmnt/pgfence/internal/risk"
)

// forEachColumnDef yields column definitions from both CREATE TABLE and
// ALTER TABLE ... ADD COLUMN, with the owning table name. The schema
// hygiene rules below look at both shapes.
func forEachColumnDef(stmt parser.ParsedStatement, fn func(table string, col *pg_query.ColumnDef)) {
	forEachCreatedColumn(stmt, func(create *pg_query.CreateStmt, col *pg_query.ColumnDef) {
		fn(pgast.TableName(create.Relation), col)
	})
	forEachAddedColumn(stmt, func(alter *pg_query.AlterTableStmt, col *pg_query.ColumnDef) {
		fn(pgast.TableName(alter.Relation), col)
	})
}

// PreferBigintRule nudges integer key columns toward bigint.
type PreferBigintRule struct{}

func (r *PreferBigintRule) ID() string { return "prefer-bigint-over-int" }

func (r *PreferBigintRule) Check(stmt parser.ParsedStatement, ctx *Context) []CheckResult {
	var findings []CheckResult
	forEachColumnDef(stmt, func(table string, col *pg_query.ColumnDef) {
		if !pgast.IsNarrowIntType(pgast.TypeNameString(col.TypeName)) {
			return
		}

		c := newCheck(stmt, ctx, r.ID(), table, nil, risk.Low,
			fmt.Sprintf("column %s uses a 32-bit integer; an overflow later forces a full-table rewrite to widen it", col.Colname))
		c.AppliesToNewTables = true
		c.Rewrite = rewrite.MustFor(r.ID(), rewrite.Meta{Table: table, Column: col.Colname})
		findings = append(findings, c)
	})
	return findings
}

// PreferTextRule nudges parameterised varchar toward text.
type PreferTextRule struct{}

func (r *PreferTextRule) ID() string { return "prefer-text-field" }

func (r *PreferTextRule) Check(stmt parser.ParsedStatement, ctx *Context) []CheckResult {
	var findings []CheckResult
	forEachColumnDef(stmt, func(table string, col *pg_query.ColumnDef) {
		if pgast.TypeNameString(col.TypeName) != "varchar" || !pgast.TypeHasMods(col.TypeName) {
			return
		}

		c := newCheck(stmt, ctx, r.ID(), table, nil, risk.Low,
			fmt.Sprintf("column %s uses varchar with a length limit; changing the limit later takes a lock", col.Colname))
		c.AppliesToNewTables = true
		c.Rewrite = rewrite.MustFor(r.ID(), rewrite.Meta{Table: table, Column: col.Colname})
		findings = append(findings, c)
	})
	return findings
}

// PreferTimestamptzRule nudges timestamp toward timestamptz.
type PreferTimestamptzRule struct{}

func (r *PreferTimestamptzRule) ID() string { return "prefer-timestamptz" }

func (r *PreferTimestamptzRule) Check(stmt parser.ParsedStatement, ctx *Context) []CheckResult {
	var findings []CheckResult
	forEachColumnDef(stmt, func(table string, col *pg_query.ColumnDef) {
		if pgast.TypeNameString(col.TypeName) != "timestamp" {
			return
		}

		c := newCheck(stmt, ctx, r.ID(), table, nil, risk.Low,
			fmt.Sprintf("column %s uses timestamp without time zone; cross-region comparisons silently drift", col.Colname))
		c.AppliesToNewTables = true
		c.Rewrite = rewrite.MustFor(r.ID(), rewrite.Meta{Table: table, Column: col.Colname})
		findings = append(findings, c)
	})
	return findings
}
