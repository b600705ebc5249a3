package rules

import (
	"fmt"
	"strings"

	pg_query "github.com/pganalyze/pg_query_go/v6"

	"github.com/flvmnt/pgfence/internal/lock"
	"github.com/flvmnt/pgfence/internal/parser"
	"github.com/flvmnt/pgfence/internal/pgast"
	"github.com/flvmnt/pgfence/internal/rewrite"
	"github.com/flvmnt/pgfence/internal/risk"
)

// AlterColumnTypeRule grades ALTER COLUMN TYPE by how likely the conversion
// is to rewrite the table: widening to text or bare varchar is cheap,
// re-parameterising varchar/numeric may scan, and anything cross-family
// rewrites every row.
type AlterColumnTypeRule struct{}

func (r *AlterColumnTypeRule) ID() string { return "alter-column-type" }

func (r *AlterColumnTypeRule) Check(stmt parser.ParsedStatement, ctx *Context) []CheckResult {
	var findings []CheckResult
	forEachAlterCmd(stmt, func(alter *pg_query.AlterTableStmt, cmd *pg_query.AlterTableCmd) {
		if cmd.Subtype != pg_query.AlterTableType_AT_AlterColumnType || cmd.Def == nil {
			return
		}
		col := cmd.Def.GetColumnDef()
		if col == nil {
			return
		}

		table := pgast.TableName(alter.Relation)
		typeName := pgast.TypeNameString(col.TypeName)
		hasMods := pgast.TypeHasMods(col.TypeName)

		var c CheckResult
		switch {
		case typeName == "text" || (typeName == "varchar" && !hasMods):
			c = newCheck(stmt, ctx, r.ID(), table, lockPtr(lock.AccessExclusive), risk.Low,
				fmt.Sprintf("changing %s to %s is binary-coercible and metadata-only, but still takes a brief ACCESS EXCLUSIVE lock", cmd.Name, typeName))
			c.Rewrite = rewrite.MustFor("alter-column-type-note", rewrite.Meta{Table: table, Column: cmd.Name, Type: typeName})
			if r.snapshotConfirmsWidening(ctx, table, cmd.Name) {
				c.BaseRisk = risk.Safe
				c.Message += "; schema snapshot confirms the current column is a narrower varchar"
			}
		case (typeName == "varchar" || typeName == "numeric") && hasMods:
			c = newCheck(stmt, ctx, r.ID(), table, lockPtr(lock.AccessExclusive), risk.Medium,
				fmt.Sprintf("changing %s to %s may scan or rewrite the table when the new modifier is narrower", cmd.Name, typeDisplay(typeName, col.TypeName)))
			c.Rewrite = rewrite.MustFor(r.ID(), rewrite.Meta{Table: table, Column: cmd.Name, Type: typeDisplay(typeName, col.TypeName)})
			if typeName == "varchar" && r.snapshotConfirmsWidening(ctx, table, cmd.Name, widenTarget(col.TypeName)) {
				c.BaseRisk = risk.Safe
				c.Message = fmt.Sprintf("changing %s to %s widens the varchar; schema snapshot confirms no rewrite", cmd.Name, typeDisplay(typeName, col.TypeName))
			}
		default:
			c = newCheck(stmt, ctx, r.ID(), table, lockPtr(lock.AccessExclusive), risk.High,
				fmt.Sprintf("changing %s to %s rewrites the entire table and rebuilds its indexes under ACCESS EXCLUSIVE", cmd.Name, typeDisplay(typeName, col.TypeName)))
			c.Rewrite = rewrite.MustFor(r.ID(), rewrite.Meta{Table: table, Column: cmd.Name, Type: typeDisplay(typeName, col.TypeName)})
		}
		findings = append(findings, c)
	})
	return findings
}

// snapshotConfirmsWidening checks the optional schema snapshot: the column
// must currently be a varchar whose limit fits inside the new one (no limit
// argument means any varchar qualifies, as for text targets).
func (r *AlterColumnTypeRule) snapshotConfirmsWidening(ctx *Context, table, column string, newLimit ...int) bool {
	if ctx.Snapshot == nil {
		return false
	}
	col, ok := ctx.Snapshot.Column(table, column)
	if !ok {
		return false
	}
	if !strings.EqualFold(col.UdtName, "varchar") {
		return false
	}
	if len(newLimit) == 0 {
		return true
	}
	return col.CharacterMaximumLength != nil && *col.CharacterMaximumLength <= newLimit[0]
}

func widenTarget(tn *pg_query.TypeName) int {
	if n, ok := pgast.FirstTypeMod(tn); ok {
		return int(n)
	}
	return 0
}

func typeDisplay(name string, tn *pg_query.TypeName) string {
	if n, ok := pgast.FirstTypeMod(tn); ok {
		return fmt.Sprintf("%s(%d)", name, n)
	}
	return name
}

// SetNotNullRule flags ALTER COLUMN SET NOT NULL, which scans the whole
// table under ACCESS EXCLUSIVE unless a validated CHECK constraint already
// proves the invariant.
type SetNotNullRule struct{}

func (r *SetNotNullRule) ID() string { return "alter-column-set-not-null" }

func (r *SetNotNullRule) Check(stmt parser.ParsedStatement, ctx *Context) []CheckResult {
	var findings []CheckResult
	forEachAlterCmd(stmt, func(alter *pg_query.AlterTableStmt, cmd *pg_query.AlterTableCmd) {
		if cmd.Subtype != pg_query.AlterTableType_AT_SetNotNull {
			return
		}

		table := pgast.TableName(alter.Relation)
		c := newCheck(stmt, ctx, r.ID(), table, lockPtr(lock.AccessExclusive), risk.Medium,
			fmt.Sprintf("SET NOT NULL on %s scans the entire table under ACCESS EXCLUSIVE unless a validated CHECK constraint already proves it", cmd.Name))
		c.Rewrite = rewrite.MustFor(r.ID(), rewrite.Meta{Table: table, Column: cmd.Name})
		findings = append(findings, c)
	})
	return findings
}
