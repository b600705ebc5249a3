package rules

import (
	"fmt"

	pg_query "github.com/pganalyze/pg_query_go/v6"

	"github.com/flvmnt/pgfence/internal/lock"
	"github.com/flvmnt/pgfence/internal/parser"
	"github.com/flvmnt/pgfence/internal/pgast"
	"github.com/flvmnt/pgfence/internal/rewrite"
	"github.com/flvmnt/pgfence/internal/risk"
)

// RenameRule covers RENAME COLUMN (metadata-only, but breaks readers) and
// RENAME TABLE (breaks every reader at once).
type RenameRule struct{}

func (r *RenameRule) ID() string { return "rename-table" }

func (r *RenameRule) Check(stmt parser.ParsedStatement, ctx *Context) []CheckResult {
	if stmt.Stmt == nil {
		return nil
	}
	rename := stmt.Stmt.GetRenameStmt()
	if rename == nil {
		return nil
	}

	table := pgast.TableName(rename.Relation)

	switch rename.RenameType {
	case pg_query.ObjectType_OBJECT_COLUMN:
		c := newCheck(stmt, ctx, "rename-column", table, lockPtr(lock.AccessExclusive), risk.Low,
			fmt.Sprintf("RENAME COLUMN %s is metadata-only but breaks queries still using the old name; coordinate the deploy", rename.Subname))
		c.Rewrite = rewrite.MustFor("rename-column", rewrite.Meta{Table: table, Column: rename.Subname})
		return []CheckResult{c}
	case pg_query.ObjectType_OBJECT_TABLE:
		c := newCheck(stmt, ctx, r.ID(), table, lockPtr(lock.AccessExclusive), risk.High,
			fmt.Sprintf("RENAME TABLE %s to %s breaks every query using the old name the moment it commits", table, rename.Newname))
		c.Rewrite = rewrite.MustFor(r.ID(), rewrite.Meta{Table: table})
		return []CheckResult{c}
	default:
		return nil
	}
}

// DropTableRule flags DROP TABLE: irreversible data loss.
type DropTableRule struct{}

func (r *DropTableRule) ID() string { return "drop-table" }

func (r *DropTableRule) Check(stmt parser.ParsedStatement, ctx *Context) []CheckResult {
	if stmt.Stmt == nil {
		return nil
	}
	drop := stmt.Stmt.GetDropStmt()
	if drop == nil || drop.RemoveType != pg_query.ObjectType_OBJECT_TABLE {
		return nil
	}

	var findings []CheckResult
	for _, name := range pgast.DropObjectNames(drop) {
		c := newCheck(stmt, ctx, r.ID(), name, lockPtr(lock.AccessExclusive), risk.Critical,
			fmt.Sprintf("DROP TABLE %s irreversibly destroys the table and its data", name))
		c.Rewrite = rewrite.MustFor(r.ID(), rewrite.Meta{Table: name})
		findings = append(findings, c)
	}
	return findings
}

// DropColumnRule flags DROP COLUMN: the data is gone and concurrent
// readers of the column start failing immediately.
type DropColumnRule struct{}

func (r *DropColumnRule) ID() string { return "drop-column" }

func (r *DropColumnRule) Check(stmt parser.ParsedStatement, ctx *Context) []CheckResult {
	var findings []CheckResult
	forEachAlterCmd(stmt, func(alter *pg_query.AlterTableStmt, cmd *pg_query.AlterTableCmd) {
		if cmd.Subtype != pg_query.AlterTableType_AT_DropColumn {
			return
		}

		table := pgast.TableName(alter.Relation)
		c := newCheck(stmt, ctx, r.ID(), table, lockPtr(lock.AccessExclusive), risk.High,
			fmt.Sprintf("DROP COLUMN %s destroys the data and breaks queries still selecting it", cmd.Name))
		c.Rewrite = rewrite.MustFor(r.ID(), rewrite.Meta{Table: table, Column: cmd.Name})
		findings = append(findings, c)
	})
	return findings
}
