package rules

import (
	pg_query "github.com/pganalyze/pg_query_go/v6"

	"github.com/flvmnt/pgfence/internal/lock"
	"github.com/flvmnt/pgfence/internal/parser"
	"github.com/flvmnt/pgfence/internal/risk"
)

// newCheck assembles a CheckResult with the preview and blocked-operations
// triple filled in.
func newCheck(stmt parser.ParsedStatement, ctx *Context, ruleID, table string, mode *lock.Mode, base risk.Level, message string) CheckResult {
	c := CheckResult{
		Statement: stmt.SQL,
		Preview:   parser.Preview(stmt.SQL, ctx.PreviewWidth),
		Table:     table,
		Lock:      mode,
		BaseRisk:  base,
		Message:   message,
		RuleID:    ruleID,
	}
	if mode != nil {
		c.Blocked = lock.BlockedOps(*mode)
	}
	return c
}

func lockPtr(m lock.Mode) *lock.Mode { return &m }

// forEachAlterCmd walks the subcommands of an ALTER TABLE statement,
// yielding the statement and each typed command.
func forEachAlterCmd(stmt parser.ParsedStatement, fn func(alter *pg_query.AlterTableStmt, cmd *pg_query.AlterTableCmd)) {
	if stmt.Stmt == nil {
		return
	}
	alter := stmt.Stmt.GetAlterTableStmt()
	if alter == nil {
		return
	}
	for _, n := range alter.Cmds {
		if cmd := n.GetAlterTableCmd(); cmd != nil {
			fn(alter, cmd)
		}
	}
}

// forEachAddedColumn yields every column definition added by an ALTER TABLE
// ... ADD COLUMN subcommand.
func forEachAddedColumn(stmt parser.ParsedStatement, fn func(alter *pg_query.AlterTableStmt, col *pg_query.ColumnDef)) {
	forEachAlterCmd(stmt, func(alter *pg_query.AlterTableStmt, cmd *pg_query.AlterTableCmd) {
		if cmd.Subtype != pg_query.AlterTableType_AT_AddColumn || cmd.Def == nil {
			return
		}
		if col := cmd.Def.GetColumnDef(); col != nil {
			fn(alter, col)
		}
	})
}

// forEachCreatedColumn yields every column definition in a CREATE TABLE.
func forEachCreatedColumn(stmt parser.ParsedStatement, fn func(create *pg_query.CreateStmt, col *pg_query.ColumnDef)) {
	if stmt.Stmt == nil {
		return
	}
	create := stmt.Stmt.GetCreateStmt()
	if create == nil {
		return
	}
	for _, n := range create.TableElts {
		if col := n.GetColumnDef(); col != nil {
			fn(create, col)
		}
	}
}

// addedConstraint returns the constraint added by an AT_AddConstraint
// subcommand, or nil.
func addedConstraint(cmd *pg_query.AlterTableCmd) *pg_query.Constraint {
	if cmd.Subtype != pg_query.AlterTableType_AT_AddConstraint || cmd.Def == nil {
		return nil
	}
	return cmd.Def.GetConstraint()
}
