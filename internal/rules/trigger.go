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

// CreateTriggerRule flags CREATE TRIGGER: a brief ACCESS EXCLUSIVE plus a
// permanent per-row cost on the table.
type CreateTriggerRule struct{}

func (r *CreateTriggerRule) ID() string { return "create-trigger" }

func (r *CreateTriggerRule) Check(stmt parser.ParsedStatement, ctx *Context) []CheckResult {
	if stmt.Stmt == nil {
		return nil
	}
	trig := stmt.Stmt.GetCreateTrigStmt()
	if trig == nil {
		return nil
	}

	table := pgast.TableName(trig.Relation)
	c := newCheck(stmt, ctx, r.ID(), table, lockPtr(lock.AccessExclusive), risk.Medium,
		fmt.Sprintf("CREATE TRIGGER %s takes ACCESS EXCLUSIVE on %s and adds work to every affected row", trig.Trigname, table))
	c.Rewrite = rewrite.MustFor(r.ID(), rewrite.Meta{Table: table, Constraint: trig.Trigname})
	return []CheckResult{c}
}

// DropTriggerRule flags DROP TRIGGER.
type DropTriggerRule struct{}

func (r *DropTriggerRule) ID() string { return "drop-trigger" }

func (r *DropTriggerRule) Check(stmt parser.ParsedStatement, ctx *Context) []CheckResult {
	if stmt.Stmt == nil {
		return nil
	}
	drop := stmt.Stmt.GetDropStmt()
	if drop == nil || drop.RemoveType != pg_query.ObjectType_OBJECT_TRIGGER {
		return nil
	}

	// A trigger object is addressed as table.trigger; the table is every
	// name component except the last.
	var findings []CheckResult
	for _, obj := range drop.Objects {
		list := obj.GetList()
		if list == nil || len(list.Items) < 2 {
			continue
		}
		table := pgast.QualifiedName(list.Items[:len(list.Items)-1])
		name := pgast.QualifiedName(list.Items[len(list.Items)-1:])

		c := newCheck(stmt, ctx, r.ID(), table, lockPtr(lock.AccessExclusive), risk.Medium,
			fmt.Sprintf("DROP TRIGGER %s takes ACCESS EXCLUSIVE on %s", name, table))
		c.Rewrite = rewrite.MustFor(r.ID(), rewrite.Meta{Table: table, Constraint: name})
		findings = append(findings, c)
	}
	return findings
}

// triggerToggleSubtypes covers every ENABLE/DISABLE TRIGGER variant.
var triggerToggleSubtypes = map[pg_query.AlterTableType]bool{
	pg_query.AlterTableType_AT_EnableTrig:        true,
	pg_query.AlterTableType_AT_EnableAlwaysTrig:  true,
	pg_query.AlterTableType_AT_EnableReplicaTrig: true,
	pg_query.AlterTableType_AT_DisableTrig:       true,
	pg_query.AlterTableType_AT_EnableTrigAll:     true,
	pg_query.AlterTableType_AT_DisableTrigAll:    true,
	pg_query.AlterTableType_AT_EnableTrigUser:    true,
	pg_query.AlterTableType_AT_DisableTrigUser:   true,
}

// TriggerToggleRule flags ENABLE/DISABLE TRIGGER, which takes
// SHARE ROW EXCLUSIVE rather than full ACCESS EXCLUSIVE.
type TriggerToggleRule struct{}

func (r *TriggerToggleRule) ID() string { return "enable-disable-trigger" }

func (r *TriggerToggleRule) Check(stmt parser.ParsedStatement, ctx *Context) []CheckResult {
	var findings []CheckResult
	forEachAlterCmd(stmt, func(alter *pg_query.AlterTableStmt, cmd *pg_query.AlterTableCmd) {
		if !triggerToggleSubtypes[cmd.Subtype] {
			return
		}

		table := pgast.TableName(alter.Relation)
		c := newCheck(stmt, ctx, r.ID(), table, lockPtr(lock.ShareRowExclusive), risk.Low,
			fmt.Sprintf("toggling triggers on %s takes SHARE ROW EXCLUSIVE; writes block briefly, reads proceed", table))
		findings = append(findings, c)
	})
	return findings
}
