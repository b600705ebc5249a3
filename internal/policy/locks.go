package policy

import (
	pg_query "github.com/pganalyze/pg_query_go/v6"

	"github.com/flvmnt/pgfence/internal/lock"
	"github.com/flvmnt/pgfence/internal/pgast"
)

// tableLock pairs a target table with the mode a statement acquires on it.
type tableLock struct {
	table string
	mode  lock.Mode
}

// alterSubtypeDangerous lists the ALTER TABLE subtypes that hold ACCESS
// EXCLUSIVE for a meaningful window. ADD COLUMN, VALIDATE CONSTRAINT,
// trigger toggles, and concurrent DETACH are deliberately absent: their
// acquisitions are brief or weaker.
var alterSubtypeDangerous = map[pg_query.AlterTableType]bool{
	pg_query.AlterTableType_AT_DropColumn:      true,
	pg_query.AlterTableType_AT_AlterColumnType: true,
	pg_query.AlterTableType_AT_SetNotNull:      true,
	pg_query.AlterTableType_AT_DropConstraint:  true,
	pg_query.AlterTableType_AT_AttachPartition: true,
}

// isDangerous reports whether a statement counts as holding ACCESS
// EXCLUSIVE for compounding and wide-lock-window purposes.
func isDangerous(node *pg_query.Node) bool {
	if node == nil {
		return false
	}

	switch n := node.Node.(type) {
	case *pg_query.Node_AlterTableStmt:
		for _, cmd := range pgast.AlterTableCmds(n.AlterTableStmt) {
			if alterSubtypeDangerous[cmd.Subtype] {
				return true
			}
			if cmd.Subtype == pg_query.AlterTableType_AT_AddConstraint {
				if cmd.Def != nil {
					if con := cmd.Def.GetConstraint(); con != nil && !con.SkipValidation {
						return true
					}
				}
			}
			if cmd.Subtype == pg_query.AlterTableType_AT_DetachPartition {
				if pc := detachCmd(cmd); pc == nil || !pc.Concurrent {
					return true
				}
			}
		}
		return false
	case *pg_query.Node_DropStmt:
		switch n.DropStmt.RemoveType {
		case pg_query.ObjectType_OBJECT_TABLE,
			pg_query.ObjectType_OBJECT_INDEX,
			pg_query.ObjectType_OBJECT_TRIGGER:
			return !n.DropStmt.Concurrent
		}
		return false
	case *pg_query.Node_TruncateStmt, *pg_query.Node_RenameStmt, *pg_query.Node_CreateTrigStmt:
		return true
	case *pg_query.Node_ReindexStmt:
		for _, p := range n.ReindexStmt.Params {
			if d := p.GetDefElem(); d != nil && d.Defname == "concurrently" {
				return false
			}
		}
		return true
	case *pg_query.Node_RefreshMatViewStmt:
		return !n.RefreshMatViewStmt.Concurrent
	default:
		return false
	}
}

// alterCmdLock maps an ALTER TABLE subtype to the lock it acquires.
func alterCmdLock(cmd *pg_query.AlterTableCmd) lock.Mode {
	switch cmd.Subtype {
	case pg_query.AlterTableType_AT_ValidateConstraint:
		return lock.ShareUpdateExclusive
	case pg_query.AlterTableType_AT_DetachPartition:
		if pc := detachCmd(cmd); pc != nil && pc.Concurrent {
			return lock.ShareUpdateExclusive
		}
		return lock.AccessExclusive
	case pg_query.AlterTableType_AT_EnableTrig,
		pg_query.AlterTableType_AT_EnableAlwaysTrig,
		pg_query.AlterTableType_AT_EnableReplicaTrig,
		pg_query.AlterTableType_AT_DisableTrig,
		pg_query.AlterTableType_AT_EnableTrigAll,
		pg_query.AlterTableType_AT_DisableTrigAll,
		pg_query.AlterTableType_AT_EnableTrigUser,
		pg_query.AlterTableType_AT_DisableTrigUser:
		return lock.ShareRowExclusive
	default:
		return lock.AccessExclusive
	}
}

func detachCmd(cmd *pg_query.AlterTableCmd) *pg_query.PartitionCmd {
	if cmd.Def == nil {
		return nil
	}
	return cmd.Def.GetPartitionCmd()
}

// statementLocks computes the target tables and lock modes a statement
// acquires. Only the strongest mode per table survives in the state; the
// caller records each pair.
func statementLocks(node *pg_query.Node) []tableLock {
	if node == nil {
		return nil
	}

	switch n := node.Node.(type) {
	case *pg_query.Node_AlterTableStmt:
		table := pgast.TableName(n.AlterTableStmt.Relation)
		mode := lock.AccessShare
		for _, cmd := range pgast.AlterTableCmds(n.AlterTableStmt) {
			mode = lock.Strongest(mode, alterCmdLock(cmd))
		}
		return []tableLock{{table, mode}}
	case *pg_query.Node_IndexStmt:
		mode := lock.Share
		if n.IndexStmt.Concurrent {
			mode = lock.ShareUpdateExclusive
		}
		return []tableLock{{pgast.TableName(n.IndexStmt.Relation), mode}}
	case *pg_query.Node_TruncateStmt:
		var locks []tableLock
		for _, rel := range n.TruncateStmt.Relations {
			if rv := rel.GetRangeVar(); rv != nil {
				locks = append(locks, tableLock{pgast.TableName(rv), lock.AccessExclusive})
			}
		}
		return locks
	case *pg_query.Node_DropStmt:
		switch n.DropStmt.RemoveType {
		case pg_query.ObjectType_OBJECT_TABLE, pg_query.ObjectType_OBJECT_INDEX:
			var locks []tableLock
			for _, name := range pgast.DropObjectNames(n.DropStmt) {
				locks = append(locks, tableLock{name, lock.AccessExclusive})
			}
			return locks
		case pg_query.ObjectType_OBJECT_TRIGGER:
			// A trigger object is addressed as table.trigger; the lock
			// lands on the table, every name component except the last.
			var locks []tableLock
			for _, obj := range n.DropStmt.Objects {
				list := obj.GetList()
				if list == nil || len(list.Items) < 2 {
					continue
				}
				table := pgast.QualifiedName(list.Items[:len(list.Items)-1])
				if table != "" {
					locks = append(locks, tableLock{table, lock.AccessExclusive})
				}
			}
			return locks
		}
		return nil
	case *pg_query.Node_RenameStmt:
		return []tableLock{{pgast.TableName(n.RenameStmt.Relation), lock.AccessExclusive}}
	case *pg_query.Node_CreateTrigStmt:
		return []tableLock{{pgast.TableName(n.CreateTrigStmt.Relation), lock.AccessExclusive}}
	case *pg_query.Node_ReindexStmt:
		mode := lock.AccessExclusive
		for _, p := range n.ReindexStmt.Params {
			if d := p.GetDefElem(); d != nil && d.Defname == "concurrently" {
				mode = lock.ShareUpdateExclusive
			}
		}
		return []tableLock{{pgast.TableName(n.ReindexStmt.Relation), mode}}
	case *pg_query.Node_RefreshMatViewStmt:
		mode := lock.AccessExclusive
		if n.RefreshMatViewStmt.Concurrent {
			mode = lock.ShareUpdateExclusive
		}
		return []tableLock{{pgast.TableName(n.RefreshMatViewStmt.Relation), mode}}
	case *pg_query.Node_UpdateStmt:
		return []tableLock{{pgast.TableName(n.UpdateStmt.Relation), lock.RowExclusive}}
	case *pg_query.Node_DeleteStmt:
		return []tableLock{{pgast.TableName(n.DeleteStmt.Relation), lock.RowExclusive}}
	case *pg_query.Node_InsertStmt:
		return []tableLock{{pgast.TableName(n.InsertStmt.Relation), lock.RowExclusive}}
	default:
		return nil
	}
}
