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

// AttachPartitionRule flags ATTACH PARTITION: without a pre-proven bound
// constraint the partition is scanned under ACCESS EXCLUSIVE.
type AttachPartitionRule struct{}

func (r *AttachPartitionRule) ID() string { return "attach-partition" }

func (r *AttachPartitionRule) Check(stmt parser.ParsedStatement, ctx *Context) []CheckResult {
	var findings []CheckResult
	forEachAlterCmd(stmt, func(alter *pg_query.AlterTableStmt, cmd *pg_query.AlterTableCmd) {
		if cmd.Subtype != pg_query.AlterTableType_AT_AttachPartition {
			return
		}

		parent := pgast.TableName(alter.Relation)
		part := partitionName(cmd)
		c := newCheck(stmt, ctx, r.ID(), parent, lockPtr(lock.AccessExclusive), risk.High,
			fmt.Sprintf("ATTACH PARTITION %s scans the partition to prove its bound while %s holds ACCESS EXCLUSIVE", part, parent))
		c.Rewrite = rewrite.MustFor(r.ID(), rewrite.Meta{Table: parent, Column: part})
		findings = append(findings, c)
	})
	return findings
}

// DetachPartitionRule distinguishes plain DETACH (ACCESS EXCLUSIVE on the
// parent) from DETACH CONCURRENTLY (SHARE UPDATE EXCLUSIVE).
type DetachPartitionRule struct{}

func (r *DetachPartitionRule) ID() string { return "detach-partition" }

func (r *DetachPartitionRule) Check(stmt parser.ParsedStatement, ctx *Context) []CheckResult {
	var findings []CheckResult
	forEachAlterCmd(stmt, func(alter *pg_query.AlterTableStmt, cmd *pg_query.AlterTableCmd) {
		if cmd.Subtype != pg_query.AlterTableType_AT_DetachPartition {
			return
		}

		parent := pgast.TableName(alter.Relation)
		part := partitionName(cmd)

		if partitionConcurrent(cmd) {
			c := newCheck(stmt, ctx, "detach-partition-concurrent", parent, lockPtr(lock.ShareUpdateExclusive), risk.Low,
				fmt.Sprintf("DETACH PARTITION %s CONCURRENTLY lets reads and writes proceed on %s", part, parent))
			findings = append(findings, c)
			return
		}

		c := newCheck(stmt, ctx, r.ID(), parent, lockPtr(lock.AccessExclusive), risk.High,
			fmt.Sprintf("DETACH PARTITION %s takes ACCESS EXCLUSIVE on %s and the partition", part, parent))
		c.Rewrite = rewrite.MustFor(r.ID(), rewrite.Meta{Table: parent, Column: part})
		findings = append(findings, c)
	})
	return findings
}

func partitionName(cmd *pg_query.AlterTableCmd) string {
	if cmd.Def == nil {
		return ""
	}
	if pc := cmd.Def.GetPartitionCmd(); pc != nil && pc.Name != nil {
		return pgast.TableName(pc.Name)
	}
	return ""
}

func partitionConcurrent(cmd *pg_query.AlterTableCmd) bool {
	if cmd.Def == nil {
		return false
	}
	pc := cmd.Def.GetPartitionCmd()
	return pc != nil && pc.Concurrent
}
