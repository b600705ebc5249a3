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

// TruncateRule flags TRUNCATE: ACCESS EXCLUSIVE, not MVCC-safe, and with
// CASCADE it silently empties every referencing table too.
type TruncateRule struct{}

func (r *TruncateRule) ID() string { return "truncate" }

func (r *TruncateRule) Check(stmt parser.ParsedStatement, ctx *Context) []CheckResult {
	if stmt.Stmt == nil {
		return nil
	}
	trunc := stmt.Stmt.GetTruncateStmt()
	if trunc == nil {
		return nil
	}

	cascade := trunc.Behavior == pg_query.DropBehavior_DROP_CASCADE

	var findings []CheckResult
	for _, rel := range trunc.Relations {
		rv := rel.GetRangeVar()
		if rv == nil {
			continue
		}
		table := pgast.TableName(rv)

		c := newCheck(stmt, ctx, r.ID(), table, lockPtr(lock.AccessExclusive), risk.Critical,
			fmt.Sprintf("TRUNCATE %s destroys all rows under ACCESS EXCLUSIVE and is not MVCC-safe", table))
		c.Rewrite = rewrite.MustFor(r.ID(), rewrite.Meta{Table: table})
		findings = append(findings, c)

		if cascade {
			cc := newCheck(stmt, ctx, "truncate-cascade", table, lockPtr(lock.AccessExclusive), risk.Critical,
				fmt.Sprintf("TRUNCATE %s CASCADE also empties every table with a foreign key onto it", table))
			cc.Rewrite = rewrite.MustFor("truncate-cascade", rewrite.Meta{Table: table})
			findings = append(findings, cc)
		}
	}
	return findings
}

// DeleteWithoutWhereRule flags DELETE with no WHERE clause.
type DeleteWithoutWhereRule struct{}

func (r *DeleteWithoutWhereRule) ID() string { return "delete-without-where" }

func (r *DeleteWithoutWhereRule) Check(stmt parser.ParsedStatement, ctx *Context) []CheckResult {
	if stmt.Stmt == nil {
		return nil
	}
	del := stmt.Stmt.GetDeleteStmt()
	if del == nil || del.WhereClause != nil {
		return nil
	}

	table := pgast.TableName(del.Relation)
	c := newCheck(stmt, ctx, r.ID(), table, lockPtr(lock.RowExclusive), risk.High,
		fmt.Sprintf("DELETE FROM %s without WHERE removes every row and bloats the table with dead tuples", table))
	c.Rewrite = rewrite.MustFor(r.ID(), rewrite.Meta{Table: table})
	return []CheckResult{c}
}
