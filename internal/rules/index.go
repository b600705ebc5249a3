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

// CreateIndexRule flags CREATE INDEX without CONCURRENTLY: the SHARE lock
// blocks every write for the duration of the build.
type CreateIndexRule struct{}

func (r *CreateIndexRule) ID() string { return "create-index-not-concurrent" }

func (r *CreateIndexRule) Check(stmt parser.ParsedStatement, ctx *Context) []CheckResult {
	if stmt.Stmt == nil {
		return nil
	}
	idx := stmt.Stmt.GetIndexStmt()
	if idx == nil || idx.Concurrent {
		return nil
	}

	table := pgast.TableName(idx.Relation)
	c := newCheck(stmt, ctx, r.ID(), table, lockPtr(lock.Share), risk.Medium,
		fmt.Sprintf("CREATE INDEX %s without CONCURRENTLY holds SHARE, blocking all writes to %s for the whole build", idx.Idxname, table))
	c.Rewrite = rewrite.MustFor(r.ID(), rewrite.Meta{Table: table, Index: idx.Idxname})
	return []CheckResult{c}
}

// DropIndexRule flags DROP INDEX without CONCURRENTLY.
type DropIndexRule struct{}

func (r *DropIndexRule) ID() string { return "drop-index-not-concurrent" }

func (r *DropIndexRule) Check(stmt parser.ParsedStatement, ctx *Context) []CheckResult {
	if stmt.Stmt == nil {
		return nil
	}
	drop := stmt.Stmt.GetDropStmt()
	if drop == nil || drop.RemoveType != pg_query.ObjectType_OBJECT_INDEX || drop.Concurrent {
		return nil
	}

	var findings []CheckResult
	for _, name := range pgast.DropObjectNames(drop) {
		c := newCheck(stmt, ctx, r.ID(), "", lockPtr(lock.AccessExclusive), risk.Medium,
			fmt.Sprintf("DROP INDEX %s without CONCURRENTLY takes ACCESS EXCLUSIVE on the parent table", name))
		c.Rewrite = rewrite.MustFor(r.ID(), rewrite.Meta{Index: name})
		findings = append(findings, c)
	}
	return findings
}

// RobustDDLRule suggests idempotency clauses so a partially applied
// migration can be retried: IF NOT EXISTS on creates, IF EXISTS on drops.
type RobustDDLRule struct{}

func (r *RobustDDLRule) ID() string { return "prefer-robust-ddl" }

func (r *RobustDDLRule) Check(stmt parser.ParsedStatement, ctx *Context) []CheckResult {
	if stmt.Stmt == nil {
		return nil
	}

	if create := stmt.Stmt.GetCreateStmt(); create != nil && !create.IfNotExists {
		c := newCheck(stmt, ctx, "prefer-robust-create-table", pgast.TableName(create.Relation), nil, risk.Low,
			"CREATE TABLE without IF NOT EXISTS fails if a retried migration already created the table")
		c.Rewrite = rewrite.MustFor(r.ID(), rewrite.Meta{Table: pgast.TableName(create.Relation)})
		return []CheckResult{c}
	}

	if idx := stmt.Stmt.GetIndexStmt(); idx != nil && !idx.IfNotExists {
		c := newCheck(stmt, ctx, "prefer-robust-create-index", pgast.TableName(idx.Relation), nil, risk.Low,
			"CREATE INDEX without IF NOT EXISTS fails if a retried migration already created the index")
		c.Rewrite = rewrite.MustFor(r.ID(), rewrite.Meta{Table: pgast.TableName(idx.Relation)})
		return []CheckResult{c}
	}

	if drop := stmt.Stmt.GetDropStmt(); drop != nil && !drop.MissingOk {
		var id string
		switch drop.RemoveType {
		case pg_query.ObjectType_OBJECT_TABLE:
			id = "prefer-robust-drop-table"
		case pg_query.ObjectType_OBJECT_INDEX:
			id = "prefer-robust-drop-index"
		default:
			return nil
		}
		table := strings.Join(pgast.DropObjectNames(drop), ", ")
		c := newCheck(stmt, ctx, id, "", nil, risk.Low,
			fmt.Sprintf("%s on %s without IF EXISTS fails when the object is already gone", strings.ToUpper(strings.ReplaceAll(strings.TrimPrefix(id, "prefer-robust-"), "-", " ")), table))
		c.Rewrite = rewrite.MustFor(r.ID(), rewrite.Meta{Table: table})
		return []CheckResult{c}
	}

	return nil
}
