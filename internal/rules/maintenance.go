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

// VacuumFullRule flags VACUUM FULL, which rewrites the table under
// ACCESS EXCLUSIVE. Plain VACUUM is left alone.
type VacuumFullRule struct{}

func (r *VacuumFullRule) ID() string { return "vacuum-full" }

func (r *VacuumFullRule) Check(stmt parser.ParsedStatement, ctx *Context) []CheckResult {
	if stmt.Stmt == nil {
		return nil
	}
	vac := stmt.Stmt.GetVacuumStmt()
	if vac == nil || !vac.IsVacuumcmd || !vacuumHasOption(vac, "full") {
		return nil
	}

	table := firstVacuumTable(vac)
	c := newCheck(stmt, ctx, r.ID(), table, lockPtr(lock.AccessExclusive), risk.High,
		"VACUUM FULL rewrites the table under ACCESS EXCLUSIVE; use pg_repack or plain VACUUM instead")
	c.Rewrite = rewrite.MustFor(r.ID(), rewrite.Meta{Table: table})
	return []CheckResult{c}
}

func vacuumHasOption(vac *pg_query.VacuumStmt, name string) bool {
	for _, opt := range vac.Options {
		if d := opt.GetDefElem(); d != nil && strings.EqualFold(d.Defname, name) {
			return true
		}
	}
	return false
}

func firstVacuumTable(vac *pg_query.VacuumStmt) string {
	for _, rel := range vac.Rels {
		if vr := rel.GetVacuumRelation(); vr != nil && vr.Relation != nil {
			return pgast.TableName(vr.Relation)
		}
	}
	return ""
}

// ReindexRule flags non-concurrent REINDEX. Whole-schema, database, and
// system variants escalate to CRITICAL: every table is touched.
type ReindexRule struct{}

func (r *ReindexRule) ID() string { return "reindex-non-concurrent" }

func (r *ReindexRule) Check(stmt parser.ParsedStatement, ctx *Context) []CheckResult {
	if stmt.Stmt == nil {
		return nil
	}
	re := stmt.Stmt.GetReindexStmt()
	if re == nil || reindexConcurrent(re) {
		return nil
	}

	base := risk.High
	scope := "index"
	switch re.Kind {
	case pg_query.ReindexObjectType_REINDEX_OBJECT_SCHEMA:
		base, scope = risk.Critical, "schema"
	case pg_query.ReindexObjectType_REINDEX_OBJECT_DATABASE:
		base, scope = risk.Critical, "database"
	case pg_query.ReindexObjectType_REINDEX_OBJECT_SYSTEM:
		base, scope = risk.Critical, "system catalogs"
	case pg_query.ReindexObjectType_REINDEX_OBJECT_TABLE:
		scope = "table"
	}

	table := pgast.TableName(re.Relation)
	name := re.Name
	if name == "" {
		name = table
	}

	c := newCheck(stmt, ctx, r.ID(), table, lockPtr(lock.AccessExclusive), base,
		fmt.Sprintf("REINDEX of %s %s without CONCURRENTLY takes ACCESS EXCLUSIVE for the whole rebuild", scope, name))
	c.Rewrite = rewrite.MustFor(r.ID(), rewrite.Meta{Table: table, Index: name})
	return []CheckResult{c}
}

func reindexConcurrent(re *pg_query.ReindexStmt) bool {
	for _, p := range re.Params {
		if d := p.GetDefElem(); d != nil && strings.EqualFold(d.Defname, "concurrently") {
			return true
		}
	}
	return false
}

// RefreshMatViewRule grades REFRESH MATERIALIZED VIEW: concurrent refresh
// only takes SHARE UPDATE EXCLUSIVE, a blocking refresh locks out readers.
type RefreshMatViewRule struct{}

func (r *RefreshMatViewRule) ID() string { return "refresh-matview-blocking" }

func (r *RefreshMatViewRule) Check(stmt parser.ParsedStatement, ctx *Context) []CheckResult {
	if stmt.Stmt == nil {
		return nil
	}
	refresh := stmt.Stmt.GetRefreshMatViewStmt()
	if refresh == nil {
		return nil
	}

	view := pgast.TableName(refresh.Relation)

	if refresh.Concurrent {
		c := newCheck(stmt, ctx, "refresh-matview-concurrent", view, lockPtr(lock.ShareUpdateExclusive), risk.Low,
			fmt.Sprintf("REFRESH MATERIALIZED VIEW CONCURRENTLY %s lets readers proceed; requires a unique index", view))
		return []CheckResult{c}
	}

	base := risk.High
	if refresh.SkipData {
		base = risk.Medium
	}
	c := newCheck(stmt, ctx, r.ID(), view, lockPtr(lock.AccessExclusive), base,
		fmt.Sprintf("REFRESH MATERIALIZED VIEW %s blocks all readers of the view until the refresh completes", view))
	c.Rewrite = rewrite.MustFor(r.ID(), rewrite.Meta{Table: view})
	return []CheckResult{c}
}
