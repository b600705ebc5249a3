package rules

import (
	"fmt"

	"github.com/flvmnt/pgfence/internal/lock"
	"github.com/flvmnt/pgfence/internal/parser"
	"github.com/flvmnt/pgfence/internal/pgast"
	"github.com/flvmnt/pgfence/internal/rewrite"
	"github.com/flvmnt/pgfence/internal/risk"
)

// pgVersionEnumInTx is the first major version where ALTER TYPE ADD VALUE
// may run inside a transaction and takes only SHARE UPDATE EXCLUSIVE.
const pgVersionEnumInTx = 12

// AlterEnumRule grades ALTER TYPE ... ADD VALUE by target version.
type AlterEnumRule struct{}

func (r *AlterEnumRule) ID() string { return "alter-enum-add-value" }

func (r *AlterEnumRule) Check(stmt parser.ParsedStatement, ctx *Context) []CheckResult {
	if stmt.Stmt == nil {
		return nil
	}
	alter := stmt.Stmt.GetAlterEnumStmt()
	if alter == nil {
		return nil
	}

	typeName := pgast.QualifiedName(alter.TypeName)

	if ctx.MinPGVersion >= pgVersionEnumInTx {
		c := newCheck(stmt, ctx, r.ID(), "", lockPtr(lock.ShareUpdateExclusive), risk.Low,
			fmt.Sprintf("ALTER TYPE %s ADD VALUE is safe on PostgreSQL %d+; it takes only SHARE UPDATE EXCLUSIVE on the type", typeName, pgVersionEnumInTx))
		c.Rewrite = rewrite.MustFor(r.ID(), rewrite.Meta{Type: typeName})
		return []CheckResult{c}
	}

	c := newCheck(stmt, ctx, r.ID(), "", lockPtr(lock.AccessExclusive), risk.Medium,
		fmt.Sprintf("ALTER TYPE %s ADD VALUE cannot run inside a transaction before PostgreSQL %d", typeName, pgVersionEnumInTx))
	c.Rewrite = rewrite.MustFor(r.ID(), rewrite.Meta{Type: typeName})
	return []CheckResult{c}
}
