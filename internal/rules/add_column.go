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

// pgVersionInstantDefault is the first major version where ADD COLUMN with
// a constant DEFAULT is a metadata-only change.
const pgVersionInstantDefault = 11

// AddColumnNotNullRule flags ADD COLUMN NOT NULL without a DEFAULT, which
// fails outright on populated tables or forces a rewrite.
type AddColumnNotNullRule struct{}

func (r *AddColumnNotNullRule) ID() string { return "add-column-not-null-no-default" }

func (r *AddColumnNotNullRule) Check(stmt parser.ParsedStatement, ctx *Context) []CheckResult {
	var findings []CheckResult
	forEachAddedColumn(stmt, func(alter *pg_query.AlterTableStmt, col *pg_query.ColumnDef) {
		if pgast.ColumnConstraint(col, pg_query.ConstrType_CONSTR_NOTNULL) == nil {
			return
		}
		if pgast.DefaultExpr(col) != nil {
			return
		}

		table := pgast.TableName(alter.Relation)
		c := newCheck(stmt, ctx, r.ID(), table, lockPtr(lock.AccessExclusive), risk.High,
			fmt.Sprintf("ADD COLUMN %s NOT NULL without DEFAULT fails on any existing row and holds ACCESS EXCLUSIVE while scanning", col.Colname))
		c.Rewrite = rewrite.MustFor(r.ID(), rewrite.Meta{
			Table:  table,
			Column: col.Colname,
			Type:   pgast.TypeNameString(col.TypeName),
		})
		findings = append(findings, c)
	})
	return findings
}

// AddColumnConstantDefaultRule recognises the safe PG 11+ fast path: a
// DEFAULT that is a plain literal or a cast of a literal.
type AddColumnConstantDefaultRule struct{}

func (r *AddColumnConstantDefaultRule) ID() string { return "add-column-constant-default" }

func (r *AddColumnConstantDefaultRule) Check(stmt parser.ParsedStatement, ctx *Context) []CheckResult {
	if ctx.MinPGVersion < pgVersionInstantDefault {
		return nil
	}

	var findings []CheckResult
	forEachAddedColumn(stmt, func(alter *pg_query.AlterTableStmt, col *pg_query.ColumnDef) {
		def := pgast.DefaultExpr(col)
		if def == nil || !pgast.IsConstantExpr(def) {
			return
		}

		table := pgast.TableName(alter.Relation)
		c := newCheck(stmt, ctx, r.ID(), table, lockPtr(lock.AccessExclusive), risk.Low,
			fmt.Sprintf("ADD COLUMN %s with a constant DEFAULT is metadata-only on PostgreSQL %d+; the ACCESS EXCLUSIVE lock is held only for an instant", col.Colname, pgVersionInstantDefault))
		c.Rewrite = rewrite.MustFor(r.ID(), rewrite.Meta{Table: table, Column: col.Colname})
		findings = append(findings, c)
	})
	return findings
}

// AddColumnVolatileDefaultRule flags a DEFAULT that is anything beyond a
// literal or a single cast of one. The classifier is strictly syntactic.
type AddColumnVolatileDefaultRule struct{}

func (r *AddColumnVolatileDefaultRule) ID() string { return "add-column-non-constant-default" }

func (r *AddColumnVolatileDefaultRule) Check(stmt parser.ParsedStatement, ctx *Context) []CheckResult {
	if ctx.MinPGVersion < pgVersionInstantDefault {
		return nil
	}

	var findings []CheckResult
	forEachAddedColumn(stmt, func(alter *pg_query.AlterTableStmt, col *pg_query.ColumnDef) {
		def := pgast.DefaultExpr(col)
		if def == nil || pgast.IsConstantExpr(def) {
			return
		}

		table := pgast.TableName(alter.Relation)
		c := newCheck(stmt, ctx, r.ID(), table, lockPtr(lock.AccessExclusive), risk.High,
			fmt.Sprintf("ADD COLUMN %s with a non-constant DEFAULT rewrites the entire table under ACCESS EXCLUSIVE", col.Colname))
		c.Rewrite = rewrite.MustFor(r.ID(), rewrite.Meta{
			Table:   table,
			Column:  col.Colname,
			Type:    pgast.TypeNameString(col.TypeName),
			Default: parser.Preview(stmtExprText(def), 40),
		})
		findings = append(findings, c)
	})
	return findings
}

// AddColumnDefaultPrePG11Rule flags any DEFAULT when the migration must run
// on PostgreSQL older than 11, where every DEFAULT forces a rewrite.
type AddColumnDefaultPrePG11Rule struct{}

func (r *AddColumnDefaultPrePG11Rule) ID() string { return "add-column-default-pre-pg11" }

func (r *AddColumnDefaultPrePG11Rule) Check(stmt parser.ParsedStatement, ctx *Context) []CheckResult {
	if ctx.MinPGVersion >= pgVersionInstantDefault {
		return nil
	}

	var findings []CheckResult
	forEachAddedColumn(stmt, func(alter *pg_query.AlterTableStmt, col *pg_query.ColumnDef) {
		if pgast.DefaultExpr(col) == nil {
			return
		}

		table := pgast.TableName(alter.Relation)
		c := newCheck(stmt, ctx, r.ID(), table, lockPtr(lock.AccessExclusive), risk.High,
			fmt.Sprintf("ADD COLUMN %s with DEFAULT rewrites the entire table on PostgreSQL < %d", col.Colname, pgVersionInstantDefault))
		c.Rewrite = rewrite.MustFor(r.ID(), rewrite.Meta{
			Table:  table,
			Column: col.Colname,
			Type:   pgast.TypeNameString(col.TypeName),
		})
		findings = append(findings, c)
	})
	return findings
}

// AddColumnJSONRule suggests jsonb over json.
type AddColumnJSONRule struct{}

func (r *AddColumnJSONRule) ID() string { return "add-column-json" }

func (r *AddColumnJSONRule) Check(stmt parser.ParsedStatement, ctx *Context) []CheckResult {
	var findings []CheckResult
	forEachAddedColumn(stmt, func(alter *pg_query.AlterTableStmt, col *pg_query.ColumnDef) {
		if pgast.TypeNameString(col.TypeName) != "json" {
			return
		}

		c := newCheck(stmt, ctx, r.ID(), pgast.TableName(alter.Relation), lockPtr(lock.AccessExclusive), risk.Low,
			fmt.Sprintf("column %s uses json; jsonb supports indexing and is almost always the better choice", col.Colname))
		c.AppliesToNewTables = true
		findings = append(findings, c)
	})
	return findings
}

// AddColumnSerialRule flags serial pseudo-types, which hide a sequence and
// do not survive logical replication or identity-column tooling well.
type AddColumnSerialRule struct{}

func (r *AddColumnSerialRule) ID() string { return "add-column-serial" }

func (r *AddColumnSerialRule) Check(stmt parser.ParsedStatement, ctx *Context) []CheckResult {
	var findings []CheckResult
	forEachAddedColumn(stmt, func(alter *pg_query.AlterTableStmt, col *pg_query.ColumnDef) {
		if !pgast.IsSerialType(pgast.TypeNameString(col.TypeName)) {
			return
		}

		c := newCheck(stmt, ctx, r.ID(), pgast.TableName(alter.Relation), lockPtr(lock.AccessExclusive), risk.Medium,
			fmt.Sprintf("column %s uses a serial pseudo-type; adding it to an existing table backfills every row, and GENERATED AS IDENTITY is preferred", col.Colname))
		c.AppliesToNewTables = true
		findings = append(findings, c)
	})
	return findings
}

// AddColumnGeneratedRule flags GENERATED ... STORED columns, which compute
// and write a value for every existing row.
type AddColumnGeneratedRule struct{}

func (r *AddColumnGeneratedRule) ID() string { return "add-column-stored-generated" }

func (r *AddColumnGeneratedRule) Check(stmt parser.ParsedStatement, ctx *Context) []CheckResult {
	var findings []CheckResult
	forEachAddedColumn(stmt, func(alter *pg_query.AlterTableStmt, col *pg_query.ColumnDef) {
		if pgast.ColumnConstraint(col, pg_query.ConstrType_CONSTR_GENERATED) == nil {
			return
		}

		table := pgast.TableName(alter.Relation)
		c := newCheck(stmt, ctx, r.ID(), table, lockPtr(lock.AccessExclusive), risk.High,
			fmt.Sprintf("ADD COLUMN %s GENERATED ... STORED rewrites the entire table to materialise the expression", col.Colname))
		c.Rewrite = rewrite.MustFor(r.ID(), rewrite.Meta{
			Table:  table,
			Column: col.Colname,
			Type:   pgast.TypeNameString(col.TypeName),
		})
		findings = append(findings, c)
	})
	return findings
}

// stmtExprText renders a default expression for display. Only the shapes
// the classifier distinguishes are spelled out; anything deeper falls back
// to a placeholder.
func stmtExprText(node *pg_query.Node) string {
	if node == nil {
		return "..."
	}
	switch n := node.Node.(type) {
	case *pg_query.Node_AConst:
		return constText(n.AConst)
	case *pg_query.Node_TypeCast:
		if n.TypeCast.Arg != nil {
			if inner := n.TypeCast.Arg.GetAConst(); inner != nil {
				return constText(inner) + "::" + pgast.TypeNameString(n.TypeCast.TypeName)
			}
		}
		return "..."
	case *pg_query.Node_FuncCall:
		if len(n.FuncCall.Funcname) > 0 {
			if s := n.FuncCall.Funcname[len(n.FuncCall.Funcname)-1].GetString_(); s != nil {
				return s.Sval + "()"
			}
		}
		return "..."
	default:
		return "..."
	}
}

func constText(c *pg_query.A_Const) string {
	switch {
	case c == nil:
		return "..."
	case c.GetIval() != nil:
		return fmt.Sprintf("%d", c.GetIval().Ival)
	case c.GetFval() != nil:
		return c.GetFval().Fval
	case c.GetSval() != nil:
		return "'" + c.GetSval().Sval + "'"
	case c.GetBoolval() != nil:
		return fmt.Sprintf("%t", c.GetBoolval().Boolval)
	case c.Isnull:
		return "NULL"
	default:
		return "..."
	}
}
