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

// AddForeignKeyRule flags ADD FOREIGN KEY without NOT VALID: validation
// scans both tables while the referencing table holds ACCESS EXCLUSIVE.
type AddForeignKeyRule struct{}

func (r *AddForeignKeyRule) ID() string { return "add-constraint-fk-no-not-valid" }

func (r *AddForeignKeyRule) Check(stmt parser.ParsedStatement, ctx *Context) []CheckResult {
	var findings []CheckResult
	forEachAlterCmd(stmt, func(alter *pg_query.AlterTableStmt, cmd *pg_query.AlterTableCmd) {
		con := addedConstraint(cmd)
		if con == nil || con.Contype != pg_query.ConstrType_CONSTR_FOREIGN || con.SkipValidation {
			return
		}

		table := pgast.TableName(alter.Relation)
		c := newCheck(stmt, ctx, r.ID(), table, lockPtr(lock.AccessExclusive), risk.High,
			fmt.Sprintf("ADD CONSTRAINT %s FOREIGN KEY without NOT VALID scans the table while holding ACCESS EXCLUSIVE", con.Conname))
		c.Rewrite = rewrite.MustFor(r.ID(), rewrite.Meta{Table: table, Constraint: con.Conname})
		findings = append(findings, c)
	})
	return findings
}

// AddCheckRule flags ADD CHECK without NOT VALID.
type AddCheckRule struct{}

func (r *AddCheckRule) ID() string { return "add-constraint-check-no-not-valid" }

func (r *AddCheckRule) Check(stmt parser.ParsedStatement, ctx *Context) []CheckResult {
	var findings []CheckResult
	forEachAlterCmd(stmt, func(alter *pg_query.AlterTableStmt, cmd *pg_query.AlterTableCmd) {
		con := addedConstraint(cmd)
		if con == nil || con.Contype != pg_query.ConstrType_CONSTR_CHECK || con.SkipValidation {
			return
		}

		table := pgast.TableName(alter.Relation)
		c := newCheck(stmt, ctx, r.ID(), table, lockPtr(lock.AccessExclusive), risk.Medium,
			fmt.Sprintf("ADD CONSTRAINT %s CHECK without NOT VALID scans the entire table under ACCESS EXCLUSIVE", con.Conname))
		c.Rewrite = rewrite.MustFor(r.ID(), rewrite.Meta{Table: table, Constraint: con.Conname})
		findings = append(findings, c)
	})
	return findings
}

// AddUniqueRule distinguishes UNIQUE constraints attached to a pre-built
// index (cheap) from ones that build the index under the lock (expensive).
type AddUniqueRule struct{}

func (r *AddUniqueRule) ID() string { return "add-constraint-unique" }

func (r *AddUniqueRule) Check(stmt parser.ParsedStatement, ctx *Context) []CheckResult {
	var findings []CheckResult
	forEachAlterCmd(stmt, func(alter *pg_query.AlterTableStmt, cmd *pg_query.AlterTableCmd) {
		con := addedConstraint(cmd)
		if con == nil || con.Contype != pg_query.ConstrType_CONSTR_UNIQUE {
			return
		}

		table := pgast.TableName(alter.Relation)
		if con.Indexname != "" {
			c := newCheck(stmt, ctx, "add-constraint-unique-using-index", table, lockPtr(lock.AccessExclusive), risk.Low,
				fmt.Sprintf("ADD UNIQUE USING INDEX %s promotes an existing index; the ACCESS EXCLUSIVE window is brief", con.Indexname))
			findings = append(findings, c)
			return
		}

		c := newCheck(stmt, ctx, r.ID(), table, lockPtr(lock.AccessExclusive), risk.High,
			fmt.Sprintf("ADD CONSTRAINT %s UNIQUE builds the index while holding ACCESS EXCLUSIVE, blocking all access for the whole build", con.Conname))
		c.Rewrite = rewrite.MustFor(r.ID(), rewrite.Meta{Table: table, Constraint: con.Conname})
		findings = append(findings, c)
	})
	return findings
}

// AddPrimaryKeyRule mirrors AddUniqueRule for PRIMARY KEY constraints.
type AddPrimaryKeyRule struct{}

func (r *AddPrimaryKeyRule) ID() string { return "add-pk-without-using-index" }

func (r *AddPrimaryKeyRule) Check(stmt parser.ParsedStatement, ctx *Context) []CheckResult {
	var findings []CheckResult
	forEachAlterCmd(stmt, func(alter *pg_query.AlterTableStmt, cmd *pg_query.AlterTableCmd) {
		con := addedConstraint(cmd)
		if con == nil || con.Contype != pg_query.ConstrType_CONSTR_PRIMARY {
			return
		}

		table := pgast.TableName(alter.Relation)
		if con.Indexname != "" {
			c := newCheck(stmt, ctx, "add-pk-using-index", table, lockPtr(lock.AccessExclusive), risk.Low,
				fmt.Sprintf("ADD PRIMARY KEY USING INDEX %s promotes an existing unique index; the lock window is brief", con.Indexname))
			findings = append(findings, c)
			return
		}

		c := newCheck(stmt, ctx, r.ID(), table, lockPtr(lock.AccessExclusive), risk.High,
			"ADD PRIMARY KEY builds its unique index while holding ACCESS EXCLUSIVE, blocking all access for the whole build")
		c.Rewrite = rewrite.MustFor(r.ID(), rewrite.Meta{Table: table})
		findings = append(findings, c)
	})
	return findings
}

// AddExcludeRule flags EXCLUDE constraints, which have no concurrent path.
type AddExcludeRule struct{}

func (r *AddExcludeRule) ID() string { return "add-constraint-exclude" }

func (r *AddExcludeRule) Check(stmt parser.ParsedStatement, ctx *Context) []CheckResult {
	var findings []CheckResult
	forEachAlterCmd(stmt, func(alter *pg_query.AlterTableStmt, cmd *pg_query.AlterTableCmd) {
		con := addedConstraint(cmd)
		if con == nil || con.Contype != pg_query.ConstrType_CONSTR_EXCLUSION {
			return
		}

		table := pgast.TableName(alter.Relation)
		c := newCheck(stmt, ctx, r.ID(), table, lockPtr(lock.AccessExclusive), risk.High,
			fmt.Sprintf("ADD CONSTRAINT %s EXCLUDE scans the table under ACCESS EXCLUSIVE; there is no NOT VALID or concurrent path", con.Conname))
		c.Rewrite = rewrite.MustFor(r.ID(), rewrite.Meta{Table: table, Constraint: con.Conname})
		findings = append(findings, c)
	})
	return findings
}

// ValidateConstraintRule recognises the cheap half of the NOT VALID /
// VALIDATE two-step: validation takes only SHARE UPDATE EXCLUSIVE.
type ValidateConstraintRule struct{}

func (r *ValidateConstraintRule) ID() string { return "validate-constraint" }

func (r *ValidateConstraintRule) Check(stmt parser.ParsedStatement, ctx *Context) []CheckResult {
	var findings []CheckResult
	forEachAlterCmd(stmt, func(alter *pg_query.AlterTableStmt, cmd *pg_query.AlterTableCmd) {
		if cmd.Subtype != pg_query.AlterTableType_AT_ValidateConstraint {
			return
		}

		c := newCheck(stmt, ctx, r.ID(), pgast.TableName(alter.Relation), lockPtr(lock.ShareUpdateExclusive), risk.Low,
			fmt.Sprintf("VALIDATE CONSTRAINT %s scans the table under SHARE UPDATE EXCLUSIVE; reads and writes proceed", cmd.Name))
		findings = append(findings, c)
	})
	return findings
}
