package analyzer

import (
	"github.com/flvmnt/pgfence/internal/parser"
	"github.com/flvmnt/pgfence/internal/pgast"
	"github.com/flvmnt/pgfence/internal/rules"
)

// visibility tracks the tables created earlier in the current batch and
// suppresses findings against them: a brand-new table has no data and no
// concurrent readers, so locking it is harmless. Rules that still matter
// on new tables opt back in per finding.
type visibility struct {
	created map[string]bool
}

func newVisibility() *visibility {
	return &visibility{created: make(map[string]bool)}
}

// observe records any table the statement creates. Called after the
// statement's own findings are filtered, so a CREATE TABLE's own findings
// survive.
func (v *visibility) observe(stmt parser.ParsedStatement) {
	if stmt.Stmt == nil {
		return
	}
	if create := stmt.Stmt.GetCreateStmt(); create != nil {
		if name := pgast.TableName(create.Relation); name != "" {
			v.created[name] = true
		}
	}
}

// suppresses reports whether a finding targets a table created earlier in
// the batch without opting in via AppliesToNewTables.
func (v *visibility) suppresses(c rules.CheckResult) bool {
	if c.AppliesToNewTables || c.Table == "" {
		return false
	}
	return v.created[c.Table]
}
