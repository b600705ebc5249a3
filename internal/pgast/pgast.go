// Package pgast contains small helpers for working with pg_query_go AST
// nodes: node kind tags, table name extraction, and type name inspection.
package pgast

import (
	"fmt"
	"strings"

	pg_query "github.com/pganalyze/pg_query_go/v6"
)

// NodeTag returns the grammar's tag for a node, e.g. "AlterTableStmt".
func NodeTag(node *pg_query.Node) string {
	if node == nil || node.Node == nil {
		return ""
	}
	tag := fmt.Sprintf("%T", node.Node)
	if i := strings.LastIndex(tag, "Node_"); i >= 0 {
		return tag[i+len("Node_"):]
	}
	return tag
}

// TableName extracts a case-folded, optionally schema-qualified table name
// from a RangeVar. Lock bookkeeping and stats lookups key on this form.
func TableName(rv *pg_query.RangeVar) string {
	if rv == nil {
		return ""
	}
	name := strings.ToLower(rv.Relname)
	if rv.Schemaname != "" {
		return strings.ToLower(rv.Schemaname) + "." + name
	}
	return name
}

// QualifiedName joins a list of String nodes (as found in DropStmt objects
// or AlterEnumStmt type names) into a case-folded dotted name.
func QualifiedName(items []*pg_query.Node) string {
	parts := make([]string, 0, len(items))
	for _, item := range items {
		if s := item.GetString_(); s != nil {
			parts = append(parts, strings.ToLower(s.Sval))
		}
	}
	return strings.Join(parts, ".")
}

// DropObjectNames returns the case-folded names of every object in a
// DropStmt. Each object is either a List of String nodes (tables, indexes)
// or a bare String.
func DropObjectNames(stmt *pg_query.DropStmt) []string {
	var names []string
	for _, obj := range stmt.Objects {
		if list := obj.GetList(); list != nil {
			if name := QualifiedName(list.Items); name != "" {
				names = append(names, name)
			}
			continue
		}
		if s := obj.GetString_(); s != nil {
			names = append(names, strings.ToLower(s.Sval))
		}
	}
	return names
}

// TypeNameString returns the bare type name of a TypeName node with any
// pg_catalog qualification stripped, e.g. "varchar" or "int4".
func TypeNameString(tn *pg_query.TypeName) string {
	if tn == nil {
		return ""
	}
	var last string
	for _, n := range tn.Names {
		if s := n.GetString_(); s != nil {
			last = s.Sval
		}
	}
	return strings.ToLower(last)
}

// TypeHasMods reports whether a TypeName carries modifiers, e.g.
// varchar(255) or numeric(10,2).
func TypeHasMods(tn *pg_query.TypeName) bool {
	return tn != nil && len(tn.Typmods) > 0
}

// FirstTypeMod returns the first integer type modifier, such as the length
// of a varchar(N). The second result is false when no modifier is present.
func FirstTypeMod(tn *pg_query.TypeName) (int32, bool) {
	if tn == nil || len(tn.Typmods) == 0 {
		return 0, false
	}
	if c := tn.Typmods[0].GetAConst(); c != nil {
		if iv := c.GetIval(); iv != nil {
			return iv.Ival, true
		}
	}
	return 0, false
}

// ColumnConstraint finds the first constraint of the given type attached to
// a column definition, or nil.
func ColumnConstraint(col *pg_query.ColumnDef, ct pg_query.ConstrType) *pg_query.Constraint {
	if col == nil {
		return nil
	}
	for _, c := range col.Constraints {
		if cn := c.GetConstraint(); cn != nil && cn.Contype == ct {
			return cn
		}
	}
	return nil
}

// DefaultExpr returns the DEFAULT expression attached to a column
// definition, or nil when the column has no default.
func DefaultExpr(col *pg_query.ColumnDef) *pg_query.Node {
	if c := ColumnConstraint(col, pg_query.ConstrType_CONSTR_DEFAULT); c != nil {
		return c.RawExpr
	}
	return nil
}

// IsConstantExpr reports whether an expression is a plain literal or a
// typecast wrapping a plain literal. The check is strictly syntactic: any
// function call or deeper nesting counts as non-constant. Deliberately not
// recursive past one cast layer.
func IsConstantExpr(node *pg_query.Node) bool {
	if node == nil {
		return false
	}
	switch n := node.Node.(type) {
	case *pg_query.Node_AConst:
		return true
	case *pg_query.Node_TypeCast:
		if n.TypeCast.Arg == nil {
			return false
		}
		_, ok := n.TypeCast.Arg.Node.(*pg_query.Node_AConst)
		return ok
	default:
		return false
	}
}

// AlterTableCmds returns the typed subcommands of an ALTER TABLE statement.
func AlterTableCmds(stmt *pg_query.AlterTableStmt) []*pg_query.AlterTableCmd {
	cmds := make([]*pg_query.AlterTableCmd, 0, len(stmt.Cmds))
	for _, n := range stmt.Cmds {
		if c := n.GetAlterTableCmd(); c != nil {
			cmds = append(cmds, c)
		}
	}
	return cmds
}

// serialTypes is the family of auto-sequence pseudo-types.
var serialTypes = map[string]bool{
	"serial":      true,
	"serial2":     true,
	"serial4":     true,
	"serial8":     true,
	"smallserial": true,
	"bigserial":   true,
}

// IsSerialType reports whether a type name belongs to the serial family.
func IsSerialType(name string) bool {
	return serialTypes[strings.ToLower(name)]
}

// narrowIntTypes is the set of integer spellings narrower than bigint.
var narrowIntTypes = map[string]bool{
	"int2":     true,
	"int4":     true,
	"integer":  true,
	"smallint": true,
}

// IsNarrowIntType reports whether a type name is an integer narrower than
// bigint.
func IsNarrowIntType(name string) bool {
	return narrowIntTypes[strings.ToLower(name)]
}
