package extract

import (
	"fmt"
	"strings"
)

// queryInterfaceMethods are the queryInterface calls the transpiler
// handles.
var queryInterfaceMethods = map[string]bool{
	"createTable":  true,
	"addColumn":    true,
	"removeColumn": true,
	"renameColumn": true,
	"changeColumn": true,
	"addIndex":     true,
	"removeIndex":  true,
	"dropTable":    true,
	"renameTable":  true,
}

// extractSequelize lifts SQL from a Sequelize migration: raw
// sequelize.query() literals and transpiled queryInterface builder calls.
func extractSequelize(path, src string) *Result {
	res := &Result{}
	toks := scanTokens(src)
	depths := conditionalDepths(toks)

	bodyOpen, bodyClose := findSequelizeUp(toks)
	if bodyOpen < 0 {
		res.Warnings = append(res.Warnings, Warning{
			File: path, Line: 1, Column: 1,
			Message: "No up() function found — nothing to analyze",
		})
		return res
	}

	joiner := &sqlJoiner{}

	for i := bodyOpen + 1; i < bodyClose; i++ {
		// <anything>.sequelize.query(arg)
		if isIdent(toks, i, "sequelize") && isPunct(toks, i-1, ".") && isPunct(toks, i+1, ".") && isIdent(toks, i+2, "query") && isPunct(toks, i+3, "(") {
			arg, _ := parseValue(toks, i+4)
			if !arg.IsLiteralString() {
				res.Warnings = append(res.Warnings, Warning{
					File: path, Line: toks[i].Line, Column: toks[i].Col,
					Message: "Dynamic SQL — cannot statically analyze sequelize.query() argument",
				})
				continue
			}
			warnConditional(res, path, depths, toks, i)
			joiner.add(arg.Str)
			continue
		}

		// queryInterface.<method>(...)
		if !isIdent(toks, i, "queryInterface") || !isPunct(toks, i+1, ".") || toks[i+2].Kind != tokIdent || !isPunct(toks, i+3, "(") {
			continue
		}
		method := toks[i+2].Text
		openParen := i + 3
		closeParen := matchBracket(toks, openParen)
		if closeParen < 0 {
			continue
		}
		if !queryInterfaceMethods[method] {
			continue
		}

		args := parseArgList(toks, openParen, closeParen)
		stmts := transpileQueryInterface(path, method, args, toks[i+2], res)
		if len(stmts) > 0 {
			warnConditional(res, path, depths, toks, i)
			for _, s := range stmts {
				joiner.add(s)
			}
		}
		i = closeParen
	}

	res.SQL = joiner.String()
	return res
}

// findSequelizeUp locates the up function: object property (up: ... or
// async up(...)), exports.up = ..., or module.exports = { up ... }.
func findSequelizeUp(toks []token) (bodyOpen, bodyClose int) {
	for i := 0; i < len(toks); i++ {
		if !isIdent(toks, i, "up") {
			continue
		}

		// up: [async] function/arrow
		if isPunct(toks, i+1, ":") {
			fn, _ := parseValue(toks, i+2)
			if fn.Kind == jsFunc && fn.BodyEnd > fn.BodyStart {
				return fn.BodyStart, fn.BodyEnd
			}
		}

		// async up(queryInterface, Sequelize) { ... } method shorthand
		if isPunct(toks, i+1, "(") {
			closeParen := matchBracket(toks, i+1)
			if closeParen > 0 && isPunct(toks, closeParen+1, "{") {
				end := matchBracket(toks, closeParen+1)
				if end > 0 {
					return closeParen + 1, end
				}
			}
		}

		// exports.up = ... / module.exports.up = ...
		if i > 1 && isPunct(toks, i-1, ".") && isIdent(toks, i-2, "exports") && isPunct(toks, i+1, "=") {
			fn, _ := parseValue(toks, i+2)
			if fn.Kind == jsFunc && fn.BodyEnd > fn.BodyStart {
				return fn.BodyStart, fn.BodyEnd
			}
		}
	}
	return -1, -1
}

// transpileQueryInterface turns one queryInterface call into SQL.
func transpileQueryInterface(path, method string, args []jsValue, at token, res *Result) []string {
	warnDynamic := func(what string) []string {
		res.Warnings = append(res.Warnings, Warning{
			File: path, Line: at.Line, Column: at.Col,
			Message: fmt.Sprintf("Dynamic %s in queryInterface.%s() — cannot transpile to SQL", what, method),
		})
		return nil
	}

	lit := func(idx int) (string, bool) {
		if idx < len(args) && args[idx].IsLiteralString() {
			return args[idx].Str, true
		}
		return "", false
	}

	table, tableOK := lit(0)
	if !tableOK {
		return warnDynamic("table name")
	}

	switch method {
	case "dropTable":
		return []string{fmt.Sprintf("DROP TABLE %s", table)}

	case "renameTable":
		newName, ok := lit(1)
		if !ok {
			return warnDynamic("table name")
		}
		return []string{fmt.Sprintf("ALTER TABLE %s RENAME TO %s", table, newName)}

	case "removeColumn":
		col, ok := lit(1)
		if !ok {
			return warnDynamic("column name")
		}
		return []string{fmt.Sprintf("ALTER TABLE %s DROP COLUMN %s", table, col)}

	case "renameColumn":
		oldName, ok1 := lit(1)
		newName, ok2 := lit(2)
		if !ok1 || !ok2 {
			return warnDynamic("column name")
		}
		return []string{fmt.Sprintf("ALTER TABLE %s RENAME COLUMN %s TO %s", table, oldName, newName)}

	case "addColumn":
		col, ok := lit(1)
		if !ok {
			return warnDynamic("column name")
		}
		if len(args) < 3 {
			return warnDynamic("column definition")
		}
		def, ok := sequelizeColumnDef(args[2])
		if !ok {
			return warnDynamic("column definition")
		}
		return []string{fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", table, col, def)}

	case "changeColumn":
		col, ok := lit(1)
		if !ok {
			return warnDynamic("column name")
		}
		if len(args) < 3 {
			return warnDynamic("column definition")
		}
		sqlType, ok := sequelizeTypeOf(args[2])
		if !ok {
			return warnDynamic("column definition")
		}
		return []string{fmt.Sprintf("ALTER TABLE %s ALTER COLUMN %s TYPE %s", table, col, sqlType)}

	case "addIndex":
		cols, unique, ok := sequelizeIndexSpec(args)
		if !ok {
			return warnDynamic("index definition")
		}
		uniqueKw := ""
		if unique {
			uniqueKw = "UNIQUE "
		}
		return []string{fmt.Sprintf("CREATE %sINDEX ON %s (%s)", uniqueKw, table, strings.Join(cols, ", "))}

	case "removeIndex":
		idx, ok := lit(1)
		if !ok {
			return warnDynamic("index name")
		}
		return []string{fmt.Sprintf("DROP INDEX %s", idx)}

	case "createTable":
		if len(args) < 2 || args[1].Kind != jsObject {
			return warnDynamic("column definitions")
		}
		var cols []string
		for _, entry := range args[1].Obj {
			if entry.Key == "" {
				return warnDynamic("column name")
			}
			def, ok := sequelizeColumnDef(entry.Value)
			if !ok {
				return warnDynamic("column definition")
			}
			cols = append(cols, entry.Key+" "+def)
		}
		if len(cols) == 0 {
			return warnDynamic("column definitions")
		}
		return []string{fmt.Sprintf("CREATE TABLE %s (\n  %s\n)", table, strings.Join(cols, ",\n  "))}

	default:
		return nil
	}
}

// sequelizeTypeMap translates DataTypes members to PostgreSQL types.
var sequelizeTypeMap = map[string]string{
	"STRING":   "varchar(255)",
	"TEXT":     "text",
	"CHAR":     "char(255)",
	"INTEGER":  "integer",
	"BIGINT":   "bigint",
	"SMALLINT": "smallint",
	"FLOAT":    "real",
	"REAL":     "real",
	"DOUBLE":   "double precision",
	"DECIMAL":  "numeric",
	"BOOLEAN":  "boolean",
	"DATE":     "timestamptz",
	"DATEONLY": "date",
	"TIME":     "time",
	"NOW":      "now()",
	"UUID":     "uuid",
	"UUIDV4":   "uuid",
	"JSON":     "json",
	"JSONB":    "jsonb",
	"BLOB":     "bytea",
}

// sequelizeTypeOf resolves a datatype reference: DataTypes.STRING,
// DataTypes.STRING(100), DataTypes.DECIMAL(10,2), or an object with a
// type key.
func sequelizeTypeOf(v jsValue) (string, bool) {
	switch v.Kind {
	case jsPath:
		return sequelizeNamedType(v.Str, nil)
	case jsCall:
		return sequelizeNamedType(v.Str, v.Args)
	case jsObject:
		for _, entry := range v.Obj {
			if entry.Key == "type" {
				return sequelizeTypeOf(entry.Value)
			}
		}
		return "", false
	default:
		return "", false
	}
}

func sequelizeNamedType(path string, args []jsValue) (string, bool) {
	parts := strings.Split(path, ".")
	name := strings.ToUpper(parts[len(parts)-1])

	base, ok := sequelizeTypeMap[name]
	if !ok {
		return "", false
	}

	switch name {
	case "STRING", "CHAR":
		if len(args) > 0 && args[0].Kind == jsNumber {
			return fmt.Sprintf("%s(%s)", strings.ToLower(strings.SplitN(base, "(", 2)[0]), args[0].Str), true
		}
	case "DECIMAL":
		if len(args) > 1 && args[0].Kind == jsNumber && args[1].Kind == jsNumber {
			return fmt.Sprintf("numeric(%s,%s)", args[0].Str, args[1].Str), true
		}
	}
	return base, true
}

// sequelizeColumnDef renders a full column definition from either a bare
// datatype reference or a definition object.
func sequelizeColumnDef(v jsValue) (string, bool) {
	if v.Kind == jsPath || v.Kind == jsCall {
		return sequelizeTypeOf(v)
	}
	if v.Kind != jsObject {
		return "", false
	}

	sqlType, ok := sequelizeTypeOf(v)
	if !ok {
		return "", false
	}
	def := sqlType

	for _, entry := range v.Obj {
		switch entry.Key {
		case "allowNull":
			if entry.Value.Kind == jsBool && entry.Value.Str == "false" {
				def += " NOT NULL"
			}
		case "primaryKey":
			if entry.Value.Kind == jsBool && entry.Value.Str == "true" {
				def += " PRIMARY KEY"
			}
		case "unique":
			if entry.Value.Kind == jsBool && entry.Value.Str == "true" {
				def += " UNIQUE"
			}
		case "autoIncrement":
			if entry.Value.Kind == jsBool && entry.Value.Str == "true" {
				def += " GENERATED BY DEFAULT AS IDENTITY"
			}
		case "defaultValue":
			def += " DEFAULT " + sequelizeDefaultValue(entry.Value)
		case "references":
			if ref, ok := sequelizeReferences(entry.Value); ok {
				def += " " + ref
			}
		}
	}

	return def, true
}

func sequelizeDefaultValue(v jsValue) string {
	switch v.Kind {
	case jsString:
		return "'" + strings.ReplaceAll(v.Str, "'", "''") + "'"
	case jsTemplate:
		if !v.HasInterp {
			return "'" + strings.ReplaceAll(v.Str, "'", "''") + "'"
		}
		return volatileDefaultSentinel
	case jsNumber, jsBool:
		return v.Str
	case jsNull:
		return "NULL"
	case jsPath, jsCall:
		// DataTypes.NOW and friends are runtime expressions.
		if t, ok := sequelizeTypeOf(v); ok && t == "now()" {
			return "now()"
		}
		return volatileDefaultSentinel
	default:
		return volatileDefaultSentinel
	}
}

// sequelizeReferences renders references: {model: 'users', key: 'id'}.
func sequelizeReferences(v jsValue) (string, bool) {
	if v.Kind != jsObject {
		return "", false
	}
	model, key := "", "id"
	for _, entry := range v.Obj {
		switch entry.Key {
		case "model":
			if entry.Value.IsLiteralString() {
				model = entry.Value.Str
			}
		case "key":
			if entry.Value.IsLiteralString() {
				key = entry.Value.Str
			}
		}
	}
	if model == "" {
		return "", false
	}
	return fmt.Sprintf("REFERENCES %s (%s)", model, key), true
}

// sequelizeIndexSpec resolves addIndex's second argument: an array of
// column names or an options object with fields and unique keys.
func sequelizeIndexSpec(args []jsValue) (cols []string, unique bool, ok bool) {
	if len(args) < 2 {
		return nil, false, false
	}

	collect := func(arr jsValue) bool {
		for _, el := range arr.Args {
			if !el.IsLiteralString() {
				return false
			}
			cols = append(cols, el.Str)
		}
		return len(cols) > 0
	}

	switch args[1].Kind {
	case jsArray:
		if !collect(args[1]) {
			return nil, false, false
		}
	case jsObject:
		for _, entry := range args[1].Obj {
			switch entry.Key {
			case "fields":
				if entry.Value.Kind != jsArray || !collect(entry.Value) {
					return nil, false, false
				}
			case "unique":
				unique = entry.Value.Kind == jsBool && entry.Value.Str == "true"
			}
		}
		if len(cols) == 0 {
			return nil, false, false
		}
	default:
		return nil, false, false
	}

	return cols, unique, true
}
