package extract

import (
	"fmt"
	"strings"
)

// schemaBuilderMethods are the knex schema calls the transpiler handles.
var schemaBuilderMethods = map[string]bool{
	"createTable":            true,
	"createTableIfNotExists": true,
	"alterTable":             true,
	"dropTable":              true,
	"dropTableIfExists":      true,
	"renameTable":            true,
}

// extractKnex lifts SQL from a knex migration: knex.raw()/schema.raw()
// literals plus transpiled schema-builder calls.
func extractKnex(path, src string) *Result {
	res := &Result{}
	toks := scanTokens(src)
	depths := conditionalDepths(toks)

	bodyOpen, bodyClose, knexName := findKnexUp(toks)
	if bodyOpen < 0 {
		res.Warnings = append(res.Warnings, Warning{
			File: path, Line: 1, Column: 1,
			Message: "No up() function found — nothing to analyze",
		})
		return res
	}
	if knexName == "" {
		knexName = "knex"
	}

	joiner := &sqlJoiner{}

	for i := bodyOpen + 1; i < bodyClose; i++ {
		if toks[i].Kind != tokIdent || (toks[i].Text != knexName && toks[i].Text != "trx") {
			continue
		}
		if !isPunct(toks, i+1, ".") {
			continue
		}

		// <knex|trx>.raw(arg) and <knex>.schema.raw(arg)
		rawIdx := -1
		if isIdent(toks, i+2, "raw") && isPunct(toks, i+3, "(") {
			rawIdx = i + 3
		} else if isIdent(toks, i+2, "schema") && isPunct(toks, i+3, ".") && isIdent(toks, i+4, "raw") && isPunct(toks, i+5, "(") {
			rawIdx = i + 5
		}
		if rawIdx >= 0 {
			arg, _ := parseValue(toks, rawIdx+1)
			if !arg.IsLiteralString() {
				res.Warnings = append(res.Warnings, Warning{
					File: path, Line: toks[i].Line, Column: toks[i].Col,
					Message: "Dynamic SQL — cannot statically analyze knex.raw() argument",
				})
				continue
			}
			warnConditional(res, path, depths, toks, i)
			joiner.add(arg.Str)
			continue
		}

		// <knex>.schema.<method>(...)
		if !isIdent(toks, i+2, "schema") || !isPunct(toks, i+3, ".") || toks[i+4].Kind != tokIdent || !isPunct(toks, i+5, "(") {
			continue
		}
		method := toks[i+4].Text
		openParen := i + 5
		closeParen := matchBracket(toks, openParen)
		if closeParen < 0 {
			continue
		}

		if !schemaBuilderMethods[method] {
			res.Warnings = append(res.Warnings, Warning{
				File: path, Line: toks[i+4].Line, Column: toks[i+4].Col,
				Message: fmt.Sprintf("Unsupported knex schema builder method %q — cannot transpile to SQL", method),
			})
			continue
		}

		args := parseArgList(toks, openParen, closeParen)
		stmts := transpileKnexSchema(path, method, args, toks, res)
		if len(stmts) > 0 {
			warnConditional(res, path, depths, toks, i)
			for _, s := range stmts {
				joiner.add(s)
			}
		}
	}

	res.SQL = joiner.String()
	return res
}

func warnConditional(res *Result, path string, depths []int, toks []token, i int) {
	if depths[i] > 0 {
		res.Warnings = append(res.Warnings, Warning{
			File: path, Line: toks[i].Line, Column: toks[i].Col,
			Message: fmt.Sprintf("Conditional SQL at line %d — statement may or may not execute depending on runtime condition", toks[i].Line),
		})
	}
}

// findKnexUp locates the upward migration function under any of its
// export forms and returns its body range plus the knex parameter name.
func findKnexUp(toks []token) (bodyOpen, bodyClose int, knexName string) {
	for i := 0; i < len(toks); i++ {
		if !isIdent(toks, i, "up") {
			continue
		}

		// export [async] function up(knex) { ... }
		if i > 0 && isIdent(toks, i-1, "function") && isPunct(toks, i+1, "(") {
			closeParen := matchBracket(toks, i+1)
			if closeParen < 0 {
				continue
			}
			name := firstParamName(toks, i+1, closeParen)
			j := closeParen + 1
			if isPunct(toks, j, ":") {
				for j < len(toks) && !isPunct(toks, j, "{") {
					j++
				}
			}
			if !isPunct(toks, j, "{") {
				continue
			}
			end := matchBracket(toks, j)
			if end < 0 {
				continue
			}
			return j, end, name
		}

		// export const up = ..., exports.up = ..., module.exports.up = ...
		assignable := (i > 0 && (isIdent(toks, i-1, "const") || isIdent(toks, i-1, "let") || isIdent(toks, i-1, "var"))) ||
			(i > 1 && isPunct(toks, i-1, ".") && isIdent(toks, i-2, "exports"))
		if assignable && isPunct(toks, i+1, "=") && !isPunct(toks, i+2, "=") {
			fn, _ := parseValue(toks, i+2)
			if fn.Kind == jsFunc && fn.BodyEnd > fn.BodyStart {
				return fn.BodyStart, fn.BodyEnd, fn.Param
			}
		}
	}
	return -1, -1, ""
}

// transpileKnexSchema turns one schema-builder call into SQL statements.
func transpileKnexSchema(path, method string, args []jsValue, toks []token, res *Result) []string {
	tableName := ""
	if len(args) > 0 && args[0].IsLiteralString() {
		tableName = args[0].Str
	}
	if tableName == "" {
		res.Warnings = append(res.Warnings, Warning{
			File: path, Line: argLine(args), Column: argCol(args),
			Message: fmt.Sprintf("Dynamic table name in knex.schema.%s() — cannot transpile to SQL", method),
		})
		return nil
	}

	switch method {
	case "dropTable":
		return []string{fmt.Sprintf("DROP TABLE %s", tableName)}
	case "dropTableIfExists":
		return []string{fmt.Sprintf("DROP TABLE IF EXISTS %s", tableName)}
	case "renameTable":
		if len(args) < 2 || !args[1].IsLiteralString() {
			res.Warnings = append(res.Warnings, Warning{
				File: path, Line: argLine(args), Column: argCol(args),
				Message: "Dynamic table name in knex.schema.renameTable() — cannot transpile to SQL",
			})
			return nil
		}
		return []string{fmt.Sprintf("ALTER TABLE %s RENAME TO %s", tableName, args[1].Str)}
	case "createTable", "createTableIfNotExists":
		if len(args) < 2 || args[1].Kind != jsFunc {
			res.Warnings = append(res.Warnings, Warning{
				File: path, Line: argLine(args), Column: argCol(args),
				Message: fmt.Sprintf("knex.schema.%s(%q) without a table builder callback — cannot transpile", method, tableName),
			})
			return nil
		}
		cols, extra := knexBuilderBody(path, tableName, args[1], toks, res)
		ifNotExists := ""
		if method == "createTableIfNotExists" {
			ifNotExists = "IF NOT EXISTS "
		}
		if len(cols) == 0 {
			return extra
		}
		create := fmt.Sprintf("CREATE TABLE %s%s (\n  %s\n)", ifNotExists, tableName, strings.Join(cols, ",\n  "))
		return append([]string{create}, extra...)
	case "alterTable":
		if len(args) < 2 || args[1].Kind != jsFunc {
			res.Warnings = append(res.Warnings, Warning{
				File: path, Line: argLine(args), Column: argCol(args),
				Message: fmt.Sprintf("knex.schema.alterTable(%q) without a table builder callback — cannot transpile", tableName),
			})
			return nil
		}
		cols, extra := knexBuilderBody(path, tableName, args[1], toks, res)
		stmts := make([]string, 0, len(cols)+len(extra))
		for _, col := range cols {
			stmts = append(stmts, fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s", tableName, col))
		}
		return append(stmts, extra...)
	default:
		return nil
	}
}

func argLine(args []jsValue) int {
	if len(args) > 0 {
		return args[0].Line
	}
	return 1
}

func argCol(args []jsValue) int {
	if len(args) > 0 {
		return args[0].Col
	}
	return 1
}

// knexBuilderBody walks a table-builder callback and produces column
// definition strings plus standalone statements (drops, renames).
func knexBuilderBody(path, tableName string, fn jsValue, toks []token, res *Result) (cols, extra []string) {
	param := fn.Param
	if param == "" {
		param = "table"
	}

	for i := fn.BodyStart + 1; i < fn.BodyEnd; i++ {
		if !isIdent(toks, i, param) || !isPunct(toks, i+1, ".") || toks[i+2].Kind != tokIdent || !isPunct(toks, i+3, "(") {
			continue
		}
		method := toks[i+2].Text
		openParen := i + 3
		closeParen := matchBracket(toks, openParen)
		if closeParen < 0 {
			continue
		}
		args := parseArgList(toks, openParen, closeParen)

		switch method {
		case "dropColumn":
			if len(args) > 0 && args[0].IsLiteralString() {
				extra = append(extra, fmt.Sprintf("ALTER TABLE %s DROP COLUMN %s", tableName, args[0].Str))
			}
			i = closeParen
			continue
		case "renameColumn":
			if len(args) > 1 && args[0].IsLiteralString() && args[1].IsLiteralString() {
				extra = append(extra, fmt.Sprintf("ALTER TABLE %s RENAME COLUMN %s TO %s", tableName, args[0].Str, args[1].Str))
			}
			i = closeParen
			continue
		}

		colType, colName, ok := knexColumnType(method, args)
		if !ok {
			res.Warnings = append(res.Warnings, Warning{
				File: path, Line: toks[i+2].Line, Column: toks[i+2].Col,
				Message: fmt.Sprintf("Unsupported knex column builder method %q — cannot transpile to SQL", method),
			})
			i = closeParen
			continue
		}

		def := colName + " " + colType
		def, i = applyKnexModifiers(def, toks, closeParen)
		cols = append(cols, def)
	}

	return cols, extra
}

// knexColumnType maps a builder type method to a PostgreSQL type.
func knexColumnType(method string, args []jsValue) (sqlType, colName string, ok bool) {
	if len(args) > 0 && args[0].IsLiteralString() {
		colName = args[0].Str
	}

	switch method {
	case "string":
		length := "255"
		if len(args) > 1 && args[1].Kind == jsNumber {
			length = args[1].Str
		}
		return "varchar(" + length + ")", colName, colName != ""
	case "text":
		return "text", colName, colName != ""
	case "integer":
		return "integer", colName, colName != ""
	case "bigInteger":
		return "bigint", colName, colName != ""
	case "smallint", "tinyint":
		return "smallint", colName, colName != ""
	case "boolean":
		return "boolean", colName, colName != ""
	case "date":
		return "date", colName, colName != ""
	case "datetime", "timestamp":
		return "timestamp", colName, colName != ""
	case "time":
		return "time", colName, colName != ""
	case "float":
		return "real", colName, colName != ""
	case "double":
		return "double precision", colName, colName != ""
	case "decimal":
		if len(args) > 2 && args[1].Kind == jsNumber && args[2].Kind == jsNumber {
			return fmt.Sprintf("numeric(%s,%s)", args[1].Str, args[2].Str), colName, colName != ""
		}
		return "numeric", colName, colName != ""
	case "increments":
		if colName == "" {
			colName = "id"
		}
		return "serial PRIMARY KEY", colName, true
	case "bigIncrements":
		if colName == "" {
			colName = "id"
		}
		return "bigserial PRIMARY KEY", colName, true
	case "uuid":
		return "uuid", colName, colName != ""
	case "json":
		return "json", colName, colName != ""
	case "jsonb":
		return "jsonb", colName, colName != ""
	case "binary":
		return "bytea", colName, colName != ""
	case "specificType":
		if len(args) > 1 && args[1].IsLiteralString() {
			return args[1].Str, colName, colName != ""
		}
		return "", "", false
	default:
		return "", "", false
	}
}

// applyKnexModifiers consumes the chained modifier calls after a column
// builder and appends the corresponding SQL clauses. Returns the updated
// definition and the index of the last consumed token.
func applyKnexModifiers(def string, toks []token, after int) (string, int) {
	i := after
	refColumn := ""
	refTable := ""

	for isPunct(toks, i+1, ".") && toks[i+2].Kind == tokIdent && isPunct(toks, i+3, "(") {
		method := toks[i+2].Text
		openParen := i + 3
		closeParen := matchBracket(toks, openParen)
		if closeParen < 0 {
			break
		}
		args := parseArgList(toks, openParen, closeParen)

		switch method {
		case "notNullable":
			def += " NOT NULL"
		case "nullable":
			// Columns are nullable by default.
		case "primary":
			def += " PRIMARY KEY"
		case "unique":
			def += " UNIQUE"
		case "defaultTo":
			def += " DEFAULT " + knexDefaultValue(args)
		case "references":
			if len(args) > 0 && args[0].IsLiteralString() {
				refColumn = args[0].Str
			}
		case "inTable":
			if len(args) > 0 && args[0].IsLiteralString() {
				refTable = args[0].Str
			}
		case "onDelete":
			if len(args) > 0 && args[0].IsLiteralString() {
				def += " ON DELETE " + strings.ToUpper(args[0].Str)
			}
		case "onUpdate":
			if len(args) > 0 && args[0].IsLiteralString() {
				def += " ON UPDATE " + strings.ToUpper(args[0].Str)
			}
		}

		i = closeParen
	}

	if refColumn != "" {
		def = insertReferences(def, refColumn, refTable)
	}

	return def, i
}

// insertReferences splices a REFERENCES clause in front of any ON DELETE /
// ON UPDATE actions already appended.
func insertReferences(def, refColumn, refTable string) string {
	ref := ""
	switch {
	case refTable != "":
		ref = fmt.Sprintf("REFERENCES %s (%s)", refTable, refColumn)
	case strings.Contains(refColumn, "."):
		parts := strings.SplitN(refColumn, ".", 2)
		ref = fmt.Sprintf("REFERENCES %s (%s)", parts[0], parts[1])
	default:
		ref = fmt.Sprintf("REFERENCES %s", refColumn)
	}

	for _, action := range []string{" ON DELETE ", " ON UPDATE "} {
		if idx := strings.Index(def, action); idx >= 0 {
			return def[:idx] + " " + ref + def[idx:]
		}
	}
	return def + " " + ref
}

// volatileDefaultSentinel marks a non-literal default so the analyzer
// treats it as non-constant.
const volatileDefaultSentinel = "pgfence_volatile_expr()"

func knexDefaultValue(args []jsValue) string {
	if len(args) == 0 {
		return volatileDefaultSentinel
	}
	switch args[0].Kind {
	case jsString:
		return "'" + strings.ReplaceAll(args[0].Str, "'", "''") + "'"
	case jsTemplate:
		if !args[0].HasInterp {
			return "'" + strings.ReplaceAll(args[0].Str, "'", "''") + "'"
		}
		return volatileDefaultSentinel
	case jsNumber, jsBool:
		return args[0].Str
	case jsNull:
		return "NULL"
	default:
		return volatileDefaultSentinel
	}
}
