package extract

import "fmt"

// extractTypeORM lifts SQL from a TypeORM migration class: every
// queryRunner.query(<literal>) call inside the up() method. The down
// method is deliberately not analyzed. A class-level `transaction = false`
// property sets the autocommit hint.
func extractTypeORM(path, src string) *Result {
	res := &Result{}
	toks := scanTokens(src)
	depths := conditionalDepths(toks)

	upOpen, upClose, runnerName := findUpMethod(toks)
	if upOpen < 0 {
		res.Warnings = append(res.Warnings, Warning{
			File: path, Line: 1, Column: 1,
			Message: "No up() method found — nothing to analyze",
		})
		return res
	}

	res.AutoCommit = classDisablesTransaction(toks)

	joiner := &sqlJoiner{}
	for i := upOpen + 1; i < upClose; i++ {
		// <runner>.query(arg)
		if !isIdent(toks, i, runnerName) || !isPunct(toks, i+1, ".") || !isIdent(toks, i+2, "query") || !isPunct(toks, i+3, "(") {
			continue
		}
		callTok := toks[i]
		argIdx := i + 4
		arg, _ := parseValue(toks, argIdx)

		if !arg.IsLiteralString() {
			res.Warnings = append(res.Warnings, Warning{
				File: path, Line: callTok.Line, Column: callTok.Col,
				Message: "Dynamic SQL — cannot statically analyze queryRunner.query() argument",
			})
			continue
		}

		if depths[i] > 0 {
			res.Warnings = append(res.Warnings, Warning{
				File: path, Line: callTok.Line, Column: callTok.Col,
				Message: fmt.Sprintf("Conditional SQL at line %d — statement may or may not execute depending on runtime condition", callTok.Line),
			})
		}

		joiner.add(arg.Str)
	}

	res.SQL = joiner.String()
	return res
}

// findUpMethod locates the class method named up, returning its body's
// token range and the name of its first parameter (the query runner).
func findUpMethod(toks []token) (bodyOpen, bodyClose int, runnerName string) {
	for i := 0; i < len(toks); i++ {
		if !isIdent(toks, i, "up") || !isPunct(toks, i+1, "(") {
			continue
		}
		closeParen := matchBracket(toks, i+1)
		if closeParen < 0 {
			continue
		}

		runner := firstParamName(toks, i+1, closeParen)

		// Skip a TypeScript return type annotation: `): Promise<void> {`.
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
		return j, end, runner
	}
	return -1, -1, ""
}

// classDisablesTransaction looks for a class property assignment
// `transaction = false`.
func classDisablesTransaction(toks []token) bool {
	for i := 0; i+2 < len(toks); i++ {
		if isIdent(toks, i, "transaction") && isPunct(toks, i+1, "=") && isIdent(toks, i+2, "false") {
			return true
		}
	}
	return false
}
