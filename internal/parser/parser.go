// Package parser adapts the real PostgreSQL grammar (pg_query_go) into the
// statement stream the rule and policy engines consume. Each statement
// carries its byte-accurate SQL text, the AST node tag, the AST body, and
// any inline suppression directives attached to it.
package parser

import (
	"bytes"
	"fmt"
	"strings"

	pg_query "github.com/pganalyze/pg_query_go/v6"

	"github.com/flvmnt/pgfence/internal/pgast"
)

// utf8BOM is the UTF-8 byte order mark some editors prepend to files.
var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// SuppressAll is the sentinel rule ID meaning every finding on the
// statement is suppressed.
const SuppressAll = "*"

// ParsedStatement is a single SQL statement with its parse metadata.
// Created by Parse and read-only thereafter.
type ParsedStatement struct {
	// SQL is the trimmed statement text, without a trailing semicolon.
	SQL string

	// NodeKind is the grammar's tag for the statement, e.g. "AlterTableStmt".
	NodeKind string

	// Stmt is the AST body.
	Stmt *pg_query.Node

	// Suppressed lists rule IDs disabled for this statement by inline
	// directives. Contains SuppressAll when a bare directive was found.
	Suppressed []string

	// Line is the 1-based line the statement starts on.
	Line int
}

// Suppresses reports whether findings of the given rule ID are silenced on
// this statement.
func (s ParsedStatement) Suppresses(ruleID string) bool {
	for _, id := range s.Suppressed {
		if id == SuppressAll || strings.EqualFold(id, ruleID) {
			return true
		}
	}
	return false
}

// Result is the ordered statement list for one migration file.
type Result struct {
	Statements []ParsedStatement
}

// Parse runs the PostgreSQL grammar over a whole migration's SQL text.
// Parse errors propagate; empty input yields an empty result.
func Parse(sql string) (*Result, error) {
	sql = string(stripBOM([]byte(sql)))
	if strings.TrimSpace(sql) == "" {
		return &Result{Statements: []ParsedStatement{}}, nil
	}

	tree, err := pg_query.Parse(sql)
	if err != nil {
		return nil, fmt.Errorf("parse error: %w", err)
	}

	result := &Result{Statements: make([]ParsedStatement, 0, len(tree.Stmts))}

	prevEnd := 0
	for _, raw := range tree.Stmts {
		start := int(raw.StmtLocation)
		end := start + int(raw.StmtLen)
		if raw.StmtLen == 0 {
			end = len(sql)
		}
		if start < 0 || start > len(sql) || end > len(sql) || start > end {
			continue
		}

		// pg_query's statement region starts right after the previous
		// semicolon, so comment lines between statements land in this
		// slice; drop them from the preserved text.
		text := trimLeadingComments(sql[start:end])
		text = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(text), ";"))
		if text == "" {
			prevEnd = end
			continue
		}

		stmt := ParsedStatement{
			SQL:        text,
			NodeKind:   pgast.NodeTag(raw.Stmt),
			Stmt:       raw.Stmt,
			Suppressed: scanSuppressions(sql[prevEnd:end]),
			Line:       lineNumber(sql, start+leadingOffset(sql[start:end])),
		}
		result.Statements = append(result.Statements, stmt)

		prevEnd = end
	}

	return result, nil
}

// scanSuppressions collects suppression directives from the region between
// the previous statement's end and this statement's end. Bounding the scan
// by the previous statement keeps a directive from bleeding past the
// statement it precedes.
func scanSuppressions(region string) []string {
	var ids []string
	for _, line := range strings.Split(region, "\n") {
		ids = append(ids, parseDirective(line)...)
	}
	return ids
}

// parseDirective recognises the two comment forms, case-insensitively:
//
//	-- pgfence-ignore
//	-- pgfence-ignore: rule-a, rule-b
//	-- pgfence: ignore rule-a rule-b   (legacy)
func parseDirective(line string) []string {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "--") {
		return nil
	}
	comment := strings.TrimSpace(strings.TrimPrefix(line, "--"))
	lower := strings.ToLower(comment)

	switch {
	case lower == "pgfence-ignore":
		return []string{SuppressAll}
	case strings.HasPrefix(lower, "pgfence-ignore:"):
		return splitRuleList(comment[len("pgfence-ignore:"):])
	case strings.HasPrefix(lower, "pgfence:"):
		rest := strings.TrimSpace(comment[len("pgfence:"):])
		if strings.HasPrefix(strings.ToLower(rest), "ignore") {
			return splitRuleList(rest[len("ignore"):])
		}
	}
	return nil
}

func splitRuleList(s string) []string {
	var ids []string
	for _, part := range strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ' ' || r == '\t' }) {
		part = strings.TrimSpace(part)
		if part != "" {
			ids = append(ids, strings.ToLower(part))
		}
	}
	return ids
}

// trimLeadingComments strips whitespace, line comments, and block
// comments from the front of a statement slice.
func trimLeadingComments(s string) string {
	for {
		s = strings.TrimLeft(s, " \t\r\n")
		switch {
		case strings.HasPrefix(s, "--"):
			nl := strings.IndexByte(s, '\n')
			if nl < 0 {
				return ""
			}
			s = s[nl+1:]
		case strings.HasPrefix(s, "/*"):
			end := strings.Index(s, "*/")
			if end < 0 {
				return ""
			}
			s = s[end+2:]
		default:
			return s
		}
	}
}

// leadingOffset returns the offset of the first non-whitespace byte,
// so line numbers point at the statement rather than preceding blanks.
func leadingOffset(s string) int {
	for i := 0; i < len(s); i++ {
		if s[i] != ' ' && s[i] != '\t' && s[i] != '\n' && s[i] != '\r' {
			return i
		}
	}
	return 0
}

// lineNumber computes the 1-based line for a byte position.
func lineNumber(sql string, position int) int {
	line := 1
	for i := 0; i < position && i < len(sql); i++ {
		if sql[i] == '\n' {
			line++
		}
	}
	return line
}

// stripBOM removes the UTF-8 BOM if present.
func stripBOM(content []byte) []byte {
	if bytes.HasPrefix(content, utf8BOM) {
		return content[len(utf8BOM):]
	}
	return content
}
