// Package extract converts migration source files into analyzable SQL.
// Each extractor returns the lifted SQL text, warnings pinned to file
// positions for anything it could not analyze statically, and an
// autocommit hint when the host migration disables its wrapping
// transaction.
package extract

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Format identifies a migration source format.
type Format string

const (
	FormatAuto      Format = "auto"
	FormatSQL       Format = "sql"
	FormatPrisma    Format = "prisma"
	FormatDrizzle   Format = "drizzle"
	FormatTypeORM   Format = "typeorm"
	FormatKnex      Format = "knex"
	FormatSequelize Format = "sequelize"
)

// ParseFormat validates a --format flag value.
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(s)) {
	case FormatAuto, FormatSQL, FormatPrisma, FormatDrizzle, FormatTypeORM, FormatKnex, FormatSequelize:
		return Format(strings.ToLower(s)), nil
	default:
		return "", fmt.Errorf("unknown format %q", s)
	}
}

// Warning flags a site the extractor could not analyze: dynamic SQL, a
// conditional SQL path, or an unanalyzable block.
type Warning struct {
	File    string `json:"file"`
	Line    int    `json:"line"`
	Column  int    `json:"column"`
	Message string `json:"message"`
}

// Result is the output of one extraction.
type Result struct {
	SQL      string
	Warnings []Warning

	// AutoCommit is set when the host migration disables its wrapping
	// transaction, so each statement commits on its own.
	AutoCommit bool
}

// File reads and extracts a migration file, auto-detecting the format when
// asked to.
func File(path string, format Format) (*Result, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading migration %q: %w", path, err)
	}
	return Source(path, src, format)
}

// Source extracts from an in-memory migration source.
func Source(path string, src []byte, format Format) (*Result, error) {
	if format == FormatAuto || format == "" {
		format = Detect(path, src)
	}

	switch format {
	case FormatSQL, FormatPrisma, FormatDrizzle:
		return extractSQL(src), nil
	case FormatTypeORM:
		return extractTypeORM(path, string(stripBOM(src))), nil
	case FormatKnex:
		return extractKnex(path, string(stripBOM(src))), nil
	case FormatSequelize:
		return extractSequelize(path, string(stripBOM(src))), nil
	default:
		return nil, fmt.Errorf("unknown format %q", format)
	}
}

// Detect sniffs the migration format from the file extension and content.
func Detect(path string, src []byte) Format {
	ext := strings.ToLower(filepath.Ext(path))
	if ext == ".sql" {
		return FormatSQL
	}
	if ext != ".ts" && ext != ".js" && ext != ".mjs" && ext != ".cjs" {
		return FormatSQL
	}

	body := string(src)
	switch {
	case strings.Contains(body, "MigrationInterface") || strings.Contains(body, "queryRunner"):
		return FormatTypeORM
	case strings.Contains(body, "queryInterface") || strings.Contains(body, "Sequelize"):
		return FormatSequelize
	case strings.Contains(body, "knex"):
		return FormatKnex
	default:
		return FormatKnex
	}
}

// utf8BOM is the UTF-8 byte order mark.
var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

func stripBOM(src []byte) []byte {
	if len(src) >= len(utf8BOM) && string(src[:len(utf8BOM)]) == string(utf8BOM) {
		return src[len(utf8BOM):]
	}
	return src
}

// extractSQL handles raw SQL, Prisma, and Drizzle migrations: the file
// body is the SQL.
func extractSQL(src []byte) *Result {
	return &Result{SQL: string(stripBOM(src))}
}

// sqlJoiner accumulates lifted SQL fragments, ensuring each fragment ends
// with a statement terminator.
type sqlJoiner struct {
	parts []string
}

func (j *sqlJoiner) add(sql string) {
	sql = strings.TrimSpace(sql)
	if sql == "" {
		return
	}
	if !strings.HasSuffix(sql, ";") {
		sql += ";"
	}
	j.parts = append(j.parts, sql)
}

func (j *sqlJoiner) String() string {
	return strings.Join(j.parts, "\n")
}
