// Package snapshot loads schema snapshot JSON produced by the introspection
// collaborator. Rules consult it to confirm cheap conversions, e.g. that an
// ALTER COLUMN TYPE merely widens a varchar.
package snapshot

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// Column describes one column as captured from information_schema.
type Column struct {
	ColumnName             string  `json:"columnName"`
	DataType               string  `json:"dataType"`
	UdtName                string  `json:"udtName"`
	CharacterMaximumLength *int    `json:"characterMaximumLength"`
	NumericPrecision       *int    `json:"numericPrecision"`
	NumericScale           *int    `json:"numericScale"`
	IsNullable             string  `json:"isNullable"`
	ColumnDefault          *string `json:"columnDefault"`
}

// Constraint describes one table constraint.
type Constraint struct {
	ConstraintName string `json:"constraintName"`
	ConstraintType string `json:"constraintType"`
	Definition     string `json:"definition"`
}

// Index describes one index.
type Index struct {
	IndexName  string `json:"indexName"`
	IsUnique   bool   `json:"isUnique"`
	Definition string `json:"definition"`
}

// Table groups the snapshot data for one table.
type Table struct {
	SchemaName  string       `json:"schemaName"`
	TableName   string       `json:"tableName"`
	Columns     []Column     `json:"columns"`
	Constraints []Constraint `json:"constraints"`
	Indexes     []Index      `json:"indexes"`
}

// Snapshot is the full schema capture.
type Snapshot struct {
	Version     string  `json:"version"`
	GeneratedAt string  `json:"generatedAt"`
	Tables      []Table `json:"tables"`
}

// Load reads and decodes a snapshot file.
func Load(path string) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading snapshot %q: %w", path, err)
	}

	var s Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("decoding snapshot %q: %w", path, err)
	}
	return &s, nil
}

// Column resolves a table/column pair, matching the table by unqualified or
// schema-qualified lowercase name.
func (s *Snapshot) Column(table, column string) (*Column, bool) {
	if s == nil {
		return nil, false
	}

	table = strings.ToLower(table)
	column = strings.ToLower(column)

	for i := range s.Tables {
		t := &s.Tables[i]
		name := strings.ToLower(t.TableName)
		qualified := strings.ToLower(t.SchemaName) + "." + name
		if table != name && table != qualified {
			continue
		}
		for j := range t.Columns {
			if strings.ToLower(t.Columns[j].ColumnName) == column {
				return &t.Columns[j], true
			}
		}
	}
	return nil, false
}
