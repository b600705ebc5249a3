package risk

import "strings"

// TableStats holds the size snapshot for a single table.
type TableStats struct {
	SchemaName string `json:"schemaName"`
	TableName  string `json:"tableName"`
	RowCount   int64  `json:"rowCount"`
	TotalBytes int64  `json:"totalBytes"`
}

// StatsMap indexes table statistics by unqualified lowercase name and by
// lowercase schema.name. Unqualified lookups take precedence so that a
// finding naming a bare table resolves the same way PostgreSQL's default
// search_path would.
type StatsMap struct {
	byName      map[string]TableStats
	byQualified map[string]TableStats
}

// NewStatsMap builds the two lookup indexes from a stats snapshot.
func NewStatsMap(stats []TableStats) *StatsMap {
	m := &StatsMap{
		byName:      make(map[string]TableStats, len(stats)),
		byQualified: make(map[string]TableStats, len(stats)),
	}
	for _, s := range stats {
		name := strings.ToLower(s.TableName)
		m.byName[name] = s
		if s.SchemaName != "" {
			m.byQualified[strings.ToLower(s.SchemaName)+"."+name] = s
		}
	}
	return m
}

// Lookup resolves a table reference, qualified or not, to its statistics.
func (m *StatsMap) Lookup(table string) (TableStats, bool) {
	if m == nil || table == "" {
		return TableStats{}, false
	}
	key := strings.ToLower(table)
	if s, ok := m.byName[key]; ok {
		return s, true
	}
	if s, ok := m.byQualified[key]; ok {
		return s, true
	}
	// A qualified reference may still match an unqualified entry.
	if i := strings.LastIndex(key, "."); i >= 0 {
		if s, ok := m.byName[key[i+1:]]; ok {
			return s, true
		}
	}
	return TableStats{}, false
}

// Len returns the number of distinct tables in the snapshot.
func (m *StatsMap) Len() int {
	if m == nil {
		return 0
	}
	return len(m.byName)
}
