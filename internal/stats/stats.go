// Package stats supplies table-size snapshots to the risk adjuster, either
// from a JSON stats file or from a one-shot read-only query against
// pg_stat_user_tables.
package stats

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/flvmnt/pgfence/internal/risk"
)

// fileEnvelope accepts the wrapped form {"tables": [...]}.
type fileEnvelope struct {
	Tables []risk.TableStats `json:"tables"`
}

// LoadFile reads a stats file: either a bare JSON array of table stats or
// an object with a "tables" array.
func LoadFile(path string) ([]risk.TableStats, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading stats file %q: %w", path, err)
	}
	return Decode(data, path)
}

// Decode parses stats JSON in either accepted shape.
func Decode(data []byte, source string) ([]risk.TableStats, error) {
	var list []risk.TableStats
	if err := json.Unmarshal(data, &list); err == nil {
		return list, nil
	}

	var env fileEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("stats file %q is neither a JSON array nor {\"tables\": [...]}: %w", source, err)
	}
	if env.Tables == nil {
		return nil, fmt.Errorf("stats file %q has no \"tables\" array", source)
	}
	return env.Tables, nil
}
