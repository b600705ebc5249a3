package stats

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/flvmnt/pgfence/internal/risk"
)

// statsQuery reads live row counts and total sizes. n_live_tup is an
// estimate maintained by autovacuum, which is exactly the precision the
// risk adjuster needs.
const statsQuery = `
SELECT schemaname, relname, n_live_tup, pg_total_relation_size(relid)
FROM pg_stat_user_tables
ORDER BY schemaname, relname`

// Fetch opens a one-shot connection, pins it read-only, tags it in
// pg_stat_activity, and pulls the per-table statistics.
func Fetch(ctx context.Context, databaseURL string) ([]risk.TableStats, error) {
	conn, err := pgx.Connect(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}
	defer conn.Close(ctx)

	if _, err := conn.Exec(ctx, "SET default_transaction_read_only = on"); err != nil {
		return nil, fmt.Errorf("pinning connection read-only: %w", err)
	}
	if _, err := conn.Exec(ctx, "SET application_name = 'pgfence'"); err != nil {
		return nil, fmt.Errorf("setting application_name: %w", err)
	}

	rows, err := conn.Query(ctx, statsQuery)
	if err != nil {
		return nil, fmt.Errorf("querying pg_stat_user_tables: %w", err)
	}
	defer rows.Close()

	var stats []risk.TableStats
	for rows.Next() {
		var s risk.TableStats
		if err := rows.Scan(&s.SchemaName, &s.TableName, &s.RowCount, &s.TotalBytes); err != nil {
			return nil, fmt.Errorf("scanning stats row: %w", err)
		}
		stats = append(stats, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading stats rows: %w", err)
	}

	return stats, nil
}
