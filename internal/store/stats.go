package store

import (
	"context"
	"fmt"
)

// Stats is a snapshot of the warehouse contents
type Stats struct {
	TableCounts       map[string]int
	ResolvedSongplays int
	FilesByStatus     map[string]int
	BytesLoaded       int64
	TopErrors         []ErrorCount
}

// ErrorCount is a ledger error message and how many files failed with it
type ErrorCount struct {
	Error string
	Count int
}

// CollectStats counts rows per table, resolved songplays and ledger outcomes
func CollectStats(ctx context.Context, q Querier, topErrors int) (*Stats, error) {
	st := &Stats{
		TableCounts:   make(map[string]int, len(Tables)),
		FilesByStatus: make(map[string]int),
	}

	for _, table := range Tables {
		var n int
		if err := q.QueryRow(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %s", table)).Scan(&n); err != nil {
			return nil, wrapStorage("count "+table, err)
		}
		st.TableCounts[table] = n
	}

	err := q.QueryRow(ctx,
		"SELECT COUNT(*) FROM songplays WHERE song_id IS NOT NULL AND artist_id IS NOT NULL",
	).Scan(&st.ResolvedSongplays)
	if err != nil {
		return nil, wrapStorage("count resolved songplays", err)
	}

	err = q.QueryRow(ctx,
		"SELECT CAST(COALESCE(SUM(size_bytes), 0) AS BIGINT) FROM load_files WHERE status = 'loaded'",
	).Scan(&st.BytesLoaded)
	if err != nil {
		return nil, wrapStorage("sum loaded bytes", err)
	}

	rows, err := q.Query(ctx, "SELECT status, COUNT(*) FROM load_files GROUP BY status")
	if err != nil {
		return nil, wrapStorage("count ledger", err)
	}
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			rows.Close()
			return nil, wrapStorage("scan ledger", err)
		}
		st.FilesByStatus[status] = n
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, wrapStorage("count ledger", err)
	}

	if topErrors <= 0 {
		return st, nil
	}

	rows, err = q.Query(ctx, fmt.Sprintf(`SELECT error, COUNT(*) AS n FROM load_files
		WHERE status = 'failed' AND error IS NOT NULL
		GROUP BY error ORDER BY n DESC, error LIMIT %d`, topErrors))
	if err != nil {
		return nil, wrapStorage("top errors", err)
	}
	defer rows.Close()
	for rows.Next() {
		var ec ErrorCount
		if err := rows.Scan(&ec.Error, &ec.Count); err != nil {
			return nil, wrapStorage("scan top errors", err)
		}
		st.TopErrors = append(st.TopErrors, ec)
	}
	return st, wrapStorage("top errors", rows.Err())
}
