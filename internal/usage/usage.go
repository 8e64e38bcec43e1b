// Package usage implements the storage layer's usage and storage-stats
// queries: approximate row counts and a per-month breakdown computed from
// hypertable chunk metadata when TimescaleDB is present, falling back to
// a direct (still correct, just less cheap) query against plain
// Postgres — the same graceful-degradation posture
// internal/storage/migrations.go uses for hypertable creation.
package usage

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/joyautomation/mantle/internal/merr"
)

// MonthCount is one row of a usage breakdown: approximate row count for
// one (year, month) bucket of a table.
type MonthCount struct {
	Year  int   `json:"year"`
	Month int   `json:"month"`
	Rows  int64 `json:"rows"`
}

// Stats is the usage query's response shape.
type Stats struct {
	ApproxTotal int64         `json:"approxTotal"`
	PerMonth    []MonthCount  `json:"perMonth"`
}

// Usage computes approximate row counts for the history table, using the
// time-series engine's row estimate when available rather than an O(n)
// COUNT(*) over what may be billions of rows.
func Usage(ctx context.Context, pool *pgxpool.Pool) (*Stats, error) {
	total, err := approxTotal(ctx, pool, "history")
	if err != nil {
		return nil, err
	}
	months, err := perMonth(ctx, pool, "history")
	if err != nil {
		return nil, err
	}
	return &Stats{ApproxTotal: total, PerMonth: months}, nil
}

func approxTotal(ctx context.Context, pool *pgxpool.Pool, table string) (int64, error) {
	var n int64
	err := pool.QueryRow(ctx, `SELECT approximate_row_count($1)`, table).Scan(&n)
	if err == nil {
		return n, nil
	}
	if !isUndefinedFunction(err) {
		return 0, merr.Transient("approximate row count", err)
	}

	// TimescaleDB not installed: fall back to the planner's own estimate
	// for the table, still O(1) since it reads pg_class, not the table.
	err = pool.QueryRow(ctx, `SELECT GREATEST(reltuples, 0)::bigint FROM pg_class WHERE relname = $1`, table).Scan(&n)
	if err != nil {
		return 0, merr.Transient("estimate row count from pg_class", err)
	}
	return n, nil
}

// perMonth groups chunk metadata by (year, month) of each chunk's range
// start, using the per-relation reltuples estimate for each chunk. When
// hypertables are not available it falls back to an exact COUNT(*) of
// history rows grouped by (year, month).
func perMonth(ctx context.Context, pool *pgxpool.Pool, table string) ([]MonthCount, error) {
	rows, err := pool.Query(ctx, `
		SELECT EXTRACT(YEAR FROM ch.range_start)::int AS yr,
		       EXTRACT(MONTH FROM ch.range_start)::int AS mo,
		       COALESCE(SUM(GREATEST(c.reltuples, 0)), 0)::bigint AS rows
		FROM timescaledb_information.chunks ch
		JOIN pg_class c ON c.relname = ch.chunk_name
		WHERE ch.hypertable_name = $1
		GROUP BY yr, mo
		ORDER BY yr DESC, mo DESC
	`, table)
	if err == nil {
		defer rows.Close()
		var out []MonthCount
		for rows.Next() {
			var m MonthCount
			if err := rows.Scan(&m.Year, &m.Month, &m.Rows); err != nil {
				return nil, merr.Decode("scan usage month row", err)
			}
			out = append(out, m)
		}
		return out, rows.Err()
	}
	if !isUndefinedTable(err) {
		return nil, merr.Transient("query chunk usage", err)
	}

	// No hypertables table: plain Postgres. Bucket the actual history
	// rows by month directly — correct, just not chunk-metadata-cheap.
	plainRows, err := pool.Query(ctx, `
		SELECT EXTRACT(YEAR FROM to_timestamp(ts/1000.0))::int AS yr,
		       EXTRACT(MONTH FROM to_timestamp(ts/1000.0))::int AS mo,
		       COUNT(*)::bigint AS rows
		FROM history
		GROUP BY yr, mo
		ORDER BY yr DESC, mo DESC
	`)
	if err != nil {
		return nil, merr.Transient("query plain-postgres usage", err)
	}
	defer plainRows.Close()

	var out []MonthCount
	for plainRows.Next() {
		var m MonthCount
		if err := plainRows.Scan(&m.Year, &m.Month, &m.Rows); err != nil {
			return nil, merr.Decode("scan plain usage row", err)
		}
		out = append(out, m)
	}
	return out, plainRows.Err()
}

// TableStats is one row of the storageStats() response: byte size of a
// table (including its indexes and, for hypertables, its chunks).
type TableStats struct {
	Table string `json:"table"`
	Bytes int64  `json:"bytes"`
}

// StorageStatsResult is the storageStats query's response shape.
type StorageStatsResult struct {
	PerTable         []TableStats `json:"perTable"`
	CompressionRatio float64      `json:"compressionRatio"`
}

var statsTables = []string{"history", "history_properties", "metric_properties", "hidden_items", "alarm_rules", "alarm_state", "alarm_history"}

// StorageStats reports on-disk size per logical table and, when
// TimescaleDB compression is enabled on `history`, the ratio of
// uncompressed to compressed bytes (1.0 when compression is not active
// or not available).
func StorageStats(ctx context.Context, pool *pgxpool.Pool) (*StorageStatsResult, error) {
	var perTable []TableStats
	for _, t := range statsTables {
		var bytes int64
		err := pool.QueryRow(ctx, `SELECT COALESCE(pg_total_relation_size($1::regclass), 0)`, t).Scan(&bytes)
		if err != nil {
			// Table may not exist yet (fresh install before first migration
			// touches it); omit it rather than failing the whole call.
			if isUndefinedTable(err) {
				continue
			}
			return nil, merr.Transient("table size for "+t, err)
		}
		perTable = append(perTable, TableStats{Table: t, Bytes: bytes})
	}

	ratio, err := compressionRatio(ctx, pool)
	if err != nil {
		return nil, err
	}

	return &StorageStatsResult{PerTable: perTable, CompressionRatio: ratio}, nil
}

func compressionRatio(ctx context.Context, pool *pgxpool.Pool) (float64, error) {
	var before, after *int64
	err := pool.QueryRow(ctx, `
		SELECT SUM(before_compression_total_bytes), SUM(after_compression_total_bytes)
		FROM chunk_compression_stats('history')
	`).Scan(&before, &after)
	if err != nil {
		if isUndefinedFunction(err) {
			return 1.0, nil
		}
		return 1.0, merr.Transient("compression stats", err)
	}
	if before == nil || after == nil || *after == 0 {
		return 1.0, nil
	}
	return float64(*before) / float64(*after), nil
}

func isUndefinedFunction(err error) bool {
	return pgErrorCode(err) == "42883"
}

func isUndefinedTable(err error) bool {
	return pgErrorCode(err) == "42P01"
}

func pgErrorCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return ""
	}
	return ""
}
