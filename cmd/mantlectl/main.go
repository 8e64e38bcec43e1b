// mantlectl is a one-shot maintenance CLI for a mantle database: table
// counts, orphaned-row checks, and a manual retention purge. It reads the
// same MANTLE_DB_* environment variables as the main daemon.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/joyautomation/mantle/internal/config"
)

func main() {
	cfg, err := config.Load(config.Overrides{})
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL())
	if err != nil {
		fmt.Fprintf(os.Stderr, "connect: %v\n", err)
		os.Exit(1)
	}
	defer pool.Close()

	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "orphans":
			dryRun := !(len(os.Args) > 2 && os.Args[2] == "apply")
			fixOrphans(ctx, pool, dryRun)
			return
		case "purge":
			if len(os.Args) < 3 {
				fmt.Fprintln(os.Stderr, "usage: mantlectl purge <duration, e.g. 8760h>")
				os.Exit(1)
			}
			retention, err := time.ParseDuration(os.Args[2])
			if err != nil {
				fmt.Fprintf(os.Stderr, "bad duration %q: %v\n", os.Args[2], err)
				os.Exit(1)
			}
			purge(ctx, pool, retention)
			return
		case "chunks":
			showChunks(ctx, pool)
			return
		}
	}

	// Default: table counts
	tables := []string{
		"history", "history_properties", "metric_properties",
		"hidden_items", "alarm_rules", "alarm_state", "alarm_history",
	}
	fmt.Println("Table                    Count")
	fmt.Println("─────────────────────────────────")
	for _, t := range tables {
		var count int64
		pool.QueryRow(ctx, "SELECT count(*) FROM "+t).Scan(&count)
		fmt.Printf("%-25s %d\n", t, count)
	}
}

func purge(ctx context.Context, pool *pgxpool.Pool, retention time.Duration) {
	cutoff := time.Now().Add(-retention).UnixMilli()
	tag, err := pool.Exec(ctx, `DELETE FROM history WHERE ts < $1`, cutoff)
	if err != nil {
		fmt.Fprintf(os.Stderr, "purge history: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Deleted %d history rows older than %s\n", tag.RowsAffected(), retention)
	tag, err = pool.Exec(ctx, `DELETE FROM history_properties WHERE ts < $1`, cutoff)
	if err != nil {
		fmt.Fprintf(os.Stderr, "purge history_properties: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Deleted %d history_properties rows older than %s\n", tag.RowsAffected(), retention)
}

func showChunks(ctx context.Context, pool *pgxpool.Pool) {
	rows, err := pool.Query(ctx, `
		SELECT hypertable_name, chunk_name, range_start, range_end,
		       COALESCE(is_compressed, false)
		FROM timescaledb_information.chunks
		ORDER BY hypertable_name, range_start
	`)
	if err != nil {
		fmt.Fprintf(os.Stderr, "chunk metadata unavailable (timescaledb extension missing?): %v\n", err)
		os.Exit(1)
	}
	defer rows.Close()

	fmt.Println("Hypertable           Chunk                          Range                                       Compressed")
	for rows.Next() {
		var table, chunk string
		var start, end time.Time
		var compressed bool
		if err := rows.Scan(&table, &chunk, &start, &end, &compressed); err != nil {
			fmt.Fprintf(os.Stderr, "scan: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("%-20s %-30s %s → %s  %v\n", table, chunk,
			start.Format(time.RFC3339), end.Format(time.RFC3339), compressed)
	}
}
