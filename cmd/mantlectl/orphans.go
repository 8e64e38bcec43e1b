package main

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// fixOrphans finds metric_properties rows whose identity no longer has
// any history, which usually means a delete was interrupted partway
// through its sequence. With apply, the stragglers are removed.
// hidden_items rows are not checked.
func fixOrphans(ctx context.Context, pool *pgxpool.Pool, dryRun bool) {
	const findOrphanProps = `
		SELECT mp.grp, mp.node, mp.device, mp.metric
		FROM metric_properties mp
		WHERE NOT EXISTS (
			SELECT 1 FROM history h
			WHERE h.grp = mp.grp AND h.node = mp.node
			  AND h.device = mp.device AND h.metric = mp.metric
		)
	`

	rows, err := pool.Query(ctx, findOrphanProps)
	if err != nil {
		fmt.Printf("Error finding orphaned properties: %v\n", err)
		return
	}
	defer rows.Close()

	type key struct {
		grp, node, device, metric string
	}
	var orphans []key
	for rows.Next() {
		var k key
		if err := rows.Scan(&k.grp, &k.node, &k.device, &k.metric); err != nil {
			fmt.Printf("Error scanning orphan: %v\n", err)
			return
		}
		orphans = append(orphans, k)
	}
	rows.Close()

	fmt.Printf("Found %d orphaned metric_properties rows\n", len(orphans))
	if len(orphans) == 0 {
		return
	}

	if dryRun {
		fmt.Println("Dry run — no changes made. Run with 'orphans apply' to remove.")
		for i, k := range orphans {
			if i >= 10 {
				fmt.Printf("  ... and %d more\n", len(orphans)-10)
				break
			}
			fmt.Printf("  %s/%s/%s/%s\n", k.grp, k.node, k.device, k.metric)
		}
		return
	}

	deleted := 0
	for _, k := range orphans {
		tag, err := pool.Exec(ctx, `
			DELETE FROM metric_properties
			WHERE grp=$1 AND node=$2 AND device=$3 AND metric=$4
		`, k.grp, k.node, k.device, k.metric)
		if err != nil {
			fmt.Printf("Error deleting %s/%s/%s/%s: %v\n", k.grp, k.node, k.device, k.metric, err)
			continue
		}
		deleted += int(tag.RowsAffected())
	}
	fmt.Printf("Deleted %d orphaned rows\n", deleted)
}
