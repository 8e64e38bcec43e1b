package storage

import (
	"context"
	"fmt"
	"strings"
)

// migration defines a single idempotent schema migration.
type migration struct {
	name  string
	sql   string
	check string // query that returns true if the migration is already applied
}

// migrations is the ordered list of schema migrations. List order is
// application order — the hypertable-creation migrations run
// before the chunk-interval and compression-policy migrations that depend
// on them.
var migrations = []migration{
	{
		name: "create history hypertable",
		sql: `SELECT create_hypertable('history', by_range('ts'), if_not_exists => true, migrate_data => true)`,
		check: `SELECT EXISTS (
			SELECT 1 FROM timescaledb_information.hypertables WHERE hypertable_name = 'history'
		)`,
	},
	{
		name: "create history_properties hypertable",
		sql: `SELECT create_hypertable('history_properties', by_range('ts'), if_not_exists => true, migrate_data => true)`,
		check: `SELECT EXISTS (
			SELECT 1 FROM timescaledb_information.hypertables WHERE hypertable_name = 'history_properties'
		)`,
	},
	{
		// ts is bigint milliseconds, so intervals are expressed in ms.
		name:  "set history chunk interval to 1 day",
		sql:   `SELECT set_chunk_time_interval('history', 86400000)`,
		check: `SELECT NOT EXISTS (SELECT 1 FROM timescaledb_information.dimensions WHERE hypertable_name = 'history' AND integer_interval IS DISTINCT FROM 86400000)`,
	},
	{
		name:  "set history_properties chunk interval to 1 day",
		sql:   `SELECT set_chunk_time_interval('history_properties', 86400000)`,
		check: `SELECT NOT EXISTS (SELECT 1 FROM timescaledb_information.dimensions WHERE hypertable_name = 'history_properties' AND integer_interval IS DISTINCT FROM 86400000)`,
	},
	{
		name:  "set history integer now func",
		sql:   `SELECT set_integer_now_func('history', 'unix_now_ms', replace_if_exists => true)`,
		check: `SELECT EXISTS (SELECT 1 FROM timescaledb_information.dimensions WHERE hypertable_name = 'history' AND integer_now_func = 'unix_now_ms')`,
	},
	{
		name:  "set history_properties integer now func",
		sql:   `SELECT set_integer_now_func('history_properties', 'unix_now_ms', replace_if_exists => true)`,
		check: `SELECT EXISTS (SELECT 1 FROM timescaledb_information.dimensions WHERE hypertable_name = 'history_properties' AND integer_now_func = 'unix_now_ms')`,
	},
	{
		name: "enable history compression",
		sql: `ALTER TABLE history SET (
			timescaledb.compress,
			timescaledb.compress_segmentby = 'grp,node,device,metric',
			timescaledb.compress_orderby = 'ts DESC'
		)`,
		check: `SELECT EXISTS (SELECT 1 FROM timescaledb_information.compression_settings WHERE hypertable_name = 'history')`,
	},
	{
		name: "enable history_properties compression",
		sql: `ALTER TABLE history_properties SET (
			timescaledb.compress,
			timescaledb.compress_segmentby = 'grp,node,device,metric,property_id',
			timescaledb.compress_orderby = 'ts DESC'
		)`,
		check: `SELECT EXISTS (SELECT 1 FROM timescaledb_information.compression_settings WHERE hypertable_name = 'history_properties')`,
	},
	{
		name:  "add history compression policy (1 hour)",
		sql:   `SELECT add_compression_policy('history', compress_after => 3600000)`,
		check: `SELECT EXISTS (SELECT 1 FROM timescaledb_information.jobs WHERE hypertable_name = 'history' AND proc_name = 'policy_compression')`,
	},
	{
		name:  "add history_properties compression policy (24 hours)",
		sql:   `SELECT add_compression_policy('history_properties', compress_after => 86400000)`,
		check: `SELECT EXISTS (SELECT 1 FROM timescaledb_information.jobs WHERE hypertable_name = 'history_properties' AND proc_name = 'policy_compression')`,
	},
	{
		name:  "composite index on history identity+ts",
		sql:   `CREATE INDEX IF NOT EXISTS idx_history_identity_ts ON history (grp, node, device, metric, ts DESC)`,
		check: `SELECT EXISTS (SELECT 1 FROM pg_indexes WHERE indexname = 'idx_history_identity_ts')`,
	},
}

// Migrate runs all pending schema migrations in order, skipping any already
// applied per their check query. Compression is an optional capability of
// the time-series engine: if the TimescaleDB extension is not
// installed, the create_hypertable/compression statements will fail and
// Migrate returns a *MigrationError describing exactly what to run
// manually — the storage layer still functions against plain Postgres
// tables in the meantime (schema.go creates the base tables regardless).
func (s *Store) Migrate(ctx context.Context) error {
	var pending []migration
	for _, m := range migrations {
		if m.check != "" {
			var exists bool
			if err := s.Pool.QueryRow(ctx, m.check).Scan(&exists); err == nil && exists {
				continue
			}
		}
		pending = append(pending, m)
	}

	if len(pending) == 0 {
		return nil
	}

	applied := 0
	for _, m := range pending {
		if _, err := s.Pool.Exec(ctx, m.sql); err != nil {
			return &MigrationError{failed: m, pending: pending[applied:], err: err}
		}
		s.log.Info().Str("migration", m.name).Msg("schema migration applied")
		applied++
	}
	s.log.Info().Int("applied", applied).Msg("schema migrations complete")
	return nil
}

// MigrationError is returned when a migration fails. It carries the SQL
// needed to apply all remaining migrations manually, for an operator to
// run directly (e.g. when TimescaleDB features require superuser).
type MigrationError struct {
	failed  migration
	pending []migration
	err     error
}

func (e *MigrationError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "migration %q failed: %v\n\n", e.failed.name, e.err)
	b.WriteString("Run the following SQL as a database superuser to fix this:\n\n")
	for _, m := range e.pending {
		fmt.Fprintf(&b, "  %s;\n", m.sql)
	}
	b.WriteString("\nThen restart mantle.")
	return b.String()
}

func (e *MigrationError) Unwrap() error {
	return e.err
}
