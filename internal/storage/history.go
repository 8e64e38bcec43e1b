package storage

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/joyautomation/mantle/internal/merr"
	"github.com/joyautomation/mantle/internal/topology"
)

// Sample is one history row to be inserted.
type Sample struct {
	Identity topology.Identity
	TS       int64
	Value    topology.Value
}

// RecordSample inserts a single history row. A duplicate (identity, ts)
// insert is a replayed payload and is silently ignored; any other storage
// error is wrapped as merr.Transient so the caller logs and drops the
// sample without aborting ingestion.
func (s *Store) RecordSample(ctx context.Context, sample Sample) error {
	iv, fv, sv, bv := columnsFromValue(sample.Value)
	_, err := s.Pool.Exec(ctx, `
		INSERT INTO history (grp, node, device, metric, ts, int_value, float_value, string_value, bool_value)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		ON CONFLICT (grp, node, device, metric, ts) DO NOTHING
	`, sample.Identity.Group, sample.Identity.Node, sample.Identity.Device, sample.Identity.Metric,
		sample.TS, iv, fv, sv, bv)
	if err != nil {
		return merr.Transient("record sample", err)
	}
	return nil
}

// RecordSamplesBatch batch-inserts history rows via pgx.CopyFrom.
// CopyFrom does not support ON CONFLICT, so duplicate-key batches fall
// back row-by-row through RecordSample, preserving the "duplicate is
// non-fatal" invariant.
func (s *Store) RecordSamplesBatch(ctx context.Context, samples []Sample) error {
	if len(samples) == 0 {
		return nil
	}
	rows := make([][]any, len(samples))
	for i, sample := range samples {
		iv, fv, sv, bv := columnsFromValue(sample.Value)
		rows[i] = []any{sample.Identity.Group, sample.Identity.Node, sample.Identity.Device,
			sample.Identity.Metric, sample.TS, iv, fv, sv, bv}
	}

	_, err := s.Pool.CopyFrom(ctx,
		pgx.Identifier{"history"},
		[]string{"grp", "node", "device", "metric", "ts", "int_value", "float_value", "string_value", "bool_value"},
		pgx.CopyFromRows(rows),
	)
	if err == nil {
		return nil
	}

	var pgErr *pgconn.PgError
	if isUniqueViolation(err, &pgErr) {
		for _, sample := range samples {
			if err := s.RecordSample(ctx, sample); err != nil {
				return err
			}
		}
		return nil
	}
	return merr.Transient("record sample batch", err)
}

// PropertySample is a single history_properties audit row (distinct from
// the metric_properties document the property store maintains).
type PropertySample struct {
	Identity   topology.Identity
	PropertyID string
	TS         int64
	Value      topology.Value
}

// RecordProperty appends a property-change audit row.
func (s *Store) RecordProperty(ctx context.Context, p PropertySample) error {
	iv, fv, sv, bv := columnsFromValue(p.Value)
	_, err := s.Pool.Exec(ctx, `
		INSERT INTO history_properties (grp, node, device, metric, property_id, ts, int_value, float_value, string_value, bool_value)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		ON CONFLICT (grp, node, device, metric, property_id, ts) DO NOTHING
	`, p.Identity.Group, p.Identity.Node, p.Identity.Device, p.Identity.Metric, p.PropertyID,
		p.TS, iv, fv, sv, bv)
	if err != nil {
		return merr.Transient("record property", err)
	}
	return nil
}

// DeleteByIdentityPrefix removes all history and history_properties rows
// for group/node[/device[/metric]], used by the delete cascade. Device
// and/or metric may be empty to match broader scopes.
func (s *Store) DeleteByIdentityPrefix(ctx context.Context, group, node, device, metric string) error {
	sql, args := buildPrefixDeleteSQL("history_properties", group, node, device, metric)
	if _, err := s.Pool.Exec(ctx, sql, args...); err != nil {
		return merr.Transient("delete history_properties", err)
	}
	sql, args = buildPrefixDeleteSQL("history", group, node, device, metric)
	if _, err := s.Pool.Exec(ctx, sql, args...); err != nil {
		return merr.Transient("delete history", err)
	}
	return nil
}

func buildPrefixDeleteSQL(table, group, node, device, metric string) (string, []any) {
	where := "grp = $1 AND node = $2"
	args := []any{group, node}
	// A named metric pins the device coordinate exactly (an empty device
	// is the node-level scope, not a wildcard); without a metric, an
	// empty device widens the delete to the whole node.
	if device != "" || metric != "" {
		where += " AND device = $3"
		args = append(args, device)
	}
	if metric != "" {
		where += " AND metric = $4"
		args = append(args, metric)
	}
	return fmt.Sprintf("DELETE FROM %s WHERE %s", table, where), args
}

func columnsFromValue(v topology.Value) (iv *int64, fv *float64, sv *string, bv *bool) {
	switch v.Kind {
	case topology.KindInt:
		i := v.I
		iv = &i
	case topology.KindFloat:
		f := v.F
		fv = &f
	case topology.KindString:
		s := v.S
		sv = &s
	case topology.KindBool:
		b := v.B
		bv = &b
	}
	return
}

func isUniqueViolation(err error, out **pgconn.PgError) bool {
	var pgErr *pgconn.PgError
	if ok := asPgError(err, &pgErr); ok && pgErr.Code == "23505" {
		*out = pgErr
		return true
	}
	return false
}
