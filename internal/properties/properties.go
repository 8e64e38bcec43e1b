// Package properties implements the property store:
// a JSON merge-upsert of per-metric properties such as description, units,
// and engineering range, keyed by the same identity used everywhere else.
package properties

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/joyautomation/mantle/internal/merr"
	"github.com/joyautomation/mantle/internal/topology"
)

// Entry is one stored property value:
// {name -> {value, type-tag, updated-at}}.
type Entry struct {
	Value     any    `json:"value"`
	Type      string `json:"type"`
	UpdatedAt int64  `json:"updatedAt"`
}

// Store upserts and reads the metric_properties jsonb document per
// identity.
type Store struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Upsert shallow-merges entries into the identity's property document:
// incoming keys overwrite, absent keys are preserved. Postgres's
// `||` jsonb concatenation operator does exactly this merge in one
// statement, so no read-modify-write round trip is needed.
func (s *Store) Upsert(ctx context.Context, id topology.Identity, entries map[string]Entry) error {
	if len(entries) == 0 {
		return nil
	}
	patch, err := json.Marshal(entries)
	if err != nil {
		return merr.Programmer("marshal property patch", err)
	}

	now := time.Now().UnixMilli()
	_, err = s.pool.Exec(ctx, `
		INSERT INTO metric_properties (grp, node, device, metric, properties, updated_at)
		VALUES ($1,$2,$3,$4,$5::jsonb,$6)
		ON CONFLICT (grp, node, device, metric) DO UPDATE SET
			properties = metric_properties.properties || EXCLUDED.properties,
			updated_at = EXCLUDED.updated_at
	`, id.Group, id.Node, id.Device, id.Metric, patch, now)
	if err != nil {
		return merr.Transient("upsert properties", err)
	}
	return nil
}

// Get returns the full property document for an identity, or an empty map
// if none exists yet.
func (s *Store) Get(ctx context.Context, id topology.Identity) (map[string]Entry, error) {
	var raw []byte
	err := s.pool.QueryRow(ctx, `
		SELECT properties FROM metric_properties WHERE grp=$1 AND node=$2 AND device=$3 AND metric=$4
	`, id.Group, id.Node, id.Device, id.Metric).Scan(&raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return map[string]Entry{}, nil
		}
		return nil, merr.Transient("get properties", err)
	}

	out := make(map[string]Entry)
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, merr.Decode("decode properties", err)
	}
	return out, nil
}

// Delete removes the property document for an identity, used by the
// delete cascade.
func (s *Store) Delete(ctx context.Context, group, node, device, metric string) error {
	where := "grp=$1 AND node=$2"
	args := []any{group, node}
	// A named metric pins the device coordinate exactly — an empty device
	// is the node-level scope, not a wildcard.
	if device != "" || metric != "" {
		where += " AND device=$3"
		args = append(args, device)
	}
	if metric != "" {
		where += " AND metric=$" + strconv.Itoa(len(args)+1)
		args = append(args, metric)
	}
	_, err := s.pool.Exec(ctx, "DELETE FROM metric_properties WHERE "+where, args...)
	if err != nil {
		return merr.Transient("delete properties", err)
	}
	return nil
}
