// Package hidden implements the hidden-item filter:
// declarative hiding at node/device/metric granularity, applied as a
// cascading predicate over a topology projection.
package hidden

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/joyautomation/mantle/internal/merr"
	"github.com/joyautomation/mantle/internal/topology"
)

// Item is one hidden_items row. Empty Device/Metric means "hide all
// descendants" at that level.
type Item struct {
	Group    string `json:"group"`
	Node     string `json:"node"`
	Device   string `json:"device,omitempty"`
	Metric   string `json:"metric,omitempty"`
	HiddenAt int64  `json:"hiddenAt"`
}

// Set holds a precomputed hidden-key set in three forms: "node:g/n",
// "device:g/n/d", "g/n/d/m". Built once per request from the
// hidden_items table, then consulted in O(1) per lookup.
type Set struct {
	nodes   map[string]bool
	devices map[string]bool
	metrics map[string]bool
}

func nodeKey(group, node string) string          { return group + "/" + node }
func deviceKey(group, node, device string) string { return group + "/" + node + "/" + device }

func metricKey(group, node, device, metric string) string {
	return group + "/" + node + "/" + device + "/" + metric
}

// IsHidden reports whether the given identity is hidden by this set,
// cascading: a hidden node hides every device and metric beneath it, a
// hidden device hides every metric beneath it.
func (s *Set) IsHidden(group, node, device, metric string) bool {
	if s == nil {
		return false
	}
	if s.nodes[nodeKey(group, node)] {
		return true
	}
	if device != "" && s.devices[deviceKey(group, node, device)] {
		return true
	}
	return s.metrics[metricKey(group, node, device, metric)]
}

// Store manages the hidden_items table and builds Set projections from it.
type Store struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Load builds a Set from the current hidden_items table.
func (s *Store) Load(ctx context.Context) (*Set, error) {
	rows, err := s.pool.Query(ctx, `SELECT grp, node, device, metric FROM hidden_items`)
	if err != nil {
		return nil, merr.Transient("load hidden items", err)
	}
	defer rows.Close()

	set := &Set{
		nodes:   make(map[string]bool),
		devices: make(map[string]bool),
		metrics: make(map[string]bool),
	}
	for rows.Next() {
		var group, node, device, metric string
		if err := rows.Scan(&group, &node, &device, &metric); err != nil {
			return nil, merr.Decode("scan hidden item", err)
		}
		switch {
		case device == "" && metric == "":
			set.nodes[nodeKey(group, node)] = true
		case metric == "":
			set.devices[deviceKey(group, node, device)] = true
		default:
			set.metrics[metricKey(group, node, device, metric)] = true
		}
	}
	return set, rows.Err()
}

// ListItems returns every hidden_items row, for display in the
// `hiddenItems` query surface (distinct from Load's precomputed Set,
// which is shaped for O(1) filtering rather than enumeration).
func (s *Store) ListItems(ctx context.Context) ([]Item, error) {
	rows, err := s.pool.Query(ctx, `SELECT grp, node, device, metric, hidden_at FROM hidden_items ORDER BY hidden_at DESC`)
	if err != nil {
		return nil, merr.Transient("list hidden items", err)
	}
	defer rows.Close()

	var out []Item
	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.Group, &it.Node, &it.Device, &it.Metric, &it.HiddenAt); err != nil {
			return nil, merr.Decode("scan hidden item", err)
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

// Hide adds a hidden_items entry.
func (s *Store) Hide(ctx context.Context, item Item) error {
	if item.HiddenAt == 0 {
		item.HiddenAt = time.Now().UnixMilli()
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO hidden_items (grp, node, device, metric, hidden_at)
		VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT (grp, node, device, metric) DO UPDATE SET hidden_at = EXCLUDED.hidden_at
	`, item.Group, item.Node, item.Device, item.Metric, item.HiddenAt)
	if err != nil {
		return merr.Transient("hide item", err)
	}
	return nil
}

// Unhide removes a hidden_items entry.
func (s *Store) Unhide(ctx context.Context, group, node, device, metric string) error {
	_, err := s.pool.Exec(ctx, `
		DELETE FROM hidden_items WHERE grp=$1 AND node=$2 AND device=$3 AND metric=$4
	`, group, node, device, metric)
	if err != nil {
		return merr.Transient("unhide item", err)
	}
	return nil
}

// DeleteByPrefix removes hidden_items entries under group/node[/device],
// used by the delete cascade.
func (s *Store) DeleteByPrefix(ctx context.Context, group, node, device string) error {
	if device == "" {
		_, err := s.pool.Exec(ctx, `DELETE FROM hidden_items WHERE grp=$1 AND node=$2`, group, node)
		if err != nil {
			return merr.Transient("delete hidden items by node", err)
		}
		return nil
	}
	_, err := s.pool.Exec(ctx, `DELETE FROM hidden_items WHERE grp=$1 AND node=$2 AND device=$3`, group, node, device)
	if err != nil {
		return merr.Transient("delete hidden items by device", err)
	}
	return nil
}

// ApplyToHost returns a pruned copy of host with hidden groups/nodes/
// devices/metrics removed. Groups with zero remaining nodes are dropped
// entirely.
// When includeHidden is true the filter is a no-op and host is returned
// unpruned.
func ApplyToHost(host *topology.Host, set *Set, includeHidden bool) *topology.Host {
	if includeHidden || set == nil {
		return host
	}

	pruned := topology.NewHost()
	for _, tmpl := range host.Templates {
		pruned.PutTemplate(*tmpl)
	}

	for gname, g := range host.Groups {
		for nname, n := range g.Nodes {
			if set.nodes[nodeKey(gname, nname)] {
				continue
			}
			for mname, m := range n.Metrics {
				if set.metrics[metricKey(gname, nname, "", mname)] {
					continue
				}
				pruned.UpsertMetric(topology.Identity{Group: gname, Node: nname, Metric: mname}, *m)
			}
			for dname, d := range n.Devices {
				if set.devices[deviceKey(gname, nname, dname)] {
					continue
				}
				for mname, m := range d.Metrics {
					if set.metrics[metricKey(gname, nname, dname, mname)] {
						continue
					}
					pruned.UpsertMetric(topology.Identity{Group: gname, Node: nname, Device: dname, Metric: mname}, *m)
				}
			}
		}
	}
	return pruned
}
