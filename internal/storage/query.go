package storage

import (
	"context"
	"fmt"
	"sort"

	"github.com/jackc/pgx/v5"
	"github.com/joyautomation/mantle/internal/topology"
	"github.com/joyautomation/mantle/internal/validate"
)

// Point is a single time-series value in a query result.
type Point struct {
	TS    int64
	Value topology.Value
}

// IdentitySeries is one identity's time-ordered points, in the windowed
// query result.
type IdentitySeries struct {
	Identity topology.Identity
	Points   []Point
}

// QueryWindowOptions configures a windowed downsample query.
type QueryWindowOptions struct {
	Identities []topology.Identity
	Start      int64 // ms since epoch, inclusive
	End        int64 // ms since epoch, inclusive
	Interval   int64 // explicit bucket size in seconds; 0 = auto from Samples
	Samples    int   // desired sample count when Interval is 0 (default 100)
	Raw        bool  // true = raw values, no bucketing/aggregation
	LeftEdge   bool  // synthesize a window-start point from the last sample before Start
}

// QueryWindow runs the windowed-downsample query.
func (s *Store) QueryWindow(ctx context.Context, opts QueryWindowOptions) ([]IdentitySeries, error) {
	if len(opts.Identities) == 0 {
		return nil, nil
	}

	result := make(map[string]*IdentitySeries, len(opts.Identities))
	order := make([]string, 0, len(opts.Identities))
	for _, id := range opts.Identities {
		k := id.Key()
		result[k] = &IdentitySeries{Identity: id}
		order = append(order, k)
	}

	grps, nodes, devices, metrics := splitIdentities(opts.Identities)

	var rows pgx.Rows
	var err error

	if opts.Raw {
		rows, err = s.Pool.Query(ctx, `
			SELECT grp, node, device, metric, ts, int_value, float_value, string_value, bool_value
			FROM history
			WHERE ts BETWEEN $1 AND $2
			  AND (grp, node, device, metric) IN (
			      SELECT * FROM unnest($3::text[], $4::text[], $5::text[], $6::text[])
			  )
			ORDER BY grp, node, device, metric, ts
		`, opts.Start, opts.End, grps, nodes, devices, metrics)
	} else {
		bucketSec := opts.Interval
		if bucketSec <= 0 {
			bucketSec = validate.AutoInterval(opts.End-opts.Start, opts.Samples)
		}
		rows, err = s.Pool.Query(ctx, `
			SELECT grp, node, device, metric,
			       (floor(ts / ($7 * 1000)) * ($7 * 1000))::bigint AS bucket_ts,
			       AVG(COALESCE(float_value, int_value::double precision,
			                    CASE WHEN bool_value THEN 1 ELSE 0 END)) AS value
			FROM history
			WHERE ts BETWEEN $1 AND $2
			  AND (grp, node, device, metric) IN (
			      SELECT * FROM unnest($3::text[], $4::text[], $5::text[], $6::text[])
			  )
			GROUP BY grp, node, device, metric, bucket_ts
			ORDER BY grp, node, device, metric, bucket_ts
		`, opts.Start, opts.End, grps, nodes, devices, metrics, bucketSec)
	}
	if err != nil {
		return nil, fmt.Errorf("query window: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var grp, node, device, metric string
		var ts int64
		if opts.Raw {
			var iv *int64
			var fv *float64
			var sv *string
			var bv *bool
			if err := rows.Scan(&grp, &node, &device, &metric, &ts, &iv, &fv, &sv, &bv); err != nil {
				return nil, fmt.Errorf("scan raw row: %w", err)
			}
			v := valueFromColumns(iv, fv, sv, bv)
			appendPoint(result, grp, node, device, metric, ts, v)
		} else {
			var v float64
			if err := rows.Scan(&grp, &node, &device, &metric, &ts, &v); err != nil {
				return nil, fmt.Errorf("scan bucket row: %w", err)
			}
			appendPoint(result, grp, node, device, metric, ts, topology.Float(v))
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if opts.LeftEdge {
		if err := s.fillLeftEdge(ctx, result, opts); err != nil {
			return nil, err
		}
	}

	out := make([]IdentitySeries, 0, len(order))
	for _, k := range order {
		series := result[k]
		sort.Slice(series.Points, func(i, j int) bool { return series.Points[i].TS < series.Points[j].TS })
		out = append(out, *series)
	}
	return out, nil
}

// fillLeftEdge synthesises a point at Start for every identity that has no
// sample exactly at Start, using the single most recent sample strictly
// before Start.
func (s *Store) fillLeftEdge(ctx context.Context, result map[string]*IdentitySeries, opts QueryWindowOptions) error {
	grps, nodes, devices, metrics := splitIdentities(opts.Identities)

	rows, err := s.Pool.Query(ctx, `
		SELECT DISTINCT ON (grp, node, device, metric)
		       grp, node, device, metric, int_value, float_value, string_value, bool_value
		FROM history
		WHERE ts < $1
		  AND (grp, node, device, metric) IN (
		      SELECT * FROM unnest($2::text[], $3::text[], $4::text[], $5::text[])
		  )
		ORDER BY grp, node, device, metric, ts DESC
	`, opts.Start, grps, nodes, devices, metrics)
	if err != nil {
		return fmt.Errorf("left-edge query: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var grp, node, device, metric string
		var iv *int64
		var fv *float64
		var sv *string
		var bv *bool
		if err := rows.Scan(&grp, &node, &device, &metric, &iv, &fv, &sv, &bv); err != nil {
			return fmt.Errorf("scan left-edge row: %w", err)
		}
		key := topology.Identity{Group: grp, Node: node, Device: device, Metric: metric}.Key()
		series, ok := result[key]
		if !ok {
			continue
		}
		hasStart := false
		for _, p := range series.Points {
			if p.TS == opts.Start {
				hasStart = true
				break
			}
		}
		if !hasStart {
			series.Points = append(series.Points, Point{TS: opts.Start, Value: valueFromColumns(iv, fv, sv, bv)})
		}
	}
	return rows.Err()
}

func appendPoint(result map[string]*IdentitySeries, grp, node, device, metric string, ts int64, v topology.Value) {
	key := topology.Identity{Group: grp, Node: node, Device: device, Metric: metric}.Key()
	if series, ok := result[key]; ok {
		series.Points = append(series.Points, Point{TS: ts, Value: v})
	}
}

func valueFromColumns(iv *int64, fv *float64, sv *string, bv *bool) topology.Value {
	switch {
	case iv != nil:
		return topology.Int(*iv)
	case fv != nil:
		return topology.Float(*fv)
	case bv != nil:
		return topology.Bool(*bv)
	case sv != nil:
		return topology.String(*sv)
	default:
		return topology.Null()
	}
}

func splitIdentities(ids []topology.Identity) (grps, nodes, devices, metrics []string) {
	for _, id := range ids {
		grps = append(grps, id.Group)
		nodes = append(nodes, id.Node)
		devices = append(devices, id.Device)
		metrics = append(metrics, id.Metric)
	}
	return
}
