// Package cascade implements the coordinated delete operation:
// deleteNode/deleteDevice/deleteMetric, each touching
// topology, the hot cache, storage, hidden-items, and the property store
// in a fixed order.
package cascade

import (
	"context"

	"github.com/joyautomation/mantle/internal/hidden"
	"github.com/joyautomation/mantle/internal/hotcache"
	"github.com/joyautomation/mantle/internal/properties"
	"github.com/joyautomation/mantle/internal/storage"
	"github.com/joyautomation/mantle/internal/topology"
)

// Engine bundles every component a delete must touch.
type Engine struct {
	Host       *topology.Host
	Store      *storage.Store
	Hidden     *hidden.Store
	Properties *properties.Store
	HotCache   *hotcache.Cache // nil when the hot cache is not configured
}

// DeleteMetric deletes a single metric everywhere it is recorded:
// (a) mutate topology, (b) remove from hot cache if
// connected, (c) delete history_properties then history, (d) remove
// hidden-items, (e) remove metric-properties. A failure at step (c)
// aborts with an error; earlier side effects are NOT rolled back — the
// data model tolerates a stale cache entry re-populating on the next
// BIRTH.
func (e *Engine) DeleteMetric(ctx context.Context, id topology.Identity) error {
	e.Host.DeleteMetric(id)

	if e.HotCache != nil {
		if err := e.HotCache.Delete(ctx, id); err != nil {
			return err
		}
	}

	if err := e.Store.DeleteByIdentityPrefix(ctx, id.Group, id.Node, id.Device, id.Metric); err != nil {
		return err
	}

	if err := e.Hidden.Unhide(ctx, id.Group, id.Node, id.Device, id.Metric); err != nil {
		return err
	}

	if err := e.Properties.Delete(ctx, id.Group, id.Node, id.Device, id.Metric); err != nil {
		return err
	}

	return nil
}

// DeleteDevice performs the same sequence for every metric under a device,
// plus removal of the device's own topology node and hidden-items entry.
func (e *Engine) DeleteDevice(ctx context.Context, group, node, device string) error {
	e.Host.DeleteDevice(group, node, device)

	if e.HotCache != nil {
		if err := e.deleteHotCachePrefix(ctx, group, node, device); err != nil {
			return err
		}
	}

	if err := e.Store.DeleteByIdentityPrefix(ctx, group, node, device, ""); err != nil {
		return err
	}

	if err := e.Hidden.DeleteByPrefix(ctx, group, node, device); err != nil {
		return err
	}

	if err := e.Properties.Delete(ctx, group, node, device, ""); err != nil {
		return err
	}

	return nil
}

// DeleteNode performs the same sequence for an entire node: every device
// and node-level metric beneath it.
func (e *Engine) DeleteNode(ctx context.Context, group, node string) error {
	e.Host.DeleteNode(group, node)

	if e.HotCache != nil {
		if err := e.deleteHotCachePrefix(ctx, group, node, ""); err != nil {
			return err
		}
	}

	if err := e.Store.DeleteByIdentityPrefix(ctx, group, node, "", ""); err != nil {
		return err
	}

	if err := e.Hidden.DeleteByPrefix(ctx, group, node, ""); err != nil {
		return err
	}

	if err := e.Properties.Delete(ctx, group, node, "", ""); err != nil {
		return err
	}

	return nil
}

// deleteHotCachePrefix rebuilds the hierarchy to discover cached keys
// under group/node[/device] and removes each; the hot cache has no native
// prefix-delete primitive, so this mirrors what a keyspace-scan rebuild
// would otherwise be used for.
func (e *Engine) deleteHotCachePrefix(ctx context.Context, group, node, device string) error {
	host, err := e.HotCache.RebuildHierarchy(ctx)
	if err != nil {
		return err
	}
	g, ok := host.Groups[group]
	if !ok {
		return nil
	}
	n, ok := g.Nodes[node]
	if !ok {
		return nil
	}

	if device == "" {
		for metric := range n.Metrics {
			if err := e.HotCache.Delete(ctx, topology.Identity{Group: group, Node: node, Metric: metric}); err != nil {
				return err
			}
		}
		for devID, d := range n.Devices {
			for metric := range d.Metrics {
				if err := e.HotCache.Delete(ctx, topology.Identity{Group: group, Node: node, Device: devID, Metric: metric}); err != nil {
					return err
				}
			}
		}
		return nil
	}

	d, ok := n.Devices[device]
	if !ok {
		return nil
	}
	for metric := range d.Metrics {
		if err := e.HotCache.Delete(ctx, topology.Identity{Group: group, Node: node, Device: device, Metric: metric}); err != nil {
			return err
		}
	}
	return nil
}
