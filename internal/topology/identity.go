// Package topology holds the in-memory Sparkplug topology model: groups
// of edge nodes, each with metrics and optional devices, each device with
// its own metrics.
package topology

import "strings"

// Identity is the 4-tuple join key used across storage, cache, alarms,
// hidden-items and property rows. Device is empty for node-level metrics.
type Identity struct {
	Group  string
	Node   string
	Device string
	Metric string
}

// Key returns the pipe-joined cache/rule-cache key for this identity.
func (id Identity) Key() string {
	return id.Group + "|" + id.Node + "|" + id.Device + "|" + id.Metric
}

// ParseKey reverses Key for callers that only have the string form (e.g.
// hot-cache keyspace-notification payloads).
func ParseKey(key string) (Identity, bool) {
	parts := strings.Split(key, "|")
	if len(parts) != 4 {
		return Identity{}, false
	}
	return Identity{Group: parts[0], Node: parts[1], Device: parts[2], Metric: parts[3]}, true
}
