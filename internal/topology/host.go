package topology

import "sync"

// PropertyRef is a lightweight {name,value} pair attached to a metric at
// birth time, distinct from the persisted property store — this is
// the in-memory projection carried on the topology node itself.
type PropertyRef struct {
	Name  string
	Value Value
}

// Metric is a leaf of the topology tree.
type Metric struct {
	Name       string
	Type       string
	Value      Value
	TS         int64
	ScanRate   int64
	Properties []PropertyRef
	Template   string // optional template definition name
}

// Device holds node-owned metrics grouped under a device id.
type Device struct {
	ID      string
	Metrics map[string]*Metric
}

// Node is an edge node: its own metrics plus zero or more devices.
type Node struct {
	ID      string
	Metrics map[string]*Metric
	Devices map[string]*Device
}

// Group is a named collection of edge nodes.
type Group struct {
	ID    string
	Nodes map[string]*Node
}

// TemplateDef is a purely descriptive Sparkplug template definition.
type TemplateDef struct {
	Name    string
	Version string
	Members []TemplateMember
}

type TemplateMember struct {
	Name string
	Type string
}

// Host is the root of the topology tree, exclusively owned and mutated by
// the ingress component.
//
// Mutation happens only through the Host's own methods, all taking the
// write lock; Snapshot returns a deep copy so that concurrent readers never
// observe a partially updated node.
type Host struct {
	mu        sync.RWMutex
	Groups    map[string]*Group
	Templates map[string]*TemplateDef
}

func NewHost() *Host {
	return &Host{
		Groups:    make(map[string]*Group),
		Templates: make(map[string]*TemplateDef),
	}
}

// UpsertMetric creates or mutates a metric at the given identity, creating
// any missing Group/Node/Device along the way.
func (h *Host) UpsertMetric(id Identity, m Metric) {
	h.mu.Lock()
	defer h.mu.Unlock()

	g, ok := h.Groups[id.Group]
	if !ok {
		g = &Group{ID: id.Group, Nodes: make(map[string]*Node)}
		h.Groups[id.Group] = g
	}
	n, ok := g.Nodes[id.Node]
	if !ok {
		n = &Node{ID: id.Node, Metrics: make(map[string]*Metric), Devices: make(map[string]*Device)}
		g.Nodes[id.Node] = n
	}

	var bucket map[string]*Metric
	if id.Device == "" {
		bucket = n.Metrics
	} else {
		d, ok := n.Devices[id.Device]
		if !ok {
			d = &Device{ID: id.Device, Metrics: make(map[string]*Metric)}
			n.Devices[id.Device] = d
		}
		bucket = d.Metrics
	}

	mCopy := m
	mCopy.Name = id.Metric
	bucket[id.Metric] = &mCopy
}

// PutTemplate registers or replaces a template definition.
func (h *Host) PutTemplate(def TemplateDef) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.Templates[def.Name] = &def
}

// DeleteMetric removes a single metric. Returns false if it did not exist.
func (h *Host) DeleteMetric(id Identity) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	g, ok := h.Groups[id.Group]
	if !ok {
		return false
	}
	n, ok := g.Nodes[id.Node]
	if !ok {
		return false
	}
	if id.Device == "" {
		if _, ok := n.Metrics[id.Metric]; !ok {
			return false
		}
		delete(n.Metrics, id.Metric)
		return true
	}
	d, ok := n.Devices[id.Device]
	if !ok {
		return false
	}
	if _, ok := d.Metrics[id.Metric]; !ok {
		return false
	}
	delete(d.Metrics, id.Metric)
	return true
}

// DeleteDevice removes an entire device and its metrics from a node.
func (h *Host) DeleteDevice(group, node, device string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	g, ok := h.Groups[group]
	if !ok {
		return false
	}
	n, ok := g.Nodes[node]
	if !ok {
		return false
	}
	if _, ok := n.Devices[device]; !ok {
		return false
	}
	delete(n.Devices, device)
	return true
}

// DeleteNode removes an entire node (and its devices/metrics) from a group.
func (h *Host) DeleteNode(group, node string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	g, ok := h.Groups[group]
	if !ok {
		return false
	}
	if _, ok := g.Nodes[node]; !ok {
		return false
	}
	delete(g.Nodes, node)
	return true
}

// Snapshot returns a deep copy of the topology tree for safe concurrent
// reading (hidden-item filtering and GraphQL-style projections operate on
// this copy, never on the live tree).
func (h *Host) Snapshot() *Host {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := NewHost()
	for gid, g := range h.Groups {
		ng := &Group{ID: gid, Nodes: make(map[string]*Node, len(g.Nodes))}
		for nid, n := range g.Nodes {
			nn := &Node{ID: nid, Metrics: copyMetrics(n.Metrics), Devices: make(map[string]*Device, len(n.Devices))}
			for did, d := range n.Devices {
				nn.Devices[did] = &Device{ID: did, Metrics: copyMetrics(d.Metrics)}
			}
			ng.Nodes[nid] = nn
		}
		out.Groups[gid] = ng
	}
	for name, t := range h.Templates {
		tc := *t
		out.Templates[name] = &tc
	}
	return out
}

func copyMetrics(in map[string]*Metric) map[string]*Metric {
	out := make(map[string]*Metric, len(in))
	for k, m := range in {
		mc := *m
		if m.Properties != nil {
			mc.Properties = append([]PropertyRef(nil), m.Properties...)
		}
		out[k] = &mc
	}
	return out
}
