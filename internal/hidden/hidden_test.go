package hidden

import (
	"testing"

	"github.com/joyautomation/mantle/internal/topology"
)

func buildSet(nodes, devices, metrics []string) *Set {
	s := &Set{nodes: map[string]bool{}, devices: map[string]bool{}, metrics: map[string]bool{}}
	for _, k := range nodes {
		s.nodes[k] = true
	}
	for _, k := range devices {
		s.devices[k] = true
	}
	for _, k := range metrics {
		s.metrics[k] = true
	}
	return s
}

func TestIsHiddenCascade(t *testing.T) {
	set := buildSet([]string{"G1/N1"}, []string{"G1/N2/D1"}, []string{"G1/N3//m1"})

	if !set.IsHidden("G1", "N1", "", "temp") {
		t.Error("node-level hide should cascade to node-level metric")
	}
	if !set.IsHidden("G1", "N1", "D9", "temp") {
		t.Error("node-level hide should cascade to any device under it")
	}
	if !set.IsHidden("G1", "N2", "D1", "anything") {
		t.Error("device-level hide should cascade to metrics under it")
	}
	if set.IsHidden("G1", "N2", "D2", "anything") {
		t.Error("device-level hide should not affect a sibling device")
	}
	if set.IsHidden("G2", "N1", "", "temp") {
		t.Error("hide should not leak across groups")
	}
}

func TestIsHiddenNilSet(t *testing.T) {
	var set *Set
	if set.IsHidden("G1", "N1", "", "temp") {
		t.Error("nil set should hide nothing")
	}
}

func TestApplyToHostPrunesHiddenMetric(t *testing.T) {
	host := topology.NewHost()
	host.UpsertMetric(topology.Identity{Group: "G1", Node: "N1", Metric: "temp"}, topology.Metric{Value: topology.Int(1)})
	host.UpsertMetric(topology.Identity{Group: "G1", Node: "N1", Metric: "pressure"}, topology.Metric{Value: topology.Int(2)})

	set := buildSet(nil, nil, []string{"G1/N1//temp"})
	pruned := ApplyToHost(host, set, false)

	n := pruned.Groups["G1"].Nodes["N1"]
	if _, ok := n.Metrics["temp"]; ok {
		t.Error("hidden metric should be pruned")
	}
	if _, ok := n.Metrics["pressure"]; !ok {
		t.Error("visible metric should survive pruning")
	}
}

func TestApplyToHostIncludeHiddenBypasses(t *testing.T) {
	host := topology.NewHost()
	host.UpsertMetric(topology.Identity{Group: "G1", Node: "N1", Metric: "temp"}, topology.Metric{Value: topology.Int(1)})
	set := buildSet(nil, nil, []string{"G1/N1//temp"})

	result := ApplyToHost(host, set, true)
	if result != host {
		t.Error("includeHidden=true should bypass filtering and return the original host")
	}
}
