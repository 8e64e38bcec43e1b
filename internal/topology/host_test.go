package topology

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpsertMetricCreatesHierarchy(t *testing.T) {
	h := NewHost()
	id := Identity{Group: "G1", Node: "N1", Device: "D1", Metric: "Temp"}
	h.UpsertMetric(id, Metric{Type: "Float", Value: Float(72.5), TS: 1000})

	g, ok := h.Groups["G1"]
	require.True(t, ok)
	n, ok := g.Nodes["N1"]
	require.True(t, ok)
	d, ok := n.Devices["D1"]
	require.True(t, ok)
	m, ok := d.Metrics["Temp"]
	require.True(t, ok)
	assert.Equal(t, Float(72.5), m.Value)
}

func TestUpsertMetricNodeLevel(t *testing.T) {
	h := NewHost()
	id := Identity{Group: "G1", Node: "N1", Metric: "Status"}
	h.UpsertMetric(id, Metric{Type: "Boolean", Value: Bool(true)})

	n := h.Groups["G1"].Nodes["N1"]
	require.Contains(t, n.Metrics, "Status")
	assert.Empty(t, n.Devices)
}

func TestDeleteCascades(t *testing.T) {
	h := NewHost()
	h.UpsertMetric(Identity{Group: "G", Node: "N", Device: "D", Metric: "M"}, Metric{})
	require.True(t, h.DeleteDevice("G", "N", "D"))
	n := h.Groups["G"].Nodes["N"]
	assert.Empty(t, n.Devices)
	assert.False(t, h.DeleteDevice("G", "N", "D")) // already gone
}

func TestSnapshotIsIndependentCopy(t *testing.T) {
	h := NewHost()
	h.UpsertMetric(Identity{Group: "G", Node: "N", Metric: "M"}, Metric{Value: Int(1)})
	snap := h.Snapshot()

	h.UpsertMetric(Identity{Group: "G", Node: "N", Metric: "M"}, Metric{Value: Int(2)})

	assert.Equal(t, Int(1), snap.Groups["G"].Nodes["N"].Metrics["M"].Value)
	assert.Equal(t, Int(2), h.Groups["G"].Nodes["N"].Metrics["M"].Value)
}
