package ingress

import (
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/joyautomation/mantle/internal/sparkplug"
	"github.com/joyautomation/mantle/internal/topology"
)

// nodeSeq hands out the Sparkplug-B sequence number attached to outbound
// command frames, one monotonic 0-255 counter per edge node.
type nodeSeq struct {
	mu   sync.Mutex
	next map[string]uint64
}

func newNodeSeq() nodeSeq {
	return nodeSeq{next: make(map[string]uint64)}
}

func (n *nodeSeq) take(group, node string) uint64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	key := group + "|" + node
	seq := n.next[key]
	n.next[key] = (seq + 1) % 256
	return seq
}

// WriteMetric implements the command write path: it infers the
// metric's wire type from the string value (`true`/`false` -> Boolean,
// a numeric string -> Float, else String), builds the NCMD/DCMD topic
// and a single-metric payload, and publishes it. Node Control/* and
// Device Control/* metric names are carried exactly like any other
// metric name: they still go out as a normal single-metric NCMD/DCMD
// frame, never reinterpreted.
func (p *Pipeline) WriteMetric(id topology.Identity, value string) error {
	topic := sparkplug.CommandTopic(id.Group, id.Node, id.Device)
	seq := p.cmdSeq.take(id.Group, id.Node)
	payload := sparkplug.EncodeCommand(id.Metric, inferCommandValue(value), seq, time.Now().UnixMilli())
	return p.MQTT.Publish(topic, payload)
}

func inferCommandValue(raw string) any {
	switch strings.ToLower(raw) {
	case "true":
		return true
	case "false":
		return false
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return f
	}
	return raw
}
