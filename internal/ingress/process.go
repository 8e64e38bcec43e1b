package ingress

import (
	"context"
	"time"

	"github.com/joyautomation/mantle/internal/eventbus"
	"github.com/joyautomation/mantle/internal/properties"
	"github.com/joyautomation/mantle/internal/sparkplug"
	"github.com/joyautomation/mantle/internal/storage"
	"github.com/joyautomation/mantle/internal/topology"
	"github.com/joyautomation/mantle/internal/validate"
)

// MetricUpdate is the flattened, always-stringified record published on
// the metricUpdate eventbus topic when no hot cache is connected.
type MetricUpdate struct {
	Group  string `json:"group"`
	Node   string `json:"node"`
	Device string `json:"device,omitempty"`
	Metric string `json:"metric"`
	Value  string `json:"value"`
	TS     int64  `json:"ts"`
}

// process handles one decoded frame end to end: topology update,
// historian write, property upsert, alarm evaluation, and fan-out. It
// runs on a single worker goroutine for the frame's (group, node,
// device), so the topology update, history enqueue, alarm evaluation and
// publish for one identity happen strictly in receive order. The property
// upsert runs on its own goroutine and is not ordered with them.
func (p *Pipeline) process(ctx context.Context, top sparkplug.Topic, payload []byte) {
	decoded, err := sparkplug.Decode(payload)
	if err != nil {
		p.log.Warn().Err(err).Str("group", top.Group).Str("node", top.Node).Msg("ingress: decode failed, dropping frame")
		return
	}

	isBirth := top.Class == sparkplug.ClassNBirth || top.Class == sparkplug.ClassDBirth
	payloadTS, hasPayloadTS := decoded.Timestamp, decoded.HasTimestamp

	for _, m := range decoded.Metrics {
		name := m.Name
		if name == "" && m.Alias != 0 {
			resolved, ok := p.aliases.resolve(top.Group, top.Node, m.Alias)
			if !ok {
				p.log.Warn().Str("group", top.Group).Str("node", top.Node).Uint64("alias", m.Alias).
					Msg("ingress: unresolved alias, dropping metric")
				continue
			}
			name = resolved
		}
		if isBirth && name != "" && m.Alias != 0 {
			p.aliases.register(top.Group, top.Node, m.Alias, name)
		}
		if name == "" {
			continue
		}

		id := topology.Identity{Group: top.Group, Node: top.Node, Device: top.Device, Metric: name}
		ts := resolveTimestamp(m, payloadTS, hasPayloadTS)
		value := topology.FromSparkplug(m.DataType, m.Value)
		if m.IsNull {
			value = topology.Null()
		}

		p.Host.UpsertMetric(id, topology.Metric{
			Type:       m.DataType,
			Value:      value,
			TS:         ts,
			Properties: convertProperties(m.Properties),
		})

		if p.Historian {
			p.historyBatcher.Add(storage.Sample{Identity: id, TS: ts, Value: value})
		}

		if len(m.Properties) > 0 {
			go p.upsertProperties(id, ts, m.Properties)
		}

		// Called synchronously on this worker so that per-identity alarm
		// evaluation order is preserved; the engine itself blocks on I/O only
		// for its alarm_state and alarm_history writes.
		if p.Alarms != nil {
			p.Alarms.Evaluate(ctx, id, value)
		}

		p.publish(ctx, id, ts, value)
	}
}

// resolveTimestamp picks the effective sample timestamp: per-metric ts,
// then payload ts, then ingress wall-clock.
func resolveTimestamp(m sparkplug.Metric, payloadTS int64, hasPayloadTS bool) int64 {
	if m.HasTimestamp {
		return validate.NormalizeTimestampMs(m.Timestamp)
	}
	if hasPayloadTS {
		return validate.NormalizeTimestampMs(payloadTS)
	}
	return time.Now().UnixMilli()
}

func convertProperties(props map[string]any) []topology.PropertyRef {
	if len(props) == 0 {
		return nil
	}
	out := make([]topology.PropertyRef, 0, len(props))
	for name, raw := range props {
		out = append(out, topology.PropertyRef{Name: name, Value: topology.FromSparkplug(classifyPropertyValue(raw), raw)})
	}
	return out
}

// classifyPropertyValue infers a Sparkplug-style type name from a decoded
// property's Go value so it can be routed through the same
// topology.FromSparkplug conversion the metric value oneof uses.
func classifyPropertyValue(raw any) string {
	switch raw.(type) {
	case int64, uint64:
		return "Int64"
	case float64:
		return "Double"
	case bool:
		return "Boolean"
	default:
		return "String"
	}
}

func (p *Pipeline) upsertProperties(id topology.Identity, ts int64, props map[string]any) {
	entries := make(map[string]properties.Entry, len(props))
	for name, raw := range props {
		typeName := classifyPropertyValue(raw)
		v := topology.FromSparkplug(typeName, raw)
		entries[name] = properties.Entry{Value: raw, Type: typeName, UpdatedAt: ts}
		p.propBatcher.Add(storage.PropertySample{Identity: id, PropertyID: name, TS: ts, Value: v})
	}
	if err := p.Properties.Upsert(context.Background(), id, entries); err != nil {
		p.log.Warn().Err(err).Str("metric", id.Metric).Msg("ingress: property upsert failed")
	}
}

// publish implements step 6: SET into the hot cache if connected, else
// publish the flattened record directly onto the metricUpdate topic.
func (p *Pipeline) publish(ctx context.Context, id topology.Identity, ts int64, value topology.Value) {
	if p.Hot != nil {
		if err := p.Hot.Set(ctx, id, ts, value); err != nil {
			p.log.Warn().Err(err).Str("metric", id.Metric).Msg("ingress: hot cache set failed")
		}
		return
	}
	p.Bus.Publish(eventbus.TopicMetricUpdate, id.Key(), MetricUpdate{
		Group: id.Group, Node: id.Node, Device: id.Device, Metric: id.Metric,
		Value: value.Display(), TS: ts,
	})
}
