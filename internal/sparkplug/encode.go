package sparkplug

import (
	"math"

	"google.golang.org/protobuf/encoding/protowire"
)

// EncodeCommand builds a single-metric NCMD/DCMD Payload. seq is the
// Sparkplug sequence number attached before encoding.
func EncodeCommand(metricName string, value any, seq uint64, timestampMs int64) []byte {
	var buf []byte

	// Payload.timestamp (field 1)
	buf = protowire.AppendTag(buf, 1, protowire.VarintType)
	buf = protowire.AppendVarint(buf, uint64(timestampMs))

	// Payload.metrics (field 2), one entry
	metricBytes := encodeMetric(metricName, value, timestampMs)
	buf = protowire.AppendTag(buf, 2, protowire.BytesType)
	buf = protowire.AppendBytes(buf, metricBytes)

	// Payload.seq (field 3)
	buf = protowire.AppendTag(buf, 3, protowire.VarintType)
	buf = protowire.AppendVarint(buf, seq)

	return buf
}

func encodeMetric(name string, value any, timestampMs int64) []byte {
	var buf []byte

	buf = protowire.AppendTag(buf, 1, protowire.BytesType)
	buf = protowire.AppendString(buf, name)

	buf = protowire.AppendTag(buf, 3, protowire.VarintType)
	buf = protowire.AppendVarint(buf, uint64(timestampMs))

	switch v := value.(type) {
	case bool:
		buf = protowire.AppendTag(buf, 4, protowire.VarintType)
		buf = protowire.AppendVarint(buf, dataTypeCode("Boolean"))
		buf = protowire.AppendTag(buf, 14, protowire.VarintType)
		if v {
			buf = protowire.AppendVarint(buf, 1)
		} else {
			buf = protowire.AppendVarint(buf, 0)
		}
	case float64:
		buf = protowire.AppendTag(buf, 4, protowire.VarintType)
		buf = protowire.AppendVarint(buf, dataTypeCode("Double"))
		buf = protowire.AppendTag(buf, 13, protowire.Fixed64Type)
		buf = protowire.AppendFixed64(buf, math.Float64bits(v))
	case int64:
		buf = protowire.AppendTag(buf, 4, protowire.VarintType)
		buf = protowire.AppendVarint(buf, dataTypeCode("Int64"))
		buf = protowire.AppendTag(buf, 11, protowire.VarintType)
		buf = protowire.AppendVarint(buf, uint64(v))
	default:
		buf = protowire.AppendTag(buf, 4, protowire.VarintType)
		buf = protowire.AppendVarint(buf, dataTypeCode("String"))
		buf = protowire.AppendTag(buf, 15, protowire.BytesType)
		buf = protowire.AppendString(buf, toDisplayString(value))
	}

	return buf
}

func toDisplayString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}
