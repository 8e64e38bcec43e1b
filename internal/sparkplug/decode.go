package sparkplug

import (
	"fmt"
	"math"

	"google.golang.org/protobuf/encoding/protowire"
)

// Decode parses a Sparkplug-B Payload protobuf message.
//
// Field numbers follow the published Sparkplug B Payload message:
// 1=timestamp, 2=metrics (repeated), 3=seq. Metric: 1=name, 3=timestamp,
// 4=datatype, 7=is_null, 9=properties, 10..16=value oneof.
func Decode(data []byte) (*Payload, error) {
	p := &Payload{}
	rest := data
	for len(rest) > 0 {
		num, typ, n := protowire.ConsumeTag(rest)
		if n < 0 {
			return nil, fmt.Errorf("sparkplug: malformed tag: %w", protowire.ParseError(n))
		}
		rest = rest[n:]

		switch num {
		case 1: // timestamp
			v, n := protowire.ConsumeVarint(rest)
			if n < 0 {
				return nil, fmt.Errorf("sparkplug: malformed payload timestamp")
			}
			p.Timestamp = int64(v)
			p.HasTimestamp = true
			rest = rest[n:]
		case 2: // metrics
			buf, n := protowire.ConsumeBytes(rest)
			if n < 0 {
				return nil, fmt.Errorf("sparkplug: malformed metric entry")
			}
			m, err := decodeMetric(buf)
			if err != nil {
				return nil, err
			}
			p.Metrics = append(p.Metrics, m)
			rest = rest[n:]
		case 3: // seq
			v, n := protowire.ConsumeVarint(rest)
			if n < 0 {
				return nil, fmt.Errorf("sparkplug: malformed seq")
			}
			p.Seq = v
			p.HasSeq = true
			rest = rest[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, rest)
			if n < 0 {
				return nil, fmt.Errorf("sparkplug: malformed field %d", num)
			}
			rest = rest[n:]
		}
	}
	return p, nil
}

func decodeMetric(data []byte) (Metric, error) {
	m := Metric{}
	rest := data
	for len(rest) > 0 {
		num, typ, n := protowire.ConsumeTag(rest)
		if n < 0 {
			return m, fmt.Errorf("sparkplug: malformed metric tag")
		}
		rest = rest[n:]

		switch num {
		case 1: // name
			b, n := protowire.ConsumeBytes(rest)
			if n < 0 {
				return m, fmt.Errorf("sparkplug: malformed metric name")
			}
			m.Name = string(b)
			rest = rest[n:]
		case 2: // alias
			v, n := protowire.ConsumeVarint(rest)
			if n < 0 {
				return m, fmt.Errorf("sparkplug: malformed alias")
			}
			m.Alias = v
			rest = rest[n:]
		case 3: // timestamp
			v, n := protowire.ConsumeVarint(rest)
			if n < 0 {
				return m, fmt.Errorf("sparkplug: malformed metric timestamp")
			}
			m.Timestamp = int64(v)
			m.HasTimestamp = true
			rest = rest[n:]
		case 4: // datatype
			v, n := protowire.ConsumeVarint(rest)
			if n < 0 {
				return m, fmt.Errorf("sparkplug: malformed datatype")
			}
			m.DataType = dataTypeName(v)
			rest = rest[n:]
		case 7: // is_null
			v, n := protowire.ConsumeVarint(rest)
			if n < 0 {
				return m, fmt.Errorf("sparkplug: malformed is_null")
			}
			m.IsNull = v != 0
			rest = rest[n:]
		case 9: // properties (PropertySet)
			b, n := protowire.ConsumeBytes(rest)
			if n < 0 {
				return m, fmt.Errorf("sparkplug: malformed properties")
			}
			props, err := decodePropertySet(b)
			if err != nil {
				return m, err
			}
			m.Properties = props
			rest = rest[n:]
		case 10: // int_value (uint32 varint)
			v, n := protowire.ConsumeVarint(rest)
			if n < 0 {
				return m, fmt.Errorf("sparkplug: malformed int_value")
			}
			m.Value = int64(int32(uint32(v)))
			rest = rest[n:]
		case 11: // long_value (uint64 varint)
			v, n := protowire.ConsumeVarint(rest)
			if n < 0 {
				return m, fmt.Errorf("sparkplug: malformed long_value")
			}
			m.Value = v
			rest = rest[n:]
		case 12: // float_value (fixed32)
			v, n := protowire.ConsumeFixed32(rest)
			if n < 0 {
				return m, fmt.Errorf("sparkplug: malformed float_value")
			}
			m.Value = float64(math.Float32frombits(v))
			rest = rest[n:]
		case 13: // double_value (fixed64)
			v, n := protowire.ConsumeFixed64(rest)
			if n < 0 {
				return m, fmt.Errorf("sparkplug: malformed double_value")
			}
			m.Value = math.Float64frombits(v)
			rest = rest[n:]
		case 14: // boolean_value
			v, n := protowire.ConsumeVarint(rest)
			if n < 0 {
				return m, fmt.Errorf("sparkplug: malformed boolean_value")
			}
			m.Value = v != 0
			rest = rest[n:]
		case 15: // string_value
			b, n := protowire.ConsumeBytes(rest)
			if n < 0 {
				return m, fmt.Errorf("sparkplug: malformed string_value")
			}
			m.Value = string(b)
			rest = rest[n:]
		default:
			// DataSet/Template/bytes values and anything else: skip, leave
			// Value nil. The metric is still reported (name/type/ts) so a
			// topology entry can be created, but with a null value.
			n := protowire.ConsumeFieldValue(num, typ, rest)
			if n < 0 {
				return m, fmt.Errorf("sparkplug: malformed metric field %d", num)
			}
			rest = rest[n:]
		}
	}
	return m, nil
}

// decodePropertySet decodes a PropertySet: repeated string keys (field 1),
// repeated PropertyValue values (field 2), taken pairwise by position.
func decodePropertySet(data []byte) (map[string]any, error) {
	var keys []string
	var values []any

	rest := data
	for len(rest) > 0 {
		num, typ, n := protowire.ConsumeTag(rest)
		if n < 0 {
			return nil, fmt.Errorf("sparkplug: malformed property set tag")
		}
		rest = rest[n:]

		switch num {
		case 1:
			b, n := protowire.ConsumeBytes(rest)
			if n < 0 {
				return nil, fmt.Errorf("sparkplug: malformed property key")
			}
			keys = append(keys, string(b))
			rest = rest[n:]
		case 2:
			b, n := protowire.ConsumeBytes(rest)
			if n < 0 {
				return nil, fmt.Errorf("sparkplug: malformed property value")
			}
			v, err := decodePropertyValue(b)
			if err != nil {
				return nil, err
			}
			values = append(values, v)
			rest = rest[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, rest)
			if n < 0 {
				return nil, fmt.Errorf("sparkplug: malformed property set field %d", num)
			}
			rest = rest[n:]
		}
	}

	out := make(map[string]any, len(keys))
	for i, k := range keys {
		if i < len(values) {
			out[k] = values[i]
		} else {
			out[k] = nil
		}
	}
	return out, nil
}

// decodePropertyValue decodes a PropertyValue's oneof (fields 2..7, mirroring
// the Metric value oneof layout but shifted since field 1 is the type tag).
func decodePropertyValue(data []byte) (any, error) {
	rest := data
	var value any
	for len(rest) > 0 {
		num, typ, n := protowire.ConsumeTag(rest)
		if n < 0 {
			return nil, fmt.Errorf("sparkplug: malformed property value tag")
		}
		rest = rest[n:]

		switch num {
		case 2: // int_value
			v, n := protowire.ConsumeVarint(rest)
			if n < 0 {
				return nil, fmt.Errorf("sparkplug: malformed property int_value")
			}
			value = int64(int32(uint32(v)))
			rest = rest[n:]
		case 3: // long_value
			v, n := protowire.ConsumeVarint(rest)
			if n < 0 {
				return nil, fmt.Errorf("sparkplug: malformed property long_value")
			}
			value = v
			rest = rest[n:]
		case 4: // float_value
			v, n := protowire.ConsumeFixed32(rest)
			if n < 0 {
				return nil, fmt.Errorf("sparkplug: malformed property float_value")
			}
			value = float64(math.Float32frombits(v))
			rest = rest[n:]
		case 5: // double_value
			v, n := protowire.ConsumeFixed64(rest)
			if n < 0 {
				return nil, fmt.Errorf("sparkplug: malformed property double_value")
			}
			value = math.Float64frombits(v)
			rest = rest[n:]
		case 6: // boolean_value
			v, n := protowire.ConsumeVarint(rest)
			if n < 0 {
				return nil, fmt.Errorf("sparkplug: malformed property boolean_value")
			}
			value = v != 0
			rest = rest[n:]
		case 7: // string_value
			b, n := protowire.ConsumeBytes(rest)
			if n < 0 {
				return nil, fmt.Errorf("sparkplug: malformed property string_value")
			}
			value = string(b)
			rest = rest[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, rest)
			if n < 0 {
				return nil, fmt.Errorf("sparkplug: malformed property value field %d", num)
			}
			rest = rest[n:]
		}
	}
	return value, nil
}
