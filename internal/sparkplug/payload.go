// Package sparkplug decodes and encodes Sparkplug-B v1.0 payloads.
//
// The full Sparkplug-B protobuf schema (DataSet/Template nested value
// types, metadata) is not modelled — this package implements just enough
// of the standard wire layout (using the protobuf wire-format primitives
// from google.golang.org/protobuf/encoding/protowire, not a hand-rolled
// parser) to produce a decoded payload record for the metric types
// Mantle's data model actually represents: int, float/double, bool,
// string. DataSet/Template/bytes metric values are skipped: the metric
// decodes with a nil Value, which ingress turns into a null value.
package sparkplug

// Metric is one decoded Sparkplug metric within a payload.
type Metric struct {
	Name         string
	Alias        uint64
	HasTimestamp bool
	Timestamp    int64 // ms since epoch, Sparkplug wire units
	DataType     string
	IsNull       bool
	Value        any // int64, uint64, float64, bool, string, or nil
	Properties   map[string]any
}

// Payload is the decoded top-level Sparkplug Payload message.
type Payload struct {
	HasTimestamp bool
	Timestamp    int64
	Metrics      []Metric
	Seq          uint64
	HasSeq       bool
}

// dataTypeNames maps the Sparkplug B numeric datatype codes (Tahu
// specification, Payload.proto `MetricDataType` enum) to their textual
// names, used downstream by topology.ClassifyType.
var dataTypeNames = map[uint64]string{
	1: "Int8", 2: "Int16", 3: "Int32", 4: "Int64",
	5: "UInt8", 6: "UInt16", 7: "UInt32", 8: "UInt64",
	9: "Float", 10: "Double", 11: "Boolean", 12: "String",
	13: "DateTime", 14: "Text", 15: "UUID", 16: "DataSet",
	17: "Bytes", 18: "File", 19: "Template",
}

func dataTypeName(code uint64) string {
	if n, ok := dataTypeNames[code]; ok {
		return n
	}
	return "Unknown"
}

// dataTypeCode is the reverse of dataTypeNames, used by the encoder.
func dataTypeCode(name string) uint64 {
	for code, n := range dataTypeNames {
		if n == name {
			return code
		}
	}
	return 12 // String
}
