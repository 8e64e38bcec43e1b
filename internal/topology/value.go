package topology

import (
	"fmt"
	"strconv"
	"strings"
)

// Kind tags which field of Value is meaningful.
type Kind int

const (
	KindNull Kind = iota
	KindInt
	KindFloat
	KindString
	KindBool
)

// Value is the tagged variant over {int64, float64, string, bool, null}
// used at every type boundary in Mantle.
type Value struct {
	Kind Kind
	I    int64
	F    float64
	S    string
	B    bool
}

func Null() Value               { return Value{Kind: KindNull} }
func Int(v int64) Value         { return Value{Kind: KindInt, I: v} }
func Float(v float64) Value     { return Value{Kind: KindFloat, F: v} }
func String(v string) Value     { return Value{Kind: KindString, S: v} }
func Bool(v bool) Value         { return Value{Kind: KindBool, B: v} }

// Display renders the value for pub/sub payloads, which always stringify.
func (v Value) Display() string {
	switch v.Kind {
	case KindInt:
		return strconv.FormatInt(v.I, 10)
	case KindFloat:
		return strconv.FormatFloat(v.F, 'f', -1, 64)
	case KindString:
		return v.S
	case KindBool:
		return strconv.FormatBool(v.B)
	default:
		return ""
	}
}

// Numeric promotes the value to a float64 for alarm-condition evaluation:
// bool -> {0,1}, strings are parsed numerically, unparseable strings yield
// ok=false (condition becomes false, not an error).
func (v Value) Numeric() (float64, bool) {
	switch v.Kind {
	case KindInt:
		return float64(v.I), true
	case KindFloat:
		return v.F, true
	case KindBool:
		if v.B {
			return 1, true
		}
		return 0, true
	case KindString:
		f, err := strconv.ParseFloat(strings.TrimSpace(v.S), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

// ClassifyType maps a Sparkplug metric.type string to the persistence
// routing column: case-insensitive prefix match, int*/uint* -> int,
// float/double -> float, boolean -> bool, otherwise string.
func ClassifyType(sparkplugType string) Kind {
	t := strings.ToLower(sparkplugType)
	switch {
	case strings.HasPrefix(t, "int"), strings.HasPrefix(t, "uint"):
		return KindInt
	case strings.HasPrefix(t, "float"), strings.HasPrefix(t, "double"):
		return KindFloat
	case strings.HasPrefix(t, "boolean"), strings.HasPrefix(t, "bool"):
		return KindBool
	default:
		return KindString
	}
}

// FromSparkplug builds a Value from a decoded Sparkplug metric's type and
// raw `any` payload value, promoting 64-bit big-integer representations
// (uint64 above the int64 range, or *big.Int-like values decoded as
// strings by the payload library) to a native number; downstream code
// must never see a wrapped big-integer object.
func FromSparkplug(sparkplugType string, raw any) Value {
	kind := ClassifyType(sparkplugType)
	if raw == nil {
		return Null()
	}
	switch kind {
	case KindInt:
		switch n := raw.(type) {
		case int64:
			return Int(n)
		case uint64:
			if n > 1<<63-1 {
				// Outside int64 range: documented precision loss, fall to float64.
				return Float(float64(n))
			}
			return Int(int64(n))
		case int:
			return Int(int64(n))
		case float64:
			return Int(int64(n))
		case string:
			if i, err := strconv.ParseInt(n, 10, 64); err == nil {
				return Int(i)
			}
			if u, err := strconv.ParseUint(n, 10, 64); err == nil {
				return Float(float64(u))
			}
			return Null()
		default:
			return Null()
		}
	case KindFloat:
		switch n := raw.(type) {
		case float64:
			return Float(n)
		case float32:
			return Float(float64(n))
		case int64:
			return Float(float64(n))
		case string:
			if f, err := strconv.ParseFloat(n, 64); err == nil {
				return Float(f)
			}
			return Null()
		default:
			return Null()
		}
	case KindBool:
		if b, ok := raw.(bool); ok {
			return Bool(b)
		}
		return Null()
	default:
		return String(fmt.Sprintf("%v", raw))
	}
}
