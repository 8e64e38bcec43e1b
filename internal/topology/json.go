package topology

import "encoding/json"

// jsonValue is the wire encoding for Value used by the hot cache and the
// external API surface: a plain tagged object rather than Display's
// always-a-string form, so numeric/bool types survive a round trip.
type jsonValue struct {
	Kind   string  `json:"kind"`
	Int    int64   `json:"int,omitempty"`
	Float  float64 `json:"float,omitempty"`
	String string  `json:"string,omitempty"`
	Bool   bool    `json:"bool,omitempty"`
}

var kindNames = map[Kind]string{
	KindNull:   "null",
	KindInt:    "int",
	KindFloat:  "float",
	KindString: "string",
	KindBool:   "bool",
}

var namesToKind = map[string]Kind{
	"null":   KindNull,
	"int":    KindInt,
	"float":  KindFloat,
	"string": KindString,
	"bool":   KindBool,
}

func (v Value) MarshalJSON() ([]byte, error) {
	jv := jsonValue{Kind: kindNames[v.Kind]}
	switch v.Kind {
	case KindInt:
		jv.Int = v.I
	case KindFloat:
		jv.Float = v.F
	case KindString:
		jv.String = v.S
	case KindBool:
		jv.Bool = v.B
	}
	return json.Marshal(jv)
}

func (v *Value) UnmarshalJSON(data []byte) error {
	var jv jsonValue
	if err := json.Unmarshal(data, &jv); err != nil {
		return err
	}
	kind, ok := namesToKind[jv.Kind]
	if !ok {
		kind = KindNull
	}
	switch kind {
	case KindInt:
		*v = Int(jv.Int)
	case KindFloat:
		*v = Float(jv.Float)
	case KindString:
		*v = String(jv.String)
	case KindBool:
		*v = Bool(jv.Bool)
	default:
		*v = Null()
	}
	return nil
}
