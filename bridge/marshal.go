package bridge

import (
	"encoding/base64"
	"encoding/json"

	"github.com/lexlapax/kernelspell/errors"
)

// bytesWireKey discriminates a binary Value on the wire from an ordinary
// JSON string, so {"$bytes":"<base64>"} round-trips back to a Bytes
// variant rather than degrading to Str (spec §4.2 "Binary payloads pass as
// opaque byte strings in both directions").
const bytesWireKey = "$bytes"

// Value is the canonical interchange shape crossing the script/host
// boundary (spec §4.2 "Value marshaling"). Primitives, ordered lists, and
// string-keyed maps round-trip through JSON; binary payloads are carried
// as a distinct variant so callers never have to guess whether a string
// is text or an opaque byte string.
type Value struct {
	// Exactly one of these is set, mirroring the sum spec §4.2 describes
	// (nil/bool/number/string, list, map, or bytes).
	IsNil  bool
	Bool   *bool
	Number *float64
	Str    *string
	List   []Value
	Map    map[string]Value
	Bytes  []byte
}

// Nil is the canonical nil/null Value.
func Nil() Value { return Value{IsNil: true} }

// Of converts a Go value into the canonical Value representation.
// Supported inputs are JSON primitives, []any, map[string]any, []byte,
// and anything JSON-marshalable; conversions preserve round-trip equality
// for any value that is a tree of JSON primitives (spec §4.2).
func Of(v any) (Value, error) {
	switch t := v.(type) {
	case nil:
		return Nil(), nil
	case bool:
		return Value{Bool: &t}, nil
	case string:
		return Value{Str: &t}, nil
	case []byte:
		return Value{Bytes: t}, nil
	case float64:
		return Value{Number: &t}, nil
	case int:
		f := float64(t)
		return Value{Number: &f}, nil
	case int64:
		f := float64(t)
		return Value{Number: &f}, nil
	case []any:
		list := make([]Value, len(t))
		for i, e := range t {
			cv, err := Of(e)
			if err != nil {
				return Value{}, err
			}
			list[i] = cv
		}
		return Value{List: list}, nil
	case map[string]any:
		m := make(map[string]Value, len(t))
		for k, e := range t {
			cv, err := Of(e)
			if err != nil {
				return Value{}, err
			}
			m[k] = cv
		}
		return Value{Map: m}, nil
	default:
		// Round-trip anything else (structs, etc.) through JSON so the
		// marshaling boundary is total rather than failing on host types.
		raw, err := json.Marshal(t)
		if err != nil {
			return Value{}, errors.Wrap(errors.Validation, "value is not marshalable across the script boundary", err)
		}
		var generic any
		if err := json.Unmarshal(raw, &generic); err != nil {
			return Value{}, errors.Wrap(errors.Internal, "re-decode of marshaled value failed", err)
		}
		return Of(generic)
	}
}

// Go converts a Value back into a plain Go value (nil, bool, float64,
// string, []byte, []any, or map[string]any).
func (v Value) Go() any {
	switch {
	case v.IsNil:
		return nil
	case v.Bool != nil:
		return *v.Bool
	case v.Number != nil:
		return *v.Number
	case v.Str != nil:
		return *v.Str
	case v.Bytes != nil:
		return v.Bytes
	case v.List != nil:
		out := make([]any, len(v.List))
		for i, e := range v.List {
			out[i] = e.Go()
		}
		return out
	case v.Map != nil:
		out := make(map[string]any, len(v.Map))
		for k, e := range v.Map {
			out[k] = e.Go()
		}
		return out
	default:
		return nil
	}
}

// MarshalJSON renders v as the canonical JSON interchange form (spec
// §4.2 "JSON is the canonical interchange format").
func (v Value) MarshalJSON() ([]byte, error) {
	switch {
	case v.Bytes != nil:
		// Binary payloads have no native JSON type. A bare base64 string
		// would be indistinguishable from an ordinary Str on decode, so
		// wrap it in a discriminated envelope instead.
		return json.Marshal(map[string]string{bytesWireKey: base64.StdEncoding.EncodeToString(v.Bytes)})
	default:
		return json.Marshal(v.Go())
	}
}

// UnmarshalJSON decodes raw into v. A {"$bytes":"<base64>"} envelope
// decodes straight back to a Bytes variant; everything else decodes
// through Of, so every Value produced this way satisfies the same
// round-trip contract as one built via Of.
func (v *Value) UnmarshalJSON(raw []byte) error {
	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(raw, &envelope); err == nil && len(envelope) == 1 {
		if enc, ok := envelope[bytesWireKey]; ok {
			var b64 string
			if err := json.Unmarshal(enc, &b64); err == nil {
				b, err := base64.StdEncoding.DecodeString(b64)
				if err != nil {
					return errors.Wrap(errors.Validation, "malformed $bytes payload", err)
				}
				*v = Value{Bytes: b}
				return nil
			}
		}
	}

	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return errors.Wrap(errors.Validation, "malformed JSON value", err)
	}
	cv, err := Of(generic)
	if err != nil {
		return err
	}
	*v = cv
	return nil
}

// AsMap validates that v is a map with only string-representable keys
// (spec §4.2 "keys not representable as strings are rejected") and
// returns it as a plain map[string]any.
func AsMap(v Value) (map[string]any, error) {
	if v.Map == nil {
		if v.IsNil {
			return nil, nil
		}
		return nil, errors.New(errors.Validation, "value is not a table/map")
	}
	out := make(map[string]any, len(v.Map))
	for k, e := range v.Map {
		out[k] = e.Go()
	}
	return out, nil
}
