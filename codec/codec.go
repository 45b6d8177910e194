// Package codec translates cached values to and from the remote wire format.
//
// On the remote tier a primitive is a single scalar (the textual form of a
// string, number, or boolean), an array is the JSON text of the array stored
// as one scalar, and an object is a field->string hash with nested values
// flattened to their textual form. Decoding is best-effort: a scalar that is
// not valid JSON stays a string, and a broken array or object surfaces to
// the caller as a miss rather than an error.
package codec

import (
	"encoding/json"
	"fmt"
)

// EncodePrimitive renders v as the scalar stored on the remote tier.
// Strings pass through unchanged; everything else takes its JSON text.
func EncodePrimitive(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}

// DecodePrimitive reverses EncodePrimitive. With parse set it attempts a
// lossless JSON parse ("123" becomes a number, "true" a boolean); anything
// unparseable, and every scalar when parse is unset, comes back as the raw
// string.
func DecodePrimitive(s string, parse bool) any {
	if !parse {
		return s
	}
	var v any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return s
	}
	return v
}

// EncodeArray renders vs as the JSON text stored under a single scalar.
func EncodeArray(vs []any) (string, error) {
	b, err := json.Marshal(vs)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// DecodeArray parses the JSON text of an array.
func DecodeArray(s string) ([]any, error) {
	var vs []any
	if err := json.Unmarshal([]byte(s), &vs); err != nil {
		return nil, err
	}
	return vs, nil
}

// EncodeObject flattens the top-level fields of o to their textual form for
// storage in a hash. Nested objects and arrays become their JSON text.
func EncodeObject(o map[string]any) map[string]string {
	out := make(map[string]string, len(o))
	for k, v := range o {
		out[k] = EncodePrimitive(v)
	}
	return out
}

// DecodeObject reverses EncodeObject. With parse set each field goes through
// DecodePrimitive; otherwise fields stay strings.
func DecodeObject(m map[string]string, parse bool) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		if parse {
			out[k] = DecodePrimitive(v, true)
		} else {
			out[k] = v
		}
	}
	return out
}
