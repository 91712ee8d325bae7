package serde

import "fmt"

// EncodeDynamic encodes an arbitrary "user value" tree (the shape action
// args, action results, and persisted actor state take: nested
// maps/slices/strings/numbers/bools/nil, plus BigInt and Bytes) using the
// given codec, applying the tag/escape conventions from spec §4.4/§6.
func EncodeDynamic(c Codec, v any) ([]byte, error) {
	return c.Marshal(escapeValue(v))
}

// DecodeDynamic decodes bytes produced by EncodeDynamic back into the
// user value tree, reversing tagging and string escaping.
func DecodeDynamic(c Codec, data []byte) (any, error) {
	var tree any
	if err := c.Unmarshal(data, &tree); err != nil {
		return nil, fmt.Errorf("serde: decode dynamic value: %w", err)
	}
	return unescapeValue(tree), nil
}

// escapeValue walks v, converting BigInt/Bytes into their tag-object wire
// form and escaping any plain string it encounters. Maps and slices are
// copied recursively; everything else passes through unchanged.
func escapeValue(v any) any {
	switch t := v.(type) {
	case BigInt:
		return map[string]any{"$i": t.Value}
	case *BigInt:
		return map[string]any{"$i": t.Value}
	case Bytes:
		return map[string]any{"$b": encodeBase64(t.Value)}
	case *Bytes:
		return map[string]any{"$b": encodeBase64(t.Value)}
	case string:
		return EscapeString(t)
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = escapeValue(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = escapeValue(val)
		}
		return out
	default:
		return v
	}
}

// unescapeValue reverses escapeValue: tag objects with a single "$i" or
// "$b" key become BigInt/Bytes, and plain strings are unescaped.
func unescapeValue(v any) any {
	switch t := v.(type) {
	case string:
		return UnescapeString(t)
	case map[string]any:
		if len(t) == 1 {
			if raw, ok := t["$i"]; ok {
				if s, ok := raw.(string); ok {
					return BigInt{Value: s}
				}
			}
			if raw, ok := t["$b"]; ok {
				if s, ok := raw.(string); ok {
					if b, err := decodeBase64(s); err == nil {
						return Bytes{Value: b}
					}
				}
			}
		}
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = unescapeValue(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = unescapeValue(val)
		}
		return out
	default:
		return v
	}
}
