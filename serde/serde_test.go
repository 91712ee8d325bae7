package serde

import (
	"reflect"
	"testing"
)

func allCodecs(t *testing.T) []Codec {
	t.Helper()
	var out []Codec
	for _, e := range []Encoding{JSON, CBOR, BARE} {
		c, err := ForEncoding(e)
		if err != nil {
			t.Fatalf("ForEncoding(%s): %v", e, err)
		}
		out = append(out, c)
	}
	return out
}

func TestDynamicRoundTrip(t *testing.T) {
	cases := []any{
		nil,
		true,
		false,
		float64(42),
		"hello",
		"$starts-with-dollar",
		"$$two-dollars",
		BigInt{Value: "123456789012345678901234567890"},
		Bytes{Value: []byte{0x00, 0x01, 0xff, 0x10}},
		map[string]any{
			"count": float64(1),
			"nested": map[string]any{
				"big":  BigInt{Value: "9999999999999999999"},
				"blob": Bytes{Value: []byte("hello world")},
				"str":  "$escaped",
			},
		},
		[]any{float64(1), "two", BigInt{Value: "3"}, nil, true},
	}

	for _, c := range allCodecs(t) {
		for i, in := range cases {
			data, err := EncodeDynamic(c, in)
			if err != nil {
				t.Fatalf("%s: encode case %d: %v", c.Encoding(), i, err)
			}
			out, err := DecodeDynamic(c, data)
			if err != nil {
				t.Fatalf("%s: decode case %d: %v", c.Encoding(), i, err)
			}
			if !reflect.DeepEqual(normalize(in), normalize(out)) {
				t.Errorf("%s: case %d round-trip mismatch: in=%#v out=%#v", c.Encoding(), i, in, out)
			}
		}
	}
}

// normalize makes BigInt/Bytes comparable regardless of whether they
// arrive as values or the equivalent tag-object form after decode.
func normalize(v any) any {
	switch t := v.(type) {
	case BigInt:
		return map[string]any{"$i": t.Value}
	case Bytes:
		return map[string]any{"$b": encodeBase64(t.Value)}
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = normalize(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = normalize(val)
		}
		return out
	default:
		return v
	}
}

func TestStringEscapeInvolutive(t *testing.T) {
	cases := []string{"", "plain", "$", "$$", "$$$", "$a$b", "no-dollar-here"}
	for _, s := range cases {
		got := UnescapeString(EscapeString(s))
		if got != s {
			t.Errorf("UnescapeString(EscapeString(%q)) = %q, want %q", s, got, s)
		}
	}
}

type samplePayload struct {
	Name string `json:"n"`
	Args []any  `json:"a"`
}

func TestStructRoundTripAllCodecs(t *testing.T) {
	in := samplePayload{Name: "increment", Args: []any{float64(5), "x"}}
	for _, c := range allCodecs(t) {
		data, err := c.Marshal(structToTree(in))
		if err != nil {
			t.Fatalf("%s: marshal: %v", c.Encoding(), err)
		}
		var out samplePayload
		tree, err := func() (any, error) {
			var v any
			if err := c.Unmarshal(data, &v); err != nil {
				return nil, err
			}
			return v, nil
		}()
		if err != nil {
			t.Fatalf("%s: unmarshal tree: %v", c.Encoding(), err)
		}
		if err := treeToStruct(tree, &out); err != nil {
			t.Fatalf("%s: treeToStruct: %v", c.Encoding(), err)
		}
		if out.Name != in.Name || len(out.Args) != len(in.Args) {
			t.Errorf("%s: struct round-trip mismatch: got %#v want %#v", c.Encoding(), out, in)
		}
	}
}
