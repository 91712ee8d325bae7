package serde

import (
	"fmt"
	"reflect"

	"github.com/fxamacker/cbor/v2"
)

type cborCodec struct{}

func (cborCodec) Encoding() Encoding { return CBOR }

func (cborCodec) Marshal(v any) ([]byte, error) {
	return cbor.Marshal(v)
}

// cborDecMode forces CBOR maps to decode into map[string]any instead of
// cbor's default map[interface{}]interface{}, so escapeValue/unescapeValue
// (written against map[string]any) work uniformly across codecs.
var cborDecMode = func() cbor.DecMode {
	dm, err := cbor.DecOptions{DefaultMapType: reflect.TypeOf(map[string]any{})}.DecMode()
	if err != nil {
		panic(err)
	}
	return dm
}()

func (cborCodec) Unmarshal(data []byte, v any) error {
	if err := cborDecMode.Unmarshal(data, v); err != nil {
		return fmt.Errorf("serde: cbor unmarshal: %w", err)
	}
	return nil
}

// MarshalCBOR/UnmarshalCBOR give BigInt and Bytes the same {"$i":...}
// / {"$b":...} tag-object shape under CBOR as under JSON, via cbor's
// Marshaler/Unmarshaler hooks.
func (b BigInt) MarshalCBOR() ([]byte, error) {
	return cbor.Marshal(map[string]string{"$i": b.Value})
}

func (b *BigInt) UnmarshalCBOR(data []byte) error {
	var m map[string]string
	if err := cbor.Unmarshal(data, &m); err != nil {
		return fmt.Errorf("serde: cbor decode BigInt: %w", err)
	}
	v, ok := m["$i"]
	if !ok {
		return fmt.Errorf("serde: cbor BigInt tag object missing $i key")
	}
	b.Value = v
	return nil
}

func (b Bytes) MarshalCBOR() ([]byte, error) {
	return cbor.Marshal(map[string]string{"$b": encodeBase64(b.Value)})
}

func (b *Bytes) UnmarshalCBOR(data []byte) error {
	var m map[string]string
	if err := cbor.Unmarshal(data, &m); err != nil {
		return fmt.Errorf("serde: cbor decode Bytes: %w", err)
	}
	v, ok := m["$b"]
	if !ok {
		return fmt.Errorf("serde: cbor Bytes tag object missing $b key")
	}
	raw, err := decodeBase64(v)
	if err != nil {
		return fmt.Errorf("serde: cbor decode Bytes base64: %w", err)
	}
	b.Value = raw
	return nil
}
