package serde

import (
	"bytes"
	"encoding/json"
	"fmt"
)

type jsonCodec struct{}

func (jsonCodec) Encoding() Encoding { return JSON }

func (jsonCodec) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (jsonCodec) Unmarshal(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	return dec.Decode(v)
}

// MarshalJSON lets a BigInt appear as a typed struct field anywhere in a
// protocol message and still come out as the {"$i": "..."} tag object.
func (b BigInt) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]string{"$i": b.Value})
}

// UnmarshalJSON is the inverse of MarshalJSON.
func (b *BigInt) UnmarshalJSON(data []byte) error {
	var m map[string]string
	if err := json.Unmarshal(data, &m); err != nil {
		return fmt.Errorf("serde: decode BigInt: %w", err)
	}
	v, ok := m["$i"]
	if !ok {
		return fmt.Errorf("serde: BigInt tag object missing $i key")
	}
	b.Value = v
	return nil
}

// MarshalJSON lets Bytes appear as a typed struct field and come out as
// the {"$b": "<base64>"} tag object.
func (b Bytes) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]string{"$b": encodeBase64(b.Value)})
}

// UnmarshalJSON is the inverse of MarshalJSON.
func (b *Bytes) UnmarshalJSON(data []byte) error {
	var m map[string]string
	if err := json.Unmarshal(data, &m); err != nil {
		return fmt.Errorf("serde: decode Bytes: %w", err)
	}
	v, ok := m["$b"]
	if !ok {
		return fmt.Errorf("serde: Bytes tag object missing $b key")
	}
	raw, err := decodeBase64(v)
	if err != nil {
		return fmt.Errorf("serde: decode Bytes base64: %w", err)
	}
	b.Value = raw
	return nil
}
