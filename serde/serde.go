// Package serde encodes and decodes the values that cross the wire between
// clients and actors, and the Persisted Record written to the Persistence
// Driver. Three encodings are supported: json, cbor and bare. All three
// round-trip the same extended value model: plain JSON-ish values, plus
// big integers and binary blobs, which plain JSON cannot represent without
// a tagging convention.
package serde

import "fmt"

// Encoding identifies one of the three supported wire formats.
type Encoding string

const (
	JSON Encoding = "json"
	CBOR Encoding = "cbor"
	BARE Encoding = "bare"
)

// Valid reports whether e is one of the three encodings this package knows
// how to handle. Callers at the HTTP/WebSocket edge use this to reject an
// unsupported encoding early, before any actor work happens.
func (e Encoding) Valid() bool {
	switch e {
	case JSON, CBOR, BARE:
		return true
	default:
		return false
	}
}

// Codec encodes and decodes values for a single wire encoding.
type Codec interface {
	Encoding() Encoding
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
}

// ForEncoding returns the Codec for e, or an error if e is not recognized.
func ForEncoding(e Encoding) (Codec, error) {
	switch e {
	case JSON:
		return jsonCodec{}, nil
	case CBOR:
		return cborCodec{}, nil
	case BARE:
		return bareCodec{}, nil
	default:
		return nil, fmt.Errorf("serde: unknown encoding %q", e)
	}
}

// MustForEncoding is like ForEncoding but panics on an unknown encoding.
// Reserved for call sites that have already validated the encoding (e.g.
// immediately after Encoding.Valid returned true).
func MustForEncoding(e Encoding) Codec {
	c, err := ForEncoding(e)
	if err != nil {
		panic(err)
	}
	return c
}

// BigInt is a wire-level wrapper for arbitrary-precision integers that do
// not fit in a float64 without loss. It carries the decimal-string
// representation so every encoding can round-trip it losslessly.
type BigInt struct {
	Value string // base-10, optionally signed, no leading zeros besides "0"
}

// Bytes is a wire-level wrapper for binary payloads (mirrors the JS
// Uint8Array / ArrayBuffer types the protocol documents).
type Bytes struct {
	Value []byte
}
