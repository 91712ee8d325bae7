// bare_codec.go implements the `bare` wire encoding: a small versioned
// binary format used for the Persisted Record (spec §4.1, §6) where size
// and forward/backward compatibility matter more than JSON's readability.
// No BARE-message Go library appears anywhere in the example pack and none
// is a common ecosystem fit for this spec's specific "versioned compact
// record" shape (see DESIGN.md), so this is a small hand-rolled codec over
// the same generic value tree the json/cbor codecs share.
package serde

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
)

// bareVersion is written as the first byte of every encoded value. A
// decoder that encounters a version it does not understand should reject
// the record rather than guess at its layout.
const bareVersion byte = 1

const (
	tagNil byte = iota
	tagTrue
	tagFalse
	tagFloat64
	tagString
	tagBytes
	tagBigInt
	tagSlice
	tagMap
)

type bareCodec struct{}

func (bareCodec) Encoding() Encoding { return BARE }

func (bareCodec) Marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte(bareVersion)
	tree := toBareEncodable(v)
	if err := bareEncodeValue(&buf, tree); err != nil {
		return nil, fmt.Errorf("serde: bare marshal: %w", err)
	}
	return buf.Bytes(), nil
}

func (bareCodec) Unmarshal(data []byte, v any) error {
	if len(data) == 0 {
		return fmt.Errorf("serde: bare unmarshal: empty input")
	}
	version := data[0]
	if version != bareVersion {
		return fmt.Errorf("serde: bare unmarshal: unsupported version %d", version)
	}
	r := bytes.NewReader(data[1:])
	tree, err := bareDecodeValue(r)
	if err != nil {
		return fmt.Errorf("serde: bare unmarshal: %w", err)
	}
	return assignFromBareTarget(v, tree)
}

// toBareEncodable normalizes v into the subset of Go values
// bareEncodeValue knows how to write: nil, bool, float64, string, []byte,
// BigInt, []any, map[string]any. Structs go through structToTree first.
func toBareEncodable(v any) any {
	switch v.(type) {
	case nil, bool, float64, string, []byte, BigInt, Bytes, []any, map[string]any:
		return v
	default:
		return structToTree(v)
	}
}

// assignFromBareTarget mirrors the json codec's behavior: if v is *any,
// hand back the decoded tree verbatim; otherwise treat v as a pointer to a
// typed destination (a protocol struct) and populate it via reflection.
func assignFromBareTarget(v any, tree any) error {
	if p, ok := v.(*any); ok {
		*p = tree
		return nil
	}
	return treeToStruct(tree, v)
}

func bareEncodeValue(buf *bytes.Buffer, v any) error {
	switch t := v.(type) {
	case nil:
		buf.WriteByte(tagNil)
	case bool:
		if t {
			buf.WriteByte(tagTrue)
		} else {
			buf.WriteByte(tagFalse)
		}
	case float64:
		buf.WriteByte(tagFloat64)
		var b [8]byte
		binary.BigEndian.PutUint64(b[:], math.Float64bits(t))
		buf.Write(b[:])
	case string:
		buf.WriteByte(tagString)
		writeVarBytes(buf, []byte(t))
	case []byte:
		buf.WriteByte(tagBytes)
		writeVarBytes(buf, t)
	case Bytes:
		buf.WriteByte(tagBytes)
		writeVarBytes(buf, t.Value)
	case BigInt:
		buf.WriteByte(tagBigInt)
		writeVarBytes(buf, []byte(t.Value))
	case []any:
		buf.WriteByte(tagSlice)
		writeVarint(buf, uint64(len(t)))
		for _, elem := range t {
			if err := bareEncodeValue(buf, elem); err != nil {
				return err
			}
		}
	case map[string]any:
		buf.WriteByte(tagMap)
		writeVarint(buf, uint64(len(t)))
		for k, val := range t {
			writeVarBytes(buf, []byte(k))
			if err := bareEncodeValue(buf, val); err != nil {
				return err
			}
		}
	default:
		return fmt.Errorf("unsupported bare value type %T", v)
	}
	return nil
}

func bareDecodeValue(r *bytes.Reader) (any, error) {
	tag, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	switch tag {
	case tagNil:
		return nil, nil
	case tagTrue:
		return true, nil
	case tagFalse:
		return false, nil
	case tagFloat64:
		var b [8]byte
		if _, err := readFull(r, b[:]); err != nil {
			return nil, err
		}
		return math.Float64frombits(binary.BigEndian.Uint64(b[:])), nil
	case tagString:
		b, err := readVarBytes(r)
		if err != nil {
			return nil, err
		}
		return string(b), nil
	case tagBytes:
		b, err := readVarBytes(r)
		if err != nil {
			return nil, err
		}
		return Bytes{Value: b}, nil
	case tagBigInt:
		b, err := readVarBytes(r)
		if err != nil {
			return nil, err
		}
		return BigInt{Value: string(b)}, nil
	case tagSlice:
		n, err := readVarint(r)
		if err != nil {
			return nil, err
		}
		out := make([]any, n)
		for i := range out {
			v, err := bareDecodeValue(r)
			if err != nil {
				return nil, err
			}
			out[i] = v
		}
		return out, nil
	case tagMap:
		n, err := readVarint(r)
		if err != nil {
			return nil, err
		}
		out := make(map[string]any, n)
		for i := uint64(0); i < n; i++ {
			kb, err := readVarBytes(r)
			if err != nil {
				return nil, err
			}
			v, err := bareDecodeValue(r)
			if err != nil {
				return nil, err
			}
			out[string(kb)] = v
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unknown bare tag byte %d", tag)
	}
}

func writeVarint(buf *bytes.Buffer, n uint64) {
	var tmp [binary.MaxVarintLen64]byte
	l := binary.PutUvarint(tmp[:], n)
	buf.Write(tmp[:l])
}

func readVarint(r *bytes.Reader) (uint64, error) {
	return binary.ReadUvarint(r)
}

func writeVarBytes(buf *bytes.Buffer, b []byte) {
	writeVarint(buf, uint64(len(b)))
	buf.Write(b)
}

func readVarBytes(r *bytes.Reader) ([]byte, error) {
	n, err := readVarint(r)
	if err != nil {
		return nil, err
	}
	b := make([]byte, n)
	if _, err := readFull(r, b); err != nil {
		return nil, err
	}
	return b, nil
}

func readFull(r *bytes.Reader, b []byte) (int, error) {
	total := 0
	for total < len(b) {
		n, err := r.Read(b[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}
