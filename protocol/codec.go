package protocol

import (
	"fmt"

	"github.com/statedge/actorhost/serde"
)

// Encode serializes msg (one of this package's message types) using c,
// routing through serde's dynamic value path so args/output/metadata get
// the same BigInt/Bytes/string-escape treatment as any other user value.
func Encode(c serde.Codec, msg any) ([]byte, error) {
	return serde.EncodeDynamic(c, ToWire(msg))
}

// DecodeInbound decodes a client frame into an ActionRequest or
// SubscriptionRequest.
func DecodeInbound(c serde.Codec, data []byte) (any, error) {
	tree, err := serde.DecodeDynamic(c, data)
	if err != nil {
		return nil, fmt.Errorf("protocol: decode inbound: %w", err)
	}
	return FromWireInbound(tree)
}

// DecodeOutbound decodes a server frame into an ActionResponse, Event or
// ErrorMessage. Used by the HTTP one-shot driver and tests.
func DecodeOutbound(c serde.Codec, data []byte) (any, error) {
	tree, err := serde.DecodeDynamic(c, data)
	if err != nil {
		return nil, fmt.Errorf("protocol: decode outbound: %w", err)
	}
	return FromWireOutbound(tree)
}
