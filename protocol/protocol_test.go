package protocol

import (
	"reflect"
	"testing"

	"github.com/statedge/actorhost/serde"
)

func TestActionRequestRoundTrip(t *testing.T) {
	for _, enc := range []serde.Encoding{serde.JSON, serde.CBOR, serde.BARE} {
		c := serde.MustForEncoding(enc)
		in := ActionRequest{ID: "r1", Name: "increment", Args: []any{float64(5)}}
		data, err := Encode(c, in)
		if err != nil {
			t.Fatalf("%s: encode: %v", enc, err)
		}
		out, err := DecodeInbound(c, data)
		if err != nil {
			t.Fatalf("%s: decode: %v", enc, err)
		}
		got, ok := out.(ActionRequest)
		if !ok {
			t.Fatalf("%s: decoded as %T, want ActionRequest", enc, out)
		}
		if got.ID != in.ID || got.Name != in.Name || !reflect.DeepEqual(got.Args, in.Args) {
			t.Errorf("%s: round trip mismatch: got %#v want %#v", enc, got, in)
		}
	}
}

func TestSubscriptionRequestRoundTrip(t *testing.T) {
	c := serde.MustForEncoding(serde.JSON)
	in := SubscriptionRequest{Event: "tick", Subscribe: true}
	data, err := Encode(c, in)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	out, err := DecodeInbound(c, data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	got, ok := out.(SubscriptionRequest)
	if !ok || got != in {
		t.Errorf("round trip mismatch: got %#v want %#v", out, in)
	}
}

func TestEventAndErrorRoundTrip(t *testing.T) {
	c := serde.MustForEncoding(serde.CBOR)

	ev := Event{Name: "tick", Args: []any{float64(1), "x"}}
	data, err := Encode(c, ev)
	if err != nil {
		t.Fatalf("encode event: %v", err)
	}
	out, err := DecodeOutbound(c, data)
	if err != nil {
		t.Fatalf("decode event: %v", err)
	}
	gotEv, ok := out.(Event)
	if !ok || gotEv.Name != ev.Name || !reflect.DeepEqual(gotEv.Args, ev.Args) {
		t.Errorf("event round trip mismatch: got %#v want %#v", out, ev)
	}

	errMsg := ErrorMessage{Code: "ActionNotFound", Message: "no such action", RequestID: "r9"}
	data, err = Encode(c, errMsg)
	if err != nil {
		t.Fatalf("encode error: %v", err)
	}
	out, err = DecodeOutbound(c, data)
	if err != nil {
		t.Fatalf("decode error: %v", err)
	}
	gotErr, ok := out.(ErrorMessage)
	if !ok || gotErr.Code != errMsg.Code || gotErr.RequestID != errMsg.RequestID {
		t.Errorf("error round trip mismatch: got %#v want %#v", out, errMsg)
	}
}
