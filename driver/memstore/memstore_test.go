package memstore

import (
	"context"
	"testing"

	"github.com/statedge/actorhost/driver"
)

func TestLoadMissingReturnsErrNoRecord(t *testing.T) {
	s := New()
	_, err := s.Load(context.Background(), "nope")
	if err != driver.ErrNoRecord {
		t.Fatalf("err = %v, want driver.ErrNoRecord", err)
	}
}

func TestSaveThenLoadRoundTrips(t *testing.T) {
	s := New()
	ctx := context.Background()
	want := []byte{1, 2, 3}
	if err := s.Save(ctx, "a", want); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := s.Load(ctx, "a")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if string(got) != string(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestEnumerateListsAllIDs(t *testing.T) {
	s := New()
	ctx := context.Background()
	s.Save(ctx, "b", []byte("x"))
	s.Save(ctx, "a", []byte("y"))
	ids, err := s.Enumerate(ctx)
	if err != nil {
		t.Fatalf("enumerate: %v", err)
	}
	if len(ids) != 2 || ids[0] != "a" || ids[1] != "b" {
		t.Fatalf("ids = %v, want sorted [a b]", ids)
	}
}
