package sqlstore

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/statedge/actorhost/driver"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "actorhost.db")
	s, err := Open(Config{DSN: dsn})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestLoadMissingReturnsErrNoRecord(t *testing.T) {
	s := openTestStore(t)
	_, err := s.Load(context.Background(), "nope")
	if err != driver.ErrNoRecord {
		t.Fatalf("err = %v, want driver.ErrNoRecord", err)
	}
}

func TestSaveThenLoadAndOverwrite(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.Save(ctx, "a1", []byte("first")); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := s.Load(ctx, "a1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if string(got) != "first" {
		t.Fatalf("got %q, want %q", got, "first")
	}

	if err := s.Save(ctx, "a1", []byte("second")); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	got, err = s.Load(ctx, "a1")
	if err != nil {
		t.Fatalf("load after overwrite: %v", err)
	}
	if string(got) != "second" {
		t.Fatalf("got %q, want %q", got, "second")
	}
}

func TestEnumerateListsAllIDs(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	s.Save(ctx, "b1", []byte("x"))
	s.Save(ctx, "a1", []byte("y"))

	ids, err := s.Enumerate(ctx)
	if err != nil {
		t.Fatalf("enumerate: %v", err)
	}
	if len(ids) != 2 || ids[0] != "a1" || ids[1] != "b1" {
		t.Fatalf("ids = %v, want sorted [a1 b1]", ids)
	}
}
