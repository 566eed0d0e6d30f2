package store_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/nhle/mailctl/internal/store"
	"github.com/nhle/mailctl/tests/testutil"
)

func TestAllocateIsMonotonicPerScope(t *testing.T) {
	ctx := context.Background()
	s := testutil.NewTestStore(t)

	work := store.Scope{Account: "work", Folder: "INBOX"}
	home := store.Scope{Account: "home", Folder: "INBOX"}

	tests := []struct {
		scope    store.Scope
		nativeID string
		want     int64
	}{
		{work, "a", 1},
		{work, "b", 2},
		{work, "a", 1},
		{home, "a", 1},
		{work, "c", 3},
		{home, "z", 2},
	}

	for _, tt := range tests {
		got, err := s.Allocate(ctx, tt.scope, tt.nativeID)
		if err != nil {
			t.Fatalf("Allocate(%v, %q) error = %v", tt.scope, tt.nativeID, err)
		}
		if got != tt.want {
			t.Errorf("Allocate(%v, %q) = %d, want %d", tt.scope, tt.nativeID, got, tt.want)
		}
	}
}

func TestLookups(t *testing.T) {
	ctx := context.Background()
	s := testutil.NewTestStore(t)
	scope := store.Scope{Account: "work", Folder: "INBOX"}

	if _, ok, err := s.ShortID(ctx, scope, "a"); err != nil || ok {
		t.Fatalf("ShortID before allocation = ok %v, err %v", ok, err)
	}
	if _, ok, err := s.NativeID(ctx, scope, 1); err != nil || ok {
		t.Fatalf("NativeID before allocation = ok %v, err %v", ok, err)
	}

	id, err := s.Allocate(ctx, scope, "a")
	if err != nil {
		t.Fatalf("Allocate() error = %v", err)
	}

	short, ok, err := s.ShortID(ctx, scope, "a")
	if err != nil || !ok || short != id {
		t.Errorf("ShortID() = %d, %v, %v; want %d, true, nil", short, ok, err, id)
	}

	native, ok, err := s.NativeID(ctx, scope, id)
	if err != nil || !ok || native != "a" {
		t.Errorf("NativeID() = %q, %v, %v; want \"a\", true, nil", native, ok, err)
	}

	other := store.Scope{Account: "work", Folder: "Sent"}
	if _, ok, _ := s.NativeID(ctx, other, id); ok {
		t.Error("NativeID() found an alias in another folder")
	}
}

func TestAliasesListing(t *testing.T) {
	ctx := context.Background()
	s := testutil.NewTestStore(t)
	scope := store.Scope{Account: "work", Folder: "INBOX"}

	for _, id := range []string{"x", "y", "z"} {
		if _, err := s.Allocate(ctx, scope, id); err != nil {
			t.Fatalf("Allocate(%q) error = %v", id, err)
		}
	}

	records, err := s.Aliases(ctx, scope)
	if err != nil {
		t.Fatalf("Aliases() error = %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("Aliases() returned %d records, want 3", len(records))
	}
	for i, want := range []string{"x", "y", "z"} {
		if records[i].NativeID != want || records[i].ShortID != int64(i+1) {
			t.Errorf("record %d = %+v, want native %q short %d", i, records[i], want, i+1)
		}
	}
}

func TestAliasesSurviveReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "aliases.db")
	scope := store.Scope{Account: "work", Folder: "INBOX"}

	s, err := store.NewSQLiteStore(path)
	if err != nil {
		t.Fatalf("NewSQLiteStore() error = %v", err)
	}
	for _, id := range []string{"a", "b"} {
		if _, err := s.Allocate(ctx, scope, id); err != nil {
			t.Fatalf("Allocate(%q) error = %v", id, err)
		}
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	s, err = store.NewSQLiteStore(path)
	if err != nil {
		t.Fatalf("reopening store: %v", err)
	}
	defer s.Close()

	id, err := s.Allocate(ctx, scope, "b")
	if err != nil || id != 2 {
		t.Errorf("Allocate(b) after reopen = %d, %v; want 2, nil", id, err)
	}
	id, err = s.Allocate(ctx, scope, "c")
	if err != nil || id != 3 {
		t.Errorf("Allocate(c) after reopen = %d, %v; want 3, nil", id, err)
	}
}

func TestAllocateCancelledContext(t *testing.T) {
	s := testutil.NewTestStore(t)
	scope := store.Scope{Account: "work", Folder: "INBOX"}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := s.Allocate(ctx, scope, "a"); err == nil {
		t.Fatal("Allocate() with cancelled context succeeded")
	}

	records, err := s.Aliases(context.Background(), scope)
	if err != nil {
		t.Fatalf("Aliases() error = %v", err)
	}
	if len(records) != 0 {
		t.Errorf("cancelled allocation left %d records", len(records))
	}
}
