package alias_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/nhle/mailctl/internal/alias"
	"github.com/nhle/mailctl/internal/backend"
	"github.com/nhle/mailctl/internal/store"
	"github.com/nhle/mailctl/tests/testutil"
)

func newProvider(t *testing.T) *alias.SQLProvider {
	t.Helper()
	return alias.NewSQLProvider(testutil.NewTestStore(t), nil)
}

func TestGetOrCreateAliasAllocatesInFirstSeenOrder(t *testing.T) {
	ctx := context.Background()
	s := newProvider(t).Scope("work", "INBOX")

	tests := []struct {
		nativeID string
		want     string
	}{
		{"1700000000.V1.host:2,S", "1"},
		{"1700000001.V2.host:2,", "2"},
		{"1700000000.V1.host:2,S", "1"},
	}

	for _, tt := range tests {
		got, err := s.GetOrCreateAlias(ctx, tt.nativeID)
		if err != nil {
			t.Fatalf("GetOrCreateAlias(%q) error = %v", tt.nativeID, err)
		}
		if got != tt.want {
			t.Errorf("GetOrCreateAlias(%q) = %q, want %q", tt.nativeID, got, tt.want)
		}
	}
}

func TestRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newProvider(t).Scope("work", "INBOX")

	natives := []string{"x", "y", "z"}
	aliases := make([]string, 0, len(natives))
	for _, n := range natives {
		a, err := s.GetOrCreateAlias(ctx, n)
		if err != nil {
			t.Fatalf("GetOrCreateAlias(%q) error = %v", n, err)
		}
		aliases = append(aliases, a)
	}

	got, err := s.GetIDs(ctx, aliases)
	if err != nil {
		t.Fatalf("GetIDs(%v) error = %v", aliases, err)
	}
	for i := range natives {
		if got[i] != natives[i] {
			t.Errorf("GetIDs()[%d] = %q, want %q", i, got[i], natives[i])
		}
	}
}

func TestScopesAreIndependent(t *testing.T) {
	ctx := context.Background()
	p := newProvider(t)

	inbox := p.Scope("work", "INBOX")
	sent := p.Scope("work", "Sent")

	if _, err := inbox.GetOrCreateAlias(ctx, "a"); err != nil {
		t.Fatal(err)
	}
	got, err := sent.GetOrCreateAlias(ctx, "b")
	if err != nil {
		t.Fatal(err)
	}
	if got != "1" {
		t.Errorf("first alias of a fresh scope = %q, want %q", got, "1")
	}

	_, err = sent.GetID(ctx, "2")
	if !alias.IsUnknownAlias(err) {
		t.Errorf("GetID(2) in Sent error = %v, want unknown alias", err)
	}
}

func TestUnknownAlias(t *testing.T) {
	ctx := context.Background()
	s := newProvider(t).Scope("work", "INBOX")

	if _, err := s.GetOrCreateAlias(ctx, "a"); err != nil {
		t.Fatal(err)
	}

	for _, a := range []string{"2", "0", "-1", "abc", ""} {
		_, err := s.GetID(ctx, a)
		var unknown *alias.UnknownAliasError
		if !errors.As(err, &unknown) {
			t.Errorf("GetID(%q) error = %v, want *UnknownAliasError", a, err)
			continue
		}
		if unknown.Alias != a {
			t.Errorf("UnknownAliasError.Alias = %q, want %q", unknown.Alias, a)
		}
		if unknown.Scope != (store.Scope{Account: "work", Folder: "INBOX"}) {
			t.Errorf("UnknownAliasError.Scope = %v", unknown.Scope)
		}
	}

	_, err := s.GetIDs(ctx, []string{"1", "7"})
	var unknown *alias.UnknownAliasError
	if !errors.As(err, &unknown) || unknown.Alias != "7" {
		t.Errorf("GetIDs error = %v, want unknown alias 7", err)
	}
}

func TestCreateAliasIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := newProvider(t).Scope("work", "INBOX")

	first, err := s.CreateAlias(ctx, "new")
	if err != nil {
		t.Fatal(err)
	}
	second, err := s.GetOrCreateAlias(ctx, "new")
	if err != nil {
		t.Fatal(err)
	}
	if first != second {
		t.Errorf("CreateAlias = %q then GetOrCreateAlias = %q, want equal", first, second)
	}
}

func TestConcurrentAllocation(t *testing.T) {
	ctx := context.Background()
	p := newProvider(t)

	const workers = 8
	const ids = 20

	results := make([][]string, workers)
	var wg sync.WaitGroup
	for w := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s := p.Scope("work", "INBOX")
			for i := range ids {
				a, err := s.GetOrCreateAlias(ctx, fmt.Sprintf("native-%d", i))
				if err != nil {
					t.Errorf("worker %d: GetOrCreateAlias error = %v", w, err)
					return
				}
				results[w] = append(results[w], a)
			}
		}()
	}
	wg.Wait()

	seen := make(map[string]bool)
	for w := 1; w < workers; w++ {
		for i := range results[w] {
			if results[w][i] != results[0][i] {
				t.Fatalf("worker %d got alias %q for native-%d, worker 0 got %q",
					w, results[w][i], i, results[0][i])
			}
		}
	}
	for _, a := range results[0] {
		if seen[a] {
			t.Fatalf("alias %q allocated twice", a)
		}
		seen[a] = true
	}
	if len(seen) != ids {
		t.Errorf("allocated %d aliases, want %d", len(seen), ids)
	}
}

func TestPersistenceErrorWrapsStoreFailure(t *testing.T) {
	s := alias.NewSQLProvider(testutil.NewTestStore(t), nil).Scope("work", "INBOX")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.GetOrCreateAlias(ctx, "a")
	if !alias.IsPersistenceError(err) {
		t.Fatalf("GetOrCreateAlias with cancelled context error = %v, want persistence error", err)
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("error %v does not wrap context.Canceled", err)
	}
}

func TestPassThrough(t *testing.T) {
	ctx := context.Background()
	s := alias.PassThrough{}.Scope("work", "INBOX")

	for _, id := range []string{"42", "1700000000.V1.host:2,S", "", "<a@b>"} {
		a, err := s.GetOrCreateAlias(ctx, id)
		if err != nil || a != id {
			t.Errorf("GetOrCreateAlias(%q) = %q, %v", id, a, err)
		}
		n, err := s.GetID(ctx, id)
		if err != nil || n != id {
			t.Errorf("GetID(%q) = %q, %v", id, n, err)
		}
	}

	got, err := s.GetIDs(ctx, []string{"3", "1"})
	if err != nil || len(got) != 2 || got[0] != "3" || got[1] != "1" {
		t.Errorf("GetIDs = %v, %v", got, err)
	}
}

func TestSelect(t *testing.T) {
	p := newProvider(t)

	tests := []struct {
		kind       backend.Kind
		persistent *alias.SQLProvider
		wantSQL    bool
	}{
		{backend.KindMaildir, p, true},
		{backend.KindIndex, p, true},
		{backend.KindIMAP, p, false},
		{backend.KindNone, p, false},
		{backend.KindMaildir, nil, false},
	}

	for _, tt := range tests {
		got := alias.Select(tt.kind, tt.persistent)
		_, isSQL := got.(*alias.SQLProvider)
		if isSQL != tt.wantSQL {
			t.Errorf("Select(%s, persistent=%v) returned %T", tt.kind, tt.persistent != nil, got)
		}
	}
}

func TestListReturnsScopeBindingsInAliasOrder(t *testing.T) {
	ctx := context.Background()
	p := newProvider(t)

	inbox := p.Scope("work", "INBOX")
	for _, id := range []string{"k3", "k1", "k2"} {
		if _, err := inbox.GetOrCreateAlias(ctx, id); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := p.Scope("work", "Archive").GetOrCreateAlias(ctx, "other"); err != nil {
		t.Fatal(err)
	}

	records, err := p.List(ctx, "work", "INBOX")
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	want := []string{"k3", "k1", "k2"}
	if len(records) != len(want) {
		t.Fatalf("List() returned %d records, want %d", len(records), len(want))
	}
	for i, r := range records {
		if r.ShortID != int64(i+1) || r.NativeID != want[i] {
			t.Errorf("record %d = %+v, want %d -> %s", i, r, i+1, want[i])
		}
	}

	empty, err := p.List(ctx, "personal", "INBOX")
	if err != nil || len(empty) != 0 {
		t.Errorf("List() of an unused scope = %v, %v", empty, err)
	}
}

func TestListWrapsStorageFailures(t *testing.T) {
	p := newProvider(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := p.List(ctx, "work", "INBOX"); !alias.IsPersistenceError(err) {
		t.Errorf("List() error = %v, want a persistence error", err)
	}
}
