package memory

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spigell/rfp-matcher/internal/rfp"
)

func listing(id string, due time.Time, status string) *rfp.Listing {
	return &rfp.Listing{
		ID:      id,
		Title:   "Title " + id,
		Link:    "https://example.com/" + id,
		DueDate: due,
		Status:  status,
	}
}

func TestActiveListingsOrderingAndFilter(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s := New()

	err := s.InsertListings(context.Background(), []*rfp.Listing{
		listing("c", now.Add(48*time.Hour), rfp.StatusActive),
		listing("b", now.Add(24*time.Hour), rfp.StatusActive),
		listing("a", now.Add(48*time.Hour), rfp.StatusActive),
		listing("expired", now.Add(-time.Hour), rfp.StatusActive),
		listing("closed", now.Add(time.Hour), rfp.StatusClosed),
	})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}

	got, err := s.ActiveListings(context.Background(), now, 0)
	if err != nil {
		t.Fatalf("active listings: %v", err)
	}

	want := []string{"b", "a", "c"}
	if len(got) != len(want) {
		t.Fatalf("expected %d listings, got %d", len(want), len(got))
	}
	for i, id := range want {
		if got[i].ID != id {
			t.Fatalf("position %d: expected %q, got %q", i, id, got[i].ID)
		}
	}

	limited, _ := s.ActiveListings(context.Background(), now, 2)
	if len(limited) != 2 {
		t.Fatalf("expected limit to apply, got %d", len(limited))
	}
}

func TestActiveListingsReturnsCopies(t *testing.T) {
	now := time.Now()
	s := New()
	_ = s.InsertListings(context.Background(), []*rfp.Listing{listing("a", now.Add(time.Hour), rfp.StatusActive)})

	got, _ := s.ActiveListings(context.Background(), now, 10)
	got[0].Title = "mutated"

	again, _ := s.ActiveListings(context.Background(), now, 10)
	if again[0].Title != "Title a" {
		t.Fatalf("store state leaked through returned listing")
	}
}

func TestSetEmbedding(t *testing.T) {
	now := time.Now()
	s := New()
	_ = s.InsertListings(context.Background(), []*rfp.Listing{listing("a", now.Add(time.Hour), rfp.StatusActive)})

	if err := s.SetEmbedding(context.Background(), "a", []float32{1, 2}); err != nil {
		t.Fatalf("set embedding: %v", err)
	}

	got, _ := s.ActiveListings(context.Background(), now, 10)
	if len(got[0].Embedding) != 2 {
		t.Fatalf("expected embedding to be stored, got %v", got[0].Embedding)
	}

	if err := s.SetEmbedding(context.Background(), "missing", nil); !errors.Is(err, rfp.ErrListingNotFound) {
		t.Fatalf("expected ErrListingNotFound, got %v", err)
	}
}

func TestProfiles(t *testing.T) {
	s := New()

	if _, ok, err := s.GetProfile(context.Background(), "u1"); ok || err != nil {
		t.Fatalf("expected missing profile, got ok=%v err=%v", ok, err)
	}

	if err := s.PutProfile(context.Background(), "", map[string]any{}); err == nil {
		t.Fatal("expected error for empty user id")
	}

	if err := s.PutProfile(context.Background(), "u1", map[string]any{"companyName": "Acme"}); err != nil {
		t.Fatalf("put profile: %v", err)
	}

	doc, ok, err := s.GetProfile(context.Background(), "u1")
	if err != nil || !ok {
		t.Fatalf("expected profile, got ok=%v err=%v", ok, err)
	}
	if doc["companyName"] != "Acme" {
		t.Fatalf("unexpected document: %v", doc)
	}
}

func TestKnownLinks(t *testing.T) {
	s := New()
	_ = s.InsertListings(context.Background(), []*rfp.Listing{listing("a", time.Now(), rfp.StatusActive)})

	known, err := s.KnownLinks(context.Background(), []string{"https://example.com/a", "https://example.com/z"})
	if err != nil {
		t.Fatalf("known links: %v", err)
	}

	if !known["https://example.com/a"] || known["https://example.com/z"] {
		t.Fatalf("unexpected known links: %v", known)
	}
}

func TestInsertRejectsMissingID(t *testing.T) {
	s := New()
	if err := s.InsertListings(context.Background(), []*rfp.Listing{{Title: "no id"}}); err == nil {
		t.Fatal("expected error for listing without id")
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.json")
	now := time.Now().UTC().Truncate(time.Second)

	s, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	_ = s.PutProfile(context.Background(), "u1", map[string]any{"companyName": "Acme"})
	_ = s.InsertListings(context.Background(), []*rfp.Listing{listing("a", now.Add(time.Hour), rfp.StatusClosed)})
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}

	if _, ok, _ := reopened.GetProfile(context.Background(), "u1"); !ok {
		t.Fatal("expected profile to survive reopen")
	}

	known, _ := reopened.KnownLinks(context.Background(), []string{"https://example.com/a"})
	if !known["https://example.com/a"] {
		t.Fatal("expected listing to survive reopen")
	}

	active, _ := reopened.ActiveListings(context.Background(), now, 10)
	if len(active) != 0 {
		t.Fatalf("expected closed listing to be inactive, got %d", len(active))
	}
}

func TestOpenEmptyAndCorruptFiles(t *testing.T) {
	dir := t.TempDir()

	empty := filepath.Join(dir, "empty.json")
	if err := os.WriteFile(empty, nil, 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := Open(empty); err != nil {
		t.Fatalf("expected empty file to open, got %v", err)
	}

	corrupt := filepath.Join(dir, "corrupt.json")
	if err := os.WriteFile(corrupt, []byte("{"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := Open(corrupt); err == nil {
		t.Fatal("expected error for corrupt snapshot")
	}
}
