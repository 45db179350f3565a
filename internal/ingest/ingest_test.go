package ingest

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/spigell/rfp-matcher/internal/filtering"
	"github.com/spigell/rfp-matcher/internal/rfp"
	"github.com/spigell/rfp-matcher/internal/store/memory"
)

type stubFetcher struct {
	listings []*rfp.Listing
	err      error
}

func (s stubFetcher) Fetch(context.Context) (*rfp.Listings, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &rfp.Listings{Items: s.listings}, nil
}

func newService(t *testing.T, fetcher Fetcher, st Store) *Service {
	t.Helper()
	s := New(fetcher, st, &filtering.Config{MaxItems: 20}, nil, zap.NewNop())
	s.now = func() time.Time { return time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC) }
	n := 0
	s.newID = func() string {
		n++
		return fmt.Sprintf("id-%d", n)
	}
	return s
}

func TestRunStoresNewListings(t *testing.T) {
	due := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	st := memory.New()
	_ = st.InsertListings(context.Background(), []*rfp.Listing{{ID: "old", Link: "https://x/known", DueDate: due, Status: rfp.StatusActive}})

	fetcher := stubFetcher{listings: []*rfp.Listing{
		{Title: "new", Link: "https://x/new", DueDate: due},
		{Title: "known", Link: "https://x/known", DueDate: due},
		{Title: "expired", Link: "https://x/expired", DueDate: due.AddDate(0, -2, 0)},
	}}

	saved, err := newService(t, fetcher, st).Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if saved.Len() != 1 {
		t.Fatalf("expected 1 saved listing, got %d", saved.Len())
	}

	listing := saved.Items[0]
	if listing.ID != "id-1" || listing.Status != rfp.StatusActive || listing.CreatedAt.IsZero() {
		t.Fatalf("unexpected listing: %+v", listing)
	}

	known, _ := st.KnownLinks(context.Background(), []string{"https://x/new"})
	if !known["https://x/new"] {
		t.Fatal("expected new listing to be stored")
	}
}

func TestRunFetchError(t *testing.T) {
	s := newService(t, stubFetcher{err: errors.New("feed down")}, memory.New())

	if _, err := s.Run(context.Background()); err == nil {
		t.Fatal("expected fetch error")
	}
}

func TestRunNothingNew(t *testing.T) {
	s := newService(t, stubFetcher{}, memory.New())

	saved, err := s.Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if saved.Len() != 0 {
		t.Fatalf("expected nothing saved, got %d", saved.Len())
	}
}
