package matcher

import (
	"context"
	"errors"
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/spigell/rfp-matcher/internal/rfp"
	"github.com/spigell/rfp-matcher/internal/store/memory"
)

var now = time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

type fakeEmbedder struct {
	mu    sync.Mutex
	calls []string
	err   error
}

func (f *fakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, text)
	if f.err != nil {
		return nil, f.err
	}
	return []float32{1, 0}, nil
}

// unit returns a 2d vector whose cosine with (1, 0) is sim.
func unit(sim float64) []float32 {
	return []float32{float32(sim), float32(math.Sqrt(1 - sim*sim))}
}

func profileDoc() map[string]any {
	return map[string]any{
		"companyName":      "Acme Federal",
		"naicsCodes":       []any{"541512"},
		"coreCompetencies": []any{"cloud migration"},
		"keywords":         []any{"cloud", "security", "devops", "network", "analytics"},
		"certifications":   []any{map[string]any{"name": "WOSB"}},
	}
}

func seed(t *testing.T) *memory.Store {
	t.Helper()
	st := memory.New()
	due := now.Add(72 * time.Hour)

	listings := []*rfp.Listing{
		// 15 semantic + 10 set-aside
		{ID: "a25", Title: "a", DueDate: due, Status: rfp.StatusActive, SetAside: []string{"WOSB"}, Embedding: unit(0.5)},
		// 40 NAICS - 9 semantic
		{ID: "b31", Title: "b", DueDate: due, Status: rfp.StatusActive, NAICSCodes: []string{"541512"}, Embedding: unit(-0.3)},
		// 40 NAICS + 15 semantic
		{ID: "c55", Title: "c", DueDate: due, Status: rfp.StatusActive, NAICSCodes: []string{"541512"}, Embedding: unit(0.5)},
		// 40 NAICS + 30 semantic + 20 keywords, embedding backfilled
		{ID: "d90", Title: "d", Description: "cloud work", DueDate: due, Status: rfp.StatusActive,
			NAICSCodes: []string{"541512"}, Keywords: []string{"cloud", "security", "devops", "network", "analytics"}},
		{ID: "closed", Title: "closed", DueDate: due, Status: rfp.StatusClosed, NAICSCodes: []string{"541512"}, Embedding: unit(1)},
	}
	if err := st.InsertListings(context.Background(), listings); err != nil {
		t.Fatal(err)
	}
	if err := st.PutProfile(context.Background(), "u1", profileDoc()); err != nil {
		t.Fatal(err)
	}
	return st
}

func newMatcher(st *memory.Store, embedder *fakeEmbedder, opts Options, log *zap.Logger) *Matcher {
	m := New(st, st, embedder, opts, log)
	m.now = func() time.Time { return now }
	return m
}

func scores(matches []rfp.MatchResult) []int {
	out := make([]int, 0, len(matches))
	for _, match := range matches {
		out = append(out, match.MatchScore)
	}
	return out
}

func TestFindMatchesRanksAndFilters(t *testing.T) {
	st := seed(t)
	embedder := &fakeEmbedder{}
	m := newMatcher(st, embedder, Options{Workers: 2}, zap.NewNop())

	matches := m.FindMatches(context.Background(), "u1", 10)

	got := scores(matches)
	want := []int{90, 55, 31}
	if len(got) != len(want) {
		t.Fatalf("expected scores %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected scores %v, got %v", want, got)
		}
	}

	top := matches[0]
	if top.ID != "d90" || len(top.Reasons) != 3 {
		t.Fatalf("unexpected top match: %+v", top)
	}
	if top.Reasons[0] != "NAICS code match: 541512" || top.Reasons[1] != "High semantic similarity to your services" || top.Reasons[2] != "Keyword matches: 5 terms" {
		t.Fatalf("unexpected reasons: %v", top.Reasons)
	}
}

func TestFindMatchesBackfillsEmbeddings(t *testing.T) {
	st := seed(t)
	embedder := &fakeEmbedder{}
	m := newMatcher(st, embedder, Options{}, zap.NewNop())

	m.FindMatches(context.Background(), "u1", 0)

	// one call for the profile, one for d90
	if len(embedder.calls) != 2 {
		t.Fatalf("expected 2 embed calls, got %d: %v", len(embedder.calls), embedder.calls)
	}
	if embedder.calls[0] != "Acme Federal cloud migration cloud security devops network analytics" {
		t.Fatalf("unexpected profile text: %q", embedder.calls[0])
	}

	listings, _ := st.ActiveListings(context.Background(), now, 0)
	for _, listing := range listings {
		if listing.ID == "d90" && !listing.HasEmbedding() {
			t.Fatal("expected backfilled embedding to be stored")
		}
	}

	embedder.calls = nil
	m.FindMatches(context.Background(), "u1", 0)
	if len(embedder.calls) != 1 {
		t.Fatalf("expected stored embedding to be reused, got %d calls", len(embedder.calls))
	}
}

func TestFindMatchesLimit(t *testing.T) {
	m := newMatcher(seed(t), &fakeEmbedder{}, Options{}, zap.NewNop())

	got := scores(m.FindMatches(context.Background(), "u1", 2))
	if len(got) != 2 || got[0] != 90 || got[1] != 55 {
		t.Fatalf("expected [90 55], got %v", got)
	}
}

func TestFindMatchesWithoutProfile(t *testing.T) {
	m := newMatcher(seed(t), &fakeEmbedder{}, Options{}, zap.NewNop())

	outcome := m.Evaluate(context.Background(), "nobody", 10)
	if outcome.Kind != KindNoProfile || len(outcome.Matches) != 0 || outcome.Err != nil {
		t.Fatalf("unexpected outcome: %+v", outcome)
	}

	if matches := m.FindMatches(context.Background(), "nobody", 10); matches == nil || len(matches) != 0 {
		t.Fatalf("expected empty non-nil matches, got %v", matches)
	}
}

func TestFindMatchesFailureIsLoggedAndEmpty(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	embedder := &fakeEmbedder{err: errors.New("quota")}
	m := newMatcher(seed(t), embedder, Options{}, zap.New(core))

	outcome := m.Evaluate(context.Background(), "u1", 10)
	if outcome.Kind != KindFailed || outcome.Err == nil {
		t.Fatalf("expected failed outcome, got %+v", outcome)
	}

	if matches := m.FindMatches(context.Background(), "u1", 10); len(matches) != 0 {
		t.Fatalf("expected no matches, got %v", matches)
	}

	if logs.FilterMessage("matching failed").Len() != 1 {
		t.Fatalf("expected failure to be logged once, got %d", logs.Len())
	}
}

// failingStore wraps the memory store and fails the selected operations.
type failingStore struct {
	*memory.Store
	profileErr   error
	listingsErr  error
	embeddingErr error
}

func (f *failingStore) GetProfile(ctx context.Context, userID string) (map[string]any, bool, error) {
	if f.profileErr != nil {
		return nil, false, f.profileErr
	}
	return f.Store.GetProfile(ctx, userID)
}

func (f *failingStore) ActiveListings(ctx context.Context, at time.Time, limit int) ([]*rfp.Listing, error) {
	if f.listingsErr != nil {
		return nil, f.listingsErr
	}
	return f.Store.ActiveListings(ctx, at, limit)
}

func (f *failingStore) SetEmbedding(ctx context.Context, id string, embedding []float32) error {
	if f.embeddingErr != nil {
		return f.embeddingErr
	}
	return f.Store.SetEmbedding(ctx, id, embedding)
}

func TestEvaluateStoreFailures(t *testing.T) {
	errDB := errors.New("db down")

	cases := []struct {
		name  string
		store func(*memory.Store) *failingStore
	}{
		{name: "get profile", store: func(s *memory.Store) *failingStore { return &failingStore{Store: s, profileErr: errDB} }},
		{name: "active listings", store: func(s *memory.Store) *failingStore { return &failingStore{Store: s, listingsErr: errDB} }},
		{name: "set embedding", store: func(s *memory.Store) *failingStore { return &failingStore{Store: s, embeddingErr: errDB} }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			st := tc.store(seed(t))
			m := New(st, st, &fakeEmbedder{}, Options{}, zap.NewNop())
			m.now = func() time.Time { return now }

			outcome := m.Evaluate(context.Background(), "u1", 10)
			if outcome.Kind != KindFailed || !errors.Is(outcome.Err, errDB) {
				t.Fatalf("expected failed outcome wrapping store error, got %+v", outcome)
			}
			if outcome.Matches == nil || len(outcome.Matches) != 0 {
				t.Fatalf("expected empty non-nil matches, got %v", outcome.Matches)
			}

			if matches := m.FindMatches(context.Background(), "u1", 10); matches == nil || len(matches) != 0 {
				t.Fatalf("expected empty non-nil matches, got %v", matches)
			}
		})
	}
}

// blockingEmbedder fails listings titled "bad" and holds "slow" listings until cancelled.
type blockingEmbedder struct {
	err error
}

func (b blockingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	switch {
	case strings.HasPrefix(text, "bad"):
		return nil, b.err
	case strings.HasPrefix(text, "slow"):
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return []float32{1, 0}, nil
}

func TestEvaluateFirstErrorCancelsRemainingWork(t *testing.T) {
	errQuota := errors.New("quota")
	st := memory.New()
	due := now.Add(time.Hour)
	_ = st.PutProfile(context.Background(), "u1", profileDoc())
	_ = st.InsertListings(context.Background(), []*rfp.Listing{
		{ID: "a", Title: "bad", DueDate: due, Status: rfp.StatusActive},
		{ID: "b", Title: "slow", DueDate: due, Status: rfp.StatusActive},
		{ID: "c", Title: "slow", DueDate: due, Status: rfp.StatusActive},
	})

	m := New(st, st, blockingEmbedder{err: errQuota}, Options{Workers: 2}, zap.NewNop())
	m.now = func() time.Time { return now }

	done := make(chan Outcome, 1)
	go func() { done <- m.Evaluate(context.Background(), "u1", 10) }()

	select {
	case outcome := <-done:
		if outcome.Kind != KindFailed || !errors.Is(outcome.Err, errQuota) {
			t.Fatalf("expected first error to be reported, got %+v", outcome)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("evaluation did not stop after the first error")
	}
}

func TestEvaluateEmpty(t *testing.T) {
	st := memory.New()
	_ = st.PutProfile(context.Background(), "u1", profileDoc())
	m := newMatcher(st, &fakeEmbedder{}, Options{}, zap.NewNop())

	outcome := m.Evaluate(context.Background(), "u1", 10)
	if outcome.Kind != KindEmpty || len(outcome.Matches) != 0 {
		t.Fatalf("unexpected outcome: %+v", outcome)
	}
}

func TestMaximumScore(t *testing.T) {
	st := memory.New()
	due := now.Add(time.Hour)
	_ = st.PutProfile(context.Background(), "u1", profileDoc())
	_ = st.InsertListings(context.Background(), []*rfp.Listing{{
		ID: "x", DueDate: due, Status: rfp.StatusActive, NAICSCodes: []string{"541512"},
		Keywords: []string{"cloud", "security", "devops", "network", "analytics"}, SetAside: []string{"WOSB"},
		Embedding: unit(1),
	}})

	for _, clamp := range []bool{false, true} {
		matches := newMatcher(st, &fakeEmbedder{}, Options{ClampScores: clamp}, zap.NewNop()).FindMatches(context.Background(), "u1", 10)
		if len(matches) != 1 || matches[0].MatchScore != 100 {
			t.Fatalf("clamp=%v: expected score 100, got %v", clamp, scores(matches))
		}
		if len(matches[0].Reasons) != 4 {
			t.Fatalf("expected 4 reasons, got %v", matches[0].Reasons)
		}
	}
}

func TestRankTieBreaksByID(t *testing.T) {
	slots := []scored{
		{listing: &rfp.Listing{ID: "b"}, score: 50},
		{listing: &rfp.Listing{ID: "a"}, score: 50},
		{listing: &rfp.Listing{ID: "c"}, score: 30},
		{listing: &rfp.Listing{ID: "d"}, score: 70},
	}

	got := rank(slots, 10)
	if len(got) != 3 || got[0].ID != "d" || got[1].ID != "a" || got[2].ID != "b" {
		t.Fatalf("unexpected order: %+v", got)
	}
}
