// Package matcher ranks active listings against a user's business profile.
package matcher

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/spigell/rfp-matcher/internal/ai"
	"github.com/spigell/rfp-matcher/internal/logger"
	"github.com/spigell/rfp-matcher/internal/rfp"
	"github.com/spigell/rfp-matcher/internal/scoring"
	"github.com/spigell/rfp-matcher/internal/store"
)

const (
	// CandidateLimit caps how many active listings one evaluation considers.
	CandidateLimit = 100
	// MinScore is exclusive: a listing must score above it to be returned.
	MinScore = 30

	DefaultLimit   = 20
	DefaultWorkers = 4
)

type Kind string

const (
	KindMatched   Kind = "matched"
	KindEmpty     Kind = "empty"
	KindNoProfile Kind = "no_profile"
	KindFailed    Kind = "failed"
)

// Outcome is the result of one evaluation. Err is set only for KindFailed.
type Outcome struct {
	Kind    Kind
	Matches []rfp.MatchResult
	Err     error
}

type Options struct {
	// Limit is used when a caller passes a non-positive limit.
	Limit   int
	Workers int
	// ClampScores bounds scores to [0, 100] before the cutoff.
	ClampScores bool
}

type Matcher struct {
	profiles store.ProfileStore
	listings store.ListingStore
	embedder ai.Embedder
	opts     Options
	logger   *zap.Logger
	now      func() time.Time
}

func New(profiles store.ProfileStore, listings store.ListingStore, embedder ai.Embedder, opts Options, log *zap.Logger) *Matcher {
	if opts.Limit <= 0 {
		opts.Limit = DefaultLimit
	}
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}

	return &Matcher{
		profiles: profiles,
		listings: listings,
		embedder: embedder,
		opts:     opts,
		logger:   logger.ForComponent(log, "matcher"),
		now:      time.Now,
	}
}

// FindMatches returns the best listings for userID, highest score first.
// A failed evaluation is logged and yields an empty result.
func (m *Matcher) FindMatches(ctx context.Context, userID string, limit int) []rfp.MatchResult {
	outcome := m.Evaluate(ctx, userID, limit)

	switch outcome.Kind {
	case KindFailed:
		m.logger.Error("matching failed", zap.String(logger.FieldUserID, userID), zap.Error(outcome.Err))
		return []rfp.MatchResult{}
	case KindNoProfile:
		m.logger.Info("no profile for user", zap.String(logger.FieldUserID, userID))
	}

	if outcome.Matches == nil {
		return []rfp.MatchResult{}
	}
	return outcome.Matches
}

type scored struct {
	listing *rfp.Listing
	score   int
	reasons []string
}

// Evaluate computes matches and reports how the evaluation ended.
func (m *Matcher) Evaluate(ctx context.Context, userID string, limit int) Outcome {
	if limit <= 0 {
		limit = m.opts.Limit
	}

	doc, ok, err := m.profiles.GetProfile(ctx, userID)
	if err != nil {
		return failed(fmt.Errorf("get profile: %w", err))
	}
	if !ok {
		return Outcome{Kind: KindNoProfile, Matches: []rfp.MatchResult{}}
	}

	profile, err := rfp.DecodeProfile(doc)
	if err != nil {
		return failed(err)
	}

	profileEmbedding, err := m.embedder.Embed(ctx, profile.EmbeddingText())
	if err != nil {
		return failed(fmt.Errorf("embed profile: %w", err))
	}

	candidates, err := m.listings.ActiveListings(ctx, m.now(), CandidateLimit)
	if err != nil {
		return failed(fmt.Errorf("get active listings: %w", err))
	}

	m.logger.Debug("scoring candidates",
		zap.String(logger.FieldUserID, userID),
		zap.Int("candidates", len(candidates)),
		zap.Int("workers", m.opts.Workers),
	)

	slots := make([]scored, len(candidates))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.opts.Workers)

	for i, listing := range candidates {
		g.Go(func() error {
			embedding, err := m.listingEmbedding(gctx, listing)
			if err != nil {
				return err
			}

			similarity := scoring.CosineSimilarity(profileEmbedding, embedding)
			score, reasons := scoring.Score(profile, listing, similarity)
			if m.opts.ClampScores {
				score = scoring.Clamp(score)
			}

			slots[i] = scored{listing: listing, score: score, reasons: reasons}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return failed(err)
	}

	matches := rank(slots, limit)
	if len(matches) == 0 {
		return Outcome{Kind: KindEmpty, Matches: matches}
	}

	return Outcome{Kind: KindMatched, Matches: matches}
}

// listingEmbedding returns the stored embedding or computes and persists it.
func (m *Matcher) listingEmbedding(ctx context.Context, listing *rfp.Listing) ([]float32, error) {
	if listing.HasEmbedding() {
		return listing.Embedding, nil
	}

	embedding, err := m.embedder.Embed(ctx, listing.EmbeddingText())
	if err != nil {
		return nil, fmt.Errorf("embed listing %s: %w", listing.ID, err)
	}

	if err := m.listings.SetEmbedding(ctx, listing.ID, embedding); err != nil {
		return nil, fmt.Errorf("store embedding for listing %s: %w", listing.ID, err)
	}

	m.logger.Debug("backfilled listing embedding", zap.String(logger.FieldListingID, listing.ID))
	listing.Embedding = embedding

	return embedding, nil
}

func rank(slots []scored, limit int) []rfp.MatchResult {
	kept := make([]scored, 0, len(slots))
	for _, s := range slots {
		if s.listing != nil && s.score > MinScore {
			kept = append(kept, s)
		}
	}

	slices.SortFunc(kept, func(a, b scored) int {
		if a.score != b.score {
			return b.score - a.score
		}
		return strings.Compare(a.listing.ID, b.listing.ID)
	})

	if len(kept) > limit {
		kept = kept[:limit]
	}

	matches := make([]rfp.MatchResult, 0, len(kept))
	for _, s := range kept {
		matches = append(matches, rfp.NewMatchResult(s.listing, s.score, s.reasons))
	}
	return matches
}

func failed(err error) Outcome {
	return Outcome{Kind: KindFailed, Matches: []rfp.MatchResult{}, Err: err}
}
