// Package ingest runs one scrape: fetch the feed, filter, assign ids and store.
package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spigell/rfp-matcher/internal/filtering"
	"github.com/spigell/rfp-matcher/internal/rfp"
)

type Fetcher interface {
	Fetch(ctx context.Context) (*rfp.Listings, error)
}

type Store interface {
	filtering.LinkChecker
	InsertListings(ctx context.Context, listings []*rfp.Listing) error
}

type Service struct {
	fetcher Fetcher
	store   Store
	steps   []filtering.Filter
	cfg     *filtering.Config
	logger  *zap.Logger
	now     func() time.Time
	newID   func() string
}

func New(fetcher Fetcher, store Store, cfg *filtering.Config, steps []filtering.Filter, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if steps == nil {
		steps = filtering.DefaultSteps()
	}

	return &Service{
		fetcher: fetcher,
		store:   store,
		steps:   steps,
		cfg:     cfg,
		logger:  logger,
		now:     time.Now,
		newID:   uuid.NewString,
	}
}

// Steps exposes the pipeline for status reporting.
func (s *Service) Steps() []filtering.Filter {
	return s.steps
}

// Run performs one ingestion and returns the stored listings.
func (s *Service) Run(ctx context.Context) (*rfp.Listings, error) {
	listings, err := s.fetcher.Fetch(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch listings: %w", err)
	}

	s.logger.Info("fetched listings", zap.Int("count", listings.Len()))

	deps := filtering.Deps{
		Links:  s.store,
		Logger: s.logger,
		Now:    s.now,
	}

	listings, err = filtering.Run(ctx, s.cfg, deps, s.steps, listings)
	if err != nil {
		return nil, fmt.Errorf("filter listings: %w", err)
	}

	if listings.Len() == 0 {
		s.logger.Info("no new listings to save")
		return listings, nil
	}

	createdAt := s.now().UTC()
	for _, listing := range listings.Items {
		listing.ID = s.newID()
		listing.Status = rfp.StatusActive
		listing.CreatedAt = createdAt
	}

	if err := s.store.InsertListings(ctx, listings.Items); err != nil {
		return nil, fmt.Errorf("save listings: %w", err)
	}

	s.logger.Info("saved listings", zap.Int("count", listings.Len()))

	return listings, nil
}
