// Package memory is an in-process document store, optionally snapshotted to a JSON file.
package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/spigell/rfp-matcher/internal/rfp"
)

type Store struct {
	mu       sync.RWMutex
	path     string
	profiles map[string]map[string]any
	listings map[string]*rfp.Listing
}

type snapshot struct {
	Profiles map[string]map[string]any `json:"profiles"`
	Listings []*rfp.Listing            `json:"listings"`
}

func New() *Store {
	return &Store{
		profiles: make(map[string]map[string]any),
		listings: make(map[string]*rfp.Listing),
	}
}

// Open creates a store persisted at path. A missing or empty file starts an empty store.
func Open(path string) (*Store, error) {
	s := New()
	s.path = strings.TrimSpace(path)
	if s.path == "" {
		return s, nil
	}

	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}

	if len(strings.TrimSpace(string(data))) == 0 {
		return s, nil
	}

	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("decode snapshot %q: %w", s.path, err)
	}

	maps.Copy(s.profiles, snap.Profiles)
	for _, listing := range snap.Listings {
		if listing != nil && listing.ID != "" {
			s.listings[listing.ID] = listing
		}
	}

	return s, nil
}

func (s *Store) GetProfile(_ context.Context, userID string) (map[string]any, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, ok := s.profiles[userID]
	if !ok {
		return nil, false, nil
	}
	return maps.Clone(doc), true, nil
}

func (s *Store) PutProfile(_ context.Context, userID string, doc map[string]any) error {
	if strings.TrimSpace(userID) == "" {
		return errors.New("user id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.profiles[userID] = maps.Clone(doc)
	return s.persist()
}

func (s *Store) ActiveListings(_ context.Context, now time.Time, limit int) ([]*rfp.Listing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	active := make([]*rfp.Listing, 0)
	for _, listing := range s.listings {
		if listing.IsOpen(now) {
			active = append(active, listing.Clone())
		}
	}

	slices.SortFunc(active, func(a, b *rfp.Listing) int {
		if c := a.DueDate.Compare(b.DueDate); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})

	if limit > 0 && len(active) > limit {
		active = active[:limit]
	}

	return active, nil
}

func (s *Store) SetEmbedding(_ context.Context, id string, embedding []float32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	listing, ok := s.listings[id]
	if !ok {
		return fmt.Errorf("%w: %s", rfp.ErrListingNotFound, id)
	}

	listing.Embedding = slices.Clone(embedding)
	return s.persist()
}

func (s *Store) InsertListings(_ context.Context, listings []*rfp.Listing) error {
	for _, listing := range listings {
		if listing == nil || listing.ID == "" {
			return errors.New("listing id is required")
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, listing := range listings {
		s.listings[listing.ID] = listing.Clone()
	}
	return s.persist()
}

func (s *Store) KnownLinks(_ context.Context, links []string) (map[string]bool, error) {
	wanted := make(map[string]struct{}, len(links))
	for _, link := range links {
		wanted[link] = struct{}{}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	known := make(map[string]bool)
	for _, listing := range s.listings {
		if _, ok := wanted[listing.Link]; ok {
			known[listing.Link] = true
		}
	}
	return known, nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.persist()
}

// persist writes the snapshot atomically. Callers must hold the write lock.
func (s *Store) persist() error {
	if s.path == "" {
		return nil
	}

	snap := snapshot{
		Profiles: s.profiles,
		Listings: make([]*rfp.Listing, 0, len(s.listings)),
	}
	for _, listing := range s.listings {
		snap.Listings = append(snap.Listings, listing)
	}
	slices.SortFunc(snap.Listings, func(a, b *rfp.Listing) int {
		return strings.Compare(a.ID, b.ID)
	})

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".rfp-store-*.json")
	if err != nil {
		return fmt.Errorf("create snapshot: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close snapshot: %w", err)
	}

	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("replace snapshot: %w", err)
	}

	return nil
}
