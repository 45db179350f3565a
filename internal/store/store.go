// Package store defines the profile and listing stores and opens the configured backend.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/spigell/rfp-matcher/internal/rfp"
	"github.com/spigell/rfp-matcher/internal/store/memory"
	"github.com/spigell/rfp-matcher/internal/store/mysql"
)

const (
	DriverMemory = "memory"
	DriverMySQL  = "mysql"
)

var ErrUnknownDriver = errors.New("unknown store driver")

// ProfileStore holds one business profile document per user.
type ProfileStore interface {
	// GetProfile reports false when the user has no profile.
	GetProfile(ctx context.Context, userID string) (map[string]any, bool, error)
	PutProfile(ctx context.Context, userID string, doc map[string]any) error
}

// ListingStore holds scraped RFP listings.
type ListingStore interface {
	// ActiveListings returns at most limit active listings due after now, earliest due first.
	ActiveListings(ctx context.Context, now time.Time, limit int) ([]*rfp.Listing, error)
	SetEmbedding(ctx context.Context, id string, embedding []float32) error
	InsertListings(ctx context.Context, listings []*rfp.Listing) error
	// KnownLinks reports which of links are already stored.
	KnownLinks(ctx context.Context, links []string) (map[string]bool, error)
}

type Store interface {
	ProfileStore
	ListingStore
	Close() error
}

type Config struct {
	Driver string
	// File is the snapshot path of the memory driver. Empty keeps data in process only.
	File  string
	MySQL mysql.Options
}

// Open returns the store selected by cfg.Driver.
func Open(ctx context.Context, cfg Config, logger *zap.Logger) (Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	switch driver {
	case "", DriverMemory:
		s, err := memory.Open(cfg.File)
		if err != nil {
			return nil, fmt.Errorf("open memory store: %w", err)
		}
		logger.Info("using memory store", zap.String("snapshot", cfg.File))
		return s, nil
	case DriverMySQL:
		s, err := mysql.Open(ctx, cfg.MySQL)
		if err != nil {
			return nil, fmt.Errorf("open mysql store: %w", err)
		}
		if err := s.EnsureSchema(ctx); err != nil {
			s.Close()
			return nil, fmt.Errorf("ensure mysql schema: %w", err)
		}
		logger.Info("using mysql store",
			zap.Int("max_open_conns", cfg.MySQL.MaxOpenConns),
			zap.Int("max_idle_conns", cfg.MySQL.MaxIdleConns),
			zap.Duration("conn_max_lifetime", cfg.MySQL.ConnMaxLifetime),
		)
		return s, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownDriver, cfg.Driver)
	}
}
