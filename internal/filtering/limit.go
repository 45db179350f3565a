package filtering

import (
	"context"
	"fmt"
	"strconv"

	"go.uber.org/zap"

	"github.com/spigell/rfp-matcher/internal/rfp"
)

const DefaultMaxItems = 20

type limitFilter struct {
	max int
}

// NewLimit creates a filter that keeps at most the configured number of listings.
func NewLimit() Filter {
	return &limitFilter{}
}

func (f *limitFilter) Name() string { return "limit" }

func (f *limitFilter) Disable(string) {}

func (f *limitFilter) IsEnabled() bool { return true }

func (f *limitFilter) Validate(cfg *Config) error {
	f.max = DefaultMaxItems
	if cfg == nil || cfg.MaxItems == 0 {
		return nil
	}
	if cfg.MaxItems < 0 {
		return fmt.Errorf("max items must be positive, got %d", cfg.MaxItems)
	}
	f.max = cfg.MaxItems
	return nil
}

func (f *limitFilter) Apply(_ context.Context, deps Deps, l *rfp.Listings) (*rfp.Listings, Step, error) {
	initial := l.Len()

	dropped := l.Truncate(f.max)
	if deps.Logger != nil && len(dropped) > 0 {
		deps.Logger.Info("dropping listings over the per-run limit",
			zap.Int("limit", f.max),
			zap.Strings("dropped_listings", dropped),
		)
	}

	return l, Step{Initial: initial, Dropped: len(dropped), Left: l.Len()}, nil
}

func (f *limitFilter) Status() Status {
	return Status{Name: f.Name(), Enabled: true, Details: map[string]string{"max_items": strconv.Itoa(f.max)}}
}
