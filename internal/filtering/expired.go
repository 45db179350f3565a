package filtering

import (
	"context"

	"go.uber.org/zap"

	"github.com/spigell/rfp-matcher/internal/rfp"
)

type expiredFilter struct{}

// NewExpired creates a filter that removes listings whose due date has passed.
func NewExpired() Filter {
	return &expiredFilter{}
}

func (f *expiredFilter) Name() string { return "expired" }

func (f *expiredFilter) Disable(string) {}

func (f *expiredFilter) IsEnabled() bool { return true }

func (f *expiredFilter) Validate(*Config) error { return nil }

func (f *expiredFilter) Apply(_ context.Context, deps Deps, l *rfp.Listings) (*rfp.Listings, Step, error) {
	initial := l.Len()
	now := deps.now()

	excluded := l.ExcludeFunc(func(listing *rfp.Listing) bool {
		return !listing.DueDate.After(now)
	})
	if deps.Logger != nil && len(excluded) > 0 {
		deps.Logger.Info("excluding expired listings",
			zap.Strings("excluded_listings", excluded),
			zap.Int("listings_left", l.Len()),
		)
	}

	return l, Step{Initial: initial, Dropped: len(excluded), Left: l.Len()}, nil
}
