package filtering

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/spigell/rfp-matcher/internal/rfp"
)

type knownLinksFilter struct {
	disabled bool
	reason   string
}

// NewKnownLinks creates a filter that removes listings already present in the store.
func NewKnownLinks() Filter {
	return &knownLinksFilter{}
}

func (f *knownLinksFilter) Name() string { return "known_links" }

func (f *knownLinksFilter) Disable(reason string) {
	f.disabled = true
	f.reason = reason
}

func (f *knownLinksFilter) IsEnabled() bool { return !f.disabled }

func (f *knownLinksFilter) Validate(*Config) error { return nil }

func (f *knownLinksFilter) Apply(ctx context.Context, deps Deps, l *rfp.Listings) (*rfp.Listings, Step, error) {
	initial := l.Len()
	if deps.Links == nil {
		return l, Step{}, fmt.Errorf("listing store is required")
	}

	known, err := deps.Links.KnownLinks(ctx, l.Links())
	if err != nil {
		return l, Step{}, fmt.Errorf("get known links: %w", err)
	}

	excluded := l.ExcludeFunc(func(listing *rfp.Listing) bool {
		return known[listing.Link]
	})
	if deps.Logger != nil && len(excluded) > 0 {
		deps.Logger.Info("excluding already stored listings",
			zap.Strings("excluded_listings", excluded),
			zap.Int("listings_left", l.Len()),
		)
	}

	return l, Step{Initial: initial, Dropped: len(excluded), Left: l.Len()}, nil
}

func (f *knownLinksFilter) Status() Status {
	return Status{Name: f.Name(), Enabled: f.IsEnabled(), Reason: f.reason}
}
