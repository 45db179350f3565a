package filtering

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/spigell/rfp-matcher/internal/rfp"
)

type agenciesFilter struct {
	agencies []string
}

// NewExcludedAgencies creates a filter that removes listings by agencies configured in the config.
func NewExcludedAgencies() Filter {
	return &agenciesFilter{}
}

func (f *agenciesFilter) Name() string { return "excluded_agencies" }

func (f *agenciesFilter) Disable(string) {}

func (f *agenciesFilter) IsEnabled() bool { return true }

func (f *agenciesFilter) Validate(cfg *Config) error {
	f.agencies = nil
	if cfg != nil {
		f.agencies = append(f.agencies, cfg.ExcludedAgencies...)
	}
	return nil
}

func (f *agenciesFilter) Apply(_ context.Context, deps Deps, l *rfp.Listings) (*rfp.Listings, Step, error) {
	initial := l.Len()
	if len(f.agencies) == 0 {
		return l, Step{Initial: initial, Dropped: 0, Left: l.Len()}, nil
	}

	excluded := l.Exclude(rfp.ListingAgencyField, f.agencies)
	if deps.Logger != nil && len(excluded) > 0 {
		deps.Logger.Info("excluding listings by agencies",
			zap.Strings("excluded_agencies", f.agencies),
			zap.Strings("excluded_listings", excluded),
			zap.Int("listings_left", l.Len()),
		)
	}

	return l, Step{Initial: initial, Dropped: len(excluded), Left: l.Len()}, nil
}

func (f *agenciesFilter) Status() Status {
	details := map[string]string{}
	if len(f.agencies) > 0 {
		details["agencies"] = strings.Join(f.agencies, ",")
	}
	return Status{Name: f.Name(), Enabled: true, Details: details}
}
