package ai

import (
	"context"

	"github.com/spigell/rfp-matcher/internal/rfp"
)

// Embedder converts free text into a fixed-length vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// ProfileAnalyzer extracts a business profile from a capability statement.
type ProfileAnalyzer interface {
	Analyze(ctx context.Context, statement string) (*rfp.BusinessProfile, error)
}
