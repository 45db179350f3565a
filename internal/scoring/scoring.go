// Package scoring computes the fixed-weight relevance score of a listing for a business profile.
package scoring

import (
	"fmt"
	"math"
	"strings"

	"github.com/spigell/rfp-matcher/internal/rfp"
)

const (
	NAICSPoints          = 40
	SemanticWeight       = 30
	KeywordPointsPerTerm = 4
	KeywordPointsCap     = 20
	SetAsidePoints       = 10

	HighSimilarity = 0.7

	ReasonHighSimilarity = "High semantic similarity to your services"
)

// Score returns the rounded additive score and the reasons behind it.
// The result is not clamped: a negative similarity can push it below zero.
func Score(profile *rfp.BusinessProfile, listing *rfp.Listing, similarity float64) (int, []string) {
	var score float64
	reasons := make([]string, 0, 4)

	if matched := intersect(profile.NAICSCodes, listing.NAICSCodes); len(matched) > 0 {
		score += NAICSPoints
		reasons = append(reasons, fmt.Sprintf("NAICS code match: %s", strings.Join(matched, ", ")))
	}

	score += similarity * SemanticWeight
	if similarity > HighSimilarity {
		reasons = append(reasons, ReasonHighSimilarity)
	}

	if k := len(intersect(unique(profile.Keywords), listing.Keywords)); k > 0 {
		score += float64(KeywordPoints(k))
		reasons = append(reasons, fmt.Sprintf("Keyword matches: %d terms", k))
	}

	if matched := intersect(profile.CertificationNames(), listing.SetAside); len(matched) > 0 {
		score += SetAsidePoints
		reasons = append(reasons, fmt.Sprintf("Set-aside match: %s", strings.Join(matched, ", ")))
	}

	return roundHalfUp(score), reasons
}

// KeywordPoints is the keyword overlap contribution for k shared keywords.
func KeywordPoints(k int) int {
	if k <= 0 {
		return 0
	}
	return min(k*KeywordPointsPerTerm, KeywordPointsCap)
}

// Clamp bounds a score to the percentage range.
func Clamp(score int) int {
	return max(0, min(score, 100))
}

// CosineSimilarity returns 0 for empty, mismatched or zero-magnitude vectors.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 0
	}

	var dot, magA, magB float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		magA += x * x
		magB += y * y
	}

	if magA == 0 || magB == 0 {
		return 0
	}

	return dot / (math.Sqrt(magA) * math.Sqrt(magB))
}

// intersect keeps the elements of left present in right, in left's order.
func intersect(left, right []string) []string {
	if len(left) == 0 || len(right) == 0 {
		return nil
	}

	set := make(map[string]struct{}, len(right))
	for _, v := range right {
		set[v] = struct{}{}
	}

	var out []string
	for _, v := range left {
		if _, ok := set[v]; ok {
			out = append(out, v)
		}
	}
	return out
}

func unique(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

func roundHalfUp(v float64) int {
	return int(math.Floor(v + 0.5))
}
