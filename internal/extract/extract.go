// Package extract derives the structured listing fields used for scoring from raw scraped text.
package extract

import (
	"regexp"
	"sort"
	"strings"
)

const (
	MaxKeywords          = 15
	MaxDescriptionLength = 2000

	minKeywordLength = 5
)

var (
	naicsToken = regexp.MustCompile(`\b\d{6}\b`)
	wordToken  = regexp.MustCompile(`\b[a-z]{3,}\b`)

	stopWords = map[string]struct{}{
		"the": {}, "and": {}, "or": {}, "but": {}, "for": {}, "with": {}, "this": {},
		"that": {}, "from": {}, "are": {}, "was": {}, "been": {}, "will": {}, "shall": {},
	}

	// Checked in order; each label is emitted at most once.
	setAsides = []struct {
		needle string
		label  string
	}{
		{needle: "8(a)", label: "8(a)"},
		{needle: "hubzone", label: "HUBZone"},
		{needle: "woman-owned", label: "WOSB"},
		{needle: "veteran", label: "SDVOSB"},
		{needle: "small business", label: "Small Business"},
	}
)

// Fields are the scoring inputs derived from a listing's text.
type Fields struct {
	NAICSCodes []string
	Keywords   []string
	SetAside   []string
}

// FromText extracts all fields: keywords come from title and description,
// NAICS codes and set-asides from the description only.
func FromText(title, description string) Fields {
	return Fields{
		NAICSCodes: NAICSCodes(description),
		Keywords:   Keywords(title + " " + description),
		SetAside:   SetAsides(description),
	}
}

// NAICSCodes returns every standalone 6-digit number, de-duplicated in first-seen order.
// Codes are not validated against the NAICS table.
func NAICSCodes(text string) []string {
	matches := naicsToken.FindAllString(text, -1)
	codes := make([]string, 0, len(matches))
	seen := make(map[string]struct{}, len(matches))
	for _, code := range matches {
		if _, ok := seen[code]; ok {
			continue
		}
		seen[code] = struct{}{}
		codes = append(codes, code)
	}
	return codes
}

// Keywords returns up to MaxKeywords words ordered by frequency, ties in first-seen order.
func Keywords(text string) []string {
	counts := make(map[string]int)
	var order []string

	for _, word := range wordToken.FindAllString(strings.ToLower(text), -1) {
		if _, stop := stopWords[word]; stop || len(word) < minKeywordLength {
			continue
		}
		if counts[word] == 0 {
			order = append(order, word)
		}
		counts[word]++
	}

	sort.SliceStable(order, func(i, j int) bool {
		return counts[order[i]] > counts[order[j]]
	})

	if len(order) > MaxKeywords {
		order = order[:MaxKeywords]
	}

	if order == nil {
		return []string{}
	}
	return order
}

// SetAsides maps set-aside phrases found in text to their canonical program labels.
func SetAsides(text string) []string {
	lower := strings.ToLower(text)
	labels := make([]string, 0, len(setAsides))
	for _, sa := range setAsides {
		if strings.Contains(lower, sa.needle) {
			labels = append(labels, sa.label)
		}
	}
	return labels
}

// Truncate shortens s to at most limit runes.
func Truncate(s string, limit int) string {
	if limit < 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}
