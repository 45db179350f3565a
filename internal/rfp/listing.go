package rfp

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"
	"time"
)

const (
	StatusActive = "active"
	StatusClosed = "closed"

	ListingIDField     = "ID"
	ListingAgencyField = "Agency"
	ListingLinkField   = "Link"
)

type Listings struct {
	Items []*Listing
}

// Listing is a single scraped opportunity.
// It is immutable after ingestion except for the embedding backfill and status.
type Listing struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Agency      string    `json:"agency"`
	Description string    `json:"description"`
	NAICSCodes  []string  `json:"naicsCodes"`
	DueDate     time.Time `json:"dueDate"`
	Link        string    `json:"link"`
	PostedDate  time.Time `json:"postedDate"`
	SetAside    []string  `json:"setAside"`
	Keywords    []string  `json:"keywords"`
	Embedding   []float32 `json:"embedding,omitempty"`
	Status      string    `json:"status"`
	Source      string    `json:"source,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

// EmbeddingText is the text an embedding of the listing is derived from.
func (l *Listing) EmbeddingText() string {
	return l.Title + " " + l.Description
}

func (l *Listing) HasEmbedding() bool {
	return len(l.Embedding) > 0
}

// IsOpen reports whether the listing is active and due after now.
func (l *Listing) IsOpen(now time.Time) bool {
	return l.Status == StatusActive && l.DueDate.After(now)
}

func (l *Listing) GetStringField(name string) string {
	switch name {
	case ListingIDField:
		return l.ID
	case ListingAgencyField:
		return l.Agency
	case ListingLinkField:
		return l.Link
	default:
		return ""
	}
}

func (l *Listings) Len() int {
	return len(l.Items)
}

func (l *Listings) Links() []string {
	links := make([]string, 0, len(l.Items))
	for _, listing := range l.Items {
		links = append(links, listing.Link)
	}
	return links
}

// Exclude removes every listing whose field equals one of targets (case-insensitive)
// and returns the removed listings' titles. Order of the remaining items is preserved.
func (l *Listings) Exclude(name string, targets []string) []string {
	if len(targets) == 0 {
		return nil
	}

	set := make(map[string]struct{}, len(targets))
	for _, target := range targets {
		set[strings.ToLower(strings.TrimSpace(target))] = struct{}{}
	}

	var excluded []string
	kept := l.Items[:0]
	for _, listing := range l.Items {
		if _, ok := set[strings.ToLower(strings.TrimSpace(listing.GetStringField(name)))]; ok {
			excluded = append(excluded, listing.Title)
			continue
		}
		kept = append(kept, listing)
	}
	l.Items = kept

	return excluded
}

// ExcludeFunc removes listings matching drop and returns their titles.
func (l *Listings) ExcludeFunc(drop func(*Listing) bool) []string {
	var excluded []string
	kept := l.Items[:0]
	for _, listing := range l.Items {
		if drop(listing) {
			excluded = append(excluded, listing.Title)
			continue
		}
		kept = append(kept, listing)
	}
	l.Items = kept

	return excluded
}

// Truncate keeps the first n listings and returns the titles of the rest.
func (l *Listings) Truncate(n int) []string {
	if n < 0 || len(l.Items) <= n {
		return nil
	}

	var dropped []string
	for _, listing := range l.Items[n:] {
		dropped = append(dropped, listing.Title)
	}
	l.Items = l.Items[:n]

	return dropped
}

// ReportByAgency groups listings by agency for operator output.
func (l *Listings) ReportByAgency() map[string][]map[string]string {
	report := make(map[string][]map[string]string)
	for _, listing := range l.Items {
		report[listing.Agency] = append(report[listing.Agency], map[string]string{
			"title":      listing.Title,
			"link":       listing.Link,
			"due":        listing.DueDate.Format(time.RFC3339),
			"naics":      strings.Join(listing.NAICSCodes, ","),
			"set_aside":  strings.Join(listing.SetAside, ","),
			"keywords":   fmt.Sprintf("%d", len(listing.Keywords)),
			"embeddings": fmt.Sprintf("%t", listing.HasEmbedding()),
		})
	}
	return report
}

func (l *Listings) DumpToTmpFile() (string, error) {
	file, err := os.CreateTemp("", "rfps_*.json")
	if err != nil {
		return "", err
	}
	defer file.Close()

	enc := json.NewEncoder(file)
	enc.SetIndent("", "  ")
	if err := enc.Encode(l); err != nil {
		return "", err
	}
	return file.Name(), nil
}

// ErrListingNotFound is returned by listing stores for unknown listing ids.
var ErrListingNotFound = errors.New("listing not found")

// Clone returns a deep copy of the listing.
func (l *Listing) Clone() *Listing {
	c := *l
	c.NAICSCodes = slices.Clone(l.NAICSCodes)
	c.SetAside = slices.Clone(l.SetAside)
	c.Keywords = slices.Clone(l.Keywords)
	c.Embedding = slices.Clone(l.Embedding)
	return &c
}
