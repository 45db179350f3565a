package rfp

import "time"

// MatchResult is a scored listing returned to callers. It is never persisted.
type MatchResult struct {
	ID         string   `json:"id"`
	Title      string   `json:"title"`
	Agency     string   `json:"agency"`
	MatchScore int      `json:"matchScore"`
	DueDate    string   `json:"dueDate"`
	Link       string   `json:"link"`
	Reasons    []string `json:"reasons"`
}

func NewMatchResult(listing *Listing, score int, reasons []string) MatchResult {
	if reasons == nil {
		reasons = []string{}
	}

	return MatchResult{
		ID:         listing.ID,
		Title:      listing.Title,
		Agency:     listing.Agency,
		MatchScore: score,
		DueDate:    listing.DueDate.UTC().Format(time.RFC3339),
		Link:       listing.Link,
		Reasons:    reasons,
	}
}
