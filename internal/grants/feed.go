package grants

import (
	"compress/gzip"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/net/html/charset"

	"github.com/spigell/rfp-matcher/internal/extract"
	"github.com/spigell/rfp-matcher/internal/rfp"
)

const contentEncoding = "gzip"

var dateLayouts = []string{
	time.RFC3339,
	time.RFC1123Z,
	time.RFC1123,
	"2006-01-02",
	"01/02/2006",
}

type rss struct {
	Channel struct {
		Items []item `xml:"item"`
	} `xml:"channel"`
}

type item struct {
	Title       string `xml:"title"`
	Description string `xml:"description"`
	Link        string `xml:"link"`
	CloseDate   string `xml:"closeDate"`
	PostDate    string `xml:"postDate"`
}

// Fetch downloads the feed and converts every item into a listing.
// Listings carry no id or status yet; ingestion assigns them.
func (c *Client) Fetch(ctx context.Context) (*rfp.Listings, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.FeedURL, nil)
	if err != nil {
		return nil, err
	}

	req.Header.Set("User-Agent", c.UserAgent)
	req.Header.Set("Accept-Encoding", contentEncoding)
	req.Header.Set("Accept", "application/rss+xml, application/xml, text/xml")

	c.logger.Debug("make request", zap.String("url", req.URL.String()))
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("bad status: %s", resp.Status)
	}

	var body io.Reader = resp.Body
	if resp.Header.Get("Content-Encoding") == "gzip" {
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, err
		}
		defer gz.Close()
		body = gz
	}

	var feed rss
	if err := newDecoder(body).Decode(&feed); err != nil {
		return nil, fmt.Errorf("decode feed: %w", err)
	}

	now := c.now()
	listings := &rfp.Listings{Items: make([]*rfp.Listing, 0, len(feed.Channel.Items))}
	for _, it := range feed.Channel.Items {
		listings.Items = append(listings.Items, toListing(it, now))
	}

	c.logger.Debug("got feed items", zap.Int("items", listings.Len()))

	return listings, nil
}

// newDecoder accepts legacy charsets and HTML entities found in real feeds.
func newDecoder(r io.Reader) *xml.Decoder {
	dec := xml.NewDecoder(r)
	dec.Strict = false
	dec.Entity = xml.HTMLEntity
	dec.CharsetReader = charset.NewReaderLabel
	return dec
}

func toListing(it item, now time.Time) *rfp.Listing {
	title := strings.TrimSpace(it.Title)
	description := strings.TrimSpace(it.Description)
	fields := extract.FromText(title, description)

	return &rfp.Listing{
		Title:       title,
		Agency:      Agency,
		Description: extract.Truncate(description, extract.MaxDescriptionLength),
		NAICSCodes:  fields.NAICSCodes,
		DueDate:     parseDate(it.CloseDate, now.Add(defaultDueIn)),
		Link:        strings.TrimSpace(it.Link),
		PostedDate:  parseDate(it.PostDate, now),
		SetAside:    fields.SetAside,
		Keywords:    fields.Keywords,
		Source:      Source,
	}
}

func parseDate(value string, fallback time.Time) time.Time {
	value = strings.TrimSpace(value)
	if value == "" {
		return fallback.UTC()
	}

	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UTC()
		}
	}

	return fallback.UTC()
}
