package feeds

import (
	"context"
	"fmt"
	"html"
	"net/http"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"threatwatch/internal/domain"
	"threatwatch/internal/feeds"
)

const defaultEntryLimit = 25

// RSSFetcher pulls RSS/Atom advisory feeds and normalizes their entries
// into candidates.
type RSSFetcher struct {
	client *http.Client
	parser *gofeed.Parser
}

var _ feeds.Fetcher = (*RSSFetcher)(nil)

// NewRSSFetcher wires an HTTP client; callers usually pass nil and get a
// 20s-timeout default.
func NewRSSFetcher(client *http.Client) *RSSFetcher {
	if client == nil {
		client = &http.Client{Timeout: 20 * time.Second}
	}
	return &RSSFetcher{client: client, parser: gofeed.NewParser()}
}

// Name identifies the strategy inside the registry.
func (f *RSSFetcher) Name() string {
	return "rss"
}

// Fetch downloads and parses one feed, returning at most req.Limit
// normalized candidates.
func (f *RSSFetcher) Fetch(ctx context.Context, req feeds.Request) ([]domain.Candidate, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, req.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("User-Agent", "threatwatch/1.0")

	resp, err := f.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request feed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("feed %s returned %s", req.SourceName, resp.Status)
	}

	parsed, err := f.parser.Parse(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse feed: %w", err)
	}

	limit := req.Limit
	if limit <= 0 {
		limit = defaultEntryLimit
	}

	candidates := make([]domain.Candidate, 0, limit)
	for _, item := range parsed.Items {
		if len(candidates) >= limit {
			break
		}

		cand, ok := toCandidate(item, req)
		if !ok {
			continue
		}
		candidates = append(candidates, cand)
	}
	return candidates, nil
}

func toCandidate(item *gofeed.Item, req feeds.Request) (domain.Candidate, bool) {
	externalID := item.GUID
	if externalID == "" {
		externalID = item.Link
	}
	if externalID == "" {
		return domain.Candidate{}, false
	}

	summary := item.Description
	if summary == "" {
		summary = item.Content
	}

	published := time.Now().UTC()
	switch {
	case item.PublishedParsed != nil:
		published = item.PublishedParsed.UTC()
	case item.UpdatedParsed != nil:
		published = item.UpdatedParsed.UTC()
	}

	return domain.Candidate{
		Source:     req.SourceName,
		ExternalID: externalID,
		Title:      NormalizeText(item.Title),
		Summary:    NormalizeText(summary),
		URL:        item.Link,
		Category:   req.Category,
		Published:  published,
	}, true
}

// NormalizeText decodes HTML entities and collapses surrounding
// whitespace before anything reaches the store.
func NormalizeText(s string) string {
	return strings.Join(strings.Fields(html.UnescapeString(s)), " ")
}
