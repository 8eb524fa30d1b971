package feeds

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"threatwatch/internal/domain"
	"threatwatch/internal/feeds"
)

// AdvisoryFetcher scrapes HTML advisory-listing pages for sources that
// publish no machine feed. Selectors default to common advisory markup
// and can be overridden per source via options.
type AdvisoryFetcher struct {
	client *http.Client
}

var _ feeds.Fetcher = (*AdvisoryFetcher)(nil)

// NewAdvisoryFetcher wires an HTTP client; nil gets a 20s-timeout
// default.
func NewAdvisoryFetcher(client *http.Client) *AdvisoryFetcher {
	if client == nil {
		client = &http.Client{Timeout: 20 * time.Second}
	}
	return &AdvisoryFetcher{client: client}
}

// Name identifies the strategy inside the registry.
func (f *AdvisoryFetcher) Name() string {
	return "advisory-html"
}

var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02",
	"02 Jan 2006",
	"January 2, 2006",
}

// Fetch downloads the listing page and extracts one candidate per item
// block.
func (f *AdvisoryFetcher) Fetch(ctx context.Context, req feeds.Request) ([]domain.Candidate, error) {
	doc, err := f.fetchDocument(ctx, req.URL)
	if err != nil {
		return nil, err
	}

	itemSel := option(req.Options, "item", "article")
	titleSel := option(req.Options, "title", "h2, h3")
	summarySel := option(req.Options, "summary", "p")
	dateSel := option(req.Options, "date", "time")

	limit := req.Limit
	if limit <= 0 {
		limit = defaultEntryLimit
	}

	var candidates []domain.Candidate
	doc.Find(itemSel).EachWithBreak(func(_ int, item *goquery.Selection) bool {
		link := item.Find("a").First()
		href, _ := link.Attr("href")
		href = resolveLink(req.URL, href)
		if href == "" {
			return true
		}

		title := NormalizeText(item.Find(titleSel).First().Text())
		if title == "" {
			title = NormalizeText(link.Text())
		}
		if title == "" {
			return true
		}

		published := time.Now().UTC()
		if parsed, ok := parseItemDate(item, dateSel); ok {
			published = parsed
		}

		candidates = append(candidates, domain.Candidate{
			Source:     req.SourceName,
			ExternalID: href,
			Title:      title,
			Summary:    NormalizeText(item.Find(summarySel).First().Text()),
			URL:        href,
			Category:   req.Category,
			Published:  published,
		})
		return len(candidates) < limit
	})

	return candidates, nil
}

func (f *AdvisoryFetcher) fetchDocument(ctx context.Context, pageURL string) (*goquery.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", "threatwatch/1.0")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request listing: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("listing returned %s", resp.Status)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse listing: %w", err)
	}
	return doc, nil
}

func parseItemDate(item *goquery.Selection, dateSel string) (time.Time, bool) {
	node := item.Find(dateSel).First()

	text, hasAttr := node.Attr("datetime")
	if !hasAttr {
		text = strings.TrimSpace(node.Text())
	}
	if text == "" {
		return time.Time{}, false
	}

	for _, layout := range dateLayouts {
		if parsed, err := time.Parse(layout, text); err == nil {
			return parsed.UTC(), true
		}
	}
	return time.Time{}, false
}

func resolveLink(base, href string) string {
	if href == "" || strings.HasPrefix(href, "http") {
		return href
	}

	parsed, err := url.Parse(base)
	if err != nil {
		return href
	}
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	return parsed.ResolveReference(ref).String()
}

func option(opts map[string]string, key, fallback string) string {
	if v, ok := opts[key]; ok && v != "" {
		return v
	}
	return fallback
}
