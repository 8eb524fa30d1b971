package feeds

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"threatwatch/internal/config"
	"threatwatch/internal/feeds"
)

func TestStrategySourceIsolatesFailingFeeds(t *testing.T) {
	t.Parallel()

	healthy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(sampleRSS))
	}))
	defer healthy.Close()

	broken := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer broken.Close()

	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(5 * time.Second):
		case <-r.Context().Done():
		}
	}))
	defer slow.Close()

	registry := feeds.NewRegistry()
	registry.Register(NewRSSFetcher(nil))

	source := NewStrategySource(registry, config.IngestConfig{
		SourceTimeout:  200 * time.Millisecond,
		MaxParallel:    3,
		PerSourceLimit: 10,
	}, []config.SourceConfig{
		{Name: "broken", URL: broken.URL, Fetcher: "rss"},
		{Name: "slow", URL: slow.URL, Fetcher: "rss"},
		{Name: "healthy", URL: healthy.URL, Fetcher: "rss", Category: "Cyber News"},
		{Name: "unknown-strategy", URL: healthy.URL, Fetcher: "carrier-pigeon"},
	}, nil)

	start := time.Now()
	candidates, err := source.Fetch(context.Background())
	if err != nil {
		t.Fatalf("per-source failures must not surface: %v", err)
	}

	if len(candidates) != 3 {
		t.Fatalf("expected the healthy feed's 3 items, got %d", len(candidates))
	}
	for _, cand := range candidates {
		if cand.Source != "healthy" {
			t.Fatalf("unexpected source %s in results", cand.Source)
		}
	}

	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("slow feed must be cut off by its timeout, took %v", elapsed)
	}
}
