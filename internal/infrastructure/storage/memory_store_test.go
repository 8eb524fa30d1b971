package storage

import (
	"context"
	"testing"
	"time"

	"threatwatch/internal/config"
	"threatwatch/internal/domain"
)

var testRetention = config.RetentionConfig{
	ShortWindow: 60 * 24 * time.Hour,
	LongWindow:  120 * 24 * time.Hour,
}

func TestUpsertIdempotent(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewMemoryStore(testRetention)

	cand := domain.Candidate{
		Source:     "cisa",
		ExternalID: "abc123",
		Title:      "Advisory",
		Published:  time.Now(),
	}

	outcome, err := store.Upsert(ctx, cand)
	if err != nil {
		t.Fatalf("first upsert: %v", err)
	}
	if outcome != domain.Inserted {
		t.Fatalf("expected Inserted, got %s", outcome)
	}

	outcome, err = store.Upsert(ctx, cand)
	if err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	if outcome != domain.SkippedDuplicate {
		t.Fatalf("expected SkippedDuplicate, got %s", outcome)
	}

	// Same id under a different source is a distinct incident.
	cand.Source = "ncsc"
	if outcome, _ = store.Upsert(ctx, cand); outcome != domain.Inserted {
		t.Fatalf("different source should insert, got %s", outcome)
	}

	if n := len(store.Incidents()); n != 2 {
		t.Fatalf("expected 2 rows, got %d", n)
	}
}

func TestPurgeRetentionTiers(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewMemoryStore(testRetention)
	now := time.Now().UTC()

	seed := []struct {
		id       string
		priority domain.Priority
		age      time.Duration
	}{
		{"low-old", domain.PriorityLow, 61 * 24 * time.Hour},
		{"low-fresh", domain.PriorityLow, 10 * 24 * time.Hour},
		{"crit-old", domain.PriorityCritical, 61 * 24 * time.Hour},
		{"crit-ancient", domain.PriorityCritical, 121 * 24 * time.Hour},
		{"high-old", domain.PriorityHigh, 90 * 24 * time.Hour},
	}

	for _, row := range seed {
		if _, err := store.Upsert(ctx, domain.Candidate{
			Source:     "feed",
			ExternalID: row.id,
			Title:      row.id,
			Published:  now.Add(-row.age),
		}); err != nil {
			t.Fatalf("seed %s: %v", row.id, err)
		}
	}

	pending, err := store.Pending(ctx, false, 100)
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	for i := range pending {
		pending[i].ScoreStatus = domain.ScoreStatusScored
		pending[i].Priority = seed[i].priority
	}
	if err := store.ApplyScores(ctx, pending); err != nil {
		t.Fatalf("apply scores: %v", err)
	}

	deleted, err := store.Purge(ctx, now)
	if err != nil {
		t.Fatalf("purge: %v", err)
	}
	if deleted != 2 {
		t.Fatalf("expected 2 deletions, got %d", deleted)
	}

	survivors := map[string]bool{}
	for _, inc := range store.Incidents() {
		survivors[inc.ExternalID] = true
	}

	for _, want := range []string{"low-fresh", "crit-old", "high-old"} {
		if !survivors[want] {
			t.Fatalf("%s should have survived the purge", want)
		}
	}
	for _, gone := range []string{"low-old", "crit-ancient"} {
		if survivors[gone] {
			t.Fatalf("%s should have been purged", gone)
		}
	}
}

func TestRecentScoresNewestFirst(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewMemoryStore(testRetention)
	now := time.Now().UTC()

	for i, score := range []float64{0.1, 0.2, 0.3} {
		if _, err := store.Upsert(ctx, domain.Candidate{
			Source:     "feed",
			ExternalID: string(rune('a' + i)),
			Title:      "row",
			Published:  now.Add(time.Duration(i) * time.Hour),
		}); err != nil {
			t.Fatalf("upsert: %v", err)
		}

		pending, _ := store.Pending(ctx, false, 10)
		for j := range pending {
			pending[j].ScoreStatus = domain.ScoreStatusScored
			pending[j].UsefulScore = score
		}
		if err := store.ApplyScores(ctx, pending); err != nil {
			t.Fatalf("apply: %v", err)
		}
	}

	scores, err := store.RecentScores(ctx, 2)
	if err != nil {
		t.Fatalf("recent scores: %v", err)
	}
	if len(scores) != 2 {
		t.Fatalf("expected 2 scores, got %d", len(scores))
	}
	if scores[0] != 0.3 {
		t.Fatalf("newest score first, got %v", scores)
	}
}

func TestMetricsLogNewestFirst(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewMemoryStore(testRetention)
	base := time.Now().UTC()

	for i := 0; i < 3; i++ {
		if err := store.InsertMetrics(ctx, domain.ModelMetrics{
			Timestamp:    base.Add(time.Duration(i) * time.Minute),
			ModelVersion: "v" + string(rune('1'+i)),
		}); err != nil {
			t.Fatalf("insert metrics: %v", err)
		}
	}

	latest, err := store.LatestMetrics(ctx)
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if latest == nil || latest.ModelVersion != "v3" {
		t.Fatalf("expected v3 latest, got %+v", latest)
	}

	empty := NewMemoryStore(testRetention)
	if latest, err = empty.LatestMetrics(ctx); err != nil || latest != nil {
		t.Fatalf("empty log should yield nil, got %+v err=%v", latest, err)
	}
}
