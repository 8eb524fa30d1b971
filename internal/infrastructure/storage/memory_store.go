package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"threatwatch/internal/config"
	"threatwatch/internal/domain"
	"threatwatch/internal/ports"
)

// MemoryStore is a mutex-guarded in-memory IncidentStore. It backs
// DSN-less runs and tests; semantics mirror the Postgres store.
type MemoryStore struct {
	mu        sync.Mutex
	incidents []domain.Incident
	metrics   []domain.ModelMetrics
	nextID    int64
	retention config.RetentionConfig
	lastIngst time.Time
}

var _ ports.IncidentStore = (*MemoryStore)(nil)

// NewMemoryStore builds an empty store with the given retention tiers.
func NewMemoryStore(retention config.RetentionConfig) *MemoryStore {
	return &MemoryStore{nextID: 1, retention: retention}
}

// Upsert inserts unless the (source, external_id) pair already exists.
func (s *MemoryStore) Upsert(_ context.Context, cand domain.Candidate) (domain.UpsertOutcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, inc := range s.incidents {
		if inc.Source == cand.Source && inc.ExternalID == cand.ExternalID {
			return domain.SkippedDuplicate, nil
		}
	}

	// ingested_at stays monotonic non-decreasing per row.
	ingested := time.Now().UTC()
	if ingested.Before(s.lastIngst) {
		ingested = s.lastIngst
	}
	s.lastIngst = ingested

	s.incidents = append(s.incidents, domain.Incident{
		ID:          s.nextID,
		Source:      cand.Source,
		ExternalID:  cand.ExternalID,
		Title:       cand.Title,
		Summary:     cand.Summary,
		Description: cand.Summary,
		URL:         cand.URL,
		Category:    cand.Category,
		Timestamp:   cand.Published,
		IngestedAt:  ingested,
		ScoreStatus: domain.ScoreStatusUnscored,
		GeoScope:    "Global",
		Status:      "active",
	})
	s.nextID++
	return domain.Inserted, nil
}

// Pending returns rows awaiting classification, oldest ingested first.
func (s *MemoryStore) Pending(_ context.Context, force bool, limit int) ([]domain.Incident, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var pending []domain.Incident
	for _, inc := range s.incidents {
		if !force && inc.ScoreStatus != domain.ScoreStatusUnscored {
			continue
		}
		pending = append(pending, inc)
		if len(pending) >= limit {
			break
		}
	}
	return pending, nil
}

// ApplyScores writes back the derived fields of a scoring batch.
func (s *MemoryStore) ApplyScores(_ context.Context, scored []domain.Incident) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	byID := make(map[int64]domain.Incident, len(scored))
	for _, inc := range scored {
		byID[inc.ID] = inc
	}
	for i, inc := range s.incidents {
		if upd, ok := byID[inc.ID]; ok {
			upd.IngestedAt = inc.IngestedAt
			s.incidents[i] = upd
		}
	}
	return nil
}

// RecentScores returns usefulness scores of scored rows, newest
// timestamp first.
func (s *MemoryStore) RecentScores(_ context.Context, limit int) ([]float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	scored := make([]domain.Incident, 0, len(s.incidents))
	for _, inc := range s.incidents {
		if inc.ScoreStatus != domain.ScoreStatusUnscored {
			scored = append(scored, inc)
		}
	}
	sort.Slice(scored, func(i, j int) bool {
		if scored[i].Timestamp.Equal(scored[j].Timestamp) {
			return scored[i].ID > scored[j].ID
		}
		return scored[i].Timestamp.After(scored[j].Timestamp)
	})

	if len(scored) > limit {
		scored = scored[:limit]
	}
	scores := make([]float64, len(scored))
	for i, inc := range scored {
		scores[i] = inc.UsefulScore
	}
	return scores, nil
}

// TrainingCorpus returns scored rows with usable text.
func (s *MemoryStore) TrainingCorpus(_ context.Context) ([]domain.Incident, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var corpus []domain.Incident
	for _, inc := range s.incidents {
		if inc.ScoreStatus == domain.ScoreStatusUnscored {
			continue
		}
		if inc.Summary == "" && inc.Title == "" {
			continue
		}
		corpus = append(corpus, inc)
	}
	return corpus, nil
}

// InsertMetrics appends one audit record.
func (s *MemoryStore) InsertMetrics(_ context.Context, m domain.ModelMetrics) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m.ID = int64(len(s.metrics) + 1)
	s.metrics = append(s.metrics, m)
	return nil
}

// LatestMetrics returns the newest record, or nil when none exists.
func (s *MemoryStore) LatestMetrics(ctx context.Context) (*domain.ModelMetrics, error) {
	records, err := s.RecentMetrics(ctx, 1)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}
	return &records[0], nil
}

// RecentMetrics returns records newest first.
func (s *MemoryStore) RecentMetrics(_ context.Context, limit int) ([]domain.ModelMetrics, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	records := append([]domain.ModelMetrics(nil), s.metrics...)
	sort.Slice(records, func(i, j int) bool {
		if records[i].Timestamp.Equal(records[j].Timestamp) {
			return records[i].ID > records[j].ID
		}
		return records[i].Timestamp.After(records[j].Timestamp)
	})

	if len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}

// Purge removes rows past their retention tier.
func (s *MemoryStore) Purge(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	shortCutoff := now.Add(-s.retention.ShortWindow)
	longCutoff := now.Add(-s.retention.LongWindow)

	kept := s.incidents[:0]
	var deleted int64
	for _, inc := range s.incidents {
		protected := inc.Priority == domain.PriorityHigh || inc.Priority == domain.PriorityCritical
		cutoff := shortCutoff
		if protected {
			cutoff = longCutoff
		}
		if inc.Timestamp.Before(cutoff) {
			deleted++
			continue
		}
		kept = append(kept, inc)
	}
	s.incidents = kept
	return deleted, nil
}

// Incidents returns a copy of all rows; used by read-only projections
// and tests.
func (s *MemoryStore) Incidents() []domain.Incident {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Incident(nil), s.incidents...)
}
