package ports

import (
	"context"
	"time"

	"threatwatch/internal/domain"
	"threatwatch/internal/ml"
)

// FeedSource pulls fresh candidate items from all configured upstream feeds.
// Per-feed failures are absorbed: the returned slice carries whatever the
// healthy feeds produced.
type FeedSource interface {
	Fetch(ctx context.Context) ([]domain.Candidate, error)
}

// IncidentStore is the single shared mutable resource of the pipeline. All
// writes go through these operations; read-only consumers (dashboard, API)
// use the same queries and never write.
type IncidentStore interface {
	// Upsert inserts a candidate unless a row with the same
	// (source, external_id) already exists. A uniqueness race counts as
	// SkippedDuplicate, not an error.
	Upsert(ctx context.Context, cand domain.Candidate) (domain.UpsertOutcome, error)

	// Pending returns rows awaiting classification, oldest first. With
	// force set, already-scored rows are returned as well.
	Pending(ctx context.Context, force bool, limit int) ([]domain.Incident, error)

	// ApplyScores writes back the derived fields of a scoring batch in a
	// single commit.
	ApplyScores(ctx context.Context, scored []domain.Incident) error

	// RecentScores returns the usefulness signal of the most recently
	// timestamped scored rows, newest first.
	RecentScores(ctx context.Context, limit int) ([]float64, error)

	// TrainingCorpus returns all scored rows that carry usable text.
	TrainingCorpus(ctx context.Context) ([]domain.Incident, error)

	InsertMetrics(ctx context.Context, m domain.ModelMetrics) error
	LatestMetrics(ctx context.Context) (*domain.ModelMetrics, error)
	RecentMetrics(ctx context.Context, limit int) ([]domain.ModelMetrics, error)

	// Purge removes rows past their retention tier and reports how many
	// were deleted.
	Purge(ctx context.Context, now time.Time) (int64, error)
}

// ArtifactStore persists versioned model artifact triples. Saving a snapshot
// is atomic: either all three blobs plus the version record land, or none.
type ArtifactStore interface {
	SaveSnapshot(ctx context.Context, snap *ml.Snapshot) error
	LoadSnapshot(ctx context.Context, version string) (*ml.Snapshot, error)
	LatestVersion(ctx context.Context) (string, error)
	Versions(ctx context.Context) ([]string, error)
}

// TrainResult is the typed completion signal of one training job.
type TrainResult struct {
	Snapshot *ml.Snapshot
	Accuracy float64
	// Skipped marks an insufficient-corpus no-op; not a failure.
	Skipped bool
}

// Trainer fits a new model snapshot from the labeled incident corpus.
type Trainer interface {
	Train(ctx context.Context, corpus []domain.Incident) (TrainResult, error)
}

// DriftStateWriter publishes the latest drift/training record for external
// reporting layers.
type DriftStateWriter interface {
	Write(m domain.ModelMetrics) error
}

// Scheduler drives the recurring pipeline cycle.
type Scheduler interface {
	Start(ctx context.Context, job func(time.Time)) error
	Stop(ctx context.Context) error
}
