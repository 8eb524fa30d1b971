package domain

import "time"

// Priority is the fixed severity ladder assigned to incidents.
type Priority string

const (
	PriorityLow      Priority = "LOW"
	PriorityMedium   Priority = "MEDIUM"
	PriorityHigh     Priority = "HIGH"
	PriorityCritical Priority = "CRITICAL"
)

// Valid reports whether p is one of the four known levels.
func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical:
		return true
	}
	return false
}

// Weight maps a priority to its contribution in the threat score, in [0,1].
func (p Priority) Weight() float64 {
	switch p {
	case PriorityCritical:
		return 1.0
	case PriorityHigh:
		return 0.8
	case PriorityMedium:
		return 0.5
	case PriorityLow:
		return 0.1
	default:
		return 0.0
	}
}

// ScoreStatus tracks whether classification has run for an incident.
// It is kept separate from Priority so "confirmed low severity" and
// "never scored" stay distinguishable.
type ScoreStatus string

const (
	ScoreStatusUnscored ScoreStatus = "unscored"
	ScoreStatusScored   ScoreStatus = "scored"
	ScoreStatusOverride ScoreStatus = "override"
)

// Candidate is one normalized item produced by a feed fetcher, before
// deduplication and scoring.
type Candidate struct {
	Source     string
	ExternalID string
	Title      string
	Summary    string
	URL        string
	Category   string
	Published  time.Time
}

// Text returns the preferred text for classification: summary, falling
// back to title.
func (c Candidate) Text() string {
	if c.Summary != "" {
		return c.Summary
	}
	return c.Title
}

// Incident is a stored, deduplicated feed item plus its derived scores.
type Incident struct {
	ID          int64
	Source      string
	ExternalID  string
	Title       string
	Summary     string
	Description string
	URL         string
	Timestamp   time.Time
	IngestedAt  time.Time

	ScoreStatus  ScoreStatus
	Priority     Priority
	Category     string
	Sector       string
	GeoScope     string
	Status       string
	IsCritical   bool
	IsMitigated  bool
	IsUseful     bool
	UsefulScore  float64
	AnomalyScore float64
	ThreatScore  float64
	ModelVersion string
}

// ModelMetrics is one append-only audit record, written once per training
// run and once per drift evaluation. Accuracy is nil for pure drift
// evaluations.
type ModelMetrics struct {
	ID            int64
	Timestamp     time.Time
	ModelVersion  string
	Accuracy      *float64
	DriftScore    float64
	DriftDetected bool
}

// UpsertOutcome reports what the deduplicating store did with a candidate.
type UpsertOutcome int

const (
	Inserted UpsertOutcome = iota
	SkippedDuplicate
)

func (o UpsertOutcome) String() string {
	if o == Inserted {
		return "inserted"
	}
	return "skipped_duplicate"
}

// Clamp01 bounds a score to [0,1]; anomaly and threat scores are stored
// on this scale everywhere.
func Clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
