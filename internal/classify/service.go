package classify

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"threatwatch/internal/domain"
	"threatwatch/internal/ml"
	"threatwatch/internal/ports"
)

const defaultBatchSize = 500

// Result is one scoring verdict for a piece of incident text.
type Result struct {
	Priority     domain.Priority
	Proba        map[string]float64
	AnomalyScore float64
	Confidence   float64
	Overridden   bool
}

// Service holds the active model snapshot and scores incidents with it.
// The snapshot is swapped atomically; scoring calls in flight keep the
// snapshot they started with.
type Service struct {
	store     ports.IncidentStore
	logger    *slog.Logger
	batchSize int
	active    atomic.Pointer[ml.Snapshot]
}

// NewService wires the incident store; the service starts without an
// active snapshot and defers scoring until one is published.
func NewService(store ports.IncidentStore, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, logger: logger, batchSize: defaultBatchSize}
}

// Activate publishes a new snapshot. All subsequent Score calls see it at
// once.
func (s *Service) Activate(snap *ml.Snapshot) {
	s.active.Store(snap)
	if snap != nil {
		s.logger.Info("model snapshot activated", "version", snap.Version)
	}
}

// Active returns the current snapshot, or nil before the first training.
func (s *Service) Active() *ml.Snapshot {
	return s.active.Load()
}

// ActiveVersion returns the active snapshot version, or "none".
func (s *Service) ActiveVersion() string {
	if snap := s.active.Load(); snap != nil {
		return snap.Version
	}
	return "none"
}

// Score classifies one text against the active snapshot. The second
// return is false when no snapshot is active; callers must defer rather
// than fabricate a score.
func (s *Service) Score(text string) (Result, bool) {
	snap := s.active.Load()
	if snap == nil {
		return Result{}, false
	}

	vec := snap.Vectorizer.Transform(text)
	proba := snap.Classifier.PredictProba(vec)

	label, confidence := snap.Classifier.Predict(vec)
	priority := domain.Priority(label)
	if !priority.Valid() {
		priority = domain.PriorityLow
	}

	res := Result{
		Priority:     priority,
		Proba:        proba,
		AnomalyScore: domain.Clamp01(snap.Outlier.Score(vec)),
		Confidence:   confidence,
	}

	// Keyword overrides take precedence over the model's prediction.
	if override, ok := OverrideSeverity(text); ok {
		res.Priority = override
		res.Overridden = true
	}
	return res, true
}

// ScorePending scans unscored rows, scores each, and commits the derived
// fields in one batch. With force set, already-scored rows are re-scored
// too. Returns the number of rows written.
func (s *Service) ScorePending(ctx context.Context, force bool) (int, error) {
	snap := s.active.Load()
	if snap == nil {
		s.logger.Debug("no active snapshot, scoring deferred")
		return 0, nil
	}

	pending, err := s.store.Pending(ctx, force, s.batchSize)
	if err != nil {
		return 0, fmt.Errorf("load pending: %w", err)
	}
	if len(pending) == 0 {
		return 0, nil
	}

	scored := make([]domain.Incident, 0, len(pending))
	for _, inc := range pending {
		text := inc.Summary
		if text == "" {
			text = inc.Title
		}

		res, ok := s.Score(text)
		if !ok {
			break
		}
		scored = append(scored, apply(inc, res, snap.Version))
	}

	if err := s.store.ApplyScores(ctx, scored); err != nil {
		return 0, fmt.Errorf("apply scores: %w", err)
	}

	s.logger.Info("scored pending incidents", "count", len(scored), "model_version", snap.Version)
	return len(scored), nil
}

// apply folds a scoring result into the incident's derived fields.
func apply(inc domain.Incident, res Result, version string) domain.Incident {
	text := inc.Summary
	if text == "" {
		text = inc.Title
	}

	inc.Priority = res.Priority
	inc.Category = DeriveCategory(text, inc.Category)
	inc.Sector = DeriveSector(inc.Category, text)
	inc.UsefulScore = domain.Clamp01(res.Confidence)
	inc.IsUseful = inc.UsefulScore >= 0.5
	inc.AnomalyScore = res.AnomalyScore
	inc.ThreatScore = ThreatScore(res.Priority, res.AnomalyScore, inc.UsefulScore)
	inc.IsCritical = res.Priority == domain.PriorityHigh || res.Priority == domain.PriorityCritical
	// Only confirmed-low incidents count as mitigated.
	inc.IsMitigated = res.Priority == domain.PriorityLow
	inc.ModelVersion = version

	inc.ScoreStatus = domain.ScoreStatusScored
	if res.Overridden {
		inc.ScoreStatus = domain.ScoreStatusOverride
	}
	return inc
}
