package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"threatwatch/internal/classify"
	"threatwatch/internal/domain"
	"threatwatch/internal/ports"
)

// Orchestrator states.
type OrchestratorState int32

const (
	StateIdle OrchestratorState = iota
	StateTraining
	StatePublished
	StateFailed
)

func (s OrchestratorState) String() string {
	switch s {
	case StateTraining:
		return "training"
	case StatePublished:
		return "published"
	case StateFailed:
		return "failed"
	default:
		return "idle"
	}
}

// DefaultStaleness forces retraining once the active snapshot passes this
// age even without drift.
const DefaultStaleness = 7 * 24 * time.Hour

// Orchestrator decides when retraining is warranted and publishes the
// result atomically. At most one training job is in flight at a time.
type Orchestrator struct {
	store      ports.IncidentStore
	artifacts  ports.ArtifactStore
	trainer    ports.Trainer
	classifier *classify.Service
	stateOut   ports.DriftStateWriter
	staleness  time.Duration
	logger     *slog.Logger

	state    atomic.Int32
	inFlight atomic.Bool
}

// OrchestratorDeps wires the orchestrator's collaborators.
type OrchestratorDeps struct {
	Store      ports.IncidentStore
	Artifacts  ports.ArtifactStore
	Trainer    ports.Trainer
	Classifier *classify.Service
	StateOut   ports.DriftStateWriter
	Staleness  time.Duration
	Logger     *slog.Logger
}

// NewOrchestrator constructs the retraining state machine.
func NewOrchestrator(deps OrchestratorDeps) *Orchestrator {
	if deps.Staleness <= 0 {
		deps.Staleness = DefaultStaleness
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Orchestrator{
		store:      deps.Store,
		artifacts:  deps.Artifacts,
		trainer:    deps.Trainer,
		classifier: deps.Classifier,
		stateOut:   deps.StateOut,
		staleness:  deps.Staleness,
		logger:     deps.Logger,
	}
}

// State reports the machine's current state.
func (o *Orchestrator) State() OrchestratorState {
	return OrchestratorState(o.state.Load())
}

// MaybeRetrain evaluates the retraining policy once and, if any condition
// holds, runs the training job and publishes the new snapshot. Returns
// true when a new snapshot was published.
func (o *Orchestrator) MaybeRetrain(ctx context.Context, now time.Time) (bool, error) {
	reason, due := o.shouldRetrain(ctx, now)
	if !due {
		return false, nil
	}

	// A trigger while a job is already in flight is a no-op.
	if !o.inFlight.CompareAndSwap(false, true) {
		o.logger.Debug("training already in flight, trigger ignored")
		return false, nil
	}
	defer o.inFlight.Store(false)

	o.logger.Info("retraining triggered", "reason", reason)
	o.state.Store(int32(StateTraining))

	published, err := o.runTraining(ctx)
	if err != nil {
		// The previous snapshot stays active; staleness risk makes this
		// the one loud failure of the pipeline.
		o.state.Store(int32(StateFailed))
		o.logger.Error("training failed, keeping previous snapshot",
			"active_version", o.classifier.ActiveVersion(), "error", err)
		return false, err
	}

	if !published {
		o.state.Store(int32(StateIdle))
		return false, nil
	}

	o.state.Store(int32(StatePublished))
	return true, nil
}

// shouldRetrain checks the three trigger conditions: cold start, stale
// snapshot, persisted drift.
func (o *Orchestrator) shouldRetrain(ctx context.Context, now time.Time) (string, bool) {
	snap := o.classifier.Active()
	if snap == nil {
		return "no active model", true
	}

	if now.Sub(snap.TrainedAt) > o.staleness {
		return fmt.Sprintf("snapshot older than %s", o.staleness), true
	}

	latest, err := o.store.LatestMetrics(ctx)
	if err != nil {
		o.logger.Warn("cannot read latest metrics", "error", err)
		return "", false
	}
	if latest != nil && latest.DriftDetected {
		return "drift detected", true
	}
	return "", false
}

func (o *Orchestrator) runTraining(ctx context.Context) (bool, error) {
	corpus, err := o.store.TrainingCorpus(ctx)
	if err != nil {
		return false, fmt.Errorf("load corpus: %w", err)
	}

	result, err := o.trainer.Train(ctx, corpus)
	if err != nil {
		return false, fmt.Errorf("train: %w", err)
	}
	if result.Skipped {
		o.logger.Info("training skipped, corpus below minimum")
		return false, nil
	}

	// Artifacts must be durable before the swap; a failed write keeps
	// the previous snapshot active.
	if err := o.artifacts.SaveSnapshot(ctx, result.Snapshot); err != nil {
		return false, fmt.Errorf("persist artifacts: %w", err)
	}

	accuracy := result.Accuracy
	metrics := domain.ModelMetrics{
		Timestamp:    result.Snapshot.TrainedAt,
		ModelVersion: result.Snapshot.Version,
		Accuracy:     &accuracy,
	}
	if err := o.store.InsertMetrics(ctx, metrics); err != nil {
		return false, fmt.Errorf("record training metrics: %w", err)
	}
	if o.stateOut != nil {
		if err := o.stateOut.Write(metrics); err != nil {
			o.logger.Warn("cannot write drift state record", "error", err)
		}
	}

	o.classifier.Activate(result.Snapshot)
	o.logger.Info("new snapshot published",
		"version", result.Snapshot.Version,
		"accuracy", fmt.Sprintf("%.3f", result.Accuracy))
	return true, nil
}
