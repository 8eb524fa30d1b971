package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"threatwatch/internal/classify"
	"threatwatch/internal/domain"
	"threatwatch/internal/drift"
	"threatwatch/internal/ports"
)

const recentScoreWindow = 200

// PipelineDeps wires all collaborators into the cycle orchestration.
type PipelineDeps struct {
	Source       ports.FeedSource
	Store        ports.IncidentStore
	Classifier   *classify.Service
	Monitor      *drift.Monitor
	Orchestrator *Orchestrator
	StateOut     ports.DriftStateWriter
	Throttle     time.Duration
	Logger       *slog.Logger
}

// Pipeline runs one ingestion → scoring → drift → retraining → retention
// cycle at a time. No stage failure terminates the cycle; each stage logs
// and the loop retries on the next interval.
type Pipeline struct {
	source       ports.FeedSource
	store        ports.IncidentStore
	classifier   *classify.Service
	monitor      *drift.Monitor
	orchestrator *Orchestrator
	stateOut     ports.DriftStateWriter
	throttle     time.Duration
	logger       *slog.Logger
}

// NewPipeline constructs the cycle orchestration component.
func NewPipeline(deps PipelineDeps) *Pipeline {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Monitor == nil {
		deps.Monitor = drift.NewMonitor()
	}
	return &Pipeline{
		source:       deps.Source,
		store:        deps.Store,
		classifier:   deps.Classifier,
		monitor:      deps.Monitor,
		orchestrator: deps.Orchestrator,
		stateOut:     deps.StateOut,
		throttle:     deps.Throttle,
		logger:       deps.Logger,
	}
}

// RunCycle executes one full pipeline pass. Scoring always runs before
// retention purge so a purge never races a row about to be scored.
func (p *Pipeline) RunCycle(ctx context.Context, now time.Time) error {
	inserted, err := p.ingest(ctx)
	if err != nil {
		return fmt.Errorf("ingest: %w", err)
	}

	scored, err := p.classifier.ScorePending(ctx, false)
	if err != nil {
		p.logger.Error("scoring pass failed", "error", err)
	}

	p.evaluateDrift(ctx, now)

	published, err := p.orchestrator.MaybeRetrain(ctx, now)
	if err != nil {
		p.logger.Error("retraining failed", "error", err)
	}
	if published {
		// A fresh model can label rows that were deferred while no
		// snapshot was active.
		if n, err := p.classifier.ScorePending(ctx, false); err == nil && n > 0 {
			scored += n
		}
	}

	purged, err := p.store.Purge(ctx, now)
	if err != nil {
		p.logger.Error("retention purge failed", "error", err)
	}

	p.logger.Info("cycle complete",
		"inserted", inserted,
		"scored", scored,
		"published", published,
		"purged", purged,
		"orchestrator", p.orchestrator.State().String())
	return nil
}

// ingest fetches all configured feeds and upserts candidates one at a
// time, with a throttling delay between writes.
func (p *Pipeline) ingest(ctx context.Context) (int, error) {
	candidates, err := p.source.Fetch(ctx)
	if err != nil {
		return 0, fmt.Errorf("fetch feeds: %w", err)
	}

	inserted := 0
	for _, cand := range candidates {
		outcome, err := p.store.Upsert(ctx, cand)
		if err != nil {
			p.logger.Warn("upsert failed",
				"source", cand.Source, "external_id", cand.ExternalID, "error", err)
			continue
		}
		if outcome == domain.Inserted {
			inserted++
		}

		if p.throttle > 0 {
			select {
			case <-time.After(p.throttle):
			case <-ctx.Done():
				return inserted, ctx.Err()
			}
		}
	}

	p.logger.Info("ingestion done", "candidates", len(candidates), "inserted", inserted)
	return inserted, nil
}

// evaluateDrift samples recent usefulness scores and records the
// evaluation as one metrics row, drift-triggering or not.
func (p *Pipeline) evaluateDrift(ctx context.Context, now time.Time) {
	scores, err := p.store.RecentScores(ctx, recentScoreWindow)
	if err != nil {
		p.logger.Error("cannot sample recent scores", "error", err)
		return
	}

	eval := p.monitor.Evaluate(scores)
	if !eval.Evaluated {
		p.logger.Info("drift evaluation skipped", "samples", eval.Samples, "min", p.monitor.MinSamples)
	}

	metrics := domain.ModelMetrics{
		Timestamp:     now,
		ModelVersion:  p.classifier.ActiveVersion(),
		DriftScore:    eval.DriftScore,
		DriftDetected: eval.DriftDetected,
	}
	if err := p.store.InsertMetrics(ctx, metrics); err != nil {
		p.logger.Error("cannot record drift metrics", "error", err)
		return
	}
	if p.stateOut != nil {
		if err := p.stateOut.Write(metrics); err != nil {
			p.logger.Warn("cannot write drift state record", "error", err)
		}
	}

	if eval.DriftDetected {
		p.logger.Warn("model drift detected",
			"drift_score", fmt.Sprintf("%.3f", eval.DriftScore),
			"model_version", metrics.ModelVersion)
	}
}
