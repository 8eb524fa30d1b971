package usecase

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"threatwatch/internal/classify"
	"threatwatch/internal/domain"
	"threatwatch/internal/drift"
	"threatwatch/internal/infrastructure/storage"
	"threatwatch/internal/train"
)

// fakeSource serves a fixed candidate list, or an error.
type fakeSource struct {
	candidates []domain.Candidate
	err        error
}

func (f *fakeSource) Fetch(context.Context) ([]domain.Candidate, error) {
	return f.candidates, f.err
}

// seedScoredCorpus inserts and hand-labels enough rows for training.
func seedScoredCorpus(t *testing.T, store *storage.MemoryStore) {
	t.Helper()
	ctx := context.Background()

	seed := []struct {
		text     string
		priority domain.Priority
	}{
		{"ransomware encrypts municipal court records", domain.PriorityCritical},
		{"ransomware group claims hospital breach", domain.PriorityCritical},
		{"routine firmware update for routers", domain.PriorityLow},
		{"vendor announces scheduled maintenance", domain.PriorityLow},
		{"phishing wave hits regional banks", domain.PriorityMedium},
		{"phishing kit abuses cloud storage links", domain.PriorityMedium},
	}

	for i, row := range seed {
		if _, err := store.Upsert(ctx, domain.Candidate{
			Source:     "seed",
			ExternalID: fmt.Sprintf("seed-%d", i),
			Title:      row.text,
			Summary:    row.text,
			Published:  time.Now().UTC().Add(-time.Duration(i) * time.Hour),
		}); err != nil {
			t.Fatalf("seed upsert: %v", err)
		}
	}

	pending, err := store.Pending(ctx, false, 100)
	if err != nil {
		t.Fatalf("seed pending: %v", err)
	}
	for i := range pending {
		pending[i].ScoreStatus = domain.ScoreStatusScored
		pending[i].Priority = seed[i].priority
		pending[i].UsefulScore = 0.6
	}
	if err := store.ApplyScores(ctx, pending); err != nil {
		t.Fatalf("seed apply: %v", err)
	}
}

func newTestPipeline(source *fakeSource, store *storage.MemoryStore) (*Pipeline, *classify.Service, *Orchestrator) {
	classifier := classify.NewService(store, nil)
	orch := NewOrchestrator(OrchestratorDeps{
		Store:      store,
		Artifacts:  &fakeArtifacts{},
		Trainer:    train.New(0, nil),
		Classifier: classifier,
	})
	pipeline := NewPipeline(PipelineDeps{
		Source:       source,
		Store:        store,
		Classifier:   classifier,
		Monitor:      drift.NewMonitor(),
		Orchestrator: orch,
	})
	return pipeline, classifier, orch
}

func TestRunCycleEndToEnd(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := storage.NewMemoryStore(testRetention)
	seedScoredCorpus(t, store)

	source := &fakeSource{candidates: []domain.Candidate{{
		Source:     "cisa",
		ExternalID: "abc123",
		Title:      "Ransomware hits hospital network",
		Category:   "Government Advisory",
		Published:  time.Now().UTC(),
	}}}

	pipeline, classifier, orch := newTestPipeline(source, store)

	if err := pipeline.RunCycle(ctx, time.Now()); err != nil {
		t.Fatalf("RunCycle: %v", err)
	}

	// Cold start: the first cycle trains and publishes a snapshot.
	if classifier.Active() == nil {
		t.Fatal("first cycle must publish a model")
	}
	if orch.State() != StatePublished {
		t.Fatalf("expected Published, got %s", orch.State())
	}

	var incident *domain.Incident
	for _, inc := range store.Incidents() {
		if inc.ExternalID == "abc123" {
			incident = &inc
			break
		}
	}
	if incident == nil {
		t.Fatal("ingested incident not found")
	}

	if incident.Priority != domain.PriorityCritical {
		t.Fatalf("keyword override should force CRITICAL, got %s", incident.Priority)
	}
	if incident.Sector != "Healthcare" {
		t.Fatalf("expected Healthcare sector, got %s", incident.Sector)
	}
	if incident.IsMitigated {
		t.Fatal("CRITICAL incident must not be mitigated")
	}
	if incident.ThreatScore < 0 || incident.ThreatScore > 1 {
		t.Fatalf("threat score out of range: %f", incident.ThreatScore)
	}

	// A drift evaluation was recorded even with an undersized window.
	if latest, err := store.LatestMetrics(ctx); err != nil || latest == nil {
		t.Fatalf("cycle must leave a metrics trail: %+v err=%v", latest, err)
	}
}

func TestRunCycleIdempotentIngestion(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := storage.NewMemoryStore(testRetention)
	seedScoredCorpus(t, store)

	source := &fakeSource{candidates: []domain.Candidate{{
		Source:     "cisa",
		ExternalID: "abc123",
		Title:      "Ransomware hits hospital network",
		Published:  time.Now().UTC(),
	}}}

	pipeline, _, _ := newTestPipeline(source, store)

	if err := pipeline.RunCycle(ctx, time.Now()); err != nil {
		t.Fatalf("first cycle: %v", err)
	}
	if err := pipeline.RunCycle(ctx, time.Now()); err != nil {
		t.Fatalf("second cycle: %v", err)
	}

	count := 0
	for _, inc := range store.Incidents() {
		if inc.ExternalID == "abc123" {
			count++
		}
	}
	if count != 1 {
		t.Fatalf("re-ingesting the same item must keep one row, got %d", count)
	}
}

func TestRunCycleSourceFailure(t *testing.T) {
	t.Parallel()

	store := storage.NewMemoryStore(testRetention)
	pipeline, _, _ := newTestPipeline(&fakeSource{err: errors.New("all feeds down")}, store)

	if err := pipeline.RunCycle(context.Background(), time.Now()); err == nil {
		t.Fatal("a fully failed fetch should surface from the cycle")
	}
	if len(store.Incidents()) != 0 {
		t.Fatal("nothing should be stored on fetch failure")
	}
}
