package train

import (
	"context"
	"testing"
	"time"

	"threatwatch/internal/domain"
	"threatwatch/internal/logging"
)

func labeledCorpus() []domain.Incident {
	rows := []struct {
		title    string
		priority domain.Priority
	}{
		{"ransomware encrypts hospital records", domain.PriorityCritical},
		{"zero-day exploited against vpn gateways", domain.PriorityCritical},
		{"new malware strain targets bank portals", domain.PriorityHigh},
		{"exploit kit resurfaces in ad networks", domain.PriorityHigh},
		{"phishing wave hits university inboxes", domain.PriorityMedium},
		{"scam calls impersonate tax office", domain.PriorityMedium},
		{"vendor releases routine security patch", domain.PriorityLow},
	}

	corpus := make([]domain.Incident, 0, len(rows))
	for _, row := range rows {
		corpus = append(corpus, domain.Incident{
			Title:    row.title,
			Summary:  row.title,
			Priority: row.priority,
		})
	}
	return corpus
}

func TestTrainSkipsSmallCorpus(t *testing.T) {
	t.Parallel()

	trainer := New(0, logging.New(logging.Options{Level: "error"}))
	result, err := trainer.Train(context.Background(), labeledCorpus()[:3])
	if err != nil {
		t.Fatalf("train: %v", err)
	}
	if !result.Skipped || result.Snapshot != nil {
		t.Fatalf("undersized corpus must skip, got %+v", result)
	}
}

func TestTrainFitsSnapshot(t *testing.T) {
	t.Parallel()

	fixed := time.Date(2026, time.June, 3, 14, 30, 5, 0, time.UTC)
	trainer := New(0, logging.New(logging.Options{Level: "error"}))
	trainer.now = func() time.Time { return fixed }

	result, err := trainer.Train(context.Background(), labeledCorpus())
	if err != nil {
		t.Fatalf("train: %v", err)
	}
	if result.Skipped || result.Snapshot == nil {
		t.Fatalf("expected a fitted snapshot, got %+v", result)
	}
	if result.Snapshot.Version != "20260603-143005.000000000" {
		t.Fatalf("version should derive from training time, got %s", result.Snapshot.Version)
	}
	if !result.Snapshot.TrainedAt.Equal(fixed) {
		t.Fatalf("trained_at mismatch: %v", result.Snapshot.TrainedAt)
	}
	if result.Accuracy <= 0 || result.Accuracy > 1 {
		t.Fatalf("accuracy out of range: %v", result.Accuracy)
	}

	// The fitted model must at least separate the extremes of its own corpus.
	snap := result.Snapshot
	label, _ := snap.Classifier.Predict(snap.Vectorizer.Transform("ransomware encrypts hospital records"))
	if label != string(domain.PriorityCritical) {
		t.Fatalf("training text misclassified as %s", label)
	}
}

func TestTrainIgnoresUnlabeledRows(t *testing.T) {
	t.Parallel()

	corpus := labeledCorpus()[:4]
	corpus = append(corpus,
		domain.Incident{Title: "untriaged advisory without priority"},
		domain.Incident{Priority: domain.PriorityHigh}, // no text to learn from
	)

	trainer := New(5, logging.New(logging.Options{Level: "error"}))
	result, err := trainer.Train(context.Background(), corpus)
	if err != nil {
		t.Fatalf("train: %v", err)
	}
	if !result.Skipped {
		t.Fatal("rows without both text and a valid priority must not count toward the corpus")
	}
}

func TestTrainHonorsCancellation(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	trainer := New(0, logging.New(logging.Options{Level: "error"}))
	if _, err := trainer.Train(ctx, labeledCorpus()); err == nil {
		t.Fatal("cancelled context must abort training")
	}
}
