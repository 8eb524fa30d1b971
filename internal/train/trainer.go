// Package train runs the isolated training job: labeled incident corpus
// in, fitted model snapshot out.
package train

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"threatwatch/internal/domain"
	"threatwatch/internal/ml"
	"threatwatch/internal/ports"
)

// DefaultMinCorpus is the smallest labeled corpus worth fitting; below it
// training is a reported no-op, not a failure.
const DefaultMinCorpus = 5

// Trainer fits the vectorizer/classifier/outlier triple from scored
// incidents.
type Trainer struct {
	minCorpus int
	logger    *slog.Logger
	now       func() time.Time
}

var _ ports.Trainer = (*Trainer)(nil)

// New builds a trainer; minCorpus <= 0 selects the default.
func New(minCorpus int, logger *slog.Logger) *Trainer {
	if minCorpus <= 0 {
		minCorpus = DefaultMinCorpus
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Trainer{minCorpus: minCorpus, logger: logger, now: time.Now}
}

// Train fits a new snapshot from the labeled rows of the corpus. The job
// is synchronous and touches no shared state; publishing the result is
// the orchestrator's concern.
func (t *Trainer) Train(ctx context.Context, corpus []domain.Incident) (ports.TrainResult, error) {
	jobID := uuid.NewString()

	texts := make([]string, 0, len(corpus))
	labels := make([]string, 0, len(corpus))
	for _, inc := range corpus {
		text := inc.Summary
		if text == "" {
			text = inc.Title
		}
		if text == "" || !inc.Priority.Valid() {
			continue
		}
		texts = append(texts, text)
		labels = append(labels, string(inc.Priority))
	}

	if len(texts) < t.minCorpus {
		t.logger.Info("training skipped, corpus too small",
			"job_id", jobID, "labeled", len(texts), "min", t.minCorpus)
		return ports.TrainResult{Skipped: true}, nil
	}

	if err := ctx.Err(); err != nil {
		return ports.TrainResult{}, err
	}

	vectorizer := ml.FitVectorizer(texts)
	vectors := make([]map[int]float64, len(texts))
	for i, text := range texts {
		vectors[i] = vectorizer.Transform(text)
	}

	classifier := ml.FitClassifier(vectors, labels, vectorizer.Features())
	outlier := ml.FitOutlier(vectors, vectorizer.Features())

	if err := ctx.Err(); err != nil {
		return ports.TrainResult{}, err
	}

	correct := 0
	for i, vec := range vectors {
		if label, _ := classifier.Predict(vec); label == labels[i] {
			correct++
		}
	}
	accuracy := float64(correct) / float64(len(vectors))

	trainedAt := t.now().UTC()
	snap := &ml.Snapshot{
		Version:    ml.NewVersion(trainedAt),
		TrainedAt:  trainedAt,
		Vectorizer: vectorizer,
		Classifier: classifier,
		Outlier:    outlier,
	}

	t.logger.Info("training finished",
		"job_id", jobID,
		"version", snap.Version,
		"corpus", len(texts),
		"accuracy", fmt.Sprintf("%.3f", accuracy))

	return ports.TrainResult{Snapshot: snap, Accuracy: accuracy}, nil
}
