package ml

import (
	"testing"
	"time"
)

var trainingTexts = []string{
	"critical ransomware attack encrypts hospital systems",
	"ransomware gang leaks stolen data after attack",
	"routine security patch released for office suite",
	"vendor publishes routine maintenance patch notes",
	"phishing campaign targets bank customers with fake invoices",
	"phishing emails impersonate payment provider",
}

var trainingLabels = []string{
	"CRITICAL", "CRITICAL", "LOW", "LOW", "MEDIUM", "MEDIUM",
}

func fitAll(t *testing.T) (*Vectorizer, *Classifier, *Outlier) {
	t.Helper()

	vec := FitVectorizer(trainingTexts)
	vectors := make([]map[int]float64, len(trainingTexts))
	for i, text := range trainingTexts {
		vectors[i] = vec.Transform(text)
	}

	clf := FitClassifier(vectors, trainingLabels, vec.Features())
	out := FitOutlier(vectors, vec.Features())
	return vec, clf, out
}

func TestTokenize(t *testing.T) {
	t.Parallel()

	tokens := Tokenize("Zero-Day exploited: CVE-2024-1234, patch NOW!")
	want := []string{"zero", "day", "exploited", "cve", "2024", "1234", "patch", "now"}

	if len(tokens) != len(want) {
		t.Fatalf("expected %d tokens, got %d (%v)", len(want), len(tokens), tokens)
	}
	for i, tok := range want {
		if tokens[i] != tok {
			t.Fatalf("token %d: expected %q, got %q", i, tok, tokens[i])
		}
	}
}

func TestVectorizerTransform(t *testing.T) {
	t.Parallel()

	vec := FitVectorizer(trainingTexts)

	v := vec.Transform("ransomware attack on another hospital")
	if len(v) == 0 {
		t.Fatal("expected known terms to produce a non-empty vector")
	}

	var norm float64
	for _, w := range v {
		norm += w * w
	}
	if norm < 0.999 || norm > 1.001 {
		t.Fatalf("expected unit norm, got %f", norm)
	}

	if unknown := vec.Transform("completely unrelated zzzzz"); len(unknown) != 0 {
		t.Fatalf("out-of-vocabulary text should map to empty vector, got %v", unknown)
	}
}

func TestClassifierSeparatesLabels(t *testing.T) {
	t.Parallel()

	vec, clf, _ := fitAll(t)

	label, proba := clf.Predict(vec.Transform("ransomware encrypts more hospital systems"))
	if label != "CRITICAL" {
		t.Fatalf("expected CRITICAL, got %s", label)
	}
	if proba <= 0 || proba > 1 {
		t.Fatalf("probability out of range: %f", proba)
	}

	if label, _ = clf.Predict(vec.Transform("routine patch notes from vendor")); label != "LOW" {
		t.Fatalf("expected LOW, got %s", label)
	}

	dist := clf.PredictProba(vec.Transform("phishing invoices"))
	var sum float64
	for _, p := range dist {
		sum += p
	}
	if sum < 0.999 || sum > 1.001 {
		t.Fatalf("probabilities should sum to 1, got %f", sum)
	}
}

func TestOutlierScoreRange(t *testing.T) {
	t.Parallel()

	vec, _, out := fitAll(t)

	samples := append([]string{"zzz completely alien text qqq"}, trainingTexts...)
	for _, text := range samples {
		score := out.Score(vec.Transform(text))
		if score < 0 || score > 1 {
			t.Fatalf("anomaly score out of [0,1] for %q: %f", text, score)
		}
	}

	inlier := out.Score(vec.Transform(trainingTexts[0]))
	alien := out.Score(vec.Transform("zzz completely alien text qqq"))
	if alien < inlier {
		t.Fatalf("alien text should not score below a training text: alien=%f inlier=%f", alien, inlier)
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	t.Parallel()

	vec, clf, out := fitAll(t)
	trainedAt := time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)
	snap := &Snapshot{
		Version:    NewVersion(trainedAt),
		TrainedAt:  trainedAt,
		Vectorizer: vec,
		Classifier: clf,
		Outlier:    out,
	}

	if snap.Version != "20260301-120000.000000000" {
		t.Fatalf("unexpected version: %s", snap.Version)
	}

	blobs, err := snap.Encode()
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	decoded, err := DecodeSnapshot(snap.Version, trainedAt, blobs)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}

	text := "ransomware encrypts hospital backups"
	wantLabel, _ := clf.Predict(vec.Transform(text))
	gotLabel, _ := decoded.Classifier.Predict(decoded.Vectorizer.Transform(text))
	if gotLabel != wantLabel {
		t.Fatalf("decoded snapshot predicts %s, original %s", gotLabel, wantLabel)
	}
}

func TestVersionsDistinctWithinSecond(t *testing.T) {
	t.Parallel()

	base := time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)
	first := NewVersion(base)
	second := NewVersion(base.Add(time.Nanosecond))

	if first == second {
		t.Fatalf("two trainings in the same second must not share a version: %s", first)
	}
	if first >= second {
		t.Fatalf("versions must sort chronologically: %s then %s", first, second)
	}
}
