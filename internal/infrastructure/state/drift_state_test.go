package state

import (
	"path/filepath"
	"testing"
	"time"

	"threatwatch/internal/domain"
)

func TestWriteAndLoadRoundTrip(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "drift_state.json")
	writer := NewFileWriter(path)

	accuracy := 0.94
	metrics := domain.ModelMetrics{
		ModelVersion:  "20260502-100000",
		Accuracy:      &accuracy,
		DriftScore:    0.12,
		DriftDetected: false,
		Timestamp:     time.Date(2026, time.May, 2, 10, 0, 0, 0, time.UTC),
	}

	if err := writer.Write(metrics); err != nil {
		t.Fatalf("write: %v", err)
	}

	record, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if record.ModelVersion != metrics.ModelVersion {
		t.Fatalf("version mismatch: %s", record.ModelVersion)
	}
	if record.Accuracy == nil || *record.Accuracy != accuracy {
		t.Fatalf("accuracy mismatch: %v", record.Accuracy)
	}
	if record.DriftScore != 0.12 || record.DriftDetected {
		t.Fatalf("drift fields mismatch: %+v", record)
	}
	if record.Timestamp != "2026-05-02T10:00:00Z" {
		t.Fatalf("timestamp not RFC3339 UTC: %s", record.Timestamp)
	}
}

func TestWriteReplacesPreviousRecord(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "drift_state.json")
	writer := NewFileWriter(path)

	// Drift evaluations recorded between trainings carry no accuracy.
	first := domain.ModelMetrics{
		ModelVersion:  "20260501-000000",
		DriftScore:    0.4,
		DriftDetected: true,
		Timestamp:     time.Date(2026, time.May, 1, 0, 0, 0, 0, time.UTC),
	}
	if err := writer.Write(first); err != nil {
		t.Fatalf("write first: %v", err)
	}

	second := first
	second.ModelVersion = "20260508-000000"
	second.DriftScore = 0.05
	second.DriftDetected = false
	if err := writer.Write(second); err != nil {
		t.Fatalf("write second: %v", err)
	}

	record, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if record.ModelVersion != second.ModelVersion || record.DriftDetected {
		t.Fatalf("stale record survived: %+v", record)
	}
	if record.Accuracy != nil {
		t.Fatalf("accuracy should stay null when unset, got %v", *record.Accuracy)
	}
}

func TestLoadMissingFileFails(t *testing.T) {
	t.Parallel()

	if _, err := Load(filepath.Join(t.TempDir(), "absent.json")); err == nil {
		t.Fatal("loading a missing state file must fail")
	}
}
