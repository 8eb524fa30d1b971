// Package state publishes the latest drift/training record as a small
// JSON file readable by external reporting layers.
package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"threatwatch/internal/domain"
	"threatwatch/internal/ports"
)

// Record is the on-disk shape of drift_state.json.
type Record struct {
	ModelVersion  string   `json:"model_version"`
	Accuracy      *float64 `json:"accuracy"`
	DriftScore    float64  `json:"drift_score"`
	DriftDetected bool     `json:"drift_detected"`
	Timestamp     string   `json:"timestamp"`
}

// FileWriter writes the record atomically via rename, so readers never
// observe a torn file.
type FileWriter struct {
	path string
}

var _ ports.DriftStateWriter = (*FileWriter)(nil)

// NewFileWriter targets the given path.
func NewFileWriter(path string) *FileWriter {
	return &FileWriter{path: path}
}

// Write replaces the state file with the given metrics record.
func (w *FileWriter) Write(m domain.ModelMetrics) error {
	record := Record{
		ModelVersion:  m.ModelVersion,
		Accuracy:      m.Accuracy,
		DriftScore:    m.DriftScore,
		DriftDetected: m.DriftDetected,
		Timestamp:     m.Timestamp.UTC().Format(time.RFC3339),
	}

	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal drift state: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(w.path), ".drift_state-*")
	if err != nil {
		return fmt.Errorf("create temp state file: %w", err)
	}

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write drift state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close temp state file: %w", err)
	}

	if err := os.Rename(tmp.Name(), w.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("publish drift state: %w", err)
	}
	return nil
}

// Load reads the current record; used by external projections and tests.
func Load(path string) (Record, error) {
	var record Record

	data, err := os.ReadFile(path)
	if err != nil {
		return record, fmt.Errorf("read drift state: %w", err)
	}
	if err := json.Unmarshal(data, &record); err != nil {
		return record, fmt.Errorf("unmarshal drift state: %w", err)
	}
	return record, nil
}
