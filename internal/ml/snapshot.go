package ml

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"time"
)

// Snapshot is one immutable generation of the feature transform,
// classifier, and outlier detector. The active snapshot is only ever
// replaced wholesale, never mutated.
type Snapshot struct {
	Version    string
	TrainedAt  time.Time
	Vectorizer *Vectorizer
	Classifier *Classifier
	Outlier    *Outlier
}

const versionLayout = "20060102-150405.000000000"

// NewVersion derives a monotonic version identifier from the training
// time. Nanosecond precision keeps versions distinct even for trainings
// inside the same second, and lexicographic order matches chronological
// order.
func NewVersion(now time.Time) string {
	return now.UTC().Format(versionLayout)
}

// Artifacts is the serialized triple persisted under one version key.
type Artifacts struct {
	Vectorizer []byte
	Classifier []byte
	Outlier    []byte
}

// Encode serializes the snapshot's three models into artifact blobs.
func (s *Snapshot) Encode() (Artifacts, error) {
	var a Artifacts
	var err error

	if a.Vectorizer, err = gobEncode(s.Vectorizer); err != nil {
		return Artifacts{}, fmt.Errorf("encode vectorizer: %w", err)
	}
	if a.Classifier, err = gobEncode(s.Classifier); err != nil {
		return Artifacts{}, fmt.Errorf("encode classifier: %w", err)
	}
	if a.Outlier, err = gobEncode(s.Outlier); err != nil {
		return Artifacts{}, fmt.Errorf("encode outlier: %w", err)
	}
	return a, nil
}

// DecodeSnapshot reconstructs a snapshot from one consistent artifact
// triple.
func DecodeSnapshot(version string, trainedAt time.Time, a Artifacts) (*Snapshot, error) {
	s := &Snapshot{
		Version:    version,
		TrainedAt:  trainedAt,
		Vectorizer: &Vectorizer{},
		Classifier: &Classifier{},
		Outlier:    &Outlier{},
	}

	if err := gobDecode(a.Vectorizer, s.Vectorizer); err != nil {
		return nil, fmt.Errorf("decode vectorizer: %w", err)
	}
	if err := gobDecode(a.Classifier, s.Classifier); err != nil {
		return nil, fmt.Errorf("decode classifier: %w", err)
	}
	if err := gobDecode(a.Outlier, s.Outlier); err != nil {
		return nil, fmt.Errorf("decode outlier: %w", err)
	}
	return s, nil
}

func gobEncode(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func gobDecode(data []byte, v any) error {
	return gob.NewDecoder(bytes.NewReader(data)).Decode(v)
}
