// Package artifacts persists versioned model artifact triples in a local
// BoltDB file. Pure Go, no external services needed for model storage.
package artifacts

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"go.etcd.io/bbolt"

	"threatwatch/internal/ml"
	"threatwatch/internal/ports"
)

var (
	bucketArtifacts = []byte("artifacts")
	bucketSnapshots = []byte("snapshots")
	bucketState     = []byte("state")

	keyActiveVersion = []byte("active_version")
)

// snapshotMeta is the per-version record stored alongside the blobs.
type snapshotMeta struct {
	Version   string    `json:"version"`
	TrainedAt time.Time `json:"trained_at"`
}

// BoltStore keeps every trained generation; old versions stay loadable
// for inspection after a swap.
type BoltStore struct {
	db *bbolt.DB
}

var _ ports.ArtifactStore = (*BoltStore)(nil)

// Open creates or opens the artifact database at path.
func Open(path string) (*BoltStore, error) {
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open artifact db: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, bucket := range [][]byte{bucketArtifacts, bucketSnapshots, bucketState} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create buckets: %w", err)
	}

	return &BoltStore{db: db}, nil
}

// Close releases the underlying database.
func (s *BoltStore) Close() error {
	return s.db.Close()
}

// SaveSnapshot writes the artifact triple, the version record, and the
// active-version pointer in one transaction: either all land or none.
func (s *BoltStore) SaveSnapshot(_ context.Context, snap *ml.Snapshot) error {
	blobs, err := snap.Encode()
	if err != nil {
		return fmt.Errorf("encode snapshot %s: %w", snap.Version, err)
	}

	meta, err := json.Marshal(snapshotMeta{Version: snap.Version, TrainedAt: snap.TrainedAt})
	if err != nil {
		return fmt.Errorf("marshal snapshot meta: %w", err)
	}

	err = s.db.Update(func(tx *bbolt.Tx) error {
		art := tx.Bucket(bucketArtifacts)
		for name, blob := range map[string][]byte{
			"vectorizer": blobs.Vectorizer,
			"classifier": blobs.Classifier,
			"outlier":    blobs.Outlier,
		} {
			if err := art.Put(artifactKey(snap.Version, name), blob); err != nil {
				return err
			}
		}

		if err := tx.Bucket(bucketSnapshots).Put([]byte(snap.Version), meta); err != nil {
			return err
		}
		return tx.Bucket(bucketState).Put(keyActiveVersion, []byte(snap.Version))
	})
	if err != nil {
		return fmt.Errorf("persist snapshot %s: %w", snap.Version, err)
	}
	return nil
}

// LoadSnapshot reads a consistent artifact triple for one version.
func (s *BoltStore) LoadSnapshot(_ context.Context, version string) (*ml.Snapshot, error) {
	var blobs ml.Artifacts
	var meta snapshotMeta

	err := s.db.View(func(tx *bbolt.Tx) error {
		raw := tx.Bucket(bucketSnapshots).Get([]byte(version))
		if raw == nil {
			return fmt.Errorf("snapshot %s not found", version)
		}
		if err := json.Unmarshal(raw, &meta); err != nil {
			return fmt.Errorf("unmarshal snapshot meta: %w", err)
		}

		art := tx.Bucket(bucketArtifacts)
		blobs.Vectorizer = clone(art.Get(artifactKey(version, "vectorizer")))
		blobs.Classifier = clone(art.Get(artifactKey(version, "classifier")))
		blobs.Outlier = clone(art.Get(artifactKey(version, "outlier")))

		if blobs.Vectorizer == nil || blobs.Classifier == nil || blobs.Outlier == nil {
			return fmt.Errorf("snapshot %s has an incomplete artifact triple", version)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return ml.DecodeSnapshot(meta.Version, meta.TrainedAt, blobs)
}

// LatestVersion returns the last published version, or "" before the
// first training.
func (s *BoltStore) LatestVersion(_ context.Context) (string, error) {
	var version string
	err := s.db.View(func(tx *bbolt.Tx) error {
		version = string(tx.Bucket(bucketState).Get(keyActiveVersion))
		return nil
	})
	return version, err
}

// Versions lists all persisted versions in ascending order.
func (s *BoltStore) Versions(_ context.Context) ([]string, error) {
	var versions []string
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketSnapshots).ForEach(func(k, _ []byte) error {
			versions = append(versions, string(k))
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	sort.Strings(versions)
	return versions, nil
}

func artifactKey(version, name string) []byte {
	return []byte(version + "/" + name)
}

// clone copies bolt-owned bytes, which are only valid inside the
// transaction.
func clone(b []byte) []byte {
	if b == nil {
		return nil
	}
	return append([]byte(nil), b...)
}
