package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/lib/pq"

	"threatwatch/internal/config"
	"threatwatch/internal/domain"
	"threatwatch/internal/ports"
)

// uniqueViolation is the Postgres error code raised when two ingestions
// race on the same (source, external_id).
const uniqueViolation = "23505"

// PostgresStore persists incidents and model metrics into Postgres.
// Expected schema: an incidents table with a unique index on
// (source, external_id) and a model_metrics table indexed on timestamp.
type PostgresStore struct {
	db        *sql.DB
	builder   sq.StatementBuilderType
	retention config.RetentionConfig
}

var _ ports.IncidentStore = (*PostgresStore)(nil)

// NewPostgresStore wires a sql.DB implementation.
func NewPostgresStore(db *sql.DB, retention config.RetentionConfig) *PostgresStore {
	return &PostgresStore{
		db:        db,
		builder:   sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
		retention: retention,
	}
}

// Upsert inserts the candidate unless the (source, external_id) pair
// already exists. Conflicts, racing or not, count as SkippedDuplicate.
func (s *PostgresStore) Upsert(ctx context.Context, cand domain.Candidate) (domain.UpsertOutcome, error) {
	query, args, err := s.builder.
		Insert("incidents").
		Columns("source", "external_id", "title", "summary", "description", "url",
			"timestamp", "ingested_at", "score_status", "geo_scope", "status").
		Values(cand.Source, cand.ExternalID, cand.Title, cand.Summary, cand.Summary,
			cand.URL, cand.Published, time.Now().UTC(), string(domain.ScoreStatusUnscored),
			"Global", "active").
		Suffix("ON CONFLICT (source, external_id) DO NOTHING").
		ToSql()
	if err != nil {
		return domain.SkippedDuplicate, fmt.Errorf("build insert: %w", err)
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolation {
			return domain.SkippedDuplicate, nil
		}
		return domain.SkippedDuplicate, fmt.Errorf("insert incident: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return domain.SkippedDuplicate, fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return domain.SkippedDuplicate, nil
	}
	return domain.Inserted, nil
}

// Pending returns rows awaiting classification, oldest ingested first.
func (s *PostgresStore) Pending(ctx context.Context, force bool, limit int) ([]domain.Incident, error) {
	builder := s.builder.
		Select("id", "source", "external_id", "title", "summary", "url",
			"timestamp", "score_status", "category").
		From("incidents").
		OrderBy("ingested_at ASC").
		Limit(uint64(limit))
	if !force {
		builder = builder.Where(sq.Eq{"score_status": string(domain.ScoreStatusUnscored)})
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build pending query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query pending: %w", err)
	}
	defer rows.Close()

	var pending []domain.Incident
	for rows.Next() {
		var inc domain.Incident
		var status string
		if err := rows.Scan(&inc.ID, &inc.Source, &inc.ExternalID, &inc.Title,
			&inc.Summary, &inc.URL, &inc.Timestamp, &status, &inc.Category); err != nil {
			return nil, fmt.Errorf("scan pending row: %w", err)
		}
		inc.ScoreStatus = domain.ScoreStatus(status)
		pending = append(pending, inc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("pending rows: %w", err)
	}
	return pending, nil
}

// ApplyScores writes the derived fields of a scoring batch inside one
// transaction.
func (s *PostgresStore) ApplyScores(ctx context.Context, scored []domain.Incident) error {
	if len(scored) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin scoring tx: %w", err)
	}
	defer tx.Rollback()

	for _, inc := range scored {
		query, args, err := s.builder.
			Update("incidents").
			Set("score_status", string(inc.ScoreStatus)).
			Set("priority", string(inc.Priority)).
			Set("category", inc.Category).
			Set("sector", inc.Sector).
			Set("useful_score", inc.UsefulScore).
			Set("is_useful", inc.IsUseful).
			Set("anomaly_score", inc.AnomalyScore).
			Set("threat_score", inc.ThreatScore).
			Set("is_critical", inc.IsCritical).
			Set("is_mitigated", inc.IsMitigated).
			Set("model_version", inc.ModelVersion).
			Where(sq.Eq{"id": inc.ID}).
			ToSql()
		if err != nil {
			return fmt.Errorf("build score update: %w", err)
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("update incident %d: %w", inc.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit scoring tx: %w", err)
	}
	return nil
}

// RecentScores returns the usefulness signal of the latest scored rows.
func (s *PostgresStore) RecentScores(ctx context.Context, limit int) ([]float64, error) {
	query, args, err := s.builder.
		Select("useful_score").
		From("incidents").
		Where(sq.NotEq{"score_status": string(domain.ScoreStatusUnscored)}).
		OrderBy("timestamp DESC", "id DESC").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build recent scores query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query recent scores: %w", err)
	}
	defer rows.Close()

	var scores []float64
	for rows.Next() {
		var score float64
		if err := rows.Scan(&score); err != nil {
			return nil, fmt.Errorf("scan score: %w", err)
		}
		scores = append(scores, score)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("score rows: %w", err)
	}
	return scores, nil
}

// TrainingCorpus returns all scored rows carrying usable text.
func (s *PostgresStore) TrainingCorpus(ctx context.Context) ([]domain.Incident, error) {
	query, args, err := s.builder.
		Select("id", "title", "summary", "priority").
		From("incidents").
		Where(sq.NotEq{"score_status": string(domain.ScoreStatusUnscored)}).
		Where(sq.Or{sq.NotEq{"summary": ""}, sq.NotEq{"title": ""}}).
		OrderBy("timestamp DESC", "id DESC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build corpus query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query corpus: %w", err)
	}
	defer rows.Close()

	var corpus []domain.Incident
	for rows.Next() {
		var inc domain.Incident
		var priority string
		if err := rows.Scan(&inc.ID, &inc.Title, &inc.Summary, &priority); err != nil {
			return nil, fmt.Errorf("scan corpus row: %w", err)
		}
		inc.Priority = domain.Priority(priority)
		corpus = append(corpus, inc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("corpus rows: %w", err)
	}
	return corpus, nil
}

// InsertMetrics appends one audit record to the metrics log.
func (s *PostgresStore) InsertMetrics(ctx context.Context, m domain.ModelMetrics) error {
	query, args, err := s.builder.
		Insert("model_metrics").
		Columns("timestamp", "model_version", "accuracy", "drift_score", "drift_detected").
		Values(m.Timestamp, m.ModelVersion, m.Accuracy, m.DriftScore, m.DriftDetected).
		ToSql()
	if err != nil {
		return fmt.Errorf("build metrics insert: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("insert metrics: %w", err)
	}
	return nil
}

// LatestMetrics returns the newest metrics record, or nil when none
// exists.
func (s *PostgresStore) LatestMetrics(ctx context.Context) (*domain.ModelMetrics, error) {
	records, err := s.RecentMetrics(ctx, 1)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}
	return &records[0], nil
}

// RecentMetrics returns metrics records newest first.
func (s *PostgresStore) RecentMetrics(ctx context.Context, limit int) ([]domain.ModelMetrics, error) {
	query, args, err := s.builder.
		Select("id", "timestamp", "model_version", "accuracy", "drift_score", "drift_detected").
		From("model_metrics").
		OrderBy("timestamp DESC", "id DESC").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build metrics query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query metrics: %w", err)
	}
	defer rows.Close()

	var records []domain.ModelMetrics
	for rows.Next() {
		var m domain.ModelMetrics
		var accuracy sql.NullFloat64
		if err := rows.Scan(&m.ID, &m.Timestamp, &m.ModelVersion, &accuracy,
			&m.DriftScore, &m.DriftDetected); err != nil {
			return nil, fmt.Errorf("scan metrics row: %w", err)
		}
		if accuracy.Valid {
			m.Accuracy = &accuracy.Float64
		}
		records = append(records, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("metrics rows: %w", err)
	}
	return records, nil
}

// Purge deletes rows past their retention tier: HIGH/CRITICAL rows live
// for the long window, everything else for the short one.
func (s *PostgresStore) Purge(ctx context.Context, now time.Time) (int64, error) {
	shortCutoff := now.Add(-s.retention.ShortWindow)
	longCutoff := now.Add(-s.retention.LongWindow)
	protected := []string{string(domain.PriorityHigh), string(domain.PriorityCritical)}

	shortQuery, shortArgs, err := s.builder.
		Delete("incidents").
		Where(sq.Lt{"timestamp": shortCutoff}).
		Where(sq.Or{
			sq.Eq{"priority": nil},
			sq.NotEq{"priority": protected},
		}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build short purge: %w", err)
	}

	longQuery, longArgs, err := s.builder.
		Delete("incidents").
		Where(sq.Lt{"timestamp": longCutoff}).
		Where(sq.Eq{"priority": protected}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build long purge: %w", err)
	}

	var deleted int64
	for _, stmt := range []struct {
		query string
		args  []any
	}{{shortQuery, shortArgs}, {longQuery, longArgs}} {
		res, err := s.db.ExecContext(ctx, stmt.query, stmt.args...)
		if err != nil {
			return deleted, fmt.Errorf("purge incidents: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return deleted, fmt.Errorf("purge rows affected: %w", err)
		}
		deleted += n
	}
	return deleted, nil
}
