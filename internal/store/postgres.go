package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ashureev/promptboost/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// pgUniqueViolation is the SQLSTATE for unique_violation.
const pgUniqueViolation = "23505"

const createPostgresSchemaSQL = `
CREATE TABLE IF NOT EXISTS cache_entries (
	id             BIGSERIAL PRIMARY KEY,
	original_text  TEXT NOT NULL UNIQUE,
	generated_text TEXT NOT NULL,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS attempts (
	id             BIGSERIAL PRIMARY KEY,
	cache_entry_id BIGINT NOT NULL REFERENCES cache_entries(id),
	user_id        TEXT NOT NULL,
	session_id     TEXT NOT NULL UNIQUE,
	strategy       TEXT NOT NULL,
	user_action    TEXT CHECK (user_action IN ('accepted', 'rejected')),
	quality_score  DOUBLE PRECISION,
	feedback_at    TIMESTAMPTZ,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_attempts_created ON attempts(created_at);
`

// PGStore implements Repository using PostgreSQL.
type PGStore struct {
	db *pgxpool.Pool
}

// NewPostgres connects to databaseURL and applies the schema.
func NewPostgres(ctx context.Context, databaseURL string) (Repository, error) {
	db, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := db.Ping(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	s := &PGStore{db: db}
	if err := s.CreateSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// CreateSchema creates the tables if they do not exist.
func (s *PGStore) CreateSchema(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, createPostgresSchemaSQL); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// DropSchema drops both tables. Used by tests.
func (s *PGStore) DropSchema(ctx context.Context) error {
	_, err := s.db.Exec(ctx, `
		DROP TABLE IF EXISTS attempts CASCADE;
		DROP TABLE IF EXISTS cache_entries CASCADE;
	`)
	return err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}

// Ping verifies database connectivity.
func (s *PGStore) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// Close releases the pool.
func (s *PGStore) Close() error {
	s.db.Close()
	return nil
}

// GetCacheEntry retrieves a cache entry by its original text.
func (s *PGStore) GetCacheEntry(ctx context.Context, originalText string) (*domain.CacheEntry, error) {
	entry := &domain.CacheEntry{}
	err := s.db.QueryRow(ctx,
		`SELECT id, original_text, generated_text, created_at, updated_at
		 FROM cache_entries WHERE original_text = $1`,
		originalText,
	).Scan(&entry.ID, &entry.OriginalText, &entry.GeneratedText, &entry.CreatedAt, &entry.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get cache entry: %w", err)
	}
	return entry, nil
}

// CreateCacheEntry inserts a new cache entry.
func (s *PGStore) CreateCacheEntry(ctx context.Context, originalText, generatedText string) (*domain.CacheEntry, error) {
	entry := &domain.CacheEntry{OriginalText: originalText, GeneratedText: generatedText}
	err := s.db.QueryRow(ctx,
		`INSERT INTO cache_entries (original_text, generated_text)
		 VALUES ($1, $2)
		 RETURNING id, created_at, updated_at`,
		originalText, generatedText,
	).Scan(&entry.ID, &entry.CreatedAt, &entry.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("create cache entry: %w", domain.ErrCacheConflict)
		}
		return nil, fmt.Errorf("create cache entry: %w", err)
	}
	return entry, nil
}

// UpdateCacheEntry replaces the generated text of an existing entry.
func (s *PGStore) UpdateCacheEntry(ctx context.Context, id int64, generatedText string) (*domain.CacheEntry, error) {
	entry := &domain.CacheEntry{}
	err := s.db.QueryRow(ctx,
		`UPDATE cache_entries SET generated_text = $1, updated_at = NOW()
		 WHERE id = $2
		 RETURNING id, original_text, generated_text, created_at, updated_at`,
		generatedText, id,
	).Scan(&entry.ID, &entry.OriginalText, &entry.GeneratedText, &entry.CreatedAt, &entry.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrCacheEntryNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("update cache entry: %w", err)
	}
	return entry, nil
}

// RecordAttempt appends one ledger row.
func (s *PGStore) RecordAttempt(ctx context.Context, attempt *domain.Attempt) (*domain.Attempt, error) {
	recorded := *attempt
	if recorded.UserAction == domain.ActionNone {
		recorded.UserAction = domain.ActionAccepted
	}
	recorded.FeedbackAt = nil

	err := s.db.QueryRow(ctx,
		`INSERT INTO attempts (cache_entry_id, user_id, session_id, strategy, user_action, quality_score)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id, created_at`,
		recorded.CacheEntryID, recorded.UserID, recorded.SessionID,
		string(recorded.Strategy), string(recorded.UserAction), recorded.QualityScore,
	).Scan(&recorded.ID, &recorded.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("record attempt %s: %w", attempt.SessionID, domain.ErrSessionExists)
		}
		return nil, fmt.Errorf("record attempt: %w", err)
	}
	return &recorded, nil
}

// GetAttempt retrieves the newest attempt for a session id.
func (s *PGStore) GetAttempt(ctx context.Context, sessionID string) (*domain.Attempt, error) {
	attempt, err := scanPGAttempt(s.db.QueryRow(ctx,
		pgAttemptColumns+` FROM attempts WHERE session_id = $1
		 ORDER BY created_at DESC, id DESC LIMIT 1`,
		sessionID,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get attempt: %w", err)
	}
	return attempt, nil
}

// UpdateAction applies a verdict to the newest attempt for a session id.
func (s *PGStore) UpdateAction(ctx context.Context, sessionID string, action domain.UserAction) (*domain.Attempt, error) {
	current, err := s.GetAttempt(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	tag, err := s.db.Exec(ctx,
		`UPDATE attempts SET user_action = $1, feedback_at = NOW()
		 WHERE id = $2 AND feedback_at IS NULL`,
		string(action), current.ID,
	)
	if err != nil {
		return nil, fmt.Errorf("update user action: %w", err)
	}

	updated, err := s.GetAttempt(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if tag.RowsAffected() == 0 && updated.UserAction != action {
		return updated, fmt.Errorf("session %s already %s: %w", sessionID, updated.UserAction, domain.ErrActionConflict)
	}
	return updated, nil
}

// RecentAttempts lists the newest attempts first.
func (s *PGStore) RecentAttempts(ctx context.Context, limit int) ([]*domain.Attempt, error) {
	rows, err := s.db.Query(ctx,
		pgAttemptColumns+` FROM attempts ORDER BY created_at DESC, id DESC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query recent attempts: %w", err)
	}
	defer rows.Close()

	var attempts []*domain.Attempt
	for rows.Next() {
		attempt, err := scanPGAttempt(rows)
		if err != nil {
			return nil, fmt.Errorf("scan attempt row: %w", err)
		}
		attempts = append(attempts, attempt)
	}
	return attempts, rows.Err()
}

// ActionStats counts verdicts across the ledger.
func (s *PGStore) ActionStats(ctx context.Context) (*domain.ActionStats, error) {
	var stats domain.ActionStats
	err := s.db.QueryRow(ctx,
		`SELECT COUNT(*),
		        COUNT(*) FILTER (WHERE feedback_at IS NOT NULL AND user_action = 'accepted'),
		        COUNT(*) FILTER (WHERE feedback_at IS NOT NULL AND user_action = 'rejected'),
		        COUNT(*) FILTER (WHERE feedback_at IS NULL)
		 FROM attempts`,
	).Scan(&stats.Total, &stats.Accepted, &stats.Rejected, &stats.Implicit)
	if err != nil {
		return nil, fmt.Errorf("action stats: %w", err)
	}
	return &stats, nil
}

// RejectRecent marks the newest n attempts without explicit feedback as rejected.
func (s *PGStore) RejectRecent(ctx context.Context, n int) (int64, error) {
	tag, err := s.db.Exec(ctx,
		`UPDATE attempts SET user_action = 'rejected', feedback_at = NOW()
		 WHERE id IN (
			SELECT id FROM attempts WHERE feedback_at IS NULL
			ORDER BY created_at DESC, id DESC LIMIT $1
		 )`,
		n,
	)
	if err != nil {
		return 0, fmt.Errorf("reject recent attempts: %w", err)
	}
	return tag.RowsAffected(), nil
}

const pgAttemptColumns = `SELECT id, cache_entry_id, user_id, session_id, strategy,
		user_action, quality_score, feedback_at, created_at`

func scanPGAttempt(row pgx.Row) (*domain.Attempt, error) {
	var attempt domain.Attempt
	var strategy string
	var action *string
	var feedbackAt *time.Time

	if err := row.Scan(
		&attempt.ID, &attempt.CacheEntryID, &attempt.UserID, &attempt.SessionID, &strategy,
		&action, &attempt.QualityScore, &feedbackAt, &attempt.CreatedAt,
	); err != nil {
		return nil, err
	}
	attempt.Strategy = domain.Strategy(strategy)
	if action != nil {
		attempt.UserAction = domain.UserAction(*action)
	}
	attempt.FeedbackAt = feedbackAt
	return &attempt, nil
}
