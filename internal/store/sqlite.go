package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/ashureev/promptboost/internal/domain"
	"github.com/ashureev/promptboost/internal/shared"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string) (Repository, error) {
	return newSQLiteStore(dbPath)
}

func newSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// WAL for concurrent readers; busy_timeout applies to every pooled connection.
	dsn := dbPath + "?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)" +
		"&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS cache_entries (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		original_text TEXT NOT NULL UNIQUE,
		generated_text TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS attempts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		cache_entry_id INTEGER NOT NULL REFERENCES cache_entries(id),
		user_id TEXT NOT NULL,
		session_id TEXT NOT NULL UNIQUE,
		strategy TEXT NOT NULL,
		user_action TEXT CHECK (user_action IN ('accepted', 'rejected')),
		quality_score REAL,
		feedback_at INTEGER,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_attempts_created ON attempts(created_at);
	CREATE INDEX IF NOT EXISTS idx_attempts_cache_entry ON attempts(cache_entry_id);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

// retryBusy runs fn, retrying with exponential backoff while SQLite reports
// SQLITE_BUSY or a locked database.
func (s *SQLiteStore) retryBusy(ctx context.Context, op string, fn func() error) error {
	const maxRetries = 3
	baseDelay := 100 * time.Millisecond

	var err error
	for i := 0; i < maxRetries; i++ {
		err = fn()
		if err == nil || !shared.IsSQLiteConflictError(err) {
			return err
		}
		if i < maxRetries-1 {
			delay := baseDelay * time.Duration(1<<i) // 100ms, 200ms
			slog.Debug("SQLite busy, retrying", "op", op, "attempt", i+1, "delay", delay)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}
	return fmt.Errorf("%s failed after %d attempts: %w", op, maxRetries, err)
}

// GetCacheEntry retrieves a cache entry by its original text.
func (s *SQLiteStore) GetCacheEntry(ctx context.Context, originalText string) (*domain.CacheEntry, error) {
	query := `
		SELECT id, original_text, generated_text, created_at, updated_at
		FROM cache_entries WHERE original_text = ?`

	entry, err := scanCacheEntry(s.db.QueryRowContext(ctx, query, originalText))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan cache entry: %w", err)
	}
	return entry, nil
}

func (s *SQLiteStore) getCacheEntryByID(ctx context.Context, id int64) (*domain.CacheEntry, error) {
	query := `
		SELECT id, original_text, generated_text, created_at, updated_at
		FROM cache_entries WHERE id = ?`

	entry, err := scanCacheEntry(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrCacheEntryNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan cache entry: %w", err)
	}
	return entry, nil
}

// CreateCacheEntry inserts a new cache entry.
func (s *SQLiteStore) CreateCacheEntry(ctx context.Context, originalText, generatedText string) (*domain.CacheEntry, error) {
	query := `
	INSERT INTO cache_entries (original_text, generated_text, created_at, updated_at)
	VALUES (?, ?, ?, ?)`

	now := time.Now()
	var id int64
	err := s.retryBusy(ctx, "create cache entry", func() error {
		result, err := s.db.ExecContext(ctx, query, originalText, generatedText, now.Unix(), now.Unix())
		if err != nil {
			return err
		}
		id, err = result.LastInsertId()
		return err
	})
	if err != nil {
		if shared.IsSQLiteUniqueError(err) {
			return nil, fmt.Errorf("create cache entry: %w", domain.ErrCacheConflict)
		}
		return nil, fmt.Errorf("create cache entry: %w", err)
	}

	return &domain.CacheEntry{
		ID:            id,
		OriginalText:  originalText,
		GeneratedText: generatedText,
		CreatedAt:     time.Unix(now.Unix(), 0),
		UpdatedAt:     time.Unix(now.Unix(), 0),
	}, nil
}

// UpdateCacheEntry replaces the generated text of an existing entry.
func (s *SQLiteStore) UpdateCacheEntry(ctx context.Context, id int64, generatedText string) (*domain.CacheEntry, error) {
	query := `UPDATE cache_entries SET generated_text = ?, updated_at = ? WHERE id = ?`

	var rows int64
	err := s.retryBusy(ctx, "update cache entry", func() error {
		result, err := s.db.ExecContext(ctx, query, generatedText, time.Now().Unix(), id)
		if err != nil {
			return err
		}
		rows, err = result.RowsAffected()
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("update cache entry: %w", err)
	}
	if rows == 0 {
		slog.Warn("UpdateCacheEntry affected 0 rows", "cache_entry_id", id)
		return nil, domain.ErrCacheEntryNotFound
	}

	return s.getCacheEntryByID(ctx, id)
}

// RecordAttempt appends one ledger row.
func (s *SQLiteStore) RecordAttempt(ctx context.Context, attempt *domain.Attempt) (*domain.Attempt, error) {
	query := `
	INSERT INTO attempts (cache_entry_id, user_id, session_id, strategy, user_action, quality_score, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)`

	action := attempt.UserAction
	if action == domain.ActionNone {
		action = domain.ActionAccepted
	}
	var score interface{}
	if attempt.QualityScore != nil {
		score = *attempt.QualityScore
	}
	createdAt := time.Now()

	var id int64
	err := s.retryBusy(ctx, "record attempt", func() error {
		result, err := s.db.ExecContext(ctx, query,
			attempt.CacheEntryID, attempt.UserID, attempt.SessionID,
			string(attempt.Strategy), string(action), score, createdAt.Unix(),
		)
		if err != nil {
			return err
		}
		id, err = result.LastInsertId()
		return err
	})
	if err != nil {
		if shared.IsSQLiteUniqueError(err) {
			return nil, fmt.Errorf("record attempt %s: %w", attempt.SessionID, domain.ErrSessionExists)
		}
		return nil, fmt.Errorf("record attempt: %w", err)
	}

	recorded := *attempt
	recorded.ID = id
	recorded.UserAction = action
	recorded.FeedbackAt = nil
	recorded.CreatedAt = time.Unix(createdAt.Unix(), 0)
	return &recorded, nil
}

// GetAttempt retrieves the newest attempt for a session id.
func (s *SQLiteStore) GetAttempt(ctx context.Context, sessionID string) (*domain.Attempt, error) {
	query := attemptColumns + `
		FROM attempts WHERE session_id = ?
		ORDER BY created_at DESC, id DESC LIMIT 1`

	attempt, err := scanAttempt(s.db.QueryRowContext(ctx, query, sessionID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan attempt: %w", err)
	}
	return attempt, nil
}

// UpdateAction applies a verdict to the newest attempt for a session id.
// The conditional update makes the first explicit verdict win; later calls
// with the same verdict are no-ops and conflicting ones are rejected.
func (s *SQLiteStore) UpdateAction(ctx context.Context, sessionID string, action domain.UserAction) (*domain.Attempt, error) {
	current, err := s.GetAttempt(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	query := `UPDATE attempts SET user_action = ?, feedback_at = ? WHERE id = ? AND feedback_at IS NULL`

	var rows int64
	err = s.retryBusy(ctx, "update action", func() error {
		result, err := s.db.ExecContext(ctx, query, string(action), time.Now().Unix(), current.ID)
		if err != nil {
			return err
		}
		rows, err = result.RowsAffected()
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("update user action: %w", err)
	}

	updated, err := s.GetAttempt(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if rows == 0 && updated.UserAction != action {
		slog.Warn("Conflicting feedback ignored",
			"session_id", sessionID,
			"recorded", updated.UserAction,
			"requested", action)
		return updated, fmt.Errorf("session %s already %s: %w", sessionID, updated.UserAction, domain.ErrActionConflict)
	}
	return updated, nil
}

// RecentAttempts lists the newest attempts first.
func (s *SQLiteStore) RecentAttempts(ctx context.Context, limit int) ([]*domain.Attempt, error) {
	query := attemptColumns + `
		FROM attempts ORDER BY created_at DESC, id DESC LIMIT ?`

	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent attempts: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close recent attempts rows", "error", closeErr)
		}
	}()

	var attempts []*domain.Attempt
	for rows.Next() {
		attempt, err := scanAttempt(rows)
		if err != nil {
			return nil, fmt.Errorf("scan attempt row: %w", err)
		}
		attempts = append(attempts, attempt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate recent attempts: %w", err)
	}
	return attempts, nil
}

// ActionStats counts verdicts across the ledger.
func (s *SQLiteStore) ActionStats(ctx context.Context) (*domain.ActionStats, error) {
	query := `
		SELECT COUNT(*),
		       COALESCE(SUM(CASE WHEN feedback_at IS NOT NULL AND user_action = 'accepted' THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(CASE WHEN feedback_at IS NOT NULL AND user_action = 'rejected' THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(CASE WHEN feedback_at IS NULL THEN 1 ELSE 0 END), 0)
		FROM attempts`

	var stats domain.ActionStats
	if err := s.db.QueryRowContext(ctx, query).Scan(&stats.Total, &stats.Accepted, &stats.Rejected, &stats.Implicit); err != nil {
		return nil, fmt.Errorf("scan action stats: %w", err)
	}
	return &stats, nil
}

// RejectRecent marks the newest n attempts without explicit feedback as rejected.
func (s *SQLiteStore) RejectRecent(ctx context.Context, n int) (int64, error) {
	query := `
		UPDATE attempts SET user_action = 'rejected', feedback_at = ?
		WHERE id IN (
			SELECT id FROM attempts WHERE feedback_at IS NULL
			ORDER BY created_at DESC, id DESC LIMIT ?
		)`

	var rows int64
	err := s.retryBusy(ctx, "reject recent", func() error {
		result, err := s.db.ExecContext(ctx, query, time.Now().Unix(), n)
		if err != nil {
			return err
		}
		rows, err = result.RowsAffected()
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("reject recent attempts: %w", err)
	}
	return rows, nil
}

const attemptColumns = `
		SELECT id, cache_entry_id, user_id, session_id, strategy,
		       user_action, quality_score, feedback_at, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCacheEntry(row rowScanner) (*domain.CacheEntry, error) {
	var entry domain.CacheEntry
	var createdAt, updatedAt int64
	if err := row.Scan(&entry.ID, &entry.OriginalText, &entry.GeneratedText, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	entry.CreatedAt = time.Unix(createdAt, 0)
	entry.UpdatedAt = time.Unix(updatedAt, 0)
	return &entry, nil
}

func scanAttempt(row rowScanner) (*domain.Attempt, error) {
	var attempt domain.Attempt
	var strategy string
	var action sql.NullString
	var score sql.NullFloat64
	var feedbackAt sql.NullInt64
	var createdAt int64

	if err := row.Scan(
		&attempt.ID, &attempt.CacheEntryID, &attempt.UserID, &attempt.SessionID, &strategy,
		&action, &score, &feedbackAt, &createdAt,
	); err != nil {
		return nil, err
	}

	attempt.Strategy = domain.Strategy(strategy)
	attempt.UserAction = domain.UserAction(action.String)
	if score.Valid {
		v := score.Float64
		attempt.QualityScore = &v
	}
	if feedbackAt.Valid {
		ts := time.Unix(feedbackAt.Int64, 0)
		attempt.FeedbackAt = &ts
	}
	attempt.CreatedAt = time.Unix(createdAt, 0)
	return &attempt, nil
}
