// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"

	"github.com/ashureev/promptboost/internal/domain"
)

// Repository persists the prompt cache and the attempt ledger.
type Repository interface {
	// GetCacheEntry retrieves a cache entry by its exact original text.
	// Returns nil, nil on a miss.
	GetCacheEntry(ctx context.Context, originalText string) (*domain.CacheEntry, error)

	// CreateCacheEntry inserts a new cache entry. Returns domain.ErrCacheConflict
	// when another writer already inserted the same original text.
	CreateCacheEntry(ctx context.Context, originalText, generatedText string) (*domain.CacheEntry, error)

	// UpdateCacheEntry replaces the generated text of an existing entry in place.
	UpdateCacheEntry(ctx context.Context, id int64, generatedText string) (*domain.CacheEntry, error)

	// RecordAttempt appends one ledger row. Returns domain.ErrSessionExists
	// if the session id was already recorded.
	RecordAttempt(ctx context.Context, attempt *domain.Attempt) (*domain.Attempt, error)

	// UpdateAction applies a feedback verdict to the newest attempt with the
	// given session id. Returns domain.ErrSessionNotFound when no row matches
	// and domain.ErrActionConflict when a different verdict was already recorded.
	UpdateAction(ctx context.Context, sessionID string, action domain.UserAction) (*domain.Attempt, error)

	// GetAttempt retrieves the newest attempt for a session id.
	GetAttempt(ctx context.Context, sessionID string) (*domain.Attempt, error)

	// RecentAttempts lists the newest attempts first.
	RecentAttempts(ctx context.Context, limit int) ([]*domain.Attempt, error)

	// ActionStats counts verdicts across the ledger.
	ActionStats(ctx context.Context) (*domain.ActionStats, error)

	// RejectRecent marks the newest n attempts that have no explicit feedback as rejected.
	RejectRecent(ctx context.Context, n int) (int64, error)

	// Ping verifies database connectivity and returns an error if the database is unreachable.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
