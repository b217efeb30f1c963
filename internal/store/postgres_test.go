package store

import (
	"context"
	"os"
	"sync"
	"testing"

	"github.com/ashureev/promptboost/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPGStore(t *testing.T) *PGStore {
	t.Helper()
	url := os.Getenv("PROMPTBOOST_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("PROMPTBOOST_TEST_DATABASE_URL not set")
	}

	ctx := context.Background()
	repo, err := NewPostgres(ctx, url)
	require.NoError(t, err)
	s := repo.(*PGStore)
	require.NoError(t, s.DropSchema(ctx))
	require.NoError(t, s.CreateSchema(ctx))
	t.Cleanup(func() {
		_ = s.DropSchema(context.Background())
		_ = s.Close()
	})
	return s
}

func TestPGStore_CacheConflict(t *testing.T) {
	s := newTestPGStore(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.CreateCacheEntry(ctx, "same", "out")
			if err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
				return
			}
			assert.ErrorIs(t, err, domain.ErrCacheConflict)
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, wins)

	entry, err := s.GetCacheEntry(ctx, "same")
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, "out", entry.GeneratedText)
}

func TestPGStore_FeedbackLifecycle(t *testing.T) {
	s := newTestPGStore(t)
	ctx := context.Background()

	entry, err := s.CreateCacheEntry(ctx, "a", "b")
	require.NoError(t, err)

	_, err = s.RecordAttempt(ctx, &domain.Attempt{
		CacheEntryID: entry.ID, UserID: "u", SessionID: "s1", Strategy: domain.StrategyInitial,
	})
	require.NoError(t, err)

	_, err = s.RecordAttempt(ctx, &domain.Attempt{
		CacheEntryID: entry.ID, UserID: "u", SessionID: "s1", Strategy: domain.StrategyInitial,
	})
	assert.ErrorIs(t, err, domain.ErrSessionExists)

	got, err := s.UpdateAction(ctx, "s1", domain.ActionRejected)
	require.NoError(t, err)
	assert.Equal(t, domain.ActionRejected, got.UserAction)
	assert.True(t, got.HasFeedback())

	_, err = s.UpdateAction(ctx, "s1", domain.ActionAccepted)
	assert.ErrorIs(t, err, domain.ErrActionConflict)

	_, err = s.UpdateAction(ctx, "nope", domain.ActionAccepted)
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)

	stats, err := s.ActionStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.ActionStats{Total: 1, Rejected: 1}, *stats)
}
