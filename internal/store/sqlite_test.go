package store

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/ashureev/promptboost/internal/domain"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := newSQLiteStore(filepath.Join(t.TempDir(), "promptboost.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSQLiteStore_CacheEntryLifecycle(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	got, err := s.GetCacheEntry(ctx, "write a poem")
	if err != nil {
		t.Fatalf("GetCacheEntry miss returned error: %v", err)
	}
	if got != nil {
		t.Fatalf("expected miss, got %+v", got)
	}

	created, err := s.CreateCacheEntry(ctx, "write a poem", "Write a sonnet")
	if err != nil {
		t.Fatalf("CreateCacheEntry: %v", err)
	}

	_, err = s.CreateCacheEntry(ctx, "write a poem", "other")
	if !errors.Is(err, domain.ErrCacheConflict) {
		t.Fatalf("expected ErrCacheConflict, got %v", err)
	}

	updated, err := s.UpdateCacheEntry(ctx, created.ID, "Write a haiku")
	if err != nil {
		t.Fatalf("UpdateCacheEntry: %v", err)
	}
	if updated.ID != created.ID || updated.GeneratedText != "Write a haiku" {
		t.Errorf("unexpected updated entry: %+v", updated)
	}

	if _, err := s.UpdateCacheEntry(ctx, 9999, "x"); !errors.Is(err, domain.ErrCacheEntryNotFound) {
		t.Errorf("expected ErrCacheEntryNotFound, got %v", err)
	}
}

func TestSQLiteStore_ConcurrentCreateSingleRow(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	const writers = 8
	var wg sync.WaitGroup
	var mu sync.Mutex
	var created, conflicts int

	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.CreateCacheEntry(ctx, "same prompt", "same output")
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				created++
			case errors.Is(err, domain.ErrCacheConflict):
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if created != 1 {
		t.Errorf("expected exactly one insert to win, got %d (conflicts=%d)", created, conflicts)
	}

	var rows int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM cache_entries`).Scan(&rows); err != nil {
		t.Fatalf("count rows: %v", err)
	}
	if rows != 1 {
		t.Errorf("expected 1 cache row, got %d", rows)
	}
}

func TestSQLiteStore_RecordAttemptUniqueSession(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	entry, err := s.CreateCacheEntry(ctx, "a", "b")
	if err != nil {
		t.Fatalf("CreateCacheEntry: %v", err)
	}

	score := 0.6
	attempt := &domain.Attempt{
		CacheEntryID: entry.ID,
		UserID:       "user-1",
		SessionID:    "session-1",
		Strategy:     domain.StrategyInitial,
		QualityScore: &score,
	}
	recorded, err := s.RecordAttempt(ctx, attempt)
	if err != nil {
		t.Fatalf("RecordAttempt: %v", err)
	}
	if recorded.UserAction != domain.ActionAccepted {
		t.Errorf("expected implicit accepted, got %q", recorded.UserAction)
	}
	if recorded.HasFeedback() {
		t.Error("new attempt should not carry feedback")
	}

	if _, err := s.RecordAttempt(ctx, attempt); !errors.Is(err, domain.ErrSessionExists) {
		t.Errorf("expected ErrSessionExists, got %v", err)
	}

	got, err := s.GetAttempt(ctx, "session-1")
	if err != nil {
		t.Fatalf("GetAttempt: %v", err)
	}
	if got.QualityScore == nil || *got.QualityScore != 0.6 {
		t.Errorf("quality score not round-tripped: %v", got.QualityScore)
	}
	if got.Strategy != domain.StrategyInitial {
		t.Errorf("strategy = %q, want initial", got.Strategy)
	}
}

func TestSQLiteStore_UpdateAction(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	entry, err := s.CreateCacheEntry(ctx, "a", "b")
	if err != nil {
		t.Fatalf("CreateCacheEntry: %v", err)
	}
	if _, err := s.RecordAttempt(ctx, &domain.Attempt{
		CacheEntryID: entry.ID, UserID: "u", SessionID: "s1", Strategy: domain.StrategyInitial,
	}); err != nil {
		t.Fatalf("RecordAttempt: %v", err)
	}

	if _, err := s.UpdateAction(ctx, "missing", domain.ActionRejected); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}

	got, err := s.UpdateAction(ctx, "s1", domain.ActionRejected)
	if err != nil {
		t.Fatalf("UpdateAction reject: %v", err)
	}
	if got.UserAction != domain.ActionRejected || !got.HasFeedback() {
		t.Errorf("unexpected attempt after reject: %+v", got)
	}

	// Same verdict again is a no-op.
	if _, err := s.UpdateAction(ctx, "s1", domain.ActionRejected); err != nil {
		t.Errorf("repeated reject should be a no-op, got %v", err)
	}

	got, err = s.UpdateAction(ctx, "s1", domain.ActionAccepted)
	if !errors.Is(err, domain.ErrActionConflict) {
		t.Fatalf("expected ErrActionConflict, got %v", err)
	}
	if got == nil || got.UserAction != domain.ActionRejected {
		t.Errorf("conflicting accept must not overwrite reject: %+v", got)
	}
}

func TestSQLiteStore_StatsAndRejectRecent(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	entry, err := s.CreateCacheEntry(ctx, "a", "b")
	if err != nil {
		t.Fatalf("CreateCacheEntry: %v", err)
	}
	for _, id := range []string{"s1", "s2", "s3", "s4"} {
		if _, err := s.RecordAttempt(ctx, &domain.Attempt{
			CacheEntryID: entry.ID, UserID: "u", SessionID: id, Strategy: domain.StrategyInitial,
		}); err != nil {
			t.Fatalf("RecordAttempt %s: %v", id, err)
		}
	}
	if _, err := s.UpdateAction(ctx, "s1", domain.ActionAccepted); err != nil {
		t.Fatalf("UpdateAction: %v", err)
	}

	n, err := s.RejectRecent(ctx, 2)
	if err != nil {
		t.Fatalf("RejectRecent: %v", err)
	}
	if n != 2 {
		t.Errorf("RejectRecent affected %d rows, want 2", n)
	}

	stats, err := s.ActionStats(ctx)
	if err != nil {
		t.Fatalf("ActionStats: %v", err)
	}
	want := domain.ActionStats{Total: 4, Accepted: 1, Rejected: 2, Implicit: 1}
	if *stats != want {
		t.Errorf("stats = %+v, want %+v", *stats, want)
	}

	recent, err := s.RecentAttempts(ctx, 10)
	if err != nil {
		t.Fatalf("RecentAttempts: %v", err)
	}
	if len(recent) != 4 {
		t.Fatalf("expected 4 attempts, got %d", len(recent))
	}
	if recent[0].SessionID != "s4" {
		t.Errorf("newest attempt = %s, want s4", recent[0].SessionID)
	}
}
