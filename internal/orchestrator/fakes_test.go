package orchestrator

import (
	"context"
	"sync"
	"time"

	"github.com/ashureev/promptboost/internal/domain"
	"github.com/ashureev/promptboost/internal/generation"
)

// memRepo is an in-memory store.Repository.
type memRepo struct {
	mu       sync.Mutex
	entries  map[string]*domain.CacheEntry
	attempts []*domain.Attempt
	nextID   int64
}

func newMemRepo() *memRepo {
	return &memRepo{entries: make(map[string]*domain.CacheEntry)}
}

func (m *memRepo) GetCacheEntry(_ context.Context, originalText string) (*domain.CacheEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[originalText]
	if !ok {
		return nil, nil
	}
	cp := *e
	return &cp, nil
}

func (m *memRepo) CreateCacheEntry(_ context.Context, originalText, generatedText string) (*domain.CacheEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.entries[originalText]; ok {
		return nil, domain.ErrCacheConflict
	}
	m.nextID++
	now := time.Now()
	e := &domain.CacheEntry{ID: m.nextID, OriginalText: originalText, GeneratedText: generatedText, CreatedAt: now, UpdatedAt: now}
	m.entries[originalText] = e
	cp := *e
	return &cp, nil
}

func (m *memRepo) UpdateCacheEntry(_ context.Context, id int64, generatedText string) (*domain.CacheEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.entries {
		if e.ID == id {
			e.GeneratedText = generatedText
			e.UpdatedAt = time.Now()
			cp := *e
			return &cp, nil
		}
	}
	return nil, domain.ErrCacheEntryNotFound
}

func (m *memRepo) RecordAttempt(_ context.Context, attempt *domain.Attempt) (*domain.Attempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.attempts {
		if a.SessionID == attempt.SessionID {
			return nil, domain.ErrSessionExists
		}
	}
	m.nextID++
	cp := *attempt
	cp.ID = m.nextID
	if cp.UserAction == domain.ActionNone {
		cp.UserAction = domain.ActionAccepted
	}
	cp.CreatedAt = time.Now()
	m.attempts = append(m.attempts, &cp)
	out := cp
	return &out, nil
}

func (m *memRepo) UpdateAction(_ context.Context, sessionID string, action domain.UserAction) (*domain.Attempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.attempts) - 1; i >= 0; i-- {
		a := m.attempts[i]
		if a.SessionID != sessionID {
			continue
		}
		if a.FeedbackAt != nil && a.UserAction != action {
			cp := *a
			return &cp, domain.ErrActionConflict
		}
		if a.FeedbackAt == nil {
			now := time.Now()
			a.UserAction = action
			a.FeedbackAt = &now
		}
		cp := *a
		return &cp, nil
	}
	return nil, domain.ErrSessionNotFound
}

func (m *memRepo) GetAttempt(_ context.Context, sessionID string) (*domain.Attempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.attempts) - 1; i >= 0; i-- {
		if m.attempts[i].SessionID == sessionID {
			cp := *m.attempts[i]
			return &cp, nil
		}
	}
	return nil, domain.ErrSessionNotFound
}

func (m *memRepo) RecentAttempts(_ context.Context, limit int) ([]*domain.Attempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.Attempt
	for i := len(m.attempts) - 1; i >= 0 && len(out) < limit; i-- {
		cp := *m.attempts[i]
		out = append(out, &cp)
	}
	return out, nil
}

func (m *memRepo) ActionStats(context.Context) (*domain.ActionStats, error) {
	return &domain.ActionStats{}, nil
}

func (m *memRepo) RejectRecent(context.Context, int) (int64, error) { return 0, nil }
func (m *memRepo) Ping(context.Context) error                     { return nil }
func (m *memRepo) Close() error                                   { return nil }

func (m *memRepo) entryCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

func (m *memRepo) attemptList() []domain.Attempt {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.Attempt, 0, len(m.attempts))
	for _, a := range m.attempts {
		out = append(out, *a)
	}
	return out
}

type gatewayReply struct {
	text string
	err  error
}

// scriptedGateway returns replies in order and repeats the last one.
type scriptedGateway struct {
	mu       sync.Mutex
	replies  []gatewayReply
	requests []generation.Request
}

func (g *scriptedGateway) Generate(_ context.Context, req generation.Request) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.requests = append(g.requests, req)
	i := len(g.requests) - 1
	if i >= len(g.replies) {
		i = len(g.replies) - 1
	}
	return g.replies[i].text, g.replies[i].err
}

func (g *scriptedGateway) calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.requests)
}
