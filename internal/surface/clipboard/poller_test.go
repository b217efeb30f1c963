package clipboard

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ashureev/promptboost/internal/domain"
	"github.com/ashureev/promptboost/internal/feedback"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ feedback.Surface = (*Poller)(nil)

type memClipboard struct {
	mu     sync.Mutex
	text   string
	writes []string
}

func (m *memClipboard) ReadAll() (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.text, nil
}

func (m *memClipboard) WriteAll(text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.text = text
	m.writes = append(m.writes, text)
	return nil
}

func (m *memClipboard) set(text string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.text = text
}

func (m *memClipboard) get() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.text
}

type submitFunc func(ctx context.Context, text string) (*domain.EnhanceResponse, error)

func (f submitFunc) Submit(ctx context.Context, text string) (*domain.EnhanceResponse, error) {
	return f(ctx, text)
}

func TestPoll_TriggerSubmitsAndWritesBack(t *testing.T) {
	clip := &memClipboard{}
	var got []string
	p := NewPoller(clip, submitFunc(func(_ context.Context, text string) (*domain.EnhanceResponse, error) {
		got = append(got, text)
		return &domain.EnhanceResponse{Text: "Enhanced: " + text}, nil
	}), "", 0, nil)
	ctx := context.Background()

	clip.set("write a poem !!e\n")
	p.Poll(ctx)
	require.Equal(t, []string{"write a poem"}, got)
	assert.Equal(t, "Enhanced: write a poem", clip.get())

	// The written result must not trigger again.
	p.Poll(ctx)
	assert.Len(t, got, 1)
}

func TestPoll_IgnoresUntriggeredAndEmpty(t *testing.T) {
	clip := &memClipboard{}
	calls := 0
	p := NewPoller(clip, submitFunc(func(context.Context, string) (*domain.EnhanceResponse, error) {
		calls++
		return &domain.EnhanceResponse{}, nil
	}), "!!e", time.Millisecond, nil)
	ctx := context.Background()

	for _, text := range []string{"plain text", "!!e", "   !!e  ", "e!!"} {
		clip.set(text)
		p.Poll(ctx)
	}
	assert.Zero(t, calls)
}

func TestPoll_FailureRestoresUntriggeredText(t *testing.T) {
	clip := &memClipboard{}
	p := NewPoller(clip, submitFunc(func(context.Context, string) (*domain.EnhanceResponse, error) {
		return nil, errors.New("offline")
	}), "", 0, nil)

	clip.set("hello!!e")
	p.Poll(context.Background())
	assert.Equal(t, "hello", clip.get())
}

func TestPoll_SupersededKeepsNewerResult(t *testing.T) {
	clip := &memClipboard{}
	var p *Poller
	p = NewPoller(clip, submitFunc(func(context.Context, string) (*domain.EnhanceResponse, error) {
		// A reroll lands on the clipboard while this submit is in flight.
		p.Show(feedback.SessionState{GeneratedText: "reroll result"})
		return &domain.EnhanceResponse{Text: "stale result"}, feedback.ErrSuperseded
	}), "", 0, nil)

	clip.set("new prompt!!e")
	p.Poll(context.Background())
	assert.Equal(t, "reroll result", clip.get())
	assert.Equal(t, []string{"reroll result"}, clip.writes)
}

func TestShow_CopiesGeneratedText(t *testing.T) {
	clip := &memClipboard{}
	p := NewPoller(clip, nil, "", 0, nil)
	p.Show(feedback.SessionState{GeneratedText: "reroll result!!e"})
	assert.Equal(t, "reroll result!!e", clip.get())

	// Text written by Show is remembered and not treated as a trigger.
	p.SetSubmitter(submitFunc(func(context.Context, string) (*domain.EnhanceResponse, error) {
		t.Fatal("unexpected submit")
		return nil, nil
	}))
	p.Poll(context.Background())
}

func TestRun_StopsOnCancel(t *testing.T) {
	clip := &memClipboard{text: "stale!!e"}
	submitted := make(chan string, 1)
	p := NewPoller(clip, submitFunc(func(_ context.Context, text string) (*domain.EnhanceResponse, error) {
		submitted <- text
		return &domain.EnhanceResponse{Text: "ok"}, nil
	}), "", 5*time.Millisecond, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	time.Sleep(20 * time.Millisecond)
	clip.set("fresh!!e")

	select {
	case text := <-submitted:
		assert.Equal(t, "fresh", text)
	case <-time.After(2 * time.Second):
		t.Fatal("trigger not picked up")
	}

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop")
	}
}
