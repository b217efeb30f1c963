// Package feedback tracks the single attempt awaiting a verdict on a client
// and serializes accept, reject and close triggers coming from several input
// surfaces (clipboard poller, terminal dialog, CLI).
package feedback

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/ashureev/promptboost/internal/domain"
	"github.com/google/uuid"
)

var (
	// ErrBusy is returned to a trigger that lost the gate race. Its action is dropped.
	ErrBusy = errors.New("feedback gate busy")
	// ErrNoPending means there is no attempt awaiting feedback.
	ErrNoPending = errors.New("no attempt awaiting feedback")
	// ErrSuperseded means a newer generation replaced the state while a call was in flight.
	ErrSuperseded = errors.New("result superseded by a newer generation")
)

// SessionState is the client's record of the most recent generation.
// Values are immutable once published; updates swap the whole record.
type SessionState struct {
	SessionID        string
	TrueOriginalText string
	GeneratedText    string
	AwaitingFeedback bool
}

// Backend is the server operation surface used by the reconciler.
type Backend interface {
	Enhance(ctx context.Context, req domain.EnhanceRequest) (*domain.EnhanceResponse, error)
	Feedback(ctx context.Context, sessionID string, action domain.UserAction) (*domain.FeedbackResponse, error)
}

// Surface presents results and collects verdicts. Implementations must be
// safe to call from any goroutine.
type Surface interface {
	Show(state SessionState)
	Notify(title, body string)
}

// Reconciler owns the client session state.
type Reconciler struct {
	backend Backend
	surface Surface
	logger  *slog.Logger

	gate   sync.Mutex
	state  atomic.Pointer[SessionState]
	latest atomic.Pointer[string] // session id of the newest generation started
	newID  func() string
}

// NewReconciler creates a reconciler. A nil surface discards presentation calls.
func NewReconciler(backend Backend, surface Surface, logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	if surface == nil {
		surface = nopSurface{}
	}
	return &Reconciler{
		backend: backend,
		surface: surface,
		logger:  logger,
		newID:   uuid.NewString,
	}
}

// Current returns a copy of the current state, or nil before the first generation.
func (r *Reconciler) Current() *SessionState {
	s := r.state.Load()
	if s == nil {
		return nil
	}
	cp := *s
	return &cp
}

// Submit requests an enhancement for text and, on success, makes it the
// attempt awaiting feedback. Bypassed and degraded results are reported but
// never become the current state.
func (r *Reconciler) Submit(ctx context.Context, text string) (*domain.EnhanceResponse, error) {
	sessionID := r.newID()
	r.latest.Store(&sessionID)

	resp, err := r.backend.Enhance(ctx, domain.EnhanceRequest{
		Text:             text,
		SessionID:        sessionID,
		TrueOriginalText: text,
	})
	if err != nil {
		r.logger.Error("Enhance request failed", "session_id", sessionID, "error", err)
		r.surface.Notify("Enhancement failed", err.Error())
		return nil, fmt.Errorf("enhance: %w", err)
	}

	switch {
	case resp.Bypassed || resp.Text == text:
		r.logger.Info("Enhancement bypassed", "session_id", resp.SessionID)
		r.surface.Notify("Enhancement bypassed", "Input looks like code; left unchanged.")
		return resp, nil
	case resp.Degraded:
		r.surface.Notify("Enhancement failed", "The server could not enhance this prompt. Try again.")
		return resp, nil
	}

	return resp, r.publish(sessionID, &SessionState{
		SessionID:        resp.SessionID,
		TrueOriginalText: text,
		GeneratedText:    resp.Text,
		AwaitingFeedback: true,
	})
}

// OnGenerated records a generation produced outside Submit.
func (r *Reconciler) OnGenerated(sessionID, trueOriginal, generated string) {
	r.latest.Store(&sessionID)
	s := &SessionState{
		SessionID:        sessionID,
		TrueOriginalText: trueOriginal,
		GeneratedText:    generated,
		AwaitingFeedback: true,
	}
	r.state.Store(s)
	r.surface.Show(*s)
}

// publish swaps in next unless a newer generation was started after the one
// identified by startedAs.
func (r *Reconciler) publish(startedAs string, next *SessionState) error {
	if latest := r.latest.Load(); latest == nil || *latest != startedAs {
		// The server already recorded this attempt as implicitly accepted,
		// but it was never shown.
		r.logger.Warn("Discarding superseded result", "session_id", next.SessionID, "user_action", domain.ActionAccepted, "shown", false)
		return ErrSuperseded
	}
	r.state.Store(next)
	r.surface.Show(*next)
	return nil
}

// pending returns the attempt awaiting feedback when it is the one identified
// by sessionID. Callers must hold the gate.
func (r *Reconciler) pending(sessionID string) (*SessionState, error) {
	cur := r.state.Load()
	if cur == nil || !cur.AwaitingFeedback {
		return nil, ErrNoPending
	}
	if cur.SessionID != sessionID {
		r.logger.Info("Ignoring verdict for replaced attempt", "session_id", sessionID, "current_session_id", cur.SessionID)
		return nil, ErrSuperseded
	}
	return cur, nil
}

// OnAccept sends "accepted" for the attempt identified by sessionID. A verdict
// for an attempt that is no longer current returns ErrSuperseded and sends nothing.
func (r *Reconciler) OnAccept(ctx context.Context, sessionID string) error {
	if !r.gate.TryLock() {
		return ErrBusy
	}
	defer r.gate.Unlock()

	cur, err := r.pending(sessionID)
	if err != nil {
		return err
	}

	r.sendFeedback(ctx, cur.SessionID, domain.ActionAccepted)

	done := *cur
	done.AwaitingFeedback = false
	// A failed swap means a newer generation is already current; leave it.
	r.state.CompareAndSwap(cur, &done)
	return nil
}

// OnClose is treated as an acceptance.
func (r *Reconciler) OnClose(ctx context.Context, sessionID string) error {
	return r.OnAccept(ctx, sessionID)
}

// OnReject sends "rejected" for the attempt identified by sessionID and
// requests a reroll anchored to its true original text. The state changes only
// when the reroll succeeds; a failed reroll leaves the previous state in place.
func (r *Reconciler) OnReject(ctx context.Context, sessionID string) (*SessionState, error) {
	if !r.gate.TryLock() {
		return nil, ErrBusy
	}
	defer r.gate.Unlock()

	cur, err := r.pending(sessionID)
	if err != nil {
		return nil, err
	}

	r.sendFeedback(ctx, cur.SessionID, domain.ActionRejected)

	original := cur.TrueOriginalText
	prior := cur.GeneratedText
	rerollID := r.newID()
	r.latest.Store(&rerollID)

	resp, err := r.backend.Enhance(ctx, domain.EnhanceRequest{
		Text:               original,
		SessionID:          rerollID,
		IsReroll:           true,
		TrueOriginalText:   original,
		PriorGeneratedText: prior,
	})
	if err != nil {
		r.logger.Error("Reroll failed", "session_id", rerollID, "error", err)
		r.surface.Notify("Reroll failed", err.Error())
		return nil, fmt.Errorf("reroll: %w", err)
	}
	if resp.Degraded || resp.Bypassed {
		r.surface.Notify("Reroll failed", "The server could not produce a new version. Try again.")
		return nil, fmt.Errorf("reroll: %w", domain.ErrGenerationUnavailable)
	}

	next := &SessionState{
		SessionID:        resp.SessionID,
		TrueOriginalText: original,
		GeneratedText:    resp.Text,
		AwaitingFeedback: true,
	}
	if latest := r.latest.Load(); latest == nil || *latest != rerollID {
		r.logger.Info("Discarding superseded reroll", "session_id", resp.SessionID)
		return nil, ErrSuperseded
	}
	if !r.state.CompareAndSwap(cur, next) {
		r.logger.Info("Discarding superseded reroll", "session_id", resp.SessionID)
		return nil, ErrSuperseded
	}
	r.surface.Show(*next)
	cp := *next
	return &cp, nil
}

// sendFeedback is fire-and-forget: failures are logged, never surfaced.
func (r *Reconciler) sendFeedback(ctx context.Context, sessionID string, action domain.UserAction) {
	resp, err := r.backend.Feedback(ctx, sessionID, action)
	if err != nil {
		r.logger.Warn("Feedback not recorded", "session_id", sessionID, "user_action", action, "error", err)
		return
	}
	if resp != nil && resp.Status == domain.FeedbackStatusWarning {
		r.logger.Warn("Feedback acknowledged with warning", "session_id", sessionID, "message", resp.Message)
		return
	}
	r.logger.Info("Feedback recorded", "session_id", sessionID, "user_action", action)
}

type nopSurface struct{}

func (nopSurface) Show(SessionState)     {}
func (nopSurface) Notify(string, string) {}

// Surfaces fans presentation calls out to several surfaces in order.
type Surfaces []Surface

// Show implements Surface.
func (s Surfaces) Show(state SessionState) {
	for _, sf := range s {
		sf.Show(state)
	}
}

// Notify implements Surface.
func (s Surfaces) Notify(title, body string) {
	for _, sf := range s {
		sf.Notify(title, body)
	}
}
