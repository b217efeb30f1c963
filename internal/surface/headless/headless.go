// Package headless is a log-only feedback surface for daemons and scripts.
// Verdicts arrive as lines on a reader (usually stdin); when none arrive an
// attempt keeps the implicit "accepted" verdict.
package headless

import (
	"bufio"
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync/atomic"

	"github.com/ashureev/promptboost/internal/feedback"
)

// Controller is the subset of the reconciler driven by verdict lines.
type Controller interface {
	OnAccept(ctx context.Context, sessionID string) error
	OnReject(ctx context.Context, sessionID string) (*feedback.SessionState, error)
}

// Surface logs presentation calls and remembers the attempt it last showed.
type Surface struct {
	logger *slog.Logger
	shown  atomic.Pointer[string]
}

// New creates a headless surface. A nil logger uses slog.Default().
func New(logger *slog.Logger) *Surface {
	if logger == nil {
		logger = slog.Default()
	}
	return &Surface{logger: logger}
}

// Show implements feedback.Surface.
func (s *Surface) Show(state feedback.SessionState) {
	if state.AwaitingFeedback {
		id := state.SessionID
		s.shown.Store(&id)
	}
	s.logger.Info("Enhancement ready",
		"session_id", state.SessionID,
		"original_chars", len(state.TrueOriginalText),
		"generated_chars", len(state.GeneratedText),
		"awaiting_feedback", state.AwaitingFeedback,
	)
}

// Notify implements feedback.Surface.
func (s *Surface) Notify(title, body string) {
	s.logger.Warn(title, "detail", body)
}

// ReadVerdicts applies one verdict per line from r until EOF or ctx is done.
// Lines are "a" (accept) or "r" (reject and reroll), optionally followed by a
// session id; without one the verdict targets the attempt shown last.
func (s *Surface) ReadVerdicts(ctx context.Context, r io.Reader, ctrl Controller) error {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return nil
		}
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}

		sessionID := ""
		if len(fields) > 1 {
			sessionID = fields[1]
		} else if id := s.shown.Load(); id != nil {
			sessionID = *id
		}
		if sessionID == "" {
			s.logger.Warn("Verdict ignored, nothing shown yet", "input", fields[0])
			continue
		}

		var err error
		switch strings.ToLower(fields[0]) {
		case "a", "accept", "accepted":
			err = ctrl.OnAccept(ctx, sessionID)
		case "r", "reject", "rejected":
			_, err = ctrl.OnReject(ctx, sessionID)
		default:
			s.logger.Warn("Unknown verdict, use a or r", "input", fields[0])
			continue
		}
		switch {
		case err == nil:
		case errors.Is(err, feedback.ErrBusy), errors.Is(err, feedback.ErrSuperseded), errors.Is(err, feedback.ErrNoPending):
			s.logger.Info("Verdict not applied", "session_id", sessionID, "reason", err.Error())
		default:
			s.logger.Warn("Verdict failed", "session_id", sessionID, "error", err)
		}
	}
	return scanner.Err()
}
