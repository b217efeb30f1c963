package domain

import (
	"fmt"
	"time"
)

// UserAction is the verdict a user gave an attempt.
type UserAction string

const (
	// ActionNone means no verdict is stored (legacy rows).
	ActionNone UserAction = ""
	// ActionAccepted is also the implicit default written with every new attempt.
	ActionAccepted UserAction = "accepted"
	// ActionRejected marks an attempt the user asked to reroll.
	ActionRejected UserAction = "rejected"
)

// ParseUserAction validates a wire value.
func ParseUserAction(s string) (UserAction, error) {
	switch UserAction(s) {
	case ActionAccepted, ActionRejected:
		return UserAction(s), nil
	default:
		return ActionNone, fmt.Errorf("%w: unknown user action %q", ErrInvalidAction, s)
	}
}

// Strategy tags how an attempt's text was produced.
type Strategy string

const (
	StrategyInitial      Strategy = "initial"
	StrategyReroll       Strategy = "reroll"
	StrategyQualityRetry Strategy = "quality_retry"
	StrategyCacheHit     Strategy = "cache_hit"
)

// Attempt is one ledger row: a single generation outcome and its eventual verdict.
type Attempt struct {
	ID           int64      `json:"id"`
	CacheEntryID int64      `json:"cache_entry_id"`
	UserID       string     `json:"user_id"`
	SessionID    string     `json:"session_id"`
	Strategy     Strategy   `json:"strategy"`
	UserAction   UserAction `json:"user_action"`
	QualityScore *float64   `json:"quality_score,omitempty"`
	FeedbackAt   *time.Time `json:"feedback_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

// HasFeedback reports whether the verdict came through the feedback path
// rather than the implicit default.
func (a *Attempt) HasFeedback() bool {
	return a.FeedbackAt != nil
}

// ActionStats summarizes verdicts across the ledger.
type ActionStats struct {
	Total    int64 `json:"total"`
	Accepted int64 `json:"accepted"`
	Rejected int64 `json:"rejected"`
	Implicit int64 `json:"implicit"`
}
