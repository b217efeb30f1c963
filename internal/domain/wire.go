package domain

// EnhanceRequest is the body of POST /api/v1/enhance.
type EnhanceRequest struct {
	Text               string `json:"text" validate:"required,max=20000"`
	SessionID          string `json:"session_id,omitempty" validate:"omitempty,max=128"`
	IsReroll           bool   `json:"is_reroll"`
	TrueOriginalText   string `json:"true_original_text,omitempty" validate:"required_if=IsReroll true,max=20000"`
	PriorGeneratedText string `json:"prior_generated_text,omitempty" validate:"max=40000"`
}

// EnhanceResponse is returned by POST /api/v1/enhance.
type EnhanceResponse struct {
	Text      string `json:"text"`
	SessionID string `json:"session_id"`
	FromCache bool   `json:"from_cache"`
	Bypassed  bool   `json:"bypassed"`
	Degraded  bool   `json:"degraded"`
}

// FeedbackRequest is the body of POST /api/v1/feedback.
type FeedbackRequest struct {
	SessionID  string `json:"session_id" validate:"required,max=128"`
	UserAction string `json:"user_action" validate:"required,oneof=accepted rejected"`
}

// Feedback status values.
const (
	FeedbackStatusSuccess = "success"
	FeedbackStatusWarning = "warning"
)

// FeedbackResponse acknowledges a feedback call.
type FeedbackResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// RejectRecentRequest is the body of POST /api/v1/attempts/reject-recent.
type RejectRecentRequest struct {
	Count int `json:"count" validate:"required,min=1,max=1000"`
}

// RejectRecentResponse reports how many attempts were marked rejected.
type RejectRecentResponse struct {
	Updated int64 `json:"updated"`
}

// LedgerEvent is pushed to /api/v1/events subscribers.
type LedgerEvent struct {
	Type      string     `json:"type"` // "attempt" or "feedback"
	SessionID string     `json:"session_id"`
	Strategy  Strategy   `json:"strategy,omitempty"`
	Action    UserAction `json:"user_action,omitempty"`
	FromCache bool       `json:"from_cache,omitempty"`
}
