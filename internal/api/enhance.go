package api

import (
	"errors"
	"net/http"

	"github.com/ashureev/promptboost/internal/domain"
	"github.com/ashureev/promptboost/internal/identity"
	"github.com/go-chi/chi/v5"
)

// EnhanceHandler serves the enhancement and feedback endpoints.
type EnhanceHandler struct {
	*Handler
}

// NewEnhanceHandler creates a new enhance handler.
func NewEnhanceHandler(base *Handler) *EnhanceHandler {
	return &EnhanceHandler{Handler: base}
}

// RegisterRoutes registers enhancement routes.
func (h *EnhanceHandler) RegisterRoutes(r chi.Router) {
	r.Post("/enhance", h.Enhance)
	r.Post("/feedback", h.Feedback)
}

// Enhance runs one request through the orchestrator. A degraded run still
// answers 200 with the fallback text and degraded=true.
func (h *EnhanceHandler) Enhance(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())

	var req domain.EnhanceRequest
	if err := h.decode(w, r, &req); err != nil {
		h.fail(w, err, "Rejected enhance request", "user_id", userID)
		return
	}

	res, err := h.enhancer.Generate(r.Context(), domain.GenerationRequest{
		Text:               req.Text,
		UserID:             userID,
		SessionID:          req.SessionID,
		IsReroll:           req.IsReroll,
		TrueOriginalText:   req.TrueOriginalText,
		PriorGeneratedText: req.PriorGeneratedText,
	})
	if err != nil && !(res != nil && res.Degraded && errors.Is(err, domain.ErrGenerationUnavailable)) {
		h.fail(w, err, "Enhance failed", "user_id", userID, "session_id", req.SessionID)
		return
	}

	if res.Attempt != nil {
		h.publish(userID, domain.LedgerEvent{
			Type:      "attempt",
			SessionID: res.SessionID,
			Strategy:  res.Attempt.Strategy,
			Action:    res.Attempt.UserAction,
			FromCache: res.FromCache,
		})
	}

	JSON(w, http.StatusOK, domain.EnhanceResponse{
		Text:      res.Text,
		SessionID: res.SessionID,
		FromCache: res.FromCache,
		Bypassed:  res.Bypassed,
		Degraded:  res.Degraded,
	})
}

// Feedback records an explicit verdict. Unknown sessions are acknowledged
// with a warning rather than an error.
func (h *EnhanceHandler) Feedback(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())

	var req domain.FeedbackRequest
	if err := h.decode(w, r, &req); err != nil {
		h.fail(w, err, "Rejected feedback request", "user_id", userID)
		return
	}
	action, err := domain.ParseUserAction(req.UserAction)
	if err != nil {
		h.fail(w, err, "Rejected feedback request", "user_id", userID)
		return
	}

	attempt, err := h.repo.UpdateAction(r.Context(), req.SessionID, action)
	switch {
	case domain.IsSoft(err):
		h.metrics.FeedbackTotal.WithLabelValues(string(action), "unknown_session").Inc()
		h.logger.Warn("Feedback for unknown session", "session_id", req.SessionID, "user_id", userID, "remote_ip", identity.IPFromRequest(r))
		JSON(w, http.StatusOK, domain.FeedbackResponse{
			Status:  domain.FeedbackStatusWarning,
			Message: "session not found",
		})
		return
	case errors.Is(err, domain.ErrActionConflict):
		h.metrics.FeedbackTotal.WithLabelValues(string(action), "conflict").Inc()
		h.fail(w, err, "Conflicting feedback", "session_id", req.SessionID, "user_id", userID)
		return
	case err != nil:
		h.metrics.FeedbackTotal.WithLabelValues(string(action), "error").Inc()
		h.fail(w, err, "Feedback failed", "session_id", req.SessionID, "user_id", userID)
		return
	}

	h.metrics.FeedbackTotal.WithLabelValues(string(action), "recorded").Inc()
	h.logger.Info("Feedback recorded", "session_id", req.SessionID, "user_action", action, "user_id", userID)
	h.publish(userID, domain.LedgerEvent{
		Type:      "feedback",
		SessionID: attempt.SessionID,
		Strategy:  attempt.Strategy,
		Action:    attempt.UserAction,
	})
	JSON(w, http.StatusOK, domain.FeedbackResponse{
		Status:  domain.FeedbackStatusSuccess,
		Message: "feedback recorded",
	})
}
