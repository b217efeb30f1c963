package api

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/ashureev/promptboost/internal/domain"
	"github.com/ashureev/promptboost/internal/identity"
	"github.com/containerd/errdefs"
	"github.com/go-chi/chi/v5"
)

const (
	defaultRecentLimit = 20
	maxRecentLimit     = 500
)

// LedgerHandler exposes read and maintenance operations over the attempt ledger.
type LedgerHandler struct {
	*Handler
}

// NewLedgerHandler creates a new ledger handler.
func NewLedgerHandler(base *Handler) *LedgerHandler {
	return &LedgerHandler{Handler: base}
}

// RegisterRoutes registers ledger routes.
func (h *LedgerHandler) RegisterRoutes(r chi.Router) {
	r.Get("/stats", h.Stats)
	r.Get("/attempts", h.Recent)
	r.Post("/attempts/reject-recent", h.RejectRecent)
}

// Stats returns verdict counts across the ledger.
func (h *LedgerHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.repo.ActionStats(r.Context())
	if err != nil {
		h.fail(w, err, "Failed to load stats")
		return
	}
	JSON(w, http.StatusOK, stats)
}

// Recent lists the newest attempts, newest first.
func (h *LedgerHandler) Recent(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r.URL.Query().Get("limit"))
	if err != nil {
		h.fail(w, err, "Rejected attempts query")
		return
	}
	attempts, err := h.repo.RecentAttempts(r.Context(), limit)
	if err != nil {
		h.fail(w, err, "Failed to list attempts")
		return
	}
	if attempts == nil {
		attempts = []*domain.Attempt{}
	}
	JSON(w, http.StatusOK, attempts)
}

// RejectRecent marks the newest attempts without explicit feedback as rejected.
func (h *LedgerHandler) RejectRecent(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())

	var req domain.RejectRecentRequest
	if err := h.decode(w, r, &req); err != nil {
		h.fail(w, err, "Rejected reject-recent request", "user_id", userID)
		return
	}
	n, err := h.repo.RejectRecent(r.Context(), req.Count)
	if err != nil {
		h.fail(w, err, "Failed to reject recent attempts", "user_id", userID)
		return
	}
	h.metrics.FeedbackTotal.WithLabelValues(string(domain.ActionRejected), "bulk").Add(float64(n))
	h.logger.Info("Rejected recent attempts", "requested", req.Count, "updated", n, "user_id", userID)
	JSON(w, http.StatusOK, domain.RejectRecentResponse{Updated: n})
}

func parseLimit(raw string) (int, error) {
	if raw == "" {
		return defaultRecentLimit, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("%w: limit must be a positive integer", errdefs.ErrInvalidArgument)
	}
	if n > maxRecentLimit {
		n = maxRecentLimit
	}
	return n, nil
}
