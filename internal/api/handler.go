// Package api provides HTTP handlers for the PromptBoost API.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/ashureev/promptboost/internal/domain"
	"github.com/ashureev/promptboost/internal/events"
	"github.com/ashureev/promptboost/internal/observability"
	"github.com/ashureev/promptboost/internal/orchestrator"
	"github.com/ashureev/promptboost/internal/store"
	"github.com/containerd/errdefs"
	"github.com/go-playground/validator/v10"
)

const maxBodyBytes = 256 << 10

// Enhancer runs one enhancement request through the pipeline.
type Enhancer interface {
	Generate(ctx context.Context, req domain.GenerationRequest) (*orchestrator.Result, error)
}

// Handler provides common handler utilities.
type Handler struct {
	enhancer Enhancer
	repo     store.Repository
	hub      *events.Hub
	metrics  *observability.Metrics
	validate *validator.Validate
	logger   *slog.Logger
}

// NewHandler creates a new Handler with common dependencies. hub and
// metrics may be nil.
func NewHandler(enhancer Enhancer, repo store.Repository, hub *events.Hub,
	metrics *observability.Metrics, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = observability.NewNopMetrics()
	}
	return &Handler{
		enhancer: enhancer,
		repo:     repo,
		hub:      hub,
		metrics:  metrics,
		validate: validator.New(),
		logger:   logger,
	}
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

// statusFor maps an error class to an HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errdefs.IsInvalidArgument(err):
		return http.StatusBadRequest
	case errdefs.IsNotFound(err):
		return http.StatusNotFound
	case errdefs.IsConflict(err), errdefs.IsAlreadyExists(err):
		return http.StatusConflict
	case errdefs.IsUnavailable(err):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// fail logs err and writes the mapped status. Internal errors are not echoed.
func (h *Handler) fail(w http.ResponseWriter, err error, msg string, args ...any) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error(msg, append(args, "error", err)...)
		Error(w, status, http.StatusText(status))
		return
	}
	h.logger.Warn(msg, append(args, "error", err)...)
	Error(w, status, err.Error())
}

// decode reads a JSON body into v and runs struct validation.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: malformed body: %v", errdefs.ErrInvalidArgument, err)
	}
	if err := h.validate.Struct(v); err != nil {
		return fmt.Errorf("%w: %s", errdefs.ErrInvalidArgument, describeValidation(err))
	}
	return nil
}

func describeValidation(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, fmt.Sprintf("%s failed %s", strings.ToLower(fe.Field()), fe.Tag()))
	}
	return strings.Join(parts, "; ")
}

func (h *Handler) publish(userID string, ev domain.LedgerEvent) {
	if h.hub == nil || userID == "" {
		return
	}
	h.hub.Publish(userID, ev)
}
