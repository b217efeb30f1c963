package domain

import (
	"errors"
	"fmt"

	"github.com/containerd/errdefs"
)

// Error taxonomy. Each sentinel wraps an errdefs class so transports can map
// them with errdefs.IsNotFound, errdefs.IsConflict and friends.
var (
	ErrGenerationUnavailable  = fmt.Errorf("generation unavailable: %w", errdefs.ErrUnavailable)
	ErrQualityGateUnavailable = fmt.Errorf("quality gate unavailable: %w", errdefs.ErrUnavailable)
	ErrCacheConflict          = fmt.Errorf("cache entry already exists: %w", errdefs.ErrAlreadyExists)
	ErrSessionExists          = fmt.Errorf("session already recorded: %w", errdefs.ErrAlreadyExists)
	ErrSessionNotFound        = fmt.Errorf("session not found: %w", errdefs.ErrNotFound)
	ErrCacheEntryNotFound     = fmt.Errorf("cache entry not found: %w", errdefs.ErrNotFound)
	ErrActionConflict         = fmt.Errorf("conflicting feedback action: %w", errdefs.ErrConflict)
	ErrInvalidAction          = fmt.Errorf("invalid user action: %w", errdefs.ErrInvalidArgument)
	ErrConfiguration          = fmt.Errorf("configuration error: %w", errdefs.ErrInvalidArgument)
	ErrEmptyText              = fmt.Errorf("text cannot be empty: %w", errdefs.ErrInvalidArgument)
)

// FallbackText is the clearly marked placeholder returned when generation
// fails after the retry budget is spent.
func FallbackText(original string) string {
	return original + "\n\n[// Enhancement failed on server, please try again.]"
}

// IsSoft reports whether err should be acknowledged rather than surfaced.
func IsSoft(err error) bool {
	return errors.Is(err, ErrSessionNotFound)
}
