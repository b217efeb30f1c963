// Package domain contains core domain types for the PromptBoost service.
package domain

import (
	"time"
)

// CacheEntry maps an original prompt to its most recent generated text.
// OriginalText is unique across the table.
type CacheEntry struct {
	ID            int64     `json:"id"`
	OriginalText  string    `json:"original_text"`
	GeneratedText string    `json:"generated_text"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// GenerationRequest is the transient input to one orchestrator run.
type GenerationRequest struct {
	Text               string
	UserID             string
	SessionID          string
	IsReroll           bool
	TrueOriginalText   string
	PriorGeneratedText string
}

// CacheKey returns the anchor text used for cache lookups and reroll chains.
func (r GenerationRequest) CacheKey() string {
	if r.TrueOriginalText != "" {
		return r.TrueOriginalText
	}
	return r.Text
}
