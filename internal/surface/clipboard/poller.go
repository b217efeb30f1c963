// Package clipboard turns the system clipboard into an input surface: text
// copied with a trailing trigger suffix is enhanced and the result is copied
// back in its place.
package clipboard

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/ashureev/promptboost/internal/domain"
	"github.com/ashureev/promptboost/internal/feedback"
	"github.com/atotto/clipboard"
)

const (
	// DefaultSuffix marks clipboard text that should be enhanced.
	DefaultSuffix = "!!e"
	// DefaultInterval is the clipboard polling period.
	DefaultInterval = 500 * time.Millisecond
)

// Clipboard reads and writes the clipboard contents.
type Clipboard interface {
	ReadAll() (string, error)
	WriteAll(text string) error
}

// System is the host clipboard.
type System struct{}

// ReadAll implements Clipboard.
func (System) ReadAll() (string, error) { return clipboard.ReadAll() }

// WriteAll implements Clipboard.
func (System) WriteAll(text string) error { return clipboard.WriteAll(text) }

// Available reports whether a host clipboard utility was found.
func Available() bool { return !clipboard.Unsupported }

// Submitter enhances text. *feedback.Reconciler satisfies it.
type Submitter interface {
	Submit(ctx context.Context, text string) (*domain.EnhanceResponse, error)
}

// Poller watches the clipboard for triggered text. It is also a
// feedback.Surface so rerolls land on the clipboard.
type Poller struct {
	clip      Clipboard
	submitter Submitter
	suffix    string
	interval  time.Duration
	logger    *slog.Logger

	mu   sync.Mutex
	last string
}

// NewPoller creates a poller. Zero suffix and interval take the defaults.
func NewPoller(clip Clipboard, submitter Submitter, suffix string, interval time.Duration, logger *slog.Logger) *Poller {
	if suffix == "" {
		suffix = DefaultSuffix
	}
	if interval <= 0 {
		interval = DefaultInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Poller{clip: clip, submitter: submitter, suffix: suffix, interval: interval, logger: logger}
}

// SetSubmitter attaches the submitter after construction.
func (p *Poller) SetSubmitter(s Submitter) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.submitter = s
}

// Run polls until ctx is cancelled. Submissions run inline, so the clipboard
// is not re-read while one is in flight.
func (p *Poller) Run(ctx context.Context) error {
	p.logger.Info("Clipboard watcher started", "suffix", p.suffix, "interval", p.interval)
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	// Seed with the current contents so stale triggered text is not replayed.
	if text, err := p.clip.ReadAll(); err == nil {
		p.remember(text)
	}

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("Clipboard watcher stopped")
			return nil
		case <-ticker.C:
			p.Poll(ctx)
		}
	}
}

// Poll performs one clipboard check.
func (p *Poller) Poll(ctx context.Context) {
	text, err := p.clip.ReadAll()
	if err != nil {
		p.logger.Debug("Clipboard read failed", "error", err)
		return
	}
	if !p.changed(text) {
		return
	}

	trimmed, ok := p.triggered(text)
	if !ok {
		return
	}

	p.mu.Lock()
	submitter := p.submitter
	p.mu.Unlock()
	if submitter == nil {
		return
	}

	p.logger.Info("Clipboard trigger detected", "chars", len(trimmed))
	resp, err := submitter.Submit(ctx, trimmed)
	switch {
	case errors.Is(err, feedback.ErrSuperseded):
		// A newer result already owns the clipboard.
		p.logger.Info("Clipboard result superseded, leaving clipboard as is", "chars", len(trimmed))
		return
	case err != nil:
		// The reconciler already notified the user; restore the untriggered text.
		p.write(trimmed)
		return
	}
	p.write(resp.Text)
}

func (p *Poller) triggered(text string) (string, bool) {
	trimmed := strings.TrimRight(text, " \t\r\n")
	if !strings.HasSuffix(trimmed, p.suffix) {
		return "", false
	}
	trimmed = strings.TrimSpace(strings.TrimSuffix(trimmed, p.suffix))
	return trimmed, trimmed != ""
}

func (p *Poller) changed(text string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if text == p.last {
		return false
	}
	p.last = text
	return true
}

func (p *Poller) remember(text string) {
	p.mu.Lock()
	p.last = text
	p.mu.Unlock()
}

func (p *Poller) write(text string) {
	p.remember(text)
	if err := p.clip.WriteAll(text); err != nil {
		p.logger.Warn("Clipboard write failed", "error", err)
	}
}

// Show implements feedback.Surface by copying the generated text.
func (p *Poller) Show(state feedback.SessionState) {
	p.write(state.GeneratedText)
}

// Notify implements feedback.Surface. Notices are left to other surfaces.
func (p *Poller) Notify(string, string) {}
