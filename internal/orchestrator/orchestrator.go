// Package orchestrator runs one enhancement request through the fixed
// pipeline: cache lookup, generation, quality gating with bounded retry, and
// persistence of the cache entry plus one ledger row.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/ashureev/promptboost/internal/domain"
	"github.com/ashureev/promptboost/internal/generation"
	"github.com/ashureev/promptboost/internal/observability"
	"github.com/ashureev/promptboost/internal/quality"
	"github.com/ashureev/promptboost/internal/store"
	"github.com/google/uuid"
)

const (
	// QualityThreshold is the minimum classifier probability accepted without regeneration.
	QualityThreshold = 0.40
	// MaxQualityRetries bounds regenerations triggered by a low score.
	MaxQualityRetries = 1

	persistTimeout = 10 * time.Second
)

// Options tunes an Orchestrator.
type Options struct {
	// GenerationRetries is how many failed gateway calls are retried before
	// the run degrades to the fallback text.
	GenerationRetries int
	RequestTimeout    time.Duration
}

// DefaultOptions returns the production defaults.
func DefaultOptions() Options {
	return Options{GenerationRetries: 2, RequestTimeout: 45 * time.Second}
}

// Result is the outcome of one run.
type Result struct {
	Text         string
	SessionID    string
	FromCache    bool
	Bypassed     bool
	Degraded     bool
	QualityScore *float64
	CacheEntry   *domain.CacheEntry
	Attempt      *domain.Attempt
}

// Orchestrator sequences the pipeline. It holds no per-request state and is
// safe for concurrent use.
type Orchestrator struct {
	repo    store.Repository
	gateway generation.Gateway
	gate    quality.Gate
	metrics *observability.Metrics
	logger  *slog.Logger
	opts    Options
	newID   func() string
}

// New creates an orchestrator. A nil gate accepts every candidate.
func New(repo store.Repository, gateway generation.Gateway, gate quality.Gate,
	metrics *observability.Metrics, logger *slog.Logger, opts Options) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	if gate == nil {
		gate = quality.AlwaysAccept
	}
	if metrics == nil {
		metrics = observability.NewNopMetrics()
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = DefaultOptions().RequestTimeout
	}
	if opts.GenerationRetries < 0 {
		opts.GenerationRetries = 0
	}
	return &Orchestrator{
		repo:    repo,
		gateway: gateway,
		gate:    gate,
		metrics: metrics,
		logger:  logger,
		opts:    opts,
		newID:   uuid.NewString,
	}
}

type state int

const (
	stateCheckCache state = iota
	stateGenerate
	stateQualityFilter
	statePersist
	stateDone
)

func (s state) String() string {
	switch s {
	case stateCheckCache:
		return "check_cache"
	case stateGenerate:
		return "generate"
	case stateQualityFilter:
		return "quality_filter"
	case statePersist:
		return "persist"
	case stateDone:
		return "done"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// run carries the mutable state of a single request.
type run struct {
	req domain.GenerationRequest
	key string

	generationFailures int
	qualityRetries     int
	lastGenErr         error

	candidate    string
	hasCandidate bool
	score        *float64
	strategy     domain.Strategy

	result Result
	err    error
}

// Generate runs the pipeline for req. On generation failure after the retry
// budget it returns a degraded Result carrying the fallback text together
// with an error wrapping domain.ErrGenerationUnavailable.
func (o *Orchestrator) Generate(ctx context.Context, req domain.GenerationRequest) (*Result, error) {
	if strings.TrimSpace(req.Text) == "" {
		return nil, domain.ErrEmptyText
	}
	if req.SessionID == "" {
		req.SessionID = o.newID()
	}

	start := time.Now()
	defer func() {
		o.metrics.EnhanceDurationSeconds.Observe(time.Since(start).Seconds())
	}()

	if LooksLikeCode(req.Text) {
		o.logger.Info("Input looks like code, bypassing enhancement", "session_id", req.SessionID)
		o.metrics.RequestsTotal.WithLabelValues(observability.OutcomeBypassed).Inc()
		return &Result{Text: req.Text, SessionID: req.SessionID, Bypassed: true}, nil
	}

	ctx, cancel := context.WithTimeout(ctx, o.opts.RequestTimeout)
	defer cancel()

	r := &run{
		req:      req,
		key:      req.CacheKey(),
		strategy: domain.StrategyInitial,
		result:   Result{SessionID: req.SessionID},
	}
	if req.IsReroll {
		r.strategy = domain.StrategyReroll
	}

	for s := stateCheckCache; s != stateDone; {
		next := o.step(ctx, r, s)
		o.logger.Debug("Orchestrator transition", "session_id", req.SessionID, "from", s.String(), "to", next.String())
		s = next
	}

	o.metrics.RequestsTotal.WithLabelValues(outcome(r)).Inc()
	if r.err != nil && !r.result.Degraded {
		return nil, r.err
	}
	return &r.result, r.err
}

func outcome(r *run) string {
	switch {
	case r.result.Degraded:
		return observability.OutcomeDegraded
	case r.err != nil:
		return observability.OutcomeError
	case r.result.FromCache:
		return observability.OutcomeCacheHit
	default:
		return observability.OutcomeGenerated
	}
}

func (o *Orchestrator) step(ctx context.Context, r *run, s state) state {
	switch s {
	case stateCheckCache:
		return o.checkCache(ctx, r)
	case stateGenerate:
		return o.generate(ctx, r)
	case stateQualityFilter:
		return o.qualityFilter(ctx, r)
	case statePersist:
		return o.persist(ctx, r)
	default:
		r.err = fmt.Errorf("unknown orchestrator state %s", s)
		return stateDone
	}
}

func (o *Orchestrator) checkCache(ctx context.Context, r *run) state {
	// A reroll must not be answered with the text the user just rejected.
	if r.req.IsReroll {
		return stateGenerate
	}

	entry, err := o.repo.GetCacheEntry(ctx, r.key)
	if err != nil {
		o.logger.Warn("Cache lookup failed, generating", "session_id", r.req.SessionID, "error", err)
		return stateGenerate
	}
	if entry == nil {
		return stateGenerate
	}

	attempt, err := o.repo.RecordAttempt(ctx, &domain.Attempt{
		CacheEntryID: entry.ID,
		UserID:       r.req.UserID,
		SessionID:    r.req.SessionID,
		Strategy:     domain.StrategyCacheHit,
		UserAction:   domain.ActionAccepted,
	})
	if err != nil {
		r.err = fmt.Errorf("record cache hit: %w", err)
		return stateDone
	}

	o.logger.Info("Cache hit", "session_id", r.req.SessionID, "cache_entry_id", entry.ID)
	r.result.Text = entry.GeneratedText
	r.result.FromCache = true
	r.result.CacheEntry = entry
	r.result.Attempt = attempt
	return stateDone
}

func (o *Orchestrator) generate(ctx context.Context, r *run) state {
	out, err := o.gateway.Generate(ctx, generation.Request{
		Text:           r.key,
		IsReroll:       r.req.IsReroll,
		PreviousOutput: r.req.PriorGeneratedText,
	})
	if err == nil {
		o.metrics.GenerationCallsTotal.WithLabelValues("success").Inc()
		r.candidate = out
		r.hasCandidate = true
		return stateQualityFilter
	}

	o.metrics.GenerationCallsTotal.WithLabelValues("error").Inc()
	r.generationFailures++
	r.lastGenErr = err
	o.logger.Warn("Generation failed",
		"session_id", r.req.SessionID,
		"failures", r.generationFailures,
		"error", err)

	if r.generationFailures <= o.opts.GenerationRetries && ctx.Err() == nil {
		return stateGenerate
	}

	// A quality retry failed to generate; keep the earlier candidate.
	if r.hasCandidate {
		return statePersist
	}

	r.result.Text = domain.FallbackText(r.req.Text)
	r.result.Degraded = true
	r.err = fmt.Errorf("%w: %d attempts: %w", domain.ErrGenerationUnavailable, r.generationFailures, r.lastGenErr)
	o.logger.Error("Generation budget exhausted", "session_id", r.req.SessionID, "error", r.err)
	return stateDone
}

func (o *Orchestrator) qualityFilter(ctx context.Context, r *run) state {
	p, err := o.gate.Score(ctx, r.key, r.candidate)
	if err == nil && (math.IsNaN(p) || p < 0 || p > 1) {
		err = fmt.Errorf("probability %v out of range", p)
	}
	if err != nil {
		// Fail open: never block persistence on the classifier.
		o.metrics.QualityGateFailuresTotal.Inc()
		o.logger.Warn("Quality gate unavailable, accepting candidate",
			"session_id", r.req.SessionID,
			"error", fmt.Errorf("%w: %w", domain.ErrQualityGateUnavailable, err))
		p = 1.0
	}
	o.metrics.QualityScore.Observe(p)
	r.score = &p

	if p >= QualityThreshold || r.qualityRetries >= MaxQualityRetries {
		return statePersist
	}

	r.qualityRetries++
	r.strategy = domain.StrategyQualityRetry
	o.metrics.QualityRetriesTotal.Inc()
	o.logger.Info("Low quality score, regenerating",
		"session_id", r.req.SessionID,
		"score", p,
		"threshold", QualityThreshold)
	return stateGenerate
}

func (o *Orchestrator) persist(ctx context.Context, r *run) state {
	// Generation may have used most of the request deadline.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()

	entry, err := o.upsertCacheEntry(ctx, r)
	if err != nil {
		r.err = fmt.Errorf("persist cache entry: %w", err)
		return stateDone
	}

	attempt, err := o.repo.RecordAttempt(ctx, &domain.Attempt{
		CacheEntryID: entry.ID,
		UserID:       r.req.UserID,
		SessionID:    r.req.SessionID,
		Strategy:     r.strategy,
		UserAction:   domain.ActionAccepted,
		QualityScore: r.score,
	})
	if err != nil {
		r.err = fmt.Errorf("record attempt: %w", err)
		return stateDone
	}

	r.result.Text = entry.GeneratedText
	r.result.CacheEntry = entry
	r.result.Attempt = attempt
	r.result.QualityScore = r.score
	o.logger.Info("Enhancement persisted",
		"session_id", r.req.SessionID,
		"cache_entry_id", entry.ID,
		"strategy", r.strategy)
	return stateDone
}

// upsertCacheEntry is insert-or-fetch. A reroll overwrites the stored text;
// a first generation that loses an insert race adopts the winner's row.
func (o *Orchestrator) upsertCacheEntry(ctx context.Context, r *run) (*domain.CacheEntry, error) {
	if r.req.IsReroll {
		existing, err := o.repo.GetCacheEntry(ctx, r.key)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return o.repo.UpdateCacheEntry(ctx, existing.ID, r.candidate)
		}
	}

	entry, err := o.repo.CreateCacheEntry(ctx, r.key, r.candidate)
	if err == nil {
		return entry, nil
	}
	if !errors.Is(err, domain.ErrCacheConflict) {
		return nil, err
	}

	o.metrics.CacheConflictsTotal.Inc()
	existing, err := o.repo.GetCacheEntry(ctx, r.key)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, fmt.Errorf("cache entry vanished after conflict: %w", domain.ErrCacheEntryNotFound)
	}
	o.logger.Debug("Cache insert lost race, using existing row",
		"session_id", r.req.SessionID,
		"cache_entry_id", existing.ID)

	if r.req.IsReroll {
		return o.repo.UpdateCacheEntry(ctx, existing.ID, r.candidate)
	}
	return existing, nil
}
