// Package generation turns a short prompt into an enhanced prompt through an
// external text generation service.
package generation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/time/rate"
)

var errEmptyCompletion = errors.New("provider returned no completion")

// Request is one generation call.
type Request struct {
	Text           string
	IsReroll       bool
	PreviousOutput string
}

// Gateway produces enhanced text. Implementations do not retry; the
// orchestrator owns the retry budget.
type Gateway interface {
	Generate(ctx context.Context, req Request) (string, error)
}

// GatewayFunc adapts a function to Gateway.
type GatewayFunc func(ctx context.Context, req Request) (string, error)

// Generate calls f.
func (f GatewayFunc) Generate(ctx context.Context, req Request) (string, error) {
	return f(ctx, req)
}

// NamedGateway is a provider with a label for logs.
type NamedGateway struct {
	Name    string
	Gateway Gateway
}

// Chain tries providers in order within a single call and returns the first
// success. It returns the last provider's error when all fail.
type Chain struct {
	providers []NamedGateway
	logger    *slog.Logger
}

// NewChain creates a provider chain.
func NewChain(logger *slog.Logger, providers ...NamedGateway) *Chain {
	if logger == nil {
		logger = slog.Default()
	}
	return &Chain{providers: providers, logger: logger}
}

// Generate implements Gateway.
func (c *Chain) Generate(ctx context.Context, req Request) (string, error) {
	if len(c.providers) == 0 {
		return "", errors.New("no generation providers configured")
	}

	var lastErr error
	for i, p := range c.providers {
		out, err := p.Gateway.Generate(ctx, req)
		if err == nil {
			if i > 0 {
				c.logger.Info("Enhanced with fallback provider", "provider", p.Name)
			}
			return out, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
		if i < len(c.providers)-1 {
			c.logger.Warn("Generation provider failed, falling back",
				"provider", p.Name,
				"next", c.providers[i+1].Name,
				"error", err)
		}
	}
	return "", fmt.Errorf("all generation providers failed: %w", lastErr)
}

// RateLimited waits on limiter before each call to next.
func RateLimited(next Gateway, limiter *rate.Limiter) Gateway {
	return GatewayFunc(func(ctx context.Context, req Request) (string, error) {
		if err := limiter.Wait(ctx); err != nil {
			return "", fmt.Errorf("rate limit wait: %w", err)
		}
		return next.Generate(ctx, req)
	})
}
