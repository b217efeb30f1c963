// Package quality scores a generated prompt against its original.
//
// A Gate returns the probability in [0,1] that a user accepts the generated
// text. The orchestrator regenerates when the score falls below its threshold
// and treats every Gate error as "accept" (fail open).
package quality

import "context"

// Gate scores a candidate enhancement.
type Gate interface {
	Score(ctx context.Context, original, generated string) (float64, error)
}

// GateFunc adapts a function to Gate.
type GateFunc func(ctx context.Context, original, generated string) (float64, error)

// Score calls f.
func (f GateFunc) Score(ctx context.Context, original, generated string) (float64, error) {
	return f(ctx, original, generated)
}

// Static always returns the same score. Used when no classifier is configured.
type Static float64

// Score implements Gate.
func (s Static) Score(context.Context, string, string) (float64, error) {
	return float64(s), nil
}

// AlwaysAccept is the gate used without a classifier.
const AlwaysAccept = Static(1.0)
