// Package gate decides whether a request is worth attempting on the local
// tier, and if so, what confidence bar the local result must clear.
package gate

import (
	"fmt"
	"strings"

	"github.com/tandem-ai/tandem/internal/complexity"
)

// Strategy selects the gating algorithm.
type Strategy string

const (
	// StrategyThreshold gates on the scalar complexity score with a
	// fail-fast cutoff and a dynamic acceptance bar.
	StrategyThreshold Strategy = "threshold"
	// StrategyMargin gates on an RBF margin classifier over the raw
	// feature vector, loaded from a trained artifact.
	StrategyMargin Strategy = "margin"
)

// NormalizeStrategy maps user-facing spellings onto a canonical Strategy.
func NormalizeStrategy(s string) (Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "threshold", "thresholds", "dynamic":
		return StrategyThreshold, nil
	case "margin", "svm", "classifier":
		return StrategyMargin, nil
	default:
		return "", fmt.Errorf("unknown gate strategy %q", s)
	}
}

// Decision is the gate's verdict for one request.
type Decision struct {
	// AttemptLocal is true when the local tier should be tried first.
	AttemptLocal bool
	// AcceptBar is the confidence the local result must meet or exceed.
	// Only meaningful when AttemptLocal is true.
	AcceptBar float64
	// Value is the quantity the verdict was derived from: the complexity
	// score for the threshold strategy, the classifier decision value for
	// the margin strategy.
	Value float64
	// Reason explains a skip verdict; empty when attempting local.
	Reason string
}

// Gate is implemented by both strategies.
type Gate interface {
	Decide(f complexity.Features, score float64) Decision
}

// Thresholds carries the tuned constants of the threshold strategy.
type Thresholds struct {
	// FailFast skips the local tier outright at or above this complexity.
	FailFast float64 `yaml:"fail_fast"`
	// Base and Scale form the dynamic acceptance bar base + score*scale.
	Base  float64 `yaml:"base"`
	Scale float64 `yaml:"scale"`
	// Cap bounds the acceptance bar from above.
	Cap float64 `yaml:"cap"`
}

// DefaultThresholds returns the tuned production constants.
func DefaultThresholds() Thresholds {
	return Thresholds{
		FailFast: 0.38,
		Base:     0.85,
		Scale:    0.25,
		Cap:      0.95,
	}
}

// ThresholdGate implements the fail-fast + dynamic-bar strategy.
type ThresholdGate struct {
	t Thresholds
}

// NewThreshold returns a threshold gate with constants t.
func NewThreshold(t Thresholds) *ThresholdGate {
	return &ThresholdGate{t: t}
}

// Decide skips the local tier when the complexity score reaches the
// fail-fast cutoff; otherwise it attempts local with a bar that rises with
// complexity, capped.
func (g *ThresholdGate) Decide(_ complexity.Features, score float64) Decision {
	if score >= g.t.FailFast {
		return Decision{
			AttemptLocal: false,
			Value:        score,
			Reason:       "complexity skip",
		}
	}
	bar := g.t.Base + score*g.t.Scale
	if bar > g.t.Cap {
		bar = g.t.Cap
	}
	return Decision{AttemptLocal: true, AcceptBar: bar, Value: score}
}
