package gate

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"math"
	"os"

	"github.com/tandem-ai/tandem/internal/complexity"
)

// Artifact is the trained margin-classifier parameter set. Support vectors
// are stored in standardized feature space; incoming vectors are
// standardized with Mean and Scale before kernel evaluation.
type Artifact struct {
	Mean           []float64   `json:"mean"`
	Scale          []float64   `json:"scale"`
	SupportVectors [][]float64 `json:"support_vectors"`
	DualCoef       [][]float64 `json:"dual_coef"`
	Intercept      []float64   `json:"intercept"`
	Gamma          float64     `json:"gamma"`
}

// Validate checks internal dimension agreement.
func (a *Artifact) Validate() error {
	dim := len(a.Mean)
	if dim == 0 {
		return fmt.Errorf("gate artifact: empty mean")
	}
	if len(a.Scale) != dim {
		return fmt.Errorf("gate artifact: scale has %d entries, want %d", len(a.Scale), dim)
	}
	if len(a.SupportVectors) == 0 {
		return fmt.Errorf("gate artifact: no support vectors")
	}
	for i, sv := range a.SupportVectors {
		if len(sv) != dim {
			return fmt.Errorf("gate artifact: support vector %d has %d entries, want %d", i, len(sv), dim)
		}
	}
	if len(a.DualCoef) == 0 || len(a.DualCoef[0]) != len(a.SupportVectors) {
		return fmt.Errorf("gate artifact: dual_coef does not match support vectors")
	}
	if len(a.Intercept) == 0 {
		return fmt.Errorf("gate artifact: missing intercept")
	}
	if a.Gamma <= 0 {
		return fmt.Errorf("gate artifact: gamma must be positive")
	}
	return nil
}

//go:embed gate_default.json
var defaultArtifactJSON []byte

// DefaultArtifact returns the artifact shipped with the binary.
func DefaultArtifact() (*Artifact, error) {
	return parseArtifact(defaultArtifactJSON)
}

// LoadArtifact reads a trained artifact from disk.
func LoadArtifact(path string) (*Artifact, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read gate artifact: %w", err)
	}
	return parseArtifact(raw)
}

func parseArtifact(raw []byte) (*Artifact, error) {
	var a Artifact
	if err := json.Unmarshal(raw, &a); err != nil {
		return nil, fmt.Errorf("parse gate artifact: %w", err)
	}
	if err := a.Validate(); err != nil {
		return nil, err
	}
	return &a, nil
}

// MarginGate implements the RBF margin-classifier strategy. A positive
// decision value means the request looks locally tractable.
type MarginGate struct {
	artifact *Artifact
	bar      float64
}

// NewMargin returns a margin gate using the artifact. acceptBar is the
// static confidence bar applied to local results when the gate says go.
func NewMargin(artifact *Artifact, acceptBar float64) *MarginGate {
	return &MarginGate{artifact: artifact, bar: acceptBar}
}

// DecisionValue evaluates the classifier for a raw feature vector.
func (g *MarginGate) DecisionValue(vector []float64) float64 {
	a := g.artifact
	x := make([]float64, len(vector))
	for i, v := range vector {
		s := a.Scale[i]
		if s == 0 {
			s = 1
		}
		x[i] = (v - a.Mean[i]) / s
	}

	decision := a.Intercept[0]
	for i, sv := range a.SupportVectors {
		sq := 0.0
		for j := range sv {
			d := x[j] - sv[j]
			sq += d * d
		}
		decision += a.DualCoef[0][i] * math.Exp(-a.Gamma*sq)
	}
	return decision
}

// Decide attempts local when the classifier lands on the positive side.
func (g *MarginGate) Decide(f complexity.Features, _ float64) Decision {
	v := g.DecisionValue(f.Vector())
	if v <= 0 {
		return Decision{AttemptLocal: false, Value: v, Reason: "margin skip"}
	}
	return Decision{AttemptLocal: true, AcceptBar: g.bar, Value: v}
}
