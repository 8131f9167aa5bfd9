package gate

import (
	"testing"

	"github.com/tandem-ai/tandem/internal/complexity"
)

func TestNormalizeStrategy(t *testing.T) {
	cases := []struct {
		in      string
		want    Strategy
		wantErr bool
	}{
		{"", StrategyThreshold, false},
		{"threshold", StrategyThreshold, false},
		{"dynamic", StrategyThreshold, false},
		{"margin", StrategyMargin, false},
		{"SVM", StrategyMargin, false},
		{"bogus", "", true},
	}
	for _, tc := range cases {
		got, err := NormalizeStrategy(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Fatalf("NormalizeStrategy(%q) should fail", tc.in)
			}
			continue
		}
		if err != nil || got != tc.want {
			t.Fatalf("NormalizeStrategy(%q) = %q, %v", tc.in, got, err)
		}
	}
}

func TestThresholdGateFailFast(t *testing.T) {
	g := NewThreshold(DefaultThresholds())
	d := g.Decide(complexity.Features{}, 0.38)
	if d.AttemptLocal {
		t.Fatal("score at the cutoff must skip local")
	}
	if d.Reason != "complexity skip" {
		t.Fatalf("unexpected reason %q", d.Reason)
	}
}

func TestThresholdGateDynamicBar(t *testing.T) {
	g := NewThreshold(DefaultThresholds())
	d := g.Decide(complexity.Features{}, 0.2)
	if !d.AttemptLocal {
		t.Fatal("score below cutoff must attempt local")
	}
	if want := 0.85 + 0.2*0.25; d.AcceptBar != want {
		t.Fatalf("bar = %f, want %f", d.AcceptBar, want)
	}
}

func TestThresholdGateBarIsCapped(t *testing.T) {
	g := NewThreshold(Thresholds{FailFast: 0.9, Base: 0.9, Scale: 0.5, Cap: 0.95})
	d := g.Decide(complexity.Features{}, 0.5)
	if d.AcceptBar != 0.95 {
		t.Fatalf("bar = %f, want cap 0.95", d.AcceptBar)
	}
}

func TestMarginGateDecisionSign(t *testing.T) {
	a := &Artifact{
		Mean:           []float64{0, 0, 0, 0, 0, 0},
		Scale:          []float64{1, 1, 1, 1, 1, 1},
		SupportVectors: [][]float64{{0, 0, 0, 0, 0, 0}},
		DualCoef:       [][]float64{{1.0}},
		Intercept:      []float64{-0.5},
		Gamma:          1.0,
	}
	if err := a.Validate(); err != nil {
		t.Fatal(err)
	}
	g := NewMargin(a, 0.85)

	near := complexity.Features{}
	d := g.Decide(near, 0)
	if !d.AttemptLocal || d.AcceptBar != 0.85 {
		t.Fatalf("origin query should go local: %+v", d)
	}

	far := complexity.Features{IntentScore: 10}
	d = g.Decide(far, 0)
	if d.AttemptLocal {
		t.Fatalf("distant query should skip local: %+v", d)
	}
	if d.Reason != "margin skip" {
		t.Fatalf("unexpected reason %q", d.Reason)
	}
}

func TestDefaultArtifactSeparatesPrototypes(t *testing.T) {
	a, err := DefaultArtifact()
	if err != nil {
		t.Fatal(err)
	}
	g := NewMargin(a, 0.85)

	easy := complexity.Features{
		IntentScore: 0, ToolCount: 1, ArgDifficulty: 0.3,
		CategoryRank: 0, SingleTool: 1, ExplicitValue: 1,
	}
	hard := complexity.Features{
		IntentScore: 1, ToolCount: 7, ArgDifficulty: 0.7,
		CategoryRank: 5, SingleTool: 0, ExplicitValue: 0,
	}
	if d := g.Decide(easy, 0); !d.AttemptLocal {
		t.Fatalf("easy prototype rejected: value %f", d.Value)
	}
	if d := g.Decide(hard, 0); d.AttemptLocal {
		t.Fatalf("hard prototype accepted: value %f", d.Value)
	}
}

func TestArtifactValidation(t *testing.T) {
	bad := &Artifact{
		Mean:           []float64{0, 0},
		Scale:          []float64{1},
		SupportVectors: [][]float64{{0, 0}},
		DualCoef:       [][]float64{{1}},
		Intercept:      []float64{0},
		Gamma:          1,
	}
	if err := bad.Validate(); err == nil {
		t.Fatal("mismatched scale length must fail validation")
	}
}
