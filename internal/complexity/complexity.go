// Package complexity scores how hard a request is for the local tier.
// The estimator turns a request text plus its visible tool catalog into a
// feature vector and a weighted scalar score in [0,1].
package complexity

import (
	"math"
	"regexp"
	"strings"

	"github.com/tandem-ai/tandem/internal/catalog"
)

// Features is the per-request feature vector. Normalized fields live in
// [0,1]; ToolCount and CategoryRank stay raw for the margin classifier,
// which standardizes them itself.
type Features struct {
	IntentScore        float64 // conjunction-delimited segments beyond the first, capped
	ArgDifficulty      float64 // mean required-arg difficulty across visible tools
	ToolPressure       float64 // visible tool count, normalized
	ReliabilityPenalty float64 // mean per-category penalty across visible tools
	ExplicitValue      float64 // 1 when text carries a numeral, proper noun or quoted span
	SingleTool         float64 // 1 when exactly one tool is visible
	ToolCount          float64 // raw visible tool count
	CategoryRank       float64 // highest category rank among visible tools
}

// Vector returns the feature layout consumed by the margin gate:
// [intent, tool_count, arg_difficulty, category, single_tool, explicit_value].
func (f Features) Vector() []float64 {
	return []float64{
		f.IntentScore,
		f.ToolCount,
		f.ArgDifficulty,
		f.CategoryRank,
		f.SingleTool,
		f.ExplicitValue,
	}
}

// Weights combines the normalized features into the scalar score. These are
// tuned values, carried in configuration rather than hard-coded call sites.
type Weights struct {
	Intent         float64 `yaml:"intent"`
	ArgDifficulty  float64 `yaml:"arg_difficulty"`
	ToolPressure   float64 `yaml:"tool_pressure"`
	Reliability    float64 `yaml:"reliability"`
	ExplicitRelief float64 `yaml:"explicit_relief"`
}

// DefaultWeights returns the tuned production weights.
func DefaultWeights() Weights {
	return Weights{
		Intent:         0.45,
		ArgDifficulty:  0.25,
		ToolPressure:   0.10,
		Reliability:    0.25,
		ExplicitRelief: 0.10,
	}
}

// toolPressureCeiling normalizes the visible tool count; catalogs at or
// above this size count as maximum pressure.
const toolPressureCeiling = 8

var (
	segmentSplit  = regexp.MustCompile(`\band\b|\bthen\b|\balso\b|\bafter\b|[,;]`)
	properNounPat = regexp.MustCompile(`\b[A-Z][a-z]+\b`)
	numeralPat    = regexp.MustCompile(`\b\d+(?:[:.]\d+)?\b`)
	quotedSpanPat = regexp.MustCompile(`['"][^'"]+['"]`)
)

// categoryRanks orders tool categories by how error-prone the local tier is
// for them; the margin gate consumes the worst rank among visible tools.
var categoryRanks = map[catalog.Category]float64{
	catalog.CategoryWeather:  0,
	catalog.CategoryMusic:    1,
	catalog.CategoryAlarm:    2,
	catalog.CategoryTimer:    3,
	catalog.CategoryReminder: 4,
	catalog.CategoryMessage:  5,
	catalog.CategoryContacts: 5,
	catalog.CategorySearch:   6,
}

const unknownCategoryRank = 7

// Estimator computes features and scores with a fixed weight set.
type Estimator struct {
	weights Weights
}

// New returns an estimator using w.
func New(w Weights) *Estimator {
	return &Estimator{weights: w}
}

// Extract computes the feature vector for text against the visible catalog.
func (e *Estimator) Extract(text string, cat *catalog.Catalog) Features {
	var f Features

	lower := strings.ToLower(text)
	segments := 0
	for _, s := range segmentSplit.Split(lower, -1) {
		if len(strings.TrimSpace(s)) >= 3 {
			segments++
		}
	}
	f.IntentScore = clamp01(float64(segments-1) / 2.0)

	var diffs []float64
	rank := float64(-1)
	penaltySum := 0.0
	for _, t := range cat.Tools() {
		for _, arg := range t.RequiredArgs() {
			diffs = append(diffs, catalog.ArgDifficulty(catalog.ClassifyArg(arg)))
		}
		tc := catalog.CategoryOf(t)
		penaltySum += catalog.ReliabilityPenalty(tc)
		r, known := categoryRanks[tc]
		if !known {
			r = unknownCategoryRank
		}
		if r > rank {
			rank = r
		}
	}
	if len(diffs) > 0 {
		sum := 0.0
		for _, d := range diffs {
			sum += d
		}
		f.ArgDifficulty = sum / float64(len(diffs))
	} else {
		f.ArgDifficulty = 0.3
	}
	if rank < 0 {
		rank = unknownCategoryRank
	}
	f.CategoryRank = rank

	n := cat.Len()
	f.ToolCount = float64(n)
	f.ToolPressure = clamp01(float64(n) / toolPressureCeiling)
	if n > 0 {
		f.ReliabilityPenalty = penaltySum / float64(n)
	} else {
		f.ReliabilityPenalty = catalog.ReliabilityPenalty(catalog.CategoryUnknown)
	}
	if n == 1 {
		f.SingleTool = 1
	}

	if properNounPat.MatchString(text) || numeralPat.MatchString(text) || quotedSpanPat.MatchString(text) {
		f.ExplicitValue = 1
	}
	return f
}

// Score collapses a feature vector into the scalar complexity score.
// Explicit values in the text relieve difficulty rather than adding to it.
func (e *Estimator) Score(f Features) float64 {
	w := e.weights
	s := w.Intent*f.IntentScore +
		w.ArgDifficulty*f.ArgDifficulty +
		w.ToolPressure*f.ToolPressure +
		w.Reliability*f.ReliabilityPenalty -
		w.ExplicitRelief*f.ExplicitValue
	return clamp01(s)
}

// Estimate is Extract followed by Score.
func (e *Estimator) Estimate(text string, cat *catalog.Catalog) (Features, float64) {
	f := e.Extract(text, cat)
	return f, e.Score(f)
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(v, 1))
}
