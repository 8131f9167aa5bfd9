// Package eval scores the router: call-level F1 against expected calls,
// latency and on-device aggregates, a local JSON dataset runner, and a
// client for the remote scored-session protocol.
package eval

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/tandem-ai/tandem/internal/catalog"
	"github.com/tandem-ai/tandem/internal/fncall"
	"github.com/tandem-ai/tandem/internal/route"
)

// Router is the slice of the orchestrator the evaluator needs.
type Router interface {
	Route(ctx context.Context, text string) (*route.FinalResult, error)
}

// RouterFactory builds a router for one case's tool catalog. Evaluation
// cases carry their own catalogs, so the router is rebuilt per case.
type RouterFactory func(cat *catalog.Catalog) Router

// Message mirrors the role-tagged message shape of evaluation datasets.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Case is one evaluation sample.
type Case struct {
	ID         string         `json:"id"`
	Name       string         `json:"name,omitempty"`
	Difficulty string         `json:"difficulty,omitempty"`
	Messages   []Message      `json:"messages"`
	Tools      []catalog.Tool `json:"tools"`
	Expected   []fncall.Call  `json:"expected_calls"`
}

// UserText returns the last user message of the case.
func (c Case) UserText() string {
	for i := len(c.Messages) - 1; i >= 0; i-- {
		if c.Messages[i].Role == "user" {
			return c.Messages[i].Content
		}
	}
	return ""
}

// Dataset is a collection of evaluation cases.
type Dataset struct {
	Version string `json:"version"`
	Cases   []Case `json:"cases"`
}

// LoadDataset reads and parses an evaluation dataset JSON file.
func LoadDataset(path string) (*Dataset, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read dataset: %w", err)
	}
	var ds Dataset
	if err := json.Unmarshal(raw, &ds); err != nil {
		return nil, fmt.Errorf("parse dataset: %w", err)
	}
	if len(ds.Cases) == 0 {
		return nil, fmt.Errorf("dataset has no cases")
	}
	for i := range ds.Cases {
		if strings.TrimSpace(ds.Cases[i].ID) == "" {
			ds.Cases[i].ID = fmt.Sprintf("case_%d", i+1)
		}
	}
	return &ds, nil
}

// F1 scores predicted calls against expected calls at the call level. A
// prediction is correct when an unconsumed expected call shares its dedup
// key (name plus canonically serialized arguments). Two empty lists score 1.
func F1(predicted, expected []fncall.Call) float64 {
	if len(predicted) == 0 && len(expected) == 0 {
		return 1
	}
	if len(predicted) == 0 || len(expected) == 0 {
		return 0
	}

	remaining := make(map[string]int, len(expected))
	for _, c := range expected {
		remaining[c.Key()]++
	}
	tp := 0
	for _, c := range predicted {
		k := c.Key()
		if remaining[k] > 0 {
			remaining[k]--
			tp++
		}
	}
	if tp == 0 {
		return 0
	}
	precision := float64(tp) / float64(len(predicted))
	recall := float64(tp) / float64(len(expected))
	return 2 * precision * recall / (precision + recall)
}

// CaseResult is the scored outcome for one case.
type CaseResult struct {
	ID         string        `json:"id"`
	Difficulty string        `json:"difficulty,omitempty"`
	F1         float64       `json:"f1"`
	TimeMS     float64       `json:"time_ms"`
	Source     string        `json:"source"`
	Calls      []fncall.Call `json:"calls"`
	Err        string        `json:"error,omitempty"`
}

// Summary aggregates a full evaluation run.
type Summary struct {
	Total       int     `json:"total"`
	Perfect     int     `json:"perfect"`
	AvgF1       float64 `json:"avg_f1"`
	AvgTimeMS   float64 `json:"avg_time_ms"`
	OnDevicePct float64 `json:"on_device_pct"`
}

// EvaluateDataset routes every case and scores it locally, without any
// scoring server. Cases run sequentially so per-case latency stays honest.
func EvaluateDataset(ctx context.Context, ds *Dataset, factory RouterFactory) (Summary, []CaseResult) {
	summary := Summary{Total: len(ds.Cases)}
	results := make([]CaseResult, 0, len(ds.Cases))

	var f1Sum, timeSum float64
	onDevice := 0
	for _, c := range ds.Cases {
		cr := CaseResult{ID: c.ID, Difficulty: c.Difficulty}

		r := factory(catalog.New(c.Tools...))
		out, err := r.Route(ctx, c.UserText())
		if err != nil {
			cr.Err = err.Error()
			results = append(results, cr)
			continue
		}

		cr.F1 = F1(out.FunctionCalls, c.Expected)
		cr.TimeMS = out.TotalTimeMS
		cr.Source = out.Source
		cr.Calls = out.FunctionCalls

		f1Sum += cr.F1
		timeSum += cr.TimeMS
		if cr.F1 == 1 {
			summary.Perfect++
		}
		if cr.Source == "on-device" {
			onDevice++
		}
		results = append(results, cr)
	}

	if summary.Total > 0 {
		f := float64(summary.Total)
		summary.AvgF1 = f1Sum / f
		summary.AvgTimeMS = timeSum / f
		summary.OnDevicePct = 100 * float64(onDevice) / f
	}
	return summary, results
}
