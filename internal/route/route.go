// Package route ties the pipeline together: decompose a request, gate each
// sub-request, attempt the local tier, validate and repair, escalate the
// failing subset to the remote tier, and merge. The orchestrator is
// request-scoped and safe for concurrent use.
package route

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/tandem-ai/tandem/internal/catalog"
	"github.com/tandem-ai/tandem/internal/complexity"
	"github.com/tandem-ai/tandem/internal/decompose"
	"github.com/tandem-ai/tandem/internal/fncall"
	"github.com/tandem-ai/tandem/internal/gate"
	"github.com/tandem-ai/tandem/internal/inference"
	"github.com/tandem-ai/tandem/internal/merge"
	"github.com/tandem-ai/tandem/internal/repair"
	"github.com/tandem-ai/tandem/internal/validate"
)

// SourceComplexitySkip tags a result where every sub-request bypassed the
// local tier on the gate's verdict alone.
const SourceComplexitySkip = "cloud (complexity skip)"

// Options bound the orchestrator's resource use.
type Options struct {
	// MaxParallel caps concurrent sub-request workers. 0 means one worker
	// per sub-request.
	MaxParallel int
	// AttemptTimeout bounds a single inference attempt on either tier.
	// A timed-out attempt counts as a validation failure.
	AttemptTimeout time.Duration
	// LocalAttempts is the local try budget per sub-request.
	LocalAttempts int
	// NarrowCatalog exposes only the hinted tool to the local tier when a
	// keyword hint exists.
	NarrowCatalog bool
	// Knobs are the generation settings for both tiers.
	Knobs inference.Knobs
}

// DefaultOptions returns the production bounds.
func DefaultOptions() Options {
	return Options{
		MaxParallel:    4,
		AttemptTimeout: 8 * time.Second,
		LocalAttempts:  2,
		NarrowCatalog:  true,
		Knobs:          inference.Knobs{MaxTokens: 512},
	}
}

// CallOrigin names the tier that produced one merged call.
type CallOrigin struct {
	Tool   string `json:"tool"`
	Tier   string `json:"tier"`
	Intent int    `json:"intent"`
}

// FinalResult is the merged outcome of one routed request.
type FinalResult struct {
	FunctionCalls []fncall.Call `json:"function_calls"`
	// TotalTimeMS sums the reported time of every attempt on every tier,
	// including failed ones.
	TotalTimeMS float64 `json:"total_time_ms"`
	// Source is "on-device", "cloud", "hybrid", SourceComplexitySkip, or
	// "none" when no tier produced a call.
	Source string `json:"source"`
	// LocalConfidence is the mean confidence of accepted local results.
	LocalConfidence float64 `json:"local_confidence,omitempty"`
	// FallbackReason explains why escalation happened, when it did.
	FallbackReason string       `json:"fallback_reason,omitempty"`
	Breakdown      []CallOrigin `json:"breakdown,omitempty"`
}

// Orchestrator routes requests across the local and remote tiers.
type Orchestrator struct {
	cat    *catalog.Catalog
	local  inference.Adapter
	remote inference.Adapter
	gate   gate.Gate
	est    *complexity.Estimator
	dec    *decompose.Decomposer
	val    *validate.Validator
	rep    *repair.Engine
	retry  inference.Retryer
	opts   Options
	events *EventLogger
}

// New builds an orchestrator. Either adapter may be nil, degrading to a
// single-tier router; the gate and estimator are required.
func New(cat *catalog.Catalog, local, remote inference.Adapter, g gate.Gate, est *complexity.Estimator, opts Options) *Orchestrator {
	if opts.LocalAttempts < 1 {
		opts.LocalAttempts = 1
	}
	if opts.AttemptTimeout <= 0 {
		opts.AttemptTimeout = DefaultOptions().AttemptTimeout
	}
	return &Orchestrator{
		cat:    cat,
		local:  local,
		remote: remote,
		gate:   g,
		est:    est,
		dec:    decompose.New(cat),
		val:    validate.New(cat),
		rep:    repair.New(cat),
		retry:  inference.DefaultRetryer(),
		opts:   opts,
	}
}

// SetRetryer overrides the transient-failure retry policy.
func (o *Orchestrator) SetRetryer(r inference.Retryer) { o.retry = r }

// SetEventLogger attaches a logger for routing events. Nil disables logging.
func (o *Orchestrator) SetEventLogger(el *EventLogger) { o.events = el }

// Close releases the local adapter's resources, if it owns any.
func (o *Orchestrator) Close() error {
	if la, ok := o.local.(inference.LocalAdapter); ok {
		return la.Close()
	}
	return nil
}

// subOutcome is the per-sub-request result of the local phase.
type subOutcome struct {
	sub        decompose.SubRequest
	calls      []fncall.Call
	confidence float64
	latencyMS  float64
	failed     bool
	skipped    bool // gate verdict, no local attempt made
	reason     string
}

// Route runs the full pipeline for one request.
func (o *Orchestrator) Route(ctx context.Context, text string) (*FinalResult, error) {
	o.events.Log(EventRouteStart, map[string]any{"text": text})

	subs := o.dec.Decompose(text)
	if len(subs) == 0 {
		return &FinalResult{Source: merge.SourceNone}, nil
	}
	o.events.Log(EventDecompose, map[string]any{"count": len(subs), "subs": subTexts(subs)})

	outcomes := o.localPhase(ctx, subs)

	var (
		localAttr []merge.Attributed
		failed    []subOutcome
		latencyMS float64
		confSum   float64
		confN     int
		allSkip   = true
	)
	for _, out := range outcomes {
		latencyMS += out.latencyMS
		if !out.skipped {
			allSkip = false
		}
		if out.failed {
			failed = append(failed, out)
			continue
		}
		confSum += out.confidence
		confN++
		for _, c := range out.calls {
			localAttr = append(localAttr, merge.Attributed{Call: c, Tier: merge.TierLocal, Intent: out.sub.Index})
		}
	}

	fallbackReason := ""
	var remoteAttr []merge.Attributed
	if len(failed) > 0 {
		fallbackReason = failed[0].reason
		o.events.Log(EventEscalation, map[string]any{"count": len(failed), "reason": fallbackReason})

		attr, remoteMS, remoteErr := o.escalate(ctx, failed)
		remoteAttr = attr
		latencyMS += remoteMS
		if remoteErr != nil {
			fallbackReason = fmt.Sprintf("%s; remote: %v", fallbackReason, remoteErr)
			o.events.Log(EventError, map[string]any{"stage": "escalate", "error": remoteErr.Error()})
		}
	}

	merged := merge.Merge(localAttr, remoteAttr)
	result := &FinalResult{
		FunctionCalls:  merged.Plain(),
		TotalTimeMS:    latencyMS,
		Source:         merged.Source,
		FallbackReason: fallbackReason,
		Breakdown:      breakdown(merged),
	}
	if confN > 0 {
		result.LocalConfidence = confSum / float64(confN)
	}
	if allSkip && merged.LocalCount() == 0 {
		result.Source = SourceComplexitySkip
	}

	o.events.Log(EventRouteDone, map[string]any{
		"calls":    len(result.FunctionCalls),
		"source":   result.Source,
		"total_ms": result.TotalTimeMS,
	})
	return result, nil
}

// localPhase fans the sub-requests out to a bounded worker pool and joins
// on all of them before returning.
func (o *Orchestrator) localPhase(ctx context.Context, subs []decompose.SubRequest) []subOutcome {
	workers := o.opts.MaxParallel
	if workers <= 0 || workers > len(subs) {
		workers = len(subs)
	}

	outcomes := make([]subOutcome, len(subs))
	sem := make(chan struct{}, workers)
	var wg sync.WaitGroup
	for i, sub := range subs {
		wg.Add(1)
		go func(i int, sub decompose.SubRequest) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			outcomes[i] = o.routeSub(ctx, sub)
		}(i, sub)
	}
	wg.Wait()
	return outcomes
}

// routeSub runs gate → fast repair → local attempts → validate → repair for
// one sub-request.
func (o *Orchestrator) routeSub(ctx context.Context, sub decompose.SubRequest) subOutcome {
	out := subOutcome{sub: sub}

	subCat := o.cat
	if o.opts.NarrowCatalog && sub.ToolHint != "" && o.cat.Has(sub.ToolHint) {
		subCat = o.cat.Subset(sub.ToolHint)
	}

	features, score := o.est.Estimate(sub.Text, subCat)
	decision := o.gate.Decide(features, score)
	o.events.Log(EventGateDecision, map[string]any{
		"intent": sub.Index, "attempt_local": decision.AttemptLocal,
		"value": decision.Value, "bar": decision.AcceptBar, "reason": decision.Reason,
	})
	if !decision.AttemptLocal {
		out.failed = true
		out.skipped = true
		out.reason = decision.Reason
		return out
	}

	// Zero-latency fast path: lexically unambiguous requests never need a
	// model at all.
	if sub.ToolHint != "" {
		if call, ok := o.rep.Extract(sub.Text, sub.ToolHint); ok {
			if o.val.Result([]fncall.Call{call}, sub.Text, 1) == nil {
				o.events.Log(EventFastPath, map[string]any{"intent": sub.Index, "tool": call.Name})
				out.calls = []fncall.Call{call}
				out.confidence = 1.0
				return out
			}
		}
	}

	if o.local == nil {
		out.failed = true
		out.reason = "local tier unavailable"
		return out
	}

	out.reason = "local attempts exhausted"
	for attempt := 0; attempt < o.opts.LocalAttempts; attempt++ {
		res, elapsedMS, err := o.attempt(ctx, o.local, sub.Text, subCat)
		out.latencyMS += elapsedMS
		if err != nil {
			out.reason = fmt.Sprintf("local attempt %d: %v", attempt+1, err)
			o.events.Log(EventLocalAttempt, map[string]any{"intent": sub.Index, "attempt": attempt + 1, "error": err.Error()})
			continue
		}

		calls := o.canonicalized(res.Calls, sub.Text)
		o.events.Log(EventLocalAttempt, map[string]any{
			"intent": sub.Index, "attempt": attempt + 1,
			"calls": len(calls), "confidence": res.Confidence,
		})

		verr := o.val.Result(calls, sub.Text, 1)
		if verr == nil {
			if res.Confidence < decision.AcceptBar {
				out.reason = fmt.Sprintf("confidence %.2f below bar %.2f", res.Confidence, decision.AcceptBar)
				continue
			}
			out.calls = calls
			out.confidence = res.Confidence
			return out
		}
		o.events.Log(EventValidation, map[string]any{"intent": sub.Index, "error": verr.Error()})
		out.reason = verr.Error()

		if validate.IsSchema(verr) {
			// The shape itself is wrong. Repair cannot help; escalate.
			return failSub(out)
		}

		if repaired, ok := o.repairCalls(calls, sub); ok {
			o.events.Log(EventRepair, map[string]any{"intent": sub.Index, "calls": len(repaired)})
			out.calls = repaired
			out.confidence = res.Confidence
			return out
		}
	}
	return failSub(out)
}

func failSub(out subOutcome) subOutcome {
	out.failed = true
	out.calls = nil
	return out
}

// repairCalls re-extracts semantically invalid calls from the text and
// revalidates the result. One attempt; failure means escalation.
func (o *Orchestrator) repairCalls(calls []fncall.Call, sub decompose.SubRequest) ([]fncall.Call, bool) {
	repaired := make([]fncall.Call, 0, len(calls))
	for _, c := range calls {
		if o.val.Call(c, sub.Text) == nil {
			repaired = append(repaired, c)
			continue
		}
		fixed, ok := o.rep.Extract(sub.Text, c.Name)
		if !ok {
			return nil, false
		}
		repaired = append(repaired, fixed)
	}
	if len(repaired) == 0 && sub.ToolHint != "" {
		if fixed, ok := o.rep.Extract(sub.Text, sub.ToolHint); ok {
			repaired = append(repaired, fixed)
		}
	}
	repaired = fncall.Dedup(repaired)
	if o.val.Result(repaired, sub.Text, 1) != nil {
		return nil, false
	}
	return repaired, true
}

// escalate sends each failed sub-request to the remote tier in parallel.
// Remote calls must still pass the schema stage; semantic checks apply only
// to the local tier.
func (o *Orchestrator) escalate(ctx context.Context, failed []subOutcome) ([]merge.Attributed, float64, error) {
	if o.remote == nil {
		return nil, 0, fmt.Errorf("remote tier unavailable")
	}

	type remoteOutcome struct {
		attr      []merge.Attributed
		latencyMS float64
		err       error
	}
	results := make([]remoteOutcome, len(failed))
	var wg sync.WaitGroup
	for i, out := range failed {
		wg.Add(1)
		go func(i int, out subOutcome) {
			defer wg.Done()
			var res *inference.Result
			var elapsedMS float64
			err := o.retry.Do(ctx, func(ctx context.Context) error {
				var aerr error
				res, elapsedMS, aerr = o.attempt(ctx, o.remote, out.sub.Text, o.cat)
				results[i].latencyMS += elapsedMS
				return aerr
			})
			if err != nil {
				results[i].err = err
				return
			}
			for _, c := range o.canonicalized(res.Calls, out.sub.Text) {
				if verr := o.val.Schema(c); verr != nil {
					o.events.Log(EventValidation, map[string]any{
						"intent": out.sub.Index, "tier": string(merge.TierRemote), "error": verr.Error(),
					})
					continue
				}
				results[i].attr = append(results[i].attr, merge.Attributed{
					Call: c, Tier: merge.TierRemote, Intent: out.sub.Index,
				})
			}
		}(i, out)
	}
	wg.Wait()

	var attr []merge.Attributed
	var latencyMS float64
	var firstErr error
	for _, r := range results {
		attr = append(attr, r.attr...)
		latencyMS += r.latencyMS
		if r.err != nil && firstErr == nil {
			firstErr = r.err
		}
	}
	return attr, latencyMS, firstErr
}

// attempt runs one timed, timeout-bounded inference call.
func (o *Orchestrator) attempt(ctx context.Context, a inference.Adapter, text string, cat *catalog.Catalog) (*inference.Result, float64, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, o.opts.AttemptTimeout)
	defer cancel()

	start := time.Now()
	res, err := a.Generate(attemptCtx, inference.UserMessage(text), cat, o.opts.Knobs)
	elapsedMS := float64(time.Since(start)) / float64(time.Millisecond)
	if res != nil && res.LatencyMS > 0 {
		elapsedMS = res.LatencyMS
	}
	return res, elapsedMS, err
}

// canonicalized applies the repair engine's quirk fixes and dedup, so model
// output and text-extracted calls compare equal under the dedup key.
func (o *Orchestrator) canonicalized(calls []fncall.Call, text string) []fncall.Call {
	out := make([]fncall.Call, 0, len(calls))
	for _, c := range calls {
		out = append(out, o.rep.Canonicalize(c, text))
	}
	return fncall.Dedup(out)
}

func breakdown(m merge.Result) []CallOrigin {
	origins := make([]CallOrigin, 0, len(m.Calls))
	for _, a := range m.Calls {
		origins = append(origins, CallOrigin{Tool: a.Call.Name, Tier: string(a.Tier), Intent: a.Intent})
	}
	return origins
}

func subTexts(subs []decompose.SubRequest) []string {
	texts := make([]string, 0, len(subs))
	for _, s := range subs {
		texts = append(texts, s.Text)
	}
	return texts
}
