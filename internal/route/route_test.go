package route

import (
	"context"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/tandem-ai/tandem/internal/catalog"
	"github.com/tandem-ai/tandem/internal/complexity"
	"github.com/tandem-ai/tandem/internal/fncall"
	"github.com/tandem-ai/tandem/internal/gate"
	"github.com/tandem-ai/tandem/internal/inference"
	"github.com/tandem-ai/tandem/internal/merge"
)

func newOrchestrator(local, remote inference.Adapter, opts Options) *Orchestrator {
	return New(
		catalog.Builtin(),
		local, remote,
		gate.NewThreshold(gate.DefaultThresholds()),
		complexity.New(complexity.DefaultWeights()),
		opts,
	)
}

func testOptions() Options {
	opts := DefaultOptions()
	opts.AttemptTimeout = 2 * time.Second
	return opts
}

func result(conf, latencyMS float64, calls ...fncall.Call) *inference.Result {
	return &inference.Result{Calls: calls, Confidence: conf, LatencyMS: latencyMS}
}

func TestTimerFastPath(t *testing.T) {
	local := inference.NewScripted("local")
	o := newOrchestrator(local, nil, testOptions())

	res, err := o.Route(context.Background(), "Set a timer for 10 minutes.")
	if err != nil {
		t.Fatalf("Route: %v", err)
	}
	if len(res.FunctionCalls) != 1 || res.FunctionCalls[0].Name != "set_timer" {
		t.Fatalf("calls = %v", res.FunctionCalls)
	}
	if got := res.FunctionCalls[0].Arguments["minutes"]; got != 10 {
		t.Fatalf("minutes = %#v, want 10", got)
	}
	if res.Source != "on-device" {
		t.Fatalf("source = %s", res.Source)
	}
	if res.TotalTimeMS != 0 {
		t.Fatalf("fast path should cost no model time, got %v ms", res.TotalTimeMS)
	}
	if n := local.Calls("Set a timer for 10 minutes."); n != 0 {
		t.Fatalf("local model called %d times on the fast path", n)
	}
}

func TestCompoundRequestResolvedOnDevice(t *testing.T) {
	o := newOrchestrator(inference.NewScripted("local"), nil, testOptions())

	res, err := o.Route(context.Background(), "Check the weather in NYC and set an alarm for 9 AM.")
	if err != nil {
		t.Fatalf("Route: %v", err)
	}
	if len(res.FunctionCalls) != 2 {
		t.Fatalf("calls = %v", res.FunctionCalls)
	}
	weather, alarm := res.FunctionCalls[0], res.FunctionCalls[1]
	if weather.Name != "get_weather" || weather.Arguments["location"] != "NYC" {
		t.Fatalf("first call = %v", weather)
	}
	if alarm.Name != "set_alarm" || alarm.Arguments["hour"] != 9 || alarm.Arguments["minute"] != 0 {
		t.Fatalf("second call = %v", alarm)
	}
	if res.Source != "on-device" {
		t.Fatalf("source = %s", res.Source)
	}
	if len(res.Breakdown) != 2 || res.Breakdown[0].Intent == res.Breakdown[1].Intent {
		t.Fatalf("breakdown = %v", res.Breakdown)
	}
}

func TestLocalModelAcceptedAboveBar(t *testing.T) {
	const text = "set a timer for 10 moments"
	local := inference.NewScripted("local").
		On(text, result(0.95, 100, fncall.Call{Name: "set_timer", Arguments: map[string]any{"minutes": float64(10)}}), nil)
	o := newOrchestrator(local, nil, testOptions())

	res, err := o.Route(context.Background(), text)
	if err != nil {
		t.Fatalf("Route: %v", err)
	}
	if res.Source != "on-device" || len(res.FunctionCalls) != 1 {
		t.Fatalf("result = %+v", res)
	}
	if res.LocalConfidence != 0.95 {
		t.Fatalf("local confidence = %v", res.LocalConfidence)
	}
	if res.TotalTimeMS != 100 {
		t.Fatalf("total time = %v, want 100", res.TotalTimeMS)
	}
	if n := local.Calls(text); n != 1 {
		t.Fatalf("local attempts = %d, want 1", n)
	}
}

func TestLowConfidenceEscalates(t *testing.T) {
	const text = "set a timer for 10 moments"
	call := fncall.Call{Name: "set_timer", Arguments: map[string]any{"minutes": float64(10)}}
	local := inference.NewScripted("local").On(text, result(0.60, 100, call), nil)
	remote := inference.NewScripted("remote").On(text, result(1.0, 50, call), nil)
	o := newOrchestrator(local, remote, testOptions())

	res, err := o.Route(context.Background(), text)
	if err != nil {
		t.Fatalf("Route: %v", err)
	}
	if res.Source != "cloud" {
		t.Fatalf("source = %s", res.Source)
	}
	if !strings.Contains(res.FallbackReason, "below bar") {
		t.Fatalf("fallback reason = %q", res.FallbackReason)
	}
	if n := local.Calls(text); n != 2 {
		t.Fatalf("local attempts = %d, want full budget of 2", n)
	}
	// Both failed local attempts plus the remote call are billed.
	if res.TotalTimeMS != 250 {
		t.Fatalf("total time = %v, want 250", res.TotalTimeMS)
	}
}

func TestComplexitySkipBypassesLocal(t *testing.T) {
	const text = "remind me about the dentist"
	local := inference.NewScripted("local")
	remote := inference.NewScripted("remote").
		On(text, result(1.0, 40, fncall.Call{Name: "create_reminder", Arguments: map[string]any{"title": "dentist", "time": "3:00 pm"}}), nil)

	opts := testOptions()
	opts.NarrowCatalog = false
	o := newOrchestrator(local, remote, opts)

	res, err := o.Route(context.Background(), text)
	if err != nil {
		t.Fatalf("Route: %v", err)
	}
	if res.Source != SourceComplexitySkip {
		t.Fatalf("source = %s, want %s", res.Source, SourceComplexitySkip)
	}
	if n := local.Calls(text); n != 0 {
		t.Fatalf("local tier was attempted %d times despite the skip", n)
	}
	if res.TotalTimeMS != 40 {
		t.Fatalf("total time = %v, want the remote attempt only", res.TotalTimeMS)
	}
}

func TestHybridSplit(t *testing.T) {
	const text = "check the weather in Paris and remind me about the dentist"
	remote := inference.NewScripted("remote").
		On("remind me about the dentist", result(1.0, 40, fncall.Call{Name: "create_reminder", Arguments: map[string]any{"title": "dentist", "time": "9:00 am"}}), nil)

	opts := testOptions()
	opts.NarrowCatalog = false
	o := newOrchestrator(inference.NewScripted("local"), remote, opts)

	res, err := o.Route(context.Background(), text)
	if err != nil {
		t.Fatalf("Route: %v", err)
	}
	if res.Source != "hybrid" {
		t.Fatalf("source = %s, want hybrid", res.Source)
	}
	if len(res.FunctionCalls) != 2 {
		t.Fatalf("calls = %v", res.FunctionCalls)
	}
	tiers := map[string]string{}
	for _, b := range res.Breakdown {
		tiers[b.Tool] = b.Tier
	}
	if tiers["get_weather"] != "on-device" || tiers["create_reminder"] != "cloud" {
		t.Fatalf("breakdown = %v", res.Breakdown)
	}
}

func TestDeterministicRouting(t *testing.T) {
	const text = "check the weather in Paris and remind me about the dentist"
	newRouter := func() *Orchestrator {
		remote := inference.NewScripted("remote").
			On("remind me about the dentist", result(1.0, 40, fncall.Call{Name: "create_reminder", Arguments: map[string]any{"title": "dentist", "time": "9:00 am"}}), nil)
		opts := testOptions()
		opts.NarrowCatalog = false
		return newOrchestrator(inference.NewScripted("local"), remote, opts)
	}

	first, err := newRouter().Route(context.Background(), text)
	if err != nil {
		t.Fatalf("Route: %v", err)
	}
	second, err := newRouter().Route(context.Background(), text)
	if err != nil {
		t.Fatalf("Route: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("routing not deterministic:\n first = %+v\nsecond = %+v", first, second)
	}
}

func TestUnknownToolRejectedRegardlessOfConfidence(t *testing.T) {
	const text = "set a timer for 10 moments"
	local := inference.NewScripted("local").
		On(text, result(1.0, 100, fncall.Call{Name: "launch_rocket", Arguments: map[string]any{"target": "moon"}}), nil)
	remote := inference.NewScripted("remote").
		On(text, result(1.0, 50, fncall.Call{Name: "set_timer", Arguments: map[string]any{"minutes": float64(10)}}), nil)
	o := newOrchestrator(local, remote, testOptions())

	res, err := o.Route(context.Background(), text)
	if err != nil {
		t.Fatalf("Route: %v", err)
	}
	for _, c := range res.FunctionCalls {
		if c.Name == "launch_rocket" {
			t.Fatalf("unknown tool surfaced: %v", res.FunctionCalls)
		}
	}
	if res.Source != "cloud" || len(res.FunctionCalls) != 1 {
		t.Fatalf("result = %+v", res)
	}
}

func TestRemoteCallMissingRequiredArgDropped(t *testing.T) {
	const text = "remind me about the dentist"
	remote := inference.NewScripted("remote").
		On(text, result(1.0, 40, fncall.Call{Name: "create_reminder", Arguments: map[string]any{"title": "dentist"}}), nil)

	opts := testOptions()
	opts.NarrowCatalog = false
	o := newOrchestrator(inference.NewScripted("local"), remote, opts)

	res, err := o.Route(context.Background(), text)
	if err != nil {
		t.Fatalf("Route: %v", err)
	}
	for _, c := range res.FunctionCalls {
		if c.Name == "create_reminder" {
			t.Fatalf("call missing required argument surfaced: %v", res.FunctionCalls)
		}
	}
	if len(res.FunctionCalls) != 0 {
		t.Fatalf("calls = %v", res.FunctionCalls)
	}
}

func TestUngroundedLocalResultEscalates(t *testing.T) {
	const text = "let Tom know I'm running late"
	local := inference.NewScripted("local").
		On(text, result(0.99, 80, fncall.Call{Name: "send_message", Arguments: map[string]any{"recipient": "Tom", "message": "buy milk"}}), nil)
	remote := inference.NewScripted("remote").
		On(text, result(1.0, 60, fncall.Call{Name: "send_message", Arguments: map[string]any{"recipient": "Tom", "message": "I'm running late"}}), nil)
	o := newOrchestrator(local, remote, testOptions())

	res, err := o.Route(context.Background(), text)
	if err != nil {
		t.Fatalf("Route: %v", err)
	}
	if res.Source != "cloud" {
		t.Fatalf("source = %s", res.Source)
	}
	if !strings.Contains(res.FallbackReason, "not grounded") {
		t.Fatalf("fallback reason = %q", res.FallbackReason)
	}
	if got := res.FunctionCalls[0].Arguments["message"]; got != "I'm running late" {
		t.Fatalf("message = %#v", got)
	}
}

func TestBothTiersFailingStillReturns(t *testing.T) {
	const text = "set a timer for 10 moments"
	local := inference.NewScripted("local").On(text, nil, &inference.DecodeError{Adapter: "local", Raw: "???"})
	o := newOrchestrator(local, nil, testOptions())

	res, err := o.Route(context.Background(), text)
	if err != nil {
		t.Fatalf("Route should not fail the request: %v", err)
	}
	if len(res.FunctionCalls) != 0 {
		t.Fatalf("calls = %v", res.FunctionCalls)
	}
	if !strings.Contains(res.FallbackReason, "remote tier unavailable") {
		t.Fatalf("fallback reason = %q", res.FallbackReason)
	}
	if res.Source != merge.SourceNone {
		t.Fatalf("source = %s, want %s when no tier answered", res.Source, merge.SourceNone)
	}
}

func TestEmptyRequest(t *testing.T) {
	o := newOrchestrator(inference.NewScripted("local"), nil, testOptions())
	res, err := o.Route(context.Background(), "   ")
	if err != nil {
		t.Fatalf("Route: %v", err)
	}
	if len(res.FunctionCalls) != 0 {
		t.Fatalf("calls = %v", res.FunctionCalls)
	}
}

func TestCloseReleasesLocalAdapter(t *testing.T) {
	local := inference.NewScripted("local")
	o := newOrchestrator(local, nil, testOptions())
	if err := o.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !local.Closed() {
		t.Fatal("local adapter not closed")
	}
}

func TestEventLogRecordsRoute(t *testing.T) {
	t.Setenv("TANDEM_EVENTS_DIR", t.TempDir())

	el, err := NewEventLogger("test-session")
	if err != nil {
		t.Fatalf("NewEventLogger: %v", err)
	}
	defer el.Close()

	o := newOrchestrator(inference.NewScripted("local"), nil, testOptions())
	o.SetEventLogger(el)
	if _, err := o.Route(context.Background(), "Set a timer for 10 minutes."); err != nil {
		t.Fatalf("Route: %v", err)
	}

	events, err := el.ReadRecent(0)
	if err != nil {
		t.Fatalf("ReadRecent: %v", err)
	}
	if len(events) < 4 {
		t.Fatalf("expected a full event trail, got %d events", len(events))
	}
	if events[0].Type != EventRouteStart || events[len(events)-1].Type != EventRouteDone {
		t.Fatalf("event trail = %v ... %v", events[0].Type, events[len(events)-1].Type)
	}
	for _, evt := range events {
		if evt.SessionID != "test-session" {
			t.Fatalf("session id = %q", evt.SessionID)
		}
	}
}
