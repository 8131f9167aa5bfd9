package inference

import (
	"testing"

	"github.com/tandem-ai/tandem/internal/catalog"
)

func TestSalvageBareObject(t *testing.T) {
	cat := catalog.Builtin()
	calls := Salvage(`{"name": "set_timer", "arguments": {"minutes": 10}}`, cat)
	if len(calls) != 1 || calls[0].Name != "set_timer" {
		t.Fatalf("unexpected calls: %+v", calls)
	}
	if calls[0].Arguments["minutes"] != float64(10) {
		t.Fatalf("unexpected arguments: %+v", calls[0].Arguments)
	}
}

func TestSalvageFencedBlock(t *testing.T) {
	cat := catalog.Builtin()
	raw := "Sure, here is the call:\n```json\n{\"name\": \"get_weather\", \"arguments\": {\"location\": \"NYC\"}}\n```\nDone."
	calls := Salvage(raw, cat)
	if len(calls) != 1 || calls[0].Name != "get_weather" {
		t.Fatalf("unexpected calls: %+v", calls)
	}
}

func TestSalvageWrapperShapes(t *testing.T) {
	cat := catalog.Builtin()
	cases := []string{
		`{"function_calls": [{"name": "set_alarm", "arguments": {"hour": 9, "minute": 0}}]}`,
		`{"tool_calls": [{"function": {"name": "set_alarm", "arguments": "{\"hour\": 9, \"minute\": 0}"}}]}`,
		`[{"name": "set_alarm", "parameters": {"hour": 9, "minute": 0}}]`,
	}
	for _, raw := range cases {
		calls := Salvage(raw, cat)
		if len(calls) != 1 || calls[0].Name != "set_alarm" {
			t.Fatalf("Salvage(%q) = %+v", raw, calls)
		}
		if calls[0].Arguments["hour"] != float64(9) {
			t.Fatalf("Salvage(%q) arguments = %+v", raw, calls[0].Arguments)
		}
	}
}

func TestSalvageRejectsUnknownTool(t *testing.T) {
	cat := catalog.Builtin()
	calls := Salvage(`{"name": "launch_rocket", "arguments": {}}`, cat)
	if len(calls) != 0 {
		t.Fatalf("unknown tool should be dropped, got %+v", calls)
	}
}

func TestSalvagePlainText(t *testing.T) {
	cat := catalog.Builtin()
	if calls := Salvage("I cannot help with that.", cat); len(calls) != 0 {
		t.Fatalf("expected no calls from plain text, got %+v", calls)
	}
}

func TestSalvageDeduplicates(t *testing.T) {
	cat := catalog.Builtin()
	raw := `[{"name": "set_timer", "arguments": {"minutes": 5}}, {"name": "set_timer", "arguments": {"minutes": 5}}]`
	if calls := Salvage(raw, cat); len(calls) != 1 {
		t.Fatalf("expected dedup to 1 call, got %+v", calls)
	}
}
