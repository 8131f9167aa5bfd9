package validate

import (
	"testing"

	"github.com/tandem-ai/tandem/internal/catalog"
	"github.com/tandem-ai/tandem/internal/fncall"
)

func newValidator() *Validator {
	return New(catalog.Builtin())
}

func TestUnknownToolIsSchemaInvalid(t *testing.T) {
	v := newValidator()
	err := v.Call(fncall.Call{Name: "launch_rocket", Arguments: map[string]any{}}, "launch the rocket")
	if !IsSchema(err) {
		t.Fatalf("expected schema error, got %v", err)
	}
}

func TestMissingRequiredArgIsSchemaInvalid(t *testing.T) {
	v := newValidator()
	err := v.Call(fncall.Call{Name: "set_alarm", Arguments: map[string]any{"hour": 9}}, "")
	if !IsSchema(err) {
		t.Fatalf("expected schema error for missing minute, got %v", err)
	}
}

func TestTypeMismatchIsSchemaInvalid(t *testing.T) {
	v := newValidator()
	err := v.Call(fncall.Call{
		Name:      "set_timer",
		Arguments: map[string]any{"minutes": "ten"},
	}, "set a timer for ten minutes")
	if !IsSchema(err) {
		t.Fatalf("expected schema error for string minutes, got %v", err)
	}
}

func TestValidCallPasses(t *testing.T) {
	v := newValidator()
	err := v.Call(fncall.Call{
		Name:      "set_timer",
		Arguments: map[string]any{"minutes": float64(10)},
	}, "Set a timer for 10 minutes.")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestSchemaSkipsSemanticChecks(t *testing.T) {
	v := newValidator()
	// Ungrounded message text fails Call but is not a shape problem.
	c := fncall.Call{
		Name:      "send_message",
		Arguments: map[string]any{"recipient": "Tom", "message": "buy milk"},
	}
	if err := v.Schema(c); err != nil {
		t.Fatalf("Schema should accept a well-shaped call, got %v", err)
	}
	if err := v.Schema(fncall.Call{Name: "create_reminder", Arguments: map[string]any{"title": "dentist"}}); !IsSchema(err) {
		t.Fatalf("expected schema error for missing time, got %v", err)
	}
}

func TestNumericRanges(t *testing.T) {
	v := newValidator()
	cases := []struct {
		name string
		call fncall.Call
		ok   bool
	}{
		{"hour too large", fncall.Call{Name: "set_alarm", Arguments: map[string]any{"hour": float64(24), "minute": float64(0)}}, false},
		{"negative minute", fncall.Call{Name: "set_alarm", Arguments: map[string]any{"hour": float64(9), "minute": float64(-5)}}, false},
		{"zero timer", fncall.Call{Name: "set_timer", Arguments: map[string]any{"minutes": float64(0)}}, false},
		{"day-long timer", fncall.Call{Name: "set_timer", Arguments: map[string]any{"minutes": float64(1440)}}, true},
		{"too-long timer", fncall.Call{Name: "set_timer", Arguments: map[string]any{"minutes": float64(1441)}}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := v.Call(tc.call, "")
			if tc.ok && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !tc.ok {
				if !IsSemantic(err) {
					t.Fatalf("expected semantic error, got %v", err)
				}
			}
		})
	}
}

func TestReminderTimeShape(t *testing.T) {
	v := newValidator()
	bad := fncall.Call{
		Name:      "create_reminder",
		Arguments: map[string]any{"title": "call Mom", "time": "sometime later"},
	}
	if err := v.Call(bad, "remind me to call Mom sometime later"); !IsSemantic(err) {
		t.Fatalf("expected semantic error for non-time string, got %v", err)
	}

	good := fncall.Call{
		Name:      "create_reminder",
		Arguments: map[string]any{"title": "call Mom", "time": "3:00 pm"},
	}
	if err := v.Call(good, "remind me to call Mom at 3:00 pm"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestTitleFillerPrefixRejected(t *testing.T) {
	v := newValidator()
	call := fncall.Call{
		Name:      "create_reminder",
		Arguments: map[string]any{"title": "the meeting", "time": "3:00 pm"},
	}
	if err := v.Call(call, "remind me about the meeting at 3:00 pm"); !IsSemantic(err) {
		t.Fatalf("expected semantic error for filler prefix, got %v", err)
	}
}

func TestGroundingRejectsFabricatedValues(t *testing.T) {
	v := newValidator()
	call := fncall.Call{
		Name:      "send_message",
		Arguments: map[string]any{"recipient": "Tom", "message": "buy some milk today"},
	}
	if err := v.Call(call, "Text Tom saying running late"); !IsSemantic(err) {
		t.Fatalf("expected semantic error for ungrounded message, got %v", err)
	}

	grounded := fncall.Call{
		Name:      "send_message",
		Arguments: map[string]any{"recipient": "Tom", "message": "running late"},
	}
	if err := v.Call(grounded, "Text Tom saying running late"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestTimeAgreement(t *testing.T) {
	v := newValidator()
	wrongHour := fncall.Call{
		Name:      "set_alarm",
		Arguments: map[string]any{"hour": float64(8), "minute": float64(0)},
	}
	if err := v.Call(wrongHour, "set an alarm for 9 AM"); !IsSemantic(err) {
		t.Fatalf("expected semantic error for wrong hour, got %v", err)
	}

	right := fncall.Call{
		Name:      "set_alarm",
		Arguments: map[string]any{"hour": float64(21), "minute": float64(0)},
	}
	if err := v.Call(right, "set an alarm for 9 PM"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestResultRequiresIntentCoverage(t *testing.T) {
	v := newValidator()
	calls := []fncall.Call{
		{Name: "set_timer", Arguments: map[string]any{"minutes": float64(10)}},
	}
	if err := v.Result(calls, "Set a timer for 10 minutes.", 2); !IsSemantic(err) {
		t.Fatalf("expected semantic error for missing intent, got %v", err)
	}
	if err := v.Result(calls, "Set a timer for 10 minutes.", 1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
