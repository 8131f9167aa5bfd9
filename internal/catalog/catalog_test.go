package catalog

import "testing"

func TestBuiltinCatalogLoads(t *testing.T) {
	c := Builtin()
	if c.Len() != 7 {
		t.Fatalf("expected 7 builtin tools, got %d", c.Len())
	}
	for _, name := range []string{"get_weather", "set_alarm", "set_timer", "create_reminder", "send_message", "search_contacts", "play_music"} {
		tool, ok := c.Get(name)
		if !ok {
			t.Fatalf("builtin catalog missing %q", name)
		}
		if len(tool.RequiredArgs()) == 0 {
			t.Fatalf("%q has no required args", name)
		}
	}
}

func TestSubsetPreservesOrder(t *testing.T) {
	c := Builtin().Subset("set_timer", "get_weather", "no_such_tool")
	names := c.Names()
	if len(names) != 2 || names[0] != "get_weather" || names[1] != "set_timer" {
		t.Fatalf("unexpected subset: %v", names)
	}
}

func TestCategoryOf(t *testing.T) {
	cases := []struct {
		tool string
		want Category
	}{
		{"get_weather", CategoryWeather},
		{"set_alarm", CategoryAlarm},
		{"set_timer", CategoryTimer},
		{"create_reminder", CategoryReminder},
		{"send_message", CategoryMessage},
		{"search_contacts", CategoryContacts},
		{"play_music", CategoryMusic},
	}
	c := Builtin()
	for _, tc := range cases {
		t.Run(tc.tool, func(t *testing.T) {
			tool, _ := c.Get(tc.tool)
			if got := CategoryOf(tool); got != tc.want {
				t.Fatalf("CategoryOf(%s) = %s, want %s", tc.tool, got, tc.want)
			}
		})
	}

	unknown := Tool{Name: "translate_text", Description: "Translate text between languages"}
	if got := CategoryOf(unknown); got != CategoryUnknown {
		t.Fatalf("CategoryOf(translate_text) = %s, want unknown", got)
	}
}

func TestClassifyArg(t *testing.T) {
	cases := []struct {
		arg  string
		want ArgClass
	}{
		{"hour", ArgTemporal},
		{"minutes", ArgTemporal},
		{"time", ArgTemporal},
		{"location", ArgLocation},
		{"recipient", ArgPerson},
		{"query", ArgQuery},
		{"song", ArgOther},
		{"message", ArgOther},
	}
	for _, tc := range cases {
		if got := ClassifyArg(tc.arg); got != tc.want {
			t.Fatalf("ClassifyArg(%s) = %s, want %s", tc.arg, got, tc.want)
		}
	}
}

func TestReliabilityPenaltyOrdering(t *testing.T) {
	if ReliabilityPenalty(CategoryWeather) >= ReliabilityPenalty(CategoryUnknown) {
		t.Fatal("weather should be more reliable than unknown")
	}
	if ReliabilityPenalty(CategoryUnknown) >= ReliabilityPenalty(CategoryReminder) {
		t.Fatal("unknown should be more reliable than reminders")
	}
}

func TestDuplicateNamesKeepFirst(t *testing.T) {
	c := New(
		Tool{Name: "a", Description: "first"},
		Tool{Name: "a", Description: "second"},
	)
	if c.Len() != 1 {
		t.Fatalf("expected 1 tool, got %d", c.Len())
	}
	tool, _ := c.Get("a")
	if tool.Description != "first" {
		t.Fatalf("later duplicate replaced the original: %q", tool.Description)
	}
}
