// Package decompose splits a compound user request into single-intent
// sub-requests. Splitting is heuristic and fully deterministic: the same
// input always yields the same segmentation.
package decompose

import (
	"regexp"
	"strings"

	"github.com/tandem-ai/tandem/internal/catalog"
)

// SubRequest is one single-intent fragment of a user request.
type SubRequest struct {
	// Index is the fragment's position in the original request, starting at 0.
	Index int
	// Text is the fragment text with pronouns resolved.
	Text string
	// ToolHint is the catalog tool the fragment most likely maps to,
	// derived from keyword matching. Empty when no keyword matched.
	ToolHint string
}

var (
	multiSignals = []string{" and ", " also ", " then ", " plus "}

	// Oxford comma before bare "and"; the connector words are consumed by
	// the split so fragments start at the action itself.
	splitPattern = regexp.MustCompile(`,\s*and\s+|,\s+|;\s*|\s+and\s+|\s+then\s+|\s+also\s+`)

	leadingConnector = regexp.MustCompile(`(?i)^\s*(?:and|then|also|after|plus)\s+`)

	namePattern = regexp.MustCompile(`\b([A-Z][a-z]+)\b`)

	pronounPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\bhim\b`),
		regexp.MustCompile(`(?i)\bher\b`),
		regexp.MustCompile(`(?i)\bthem\b`),
	}
)

// actionVerbs are the words a fragment must open with for a split point to
// be honored. Splitting elsewhere would cut inside a single clause.
var actionVerbs = map[string]bool{
	"set": true, "send": true, "check": true, "play": true,
	"find": true, "remind": true, "text": true, "get": true,
	"search": true, "look": true, "create": true, "wake": true,
	"what": true, "tell": true,
}

// nameStoplist holds capitalized words that look like names but are not:
// sentence-leading verbs, question words and time markers.
var nameStoplist = map[string]bool{
	"Set": true, "Send": true, "Text": true, "Check": true, "Find": true,
	"Look": true, "Remind": true, "Play": true, "What": true, "How": true,
	"Get": true, "AM": true, "PM": true, "The": true, "Also": true,
	"Then": true, "And": true,
}

// Decomposer splits requests against a fixed tool catalog.
type Decomposer struct {
	cat *catalog.Catalog
}

// New returns a decomposer bound to cat.
func New(cat *catalog.Catalog) *Decomposer {
	return &Decomposer{cat: cat}
}

// Decompose splits text into ordered sub-requests. A request with no
// splittable conjunction, or whose split yields fewer than two usable
// fragments, comes back as a single sub-request carrying the original text.
// Empty input yields nil.
func (d *Decomposer) Decompose(text string) []SubRequest {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil
	}

	if !looksCompound(trimmed) {
		return []SubRequest{{Index: 0, Text: trimmed, ToolHint: d.DetectTool(trimmed)}}
	}

	fragments := splitActions(trimmed)
	if len(fragments) < 2 {
		return []SubRequest{{Index: 0, Text: trimmed, ToolHint: d.DetectTool(trimmed)}}
	}

	fragments = resolvePronouns(fragments, trimmed)

	out := make([]SubRequest, len(fragments))
	for i, f := range fragments {
		out[i] = SubRequest{Index: i, Text: f, ToolHint: d.DetectTool(f)}
	}
	return out
}

// looksCompound reports whether text carries any multi-action signal.
func looksCompound(text string) bool {
	lower := strings.ToLower(text)
	n := strings.Count(text, ",") + strings.Count(text, ";")
	for _, s := range multiSignals {
		n += strings.Count(lower, s)
	}
	return n >= 1
}

// splitActions cuts text at conjunctions and list separators, honoring a cut
// only when the following fragment opens with an action verb. Fragments that
// fail the verb gate are glued back onto their predecessor with the exact
// separator text the split consumed, so clause text survives unchanged.
func splitActions(text string) []string {
	text = strings.TrimRight(text, ". ")
	seps := splitPattern.FindAllStringIndex(text, -1)

	var merged []string
	start := 0
	prevSep := ""
	for i := 0; i <= len(seps); i++ {
		end := len(text)
		if i < len(seps) {
			end = seps[i][0]
		}
		raw := strings.TrimSpace(text[start:end])
		sep := prevSep
		if i < len(seps) {
			prevSep = text[seps[i][0]:seps[i][1]]
			start = seps[i][1]
		}

		p := strings.TrimSpace(leadingConnector.ReplaceAllString(raw, ""))
		if p == "" {
			continue
		}
		if len(merged) > 0 && !startsWithActionVerb(p) {
			merged[len(merged)-1] += sep + raw
			continue
		}
		merged = append(merged, p)
	}
	return merged
}

func startsWithActionVerb(fragment string) bool {
	first := fragment
	if i := strings.IndexAny(fragment, " \t"); i >= 0 {
		first = fragment[:i]
	}
	first = strings.ToLower(strings.Trim(first, ".,!?"))
	first = strings.TrimSuffix(first, "'s")
	return actionVerbs[first]
}

// resolvePronouns replaces him/her/them in each fragment with the most
// recently seen capitalized name. Names are collected fragment by fragment
// so a pronoun refers to the nearest name at or before its own fragment;
// a pronoun ahead of any name falls back to the first name in the request.
func resolvePronouns(fragments []string, fullText string) []string {
	all := candidateNames(fullText)
	if len(all) == 0 {
		return fragments
	}

	resolved := make([]string, len(fragments))
	recent := ""
	for i, f := range fragments {
		if local := candidateNames(f); len(local) > 0 {
			recent = local[len(local)-1]
		}
		name := recent
		if name == "" {
			name = all[0]
		}
		for _, pat := range pronounPatterns {
			f = pat.ReplaceAllString(f, name)
		}
		resolved[i] = f
	}
	return resolved
}

func candidateNames(text string) []string {
	var names []string
	for _, m := range namePattern.FindAllStringSubmatch(text, -1) {
		if !nameStoplist[m[1]] {
			names = append(names, m[1])
		}
	}
	return names
}

// toolKeywords maps a tool category to the surface keywords that suggest it.
var toolKeywords = map[catalog.Category][]string{
	catalog.CategoryWeather:  {"weather", "temperature", "forecast"},
	catalog.CategoryAlarm:    {"alarm", "wake me", "wake up"},
	catalog.CategoryMessage:  {"send", "text ", "message to", "message saying", "saying"},
	catalog.CategoryReminder: {"remind", "reminder"},
	catalog.CategoryContacts: {"search", "find", "look up", "contacts"},
	catalog.CategoryMusic:    {"play ", "music"},
	catalog.CategoryTimer:    {"timer", "countdown"},
}

// hintPriority breaks ties when a fragment matches keywords of several
// tools. More specific surface forms win over generic ones ("remind" beats
// "send", which matches almost anything with a direct object).
var hintPriority = []catalog.Category{
	catalog.CategoryReminder,
	catalog.CategoryContacts,
	catalog.CategoryTimer,
	catalog.CategoryAlarm,
	catalog.CategoryMusic,
	catalog.CategoryWeather,
	catalog.CategoryMessage,
}

// DetectTool guesses which catalog tool text maps to via keyword matching.
// Returns "" when nothing matches or the match is irreducibly ambiguous.
func (d *Decomposer) DetectTool(text string) string {
	lower := strings.ToLower(text)

	matches := make(map[catalog.Category]string)
	for _, t := range d.cat.Tools() {
		cat := catalog.CategoryOf(t)
		for _, kw := range toolKeywords[cat] {
			if strings.Contains(lower, kw) {
				if _, taken := matches[cat]; !taken {
					matches[cat] = t.Name
				}
				break
			}
		}
	}

	switch len(matches) {
	case 0:
		return ""
	case 1:
		for _, name := range matches {
			return name
		}
	}
	for _, cat := range hintPriority {
		if name, ok := matches[cat]; ok {
			return name
		}
	}
	return ""
}
