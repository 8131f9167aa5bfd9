// Package repair turns request text directly into function calls without a
// model: a deterministic extraction grammar keyed by tool category, written
// as one declarative rule table evaluated by a single engine. It serves two
// roles: a zero-latency fast path for lexically unambiguous requests, and a
// repair step after a failed local attempt before escalating to remote.
package repair

import (
	"regexp"
	"strings"

	"github.com/tandem-ai/tandem/internal/catalog"
	"github.com/tandem-ai/tandem/internal/fncall"
	"github.com/tandem-ai/tandem/internal/timeparse"
)

// rule maps a text pattern to the arguments of a call for one tool
// category. The first matching rule of a category wins.
type rule struct {
	category catalog.Category
	pattern  *regexp.Regexp
	build    func(m []string) map[string]any
}

var rules = []rule{
	{
		category: catalog.CategoryWeather,
		pattern:  regexp.MustCompile(`(?i)(?:weather|forecast)\s+(?:like\s+)?in\s+(.+?)(?:\s+and\s+|\s*[?.!]?\s*$)`),
		build: func(m []string) map[string]any {
			location := strings.TrimRight(strings.TrimSpace(m[1]), "?.")
			if location == "" {
				return nil
			}
			return map[string]any{"location": location}
		},
	},
	{
		category: catalog.CategoryTimer,
		pattern:  regexp.MustCompile(`(?i)(\d+)\s*(?:minute|min)`),
		build: func(m []string) map[string]any {
			minutes := atoi(m[1])
			if minutes < 1 || minutes > 1440 {
				return nil
			}
			return map[string]any{"minutes": minutes}
		},
	},
	{
		category: catalog.CategoryAlarm,
		pattern:  regexp.MustCompile(`(?i)\d{1,2}(?::\d{2})?\s*[ap]\.?m\.?`),
		build: func(m []string) map[string]any {
			clock, ok := timeparse.Extract(m[0])
			if !ok {
				return nil
			}
			return map[string]any{"hour": clock.Hour, "minute": clock.Minute}
		},
	},
	{
		// "Send a message to Alice saying good morning" / "text Lisa saying hi"
		category: catalog.CategoryMessage,
		pattern:  regexp.MustCompile(`(?i)(?:send\s+(?:a\s+)?message\s+to|text)\s+(\w+)\s+(?:saying|that)\s+(.+)`),
		build:    buildMessage,
	},
	{
		// "send Tom a message saying happy birthday" (after pronoun resolution)
		category: catalog.CategoryMessage,
		pattern:  regexp.MustCompile(`(?i)send\s+(\w+)\s+(?:a\s+)?message\s+saying\s+(.+)`),
		build:    buildMessage,
	},
	{
		category: catalog.CategoryContacts,
		pattern:  regexp.MustCompile(`(?i)(?:look\s+up|find|search\s+for)\s+(\w+)`),
		build: func(m []string) map[string]any {
			return map[string]any{"query": m[1]}
		},
	},
	{
		category: catalog.CategoryReminder,
		pattern:  regexp.MustCompile(`(?i)remind\s+me\s+(?:to\s+|about\s+)(.+?)\s+at\s+(\d{1,2}:\d{2}\s*[AP]\.?M\.?)`),
		build: func(m []string) map[string]any {
			title := stripFiller(strings.TrimSpace(m[1]))
			if title == "" {
				return nil
			}
			return map[string]any{"title": title, "time": normalizeTimeString(m[2])}
		},
	},
	{
		category: catalog.CategoryMusic,
		pattern:  regexp.MustCompile(`(?i)^play\s+(.+)$`),
		build: func(m []string) map[string]any {
			song := extractSong(m[1])
			if song == "" {
				return nil
			}
			return map[string]any{"song": song}
		},
	},
}

func buildMessage(m []string) map[string]any {
	message := strings.TrimRight(strings.TrimSpace(m[2]), ".")
	if message == "" {
		return nil
	}
	return map[string]any{"recipient": m[1], "message": message}
}

// Engine evaluates the rule table against a fixed catalog.
type Engine struct {
	cat *catalog.Catalog
}

// New returns an engine bound to cat.
func New(cat *catalog.Catalog) *Engine {
	return &Engine{cat: cat}
}

// Extract builds a call for toolName purely from text. Returns false when no
// rule of the tool's category matches or the tool is not in the catalog.
func (e *Engine) Extract(text, toolName string) (fncall.Call, bool) {
	tool, ok := e.cat.Get(toolName)
	if !ok {
		return fncall.Call{}, false
	}
	category := catalog.CategoryOf(tool)
	trimmed := strings.TrimRight(strings.TrimSpace(text), ".")

	for _, r := range rules {
		if r.category != category {
			continue
		}
		m := r.pattern.FindStringSubmatch(trimmed)
		if m == nil {
			continue
		}
		args := r.build(m)
		if args == nil {
			continue
		}
		call := fncall.Call{Name: toolName, Arguments: args}
		return e.Canonicalize(call, text), true
	}
	return fncall.Call{}, false
}

// Canonicalize fixes known output quirks on a call so that model-produced
// and text-extracted calls are comparable under the dedup key. Values
// parseable from the text override what the model reported for time, timer
// and location arguments; both small local models and cloud models are
// known to mangle exactly these.
func (e *Engine) Canonicalize(c fncall.Call, text string) fncall.Call {
	tool, ok := e.cat.Get(c.Name)
	if !ok {
		return c
	}
	out := c.Clone()
	args := out.Arguments
	if args == nil {
		args = map[string]any{}
		out.Arguments = args
	}

	switch catalog.CategoryOf(tool) {
	case catalog.CategoryAlarm:
		if clock, ok := timeparse.Extract(text); ok {
			args["hour"] = clock.Hour
			args["minute"] = clock.Minute
		}
	case catalog.CategoryTimer:
		if m := regexp.MustCompile(`(?i)(\d+)\s*(?:minute|min)`).FindStringSubmatch(text); m != nil {
			args["minutes"] = atoi(m[1])
		}
	case catalog.CategoryWeather:
		if m := rules[0].pattern.FindStringSubmatch(strings.TrimSpace(text)); m != nil {
			if location := strings.TrimRight(strings.TrimSpace(m[1]), "?."); location != "" {
				args["location"] = location
			}
		}
	case catalog.CategoryReminder:
		if title, ok := args["title"].(string); ok {
			args["title"] = stripFiller(title)
		}
	case catalog.CategoryMessage:
		if msg, ok := args["message"].(string); ok {
			args["message"] = strings.TrimSuffix(msg, ".")
		}
	case catalog.CategoryMusic:
		if strings.HasPrefix(strings.ToLower(strings.TrimSpace(text)), "play ") {
			rest := strings.TrimSpace(text)[5:]
			if song := extractSong(rest); song != "" {
				args["song"] = song
			}
		}
	}
	return out
}

// stripFiller removes leading filler words that models prepend to titles.
func stripFiller(title string) string {
	lower := strings.ToLower(title)
	for _, prefix := range []string{"remind me to ", "remind me about ", "the "} {
		if strings.HasPrefix(lower, prefix) {
			return title[len(prefix):]
		}
	}
	return title
}

// extractSong cleans a song/genre phrase. A leading "some" marks a trailing
// "music" as filler ("some jazz music" → "jazz"), while without it the word
// stays ("classical music" is a genre name).
func extractSong(phrase string) string {
	s := strings.TrimRight(strings.TrimSpace(phrase), ".")
	lower := strings.ToLower(s)
	hadSome := strings.HasPrefix(lower, "some ")
	if hadSome {
		s = s[5:]
		if cleaned := strings.TrimSpace(trimSuffixFold(s, " music")); cleaned != "" {
			s = cleaned
		}
	}
	return strings.TrimSpace(s)
}

func trimSuffixFold(s, suffix string) string {
	if len(s) >= len(suffix) && strings.EqualFold(s[len(s)-len(suffix):], suffix) {
		return s[:len(s)-len(suffix)]
	}
	return s
}

func normalizeTimeString(t string) string {
	t = strings.TrimSpace(t)
	// Ensure a space before the meridiem: "2:00PM" → "2:00 PM".
	return regexp.MustCompile(`(\d)([APap])`).ReplaceAllString(t, "$1 $2")
}

func atoi(s string) int {
	n := 0
	for _, r := range s {
		n = n*10 + int(r-'0')
	}
	return n
}
