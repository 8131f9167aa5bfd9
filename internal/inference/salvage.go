package inference

import (
	"strings"

	"github.com/tidwall/gjson"

	"github.com/tandem-ai/tandem/internal/catalog"
	"github.com/tandem-ai/tandem/internal/fncall"
)

// Salvage digs function calls out of raw text output from a model that did
// not use native tool-call framing: fenced JSON blocks, bare objects, arrays,
// and wrapper shapes like {"function_calls": [...]} all decode. Calls naming
// tools outside the catalog are dropped.
func Salvage(raw string, cat *catalog.Catalog) []fncall.Call {
	var calls []fncall.Call
	for _, candidate := range salvageCandidates(raw) {
		if !gjson.Valid(candidate) {
			continue
		}
		calls = collectCalls(gjson.Parse(candidate), cat)
		if len(calls) > 0 {
			break
		}
	}
	return fncall.Dedup(calls)
}

// salvageCandidates yields progressively looser slices of the raw text that
// might hold JSON: fenced blocks first, then the widest object and array
// spans.
func salvageCandidates(raw string) []string {
	var out []string

	text := raw
	for {
		start := strings.Index(text, "```")
		if start < 0 {
			break
		}
		rest := text[start+3:]
		if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
			rest = rest[nl+1:] // drop the language tag line
		}
		end := strings.Index(rest, "```")
		if end < 0 {
			break
		}
		out = append(out, strings.TrimSpace(rest[:end]))
		text = rest[end+3:]
	}

	out = append(out, strings.TrimSpace(raw))
	if i, j := strings.IndexByte(raw, '['), strings.LastIndexByte(raw, ']'); i >= 0 && j > i {
		out = append(out, raw[i:j+1])
	}
	if i, j := strings.IndexByte(raw, '{'), strings.LastIndexByte(raw, '}'); i >= 0 && j > i {
		out = append(out, raw[i:j+1])
	}
	return out
}

func collectCalls(v gjson.Result, cat *catalog.Catalog) []fncall.Call {
	var calls []fncall.Call

	appendCall := func(item gjson.Result) {
		if c, ok := callFromJSON(item, cat); ok {
			calls = append(calls, c)
		}
	}

	switch {
	case v.IsArray():
		v.ForEach(func(_, item gjson.Result) bool {
			appendCall(item)
			return true
		})
	case v.IsObject():
		for _, key := range []string{"function_calls", "tool_calls", "calls"} {
			if arr := v.Get(key); arr.IsArray() {
				arr.ForEach(func(_, item gjson.Result) bool {
					appendCall(item)
					return true
				})
				return calls
			}
		}
		appendCall(v)
	}
	return calls
}

func callFromJSON(v gjson.Result, cat *catalog.Catalog) (fncall.Call, bool) {
	name := v.Get("name")
	args := v.Get("arguments")
	if !name.Exists() {
		// OpenAI wire shape nests under "function".
		name = v.Get("function.name")
		args = v.Get("function.arguments")
	}
	if !args.Exists() {
		args = v.Get("parameters")
	}
	if !name.Exists() || !cat.Has(name.String()) {
		return fncall.Call{}, false
	}

	call := fncall.Call{Name: name.String(), Arguments: map[string]any{}}
	if args.Exists() {
		// Arguments may arrive as an object or as a JSON-encoded string.
		if args.Type == gjson.String && gjson.Valid(args.String()) {
			args = gjson.Parse(args.String())
		}
		if m, ok := args.Value().(map[string]any); ok {
			call.Arguments = m
		}
	}
	return call, true
}
