// Package fncall defines the function-call value type shared by the adapters,
// the validator, the repair engine and the merger, plus the canonical dedup key.
package fncall

import (
	"encoding/json"
	"sort"
)

// Call is a single candidate function call. Arguments are untyped until
// coerced against the matching tool schema by the validator.
type Call struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// Key returns the canonical identity of a call: the tool name plus the
// JSON serialization of its arguments with sorted keys. Two calls with the
// same key are the same call.
func (c Call) Key() string {
	raw, err := json.Marshal(canonicalize(c.Arguments))
	if err != nil {
		// Arguments that cannot serialize cannot collide meaningfully;
		// fall back to the bare name.
		return c.Name
	}
	return c.Name + "\x00" + string(raw)
}

// Clone returns a deep copy of the call so callers can mutate arguments
// without aliasing the original.
func (c Call) Clone() Call {
	out := Call{Name: c.Name}
	if c.Arguments != nil {
		out.Arguments = make(map[string]any, len(c.Arguments))
		for k, v := range c.Arguments {
			out.Arguments[k] = v
		}
	}
	return out
}

// Dedup removes duplicate calls, keeping first occurrences in order.
// Dedup(append(x, x...)) yields the same result as Dedup(x).
func Dedup(calls []Call) []Call {
	seen := make(map[string]bool, len(calls))
	out := make([]Call, 0, len(calls))
	for _, c := range calls {
		k := c.Key()
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, c)
	}
	return out
}

// canonicalize normalizes argument values so that semantically equal
// arguments serialize identically: json.Number and integral floats collapse
// to the same representation, nested maps keep sorted keys (encoding/json
// sorts map keys already, but nested slices of maps need the same treatment).
func canonicalize(v any) any {
	switch t := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		out := make(map[string]any, len(t))
		for _, k := range keys {
			out[k] = canonicalize(t[k])
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = canonicalize(e)
		}
		return out
	case json.Number:
		if f, err := t.Float64(); err == nil {
			return f
		}
		return t.String()
	case int:
		return float64(t)
	case int64:
		return float64(t)
	default:
		return v
	}
}
