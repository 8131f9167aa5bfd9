package inference

import (
	"context"
	"sync"

	"github.com/tandem-ai/tandem/internal/catalog"
)

// Scripted is a deterministic Adapter for tests: it replies from a fixed
// script keyed by prompt text, with a fallback response for unknown prompts.
type Scripted struct {
	mu        sync.Mutex
	adapter   string
	responses map[string]ScriptedResponse
	fallback  *ScriptedResponse
	callCount map[string]int
	closed    bool
}

// ScriptedResponse is one canned reply.
type ScriptedResponse struct {
	Result *Result
	Err    error
}

// NewScripted returns an empty scripted adapter named name.
func NewScripted(name string) *Scripted {
	return &Scripted{
		adapter:   name,
		responses: make(map[string]ScriptedResponse),
		callCount: make(map[string]int),
	}
}

// On registers the reply for an exact prompt text.
func (s *Scripted) On(prompt string, r *Result, err error) *Scripted {
	s.responses[prompt] = ScriptedResponse{Result: r, Err: err}
	return s
}

// Fallback registers the reply for prompts with no exact entry.
func (s *Scripted) Fallback(r *Result, err error) *Scripted {
	s.fallback = &ScriptedResponse{Result: r, Err: err}
	return s
}

func (s *Scripted) Name() string { return s.adapter }

// Generate looks up the last user message in the script.
func (s *Scripted) Generate(ctx context.Context, msgs []Message, _ *catalog.Catalog, _ Knobs) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	prompt := ""
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == RoleUser {
			prompt = msgs[i].Content
			break
		}
	}

	s.mu.Lock()
	s.callCount[prompt]++
	resp, ok := s.responses[prompt]
	if !ok && s.fallback != nil {
		resp = *s.fallback
		ok = true
	}
	s.mu.Unlock()

	if !ok {
		return nil, &DecodeError{Adapter: s.adapter, Raw: prompt}
	}
	if resp.Err != nil {
		return nil, resp.Err
	}
	out := *resp.Result
	out.Calls = append(out.Calls[:0:0], resp.Result.Calls...)
	return &out, nil
}

// Calls reports how many times prompt was generated against.
func (s *Scripted) Calls(prompt string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.callCount[prompt]
}

// Close marks the adapter closed; tests assert on it.
func (s *Scripted) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Closed reports whether Close was called.
func (s *Scripted) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
