// Package inference defines the unified interface and shared types for the
// local and remote model tiers. Each adapter (ollama.go, openai.go,
// anthropic.go) converts its vendor response into a Result carrying the
// decoded function calls.
package inference

import (
	"context"

	"github.com/tandem-ai/tandem/internal/catalog"
	"github.com/tandem-ai/tandem/internal/fncall"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Message is a single message in the prompt.
type Message struct {
	Role    Role
	Content string
}

// UserMessage wraps text as a single-message user prompt.
func UserMessage(text string) []Message {
	return []Message{{Role: RoleUser, Content: text}}
}

// Knobs are the generation settings passed with each request.
type Knobs struct {
	MaxTokens   int
	Temperature float64
	Stop        []string
}

// Result is the normalized outcome of one inference attempt.
type Result struct {
	// Calls are the decoded function calls, in model output order.
	Calls []fncall.Call

	// Confidence is the tier's self-reported confidence in [0,1].
	// Remote tiers always report 1.0; they are trusted, not gated.
	Confidence float64

	// LatencyMS is the wall time of the attempt.
	LatencyMS float64

	// RawText is the model's text output, kept for diagnostics when calls
	// had to be salvaged rather than decoded natively.
	RawText string
}

// Adapter is the unified interface for a model tier.
type Adapter interface {
	// Generate runs one inference attempt. The catalog is the set of tools
	// visible to the model for this attempt.
	Generate(ctx context.Context, msgs []Message, cat *catalog.Catalog, knobs Knobs) (*Result, error)

	// Name identifies the adapter, e.g. "ollama", "openai", "anthropic".
	Name() string
}

// LocalAdapter is an Adapter owning an on-device resource that must be
// released when routing shuts down.
type LocalAdapter interface {
	Adapter
	Close() error
}
