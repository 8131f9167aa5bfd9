package inference

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/ollama/ollama/api"

	"github.com/tandem-ai/tandem/internal/catalog"
	"github.com/tandem-ai/tandem/internal/fncall"
)

// Self-reported confidence levels for the local tier. Ollama does not expose
// token probabilities over its chat API, so confidence reflects how the
// calls were obtained: native tool-call framing is trustworthy, text salvage
// much less so.
const (
	nativeCallConfidence   = 0.95
	salvagedCallConfidence = 0.60
)

// Ollama is the on-device tier backed by a local Ollama server. One handle
// is shared across workers and serialized with a mutex; small local models
// degrade badly under concurrent decode.
type Ollama struct {
	mu     sync.Mutex
	client *api.Client
	model  string
	http   *http.Client
}

// NewOllama returns a local adapter for the server at baseURL.
func NewOllama(baseURL, model string) (*Ollama, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid ollama base url %q: %w", baseURL, err)
	}
	hc := &http.Client{}
	return &Ollama{
		client: api.NewClient(u, hc),
		model:  model,
		http:   hc,
	}, nil
}

func (o *Ollama) Name() string { return "ollama" }

// Generate runs one chat turn with native tool calling. When the model
// answers in plain text instead of tool-call framing, the text is salvaged
// for embedded call JSON before giving up.
func (o *Ollama) Generate(ctx context.Context, msgs []Message, cat *catalog.Catalog, knobs Knobs) (*Result, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	tools, err := buildOllamaTools(cat)
	if err != nil {
		return nil, err
	}

	apiMsgs := make([]api.Message, len(msgs))
	for i, m := range msgs {
		apiMsgs[i] = api.Message{Role: string(m.Role), Content: m.Content}
	}

	options := map[string]any{"temperature": knobs.Temperature}
	if knobs.MaxTokens > 0 {
		options["num_predict"] = knobs.MaxTokens
	}
	if len(knobs.Stop) > 0 {
		options["stop"] = knobs.Stop
	}

	stream := false
	req := &api.ChatRequest{
		Model:    o.model,
		Messages: apiMsgs,
		Tools:    tools,
		Stream:   &stream,
		Options:  options,
	}

	var (
		calls   []fncall.Call
		rawText string
	)
	start := time.Now()
	err = o.client.Chat(ctx, req, func(resp api.ChatResponse) error {
		rawText += resp.Message.Content
		for _, tc := range resp.Message.ToolCalls {
			calls = append(calls, fncall.Call{
				Name:      tc.Function.Name,
				Arguments: map[string]any(tc.Function.Arguments),
			})
		}
		return nil
	})
	latency := float64(time.Since(start)) / float64(time.Millisecond)
	if err != nil {
		return nil, fmt.Errorf("ollama chat: %w", err)
	}

	confidence := nativeCallConfidence
	if len(calls) == 0 {
		calls = Salvage(rawText, cat)
		confidence = salvagedCallConfidence
	}
	if len(calls) == 0 {
		return nil, &DecodeError{Adapter: o.Name(), Raw: rawText}
	}

	return &Result{
		Calls:      calls,
		Confidence: confidence,
		LatencyMS:  latency,
		RawText:    rawText,
	}, nil
}

// Close releases pooled connections to the local server.
func (o *Ollama) Close() error {
	o.http.CloseIdleConnections()
	return nil
}

// buildOllamaTools converts catalog schemas into the api.Tools shape via the
// shared JSON wire format, which both sides speak.
func buildOllamaTools(cat *catalog.Catalog) (api.Tools, error) {
	wire := make([]map[string]any, 0, cat.Len())
	for _, t := range cat.Tools() {
		wire = append(wire, map[string]any{
			"type":     "function",
			"function": t,
		})
	}
	raw, err := json.Marshal(wire)
	if err != nil {
		return nil, fmt.Errorf("encode tools: %w", err)
	}
	var tools api.Tools
	if err := json.Unmarshal(raw, &tools); err != nil {
		return nil, fmt.Errorf("convert tools: %w", err)
	}
	return tools, nil
}
