package inference

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	"github.com/tandem-ai/tandem/internal/catalog"
	"github.com/tandem-ai/tandem/internal/fncall"
)

// OpenAI is the remote tier for OpenAI-compatible APIs, including OpenAI,
// DeepSeek, Groq, Qwen, etc.
type OpenAI struct {
	client openai.Client
	model  string
	name   string
}

// NewOpenAI returns a remote adapter. An empty baseURL targets the OpenAI
// API itself.
func NewOpenAI(apiKey, baseURL, model string) *OpenAI {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	name := "openai"
	if baseURL != "" {
		switch {
		case strings.Contains(baseURL, "deepseek"):
			name = "deepseek"
		case strings.Contains(baseURL, "groq"):
			name = "groq"
		case strings.Contains(baseURL, "dashscope"):
			name = "qwen"
		}
	}
	return &OpenAI{
		client: openai.NewClient(opts...),
		model:  model,
		name:   name,
	}
}

func (p *OpenAI) Name() string { return p.name }

// Generate runs one non-streaming completion and decodes its tool calls.
// The remote tier reports full confidence; its output is validated, never
// confidence-gated.
func (p *OpenAI) Generate(ctx context.Context, msgs []Message, cat *catalog.Catalog, knobs Knobs) (*Result, error) {
	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(p.model),
		Messages: buildOpenAIMessages(msgs),
		Tools:    buildOpenAITools(cat),
	}
	params.Temperature = openai.Float(knobs.Temperature)
	if knobs.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(knobs.MaxTokens))
	}

	start := time.Now()
	completion, err := p.client.Chat.Completions.New(ctx, params)
	latency := float64(time.Since(start)) / float64(time.Millisecond)
	if err != nil {
		return nil, fmt.Errorf("%s chat: %w", p.name, err)
	}
	if len(completion.Choices) == 0 {
		return nil, fmt.Errorf("%s chat: empty response", p.name)
	}

	msg := completion.Choices[0].Message
	var calls []fncall.Call
	for _, tc := range msg.ToolCalls {
		args := map[string]any{}
		if tc.Function.Arguments != "" {
			if err := json.Unmarshal([]byte(tc.Function.Arguments), &args); err != nil {
				return nil, &DecodeError{Adapter: p.name, Raw: tc.Function.Arguments}
			}
		}
		calls = append(calls, fncall.Call{Name: tc.Function.Name, Arguments: args})
	}
	if len(calls) == 0 {
		calls = Salvage(msg.Content, cat)
	}
	if len(calls) == 0 {
		return nil, &DecodeError{Adapter: p.name, Raw: msg.Content}
	}

	return &Result{
		Calls:      calls,
		Confidence: 1.0,
		LatencyMS:  latency,
		RawText:    msg.Content,
	}, nil
}

func buildOpenAIMessages(msgs []Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(msgs))
	for _, m := range msgs {
		switch m.Role {
		case RoleSystem:
			out = append(out, openai.SystemMessage(m.Content))
		case RoleAssistant:
			out = append(out, openai.AssistantMessage(m.Content))
		default:
			out = append(out, openai.UserMessage(m.Content))
		}
	}
	return out
}

func buildOpenAITools(cat *catalog.Catalog) []openai.ChatCompletionToolParam {
	var result []openai.ChatCompletionToolParam
	for _, t := range cat.Tools() {
		props := make(map[string]any, len(t.Parameters.Properties))
		for name, p := range t.Parameters.Properties {
			props[name] = map[string]any{"type": p.Type, "description": p.Description}
		}
		result = append(result, openai.ChatCompletionToolParam{
			Type: "function",
			Function: shared.FunctionDefinitionParam{
				Name:        t.Name,
				Description: openai.String(t.Description),
				Parameters: shared.FunctionParameters{
					"type":       "object",
					"properties": props,
					"required":   t.Parameters.Required,
				},
			},
		})
	}
	return result
}
