package inference

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	anthropicoption "github.com/anthropics/anthropic-sdk-go/option"

	"github.com/tandem-ai/tandem/internal/catalog"
	"github.com/tandem-ai/tandem/internal/fncall"
)

// Anthropic is the remote tier backed by the Anthropic native API.
type Anthropic struct {
	client anthropic.Client
	model  string
}

// NewAnthropic returns a remote adapter for the Anthropic API.
func NewAnthropic(apiKey, model string) *Anthropic {
	if model == "" {
		model = "claude-3-5-haiku-latest"
	}
	return &Anthropic{
		client: anthropic.NewClient(anthropicoption.WithAPIKey(apiKey)),
		model:  model,
	}
}

func (p *Anthropic) Name() string { return "anthropic" }

// Generate runs one non-streaming message turn and decodes tool_use blocks.
func (p *Anthropic) Generate(ctx context.Context, msgs []Message, cat *catalog.Catalog, knobs Knobs) (*Result, error) {
	maxTokens := int64(knobs.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = 1024
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(p.model),
		MaxTokens: maxTokens,
		Tools:     buildAnthropicTools(cat),
	}
	params.Temperature = anthropic.Float(knobs.Temperature)

	for _, m := range msgs {
		switch m.Role {
		case RoleSystem:
			params.System = append(params.System, anthropic.TextBlockParam{Text: m.Content})
		case RoleAssistant:
			params.Messages = append(params.Messages, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Content)))
		default:
			params.Messages = append(params.Messages, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		}
	}

	start := time.Now()
	msg, err := p.client.Messages.New(ctx, params)
	latency := float64(time.Since(start)) / float64(time.Millisecond)
	if err != nil {
		return nil, fmt.Errorf("anthropic chat: %w", err)
	}

	var (
		calls   []fncall.Call
		rawText string
	)
	for _, block := range msg.Content {
		switch v := block.AsAny().(type) {
		case anthropic.TextBlock:
			rawText += v.Text
		case anthropic.ToolUseBlock:
			args := map[string]any{}
			if len(v.Input) > 0 {
				if err := json.Unmarshal(v.Input, &args); err != nil {
					return nil, &DecodeError{Adapter: p.Name(), Raw: string(v.Input)}
				}
			}
			calls = append(calls, fncall.Call{Name: v.Name, Arguments: args})
		}
	}
	if len(calls) == 0 {
		calls = Salvage(rawText, cat)
	}
	if len(calls) == 0 {
		return nil, &DecodeError{Adapter: p.Name(), Raw: rawText}
	}

	return &Result{
		Calls:      calls,
		Confidence: 1.0,
		LatencyMS:  latency,
		RawText:    rawText,
	}, nil
}

// buildAnthropicTools converts catalog schemas to Anthropic tool params.
func buildAnthropicTools(cat *catalog.Catalog) []anthropic.ToolUnionParam {
	var result []anthropic.ToolUnionParam
	for _, t := range cat.Tools() {
		props := make(map[string]any, len(t.Parameters.Properties))
		for name, p := range t.Parameters.Properties {
			props[name] = map[string]any{"type": p.Type, "description": p.Description}
		}
		result = append(result, anthropic.ToolUnionParam{
			OfTool: &anthropic.ToolParam{
				Name:        t.Name,
				Description: anthropic.String(t.Description),
				InputSchema: anthropic.ToolInputSchemaParam{
					Properties: props,
					Required:   t.Parameters.Required,
				},
			},
		})
	}
	return result
}
