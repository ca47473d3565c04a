package providers

import (
	"context"
	"encoding/json"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/yieldline-labs/copilot/internal/agent"
	"github.com/yieldline-labs/copilot/internal/infra"
	"github.com/yieldline-labs/copilot/internal/observability"
	"github.com/yieldline-labs/copilot/pkg/models"
)

// Anthropic adapts the anthropic-sdk-go Messages client to agent.Provider.
type Anthropic struct {
	*Base
	client *anthropic.Client
	model  string
}

// NewAnthropic constructs an Anthropic provider for the given model
// (e.g. "claude-3-5-sonnet-latest").
func NewAnthropic(apiKey, model string, breaker *infra.CircuitBreaker, logger *observability.Logger, metrics *observability.Metrics) *Anthropic {
	client := anthropic.NewClient(option.WithAPIKey(apiKey))
	return &Anthropic{
		Base:   NewBase("anthropic", DefaultRetryConfig(), breaker, logger, metrics, ClassifyError),
		client: &client,
		model:  model,
	}
}

func (p *Anthropic) Name() string { return "anthropic" }

func toAnthropicMessages(messages []models.Message) []anthropic.MessageParam {
	out := make([]anthropic.MessageParam, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case models.RoleUser:
			out = append(out, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		case models.RoleAssistant:
			blocks := make([]anthropic.ContentBlockParamUnion, 0, len(m.ToolCalls)+1)
			if m.Content != "" {
				blocks = append(blocks, anthropic.NewTextBlock(m.Content))
			}
			for _, tc := range m.ToolCalls {
				var input any
				_ = json.Unmarshal(tc.Arguments, &input)
				blocks = append(blocks, anthropic.NewToolUseBlock(tc.ID, input, tc.Name))
			}
			out = append(out, anthropic.NewAssistantMessage(blocks...))
		case models.RoleTool:
			out = append(out, anthropic.NewUserMessage(
				anthropic.NewToolResultBlock(m.ToolCallID, m.Content, false),
			))
		}
	}
	return out
}

func toAnthropicTools(tools []agent.ToolSchema) []anthropic.ToolParam {
	if len(tools) == 0 {
		return nil
	}
	out := make([]anthropic.ToolParam, 0, len(tools))
	for _, t := range tools {
		var schema anthropic.ToolInputSchemaParam
		_ = json.Unmarshal(t.Parameters, &schema)
		out = append(out, anthropic.ToolParam{
			Name:        t.Name,
			Description: anthropic.String(t.Description),
			InputSchema: schema,
		})
	}
	return out
}

func fromAnthropicContent(blocks []anthropic.ContentBlockUnion) (string, []models.ToolCall) {
	var content string
	var calls []models.ToolCall
	for _, b := range blocks {
		switch b.Type {
		case "text":
			content += b.Text
		case "tool_use":
			calls = append(calls, models.ToolCall{
				ID:        b.ID,
				Name:      b.Name,
				Arguments: json.RawMessage(b.Input),
			})
		}
	}
	return content, calls
}

func (p *Anthropic) Generate(ctx context.Context, messages []models.Message, tools []agent.ToolSchema, opts agent.CompletionOptions) (agent.CompletionResult, error) {
	if err := ValidateSystemPrompt(opts.SystemPrompt, 0); opts.SystemPrompt != "" && err != nil {
		return agent.CompletionResult{}, err
	}

	maxTokens := int64(opts.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = 1024
	}

	result, err := Do(ctx, p.Base, p.model, func(ctx context.Context) (agent.CompletionResult, error) {
		msg, err := p.client.Messages.New(ctx, anthropic.MessageNewParams{
			Model:     anthropic.Model(p.model),
			MaxTokens: maxTokens,
			System:    []anthropic.TextBlockParam{{Text: opts.SystemPrompt}},
			Messages:  toAnthropicMessages(messages),
			Tools:     toAnthropicTools(tools),
		})
		if err != nil {
			return agent.CompletionResult{}, err
		}
		content, calls := fromAnthropicContent(msg.Content)
		return agent.CompletionResult{
			Content:   content,
			ToolCalls: calls,
			Usage: agent.Usage{
				PromptTokens:     int(msg.Usage.InputTokens),
				CompletionTokens: int(msg.Usage.OutputTokens),
				TotalTokens:      int(msg.Usage.InputTokens + msg.Usage.OutputTokens),
			},
		}, nil
	})
	if err != nil {
		return agent.CompletionResult{}, WrapTerminal(p.ProviderName, err)
	}
	return result, nil
}

func (p *Anthropic) Stream(ctx context.Context, messages []models.Message, tools []agent.ToolSchema, opts agent.CompletionOptions, sink agent.Sink) (agent.CompletionResult, error) {
	maxTokens := int64(opts.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = 1024
	}

	result, err := Do(ctx, p.Base, p.model, func(ctx context.Context) (agent.CompletionResult, error) {
		stream := p.client.Messages.NewStreaming(ctx, anthropic.MessageNewParams{
			Model:     anthropic.Model(p.model),
			MaxTokens: maxTokens,
			System:    []anthropic.TextBlockParam{{Text: opts.SystemPrompt}},
			Messages:  toAnthropicMessages(messages),
			Tools:     toAnthropicTools(tools),
		})
		defer stream.Close()

		var acc anthropic.Message
		for stream.Next() {
			event := stream.Current()
			if err := acc.Accumulate(event); err != nil {
				return agent.CompletionResult{}, err
			}
			switch delta := event.AsAny().(type) {
			case anthropic.ContentBlockDeltaEvent:
				if delta.Delta.Text != "" {
					sink(agent.StreamChunk{Kind: agent.ChunkContent, Delta: delta.Delta.Text})
				}
			}
		}
		if err := stream.Err(); err != nil {
			return agent.CompletionResult{}, err
		}

		content, calls := fromAnthropicContent(acc.Content)
		return agent.CompletionResult{Content: content, ToolCalls: calls}, nil
	})

	if err != nil {
		wrapped := WrapTerminal(p.ProviderName, err)
		sink(agent.StreamChunk{Kind: agent.ChunkError, Message: wrapped.Message})
		return agent.CompletionResult{}, wrapped
	}
	sink(agent.StreamChunk{Kind: agent.ChunkDone, Content: result.Content, ToolCalls: result.ToolCalls})
	return result, nil
}
