package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	openai "github.com/sashabaranov/go-openai"

	"github.com/yieldline-labs/copilot/internal/agent"
	"github.com/yieldline-labs/copilot/internal/infra"
	"github.com/yieldline-labs/copilot/internal/observability"
	"github.com/yieldline-labs/copilot/pkg/models"
)

// OpenAI adapts the go-openai chat-completion client to agent.Provider.
type OpenAI struct {
	*Base
	client *openai.Client
	model  string
}

// NewOpenAI constructs an OpenAI provider. model is the model identifier
// (e.g. "gpt-4o") sent with every request.
func NewOpenAI(apiKey, model string, breaker *infra.CircuitBreaker, logger *observability.Logger, metrics *observability.Metrics) *OpenAI {
	return &OpenAI{
		Base:   NewBase("openai", DefaultRetryConfig(), breaker, logger, metrics, ClassifyError),
		client: openai.NewClient(apiKey),
		model:  model,
	}
}

func (p *OpenAI) Name() string { return "openai" }

func toOpenAIMessages(messages []models.Message, systemPrompt string) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(messages)+1)
	if systemPrompt != "" {
		out = append(out, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: systemPrompt})
	}
	for _, m := range messages {
		switch m.Role {
		case models.RoleTool:
			out = append(out, openai.ChatCompletionMessage{
				Role:       openai.ChatMessageRoleTool,
				Content:    m.Content,
				ToolCallID: m.ToolCallID,
			})
		case models.RoleAssistant:
			msg := openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: m.Content}
			for _, tc := range m.ToolCalls {
				msg.ToolCalls = append(msg.ToolCalls, openai.ToolCall{
					ID:   tc.ID,
					Type: openai.ToolTypeFunction,
					Function: openai.FunctionCall{
						Name:      tc.Name,
						Arguments: string(tc.Arguments),
					},
				})
			}
			out = append(out, msg)
		default:
			out = append(out, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: m.Content})
		}
	}
	return out
}

func toOpenAITools(tools []agent.ToolSchema) []openai.Tool {
	if len(tools) == 0 {
		return nil
	}
	out := make([]openai.Tool, 0, len(tools))
	for _, t := range tools {
		var params any
		_ = json.Unmarshal(t.Parameters, &params)
		out = append(out, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  params,
			},
		})
	}
	return out
}

func fromOpenAIToolCalls(calls []openai.ToolCall) []models.ToolCall {
	out := make([]models.ToolCall, 0, len(calls))
	for _, c := range calls {
		out = append(out, models.ToolCall{
			ID:        c.ID,
			Name:      c.Function.Name,
			Arguments: json.RawMessage(c.Function.Arguments),
		})
	}
	return out
}

func (p *OpenAI) Generate(ctx context.Context, messages []models.Message, tools []agent.ToolSchema, opts agent.CompletionOptions) (agent.CompletionResult, error) {
	if err := ValidateSystemPrompt(opts.SystemPrompt, 0); opts.SystemPrompt != "" && err != nil {
		return agent.CompletionResult{}, err
	}

	req := openai.ChatCompletionRequest{
		Model:       p.model,
		Messages:    toOpenAIMessages(messages, opts.SystemPrompt),
		Tools:       toOpenAITools(tools),
		MaxTokens:   opts.MaxTokens,
		Temperature: float32(opts.Temperature),
	}

	result, err := Do(ctx, p.Base, p.model, func(ctx context.Context) (agent.CompletionResult, error) {
		resp, err := p.client.CreateChatCompletion(ctx, req)
		if err != nil {
			return agent.CompletionResult{}, err
		}
		if len(resp.Choices) == 0 {
			return agent.CompletionResult{}, fmt.Errorf("openai: empty choices")
		}
		choice := resp.Choices[0].Message
		return agent.CompletionResult{
			Content:   choice.Content,
			ToolCalls: fromOpenAIToolCalls(choice.ToolCalls),
			Usage: agent.Usage{
				PromptTokens:     resp.Usage.PromptTokens,
				CompletionTokens: resp.Usage.CompletionTokens,
				TotalTokens:      resp.Usage.TotalTokens,
			},
		}, nil
	})
	if err != nil {
		return agent.CompletionResult{}, WrapTerminal(p.ProviderName, err)
	}
	return result, nil
}

func (p *OpenAI) Stream(ctx context.Context, messages []models.Message, tools []agent.ToolSchema, opts agent.CompletionOptions, sink agent.Sink) (agent.CompletionResult, error) {
	req := openai.ChatCompletionRequest{
		Model:       p.model,
		Messages:    toOpenAIMessages(messages, opts.SystemPrompt),
		Tools:       toOpenAITools(tools),
		MaxTokens:   opts.MaxTokens,
		Temperature: float32(opts.Temperature),
		Stream:      true,
	}

	result, err := Do(ctx, p.Base, p.model, func(ctx context.Context) (agent.CompletionResult, error) {
		stream, err := p.client.CreateChatCompletionStream(ctx, req)
		if err != nil {
			return agent.CompletionResult{}, err
		}
		defer stream.Close()

		var content string
		var pending map[int]*models.ToolCall
		for {
			chunk, err := stream.Recv()
			if err != nil {
				if errors.Is(err, io.EOF) {
					break
				}
				return agent.CompletionResult{}, err
			}
			if len(chunk.Choices) == 0 {
				continue
			}
			delta := chunk.Choices[0].Delta
			if delta.Content != "" {
				content += delta.Content
				sink(agent.StreamChunk{Kind: agent.ChunkContent, Delta: delta.Content})
			}
			for _, tc := range delta.ToolCalls {
				if pending == nil {
					pending = make(map[int]*models.ToolCall)
				}
				idx := 0
				if tc.Index != nil {
					idx = *tc.Index
				}
				cur, ok := pending[idx]
				if !ok {
					cur = &models.ToolCall{ID: tc.ID, Name: tc.Function.Name}
					pending[idx] = cur
				}
				cur.Arguments = json.RawMessage(string(cur.Arguments) + tc.Function.Arguments)
				sink(agent.StreamChunk{Kind: agent.ChunkToolCallDelta, ToolCall: cur})
			}
		}

		toolCalls := make([]models.ToolCall, 0, len(pending))
		for i := 0; i < len(pending); i++ {
			if tc, ok := pending[i]; ok {
				toolCalls = append(toolCalls, *tc)
			}
		}
		return agent.CompletionResult{Content: content, ToolCalls: toolCalls}, nil
	})

	if err != nil {
		wrapped := WrapTerminal(p.ProviderName, err)
		sink(agent.StreamChunk{Kind: agent.ChunkError, Message: wrapped.Message})
		return agent.CompletionResult{}, wrapped
	}
	sink(agent.StreamChunk{Kind: agent.ChunkDone, Content: result.Content, ToolCalls: result.ToolCalls})
	return result, nil
}
