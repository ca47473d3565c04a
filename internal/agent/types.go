// Package agent implements the LLM Adapter, Tool Registry, Tool-Call
// Validator, and Conversation Orchestrator (spec components A, B, C, G):
// the core state machine that turns one inbound user message into an
// assistant reply, driving a bounded LLM<->tool loop.
package agent

import (
	"context"
	"encoding/json"
	"time"

	"github.com/yieldline-labs/copilot/pkg/models"
)

// ToolSchema describes one callable tool to an LLM provider: its name,
// human description, and JSON-schema-shaped parameters.
type ToolSchema struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"`
}

// Usage reports token accounting for a single LLM call, when the provider
// exposes it.
type Usage struct {
	PromptTokens     int `json:"promptTokens"`
	CompletionTokens int `json:"completionTokens"`
	TotalTokens      int `json:"totalTokens"`
}

// CompletionOptions configures a single generate/stream call.
type CompletionOptions struct {
	SystemPrompt string
	MaxTokens    int
	Temperature  float64
	Timeout      time.Duration
}

// CompletionResult is the output of a non-streamed generate call.
type CompletionResult struct {
	Content   string
	ToolCalls []models.ToolCall
	Usage     Usage
}

// ChunkKind discriminates a StreamChunk's payload.
type ChunkKind string

const (
	ChunkContent       ChunkKind = "content"
	ChunkToolCallDelta ChunkKind = "toolCallDelta"
	ChunkDone          ChunkKind = "done"
	ChunkError         ChunkKind = "error"
)

// StreamChunk is one unit delivered to a Sink during stream. Exactly one
// terminal chunk (ChunkDone or ChunkError) is ever delivered per call.
type StreamChunk struct {
	Kind      ChunkKind
	Delta     string
	ToolCall  *models.ToolCall
	Content   string
	ToolCalls []models.ToolCall
	Message   string
}

// Sink receives ordered StreamChunks from a streaming completion.
type Sink func(chunk StreamChunk)

// Provider is the uniform interface every LLM backend variant implements
// (spec §4.A). Concrete adapters live under internal/agent/providers and
// wrap retry and circuit-breaking around a raw vendor SDK client; they do
// not cache prepared system prompts.
type Provider interface {
	// Name identifies the provider for metrics/circuit-breaker keys.
	Name() string
	// Generate performs one non-streamed completion call.
	Generate(ctx context.Context, messages []models.Message, tools []ToolSchema, opts CompletionOptions) (CompletionResult, error)
	// Stream performs one streamed completion call, invoking sink for
	// every chunk in order.
	Stream(ctx context.Context, messages []models.Message, tools []ToolSchema, opts CompletionOptions, sink Sink) (CompletionResult, error)
}
