package agent

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/yieldline-labs/copilot/internal/sessions"
	"github.com/yieldline-labs/copilot/pkg/models"
)

// fakeProvider returns a scripted sequence of CompletionResults, one per
// Generate call, so tests can drive multi-round scenarios deterministically.
type fakeProvider struct {
	script []fakeTurn
	calls  int
}

type fakeTurn struct {
	result CompletionResult
	err    error
}

func (p *fakeProvider) Name() string { return "fake" }

func (p *fakeProvider) Generate(ctx context.Context, messages []models.Message, tools []ToolSchema, opts CompletionOptions) (CompletionResult, error) {
	if p.calls >= len(p.script) {
		return CompletionResult{}, errors.New("fakeProvider: script exhausted")
	}
	turn := p.script[p.calls]
	p.calls++
	return turn.result, turn.err
}

func (p *fakeProvider) Stream(ctx context.Context, messages []models.Message, tools []ToolSchema, opts CompletionOptions, sink Sink) (CompletionResult, error) {
	result, err := p.Generate(ctx, messages, tools, opts)
	if err != nil {
		return CompletionResult{}, err
	}
	if result.Content != "" {
		sink(StreamChunk{Kind: ChunkContent, Delta: result.Content})
	}
	return result, nil
}

func newTestOrchestrator(t *testing.T, provider Provider, reg *Registry) *Orchestrator {
	t.Helper()
	store := sessions.NewStore(sessions.DefaultConfig())
	t.Cleanup(store.Stop)
	return NewOrchestrator(provider, reg, store, OrchestratorConfig{MaxRounds: 5, ToolConcurrency: 4, RequestTimeout: 5 * time.Second, ToolTimeout: time.Second}, nil, nil)
}

func TestOrchestrator_PlainChat(t *testing.T) {
	provider := &fakeProvider{script: []fakeTurn{
		{result: CompletionResult{Content: "Hi! How can I help?"}},
	}}
	o := newTestOrchestrator(t, provider, NewRegistry())

	reply, err := o.Process(context.Background(), "s1", "Hello", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if reply.Content != "Hi! How can I help?" {
		t.Fatalf("unexpected content: %q", reply.Content)
	}
	if len(reply.ToolResults) != 0 {
		t.Fatalf("expected no tool results, got %+v", reply.ToolResults)
	}
	if reply.Error != nil {
		t.Fatalf("expected no error descriptor, got %+v", reply.Error)
	}
}

func gasPricesRegistry(t *testing.T, fail bool) *Registry {
	t.Helper()
	reg := NewRegistry()
	schema := json.RawMessage(`{"type":"object","properties":{"network":{"type":"string"}}}`)
	err := reg.Register("get_gas_prices", "gas prices", schema, func(ctx context.Context, args json.RawMessage) (json.RawMessage, error) {
		if fail {
			return nil, errors.New("Service unavailable")
		}
		return json.RawMessage(`{"network":"ethereum","gasPrices":{"slow":{"gwei":10,"usdCost":0.3},"standard":{"gwei":15,"usdCost":0.45},"fast":{"gwei":20,"usdCost":0.6}}}`), nil
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	return reg
}

func TestOrchestrator_SingleToolRound(t *testing.T) {
	provider := &fakeProvider{script: []fakeTurn{
		{result: CompletionResult{ToolCalls: []models.ToolCall{
			{ID: "c1", Name: "get_gas_prices", Arguments: json.RawMessage(`{"network":"ethereum"}`)},
		}}},
		{result: CompletionResult{Content: "Slow 10, Standard 15, Fast 20 gwei."}},
	}}
	o := newTestOrchestrator(t, provider, gasPricesRegistry(t, false))

	reply, err := o.Process(context.Background(), "s1", "What are gas prices on Ethereum?", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(reply.ToolResults) != 1 || !reply.ToolResults[0].Success {
		t.Fatalf("expected one successful tool result, got %+v", reply.ToolResults)
	}
	if reply.FormattedResults == nil || reply.FormattedResults.Results[0].Type != "gas_prices" {
		t.Fatalf("expected gas_prices formatted result, got %+v", reply.FormattedResults)
	}
	foundNetworkStatus := false
	for _, intent := range reply.UIIntents {
		if intent.Component == "NetworkStatus" {
			foundNetworkStatus = true
		}
	}
	if !foundNetworkStatus {
		t.Fatalf("expected NetworkStatus UI intent, got %+v", reply.UIIntents)
	}
	if reply.FormattedResults.HasErrors {
		t.Fatalf("expected hasErrors false")
	}
}

func TestOrchestrator_ToolFailureLLMRecovers(t *testing.T) {
	provider := &fakeProvider{script: []fakeTurn{
		{result: CompletionResult{ToolCalls: []models.ToolCall{
			{ID: "c1", Name: "get_gas_prices", Arguments: json.RawMessage(`{}`)},
		}}},
		{result: CompletionResult{Content: "I couldn't fetch gas prices right now."}},
	}}
	o := newTestOrchestrator(t, provider, gasPricesRegistry(t, true))

	reply, err := o.Process(context.Background(), "s1", "gas prices?", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if reply.FormattedResults == nil || !reply.FormattedResults.HasErrors {
		t.Fatalf("expected hasErrors true")
	}
	if reply.Error != nil {
		t.Fatalf("expected no top-level error field, got %+v", reply.Error)
	}
	if reply.Content != "I couldn't fetch gas prices right now." {
		t.Fatalf("unexpected content: %q", reply.Content)
	}
}

func TestOrchestrator_LLMFailsProducesUserFacingError(t *testing.T) {
	rateLimitErr := errors.New("rate limit exceeded")
	provider := &fakeProvider{script: []fakeTurn{
		{err: rateLimitErr},
	}}
	o := newTestOrchestrator(t, provider, NewRegistry())

	reply, err := o.Process(context.Background(), "s1", "hello", nil)
	if err != nil {
		t.Fatalf("Process should not itself return an error: %v", err)
	}
	if reply.Error == nil {
		t.Fatalf("expected error descriptor on reply")
	}
	if !reply.Error.Retryable {
		t.Fatalf("expected retryable error")
	}
}

func TestOrchestrator_MaxRoundsBounds(t *testing.T) {
	toolCallTurn := fakeTurn{result: CompletionResult{ToolCalls: []models.ToolCall{
		{ID: "c1", Name: "get_gas_prices", Arguments: json.RawMessage(`{}`)},
	}}}
	script := make([]fakeTurn, 0, 5)
	for i := 0; i < 5; i++ {
		script = append(script, toolCallTurn)
	}
	provider := &fakeProvider{script: script}
	o := newTestOrchestrator(t, provider, gasPricesRegistry(t, false))

	_, err := o.Process(context.Background(), "s1", "loop forever", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if provider.calls != 5 {
		t.Fatalf("expected exactly maxRounds=5 LLM calls, got %d", provider.calls)
	}
}

func TestOrchestrator_ProcessStream_BuffersUntilTerminalRound(t *testing.T) {
	provider := &fakeProvider{script: []fakeTurn{
		{result: CompletionResult{ToolCalls: []models.ToolCall{
			{ID: "c1", Name: "get_gas_prices", Arguments: json.RawMessage(`{"network":"ethereum"}`)},
		}}},
		{result: CompletionResult{Content: "Gas is cheap right now."}},
	}}
	o := newTestOrchestrator(t, provider, gasPricesRegistry(t, false))

	var deltas []string
	var doneChunks int
	reply, err := o.ProcessStream(context.Background(), "s1", "gas prices?", nil, func(chunk StreamChunk) {
		switch chunk.Kind {
		case ChunkContent:
			deltas = append(deltas, chunk.Delta)
		case ChunkDone:
			doneChunks++
		}
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(deltas) != 1 || deltas[0] != "Gas is cheap right now." {
		t.Fatalf("expected sink to observe only the terminal round's content, got %v", deltas)
	}
	if doneChunks != 1 {
		t.Fatalf("expected exactly one terminal chunk, got %d", doneChunks)
	}
	if reply.Content != "Gas is cheap right now." {
		t.Fatalf("unexpected reply content: %q", reply.Content)
	}
}

func TestOrchestrator_ProcessStream_LLMFailureSendsErrorChunk(t *testing.T) {
	provider := &fakeProvider{script: []fakeTurn{
		{err: errors.New("upstream exploded")},
	}}
	o := newTestOrchestrator(t, provider, NewRegistry())

	var errChunks int
	reply, err := o.ProcessStream(context.Background(), "s1", "hello", nil, func(chunk StreamChunk) {
		if chunk.Kind == ChunkError {
			errChunks++
		}
	})
	if err != nil {
		t.Fatalf("ProcessStream should not itself return an error: %v", err)
	}
	if errChunks != 1 {
		t.Fatalf("expected exactly one error chunk, got %d", errChunks)
	}
	if reply.Error == nil {
		t.Fatalf("expected error descriptor on reply")
	}
}
