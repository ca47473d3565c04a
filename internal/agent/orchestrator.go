package agent

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/yieldline-labs/copilot/internal/apperror"
	"github.com/yieldline-labs/copilot/internal/observability"
	"github.com/yieldline-labs/copilot/internal/result"
	"github.com/yieldline-labs/copilot/internal/sessions"
	"github.com/yieldline-labs/copilot/internal/uiintent"
	"github.com/yieldline-labs/copilot/pkg/models"
)

// OrchestratorConfig bounds the per-request loop (spec §4.G, §5).
type OrchestratorConfig struct {
	MaxRounds       int
	ToolConcurrency int
	RequestTimeout  time.Duration
	ToolTimeout     time.Duration
	SystemPrompt    string
	MaxTokens       int
	Temperature     float64
}

// DefaultOrchestratorConfig mirrors the spec's documented defaults.
func DefaultOrchestratorConfig() OrchestratorConfig {
	return OrchestratorConfig{
		MaxRounds:       5,
		ToolConcurrency: 4,
		RequestTimeout:  60 * time.Second,
		ToolTimeout:     10 * time.Second,
		MaxTokens:       1024,
		Temperature:     0.7,
	}
}

// Orchestrator is the conversation state machine (spec §4.G) that ties
// the LLM Adapter, Tool Registry, Tool-Call Validator, Result Formatter,
// UI-Intent Generator, and Session Store together for one inbound
// message.
type Orchestrator struct {
	provider Provider
	registry *Registry
	store    *sessions.Store
	cfg      OrchestratorConfig
	logger   *observability.Logger
	metrics  *observability.Metrics
}

// appendTracked appends message via the session store and mirrors the
// write into the session-scoped Prometheus metrics (§6 "sessions.active",
// "session messages total").
func (o *Orchestrator) appendTracked(sessionID string, message models.Message) models.Session {
	session := o.store.Append(sessionID, message)
	if o.metrics != nil {
		o.metrics.SessionMessages.Inc()
		o.metrics.ActiveSessions.Set(float64(o.store.Snapshot().ActiveSessions))
	}
	return session
}

// NewOrchestrator wires the components listed above into one Orchestrator.
func NewOrchestrator(provider Provider, registry *Registry, store *sessions.Store, cfg OrchestratorConfig, logger *observability.Logger, metrics *observability.Metrics) *Orchestrator {
	if cfg.MaxRounds <= 0 {
		cfg.MaxRounds = 5
	}
	if cfg.ToolConcurrency <= 0 {
		cfg.ToolConcurrency = 4
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 60 * time.Second
	}
	if cfg.ToolTimeout <= 0 {
		cfg.ToolTimeout = 10 * time.Second
	}
	return &Orchestrator{provider: provider, registry: registry, store: store, cfg: cfg, logger: logger, metrics: metrics}
}

// Process drives the bounded LLM<->tool loop for one inbound user
// utterance and returns the assembled assistant reply (spec §4.G).
//
// history is accepted only as a fresh-session bootstrap: per the §9 open
// question, server-maintained history always wins once a session has any
// messages of its own; a client-supplied history is seeded in only when
// the session is brand new.
func (o *Orchestrator) Process(ctx context.Context, sessionID, userText string, history []models.Message) (*models.AssistantMessage, error) {
	ctx, cancel := context.WithTimeout(ctx, o.cfg.RequestTimeout)
	defer cancel()

	session, unlock := o.store.Lock(sessionID)
	defer unlock()

	if len(session.Messages) == 0 && len(history) > 0 {
		for _, m := range history {
			session = o.appendTracked(sessionID, m)
		}
	}

	userMsg := models.Message{ID: uuid.NewString(), Role: models.RoleUser, Content: userText, Timestamp: time.Now()}
	session = o.appendTracked(sessionID, userMsg)

	reply, err := o.runLoop(ctx, sessionID, &session)
	if err != nil {
		return o.errorReply(err), nil
	}
	return reply, nil
}

// ProcessStream is the streaming variant of Process (spec §4.G
// "Streaming variant"). Rounds that produce tool calls are effectively
// non-streamed: their content chunks are buffered and discarded once the
// round turns out to need tool execution, so sink only ever observes
// output from the round that terminates the loop, preceded by that
// round's own content deltas, followed by exactly one terminal chunk.
//
// history follows the same fresh-session-bootstrap rule as Process (§9
// open question): it only seeds a session that has no messages yet.
func (o *Orchestrator) ProcessStream(ctx context.Context, sessionID, userText string, history []models.Message, sink Sink) (*models.AssistantMessage, error) {
	ctx, cancel := context.WithTimeout(ctx, o.cfg.RequestTimeout)
	defer cancel()

	session, unlock := o.store.Lock(sessionID)
	defer unlock()

	if len(session.Messages) == 0 && len(history) > 0 {
		for _, m := range history {
			session = o.appendTracked(sessionID, m)
		}
	}

	userMsg := models.Message{ID: uuid.NewString(), Role: models.RoleUser, Content: userText, Timestamp: time.Now()}
	session = o.appendTracked(sessionID, userMsg)

	tools := o.registry.AsLLMTools()
	opts := CompletionOptions{SystemPrompt: o.cfg.SystemPrompt, MaxTokens: o.cfg.MaxTokens, Temperature: o.cfg.Temperature}

	var allToolResults []models.ToolResult
	var lastContent string
	terminalSent := false

	for round := 0; round < o.cfg.MaxRounds; round++ {
		var buffered []StreamChunk
		completion, err := o.provider.Stream(ctx, session.Messages, tools, opts, func(chunk StreamChunk) {
			if chunk.Kind == ChunkContent {
				buffered = append(buffered, chunk)
			}
		})
		if err != nil {
			appErr := apperror.LLMError(err)
			if ae, ok := apperror.As(err); ok {
				appErr = ae
			}
			sink(StreamChunk{Kind: ChunkError, Message: appErr.Message})
			terminalSent = true
			return o.errorReply(err), nil
		}

		lastContent = completion.Content
		assistantMsg := models.Message{
			ID:        uuid.NewString(),
			Role:      models.RoleAssistant,
			Content:   completion.Content,
			ToolCalls: completion.ToolCalls,
			Timestamp: time.Now(),
		}
		session = o.appendTracked(sessionID, assistantMsg)

		if len(completion.ToolCalls) == 0 {
			for _, chunk := range buffered {
				sink(chunk)
			}
			break
		}

		valid := ValidateToolCalls(completion.ToolCalls, o.logger)
		if len(valid) == 0 {
			for _, chunk := range buffered {
				sink(chunk)
			}
			break
		}

		roundResults := o.dispatchTools(ctx, valid)
		allToolResults = append(allToolResults, roundResults...)

		for _, tr := range roundResults {
			toolMsg := models.Message{
				ID:         uuid.NewString(),
				Role:       models.RoleTool,
				Content:    toolMessageContent(tr),
				ToolCallID: tr.ToolCallID,
				Timestamp:  time.Now(),
			}
			session = o.appendTracked(sessionID, toolMsg)
		}

		if allFailed(roundResults) {
			break
		}
	}

	reply := o.buildReply(lastContent, allToolResults, session.Messages, "")
	if !terminalSent {
		sink(StreamChunk{Kind: ChunkDone, Content: reply.Content, ToolCalls: flattenToolCalls(allToolResults)})
	}
	return reply, nil
}

func flattenToolCalls(results []models.ToolResult) []models.ToolCall {
	out := make([]models.ToolCall, 0, len(results))
	for _, r := range results {
		out = append(out, models.ToolCall{ID: r.ToolCallID, Name: r.ToolName})
	}
	return out
}

// runLoop implements the bounded round loop from spec §4.G step 2-3. It
// mutates the session via o.appendTracked as it goes and returns the final
// assistant reply on success, or an error if the LLM call itself failed
// terminally (post-retry, or circuit open).
func (o *Orchestrator) runLoop(ctx context.Context, sessionID string, session *models.Session) (*models.AssistantMessage, error) {
	tools := o.registry.AsLLMTools()
	opts := CompletionOptions{SystemPrompt: o.cfg.SystemPrompt, MaxTokens: o.cfg.MaxTokens, Temperature: o.cfg.Temperature}

	var allToolResults []models.ToolResult
	var lastContent string

	for round := 0; round < o.cfg.MaxRounds; round++ {
		completion, err := o.provider.Generate(ctx, session.Messages, tools, opts)
		if err != nil {
			return o.buildReply(lastContent, allToolResults, session.Messages, ""), err
		}

		lastContent = completion.Content
		assistantMsg := models.Message{
			ID:        uuid.NewString(),
			Role:      models.RoleAssistant,
			Content:   completion.Content,
			ToolCalls: completion.ToolCalls,
			Timestamp: time.Now(),
		}
		*session = o.appendTracked(sessionID, assistantMsg)

		if len(completion.ToolCalls) == 0 {
			break
		}

		valid := ValidateToolCalls(completion.ToolCalls, o.logger)
		if len(valid) == 0 {
			break
		}

		roundResults := o.dispatchTools(ctx, valid)
		allToolResults = append(allToolResults, roundResults...)

		for _, tr := range roundResults {
			toolMsg := models.Message{
				ID:         uuid.NewString(),
				Role:       models.RoleTool,
				Content:    toolMessageContent(tr),
				ToolCallID: tr.ToolCallID,
				Timestamp:  time.Now(),
			}
			*session = o.appendTracked(sessionID, toolMsg)
		}

		if allFailed(roundResults) {
			break
		}
	}

	return o.buildReply(lastContent, allToolResults, session.Messages, ""), nil
}

// dispatchTools runs every valid tool call concurrently, bounded by
// ToolConcurrency, each with its own ToolTimeout deadline (spec §4.G
// step 2e, §5). Results preserve call order regardless of completion
// order.
func (o *Orchestrator) dispatchTools(ctx context.Context, calls []models.ToolCall) []models.ToolResult {
	results := make([]models.ToolResult, len(calls))
	sem := make(chan struct{}, o.cfg.ToolConcurrency)
	var wg sync.WaitGroup

	for i, call := range calls {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, call models.ToolCall) {
			defer wg.Done()
			defer func() { <-sem }()

			callCtx, cancel := context.WithTimeout(ctx, o.cfg.ToolTimeout)
			defer cancel()

			start := time.Now()
			res := o.registry.Execute(callCtx, call)
			if o.metrics != nil {
				status := "success"
				if !res.Success {
					status = "failure"
				}
				o.metrics.ToolExecCounter.WithLabelValues(call.Name, status).Inc()
				o.metrics.ToolExecDuration.WithLabelValues(call.Name).Observe(time.Since(start).Seconds())
			}
			results[i] = res
		}(i, call)
	}

	wg.Wait()
	return results
}

func allFailed(results []models.ToolResult) bool {
	if len(results) == 0 {
		return false
	}
	for _, r := range results {
		if r.Success {
			return false
		}
	}
	return true
}

func toolMessageContent(tr models.ToolResult) string {
	if tr.Success {
		return string(tr.Result)
	}
	return tr.Error
}

// buildReply assembles the final AssistantMessage from the last LLM
// content and every tool result produced this invocation (spec §4.G step
// 3). It never sets an error descriptor; its last parameter is unused and
// errorReply builds the failure reply.
func (o *Orchestrator) buildReply(content string, toolResults []models.ToolResult, messages []models.Message, _ string) *models.AssistantMessage {
	var userText string
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == models.RoleUser {
			userText = messages[i].Content
			break
		}
	}

	return &models.AssistantMessage{
		ID:               uuid.NewString(),
		Role:             models.RoleAssistant,
		Content:          content,
		Timestamp:        time.Now(),
		UIIntents:        uiintent.Generate(toolResults, userText, content),
		ToolResults:      toolResults,
		FormattedResults: result.Format(toolResults),
	}
}

// errorReply builds the user-facing apology + error descriptor reply for
// a terminal LLM failure (spec §4.G "Failure semantics").
func (o *Orchestrator) errorReply(err error) *models.AssistantMessage {
	appErr, ok := apperror.As(err)
	if !ok {
		appErr = apperror.LLMError(err)
	}
	code, message, category, severity, retryable, actions := appErr.Descriptor()

	return &models.AssistantMessage{
		ID:        uuid.NewString(),
		Role:      models.RoleAssistant,
		Content:   "Sorry, I couldn't process that right now. Please try again in a moment.",
		Timestamp: time.Now(),
		Error: &models.ErrorDescriptor{
			Code:             code,
			Message:          message,
			Category:         category,
			Severity:         severity,
			Retryable:        retryable,
			SuggestedActions: actions,
		},
	}
}
