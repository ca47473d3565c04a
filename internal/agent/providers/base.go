// Package providers implements concrete agent.Provider adapters (OpenAI,
// Anthropic) plus the shared retry/circuit-breaker machinery every variant
// wraps its vendor SDK calls in (spec §4.A). Base also carries a bounded
// system-prompt cache (PreparedSystemPrompt); the OpenAI and Anthropic
// adapters do not call it and send the system prompt as given on every call.
package providers

import (
	"container/list"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/yieldline-labs/copilot/internal/apperror"
	"github.com/yieldline-labs/copilot/internal/infra"
	"github.com/yieldline-labs/copilot/internal/observability"
)

// RetryConfig configures the backoff policy for a single provider.
type RetryConfig struct {
	MaxRetries int
	BaseDelay  time.Duration
}

// DefaultRetryConfig mirrors the spec §4.A default (base 1s, up to 3
// retries after the initial attempt, so at most 4 calls).
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{MaxRetries: 3, BaseDelay: time.Second}
}

// Classifier decides whether an error from a provider call should trigger
// a retry. Non-retryable errors (auth, malformed request, quota denial,
// context-length overflow, system-prompt-too-large) are returned as-is
// after a single attempt.
type Classifier func(err error) bool

// Base holds the machinery shared by every concrete provider: retry with
// exponential backoff, a per-provider circuit breaker, a bounded
// system-prompt cache, and logging/metrics plumbing. Concrete providers
// embed Base and call Do around their vendor SDK invocation, for both
// streamed and non-streamed calls.
type Base struct {
	ProviderName string
	Retry        RetryConfig
	Breaker      *infra.CircuitBreaker
	Logger       *observability.Logger
	Metrics      *observability.Metrics
	Classify     Classifier

	promptCache *promptCache
}

// NewBase constructs shared provider machinery. A nil classify falls back
// to apperror.Retryable; the system-prompt cache holds up to 20 entries.
func NewBase(name string, retry RetryConfig, breaker *infra.CircuitBreaker, logger *observability.Logger, metrics *observability.Metrics, classify Classifier) *Base {
	if classify == nil {
		classify = apperror.Retryable
	}
	return &Base{
		ProviderName: name,
		Retry:        retry,
		Breaker:      breaker,
		Logger:       logger,
		Metrics:      metrics,
		Classify:     classify,
		promptCache:  newPromptCache(20),
	}
}

// Attempt is one provider call the Base retry loop drives.
type Attempt[T any] func(ctx context.Context) (T, error)

// Do runs fn with the circuit breaker and exponential-backoff retry
// policy described in spec §4.A: classify each failure, retry retryable
// ones with base*2^attempt backoff up to MaxRetries, fail fast without
// attempting when the breaker is open. model labels the per-call metrics
// recorded for the request-count/duration/circuit-state gauges (§4.A,
// §6 metrics snapshot).
func Do[T any](ctx context.Context, b *Base, model string, fn Attempt[T]) (T, error) {
	var zero T

	if err := b.Breaker.Allow(); err != nil {
		b.recordCircuitState()
		if b.Metrics != nil {
			b.Metrics.LLMRequestCounter.WithLabelValues(b.ProviderName, model, "rejected").Inc()
			b.Metrics.RecordLLMRequest(false)
		}
		return zero, apperror.ServiceUnavailable(b.ProviderName)
	}

	var lastErr error
	for attempt := 0; attempt <= b.Retry.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := b.Retry.BaseDelay * time.Duration(1<<uint(attempt-1))
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return zero, ctx.Err()
			case <-timer.C:
			}
		}

		start := time.Now()
		result, err := fn(ctx)
		if b.Metrics != nil {
			b.Metrics.LLMRequestDuration.WithLabelValues(b.ProviderName, model).Observe(time.Since(start).Seconds())
		}
		if err == nil {
			b.Breaker.RecordSuccess()
			b.recordCircuitState()
			if b.Metrics != nil {
				b.Metrics.LLMRequestCounter.WithLabelValues(b.ProviderName, model, "success").Inc()
				b.Metrics.RecordLLMRequest(true)
			}
			return result, nil
		}

		lastErr = err
		if !b.Classify(err) {
			if b.Metrics != nil {
				b.Metrics.LLMRequestCounter.WithLabelValues(b.ProviderName, model, "failure").Inc()
				b.Metrics.RecordLLMRequest(false)
			}
			return zero, err
		}
		b.Breaker.RecordFailure()
		b.recordCircuitState()
		if b.Metrics != nil {
			b.Metrics.LLMRequestCounter.WithLabelValues(b.ProviderName, model, "failure").Inc()
			b.Metrics.RecordLLMRequest(false)
		}
		if b.Logger != nil {
			b.Logger.Warn("provider call failed, retrying", "provider", b.ProviderName, "attempt", attempt, "error", err.Error())
		}
	}
	return zero, fmt.Errorf("provider %s exhausted %d retries: %w", b.ProviderName, b.Retry.MaxRetries, lastErr)
}

// recordCircuitState surfaces the breaker's current state to the
// per-provider circuit-state gauge (§6 "llm.circuitState").
func (b *Base) recordCircuitState() {
	if b.Metrics == nil {
		return
	}
	b.Metrics.CircuitState.WithLabelValues(b.ProviderName).Set(observability.CircuitStateValue(b.Breaker.State()))
}

// ValidateSystemPrompt enforces the §4.A non-empty/max-length rule.
func ValidateSystemPrompt(prompt string, maxLen int) error {
	if prompt == "" {
		return apperror.ValidationError("system prompt must not be empty")
	}
	if maxLen > 0 && len(prompt) > maxLen {
		return apperror.SystemPromptTooLarge(maxLen)
	}
	return nil
}

// promptCache is a bounded LRU keyed by raw prompt text, caching
// provider-prepared payloads to avoid repeated validation/allocation
// (spec §4.A "~20 entries").
type promptCache struct {
	mu       sync.Mutex
	capacity int
	order    *list.List
	index    map[string]*list.Element
}

type promptCacheEntry struct {
	key   string
	value any
}

func newPromptCache(capacity int) *promptCache {
	return &promptCache{
		capacity: capacity,
		order:    list.New(),
		index:    make(map[string]*list.Element),
	}
}

// Get returns the cached value for prompt, if present, moving it to the
// most-recently-used position.
func (c *promptCache) Get(prompt string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.index[prompt]
	if !ok {
		return nil, false
	}
	c.order.MoveToFront(el)
	return el.Value.(*promptCacheEntry).value, true
}

// Put inserts or refreshes prompt's cached value, evicting the
// least-recently-used entry if the cache is at capacity.
func (c *promptCache) Put(prompt string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.index[prompt]; ok {
		el.Value.(*promptCacheEntry).value = value
		c.order.MoveToFront(el)
		return
	}
	el := c.order.PushFront(&promptCacheEntry{key: prompt, value: value})
	c.index[prompt] = el
	if c.order.Len() > c.capacity {
		oldest := c.order.Back()
		if oldest != nil {
			c.order.Remove(oldest)
			delete(c.index, oldest.Value.(*promptCacheEntry).key)
		}
	}
}

// PreparedSystemPrompt returns a cached, provider-specific prepared
// payload for prompt, building and caching it via build on a miss.
func (b *Base) PreparedSystemPrompt(prompt string, build func(string) any) any {
	if v, ok := b.promptCache.Get(prompt); ok {
		return v
	}
	v := build(prompt)
	b.promptCache.Put(prompt, v)
	return v
}
