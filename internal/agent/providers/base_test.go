package providers

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/yieldline-labs/copilot/internal/infra"
)

func testBase() *Base {
	breaker := infra.NewCircuitBreaker(infra.CircuitBreakerConfig{FailureThreshold: 3, ResetTimeout: time.Second})
	return NewBase("test", RetryConfig{MaxRetries: 2, BaseDelay: time.Millisecond}, breaker, nil, nil, ClassifyError)
}

func TestDo_RetriesRetryableThenSucceeds(t *testing.T) {
	b := testBase()
	attempts := 0
	result, err := Do(context.Background(), b, "test-model", func(ctx context.Context) (string, error) {
		attempts++
		if attempts < 2 {
			return "", errors.New("503 upstream error")
		}
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != "ok" {
		t.Fatalf("expected ok, got %s", result)
	}
	if attempts != 2 {
		t.Fatalf("expected 2 attempts, got %d", attempts)
	}
}

func TestDo_NonRetryableFailsImmediately(t *testing.T) {
	b := testBase()
	attempts := 0
	_, err := Do(context.Background(), b, "test-model", func(ctx context.Context) (string, error) {
		attempts++
		return "", errors.New("invalid_api_key: unauthorized")
	})
	if err == nil {
		t.Fatalf("expected error")
	}
	if attempts != 1 {
		t.Fatalf("expected exactly 1 attempt for non-retryable error, got %d", attempts)
	}
}

func TestDo_CircuitOpenFailsFast(t *testing.T) {
	breaker := infra.NewCircuitBreaker(infra.CircuitBreakerConfig{FailureThreshold: 1, ResetTimeout: time.Hour})
	b := NewBase("test", RetryConfig{MaxRetries: 0, BaseDelay: time.Millisecond}, breaker, nil, nil, ClassifyError)
	breaker.RecordFailure()

	attempts := 0
	_, err := Do(context.Background(), b, "test-model", func(ctx context.Context) (string, error) {
		attempts++
		return "ok", nil
	})
	if err == nil {
		t.Fatalf("expected ServiceUnavailable error")
	}
	if attempts != 0 {
		t.Fatalf("expected no attempts when circuit is open, got %d", attempts)
	}
}

func TestValidateSystemPrompt(t *testing.T) {
	if err := ValidateSystemPrompt("", 100); err == nil {
		t.Fatalf("expected error for empty prompt")
	}
	if err := ValidateSystemPrompt("short", 100); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	long := make([]byte, 101)
	for i := range long {
		long[i] = 'a'
	}
	if err := ValidateSystemPrompt(string(long), 100); err == nil {
		t.Fatalf("expected SYSTEM_PROMPT_TOO_LARGE error")
	}
}

func TestPromptCache_LRUEviction(t *testing.T) {
	b := testBase()
	calls := 0
	build := func(s string) any {
		calls++
		return s + "-prepared"
	}

	for i := 0; i < 25; i++ {
		b.PreparedSystemPrompt(string(rune('a'+i%26)), build)
	}
	if calls == 0 {
		t.Fatalf("expected build to be called")
	}

	// Re-requesting the most recent prompt should hit cache (no new build).
	before := calls
	b.PreparedSystemPrompt(string(rune('a'+24%26)), build)
	if calls != before {
		t.Fatalf("expected cache hit for recently used prompt, build was called again")
	}

	// 25 distinct prompts into a 20-entry cache push out the five oldest,
	// so the very first prompt must be rebuilt.
	before = calls
	b.PreparedSystemPrompt("a", build)
	if calls != before+1 {
		t.Fatalf("expected least-recently-used prompt to have been evicted, build was not called")
	}
}
