package providers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/yieldline-labs/copilot/internal/apperror"
)

// statusCoder is implemented by errors that expose an HTTP status through
// a StatusCode() method. The go-openai and anthropic-sdk-go error types
// carry the status as a struct field instead, so their errors are
// classified by message text below.
type statusCoder interface {
	StatusCode() int
}

// ClassifyError decides whether err should trigger a retry, per the
// §4.A policy: non-retryable for auth/malformed-request/quota/context-
// length/system-prompt-too-large, retryable for transient
// transport/5xx/rate-limit/stream-reset.
func ClassifyError(err error) bool {
	if err == nil {
		return false
	}
	if appErr, ok := apperror.As(err); ok {
		return appErr.Retryable
	}
	var sc statusCoder
	if errors.As(err, &sc) {
		return apperror.ClassifyHTTPStatus(sc.StatusCode())
	}

	s := strings.ToLower(err.Error())
	switch {
	case strings.Contains(s, "invalid_api_key"), strings.Contains(s, "unauthorized"),
		strings.Contains(s, "invalid request"), strings.Contains(s, "context length"),
		strings.Contains(s, "quota"), strings.Contains(s, "content_filter"):
		return false
	case strings.Contains(s, "rate limit"), strings.Contains(s, "429"),
		strings.Contains(s, "timeout"), strings.Contains(s, "deadline exceeded"),
		strings.Contains(s, "connection reset"), strings.Contains(s, "stream reset"),
		strings.Contains(s, "502"), strings.Contains(s, "503"), strings.Contains(s, "500"):
		return true
	default:
		return false
	}
}

// WrapTerminal converts an exhausted-retries or non-retryable provider
// error into the §7 taxonomy, choosing RATE_LIMIT over the generic
// LLM_ERROR when the upstream message indicates rate limiting.
func WrapTerminal(providerName string, err error) *apperror.Error {
	if appErr, ok := apperror.As(err); ok {
		return appErr
	}
	var sc statusCoder
	if errors.As(err, &sc) && sc.StatusCode() == http.StatusTooManyRequests {
		return apperror.RateLimit(err, 0)
	}
	if strings.Contains(strings.ToLower(err.Error()), "rate limit") {
		return apperror.RateLimit(err, 0)
	}
	return apperror.LLMError(err)
}
