package apperror

import (
	"errors"
	"testing"
)

func TestAs_UnwrapsWrappedError(t *testing.T) {
	base := RateLimit(errors.New("upstream 429"), 5)
	wrapped := errors.New("while calling provider: " + base.Error())

	if _, ok := As(wrapped); ok {
		t.Fatalf("plain wrapped text should not satisfy errors.As")
	}

	var viaFmt error = fmtWrap(base)
	found, ok := As(viaFmt)
	if !ok {
		t.Fatalf("expected errors.As to find wrapped *Error")
	}
	if found.Code != CodeRateLimit {
		t.Fatalf("expected %s, got %s", CodeRateLimit, found.Code)
	}
}

func fmtWrap(err error) error {
	return &wrapper{cause: err}
}

type wrapper struct{ cause error }

func (w *wrapper) Error() string { return "wrapped: " + w.cause.Error() }
func (w *wrapper) Unwrap() error { return w.cause }

func TestRetryable(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"structured retryable", RateLimit(nil, 0), true},
		{"structured non-retryable", ValidationError("bad address"), false},
		{"text rate limit", errors.New("429 rate limit exceeded"), true},
		{"text auth failure", errors.New("401 unauthorized"), false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := Retryable(c.err); got != c.want {
				t.Fatalf("Retryable(%v) = %v, want %v", c.err, got, c.want)
			}
		})
	}
}

func TestClassifyHTTPStatus(t *testing.T) {
	if !ClassifyHTTPStatus(429) {
		t.Fatalf("429 should be retryable")
	}
	if !ClassifyHTTPStatus(503) {
		t.Fatalf("503 should be retryable")
	}
	if ClassifyHTTPStatus(400) {
		t.Fatalf("400 should not be retryable")
	}
}

func TestDescriptor(t *testing.T) {
	err := UnknownTool("get_unicorn_price")
	code, message, category, severity, retryable, _ := err.Descriptor()
	if code != CodeUnknownTool {
		t.Fatalf("expected code %s, got %s", CodeUnknownTool, code)
	}
	if category != string(CategoryTool) || severity != string(SeverityLow) || retryable {
		t.Fatalf("unexpected classification: %s/%s/%v", category, severity, retryable)
	}
	if message == "" {
		t.Fatalf("expected non-empty message")
	}
}
