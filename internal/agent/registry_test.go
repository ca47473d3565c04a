package agent

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/yieldline-labs/copilot/internal/apperror"
	"github.com/yieldline-labs/copilot/pkg/models"
)

func echoSchema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {"value": {"type": "string"}},
		"required": ["value"]
	}`)
}

func TestRegistry_ExecuteSuccess(t *testing.T) {
	reg := NewRegistry()
	if err := reg.Register("echo", "echoes value", echoSchema(), func(ctx context.Context, args json.RawMessage) (json.RawMessage, error) {
		return args, nil
	}); err != nil {
		t.Fatalf("register: %v", err)
	}

	call := models.ToolCall{ID: "c1", Name: "echo", Arguments: json.RawMessage(`{"value":"hi"}`)}
	res := reg.Execute(context.Background(), call)

	if !res.Success {
		t.Fatalf("expected success, got error %q", res.Error)
	}
	if res.ToolCallID != "c1" || res.ToolName != "echo" {
		t.Fatalf("unexpected result shape: %+v", res)
	}
}

func TestRegistry_UnknownTool(t *testing.T) {
	reg := NewRegistry()
	res := reg.Execute(context.Background(), models.ToolCall{ID: "c1", Name: "nonexistent"})
	if res.Success {
		t.Fatalf("expected failure for unknown tool")
	}
	if res.Classification != apperror.CodeUnknownTool {
		t.Fatalf("expected classification %s, got %s", apperror.CodeUnknownTool, res.Classification)
	}
}

func TestRegistry_SchemaViolation(t *testing.T) {
	reg := NewRegistry()
	_ = reg.Register("echo", "echoes value", echoSchema(), func(ctx context.Context, args json.RawMessage) (json.RawMessage, error) {
		return args, nil
	})

	res := reg.Execute(context.Background(), models.ToolCall{ID: "c1", Name: "echo", Arguments: json.RawMessage(`{}`)})
	if res.Success {
		t.Fatalf("expected schema validation failure for missing required field")
	}
	if res.Classification != apperror.CodeValidationError {
		t.Fatalf("expected validation classification, got %s", res.Classification)
	}
}

func TestRegistry_ExecutorError(t *testing.T) {
	reg := NewRegistry()
	_ = reg.Register("echo", "echoes value", echoSchema(), func(ctx context.Context, args json.RawMessage) (json.RawMessage, error) {
		return nil, context.DeadlineExceeded
	})

	res := reg.Execute(context.Background(), models.ToolCall{ID: "c1", Name: "echo", Arguments: json.RawMessage(`{"value":"hi"}`)})
	if res.Success {
		t.Fatalf("expected failure when executor errors")
	}
	if res.Error == "" {
		t.Fatalf("expected non-empty error message")
	}
}

func TestRegistry_AsLLMTools(t *testing.T) {
	reg := NewRegistry()
	_ = reg.Register("echo", "echoes value", echoSchema(), func(ctx context.Context, args json.RawMessage) (json.RawMessage, error) {
		return args, nil
	})
	schemas := reg.AsLLMTools()
	if len(schemas) != 1 || schemas[0].Name != "echo" {
		t.Fatalf("unexpected schemas: %+v", schemas)
	}
}
