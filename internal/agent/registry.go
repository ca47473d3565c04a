package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/yieldline-labs/copilot/internal/apperror"
	"github.com/yieldline-labs/copilot/pkg/models"
)

func bytesReader(b []byte) io.Reader { return bytes.NewReader(b) }

// Executor performs one tool invocation against validated arguments.
type Executor func(ctx context.Context, args json.RawMessage) (json.RawMessage, error)

// tool is one registered name -> {description, schema, executor} entry
// (spec §4.B).
type tool struct {
	name        string
	description string
	rawSchema   json.RawMessage
	schema      *jsonschema.Schema
	executor    Executor
}

// Registry maps tool names to their schema and executor. Safe for
// concurrent use; callers register tools once at startup and only read
// afterward, but the lock also protects against dynamic
// registration/deregistration if a future caller needs it.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]*tool
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]*tool)}
}

// Register adds a tool, compiling its JSON schema eagerly so malformed
// schemas fail at startup rather than on first call.
func (r *Registry) Register(name, description string, schema json.RawMessage, exec Executor) error {
	compiled, err := compileSchema(name, schema)
	if err != nil {
		return fmt.Errorf("register tool %s: %w", name, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[name] = &tool{
		name:        name,
		description: description,
		rawSchema:   schema,
		schema:      compiled,
		executor:    exec,
	}
	return nil
}

func compileSchema(name string, schema json.RawMessage) (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	url := "mem://tools/" + name + ".json"
	if err := compiler.AddResource(url, bytesReader(schema)); err != nil {
		return nil, err
	}
	return compiler.Compile(url)
}

// AsLLMTools returns every registered tool's schema in the shape the LLM
// Adapter sends to a provider.
func (r *Registry) AsLLMTools() []ToolSchema {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]ToolSchema, 0, len(r.tools))
	for _, t := range r.tools {
		out = append(out, ToolSchema{Name: t.name, Description: t.description, Parameters: t.rawSchema})
	}
	return out
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.tools[name]
	return ok
}

// Execute validates args against the named tool's schema and invokes its
// executor, returning a Tool Result. Unknown tool names return
// UnknownTool without invoking anything (spec §4.B); schema violations and
// executor errors are captured as success=false rather than propagated.
func (r *Registry) Execute(ctx context.Context, call models.ToolCall) models.ToolResult {
	start := time.Now()

	r.mu.RLock()
	t, ok := r.tools[call.Name]
	r.mu.RUnlock()
	if !ok {
		err := apperror.UnknownTool(call.Name)
		return models.ToolResult{
			ToolName:       call.Name,
			ToolCallID:     call.ID,
			Success:        false,
			Error:          err.Message,
			Classification: err.Code,
			ExecutionTime:  time.Since(start),
		}
	}

	if err := validateArgs(t, call.Arguments); err != nil {
		return models.ToolResult{
			ToolName:       call.Name,
			ToolCallID:     call.ID,
			Success:        false,
			Error:          err.Error(),
			Classification: apperror.CodeValidationError,
			ExecutionTime:  time.Since(start),
		}
	}

	result, err := t.executor(ctx, call.Arguments)
	if err != nil {
		code := apperror.CodeToolError
		if appErr, ok := apperror.As(err); ok {
			code = appErr.Code
		}
		return models.ToolResult{
			ToolName:       call.Name,
			ToolCallID:     call.ID,
			Success:        false,
			Error:          err.Error(),
			Classification: code,
			ExecutionTime:  time.Since(start),
		}
	}

	return models.ToolResult{
		ToolName:      call.Name,
		ToolCallID:    call.ID,
		Success:       true,
		Result:        result,
		ExecutionTime: time.Since(start),
	}
}

func validateArgs(t *tool, args json.RawMessage) error {
	if len(args) == 0 {
		args = json.RawMessage("{}")
	}
	var v any
	if err := json.Unmarshal(args, &v); err != nil {
		return fmt.Errorf("arguments are not valid JSON: %w", err)
	}
	if err := t.schema.Validate(v); err != nil {
		return fmt.Errorf("arguments do not match schema: %w", err)
	}
	return nil
}
