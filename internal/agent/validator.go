package agent

import (
	"encoding/json"

	"github.com/yieldline-labs/copilot/internal/observability"
	"github.com/yieldline-labs/copilot/pkg/models"
)

// rawToolCall is the heterogenous shape an LLM provider may emit before
// normalization (spec §3 "Tool Call" / §4.C): either a flat
// {id,name,arguments} or a nested {id,function:{name,arguments}} where
// arguments is itself a JSON-encoded string.
type rawToolCall struct {
	ID        string          `json:"id"`
	Name      string          `json:"name,omitempty"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
	Function  *rawFunction    `json:"function,omitempty"`
}

type rawFunction struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// NormalizeToolCalls filters and normalizes a raw tool-call sequence to
// the canonical models.ToolCall shape (spec §4.C). A call is valid iff it
// has a non-empty id and a resolvable name (top-level or nested
// function.name); nested argument strings that fail to parse, and
// array-typed arguments, are dropped with a warning logged via logger (if
// non-nil). Already-normalized input round-trips unchanged.
func NormalizeToolCalls(raw []rawToolCall, logger *observability.Logger) []models.ToolCall {
	out := make([]models.ToolCall, 0, len(raw))
	for _, r := range raw {
		call, ok := normalizeOne(r, logger)
		if ok {
			out = append(out, call)
		}
	}
	return out
}

func normalizeOne(r rawToolCall, logger *observability.Logger) (models.ToolCall, bool) {
	if r.ID == "" {
		warn(logger, "dropping tool call with empty id")
		return models.ToolCall{}, false
	}

	name := r.Name
	var args json.RawMessage = r.Arguments

	if name == "" && r.Function != nil {
		name = r.Function.Name
	}
	if name == "" {
		warn(logger, "dropping tool call with no resolvable name", "id", r.ID)
		return models.ToolCall{}, false
	}

	if r.Function != nil && r.Function.Arguments != "" {
		var parsed json.RawMessage
		if err := json.Unmarshal([]byte(r.Function.Arguments), &parsed); err != nil {
			warn(logger, "dropping tool call with unparseable nested arguments", "id", r.ID, "error", err.Error())
			return models.ToolCall{}, false
		}
		args = parsed
	}

	if len(args) == 0 {
		args = json.RawMessage("{}")
	}
	if isJSONArray(args) {
		warn(logger, "dropping tool call with array-typed arguments", "id", r.ID)
		return models.ToolCall{}, false
	}

	return models.ToolCall{ID: r.ID, Name: name, Arguments: args}, true
}

// ValidateToolCalls re-applies the §4.C validity rule (non-empty id,
// resolvable name, non-array arguments) to already-normalized
// models.ToolCall values returned by a Provider, discarding invalid
// entries with a warning. This is the identity on input a provider has
// already normalized correctly (spec §8 "normalizing an already-
// normalized tool-call is the identity").
func ValidateToolCalls(calls []models.ToolCall, logger *observability.Logger) []models.ToolCall {
	out := make([]models.ToolCall, 0, len(calls))
	for _, c := range calls {
		if c.ID == "" {
			warn(logger, "dropping tool call with empty id")
			continue
		}
		if c.Name == "" {
			warn(logger, "dropping tool call with no resolvable name", "id", c.ID)
			continue
		}
		args := c.Arguments
		if len(args) == 0 {
			args = json.RawMessage("{}")
		}
		if isJSONArray(args) {
			warn(logger, "dropping tool call with array-typed arguments", "id", c.ID)
			continue
		}
		out = append(out, models.ToolCall{ID: c.ID, Name: c.Name, Arguments: args})
	}
	return out
}

func isJSONArray(raw json.RawMessage) bool {
	for _, b := range raw {
		switch b {
		case ' ', '\t', '\n', '\r':
			continue
		case '[':
			return true
		default:
			return false
		}
	}
	return false
}

func warn(logger *observability.Logger, msg string, args ...any) {
	if logger != nil {
		logger.Warn(msg, args...)
	}
}
