package agent

import (
	"encoding/json"
	"testing"

	"github.com/yieldline-labs/copilot/pkg/models"
)

func TestNormalizeToolCalls(t *testing.T) {
	raw := []rawToolCall{
		{ID: "c1", Name: "get_gas_prices", Arguments: json.RawMessage(`{"network":"ethereum"}`)},
		{ID: "c2", Function: &rawFunction{Name: "get_crypto_price", Arguments: `{"symbol":"BTC"}`}},
		{ID: "", Name: "dropped_missing_id"},
		{ID: "c3"}, // no name anywhere
		{ID: "c4", Function: &rawFunction{Name: "bad_json", Arguments: `{not json`}},
		{ID: "c5", Name: "array_args", Arguments: json.RawMessage(`[1,2,3]`)},
	}

	got := NormalizeToolCalls(raw, nil)

	if len(got) != 2 {
		t.Fatalf("expected 2 valid calls, got %d: %+v", len(got), got)
	}
	if got[0].ID != "c1" || got[0].Name != "get_gas_prices" {
		t.Fatalf("unexpected first call: %+v", got[0])
	}
	if got[1].ID != "c2" || got[1].Name != "get_crypto_price" {
		t.Fatalf("unexpected second call: %+v", got[1])
	}
	var args map[string]any
	if err := json.Unmarshal(got[1].Arguments, &args); err != nil || args["symbol"] != "BTC" {
		t.Fatalf("expected parsed nested arguments, got %s (err=%v)", got[1].Arguments, err)
	}
}

func TestValidateToolCalls_IdentityOnNormalized(t *testing.T) {
	in := []models.ToolCall{
		{ID: "c1", Name: "get_gas_prices", Arguments: json.RawMessage(`{"network":"ethereum"}`)},
	}
	out := ValidateToolCalls(in, nil)
	if len(out) != 1 || out[0].ID != in[0].ID || out[0].Name != in[0].Name || string(out[0].Arguments) != string(in[0].Arguments) {
		t.Fatalf("expected identity on already-normalized input, got %+v", out)
	}
}

func TestValidateToolCalls_DropsInvalid(t *testing.T) {
	in := []models.ToolCall{
		{ID: "", Name: "x"},
		{ID: "c1", Name: ""},
		{ID: "c2", Name: "ok", Arguments: json.RawMessage(`[1]`)},
		{ID: "c3", Name: "ok"},
	}
	out := ValidateToolCalls(in, nil)
	if len(out) != 1 || out[0].ID != "c3" {
		t.Fatalf("expected only c3 to survive, got %+v", out)
	}
}
