package result

import (
	"encoding/json"
	"testing"

	"github.com/yieldline-labs/copilot/pkg/models"
)

func TestFormat_MapsKnownToolNames(t *testing.T) {
	results := []models.ToolResult{
		{ToolName: "get_gas_prices", ToolCallID: "c1", Success: true, Result: json.RawMessage(`{"network":"ethereum"}`)},
		{ToolName: "get_crypto_price", ToolCallID: "c2", Success: true, Result: json.RawMessage(`{"symbol":"BTC"}`)},
	}

	out := Format(results)

	if out.HasErrors {
		t.Fatalf("expected no errors")
	}
	if out.ErrorCount != 0 {
		t.Fatalf("expected error count 0, got %d", out.ErrorCount)
	}
	if out.Results[0].Type != "gas_prices" {
		t.Fatalf("expected gas_prices, got %s", out.Results[0].Type)
	}
	if out.Results[1].Type != "crypto_price" {
		t.Fatalf("expected crypto_price, got %s", out.Results[1].Type)
	}
}

func TestFormat_FlagsPartialFailure(t *testing.T) {
	results := []models.ToolResult{
		{ToolName: "get_gas_prices", ToolCallID: "c1", Success: true, Result: json.RawMessage(`{}`)},
		{ToolName: "get_lending_rates", ToolCallID: "c2", Success: false, Error: "Service unavailable"},
	}

	out := Format(results)

	if !out.HasErrors {
		t.Fatalf("expected HasErrors true")
	}
	if out.ErrorCount != 1 {
		t.Fatalf("expected error count 1, got %d", out.ErrorCount)
	}
	if out.Results[1].Message != "Service unavailable" {
		t.Fatalf("expected failure message preserved, got %q", out.Results[1].Message)
	}
	if out.Results[1].ToolCallID != "c2" {
		t.Fatalf("expected toolCallId correlation preserved")
	}
}

func TestTypeMapping_AllFiveTools(t *testing.T) {
	want := map[string]string{
		"get_gas_prices":         "gas_prices",
		"get_crypto_price":       "crypto_price",
		"get_lending_rates":      "lending_rates",
		"get_token_balance":      "token_balance",
		"get_all_token_balances": "portfolio",
	}
	for toolName, wantType := range want {
		out := Format([]models.ToolResult{{ToolName: toolName, Success: true}})
		if out.Results[0].Type != wantType {
			t.Fatalf("%s: expected %s, got %s", toolName, wantType, out.Results[0].Type)
		}
	}
}
