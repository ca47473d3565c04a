// Package result implements the Result Formatter (spec §4.D): converts
// raw Tool Results into a uniform, presentation-oriented shape and flags
// partial failures.
package result

import (
	"encoding/json"

	"github.com/yieldline-labs/copilot/pkg/models"
)

// typeByToolName is the fixed toolName -> formatter output type mapping
// from spec §4.D.
var typeByToolName = map[string]string{
	"get_gas_prices":         "gas_prices",
	"get_crypto_price":       "crypto_price",
	"get_lending_rates":      "lending_rates",
	"get_token_balance":      "token_balance",
	"get_all_token_balances": "portfolio",
}

// Format reshapes raw Tool Results into the §4.D presentation structure.
// Successful results are passed through as data (tool executors already
// produce the presentation-shaped payload, e.g. gas prices as
// {slow,standard,fast}:{gwei,usdCost}); failures carry a short
// user-safe message and retain the toolCallId for correlation.
func Format(results []models.ToolResult) *models.FormattedResult {
	entries := make([]models.FormattedEntry, 0, len(results))
	errorCount := 0

	for _, r := range results {
		entryType, known := typeByToolName[r.ToolName]
		if !known {
			entryType = r.ToolName
		}

		entry := models.FormattedEntry{
			Type:       entryType,
			ToolCallID: r.ToolCallID,
			Success:    r.Success,
		}
		if r.Success {
			entry.Data = r.Result
		} else {
			errorCount++
			entry.Message = userSafeMessage(r.Error)
		}
		entries = append(entries, entry)
	}

	return &models.FormattedResult{
		Results:    entries,
		HasErrors:  errorCount > 0,
		ErrorCount: errorCount,
	}
}

// userSafeMessage trims a raw tool error down to something presentable
// to an end user. Tool errors in this system are already short and
// user-safe (executors never leak stack traces or internal detail); this
// exists as the single seam a future executor with noisier errors would
// need to sanitize through.
func userSafeMessage(raw string) string {
	if raw == "" {
		return "the request could not be completed"
	}
	return raw
}

// MarshalData is a convenience for tool executors building a
// json.RawMessage result payload.
func MarshalData(v any) (json.RawMessage, error) {
	return json.Marshal(v)
}
