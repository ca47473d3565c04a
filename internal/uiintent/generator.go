// Package uiintent implements the UI-Intent Generator (spec §4.E): given
// tool results and the turn's text, emits RENDER_COMPONENT descriptors
// telling the client which presentation component to show.
package uiintent

import (
	"strings"

	"github.com/yieldline-labs/copilot/pkg/models"
)

const renderComponent = "RENDER_COMPONENT"

// toolComponent is the tool-driven rule table from spec §4.E: each
// successful tool name maps to exactly one component. get_crypto_price is
// deliberately absent (§9 open question: no default UI mapping).
var toolComponent = map[string]string{
	"get_gas_prices":         "NetworkStatus",
	"get_token_balance":      "YourAssets",
	"get_all_token_balances": "YourAssets",
	"get_lending_rates":      "LendingSection",
}

// patternRules is the keyword-driven rule table from spec §4.E,
// checked in the listed order against the case-folded user text.
var patternRules = []struct {
	keywords  []string
	component string
}{
	{[]string{"gas", "fee"}, "NetworkStatus"},
	{[]string{"swap", "exchange", "trade", "dex"}, "TokenSwap"},
	{[]string{"lend", "apy", "earn", "interest"}, "LendingSection"},
	{[]string{"balance", "asset", "portfolio"}, "YourAssets"},
	{[]string{"perpetual", "leverage", "perp"}, "PerpetualsSection"},
	{[]string{"activity", "history", "transactions"}, "RecentActivity"},
}

// toolNameComponentExtra covers names mentioned in §4.E's rule prose that
// aren't backed by a registered tool in this system (swap, perpetual,
// activity) but are kept so a future tool of that name picks up tool-driven
// mapping for free.
var toolNameComponentExtra = map[string]string{
	"swap":      "TokenSwap",
	"perpetual": "PerpetualsSection",
	"leverage":  "PerpetualsSection",
	"activity":  "RecentActivity",
	"history":   "RecentActivity",
}

// Generate produces zero or more RENDER_COMPONENT intents from
// toolResults and the turn's user/assistant text, consulting the
// tool-driven rules first and falling back to pattern-driven keyword
// matching on userText. Duplicate components are suppressed.
func Generate(toolResults []models.ToolResult, userText, assistantText string) []models.UIIntent {
	seen := make(map[string]bool)
	var intents []models.UIIntent

	for _, r := range toolResults {
		if !r.Success {
			continue
		}
		component, ok := toolComponent[r.ToolName]
		if !ok {
			component, ok = toolNameComponentExtra[r.ToolName]
		}
		if !ok || seen[component] {
			continue
		}
		seen[component] = true
		intents = append(intents, models.UIIntent{Type: renderComponent, Component: component})
	}

	if len(intents) > 0 {
		return intents
	}

	lower := strings.ToLower(userText)
	for _, rule := range patternRules {
		if seen[rule.component] {
			continue
		}
		for _, kw := range rule.keywords {
			if strings.Contains(lower, kw) {
				seen[rule.component] = true
				intents = append(intents, models.UIIntent{Type: renderComponent, Component: rule.component})
				break
			}
		}
	}

	return intents
}
