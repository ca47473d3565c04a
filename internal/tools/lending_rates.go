package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

type lendingRatesTool struct{}

func newLendingRates() *lendingRatesTool { return &lendingRatesTool{} }

func (t *lendingRatesTool) Name() string { return "get_lending_rates" }

func (t *lendingRatesTool) Description() string {
	return "Get supply/borrow APY and utilization for a token across lending protocols."
}

func (t *lendingRatesTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"token": {"type": "string"},
			"protocols": {
				"type": "array",
				"items": {"type": "string"}
			}
		},
		"required": ["token"]
	}`)
}

type protocolRate struct {
	Protocol        string  `json:"protocol"`
	Symbol          string  `json:"symbol"`
	SupplyAPY       float64 `json:"supplyAPY"`
	BorrowAPY       float64 `json:"borrowAPY"`
	TotalSupply     float64 `json:"totalSupply"`
	TotalBorrow     float64 `json:"totalBorrow"`
	UtilizationRate float64 `json:"utilizationRate"`
}

type lendingRatesResult struct {
	Token     string         `json:"token"`
	Protocols []protocolRate `json:"protocols"`
	Timestamp string         `json:"timestamp"`
}

var allLendingProtocols = []string{"aave", "compound", "spark"}

func (t *lendingRatesTool) Execute(ctx context.Context, args json.RawMessage) (json.RawMessage, error) {
	var in struct {
		Token     string   `json:"token"`
		Protocols []string `json:"protocols"`
	}
	if err := json.Unmarshal(args, &in); err != nil {
		return nil, fmt.Errorf("invalid arguments: %w", err)
	}
	token := strings.ToUpper(strings.TrimSpace(in.Token))
	if token == "" {
		return nil, fmt.Errorf("token is required")
	}

	protocols := in.Protocols
	if len(protocols) == 0 {
		protocols = allLendingProtocols
	}

	out := lendingRatesResult{Token: token, Timestamp: nowISO()}
	for i, p := range protocols {
		supply := 1_000_000.0 * float64(i+1)
		borrow := supply * 0.6
		out.Protocols = append(out.Protocols, protocolRate{
			Protocol:        p,
			Symbol:          token,
			SupplyAPY:       2.5 + float64(i)*0.3,
			BorrowAPY:       4.1 + float64(i)*0.4,
			TotalSupply:     supply,
			TotalBorrow:     borrow,
			UtilizationRate: borrow / supply,
		})
	}
	return json.Marshal(out)
}
