package tools

import (
	"context"
	"encoding/json"
	"fmt"
)

type gasPricesTool struct{}

func newGasPrices() *gasPricesTool { return &gasPricesTool{} }

func (t *gasPricesTool) Name() string { return "get_gas_prices" }

func (t *gasPricesTool) Description() string {
	return "Get current gas prices (slow/standard/fast) for a supported network."
}

func (t *gasPricesTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"network": {
				"type": "string",
				"enum": ["ethereum", "polygon", "bsc", "arbitrum", "optimism"],
				"default": "ethereum"
			}
		}
	}`)
}

type gasTier struct {
	Gwei    float64 `json:"gwei"`
	USDCost float64 `json:"usdCost"`
}

type gasPricesResult struct {
	Network    string `json:"network"`
	GasPrices  struct {
		Slow     gasTier `json:"slow"`
		Standard gasTier `json:"standard"`
		Fast     gasTier `json:"fast"`
	} `json:"gasPrices"`
	Timestamp string `json:"timestamp"`
	Source    string `json:"source"`
}

// baseGwei is an illustrative per-network baseline; a real deployment
// wires this tool to a live gas oracle instead.
var baseGwei = map[string]float64{
	"ethereum": 15,
	"polygon":  80,
	"bsc":      5,
	"arbitrum": 0.1,
	"optimism": 0.1,
}

func (t *gasPricesTool) Execute(ctx context.Context, args json.RawMessage) (json.RawMessage, error) {
	var in struct {
		Network string `json:"network"`
	}
	if len(args) > 0 {
		if err := json.Unmarshal(args, &in); err != nil {
			return nil, fmt.Errorf("invalid arguments: %w", err)
		}
	}
	if in.Network == "" {
		in.Network = "ethereum"
	}
	base, ok := baseGwei[in.Network]
	if !ok {
		return nil, fmt.Errorf("unsupported network: %s", in.Network)
	}

	out := gasPricesResult{Network: in.Network, Timestamp: nowISO(), Source: "fixture"}
	out.GasPrices.Slow = gasTier{Gwei: base * 0.67, USDCost: base * 0.67 * 0.03}
	out.GasPrices.Standard = gasTier{Gwei: base, USDCost: base * 0.03}
	out.GasPrices.Fast = gasTier{Gwei: base * 1.33, USDCost: base * 1.33 * 0.03}

	return json.Marshal(out)
}
