package tools

import (
	"context"
	"encoding/json"
	"fmt"
)

type tokenBalanceTool struct{}

func newTokenBalance() *tokenBalanceTool { return &tokenBalanceTool{} }

func (t *tokenBalanceTool) Name() string { return "get_token_balance" }

func (t *tokenBalanceTool) Description() string {
	return "Get the balance of a single token (native or ERC-20-style) for an address."
}

func (t *tokenBalanceTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"address": {"type": "string"},
			"network": {"type": "string", "default": "ethereum"},
			"tokenAddress": {"type": "string"}
		},
		"required": ["address"]
	}`)
}

type tokenBalanceResult struct {
	Address      string  `json:"address"`
	Network      string  `json:"network"`
	TokenAddress string  `json:"tokenAddress,omitempty"`
	Symbol       string  `json:"symbol"`
	Balance      float64 `json:"balance"`
	USDValue     float64 `json:"usdValue"`
	Timestamp    string  `json:"timestamp"`
}

func (t *tokenBalanceTool) Execute(ctx context.Context, args json.RawMessage) (json.RawMessage, error) {
	var in struct {
		Address      string `json:"address"`
		Network      string `json:"network"`
		TokenAddress string `json:"tokenAddress"`
	}
	if err := json.Unmarshal(args, &in); err != nil {
		return nil, fmt.Errorf("invalid arguments: %w", err)
	}
	if in.Address == "" {
		return nil, fmt.Errorf("address is required")
	}
	if in.Network == "" {
		in.Network = "ethereum"
	}

	symbol := "ETH"
	price := fixturePrices["ETH"]
	if in.TokenAddress != "" {
		symbol = "TOKEN"
		price = 1
	}

	out := tokenBalanceResult{
		Address:      in.Address,
		Network:      in.Network,
		TokenAddress: in.TokenAddress,
		Symbol:       symbol,
		Balance:      1.5,
		USDValue:     1.5 * price,
		Timestamp:    nowISO(),
	}
	return json.Marshal(out)
}

type allTokenBalancesTool struct{}

func newAllTokenBalances() *allTokenBalancesTool { return &allTokenBalancesTool{} }

func (t *allTokenBalancesTool) Name() string { return "get_all_token_balances" }

func (t *allTokenBalancesTool) Description() string {
	return "Get the full token balance breakdown (portfolio) for an address."
}

func (t *allTokenBalancesTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"address": {"type": "string"},
			"network": {"type": "string", "default": "ethereum"}
		},
		"required": ["address"]
	}`)
}

type portfolioEntry struct {
	Symbol   string  `json:"symbol"`
	Balance  float64 `json:"balance"`
	USDValue float64 `json:"usdValue"`
}

type allTokenBalancesResult struct {
	Address        string           `json:"address"`
	Network        string           `json:"network"`
	Balances       []portfolioEntry `json:"balances"`
	TotalUSDValue  float64          `json:"totalUsdValue"`
	Timestamp      string           `json:"timestamp"`
}

func (t *allTokenBalancesTool) Execute(ctx context.Context, args json.RawMessage) (json.RawMessage, error) {
	var in struct {
		Address string `json:"address"`
		Network string `json:"network"`
	}
	if err := json.Unmarshal(args, &in); err != nil {
		return nil, fmt.Errorf("invalid arguments: %w", err)
	}
	if in.Address == "" {
		return nil, fmt.Errorf("address is required")
	}
	if in.Network == "" {
		in.Network = "ethereum"
	}

	balances := []portfolioEntry{
		{Symbol: "ETH", Balance: 1.5, USDValue: 1.5 * fixturePrices["ETH"]},
		{Symbol: "USDC", Balance: 500, USDValue: 500 * fixturePrices["USDC"]},
	}
	var total float64
	for _, b := range balances {
		total += b.USDValue
	}

	out := allTokenBalancesResult{
		Address:       in.Address,
		Network:       in.Network,
		Balances:      balances,
		TotalUSDValue: total,
		Timestamp:     nowISO(),
	}
	return json.Marshal(out)
}
