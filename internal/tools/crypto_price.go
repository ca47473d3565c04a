package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

type cryptoPriceTool struct{}

func newCryptoPrice() *cryptoPriceTool { return &cryptoPriceTool{} }

func (t *cryptoPriceTool) Name() string { return "get_crypto_price" }

func (t *cryptoPriceTool) Description() string {
	return "Get the current spot price and 24h stats for a crypto asset."
}

func (t *cryptoPriceTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"symbol": {"type": "string"},
			"currency": {"type": "string", "default": "USD"}
		},
		"required": ["symbol"]
	}`)
}

type cryptoPriceResult struct {
	Symbol      string  `json:"symbol"`
	Price       float64 `json:"price"`
	Currency    string  `json:"currency"`
	Change24h   float64 `json:"change_24h"`
	Volume24h   float64 `json:"volume_24h"`
	MarketCap   float64 `json:"market_cap"`
	Timestamp   string  `json:"timestamp"`
	Source      string  `json:"source"`
}

// fixturePrices stands in for a live price feed (see package doc).
var fixturePrices = map[string]float64{
	"BTC": 64000,
	"ETH": 3200,
	"SOL": 150,
	"USDC": 1,
	"USDT": 1,
}

func (t *cryptoPriceTool) Execute(ctx context.Context, args json.RawMessage) (json.RawMessage, error) {
	var in struct {
		Symbol   string `json:"symbol"`
		Currency string `json:"currency"`
	}
	if err := json.Unmarshal(args, &in); err != nil {
		return nil, fmt.Errorf("invalid arguments: %w", err)
	}
	symbol := strings.ToUpper(strings.TrimSpace(in.Symbol))
	if symbol == "" {
		return nil, fmt.Errorf("symbol is required")
	}
	if in.Currency == "" {
		in.Currency = "USD"
	}
	price, ok := fixturePrices[symbol]
	if !ok {
		return nil, fmt.Errorf("unsupported symbol: %s", symbol)
	}

	out := cryptoPriceResult{
		Symbol:    symbol,
		Price:     price,
		Currency:  in.Currency,
		Change24h: 1.2,
		Volume24h: price * 1_000_000,
		MarketCap: price * 19_000_000,
		Timestamp: nowISO(),
		Source:    "fixture",
	}
	return json.Marshal(out)
}
