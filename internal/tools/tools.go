// Package tools implements the concrete DeFi tools named in spec §6:
// gas prices, crypto spot price, lending rates, and token balances. Per
// §1's Non-goals, the data sources themselves are out of scope for the
// core; these implementations are illustrative fixtures (deterministic,
// no outbound network calls) standing in for the pluggable data-source
// adapters a deployment would wire in.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/yieldline-labs/copilot/internal/agent"
)

// Tool is one concrete, registrable DeFi operation.
type Tool interface {
	Name() string
	Description() string
	Schema() json.RawMessage
	Execute(ctx context.Context, args json.RawMessage) (json.RawMessage, error)
}

// RegisterAll registers every tool in this package against reg.
func RegisterAll(reg *agent.Registry) error {
	for _, t := range []Tool{
		newGasPrices(),
		newCryptoPrice(),
		newLendingRates(),
		newTokenBalance(),
		newAllTokenBalances(),
	} {
		if err := reg.Register(t.Name(), t.Description(), t.Schema(), t.Execute); err != nil {
			return fmt.Errorf("tools.RegisterAll: %w", err)
		}
	}
	return nil
}

func nowISO() string { return time.Now().UTC().Format(time.RFC3339) }
