package engine

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/sisyphus-fi/tempo-engine/pkg/chain"
	"github.com/sisyphus-fi/tempo-engine/pkg/contracts"
	"github.com/sisyphus-fi/tempo-engine/pkg/models"
	"github.com/sisyphus-fi/tempo-engine/pkg/tokens"
)

// Balances reads the signer's balance for every known token: the built-in
// registry plus anything remembered in the owner's cache.
func (e *Engine) Balances(ctx context.Context) ([]models.Balance, error) {
	owner := e.signer.Address()

	known := e.registry.All()
	seen := make(map[common.Address]bool, len(known))
	for _, t := range known {
		seen[t.Address] = true
	}
	for _, t := range e.resolver.Cached(ctx, owner) {
		if !seen[t.Address] {
			known = append(known, t)
			seen[t.Address] = true
		}
	}

	balances := make([]models.Balance, 0, len(known))
	for _, t := range known {
		out, err := chain.Call(ctx, e.backend, t.Address, contracts.ERC20ABI, "balanceOf", owner)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s balance: %v", t.Symbol, err)
		}
		raw, ok := out[0].(*big.Int)
		if !ok {
			return nil, fmt.Errorf("unexpected balance result type %T", out[0])
		}

		balances = append(balances, models.Balance{
			Symbol:    t.Symbol,
			Address:   t.Address.Hex(),
			Raw:       raw.String(),
			Formatted: tokens.FormatAmount(raw, t.Decimals),
		})
	}
	return balances, nil
}
