// Package dispatch submits token transfers using the strategy the active
// signer's capabilities allow, and preconditions pull-based operations with
// the allowance they need.
package dispatch

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/sisyphus-fi/tempo-engine/pkg/chain"
	"github.com/sisyphus-fi/tempo-engine/pkg/contracts"
	"github.com/sisyphus-fi/tempo-engine/pkg/logger"
	"github.com/sisyphus-fi/tempo-engine/pkg/metrics"
)

// MaxUint256 is the unlimited allowance granted to multi-use spenders.
var MaxUint256 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

// AllowanceGuard ensures a spender holds enough allowance from the signer
// before a pull-based operation runs.
type AllowanceGuard struct {
	backend chain.Backend
	signer  chain.Signer
	logger  logger.Logger
}

// NewAllowanceGuard creates a guard for the given signer.
func NewAllowanceGuard(backend chain.Backend, signer chain.Signer, log logger.Logger) *AllowanceGuard {
	return &AllowanceGuard{
		backend: backend,
		signer:  signer,
		logger:  log,
	}
}

// Ensure makes sure spender can pull at least required of token from the
// signer. When the current allowance already covers it, no transaction is
// issued. Otherwise one approval is submitted and awaited: the exact amount
// for single-use flows, or the maximum representable allowance when
// unlimited is set (multi-use spenders such as the exchange, the scheduler
// and the batch-transfer contract).
func (g *AllowanceGuard) Ensure(ctx context.Context, token, spender common.Address, required *big.Int, unlimited bool) error {
	owner := g.signer.Address()

	out, err := chain.Call(ctx, g.backend, token, contracts.ERC20ABI, "allowance", owner, spender)
	if err != nil {
		return fmt.Errorf("failed to check allowance: %v", err)
	}
	current, ok := out[0].(*big.Int)
	if !ok {
		return fmt.Errorf("unexpected allowance result type %T", out[0])
	}

	if current.Cmp(required) >= 0 {
		g.logger.DebugWith(logger.Dispatch, "Allowance for %s already sufficient (%s >= %s)", spender.Hex(), current.String(), required.String())
		return nil
	}

	amount := required
	if unlimited {
		amount = MaxUint256
	}

	data, err := contracts.ERC20ABI.Pack("approve", spender, amount)
	if err != nil {
		return fmt.Errorf("failed to pack approve call: %v", err)
	}

	hash, err := g.signer.SendTransaction(ctx, chain.TxCall{To: token, Data: data})
	if err != nil {
		return fmt.Errorf("failed to send approval: %v", err)
	}
	metrics.ApprovalsIssued.WithLabelValues(spender.Hex()).Inc()
	g.logger.InfoWith(logger.Dispatch, "Approval %s submitted for spender %s", hash.Hex(), spender.Hex())

	receipt, err := chain.WaitMined(ctx, g.backend, hash)
	if err != nil {
		return err
	}
	if receipt.Status == 0 {
		return fmt.Errorf("approval transaction %s reverted", hash.Hex())
	}
	return nil
}
