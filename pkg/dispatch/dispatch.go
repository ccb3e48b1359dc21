package dispatch

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/sisyphus-fi/tempo-engine/pkg/chain"
	"github.com/sisyphus-fi/tempo-engine/pkg/contracts"
	"github.com/sisyphus-fi/tempo-engine/pkg/logger"
	"github.com/sisyphus-fi/tempo-engine/pkg/metrics"
	"github.com/sisyphus-fi/tempo-engine/pkg/models"
	"github.com/sisyphus-fi/tempo-engine/pkg/tokens"
)

// Dispatcher submits batches of transfers. The strategy is picked once per
// call from the signer's capabilities: atomic batch when the signer can
// bundle calls under one signature, the batch-transfer contract for
// custodial signers when one is configured, and one transaction per
// transfer otherwise.
type Dispatcher struct {
	backend       chain.Backend
	signer        chain.Signer
	resolver      *tokens.Resolver
	guard         *AllowanceGuard
	batchContract common.Address
	submitDelay   time.Duration
	logger        logger.Logger
}

// NewDispatcher wires a dispatcher. batchContract may be the zero address
// when no batch-transfer helper is deployed.
func NewDispatcher(backend chain.Backend, signer chain.Signer, resolver *tokens.Resolver, guard *AllowanceGuard, batchContract common.Address, submitDelay time.Duration, log logger.Logger) *Dispatcher {
	return &Dispatcher{
		backend:       backend,
		signer:        signer,
		resolver:      resolver,
		guard:         guard,
		batchContract: batchContract,
		submitDelay:   submitDelay,
		logger:        log,
	}
}

// plannedTransfer is a transfer with every reference resolved, ready to
// encode.
type plannedTransfer struct {
	src    models.Transfer
	token  tokens.Token
	to     common.Address
	amount *big.Int
}

// Send submits the transfers. Resolution or validation failure of any
// transfer aborts the whole batch before anything is submitted. Under the
// sequential strategy a mid-batch failure returns the completed transfers
// alongside the error; completed entries are final.
func (d *Dispatcher) Send(ctx context.Context, transfers []models.Transfer) (*models.DispatchResult, error) {
	if len(transfers) == 0 {
		return nil, models.NewValidationError("transfers", "must not be empty")
	}

	planned, err := d.plan(ctx, transfers)
	if err != nil {
		return nil, err
	}

	caps := d.signer.Capabilities()
	switch {
	case caps.AtomicBatch && len(planned) > 1:
		return d.sendAtomic(ctx, planned)
	case caps.Custodial && d.batchContract != (common.Address{}) && len(planned) > 1:
		return d.sendCustodialBatch(ctx, planned)
	default:
		return d.sendSequential(ctx, planned, caps.Custodial)
	}
}

func (d *Dispatcher) plan(ctx context.Context, transfers []models.Transfer) ([]plannedTransfer, error) {
	owner := d.signer.Address()
	planned := make([]plannedTransfer, 0, len(transfers))

	for _, t := range transfers {
		if !common.IsHexAddress(t.To) {
			return nil, models.NewValidationError("to", fmt.Sprintf("%q is not an address", t.To))
		}

		token, err := d.resolver.Resolve(ctx, owner, t.Token)
		if err != nil {
			return nil, err
		}

		amount, err := tokens.ParseAmount(t.Amount, token.Decimals)
		if err != nil {
			return nil, models.NewValidationError("amount", err.Error())
		}
		if amount.Sign() <= 0 {
			return nil, models.NewValidationError("amount", "must be positive")
		}

		planned = append(planned, plannedTransfer{
			src:    t,
			token:  token,
			to:     common.HexToAddress(t.To),
			amount: amount,
		})
	}
	return planned, nil
}

func (d *Dispatcher) sendAtomic(ctx context.Context, planned []plannedTransfer) (*models.DispatchResult, error) {
	metrics.DispatchStrategy.WithLabelValues(string(models.StrategyAtomic)).Inc()

	calls := make([]chain.TxCall, 0, len(planned))
	for _, p := range planned {
		data, err := contracts.ERC20ABI.Pack("transfer", p.to, p.amount)
		if err != nil {
			return nil, fmt.Errorf("failed to pack transfer call: %v", err)
		}
		calls = append(calls, chain.TxCall{To: p.token.Address, Data: data})
	}

	hash, err := d.signer.SendBatch(ctx, calls)
	if err != nil {
		metrics.TransfersSubmitted.WithLabelValues("failed").Add(float64(len(planned)))
		return nil, fmt.Errorf("failed to submit atomic batch: %v", err)
	}
	d.logger.InfoWith(logger.Dispatch, "Atomic batch of %d transfer(s) submitted as %s", len(planned), hash.Hex())

	receipt, err := chain.WaitMined(ctx, d.backend, hash)
	if err != nil {
		return nil, err
	}
	if receipt.Status == 0 {
		metrics.TransfersSubmitted.WithLabelValues("failed").Add(float64(len(planned)))
		return nil, fmt.Errorf("atomic batch %s reverted", hash.Hex())
	}

	metrics.TransfersSubmitted.WithLabelValues("success").Add(float64(len(planned)))
	return &models.DispatchResult{
		Strategy:  models.StrategyAtomic,
		Hash:      hash.Hex(),
		Completed: completedAll(planned, hash),
	}, nil
}

func (d *Dispatcher) sendCustodialBatch(ctx context.Context, planned []plannedTransfer) (*models.DispatchResult, error) {
	metrics.DispatchStrategy.WithLabelValues(string(models.StrategyCustodialBatch)).Inc()

	// The batch contract pulls from the sender, so it needs allowance per
	// distinct token covering the sum across transfers.
	sums := make(map[common.Address]*big.Int)
	order := make([]common.Address, 0)
	for _, p := range planned {
		if sums[p.token.Address] == nil {
			sums[p.token.Address] = new(big.Int)
			order = append(order, p.token.Address)
		}
		sums[p.token.Address].Add(sums[p.token.Address], p.amount)
	}
	for _, token := range order {
		if err := d.guard.Ensure(ctx, token, d.batchContract, sums[token], true); err != nil {
			return nil, err
		}
	}

	tokenArgs := make([]common.Address, 0, len(planned))
	recipients := make([]common.Address, 0, len(planned))
	amounts := make([]*big.Int, 0, len(planned))
	for _, p := range planned {
		tokenArgs = append(tokenArgs, p.token.Address)
		recipients = append(recipients, p.to)
		amounts = append(amounts, p.amount)
	}

	data, err := contracts.BatchTransferABI.Pack("batchTransfer", tokenArgs, recipients, amounts)
	if err != nil {
		return nil, fmt.Errorf("failed to pack batch transfer call: %v", err)
	}

	hash, err := d.signer.SendTransaction(ctx, chain.TxCall{To: d.batchContract, Data: data})
	if err != nil {
		metrics.TransfersSubmitted.WithLabelValues("failed").Add(float64(len(planned)))
		return nil, fmt.Errorf("failed to submit batch transfer: %v", err)
	}
	d.logger.InfoWith(logger.Dispatch, "Custodial batch of %d transfer(s) submitted as %s", len(planned), hash.Hex())

	receipt, err := chain.WaitMined(ctx, d.backend, hash)
	if err != nil {
		return nil, err
	}
	if receipt.Status == 0 {
		metrics.TransfersSubmitted.WithLabelValues("failed").Add(float64(len(planned)))
		return nil, fmt.Errorf("batch transfer %s reverted", hash.Hex())
	}

	metrics.TransfersSubmitted.WithLabelValues("success").Add(float64(len(planned)))
	return &models.DispatchResult{
		Strategy:  models.StrategyCustodialBatch,
		Hash:      hash.Hex(),
		Completed: completedAll(planned, hash),
	}, nil
}

func (d *Dispatcher) sendSequential(ctx context.Context, planned []plannedTransfer, custodial bool) (*models.DispatchResult, error) {
	metrics.DispatchStrategy.WithLabelValues(string(models.StrategySequential)).Inc()

	result := &models.DispatchResult{
		Strategy:  models.StrategySequential,
		Completed: make([]models.TransferResult, 0, len(planned)),
	}

	for i, p := range planned {
		data, err := contracts.ERC20ABI.Pack("transfer", p.to, p.amount)
		if err != nil {
			return result, fmt.Errorf("failed to pack transfer call: %v", err)
		}

		hash, err := d.signer.SendTransaction(ctx, chain.TxCall{To: p.token.Address, Data: data})
		if err != nil {
			metrics.TransfersSubmitted.WithLabelValues("failed").Inc()
			return result, fmt.Errorf("transfer %d of %d failed: %v", i+1, len(planned), err)
		}

		if custodial {
			// Custodial pending-nonce reporting is unreliable under rapid
			// submission, so each receipt is awaited before the next send.
			receipt, err := chain.WaitMined(ctx, d.backend, hash)
			if err != nil {
				metrics.TransfersSubmitted.WithLabelValues("failed").Inc()
				return result, err
			}
			if receipt.Status == 0 {
				metrics.TransfersSubmitted.WithLabelValues("failed").Inc()
				return result, fmt.Errorf("transfer %d of %d reverted: %s", i+1, len(planned), hash.Hex())
			}
		} else if i < len(planned)-1 {
			select {
			case <-ctx.Done():
				return result, ctx.Err()
			case <-time.After(d.submitDelay):
			}
		}

		metrics.TransfersSubmitted.WithLabelValues("success").Inc()
		result.Completed = append(result.Completed, models.TransferResult{
			Token:  p.src.Token,
			Amount: p.src.Amount,
			To:     p.src.To,
			Hash:   hash.Hex(),
		})
		d.logger.InfoWith(logger.Dispatch, "Transfer %d of %d submitted as %s", i+1, len(planned), hash.Hex())
	}

	return result, nil
}

func completedAll(planned []plannedTransfer, hash common.Hash) []models.TransferResult {
	completed := make([]models.TransferResult, 0, len(planned))
	for _, p := range planned {
		completed = append(completed, models.TransferResult{
			Token:  p.src.Token,
			Amount: p.src.Amount,
			To:     p.src.To,
			Hash:   hash.Hex(),
		})
	}
	return completed
}
