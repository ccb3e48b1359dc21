package exchange

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/sisyphus-fi/tempo-engine/pkg/chain"
	"github.com/sisyphus-fi/tempo-engine/pkg/contracts"
	"github.com/sisyphus-fi/tempo-engine/pkg/dispatch"
	"github.com/sisyphus-fi/tempo-engine/pkg/logger"
	"github.com/sisyphus-fi/tempo-engine/pkg/models"
	"github.com/sisyphus-fi/tempo-engine/pkg/tokens"
)

// DefaultSlippageBps is applied when a swap intent does not set a slippage
// tolerance.
const DefaultSlippageBps = 50

// maxUint128 bounds amounts passed to the exchange, whose amount fields are
// 128 bits wide.
var maxUint128 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 128), big.NewInt(1))

// Exchange wraps the DEX contract: quotes, swaps, limit orders and pair
// management. Pull-based entry points are preconditioned through the
// allowance guard with an unlimited grant, since the exchange is a
// multi-use spender.
type Exchange struct {
	backend  chain.Backend
	signer   chain.Signer
	guard    *dispatch.AllowanceGuard
	orderIDs *OrderIDResolver
	registry *tokens.Registry
	address  common.Address
	logger   logger.Logger
}

// NewExchange wires the exchange service.
func NewExchange(backend chain.Backend, signer chain.Signer, guard *dispatch.AllowanceGuard, orderIDs *OrderIDResolver, registry *tokens.Registry, address common.Address, log logger.Logger) *Exchange {
	return &Exchange{
		backend:  backend,
		signer:   signer,
		guard:    guard,
		orderIDs: orderIDs,
		registry: registry,
		address:  address,
		logger:   log,
	}
}

func clampUint128(amount *big.Int) *big.Int {
	if amount.Cmp(maxUint128) > 0 {
		return new(big.Int).Set(maxUint128)
	}
	return amount
}

// Quote returns how much tokenOut the exchange would pay for amountIn of
// tokenIn right now.
func (e *Exchange) Quote(ctx context.Context, tokenIn, tokenOut common.Address, amountIn *big.Int) (*big.Int, error) {
	out, err := chain.Call(ctx, e.backend, e.address, contracts.ExchangeABI, "quoteSwapExactAmountIn", tokenIn, tokenOut, clampUint128(amountIn))
	if err != nil {
		return nil, fmt.Errorf("failed to quote swap: %v", err)
	}
	quoted, ok := out[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected quote result type %T", out[0])
	}
	return quoted, nil
}

// Swap quotes and then executes an exact-amount-in swap, bounding the
// accepted output by the slippage tolerance in basis points.
func (e *Exchange) Swap(ctx context.Context, tokenIn, tokenOut tokens.Token, amountIn *big.Int, slippageBps int64) (*models.SwapResult, error) {
	if slippageBps < 0 || slippageBps > 10000 {
		return nil, models.NewValidationError("slippageBps", "must be between 0 and 10000")
	}

	amountIn = clampUint128(amountIn)
	quoted, err := e.Quote(ctx, tokenIn.Address, tokenOut.Address, amountIn)
	if err != nil {
		return nil, err
	}

	minOut := new(big.Int).Mul(quoted, big.NewInt(10000-slippageBps))
	minOut.Div(minOut, big.NewInt(10000))

	if err := e.guard.Ensure(ctx, tokenIn.Address, e.address, amountIn, true); err != nil {
		return nil, err
	}

	data, err := contracts.ExchangeABI.Pack("swapExactAmountIn", tokenIn.Address, tokenOut.Address, amountIn, minOut)
	if err != nil {
		return nil, fmt.Errorf("failed to pack swap call: %v", err)
	}

	hash, err := e.signer.SendTransaction(ctx, chain.TxCall{To: e.address, Data: data})
	if err != nil {
		return nil, fmt.Errorf("failed to submit swap: %v", err)
	}

	receipt, err := chain.WaitMined(ctx, e.backend, hash)
	if err != nil {
		return nil, err
	}
	if receipt.Status == 0 {
		return nil, fmt.Errorf("swap transaction %s reverted", hash.Hex())
	}

	e.logger.InfoWith(logger.Exchange, "Swapped %s %s for %s (min out %s)", amountIn.String(), tokenIn.Symbol, tokenOut.Symbol, minOut.String())
	return &models.SwapResult{
		Hash:      hash.Hex(),
		TokenIn:   tokenIn.Symbol,
		TokenOut:  tokenOut.Symbol,
		AmountIn:  tokens.FormatAmount(amountIn, tokenIn.Decimals),
		AmountOut: tokens.FormatAmount(minOut, tokenOut.Decimals),
	}, nil
}

// PlaceLimitOrder places a bid or ask on the book at the tick nearest to
// price. Bids escrow the quote stablecoin, asks escrow the base token, so
// the allowance is ensured on whichever side the exchange will pull.
func (e *Exchange) PlaceLimitOrder(ctx context.Context, token tokens.Token, amount *big.Int, isBid bool, price float64) (*models.Order, error) {
	tick := PriceToTick(price)
	amount = clampUint128(amount)

	spend := token.Address
	if isBid {
		spend = e.registry.PathUSD().Address
	}
	if err := e.guard.Ensure(ctx, spend, e.address, amount, true); err != nil {
		return nil, err
	}

	data, err := contracts.ExchangeABI.Pack("place", token.Address, amount, isBid, int16(tick))
	if err != nil {
		return nil, fmt.Errorf("failed to pack place call: %v", err)
	}

	hash, err := e.signer.SendTransaction(ctx, chain.TxCall{To: e.address, Data: data})
	if err != nil {
		return nil, fmt.Errorf("failed to submit order: %v", err)
	}

	receipt, err := chain.WaitMined(ctx, e.backend, hash)
	if err != nil {
		return nil, err
	}
	if receipt.Status == 0 {
		return nil, fmt.Errorf("order transaction %s reverted", hash.Hex())
	}

	orderID := e.orderIDs.Resolve(ctx, receipt, e.signer.Address(), token.Address)

	side := "ask"
	if isBid {
		side = "bid"
	}
	e.logger.InfoWith(logger.Exchange, "Placed %s for %s %s at tick %d (order id %q)", side, amount.String(), token.Symbol, tick, orderID)

	return &models.Order{
		OnChainID: orderID,
		Token:     token.Symbol,
		Amount:    tokens.FormatAmount(amount, token.Decimals),
		IsBid:     isBid,
		Price:     price,
		Tick:      tick,
		TxHash:    hash.Hex(),
	}, nil
}

// Cancel removes a resting order by id.
func (e *Exchange) Cancel(ctx context.Context, orderID *big.Int) (string, error) {
	data, err := contracts.ExchangeABI.Pack("cancel", clampUint128(orderID))
	if err != nil {
		return "", fmt.Errorf("failed to pack cancel call: %v", err)
	}

	hash, err := e.signer.SendTransaction(ctx, chain.TxCall{To: e.address, Data: data})
	if err != nil {
		return "", fmt.Errorf("failed to submit cancel: %v", err)
	}

	receipt, err := chain.WaitMined(ctx, e.backend, hash)
	if err != nil {
		return "", err
	}
	if receipt.Status == 0 {
		return "", fmt.Errorf("cancel transaction %s reverted", hash.Hex())
	}

	e.logger.InfoWith(logger.Exchange, "Cancelled order %s", orderID.String())
	return hash.Hex(), nil
}

// CreatePair lists a base token against the fixed quote stablecoin.
func (e *Exchange) CreatePair(ctx context.Context, base tokens.Token) (*models.CreatePairResult, error) {
	data, err := contracts.ExchangeABI.Pack("createPair", base.Address)
	if err != nil {
		return nil, fmt.Errorf("failed to pack createPair call: %v", err)
	}

	hash, err := e.signer.SendTransaction(ctx, chain.TxCall{To: e.address, Data: data})
	if err != nil {
		return nil, fmt.Errorf("failed to submit createPair: %v", err)
	}

	receipt, err := chain.WaitMined(ctx, e.backend, hash)
	if err != nil {
		return nil, err
	}
	if receipt.Status == 0 {
		return nil, fmt.Errorf("createPair transaction %s reverted", hash.Hex())
	}

	result := &models.CreatePairResult{
		BaseTokenSymbol: base.Symbol,
		Hash:            hash.Hex(),
	}

	event := contracts.ExchangeABI.Events["PairCreated"]
	for _, l := range receipt.Logs {
		if l.Address != e.address || len(l.Topics) < 4 || l.Topics[0] != event.ID {
			continue
		}
		result.PairKey = l.Topics[1].Hex()
		result.QuoteToken = common.BytesToAddress(l.Topics[3].Bytes()).Hex()
		break
	}
	if result.PairKey == "" {
		return nil, fmt.Errorf("pair creation event missing from receipt %s", hash.Hex())
	}

	e.logger.InfoWith(logger.Exchange, "Created pair %s for %s", result.PairKey, base.Symbol)
	return result, nil
}

// ProvideLiquidity brackets the peg with a bid just below and an ask just
// above, both sized by amount.
func (e *Exchange) ProvideLiquidity(ctx context.Context, token tokens.Token, amount *big.Int) ([]*models.Order, error) {
	bid, err := e.PlaceLimitOrder(ctx, token, amount, true, 0.999)
	if err != nil {
		return nil, fmt.Errorf("failed to place liquidity bid: %v", err)
	}

	ask, err := e.PlaceLimitOrder(ctx, token, amount, false, 1.001)
	if err != nil {
		// The bid is live on the book; the caller keeps it.
		return []*models.Order{bid}, fmt.Errorf("failed to place liquidity ask: %v", err)
	}

	return []*models.Order{bid, ask}, nil
}
