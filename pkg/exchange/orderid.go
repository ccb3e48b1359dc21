package exchange

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/sisyphus-fi/tempo-engine/pkg/chain"
	"github.com/sisyphus-fi/tempo-engine/pkg/contracts"
	"github.com/sisyphus-fi/tempo-engine/pkg/logger"
	"github.com/sisyphus-fi/tempo-engine/pkg/metrics"
)

// OrderIDResolver recovers the on-chain order id from a placement receipt.
// Three tiers are tried in order: decode the placement event from the
// receipt's logs, fall back to reading the raw second topic of any exchange
// log, and finally query the receipt's block for the placement event
// filtered by maker and token. An unresolvable id comes back empty rather
// than as an error; the order exists on chain either way and the id can be
// re-resolved later from the stored transaction hash.
type OrderIDResolver struct {
	backend  chain.Backend
	exchange common.Address
	logger   logger.Logger
}

// NewOrderIDResolver creates a resolver for the given exchange.
func NewOrderIDResolver(backend chain.Backend, exchange common.Address, log logger.Logger) *OrderIDResolver {
	return &OrderIDResolver{
		backend:  backend,
		exchange: exchange,
		logger:   log,
	}
}

// Resolve extracts the order id from the receipt, or returns "" when all
// tiers miss.
func (r *OrderIDResolver) Resolve(ctx context.Context, receipt *types.Receipt, maker, token common.Address) string {
	event := contracts.ExchangeABI.Events["OrderPlaced"]

	// Tier 1: a log that decodes cleanly as the placement event.
	for _, l := range receipt.Logs {
		if l.Address != r.exchange || len(l.Topics) < 2 || l.Topics[0] != event.ID {
			continue
		}
		metrics.OrderIDResolution.WithLabelValues("decoded").Inc()
		return new(big.Int).SetBytes(l.Topics[1].Bytes()).String()
	}

	// Tier 2: any exchange log carrying at least two topics. Covers event
	// layouts that no longer match the compiled schema.
	for _, l := range receipt.Logs {
		if l.Address != r.exchange || len(l.Topics) < 2 {
			continue
		}
		metrics.OrderIDResolution.WithLabelValues("topic").Inc()
		return new(big.Int).SetBytes(l.Topics[1].Bytes()).String()
	}

	// Tier 3: query the receipt's block for the placement event scoped to
	// this maker and token.
	if receipt.BlockNumber != nil {
		logs, err := r.backend.FilterLogs(ctx, ethereum.FilterQuery{
			FromBlock: receipt.BlockNumber,
			ToBlock:   receipt.BlockNumber,
			Addresses: []common.Address{r.exchange},
			Topics: [][]common.Hash{
				{event.ID},
				nil,
				{common.BytesToHash(maker.Bytes())},
				{common.BytesToHash(token.Bytes())},
			},
		})
		if err != nil {
			r.logger.ErrorWith(logger.Exchange, "Order id block query failed: %v", err)
		} else {
			for _, l := range logs {
				if len(l.Topics) < 2 {
					continue
				}
				metrics.OrderIDResolution.WithLabelValues("query").Inc()
				return new(big.Int).SetBytes(l.Topics[1].Bytes()).String()
			}
		}
	}

	metrics.OrderIDResolution.WithLabelValues("unresolved").Inc()
	r.logger.NoticeWith(logger.Exchange, "Order id unresolved for tx %s", receipt.TxHash.Hex())
	return ""
}
