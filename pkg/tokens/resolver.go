package tokens

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"

	"github.com/sisyphus-fi/tempo-engine/pkg/chain"
	"github.com/sisyphus-fi/tempo-engine/pkg/contracts"
	"github.com/sisyphus-fi/tempo-engine/pkg/logger"
	"github.com/sisyphus-fi/tempo-engine/pkg/metrics"
	"github.com/sisyphus-fi/tempo-engine/pkg/models"
)

// Resolver turns token references into metadata. Resolution runs through
// four tiers in order: the static registry, the per-owner cache, a factory
// event scan over the recent block window, and finally the literal address
// form of the reference.
type Resolver struct {
	registry   *Registry
	store      Store
	backend    chain.Backend
	factory    common.Address
	scanWindow uint64
	logger     logger.Logger
}

// NewResolver wires a resolver from its collaborators.
func NewResolver(registry *Registry, store Store, backend chain.Backend, factory common.Address, scanWindow uint64, log logger.Logger) *Resolver {
	return &Resolver{
		registry:   registry,
		store:      store,
		backend:    backend,
		factory:    factory,
		scanWindow: scanWindow,
		logger:     log,
	}
}

func cacheKey(owner common.Address) string {
	return "tokens:" + strings.ToLower(owner.Hex())
}

// Resolve finds the token referred to by ref (a symbol or hex address) on
// behalf of owner.
func (r *Resolver) Resolve(ctx context.Context, owner common.Address, ref string) (Token, error) {
	if t, ok := r.registry.Lookup(ref); ok {
		metrics.TokenResolution.WithLabelValues("registry").Inc()
		return t, nil
	}

	if t, ok := r.lookupCache(ctx, owner, ref); ok {
		metrics.TokenResolution.WithLabelValues("cache").Inc()
		return t, nil
	}

	if t, ok, err := r.scan(ctx, owner, ref); err != nil {
		return Token{}, err
	} else if ok {
		metrics.TokenResolution.WithLabelValues("scan").Inc()
		if err := r.Remember(ctx, owner, t); err != nil {
			r.logger.ErrorWith(logger.Tokens, "Failed to cache token %s: %v", t.Symbol, err)
		}
		return t, nil
	}

	if common.IsHexAddress(ref) {
		t := Token{
			Symbol:   "TOKEN",
			Name:     "TOKEN",
			Address:  common.HexToAddress(ref),
			Decimals: DefaultDecimals,
		}
		metrics.TokenResolution.WithLabelValues("address").Inc()
		if err := r.Remember(ctx, owner, t); err != nil {
			r.logger.ErrorWith(logger.Tokens, "Failed to cache token %s: %v", ref, err)
		}
		return t, nil
	}

	metrics.TokenResolution.WithLabelValues("miss").Inc()
	return Token{}, models.NewResolutionError("token", ref)
}

// Remember persists a token in the owner's cache, replacing any earlier
// entry at the same address.
func (r *Resolver) Remember(ctx context.Context, owner common.Address, t Token) error {
	cached := r.loadCache(ctx, owner)

	kept := cached[:0]
	for _, c := range cached {
		if c.Address != t.Address {
			kept = append(kept, c)
		}
	}
	kept = append(kept, t)

	data, err := json.Marshal(kept)
	if err != nil {
		return fmt.Errorf("failed to marshal token cache: %v", err)
	}
	return r.store.Put(ctx, cacheKey(owner), string(data))
}

// Cached lists the tokens remembered for an owner.
func (r *Resolver) Cached(ctx context.Context, owner common.Address) []Token {
	return r.loadCache(ctx, owner)
}

// ReadMetadata reads symbol and decimals from the token contract.
func (r *Resolver) ReadMetadata(ctx context.Context, token common.Address) (string, uint8, error) {
	symOut, err := chain.Call(ctx, r.backend, token, contracts.ERC20ABI, "symbol")
	if err != nil {
		return "", 0, err
	}
	decOut, err := chain.Call(ctx, r.backend, token, contracts.ERC20ABI, "decimals")
	if err != nil {
		return "", 0, err
	}

	symbol, _ := symOut[0].(string)
	decimals, _ := decOut[0].(uint8)
	return symbol, decimals, nil
}

func (r *Resolver) loadCache(ctx context.Context, owner common.Address) []Token {
	value, err := r.store.Get(ctx, cacheKey(owner))
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			r.logger.ErrorWith(logger.Tokens, "Failed to load token cache for %s: %v", owner.Hex(), err)
		}
		return nil
	}

	var cached []Token
	if err := json.Unmarshal([]byte(value), &cached); err != nil {
		r.logger.ErrorWith(logger.Tokens, "Corrupt token cache for %s: %v", owner.Hex(), err)
		return nil
	}
	return cached
}

func (r *Resolver) lookupCache(ctx context.Context, owner common.Address, ref string) (Token, bool) {
	refIsAddress := common.IsHexAddress(ref)
	refAddress := common.HexToAddress(ref)

	for _, t := range r.loadCache(ctx, owner) {
		if strings.EqualFold(t.Symbol, ref) {
			return t, true
		}
		if refIsAddress && t.Address == refAddress {
			return t, true
		}
	}
	return Token{}, false
}

// scan searches recent factory TokenCreated events for a token deployed by
// owner with the referenced symbol.
func (r *Resolver) scan(ctx context.Context, owner common.Address, ref string) (Token, bool, error) {
	head, err := r.backend.BlockNumber(ctx)
	if err != nil {
		return Token{}, false, fmt.Errorf("failed to get block number: %v", err)
	}

	from := uint64(0)
	if head > r.scanWindow {
		from = head - r.scanWindow
	}

	event := contracts.FactoryABI.Events["TokenCreated"]
	logs, err := r.backend.FilterLogs(ctx, ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(from),
		ToBlock:   new(big.Int).SetUint64(head),
		Addresses: []common.Address{r.factory},
		Topics:    [][]common.Hash{{event.ID}},
	})
	if err != nil {
		return Token{}, false, fmt.Errorf("failed to scan factory events: %v", err)
	}

	var found Token
	var ok bool
	for _, l := range logs {
		if len(l.Topics) < 2 {
			continue
		}

		values, err := event.Inputs.NonIndexed().Unpack(l.Data)
		if err != nil {
			r.logger.DebugWith(logger.Tokens, "Skipping undecodable factory event in tx %s: %v", l.TxHash.Hex(), err)
			continue
		}

		name, _ := values[0].(string)
		symbol, _ := values[1].(string)
		admin, _ := values[4].(common.Address)

		if admin != owner || !strings.EqualFold(symbol, ref) {
			continue
		}

		// Later deployments win when the owner reused a symbol.
		found = Token{
			Symbol:   symbol,
			Name:     name,
			Address:  common.HexToAddress(l.Topics[1].Hex()),
			Decimals: DefaultDecimals,
		}
		ok = true
	}

	return found, ok, nil
}
