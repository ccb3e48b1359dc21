package tokens

import (
	"context"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"

	"github.com/sisyphus-fi/tempo-engine/pkg/chain/mocks"
	"github.com/sisyphus-fi/tempo-engine/pkg/contracts"
	"github.com/sisyphus-fi/tempo-engine/pkg/logger"
	"github.com/sisyphus-fi/tempo-engine/pkg/models"
)

var (
	testOwner   = common.HexToAddress("0xAAA0000000000000000000000000000000000001")
	testFactory = contracts.FactoryAddress
)

func newTestResolver(backend *mocks.Backend) *Resolver {
	return NewResolver(NewRegistry(), NewMemoryStore(), backend, testFactory, 10000, &logger.EmptyLogger{})
}

func TestResolveRegistryHitSkipsChain(t *testing.T) {
	backend := &mocks.Backend{}
	resolver := newTestResolver(backend)

	token, err := resolver.Resolve(context.Background(), testOwner, "alphausd")
	assert.NoError(t, err)
	assert.Equal(t, "AlphaUSD", token.Symbol)
	assert.Equal(t, uint8(6), token.Decimals)

	assert.Empty(t, backend.FilterQs)
	assert.Empty(t, backend.CallMsgs)
}

func TestResolveScanThenCache(t *testing.T) {
	tokenAddr := common.HexToAddress("0xBBB0000000000000000000000000000000000002")
	event := contracts.FactoryABI.Events["TokenCreated"]

	var salt [32]byte
	data, err := event.Inputs.NonIndexed().Pack(
		"My Token", "MYT", "USD", PathUSDAddress, testOwner, salt,
	)
	assert.NoError(t, err)

	backend := &mocks.Backend{
		FilterLogsFn: func(_ context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
			return []types.Log{{
				Address: testFactory,
				Topics:  []common.Hash{event.ID, common.BytesToHash(tokenAddr.Bytes())},
				Data:    data,
			}}, nil
		},
	}
	resolver := newTestResolver(backend)

	token, err := resolver.Resolve(context.Background(), testOwner, "myt")
	assert.NoError(t, err)
	assert.Equal(t, "MYT", token.Symbol)
	assert.Equal(t, tokenAddr, token.Address)
	assert.Equal(t, DefaultDecimals, token.Decimals)
	assert.Len(t, backend.FilterQs, 1)

	// Second lookup is served from the cache without another scan.
	token, err = resolver.Resolve(context.Background(), testOwner, "MYT")
	assert.NoError(t, err)
	assert.Equal(t, tokenAddr, token.Address)
	assert.Len(t, backend.FilterQs, 1)
}

func TestResolveScanIgnoresOtherDeployers(t *testing.T) {
	tokenAddr := common.HexToAddress("0xBBB0000000000000000000000000000000000003")
	other := common.HexToAddress("0xAAA0000000000000000000000000000000000009")
	event := contracts.FactoryABI.Events["TokenCreated"]

	var salt [32]byte
	data, err := event.Inputs.NonIndexed().Pack(
		"My Token", "MYT", "USD", PathUSDAddress, other, salt,
	)
	assert.NoError(t, err)

	backend := &mocks.Backend{
		FilterLogsFn: func(_ context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
			return []types.Log{{
				Address: testFactory,
				Topics:  []common.Hash{event.ID, common.BytesToHash(tokenAddr.Bytes())},
				Data:    data,
			}}, nil
		},
	}
	resolver := newTestResolver(backend)

	_, err = resolver.Resolve(context.Background(), testOwner, "MYT")
	var resolutionErr *models.ResolutionError
	assert.ErrorAs(t, err, &resolutionErr)
}

func TestResolveAddressFallback(t *testing.T) {
	backend := &mocks.Backend{}
	resolver := newTestResolver(backend)
	addr := "0xCCC0000000000000000000000000000000000004"

	token, err := resolver.Resolve(context.Background(), testOwner, addr)
	assert.NoError(t, err)
	assert.Equal(t, common.HexToAddress(addr), token.Address)
	assert.Equal(t, DefaultDecimals, token.Decimals)

	// The synthesized token is cached for the owner.
	cached, ok := resolver.lookupCache(context.Background(), testOwner, addr)
	assert.True(t, ok)
	assert.Equal(t, common.HexToAddress(addr), cached.Address)
}

func TestResolveUnknownSymbol(t *testing.T) {
	backend := &mocks.Backend{}
	resolver := newTestResolver(backend)

	_, err := resolver.Resolve(context.Background(), testOwner, "NOPE")
	var resolutionErr *models.ResolutionError
	assert.ErrorAs(t, err, &resolutionErr)
	assert.Equal(t, "token not found: NOPE", err.Error())
}
