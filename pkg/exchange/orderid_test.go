package exchange

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"

	"github.com/sisyphus-fi/tempo-engine/pkg/chain/mocks"
	"github.com/sisyphus-fi/tempo-engine/pkg/contracts"
	"github.com/sisyphus-fi/tempo-engine/pkg/logger"
)

var (
	testMaker = common.HexToAddress("0x1111111111111111111111111111111111111111")
	testBase  = common.HexToAddress("0x20C0000000000000000000000000000000000001")
)

func orderIDHash(id int64) common.Hash {
	return common.BigToHash(big.NewInt(id))
}

func TestResolveOrderIDFromDecodedEvent(t *testing.T) {
	backend := &mocks.Backend{}
	resolver := NewOrderIDResolver(backend, contracts.ExchangeAddress, &logger.EmptyLogger{})

	event := contracts.ExchangeABI.Events["OrderPlaced"]
	receipt := &types.Receipt{
		TxHash:      common.HexToHash("0x01"),
		BlockNumber: big.NewInt(50),
		Logs: []*types.Log{{
			Address: contracts.ExchangeAddress,
			Topics: []common.Hash{
				event.ID,
				orderIDHash(42),
				common.BytesToHash(testMaker.Bytes()),
				common.BytesToHash(testBase.Bytes()),
			},
		}},
	}

	id := resolver.Resolve(context.Background(), receipt, testMaker, testBase)
	assert.Equal(t, "42", id)

	// Tier 1 succeeded, so no block query was issued.
	assert.Empty(t, backend.FilterQs)
}

func TestResolveOrderIDFromRawTopic(t *testing.T) {
	backend := &mocks.Backend{}
	resolver := NewOrderIDResolver(backend, contracts.ExchangeAddress, &logger.EmptyLogger{})

	// The exchange emitted something, but not under the expected event id.
	receipt := &types.Receipt{
		TxHash:      common.HexToHash("0x02"),
		BlockNumber: big.NewInt(51),
		Logs: []*types.Log{{
			Address: contracts.ExchangeAddress,
			Topics: []common.Hash{
				common.HexToHash("0xdeadbeef00000000000000000000000000000000000000000000000000000000"),
				orderIDHash(7),
			},
		}},
	}

	id := resolver.Resolve(context.Background(), receipt, testMaker, testBase)
	assert.Equal(t, "7", id)
	assert.Empty(t, backend.FilterQs)
}

func TestResolveOrderIDFromBlockQuery(t *testing.T) {
	event := contracts.ExchangeABI.Events["OrderPlaced"]
	backend := &mocks.Backend{
		FilterLogsFn: func(_ context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
			return []types.Log{{
				Address: contracts.ExchangeAddress,
				Topics: []common.Hash{
					event.ID,
					orderIDHash(99),
					common.BytesToHash(testMaker.Bytes()),
					common.BytesToHash(testBase.Bytes()),
				},
			}}, nil
		},
	}
	resolver := NewOrderIDResolver(backend, contracts.ExchangeAddress, &logger.EmptyLogger{})

	receipt := &types.Receipt{
		TxHash:      common.HexToHash("0x03"),
		BlockNumber: big.NewInt(52),
	}

	id := resolver.Resolve(context.Background(), receipt, testMaker, testBase)
	assert.Equal(t, "99", id)
	assert.Len(t, backend.FilterQs, 1)
	assert.Equal(t, big.NewInt(52), backend.FilterQs[0].FromBlock)
	assert.Equal(t, big.NewInt(52), backend.FilterQs[0].ToBlock)
}

func TestResolveOrderIDUnresolved(t *testing.T) {
	backend := &mocks.Backend{}
	resolver := NewOrderIDResolver(backend, contracts.ExchangeAddress, &logger.EmptyLogger{})

	receipt := &types.Receipt{
		TxHash:      common.HexToHash("0x04"),
		BlockNumber: big.NewInt(53),
	}

	id := resolver.Resolve(context.Background(), receipt, testMaker, testBase)
	assert.Equal(t, "", id)
}
