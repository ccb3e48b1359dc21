package dispatch

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"

	"github.com/sisyphus-fi/tempo-engine/pkg/chain/mocks"
	"github.com/sisyphus-fi/tempo-engine/pkg/contracts"
	"github.com/sisyphus-fi/tempo-engine/pkg/logger"
)

var (
	testToken   = common.HexToAddress("0x20C0000000000000000000000000000000000001")
	testSpender = contracts.ExchangeAddress
)

func allowanceBackend(current *big.Int) *mocks.Backend {
	return &mocks.Backend{
		CallContractFn: func(_ context.Context, _ ethereum.CallMsg, _ *big.Int) ([]byte, error) {
			return contracts.ERC20ABI.Methods["allowance"].Outputs.Pack(current)
		},
	}
}

func TestEnsureSufficientAllowanceSkipsApproval(t *testing.T) {
	backend := allowanceBackend(big.NewInt(1000))
	signer := &mocks.Signer{Addr: common.HexToAddress("0x1111111111111111111111111111111111111111")}
	guard := NewAllowanceGuard(backend, signer, &logger.EmptyLogger{})

	err := guard.Ensure(context.Background(), testToken, testSpender, big.NewInt(1000), false)
	assert.NoError(t, err)
	assert.Empty(t, signer.Sent)
}

func TestEnsureInsufficientAllowanceApprovesExact(t *testing.T) {
	backend := allowanceBackend(big.NewInt(999))
	signer := &mocks.Signer{Addr: common.HexToAddress("0x1111111111111111111111111111111111111111")}
	guard := NewAllowanceGuard(backend, signer, &logger.EmptyLogger{})

	err := guard.Ensure(context.Background(), testToken, testSpender, big.NewInt(1000), false)
	assert.NoError(t, err)
	assert.Len(t, signer.Sent, 1)
	assert.Equal(t, testToken, signer.Sent[0].To)

	// The approval is awaited before Ensure returns.
	assert.NotEmpty(t, backend.ReceiptPolls)

	args, err := contracts.ERC20ABI.Methods["approve"].Inputs.Unpack(signer.Sent[0].Data[4:])
	assert.NoError(t, err)
	assert.Equal(t, testSpender, args[0])
	assert.Equal(t, big.NewInt(1000), args[1])
}

func TestEnsureUnlimitedGrantsMax(t *testing.T) {
	backend := allowanceBackend(big.NewInt(0))
	signer := &mocks.Signer{Addr: common.HexToAddress("0x1111111111111111111111111111111111111111")}
	guard := NewAllowanceGuard(backend, signer, &logger.EmptyLogger{})

	err := guard.Ensure(context.Background(), testToken, testSpender, big.NewInt(1), true)
	assert.NoError(t, err)
	assert.Len(t, signer.Sent, 1)

	args, err := contracts.ERC20ABI.Methods["approve"].Inputs.Unpack(signer.Sent[0].Data[4:])
	assert.NoError(t, err)
	assert.Equal(t, MaxUint256, args[1])
}
