package engine

import (
	"context"
	"fmt"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"

	"github.com/sisyphus-fi/tempo-engine/pkg/chain"
	"github.com/sisyphus-fi/tempo-engine/pkg/chain/mocks"
	"github.com/sisyphus-fi/tempo-engine/pkg/contracts"
	"github.com/sisyphus-fi/tempo-engine/pkg/dispatch"
	"github.com/sisyphus-fi/tempo-engine/pkg/exchange"
	"github.com/sisyphus-fi/tempo-engine/pkg/logger"
	"github.com/sisyphus-fi/tempo-engine/pkg/models"
	"github.com/sisyphus-fi/tempo-engine/pkg/scheduler"
	"github.com/sisyphus-fi/tempo-engine/pkg/tokens"
)

var testAccount = common.HexToAddress("0x1111111111111111111111111111111111111111")

func newTestEngine(backend *mocks.Backend, signer *mocks.Signer) *Engine {
	log := &logger.EmptyLogger{}
	registry := tokens.NewRegistry()
	store := tokens.NewMemoryStore()
	resolver := tokens.NewResolver(registry, store, backend, contracts.FactoryAddress, 10000, log)
	guard := dispatch.NewAllowanceGuard(backend, signer, log)
	dispatcher := dispatch.NewDispatcher(backend, signer, resolver, guard, common.Address{}, time.Millisecond, log)
	orderIDs := exchange.NewOrderIDResolver(backend, contracts.ExchangeAddress, log)
	xchg := exchange.NewExchange(backend, signer, guard, orderIDs, registry, contracts.ExchangeAddress, log)
	sched := scheduler.NewScheduler(backend, signer, guard, resolver, contracts.SchedulerAddress, log)
	return New(backend, signer, registry, resolver, dispatcher, xchg, sched, store, nil, nil, log)
}

func TestExecuteSendParallelPartialFailure(t *testing.T) {
	backend := &mocks.Backend{}
	calls := 0
	signer := &mocks.Signer{
		Addr: testAccount,
		SendFn: func(_ context.Context, _ chain.TxCall) (common.Hash, error) {
			calls++
			if calls == 2 {
				return common.Hash{}, fmt.Errorf("execution reverted")
			}
			return common.HexToHash(fmt.Sprintf("0x%064x", calls)), nil
		},
	}
	e := newTestEngine(backend, signer)

	raw := map[string]interface{}{
		"action": "send_parallel",
		"transfers": []interface{}{
			map[string]interface{}{"token": "AlphaUSD", "amount": "10", "to": "0x2222222222222222222222222222222222222222"},
			map[string]interface{}{"token": "AlphaUSD", "amount": "20", "to": "0x3333333333333333333333333333333333333333"},
			map[string]interface{}{"token": "AlphaUSD", "amount": "30", "to": "0x4444444444444444444444444444444444444444"},
		},
	}

	result, err := e.ExecuteRaw(context.Background(), raw)
	assert.Error(t, err)

	dispatched, ok := result.(*models.DispatchResult)
	assert.True(t, ok)
	assert.Len(t, dispatched.Completed, 1)
	assert.NotEmpty(t, dispatched.Completed[0].Hash)

	// Transfer 3 was never attempted after the terminal failure.
	assert.Len(t, signer.Sent, 2)
}

func TestExecuteSchedulePaymentRejectsNonFutureTime(t *testing.T) {
	backend := &mocks.Backend{}
	signer := &mocks.Signer{Addr: testAccount}
	e := newTestEngine(backend, signer)

	raw := map[string]interface{}{
		"action":    "schedule_payment",
		"executeAt": float64(time.Now().Unix()),
		"transfers": []interface{}{
			map[string]interface{}{"token": "AlphaUSD", "amount": "10", "to": "0x2222222222222222222222222222222222222222"},
		},
	}

	_, err := e.ExecuteRaw(context.Background(), raw)
	var validationErr *models.ValidationError
	assert.ErrorAs(t, err, &validationErr)
	assert.Contains(t, err.Error(), "must be in the future")
	assert.Empty(t, signer.Sent)
	assert.Empty(t, backend.CallMsgs)
}

func TestExecutePlaceLimitOrderClampsPrice(t *testing.T) {
	backend := &mocks.Backend{
		CallContractFn: func(_ context.Context, _ ethereum.CallMsg, _ *big.Int) ([]byte, error) {
			return contracts.ERC20ABI.Methods["allowance"].Outputs.Pack(dispatch.MaxUint256)
		},
	}
	signer := &mocks.Signer{Addr: testAccount}
	e := newTestEngine(backend, signer)

	raw := map[string]interface{}{
		"action": "place_limit_order",
		"token":  "AlphaUSD",
		"amount": "100",
		"isBid":  false,
		"price":  1.03,
	}

	result, err := e.ExecuteRaw(context.Background(), raw)
	assert.NoError(t, err)

	order, ok := result.(*models.Order)
	assert.True(t, ok)
	assert.Equal(t, exchange.MaxTick, order.Tick)
}

func TestExecuteNonActionableIntent(t *testing.T) {
	backend := &mocks.Backend{}
	signer := &mocks.Signer{Addr: testAccount}
	e := newTestEngine(backend, signer)

	result, err := e.ExecuteRaw(context.Background(), map[string]interface{}{"action": "get_positions"})
	assert.NoError(t, err)
	assert.Nil(t, result)
	assert.Empty(t, signer.Sent)
}

func TestExecuteSendPaymentMissingField(t *testing.T) {
	backend := &mocks.Backend{}
	signer := &mocks.Signer{Addr: testAccount}
	e := newTestEngine(backend, signer)

	_, err := e.ExecuteRaw(context.Background(), map[string]interface{}{
		"action": "send_payment",
		"token":  "AlphaUSD",
		"to":     "0x2222222222222222222222222222222222222222",
	})
	var validationErr *models.ValidationError
	assert.ErrorAs(t, err, &validationErr)
	assert.Contains(t, err.Error(), "amount")
}

func TestExecuteSetFeeTokenNoChainWrite(t *testing.T) {
	backend := &mocks.Backend{}
	signer := &mocks.Signer{Addr: testAccount}
	e := newTestEngine(backend, signer)

	_, err := e.ExecuteRaw(context.Background(), map[string]interface{}{
		"action": "set_fee_token",
		"token":  "BetaUSD",
	})
	assert.NoError(t, err)
	assert.Empty(t, signer.Sent)

	feeToken := e.FeeToken()
	assert.NotNil(t, feeToken)
	assert.Equal(t, "BetaUSD", feeToken.Symbol)
}

func TestFeeTokenSurvivesRestart(t *testing.T) {
	backend := &mocks.Backend{}
	signer := &mocks.Signer{Addr: testAccount}
	e := newTestEngine(backend, signer)

	_, err := e.ExecuteRaw(context.Background(), map[string]interface{}{
		"action": "set_fee_token",
		"token":  "ThetaUSD",
	})
	assert.NoError(t, err)

	// A fresh engine over the same store recovers the preference.
	revived := newTestEngine(backend, signer)
	revived.store = e.store

	feeToken := revived.FeeToken()
	assert.NotNil(t, feeToken)
	assert.Equal(t, "ThetaUSD", feeToken.Symbol)
}

func TestExecuteCancelScheduledPayment(t *testing.T) {
	backend := &mocks.Backend{}
	signer := &mocks.Signer{Addr: testAccount}
	e := newTestEngine(backend, signer)

	result, err := e.ExecuteRaw(context.Background(), map[string]interface{}{
		"action":     "cancel_scheduled_payment",
		"scheduleId": "7",
	})
	assert.NoError(t, err)

	out, ok := result.(map[string]string)
	assert.True(t, ok)
	assert.Equal(t, "7", out["scheduleId"])
	assert.NotEmpty(t, out["hash"])

	assert.Len(t, signer.Sent, 1)
	cancelID := contracts.SchedulerABI.Methods["cancelScheduled"].ID
	assert.Equal(t, cancelID, signer.Sent[0].Data[:4])
}

func TestExecuteScheduleCallRequiresID(t *testing.T) {
	backend := &mocks.Backend{}
	signer := &mocks.Signer{Addr: testAccount}
	e := newTestEngine(backend, signer)

	_, err := e.ExecuteRaw(context.Background(), map[string]interface{}{"action": "execute_recurring_payment"})
	var validationErr *models.ValidationError
	assert.ErrorAs(t, err, &validationErr)
	assert.Empty(t, signer.Sent)
}

func TestExecuteGetBalance(t *testing.T) {
	backend := &mocks.Backend{
		CallContractFn: func(_ context.Context, _ ethereum.CallMsg, _ *big.Int) ([]byte, error) {
			return contracts.ERC20ABI.Methods["balanceOf"].Outputs.Pack(big.NewInt(2_500_000))
		},
	}
	signer := &mocks.Signer{Addr: testAccount}
	e := newTestEngine(backend, signer)

	result, err := e.ExecuteRaw(context.Background(), map[string]interface{}{"action": "get_balance"})
	assert.NoError(t, err)

	balances, ok := result.([]models.Balance)
	assert.True(t, ok)
	assert.Len(t, balances, 4)
	assert.Equal(t, "2.5", balances[0].Formatted)
}

func TestExecuteMintTokenSelfGrantsRole(t *testing.T) {
	grantChecked := false
	backend := &mocks.Backend{
		CallContractFn: func(_ context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
			grantChecked = true
			return contracts.ERC20ABI.Methods["hasRole"].Outputs.Pack(false)
		},
	}
	signer := &mocks.Signer{Addr: testAccount}
	e := newTestEngine(backend, signer)

	_, err := e.ExecuteRaw(context.Background(), map[string]interface{}{
		"action": "mint_token",
		"token":  "AlphaUSD",
		"amount": "50",
	})
	assert.NoError(t, err)
	assert.True(t, grantChecked)

	// grantRole first, then mint, both against the token contract.
	assert.Len(t, signer.Sent, 2)
	grantID := contracts.ERC20ABI.Methods["grantRole"].ID
	mintID := contracts.ERC20ABI.Methods["mint"].ID
	assert.Equal(t, grantID, signer.Sent[0].Data[:4])
	assert.Equal(t, mintID, signer.Sent[1].Data[:4])
}

func TestExecuteTrackTokenWithExplicitMetadata(t *testing.T) {
	backend := &mocks.Backend{}
	signer := &mocks.Signer{Addr: testAccount}
	e := newTestEngine(backend, signer)

	addr := "0xCCC0000000000000000000000000000000000007"
	result, err := e.ExecuteRaw(context.Background(), map[string]interface{}{
		"action":   "track_token",
		"address":  addr,
		"symbol":   "WIDGET",
		"decimals": float64(6),
	})
	assert.NoError(t, err)

	tracked, ok := result.(*models.TrackedToken)
	assert.True(t, ok)
	assert.True(t, tracked.Tracked)
	assert.Equal(t, "WIDGET", tracked.Symbol)

	// The tracked token resolves from the cache afterwards.
	token, err := e.resolver.Resolve(context.Background(), testAccount, "WIDGET")
	assert.NoError(t, err)
	assert.Equal(t, common.HexToAddress(addr), token.Address)
}
