package scheduler

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"

	"github.com/sisyphus-fi/tempo-engine/pkg/chain/mocks"
	"github.com/sisyphus-fi/tempo-engine/pkg/contracts"
	"github.com/sisyphus-fi/tempo-engine/pkg/dispatch"
	"github.com/sisyphus-fi/tempo-engine/pkg/logger"
	"github.com/sisyphus-fi/tempo-engine/pkg/models"
	"github.com/sisyphus-fi/tempo-engine/pkg/tokens"
)

var (
	testPayer = common.HexToAddress("0x1111111111111111111111111111111111111111")
	fixedNow  = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
)

func newTestScheduler(backend *mocks.Backend, signer *mocks.Signer) *Scheduler {
	resolver := tokens.NewResolver(tokens.NewRegistry(), tokens.NewMemoryStore(), backend, contracts.FactoryAddress, 10000, &logger.EmptyLogger{})
	guard := dispatch.NewAllowanceGuard(backend, signer, &logger.EmptyLogger{})
	s := NewScheduler(backend, signer, guard, resolver, contracts.SchedulerAddress, &logger.EmptyLogger{})
	s.now = func() time.Time { return fixedNow }
	return s
}

// scheduleBackend answers allowance reads and stamps a creation event with
// the given id onto every receipt.
func scheduleBackend(eventName string, id int64) *mocks.Backend {
	event := contracts.SchedulerABI.Events[eventName]
	return &mocks.Backend{
		CallContractFn: func(_ context.Context, _ ethereum.CallMsg, _ *big.Int) ([]byte, error) {
			return contracts.ERC20ABI.Methods["allowance"].Outputs.Pack(dispatch.MaxUint256)
		},
		TransactionReceiptFn: func(_ context.Context, txHash common.Hash) (*types.Receipt, error) {
			return &types.Receipt{
				Status:      types.ReceiptStatusSuccessful,
				TxHash:      txHash,
				BlockNumber: big.NewInt(1),
				Logs: []*types.Log{{
					Address: contracts.SchedulerAddress,
					Topics: []common.Hash{
						event.ID,
						common.BigToHash(big.NewInt(id)),
						common.BytesToHash(testPayer.Bytes()),
					},
				}},
			}, nil
		},
	}
}

func TestScheduleOneTimeRejectsPastDueTime(t *testing.T) {
	backend := &mocks.Backend{}
	signer := &mocks.Signer{Addr: testPayer}
	s := newTestScheduler(backend, signer)

	transfers := []models.Transfer{{Token: "AlphaUSD", Amount: "10", To: "0x2222222222222222222222222222222222222222"}}

	// executeAt equal to now is not in the future.
	_, err := s.ScheduleOneTime(context.Background(), transfers, fixedNow.Unix())
	var validationErr *models.ValidationError
	assert.ErrorAs(t, err, &validationErr)
	assert.Contains(t, err.Error(), "must be in the future")

	// Rejected before any chain traffic.
	assert.Empty(t, signer.Sent)
	assert.Empty(t, backend.CallMsgs)
}

func TestScheduleOneTimeCreatesEscrowPerTransfer(t *testing.T) {
	backend := scheduleBackend("OneTimeScheduled", 11)
	signer := &mocks.Signer{Addr: testPayer}
	s := newTestScheduler(backend, signer)

	transfers := []models.Transfer{
		{Token: "AlphaUSD", Amount: "10", To: "0x2222222222222222222222222222222222222222"},
		{Token: "BetaUSD", Amount: "5", To: "0x3333333333333333333333333333333333333333"},
	}

	results, err := s.ScheduleOneTime(context.Background(), transfers, fixedNow.Add(time.Hour).Unix())
	assert.NoError(t, err)
	assert.Len(t, results, 2)
	assert.Equal(t, "11", results[0].ScheduleID)
	assert.Len(t, signer.Sent, 2)
	assert.Equal(t, contracts.SchedulerAddress, signer.Sent[0].To)
}

func TestScheduleOneTimePartialFailureKeepsCreated(t *testing.T) {
	backend := scheduleBackend("OneTimeScheduled", 12)
	signer := &mocks.Signer{Addr: testPayer}
	s := newTestScheduler(backend, signer)

	transfers := []models.Transfer{
		{Token: "AlphaUSD", Amount: "10", To: "0x2222222222222222222222222222222222222222"},
		{Token: "NOPE", Amount: "5", To: "0x3333333333333333333333333333333333333333"},
	}

	results, err := s.ScheduleOneTime(context.Background(), transfers, fixedNow.Add(time.Hour).Unix())
	var resolutionErr *models.ResolutionError
	assert.ErrorAs(t, err, &resolutionErr)

	// The first schedule was created and escrowed before the failure.
	assert.Len(t, results, 1)
	assert.Len(t, signer.Sent, 1)
}

func TestScheduleRecurringRejectsBadInterval(t *testing.T) {
	backend := &mocks.Backend{}
	signer := &mocks.Signer{Addr: testPayer}
	s := newTestScheduler(backend, signer)

	_, err := s.ScheduleRecurring(context.Background(), "AlphaUSD", "10", "0x2222222222222222222222222222222222222222", 0, 0, 0)
	var validationErr *models.ValidationError
	assert.ErrorAs(t, err, &validationErr)
	assert.Empty(t, signer.Sent)
}

func TestScheduleRecurringUnboundedDefaults(t *testing.T) {
	backend := scheduleBackend("RecurringScheduled", 21)
	signer := &mocks.Signer{Addr: testPayer}
	s := newTestScheduler(backend, signer)

	result, err := s.ScheduleRecurring(context.Background(), "AlphaUSD", "10", "0x2222222222222222222222222222222222222222", 3600, 0, 0)
	assert.NoError(t, err)
	assert.Equal(t, "21", result.ScheduleID)
	assert.Equal(t, int64(0), result.EndTime)
	assert.Equal(t, int64(0), result.FirstDueTime)

	args, err := contracts.SchedulerABI.Methods["createRecurring"].Inputs.Unpack(signer.Sent[0].Data[4:])
	assert.NoError(t, err)
	assert.Equal(t, big.NewInt(3600), args[3])
	// Compare with Cmp: ABI-unpacked zeros carry an empty (non-nil) internal
	// slice, which assert.Equal's DeepEqual treats as unequal to big.NewInt(0).
	assert.Zero(t, big.NewInt(0).Cmp(args[4].(*big.Int)))
	assert.Zero(t, big.NewInt(0).Cmp(args[5].(*big.Int)))
}

func TestCancelOneTime(t *testing.T) {
	backend := &mocks.Backend{}
	signer := &mocks.Signer{Addr: testPayer}
	s := newTestScheduler(backend, signer)

	hash, err := s.CancelOneTime(context.Background(), big.NewInt(11))
	assert.NoError(t, err)
	assert.NotEmpty(t, hash)
	assert.Len(t, signer.Sent, 1)
	assert.Equal(t, contracts.SchedulerAddress, signer.Sent[0].To)
}
