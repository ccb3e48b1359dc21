// Package scheduler encodes payment schedules as calls to the on-chain
// scheduler contract. One-time schedules escrow funds at creation; recurring
// schedules leave funds with the payer and pull at each due time.
package scheduler

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/sisyphus-fi/tempo-engine/pkg/chain"
	"github.com/sisyphus-fi/tempo-engine/pkg/contracts"
	"github.com/sisyphus-fi/tempo-engine/pkg/dispatch"
	"github.com/sisyphus-fi/tempo-engine/pkg/logger"
	"github.com/sisyphus-fi/tempo-engine/pkg/metrics"
	"github.com/sisyphus-fi/tempo-engine/pkg/models"
	"github.com/sisyphus-fi/tempo-engine/pkg/tokens"
)

// Scheduler drives the payment-scheduler contract.
type Scheduler struct {
	backend  chain.Backend
	signer   chain.Signer
	guard    *dispatch.AllowanceGuard
	resolver *tokens.Resolver
	address  common.Address
	logger   logger.Logger

	// now is swappable for tests.
	now func() time.Time
}

// NewScheduler wires the scheduler service.
func NewScheduler(backend chain.Backend, signer chain.Signer, guard *dispatch.AllowanceGuard, resolver *tokens.Resolver, address common.Address, log logger.Logger) *Scheduler {
	return &Scheduler{
		backend:  backend,
		signer:   signer,
		guard:    guard,
		resolver: resolver,
		address:  address,
		logger:   log,
		now:      time.Now,
	}
}

// ScheduleOneTime creates one escrowed schedule per transfer, due at
// executeAt. The scheduler pulls the funds immediately, so each creation is
// preceded by an allowance check. A failure after some schedules were
// created returns those results alongside the error; created schedules are
// final.
func (s *Scheduler) ScheduleOneTime(ctx context.Context, transfers []models.Transfer, executeAt int64) ([]models.ScheduledPaymentResult, error) {
	if len(transfers) == 0 {
		return nil, models.NewValidationError("transfers", "must not be empty")
	}
	if executeAt <= s.now().Unix() {
		return nil, models.NewValidationError("executeAt", "must be in the future")
	}

	owner := s.signer.Address()
	created := make([]models.ScheduledPaymentResult, 0, len(transfers))

	for i, t := range transfers {
		if !common.IsHexAddress(t.To) {
			return created, models.NewValidationError("to", fmt.Sprintf("%q is not an address", t.To))
		}

		token, err := s.resolver.Resolve(ctx, owner, t.Token)
		if err != nil {
			return created, err
		}

		amount, err := tokens.ParseAmount(t.Amount, token.Decimals)
		if err != nil {
			return created, models.NewValidationError("amount", err.Error())
		}
		if amount.Sign() <= 0 {
			return created, models.NewValidationError("amount", "must be positive")
		}

		if err := s.guard.Ensure(ctx, token.Address, s.address, amount, true); err != nil {
			return created, err
		}

		data, err := contracts.SchedulerABI.Pack("createScheduled", token.Address, common.HexToAddress(t.To), amount, big.NewInt(executeAt))
		if err != nil {
			return created, fmt.Errorf("failed to pack createScheduled call: %v", err)
		}

		receipt, hash, err := s.submit(ctx, data, fmt.Sprintf("schedule %d of %d", i+1, len(transfers)))
		if err != nil {
			return created, err
		}

		metrics.PaymentsScheduled.WithLabelValues("one_time").Inc()
		created = append(created, models.ScheduledPaymentResult{
			ScheduleID: s.scheduleID(receipt, "OneTimeScheduled"),
			Token:      t.Token,
			Amount:     t.Amount,
			To:         t.To,
			ExecuteAt:  executeAt,
			Hash:       hash.Hex(),
		})
		s.logger.InfoWith(logger.Scheduler, "Escrowed %s %s for %s, due %d", t.Amount, t.Token, t.To, executeAt)
	}

	return created, nil
}

// ScheduleRecurring creates a pull-based standing payment. endTime 0 means
// unbounded; firstDueTime 0 means the first run is due immediately. The
// allowance only has to cover one period up front, but must stay sufficient
// at every due time or that run fails on chain.
func (s *Scheduler) ScheduleRecurring(ctx context.Context, tokenRef, amountStr, to string, intervalSeconds, endTime, firstDueTime int64) (*models.RecurringPaymentResult, error) {
	if intervalSeconds <= 0 {
		return nil, models.NewValidationError("intervalSeconds", "must be positive")
	}
	if !common.IsHexAddress(to) {
		return nil, models.NewValidationError("to", fmt.Sprintf("%q is not an address", to))
	}

	token, err := s.resolver.Resolve(ctx, s.signer.Address(), tokenRef)
	if err != nil {
		return nil, err
	}

	amount, err := tokens.ParseAmount(amountStr, token.Decimals)
	if err != nil {
		return nil, models.NewValidationError("amount", err.Error())
	}
	if amount.Sign() <= 0 {
		return nil, models.NewValidationError("amount", "must be positive")
	}

	if err := s.guard.Ensure(ctx, token.Address, s.address, amount, true); err != nil {
		return nil, err
	}

	data, err := contracts.SchedulerABI.Pack("createRecurring", token.Address, common.HexToAddress(to), amount,
		big.NewInt(intervalSeconds), big.NewInt(endTime), big.NewInt(firstDueTime))
	if err != nil {
		return nil, fmt.Errorf("failed to pack createRecurring call: %v", err)
	}

	receipt, hash, err := s.submit(ctx, data, "recurring schedule")
	if err != nil {
		return nil, err
	}

	metrics.PaymentsScheduled.WithLabelValues("recurring").Inc()
	s.logger.InfoWith(logger.Scheduler, "Recurring payment of %s %s to %s every %ds", amountStr, tokenRef, to, intervalSeconds)

	return &models.RecurringPaymentResult{
		ScheduleID:      s.scheduleID(receipt, "RecurringScheduled"),
		Token:           tokenRef,
		Amount:          amountStr,
		To:              to,
		IntervalSeconds: intervalSeconds,
		EndTime:         endTime,
		FirstDueTime:    firstDueTime,
		Hash:            hash.Hex(),
	}, nil
}

// ExecuteOneTime runs a due escrowed schedule. Anyone may call this once
// the due time has passed.
func (s *Scheduler) ExecuteOneTime(ctx context.Context, id *big.Int) (string, error) {
	return s.simpleCall(ctx, "executeScheduled", id)
}

// ExecuteRecurring runs a due recurring schedule.
func (s *Scheduler) ExecuteRecurring(ctx context.Context, id *big.Int) (string, error) {
	return s.simpleCall(ctx, "executeRecurring", id)
}

// CancelOneTime cancels an escrowed schedule and returns the funds.
func (s *Scheduler) CancelOneTime(ctx context.Context, id *big.Int) (string, error) {
	return s.simpleCall(ctx, "cancelScheduled", id)
}

// CancelRecurring stops a standing payment.
func (s *Scheduler) CancelRecurring(ctx context.Context, id *big.Int) (string, error) {
	return s.simpleCall(ctx, "cancelRecurring", id)
}

func (s *Scheduler) simpleCall(ctx context.Context, method string, id *big.Int) (string, error) {
	data, err := contracts.SchedulerABI.Pack(method, id)
	if err != nil {
		return "", fmt.Errorf("failed to pack %s call: %v", method, err)
	}

	_, hash, err := s.submit(ctx, data, method)
	if err != nil {
		return "", err
	}

	s.logger.InfoWith(logger.Scheduler, "%s(%s) confirmed as %s", method, id.String(), hash.Hex())
	return hash.Hex(), nil
}

func (s *Scheduler) submit(ctx context.Context, data []byte, what string) (*types.Receipt, common.Hash, error) {
	hash, err := s.signer.SendTransaction(ctx, chain.TxCall{To: s.address, Data: data})
	if err != nil {
		return nil, common.Hash{}, fmt.Errorf("failed to submit %s: %v", what, err)
	}

	receipt, err := chain.WaitMined(ctx, s.backend, hash)
	if err != nil {
		return nil, common.Hash{}, err
	}
	if receipt.Status == 0 {
		return nil, common.Hash{}, fmt.Errorf("%s transaction %s reverted", what, hash.Hex())
	}
	return receipt, hash, nil
}

// scheduleID pulls the schedule id out of the creation event. An empty id
// is returned when the event is missing; the schedule still exists and the
// id can be recovered from the hash later.
func (s *Scheduler) scheduleID(receipt *types.Receipt, eventName string) string {
	event := contracts.SchedulerABI.Events[eventName]
	for _, l := range receipt.Logs {
		if l.Address != s.address || len(l.Topics) < 2 || l.Topics[0] != event.ID {
			continue
		}
		return new(big.Int).SetBytes(l.Topics[1].Bytes()).String()
	}
	s.logger.NoticeWith(logger.Scheduler, "%s event missing from receipt %s", eventName, receipt.TxHash.Hex())
	return ""
}
