package engine

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sisyphus-fi/tempo-engine/pkg/chain"
	"github.com/sisyphus-fi/tempo-engine/pkg/dispatch"
	"github.com/sisyphus-fi/tempo-engine/pkg/exchange"
	"github.com/sisyphus-fi/tempo-engine/pkg/logger"
	"github.com/sisyphus-fi/tempo-engine/pkg/metrics"
	"github.com/sisyphus-fi/tempo-engine/pkg/models"
	"github.com/sisyphus-fi/tempo-engine/pkg/scheduler"
	"github.com/sisyphus-fi/tempo-engine/pkg/tokens"
)

// Engine executes normalized intents. Every action resolves its token
// references first, raises any allowance it needs, then submits through the
// dispatch strategy the signer supports.
type Engine struct {
	backend    chain.Backend
	signer     chain.Signer
	registry   *tokens.Registry
	resolver   *tokens.Resolver
	dispatcher *dispatch.Dispatcher
	exchange   *exchange.Exchange
	scheduler  *scheduler.Scheduler
	store      tokens.Store
	orderIndex *OrderIndex
	faucet     *FaucetClient
	logger     logger.Logger

	mu       sync.Mutex
	feeToken *tokens.Token
}

// New wires an engine. orderIndex and faucet may be nil when the
// corresponding collaborator is not configured.
func New(backend chain.Backend, signer chain.Signer, registry *tokens.Registry, resolver *tokens.Resolver, dispatcher *dispatch.Dispatcher, xchg *exchange.Exchange, sched *scheduler.Scheduler, store tokens.Store, orderIndex *OrderIndex, faucet *FaucetClient, log logger.Logger) *Engine {
	return &Engine{
		backend:    backend,
		signer:     signer,
		registry:   registry,
		resolver:   resolver,
		dispatcher: dispatcher,
		exchange:   xchg,
		scheduler:  sched,
		store:      store,
		orderIndex: orderIndex,
		faucet:     faucet,
		logger:     log,
	}
}

// ExecuteRaw normalizes and executes a raw intent object. A nil result with
// a nil error means the intent carried no actionable kind and the caller
// should respond informationally instead.
func (e *Engine) ExecuteRaw(ctx context.Context, raw map[string]interface{}) (interface{}, error) {
	intent := Normalize(raw)
	if intent == nil {
		e.logger.DebugWith(logger.Engine, "Dropped non-actionable intent")
		return nil, nil
	}
	return e.Execute(ctx, intent)
}

// Execute runs one normalized intent and returns its structured result.
func (e *Engine) Execute(ctx context.Context, intent *models.Intent) (interface{}, error) {
	requestID := uuid.NewString()[:8]
	start := time.Now()

	e.logger.InfoWith(logger.Engine, "[%s] Executing %s", requestID, intent.Kind)

	result, err := e.dispatchIntent(ctx, intent)

	metrics.ActionDuration.WithLabelValues(intent.Kind).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.ActionsExecuted.WithLabelValues(intent.Kind, "error").Inc()
		e.logger.ErrorWith(logger.Engine, "[%s] %s failed: %v", requestID, intent.Kind, err)
		return result, err
	}

	metrics.ActionsExecuted.WithLabelValues(intent.Kind, "success").Inc()
	e.logger.InfoWith(logger.Engine, "[%s] %s completed in %s", requestID, intent.Kind, time.Since(start).Round(time.Millisecond))
	return result, nil
}

// FeeToken returns the preferred fee token, falling back to the persisted
// preference when the process was restarted. Nil when none was ever set.
func (e *Engine) FeeToken() *tokens.Token {
	e.mu.Lock()
	if e.feeToken != nil {
		t := *e.feeToken
		e.mu.Unlock()
		return &t
	}
	e.mu.Unlock()

	value, err := e.store.Get(context.Background(), e.feeTokenKey())
	if err != nil {
		return nil
	}
	var t tokens.Token
	if err := json.Unmarshal([]byte(value), &t); err != nil {
		return nil
	}

	e.mu.Lock()
	e.feeToken = &t
	e.mu.Unlock()
	return &t
}

func (e *Engine) setFeeToken(ctx context.Context, t tokens.Token) {
	e.mu.Lock()
	e.feeToken = &t
	e.mu.Unlock()

	// A local preference, persisted best effort.
	data, err := json.Marshal(t)
	if err == nil {
		err = e.store.Put(ctx, e.feeTokenKey(), string(data))
	}
	if err != nil {
		e.logger.ErrorWith(logger.Engine, "Failed to persist fee token preference: %v", err)
	}
}

func (e *Engine) feeTokenKey() string {
	return "feetoken:" + strings.ToLower(e.signer.Address().Hex())
}
