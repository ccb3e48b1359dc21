// Package mocks provides in-memory fakes for the chain backend and signer
// used in tests across the engine.
package mocks

import (
	"context"
	"encoding/binary"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/sisyphus-fi/tempo-engine/pkg/chain"
)

// Backend is a fake chain.Backend. Each method delegates to the matching
// function field when set and falls back to a benign default otherwise.
// Recorded calls let tests assert on what was submitted.
type Backend struct {
	CallContractFn       func(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	PendingNonceAtFn     func(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPriceFn    func(ctx context.Context) (*big.Int, error)
	EstimateGasFn        func(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SendTransactionFn    func(ctx context.Context, tx *types.Transaction) error
	TransactionReceiptFn func(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	FilterLogsFn         func(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error)
	BlockNumberFn        func(ctx context.Context) (uint64, error)

	mu           sync.Mutex
	CallMsgs     []ethereum.CallMsg
	SentTxs      []*types.Transaction
	FilterQs     []ethereum.FilterQuery
	ReceiptPolls []common.Hash
}

var _ chain.Backend = (*Backend)(nil)

func (b *Backend) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	b.mu.Lock()
	b.CallMsgs = append(b.CallMsgs, msg)
	b.mu.Unlock()
	if b.CallContractFn != nil {
		return b.CallContractFn(ctx, msg, blockNumber)
	}
	return nil, nil
}

func (b *Backend) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	if b.PendingNonceAtFn != nil {
		return b.PendingNonceAtFn(ctx, account)
	}
	return 0, nil
}

func (b *Backend) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	if b.SuggestGasPriceFn != nil {
		return b.SuggestGasPriceFn(ctx)
	}
	return big.NewInt(1_000_000_000), nil
}

func (b *Backend) EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	if b.EstimateGasFn != nil {
		return b.EstimateGasFn(ctx, msg)
	}
	return 100_000, nil
}

func (b *Backend) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	b.mu.Lock()
	b.SentTxs = append(b.SentTxs, tx)
	b.mu.Unlock()
	if b.SendTransactionFn != nil {
		return b.SendTransactionFn(ctx, tx)
	}
	return nil
}

func (b *Backend) TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	b.mu.Lock()
	b.ReceiptPolls = append(b.ReceiptPolls, txHash)
	b.mu.Unlock()
	if b.TransactionReceiptFn != nil {
		return b.TransactionReceiptFn(ctx, txHash)
	}
	return &types.Receipt{Status: types.ReceiptStatusSuccessful, TxHash: txHash, BlockNumber: big.NewInt(1)}, nil
}

func (b *Backend) FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	b.mu.Lock()
	b.FilterQs = append(b.FilterQs, q)
	b.mu.Unlock()
	if b.FilterLogsFn != nil {
		return b.FilterLogsFn(ctx, q)
	}
	return nil, nil
}

func (b *Backend) BlockNumber(ctx context.Context) (uint64, error) {
	if b.BlockNumberFn != nil {
		return b.BlockNumberFn(ctx)
	}
	return 100_000, nil
}

// Signer is a fake chain.Signer recording every submitted call.
type Signer struct {
	Addr common.Address
	Caps chain.Capabilities

	SendFn  func(ctx context.Context, call chain.TxCall) (common.Hash, error)
	BatchFn func(ctx context.Context, calls []chain.TxCall) (common.Hash, error)

	mu      sync.Mutex
	seq     uint64
	Sent    []chain.TxCall
	Batches [][]chain.TxCall
}

var _ chain.Signer = (*Signer)(nil)

func (s *Signer) Address() common.Address {
	return s.Addr
}

func (s *Signer) Capabilities() chain.Capabilities {
	return s.Caps
}

func (s *Signer) SendTransaction(ctx context.Context, call chain.TxCall) (common.Hash, error) {
	s.mu.Lock()
	s.Sent = append(s.Sent, call)
	s.mu.Unlock()
	if s.SendFn != nil {
		return s.SendFn(ctx, call)
	}
	return s.nextHash(), nil
}

func (s *Signer) SendBatch(ctx context.Context, calls []chain.TxCall) (common.Hash, error) {
	s.mu.Lock()
	s.Batches = append(s.Batches, calls)
	s.mu.Unlock()
	if s.BatchFn != nil {
		return s.BatchFn(ctx, calls)
	}
	return s.nextHash(), nil
}

func (s *Signer) nextHash() common.Hash {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	var h common.Hash
	binary.BigEndian.PutUint64(h[24:], s.seq)
	return h
}
