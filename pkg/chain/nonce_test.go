package chain

import (
	"context"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"

	"github.com/sisyphus-fi/tempo-engine/pkg/logger"
)

type pendingNonceBackend struct {
	Backend
	pending uint64
}

func (b *pendingNonceBackend) PendingNonceAt(_ context.Context, _ common.Address) (uint64, error) {
	return b.pending, nil
}

func TestNonceSequencerStrictlyIncreasing(t *testing.T) {
	backend := &pendingNonceBackend{pending: 5}
	seq := NewNonceSequencer(backend, &logger.EmptyLogger{})
	addr := common.HexToAddress("0x1111111111111111111111111111111111111111")

	// The chain reports pending 5 and never advances, so the local counter
	// has to carry the sequence on its own.
	for i := uint64(5); i < 10; i++ {
		nonce, err := seq.Next(context.Background(), addr)
		assert.NoError(t, err)
		assert.Equal(t, i, nonce)
	}
}

func TestNonceSequencerChainAdvanceWins(t *testing.T) {
	backend := &pendingNonceBackend{pending: 0}
	seq := NewNonceSequencer(backend, &logger.EmptyLogger{})
	addr := common.HexToAddress("0x2222222222222222222222222222222222222222")

	nonce, err := seq.Next(context.Background(), addr)
	assert.NoError(t, err)
	assert.Equal(t, uint64(0), nonce)

	// Something outside the sequencer lands transactions and the chain
	// jumps ahead of the local counter.
	backend.pending = 7

	nonce, err = seq.Next(context.Background(), addr)
	assert.NoError(t, err)
	assert.Equal(t, uint64(7), nonce)

	nonce, err = seq.Next(context.Background(), addr)
	assert.NoError(t, err)
	assert.Equal(t, uint64(8), nonce)
}

func TestNonceSequencerReset(t *testing.T) {
	backend := &pendingNonceBackend{pending: 3}
	seq := NewNonceSequencer(backend, &logger.EmptyLogger{})
	addr := common.HexToAddress("0x3333333333333333333333333333333333333333")

	nonce, err := seq.Next(context.Background(), addr)
	assert.NoError(t, err)
	assert.Equal(t, uint64(3), nonce)

	seq.Reset(addr)

	nonce, err = seq.Next(context.Background(), addr)
	assert.NoError(t, err)
	assert.Equal(t, uint64(3), nonce)
}
