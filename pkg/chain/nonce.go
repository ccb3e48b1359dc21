package chain

import (
	"context"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/sisyphus-fi/tempo-engine/pkg/logger"
	"github.com/sisyphus-fi/tempo-engine/pkg/metrics"
)

// NonceSequencer hands out strictly increasing nonces per address. Each call
// reconciles the local counter with the chain's pending count so externally
// submitted transactions never cause a reuse, while rapid local submissions
// never collide even before the chain reflects them.
type NonceSequencer struct {
	backend Backend
	logger  logger.Logger

	mu   sync.Mutex
	next map[common.Address]uint64
}

// NewNonceSequencer creates a nonce sequencer backed by the given client.
func NewNonceSequencer(backend Backend, log logger.Logger) *NonceSequencer {
	return &NonceSequencer{
		backend: backend,
		logger:  log,
		next:    make(map[common.Address]uint64),
	}
}

// Next returns the nonce to use for the address's next transaction and
// advances the local counter past it.
func (s *NonceSequencer) Next(ctx context.Context, addr common.Address) (uint64, error) {
	pending, err := s.backend.PendingNonceAt(ctx, addr)
	if err != nil {
		return 0, fmt.Errorf("failed to get pending nonce for %s: %v", addr.Hex(), err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	nonce := s.next[addr]
	if pending > nonce {
		if _, tracked := s.next[addr]; tracked {
			s.logger.DebugWith(logger.Chain, "Nonce for %s advanced to chain pending %d (local %d)", addr.Hex(), pending, nonce)
			metrics.NonceResyncs.Inc()
		}
		nonce = pending
	}

	s.next[addr] = nonce + 1
	return nonce, nil
}

// Reset forgets the local counter for the address. The next call to Next
// starts from the chain's pending count again.
func (s *NonceSequencer) Reset(addr common.Address) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.next, addr)
}
