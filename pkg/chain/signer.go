package chain

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/sisyphus-fi/tempo-engine/pkg/logger"
)

// TxCall is one contract invocation to be signed and submitted.
type TxCall struct {
	To    common.Address
	Data  []byte
	Value *big.Int
}

// Capabilities describes what a signer can do. Dispatch strategy selection
// keys off these flags.
type Capabilities struct {
	// AtomicBatch means the signer can submit a list of calls as one
	// all-or-nothing transaction.
	AtomicBatch bool

	// Custodial means a wallet service holds the key. Custodial submission
	// pipelines are unreliable about pending-nonce reporting, so dispatch
	// waits for each receipt before sending the next transaction.
	Custodial bool
}

// Signer submits signed transactions on behalf of one address.
type Signer interface {
	Address() common.Address
	Capabilities() Capabilities

	// SendTransaction signs and submits one call, returning its hash.
	SendTransaction(ctx context.Context, call TxCall) (common.Hash, error)

	// SendBatch signs and submits the calls as one atomic transaction.
	// Signers without the AtomicBatch capability return an error.
	SendBatch(ctx context.Context, calls []TxCall) (common.Hash, error)
}

// KeyedSigner signs with a locally held private key.
type KeyedSigner struct {
	key     *ecdsa.PrivateKey
	address common.Address
	chainID *big.Int
	backend Backend
	nonces  *NonceSequencer
	gasMult float64
	logger  logger.Logger
}

var _ Signer = (*KeyedSigner)(nil)

// NewKeyedSigner creates a signer from a hex-encoded private key.
func NewKeyedSigner(privateKey string, chainID int64, backend Backend, nonces *NonceSequencer, gasMult float64, log logger.Logger) (*KeyedSigner, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(privateKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %v", err)
	}

	return &KeyedSigner{
		key:     key,
		address: crypto.PubkeyToAddress(key.PublicKey),
		chainID: big.NewInt(chainID),
		backend: backend,
		nonces:  nonces,
		gasMult: gasMult,
		logger:  log,
	}, nil
}

func (s *KeyedSigner) Address() common.Address {
	return s.address
}

func (s *KeyedSigner) Capabilities() Capabilities {
	return Capabilities{}
}

func (s *KeyedSigner) SendTransaction(ctx context.Context, call TxCall) (common.Hash, error) {
	nonce, err := s.nonces.Next(ctx, s.address)
	if err != nil {
		return common.Hash{}, err
	}

	gasPrice, err := GasPrice(ctx, s.backend, s.gasMult)
	if err != nil {
		return common.Hash{}, err
	}

	value := call.Value
	if value == nil {
		value = big.NewInt(0)
	}

	gasLimit, err := s.backend.EstimateGas(ctx, ethereum.CallMsg{
		From:  s.address,
		To:    &call.To,
		Value: value,
		Data:  call.Data,
	})
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to estimate gas: %v", err)
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &call.To,
		Value:    value,
		Gas:      gasLimit,
		GasPrice: gasPrice,
		Data:     call.Data,
	})

	signed, err := types.SignTx(tx, types.LatestSignerForChainID(s.chainID), s.key)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to sign transaction: %v", err)
	}

	if err := s.backend.SendTransaction(ctx, signed); err != nil {
		return common.Hash{}, fmt.Errorf("failed to send transaction: %v", err)
	}

	s.logger.DebugWith(logger.Chain, "Sent transaction %s (nonce %d)", signed.Hash().Hex(), nonce)
	return signed.Hash(), nil
}

func (s *KeyedSigner) SendBatch(_ context.Context, _ []TxCall) (common.Hash, error) {
	return common.Hash{}, fmt.Errorf("keyed signer does not support atomic batches")
}
