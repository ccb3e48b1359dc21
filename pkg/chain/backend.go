// Package chain wraps the RPC connection, signing and nonce management the
// rest of the engine builds on.
package chain

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/sisyphus-fi/tempo-engine/pkg/logger"
	"github.com/sisyphus-fi/tempo-engine/pkg/metrics"
)

// Backend is the slice of the RPC surface the engine uses. *ethclient.Client
// satisfies it.
type Backend interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error)
	BlockNumber(ctx context.Context) (uint64, error)
}

var _ Backend = (*ethclient.Client)(nil)

// receiptPollInterval is how often WaitMined asks for the receipt.
const receiptPollInterval = 500 * time.Millisecond

// Connect dials the RPC endpoint and verifies it serves the expected chain.
func Connect(ctx context.Context, rpcURL string, chainID int64, log logger.Logger) (*ethclient.Client, error) {
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RPC: %v", err)
	}

	remote, err := client.ChainID(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to get chain ID: %v", err)
	}
	if remote.Int64() != chainID {
		client.Close()
		return nil, fmt.Errorf("RPC serves chain %d, expected %d", remote.Int64(), chainID)
	}

	log.InfoWith(logger.Chain, "Connected to chain %d via %s", chainID, rpcURL)
	return client, nil
}

// Call performs a read-only contract call and unpacks the outputs.
func Call(ctx context.Context, b Backend, contract common.Address, a abi.ABI, method string, args ...interface{}) ([]interface{}, error) {
	data, err := a.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to pack %s call: %v", method, err)
	}

	out, err := b.CallContract(ctx, ethereum.CallMsg{To: &contract, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to call %s: %v", method, err)
	}

	results, err := a.Unpack(method, out)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack %s result: %v", method, err)
	}
	return results, nil
}

// WaitMined polls for the receipt of the given transaction until it lands or
// the context expires.
func WaitMined(ctx context.Context, b Backend, txHash common.Hash) (*types.Receipt, error) {
	ticker := time.NewTicker(receiptPollInterval)
	defer ticker.Stop()

	for {
		receipt, err := b.TransactionReceipt(ctx, txHash)
		if err == nil && receipt != nil {
			return receipt, nil
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("timed out waiting for transaction %s: %v", txHash.Hex(), ctx.Err())
		case <-ticker.C:
		}
	}
}

// GasPrice suggests a gas price scaled by the configured multiplier.
func GasPrice(ctx context.Context, b Backend, multiplier float64) (*big.Int, error) {
	price, err := b.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to suggest gas price: %v", err)
	}

	scaled := new(big.Float).Mul(new(big.Float).SetInt(price), big.NewFloat(multiplier))
	result, _ := scaled.Int(nil)

	gwei, _ := new(big.Float).Quo(new(big.Float).SetInt(result), big.NewFloat(1e9)).Float64()
	metrics.GasPrice.Set(gwei)

	return result, nil
}
