package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/sisyphus-fi/tempo-engine/pkg/logger"
)

// FaucetClient asks the external funding collaborator to top up an address
// with test funds.
type FaucetClient struct {
	endpoint   string
	httpClient *http.Client
	logger     logger.Logger
}

// NewFaucetClient creates a client for the faucet at endpoint.
func NewFaucetClient(endpoint string, log logger.Logger) *FaucetClient {
	return &FaucetClient{
		endpoint:   endpoint,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     log,
	}
}

type faucetRequest struct {
	Address string `json:"address"`
}

type FaucetResult struct {
	Hash  string `json:"hash,omitempty"`
	Error string `json:"error,omitempty"`
}

// Request asks the faucet to fund the address.
func (c *FaucetClient) Request(ctx context.Context, address common.Address) (*FaucetResult, error) {
	body, err := json.Marshal(faucetRequest{Address: address.Hex()})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal faucet request: %v", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create faucet request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call faucet: %v", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read faucet response: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("faucet returned status %d: %s", resp.StatusCode, string(payload))
	}

	var result FaucetResult
	if err := json.Unmarshal(payload, &result); err != nil {
		return nil, fmt.Errorf("failed to decode faucet response: %v", err)
	}
	if result.Error != "" {
		return nil, fmt.Errorf("faucet rejected request: %s", result.Error)
	}

	c.logger.InfoWith(logger.Engine, "Faucet funded %s (%s)", address.Hex(), result.Hash)
	return &result, nil
}
