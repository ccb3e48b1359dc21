package chain

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/sisyphus-fi/tempo-engine/pkg/logger"
)

// CustodialSigner submits transactions through a wallet API that holds the
// key. The service signs server side and supports submitting a list of calls
// as one atomic transaction.
type CustodialSigner struct {
	baseURL    string
	apiKey     string
	address    common.Address
	atomic     bool
	httpClient *http.Client
	logger     logger.Logger
}

var _ Signer = (*CustodialSigner)(nil)

type custodialCall struct {
	To    string `json:"to"`
	Data  string `json:"data"`
	Value string `json:"value,omitempty"`
}

type custodialSendRequest struct {
	Calls []custodialCall `json:"calls"`
}

type custodialSendResponse struct {
	Hash  string `json:"hash"`
	Error string `json:"error,omitempty"`
}

type custodialAccountResponse struct {
	Address string `json:"address"`
	Atomic  bool   `json:"atomic"`
}

// NewCustodialSigner creates a signer backed by the wallet API at baseURL
// and resolves the account address it controls.
func NewCustodialSigner(ctx context.Context, baseURL, apiKey string, log logger.Logger) (*CustodialSigner, error) {
	s := &CustodialSigner{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     log,
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/v1/account", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create account request: %v", err)
	}
	s.authorize(req)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch wallet account: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("wallet account request failed with status %d: %s", resp.StatusCode, string(body))
	}

	var account custodialAccountResponse
	if err := json.NewDecoder(resp.Body).Decode(&account); err != nil {
		return nil, fmt.Errorf("failed to decode wallet account response: %v", err)
	}
	if !common.IsHexAddress(account.Address) {
		return nil, fmt.Errorf("wallet returned invalid address: %s", account.Address)
	}

	s.address = common.HexToAddress(account.Address)
	s.atomic = account.Atomic
	log.InfoWith(logger.Chain, "Custodial signer ready for %s (atomic batches: %t)", s.address.Hex(), s.atomic)
	return s, nil
}

func (s *CustodialSigner) Address() common.Address {
	return s.address
}

func (s *CustodialSigner) Capabilities() Capabilities {
	return Capabilities{AtomicBatch: s.atomic, Custodial: true}
}

func (s *CustodialSigner) SendTransaction(ctx context.Context, call TxCall) (common.Hash, error) {
	return s.submit(ctx, []TxCall{call})
}

func (s *CustodialSigner) SendBatch(ctx context.Context, calls []TxCall) (common.Hash, error) {
	if !s.atomic {
		return common.Hash{}, fmt.Errorf("wallet does not support atomic batches")
	}
	if len(calls) == 0 {
		return common.Hash{}, fmt.Errorf("empty batch")
	}
	return s.submit(ctx, calls)
}

func (s *CustodialSigner) submit(ctx context.Context, calls []TxCall) (common.Hash, error) {
	payload := custodialSendRequest{Calls: make([]custodialCall, 0, len(calls))}
	for _, call := range calls {
		c := custodialCall{
			To:   call.To.Hex(),
			Data: hexutil.Encode(call.Data),
		}
		if call.Value != nil && call.Value.Sign() > 0 {
			c.Value = hexutil.EncodeBig(call.Value)
		}
		payload.Calls = append(payload.Calls, c)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to marshal send request: %v", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/v1/transactions", bytes.NewReader(body))
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to create send request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	s.authorize(req)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to submit transaction: %v", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to read wallet response: %v", err)
	}

	if resp.StatusCode != http.StatusOK {
		return common.Hash{}, fmt.Errorf("wallet submission failed with status %d: %s", resp.StatusCode, string(respBody))
	}

	var result custodialSendResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return common.Hash{}, fmt.Errorf("failed to decode wallet response: %v", err)
	}
	if result.Error != "" {
		return common.Hash{}, fmt.Errorf("wallet rejected transaction: %s", result.Error)
	}

	s.logger.DebugWith(logger.Chain, "Wallet submitted %d call(s) as %s", len(calls), result.Hash)
	return common.HexToHash(result.Hash), nil
}

func (s *CustodialSigner) authorize(req *http.Request) {
	if s.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}
}
