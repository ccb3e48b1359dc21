package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/sisyphus-fi/tempo-engine/pkg/logger"
	"github.com/sisyphus-fi/tempo-engine/pkg/models"
)

// OrderIndex is the external store that keeps order history and maps
// human labels to on-chain order ids. The engine only records placements
// and asks for lookups; listing and persistence live in the service.
type OrderIndex struct {
	baseURL    string
	httpClient *http.Client
	logger     logger.Logger
}

// NewOrderIndex creates a client for the order index at baseURL.
func NewOrderIndex(baseURL string, log logger.Logger) *OrderIndex {
	return &OrderIndex{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		logger:     log,
	}
}

type recordOrderRequest struct {
	RequestID string        `json:"requestId"`
	Maker     string        `json:"maker"`
	Order     *models.Order `json:"order"`
}

type resolveRefResponse struct {
	OrderID string `json:"orderId"`
}

// Record persists a placed order, id present or not. The request id makes
// the write idempotent on the index side.
func (c *OrderIndex) Record(ctx context.Context, maker common.Address, order *models.Order) error {
	body, err := json.Marshal(recordOrderRequest{RequestID: uuid.NewString(), Maker: maker.Hex(), Order: order})
	if err != nil {
		return fmt.Errorf("failed to marshal order record: %v", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/orders", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create order record request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to record order: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		payload, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("order index returned status %d: %s", resp.StatusCode, string(payload))
	}
	return nil
}

// List fetches the maker's open orders.
func (c *OrderIndex) List(ctx context.Context, maker common.Address) ([]models.Order, error) {
	endpoint := fmt.Sprintf("%s/v1/orders?maker=%s&open=true", c.baseURL, url.QueryEscape(maker.Hex()))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create order list request: %v", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("order index returned status %d: %s", resp.StatusCode, string(payload))
	}

	var orders []models.Order
	if err := json.NewDecoder(resp.Body).Decode(&orders); err != nil {
		return nil, fmt.Errorf("failed to decode order list: %v", err)
	}
	return orders, nil
}

// MarkCancelled flags an order as cancelled in the index.
func (c *OrderIndex) MarkCancelled(ctx context.Context, maker common.Address, orderID string) error {
	body, err := json.Marshal(map[string]string{"maker": maker.Hex(), "orderId": orderID})
	if err != nil {
		return fmt.Errorf("failed to marshal cancel record: %v", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/orders/cancel", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create cancel record request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to record cancel: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("order index returned status %d: %s", resp.StatusCode, string(payload))
	}
	return nil
}

// ResolveRef maps a human label to an on-chain order id.
func (c *OrderIndex) ResolveRef(ctx context.Context, maker common.Address, ref string) (string, error) {
	endpoint := fmt.Sprintf("%s/v1/orders/resolve?maker=%s&ref=%s", c.baseURL, url.QueryEscape(maker.Hex()), url.QueryEscape(ref))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create order resolve request: %v", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to resolve order ref: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return "", models.NewResolutionError("order", ref)
	}
	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("order index returned status %d: %s", resp.StatusCode, string(payload))
	}

	var result resolveRefResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("failed to decode order resolve response: %v", err)
	}
	if result.OrderID == "" {
		return "", models.NewResolutionError("order", ref)
	}
	return result.OrderID, nil
}
