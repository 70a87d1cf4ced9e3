package replyclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/amglabs/companion/domain"
)

// CheckoutResponse carries a backend-issued redirect target. The orchestrator
// never talks to the payment processor directly.
type CheckoutResponse struct {
	URL string `json:"url"`
}

// Subscribe starts a premium checkout for the given email.
func (c *Client) Subscribe(ctx context.Context, email string) (*CheckoutResponse, error) {
	return c.checkout(ctx, "/subscribe", map[string]string{"email": email})
}

// Portal returns the billing portal URL for an existing subscriber.
func (c *Client) Portal(ctx context.Context, email string) (*CheckoutResponse, error) {
	return c.checkout(ctx, "/portal", map[string]string{"email": email})
}

// MemoryUpgrade starts a checkout for a message-memory plan.
func (c *Client) MemoryUpgrade(ctx context.Context, email string, tier domain.MemoryTier) (*CheckoutResponse, error) {
	return c.checkout(ctx, "/stripe/memory-upgrade", map[string]string{
		"email": email,
		"tier":  string(tier),
	})
}

func (c *Client) checkout(ctx context.Context, path string, payload map[string]string) (*CheckoutResponse, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("billing service error [%d]: %s", resp.StatusCode, string(respBody))
	}

	var result CheckoutResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return &result, nil
}
