package replyclient

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// AssetResponse points at a hosted avatar model or scene environment.
type AssetResponse struct {
	URL         string `json:"url"`
	PreviewOnly bool   `json:"previewOnly,omitempty"`
}

// ModelURL fetches the avatar model asset for a user. Identity travels in a
// custom header, not the payload.
func (c *Client) ModelURL(ctx context.Context, userID string) (*AssetResponse, error) {
	return c.asset(ctx, c.baseURL+"/model/model-url", map[string]string{
		"x-user-id": userID,
	})
}

// UserEnvironment fetches the scene environment asset for a user.
func (c *Client) UserEnvironment(ctx context.Context, userID, envName string) (*AssetResponse, error) {
	return c.asset(ctx, c.baseURL+"/environment/user-env", map[string]string{
		"x-user-id":  userID,
		"x-env-name": envName,
	})
}

func (c *Client) asset(ctx context.Context, endpoint string, headers map[string]string) (*AssetResponse, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		httpReq.Header.Set(k, v)
	}

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
		return nil, fmt.Errorf("asset service error [%d]: %s", resp.StatusCode, string(respBody))
	}

	var result AssetResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return &result, nil
}
