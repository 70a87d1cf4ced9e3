// Package replyclient provides the HTTP client for the remote companion
// reply service: text replies, audio transcription, and voice synthesis.
package replyclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"
)

// Client is the reply service client.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a new reply service client.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// ReplyRequest carries the prompt plus the entitlement and memory context
// the service needs to stay in character.
type ReplyRequest struct {
	Prompt            string  `json:"prompt"`
	Premium           bool    `json:"premium"`
	WorkSafe          bool    `json:"worksafe"`
	Mood              string  `json:"mood"`
	Nickname          string  `json:"nickname,omitempty"`
	RelationshipLevel float64 `json:"relationship_level,omitempty"`
	TrustScore        float64 `json:"trust_score,omitempty"`
	MemoryContext     string  `json:"memory_context,omitempty"`
}

// ReplyResponse is the companion's reply with its content flag.
type ReplyResponse struct {
	Reply string `json:"reply"`
	NSFW  bool   `json:"nsfw"`
}

// Reply requests a companion reply for the given context.
func (c *Client) Reply(ctx context.Context, req *ReplyRequest) (*ReplyResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/reply", bytes.NewReader(body))
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
		return nil, fmt.Errorf("reply service error [%d]: %s", resp.StatusCode, string(respBody))
	}

	var result ReplyResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return &result, nil
}

// TranscribeResponse is the transcription of an uploaded audio clip.
type TranscribeResponse struct {
	Text string `json:"text"`
}

// Transcribe uploads an audio clip and returns its transcription.
func (c *Client) Transcribe(ctx context.Context, filename string, audio io.Reader) (*TranscribeResponse, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := io.Copy(part, audio); err != nil {
		return nil, fmt.Errorf("failed to copy audio: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close multipart writer: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/transcribe", &buf)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", writer.FormDataContentType())

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
		return nil, fmt.Errorf("transcribe service error [%d]: %s", resp.StatusCode, string(respBody))
	}

	var result TranscribeResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return &result, nil
}

// Synthesize requests a voice rendering of the given text and returns the
// raw audio payload.
func (c *Client) Synthesize(ctx context.Context, text string) ([]byte, error) {
	body, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/tts", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("tts service error [%d]: %s", resp.StatusCode, string(audio))
	}
	return audio, nil
}
