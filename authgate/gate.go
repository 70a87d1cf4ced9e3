// Package authgate resolves authenticated identity against the external
// auth provider and listens for pushed session changes. Until an identity
// resolves, nothing else in the orchestrator is reachable.
package authgate

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/amglabs/companion/domain"
)

// Gate resolves sessions against a GoTrue-style auth endpoint.
type Gate struct {
	authURL    string
	anonKey    string
	httpClient *http.Client
	dialer     *websocket.Dialer
}

// NewGate creates a session gate for the given auth provider.
func NewGate(authURL, anonKey string) *Gate {
	return &Gate{
		authURL: strings.TrimSuffix(authURL, "/"),
		anonKey: anonKey,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
		dialer: websocket.DefaultDialer,
	}
}

type userResponse struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// ResolveSession resolves the identity behind an access token. A missing or
// rejected token yields domain.ErrUnauthenticated, never a fatal error.
func (g *Gate) ResolveSession(ctx context.Context, accessToken string) (*domain.Identity, error) {
	if accessToken == "" {
		return nil, domain.ErrUnauthenticated
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.authURL+"/auth/v1/user", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	if g.anonKey != "" {
		req.Header.Set("apikey", g.anonKey)
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve session: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, domain.ErrUnauthenticated
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("auth provider error [%d]: %s", resp.StatusCode, string(respBody))
	}

	var user userResponse
	if err := json.Unmarshal(respBody, &user); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	if user.ID == "" {
		return nil, domain.ErrUnauthenticated
	}

	return &domain.Identity{UserID: user.ID, Email: user.Email}, nil
}

// SessionEvent is one pushed auth state change frame.
type SessionEvent struct {
	Event       string `json:"event"` // SIGNED_IN, SIGNED_OUT, TOKEN_REFRESHED
	AccessToken string `json:"access_token,omitempty"`
}

// ChangeHandler receives the re-resolved identity after each pushed session
// change; nil means the session is gone.
type ChangeHandler func(identity *domain.Identity)

// Listen subscribes to the auth provider's realtime socket and re-resolves
// identity on every pushed session change. It blocks until the context is
// cancelled or the socket fails; the caller owns reconnect policy.
func (g *Gate) Listen(ctx context.Context, realtimeURL string, handler ChangeHandler) error {
	conn, _, err := g.dialer.DialContext(ctx, realtimeURL, nil)
	if err != nil {
		return fmt.Errorf("failed to dial realtime socket: %w", err)
	}
	defer conn.Close()

	// Unblock ReadMessage when the context is cancelled. The watcher must
	// also exit when Listen returns on its own, or every reconnect cycle
	// would park one goroutine on ctx.Done for good.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("realtime socket read failed: %w", err)
		}

		var event SessionEvent
		if err := json.Unmarshal(data, &event); err != nil {
			log.Printf("WARN: malformed session event: %v", err)
			continue
		}

		switch event.Event {
		case "SIGNED_OUT":
			handler(nil)
		case "SIGNED_IN", "TOKEN_REFRESHED":
			identity, err := g.ResolveSession(ctx, event.AccessToken)
			if err != nil {
				if err != domain.ErrUnauthenticated {
					log.Printf("WARN: failed to re-resolve session: %v", err)
				}
				handler(nil)
				continue
			}
			handler(identity)
		default:
			// Frames we don't track (presence, heartbeats) are ignored.
		}
	}
}
