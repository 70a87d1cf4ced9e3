package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/amglabs/companion/domain"
)

// PostgrestStore implements Store against a Supabase/PostgREST-style HTTP
// endpoint. It issues the same fixed queries as SQLiteStore, just over the
// wire: `users` keyed by email, `messages` ordered by created_at.
type PostgrestStore struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewPostgrestStore creates a store client for the given endpoint.
func NewPostgrestStore(baseURL, apiKey string, timeout time.Duration) *PostgrestStore {
	return &PostgrestStore{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

type userRow struct {
	Email             string    `json:"email"`
	IsPremium         bool      `json:"ispremium"`
	Nickname          string    `json:"nickname"`
	FavoriteMood      string    `json:"favorite_mood"`
	RelationshipLevel float64   `json:"relationship_level"`
	TrustScore        float64   `json:"trust_score"`
	SubscriptionRef   string    `json:"subscription_ref"`
	UpdatedAt         time.Time `json:"updated_at"`
}

type messageRow struct {
	TurnID    string    `json:"turn_id"`
	UserEmail string    `json:"user_email"`
	Role      string    `json:"role"`
	Message   string    `json:"message"`
	Blocked   bool      `json:"blocked"`
	CreatedAt time.Time `json:"created_at"`
}

// GetUser retrieves a user record by email. A missing record is (nil, nil).
func (s *PostgrestStore) GetUser(ctx context.Context, email string) (*domain.EntitlementRecord, error) {
	endpoint := fmt.Sprintf("%s/rest/v1/users?email=eq.%s&limit=1", s.baseURL, url.QueryEscape(email))
	var rows []userRow
	if err := s.do(ctx, http.MethodGet, endpoint, nil, &rows); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	row := rows[0]
	mood, ok := domain.ParseMood(row.FavoriteMood)
	if !ok {
		mood = domain.MoodNormal
	}
	return &domain.EntitlementRecord{
		Email:             row.Email,
		IsPremium:         row.IsPremium,
		Nickname:          row.Nickname,
		FavoriteMood:      mood,
		RelationshipLevel: row.RelationshipLevel,
		TrustScore:        row.TrustScore,
		SubscriptionRef:   row.SubscriptionRef,
		UpdatedAt:         row.UpdatedAt,
	}, nil
}

// UpsertUser writes a full user record.
func (s *PostgrestStore) UpsertUser(ctx context.Context, rec *domain.EntitlementRecord) error {
	endpoint := s.baseURL + "/rest/v1/users?on_conflict=email"
	row := userRow{
		Email:             rec.Email,
		IsPremium:         rec.IsPremium,
		Nickname:          rec.Nickname,
		FavoriteMood:      string(rec.FavoriteMood),
		RelationshipLevel: rec.RelationshipLevel,
		TrustScore:        rec.TrustScore,
		SubscriptionRef:   rec.SubscriptionRef,
		UpdatedAt:         time.Now(),
	}
	return s.do(ctx, http.MethodPost, endpoint, []userRow{row}, nil)
}

// CreateTurn appends a single chat turn.
func (s *PostgrestStore) CreateTurn(ctx context.Context, turn *domain.ChatTurn) error {
	endpoint := s.baseURL + "/rest/v1/messages"
	return s.do(ctx, http.MethodPost, endpoint, []messageRow{toRow(turn)}, nil)
}

// AppendExchange persists a user/companion pair as one batched insert.
func (s *PostgrestStore) AppendExchange(ctx context.Context, userTurn, companionTurn *domain.ChatTurn) error {
	endpoint := s.baseURL + "/rest/v1/messages"
	return s.do(ctx, http.MethodPost, endpoint, []messageRow{toRow(userTurn), toRow(companionTurn)}, nil)
}

// GetTurns retrieves chat turns for an identity, oldest first.
func (s *PostgrestStore) GetTurns(ctx context.Context, email string, limit int) ([]domain.ChatTurn, error) {
	endpoint := fmt.Sprintf("%s/rest/v1/messages?user_email=eq.%s&order=created_at.asc",
		s.baseURL, url.QueryEscape(email))
	if limit > 0 {
		endpoint += fmt.Sprintf("&limit=%d", limit)
	}
	var rows []messageRow
	if err := s.do(ctx, http.MethodGet, endpoint, nil, &rows); err != nil {
		return nil, err
	}
	turns := make([]domain.ChatTurn, 0, len(rows))
	for _, row := range rows {
		turns = append(turns, domain.ChatTurn{
			TurnID:    row.TurnID,
			Email:     row.UserEmail,
			Role:      domain.Role(row.Role),
			Text:      row.Message,
			Blocked:   row.Blocked,
			CreatedAt: row.CreatedAt,
		})
	}
	return turns, nil
}

// Close is a no-op for the HTTP store.
func (s *PostgrestStore) Close() error {
	return nil
}

func toRow(turn *domain.ChatTurn) messageRow {
	return messageRow{
		TurnID:    turn.TurnID,
		UserEmail: turn.Email,
		Role:      string(turn.Role),
		Message:   turn.Text,
		Blocked:   turn.Blocked,
		CreatedAt: turn.CreatedAt,
	}
}

func (s *PostgrestStore) do(ctx context.Context, method, endpoint string, payload, out interface{}) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("apikey", s.apiKey)
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}
	if method == http.MethodPost {
		req.Header.Set("Prefer", "resolution=merge-duplicates")
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("storage API error [%d]: %s", resp.StatusCode, string(respBody))
	}

	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("failed to unmarshal response: %w", err)
		}
	}
	return nil
}
