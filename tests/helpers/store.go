// Package helpers provides shared test fixtures.
package helpers

import (
	"context"
	"testing"
	"time"

	"github.com/amglabs/companion/domain"
	"github.com/amglabs/companion/store"
)

// NewTestSQLiteStore returns an in-memory store torn down with the test.
func NewTestSQLiteStore(t *testing.T) *store.SQLiteStore {
	t.Helper()

	s, err := store.NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("failed to create sqlite store: %v", err)
	}

	t.Cleanup(func() {
		_ = s.Close()
	})

	return s
}

// SeedUser writes an entitlement record, failing the test on error.
func SeedUser(t *testing.T, st store.Store, rec *domain.EntitlementRecord) {
	t.Helper()
	if err := st.UpsertUser(context.Background(), rec); err != nil {
		t.Fatalf("failed to seed user %s: %v", rec.Email, err)
	}
}

// SeedTurn writes one chat turn, failing the test on error.
func SeedTurn(t *testing.T, st store.Store, turnID, email string, role domain.Role, text string, at time.Time) {
	t.Helper()
	err := st.CreateTurn(context.Background(), &domain.ChatTurn{
		TurnID:    turnID,
		Email:     email,
		Role:      role,
		Text:      text,
		CreatedAt: at,
	})
	if err != nil {
		t.Fatalf("failed to seed turn %s: %v", turnID, err)
	}
}
