// Package store defines the storage interface and implementations.
package store

import (
	"context"

	"github.com/amglabs/companion/domain"
)

// Store defines the fixed set of queries the orchestrator issues against the
// external storage collaborator. Anything not expressible here is not
// something this system does to storage.
type Store interface {
	// User record operations. GetUser returns (nil, nil) when no record
	// exists; callers treat missing fields as defaults.
	GetUser(ctx context.Context, email string) (*domain.EntitlementRecord, error)
	UpsertUser(ctx context.Context, rec *domain.EntitlementRecord) error

	// Message operations. GetTurns returns turns for an identity ordered by
	// created_at ascending. AppendExchange persists a user/companion pair as
	// one logical write.
	CreateTurn(ctx context.Context, turn *domain.ChatTurn) error
	AppendExchange(ctx context.Context, userTurn, companionTurn *domain.ChatTurn) error
	GetTurns(ctx context.Context, email string, limit int) ([]domain.ChatTurn, error)

	// Lifecycle
	Close() error
}
