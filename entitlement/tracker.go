// Package entitlement tracks the stored premium/mood/relationship
// attributes for an identity. The external store is authoritative; the
// tracker only shapes reads and writes.
package entitlement

import (
	"context"
	"fmt"
	"log"

	"github.com/amglabs/companion/domain"
	"github.com/amglabs/companion/store"
)

// Tracker fetches and updates entitlement records.
type Tracker struct {
	store store.Store
}

// NewTracker creates a tracker over the given store.
func NewTracker(st store.Store) *Tracker {
	return &Tracker{store: st}
}

// Fetch returns the entitlement record for an identity. Missing records and
// fields fall back to defaults; a record is created lazily on first fetch.
// Fetch is idempotent and safe to call on every identity change.
//
// Reconciliation: a stored subscription reference is the authoritative
// premium signal. If one is present while ispremium reads false, the flag is
// healed in storage before the record is returned.
func (t *Tracker) Fetch(ctx context.Context, identity *domain.Identity) (*domain.EntitlementRecord, error) {
	if identity == nil {
		return nil, domain.ErrUnauthenticated
	}

	rec, err := t.store.GetUser(ctx, identity.Email)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch entitlement: %w", err)
	}
	if rec == nil {
		rec = defaultRecord(identity.Email)
		if err := t.store.UpsertUser(ctx, rec); err != nil {
			// First-write failure is not fatal; the defaults still serve
			// this session and the next fetch retries the create.
			log.Printf("WARN: failed to create entitlement record for %s: %v", identity.Email, err)
		}
		return rec, nil
	}

	if rec.FavoriteMood == "" {
		rec.FavoriteMood = domain.MoodNormal
	}

	if rec.SubscriptionRef != "" && !rec.IsPremium {
		rec.IsPremium = true
		if err := t.store.UpsertUser(ctx, rec); err != nil {
			return nil, fmt.Errorf("failed to heal premium flag: %w", err)
		}
	}

	return rec, nil
}

// Update applies a patch to the stored record and returns the result. On
// storage failure the error is reported and the caller keeps its last
// known-good in-memory record.
func (t *Tracker) Update(ctx context.Context, identity *domain.Identity, patch domain.EntitlementPatch) (*domain.EntitlementRecord, error) {
	if identity == nil {
		return nil, domain.ErrUnauthenticated
	}

	rec, err := t.store.GetUser(ctx, identity.Email)
	if err != nil {
		return nil, fmt.Errorf("failed to read entitlement for update: %w", err)
	}
	if rec == nil {
		rec = defaultRecord(identity.Email)
	}

	updated := patch.Apply(*rec)
	if err := t.store.UpsertUser(ctx, &updated); err != nil {
		return nil, fmt.Errorf("failed to persist entitlement: %w", err)
	}
	return &updated, nil
}

func defaultRecord(email string) *domain.EntitlementRecord {
	return &domain.EntitlementRecord{
		Email:        email,
		IsPremium:    false,
		FavoriteMood: domain.MoodNormal,
	}
}
