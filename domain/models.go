// Package domain defines the core domain models for the companion orchestrator.
package domain

import (
	"errors"
	"time"
)

// Placeholder texts shown instead of a restricted reply. The raw reply is
// discarded when one of these is substituted.
const (
	WorkSafePlaceholder = "Work-safe mode is ON. Content hidden 👔"
	PremiumPlaceholder  = "Unlock Premium to see what she *really* wants to say... 💋"
)

// AvatarThreshold is the relationship level at which the 3D avatar unlocks
// (on the 0-100 display scale).
const AvatarThreshold = 25

// MemoryWindow is how many recent turns are replayed to the reply service
// as conversational memory.
const MemoryWindow = 10

var (
	// ErrUnauthenticated is returned when no session is resolved.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrPremiumRequired is returned when a restricted feature is selected
	// without a premium entitlement.
	ErrPremiumRequired = errors.New("premium required")
	// ErrEmptyPrompt is returned for empty or whitespace-only input.
	ErrEmptyPrompt = errors.New("empty prompt")
	// ErrSubmitPending is returned while a previous submission is in flight.
	ErrSubmitPending = errors.New("submission already pending")
	// ErrStaleSession is returned when an async completion arrives after the
	// identity it was issued for is gone.
	ErrStaleSession = errors.New("stale session")
)

// Identity is the resolved authenticated user reference. It is immutable for
// the lifetime of a session.
type Identity struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
}

// EntitlementRecord holds the stored premium/mood/relationship attributes
// for an identity. The external store is the source of truth across
// sessions; this is the in-memory copy.
type EntitlementRecord struct {
	Email             string    `json:"email"`
	IsPremium         bool      `json:"ispremium"`
	Nickname          string    `json:"nickname,omitempty"`
	FavoriteMood      Mood      `json:"favorite_mood"`
	RelationshipLevel float64   `json:"relationship_level"`
	TrustScore        float64   `json:"trust_score"`
	SubscriptionRef   string    `json:"subscription_ref,omitempty"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// EntitlementPatch is a partial update applied to a stored record. Nil
// fields are left untouched.
type EntitlementPatch struct {
	IsPremium         *bool    `json:"ispremium,omitempty"`
	Nickname          *string  `json:"nickname,omitempty"`
	FavoriteMood      *Mood    `json:"favorite_mood,omitempty"`
	RelationshipLevel *float64 `json:"relationship_level,omitempty"`
	TrustScore        *float64 `json:"trust_score,omitempty"`
}

// Apply returns a copy of rec with the patch applied.
func (p EntitlementPatch) Apply(rec EntitlementRecord) EntitlementRecord {
	if p.IsPremium != nil {
		rec.IsPremium = *p.IsPremium
	}
	if p.Nickname != nil {
		rec.Nickname = *p.Nickname
	}
	if p.FavoriteMood != nil {
		rec.FavoriteMood = *p.FavoriteMood
	}
	if p.RelationshipLevel != nil {
		rec.RelationshipLevel = *p.RelationshipLevel
	}
	if p.TrustScore != nil {
		rec.TrustScore = *p.TrustScore
	}
	return rec
}

// ChatTurn is one message in the conversation. Turns are append-only and
// ordered by CreatedAt.
type ChatTurn struct {
	TurnID    string    `json:"turn_id"`
	Email     string    `json:"email"`
	Role      Role      `json:"role"`
	Text      string    `json:"text"`
	Blocked   bool      `json:"blocked,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
