// Package session owns the per-session orchestration: one immutable
// SessionState value replaced wholesale on each transition, with the gate,
// tracker, conversation manager, and policy engine applied as reducers over
// slices of it.
package session

import (
	"context"
	"log"
	"sync"

	"go.uber.org/atomic"

	"github.com/amglabs/companion/authgate"
	"github.com/amglabs/companion/conversation"
	"github.com/amglabs/companion/domain"
	"github.com/amglabs/companion/entitlement"
	"github.com/amglabs/companion/policy"
)

// PremiumNotice is the transient notice raised when a restricted feature is
// selected without premium.
const PremiumNotice = "🔒 This feature is for Premium users only."

// Coordinator serializes state transitions for one session. Async
// completions are guarded by an epoch counter: any identity change bumps the
// epoch, and results issued under an older epoch are discarded instead of
// being applied to the new session's state.
type Coordinator struct {
	tracker *entitlement.Tracker
	conv    *conversation.Manager
	engine  *policy.Engine
	hints   *authgate.HintCache

	mu      sync.Mutex
	state   domain.SessionState
	epoch   *atomic.Int64
	pending *atomic.Bool
}

// NewCoordinator creates a coordinator in the unauthenticated state.
func NewCoordinator(tracker *entitlement.Tracker, conv *conversation.Manager, engine *policy.Engine, hints *authgate.HintCache) *Coordinator {
	c := &Coordinator{
		tracker: tracker,
		conv:    conv,
		engine:  engine,
		hints:   hints,
		state:   domain.NewSessionState(),
		epoch:   atomic.NewInt64(0),
		pending: atomic.NewBool(false),
	}
	return c
}

func (c *Coordinator) lock()   { c.mu.Lock() }
func (c *Coordinator) unlock() { c.mu.Unlock() }

// Current returns a copy of the current session state.
func (c *Coordinator) Current() domain.SessionState {
	c.lock()
	defer c.unlock()
	return c.state
}

// HandleAuthChange applies a pushed session change: the new identity (or its
// absence) replaces the session wholesale and all cached entitlement and
// chat state is invalidated. Fetch failures degrade to defaults rather than
// blocking the session.
func (c *Coordinator) HandleAuthChange(ctx context.Context, identity *domain.Identity) {
	c.lock()
	// The guard epoch must be captured while the lock is held: reading it
	// after unlock could pick up a later identity change's epoch and let
	// this call's fetches pass the staleness check below.
	epoch := c.epoch.Inc()
	c.pending.Store(false)
	c.state = c.state.WithIdentity(identity)
	c.unlock()

	if identity == nil {
		return
	}

	if c.hints != nil {
		if err := c.hints.Save(identity.Email); err != nil {
			log.Printf("WARN: failed to save identity hint: %v", err)
		}
	}

	rec, err := c.tracker.Fetch(ctx, identity)
	if err != nil {
		log.Printf("WARN: failed to fetch entitlement for %s: %v", identity.Email, err)
		rec = nil
	}
	turns, err := c.conv.LoadHistory(ctx, identity)
	if err != nil {
		log.Printf("WARN: failed to load history for %s: %v", identity.Email, err)
		turns = nil
	}

	c.lock()
	defer c.unlock()
	if c.epoch.Load() != epoch {
		// Identity changed while we were fetching; drop the stale data.
		return
	}
	if rec != nil {
		c.state = c.state.WithEntitlement(rec)
	}
	c.state = c.state.WithTurns(turns)
}

// Hint returns the last-used email, or "" when none is cached. It is a
// pre-fill convenience for the unauthenticated state, never a credential.
func (c *Coordinator) Hint() string {
	if c.hints == nil {
		return ""
	}
	return c.hints.Load()
}

// Logout clears all session-scoped state and returns to unauthenticated.
func (c *Coordinator) Logout() {
	c.lock()
	c.epoch.Inc()
	c.pending.Store(false)
	c.state = domain.NewSessionState()
	c.unlock()

	if c.hints != nil {
		if err := c.hints.Clear(); err != nil {
			log.Printf("WARN: failed to clear identity hint: %v", err)
		}
	}
}

// SelectMood switches the companion's mood. Restricted moods without
// premium are rejected, not silently downgraded: the mood stays unchanged
// and exactly one transient premium notice is raised.
func (c *Coordinator) SelectMood(ctx context.Context, mood domain.Mood) error {
	c.lock()
	defer c.unlock()

	if c.state.Identity == nil {
		return domain.ErrUnauthenticated
	}

	premium := c.state.Entitlement != nil && c.state.Entitlement.IsPremium
	level := 0.0
	if c.state.Entitlement != nil {
		level = c.state.Entitlement.RelationshipLevel
	}

	access, err := c.engine.Evaluate(ctx, policy.Input{
		Premium:           premium,
		WorkSafe:          c.state.WorkSafe,
		RelationshipLevel: level,
	})
	if err != nil {
		return err
	}
	if !access.AllowsMood(mood) {
		c.state = c.state.WithNotice(PremiumNotice)
		return domain.ErrPremiumRequired
	}

	c.state = c.state.WithMood(mood).WithNotice("")

	// Persist the choice as profile memory; failure keeps the in-memory
	// mood and is reported only in the log.
	if rec, err := c.tracker.Update(ctx, c.state.Identity, domain.EntitlementPatch{FavoriteMood: &mood}); err != nil {
		log.Printf("WARN: failed to persist favorite mood: %v", err)
	} else {
		c.state = c.state.WithEntitlement(rec)
	}
	return nil
}

// SetNickname persists profile memory edited by the user.
func (c *Coordinator) SetNickname(ctx context.Context, nickname string) error {
	c.lock()
	defer c.unlock()

	if c.state.Identity == nil {
		return domain.ErrUnauthenticated
	}
	rec, err := c.tracker.Update(ctx, c.state.Identity, domain.EntitlementPatch{Nickname: &nickname})
	if err != nil {
		return err
	}
	c.state = c.state.WithEntitlement(rec)
	return nil
}

// SetWorkSafe toggles work-safe mode for the session.
func (c *Coordinator) SetWorkSafe(on bool) {
	c.lock()
	defer c.unlock()
	c.state = c.state.WithWorkSafe(on)
}

// Features evaluates the current feature unlock set.
func (c *Coordinator) Features(ctx context.Context) (*policy.Access, error) {
	c.lock()
	state := c.state
	c.unlock()

	if state.Identity == nil {
		return nil, domain.ErrUnauthenticated
	}
	premium := state.Entitlement != nil && state.Entitlement.IsPremium
	level := 0.0
	if state.Entitlement != nil {
		level = state.Entitlement.RelationshipLevel
	}
	return c.engine.Evaluate(ctx, policy.Input{
		Premium:           premium,
		WorkSafe:          state.WorkSafe,
		RelationshipLevel: level,
	})
}

// Submit runs one prompt through the conversation pipeline. A second submit
// while one is pending is refused. If the identity changes while the remote
// call is in flight, the stale result is discarded and never applied to the
// new session's state.
func (c *Coordinator) Submit(ctx context.Context, prompt string) (*conversation.ExchangeResult, error) {
	c.lock()
	if c.state.Identity == nil {
		c.unlock()
		return nil, domain.ErrUnauthenticated
	}

	userTurn, err := c.conv.NewUserTurn(c.state.Identity, prompt)
	if err != nil {
		c.unlock()
		return nil, err
	}

	if !c.pending.CompareAndSwap(false, true) {
		c.unlock()
		return nil, domain.ErrSubmitPending
	}

	epoch := c.epoch.Load()
	snapshot := c.state
	c.state = c.state.AppendTurn(*userTurn).WithPending(true)
	c.unlock()

	result, err := c.conv.Exchange(ctx, snapshot, userTurn)

	c.lock()
	defer c.unlock()

	if c.epoch.Load() != epoch {
		// Session changed mid-flight; the reset already cleared state and
		// the pending flag. Nothing here may touch the new session.
		return nil, domain.ErrStaleSession
	}

	c.pending.Store(false)
	if err != nil {
		// The optimistic user turn stays; the user retries explicitly.
		c.state = c.state.WithPending(false)
		return nil, err
	}

	c.state = c.state.AppendTurn(result.CompanionTurn).WithPending(false)
	if result.Entitlement != nil {
		c.state = c.state.WithEntitlement(result.Entitlement)
	}
	return result, nil
}
