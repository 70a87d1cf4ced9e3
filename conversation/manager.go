// Package conversation maintains the ordered chat history and runs the
// submit pipeline: optimistic append, remote reply, content gating,
// persistence, and relationship progression.
package conversation

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/amglabs/companion/domain"
	"github.com/amglabs/companion/entitlement"
	"github.com/amglabs/companion/policy"
	"github.com/amglabs/companion/replyclient"
	"github.com/amglabs/companion/store"
)

// Manager orchestrates one identity's conversation against the reply
// service and the storage collaborator.
type Manager struct {
	store   store.Store
	reply   *replyclient.Client
	tracker *entitlement.Tracker
	engine  *policy.Engine

	// OnVoice receives synthesized audio for accepted replies. Optional;
	// synthesis stays fire-and-forget either way.
	OnVoice func(audio []byte)

	// TTSTimeout bounds each synthesis request. Zero means the default.
	TTSTimeout time.Duration
}

// NewManager creates a conversation manager.
func NewManager(st store.Store, reply *replyclient.Client, tracker *entitlement.Tracker, engine *policy.Engine) *Manager {
	return &Manager{
		store:   st,
		reply:   reply,
		tracker: tracker,
		engine:  engine,
	}
}

// LoadHistory returns the stored turns for an identity, oldest first. The
// loader makes no alternation assumption: history written by other code
// paths may hold consecutive turns from the same role.
func (m *Manager) LoadHistory(ctx context.Context, identity *domain.Identity) ([]domain.ChatTurn, error) {
	if identity == nil {
		return nil, domain.ErrUnauthenticated
	}
	turns, err := m.store.GetTurns(ctx, identity.Email, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}
	return turns, nil
}

// ExchangeResult is the outcome of one completed exchange.
type ExchangeResult struct {
	UserTurn      domain.ChatTurn
	CompanionTurn domain.ChatTurn
	Blocked       bool
	Entitlement   *domain.EntitlementRecord
}

// NewUserTurn validates a prompt and builds the user turn for it. Empty or
// whitespace-only input is rejected here, before anything touches the
// network. The caller appends the turn locally (optimistic update) and then
// passes it to Exchange.
func (m *Manager) NewUserTurn(identity *domain.Identity, prompt string) (*domain.ChatTurn, error) {
	if identity == nil {
		return nil, domain.ErrUnauthenticated
	}
	if strings.TrimSpace(prompt) == "" {
		return nil, domain.ErrEmptyPrompt
	}
	return &domain.ChatTurn{
		TurnID:    newTurnID(),
		Email:     identity.Email,
		Role:      domain.RoleUser,
		Text:      prompt,
		CreatedAt: time.Now(),
	}, nil
}

// Exchange runs one user turn through the rest of the pipeline. The steps
// are strictly sequenced; the caller owns the pending indicator and has
// already appended userTurn locally. state carries the history as it was
// before the prompt.
//
// Progression rules: RelationshipLevel gains a flat +1 per completed
// exchange; TrustScore gains +1.25 for prompts longer than 50 characters,
// +0.25 otherwise.
func (m *Manager) Exchange(ctx context.Context, state domain.SessionState, userTurn *domain.ChatTurn) (*ExchangeResult, error) {
	if state.Identity == nil {
		return nil, domain.ErrUnauthenticated
	}
	prompt := userTurn.Text

	ent := state.Entitlement
	if ent == nil {
		ent = &domain.EntitlementRecord{Email: state.Identity.Email, FavoriteMood: domain.MoodNormal}
	}

	req := &replyclient.ReplyRequest{
		Prompt:            prompt,
		Premium:           ent.IsPremium,
		WorkSafe:          state.WorkSafe,
		Mood:              string(state.Mood),
		Nickname:          ent.Nickname,
		RelationshipLevel: ent.RelationshipLevel,
		TrustScore:        ent.TrustScore,
		MemoryContext:     renderTranscript(state.Turns, domain.MemoryWindow),
	}

	resp, err := m.reply.Reply(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("reply service unavailable: %w", err)
	}

	access, err := m.engine.Evaluate(ctx, policy.Input{
		Premium:           ent.IsPremium,
		WorkSafe:          state.WorkSafe,
		RelationshipLevel: ent.RelationshipLevel,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to evaluate access: %w", err)
	}

	replyText := resp.Reply
	blocked := false
	if resp.NSFW && !access.NSFWAllowed {
		// The raw reply is dropped here and never stored or logged.
		blocked = true
		if state.WorkSafe {
			replyText = domain.WorkSafePlaceholder
		} else {
			replyText = domain.PremiumPlaceholder
		}
	}

	companionTurn := domain.ChatTurn{
		TurnID:    newTurnID(),
		Email:     state.Identity.Email,
		Role:      domain.RoleCompanion,
		Text:      replyText,
		Blocked:   blocked,
		CreatedAt: time.Now(),
	}

	if err := m.store.AppendExchange(ctx, userTurn, &companionTurn); err != nil {
		return nil, fmt.Errorf("failed to persist exchange: %w", err)
	}

	updated, err := m.progress(ctx, state.Identity, ent, prompt)
	if err != nil {
		// Progression failure degrades scoring only; the exchange stands.
		log.Printf("WARN: failed to persist progression for %s: %v", state.Identity.Email, err)
		updated = ent
	}

	if !blocked && replyText != "" {
		m.synthesize(replyText)
	}

	return &ExchangeResult{
		UserTurn:      *userTurn,
		CompanionTurn: companionTurn,
		Blocked:       blocked,
		Entitlement:   updated,
	}, nil
}

// progress recomputes and persists the relationship/trust progression as a
// single entitlement update.
func (m *Manager) progress(ctx context.Context, identity *domain.Identity, ent *domain.EntitlementRecord, prompt string) (*domain.EntitlementRecord, error) {
	level := ent.RelationshipLevel + 1
	trust := ent.TrustScore + trustIncrement(prompt)
	return m.tracker.Update(ctx, identity, domain.EntitlementPatch{
		RelationshipLevel: &level,
		TrustScore:        &trust,
	})
}

func trustIncrement(prompt string) float64 {
	if len(prompt) > 50 {
		return 1.25
	}
	return 0.25
}

// synthesize requests a voice rendering of the accepted reply. Failures are
// logged and never surface to the chat flow.
func (m *Manager) synthesize(text string) {
	timeout := m.TTSTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		audio, err := m.reply.Synthesize(ctx, text)
		if err != nil {
			log.Printf("WARN: voice synthesis failed: %v", err)
			return
		}
		if m.OnVoice != nil {
			m.OnVoice(audio)
		}
	}()
}

// renderTranscript renders the most recent n turns for the reply service's
// conversational memory.
func renderTranscript(turns []domain.ChatTurn, n int) string {
	if len(turns) == 0 {
		return ""
	}
	if len(turns) > n {
		turns = turns[len(turns)-n:]
	}
	var b strings.Builder
	for i, turn := range turns {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(string(turn.Role))
		b.WriteString(": ")
		b.WriteString(turn.Text)
	}
	return b.String()
}

func newTurnID() string {
	return "msg_" + uuid.New().String()[:8]
}
