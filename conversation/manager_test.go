package conversation

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/amglabs/companion/domain"
	"github.com/amglabs/companion/entitlement"
	"github.com/amglabs/companion/policy"
	"github.com/amglabs/companion/replyclient"
	"github.com/amglabs/companion/store"
	"github.com/amglabs/companion/tests/helpers"
)

func newTestEngine(t *testing.T) *policy.Engine {
	t.Helper()
	engine, err := policy.NewEngine(context.Background(), policy.DefaultPolicy)
	if err != nil {
		t.Fatalf("failed to create engine: %v", err)
	}
	return engine
}

// newReplyServer serves a fixed reply and records the last /reply request
// body. /tts answers empty audio so fire-and-forget synthesis stays quiet.
func newReplyServer(t *testing.T, reply string, nsfw bool) (*httptest.Server, *replyclient.ReplyRequest) {
	t.Helper()
	last := &replyclient.ReplyRequest{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/reply":
			if err := json.NewDecoder(r.Body).Decode(last); err != nil {
				t.Errorf("failed to decode reply request: %v", err)
			}
			json.NewEncoder(w).Encode(replyclient.ReplyResponse{Reply: reply, NSFW: nsfw})
		case "/tts":
			w.Write([]byte("audio"))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv, last
}

func newTestManager(t *testing.T, st store.Store, srv *httptest.Server) *Manager {
	t.Helper()
	client := replyclient.NewClient(srv.URL, 5*time.Second)
	return NewManager(st, client, entitlement.NewTracker(st), newTestEngine(t))
}

func sessionFor(identity *domain.Identity, ent *domain.EntitlementRecord) domain.SessionState {
	return domain.NewSessionState().WithIdentity(identity).WithEntitlement(ent)
}

func TestNewUserTurnRejectsEmptyPrompt(t *testing.T) {
	st := helpers.NewTestSQLiteStore(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("validation must not reach the network")
	}))
	t.Cleanup(srv.Close)
	m := newTestManager(t, st, srv)
	identity := &domain.Identity{UserID: "u1", Email: "a@example.com"}

	for _, prompt := range []string{"", "   ", "\n\t"} {
		if _, err := m.NewUserTurn(identity, prompt); err != domain.ErrEmptyPrompt {
			t.Errorf("prompt %q: expected ErrEmptyPrompt, got %v", prompt, err)
		}
	}
	if _, err := m.NewUserTurn(nil, "hi"); err != domain.ErrUnauthenticated {
		t.Errorf("expected ErrUnauthenticated, got %v", err)
	}
}

func TestExchangePersistsBothTurns(t *testing.T) {
	st := helpers.NewTestSQLiteStore(t)
	srv, lastReq := newReplyServer(t, "hello you", false)
	m := newTestManager(t, st, srv)

	identity := &domain.Identity{UserID: "u1", Email: "a@example.com"}
	ent := &domain.EntitlementRecord{Email: identity.Email, FavoriteMood: domain.MoodNormal}
	state := sessionFor(identity, ent).WithMood(domain.MoodClingy)

	userTurn, err := m.NewUserTurn(identity, "hey")
	if err != nil {
		t.Fatalf("NewUserTurn failed: %v", err)
	}

	result, err := m.Exchange(context.Background(), state, userTurn)
	if err != nil {
		t.Fatalf("Exchange failed: %v", err)
	}
	if result.Blocked {
		t.Fatal("clean reply must not be blocked")
	}
	if result.CompanionTurn.Text != "hello you" {
		t.Fatalf("unexpected companion text: %q", result.CompanionTurn.Text)
	}

	turns, err := st.GetTurns(context.Background(), identity.Email, 0)
	if err != nil {
		t.Fatalf("GetTurns failed: %v", err)
	}
	if len(turns) != 2 {
		t.Fatalf("expected exactly 2 stored turns, got %d", len(turns))
	}
	if turns[0].Role != domain.RoleUser || turns[1].Role != domain.RoleCompanion {
		t.Fatalf("unexpected roles: %s, %s", turns[0].Role, turns[1].Role)
	}

	if lastReq.Mood != "clingy" {
		t.Errorf("expected mood forwarded, got %q", lastReq.Mood)
	}
	if lastReq.Prompt != "hey" {
		t.Errorf("expected prompt forwarded, got %q", lastReq.Prompt)
	}
}

func TestExchangeProgression(t *testing.T) {
	short := "hi there"
	long := strings.Repeat("tell me about your day ", 4)
	cases := []struct {
		name      string
		prompt    string
		wantTrust float64
	}{
		{"short prompt", short, 0.25},
		{"long prompt", long, 1.25},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			st := helpers.NewTestSQLiteStore(t)
			srv, _ := newReplyServer(t, "ok", false)
			m := newTestManager(t, st, srv)

			identity := &domain.Identity{UserID: "u1", Email: "a@example.com"}
			ent := &domain.EntitlementRecord{
				Email:             identity.Email,
				FavoriteMood:      domain.MoodNormal,
				RelationshipLevel: 3,
				TrustScore:        1,
			}
			userTurn, err := m.NewUserTurn(identity, tc.prompt)
			if err != nil {
				t.Fatalf("NewUserTurn failed: %v", err)
			}

			result, err := m.Exchange(context.Background(), sessionFor(identity, ent), userTurn)
			if err != nil {
				t.Fatalf("Exchange failed: %v", err)
			}
			if result.Entitlement.RelationshipLevel != 4 {
				t.Errorf("expected level 4, got %v", result.Entitlement.RelationshipLevel)
			}
			if result.Entitlement.TrustScore != 1+tc.wantTrust {
				t.Errorf("expected trust %v, got %v", 1+tc.wantTrust, result.Entitlement.TrustScore)
			}
		})
	}
}

func TestExchangeBlocksExplicitReply(t *testing.T) {
	raw := "something explicit"
	cases := []struct {
		name            string
		premium         bool
		worksafe        bool
		wantPlaceholder string
	}{
		{"free user gets premium upsell", false, false, domain.PremiumPlaceholder},
		{"worksafe premium gets worksafe notice", true, true, domain.WorkSafePlaceholder},
		{"worksafe free gets worksafe notice", false, true, domain.WorkSafePlaceholder},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			st := helpers.NewTestSQLiteStore(t)
			srv, _ := newReplyServer(t, raw, true)
			m := newTestManager(t, st, srv)

			identity := &domain.Identity{UserID: "u1", Email: "a@example.com"}
			ent := &domain.EntitlementRecord{Email: identity.Email, IsPremium: tc.premium, FavoriteMood: domain.MoodNormal}
			state := sessionFor(identity, ent).WithWorkSafe(tc.worksafe)

			userTurn, err := m.NewUserTurn(identity, "hey")
			if err != nil {
				t.Fatalf("NewUserTurn failed: %v", err)
			}
			result, err := m.Exchange(context.Background(), state, userTurn)
			if err != nil {
				t.Fatalf("Exchange failed: %v", err)
			}
			if !result.Blocked {
				t.Fatal("expected blocked result")
			}
			if result.CompanionTurn.Text != tc.wantPlaceholder {
				t.Fatalf("expected %q, got %q", tc.wantPlaceholder, result.CompanionTurn.Text)
			}

			// The raw reply never reaches storage.
			turns, err := st.GetTurns(context.Background(), identity.Email, 0)
			if err != nil {
				t.Fatalf("GetTurns failed: %v", err)
			}
			for _, turn := range turns {
				if strings.Contains(turn.Text, raw) {
					t.Fatalf("raw reply leaked into storage: %q", turn.Text)
				}
			}
		})
	}
}

func TestExchangeAllowsExplicitForPremium(t *testing.T) {
	st := helpers.NewTestSQLiteStore(t)
	srv, _ := newReplyServer(t, "spicy", true)
	m := newTestManager(t, st, srv)

	identity := &domain.Identity{UserID: "u1", Email: "a@example.com"}
	ent := &domain.EntitlementRecord{Email: identity.Email, IsPremium: true, FavoriteMood: domain.MoodNormal}

	userTurn, err := m.NewUserTurn(identity, "hey")
	if err != nil {
		t.Fatalf("NewUserTurn failed: %v", err)
	}
	result, err := m.Exchange(context.Background(), sessionFor(identity, ent), userTurn)
	if err != nil {
		t.Fatalf("Exchange failed: %v", err)
	}
	if result.Blocked {
		t.Fatal("premium non-worksafe reply must pass through")
	}
	if result.CompanionTurn.Text != "spicy" {
		t.Fatalf("unexpected text: %q", result.CompanionTurn.Text)
	}
}

func TestExchangeReplyFailureStoresNothing(t *testing.T) {
	st := helpers.NewTestSQLiteStore(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)
	m := newTestManager(t, st, srv)

	identity := &domain.Identity{UserID: "u1", Email: "a@example.com"}
	userTurn, err := m.NewUserTurn(identity, "hey")
	if err != nil {
		t.Fatalf("NewUserTurn failed: %v", err)
	}
	if _, err := m.Exchange(context.Background(), sessionFor(identity, nil), userTurn); err == nil {
		t.Fatal("expected error from failing reply service")
	}

	turns, err := st.GetTurns(context.Background(), identity.Email, 0)
	if err != nil {
		t.Fatalf("GetTurns failed: %v", err)
	}
	if len(turns) != 0 {
		t.Fatalf("failed exchange must store nothing, got %d turns", len(turns))
	}
}

func TestSynthesisHonorsConfiguredTimeout(t *testing.T) {
	st := helpers.NewTestSQLiteStore(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/reply":
			json.NewEncoder(w).Encode(replyclient.ReplyResponse{Reply: "ok"})
		case "/tts":
			time.Sleep(300 * time.Millisecond)
			w.Write([]byte("audio"))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)

	m := newTestManager(t, st, srv)
	m.TTSTimeout = 20 * time.Millisecond
	voiced := make(chan []byte, 1)
	m.OnVoice = func(audio []byte) { voiced <- audio }

	identity := &domain.Identity{UserID: "u1", Email: "a@example.com"}
	userTurn, err := m.NewUserTurn(identity, "hey")
	if err != nil {
		t.Fatalf("NewUserTurn failed: %v", err)
	}
	if _, err := m.Exchange(context.Background(), sessionFor(identity, nil), userTurn); err != nil {
		t.Fatalf("Exchange failed: %v", err)
	}

	select {
	case <-voiced:
		t.Fatal("synthesis slower than the configured timeout must be dropped")
	case <-time.After(500 * time.Millisecond):
	}
}

func TestSynthesisDeliversWithinTimeout(t *testing.T) {
	st := helpers.NewTestSQLiteStore(t)
	srv, _ := newReplyServer(t, "ok", false)

	m := newTestManager(t, st, srv)
	m.TTSTimeout = 2 * time.Second
	voiced := make(chan []byte, 1)
	m.OnVoice = func(audio []byte) { voiced <- audio }

	identity := &domain.Identity{UserID: "u1", Email: "a@example.com"}
	userTurn, err := m.NewUserTurn(identity, "hey")
	if err != nil {
		t.Fatalf("NewUserTurn failed: %v", err)
	}
	if _, err := m.Exchange(context.Background(), sessionFor(identity, nil), userTurn); err != nil {
		t.Fatalf("Exchange failed: %v", err)
	}

	select {
	case audio := <-voiced:
		if string(audio) != "audio" {
			t.Fatalf("unexpected audio payload: %q", audio)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("expected synthesized audio within the timeout")
	}
}

func TestRenderTranscriptWindow(t *testing.T) {
	var turns []domain.ChatTurn
	for i := 0; i < 15; i++ {
		role := domain.RoleUser
		if i%2 == 1 {
			role = domain.RoleCompanion
		}
		turns = append(turns, domain.ChatTurn{Role: role, Text: strings.Repeat("x", i+1)})
	}

	rendered := renderTranscript(turns, domain.MemoryWindow)
	lines := strings.Split(rendered, "\n")
	if len(lines) != domain.MemoryWindow {
		t.Fatalf("expected %d lines, got %d", domain.MemoryWindow, len(lines))
	}
	// Oldest turns fall out of the window; the newest stays last.
	if !strings.HasSuffix(lines[len(lines)-1], strings.Repeat("x", 15)) {
		t.Fatalf("expected newest turn last, got %q", lines[len(lines)-1])
	}
	if renderTranscript(nil, domain.MemoryWindow) != "" {
		t.Fatal("empty history renders empty")
	}
}
