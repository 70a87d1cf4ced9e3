package domain

// SessionState is the whole UI-facing state as one immutable value. Every
// transition produces a fresh copy; nothing mutates a shared SessionState in
// place.
type SessionState struct {
	Identity    *Identity
	Entitlement *EntitlementRecord
	Turns       []ChatTurn
	Mood        Mood
	WorkSafe    bool
	Pending     bool
	Notice      string
}

// NewSessionState returns the unauthenticated initial state.
func NewSessionState() SessionState {
	return SessionState{Mood: MoodNormal}
}

// Authenticated reports whether an identity has been resolved.
func (s SessionState) Authenticated() bool {
	return s.Identity != nil
}

// WithIdentity returns a copy carrying the given identity and no
// session-scoped state. Passing nil yields the unauthenticated state.
func (s SessionState) WithIdentity(id *Identity) SessionState {
	next := NewSessionState()
	next.Identity = id
	next.WorkSafe = s.WorkSafe
	return next
}

// WithEntitlement returns a copy with the entitlement record replaced.
func (s SessionState) WithEntitlement(rec *EntitlementRecord) SessionState {
	s.Entitlement = rec
	if rec != nil && s.Mood == MoodNormal && rec.FavoriteMood != "" {
		s.Mood = rec.FavoriteMood
	}
	return s
}

// WithTurns returns a copy with the chat history replaced.
func (s SessionState) WithTurns(turns []ChatTurn) SessionState {
	s.Turns = turns
	return s
}

// AppendTurn returns a copy with one turn appended. The backing array is
// never shared with the previous state value.
func (s SessionState) AppendTurn(turn ChatTurn) SessionState {
	turns := make([]ChatTurn, 0, len(s.Turns)+1)
	turns = append(turns, s.Turns...)
	turns = append(turns, turn)
	s.Turns = turns
	return s
}

// WithMood returns a copy with the mood replaced.
func (s SessionState) WithMood(m Mood) SessionState {
	s.Mood = m
	return s
}

// WithWorkSafe returns a copy with the work-safe toggle replaced.
func (s SessionState) WithWorkSafe(on bool) SessionState {
	s.WorkSafe = on
	return s
}

// WithPending returns a copy with the pending-reply indicator replaced.
func (s SessionState) WithPending(pending bool) SessionState {
	s.Pending = pending
	return s
}

// WithNotice returns a copy carrying a transient notice.
func (s SessionState) WithNotice(notice string) SessionState {
	s.Notice = notice
	return s
}
