package api

import (
	"log"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/amglabs/companion/domain"
	"github.com/amglabs/companion/session"
)

// ResolveSessionRequest carries the access token issued by the auth
// provider.
type ResolveSessionRequest struct {
	AccessToken string `json:"access_token"`
}

// ResolveSession resolves an identity and loads its session state.
// POST /v1/session/resolve
func (h *Handler) ResolveSession(c echo.Context) error {
	ctx := c.Request().Context()

	var req ResolveSessionRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}

	identity, err := h.gate.ResolveSession(ctx, req.AccessToken)
	if err == domain.ErrUnauthenticated {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "unauthenticated"})
	}
	if err != nil {
		log.Printf("ERROR: failed to resolve session: %v", err)
		return c.JSON(http.StatusBadGateway, map[string]string{"error": "auth provider unavailable"})
	}

	h.coord.HandleAuthChange(ctx, identity)
	return c.JSON(http.StatusOK, sessionView(h.coord.Current()))
}

// GetSession returns the current session state. Unauthenticated responses
// carry the last-used email hint, if one is cached, for login pre-fill.
// GET /v1/session
func (h *Handler) GetSession(c echo.Context) error {
	state := h.coord.Current()
	if !state.Authenticated() {
		body := map[string]string{"error": "unauthenticated"}
		if hint := h.coord.Hint(); hint != "" {
			body["email_hint"] = hint
		}
		return c.JSON(http.StatusUnauthorized, body)
	}
	return c.JSON(http.StatusOK, sessionView(state))
}

// Logout clears the session.
// POST /v1/session/logout
func (h *Handler) Logout(c echo.Context) error {
	h.coord.Logout()
	return c.JSON(http.StatusOK, map[string]interface{}{"ok": true})
}

// GetProfile returns the entitlement record for the current identity.
// GET /v1/profile
func (h *Handler) GetProfile(c echo.Context) error {
	state := h.coord.Current()
	if !state.Authenticated() {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "unauthenticated"})
	}
	if state.Entitlement == nil {
		return c.JSON(http.StatusOK, map[string]interface{}{})
	}
	return c.JSON(http.StatusOK, state.Entitlement)
}

// PatchProfileRequest carries edited profile memory.
type PatchProfileRequest struct {
	Nickname     *string `json:"nickname,omitempty"`
	FavoriteMood *string `json:"favorite_mood,omitempty"`
}

// PatchProfile persists profile memory (nickname, favorite mood). Mood
// changes go through the access policy: selecting a restricted mood without
// premium is rejected and the current mood is left unchanged.
// PATCH /v1/profile
func (h *Handler) PatchProfile(c echo.Context) error {
	ctx := c.Request().Context()

	var req PatchProfileRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}

	if req.FavoriteMood != nil {
		mood, ok := domain.ParseMood(*req.FavoriteMood)
		if !ok {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "unknown mood"})
		}
		if err := h.coord.SelectMood(ctx, mood); err != nil {
			switch err {
			case domain.ErrUnauthenticated:
				return c.JSON(http.StatusUnauthorized, map[string]string{"error": "unauthenticated"})
			case domain.ErrPremiumRequired:
				return c.JSON(http.StatusForbidden, map[string]string{
					"error":  "premium required",
					"notice": session.PremiumNotice,
				})
			default:
				log.Printf("ERROR: failed to select mood: %v", err)
				return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to select mood"})
			}
		}
	}

	if req.Nickname != nil {
		if err := h.coord.SetNickname(ctx, *req.Nickname); err != nil {
			if err == domain.ErrUnauthenticated {
				return c.JSON(http.StatusUnauthorized, map[string]string{"error": "unauthenticated"})
			}
			log.Printf("ERROR: failed to persist nickname: %v", err)
			return c.JSON(http.StatusBadGateway, map[string]string{"error": "storage unavailable"})
		}
	}

	return c.JSON(http.StatusOK, sessionView(h.coord.Current()))
}

// SetWorkSafeRequest toggles work-safe mode.
type SetWorkSafeRequest struct {
	Enabled bool `json:"enabled"`
}

// SetWorkSafe toggles work-safe mode for the session.
// PUT /v1/settings/worksafe
func (h *Handler) SetWorkSafe(c echo.Context) error {
	var req SetWorkSafeRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	if !h.coord.Current().Authenticated() {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "unauthenticated"})
	}
	h.coord.SetWorkSafe(req.Enabled)
	return c.JSON(http.StatusOK, sessionView(h.coord.Current()))
}

// sessionView shapes a SessionState for the wire.
func sessionView(state domain.SessionState) map[string]interface{} {
	view := map[string]interface{}{
		"authenticated": state.Authenticated(),
		"mood":          string(state.Mood),
		"worksafe":      state.WorkSafe,
		"pending":       state.Pending,
	}
	if state.Notice != "" {
		view["notice"] = state.Notice
	}
	if state.Identity != nil {
		view["email"] = state.Identity.Email
		view["user_id"] = state.Identity.UserID
	}
	if state.Entitlement != nil {
		view["ispremium"] = state.Entitlement.IsPremium
		view["nickname"] = state.Entitlement.Nickname
		view["relationship_level"] = state.Entitlement.RelationshipLevel
		view["trust_score"] = state.Entitlement.TrustScore
	}
	return view
}
