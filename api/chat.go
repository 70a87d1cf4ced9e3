package api

import (
	"log"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/amglabs/companion/domain"
)

// GetMessages returns the chat history for the current identity, oldest
// first.
// GET /v1/messages
func (h *Handler) GetMessages(c echo.Context) error {
	state := h.coord.Current()
	if !state.Authenticated() {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "unauthenticated"})
	}

	turns := state.Turns
	if turns == nil {
		turns = []domain.ChatTurn{}
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"messages": turns,
	})
}

// SubmitChatRequest carries one user prompt.
type SubmitChatRequest struct {
	Prompt string `json:"prompt"`
}

// SubmitChat runs one prompt through the conversation pipeline.
// POST /v1/chat
func (h *Handler) SubmitChat(c echo.Context) error {
	ctx := c.Request().Context()

	var req SubmitChatRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}

	result, err := h.coord.Submit(ctx, req.Prompt)
	if err != nil {
		switch err {
		case domain.ErrUnauthenticated:
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "unauthenticated"})
		case domain.ErrEmptyPrompt:
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "prompt is required"})
		case domain.ErrSubmitPending:
			return c.JSON(http.StatusConflict, map[string]string{"error": "a submission is already pending"})
		case domain.ErrStaleSession:
			return c.JSON(http.StatusConflict, map[string]string{"error": "session changed"})
		default:
			// Transient failure: the optimistic user turn is kept and the
			// user resubmits explicitly.
			log.Printf("WARN: chat submission failed: %v", err)
			return c.JSON(http.StatusBadGateway, map[string]string{"error": "companion unavailable, try again"})
		}
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"user_turn":      result.UserTurn,
		"companion_turn": result.CompanionTurn,
		"blocked":        result.Blocked,
	})
}

// GetFeatures returns the evaluated feature unlock set for the current
// session.
// GET /v1/features
func (h *Handler) GetFeatures(c echo.Context) error {
	ctx := c.Request().Context()

	access, err := h.coord.Features(ctx)
	if err != nil {
		if err == domain.ErrUnauthenticated {
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "unauthenticated"})
		}
		log.Printf("ERROR: failed to evaluate features: %v", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to evaluate features"})
	}
	return c.JSON(http.StatusOK, access)
}
