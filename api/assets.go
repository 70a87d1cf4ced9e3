package api

import (
	"log"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/amglabs/companion/domain"
)

// AvatarModel returns the avatar model asset URL. Below the relationship
// threshold the real rendering surface stays locked: no asset URL leaves
// this handler.
// GET /v1/avatar/model
func (h *Handler) AvatarModel(c echo.Context) error {
	ctx := c.Request().Context()

	state := h.coord.Current()
	if !state.Authenticated() {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "unauthenticated"})
	}

	access, err := h.coord.Features(ctx)
	if err != nil {
		log.Printf("ERROR: failed to evaluate features: %v", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to evaluate features"})
	}
	if !access.AvatarVisible {
		return c.JSON(http.StatusOK, map[string]interface{}{
			"locked":    true,
			"threshold": domain.AvatarThreshold,
		})
	}

	asset, err := h.reply.ModelURL(ctx, state.Identity.UserID)
	if err != nil {
		log.Printf("WARN: failed to fetch avatar model: %v", err)
		return c.JSON(http.StatusBadGateway, map[string]string{"error": "avatar service unavailable"})
	}
	return c.JSON(http.StatusOK, asset)
}

// AvatarEnvironment returns the scene environment asset URL, subject to the
// same unlock rule as the model.
// GET /v1/avatar/environment
func (h *Handler) AvatarEnvironment(c echo.Context) error {
	ctx := c.Request().Context()

	state := h.coord.Current()
	if !state.Authenticated() {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "unauthenticated"})
	}

	envName := c.QueryParam("env")
	if envName == "" {
		envName = "cityscape"
	}

	access, err := h.coord.Features(ctx)
	if err != nil {
		log.Printf("ERROR: failed to evaluate features: %v", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to evaluate features"})
	}
	if !access.AvatarVisible {
		return c.JSON(http.StatusOK, map[string]interface{}{
			"locked":    true,
			"threshold": domain.AvatarThreshold,
		})
	}

	asset, err := h.reply.UserEnvironment(ctx, state.Identity.UserID, envName)
	if err != nil {
		log.Printf("WARN: failed to fetch environment: %v", err)
		return c.JSON(http.StatusBadGateway, map[string]string{"error": "avatar service unavailable"})
	}
	return c.JSON(http.StatusOK, asset)
}
