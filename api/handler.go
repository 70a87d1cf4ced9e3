// Package api provides HTTP handlers for the companion orchestrator.
package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/amglabs/companion/authgate"
	"github.com/amglabs/companion/replyclient"
	"github.com/amglabs/companion/session"
)

// Handler handles HTTP requests.
type Handler struct {
	coord *session.Coordinator
	gate  *authgate.Gate
	reply *replyclient.Client
}

// NewHandler creates a new handler.
func NewHandler(coord *session.Coordinator, gate *authgate.Gate, reply *replyclient.Client) *Handler {
	return &Handler{
		coord: coord,
		gate:  gate,
		reply: reply,
	}
}

// RegisterRoutes registers routes with the echo server.
func (h *Handler) RegisterRoutes(e *echo.Echo) {
	// Session
	e.POST("/v1/session/resolve", h.ResolveSession)
	e.GET("/v1/session", h.GetSession)
	e.POST("/v1/session/logout", h.Logout)

	// Profile and settings
	e.GET("/v1/profile", h.GetProfile)
	e.PATCH("/v1/profile", h.PatchProfile)
	e.PUT("/v1/settings/worksafe", h.SetWorkSafe)

	// Conversation
	e.GET("/v1/messages", h.GetMessages)
	e.POST("/v1/chat", h.SubmitChat)
	e.GET("/v1/features", h.GetFeatures)
	e.POST("/v1/voice/transcribe", h.Transcribe)

	// Billing redirects
	e.POST("/v1/billing/subscribe", h.Subscribe)
	e.POST("/v1/billing/portal", h.Portal)
	e.POST("/v1/billing/memory-upgrade", h.MemoryUpgrade)

	// Avatar assets
	e.GET("/v1/avatar/model", h.AvatarModel)
	e.GET("/v1/avatar/environment", h.AvatarEnvironment)

	e.GET("/health", h.Health)
}

// Health returns health status.
func (h *Handler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status":  "healthy",
		"version": "0.1.0",
	})
}
