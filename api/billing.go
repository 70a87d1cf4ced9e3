package api

import (
	"log"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/amglabs/companion/domain"
	"github.com/amglabs/companion/replyclient"
)

// Subscribe returns a premium checkout redirect for the current identity.
// POST /v1/billing/subscribe
func (h *Handler) Subscribe(c echo.Context) error {
	return h.billingRedirect(c, func(email string) (*replyclient.CheckoutResponse, error) {
		return h.reply.Subscribe(c.Request().Context(), email)
	})
}

// Portal returns a billing portal redirect for the current identity.
// POST /v1/billing/portal
func (h *Handler) Portal(c echo.Context) error {
	return h.billingRedirect(c, func(email string) (*replyclient.CheckoutResponse, error) {
		return h.reply.Portal(c.Request().Context(), email)
	})
}

// MemoryUpgradeRequest selects a message-memory plan.
type MemoryUpgradeRequest struct {
	Tier string `json:"tier"`
}

// MemoryUpgrade returns a checkout redirect for a memory plan.
// POST /v1/billing/memory-upgrade
func (h *Handler) MemoryUpgrade(c echo.Context) error {
	var req MemoryUpgradeRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	tier, ok := domain.ParseMemoryTier(req.Tier)
	if !ok {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "unknown memory tier"})
	}
	return h.billingRedirect(c, func(email string) (*replyclient.CheckoutResponse, error) {
		return h.reply.MemoryUpgrade(c.Request().Context(), email, tier)
	})
}

func (h *Handler) billingRedirect(c echo.Context, fetch func(email string) (*replyclient.CheckoutResponse, error)) error {
	state := h.coord.Current()
	if !state.Authenticated() {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "unauthenticated"})
	}

	checkout, err := fetch(state.Identity.Email)
	if err != nil {
		log.Printf("WARN: billing redirect failed: %v", err)
		return c.JSON(http.StatusBadGateway, map[string]string{"error": "billing unavailable, try again"})
	}
	return c.JSON(http.StatusOK, checkout)
}
