package handlers

import (
	"errors"

	"github.com/commeet/backend/internal/entitlement"
	"github.com/commeet/backend/internal/middleware"
	"github.com/gofiber/fiber/v2"
)

type UsageHandler struct {
	entitlements *entitlement.Service
}

func NewUsageHandler(ent *entitlement.Service) *UsageHandler {
	return &UsageHandler{entitlements: ent}
}

// Current returns the current month's usage and both capacity checks
func (h *UsageHandler) Current(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)
	if user == nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"success": false, "message": "Unauthorized"})
	}

	month, generations, err := h.entitlements.CurrentUsage(user.ID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"success": false, "message": "Failed to load usage"})
	}

	repoCheck, err := h.entitlements.CheckCapacity(user.ID, entitlement.KindConnectedRepository)
	if err != nil {
		return usageCheckError(c, err)
	}
	genCheck, err := h.entitlements.CheckCapacity(user.ID, entitlement.KindMonthlyGeneration)
	if err != nil {
		return usageCheckError(c, err)
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data": fiber.Map{
			"month":             month,
			"tweet_generations": generations,
			"repositories":      repoCheck,
			"generations":       genCheck,
		},
	})
}

// Limits returns the caps for the user's current plan
func (h *UsageHandler) Limits(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)
	if user == nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"success": false, "message": "Unauthorized"})
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data": fiber.Map{
			"plan":   user.Plan,
			"limits": h.entitlements.Limits(user.Plan),
		},
	})
}

func usageCheckError(c *fiber.Ctx, err error) error {
	if errors.Is(err, entitlement.ErrUserNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"success": false, "message": "User not found"})
	}
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"success": false, "message": "Capacity check failed"})
}
