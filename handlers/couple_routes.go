// handlers/couple_routes.go
package handlers

import (
	"os"

	"couple-sync-system/middleware"
	"couple-sync-system/services"

	"github.com/gofiber/fiber/v2"
)

func errJSON(c *fiber.Ctx, err error, msg string) error {
	return c.Status(services.StatusForError(err)).JSON(fiber.Map{
		"error": msg,
		"cause": err.Error(),
	})
}

func SetupCoupleRoutes(app *fiber.App, pairingService *services.PairingService, presenceService *services.PresenceService) {
	// 🔐 All couple routes require user context (userID, roles)
	secured := app.Group("/", middleware.UserContextMiddleware())

	secured.Post("/couples/invite", func(c *fiber.Ctx) error {
		userID := c.Locals("user_id").(string)
		couple, err := pairingService.CreateInvite(userID)
		if err != nil {
			return errJSON(c, err, "failed to create invite")
		}
		return c.Status(fiber.StatusCreated).JSON(fiber.Map{
			"couple_id":  couple.ID,
			"code":       couple.InviteCode,
			"expires_at": couple.InviteCodeExpiresAt,
		})
	})

	secured.Post("/couples/redeem", func(c *fiber.Ctx) error {
		userID := c.Locals("user_id").(string)

		type Req struct {
			Code string `json:"code" validate:"required"`
			// Test/dev only — honored solely when ALLOW_SELF_PAIR=true
			AllowSelfJoin bool `json:"allow_self_join,omitempty"`
		}
		var req Req
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid JSON", "cause": err.Error()})
		}

		allowSelfJoin := req.AllowSelfJoin && os.Getenv("ALLOW_SELF_PAIR") == "true"

		couple, err := pairingService.RedeemInvite(userID, req.Code, allowSelfJoin)
		if err != nil {
			return errJSON(c, err, "failed to redeem invite")
		}
		return c.JSON(couple)
	})

	secured.Get("/couples/me", func(c *fiber.Ctx) error {
		userID := c.Locals("user_id").(string)
		couple, err := pairingService.GetCoupleForUser(userID)
		if err != nil {
			return errJSON(c, err, "failed to fetch couple")
		}
		// partner display data comes from the local pair_users mirror
		partner, err := pairingService.PartnerProfile(couple, userID)
		if err != nil {
			return errJSON(c, err, "failed to fetch partner profile")
		}
		return c.JSON(fiber.Map{
			"couple":  couple,
			"partner": partner,
		})
	})

	secured.Patch("/couples/me/categories", func(c *fiber.Ctx) error {
		userID := c.Locals("user_id").(string)

		type Req struct {
			Categories []string `json:"categories" validate:"required,min=1"`
		}
		var req Req
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid JSON", "cause": err.Error()})
		}

		couple, err := pairingService.UpdatePreferredCategories(userID, req.Categories)
		if err != nil {
			return errJSON(c, err, "failed to update categories")
		}
		return c.JSON(couple)
	})

	secured.Delete("/couples/me", func(c *fiber.Ctx) error {
		userID := c.Locals("user_id").(string)
		if err := pairingService.DissolveCouple(userID); err != nil {
			return errJSON(c, err, "failed to dissolve couple")
		}
		return c.JSON(fiber.Map{"message": "couple dissolved"})
	})

	secured.Post("/presence/heartbeat", func(c *fiber.Ctx) error {
		userID := c.Locals("user_id").(string)

		type Req struct {
			Status string `json:"status" validate:"oneof=online playing offline"`
			Screen string `json:"screen,omitempty"` // free-form tag, e.g. "daily"
		}
		var req Req
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid JSON", "cause": err.Error()})
		}

		couple, err := pairingService.GetCoupleForUser(userID)
		if err != nil {
			return errJSON(c, err, "failed to fetch couple")
		}
		if err := presenceService.Heartbeat(couple.ID, userID, req.Status, req.Screen); err != nil {
			return errJSON(c, err, "failed to record heartbeat")
		}
		return c.JSON(fiber.Map{"message": "ok"})
	})

	secured.Get("/couples/me/partner-presence", func(c *fiber.Ctx) error {
		userID := c.Locals("user_id").(string)
		couple, err := pairingService.GetCoupleForUser(userID)
		if err != nil {
			return errJSON(c, err, "failed to fetch couple")
		}
		state := presenceService.PartnerPresence(couple.ID, userID)
		if state == nil {
			return c.JSON(fiber.Map{"status": "offline"})
		}
		return c.JSON(state)
	})
}
