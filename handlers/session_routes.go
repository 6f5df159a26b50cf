// handlers/session_routes.go
package handlers

import (
	"couple-sync-system/middleware"
	"couple-sync-system/services"

	"github.com/gofiber/fiber/v2"
)

func SetupSessionRoutes(app *fiber.App, sessionService *services.SessionService, statsService *services.StatsService, achievementService *services.AchievementService, pairingService *services.PairingService) {
	// 🔓 Public (still behind gateway auth)
	app.Get("/achievements/catalog", func(c *fiber.Ctx) error {
		catalog, err := achievementService.Catalog()
		if err != nil {
			return errJSON(c, err, "failed to fetch catalog")
		}
		return c.JSON(catalog)
	})

	// 🔐 Secured routes — require user context
	secured := app.Group("/", middleware.UserContextMiddleware())

	secured.Get("/sessions/today", func(c *fiber.Ctx) error {
		userID := c.Locals("user_id").(string)
		view, err := sessionService.GetOrCreateTodaySession(userID)
		if err != nil {
			return errJSON(c, err, "failed to load today's session")
		}
		return c.JSON(view)
	})

	secured.Post("/sessions/:id/answer", func(c *fiber.Ctx) error {
		userID := c.Locals("user_id").(string)
		sessionID := c.Params("id")

		type Req struct {
			OptionIndex *int `json:"option_index" validate:"required,min=0"`
		}
		var req Req
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid JSON", "cause": err.Error()})
		}
		if req.OptionIndex == nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "option_index is required"})
		}

		view, err := sessionService.SubmitAnswer(sessionID, userID, *req.OptionIndex)
		if err != nil {
			return errJSON(c, err, "failed to submit answer")
		}
		return c.JSON(view)
	})

	secured.Get("/couples/me/stats", func(c *fiber.Ctx) error {
		userID := c.Locals("user_id").(string)
		couple, err := pairingService.GetCoupleForUser(userID)
		if err != nil {
			return errJSON(c, err, "failed to fetch couple")
		}
		stats, err := statsService.GetStats(couple.ID)
		if err != nil {
			return errJSON(c, err, "failed to fetch stats")
		}
		return c.JSON(stats)
	})

	secured.Get("/couples/me/streak", func(c *fiber.Ctx) error {
		userID := c.Locals("user_id").(string)
		couple, err := pairingService.GetCoupleForUser(userID)
		if err != nil {
			return errJSON(c, err, "failed to fetch couple")
		}
		streak, err := statsService.GetStreak(couple.ID)
		if err != nil {
			return errJSON(c, err, "failed to fetch streak")
		}
		return c.JSON(streak)
	})

	secured.Get("/user/achievements", func(c *fiber.Ctx) error {
		userID := c.Locals("user_id").(string)
		unlocked, err := achievementService.UnlockedForUser(userID)
		if err != nil {
			return errJSON(c, err, "failed to fetch achievements")
		}
		return c.JSON(unlocked)
	})
}
