// handlers/presence_stream.go
package handlers

import (
	"couple-sync-system/middleware"
	"couple-sync-system/services"

	"github.com/gofiber/fiber/v2"
)

// SetupPresenceStream registers the SSE endpoint. Auth happens via query
// params (EventSource cannot send headers), validated against the auth
// service — see middleware.SSEAuthMiddleware.
func SetupPresenceStream(app *fiber.App, presenceService *services.PresenceService, pairingService *services.PairingService, sessionService *services.SessionService, authClient *services.AuthServiceClient) {
	app.Get("/presence/stream", middleware.SSEAuthMiddleware(authClient), func(c *fiber.Ctx) error {
		userID := c.Locals("user_id").(string)
		couple, err := pairingService.GetCoupleForUser(userID)
		if err != nil {
			return errJSON(c, err, "failed to fetch couple")
		}
		return presenceService.StreamPresenceSSE(c, couple, userID, sessionService.Today())
	})
}
