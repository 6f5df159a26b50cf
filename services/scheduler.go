// services/scheduler.go
package services

import (
	"log"
	"time"

	"couple-sync-system/models"

	"github.com/go-co-op/gocron/v2"
)

// StartMaintenanceScheduler runs the periodic cleanup jobs: retiring expired
// invites and pruning the presence view.
func StartMaintenanceScheduler(pairing *PairingService, presence *PresenceService) {
	sched, _ := gocron.NewScheduler()
	sched.Start()

	// Every 10 minutes: dissolve pending couples whose invite expired.
	// Redemption checks expiry on its own — this sweep just keeps the table
	// tidy and frees requesters to create fresh invites.
	_, _ = sched.NewJob(
		gocron.DurationJob(10*time.Minute),
		gocron.NewTask(func() {
			now := time.Now()
			res := pairing.DB.Model(&models.Couple{}).
				Where("status = ? AND invite_code_expires_at <= ?", models.CoupleStatusPending, now).
				Updates(map[string]interface{}{
					"status":      models.CoupleStatusDissolved,
					"invite_code": nil,
				})
			if res.Error != nil {
				log.Printf("[SCHEDULER] Invite expiry sweep error: %v", res.Error)
				return
			}
			if res.RowsAffected > 0 {
				log.Printf("🧹 Invite expiry sweep retired %d pending couple(s)", res.RowsAffected)
			}
		}),
	)

	// Every 30 seconds: bound the in-memory presence view.
	_, _ = sched.NewJob(
		gocron.DurationJob(30*time.Second),
		gocron.NewTask(presence.ReapStale),
	)
}
