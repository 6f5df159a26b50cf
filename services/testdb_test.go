package services

import (
	"testing"

	"couple-sync-system/models"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// newTestDB opens a throwaway in-memory database with the same error
// translation the production config uses. Max one open connection, so
// concurrent goroutines in race tests serialize at the pool instead of
// each getting a private empty :memory: database.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(
		&models.Couple{},
		&models.GameSession{},
		&models.Question{},
		&models.CoupleStats{},
		&models.StreakRecord{},
		&models.AchievementType{},
		&models.UnlockedAchievement{},
		&models.PairUser{},
	))
	return db
}

// pairCouple runs the real invite flow and returns the active couple.
func pairCouple(t *testing.T, pairing *PairingService, userA, userB string) *models.Couple {
	t.Helper()

	invite, err := pairing.CreateInvite(userA)
	require.NoError(t, err)
	require.NotNil(t, invite.InviteCode)

	couple, err := pairing.RedeemInvite(userB, *invite.InviteCode, false)
	require.NoError(t, err)
	require.Equal(t, models.CoupleStatusActive, couple.Status)
	return couple
}
