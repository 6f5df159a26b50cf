package services

import (
	"testing"

	"couple-sync-system/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func seedStatsRecords(t *testing.T, db *gorm.DB, coupleID string) {
	t.Helper()
	require.NoError(t, db.Create(&models.CoupleStats{ID: uuid.NewString(), CoupleID: coupleID}).Error)
	require.NoError(t, db.Create(&models.StreakRecord{ID: uuid.NewString(), CoupleID: coupleID}).Error)
}

func TestOnSessionCompleted_CountersAndScore(t *testing.T) {
	db := newTestDB(t)
	stats := NewStatsService(db)
	coupleID := uuid.NewString()
	seedStatsRecords(t, db, coupleID)

	// 4 games / 3 matches on record, then a matched game: 4/5 → 80
	require.NoError(t, db.Model(&models.CoupleStats{}).
		Where("couple_id = ?", coupleID).
		Updates(map[string]interface{}{"total_games": 4, "total_matches": 3, "sync_score": 75}).Error)

	got, _, err := stats.OnSessionCompleted(db, coupleID, true, "2026-08-23")
	require.NoError(t, err)
	assert.EqualValues(t, 5, got.TotalGames)
	assert.EqualValues(t, 4, got.TotalMatches)
	assert.Equal(t, 80, got.SyncScore)
}

func TestOnSessionCompleted_StreakIncrementsOnConsecutiveDays(t *testing.T) {
	db := newTestDB(t)
	stats := NewStatsService(db)
	coupleID := uuid.NewString()
	seedStatsRecords(t, db, coupleID)

	_, streak, err := stats.OnSessionCompleted(db, coupleID, false, "2026-08-21")
	require.NoError(t, err)
	assert.Equal(t, 1, streak.CurrentStreak)

	_, streak, err = stats.OnSessionCompleted(db, coupleID, true, "2026-08-22")
	require.NoError(t, err)
	assert.Equal(t, 2, streak.CurrentStreak)

	_, streak, err = stats.OnSessionCompleted(db, coupleID, false, "2026-08-23")
	require.NoError(t, err)
	assert.Equal(t, 3, streak.CurrentStreak)
	assert.Equal(t, 3, streak.LongestStreak)
	assert.Equal(t, "2026-08-23", streak.LastPlayedDate)
}

func TestOnSessionCompleted_StreakResetsAfterGap(t *testing.T) {
	db := newTestDB(t)
	stats := NewStatsService(db)
	coupleID := uuid.NewString()
	seedStatsRecords(t, db, coupleID)

	_, _, err := stats.OnSessionCompleted(db, coupleID, true, "2026-08-20")
	require.NoError(t, err)
	_, _, err = stats.OnSessionCompleted(db, coupleID, true, "2026-08-21")
	require.NoError(t, err)

	// skipped the 22nd
	_, streak, err := stats.OnSessionCompleted(db, coupleID, true, "2026-08-23")
	require.NoError(t, err)
	assert.Equal(t, 1, streak.CurrentStreak)
	assert.Equal(t, 2, streak.LongestStreak, "longest survives the reset")
}

func TestOnSessionCompleted_SameDateIsNoop(t *testing.T) {
	db := newTestDB(t)
	stats := NewStatsService(db)
	coupleID := uuid.NewString()
	seedStatsRecords(t, db, coupleID)

	_, _, err := stats.OnSessionCompleted(db, coupleID, true, "2026-08-23")
	require.NoError(t, err)

	got, streak, err := stats.OnSessionCompleted(db, coupleID, true, "2026-08-23")
	require.NoError(t, err)
	assert.EqualValues(t, 1, got.TotalGames, "second trigger for the same day must not count")
	assert.EqualValues(t, 1, got.TotalMatches)
	assert.Equal(t, 1, streak.CurrentStreak)
}

func TestOnSessionCompleted_StreakRequiresMatchMode(t *testing.T) {
	t.Setenv("STREAK_REQUIRES_MATCH", "true")

	db := newTestDB(t)
	stats := NewStatsService(db)
	coupleID := uuid.NewString()
	seedStatsRecords(t, db, coupleID)

	// mismatched day counts the game but not the streak
	got, streak, err := stats.OnSessionCompleted(db, coupleID, false, "2026-08-22")
	require.NoError(t, err)
	assert.EqualValues(t, 1, got.TotalGames)
	assert.Equal(t, 0, streak.CurrentStreak)
	assert.Equal(t, "2026-08-22", streak.LastPlayedDate)

	_, streak, err = stats.OnSessionCompleted(db, coupleID, true, "2026-08-23")
	require.NoError(t, err)
	assert.Equal(t, 1, streak.CurrentStreak)
}

func TestOnSessionCompleted_MismatchBreaksRunningStreakInMatchMode(t *testing.T) {
	t.Setenv("STREAK_REQUIRES_MATCH", "true")

	db := newTestDB(t)
	stats := NewStatsService(db)
	coupleID := uuid.NewString()
	seedStatsRecords(t, db, coupleID)

	_, _, err := stats.OnSessionCompleted(db, coupleID, true, "2026-08-20")
	require.NoError(t, err)
	_, streak, err := stats.OnSessionCompleted(db, coupleID, true, "2026-08-21")
	require.NoError(t, err)
	assert.Equal(t, 2, streak.CurrentStreak)

	// an unmatched day in the middle breaks the run — it must not quietly
	// bridge the two matched days around it
	_, streak, err = stats.OnSessionCompleted(db, coupleID, false, "2026-08-22")
	require.NoError(t, err)
	assert.Equal(t, 0, streak.CurrentStreak)

	_, streak, err = stats.OnSessionCompleted(db, coupleID, true, "2026-08-23")
	require.NoError(t, err)
	assert.Equal(t, 1, streak.CurrentStreak, "run restarts, not resumes, after a mismatch")
	assert.Equal(t, 2, streak.LongestStreak)
}

func TestOnSessionCompleted_MissingRecordsFail(t *testing.T) {
	db := newTestDB(t)
	stats := NewStatsService(db)

	_, _, err := stats.OnSessionCompleted(db, uuid.NewString(), true, "2026-08-23")
	require.ErrorIs(t, err, ErrUnavailable)
}

func TestPreviousDay(t *testing.T) {
	assert.Equal(t, "2026-08-22", previousDay("2026-08-23"))
	assert.Equal(t, "2026-07-31", previousDay("2026-08-01"))
	assert.Equal(t, "2025-12-31", previousDay("2026-01-01"))
	assert.Equal(t, "2024-02-29", previousDay("2024-03-01"))
	assert.Equal(t, "", previousDay("not-a-date"))
}

func TestComputeSyncScore(t *testing.T) {
	cases := []struct {
		matches, games int64
		want           int
	}{
		{0, 0, 0},
		{0, 3, 0},
		{1, 3, 33},
		{2, 3, 67},
		{4, 5, 80},
		{5, 5, 100},
		{1, 2, 50},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, models.ComputeSyncScore(tc.matches, tc.games),
			"matches=%d games=%d", tc.matches, tc.games)
	}
}
