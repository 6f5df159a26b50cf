package services

import (
	"testing"

	"couple-sync-system/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func unlockCodes(unlocks []models.AchievementType) []string {
	codes := make([]string, len(unlocks))
	for i, u := range unlocks {
		codes[i] = u.Code
	}
	return codes
}

func TestSeedCatalog_Idempotent(t *testing.T) {
	db := newTestDB(t)
	achievements := NewAchievementService(db)

	require.NoError(t, achievements.SeedCatalog())
	require.NoError(t, achievements.SeedCatalog())

	catalog, err := achievements.Catalog()
	require.NoError(t, err)
	assert.Len(t, catalog, len(models.AchievementTriggers))
}

func TestCheckAndUnlock_TriggerRules(t *testing.T) {
	cases := []struct {
		name     string
		snapshot models.StatsSnapshot
		want     []string
	}{
		{
			name:     "first completed game",
			snapshot: models.StatsSnapshot{TotalGames: 1, CurrentStreak: 1},
			want:     []string{"FIRST_GAME"},
		},
		{
			name:     "first game with a match",
			snapshot: models.StatsSnapshot{TotalGames: 1, TotalMatches: 1, CurrentStreak: 1, PerfectDay: true},
			want:     []string{"FIRST_GAME", "PERFECT_DAY"},
		},
		{
			name:     "week-long streak",
			snapshot: models.StatsSnapshot{TotalGames: 7, TotalMatches: 2, CurrentStreak: 7},
			want:     []string{"FIRST_GAME", "STREAK_3", "STREAK_7"},
		},
		{
			name:     "ten matches",
			snapshot: models.StatsSnapshot{TotalGames: 20, TotalMatches: 10, CurrentStreak: 2},
			want:     []string{"FIRST_GAME", "MATCH_10"},
		},
		{
			name:     "the long haul",
			snapshot: models.StatsSnapshot{TotalGames: 50, TotalMatches: 50, CurrentStreak: 30, PerfectDay: true},
			want:     []string{"FIRST_GAME", "PERFECT_DAY", "STREAK_3", "STREAK_7", "STREAK_30", "MATCH_10", "MATCH_50", "GAMES_50"},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			db := newTestDB(t)
			achievements := NewAchievementService(db)

			unlocked, err := achievements.CheckAndUnlock("alex", tc.snapshot)
			require.NoError(t, err)
			assert.ElementsMatch(t, tc.want, unlockCodes(unlocked))
		})
	}
}

func TestCheckAndUnlock_DeduplicatesAcrossCalls(t *testing.T) {
	db := newTestDB(t)
	achievements := NewAchievementService(db)

	first, err := achievements.CheckAndUnlock("alex", models.StatsSnapshot{TotalGames: 1, CurrentStreak: 1})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"FIRST_GAME"}, unlockCodes(first))

	// second evaluation only surfaces what is genuinely new
	second, err := achievements.CheckAndUnlock("alex", models.StatsSnapshot{TotalGames: 3, CurrentStreak: 3})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"STREAK_3"}, unlockCodes(second))

	var total int64
	require.NoError(t, db.Model(&models.UnlockedAchievement{}).Where("user_id = ?", "alex").Count(&total).Error)
	assert.EqualValues(t, 2, total)
}

func TestCheckAndUnlock_PerUser(t *testing.T) {
	db := newTestDB(t)
	achievements := NewAchievementService(db)
	snapshot := models.StatsSnapshot{TotalGames: 1, CurrentStreak: 1}

	forAlex, err := achievements.CheckAndUnlock("alex", snapshot)
	require.NoError(t, err)
	forSam, err := achievements.CheckAndUnlock("sam", snapshot)
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"FIRST_GAME"}, unlockCodes(forAlex))
	assert.ElementsMatch(t, []string{"FIRST_GAME"}, unlockCodes(forSam), "each partner unlocks independently")
}

func TestUnlockedForUser_JoinsCatalog(t *testing.T) {
	db := newTestDB(t)
	achievements := NewAchievementService(db)
	require.NoError(t, achievements.SeedCatalog())

	_, err := achievements.CheckAndUnlock("alex", models.StatsSnapshot{TotalGames: 1, TotalMatches: 1, CurrentStreak: 1, PerfectDay: true})
	require.NoError(t, err)

	entries, err := achievements.UnlockedForUser("alex")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	for _, entry := range entries {
		assert.NotEmpty(t, entry["code"])
		assert.NotEmpty(t, entry["name"], "catalog metadata must be joined in")
		assert.NotEmpty(t, entry["rarity"])
		assert.NotNil(t, entry["unlocked_at"])
	}
}
