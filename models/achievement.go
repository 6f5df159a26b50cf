package models

import (
	"time"
)

// AchievementType: static catalog (seeded into DB at startup for read access;
// the trigger predicates live in AchievementTriggers below)
type AchievementType struct {
	ID          string `gorm:"primaryKey;type:uuid" json:"id"`
	Code        string `gorm:"uniqueIndex;not null" json:"code"` // e.g. "STREAK_7", "MATCH_50"
	Name        string `gorm:"not null" json:"name"`
	Description string `json:"description"`
	IconURL     string `gorm:"type:text" json:"icon_url"`
	Rarity      string `gorm:"type:varchar(16);default:'common'" json:"rarity"` // common, rare, epic, legendary
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// UnlockedAchievement: awarded instance, append-only. The (user, code) unique
// index tolerates concurrent or duplicate evaluation — the second insert loses.
type UnlockedAchievement struct {
	ID         string    `gorm:"primaryKey;type:uuid" json:"id"`
	UserID     string    `gorm:"uniqueIndex:idx_unlocked_user_code;not null" json:"user_id"`
	Code       string    `gorm:"uniqueIndex:idx_unlocked_user_code;not null" json:"code"`
	UnlockedAt time.Time `gorm:"autoCreateTime" json:"unlocked_at"`
}

// StatsSnapshot is what achievement predicates are evaluated against.
// Rules are pure functions of the snapshot; no rule may depend on another
// rule's unlock, which keeps evaluation order-independent.
type StatsSnapshot struct {
	CurrentStreak int
	TotalGames    int64
	TotalMatches  int64
	PerfectDay    bool // today's session completed with a match
}

// AchievementTrigger pairs a catalog entry with its unlock predicate.
type AchievementTrigger struct {
	AchievementType
	Unlocks func(s StatsSnapshot) bool `gorm:"-" json:"-"`
}

// Predefined achievement triggers
var AchievementTriggers = []AchievementTrigger{
	{
		AchievementType: AchievementType{
			Code:        "FIRST_GAME",
			Name:        "The First Question",
			Description: "Completed your first daily question together",
			Rarity:      "common",
		},
		Unlocks: func(s StatsSnapshot) bool { return s.TotalGames >= 1 },
	},
	{
		AchievementType: AchievementType{
			Code:        "PERFECT_DAY",
			Name:        "In Sync",
			Description: "Matched answers on a daily question",
			Rarity:      "common",
		},
		Unlocks: func(s StatsSnapshot) bool { return s.PerfectDay },
	},
	{
		AchievementType: AchievementType{
			Code:        "STREAK_3",
			Name:        "Warming Up",
			Description: "Played 3 days in a row",
			Rarity:      "common",
		},
		Unlocks: func(s StatsSnapshot) bool { return s.CurrentStreak >= 3 },
	},
	{
		AchievementType: AchievementType{
			Code:        "STREAK_7",
			Name:        "One Week Strong",
			Description: "Played 7 days in a row",
			Rarity:      "rare",
		},
		Unlocks: func(s StatsSnapshot) bool { return s.CurrentStreak >= 7 },
	},
	{
		AchievementType: AchievementType{
			Code:        "STREAK_30",
			Name:        "Inseparable",
			Description: "Played 30 days in a row",
			Rarity:      "legendary",
		},
		Unlocks: func(s StatsSnapshot) bool { return s.CurrentStreak >= 30 },
	},
	{
		AchievementType: AchievementType{
			Code:        "MATCH_10",
			Name:        "Mind Readers",
			Description: "Matched answers 10 times",
			Rarity:      "rare",
		},
		Unlocks: func(s StatsSnapshot) bool { return s.TotalMatches >= 10 },
	},
	{
		AchievementType: AchievementType{
			Code:        "MATCH_50",
			Name:        "Two Hearts, One Brain",
			Description: "Matched answers 50 times",
			Rarity:      "epic",
		},
		Unlocks: func(s StatsSnapshot) bool { return s.TotalMatches >= 50 },
	},
	{
		AchievementType: AchievementType{
			Code:        "GAMES_50",
			Name:        "Committed",
			Description: "Completed 50 daily questions",
			Rarity:      "epic",
		},
		Unlocks: func(s StatsSnapshot) bool { return s.TotalGames >= 50 },
	},
}
