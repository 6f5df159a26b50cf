package models

import (
	"math"
	"time"

	"gorm.io/gorm"
)

// CoupleStats tracks running counters per couple (denormalized for performance).
// Mutated only by the stats aggregator, inside the session-completion transaction.
type CoupleStats struct {
	ID       string `gorm:"primaryKey;type:uuid" json:"id"`
	CoupleID string `gorm:"uniqueIndex;not null" json:"couple_id"`

	TotalGames   int64 `json:"total_games" gorm:"default:0"`
	TotalMatches int64 `json:"total_matches" gorm:"default:0"`
	SyncScore    int   `json:"sync_score" gorm:"default:0"` // round(matches/games*100)

	Timestamps
}

// ComputeSyncScore derives the score from the counters.
func ComputeSyncScore(matches, games int64) int {
	if games == 0 {
		return 0
	}
	return int(math.Round(float64(matches) / float64(games) * 100))
}

// StreakRecord tracks consecutive qualifying days of play per couple.
// LastPlayedDate doubles as the idempotency guard: a completion already
// counted for that date is a no-op.
type StreakRecord struct {
	ID       string `gorm:"primaryKey;type:uuid" json:"id"`
	CoupleID string `gorm:"uniqueIndex;not null" json:"couple_id"`

	CurrentStreak  int    `json:"current_streak" gorm:"default:0"`
	LongestStreak  int    `json:"longest_streak" gorm:"default:0"`
	LastPlayedDate string `json:"last_played_date" gorm:"type:varchar(10)"` // YYYY-MM-DD, empty = never played

	Timestamps
}

// Timestamps adds GORM auto-times
type Timestamps struct {
	CreatedAt time.Time      `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time      `json:"updated_at" gorm:"autoUpdateTime"`
	DeletedAt gorm.DeletedAt `json:"deleted_at,omitempty" gorm:"index"`
}
