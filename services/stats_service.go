package services

import (
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"couple-sync-system/models"

	"gorm.io/gorm"
)

// StatsService is the stats & streak aggregator. It runs strictly after a
// session's completed transition, inside the same transaction, and is
// idempotent per (couple, date): the last-played-date guard complements the
// session engine's at-most-once completion as defense in depth.
type StatsService struct {
	DB *gorm.DB

	// When true, only matched sessions extend the streak. Default counts
	// any completed session — the more forgiving reading.
	streakRequiresMatch bool
}

func NewStatsService(db *gorm.DB) *StatsService {
	return &StatsService{
		DB:                  db,
		streakRequiresMatch: os.Getenv("STREAK_REQUIRES_MATCH") == "true",
	}
}

// OnSessionCompleted bumps the couple's counters and streak for the given
// completion date. Must be called with the completion transaction handle.
func (s *StatsService) OnSessionCompleted(tx *gorm.DB, coupleID string, isMatch bool, completionDate string) (*models.CoupleStats, *models.StreakRecord, error) {
	var stats models.CoupleStats
	if err := tx.Where("couple_id = ?", coupleID).First(&stats).Error; err != nil {
		return nil, nil, fmt.Errorf("%w: stats record not found for couple %s: %v", ErrUnavailable, coupleID, err)
	}
	var streak models.StreakRecord
	if err := tx.Where("couple_id = ?", coupleID).First(&streak).Error; err != nil {
		return nil, nil, fmt.Errorf("%w: streak record not found for couple %s: %v", ErrUnavailable, coupleID, err)
	}

	if streak.LastPlayedDate == completionDate {
		// already counted today — double-trigger protection
		log.Printf("🛡️ Aggregator no-op: couple=%s already counted for %s", coupleID, completionDate)
		return &stats, &streak, nil
	}

	stats.TotalGames++
	if isMatch {
		stats.TotalMatches++
	}
	stats.SyncScore = models.ComputeSyncScore(stats.TotalMatches, stats.TotalGames)
	if err := tx.Save(&stats).Error; err != nil {
		return nil, nil, fmt.Errorf("%w: save stats: %v", ErrUnavailable, err)
	}

	qualifies := !s.streakRequiresMatch || isMatch
	if qualifies {
		switch streak.LastPlayedDate {
		case previousDay(completionDate):
			streak.CurrentStreak++
		default:
			streak.CurrentStreak = 1
		}
		if streak.CurrentStreak > streak.LongestStreak {
			streak.LongestStreak = streak.CurrentStreak
		}
	} else {
		// matched-only mode: a completed but unmatched day breaks the
		// streak — it must not bridge to the next match via LastPlayedDate
		streak.CurrentStreak = 0
	}
	streak.LastPlayedDate = completionDate
	if err := tx.Save(&streak).Error; err != nil {
		return nil, nil, fmt.Errorf("%w: save streak: %v", ErrUnavailable, err)
	}

	log.Printf("📊 Stats updated: couple=%s games=%d matches=%d score=%d streak=%d",
		coupleID, stats.TotalGames, stats.TotalMatches, stats.SyncScore, streak.CurrentStreak)
	return &stats, &streak, nil
}

func previousDay(date string) string {
	t, err := time.Parse(DateLayout, date)
	if err != nil {
		return ""
	}
	return t.AddDate(0, 0, -1).Format(DateLayout)
}

// GetStats returns the couple's running counters.
func (s *StatsService) GetStats(coupleID string) (*models.CoupleStats, error) {
	var stats models.CoupleStats
	err := s.DB.Where("couple_id = ?", coupleID).First(&stats).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: stats", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: fetch stats: %v", ErrUnavailable, err)
	}
	return &stats, nil
}

// GetStreak returns the couple's streak record.
func (s *StatsService) GetStreak(coupleID string) (*models.StreakRecord, error) {
	var streak models.StreakRecord
	err := s.DB.Where("couple_id = ?", coupleID).First(&streak).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: streak", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: fetch streak: %v", ErrUnavailable, err)
	}
	return &streak, nil
}
