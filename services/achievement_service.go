package services

import (
	"errors"
	"fmt"
	"log"

	"couple-sync-system/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// AchievementService evaluates the static trigger catalog against stats
// snapshots and records unlocks. Unlocks are append-only and deduplicated by
// the (user_id, code) unique index, so concurrent or duplicate evaluation is
// harmless — the second insert just loses.
type AchievementService struct {
	DB *gorm.DB
}

func NewAchievementService(db *gorm.DB) *AchievementService {
	return &AchievementService{DB: db}
}

// SeedCatalog upserts the trigger catalog into the achievement_types table
// so the presentation layer can list it.
func (s *AchievementService) SeedCatalog() error {
	rows := make([]models.AchievementType, len(models.AchievementTriggers))
	for i, trigger := range models.AchievementTriggers {
		at := trigger.AchievementType
		at.ID = uuid.NewString()
		rows[i] = at
	}
	if err := s.DB.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "code"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "description", "rarity"}),
	}).Create(&rows).Error; err != nil {
		return fmt.Errorf("seed achievement catalog: %w", err)
	}
	log.Printf("🏆 Achievement catalog seeded (%d triggers)", len(rows))
	return nil
}

// CheckAndUnlock evaluates every rule against the snapshot and records the
// newly satisfied ones for the user, returning them for UI celebration.
func (s *AchievementService) CheckAndUnlock(userID string, snapshot models.StatsSnapshot) ([]models.AchievementType, error) {
	return s.CheckAndUnlockTx(s.DB, userID, snapshot)
}

// CheckAndUnlockTx is CheckAndUnlock bound to a caller-supplied transaction
// (the session-completion transaction uses this).
func (s *AchievementService) CheckAndUnlockTx(tx *gorm.DB, userID string, snapshot models.StatsSnapshot) ([]models.AchievementType, error) {
	var unlocked []models.AchievementType
	for _, trigger := range models.AchievementTriggers {
		if !trigger.Unlocks(snapshot) {
			continue
		}

		var count int64
		if err := tx.Model(&models.UnlockedAchievement{}).
			Where("user_id = ? AND code = ?", userID, trigger.Code).
			Count(&count).Error; err != nil {
			return nil, fmt.Errorf("%w: check unlock %s: %v", ErrUnavailable, trigger.Code, err)
		}
		if count > 0 {
			continue
		}

		row := models.UnlockedAchievement{
			ID:     uuid.NewString(),
			UserID: userID,
			Code:   trigger.Code,
		}
		if err := tx.Create(&row).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				// concurrent evaluation already recorded it
				continue
			}
			return nil, fmt.Errorf("%w: record unlock %s: %v", ErrUnavailable, trigger.Code, err)
		}
		log.Printf("🏆 Achievement unlocked: %s → %s", trigger.Code, userID)
		unlocked = append(unlocked, trigger.AchievementType)
	}
	return unlocked, nil
}

// UnlockedForUser lists the user's unlock records joined with catalog data.
func (s *AchievementService) UnlockedForUser(userID string) ([]map[string]interface{}, error) {
	var unlocks []models.UnlockedAchievement
	if err := s.DB.Where("user_id = ?", userID).Order("unlocked_at ASC").Find(&unlocks).Error; err != nil {
		return nil, fmt.Errorf("%w: fetch unlocks: %v", ErrUnavailable, err)
	}

	catalog := map[string]models.AchievementType{}
	var types []models.AchievementType
	if err := s.DB.Find(&types).Error; err != nil {
		return nil, fmt.Errorf("%w: fetch catalog: %v", ErrUnavailable, err)
	}
	for _, t := range types {
		catalog[t.Code] = t
	}

	out := make([]map[string]interface{}, 0, len(unlocks))
	for _, u := range unlocks {
		entry := map[string]interface{}{
			"code":        u.Code,
			"unlocked_at": u.UnlockedAt,
		}
		if t, ok := catalog[u.Code]; ok {
			entry["name"] = t.Name
			entry["description"] = t.Description
			entry["rarity"] = t.Rarity
			entry["icon_url"] = t.IconURL
		}
		out = append(out, entry)
	}
	return out, nil
}

// Catalog lists every achievement type.
func (s *AchievementService) Catalog() ([]models.AchievementType, error) {
	var types []models.AchievementType
	if err := s.DB.Order("code ASC").Find(&types).Error; err != nil {
		return nil, fmt.Errorf("%w: fetch catalog: %v", ErrUnavailable, err)
	}
	return types, nil
}
