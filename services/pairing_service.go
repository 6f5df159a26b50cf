package services

import (
	"crypto/rand"
	"errors"
	"fmt"
	"log"
	"math/big"
	"os"
	"strconv"
	"strings"
	"time"

	"couple-sync-system/models"

	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"gorm.io/gorm"
)

// Invite codes exclude visually ambiguous glyphs (0/O, 1/I). Uniqueness is
// enforced by the unique index on couples.invite_code, not by the generator —
// collisions regenerate and retry.
const inviteCodeAlphabet = "23456789ABCDEFGHJKLMNPQRSTUVWXYZ"

const inviteGenerateAttempts = 5

// PairingService establishes couples through single-use invite codes
type PairingService struct {
	DB *gorm.DB

	codeLength int
	expiryDays int
}

func NewPairingService(db *gorm.DB) *PairingService {
	return &PairingService{
		DB:         db,
		codeLength: envInt("INVITE_CODE_LENGTH", 8),
		expiryDays: envInt("INVITE_EXPIRY_DAYS", 7),
	}
}

func envInt(key string, fallback int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		log.Printf("⚠️  Invalid %s=%q, using default %d", key, raw, fallback)
		return fallback
	}
	return v
}

// CreateInvite creates a pending couple with a fresh single-use invite code.
// Fails with ErrInvalidOperation if the requester already belongs to a
// pending or active couple; an expired pending couple is dissolved inline
// and replaced.
func (s *PairingService) CreateInvite(requesterID string) (*models.Couple, error) {
	var existing models.Couple
	err := s.DB.Where(
		"(partner_a = ? OR partner_b = ?) AND status IN ('pending','active')",
		requesterID, requesterID,
	).First(&existing).Error
	switch {
	case err == nil:
		if existing.Status == models.CoupleStatusPending && existing.InviteExpired(time.Now()) {
			// stale invite — retire it and fall through to a fresh one
			if err := s.DB.Model(&existing).Updates(map[string]interface{}{
				"status":      models.CoupleStatusDissolved,
				"invite_code": nil,
			}).Error; err != nil {
				return nil, fmt.Errorf("%w: dissolve expired invite: %v", ErrUnavailable, err)
			}
		} else {
			return nil, fmt.Errorf("%w: user already has a %s couple", ErrInvalidOperation, existing.Status)
		}
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return nil, fmt.Errorf("%w: fetch couple: %v", ErrUnavailable, err)
	}

	expiresAt := time.Now().AddDate(0, 0, s.expiryDays)

	for attempt := 1; attempt <= inviteGenerateAttempts; attempt++ {
		code, err := s.generateInviteCode()
		if err != nil {
			return nil, fmt.Errorf("%w: generate code: %v", ErrUnavailable, err)
		}

		couple := models.Couple{
			ID:                  uuid.NewString(),
			PartnerA:            requesterID,
			Status:              models.CoupleStatusPending,
			InviteCode:          &code,
			InviteCodeExpiresAt: &expiresAt,
			PreferredCategories: DefaultCategories(),
		}

		err = s.DB.Create(&couple).Error
		if err == nil {
			log.Printf("💌 Invite created: couple=%s code=%s expires=%s", couple.ID, code, expiresAt.Format(time.RFC3339))
			return &couple, nil
		}
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			log.Printf("⚠️  Invite code collision on attempt %d, regenerating", attempt)
			continue
		}
		return nil, fmt.Errorf("%w: create couple: %v", ErrUnavailable, err)
	}

	return nil, fmt.Errorf("%w: invite code generation exhausted %d attempts", ErrResourceExhausted, inviteGenerateAttempts)
}

func (s *PairingService) generateInviteCode() (string, error) {
	alphabetLen := big.NewInt(int64(len(inviteCodeAlphabet)))
	code := make([]byte, s.codeLength)
	for i := range code {
		n, err := rand.Int(rand.Reader, alphabetLen)
		if err != nil {
			return "", err
		}
		code[i] = inviteCodeAlphabet[n.Int64()]
	}
	return string(code), nil
}

// RedeemInvite joins the redeemer to the pending couple holding the code.
// The join is a compare-and-swap conditioned on partner_b still being NULL,
// so two concurrent redeemers cannot both succeed — the loser gets
// ErrConflict and should be told the code is no longer valid.
//
// allowSelfJoin is a test/dev override of the self-join guard; the route
// layer only honors it when ALLOW_SELF_PAIR=true.
func (s *PairingService) RedeemInvite(redeemerID, code string, allowSelfJoin bool) (*models.Couple, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if len(code) != s.codeLength {
		return nil, fmt.Errorf("%w: malformed invite code", ErrInvalidOperation)
	}

	var couple models.Couple
	err := s.DB.Where("invite_code = ? AND status = ?", code, models.CoupleStatusPending).First(&couple).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: invite code", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: fetch invite: %v", ErrUnavailable, err)
	}
	if couple.InviteExpired(time.Now()) {
		return nil, fmt.Errorf("%w: invite code expired", ErrNotFound)
	}
	if couple.PartnerA == redeemerID && !allowSelfJoin {
		return nil, fmt.Errorf("%w: cannot redeem your own invite", ErrInvalidOperation)
	}

	now := time.Now()
	res := s.DB.Model(&models.Couple{}).
		Where("id = ? AND partner_b IS NULL AND status = ?", couple.ID, models.CoupleStatusPending).
		Updates(map[string]interface{}{
			"partner_b":   redeemerID,
			"status":      models.CoupleStatusActive,
			"invite_code": nil,
			"paired_at":   &now,
		})
	if res.Error != nil {
		return nil, fmt.Errorf("%w: redeem invite: %v", ErrUnavailable, res.Error)
	}
	if res.RowsAffected == 0 {
		// another redeemer won the race
		return nil, fmt.Errorf("%w: invite code is no longer valid", ErrConflict)
	}

	if err := s.provisionCoupleRecords(couple.ID); err != nil {
		return nil, err
	}

	if err := s.DB.First(&couple, "id = ?", couple.ID).Error; err != nil {
		return nil, fmt.Errorf("%w: reload couple: %v", ErrUnavailable, err)
	}
	log.Printf("💑 Couple paired: %s (%s + %s)", couple.ID, couple.PartnerA, redeemerID)
	return &couple, nil
}

// provisionCoupleRecords creates the zero-initialized stats and streak rows.
// Insert-if-absent: a duplicate key means a concurrent caller already
// provisioned them, which is fine.
func (s *PairingService) provisionCoupleRecords(coupleID string) error {
	stats := models.CoupleStats{ID: uuid.NewString(), CoupleID: coupleID}
	if err := s.DB.Create(&stats).Error; err != nil && !errors.Is(err, gorm.ErrDuplicatedKey) {
		return fmt.Errorf("%w: provision stats: %v", ErrUnavailable, err)
	}
	streak := models.StreakRecord{ID: uuid.NewString(), CoupleID: coupleID}
	if err := s.DB.Create(&streak).Error; err != nil && !errors.Is(err, gorm.ErrDuplicatedKey) {
		return fmt.Errorf("%w: provision streak: %v", ErrUnavailable, err)
	}
	return nil
}

// GetCoupleForUser returns the user's pending or active couple.
func (s *PairingService) GetCoupleForUser(userID string) (*models.Couple, error) {
	var couple models.Couple
	err := s.DB.Where(
		"(partner_a = ? OR partner_b = ?) AND status IN ('pending','active')",
		userID, userID,
	).First(&couple).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: couple", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: fetch couple: %v", ErrUnavailable, err)
	}
	return &couple, nil
}

// PartnerProfile returns the mirrored display data for the partner facing
// userID, served from the local pair_users snapshot — no cross-service call.
// Nil (without error) when the couple is still pending or the sync worker
// has not mirrored the partner yet.
func (s *PairingService) PartnerProfile(couple *models.Couple, userID string) (*models.PairUser, error) {
	partner := couple.OtherPartner(userID)
	if partner == nil {
		return nil, nil
	}
	var profile models.PairUser
	err := s.DB.Where("external_user_id = ?", *partner).First(&profile).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: fetch partner profile: %v", ErrUnavailable, err)
	}
	return &profile, nil
}

// DissolveCouple soft-dissolves the user's couple (kept for audit).
func (s *PairingService) DissolveCouple(userID string) error {
	couple, err := s.GetCoupleForUser(userID)
	if err != nil {
		return err
	}
	if err := s.DB.Model(couple).Updates(map[string]interface{}{
		"status":      models.CoupleStatusDissolved,
		"invite_code": nil,
	}).Error; err != nil {
		return fmt.Errorf("%w: dissolve couple: %v", ErrUnavailable, err)
	}
	log.Printf("💔 Couple dissolved: %s (by %s)", couple.ID, userID)
	return nil
}

// UpdatePreferredCategories replaces the couple's question-category tags.
// Tags are normalized to slugs; the set must stay non-empty.
func (s *PairingService) UpdatePreferredCategories(userID string, categories []string) (*models.Couple, error) {
	couple, err := s.GetCoupleForUser(userID)
	if err != nil {
		return nil, err
	}

	normalized := make([]string, 0, len(categories))
	seen := map[string]bool{}
	for _, c := range categories {
		tag := slug.Make(c)
		if tag == "" || seen[tag] {
			continue
		}
		seen[tag] = true
		normalized = append(normalized, tag)
	}
	if len(normalized) == 0 {
		return nil, fmt.Errorf("%w: preferred categories cannot be empty", ErrInvalidOperation)
	}

	if err := s.DB.Model(couple).Update("preferred_categories", normalized).Error; err != nil {
		return nil, fmt.Errorf("%w: update categories: %v", ErrUnavailable, err)
	}
	couple.PreferredCategories = normalized
	return couple, nil
}
