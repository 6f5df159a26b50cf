package models

import (
	"time"
)

// Couple lifecycle statuses
const (
	CoupleStatusPending   = "pending"
	CoupleStatusActive    = "active"
	CoupleStatusDissolved = "dissolved"
)

// Couple is the paired-identity aggregate. PartnerB stays nil until an
// invite is redeemed; the invite code is cleared on redemption (single-use).
// Couples are never hard-deleted — dissolution is a soft status for audit.
type Couple struct {
	ID       string  `gorm:"primaryKey;type:uuid" json:"id"`
	PartnerA string  `gorm:"index;not null" json:"partner_a"`
	PartnerB *string `gorm:"index" json:"partner_b,omitempty"`

	Status string `gorm:"type:varchar(16);not null;default:'pending';check:status IN ('pending','active','dissolved')" json:"status"`

	// Invite — present only while pending
	InviteCode          *string    `gorm:"uniqueIndex" json:"invite_code,omitempty"`
	InviteCodeExpiresAt *time.Time `json:"invite_code_expires_at,omitempty"`
	PairedAt            *time.Time `json:"paired_at,omitempty"`

	// Question-category tags used when picking the daily question
	PreferredCategories []string `gorm:"serializer:json" json:"preferred_categories"`

	Timestamps
}

// OtherPartner returns the partner facing userID, or nil if the couple is
// still pending or userID is not a member.
func (c *Couple) OtherPartner(userID string) *string {
	if c.PartnerB == nil {
		return nil
	}
	switch userID {
	case c.PartnerA:
		return c.PartnerB
	case *c.PartnerB:
		partnerA := c.PartnerA
		return &partnerA
	}
	return nil
}

// HasMember reports whether userID is one of the couple's partners.
func (c *Couple) HasMember(userID string) bool {
	if c.PartnerA == userID {
		return true
	}
	return c.PartnerB != nil && *c.PartnerB == userID
}

// InviteExpired reports whether the pending invite is past its deadline.
func (c *Couple) InviteExpired(now time.Time) bool {
	return c.InviteCodeExpiresAt != nil && !now.Before(*c.InviteCodeExpiresAt)
}
