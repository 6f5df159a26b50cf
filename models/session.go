package models

import "time"

// GameSession statuses
const (
	SessionAwaitingFirst  = "awaiting_first"
	SessionAwaitingSecond = "awaiting_second"
	SessionCompleted      = "completed"
)

// GameSession is the one-per-day question unit scoped to a couple.
// The (couple_id, date) unique index is the idempotency guarantee: no matter
// how many clients race on getOrCreate, exactly one row exists per day.
// Rows are immutable once completed.
type GameSession struct {
	ID       string `gorm:"primaryKey;type:uuid" json:"id"`
	CoupleID string `gorm:"uniqueIndex:idx_sessions_couple_date;not null" json:"couple_id"`
	Date     string `gorm:"uniqueIndex:idx_sessions_couple_date;type:varchar(10);not null" json:"date"` // YYYY-MM-DD, couple's local day

	QuestionID string `gorm:"index;not null" json:"question_id"`

	// Answer slots — option index, nil = unanswered. Each slot is written
	// once via a conditional update (set WHERE slot IS NULL).
	AnswerA *int `json:"answer_a,omitempty"`
	AnswerB *int `json:"answer_b,omitempty"`

	// Tri-state: nil until both slots are filled
	IsMatch *bool `json:"is_match,omitempty"`

	Status      string     `gorm:"type:varchar(16);not null;default:'awaiting_first';check:status IN ('awaiting_first','awaiting_second','completed')" json:"status"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	Timestamps
}

// AnswerFor returns the stored answer slot for userID within the couple.
func (s *GameSession) AnswerFor(c *Couple, userID string) *int {
	if userID == c.PartnerA {
		return s.AnswerA
	}
	return s.AnswerB
}

// BothAnswered reports whether both slots are filled.
func (s *GameSession) BothAnswered() bool {
	return s.AnswerA != nil && s.AnswerB != nil
}
