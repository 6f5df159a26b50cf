package models

// Question is a multiple-choice prompt from the content catalog. Options are
// immutable once a session references the question — match resolution relies
// on option indices staying stable.
type Question struct {
	ID       string   `gorm:"primaryKey;type:uuid" json:"id"`
	Text     string   `gorm:"uniqueIndex;not null" json:"text"`
	Options  []string `gorm:"serializer:json" json:"options"`
	Category string   `gorm:"index;not null" json:"category"` // slug, e.g. "getting-to-know-you"

	// Only for_pairs content is eligible for daily couple sessions
	ForPairs bool `gorm:"default:true;index" json:"for_pairs"`

	Timestamps
}
