package entities

import "time"

// FeedbackKind distinguishes the two record kinds a customer can create.
type FeedbackKind string

const (
	FeedbackKindFeedback   FeedbackKind = "feedback"
	FeedbackKindSuggestion FeedbackKind = "suggestion"
)

// Valid reports whether k is a known kind.
func (k FeedbackKind) Valid() bool {
	return k == FeedbackKindFeedback || k == FeedbackKindSuggestion
}

// Feedback is a persisted rating or suggestion. It is created once on a
// successful submission and never mutated afterwards.
type Feedback struct {
	ID               string       `json:"id" db:"id"`
	LocationID       string       `json:"location_id,omitempty" db:"location_id"`
	Rating           int          `json:"rating" db:"rating"`
	Comment          string       `json:"comment" db:"comment"`
	Name             string       `json:"name,omitempty" db:"name"`
	Email            string       `json:"email,omitempty" db:"email"`
	Phone            string       `json:"phone,omitempty" db:"phone"`
	ContactRequested bool         `json:"contact_requested" db:"contact_requested"`
	Kind             FeedbackKind `json:"kind" db:"kind"`
	CreatedAt        time.Time    `json:"created_at" db:"created_at"`
}
