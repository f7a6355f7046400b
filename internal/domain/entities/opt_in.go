package entities

import "time"

// OptIn is a customer's enrollment in a location's rewards or newsletter program.
type OptIn struct {
	ID         string    `json:"id" db:"id"`
	LocationID string    `json:"location_id" db:"location_id"`
	Name       string    `json:"name" db:"name"`
	Email      string    `json:"email" db:"email"`
	Phone      string    `json:"phone" db:"phone"`
	Rating     int       `json:"rating,omitempty" db:"rating"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}
