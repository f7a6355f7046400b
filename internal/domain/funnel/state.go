// Package funnel holds the routing rules of the review funnel: the state a
// customer carries between screens, how that state is merged from the
// channels that carry it, where a rating sends the customer, and the stage
// machine that governs which screen may follow which.
package funnel

import (
	"github.com/zatekoja/reviewfunnel/internal/domain/entities"
)

// Rating bounds.
const (
	MinRating = 1
	MaxRating = 5
)

// Placeholder names shown when a location cannot be displayed.
const (
	PlaceholderNoLocation = "Your Business"
	PlaceholderUnresolved = "Business"
)

// ValidRating reports whether r is a usable star rating.
func ValidRating(r int) bool {
	return r >= MinRating && r <= MaxRating
}

// Display is the resolved presentation data for one location.
type Display struct {
	LocationID      string                        `json:"location_id,omitempty"`
	Name            string                        `json:"name"`
	LogoURL         string                        `json:"logo_url,omitempty"`
	ReviewPlatforms []entities.ReviewPlatformLink `json:"review_platforms"`

	// Resolved is false for placeholders so that a later screen tries again.
	Resolved bool `json:"resolved"`
}

// HasPlatforms reports whether at least one public review link is configured.
func (d *Display) HasPlatforms() bool {
	return d != nil && len(d.ReviewPlatforms) > 0
}

// For reports whether d was resolved for locationID and can be reused.
func (d *Display) For(locationID string) bool {
	return d != nil && d.Resolved && locationID != "" && d.LocationID == locationID
}

// State is the funnel state threaded across screens. It is passed by value.
type State struct {
	SessionID  string   `json:"session_id"`
	Rating     int      `json:"rating,omitempty"`
	Comment    string   `json:"comment,omitempty"`
	LocationID string   `json:"location_id,omitempty"`
	Display    *Display `json:"display,omitempty"`
}

// Rated reports whether the state holds a usable rating.
func (s State) Rated() bool {
	return ValidRating(s.Rating)
}

// Platforms returns the review links of the carried display, if any.
func (s State) Platforms() []entities.ReviewPlatformLink {
	if s.Display == nil {
		return nil
	}
	return s.Display.ReviewPlatforms
}

// Normalize clears a rating outside 1..5 and drops display data that belongs
// to a different location.
func (s State) Normalize() State {
	if !ValidRating(s.Rating) {
		s.Rating = 0
	}
	if s.Display != nil && s.Display.LocationID != "" && s.Display.LocationID != s.LocationID {
		s.Display = nil
	}
	return s
}
