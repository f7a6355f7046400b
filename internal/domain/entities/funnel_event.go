package entities

import "time"

// FunnelEventType identifies what happened to a session's immediate submission.
type FunnelEventType string

const (
	FunnelEventSubmitted FunnelEventType = "feedback.submitted"
	FunnelEventFailed    FunnelEventType = "feedback.failed"

	// FunnelEventLocationUpdated is published when a location's display data changes.
	FunnelEventLocationUpdated FunnelEventType = "location.updated"
)

// FunnelEvent is published when a debounced submission resolves so the browser
// can learn the outcome after it has already been redirected or moved on.
type FunnelEvent struct {
	ID         string          `json:"id"`
	SessionID  string          `json:"session_id,omitempty"`
	LocationID string          `json:"location_id,omitempty"`
	Type       FunnelEventType `json:"type"`
	Record     *Feedback       `json:"record,omitempty"`
	Error      string          `json:"error,omitempty"`
	Timestamp  time.Time       `json:"timestamp"`
}
