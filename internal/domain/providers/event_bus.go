package providers

import (
	"context"

	"github.com/zatekoja/reviewfunnel/internal/domain/entities"
)

// EventBus defines the interface for publishing and subscribing to funnel events
type EventBus interface {
	// Publish publishes an event to all subscribers
	Publish(ctx context.Context, channel string, event *entities.FunnelEvent) error

	// Subscribe subscribes to events on a channel until ctx is done
	Subscribe(ctx context.Context, channel string) (<-chan *entities.FunnelEvent, error)

	// Close closes the event bus and all subscriptions
	Close() error
}

// EventChannelLocationUpdates carries location.updated events for cache invalidation
const EventChannelLocationUpdates = "funnel:locations:updated"

// EventChannelSessionPrefix is the prefix for per-session channels
const EventChannelSessionPrefix = "funnel:session:"

// GetSessionChannel returns the channel name for a funnel session
func GetSessionChannel(sessionID string) string {
	return EventChannelSessionPrefix + sessionID
}
