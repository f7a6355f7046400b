package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/zatekoja/reviewfunnel/internal/domain/entities"
	"github.com/zatekoja/reviewfunnel/internal/domain/providers"
	redisclient "github.com/zatekoja/reviewfunnel/internal/infrastructure/clients/redis"
)

const subscriberBuffer = 16

// ErrBusClosed is returned by Subscribe after Close.
var ErrBusClosed = errors.New("event bus closed")

// RedisEventBus fans funnel events out across API instances over Redis
// Pub/Sub. All channels share one connection: a channel is subscribed in
// Redis while at least one local subscriber listens on it.
type RedisEventBus struct {
	client *redisclient.Client

	mu          sync.RWMutex
	pubsub      *redis.PubSub
	subscribers map[string]map[chan *entities.FunnelEvent]struct{}
	closed      bool
	done        chan struct{}
}

func NewRedisEventBus(client *redisclient.Client) providers.EventBus {
	return &RedisEventBus{
		client:      client,
		subscribers: make(map[string]map[chan *entities.FunnelEvent]struct{}),
		done:        make(chan struct{}),
	}
}

// Publish publishes an event to every instance listening on channel.
func (b *RedisEventBus) Publish(ctx context.Context, channel string, event *entities.FunnelEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	receivers, err := b.client.Client().Publish(ctx, channel, data).Result()
	if err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	log.Debug().Str("channel", channel).Str("event_id", event.ID).Str("type", string(event.Type)).
		Int64("receivers", receivers).Msg("published funnel event")
	return nil
}

// Subscribe returns a channel of events published on channel. It is closed
// when ctx is done or the bus is closed. Events published before the Redis
// subscription is acknowledged may be missed.
func (b *RedisEventBus) Subscribe(ctx context.Context, channel string) (<-chan *entities.FunnelEvent, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, ErrBusClosed
	}
	if b.pubsub == nil {
		b.pubsub = b.client.Client().Subscribe(context.Background())
		go b.receive(b.pubsub)
	}

	local := b.subscribers[channel]
	if len(local) == 0 {
		if err := b.pubsub.Subscribe(ctx, channel); err != nil {
			return nil, fmt.Errorf("failed to subscribe to %s: %w", channel, err)
		}
		local = make(map[chan *entities.FunnelEvent]struct{})
		b.subscribers[channel] = local
	}

	eventChan := make(chan *entities.FunnelEvent, subscriberBuffer)
	local[eventChan] = struct{}{}
	log.Debug().Str("channel", channel).Int("subscribers", len(local)).Msg("subscribed to funnel events")

	go func() {
		<-ctx.Done()
		b.removeSubscriber(channel, eventChan)
	}()

	return eventChan, nil
}

func (b *RedisEventBus) receive(pubsub *redis.PubSub) {
	defer close(b.done)

	for msg := range pubsub.Channel() {
		var event entities.FunnelEvent
		if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
			log.Warn().Err(err).Str("channel", msg.Channel).Msg("dropping malformed funnel event")
			continue
		}

		b.mu.RLock()
		for subscriber := range b.subscribers[msg.Channel] {
			select {
			case subscriber <- &event:
			default:
				log.Warn().Str("channel", msg.Channel).Str("event_id", event.ID).Msg("subscriber channel full, skipping event")
			}
		}
		b.mu.RUnlock()
	}

	// The connection is gone; nobody will be fed again.
	b.mu.Lock()
	for channel, local := range b.subscribers {
		for subscriber := range local {
			close(subscriber)
		}
		delete(b.subscribers, channel)
	}
	b.mu.Unlock()
}

func (b *RedisEventBus) removeSubscriber(channel string, eventChan chan *entities.FunnelEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()

	local, ok := b.subscribers[channel]
	if !ok {
		return
	}
	if _, ok := local[eventChan]; !ok {
		return
	}
	delete(local, eventChan)
	close(eventChan)

	if len(local) == 0 {
		delete(b.subscribers, channel)
		if b.pubsub != nil && !b.closed {
			if err := b.pubsub.Unsubscribe(context.Background(), channel); err != nil {
				log.Warn().Err(err).Str("channel", channel).Msg("failed to unsubscribe")
			}
		}
	}
}

// Close drops the shared subscription and closes every subscriber channel.
func (b *RedisEventBus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	pubsub := b.pubsub
	b.mu.Unlock()

	if pubsub == nil {
		return nil
	}
	err := pubsub.Close()
	<-b.done
	if err != nil {
		return fmt.Errorf("failed to close event bus: %w", err)
	}

	log.Info().Msg("event bus closed")
	return nil
}
