package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/zatekoja/reviewfunnel/internal/domain/entities"
	"github.com/zatekoja/reviewfunnel/internal/domain/providers"
	"github.com/zatekoja/reviewfunnel/internal/infrastructure/observability"
)

// LocationInvalidator drops cached copies of locations.
type LocationInvalidator interface {
	Invalidate(ctx context.Context, ids ...string) error
}

// CacheInvalidationService drops cached location data when a location.updated
// event arrives, so edits made by the seed job show up before the TTL expires.
type CacheInvalidationService struct {
	eventBus     providers.EventBus
	invalidators []LocationInvalidator
	ctx          context.Context
	cancel       context.CancelFunc
	done         chan struct{}
	started      bool
}

// NewCacheInvalidationService creates a new cache invalidation service
func NewCacheInvalidationService(eventBus providers.EventBus, invalidators ...LocationInvalidator) *CacheInvalidationService {
	ctx, cancel := context.WithCancel(context.Background())
	return &CacheInvalidationService{
		eventBus:     eventBus,
		invalidators: invalidators,
		ctx:          ctx,
		cancel:       cancel,
		done:         make(chan struct{}),
	}
}

// Start begins listening for events and invalidating cache
func (s *CacheInvalidationService) Start() error {
	eventChan, err := s.eventBus.Subscribe(s.ctx, providers.EventChannelLocationUpdates)
	if err != nil {
		return fmt.Errorf("failed to subscribe to location updates: %w", err)
	}

	s.started = true
	go s.processEvents(eventChan)
	observability.GetLogger().Info().Msg("cache invalidation service started")
	return nil
}

// Stop stops the cache invalidation service and waits for it to exit.
func (s *CacheInvalidationService) Stop() {
	s.cancel()
	if s.started {
		<-s.done
	}
	observability.GetLogger().Info().Msg("cache invalidation service stopped")
}

func (s *CacheInvalidationService) processEvents(eventChan <-chan *entities.FunnelEvent) {
	defer close(s.done)
	for {
		select {
		case <-s.ctx.Done():
			return
		case event, ok := <-eventChan:
			if !ok {
				return
			}
			if event == nil || event.Type != entities.FunnelEventLocationUpdated || event.LocationID == "" {
				continue
			}
			s.handleEvent(event)
		}
	}
}

func (s *CacheInvalidationService) handleEvent(event *entities.FunnelEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	logger := observability.GetLogger().With().Str("location_id", event.LocationID).Logger()
	if err := s.Invalidate(ctx, event.LocationID); err != nil {
		logger.Warn().Err(err).Msg("failed to invalidate location cache")
		return
	}
	logger.Debug().Msg("invalidated location cache")
}

// Invalidate drops the given locations from every registered cache.
func (s *CacheInvalidationService) Invalidate(ctx context.Context, ids ...string) error {
	var errs []error
	for _, inv := range s.invalidators {
		if err := inv.Invalidate(ctx, ids...); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// PublishLocationUpdates announces changed locations to every running
// service instance.
func PublishLocationUpdates(ctx context.Context, bus providers.EventBus, ids ...string) error {
	for _, id := range ids {
		event := &entities.FunnelEvent{
			ID:         uuid.New().String(),
			LocationID: id,
			Type:       entities.FunnelEventLocationUpdated,
			Timestamp:  time.Now().UTC(),
		}
		if err := bus.Publish(ctx, providers.EventChannelLocationUpdates, event); err != nil {
			return fmt.Errorf("failed to publish update for %s: %w", id, err)
		}
	}
	return nil
}
