package services

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/zatekoja/reviewfunnel/internal/domain/entities"
	"github.com/zatekoja/reviewfunnel/internal/domain/providers"
)

var pendingMarker = []byte("pending")

// DispatchGuard lets a funnel session persist its feedback at most once.
type DispatchGuard struct {
	cache providers.CacheProvider
	ttl   time.Duration
}

func NewDispatchGuard(cache providers.CacheProvider, ttl time.Duration) *DispatchGuard {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &DispatchGuard{cache: cache, ttl: ttl}
}

func dispatchKey(sessionID string) string {
	return "funnel:dispatch:" + sessionID
}

// Acquire claims the session's one dispatch. When the session already
// dispatched, the stored record is returned instead. acquired=false with a nil
// record means another dispatch for the session is still in flight.
//
// A cache outage lets the dispatch through.
func (g *DispatchGuard) Acquire(ctx context.Context, sessionID string) (record *entities.Feedback, acquired bool, err error) {
	key := dispatchKey(sessionID)

	ok, err := g.cache.SetIfAbsent(ctx, key, pendingMarker, g.seconds())
	if err != nil {
		log.Warn().Err(err).Str("session_id", sessionID).Msg("dispatch guard unavailable, allowing submission")
		return nil, true, nil
	}
	if ok {
		return nil, true, nil
	}

	data, err := g.cache.Get(ctx, key)
	if errors.Is(err, providers.ErrCacheMiss) {
		// Expired between the two calls.
		return g.Acquire(ctx, sessionID)
	}
	if err != nil {
		log.Warn().Err(err).Str("session_id", sessionID).Msg("dispatch guard unavailable, allowing submission")
		return nil, true, nil
	}
	if string(data) == string(pendingMarker) {
		return nil, false, nil
	}

	var stored entities.Feedback
	if err := json.Unmarshal(data, &stored); err != nil {
		return nil, false, err
	}
	return &stored, false, nil
}

// Complete stores the record that the session dispatched.
func (g *DispatchGuard) Complete(ctx context.Context, sessionID string, record *entities.Feedback) error {
	return providers.SetJSON(ctx, g.cache, dispatchKey(sessionID), record, g.seconds())
}

// Dispatched reports whether the session already holds a stored record. A
// claim still in flight does not count.
func (g *DispatchGuard) Dispatched(ctx context.Context, sessionID string) (bool, error) {
	data, err := g.cache.Get(ctx, dispatchKey(sessionID))
	if errors.Is(err, providers.ErrCacheMiss) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return string(data) != string(pendingMarker), nil
}

// Release gives the claim back after a failed dispatch so the customer can retry.
func (g *DispatchGuard) Release(ctx context.Context, sessionID string) error {
	return g.cache.Delete(ctx, dispatchKey(sessionID))
}

func (g *DispatchGuard) seconds() int {
	return int(g.ttl / time.Second)
}
