package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/zatekoja/reviewfunnel/internal/domain/entities"
	"github.com/zatekoja/reviewfunnel/internal/domain/providers"
	"github.com/zatekoja/reviewfunnel/internal/domain/repositories"
)

const defaultLocationTTL = 5 * time.Minute

// CachedLocationAdapter is a read-through cache in front of any location source.
type CachedLocationAdapter struct {
	adapter repositories.LocationRepository
	cache   providers.CacheProvider
	ttl     int
}

// NewCachedLocationAdapter creates a new cached location adapter
func NewCachedLocationAdapter(adapter repositories.LocationRepository, cache providers.CacheProvider, ttl time.Duration) *CachedLocationAdapter {
	if ttl <= 0 {
		ttl = defaultLocationTTL
	}
	return &CachedLocationAdapter{
		adapter: adapter,
		cache:   cache,
		ttl:     int(ttl / time.Second),
	}
}

var _ repositories.LocationRepository = (*CachedLocationAdapter)(nil)

func locationCacheKey(id string) string {
	return fmt.Sprintf("location:%s", id)
}

// GetByID retrieves a location by ID with caching
func (a *CachedLocationAdapter) GetByID(ctx context.Context, id string) (*entities.Location, error) {
	if loc, ok := a.fromCache(ctx, id); ok {
		return loc, nil
	}

	loc, err := a.adapter.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	a.storeAsync([]*entities.Location{loc})
	return loc, nil
}

// GetByIDs serves what it can from cache and fetches the rest in one call.
func (a *CachedLocationAdapter) GetByIDs(ctx context.Context, ids []string) ([]*entities.Location, error) {
	if len(ids) == 0 {
		return []*entities.Location{}, nil
	}

	found := make(map[string]*entities.Location, len(ids))
	missing := make([]string, 0)
	for _, id := range ids {
		if loc, ok := a.fromCache(ctx, id); ok {
			found[id] = loc
			continue
		}
		missing = append(missing, id)
	}

	if len(missing) > 0 {
		fetched, err := a.adapter.GetByIDs(ctx, missing)
		if err != nil {
			return nil, err
		}
		for _, loc := range fetched {
			found[loc.ID] = loc
		}
		a.storeAsync(fetched)
	}

	out := make([]*entities.Location, 0, len(found))
	for _, id := range ids {
		if loc, ok := found[id]; ok {
			out = append(out, loc)
		}
	}
	return out, nil
}

// Invalidate drops cached entries for ids.
func (a *CachedLocationAdapter) Invalidate(ctx context.Context, ids ...string) error {
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = locationCacheKey(id)
	}
	return a.cache.Delete(ctx, keys...)
}

// Ping reports on the wrapped source when it supports it.
func (a *CachedLocationAdapter) Ping(ctx context.Context) error {
	if p, ok := a.adapter.(repositories.Pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}

func (a *CachedLocationAdapter) fromCache(ctx context.Context, id string) (*entities.Location, bool) {
	var loc entities.Location
	err := providers.GetJSON(ctx, a.cache, locationCacheKey(id), &loc)
	if err != nil {
		if !errors.Is(err, providers.ErrCacheMiss) {
			log.Warn().Err(err).Str("location_id", id).Msg("failed to read cached location")
		}
		return nil, false
	}
	return &loc, true
}

// storeAsync updates the cache off the request path.
func (a *CachedLocationAdapter) storeAsync(locations []*entities.Location) {
	if len(locations) == 0 {
		return
	}
	go func() {
		bgCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		for _, loc := range locations {
			if err := providers.SetJSON(bgCtx, a.cache, locationCacheKey(loc.ID), loc, a.ttl); err != nil {
				log.Warn().Err(err).Str("location_id", loc.ID).Msg("failed to cache location")
			}
		}
	}()
}
