package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/zatekoja/reviewfunnel/internal/domain/providers"
	"github.com/zatekoja/reviewfunnel/internal/infrastructure/observability"
)

// LocationsPath is the prefix of the cached location display route.
const LocationsPath = "/api/locations/"

const locationCacheRoute = "GET " + LocationsPath + "{id}"

// CacheMiddleware caches rendered location displays. Funnel endpoints carry
// per-customer state and are never cached.
type CacheMiddleware struct {
	cache      providers.CacheProvider
	metrics    *observability.Metrics
	ttlSeconds int
}

// cachedResponse is what is stored per location.
type cachedResponse struct {
	ContentType string          `json:"content_type"`
	Body        json.RawMessage `json:"body"`
}

func NewCacheMiddleware(cache providers.CacheProvider, metrics *observability.Metrics, locationTTLSeconds int) *CacheMiddleware {
	return &CacheMiddleware{cache: cache, metrics: metrics, ttlSeconds: locationTTLSeconds}
}

// MaxAge is the location TTL in seconds, reused for browser caching.
func (m *CacheMiddleware) MaxAge() int {
	if m == nil {
		return 0
	}
	return m.ttlSeconds
}

func locationCacheKey(locationID string) string {
	return "http:location:" + locationID
}

// cachedLocationID returns the location id of a cacheable request.
func cachedLocationID(r *http.Request) (string, bool) {
	if r.Method != http.MethodGet || r.URL.RawQuery != "" {
		return "", false
	}
	id, ok := strings.CutPrefix(r.URL.Path, LocationsPath)
	if !ok || id == "" || strings.Contains(id, "/") {
		return "", false
	}
	return id, true
}

// Middleware returns the cache middleware handler
func (m *CacheMiddleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := cachedLocationID(r)
		if !ok || m.cache == nil || m.ttlSeconds <= 0 {
			next.ServeHTTP(w, r)
			return
		}

		ctx := r.Context()
		logger := observability.LoggerFromContext(ctx).With().Str("location_id", id).Logger()
		key := locationCacheKey(id)

		var hit cachedResponse
		if err := providers.GetJSON(ctx, m.cache, key, &hit); err == nil && len(hit.Body) > 0 {
			logger.Debug().Msg("location display cache hit")
			observability.RecordCacheHit(ctx, m.metrics, locationCacheRoute)
			w.Header().Set("X-Cache", "HIT")
			w.Header().Set("Content-Type", hit.ContentType)
			w.WriteHeader(http.StatusOK)
			w.Write(hit.Body)
			return
		}

		observability.RecordCacheMiss(ctx, m.metrics, locationCacheRoute)
		w.Header().Set("X-Cache", "MISS")

		recorder := &responseRecorder{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(recorder, r)

		// Placeholders are marked no-store by the handler.
		if recorder.statusCode != http.StatusOK || recorder.body.Len() == 0 || noStore(w.Header()) {
			return
		}
		entry := cachedResponse{
			ContentType: w.Header().Get("Content-Type"),
			Body:        json.RawMessage(recorder.body.Bytes()),
		}
		if err := providers.SetJSON(ctx, m.cache, key, entry, m.ttlSeconds); err != nil {
			logger.Warn().Err(err).Msg("failed to cache location display")
		}
	})
}

// Invalidate drops the cached display of the given locations.
func (m *CacheMiddleware) Invalidate(ctx context.Context, locationIDs ...string) error {
	if m.cache == nil || len(locationIDs) == 0 {
		return nil
	}
	keys := make([]string, 0, len(locationIDs))
	for _, id := range locationIDs {
		keys = append(keys, locationCacheKey(id))
	}
	return m.cache.Delete(ctx, keys...)
}

// responseRecorder copies the body aside while writing through to the client.
type responseRecorder struct {
	http.ResponseWriter
	statusCode int
	body       bytes.Buffer
	written    bool
}

func (r *responseRecorder) WriteHeader(statusCode int) {
	if !r.written {
		r.statusCode = statusCode
		r.ResponseWriter.WriteHeader(statusCode)
		r.written = true
	}
}

func (r *responseRecorder) Write(data []byte) (int, error) {
	if !r.written {
		r.WriteHeader(http.StatusOK)
	}
	r.body.Write(data)
	return r.ResponseWriter.Write(data)
}
