package handlers

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/zatekoja/reviewfunnel/internal/application/services"
	"github.com/zatekoja/reviewfunnel/internal/domain/entities"
	"github.com/zatekoja/reviewfunnel/internal/domain/providers"
	"github.com/zatekoja/reviewfunnel/internal/infrastructure/observability"
)

const (
	suggestionRateLimit   = 5
	suggestionRateWindow  = time.Hour
	suggestionDedupWindow = 24 * time.Hour
)

// SuggestionGateway persists suggestions.
type SuggestionGateway interface {
	Submit(ctx context.Context, req services.SubmitRequest) (*entities.Feedback, error)
}

// SuggestionHandler accepts free-form suggestions that are not tied to a
// funnel session. A location is optional.
type SuggestionHandler struct {
	gateway SuggestionGateway
	cache   providers.CacheProvider
	local   *localRateLimiter
	deduper *localDeduper
}

// NewSuggestionHandler creates a new suggestion handler. gateway may be nil
// when no submission backend is configured; cache may be nil to keep rate
// limits in process.
func NewSuggestionHandler(gateway SuggestionGateway, cache providers.CacheProvider) *SuggestionHandler {
	return &SuggestionHandler{
		gateway: gateway,
		cache:   cache,
		local:   newLocalRateLimiter(),
		deduper: newLocalDeduper(),
	}
}

type suggestionRequest struct {
	LocationID string `json:"location_id"`
	Rating     int    `json:"rating"`
	Comment    string `json:"comment"`
	Name       string `json:"name"`
	Email      string `json:"email"`
	Phone      string `json:"phone"`
}

// SubmitSuggestion handles POST /api/suggestions
func (h *SuggestionHandler) SubmitSuggestion(w http.ResponseWriter, r *http.Request) {
	if h.gateway == nil {
		respondWithError(w, http.StatusServiceUnavailable, "submissions are not available")
		return
	}

	var payload suggestionRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request payload")
		return
	}

	ip := clientIP(r)
	key := "suggestion:rate:" + ip
	allowed, retryAfter := h.allowRequest(r.Context(), key)
	if !allowed {
		w.Header().Set("Retry-After", strconv.Itoa(int(retryAfter.Seconds())))
		respondWithError(w, http.StatusTooManyRequests, "rate limit exceeded")
		return
	}

	dupKey := "suggestion:dup:" + suggestionFingerprint(payload, ip)
	if h.isDuplicate(r.Context(), dupKey) {
		respondWithJSON(w, http.StatusAccepted, map[string]string{
			"status": "duplicate_ignored",
		})
		return
	}

	record, err := h.gateway.Submit(r.Context(), services.SubmitRequest{
		LocationID: payload.LocationID,
		Rating:     payload.Rating,
		Comment:    payload.Comment,
		Name:       payload.Name,
		Email:      payload.Email,
		Phone:      payload.Phone,
		Kind:       entities.FeedbackKindSuggestion,
	})
	if err != nil {
		h.forget(r.Context(), dupKey)
		observability.LoggerFromContext(r.Context()).Warn().Err(err).Msg("suggestion rejected")
		respondWithAppError(w, err)
		return
	}

	respondWithJSON(w, http.StatusCreated, map[string]interface{}{
		"status": "received",
		"id":     record.ID,
		"record": record,
	})
}

func (h *SuggestionHandler) allowRequest(ctx context.Context, key string) (bool, time.Duration) {
	if h.cache == nil {
		return h.local.allow(key, suggestionRateLimit, suggestionRateWindow)
	}

	state := rateLimitState{}
	_ = providers.GetJSON(ctx, h.cache, key, &state)

	if state.Count >= suggestionRateLimit {
		return false, suggestionRateWindow
	}

	state.Count++
	_ = providers.SetJSON(ctx, h.cache, key, state, int(suggestionRateWindow.Seconds()))
	return true, suggestionRateWindow
}

type rateLimitState struct {
	Count int `json:"count"`
}

func (h *SuggestionHandler) isDuplicate(ctx context.Context, key string) bool {
	if h.cache == nil {
		return h.deduper.seen(key, suggestionDedupWindow)
	}

	stored, err := h.cache.SetIfAbsent(ctx, key, []byte("1"), int(suggestionDedupWindow.Seconds()))
	if err != nil {
		return false
	}
	return !stored
}

// forget drops the dedup marker of a suggestion that was not persisted so the
// customer can correct and resend it.
func (h *SuggestionHandler) forget(ctx context.Context, key string) {
	if h.cache == nil {
		h.deduper.forget(key)
		return
	}
	_ = h.cache.Delete(ctx, key)
}

type localRateLimiter struct {
	mu     sync.Mutex
	states map[string]*localRateState
}

type localRateState struct {
	count   int
	resetAt time.Time
}

func newLocalRateLimiter() *localRateLimiter {
	return &localRateLimiter{
		states: make(map[string]*localRateState),
	}
}

func (l *localRateLimiter) allow(key string, limit int, window time.Duration) (bool, time.Duration) {
	now := time.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	state, ok := l.states[key]
	if !ok || now.After(state.resetAt) {
		state = &localRateState{count: 0, resetAt: now.Add(window)}
		l.states[key] = state
	}

	if state.count >= limit {
		retryAfter := time.Until(state.resetAt)
		if retryAfter < 0 {
			retryAfter = window
		}
		return false, retryAfter
	}

	state.count++
	return true, window
}

type localDeduper struct {
	mu      sync.Mutex
	entries map[string]time.Time
}

func newLocalDeduper() *localDeduper {
	return &localDeduper{
		entries: make(map[string]time.Time),
	}
}

func (d *localDeduper) seen(key string, window time.Duration) bool {
	now := time.Now()

	d.mu.Lock()
	defer d.mu.Unlock()

	if expiresAt, ok := d.entries[key]; ok && now.Before(expiresAt) {
		return true
	}

	d.entries[key] = now.Add(window)
	return false
}

func (d *localDeduper) forget(key string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.entries, key)
}

func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		parts := strings.Split(forwarded, ",")
		return strings.TrimSpace(parts[0])
	}
	if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
		return strings.TrimSpace(realIP)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil {
		return host
	}
	return r.RemoteAddr
}

func suggestionFingerprint(payload suggestionRequest, ip string) string {
	normalized := []string{
		strings.TrimSpace(payload.LocationID),
		strconv.Itoa(payload.Rating),
		normalizeText(payload.Comment),
		strings.ToLower(strings.TrimSpace(payload.Email)),
		ip,
	}

	hash := sha256.Sum256([]byte(strings.Join(normalized, "|")))
	return hex.EncodeToString(hash[:])
}

func normalizeText(value string) string {
	trimmed := strings.TrimSpace(strings.ToLower(value))
	if trimmed == "" {
		return ""
	}
	return strings.Join(strings.Fields(trimmed), " ")
}
