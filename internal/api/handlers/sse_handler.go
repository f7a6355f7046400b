package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/zatekoja/reviewfunnel/internal/domain/entities"
	"github.com/zatekoja/reviewfunnel/internal/infrastructure/observability"
	apperrors "github.com/zatekoja/reviewfunnel/pkg/errors"
)

const defaultHeartbeat = 30 * time.Second

// SessionEvents streams the outcomes of a session's immediate submissions.
type SessionEvents interface {
	Events(ctx context.Context, sessionID string) (<-chan *entities.FunnelEvent, error)
}

// SSEHandler handles Server-Sent Events for funnel session outcomes
type SSEHandler struct {
	source    SessionEvents
	heartbeat time.Duration
	clients   map[string]int // session -> open streams
	mu        sync.RWMutex
}

// NewSSEHandler creates a new SSE handler
func NewSSEHandler(source SessionEvents) *SSEHandler {
	return &SSEHandler{
		source:    source,
		heartbeat: defaultHeartbeat,
		clients:   make(map[string]int),
	}
}

// WithHeartbeat overrides the keep-alive interval.
func (h *SSEHandler) WithHeartbeat(d time.Duration) *SSEHandler {
	if d > 0 {
		h.heartbeat = d
	}
	return h
}

// StreamSessionEvents handles SSE connections for one funnel session
// GET /api/funnel/sessions/{id}/events
func (h *SSEHandler) StreamSessionEvents(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")
	if sessionID == "" {
		respondWithError(w, http.StatusBadRequest, "session ID is required")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		respondWithError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	ctx := r.Context()
	logger := observability.LoggerFromContext(ctx).With().Str("session_id", sessionID).Logger()

	eventChan, err := h.source.Events(ctx, sessionID)
	if err != nil {
		logger.Error().Err(err).Msg("failed to subscribe to session events")
		respondWithJSON(w, apperrors.HTTPStatus(err), map[string]string{"error": apperrors.PublicMessage(err)})
		return
	}

	// Set headers for SSE
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	h.registerClient(sessionID)
	defer h.unregisterClient(sessionID)

	h.sendEvent(w, "connected", map[string]interface{}{
		"session_id": sessionID,
		"timestamp":  time.Now(),
	})
	flusher.Flush()

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Debug().Msg("client disconnected from session stream")
			return
		case <-ticker.C:
			h.sendEvent(w, "heartbeat", map[string]interface{}{
				"timestamp": time.Now(),
			})
			flusher.Flush()
		case event, ok := <-eventChan:
			if !ok {
				return
			}
			if event == nil {
				continue
			}
			h.sendEvent(w, string(event.Type), event)
			flusher.Flush()
		}
	}
}

// ClientCount returns the number of open streams for a session.
func (h *SSEHandler) ClientCount(sessionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.clients[sessionID]
}

func (h *SSEHandler) registerClient(sessionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[sessionID]++
	observability.GetLogger().Debug().Str("session_id", sessionID).Int("total", h.clients[sessionID]).Msg("stream client registered")
}

func (h *SSEHandler) unregisterClient(sessionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[sessionID]--
	if h.clients[sessionID] <= 0 {
		delete(h.clients, sessionID)
	}
}

// sendEvent sends an SSE event to the client
func (h *SSEHandler) sendEvent(w http.ResponseWriter, eventType string, data interface{}) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		observability.GetLogger().Error().Err(err).Str("event", eventType).Msg("failed to marshal event data")
		return
	}

	fmt.Fprintf(w, "event: %s\n", eventType)
	fmt.Fprintf(w, "data: %s\n\n", jsonData)
}
