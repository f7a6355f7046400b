package routes

import (
	"net/http"

	"github.com/zatekoja/reviewfunnel/internal/api/handlers"
	"github.com/zatekoja/reviewfunnel/internal/api/middleware"
	"github.com/zatekoja/reviewfunnel/internal/infrastructure/observability"
)

// Router holds all route handlers
type Router struct {
	mux *http.ServeMux

	funnelHandler     *handlers.FunnelHandler
	sseHandler        *handlers.SSEHandler
	locationHandler   *handlers.LocationHandler
	suggestionHandler *handlers.SuggestionHandler
	healthHandler     *handlers.HealthHandler

	cacheMiddleware *middleware.CacheMiddleware
	allowedOrigins  []string
	metrics         *observability.Metrics
}

// NewRouter creates a new router
func NewRouter(
	funnelHandler *handlers.FunnelHandler,
	sseHandler *handlers.SSEHandler,
	locationHandler *handlers.LocationHandler,
	suggestionHandler *handlers.SuggestionHandler,
	healthHandler *handlers.HealthHandler,
	cacheMiddleware *middleware.CacheMiddleware,
	allowedOrigins []string,
	metrics *observability.Metrics,
) *Router {
	return &Router{
		mux:               http.NewServeMux(),
		funnelHandler:     funnelHandler,
		sseHandler:        sseHandler,
		locationHandler:   locationHandler,
		suggestionHandler: suggestionHandler,
		healthHandler:     healthHandler,
		cacheMiddleware:   cacheMiddleware,
		allowedOrigins:    allowedOrigins,
		metrics:           metrics,
	}
}

// SetupRoutes configures all application routes
func (r *Router) SetupRoutes() http.Handler {
	// Health checks
	r.mux.HandleFunc("GET /health", r.healthHandler.Live)
	r.mux.HandleFunc("GET /ready", r.healthHandler.Ready)

	// Funnel screens
	r.mux.HandleFunc("GET /l/{locationId}", r.funnelHandler.Open)
	r.mux.HandleFunc("GET /api/funnel", r.funnelHandler.Open)
	r.mux.HandleFunc("POST /api/funnel/rating", r.funnelHandler.Rate)
	r.mux.HandleFunc("POST /api/funnel/comment", r.funnelHandler.Comment)
	r.mux.HandleFunc("POST /api/funnel/feedback", r.funnelHandler.SubmitFeedback)
	r.mux.HandleFunc("POST /api/funnel/opt-in", r.funnelHandler.OptIn)
	r.mux.HandleFunc("POST /api/funnel/back", r.funnelHandler.Back)

	// Immediate submission outcomes
	r.mux.HandleFunc("GET /api/funnel/sessions/{id}/events", r.sseHandler.StreamSessionEvents)

	r.mux.HandleFunc("GET /api/locations/{id}", r.locationHandler.GetLocation)

	r.mux.HandleFunc("POST /api/suggestions", r.suggestionHandler.SubmitSuggestion)

	// Apply middleware in reverse order (last middleware wraps first)
	var handler http.Handler = r.mux
	handler = middleware.LoggingMiddleware(handler)

	if r.cacheMiddleware != nil {
		handler = r.cacheMiddleware.Middleware(handler)
	}

	handler = middleware.ObservabilityMiddleware(r.metrics)(handler)
	handler = middleware.RequestIDMiddleware(handler)
	handler = middleware.ResponseOptimization(r.cacheMiddleware.MaxAge())(handler)

	// CORS wraps everything so headers are set even on cache HITs
	handler = middleware.CORSMiddleware(r.allowedOrigins)(handler)

	return handler
}
