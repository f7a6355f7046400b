package handlers

import (
	"context"
	"net/http"

	"github.com/zatekoja/reviewfunnel/internal/domain/funnel"
)

// LocationResolver resolves display data for a location.
type LocationResolver interface {
	Resolve(ctx context.Context, id string) funnel.Display
}

// LocationHandler exposes resolved location display data.
type LocationHandler struct {
	resolver LocationResolver
}

func NewLocationHandler(resolver LocationResolver) *LocationHandler {
	return &LocationHandler{resolver: resolver}
}

// GetLocation handles GET /api/locations/{id}
//
// Lookups never fail; an unknown or unreachable location comes back with
// placeholder data and resolved=false, which is not cached.
func (h *LocationHandler) GetLocation(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		respondWithError(w, http.StatusBadRequest, "location ID is required")
		return
	}

	display := h.resolver.Resolve(r.Context(), id)
	if !display.Resolved {
		w.Header().Set("Cache-Control", "no-store")
	}
	respondWithJSON(w, http.StatusOK, display)
}
