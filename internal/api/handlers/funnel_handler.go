package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/zatekoja/reviewfunnel/internal/application/services"
	"github.com/zatekoja/reviewfunnel/internal/infrastructure/observability"
	apperrors "github.com/zatekoja/reviewfunnel/pkg/errors"
)

const (
	// StateHeader carries the navigation token in both directions.
	StateHeader = "X-Funnel-State"

	// ClientCookie identifies the browser for the durable channel.
	ClientCookie = "rf_client"

	clientCookieMaxAge = 365 * 24 * time.Hour
	maxFunnelBody      = 64 << 10
)

// FunnelService defines the funnel operations used by the handler.
type FunnelService interface {
	Open(ctx context.Context, ch services.Channels) (*services.View, error)
	Rate(ctx context.Context, ch services.Channels, rating int) (*services.View, error)
	Comment(ctx context.Context, ch services.Channels, comment string) (*services.View, error)
	SubmitFeedback(ctx context.Context, ch services.Channels, in services.FeedbackInput) (*services.View, error)
	OptIn(ctx context.Context, ch services.Channels, in services.OptInInput) (*services.View, error)
	Back(ctx context.Context, ch services.Channels) (*services.View, error)
}

// FunnelHandler serves the funnel screens as JSON.
type FunnelHandler struct {
	service      FunnelService
	secureCookie bool
}

// NewFunnelHandler creates a new funnel handler. secureCookie marks the
// client cookie Secure, which browsers require outside localhost.
func NewFunnelHandler(service FunnelService, secureCookie bool) *FunnelHandler {
	return &FunnelHandler{service: service, secureCookie: secureCookie}
}

type funnelRequest struct {
	State            string `json:"state"`
	Rating           int    `json:"rating"`
	Comment          string `json:"comment"`
	Name             string `json:"name"`
	Email            string `json:"email"`
	Phone            string `json:"phone"`
	ContactRequested bool   `json:"contact_me"`
}

type funnelResponse struct {
	*services.View
	Error     string `json:"error,omitempty"`
	ErrorType string `json:"error_type,omitempty"`
}

// Open handles GET /l/{locationId} and GET /api/funnel
func (h *FunnelHandler) Open(w http.ResponseWriter, r *http.Request) {
	ch := h.channels(w, r, "")
	view, err := h.service.Open(r.Context(), ch)
	h.respond(w, r, view, err)
}

// Rate handles POST /api/funnel/rating
func (h *FunnelHandler) Rate(w http.ResponseWriter, r *http.Request) {
	payload, ok := decodeFunnelRequest(w, r)
	if !ok {
		return
	}
	view, err := h.service.Rate(r.Context(), h.channels(w, r, payload.State), payload.Rating)
	h.respond(w, r, view, err)
}

// Comment handles POST /api/funnel/comment
func (h *FunnelHandler) Comment(w http.ResponseWriter, r *http.Request) {
	payload, ok := decodeFunnelRequest(w, r)
	if !ok {
		return
	}
	view, err := h.service.Comment(r.Context(), h.channels(w, r, payload.State), payload.Comment)
	h.respond(w, r, view, err)
}

// SubmitFeedback handles POST /api/funnel/feedback
func (h *FunnelHandler) SubmitFeedback(w http.ResponseWriter, r *http.Request) {
	payload, ok := decodeFunnelRequest(w, r)
	if !ok {
		return
	}
	view, err := h.service.SubmitFeedback(r.Context(), h.channels(w, r, payload.State), services.FeedbackInput{
		Comment:          payload.Comment,
		Name:             payload.Name,
		Email:            payload.Email,
		Phone:            payload.Phone,
		ContactRequested: payload.ContactRequested,
	})
	h.respond(w, r, view, err)
}

// OptIn handles POST /api/funnel/opt-in
func (h *FunnelHandler) OptIn(w http.ResponseWriter, r *http.Request) {
	payload, ok := decodeFunnelRequest(w, r)
	if !ok {
		return
	}
	view, err := h.service.OptIn(r.Context(), h.channels(w, r, payload.State), services.OptInInput{
		Name:  payload.Name,
		Email: payload.Email,
		Phone: payload.Phone,
	})
	h.respond(w, r, view, err)
}

// Back handles POST /api/funnel/back
func (h *FunnelHandler) Back(w http.ResponseWriter, r *http.Request) {
	payload, ok := decodeFunnelRequest(w, r)
	if !ok {
		return
	}
	view, err := h.service.Back(r.Context(), h.channels(w, r, payload.State))
	h.respond(w, r, view, err)
}

// decodeFunnelRequest accepts an empty body.
func decodeFunnelRequest(w http.ResponseWriter, r *http.Request) (funnelRequest, bool) {
	var payload funnelRequest
	if r.Body == nil {
		return payload, true
	}
	err := json.NewDecoder(io.LimitReader(r.Body, maxFunnelBody)).Decode(&payload)
	if err != nil && !errors.Is(err, io.EOF) {
		respondWithError(w, http.StatusBadRequest, "invalid request payload")
		return payload, false
	}
	return payload, true
}

// channels collects the three state channels. The header token wins over
// the body token.
func (h *FunnelHandler) channels(w http.ResponseWriter, r *http.Request, bodyToken string) services.Channels {
	token := strings.TrimSpace(r.Header.Get(StateHeader))
	if token == "" {
		token = strings.TrimSpace(bodyToken)
	}
	return services.Channels{
		Token:          token,
		Query:          r.URL.Query(),
		PathLocationID: r.PathValue("locationId"),
		ClientID:       h.clientID(w, r),
	}
}

func (h *FunnelHandler) clientID(w http.ResponseWriter, r *http.Request) string {
	if c, err := r.Cookie(ClientCookie); err == nil {
		if id := strings.TrimSpace(c.Value); id != "" {
			return id
		}
	}
	id := uuid.New().String()
	http.SetCookie(w, &http.Cookie{
		Name:     ClientCookie,
		Value:    id,
		Path:     "/",
		MaxAge:   int(clientCookieMaxAge.Seconds()),
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})
	return id
}

// respond writes the view. Failures keep the caller's state in the body so
// the form can be shown again with what the customer typed.
func (h *FunnelHandler) respond(w http.ResponseWriter, r *http.Request, view *services.View, err error) {
	w.Header().Set("Cache-Control", "no-store")
	if view != nil && view.Token != "" {
		w.Header().Set(StateHeader, view.Token)
	}

	if err == nil {
		respondWithJSON(w, http.StatusOK, funnelResponse{View: view})
		return
	}

	status := apperrors.HTTPStatus(err)
	logger := observability.LoggerFromContext(r.Context())
	if status >= http.StatusInternalServerError {
		logger.Error().Err(err).Str("path", r.URL.Path).Msg("funnel request failed")
	} else {
		logger.Info().Err(err).Str("path", r.URL.Path).Msg("funnel request rejected")
	}

	if view == nil {
		respondWithAppError(w, err)
		return
	}
	respondWithJSON(w, status, funnelResponse{
		View:      view,
		Error:     apperrors.PublicMessage(err),
		ErrorType: string(apperrors.TypeOf(err)),
	})
}
