// Package reviewapi is the HTTP client for the remote review API that owns
// locations, feedback records and opt-ins.
package reviewapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"
	apperrors "github.com/zatekoja/reviewfunnel/pkg/errors"
)

type Client interface {
	GetLocation(ctx context.Context, id string) (*Location, error)
	SubmitFeedback(ctx context.Context, req FeedbackRequest) (*FeedbackRecord, error)
	SubmitOptIn(ctx context.Context, req OptInRequest) (bool, error)
	Health(ctx context.Context) error
}

type Options struct {
	Token           string
	Timeout         time.Duration
	BreakerFailures int
	BreakerCooldown time.Duration
	HTTPClient      *http.Client
}

type HTTPClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker
}

type ReviewPlatform struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

type Address struct {
	Street  string `json:"street"`
	City    string `json:"city"`
	State   string `json:"state"`
	ZipCode string `json:"zipCode"`
	Country string `json:"country"`
}

type Location struct {
	ID              string           `json:"id"`
	Name            string           `json:"name"`
	LogoURL         string           `json:"logoUrl,omitempty"`
	ReviewPlatforms []ReviewPlatform `json:"reviewPlatforms"`
	Address         *Address         `json:"address,omitempty"`
}

type FeedbackRequest struct {
	LocationID string `json:"locationId,omitempty"`
	Rating     int    `json:"rating,omitempty"`
	Comment    string `json:"comment"`
	Name       string `json:"name,omitempty"`
	Email      string `json:"email,omitempty"`
	Phone      string `json:"phone,omitempty"`
	ContactMe  bool   `json:"contactMe,omitempty"`
	Kind       string `json:"kind"`
}

type FeedbackRecord struct {
	ID         string    `json:"id"`
	LocationID string    `json:"locationId,omitempty"`
	Rating     int       `json:"rating"`
	Comment    string    `json:"comment"`
	Name       string    `json:"name,omitempty"`
	Email      string    `json:"email,omitempty"`
	Phone      string    `json:"phone,omitempty"`
	ContactMe  bool      `json:"contactMe,omitempty"`
	Type       string    `json:"type"`
	Kind       string    `json:"kind,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
}

type OptInRequest struct {
	LocationID string `json:"locationId"`
	Name       string `json:"name"`
	Email      string `json:"email"`
	Phone      string `json:"phone"`
	Rating     int    `json:"rating,omitempty"`
}

type optInResponse struct {
	OK      *bool `json:"ok"`
	Success *bool `json:"success"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func NewClient(baseURL string, opts Options) *HTTPClient {
	if opts.Timeout <= 0 {
		opts.Timeout = 8 * time.Second
	}
	if opts.BreakerFailures <= 0 {
		opts.BreakerFailures = 5
	}
	if opts.BreakerCooldown <= 0 {
		opts.BreakerCooldown = 30 * time.Second
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: opts.Timeout}
	}

	failures := uint32(opts.BreakerFailures)
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "review-api",
		MaxRequests: 1,
		Timeout:     opts.BreakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state changed")
		},
	})

	return &HTTPClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      opts.Token,
		httpClient: httpClient,
		breaker:    breaker,
	}
}

func (c *HTTPClient) GetLocation(ctx context.Context, id string) (*Location, error) {
	if strings.TrimSpace(id) == "" {
		return nil, apperrors.NewValidationError("location id is required")
	}
	endpoint := fmt.Sprintf("%s/locations/%s", c.baseURL, url.PathEscape(id))
	out := &Location{}
	if err := c.doJSON(ctx, http.MethodGet, endpoint, nil, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *HTTPClient) SubmitFeedback(ctx context.Context, req FeedbackRequest) (*FeedbackRecord, error) {
	endpoint := fmt.Sprintf("%s/feedback", c.baseURL)
	out := &FeedbackRecord{}
	if err := c.doJSON(ctx, http.MethodPost, endpoint, req, out); err != nil {
		return nil, err
	}
	if out.Type == "" {
		out.Type = out.Kind
	}
	return out, nil
}

func (c *HTTPClient) SubmitOptIn(ctx context.Context, req OptInRequest) (bool, error) {
	endpoint := fmt.Sprintf("%s/opt-ins", c.baseURL)
	out := &optInResponse{}
	if err := c.doJSON(ctx, http.MethodPost, endpoint, req, out); err != nil {
		return false, err
	}
	switch {
	case out.OK != nil:
		return *out.OK, nil
	case out.Success != nil:
		return *out.Success, nil
	default:
		// A 2xx without a body flag is an accepted enrollment.
		return true, nil
	}
}

func (c *HTTPClient) Health(ctx context.Context) error {
	return c.doJSON(ctx, http.MethodGet, fmt.Sprintf("%s/health", c.baseURL), nil, nil)
}

// doJSON runs one request through the circuit breaker. Client errors (4xx)
// are returned to the caller without counting as breaker failures.
func (c *HTTPClient) doJSON(ctx context.Context, method, endpoint string, in, out interface{}) error {
	var clientErr error

	_, err := c.breaker.Execute(func() (interface{}, error) {
		status, body, err := c.send(ctx, method, endpoint, in)
		if err != nil {
			return nil, err
		}
		if status >= 400 && status < 500 {
			clientErr = statusError(status, body)
			return nil, nil
		}
		if status < 200 || status >= 300 {
			return nil, fmt.Errorf("review api returned status %d", status)
		}
		if out != nil && len(bytes.TrimSpace(body)) > 0 {
			if err := json.Unmarshal(body, out); err != nil {
				return nil, fmt.Errorf("failed to decode review api response: %w", err)
			}
		}
		return nil, nil
	})

	if clientErr != nil {
		return clientErr
	}
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return apperrors.NewExternalError("review api temporarily unavailable", err)
	}
	if err != nil {
		return apperrors.NewExternalError("review api request failed", err)
	}
	return nil
}

func (c *HTTPClient) send(ctx context.Context, method, endpoint string, in interface{}) (int, []byte, error) {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return 0, nil, err
		}
		body = bytes.NewReader(payload)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return 0, nil, err
	}
	httpReq.Header.Set("Accept", "application/json")
	if in != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return resp.StatusCode, nil, err
	}
	return resp.StatusCode, data, nil
}

func statusError(status int, body []byte) error {
	message := ""
	var parsed errorResponse
	if json.Unmarshal(body, &parsed) == nil {
		message = parsed.Error
		if message == "" {
			message = parsed.Message
		}
	}

	switch status {
	case http.StatusNotFound:
		if message == "" {
			message = "resource not found"
		}
		return apperrors.NewNotFoundError(message)
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		if message == "" {
			message = "request rejected by review api"
		}
		return apperrors.NewValidationError(message)
	default:
		return apperrors.NewExternalError(fmt.Sprintf("review api returned status %d", status), errors.New(message))
	}
}
