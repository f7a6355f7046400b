package reviewapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	apperrors "github.com/zatekoja/reviewfunnel/pkg/errors"
)

func TestGetLocation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))

		switch r.URL.Path {
		case "/locations/loc-42":
			_ = json.NewEncoder(w).Encode(map[string]interface{}{
				"id":   "loc-42",
				"name": "Harbor Cafe",
				"reviewPlatforms": []map[string]string{
					{"name": "Google", "url": "https://g.page/harbor"},
				},
			})
		default:
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":"location not found"}`))
		}
	}))
	defer server.Close()

	client := NewClient(server.URL+"/", Options{Token: "secret"})

	loc, err := client.GetLocation(context.Background(), "loc-42")
	require.NoError(t, err)
	assert.Equal(t, "Harbor Cafe", loc.Name)
	require.Len(t, loc.ReviewPlatforms, 1)
	assert.Equal(t, "https://g.page/harbor", loc.ReviewPlatforms[0].URL)

	_, err = client.GetLocation(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeNotFound))
}

func TestSubmitFeedback(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/feedback", r.URL.Path)

		var req FeedbackRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		if req.Comment == "" {
			w.WriteHeader(http.StatusUnprocessableEntity)
			_, _ = w.Write([]byte(`{"message":"comment is required"}`))
			return
		}

		_ = json.NewEncoder(w).Encode(FeedbackRecord{
			ID:         "fb-1",
			LocationID: req.LocationID,
			Rating:     req.Rating,
			Comment:    req.Comment,
			Kind:       req.Kind,
			CreatedAt:  time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		})
	}))
	defer server.Close()

	client := NewClient(server.URL, Options{})

	record, err := client.SubmitFeedback(context.Background(), FeedbackRequest{
		LocationID: "loc-42",
		Rating:     2,
		Comment:    "service was slow",
		Kind:       "feedback",
	})
	require.NoError(t, err)
	assert.Equal(t, "fb-1", record.ID)
	assert.Equal(t, "feedback", record.Type)

	_, err = client.SubmitFeedback(context.Background(), FeedbackRequest{Kind: "feedback"})
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeValidation))
	assert.Contains(t, err.Error(), "comment is required")
}

func TestSubmitOptIn(t *testing.T) {
	tests := []struct {
		name string
		body string
		want bool
	}{
		{name: "ok flag", body: `{"ok":true}`, want: true},
		{name: "rejected", body: `{"ok":false}`, want: false},
		{name: "success flag", body: `{"success":true}`, want: true},
		{name: "empty body", body: ``, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/opt-ins", r.URL.Path)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			ok, err := NewClient(server.URL, Options{}).SubmitOptIn(context.Background(), OptInRequest{
				LocationID: "loc-42",
				Name:       "Ada",
				Email:      "ada@example.com",
				Phone:      "555-0100",
			})
			require.NoError(t, err)
			assert.Equal(t, tt.want, ok)
		})
	}
}

func TestBreakerOpensOnServerErrorsOnly(t *testing.T) {
	var calls atomic.Int32
	status := atomic.Int32{}
	status.Store(http.StatusBadRequest)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(int(status.Load()))
	}))
	defer server.Close()

	client := NewClient(server.URL, Options{BreakerFailures: 2, BreakerCooldown: time.Minute})
	ctx := context.Background()

	// Client errors never trip the breaker.
	for i := 0; i < 3; i++ {
		err := client.Health(ctx)
		require.Error(t, err)
		assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeValidation))
	}
	assert.Equal(t, int32(3), calls.Load())

	status.Store(http.StatusInternalServerError)
	for i := 0; i < 2; i++ {
		err := client.Health(ctx)
		require.Error(t, err)
		assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeExternal))
	}
	assert.Equal(t, int32(5), calls.Load())

	err := client.Health(ctx)
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeExternal))
	assert.Equal(t, int32(5), calls.Load(), "open breaker must not reach the server")
}
