package errors

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsType_WalksWrappedChain(t *testing.T) {
	inner := NewExternalError("review api unavailable", fmt.Errorf("dial tcp: refused"))
	outer := NewSubmissionFailure("failed to submit feedback", inner)
	wrapped := fmt.Errorf("funnel: %w", outer)

	assert.True(t, IsType(wrapped, ErrorTypeSubmissionFailure))
	assert.True(t, IsType(wrapped, ErrorTypeExternal))
	assert.False(t, IsType(wrapped, ErrorTypeNotFound))
	assert.False(t, IsType(nil, ErrorTypeNotFound))
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"missing context", NewMissingContextError("location is required"), http.StatusUnprocessableEntity},
		{"submission failure", NewSubmissionFailure("boom", nil), http.StatusBadGateway},
		{"validation", NewValidationError("bad"), http.StatusBadRequest},
		{"invalid rating", NewInvalidRatingError(9), http.StatusBadRequest},
		{"unavailable", NewUnavailableError("not ready"), http.StatusServiceUnavailable},
		{"not found", NewNotFoundError("gone"), http.StatusNotFound},
		{"plain", fmt.Errorf("plain"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HTTPStatus(tt.err))
		})
	}
}

func TestPublicMessage(t *testing.T) {
	assert.Equal(t, "location is required", PublicMessage(NewMissingContextError("location is required")))
	assert.Equal(t, "internal server error", PublicMessage(fmt.Errorf("secret detail")))
}
