package services_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/zatekoja/reviewfunnel/internal/application/services"
	"github.com/zatekoja/reviewfunnel/internal/domain/entities"
	apperrors "github.com/zatekoja/reviewfunnel/pkg/errors"
)

func TestSubmissionGateway_Submit(t *testing.T) {
	tests := []struct {
		name    string
		req     services.SubmitRequest
		wantErr apperrors.ErrorType
	}{
		{
			name: "feedback with location and rating",
			req:  services.SubmitRequest{LocationID: "loc-42", Rating: 2, Comment: "  service was slow  "},
		},
		{
			name:    "feedback without location",
			req:     services.SubmitRequest{Rating: 2, Comment: "slow"},
			wantErr: apperrors.ErrorTypeMissingContext,
		},
		{
			name:    "feedback with out of range rating",
			req:     services.SubmitRequest{LocationID: "loc-42", Rating: 6},
			wantErr: apperrors.ErrorTypeInvalidRating,
		},
		{
			name: "unattributed suggestion",
			req:  services.SubmitRequest{Comment: "more vegan options", Kind: entities.FeedbackKindSuggestion},
		},
		{
			name:    "suggestion without comment",
			req:     services.SubmitRequest{Kind: entities.FeedbackKindSuggestion},
			wantErr: apperrors.ErrorTypeValidation,
		},
		{
			name:    "unknown kind",
			req:     services.SubmitRequest{LocationID: "loc-42", Rating: 3, Kind: "complaint"},
			wantErr: apperrors.ErrorTypeValidation,
		},
		{
			name:    "comment too long",
			req:     services.SubmitRequest{LocationID: "loc-42", Rating: 1, Comment: strings.Repeat("x", services.MaxCommentLength+1)},
			wantErr: apperrors.ErrorTypeValidation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &stubFeedbackRepository{}
			gateway := services.NewSubmissionGateway(repo, new(MockOptInRepository), nil)

			record, err := gateway.Submit(context.Background(), tt.req)

			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Equal(t, tt.wantErr, apperrors.TypeOf(err))
				assert.Zero(t, repo.count(), "nothing may be persisted on invalid input")
				return
			}
			require.NoError(t, err)
			assert.NotEmpty(t, record.ID)
			assert.False(t, record.CreatedAt.IsZero())
			assert.Equal(t, strings.TrimSpace(tt.req.Comment), record.Comment)
			assert.Equal(t, 1, repo.count())
		})
	}
}

func TestSubmissionGateway_SubmitFailureIsNotRetried(t *testing.T) {
	repo := &stubFeedbackRepository{err: apperrors.NewExternalError("review api request failed", errors.New("timeout"))}
	gateway := services.NewSubmissionGateway(repo, new(MockOptInRepository), nil)

	_, err := gateway.Submit(context.Background(), services.SubmitRequest{LocationID: "loc-42", Rating: 5})

	require.Error(t, err)
	assert.Equal(t, apperrors.ErrorTypeSubmissionFailure, apperrors.TypeOf(err))
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeExternal))
}

func TestSubmissionGateway_OptIn(t *testing.T) {
	t.Run("requires a way to reach the customer", func(t *testing.T) {
		optIns := new(MockOptInRepository)
		gateway := services.NewSubmissionGateway(&stubFeedbackRepository{}, optIns, nil)

		_, err := gateway.OptIn(context.Background(), services.OptInRequest{LocationID: "loc-42", Name: "Ada"})

		assert.Equal(t, apperrors.ErrorTypeValidation, apperrors.TypeOf(err))
		optIns.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	})

	t.Run("requires a location", func(t *testing.T) {
		gateway := services.NewSubmissionGateway(&stubFeedbackRepository{}, new(MockOptInRepository), nil)

		_, err := gateway.OptIn(context.Background(), services.OptInRequest{Name: "Ada", Email: "ada@example.com"})

		assert.Equal(t, apperrors.ErrorTypeMissingContext, apperrors.TypeOf(err))
	})

	t.Run("forwards the enrollment", func(t *testing.T) {
		optIns := new(MockOptInRepository)
		optIns.On("Create", mock.Anything, mock.MatchedBy(func(o *entities.OptIn) bool {
			return o.LocationID == "loc-42" && o.Email == "ada@example.com" && o.Rating == 5 && o.ID != ""
		})).Return(true, nil)
		gateway := services.NewSubmissionGateway(&stubFeedbackRepository{}, optIns, nil)

		ok, err := gateway.OptIn(context.Background(), services.OptInRequest{
			LocationID: "loc-42",
			Name:       "Ada",
			Email:      "ada@example.com",
			Rating:     5,
		})

		require.NoError(t, err)
		assert.True(t, ok)
		optIns.AssertExpectations(t)
	})
}
