package funnel_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zatekoja/reviewfunnel/internal/domain/funnel"
)

func TestTransition_PrivatePath(t *testing.T) {
	stage, err := funnel.Transition(funnel.StageAwaitingRating, funnel.Event{Kind: funnel.EventRated, Rating: 2})
	require.NoError(t, err)
	assert.Equal(t, funnel.StagePrivateFeedback, stage)

	stage, err = funnel.Transition(stage, funnel.Event{Kind: funnel.EventSubmitted})
	require.NoError(t, err)
	assert.Equal(t, funnel.StagePrivateConfirmed, stage)

	stage, err = funnel.Transition(stage, funnel.Event{Kind: funnel.EventOptInRequested})
	require.NoError(t, err)
	assert.Equal(t, funnel.StageOptIn, stage)

	stage, err = funnel.Transition(stage, funnel.Event{Kind: funnel.EventOptInSubmitted})
	require.NoError(t, err)
	assert.Equal(t, funnel.StageOptInConfirmed, stage)
}

func TestTransition_PublicPath(t *testing.T) {
	stage, err := funnel.Transition(funnel.StageAwaitingRating, funnel.Event{Kind: funnel.EventRated, Rating: 5})
	require.NoError(t, err)
	assert.Equal(t, funnel.StagePublicReview, stage)

	redirect, err := funnel.Transition(stage, funnel.Event{Kind: funnel.EventAutoSubmitted, HasPlatforms: true})
	require.NoError(t, err)
	assert.Equal(t, funnel.StageExternalRedirect, redirect)

	thanks, err := funnel.Transition(stage, funnel.Event{Kind: funnel.EventAutoSubmitted})
	require.NoError(t, err)
	assert.Equal(t, funnel.StagePublicConfirmed, thanks)

	optIn, err := funnel.Transition(thanks, funnel.Event{Kind: funnel.EventOptInRequested})
	require.NoError(t, err)
	assert.Equal(t, funnel.StageOptIn, optIn)
}

func TestTransition_InvalidRatingReturnsToRatingStep(t *testing.T) {
	for _, from := range []funnel.Stage{funnel.StageAwaitingRating, funnel.StagePublicReview, funnel.StageOptIn} {
		stage, err := funnel.Transition(from, funnel.Event{Kind: funnel.EventRated, Rating: 0})
		assert.NoError(t, err)
		assert.Equal(t, funnel.StageAwaitingRating, stage)
	}
}

func TestTransition_BackAlwaysRestarts(t *testing.T) {
	for _, from := range []funnel.Stage{
		funnel.StagePrivateFeedback,
		funnel.StagePrivateConfirmed,
		funnel.StageExternalRedirect,
		funnel.StageOptInConfirmed,
	} {
		stage, err := funnel.Transition(from, funnel.Event{Kind: funnel.EventBack})
		assert.NoError(t, err)
		assert.Equal(t, funnel.StageAwaitingRating, stage)
		assert.True(t, from.Terminal())
	}
	assert.False(t, funnel.StageAwaitingRating.Terminal())
}

func TestTransition_RejectsUnlistedPairs(t *testing.T) {
	tests := []struct {
		from funnel.Stage
		ev   funnel.Event
	}{
		{funnel.StageAwaitingRating, funnel.Event{Kind: funnel.EventSubmitted}},
		{funnel.StagePrivateConfirmed, funnel.Event{Kind: funnel.EventSubmitted}},
		{funnel.StageExternalRedirect, funnel.Event{Kind: funnel.EventOptInRequested}},
		{funnel.StageOptInConfirmed, funnel.Event{Kind: funnel.EventOptInSubmitted}},
		{funnel.StagePrivateFeedback, funnel.Event{Kind: funnel.EventAutoSubmitted}},
	}

	for _, tt := range tests {
		stage, err := funnel.Transition(tt.from, tt.ev)
		assert.ErrorIs(t, err, funnel.ErrInvalidTransition)
		assert.Equal(t, tt.from, stage)
	}
}
