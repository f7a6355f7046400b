package funnel_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/zatekoja/reviewfunnel/internal/domain/entities"
	"github.com/zatekoja/reviewfunnel/internal/domain/funnel"
)

var googleLink = entities.ReviewPlatformLink{Name: "Google", URL: "https://g.page/r/loc-42/review"}

func TestRoute_LowRatingsGoToPrivateFeedback(t *testing.T) {
	platformSets := [][]entities.ReviewPlatformLink{nil, {}, {googleLink}}

	for rating := 1; rating <= 3; rating++ {
		for _, platforms := range platformSets {
			d := funnel.Route(rating, platforms)

			assert.Equal(t, funnel.StagePrivateFeedback, d.Stage, "rating %d", rating)
			assert.False(t, d.SubmitImmediately, "rating %d", rating)
			assert.Empty(t, d.RedirectURL)
			assert.Empty(t, d.Next)
		}
	}
}

func TestRoute_HighRatingsSubmitImmediately(t *testing.T) {
	yelp := entities.ReviewPlatformLink{Name: "Yelp", URL: "https://yelp.com/biz/loc-42"}

	for _, rating := range []int{4, 5} {
		t.Run("with platforms", func(t *testing.T) {
			d := funnel.Route(rating, []entities.ReviewPlatformLink{googleLink, yelp})

			assert.Equal(t, funnel.StagePublicReview, d.Stage)
			assert.True(t, d.SubmitImmediately)
			assert.Equal(t, entities.FeedbackKindFeedback, d.SubmitKind)
			assert.Equal(t, funnel.StageExternalRedirect, d.Next)
			assert.Equal(t, googleLink.URL, d.RedirectURL)
		})

		t.Run("without platforms", func(t *testing.T) {
			d := funnel.Route(rating, nil)

			assert.Equal(t, funnel.StagePublicReview, d.Stage)
			assert.True(t, d.SubmitImmediately)
			assert.Equal(t, funnel.StagePublicConfirmed, d.Next)
			assert.Empty(t, d.RedirectURL)
			assert.NotNil(t, d.Platforms)
			assert.Len(t, d.Platforms, 0)
		})
	}
}

func TestRoute_OutOfRangeAwaitsRating(t *testing.T) {
	for _, rating := range []int{0, -1, 6, 100} {
		d := funnel.Route(rating, []entities.ReviewPlatformLink{googleLink})

		assert.Equal(t, funnel.StageAwaitingRating, d.Stage, "rating %d", rating)
		assert.False(t, d.SubmitImmediately)
		assert.Empty(t, d.RedirectURL)
	}
}
