package funnel

import "github.com/zatekoja/reviewfunnel/internal/domain/entities"

// Stage is a funnel screen.
type Stage string

const (
	StageAwaitingRating   Stage = "awaiting-rating"
	StagePrivateFeedback  Stage = "private-feedback"
	StagePrivateConfirmed Stage = "private-confirmed"
	StagePublicReview     Stage = "public-review"
	StageExternalRedirect Stage = "external-redirect"
	StagePublicConfirmed  Stage = "public-confirmed"
	StageOptIn            Stage = "opt-in"
	StageOptInConfirmed   Stage = "opt-in-confirmed"
)

// Decision is where a rating sends the customer and what the caller must do.
type Decision struct {
	Stage Stage `json:"stage"`

	// Next is the stage reached once the immediate submission has been
	// dispatched. Empty when there is nothing to dispatch.
	Next Stage `json:"next,omitempty"`

	SubmitImmediately bool                          `json:"submit_immediately"`
	SubmitKind        entities.FeedbackKind         `json:"submit_kind,omitempty"`
	RedirectURL       string                        `json:"redirect_url,omitempty"`
	Platforms         []entities.ReviewPlatformLink `json:"platforms,omitempty"`
}

// Route decides the next stage for a rating. It has no side effects.
//
// 1-3 stars go to the private feedback form and nothing is persisted yet.
// 4-5 stars are submitted right away as feedback; the customer is then sent to
// the first configured review platform, or to the internal thank-you screen
// when none is configured. Any other value leaves the customer on the rating
// step.
func Route(rating int, platforms []entities.ReviewPlatformLink) Decision {
	switch {
	case rating >= MinRating && rating <= 3:
		return Decision{Stage: StagePrivateFeedback}
	case rating == 4 || rating == MaxRating:
		d := Decision{
			Stage:             StagePublicReview,
			SubmitImmediately: true,
			SubmitKind:        entities.FeedbackKindFeedback,
			Platforms:         platforms,
		}
		if len(platforms) > 0 {
			d.Next = StageExternalRedirect
			d.RedirectURL = platforms[0].URL
		} else {
			d.Next = StagePublicConfirmed
			d.Platforms = []entities.ReviewPlatformLink{}
		}
		return d
	default:
		return Decision{Stage: StageAwaitingRating}
	}
}
