package funnel

import (
	"errors"
	"fmt"
)

// ErrInvalidTransition is returned for an event the current stage does not accept.
var ErrInvalidTransition = errors.New("invalid funnel transition")

// EventKind names an input to the stage machine.
type EventKind string

const (
	EventRated          EventKind = "rated"
	EventSubmitted      EventKind = "submitted"
	EventAutoSubmitted  EventKind = "auto-submitted"
	EventOptInRequested EventKind = "opt-in-requested"
	EventOptInSubmitted EventKind = "opt-in-submitted"
	EventBack           EventKind = "back"
)

// Event is an input to Transition.
type Event struct {
	Kind EventKind

	// Rating is read for EventRated.
	Rating int

	// HasPlatforms is read for EventAutoSubmitted.
	HasPlatforms bool
}

// Terminal reports whether s cannot be resumed; going back from it restarts
// at the rating step.
func (s Stage) Terminal() bool {
	return s != StageAwaitingRating
}

// Transition is the single transition function of the funnel.
//
//	awaiting-rating   --rated 1-3-->        private-feedback --submitted--> private-confirmed
//	awaiting-rating   --rated 4-5-->        public-review --auto-submitted--> external-redirect | public-confirmed
//	*-confirmed       --opt-in-requested--> opt-in --opt-in-submitted--> opt-in-confirmed
//	any               --back-->             awaiting-rating
func Transition(from Stage, ev Event) (Stage, error) {
	if ev.Kind == EventBack {
		return StageAwaitingRating, nil
	}

	switch from {
	case StageAwaitingRating, "":
		if ev.Kind == EventRated {
			return Route(ev.Rating, nil).Stage, nil
		}
	case StagePrivateFeedback:
		switch ev.Kind {
		case EventSubmitted:
			return StagePrivateConfirmed, nil
		case EventRated:
			// The customer changed their mind before submitting.
			return Route(ev.Rating, nil).Stage, nil
		}
	case StagePublicReview:
		switch ev.Kind {
		case EventAutoSubmitted:
			if ev.HasPlatforms {
				return StageExternalRedirect, nil
			}
			return StagePublicConfirmed, nil
		case EventRated:
			return Route(ev.Rating, nil).Stage, nil
		}
	case StagePrivateConfirmed, StagePublicConfirmed:
		if ev.Kind == EventOptInRequested {
			return StageOptIn, nil
		}
	case StageOptIn:
		if ev.Kind == EventOptInSubmitted {
			return StageOptInConfirmed, nil
		}
	}

	if ev.Kind == EventRated && !ValidRating(ev.Rating) {
		return StageAwaitingRating, nil
	}
	return from, fmt.Errorf("%w: %s on %s", ErrInvalidTransition, ev.Kind, from)
}
