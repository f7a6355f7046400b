package services

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/zatekoja/reviewfunnel/internal/domain/entities"
	"github.com/zatekoja/reviewfunnel/internal/domain/funnel"
	"github.com/zatekoja/reviewfunnel/internal/domain/repositories"
	"github.com/zatekoja/reviewfunnel/internal/infrastructure/observability"
	apperrors "github.com/zatekoja/reviewfunnel/pkg/errors"
)

// Field length limits, in characters.
const (
	MaxCommentLength = 2000
	MaxNameLength    = 200
	MaxEmailLength   = 200
	MaxPhoneLength   = 50
)

// SubmitRequest is a rating or suggestion as entered by the customer.
type SubmitRequest struct {
	LocationID       string
	Rating           int
	Comment          string
	Name             string
	Email            string
	Phone            string
	ContactRequested bool
	Kind             entities.FeedbackKind
}

// OptInRequest enrolls a customer in a location's program.
type OptInRequest struct {
	LocationID string
	Name       string
	Email      string
	Phone      string
	Rating     int
}

// SubmissionGateway validates and persists customer input. It never retries
// and does not deduplicate; callers decide when a submission may happen.
type SubmissionGateway struct {
	feedback repositories.FeedbackRepository
	optIns   repositories.OptInRepository
	metrics  *observability.FunnelMetrics
	now      func() time.Time
}

func NewSubmissionGateway(feedback repositories.FeedbackRepository, optIns repositories.OptInRepository, metrics *observability.FunnelMetrics) *SubmissionGateway {
	return &SubmissionGateway{
		feedback: feedback,
		optIns:   optIns,
		metrics:  metrics,
		now:      time.Now,
	}
}

// Submit persists one record. Input errors are returned before anything is
// sent; a failed persist comes back as a SUBMISSION_FAILURE.
func (g *SubmissionGateway) Submit(ctx context.Context, req SubmitRequest) (*entities.Feedback, error) {
	ctx, span := observability.StartSpan(ctx, "SubmissionGateway.Submit")
	defer span.End()

	feedback, err := g.normalize(req)
	if err != nil {
		return nil, err
	}

	created, err := g.feedback.Create(ctx, feedback)
	g.metrics.RecordSubmission(ctx, string(feedback.Kind), err)
	if err != nil {
		observability.RecordError(span, err)
		return nil, apperrors.NewSubmissionFailure(fmt.Sprintf("failed to submit %s", feedback.Kind), err)
	}

	observability.LoggerFromContext(ctx).Info().
		Str("feedback_id", created.ID).
		Str("location_id", created.LocationID).
		Str("kind", string(created.Kind)).
		Int("rating", created.Rating).
		Msg("feedback submitted")
	return created, nil
}

func (g *SubmissionGateway) normalize(req SubmitRequest) (*entities.Feedback, error) {
	kind := req.Kind
	if kind == "" {
		kind = entities.FeedbackKindFeedback
	}
	if !kind.Valid() {
		return nil, apperrors.NewValidationError(fmt.Sprintf("unknown feedback kind %q", kind))
	}

	feedback := &entities.Feedback{
		ID:               uuid.New().String(),
		LocationID:       strings.TrimSpace(req.LocationID),
		Rating:           req.Rating,
		Comment:          strings.TrimSpace(req.Comment),
		Name:             strings.TrimSpace(req.Name),
		Email:            strings.TrimSpace(req.Email),
		Phone:            strings.TrimSpace(req.Phone),
		ContactRequested: req.ContactRequested,
		Kind:             kind,
		CreatedAt:        g.now().UTC(),
	}

	switch kind {
	case entities.FeedbackKindFeedback:
		if feedback.LocationID == "" {
			return nil, apperrors.NewMissingContextError("a location is required to submit feedback")
		}
		if !funnel.ValidRating(feedback.Rating) {
			return nil, apperrors.NewInvalidRatingError(feedback.Rating)
		}
	case entities.FeedbackKindSuggestion:
		if feedback.Rating != 0 && !funnel.ValidRating(feedback.Rating) {
			return nil, apperrors.NewInvalidRatingError(feedback.Rating)
		}
		if feedback.Comment == "" {
			return nil, apperrors.NewValidationError("a suggestion needs a comment")
		}
	}

	if err := checkLengths(map[string]fieldLimit{
		"comment": {feedback.Comment, MaxCommentLength},
		"name":    {feedback.Name, MaxNameLength},
		"email":   {feedback.Email, MaxEmailLength},
		"phone":   {feedback.Phone, MaxPhoneLength},
	}); err != nil {
		return nil, err
	}
	return feedback, nil
}

// OptIn enrolls the customer. It needs a location, a name and at least one
// way to reach the customer.
func (g *SubmissionGateway) OptIn(ctx context.Context, req OptInRequest) (bool, error) {
	ctx, span := observability.StartSpan(ctx, "SubmissionGateway.OptIn")
	defer span.End()

	optIn := &entities.OptIn{
		ID:         uuid.New().String(),
		LocationID: strings.TrimSpace(req.LocationID),
		Name:       strings.TrimSpace(req.Name),
		Email:      strings.TrimSpace(req.Email),
		Phone:      strings.TrimSpace(req.Phone),
		Rating:     req.Rating,
		CreatedAt:  g.now().UTC(),
	}

	if optIn.LocationID == "" {
		return false, apperrors.NewMissingContextError("a location is required to opt in")
	}
	if optIn.Name == "" {
		return false, apperrors.NewValidationError("name is required")
	}
	if optIn.Email == "" && optIn.Phone == "" {
		return false, apperrors.NewValidationError("email or phone is required")
	}
	if !funnel.ValidRating(optIn.Rating) {
		optIn.Rating = 0
	}
	if err := checkLengths(map[string]fieldLimit{
		"name":  {optIn.Name, MaxNameLength},
		"email": {optIn.Email, MaxEmailLength},
		"phone": {optIn.Phone, MaxPhoneLength},
	}); err != nil {
		return false, err
	}

	ok, err := g.optIns.Create(ctx, optIn)
	g.metrics.RecordSubmission(ctx, "opt-in", err)
	if err != nil {
		observability.RecordError(span, err)
		return false, apperrors.NewSubmissionFailure("failed to submit opt-in", err)
	}
	return ok, nil
}

type fieldLimit struct {
	value string
	max   int
}

func checkLengths(fields map[string]fieldLimit) error {
	for _, name := range []string{"comment", "name", "email", "phone"} {
		f, ok := fields[name]
		if !ok {
			continue
		}
		if utf8.RuneCountInString(f.value) > f.max {
			return apperrors.NewValidationError(fmt.Sprintf("%s is too long", name))
		}
	}
	return nil
}
