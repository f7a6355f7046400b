package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/doug-martin/goqu/v9"
	"github.com/lib/pq"
	"github.com/zatekoja/reviewfunnel/internal/domain/entities"
	"github.com/zatekoja/reviewfunnel/internal/domain/repositories"
	"github.com/zatekoja/reviewfunnel/internal/infrastructure/clients/postgres"
	apperrors "github.com/zatekoja/reviewfunnel/pkg/errors"
)

const (
	pqUniqueViolation     = "23505"
	pqForeignKeyViolation = "23503"
)

// FeedbackAdapter implements feedback persistence in Postgres.
type FeedbackAdapter struct {
	client *postgres.Client
	db     *goqu.Database
}

// NewFeedbackAdapter creates a new feedback adapter.
func NewFeedbackAdapter(client *postgres.Client) *FeedbackAdapter {
	return &FeedbackAdapter{
		client: client,
		db:     goqu.New("postgres", client.DB()),
	}
}

var (
	_ repositories.FeedbackRepository = (*FeedbackAdapter)(nil)
	_ repositories.Pinger             = (*FeedbackAdapter)(nil)
)

func (a *FeedbackAdapter) insertQuery(feedback *entities.Feedback) (string, []interface{}, error) {
	record := goqu.Record{
		"id":                feedback.ID,
		"location_id":       nullString(feedback.LocationID),
		"rating":            nullRating(feedback.Rating),
		"comment":           nullString(feedback.Comment),
		"name":              nullString(feedback.Name),
		"email":             nullString(feedback.Email),
		"phone":             nullString(feedback.Phone),
		"contact_requested": feedback.ContactRequested,
		"kind":              string(feedback.Kind),
		"created_at":        feedback.CreatedAt,
	}
	return a.db.Insert("feedback").Rows(record).ToSQL()
}

// Create inserts a feedback record and returns it unchanged.
func (a *FeedbackAdapter) Create(ctx context.Context, feedback *entities.Feedback) (*entities.Feedback, error) {
	if feedback == nil {
		return nil, apperrors.NewInternalError("feedback is nil", fmt.Errorf("feedback is nil"))
	}

	query, args, err := a.insertQuery(feedback)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build feedback insert query", err)
	}

	if _, err := a.client.DB().ExecContext(ctx, query, args...); err != nil {
		return nil, classifyWriteError("feedback", err)
	}

	out := *feedback
	return &out, nil
}

func (a *FeedbackAdapter) Ping(ctx context.Context) error {
	return a.client.Ping(ctx)
}

// classifyWriteError maps constraint violations to client errors.
func classifyWriteError(what string, err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch string(pqErr.Code) {
		case pqUniqueViolation:
			return apperrors.NewConflictError(fmt.Sprintf("%s already exists", what))
		case pqForeignKeyViolation:
			return apperrors.NewValidationError("unknown location")
		}
	}
	return apperrors.NewInternalError(fmt.Sprintf("failed to create %s", what), err)
}

func nullRating(rating int) interface{} {
	if rating == 0 {
		return nil
	}
	return rating
}
