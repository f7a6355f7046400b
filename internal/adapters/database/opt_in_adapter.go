package database

import (
	"context"

	"github.com/doug-martin/goqu/v9"
	"github.com/zatekoja/reviewfunnel/internal/domain/entities"
	"github.com/zatekoja/reviewfunnel/internal/domain/repositories"
	"github.com/zatekoja/reviewfunnel/internal/infrastructure/clients/postgres"
	apperrors "github.com/zatekoja/reviewfunnel/pkg/errors"
)

// OptInAdapter stores opt-in enrollments in Postgres.
type OptInAdapter struct {
	client *postgres.Client
	db     *goqu.Database
}

func NewOptInAdapter(client *postgres.Client) repositories.OptInRepository {
	return &OptInAdapter{
		client: client,
		db:     goqu.New("postgres", client.DB()),
	}
}

func (a *OptInAdapter) Create(ctx context.Context, optIn *entities.OptIn) (bool, error) {
	if optIn == nil {
		return false, apperrors.NewValidationError("opt-in is required")
	}

	query, args, err := a.db.Insert("opt_ins").Rows(goqu.Record{
		"id":          optIn.ID,
		"location_id": optIn.LocationID,
		"name":        optIn.Name,
		"email":       nullString(optIn.Email),
		"phone":       nullString(optIn.Phone),
		"rating":      nullRating(optIn.Rating),
		"created_at":  optIn.CreatedAt,
	}).ToSQL()
	if err != nil {
		return false, apperrors.NewInternalError("failed to build opt-in insert query", err)
	}

	if _, err := a.client.DB().ExecContext(ctx, query, args...); err != nil {
		return false, classifyWriteError("opt-in", err)
	}
	return true, nil
}
