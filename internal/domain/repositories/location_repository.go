package repositories

import (
	"context"

	"github.com/zatekoja/reviewfunnel/internal/domain/entities"
)

// LocationRepository loads the locations customers rate.
type LocationRepository interface {
	// GetByID returns a NOT_FOUND AppError when id is unknown.
	GetByID(ctx context.Context, id string) (*entities.Location, error)

	// GetByIDs returns the locations that exist; unknown ids are omitted.
	GetByIDs(ctx context.Context, ids []string) ([]*entities.Location, error)
}
