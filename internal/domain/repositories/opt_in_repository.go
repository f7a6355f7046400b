package repositories

import (
	"context"

	"github.com/zatekoja/reviewfunnel/internal/domain/entities"
)

// OptInRepository persists opt-in enrollments.
type OptInRepository interface {
	Create(ctx context.Context, optIn *entities.OptIn) (bool, error)
}
