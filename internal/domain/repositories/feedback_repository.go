package repositories

import (
	"context"

	"github.com/zatekoja/reviewfunnel/internal/domain/entities"
)

// FeedbackRepository persists ratings and suggestions.
type FeedbackRepository interface {
	// Create persists feedback and returns the stored record. Implementations
	// backed by a remote system return the remote record, whose id and
	// timestamp may differ from the ones on the input.
	Create(ctx context.Context, feedback *entities.Feedback) (*entities.Feedback, error)
}
