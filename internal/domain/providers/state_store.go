package providers

import "context"

// DurableState is what the browser-scoped durable channel holds for one client.
type DurableState struct {
	Rating  int    `json:"rating,omitempty"`
	Comment string `json:"comment,omitempty"`
}

// DurableStateStore is the lowest-priority state channel. It is shared by every
// tab of one browser and is last-write-wins.
type DurableStateStore interface {
	Load(ctx context.Context, clientID string) (DurableState, error)
	SaveRating(ctx context.Context, clientID string, rating int) error
	SaveComment(ctx context.Context, clientID string, comment string) error

	// Draft returns the last comment typed in this browser. It is not part of
	// the merged state and is only offered back to the feedback form.
	Draft(ctx context.Context, clientID string) (string, error)

	// Clear removes every entry for clientID. Clearing an empty client is not an error.
	Clear(ctx context.Context, clientID string) error
}
