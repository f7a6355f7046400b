package repositories

import "context"

// Pinger is implemented by repositories that can report whether their backend is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}
