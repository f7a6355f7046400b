package state

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/zatekoja/reviewfunnel/internal/domain/providers"
)

// Durable keys under funnel:client:{clientID}:
const (
	KeyRating  = "rating"
	KeyComment = "comment"
	// KeyImages holds attachments written by the browser; the service only
	// clears it.
	KeyImages  = "images"
)

// DurableStore is the per-browser channel backed by the cache provider.
// Writes are last-write-wins across every tab of the same browser.
type DurableStore struct {
	cache providers.CacheProvider
	ttl   time.Duration
}

func NewDurableStore(cache providers.CacheProvider, ttl time.Duration) *DurableStore {
	return &DurableStore{cache: cache, ttl: ttl}
}

var _ providers.DurableStateStore = (*DurableStore)(nil)

func durableKey(clientID, name string) string {
	return fmt.Sprintf("funnel:client:%s:%s", clientID, name)
}

func (s *DurableStore) expiration() int {
	return int(s.ttl / time.Second)
}

// Load returns everything stored for clientID. Missing keys are left zero; a
// stored rating that does not parse is ignored.
func (s *DurableStore) Load(ctx context.Context, clientID string) (providers.DurableState, error) {
	var out providers.DurableState
	if clientID == "" {
		return out, nil
	}

	raw, err := s.get(ctx, clientID, KeyRating)
	if err != nil {
		return out, err
	}
	if raw != nil {
		if r, convErr := strconv.Atoi(string(raw)); convErr == nil {
			out.Rating = r
		}
	}

	raw, err = s.get(ctx, clientID, KeyComment)
	if err != nil {
		return out, err
	}
	out.Comment = string(raw)

	return out, nil
}

// Draft returns the comment the browser last typed, if any.
func (s *DurableStore) Draft(ctx context.Context, clientID string) (string, error) {
	if clientID == "" {
		return "", nil
	}
	raw, err := s.get(ctx, clientID, KeyComment)
	return string(raw), err
}

func (s *DurableStore) SaveRating(ctx context.Context, clientID string, rating int) error {
	return s.set(ctx, clientID, KeyRating, []byte(strconv.Itoa(rating)))
}

func (s *DurableStore) SaveComment(ctx context.Context, clientID string, comment string) error {
	return s.set(ctx, clientID, KeyComment, []byte(comment))
}

// Clear removes rating, comment and images for clientID.
func (s *DurableStore) Clear(ctx context.Context, clientID string) error {
	if clientID == "" {
		return nil
	}
	err := s.cache.Delete(ctx,
		durableKey(clientID, KeyRating),
		durableKey(clientID, KeyComment),
		durableKey(clientID, KeyImages),
	)
	if err != nil {
		return fmt.Errorf("failed to clear durable state: %w", err)
	}
	return nil
}

func (s *DurableStore) get(ctx context.Context, clientID, name string) ([]byte, error) {
	raw, err := s.cache.Get(ctx, durableKey(clientID, name))
	if errors.Is(err, providers.ErrCacheMiss) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load durable %s: %w", name, err)
	}
	return raw, nil
}

func (s *DurableStore) set(ctx context.Context, clientID, name string, value []byte) error {
	if clientID == "" {
		return nil
	}
	if err := s.cache.Set(ctx, durableKey(clientID, name), value, s.expiration()); err != nil {
		return fmt.Errorf("failed to save durable %s: %w", name, err)
	}
	return nil
}
