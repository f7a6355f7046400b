package services_test

import (
	"context"
	"sync"

	"github.com/stretchr/testify/mock"
	"github.com/zatekoja/reviewfunnel/internal/domain/entities"
)

type MockLocationRepository struct {
	mock.Mock
}

func (m *MockLocationRepository) GetByID(ctx context.Context, id string) (*entities.Location, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.Location), args.Error(1)
}

func (m *MockLocationRepository) GetByIDs(ctx context.Context, ids []string) ([]*entities.Location, error) {
	args := m.Called(ctx, ids)
	if fn, ok := args.Get(0).(func(context.Context, []string) []*entities.Location); ok {
		return fn(ctx, ids), args.Error(1)
	}
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*entities.Location), args.Error(1)
}

type MockOptInRepository struct {
	mock.Mock
}

func (m *MockOptInRepository) Create(ctx context.Context, optIn *entities.OptIn) (bool, error) {
	args := m.Called(ctx, optIn)
	return args.Bool(0), args.Error(1)
}

// stubFeedbackRepository records every created feedback. A non-nil err makes
// every Create fail.
type stubFeedbackRepository struct {
	mu      sync.Mutex
	created []*entities.Feedback
	err     error
}

func (s *stubFeedbackRepository) Create(ctx context.Context, feedback *entities.Feedback) (*entities.Feedback, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	copied := *feedback
	s.created = append(s.created, &copied)
	return &copied, nil
}

func (s *stubFeedbackRepository) all() []*entities.Feedback {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*entities.Feedback, len(s.created))
	copy(out, s.created)
	return out
}

func (s *stubFeedbackRepository) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.created)
}
