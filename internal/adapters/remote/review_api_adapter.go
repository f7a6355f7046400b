// Package remote implements the funnel repositories on top of the remote
// review API.
package remote

import (
	"context"
	"strings"
	"sync"

	"github.com/zatekoja/reviewfunnel/internal/domain/entities"
	"github.com/zatekoja/reviewfunnel/internal/domain/repositories"
	"github.com/zatekoja/reviewfunnel/internal/infrastructure/clients/reviewapi"
	apperrors "github.com/zatekoja/reviewfunnel/pkg/errors"
)

// ReviewAPIAdapter serves locations, feedback and opt-ins from the review API.
type ReviewAPIAdapter struct {
	client reviewapi.Client
}

func NewReviewAPIAdapter(client reviewapi.Client) *ReviewAPIAdapter {
	return &ReviewAPIAdapter{client: client}
}

var (
	_ repositories.LocationRepository = (*ReviewAPIAdapter)(nil)
	_ repositories.FeedbackRepository = (*ReviewAPIAdapter)(nil)
	_ repositories.Pinger             = (*ReviewAPIAdapter)(nil)
	_ repositories.OptInRepository    = (*OptInAdapter)(nil)
)

func (a *ReviewAPIAdapter) GetByID(ctx context.Context, id string) (*entities.Location, error) {
	loc, err := a.client.GetLocation(ctx, id)
	if err != nil {
		return nil, err
	}
	return toLocation(loc), nil
}

// GetByIDs fetches each id concurrently. The review API has no batch endpoint.
func (a *ReviewAPIAdapter) GetByIDs(ctx context.Context, ids []string) ([]*entities.Location, error) {
	results := make([]*entities.Location, len(ids))
	errs := make([]error, len(ids))

	var wg sync.WaitGroup
	for i, id := range ids {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			results[i], errs[i] = a.GetByID(ctx, id)
		}(i, id)
	}
	wg.Wait()

	out := make([]*entities.Location, 0, len(ids))
	for i, loc := range results {
		if errs[i] != nil {
			if apperrors.IsType(errs[i], apperrors.ErrorTypeNotFound) {
				continue
			}
			return nil, errs[i]
		}
		out = append(out, loc)
	}
	return out, nil
}

func (a *ReviewAPIAdapter) Create(ctx context.Context, feedback *entities.Feedback) (*entities.Feedback, error) {
	record, err := a.client.SubmitFeedback(ctx, reviewapi.FeedbackRequest{
		LocationID: feedback.LocationID,
		Rating:     feedback.Rating,
		Comment:    feedback.Comment,
		Name:       feedback.Name,
		Email:      feedback.Email,
		Phone:      feedback.Phone,
		ContactMe:  feedback.ContactRequested,
		Kind:       string(feedback.Kind),
	})
	if err != nil {
		return nil, err
	}

	out := *feedback
	if record.ID != "" {
		out.ID = record.ID
	}
	if !record.CreatedAt.IsZero() {
		out.CreatedAt = record.CreatedAt
	}
	if kind := entities.FeedbackKind(record.Type); kind.Valid() {
		out.Kind = kind
	}
	return &out, nil
}

// OptInAdapter forwards opt-in enrollments to the review API.
type OptInAdapter struct {
	client reviewapi.Client
}

func NewOptInAdapter(client reviewapi.Client) *OptInAdapter {
	return &OptInAdapter{client: client}
}

func (a *OptInAdapter) Create(ctx context.Context, optIn *entities.OptIn) (bool, error) {
	return a.client.SubmitOptIn(ctx, reviewapi.OptInRequest{
		LocationID: optIn.LocationID,
		Name:       optIn.Name,
		Email:      optIn.Email,
		Phone:      optIn.Phone,
		Rating:     optIn.Rating,
	})
}

func (a *ReviewAPIAdapter) Ping(ctx context.Context) error {
	return a.client.Health(ctx)
}

func toLocation(loc *reviewapi.Location) *entities.Location {
	out := &entities.Location{
		ID:              loc.ID,
		Name:            strings.TrimSpace(loc.Name),
		LogoURL:         loc.LogoURL,
		ReviewPlatforms: make([]entities.ReviewPlatformLink, 0, len(loc.ReviewPlatforms)),
	}
	for _, p := range loc.ReviewPlatforms {
		if strings.TrimSpace(p.URL) == "" {
			continue
		}
		out.ReviewPlatforms = append(out.ReviewPlatforms, entities.ReviewPlatformLink{Name: p.Name, URL: p.URL})
	}
	if loc.Address != nil {
		out.Address = &entities.Address{
			Street:  loc.Address.Street,
			City:    loc.Address.City,
			State:   loc.Address.State,
			ZipCode: loc.Address.ZipCode,
			Country: loc.Address.Country,
		}
	}
	return out
}
