package services

import (
	"context"
	"strings"
	"time"

	"github.com/graph-gophers/dataloader/v7"
	"github.com/zatekoja/reviewfunnel/internal/domain/entities"
	"github.com/zatekoja/reviewfunnel/internal/domain/funnel"
	"github.com/zatekoja/reviewfunnel/internal/domain/repositories"
	"github.com/zatekoja/reviewfunnel/internal/infrastructure/observability"
	apperrors "github.com/zatekoja/reviewfunnel/pkg/errors"
)

const resolverBatchWait = 2 * time.Millisecond

// LocationResolver turns a location id into display data. It never fails:
// anything that goes wrong yields a placeholder that a later request retries.
type LocationResolver struct {
	repo    repositories.LocationRepository
	loader  *dataloader.Loader[string, *entities.Location]
	metrics *observability.FunnelMetrics
}

// NewLocationResolver coalesces concurrent lookups of the same id into one
// repository call. Results are not kept between batches; cross-request
// caching belongs to the repository.
func NewLocationResolver(repo repositories.LocationRepository, metrics *observability.FunnelMetrics) *LocationResolver {
	r := &LocationResolver{repo: repo, metrics: metrics}
	r.loader = dataloader.NewBatchedLoader(r.batch,
		dataloader.WithWait[string, *entities.Location](resolverBatchWait),
		dataloader.WithCache[string, *entities.Location](&dataloader.NoCache[string, *entities.Location]{}),
	)
	return r
}

func (r *LocationResolver) batch(ctx context.Context, keys []string) []*dataloader.Result[*entities.Location] {
	results := make([]*dataloader.Result[*entities.Location], len(keys))

	unique := make([]string, 0, len(keys))
	seen := make(map[string]struct{}, len(keys))
	for _, key := range keys {
		if _, ok := seen[key]; !ok {
			seen[key] = struct{}{}
			unique = append(unique, key)
		}
	}

	// One caller's cancellation must not fail the lookups it was batched with.
	locations, err := r.repo.GetByIDs(context.WithoutCancel(ctx), unique)
	if err != nil {
		for i := range keys {
			results[i] = &dataloader.Result[*entities.Location]{Error: err}
		}
		return results
	}

	byID := make(map[string]*entities.Location, len(locations))
	for _, loc := range locations {
		byID[loc.ID] = loc
	}
	for i, key := range keys {
		if loc, ok := byID[key]; ok {
			results[i] = &dataloader.Result[*entities.Location]{Data: loc}
		} else {
			results[i] = &dataloader.Result[*entities.Location]{Error: apperrors.NewNotFoundError("location " + key + " not found")}
		}
	}
	return results
}

// Lookup returns the location or the repository error.
func (r *LocationResolver) Lookup(ctx context.Context, id string) (*entities.Location, error) {
	return r.loader.Load(ctx, id)()
}

// Resolve returns display data for id. An empty id gets the generic
// placeholder; a failed lookup gets the unresolved placeholder with no
// review platforms.
func (r *LocationResolver) Resolve(ctx context.Context, id string) funnel.Display {
	id = strings.TrimSpace(id)
	if id == "" {
		return funnel.Display{Name: funnel.PlaceholderNoLocation, ReviewPlatforms: []entities.ReviewPlatformLink{}}
	}

	loc, err := r.Lookup(ctx, id)
	if err != nil {
		failure := apperrors.NewResolutionFailure("failed to resolve location", err)
		observability.LoggerFromContext(ctx).Warn().Err(failure).Str("location_id", id).Msg("using placeholder location")

		outcome := "error"
		if apperrors.IsType(err, apperrors.ErrorTypeNotFound) {
			outcome = "not_found"
		}
		r.metrics.RecordResolution(ctx, outcome)

		return funnel.Display{
			LocationID:      id,
			Name:            funnel.PlaceholderUnresolved,
			ReviewPlatforms: []entities.ReviewPlatformLink{},
		}
	}

	r.metrics.RecordResolution(ctx, "resolved")
	return displayOf(loc)
}

// Hydrate attaches display data to st. A display already resolved for the
// same location is reused without a lookup.
func (r *LocationResolver) Hydrate(ctx context.Context, st funnel.State) funnel.State {
	st = st.Normalize()
	if st.Display.For(st.LocationID) {
		return st
	}
	d := r.Resolve(ctx, st.LocationID)
	st.Display = &d
	return st
}

func displayOf(loc *entities.Location) funnel.Display {
	name := strings.TrimSpace(loc.Name)
	if name == "" {
		name = funnel.PlaceholderUnresolved
	}
	platforms := make([]entities.ReviewPlatformLink, 0, len(loc.ReviewPlatforms))
	for _, p := range loc.ReviewPlatforms {
		if strings.TrimSpace(p.URL) != "" {
			platforms = append(platforms, p)
		}
	}
	return funnel.Display{
		LocationID:      loc.ID,
		Name:            name,
		LogoURL:         loc.LogoURL,
		ReviewPlatforms: platforms,
		Resolved:        true,
	}
}
