package services_test

import (
	"context"
	"errors"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/zatekoja/reviewfunnel/internal/adapters/cache"
	"github.com/zatekoja/reviewfunnel/internal/adapters/events"
	"github.com/zatekoja/reviewfunnel/internal/adapters/state"
	"github.com/zatekoja/reviewfunnel/internal/application/services"
	"github.com/zatekoja/reviewfunnel/internal/domain/entities"
	"github.com/zatekoja/reviewfunnel/internal/domain/funnel"
	"github.com/zatekoja/reviewfunnel/pkg/debounce"
	apperrors "github.com/zatekoja/reviewfunnel/pkg/errors"
)

type funnelFixture struct {
	service   *services.FunnelService
	feedback  *stubFeedbackRepository
	optIns    *MockOptInRepository
	durable   *state.DurableStore
	codec     *state.TokenCodec
	bus       *events.MemoryEventBus
	debouncer *debounce.Debouncer
}

func newFunnelFixture(t *testing.T, locations ...*entities.Location) *funnelFixture {
	t.Helper()

	repo := new(MockLocationRepository)
	repo.On("GetByIDs", mock.Anything, mock.Anything).Return(func(ctx context.Context, ids []string) []*entities.Location {
		out := []*entities.Location{}
		for _, loc := range locations {
			for _, id := range ids {
				if loc.ID == id {
					out = append(out, loc)
				}
			}
		}
		return out
	}, nil)

	store := cache.NewMemoryAdapter()
	f := &funnelFixture{
		feedback:  &stubFeedbackRepository{},
		optIns:    new(MockOptInRepository),
		durable:   state.NewDurableStore(store, time.Hour),
		codec:     state.NewTokenCodec("test-secret", time.Hour),
		bus:       events.NewMemoryEventBus(),
		debouncer: debounce.New(20 * time.Millisecond),
	}
	f.service = services.NewFunnelService(services.FunnelDeps{
		Resolver:      services.NewLocationResolver(repo, nil),
		Gateway:       services.NewSubmissionGateway(f.feedback, f.optIns, nil),
		Codec:         f.codec,
		Durable:       f.durable,
		Guard:         services.NewDispatchGuard(store, time.Hour),
		Events:        f.bus,
		Debouncer:     f.debouncer,
		SubmitTimeout: time.Second,
		Readiness:     services.Readiness{Locations: "test", Submissions: "test", StateStore: "memory"},
	})
	t.Cleanup(func() {
		f.service.Close()
		_ = f.bus.Close()
	})
	return f
}

func openAt(locationID, clientID string) services.Channels {
	return services.Channels{Query: url.Values{}, PathLocationID: locationID, ClientID: clientID}
}

func next(view *services.View, clientID string) services.Channels {
	return services.Channels{Token: view.Token, Query: url.Values{}, ClientID: clientID}
}

// Scenario A: 2 stars, private feedback, one record.
func TestFunnelService_PrivateFeedbackScenario(t *testing.T) {
	f := newFunnelFixture(t, harborCafe())
	ctx := context.Background()

	opened, err := f.service.Open(ctx, openAt("loc-42", "browser-1"))
	require.NoError(t, err)
	assert.Equal(t, funnel.StageAwaitingRating, opened.Stage)
	assert.Equal(t, "Harbor Cafe", opened.State.Display.Name)
	assert.True(t, opened.Readiness.CanSubmit)

	rated, err := f.service.Rate(ctx, next(opened, "browser-1"), 2)
	require.NoError(t, err)
	assert.Equal(t, funnel.StagePrivateFeedback, rated.Stage)
	assert.False(t, rated.PendingSubmission)
	assert.Equal(t, opened.SessionID, rated.SessionID)

	time.Sleep(50 * time.Millisecond)
	assert.Zero(t, f.feedback.count(), "a low rating is not persisted before the form is sent")

	submitted, err := f.service.SubmitFeedback(ctx, next(rated, "browser-1"), services.FeedbackInput{Comment: "service was slow"})
	require.NoError(t, err)
	assert.Equal(t, funnel.StagePrivateConfirmed, submitted.Stage)
	assert.True(t, submitted.OptInOffered)
	require.NotNil(t, submitted.Record)

	created := f.feedback.all()
	require.Len(t, created, 1)
	assert.Equal(t, "loc-42", created[0].LocationID)
	assert.Equal(t, 2, created[0].Rating)
	assert.Equal(t, "service was slow", created[0].Comment)
	assert.Equal(t, entities.FeedbackKindFeedback, created[0].Kind)

	durable, err := f.durable.Load(ctx, "browser-1")
	require.NoError(t, err)
	assert.Zero(t, durable.Rating, "durable state is cleared after a terminal submission")

	again, err := f.service.SubmitFeedback(ctx, next(rated, "browser-1"), services.FeedbackInput{Comment: "service was slow"})
	require.NoError(t, err)
	assert.Equal(t, submitted.Record.ID, again.Record.ID)
	assert.Equal(t, 1, f.feedback.count(), "a session persists its feedback once")
}

// Scenario B: 5 stars with one review link.
func TestFunnelService_PublicRedirectScenario(t *testing.T) {
	f := newFunnelFixture(t, harborCafe())
	ctx := context.Background()

	opened, err := f.service.Open(ctx, openAt("loc-42", "browser-1"))
	require.NoError(t, err)

	outcomes, err := f.service.Events(ctx, opened.SessionID)
	require.NoError(t, err)

	rated, err := f.service.Rate(ctx, next(opened, "browser-1"), 5)
	require.NoError(t, err)
	require.NotNil(t, rated.Decision)
	assert.Equal(t, funnel.StagePublicReview, rated.Stage)
	assert.Equal(t, funnel.StageExternalRedirect, rated.Decision.Next)
	assert.Equal(t, "https://g.page/harbor", rated.Decision.RedirectURL)
	assert.True(t, rated.PendingSubmission)

	select {
	case event := <-outcomes:
		assert.Equal(t, entities.FunnelEventSubmitted, event.Type)
		require.NotNil(t, event.Record)
		assert.Equal(t, 5, event.Record.Rating)
	case <-time.After(2 * time.Second):
		t.Fatal("no submission outcome published")
	}
	assert.Equal(t, 1, f.feedback.count())
}

// Scenario C: 5 stars with no review links.
func TestFunnelService_InternalThankYouScenario(t *testing.T) {
	f := newFunnelFixture(t, &entities.Location{ID: "loc-7", Name: "Corner Books"})
	ctx := context.Background()

	opened, err := f.service.Open(ctx, openAt("loc-7", "browser-1"))
	require.NoError(t, err)

	rated, err := f.service.Rate(ctx, next(opened, "browser-1"), 5)
	require.NoError(t, err)
	require.NotNil(t, rated.Decision)
	assert.Equal(t, funnel.StagePublicConfirmed, rated.Decision.Next)
	assert.Empty(t, rated.Decision.RedirectURL)
	assert.NotNil(t, rated.Decision.Platforms)
	assert.Empty(t, rated.Decision.Platforms)
	assert.True(t, rated.OptInOffered)

	f.optIns.On("Create", mock.Anything, mock.MatchedBy(func(o *entities.OptIn) bool {
		return o.LocationID == "loc-7" && o.Rating == 5
	})).Return(true, nil)

	joined, err := f.service.OptIn(ctx, next(rated, "browser-1"), services.OptInInput{Name: "Ada", Email: "ada@example.com"})
	require.NoError(t, err)
	assert.Equal(t, funnel.StageOptInConfirmed, joined.Stage)

	// The opt-in flushes the pending rating before enrolling.
	assert.Equal(t, 1, f.feedback.count())
	f.optIns.AssertExpectations(t)
}

func TestFunnelService_NewRatingReplacesPendingSubmission(t *testing.T) {
	f := newFunnelFixture(t, harborCafe())
	ctx := context.Background()

	opened, err := f.service.Open(ctx, openAt("loc-42", ""))
	require.NoError(t, err)

	_, err = f.service.Rate(ctx, next(opened, ""), 5)
	require.NoError(t, err)
	changed, err := f.service.Rate(ctx, next(opened, ""), 4)
	require.NoError(t, err)
	assert.True(t, changed.PendingSubmission)

	assert.Eventually(t, func() bool { return f.feedback.count() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)

	created := f.feedback.all()
	require.Len(t, created, 1)
	assert.Equal(t, 4, created[0].Rating)
}

func TestFunnelService_LowRatingCancelsPendingSubmission(t *testing.T) {
	f := newFunnelFixture(t, harborCafe())
	ctx := context.Background()

	opened, err := f.service.Open(ctx, openAt("loc-42", ""))
	require.NoError(t, err)

	_, err = f.service.Rate(ctx, next(opened, ""), 5)
	require.NoError(t, err)
	changed, err := f.service.Rate(ctx, next(opened, ""), 1)
	require.NoError(t, err)
	assert.Equal(t, funnel.StagePrivateFeedback, changed.Stage)

	time.Sleep(80 * time.Millisecond)
	assert.Zero(t, f.feedback.count())
}

func TestFunnelService_InvalidRatingStaysOnRatingStep(t *testing.T) {
	f := newFunnelFixture(t, harborCafe())
	ctx := context.Background()

	for _, rating := range []int{0, -1, 6} {
		view, err := f.service.Rate(ctx, openAt("loc-42", ""), rating)
		require.NoError(t, err)
		assert.Equal(t, funnel.StageAwaitingRating, view.Stage)
		assert.Zero(t, view.State.Rating)
		assert.Nil(t, view.Decision)
	}
}

func TestFunnelService_HighRatingWithoutLocation(t *testing.T) {
	f := newFunnelFixture(t)
	ctx := context.Background()

	view, err := f.service.Rate(ctx, openAt("", ""), 5)

	require.Error(t, err)
	assert.Equal(t, apperrors.ErrorTypeMissingContext, apperrors.TypeOf(err))
	require.NotNil(t, view)
	assert.Equal(t, 5, view.State.Rating, "the caller's state is echoed back")
	assert.Equal(t, funnel.PlaceholderNoLocation, view.State.Display.Name)

	time.Sleep(50 * time.Millisecond)
	assert.Zero(t, f.feedback.count())
}

func TestFunnelService_MergePrecedence(t *testing.T) {
	f := newFunnelFixture(t, harborCafe())
	ctx := context.Background()
	require.NoError(t, f.durable.SaveRating(ctx, "browser-1", 3))

	token, err := f.codec.Encode(funnel.State{SessionID: "s-1", Rating: 5, LocationID: "loc-42"}, funnel.StageAwaitingRating)
	require.NoError(t, err)

	view, err := f.service.Open(ctx, services.Channels{
		Token:    token,
		Query:    url.Values{"rating": {"2"}, "locationId": {"loc-other"}},
		ClientID: "browser-1",
	})
	require.NoError(t, err)
	assert.Equal(t, 5, view.State.Rating)
	assert.Equal(t, "loc-42", view.State.LocationID)
	require.Len(t, view.Conflicts, 1)
	assert.Equal(t, "loc-other", view.Conflicts[0].LocationID)

	withoutToken, err := f.service.Open(ctx, services.Channels{
		Query:    url.Values{"rating": {"2"}, "locationId": {"loc-42"}},
		ClientID: "browser-1",
	})
	require.NoError(t, err)
	assert.Equal(t, 2, withoutToken.State.Rating)
	assert.Equal(t, funnel.StagePrivateFeedback, withoutToken.Stage)

	durableOnly, err := f.service.Open(ctx, services.Channels{Query: url.Values{}, ClientID: "browser-1"})
	require.NoError(t, err)
	assert.Equal(t, 3, durableOnly.State.Rating)
}

func TestFunnelService_SubmissionFailureEchoesState(t *testing.T) {
	f := newFunnelFixture(t, harborCafe())
	f.feedback.err = errors.New("review api unavailable")
	ctx := context.Background()

	opened, err := f.service.Open(ctx, openAt("loc-42", "browser-1"))
	require.NoError(t, err)
	rated, err := f.service.Rate(ctx, next(opened, "browser-1"), 3)
	require.NoError(t, err)

	view, err := f.service.SubmitFeedback(ctx, next(rated, "browser-1"), services.FeedbackInput{Comment: "cold coffee"})

	require.Error(t, err)
	assert.Equal(t, apperrors.ErrorTypeSubmissionFailure, apperrors.TypeOf(err))
	require.NotNil(t, view)
	assert.Equal(t, funnel.StagePrivateFeedback, view.Stage)
	assert.Equal(t, 3, view.State.Rating)
	assert.Equal(t, "cold coffee", view.State.Comment)

	durable, err := f.durable.Load(ctx, "browser-1")
	require.NoError(t, err)
	assert.Equal(t, 3, durable.Rating, "durable state survives a failed submission")

	f.feedback.mu.Lock()
	f.feedback.err = nil
	f.feedback.mu.Unlock()

	retried, err := f.service.SubmitFeedback(ctx, next(rated, "browser-1"), services.FeedbackInput{Comment: "cold coffee"})
	require.NoError(t, err)
	assert.Equal(t, funnel.StagePrivateConfirmed, retried.Stage)
}

func TestFunnelService_CommentDraftIsOfferedBack(t *testing.T) {
	f := newFunnelFixture(t, harborCafe())
	ctx := context.Background()

	opened, err := f.service.Open(ctx, openAt("loc-42", "browser-1"))
	require.NoError(t, err)
	rated, err := f.service.Rate(ctx, next(opened, "browser-1"), 2)
	require.NoError(t, err)

	_, err = f.service.Comment(ctx, next(rated, "browser-1"), "the music was")
	require.NoError(t, err)

	// A new tab without the navigation token.
	reopened, err := f.service.Open(ctx, services.Channels{
		Query:    url.Values{"rating": {"2"}, "locationId": {"loc-42"}},
		ClientID: "browser-1",
	})
	require.NoError(t, err)
	assert.Equal(t, funnel.StagePrivateFeedback, reopened.Stage)
	assert.Empty(t, reopened.State.Comment)
	assert.Equal(t, "the music was", reopened.Draft)
}

func TestFunnelService_OptInOnlyFromConfirmation(t *testing.T) {
	f := newFunnelFixture(t, harborCafe())
	ctx := context.Background()

	opened, err := f.service.Open(ctx, openAt("loc-42", ""))
	require.NoError(t, err)
	rated, err := f.service.Rate(ctx, next(opened, ""), 2)
	require.NoError(t, err)

	_, err = f.service.OptIn(ctx, next(rated, ""), services.OptInInput{Name: "Ada", Email: "ada@example.com"})

	assert.Equal(t, apperrors.ErrorTypeConflict, apperrors.TypeOf(err))
	f.optIns.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestFunnelService_BackReturnsToRating(t *testing.T) {
	f := newFunnelFixture(t, harborCafe())
	ctx := context.Background()

	opened, err := f.service.Open(ctx, openAt("loc-42", ""))
	require.NoError(t, err)
	rated, err := f.service.Rate(ctx, next(opened, ""), 5)
	require.NoError(t, err)

	back, err := f.service.Back(ctx, next(rated, ""))
	require.NoError(t, err)
	assert.Equal(t, funnel.StageAwaitingRating, back.Stage)

	time.Sleep(60 * time.Millisecond)
	assert.Zero(t, f.feedback.count(), "going back drops the pending submission")
}

func TestFunnelService_BackAfterDispatchKeepsNewFeedback(t *testing.T) {
	f := newFunnelFixture(t, harborCafe())
	ctx := context.Background()

	opened, err := f.service.Open(ctx, openAt("loc-42", "browser-1"))
	require.NoError(t, err)
	rated, err := f.service.Rate(ctx, next(opened, "browser-1"), 5)
	require.NoError(t, err)
	assert.Eventually(t, func() bool { return f.feedback.count() == 1 }, time.Second, 5*time.Millisecond)

	back, err := f.service.Back(ctx, next(rated, "browser-1"))
	require.NoError(t, err)
	assert.Equal(t, funnel.StageAwaitingRating, back.Stage)
	assert.NotEqual(t, rated.SessionID, back.SessionID, "going back starts a new session")

	rerated, err := f.service.Rate(ctx, next(back, "browser-1"), 2)
	require.NoError(t, err)
	assert.Equal(t, funnel.StagePrivateFeedback, rerated.Stage)
	assert.Equal(t, back.SessionID, rerated.SessionID)

	submitted, err := f.service.SubmitFeedback(ctx, next(rerated, "browser-1"), services.FeedbackInput{Comment: "the coffee was cold"})
	require.NoError(t, err)
	assert.Equal(t, funnel.StagePrivateConfirmed, submitted.Stage)
	require.NotNil(t, submitted.Record)
	assert.Equal(t, 2, submitted.Record.Rating)
	assert.Equal(t, "the coffee was cold", submitted.Record.Comment)

	created := f.feedback.all()
	require.Len(t, created, 2)
	assert.Equal(t, 5, created[0].Rating)
	assert.Equal(t, 2, created[1].Rating)
	assert.Equal(t, "the coffee was cold", created[1].Comment)
}

func TestFunnelService_RatingAfterDispatchStartsNewSession(t *testing.T) {
	f := newFunnelFixture(t, harborCafe())
	ctx := context.Background()

	opened, err := f.service.Open(ctx, openAt("loc-42", ""))
	require.NoError(t, err)
	rated, err := f.service.Rate(ctx, next(opened, ""), 5)
	require.NoError(t, err)
	assert.Eventually(t, func() bool { return f.feedback.count() == 1 }, time.Second, 5*time.Millisecond)

	rerated, err := f.service.Rate(ctx, next(rated, ""), 1)
	require.NoError(t, err)
	assert.NotEqual(t, rated.SessionID, rerated.SessionID)

	submitted, err := f.service.SubmitFeedback(ctx, next(rerated, ""), services.FeedbackInput{Comment: "rude staff"})
	require.NoError(t, err)
	assert.Equal(t, "rude staff", submitted.Record.Comment)
	assert.Equal(t, 2, f.feedback.count())
}

func TestFunnelService_DifferentFeedbackInSameSessionIsRejected(t *testing.T) {
	f := newFunnelFixture(t, harborCafe())
	ctx := context.Background()

	opened, err := f.service.Open(ctx, openAt("loc-42", ""))
	require.NoError(t, err)
	rated, err := f.service.Rate(ctx, next(opened, ""), 2)
	require.NoError(t, err)
	_, err = f.service.SubmitFeedback(ctx, next(rated, ""), services.FeedbackInput{Comment: "service was slow"})
	require.NoError(t, err)

	view, err := f.service.SubmitFeedback(ctx, next(rated, ""), services.FeedbackInput{Comment: "and the coffee was cold"})

	assert.Equal(t, apperrors.ErrorTypeConflict, apperrors.TypeOf(err))
	require.NotNil(t, view)
	assert.Equal(t, "and the coffee was cold", view.State.Comment, "the typed comment is echoed back")
	assert.Nil(t, view.Record)
	assert.Equal(t, 1, f.feedback.count())
}

func TestFunnelService_ResentFeedbackClearsDurableState(t *testing.T) {
	f := newFunnelFixture(t, harborCafe())
	ctx := context.Background()

	opened, err := f.service.Open(ctx, openAt("loc-42", "browser-1"))
	require.NoError(t, err)
	rated, err := f.service.Rate(ctx, next(opened, "browser-1"), 2)
	require.NoError(t, err)
	first, err := f.service.SubmitFeedback(ctx, next(rated, "browser-1"), services.FeedbackInput{Comment: "service was slow"})
	require.NoError(t, err)

	// Another tab of the same browser writes the rating again.
	require.NoError(t, f.durable.SaveRating(ctx, "browser-1", 2))

	again, err := f.service.SubmitFeedback(ctx, next(rated, "browser-1"), services.FeedbackInput{Comment: "service was slow"})
	require.NoError(t, err)
	assert.Equal(t, first.Record.ID, again.Record.ID)

	durable, err := f.durable.Load(ctx, "browser-1")
	require.NoError(t, err)
	assert.Zero(t, durable.Rating)
	assert.Equal(t, 1, f.feedback.count())
}

func TestFunnelService_RateAfterCloseIsUnavailable(t *testing.T) {
	f := newFunnelFixture(t, harborCafe())
	ctx := context.Background()

	opened, err := f.service.Open(ctx, openAt("loc-42", ""))
	require.NoError(t, err)
	f.service.Close()

	view, err := f.service.Rate(ctx, next(opened, ""), 5)

	assert.Equal(t, apperrors.ErrorTypeUnavailable, apperrors.TypeOf(err))
	require.NotNil(t, view)
	assert.False(t, view.PendingSubmission)
	assert.Equal(t, 5, view.State.Rating)
	time.Sleep(50 * time.Millisecond)
	assert.Zero(t, f.feedback.count())
}

func TestFunnelService_WithoutSubmissionBackend(t *testing.T) {
	repo := new(MockLocationRepository)
	repo.On("GetByIDs", mock.Anything, mock.Anything).Return([]*entities.Location{harborCafe()}, nil)
	store := cache.NewMemoryAdapter()
	bus := events.NewMemoryEventBus()
	service := services.NewFunnelService(services.FunnelDeps{
		Resolver:  services.NewLocationResolver(repo, nil),
		Codec:     state.NewTokenCodec("test-secret", time.Hour),
		Durable:   state.NewDurableStore(store, time.Hour),
		Guard:     services.NewDispatchGuard(store, time.Hour),
		Events:    bus,
		Debouncer: debounce.New(10 * time.Millisecond),
		Readiness: services.Readiness{Locations: "file", StateStore: "memory"},
	})
	defer service.Close()
	defer bus.Close()

	ctx := context.Background()
	opened, err := service.Open(ctx, openAt("loc-42", ""))
	require.NoError(t, err)
	assert.False(t, opened.Readiness.CanSubmit)

	_, err = service.Rate(ctx, next(opened, ""), 5)
	assert.Equal(t, apperrors.ErrorTypeUnavailable, apperrors.TypeOf(err))
}
