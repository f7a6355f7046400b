package services

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/zatekoja/reviewfunnel/internal/domain/entities"
	"github.com/zatekoja/reviewfunnel/internal/domain/funnel"
	"github.com/zatekoja/reviewfunnel/internal/domain/providers"
	"github.com/zatekoja/reviewfunnel/internal/domain/repositories"
	"github.com/zatekoja/reviewfunnel/internal/infrastructure/observability"
	"github.com/zatekoja/reviewfunnel/pkg/debounce"
	apperrors "github.com/zatekoja/reviewfunnel/pkg/errors"
)

// NavigationCodec signs the highest-priority state channel.
type NavigationCodec interface {
	Encode(st funnel.State, stage funnel.Stage) (string, error)
	Decode(token string) (funnel.Snapshot, funnel.Stage, error)
}

// Channels is everything one request carries that can hold funnel state.
type Channels struct {
	// Token is the navigation token, empty on a fresh visit.
	Token string

	// Query is the URL channel; PathLocationID comes from /l/{locationId}
	// and wins over the locationId query parameter.
	Query          url.Values
	PathLocationID string

	// ClientID keys the durable channel for this browser.
	ClientID string
}

// Readiness tells the browser which capabilities are wired.
type Readiness struct {
	Locations   string `json:"locations"`
	Submissions string `json:"submissions,omitempty"`
	StateStore  string `json:"state_store"`
	CanSubmit   bool   `json:"can_submit"`
}

// View is what every funnel endpoint returns.
type View struct {
	SessionID         string             `json:"session_id"`
	Stage             funnel.Stage       `json:"stage"`
	State             funnel.State       `json:"state"`
	Decision          *funnel.Decision   `json:"decision,omitempty"`
	Token             string             `json:"token"`
	Query             string             `json:"query,omitempty"`
	Draft             string             `json:"draft,omitempty"`
	Conflicts         []funnel.Conflict  `json:"conflicts,omitempty"`
	Record            *entities.Feedback `json:"record,omitempty"`
	PendingSubmission bool               `json:"pending_submission"`
	OptInOffered      bool               `json:"opt_in_offered"`
	Readiness         Readiness          `json:"readiness"`
}

// FeedbackInput is the private feedback form.
type FeedbackInput struct {
	Comment          string
	Name             string
	Email            string
	Phone            string
	ContactRequested bool
}

// OptInInput is the opt-in form.
type OptInInput struct {
	Name  string
	Email string
	Phone string
}

// FunnelDeps wires a FunnelService. Gateway may be nil, in which case the
// funnel renders but refuses submissions.
type FunnelDeps struct {
	Resolver      *LocationResolver
	Gateway       *SubmissionGateway
	Codec         NavigationCodec
	Durable       providers.DurableStateStore
	Guard         *DispatchGuard
	Events        providers.EventBus
	Debouncer     *debounce.Debouncer
	Metrics       *observability.FunnelMetrics
	SubmitTimeout time.Duration
	Readiness     Readiness
	Pingers       map[string]repositories.Pinger
}

// FunnelService runs the funnel: it merges the state channels, hydrates
// location data, routes ratings and dispatches submissions.
type FunnelService struct {
	deps FunnelDeps
	now  func() time.Time
}

func NewFunnelService(deps FunnelDeps) *FunnelService {
	if deps.SubmitTimeout <= 0 {
		deps.SubmitTimeout = 10 * time.Second
	}
	deps.Readiness.CanSubmit = deps.Gateway != nil
	return &FunnelService{deps: deps, now: time.Now}
}

// Readiness reports the wired capabilities.
func (s *FunnelService) Readiness(_ context.Context) Readiness {
	return s.deps.Readiness
}

// CheckDependencies pings every backend that supports it.
func (s *FunnelService) CheckDependencies(ctx context.Context) map[string]error {
	out := make(map[string]error, len(s.deps.Pingers))
	for name, p := range s.deps.Pingers {
		out[name] = p.Ping(ctx)
	}
	return out
}

// Close cancels every pending immediate submission.
func (s *FunnelService) Close() {
	s.deps.Debouncer.Stop()
}

// Events streams the outcomes of a session's immediate submissions.
func (s *FunnelService) Events(ctx context.Context, sessionID string) (<-chan *entities.FunnelEvent, error) {
	if strings.TrimSpace(sessionID) == "" {
		return nil, apperrors.NewValidationError("session id is required")
	}
	return s.deps.Events.Subscribe(ctx, providers.GetSessionChannel(sessionID))
}

type session struct {
	state     funnel.State
	stage     funnel.Stage
	fromToken bool
	conflicts []funnel.Conflict
	clientID  string
}

// load merges the channels and hydrates display data.
func (s *FunnelService) load(ctx context.Context, ch Channels) session {
	logger := observability.LoggerFromContext(ctx)
	snapshots := make([]funnel.Snapshot, 0, 3)

	var stage funnel.Stage
	fromToken := false
	if ch.Token != "" {
		snap, tokenStage, err := s.deps.Codec.Decode(ch.Token)
		if err != nil {
			logger.Debug().Err(err).Msg("ignoring navigation token")
		} else {
			snapshots = append(snapshots, snap)
			stage = tokenStage
			fromToken = true
		}
	}

	urlSnap := funnel.ParseQuery(ch.Query)
	if id := strings.TrimSpace(ch.PathLocationID); id != "" {
		urlSnap.LocationID = &id
	}
	snapshots = append(snapshots, urlSnap)

	if ch.ClientID != "" {
		durable, err := s.deps.Durable.Load(ctx, ch.ClientID)
		if err != nil {
			logger.Warn().Err(err).Msg("durable state unavailable")
		} else if durable.Rating != 0 {
			r := durable.Rating
			snapshots = append(snapshots, funnel.Snapshot{Channel: funnel.ChannelDurable, Rating: &r})
		}
	}

	merged := funnel.Merge(snapshots...)
	for _, c := range merged.Conflicts {
		logger.Info().Str("channel", string(c.Channel)).Str("ignored_location_id", c.LocationID).
			Str("location_id", merged.State.LocationID).Msg("location conflict between state channels")
	}

	st := merged.State
	if st.SessionID == "" {
		st.SessionID = uuid.New().String()
	}
	st = s.deps.Resolver.Hydrate(ctx, st)

	if stage == "" {
		stage = funnel.StageAwaitingRating
	}
	if !st.Rated() {
		stage = funnel.StageAwaitingRating
	}

	return session{
		state:     st,
		stage:     stage,
		fromToken: fromToken,
		conflicts: merged.Conflicts,
		clientID:  ch.ClientID,
	}
}

func (s *FunnelService) view(ctx context.Context, sess session, stage funnel.Stage) (*View, error) {
	token, err := s.deps.Codec.Encode(sess.state, stage)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to encode funnel state", err)
	}
	return &View{
		SessionID: sess.state.SessionID,
		Stage:     stage,
		State:     sess.state,
		Token:     token,
		Query:     funnel.EncodeQuery(sess.state).Encode(),
		Conflicts: sess.conflicts,
		Readiness: s.Readiness(ctx),
	}, nil
}

// failure returns the caller's state untouched alongside err.
func (s *FunnelService) failure(ctx context.Context, sess session, err error) (*View, error) {
	v, encErr := s.view(ctx, sess, sess.stage)
	if encErr != nil {
		return nil, err
	}
	return v, err
}

// Open starts or resumes a funnel. A rating recovered without a navigation
// token only reopens the private feedback form; 4-5 stars wait for the
// customer to confirm their choice so nothing is dispatched on page load.
func (s *FunnelService) Open(ctx context.Context, ch Channels) (*View, error) {
	ctx, span := observability.StartSpan(ctx, "FunnelService.Open")
	defer span.End()

	sess := s.load(ctx, ch)
	stage := sess.stage
	if !sess.fromToken && sess.state.Rated() {
		if d := funnel.Route(sess.state.Rating, sess.state.Platforms()); d.Stage == funnel.StagePrivateFeedback {
			stage = d.Stage
		}
	}

	v, err := s.view(ctx, sess, stage)
	if err != nil {
		return nil, err
	}
	if stage == funnel.StagePrivateFeedback && sess.state.Comment == "" && sess.clientID != "" {
		if draft, err := s.deps.Durable.Draft(ctx, sess.clientID); err == nil {
			v.Draft = draft
		}
	}
	v.PendingSubmission = s.deps.Debouncer.Pending(sess.state.SessionID)
	v.OptInOffered = offersOptIn(stage)
	return v, nil
}

// Rate applies a star selection. It always re-evaluates from the rating step
// and replaces any immediate submission still waiting for this session.
func (s *FunnelService) Rate(ctx context.Context, ch Channels, rating int) (*View, error) {
	ctx, span := observability.StartSpan(ctx, "FunnelService.Rate")
	defer span.End()

	sess := s.load(ctx, ch)
	sessionID := sess.state.SessionID
	if s.deps.Debouncer.Cancel(sessionID) {
		s.deps.Metrics.RecordSuperseded(ctx)
	}
	// A rating given after the session's submission went out starts over.
	if done, err := s.deps.Guard.Dispatched(ctx, sessionID); err != nil {
		observability.LoggerFromContext(ctx).Warn().Err(err).Msg("dispatch guard unavailable")
	} else if done {
		sess.state.SessionID = uuid.New().String()
	}

	if !funnel.ValidRating(rating) {
		observability.LoggerFromContext(ctx).Debug().Err(apperrors.NewInvalidRatingError(rating)).Msg("rating ignored")
		sess.state.Rating = 0
		return s.view(ctx, sess, funnel.StageAwaitingRating)
	}

	sess.state.Rating = rating
	stage, err := funnel.Transition(funnel.StageAwaitingRating, funnel.Event{Kind: funnel.EventRated, Rating: rating})
	if err != nil {
		return nil, apperrors.NewInternalError("failed to route rating", err)
	}
	decision := funnel.Route(rating, sess.state.Platforms())
	s.deps.Metrics.RecordRating(ctx, rating, string(stage))

	if sess.clientID != "" {
		if err := s.deps.Durable.SaveRating(ctx, sess.clientID, rating); err != nil {
			observability.LoggerFromContext(ctx).Warn().Err(err).Msg("failed to save durable rating")
		}
	}

	if !decision.SubmitImmediately {
		v, err := s.view(ctx, sess, stage)
		if err != nil {
			return nil, err
		}
		v.Decision = &decision
		return v, nil
	}

	if sess.state.LocationID == "" {
		sess.stage = stage
		return s.failure(ctx, sess, apperrors.NewMissingContextError("a location is required to submit feedback"))
	}
	if s.deps.Gateway == nil {
		sess.stage = stage
		return s.failure(ctx, sess, apperrors.NewUnavailableError("submissions are not available"))
	}

	if !s.schedule(sess) {
		sess.stage = stage
		return s.failure(ctx, sess, apperrors.NewUnavailableError("the funnel is shutting down"))
	}

	// The token already points at the stage reached after dispatch so the
	// customer can continue to the opt-in from the thank-you screen.
	v, err := s.view(ctx, sess, decision.Next)
	if err != nil {
		return nil, err
	}
	v.Stage = stage
	v.Decision = &decision
	v.PendingSubmission = true
	v.OptInOffered = offersOptIn(decision.Next)
	return v, nil
}

// schedule arranges the debounced immediate submission for sess. It reports
// false once the service is closed.
func (s *FunnelService) schedule(sess session) bool {
	st := sess.state
	clientID := sess.clientID
	return s.deps.Debouncer.Schedule(st.SessionID, func() {
		s.dispatchImmediate(st, clientID)
	})
}

func (s *FunnelService) dispatchImmediate(st funnel.State, clientID string) {
	ctx, cancel := context.WithTimeout(context.Background(), s.deps.SubmitTimeout)
	defer cancel()

	logger := observability.GetLogger().With().Str("session_id", st.SessionID).Logger()

	record, _, err := s.dispatch(ctx, st, clientID, SubmitRequest{
		LocationID: st.LocationID,
		Rating:     st.Rating,
		Comment:    st.Comment,
		Kind:       entities.FeedbackKindFeedback,
	})

	event := &entities.FunnelEvent{
		ID:        uuid.New().String(),
		SessionID: st.SessionID,
		Type:      entities.FunnelEventSubmitted,
		Record:    record,
		Timestamp: s.now().UTC(),
	}
	if err != nil {
		logger.Error().Err(err).Msg("immediate submission failed")
		event.Type = entities.FunnelEventFailed
		event.Error = apperrors.PublicMessage(err)
	}

	if pubErr := s.deps.Events.Publish(ctx, providers.GetSessionChannel(st.SessionID), event); pubErr != nil {
		logger.Warn().Err(pubErr).Msg("failed to publish funnel event")
	}
}

// dispatch submits once per session and clears the durable channel once the
// session has a record. replayed is true when the record came from an earlier
// dispatch of the same session.
func (s *FunnelService) dispatch(ctx context.Context, st funnel.State, clientID string, req SubmitRequest) (record *entities.Feedback, replayed bool, err error) {
	existing, acquired, err := s.deps.Guard.Acquire(ctx, st.SessionID)
	if err != nil {
		return nil, false, apperrors.NewInternalError("failed to check previous submission", err)
	}
	if existing != nil {
		s.clearDurable(ctx, clientID)
		return existing, true, nil
	}
	if !acquired {
		return nil, false, apperrors.NewConflictError("a submission for this session is already in progress")
	}

	record, err = s.deps.Gateway.Submit(ctx, req)
	if err != nil {
		if relErr := s.deps.Guard.Release(ctx, st.SessionID); relErr != nil {
			observability.LoggerFromContext(ctx).Warn().Err(relErr).Msg("failed to release dispatch guard")
		}
		return nil, false, err
	}

	if err := s.deps.Guard.Complete(ctx, st.SessionID, record); err != nil {
		observability.LoggerFromContext(ctx).Warn().Err(err).Msg("failed to record dispatch")
	}
	s.clearDurable(ctx, clientID)
	return record, false, nil
}

// sameFeedback reports whether record is what the form would have produced.
func sameFeedback(record *entities.Feedback, rating int, comment string) bool {
	return record.Rating == rating && record.Comment == strings.TrimSpace(comment)
}

func (s *FunnelService) clearDurable(ctx context.Context, clientID string) {
	if clientID == "" {
		return
	}
	if err := s.deps.Durable.Clear(ctx, clientID); err != nil {
		observability.LoggerFromContext(ctx).Warn().Err(err).Msg("failed to clear durable state")
	}
}

// Comment records what the customer is typing. A pending immediate
// submission picks up the new text.
func (s *FunnelService) Comment(ctx context.Context, ch Channels, comment string) (*View, error) {
	sess := s.load(ctx, ch)
	sess.state.Comment = comment

	if sess.clientID != "" {
		if err := s.deps.Durable.SaveComment(ctx, sess.clientID, comment); err != nil {
			observability.LoggerFromContext(ctx).Warn().Err(err).Msg("failed to save comment draft")
		}
	}

	stage := sess.stage
	pending := s.deps.Debouncer.Pending(sess.state.SessionID)
	if pending {
		pending = s.schedule(sess)
	}

	v, err := s.view(ctx, sess, stage)
	if err != nil {
		return nil, err
	}
	v.PendingSubmission = pending
	return v, nil
}

// SubmitFeedback sends the private feedback form.
func (s *FunnelService) SubmitFeedback(ctx context.Context, ch Channels, in FeedbackInput) (*View, error) {
	ctx, span := observability.StartSpan(ctx, "FunnelService.SubmitFeedback")
	defer span.End()

	sess := s.load(ctx, ch)
	sess.state.Comment = in.Comment

	if !sess.state.Rated() {
		return s.view(ctx, sess, funnel.StageAwaitingRating)
	}
	if !sess.fromToken {
		// A form opened from the URL or durable channel.
		sess.stage = funnel.Route(sess.state.Rating, nil).Stage
	}

	next, err := funnel.Transition(sess.stage, funnel.Event{Kind: funnel.EventSubmitted})
	if err != nil {
		return s.failure(ctx, sess, apperrors.NewConflictError("feedback cannot be submitted from "+string(sess.stage)))
	}
	if sess.state.LocationID == "" {
		return s.failure(ctx, sess, apperrors.NewMissingContextError("a location is required to submit feedback"))
	}
	if s.deps.Gateway == nil {
		return s.failure(ctx, sess, apperrors.NewUnavailableError("submissions are not available"))
	}

	record, replayed, err := s.dispatch(ctx, sess.state, sess.clientID, SubmitRequest{
		LocationID:       sess.state.LocationID,
		Rating:           sess.state.Rating,
		Comment:          in.Comment,
		Name:             in.Name,
		Email:            in.Email,
		Phone:            in.Phone,
		ContactRequested: in.ContactRequested,
		Kind:             entities.FeedbackKindFeedback,
	})
	if err != nil {
		observability.RecordError(span, err)
		return s.failure(ctx, sess, err)
	}
	// A resent form gets its record back; different feedback is not
	// swallowed by an earlier submission of the session.
	if replayed && !sameFeedback(record, sess.state.Rating, in.Comment) {
		return s.failure(ctx, sess, apperrors.NewConflictError("feedback for this visit was already sent"))
	}

	v, err := s.view(ctx, sess, next)
	if err != nil {
		return nil, err
	}
	v.Record = record
	v.OptInOffered = offersOptIn(next)
	return v, nil
}

// OptIn enrolls the customer from a confirmation screen. A pending immediate
// submission is dispatched first.
func (s *FunnelService) OptIn(ctx context.Context, ch Channels, in OptInInput) (*View, error) {
	ctx, span := observability.StartSpan(ctx, "FunnelService.OptIn")
	defer span.End()

	sess := s.load(ctx, ch)
	s.deps.Debouncer.Flush(sess.state.SessionID)

	stage := sess.stage
	if stage != funnel.StageOptIn {
		var err error
		stage, err = funnel.Transition(stage, funnel.Event{Kind: funnel.EventOptInRequested})
		if err != nil {
			return s.failure(ctx, sess, apperrors.NewConflictError("opt-in is not offered from "+string(sess.stage)))
		}
	}
	next, err := funnel.Transition(stage, funnel.Event{Kind: funnel.EventOptInSubmitted})
	if err != nil {
		return s.failure(ctx, sess, apperrors.NewInternalError("failed to advance opt-in", err))
	}
	if s.deps.Gateway == nil {
		return s.failure(ctx, sess, apperrors.NewUnavailableError("submissions are not available"))
	}

	ok, err := s.deps.Gateway.OptIn(ctx, OptInRequest{
		LocationID: sess.state.LocationID,
		Name:       in.Name,
		Email:      in.Email,
		Phone:      in.Phone,
		Rating:     sess.state.Rating,
	})
	if err != nil {
		observability.RecordError(span, err)
		return s.failure(ctx, sess, err)
	}
	if !ok {
		return s.failure(ctx, sess, apperrors.NewSubmissionFailure("opt-in was not accepted", errors.New("rejected by backend")))
	}

	s.clearDurable(ctx, sess.clientID)
	return s.view(ctx, sess, next)
}

// Back returns to the rating step and drops a submission that has not been
// dispatched yet. The customer continues in a new session, so a submission
// that already went out does not stand in for the next one.
func (s *FunnelService) Back(ctx context.Context, ch Channels) (*View, error) {
	sess := s.load(ctx, ch)
	previous := sess.state.SessionID
	if s.deps.Debouncer.Cancel(previous) {
		s.deps.Metrics.RecordSuperseded(ctx)
	}
	stage, err := funnel.Transition(sess.stage, funnel.Event{Kind: funnel.EventBack})
	if err != nil {
		return nil, apperrors.NewInternalError("failed to go back", err)
	}

	sess.state.SessionID = uuid.New().String()
	observability.LoggerFromContext(ctx).Debug().Str("previous_session_id", previous).
		Str("session_id", sess.state.SessionID).Msg("funnel restarted from rating step")
	return s.view(ctx, sess, stage)
}

func offersOptIn(stage funnel.Stage) bool {
	return stage == funnel.StagePrivateConfirmed || stage == funnel.StagePublicConfirmed
}
