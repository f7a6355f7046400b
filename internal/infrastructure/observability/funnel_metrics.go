package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// FunnelMetrics counts what customers do in the funnel. A nil *FunnelMetrics
// records nothing.
type FunnelMetrics struct {
	ratings     metric.Int64Counter
	submissions metric.Int64Counter
	resolutions metric.Int64Counter
	debounced   metric.Int64Counter
}

// NewFunnelMetrics registers the funnel instruments on the global meter provider.
func NewFunnelMetrics() (*FunnelMetrics, error) {
	meter := otel.Meter(instrumentationName)

	ratings, err := meter.Int64Counter(
		"funnel.rating.count",
		metric.WithDescription("Ratings selected, by star value and routed stage"),
	)
	if err != nil {
		return nil, err
	}

	submissions, err := meter.Int64Counter(
		"funnel.submission.count",
		metric.WithDescription("Feedback, suggestion and opt-in submissions by outcome"),
	)
	if err != nil {
		return nil, err
	}

	resolutions, err := meter.Int64Counter(
		"funnel.location.resolution.count",
		metric.WithDescription("Location display lookups by outcome"),
	)
	if err != nil {
		return nil, err
	}

	debounced, err := meter.Int64Counter(
		"funnel.debounce.superseded.count",
		metric.WithDescription("Pending immediate submissions replaced by a newer rating"),
	)
	if err != nil {
		return nil, err
	}

	return &FunnelMetrics{
		ratings:     ratings,
		submissions: submissions,
		resolutions: resolutions,
		debounced:   debounced,
	}, nil
}

func (m *FunnelMetrics) RecordRating(ctx context.Context, rating int, stage string) {
	if m == nil {
		return
	}
	m.ratings.Add(ctx, 1, metric.WithAttributes(
		attribute.Int("funnel.rating", rating),
		attribute.String("funnel.stage", stage),
	))
}

func (m *FunnelMetrics) RecordSubmission(ctx context.Context, kind string, err error) {
	if m == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	m.submissions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("funnel.submission.kind", kind),
		attribute.String("funnel.submission.outcome", outcome),
	))
}

func (m *FunnelMetrics) RecordResolution(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	m.resolutions.Add(ctx, 1, metric.WithAttributes(attribute.String("funnel.resolution.outcome", outcome)))
}

func (m *FunnelMetrics) RecordSuperseded(ctx context.Context) {
	if m == nil {
		return
	}
	m.debounced.Add(ctx, 1)
}
