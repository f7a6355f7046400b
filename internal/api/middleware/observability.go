package middleware

import (
	"net/http"
	"time"

	"github.com/zatekoja/reviewfunnel/internal/infrastructure/observability"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// ObservabilityMiddleware traces each request and records request metrics by
// route pattern. Event streams are counted as open streams instead of feeding
// the duration histogram.
func ObservabilityMiddleware(metrics *observability.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, span := observability.StartSpan(r.Context(), r.Method+" "+r.URL.Path)
			defer span.End()

			observability.SetSpanAttributes(span,
				attribute.String("http.method", r.Method),
				attribute.String("http.user_agent", r.UserAgent()),
				attribute.String("request.id", observability.RequestID(ctx)),
			)

			rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
			req := r.WithContext(ctx)

			stream := streaming(r)
			if stream {
				observability.RecordStream(ctx, metrics, 1)
				defer observability.RecordStream(ctx, metrics, -1)
			}

			start := time.Now()
			next.ServeHTTP(rw, req)
			duration := time.Since(start)

			// The mux records the matched pattern on the request it was given.
			route := req.Pattern
			if route == "" {
				route = "unmatched"
			} else {
				span.SetName(route)
			}

			attrs := []attribute.KeyValue{
				attribute.String("http.route", route),
				attribute.Int("http.status_code", rw.statusCode),
			}
			if id := req.PathValue("locationId"); id != "" {
				attrs = append(attrs, attribute.String("funnel.location_id", id))
			} else if id := req.PathValue("id"); id != "" {
				attrs = append(attrs, attribute.String("funnel.path_id", id))
			}
			observability.SetSpanAttributes(span, attrs...)

			if rw.statusCode >= http.StatusInternalServerError {
				span.SetStatus(codes.Error, http.StatusText(rw.statusCode))
			}
			if !stream {
				observability.RecordRequestMetric(ctx, metrics, r.Method, route, rw.statusCode, duration)
			}
		})
	}
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(statusCode int) {
	rw.statusCode = statusCode
	rw.ResponseWriter.WriteHeader(statusCode)
}

func (rw *responseWriter) Flush() {
	if flusher, ok := rw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}
