package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/zatekoja/reviewfunnel/internal/application/services"
)

// DependencyChecker reports wired capabilities and backend reachability.
type DependencyChecker interface {
	Readiness(ctx context.Context) services.Readiness
	CheckDependencies(ctx context.Context) map[string]error
}

// HealthHandler serves liveness and readiness probes.
type HealthHandler struct {
	checker DependencyChecker
	timeout time.Duration
}

func NewHealthHandler(checker DependencyChecker) *HealthHandler {
	return &HealthHandler{checker: checker, timeout: 3 * time.Second}
}

// Live handles GET /health
func (h *HealthHandler) Live(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

// Ready handles GET /ready. It answers 503 when a backend is unreachable.
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	results := h.checker.CheckDependencies(ctx)

	status := http.StatusOK
	checks := make(map[string]string, len(results))
	for name, err := range results {
		if err != nil {
			checks[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		checks[name] = "ok"
	}

	state := "ready"
	if status != http.StatusOK {
		state = "degraded"
	}
	respondWithJSON(w, status, map[string]interface{}{
		"status":    state,
		"readiness": h.checker.Readiness(ctx),
		"checks":    checks,
	})
}
