package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"time"
)

// HealthChecker pings one backing service
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// HealthCheckFunc adapts a function to HealthChecker
type HealthCheckFunc func(ctx context.Context) error

func (f HealthCheckFunc) HealthCheck(ctx context.Context) error {
	return f(ctx)
}

// ServiceHealth is the result of one dependency check
type ServiceHealth struct {
	Status  string `json:"status"`
	Latency string `json:"latency"`
	Error   string `json:"error,omitempty"`
}

// HealthResponse is the body of GET /health
type HealthResponse struct {
	Status   string                   `json:"status"`
	Services map[string]ServiceHealth `json:"services"`
}

// HealthHandler reports the state of Postgres and Redis
type HealthHandler struct {
	checks  map[string]HealthChecker
	timeout time.Duration
}

// NewHealthHandler creates a handler that runs every named check
func NewHealthHandler(checks map[string]HealthChecker) *HealthHandler {
	return &HealthHandler{checks: checks, timeout: 3 * time.Second}
}

// Health handles GET /health. Any failing dependency makes the response 503.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	resp := HealthResponse{Status: "healthy", Services: make(map[string]ServiceHealth, len(names))}
	for _, name := range names {
		start := time.Now()
		err := h.checks[name].HealthCheck(ctx)
		result := ServiceHealth{Status: "up", Latency: time.Since(start).Round(time.Microsecond).String()}
		if err != nil {
			result.Status = "down"
			result.Error = "unreachable"
			resp.Status = "unhealthy"
		}
		resp.Services[name] = result
	}

	status := http.StatusOK
	if resp.Status != "healthy" {
		status = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}
