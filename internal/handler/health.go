package handler

import (
	"context"
	"net/http"
	"time"
)

const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

// PingFunc checks a single dependency.
type PingFunc func(ctx context.Context) error

type dependency struct {
	ping     PingFunc
	optional bool
}

// HealthChecker reports the state of the database and optional backing
// services such as Redis.
type HealthChecker struct {
	version string
	deps    map[string]dependency
}

func NewHealthChecker(version string) *HealthChecker {
	return &HealthChecker{version: version, deps: make(map[string]dependency)}
}

// Require registers a dependency whose failure makes the service unhealthy.
func (h *HealthChecker) Require(name string, ping PingFunc) *HealthChecker {
	h.deps[name] = dependency{ping: ping}
	return h
}

// Optional registers a dependency whose failure only degrades the service.
func (h *HealthChecker) Optional(name string, ping PingFunc) *HealthChecker {
	h.deps[name] = dependency{ping: ping, optional: true}
	return h
}

type HealthStatus struct {
	Status       string                      `json:"status"`
	Timestamp    time.Time                   `json:"timestamp"`
	Version      string                      `json:"version,omitempty"`
	Dependencies map[string]DependencyStatus `json:"dependencies,omitempty"`
}

type DependencyStatus struct {
	Status    string  `json:"status"`
	Message   string  `json:"message,omitempty"`
	LatencyMS float64 `json:"latency_ms"`
}

func (h *HealthChecker) Check(ctx context.Context) HealthStatus {
	status := HealthStatus{
		Status:       StatusHealthy,
		Timestamp:    time.Now().UTC(),
		Version:      h.version,
		Dependencies: make(map[string]DependencyStatus, len(h.deps)),
	}

	for name, dep := range h.deps {
		start := time.Now()
		err := dep.ping(ctx)
		ds := DependencyStatus{
			Status:    StatusHealthy,
			LatencyMS: float64(time.Since(start).Microseconds()) / 1000,
		}
		if err != nil {
			ds.Status = StatusUnhealthy
			ds.Message = err.Error()
			switch {
			case !dep.optional:
				status.Status = StatusUnhealthy
			case status.Status == StatusHealthy:
				status.Status = StatusDegraded
			}
		}
		status.Dependencies[name] = ds
	}

	return status
}

// Readiness answers 503 only when a required dependency is down.
func (h *HealthChecker) Readiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := h.Check(ctx)
	code := http.StatusOK
	if status.Status == StatusUnhealthy {
		code = http.StatusServiceUnavailable
	}
	respondWithJSON(w, code, status)
}

func (h *HealthChecker) Liveness(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"status":    StatusHealthy,
		"timestamp": time.Now().UTC(),
	})
}
