package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/weebpoly/syncplay-go/internal/v1/logging"
	"go.uber.org/zap"
)

// StatsChecker reports whether the stats snapshotter's backing store is
// reachable. Implemented by *stats.Snapshotter.
type StatsChecker interface {
	Ping(ctx context.Context) error
}

// TLSStatusChecker reports the outcome of the most recent certificate
// reload attempt. Implemented by *tlscontext.Context.
type TLSStatusChecker interface {
	LastReloadError() error
}

// Handler manages health check endpoints.
type Handler struct {
	stats       StatsChecker
	statsEnabled bool
	tls         TLSStatusChecker
	tlsEnabled  bool
}

// NewHandler creates a health check handler. Either collaborator may be
// nil, meaning that dependency is not configured and is reported healthy
// by omission (matching the teacher's single-instance-mode convention for
// an absent Redis service).
func NewHandler(stats StatsChecker, tls TLSStatusChecker) *Handler {
	return &Handler{
		stats:        stats,
		statsEnabled: stats != nil,
		tls:          tls,
		tlsEnabled:   tls != nil,
	}
}

// LivenessResponse represents the liveness probe response.
type LivenessResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

// ReadinessResponse represents the readiness probe response.
type ReadinessResponse struct {
	Status    string            `json:"status"`
	Checks    map[string]string `json:"checks"`
	Timestamp string            `json:"timestamp"`
}

// Liveness handles the liveness probe endpoint.
// GET /health/live
// Returns 200 if the process is alive (no dependency checks).
func (h *Handler) Liveness(c *gin.Context) {
	response := LivenessResponse{
		Status:    "alive",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}

	c.JSON(http.StatusOK, response)
}

// Readiness handles the readiness probe endpoint.
// GET /health/ready
// Returns 200 only if all configured dependencies are healthy, 503
// otherwise. Per spec.md §7, a failing stats DB or TLS reload never tears
// down the protocol listener itself; readiness only reports it.
func (h *Handler) Readiness(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	checks := make(map[string]string)
	allHealthy := true

	statsStatus := h.checkStats(ctx)
	checks["stats_db"] = statsStatus
	if statsStatus != "healthy" {
		allHealthy = false
	}

	if h.tlsEnabled {
		tlsStatus := h.checkTLS()
		checks["tls"] = tlsStatus
		if tlsStatus != "healthy" {
			allHealthy = false
		}
	}

	status := "ready"
	statusCode := http.StatusOK
	if !allHealthy {
		status = "unavailable"
		statusCode = http.StatusServiceUnavailable
	}

	response := ReadinessResponse{
		Status:    status,
		Checks:    checks,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}

	c.JSON(statusCode, response)
}

func (h *Handler) checkStats(ctx context.Context) string {
	if !h.statsEnabled {
		return "healthy"
	}
	if err := h.stats.Ping(ctx); err != nil {
		logging.Error(ctx, "stats DB health check failed", zap.Error(err))
		return "unhealthy"
	}
	return "healthy"
}

func (h *Handler) checkTLS() string {
	if err := h.tls.LastReloadError(); err != nil {
		logging.Error(context.Background(), "TLS context unhealthy", zap.Error(err))
		return "unhealthy"
	}
	return "healthy"
}

// HealthCheckResponse is a generic health check response for backward
// compatibility with simpler consumers.
type HealthCheckResponse struct {
	Status string         `json:"status"`
	Data   map[string]any `json:"data,omitempty"`
}

// MarshalJSON implements custom JSON marshaling for better formatting.
func (r ReadinessResponse) MarshalJSON() ([]byte, error) {
	type Alias ReadinessResponse
	return json.Marshal(&struct {
		*Alias
	}{
		Alias: (*Alias)(&r),
	})
}
