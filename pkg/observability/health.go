package observability

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// HealthStatus represents the health status of the service
type HealthStatus struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Checks    map[string]string `json:"checks"`
}

// CredentialLister reports the tenant apps with PSP credentials present
type CredentialLister interface {
	Apps() []string
}

// HealthChecker manages health checks for the service
type HealthChecker struct {
	dbPool      *pgxpool.Pool
	credentials CredentialLister
}

// NewHealthChecker creates a new HealthChecker
func NewHealthChecker(dbPool *pgxpool.Pool, credentials CredentialLister) *HealthChecker {
	return &HealthChecker{
		dbPool:      dbPool,
		credentials: credentials,
	}
}

// Live reports process liveness. Always healthy while the process runs.
func (h *HealthChecker) Live() HealthStatus {
	return HealthStatus{
		Status:    "healthy",
		Timestamp: time.Now(),
		Checks:    map[string]string{"process": "healthy"},
	}
}

// Ready performs readiness checks: database reachability and per-app PSP
// credential presence.
func (h *HealthChecker) Ready(ctx context.Context) HealthStatus {
	checks := make(map[string]string)
	overallStatus := "healthy"

	if h.dbPool != nil {
		dbCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()

		if err := h.dbPool.Ping(dbCtx); err != nil {
			checks["database"] = "unhealthy: " + err.Error()
			overallStatus = "unhealthy"
		} else {
			checks["database"] = "healthy"
		}
	} else {
		checks["database"] = "not configured"
	}

	if h.credentials != nil {
		apps := h.credentials.Apps()
		if len(apps) == 0 {
			checks["psp_credentials"] = "unhealthy: no app credentials loaded"
			overallStatus = "unhealthy"
		} else {
			checks["psp_credentials"] = "healthy"
		}
	} else {
		checks["psp_credentials"] = "not configured"
	}

	return HealthStatus{
		Status:    overallStatus,
		Timestamp: time.Now(),
		Checks:    checks,
	}
}

// LiveHandler returns an HTTP handler for the liveness probe
func (h *HealthChecker) LiveHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeStatus(w, h.Live())
	}
}

// ReadyHandler returns an HTTP handler for the readiness probe
func (h *HealthChecker) ReadyHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeStatus(w, h.Ready(r.Context()))
	}
}

func writeStatus(w http.ResponseWriter, status HealthStatus) {
	w.Header().Set("Content-Type", "application/json")
	if status.Status != "healthy" {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	json.NewEncoder(w).Encode(status)
}
