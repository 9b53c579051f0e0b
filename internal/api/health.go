package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/smartdevicelink/sdl-core-go/internal/resumectl"
)

// HealthResponse is the body returned by GET /api/v1/health.
type HealthResponse struct {
	Status        string            `json:"status"`
	Version       string            `json:"version"`
	UptimeSeconds int64             `json:"uptime_seconds"`
	Checks        map[string]string `json:"checks"`
	AppsAtRisk    []string          `json:"apps_at_resumption_risk,omitempty"`
}

// HealthHandler reports process liveness and the resumption store's
// reachability, the two externally observable facts an operator needs
// before trusting the rest of the admin surface.
type HealthHandler struct {
	resumeCtl *resumectl.Controller
	version   string
	startTime time.Time
}

func NewHealthHandler(resumeCtl *resumectl.Controller, version string, startTime time.Time) *HealthHandler {
	return &HealthHandler{resumeCtl: resumeCtl, version: version, startTime: startTime}
}

func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	checks := make(map[string]string)
	status := "healthy"
	httpStatus := http.StatusOK

	var atRisk []string
	if h.resumeCtl != nil {
		var err error
		atRisk, err = h.resumeCtl.ApplicationsAtRisk(r.Context())
		if err != nil {
			checks["resumption_store"] = "error"
			status = "degraded"
		} else {
			checks["resumption_store"] = "ok"
		}
	} else {
		checks["resumption_store"] = "not_configured"
	}

	resp := HealthResponse{
		Status:        status,
		Version:       h.version,
		UptimeSeconds: int64(time.Since(h.startTime).Seconds()),
		Checks:        checks,
		AppsAtRisk:    atRisk,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpStatus)
	json.NewEncoder(w).Encode(resp)
}
