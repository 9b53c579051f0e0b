package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/smartdevicelink/sdl-core-go/internal/appmgr"
	"github.com/smartdevicelink/sdl-core-go/internal/appmodel"
)

// AppsHandler exposes read-only introspection over the live application
// set: who is registered, what HMI level they currently hold, and
// whether they are mid-resumption.
type AppsHandler struct {
	mgr *appmgr.Manager
}

func NewAppsHandler(mgr *appmgr.Manager) *AppsHandler {
	return &AppsHandler{mgr: mgr}
}

func (h *AppsHandler) Routes(r chi.Router) {
	r.Get("/apps", h.ListApps)
	r.Get("/apps/{hmiAppID}", h.GetApp)
}

type appSummary struct {
	PolicyAppID   string `json:"policy_app_id"`
	HMIAppID      uint32 `json:"hmi_app_id"`
	ConnectionKey uint32 `json:"connection_key"`
	DeviceMAC     string `json:"device_mac"`
	HMILevel      string `json:"hmi_level"`
	IsAudioApp    bool   `json:"is_audio_app"`
	IsResuming    bool   `json:"is_resuming"`
}

func (h *AppsHandler) summarize(app *appmodel.Application) appSummary {
	return appSummary{
		PolicyAppID:   app.PolicyAppID,
		HMIAppID:      uint32(app.HMIAppID),
		ConnectionKey: uint32(app.ConnectionKey),
		DeviceMAC:     app.DeviceMAC,
		HMILevel:      h.mgr.StateCtl.CurrentLevel(app).String(),
		IsAudioApp:    app.IsAudioApp(),
		IsResuming:    app.IsResuming,
	}
}

func (h *AppsHandler) ListApps(w http.ResponseWriter, r *http.Request) {
	accessor, release := h.mgr.Applications()
	defer release()

	apps := accessor.Apps()
	summaries := make([]appSummary, 0, len(apps))
	for _, app := range apps {
		summaries = append(summaries, h.summarize(app))
	}
	WriteJSON(w, http.StatusOK, map[string]any{
		"apps":  summaries,
		"total": len(summaries),
	})
}

func (h *AppsHandler) GetApp(w http.ResponseWriter, r *http.Request) {
	id, err := PathInt64(r, "hmiAppID")
	if err != nil {
		WriteError(w, http.StatusBadRequest, "invalid hmi app id")
		return
	}

	accessor, release := h.mgr.Applications()
	defer release()

	app := accessor.GetData().ByHMIAppID(appmodel.HMIAppID(id))
	if app == nil {
		WriteError(w, http.StatusNotFound, "application not found")
		return
	}

	WriteJSON(w, http.StatusOK, h.summarize(app))
}
