package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/smartdevicelink/sdl-core-go/internal/appmgr"
	"github.com/smartdevicelink/sdl-core-go/internal/appmodel"
	"github.com/smartdevicelink/sdl-core-go/internal/requestctl"
)

func newTestManagerForAPI() *appmgr.Manager {
	rc := requestctl.NewController(requestctl.Options{ThreadPoolSize: 1, Logger: zerolog.Nop()})
	return appmgr.New(rc, nil, nil, nil, zerolog.Nop())
}

func TestAppsHandler_ListApps(t *testing.T) {
	mgr := newTestManagerForAPI()
	mgr.RegisterApplication("media-app", 1, appmodel.Capabilities{IsMedia: true})

	r := chi.NewRouter()
	r.Route("/api/v1", func(r chi.Router) {
		NewAppsHandler(mgr).Routes(r)
	})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/apps", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body struct {
		Total int `json:"total"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Total != 1 {
		t.Errorf("total = %d, want 1", body.Total)
	}
}

func TestAppsHandler_GetAppNotFound(t *testing.T) {
	mgr := newTestManagerForAPI()

	r := chi.NewRouter()
	r.Route("/api/v1", func(r chi.Router) {
		NewAppsHandler(mgr).Routes(r)
	})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/apps/999", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestRequestsHandler_Stats(t *testing.T) {
	ctl := requestctl.NewController(requestctl.Options{ThreadPoolSize: 1, Logger: zerolog.Nop()})

	r := chi.NewRouter()
	r.Route("/api/v1", func(r chi.Router) {
		NewRequestsHandler(ctl).Routes(r)
	})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/requests/stats", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body struct {
		TrackedRequests int `json:"tracked_requests"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.TrackedRequests != 0 {
		t.Errorf("tracked_requests = %d, want 0", body.TrackedRequests)
	}
}
