// Package appmgr is the Application Manager facade of spec.md §2: it
// owns the live ApplicationSet, generates the process-wide identifiers
// (correlation id, hmi_app_id) every other component treats as
// external facts, and wires together the Request, State and Resumption
// controllers behind one surface a transport adapter can call into.
package appmgr

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/smartdevicelink/sdl-core-go/internal/appmodel"
	"github.com/smartdevicelink/sdl-core-go/internal/collab"
	"github.com/smartdevicelink/sdl-core-go/internal/requestctl"
	"github.com/smartdevicelink/sdl-core-go/internal/resumectl"
	"github.com/smartdevicelink/sdl-core-go/internal/statectl"
)

// Manager is the ApplicationManager facade.
type Manager struct {
	mu   sync.RWMutex
	apps appmodel.ApplicationSet

	nextCorrelationID atomic.Uint32
	nextHMIAppID      atomic.Uint32

	RequestCtl *requestctl.Controller
	StateCtl   *statectl.Controller
	ResumeCtl  *resumectl.Controller

	Policy collab.PolicyEngine
	Router collab.MessageRouter

	logger zerolog.Logger
}

// New builds a Manager with its request and state controllers already
// wired together; StateCtl reads the live application set through the
// Manager itself so it never needs its own copy of the set. The
// resumption controller is attached afterward via SetResumeController
// once main has chosen a storage backend.
func New(requestCtl *requestctl.Controller, policy collab.PolicyEngine, router collab.MessageRouter, caps collab.HMICapabilities, logger zerolog.Logger) *Manager {
	m := &Manager{
		apps:       appmodel.ApplicationSet{},
		RequestCtl: requestCtl,
		Policy:     policy,
		Router:     router,
		logger:     logger,
	}
	m.StateCtl = statectl.NewController(m, router, caps, logger)
	return m
}

// SetResumeController attaches the resumption controller once its
// storage backend has been chosen.
func (m *Manager) SetResumeController(rc *resumectl.Controller) {
	m.ResumeCtl = rc
}

// Apps implements statectl.AppStore / resumectl.AppProvider directly on
// Manager so both controllers can be handed `m` itself, in addition to
// DataAccessor exposing the same view to external callers.
func (m *Manager) Apps() []*appmodel.Application {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*appmodel.Application, 0, len(m.apps))
	for _, app := range m.apps {
		out = append(out, app)
	}
	return out
}

// Applications returns a DataAccessor over the live set, holding the
// read lock until the caller is done; callers MUST treat the returned
// accessor as scoped to the current stack frame and never store it.
func (m *Manager) Applications() (DataAccessor, func()) {
	m.mu.RLock()
	return DataAccessor{mu: &m.mu, apps: m.apps}, m.mu.RUnlock
}

// Synchronized runs fn with exclusive (write) access to the live set,
// releasing the lock as soon as fn returns — the pattern every mutation
// (register, unregister, bulk field update) must go through.
func (m *Manager) Synchronized(fn func(appmodel.ApplicationSet)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	fn(m.apps)
}

// NextCorrelationID returns a fresh, process-wide-unique correlation id
// for a request the core itself issues to the HMI.
func (m *Manager) NextCorrelationID() uint32 {
	return m.nextCorrelationID.Add(1)
}

// NextHMIAppID returns a fresh, process-wide-unique hmi_app_id for a
// newly registering application.
func (m *Manager) NextHMIAppID() appmodel.HMIAppID {
	return appmodel.HMIAppID(m.nextHMIAppID.Add(1))
}

// RegisterApplication creates and stores a new Application, assigning it
// a fresh hmi_app_id, and returns it for the caller to complete
// registration (resumption restore, capabilities exchange) against.
func (m *Manager) RegisterApplication(policyAppID string, connKey appmodel.ConnectionKey, caps appmodel.Capabilities) *appmodel.Application {
	app := appmodel.NewApplication(policyAppID, connKey, caps)
	app.HMIAppID = m.NextHMIAppID()
	m.Synchronized(func(set appmodel.ApplicationSet) {
		set[connKey] = app
	})
	return app
}

// UnregisterApplication removes an application and terminates every
// request still tracked for it.
func (m *Manager) UnregisterApplication(connKey appmodel.ConnectionKey) {
	m.Synchronized(func(set appmodel.ApplicationSet) {
		delete(set, connKey)
	})
	if m.RequestCtl != nil {
		m.RequestCtl.TerminateAppRequests(connKey)
	}
}

// ApplicationByConnectionKey looks up a registered application.
func (m *Manager) ApplicationByConnectionKey(connKey appmodel.ConnectionKey) (*appmodel.Application, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	app, ok := m.apps[connKey]
	return app, ok
}

// DispatchMobileRequest runs the full request-acceptance path for a
// decoded mobile message: policy check, rate-limit gate, then handoff
// to RequestCtl. It returns a *collab.Error classifying any refusal so
// the caller can translate it into the correct mobile-side response.
func (m *Manager) DispatchMobileRequest(ctx context.Context, app *appmodel.Application, cmd collab.Command, correlationID uint32, timeoutSec uint64) *collab.Error {
	if m.Policy != nil {
		result := m.Policy.CheckPermissions(app.HMIAppID, m.StateCtl.CurrentLevel(app), "")
		if !result.Allowed {
			return collab.New(collab.KindPolicyDenied, result.Reason)
		}
	}

	isNone := m.StateCtl.CurrentLevel(app) == appmodel.HMINone
	reason := m.RequestCtl.AddMobileRequest(ctx, cmd, app.ConnectionKey, correlationID, timeoutSec, isNone)
	if reason != collab.ReasonNone {
		return collab.New(collab.KindRateLimited, reason.String())
	}
	return nil
}

// DispatchHMIRequest hands an HMI-directed command straight to
// RequestCtl; HMI requests are not policy-checked or rate-limited.
func (m *Manager) DispatchHMIRequest(ctx context.Context, cmd collab.Command, correlationID uint32, timeoutSec uint64) {
	m.RequestCtl.AddHMIRequest(ctx, cmd, correlationID, timeoutSec)
}
