// Package statectl implements the chain-of-responsibility HMI state
// resolver: applying a regular state change to one application, then
// resolving the resulting FULL/LIMITED focus conflicts across every
// other registered application, per spec.md §4.3.
package statectl

import (
	"github.com/rs/zerolog"

	"github.com/smartdevicelink/sdl-core-go/internal/appmodel"
	"github.com/smartdevicelink/sdl-core-go/internal/collab"
)

// AppStore is the minimal view of the live application set the state
// controller needs: every registered application, in no particular
// order. Its implementation (a DataAccessor-guarded ApplicationSet)
// lives in internal/appmgr; statectl only depends on this interface so
// it can be unit tested without a running manager.
type AppStore interface {
	Apps() []*appmodel.Application
}

// Controller is the StateController of spec.md §4.3.
type Controller struct {
	store  AppStore
	router collab.MessageRouter
	caps   collab.HMICapabilities
	logger zerolog.Logger
}

// NewController builds a Controller over the given application store.
func NewController(store AppStore, router collab.MessageRouter, caps collab.HMICapabilities, logger zerolog.Logger) *Controller {
	return &Controller{store: store, router: router, caps: caps, logger: logger}
}

func (c *Controller) attenuatedSupported() bool {
	if c.caps == nil {
		return false
	}
	return c.caps.AttenuatedSupported()
}

// CurrentLevel returns app's effective HMI level off the top of its
// stack, for callers outside this package (e.g. the policy check in
// appmgr.Manager.DispatchMobileRequest).
func (c *Controller) CurrentLevel(app *appmodel.Application) appmodel.HMILevel {
	return c.currentLevel(app)
}

// currentLevel, currentAudio and currentContext read an application's
// effective state off the top of its stack.
func (c *Controller) currentLevel(app *appmodel.Application) appmodel.HMILevel {
	return app.Stack.Top().EffectiveHMILevel(app.IsAudioApp(), c.attenuatedSupported())
}

func (c *Controller) currentAudio(app *appmodel.Application) appmodel.AudioStreamingState {
	// NaviStreamingConflict scans every registered application, so it's
	// only worth computing when app's stack actually has a
	// NAVI_STREAMING overlay on it — EffectiveAudioState's other
	// branches never consult the value anyway.
	var conflict bool
	if app.Stack.HasOverlay(appmodel.StateNaviStreaming) {
		conflict = appmodel.NaviStreamingConflict(c.store.Apps(), app, c.attenuatedSupported())
	}
	return app.Stack.Top().EffectiveAudioState(app.IsAudioApp(), c.attenuatedSupported(), conflict)
}

func (c *Controller) currentContext(app *appmodel.Application) appmodel.SystemContext {
	return app.Stack.Top().EffectiveSystemContext()
}

// SetRegularState sets app's bottom-of-stack regular state directly,
// with no conflict resolution against other applications. Used for
// system-context-only changes (e.g. entering a menu) that never affect
// focus.
func (c *Controller) SetRegularState(app *appmodel.Application, level appmodel.HMILevel, audio appmodel.AudioStreamingState, sysCtx appmodel.SystemContext) {
	if app == nil {
		return
	}
	oldLevel, oldAudio, oldCtx := c.currentLevel(app), c.currentAudio(app), c.currentContext(app)

	regular := &appmodel.HmiState{HMILevel: level, AudioState: audio, SystemCtx: sysCtx}
	if app.Stack.HasOverlay(appmodel.StateSafetyMode) {
		app.Stack.QueuePostponed(regular)
	} else {
		app.Stack.SetRegular(regular)
	}
	app.MarkDirty()

	c.notifyIfChanged(app, oldLevel, oldAudio, oldCtx)
}

// ApplyRegularState sets app's regular state and then resolves the
// FULL/LIMITED focus conflicts this creates for every other
// application, per HmiLevelConflictResolver's rules. This is the entry
// point ActivateApp (and any other caller granting FULL/LIMITED) must
// use instead of SetRegularState.
func (c *Controller) ApplyRegularState(app *appmodel.Application, level appmodel.HMILevel, audio appmodel.AudioStreamingState, sysCtx appmodel.SystemContext) {
	c.SetRegularState(app, level, audio, sysCtx)
	c.resolveConflicts(app)
}

// ActivateApp grants app FULL HMI level (audible if it is an audio
// application) and resolves the resulting conflicts, mirroring the
// mobile-initiated and HMI-initiated activation paths.
func (c *Controller) ActivateApp(app *appmodel.Application) {
	audio := appmodel.NotAudible
	if app.IsAudioApp() {
		audio = appmodel.Audible
	}
	c.ApplyRegularState(app, appmodel.HMIFull, audio, appmodel.CtxMain)
}

// resolveConflicts applies HmiLevelConflictResolver's exact rule set
// (grounded on state_controller.cc) to every application other than
// applied, which was just granted its own (already-applied) regular
// state.
func (c *Controller) resolveConflicts(applied *appmodel.Application) {
	appliedLevel := c.currentLevel(applied)
	appliedGrabsFull := appliedLevel == appmodel.HMIFull
	appliedGrabsAudio := (appliedLevel == appmodel.HMIFull || appliedLevel == appmodel.HMILimited) && applied.IsAudioApp()

	for _, other := range c.store.Apps() {
		if other == applied {
			continue
		}
		c.resolveOne(applied, appliedGrabsFull, appliedGrabsAudio, other)
	}
}

func (c *Controller) resolveOne(applied *appmodel.Application, appliedGrabsFull, appliedGrabsAudio bool, other *appmodel.Application) {
	curLevel := c.currentLevel(other)
	toResolveHandlesFull := curLevel == appmodel.HMIFull
	toResolveHandlesAudio := (curLevel == appmodel.HMIFull || curLevel == appmodel.HMILimited) && other.IsAudioApp()
	sameAppType := IsSameAppType(applied, other)

	result := curLevel

	if appliedGrabsFull && toResolveHandlesAudio && !sameAppType {
		result = appmodel.HMILimited
	}
	if (appliedGrabsFull && toResolveHandlesFull && !other.IsAudioApp()) ||
		(appliedGrabsAudio && toResolveHandlesAudio && sameAppType) {
		result = appmodel.HMIBackground
	}

	if result == curLevel {
		return
	}

	audio := appmodel.NotAudible
	if result == appmodel.HMILimited {
		audio = appmodel.Audible
	}
	c.logger.Debug().
		Str("policy_app_id", other.PolicyAppID).
		Str("from", curLevel.String()).
		Str("to", result.String()).
		Msg("resolving HMI level conflict")
	c.SetRegularState(other, result, audio, c.currentContext(other))
}

// IsSameAppType reports whether two applications belong to the same
// focus-conflict class: both non-audio, or both media, or both navi, or
// both voice-communication.
func IsSameAppType(a, b *appmodel.Application) bool {
	bothSimple := !a.IsAudioApp() && !b.IsAudioApp()
	return bothSimple || a.Capabilities.Class() == b.Capabilities.Class() && a.IsAudioApp() && b.IsAudioApp()
}

func (c *Controller) notifyIfChanged(app *appmodel.Application, oldLevel appmodel.HMILevel, oldAudio appmodel.AudioStreamingState, oldCtx appmodel.SystemContext) {
	newLevel, newAudio, newCtx := c.currentLevel(app), c.currentAudio(app), c.currentContext(app)
	if newLevel == oldLevel && newAudio == oldAudio && newCtx == oldCtx {
		return
	}
	if c.router != nil {
		c.router.SendHMIStatusNotification(app)
	}
	if newLevel == appmodel.HMINone {
		app.ResetDataInNone()
	}
}

// pushOverlay pushes kind on top of every currently registered
// application's stack and notifies on the resulting change.
func (c *Controller) pushOverlay(kind appmodel.StateID) {
	for _, app := range c.store.Apps() {
		oldLevel, oldAudio, oldCtx := c.currentLevel(app), c.currentAudio(app), c.currentContext(app)
		if kind == appmodel.StatePhoneCall {
			app.Stack.Push(appmodel.NewPhoneCallState(app.Stack.Top(), app.Capabilities.IsMedia))
		} else {
			app.Stack.Push(appmodel.NewOverlayState(kind, app.Stack.Top()))
		}
		c.notifyIfChanged(app, oldLevel, oldAudio, oldCtx)
	}
}

// popOverlay pops kind from every currently registered application's
// stack (a no-op for apps that never had it pushed) and notifies on
// the resulting change.
func (c *Controller) popOverlay(kind appmodel.StateID) {
	for _, app := range c.store.Apps() {
		oldLevel, oldAudio, oldCtx := c.currentLevel(app), c.currentAudio(app), c.currentContext(app)
		app.Stack.Pop(kind)
		c.notifyIfChanged(app, oldLevel, oldAudio, oldCtx)
	}
}

// OnPhoneCallStarted and OnPhoneCallEnded push/pop the PHONE_CALL
// overlay across every application, per BasicCommunication.OnPhoneCall.
func (c *Controller) OnPhoneCallStarted() { c.pushOverlay(appmodel.StatePhoneCall) }
func (c *Controller) OnPhoneCallEnded()   { c.popOverlay(appmodel.StatePhoneCall) }

// OnSafetyModeEnabled and OnSafetyModeDisabled push/pop the
// SAFETY_MODE overlay, per BasicCommunication.OnEmergencyEvent.
func (c *Controller) OnSafetyModeEnabled()  { c.pushOverlay(appmodel.StateSafetyMode) }
func (c *Controller) OnSafetyModeDisabled() { c.popOverlay(appmodel.StateSafetyMode) }

// OnVRStarted and OnVREnded push/pop the VR_SESSION overlay.
func (c *Controller) OnVRStarted() { c.pushOverlay(appmodel.StateVRSession) }
func (c *Controller) OnVREnded()   { c.popOverlay(appmodel.StateVRSession) }

// OnTTSStarted and OnTTSStopped push/pop the TTS_SESSION overlay.
func (c *Controller) OnTTSStarted() { c.pushOverlay(appmodel.StateTTSSession) }
func (c *Controller) OnTTSStopped() { c.popOverlay(appmodel.StateTTSSession) }

// OnNaviStreamingStarted and OnNaviStreamingStopped push/pop the
// NAVI_STREAMING overlay across every application. Its audio
// attenuation (rather than a flat NOT_AUDIBLE) is resolved lazily by
// currentAudio against whichever other audio app, if any, currently
// holds FULL/LIMITED.
func (c *Controller) OnNaviStreamingStarted() { c.pushOverlay(appmodel.StateNaviStreaming) }
func (c *Controller) OnNaviStreamingStopped() { c.popOverlay(appmodel.StateNaviStreaming) }

// IsStateAvailable reports whether state is reachable for a resuming
// application given the overlays currently active, per spec.md §4.3's
// resumption gating: an active VR session or safety mode blocks any
// FULL/LIMITED resumption outright, and an active phone call blocks it
// specifically for media applications.
func (c *Controller) IsStateAvailable(app *appmodel.Application, level appmodel.HMILevel) bool {
	if !app.IsResuming || (level != appmodel.HMIFull && level != appmodel.HMILimited) {
		return true
	}
	if c.anyHasOverlay(appmodel.StateVRSession) || c.anyHasOverlay(appmodel.StateSafetyMode) {
		return false
	}
	if c.anyHasOverlay(appmodel.StatePhoneCall) && app.Capabilities.IsMedia {
		return false
	}
	return true
}

func (c *Controller) anyHasOverlay(kind appmodel.StateID) bool {
	for _, app := range c.store.Apps() {
		if app.Stack.HasOverlay(kind) {
			return true
		}
	}
	return false
}

// GetAvailableHMILevel downgrades a resuming application's requested
// FULL/LIMITED level when another application of the same focus class
// already occupies it, or when no application is currently active and
// the default level is appropriate instead. defaultLevel is whatever
// the policy table designates as the application's non-conflicting
// default (typically BACKGROUND).
func (c *Controller) GetAvailableHMILevel(app *appmodel.Application, requested, defaultLevel appmodel.HMILevel) appmodel.HMILevel {
	if requested != appmodel.HMIFull && requested != appmodel.HMILimited {
		return requested
	}

	sameTypeExists := c.sameTypeInFullOrLimited(app)
	if requested == appmodel.HMILimited {
		if !app.IsAudioApp() || sameTypeExists {
			return defaultLevel
		}
		return requested
	}

	activeExists := c.anyAtFull()
	if app.IsAudioApp() {
		if sameTypeExists {
			return defaultLevel
		}
		if activeExists {
			return appmodel.HMILimited
		}
		return requested
	}
	if activeExists {
		return defaultLevel
	}
	return requested
}

func (c *Controller) sameTypeInFullOrLimited(app *appmodel.Application) bool {
	for _, other := range c.store.Apps() {
		if other == app {
			continue
		}
		level := c.currentLevel(other)
		if (level == appmodel.HMIFull || level == appmodel.HMILimited) && IsSameAppType(app, other) {
			return true
		}
	}
	return false
}

func (c *Controller) anyAtFull() bool {
	for _, app := range c.store.Apps() {
		if c.currentLevel(app) == appmodel.HMIFull {
			return true
		}
	}
	return false
}
