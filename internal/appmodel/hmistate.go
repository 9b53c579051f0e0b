package appmodel

// HmiState is one entry in an application's state stack: either the
// bottom-of-stack REGULAR state (authoritative fields) or an overlay
// state that computes its fields relative to Parent. This is a tagged
// variant rather than the inheritance hierarchy the original C++ used —
// Kind selects which Compute* behavior applies, Parent supplies the
// chain-of-responsibility fallback.
type HmiState struct {
	Kind StateID

	// HMILevel, AudioState and SystemCtx are authoritative only for
	// Kind == StateRegular. Overlay kinds still carry a snapshot here
	// (set at push time) but effective values are computed through
	// Effective*, not read directly, except by StateRegular states.
	HMILevel   HMILevel
	AudioState AudioStreamingState
	SystemCtx  SystemContext

	Parent *HmiState

	// mediaClamp is set only on a StatePhoneCall overlay pushed for a
	// media application; it drives the BACKGROUND clamp in
	// EffectiveHMILevel (spec: phone call clamps media apps to
	// BACKGROUND, leaves other app types' hmi_level untouched).
	mediaClamp bool
}

// NewPhoneCallState builds a PHONE_CALL overlay on top of parent. clampMedia
// should be true iff the owning application is a media app.
func NewPhoneCallState(parent *HmiState, clampMedia bool) *HmiState {
	return &HmiState{Kind: StatePhoneCall, Parent: parent, mediaClamp: clampMedia}
}

// NewOverlayState builds a non-regular overlay of the given kind on top
// of parent. Use NewPhoneCallState for StatePhoneCall so the media clamp
// flag is set correctly.
func NewOverlayState(kind StateID, parent *HmiState) *HmiState {
	return &HmiState{Kind: kind, Parent: parent}
}

// EffectiveHMILevel returns this state's contribution to the app's
// effective HMI level, given whether the owning app is an audio app and
// the HMI's attenuation capability (only TTS consults it).
func (h *HmiState) EffectiveHMILevel(isAudioApp, attenuatedSupported bool) HMILevel {
	switch h.Kind {
	case StateRegular:
		return h.HMILevel
	case StatePhoneCall:
		parent := h.Parent.EffectiveHMILevel(isAudioApp, attenuatedSupported)
		if isAudioApp && isMediaOnly(h) {
			return HMIBackground
		}
		return parent
	case StateSafetyMode:
		return HMINone
	case StateVRSession, StateTTSSession, StateNaviStreaming:
		return h.Parent.EffectiveHMILevel(isAudioApp, attenuatedSupported)
	default:
		return h.Parent.EffectiveHMILevel(isAudioApp, attenuatedSupported)
	}
}

// isMediaOnly exists only so PhoneCallHmiState can single out media apps
// for the BACKGROUND clamp described in spec.md §4.3 without needing a
// capabilities field on HmiState itself; the flag is stashed at push
// time in mediaClamp.
func isMediaOnly(h *HmiState) bool { return h.mediaClamp }

// EffectiveAudioState returns this state's contribution to the app's
// effective audio streaming state.
func (h *HmiState) EffectiveAudioState(isAudioApp, attenuatedSupported, naviStreamingConflict bool) AudioStreamingState {
	if !isAudioApp {
		return NotAudible
	}
	switch h.Kind {
	case StateRegular:
		return h.AudioState
	case StatePhoneCall, StateSafetyMode, StateVRSession:
		return NotAudible
	case StateTTSSession:
		if attenuatedSupported {
			return Attenuated
		}
		return NotAudible
	case StateNaviStreaming:
		if naviStreamingConflict {
			return Attenuated
		}
		return h.Parent.EffectiveAudioState(isAudioApp, attenuatedSupported, naviStreamingConflict)
	default:
		return h.Parent.EffectiveAudioState(isAudioApp, attenuatedSupported, naviStreamingConflict)
	}
}

// NaviStreamingConflict reports whether any application in apps other
// than app itself is an audio app currently occupying FULL or LIMITED —
// the condition spec.md ties to attenuating app's own NAVI_STREAMING
// overlay, since two audio sources cannot both play unattenuated.
// attenuatedSupported is passed through unchanged to the other app's own
// EffectiveHMILevel computation.
func NaviStreamingConflict(apps []*Application, app *Application, attenuatedSupported bool) bool {
	for _, other := range apps {
		if other == app || !other.IsAudioApp() {
			continue
		}
		level := other.Stack.Top().EffectiveHMILevel(other.IsAudioApp(), attenuatedSupported)
		if level == HMIFull || level == HMILimited {
			return true
		}
	}
	return false
}

// EffectiveSystemContext returns this state's contribution to the app's
// effective system context. Only overlay kinds that represent an actual
// context switch override the parent; everything else inherits.
func (h *HmiState) EffectiveSystemContext() SystemContext {
	switch h.Kind {
	case StateRegular:
		return h.SystemCtx
	case StateVRSession:
		return CtxVRSession
	case StateSafetyMode:
		return CtxHMIObscured
	default:
		if h.Parent != nil {
			return h.Parent.EffectiveSystemContext()
		}
		return CtxMain
	}
}
