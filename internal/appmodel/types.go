// Package appmodel holds the core data types shared across the request,
// state, and resumption controllers: applications, HMI levels, audio
// streaming states, and the records persisted across ignition cycles.
package appmodel

import "fmt"

// HMILevel is the coarse foreground status of an application.
type HMILevel int

const (
	HMINone HMILevel = iota
	HMIBackground
	HMILimited
	HMIFull
	hmiLevelInvalid
)

func (l HMILevel) String() string {
	switch l {
	case HMINone:
		return "NONE"
	case HMIBackground:
		return "BACKGROUND"
	case HMILimited:
		return "LIMITED"
	case HMIFull:
		return "FULL"
	default:
		return "INVALID_ENUM"
	}
}

// AudioStreamingState describes how audible an application currently is.
type AudioStreamingState int

const (
	NotAudible AudioStreamingState = iota
	Audible
	Attenuated
	audioStateInvalid
)

func (a AudioStreamingState) String() string {
	switch a {
	case NotAudible:
		return "NOT_AUDIBLE"
	case Audible:
		return "AUDIBLE"
	case Attenuated:
		return "ATTENUATED"
	default:
		return "INVALID_ENUM"
	}
}

// SystemContext is the modal overlay currently active on the HMI.
type SystemContext int

const (
	CtxMain SystemContext = iota
	CtxVRSession
	CtxMenu
	CtxHMIObscured
	CtxAlert
	sysContextInvalid
)

func (c SystemContext) String() string {
	switch c {
	case CtxMain:
		return "MAIN"
	case CtxVRSession:
		return "VRSESSION"
	case CtxMenu:
		return "MENU"
	case CtxHMIObscured:
		return "HMI_OBSCURED"
	case CtxAlert:
		return "ALERT"
	default:
		return "INVALID_ENUM"
	}
}

// StateID tags a position in an application's HMI state stack.
type StateID int

const (
	StateRegular StateID = iota
	StatePhoneCall
	StateSafetyMode
	StateVRSession
	StateTTSSession
	StateNaviStreaming
	StatePostponed
)

func (s StateID) String() string {
	switch s {
	case StateRegular:
		return "REGULAR"
	case StatePhoneCall:
		return "PHONE_CALL"
	case StateSafetyMode:
		return "SAFETY_MODE"
	case StateVRSession:
		return "VR_SESSION"
	case StateTTSSession:
		return "TTS_SESSION"
	case StateNaviStreaming:
		return "NAVI_STREAMING"
	case StatePostponed:
		return "POSTPONED"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", int(s))
	}
}

// AppTypeClass groups applications for focus-conflict resolution. Two
// applications compete for audio focus only if they share a class.
type AppTypeClass int

const (
	ClassNonAudio AppTypeClass = iota
	ClassMedia
	ClassNavi
	ClassVoiceCommunication
)

// ConsentStatus is the result of a per-device policy consent query.
type ConsentStatus int

const (
	ConsentNotRequested ConsentStatus = iota
	ConsentAllowed
	ConsentDisallowed
)
