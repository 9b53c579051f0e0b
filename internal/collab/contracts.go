package collab

import (
	"context"

	"github.com/smartdevicelink/sdl-core-go/internal/appmodel"
)

// Command is the uniform capability set every mobile or HMI command
// exposes, regardless of which concrete RPC it represents (spec.md §6).
// The individual command classes live in the out-of-scope command
// factory; the core only ever talks to this interface.
type Command interface {
	Init() error
	Run(ctx context.Context)
	OnEvent(ev Event)
	OnTimeOut()
	CleanUp()
	DefaultTimeoutMS() uint32
	CheckPermissions() error
}

// Event is an asynchronous HMI response or notification routed back to
// the request that issued it, matched by CorrelationID.
type Event struct {
	FunctionID    int32
	CorrelationID uint32
	Payload       any
}

// MobileMessage is a decoded (not raw-byte) message arriving from a
// mobile application. Framing, encoding, and transport are entirely out
// of core scope; by the time the core sees a MobileMessage it has
// already been parsed.
type MobileMessage struct {
	FunctionID    int32
	CorrelationID uint32
	ConnectionKey appmodel.ConnectionKey
	Params        map[string]any
	BinaryData    []byte
}

// HMIMessage is the HMI-side analogue of MobileMessage.
type HMIMessage struct {
	FunctionID    int32
	CorrelationID uint32
	Params        map[string]any
}

// MobileCommandFactory produces a Command for a decoded mobile message.
type MobileCommandFactory interface {
	CreateCommand(msg MobileMessage) (Command, error)
}

// HMICommandFactory produces a Command for a decoded HMI message.
type HMICommandFactory interface {
	CreateCommand(msg HMIMessage) (Command, error)
}

// RequestType distinguishes policy queries made about mobile RPC
// requests (as opposed to notifications, which are not policy-checked).
type RequestType int

const (
	RequestTypeRPC RequestType = iota
	RequestTypeNotification
)

// PermissionResult is the outcome of a per-RPC, per-HMI-level policy
// check.
type PermissionResult struct {
	Allowed bool
	Reason  string
}

// PolicyEngine is the external policy decision component. The core never
// implements policy logic itself — it only queries it (spec.md §1 Non-goals).
type PolicyEngine interface {
	IsRequestTypeAllowed(policyAppID string, reqType RequestType) bool
	GetUserConsentForDevice(deviceMAC string) appmodel.ConsentStatus
	CheckPermissions(appID appmodel.HMIAppID, level appmodel.HMILevel, rpc string) PermissionResult
}

// MessageRouter delivers mobile/HMI commands and notifications to their
// respective transports, and resolves a device handle to its MAC
// address. Transport framing and sockets are entirely out of scope.
type MessageRouter interface {
	ManageMobileCommand(cmd Command) error
	ManageHMICommand(cmd Command) error
	SendHMIStatusNotification(app *appmodel.Application)
	GetDeviceMacAddressForHandle(handle string) (string, error)
}

// HMICapabilities reports static facts about the connected HMI that
// affect state computation, per spec.md §4.3 (TTS attenuation support).
type HMICapabilities interface {
	AttenuatedSupported() bool
}
