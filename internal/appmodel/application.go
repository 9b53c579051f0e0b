package appmodel

import "sync"

// ConnectionKey is the 32-bit handle assigned to a mobile-side application
// at registration. It is unique only for the lifetime of the connection.
type ConnectionKey uint32

// HMIAppID is process-wide unique for the lifetime of the process, used on
// HMI-side messages.
type HMIAppID uint32

// Capabilities describes what kind of audio application, if any, an
// application is. IsAudio is true whenever any of the three specific
// flags is true.
type Capabilities struct {
	IsMedia              bool
	IsNavi               bool
	IsVoiceCommunication bool
}

// IsAudio reports whether the application is any kind of audio app.
func (c Capabilities) IsAudio() bool {
	return c.IsMedia || c.IsNavi || c.IsVoiceCommunication
}

// Class returns the focus-conflict class used by the state controller.
// Non-audio applications all share one class; audio applications are
// classed by their specific kind so that e.g. a media app and a navi app
// never fight over the same LIMITED/FULL slot.
func (c Capabilities) Class() AppTypeClass {
	switch {
	case c.IsMedia:
		return ClassMedia
	case c.IsNavi:
		return ClassNavi
	case c.IsVoiceCommunication:
		return ClassVoiceCommunication
	default:
		return ClassNonAudio
	}
}

// GlobalProperties holds the HMI-visible properties an app can set in
// bulk via SetGlobalProperties.
type GlobalProperties struct {
	HelpPrompt     []string
	TimeoutPrompt  []string
	VRHelp         []string
	MenuTitle      string
	MenuIcon       string
	KeyboardProps  map[string]any
}

// Subscriptions tracks what an app has subscribed to.
type Subscriptions struct {
	Buttons       map[string]bool
	VehicleInfo   map[string]bool
}

func newSubscriptions() Subscriptions {
	return Subscriptions{Buttons: map[string]bool{}, VehicleInfo: map[string]bool{}}
}

// Command, Submenu, ChoiceSet and File are minimal RPC-visible records;
// the command factory (out of core scope) produces the concrete RPC
// payloads, the application manager only needs enough to resume them.
type Command struct {
	CommandID int32
	MenuName  string
	IconValue string
	VRCommands []string
}

type Submenu struct {
	MenuID   int32
	MenuName string
}

type ChoiceSet struct {
	ChoiceSetID int32
	VRCommands  []string
	IconValues  []string
}

type File struct {
	FileName    string
	Persistent  bool
	FileType    string
}

// Application is the central runtime record for one registered mobile
// application. It is identified by the pair (PolicyAppID, ConnectionKey);
// HMIAppID is unique process-wide across the application's lifetime.
type Application struct {
	mu sync.Mutex

	PolicyAppID   string
	ConnectionKey ConnectionKey
	HMIAppID      HMIAppID
	DeviceHandle  string
	DeviceMAC     string

	Capabilities Capabilities

	Commands   map[int32]Command
	Submenus   map[int32]Submenu
	ChoiceSets map[int32]ChoiceSet
	Files      map[string]File

	Subscriptions    Subscriptions
	GlobalProperties GlobalProperties
	GrammarID        uint32

	// Stack is owned exclusively by this application; StateController
	// mutates it only through methods on this type.
	Stack *StateStack

	LastHash   string
	IsResuming bool
	Dirty      bool

	// IgnOffCount and SuspendCount track how many ignition-off and
	// suspend cycles this application has lived through while
	// registered, mirroring resume_ctrl.cc's bookkeeping of the same
	// name. They are persisted on every resumption save and restored
	// verbatim, never reset on restore.
	IgnOffCount  int
	SuspendCount int
}

// NewApplication creates an application with a single REGULAR state at
// HMI level NONE (not audible, MAIN context), pending HMI decisions.
func NewApplication(policyAppID string, connKey ConnectionKey, caps Capabilities) *Application {
	app := &Application{
		PolicyAppID:      policyAppID,
		ConnectionKey:    connKey,
		Capabilities:     caps,
		Commands:         map[int32]Command{},
		Submenus:         map[int32]Submenu{},
		ChoiceSets:       map[int32]ChoiceSet{},
		Files:            map[string]File{},
		Subscriptions:    newSubscriptions(),
		GlobalProperties: GlobalProperties{KeyboardProps: map[string]any{}},
	}
	app.Stack = newStateStack(&HmiState{
		Kind:                StateRegular,
		HMILevel:            HMINone,
		AudioState:          NotAudible,
		SystemCtx:           CtxMain,
	})
	return app
}

// IsAudioApp is a convenience wrapper over Capabilities.IsAudio.
func (a *Application) IsAudioApp() bool { return a.Capabilities.IsAudio() }

// MarkDirty flags the application as needing to be re-persisted on the
// next resumption save tick.
func (a *Application) MarkDirty() {
	a.mu.Lock()
	a.Dirty = true
	a.mu.Unlock()
}

// TakeDirty reports and clears the dirty flag atomically.
func (a *Application) TakeDirty() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	was := a.Dirty
	a.Dirty = false
	return was
}

// MarkIgnOff increments IgnOffCount, called once per application for
// every ignition-off cycle observed while it is registered.
func (a *Application) MarkIgnOff() {
	a.mu.Lock()
	a.IgnOffCount++
	a.mu.Unlock()
}

// MarkSuspended increments SuspendCount, called once per application
// for every suspend cycle observed while it is registered.
func (a *Application) MarkSuspended() {
	a.mu.Lock()
	a.SuspendCount++
	a.mu.Unlock()
}

// ResetDataInNone clears HMI-visible state that only makes sense while an
// application is at HMI level FULL/LIMITED/BACKGROUND. Called whenever a
// regular state transition lands the application at HMI_NONE.
func (a *Application) ResetDataInNone() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.Subscriptions = newSubscriptions()
}

// ApplicationSet is the set of registered applications keyed by
// connection key. All access must go through appmgr.DataAccessor — this
// type itself performs no locking, by design (see appmgr package docs).
type ApplicationSet map[ConnectionKey]*Application

// ByHMIAppID finds an application by its process-wide HMI app id.
// O(n); acceptable because the set is bounded by concurrently connected
// devices, never by historical volume.
func (s ApplicationSet) ByHMIAppID(id HMIAppID) *Application {
	for _, app := range s {
		if app.HMIAppID == id {
			return app
		}
	}
	return nil
}

// ByPolicyAppID finds an application by its mobile-assigned policy id.
func (s ApplicationSet) ByPolicyAppID(policyAppID string) *Application {
	for _, app := range s {
		if app.PolicyAppID == policyAppID {
			return app
		}
	}
	return nil
}
