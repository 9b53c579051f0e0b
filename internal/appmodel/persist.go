package appmodel

import "time"

// Record is the persisted per-application snapshot described in
// spec.md §3, keyed externally by (DeviceMAC, PolicyAppID).
type Record struct {
	PolicyAppID string
	DeviceMAC   string

	HMIAppID     HMIAppID
	HMILevel     HMILevel
	IsMedia      bool
	GrammarID    uint32
	Hash         string
	IgnOffCount  int
	SuspendCount int
	TimeStamp    time.Time

	Commands      []Command
	Submenus      []Submenu
	ChoiceSets    []ChoiceSet
	GlobalProps   GlobalProperties
	Subscriptions Subscriptions
	Files         []File // persistent files only
}

// Validate checks the structural preconditions spec.md §7 requires of a
// saved record before it may be used for resumption. A record failing
// this check is ResumptionDataCorrupt: it must be skipped, not crash the
// restore pass.
func (r *Record) Validate() error {
	if r.PolicyAppID == "" {
		return errMissingField("policy_app_id")
	}
	if r.HMIAppID <= 0 {
		return errMissingField("hmi_app_id")
	}
	if r.TimeStamp.IsZero() {
		return errMissingField("time_stamp")
	}
	return nil
}

func errMissingField(name string) error {
	return &missingFieldError{field: name}
}

type missingFieldError struct{ field string }

func (e *missingFieldError) Error() string { return "resumption record missing field: " + e.field }

// Meta is the module-wide resumption metadata persisted alongside
// per-application records.
type Meta struct {
	LastIgnOffTime time.Time
	Preloaded      bool
	CCPUVersion    string
	WERSCountry    string
	Language       string
	VIN            string
}
