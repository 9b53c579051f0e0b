// Package resumectl implements the Resumption Controller of spec.md §5:
// debounced persistence of dirty application state, and gated restore
// of that state across reconnects, ignition cycles, and app registration
// races with the current environment.
package resumectl

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/smartdevicelink/sdl-core-go/internal/appmodel"
	"github.com/smartdevicelink/sdl-core-go/internal/collab"
	"github.com/smartdevicelink/sdl-core-go/internal/resumectl/store"
)

// AppProvider exposes the live application set the save timer scans for
// dirty entries; it is the same shape statectl.AppStore needs, kept as
// its own interface so resumectl stays independent of statectl.
type AppProvider interface {
	Apps() []*appmodel.Application
}

// IconChecker answers whether an icon file referenced by a resumption
// record still exists on disk, the precondition spec.md §5 requires
// before a command/choice-set referencing an icon can be restored
// (grounded on the source's verification against the app's icon
// storage before replaying AddCommand/CreateInteractionChoiceSet).
type IconChecker interface {
	Exists(path string) bool
}

type alwaysExists struct{}

func (alwaysExists) Exists(string) bool { return true }

// Options configures a Controller.
type Options struct {
	SaveInterval    time.Duration
	ResumingTimeout time.Duration
	DelayBeforeIgn  time.Duration
	DelayAfterIgn   time.Duration
	HashStringSize  int
	IconChecker     IconChecker

	// Policy is consulted for per-device consent before a restore is
	// applied (resume_ctrl.cc queries policy consent the same way). A
	// nil Policy restores unconditionally, matching the teacher's own
	// "absent optional collaborator" convention elsewhere in this tree.
	Policy collab.PolicyEngine

	Logger zerolog.Logger
}

// Controller is the ResumeController of spec.md §5.
type Controller struct {
	storage store.Storage
	opts    Options

	mu         sync.Mutex
	lastIgnOff time.Time
	lastIgnOn  time.Time

	// launchTime anchors the delay-after-ign check: set when the
	// controller is built and reset on every OnAwake, matching
	// resume_ctrl.cc resetting launch_time on wake before restarting
	// the save timer.
	launchTime time.Time

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewController builds a Controller backed by storage.
func NewController(storage store.Storage, opts Options) *Controller {
	if opts.SaveInterval <= 0 {
		opts.SaveInterval = 10 * time.Second
	}
	if opts.IconChecker == nil {
		opts.IconChecker = alwaysExists{}
	}
	return &Controller{storage: storage, opts: opts, launchTime: time.Now()}
}

// Start launches the debounced save timer, scanning provider's
// applications every SaveInterval for the dirty flag and persisting
// whichever have changed. Grounded on the teacher's Batcher: a single
// timer goroutine, drained on Stop via WaitGroup.
func (c *Controller) Start(ctx context.Context, provider AppProvider) {
	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ticker := time.NewTicker(c.opts.SaveInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.saveDirty(ctx, provider)
			}
		}
	}()
}

// Stop cancels the save timer and waits for it to drain, flushing
// anything currently dirty first so a controlled shutdown never loses a
// pending save.
func (c *Controller) Stop(ctx context.Context, provider AppProvider) {
	if c.cancel != nil {
		c.cancel()
	}
	c.wg.Wait()
	c.saveDirty(ctx, provider)
}

func (c *Controller) saveDirty(ctx context.Context, provider AppProvider) {
	for _, app := range provider.Apps() {
		if !app.TakeDirty() {
			continue
		}
		if err := c.SaveApplication(ctx, app); err != nil {
			c.opts.Logger.Warn().Err(err).Str("policy_app_id", app.PolicyAppID).Msg("resumption save failed")
			app.MarkDirty() // retry next tick rather than silently drop it
		}
	}
}

// SaveApplication persists app's current state immediately, independent
// of the dirty flag or debounce timer — used by explicit save-on-event
// call sites (e.g. a successful AddCommand).
func (c *Controller) SaveApplication(ctx context.Context, app *appmodel.Application) error {
	rec := c.toRecord(app)
	return c.storage.SaveApplication(ctx, rec)
}

func (c *Controller) toRecord(app *appmodel.Application) appmodel.Record {
	commands := make([]appmodel.Command, 0, len(app.Commands))
	for _, cmd := range app.Commands {
		commands = append(commands, cmd)
	}
	submenus := make([]appmodel.Submenu, 0, len(app.Submenus))
	for _, sm := range app.Submenus {
		submenus = append(submenus, sm)
	}
	choiceSets := make([]appmodel.ChoiceSet, 0, len(app.ChoiceSets))
	for _, cs := range app.ChoiceSets {
		choiceSets = append(choiceSets, cs)
	}
	var files []appmodel.File
	for _, f := range app.Files {
		if f.Persistent {
			files = append(files, f)
		}
	}

	return appmodel.Record{
		PolicyAppID:   app.PolicyAppID,
		DeviceMAC:     app.DeviceMAC,
		HMIAppID:      app.HMIAppID,
		HMILevel:      app.Stack.Regular().HMILevel,
		IsMedia:       app.Capabilities.IsMedia,
		GrammarID:     app.GrammarID,
		Hash:          app.LastHash,
		IgnOffCount:   app.IgnOffCount,
		SuspendCount:  app.SuspendCount,
		TimeStamp:     time.Now(),
		Commands:      commands,
		Submenus:      submenus,
		ChoiceSets:    choiceSets,
		GlobalProps:   app.GlobalProperties,
		Subscriptions: app.Subscriptions,
		Files:         files,
	}
}

// RestoreResult reports the outcome of a restore attempt.
type RestoreResult struct {
	Restored bool
	Reason   string
}

// RestoreApplication applies a saved record to app if every precondition
// holds: a record exists, the temporal gate allows it, the resume hash
// matches what the mobile side presents, and every persistent icon file
// referenced by the record still exists on disk. A failure at any step
// is reported via RestoreResult.Reason rather than an error — a missing
// or stale resumption record is expected steady-state behavior, not a
// fault (spec.md §7: a corrupt/unusable record is logged and skipped).
func (c *Controller) RestoreApplication(ctx context.Context, app *appmodel.Application, presentedHash string) (RestoreResult, error) {
	rec, ok, err := c.storage.LoadApplication(ctx, app.DeviceMAC, app.PolicyAppID)
	if err != nil {
		return RestoreResult{}, err
	}
	if !ok {
		return RestoreResult{Reason: "no saved record"}, nil
	}
	if err := rec.Validate(); err != nil {
		return RestoreResult{Reason: "corrupt record: " + err.Error()}, nil
	}
	if !c.withinTemporalWindow(rec.TimeStamp, rec.IgnOffCount) {
		return RestoreResult{Reason: "outside resumption window"}, nil
	}
	if c.opts.Policy != nil && app.DeviceMAC != "" {
		// NotRequested is treated as not-consented for resumption
		// purposes, matching resume_ctrl.cc: resumption never implies
		// consent, it only acts on an affirmative prior grant.
		if c.opts.Policy.GetUserConsentForDevice(app.DeviceMAC) != appmodel.ConsentAllowed {
			return RestoreResult{Reason: "device not consented for resumption"}, nil
		}
	}
	if presentedHash != "" && rec.Hash != "" && presentedHash != rec.Hash {
		return RestoreResult{Reason: "hash mismatch"}, nil
	}
	for _, f := range rec.Files {
		if !c.opts.IconChecker.Exists(f.FileName) {
			return RestoreResult{Reason: "referenced icon file missing: " + f.FileName}, nil
		}
	}

	c.applyRecord(app, rec)
	return RestoreResult{Restored: true}, nil
}

func (c *Controller) applyRecord(app *appmodel.Application, rec appmodel.Record) {
	app.HMIAppID = rec.HMIAppID
	app.GrammarID = rec.GrammarID
	app.LastHash = rec.Hash
	app.IgnOffCount = rec.IgnOffCount
	app.SuspendCount = rec.SuspendCount
	app.GlobalProperties = rec.GlobalProps
	app.Subscriptions = rec.Subscriptions
	app.Commands = map[int32]appmodel.Command{}
	for _, cmd := range rec.Commands {
		app.Commands[cmd.CommandID] = cmd
	}
	app.Submenus = map[int32]appmodel.Submenu{}
	for _, sm := range rec.Submenus {
		app.Submenus[sm.MenuID] = sm
	}
	app.ChoiceSets = map[int32]appmodel.ChoiceSet{}
	for _, cs := range rec.ChoiceSets {
		app.ChoiceSets[cs.ChoiceSetID] = cs
	}
	for _, f := range rec.Files {
		app.Files[f.FileName] = f
	}
	app.Stack.SetRegular(&appmodel.HmiState{
		HMILevel:   rec.HMILevel,
		AudioState: appmodel.NotAudible,
		SystemCtx:  appmodel.CtxMain,
	})
	app.IsResuming = true
}

// withinTemporalWindow implements spec.md §5's ignition-relative gate:
// when ignOffCount is 0 the app has never lived through an ignition
// cycle, so the checks are skipped outright (same ign cycle as when it
// was saved). Otherwise both of the following must hold independently:
//
//   - delay-after-ign: time since this controller's launch/wake must
//     not exceed DelayAfterIgn (the connection came soon enough after
//     SDL started or resumed).
//   - delay-before-ign: the gap between the last recorded ignition-off
//     and the record's own timestamp must not exceed DelayBeforeIgn
//     (the app was still connected close to shutdown).
func (c *Controller) withinTemporalWindow(recordedAt time.Time, ignOffCount int) bool {
	if ignOffCount == 0 {
		return true
	}

	c.mu.Lock()
	lastIgnOff := c.lastIgnOff
	launchTime := c.launchTime
	c.mu.Unlock()

	if time.Since(launchTime) > c.opts.DelayAfterIgn {
		return false
	}

	if lastIgnOff.IsZero() {
		// This process instance never observed an ignition-off (e.g. a
		// fresh restart after the unit itself lost power) — there is
		// nothing in memory to compare the record's timestamp against,
		// so the delay-before-ign check is skipped rather than failed
		// against the zero time.
		return true
	}

	gap := lastIgnOff.Sub(recordedAt)
	if gap < 0 {
		gap = -gap
	}
	return gap <= c.opts.DelayBeforeIgn
}

// OnSuspend flushes every dirty application and records the ignition-off
// timestamp used by the temporal gate, matching the source's behavior
// on IGN_OFF: force a save pass rather than waiting for the next debounce
// tick.
func (c *Controller) OnSuspend(ctx context.Context, provider AppProvider, meta appmodel.Meta) error {
	for _, app := range provider.Apps() {
		app.MarkIgnOff()
		app.MarkSuspended()
		app.MarkDirty()
	}
	c.saveDirty(ctx, provider)

	c.mu.Lock()
	c.lastIgnOff = time.Now()
	c.mu.Unlock()

	meta.LastIgnOffTime = c.lastIgnOff
	return c.storage.SaveMeta(ctx, meta)
}

// OnAwake records the ignition-on timestamp and resets launchTime,
// matching resume_ctrl.cc resetting launch_time on wake before
// restarting the save timer. Callers typically follow this with a
// RestoreApplication pass for every reconnecting app.
func (c *Controller) OnAwake() {
	c.mu.Lock()
	c.lastIgnOn = time.Now()
	c.launchTime = c.lastIgnOn
	c.mu.Unlock()
}

// ApplicationsAtRisk reports policy app ids whose saved record could not
// be validated, supporting an admin "resumption health" surface without
// requiring the caller to replay RestoreApplication against a live
// application.
func (c *Controller) ApplicationsAtRisk(ctx context.Context) ([]string, error) {
	all, err := c.storage.LoadAll(ctx)
	if err != nil {
		return nil, err
	}
	var atRisk []string
	for _, rec := range all {
		if err := rec.Validate(); err != nil {
			atRisk = append(atRisk, rec.PolicyAppID)
		}
	}
	return atRisk, nil
}
