package resumectl

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/smartdevicelink/sdl-core-go/internal/appmodel"
	"github.com/smartdevicelink/sdl-core-go/internal/collab"
	"github.com/smartdevicelink/sdl-core-go/internal/resumectl/store/jsonfile"
)

type appProviderStub struct {
	apps []*appmodel.Application
}

func (p *appProviderStub) Apps() []*appmodel.Application { return p.apps }

func newTestStorage(t *testing.T) *jsonfile.Store {
	t.Helper()
	s, err := jsonfile.Open(filepath.Join(t.TempDir(), "resumption.json"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return s
}

func TestController_SaveAndRestoreRoundTrip(t *testing.T) {
	storage := newTestStorage(t)
	c := NewController(storage, Options{DelayBeforeIgn: time.Hour, DelayAfterIgn: time.Hour, Logger: zerolog.Nop()})

	app := appmodel.NewApplication("app-1", 1, appmodel.Capabilities{IsMedia: true})
	app.DeviceMAC = "AA:BB:CC"
	app.HMIAppID = 99
	app.LastHash = "abc123"
	app.Stack.SetRegular(&appmodel.HmiState{HMILevel: appmodel.HMIFull, AudioState: appmodel.Audible, SystemCtx: appmodel.CtxMain})
	app.Commands[1] = appmodel.Command{CommandID: 1, MenuName: "Play"}

	if err := c.SaveApplication(context.Background(), app); err != nil {
		t.Fatalf("SaveApplication: %v", err)
	}

	fresh := appmodel.NewApplication("app-1", 2, appmodel.Capabilities{IsMedia: true})
	fresh.DeviceMAC = "AA:BB:CC"

	result, err := c.RestoreApplication(context.Background(), fresh, "abc123")
	if err != nil {
		t.Fatalf("RestoreApplication: %v", err)
	}
	if !result.Restored {
		t.Fatalf("restore failed: %s", result.Reason)
	}
	if fresh.HMIAppID != 99 {
		t.Errorf("HMIAppID = %d, want 99", fresh.HMIAppID)
	}
	if _, ok := fresh.Commands[1]; !ok {
		t.Error("restored application missing command 1")
	}
	if got := fresh.Stack.Regular().HMILevel; got != appmodel.HMIFull {
		t.Errorf("restored HMI level = %v, want FULL", got)
	}
}

func TestController_RestoreFailsOnHashMismatch(t *testing.T) {
	storage := newTestStorage(t)
	c := NewController(storage, Options{DelayBeforeIgn: time.Hour, DelayAfterIgn: time.Hour, Logger: zerolog.Nop()})

	app := appmodel.NewApplication("app-1", 1, appmodel.Capabilities{})
	app.DeviceMAC = "mac-1"
	app.HMIAppID = 1
	app.LastHash = "original-hash"
	c.SaveApplication(context.Background(), app)

	fresh := appmodel.NewApplication("app-1", 2, appmodel.Capabilities{})
	fresh.DeviceMAC = "mac-1"

	result, err := c.RestoreApplication(context.Background(), fresh, "different-hash")
	if err != nil {
		t.Fatalf("RestoreApplication: %v", err)
	}
	if result.Restored {
		t.Error("restore succeeded despite hash mismatch")
	}
}

func TestController_RestoreFailsWithNoRecord(t *testing.T) {
	storage := newTestStorage(t)
	c := NewController(storage, Options{Logger: zerolog.Nop()})

	fresh := appmodel.NewApplication("never-saved", 1, appmodel.Capabilities{})
	fresh.DeviceMAC = "mac-x"

	result, err := c.RestoreApplication(context.Background(), fresh, "")
	if err != nil {
		t.Fatalf("RestoreApplication: %v", err)
	}
	if result.Restored {
		t.Error("restore succeeded with no saved record")
	}
}

func TestController_IconPreconditionBlocksRestore(t *testing.T) {
	storage := newTestStorage(t)
	c := NewController(storage, Options{
		DelayBeforeIgn: time.Hour,
		DelayAfterIgn:  time.Hour,
		IconChecker:    missingIconChecker{},
		Logger:         zerolog.Nop(),
	})

	app := appmodel.NewApplication("app-1", 1, appmodel.Capabilities{})
	app.DeviceMAC = "mac-1"
	app.HMIAppID = 1
	app.Files["icon.png"] = appmodel.File{FileName: "icon.png", Persistent: true}
	c.SaveApplication(context.Background(), app)

	fresh := appmodel.NewApplication("app-1", 2, appmodel.Capabilities{})
	fresh.DeviceMAC = "mac-1"

	result, err := c.RestoreApplication(context.Background(), fresh, "")
	if err != nil {
		t.Fatalf("RestoreApplication: %v", err)
	}
	if result.Restored {
		t.Error("restore succeeded despite missing icon file")
	}
}

type missingIconChecker struct{}

func (missingIconChecker) Exists(string) bool { return false }

func TestController_SaveDirtyScansOnlyDirtyApps(t *testing.T) {
	storage := newTestStorage(t)
	c := NewController(storage, Options{Logger: zerolog.Nop()})

	clean := appmodel.NewApplication("clean", 1, appmodel.Capabilities{})
	clean.DeviceMAC = "mac-1"
	clean.HMIAppID = 1

	dirty := appmodel.NewApplication("dirty", 2, appmodel.Capabilities{})
	dirty.DeviceMAC = "mac-2"
	dirty.HMIAppID = 2
	dirty.MarkDirty()

	provider := &appProviderStub{apps: []*appmodel.Application{clean, dirty}}
	c.saveDirty(context.Background(), provider)

	all, err := storage.LoadAll(context.Background())
	if err != nil {
		t.Fatalf("LoadAll: %v", err)
	}
	if len(all) != 1 || all[0].PolicyAppID != "dirty" {
		t.Errorf("LoadAll = %+v, want only the dirty app saved", all)
	}
}

func TestController_OnSuspendRecordsIgnOffTime(t *testing.T) {
	storage := newTestStorage(t)
	c := NewController(storage, Options{Logger: zerolog.Nop()})
	provider := &appProviderStub{}

	if err := c.OnSuspend(context.Background(), provider, appmodel.Meta{VIN: "vin-1"}); err != nil {
		t.Fatalf("OnSuspend: %v", err)
	}

	meta, err := storage.LoadMeta(context.Background())
	if err != nil {
		t.Fatalf("LoadMeta: %v", err)
	}
	if meta.LastIgnOffTime.IsZero() {
		t.Error("LastIgnOffTime was not recorded")
	}
	if meta.VIN != "vin-1" {
		t.Errorf("VIN = %q, want vin-1", meta.VIN)
	}
}

type stubPolicyEngine struct {
	consent appmodel.ConsentStatus
}

func (p *stubPolicyEngine) IsRequestTypeAllowed(string, collab.RequestType) bool { return true }
func (p *stubPolicyEngine) GetUserConsentForDevice(string) appmodel.ConsentStatus {
	return p.consent
}
func (p *stubPolicyEngine) CheckPermissions(appmodel.HMIAppID, appmodel.HMILevel, string) collab.PermissionResult {
	return collab.PermissionResult{Allowed: true}
}

func TestController_RestoreFailsWithoutDeviceConsent(t *testing.T) {
	storage := newTestStorage(t)
	c := NewController(storage, Options{
		DelayBeforeIgn: time.Hour,
		DelayAfterIgn:  time.Hour,
		Policy:         &stubPolicyEngine{consent: appmodel.ConsentDisallowed},
		Logger:         zerolog.Nop(),
	})

	app := appmodel.NewApplication("app-1", 1, appmodel.Capabilities{})
	app.DeviceMAC = "AA:BB:CC"
	app.HMIAppID = 1
	if err := c.SaveApplication(context.Background(), app); err != nil {
		t.Fatalf("SaveApplication: %v", err)
	}

	fresh := appmodel.NewApplication("app-1", 2, appmodel.Capabilities{})
	fresh.DeviceMAC = "AA:BB:CC"
	result, err := c.RestoreApplication(context.Background(), fresh, "")
	if err != nil {
		t.Fatalf("RestoreApplication: %v", err)
	}
	if result.Restored {
		t.Fatal("restore should have been refused without device consent")
	}
}

func TestController_RestoreFailsOutsideDelayBeforeIgnWindow(t *testing.T) {
	storage := newTestStorage(t)
	c := NewController(storage, Options{
		DelayBeforeIgn: 30 * time.Second,
		DelayAfterIgn:  30 * time.Second,
		Logger:         zerolog.Nop(),
	})

	lastIgnOff := time.Now()
	c.mu.Lock()
	c.lastIgnOff = lastIgnOff
	c.mu.Unlock()

	app := appmodel.NewApplication("app-1", 1, appmodel.Capabilities{})
	app.DeviceMAC = "AA:BB:CC"
	app.HMIAppID = 1
	app.IgnOffCount = 1
	if err := c.SaveApplication(context.Background(), app); err != nil {
		t.Fatalf("SaveApplication: %v", err)
	}
	rec, ok, err := storage.LoadApplication(context.Background(), "AA:BB:CC", "app-1")
	if err != nil || !ok {
		t.Fatalf("LoadApplication: ok=%v err=%v", ok, err)
	}
	rec.TimeStamp = lastIgnOff.Add(-60 * time.Second)
	if err := storage.SaveApplication(context.Background(), rec); err != nil {
		t.Fatalf("SaveApplication (backdated): %v", err)
	}

	fresh := appmodel.NewApplication("app-1", 2, appmodel.Capabilities{})
	fresh.DeviceMAC = "AA:BB:CC"

	result, err := c.RestoreApplication(context.Background(), fresh, "")
	if err != nil {
		t.Fatalf("RestoreApplication: %v", err)
	}
	if result.Restored {
		t.Fatal("restore should have been refused: disconnect-before-ign exceeded 30s delay")
	}
}

func TestController_OnSuspendIncrementsAppCounters(t *testing.T) {
	storage := newTestStorage(t)
	c := NewController(storage, Options{Logger: zerolog.Nop()})

	app := appmodel.NewApplication("app-1", 1, appmodel.Capabilities{})
	app.DeviceMAC = "AA:BB:CC"
	app.HMIAppID = 1
	provider := &appProviderStub{apps: []*appmodel.Application{app}}

	if err := c.OnSuspend(context.Background(), provider, appmodel.Meta{}); err != nil {
		t.Fatalf("OnSuspend: %v", err)
	}
	if app.IgnOffCount != 1 || app.SuspendCount != 1 {
		t.Errorf("counters after one OnSuspend = %d/%d, want 1/1", app.IgnOffCount, app.SuspendCount)
	}

	rec, ok, err := storage.LoadApplication(context.Background(), "AA:BB:CC", "app-1")
	if err != nil || !ok {
		t.Fatalf("LoadApplication: ok=%v err=%v", ok, err)
	}
	if rec.IgnOffCount != 1 || rec.SuspendCount != 1 {
		t.Errorf("persisted counters = %d/%d, want 1/1", rec.IgnOffCount, rec.SuspendCount)
	}
}
