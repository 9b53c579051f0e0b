package jsonfile

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/smartdevicelink/sdl-core-go/internal/appmodel"
)

func TestStore_SaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "resumption.json")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	rec := appmodel.Record{
		PolicyAppID: "app-1",
		DeviceMAC:   "AA:BB:CC:DD:EE:FF",
		HMIAppID:    42,
		HMILevel:    appmodel.HMIFull,
		TimeStamp:   time.Now(),
	}
	if err := s.SaveApplication(context.Background(), rec); err != nil {
		t.Fatalf("SaveApplication: %v", err)
	}

	reopened, err := Open(path)
	if err != nil {
		t.Fatalf("re-Open: %v", err)
	}
	got, ok, err := reopened.LoadApplication(context.Background(), rec.DeviceMAC, rec.PolicyAppID)
	if err != nil {
		t.Fatalf("LoadApplication: %v", err)
	}
	if !ok {
		t.Fatal("LoadApplication: not found after reopen")
	}
	if got.HMIAppID != rec.HMIAppID || got.HMILevel != rec.HMILevel {
		t.Errorf("round-tripped record = %+v, want matching %+v", got, rec)
	}
}

func TestStore_RejectsInvalidRecord(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "resumption.json"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	err = s.SaveApplication(context.Background(), appmodel.Record{})
	if err == nil {
		t.Fatal("expected validation error for empty record")
	}
}

func TestStore_DeleteApplication(t *testing.T) {
	path := filepath.Join(t.TempDir(), "resumption.json")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	rec := appmodel.Record{PolicyAppID: "app-1", DeviceMAC: "mac-1", HMIAppID: 1, TimeStamp: time.Now()}
	if err := s.SaveApplication(context.Background(), rec); err != nil {
		t.Fatalf("SaveApplication: %v", err)
	}
	if err := s.DeleteApplication(context.Background(), rec.DeviceMAC, rec.PolicyAppID); err != nil {
		t.Fatalf("DeleteApplication: %v", err)
	}
	_, ok, err := s.LoadApplication(context.Background(), rec.DeviceMAC, rec.PolicyAppID)
	if err != nil {
		t.Fatalf("LoadApplication: %v", err)
	}
	if ok {
		t.Error("record still present after delete")
	}
}

func TestStore_LoadAll(t *testing.T) {
	path := filepath.Join(t.TempDir(), "resumption.json")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	now := time.Now()
	s.SaveApplication(context.Background(), appmodel.Record{PolicyAppID: "a", DeviceMAC: "m1", HMIAppID: 1, TimeStamp: now})
	s.SaveApplication(context.Background(), appmodel.Record{PolicyAppID: "b", DeviceMAC: "m2", HMIAppID: 2, TimeStamp: now})

	all, err := s.LoadAll(context.Background())
	if err != nil {
		t.Fatalf("LoadAll: %v", err)
	}
	if len(all) != 2 {
		t.Errorf("LoadAll returned %d records, want 2", len(all))
	}
}

func TestStore_MetaRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "resumption.json")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	meta := appmodel.Meta{VIN: "1HGCM82633A004352", Language: "EN-US"}
	if err := s.SaveMeta(context.Background(), meta); err != nil {
		t.Fatalf("SaveMeta: %v", err)
	}

	reopened, err := Open(path)
	if err != nil {
		t.Fatalf("re-Open: %v", err)
	}
	got, err := reopened.LoadMeta(context.Background())
	if err != nil {
		t.Fatalf("LoadMeta: %v", err)
	}
	if got != meta {
		t.Errorf("LoadMeta = %+v, want %+v", got, meta)
	}
}
