// Package jsonfile implements store.Storage as a single JSON dictionary
// file, written via write-temp-then-rename so a crash mid-save can never
// leave a half-written file behind. Grounded on the teacher's local
// filesystem audio store (internal/storage/local.go) for the
// directory/atomic-write conventions, generalized from "one file per
// key" to "one dictionary file, rewritten wholesale."
package jsonfile

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/smartdevicelink/sdl-core-go/internal/appmodel"
)

type document struct {
	Meta         appmodel.Meta                `json:"meta"`
	Applications map[string]appmodel.Record   `json:"applications"`
}

func docKey(deviceMAC, policyAppID string) string {
	return deviceMAC + "::" + policyAppID
}

// Store is a mutex-guarded, whole-file JSON store.
type Store struct {
	path string
	mu   sync.Mutex
	doc  document
}

// Open loads path if it exists, or starts empty, and returns a ready
// Store. The file is not created on disk until the first Save call.
func Open(path string) (*Store, error) {
	s := &Store{
		path: path,
		doc:  document{Applications: map[string]appmodel.Record{}},
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, fmt.Errorf("read resumption file: %w", err)
	}
	if len(data) == 0 {
		return s, nil
	}
	if err := json.Unmarshal(data, &s.doc); err != nil {
		return nil, fmt.Errorf("parse resumption file %s: %w", path, err)
	}
	if s.doc.Applications == nil {
		s.doc.Applications = map[string]appmodel.Record{}
	}
	return s, nil
}

func (s *Store) SaveApplication(ctx context.Context, rec appmodel.Record) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	s.doc.Applications[docKey(rec.DeviceMAC, rec.PolicyAppID)] = rec
	s.mu.Unlock()
	return s.flush()
}

func (s *Store) LoadApplication(ctx context.Context, deviceMAC, policyAppID string) (appmodel.Record, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.doc.Applications[docKey(deviceMAC, policyAppID)]
	return rec, ok, nil
}

func (s *Store) DeleteApplication(ctx context.Context, deviceMAC, policyAppID string) error {
	s.mu.Lock()
	delete(s.doc.Applications, docKey(deviceMAC, policyAppID))
	s.mu.Unlock()
	return s.flush()
}

func (s *Store) LoadAll(ctx context.Context) ([]appmodel.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]appmodel.Record, 0, len(s.doc.Applications))
	for _, rec := range s.doc.Applications {
		out = append(out, rec)
	}
	return out, nil
}

func (s *Store) SaveMeta(ctx context.Context, meta appmodel.Meta) error {
	s.mu.Lock()
	s.doc.Meta = meta
	s.mu.Unlock()
	return s.flush()
}

func (s *Store) LoadMeta(ctx context.Context) (appmodel.Meta, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.doc.Meta, nil
}

func (s *Store) Close() error { return nil }

// flush serializes the current document and writes it atomically: the
// new content lands in a sibling temp file first, then os.Rename swaps
// it into place, so readers never observe a partial write.
func (s *Store) flush() error {
	s.mu.Lock()
	data, err := json.MarshalIndent(s.doc, "", "  ")
	s.mu.Unlock()
	if err != nil {
		return fmt.Errorf("marshal resumption document: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create resumption dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".resumption-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp resumption file: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write temp resumption file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close temp resumption file: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename temp resumption file: %w", err)
	}
	return nil
}
