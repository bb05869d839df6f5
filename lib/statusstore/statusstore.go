package statusstore

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"sahibinden-scraper/lib/fsutil"
)

// Status is the operator-facing record read by the dashboard.
type Status struct {
	Running      bool      `json:"running"`
	LoginWaiting bool      `json:"login_waiting"`
	Message      string    `json:"message"`
	Timestamp    time.Time `json:"timestamp"`
}

// Patch lists the fields to change, nil fields are left as they are.
type Patch struct {
	Running      *bool
	LoginWaiting *bool
	Message      *string
}

func Bool(b bool) *bool       { return &b }
func String(s string) *string { return &s }

// Store merge-updates a status file, keys it does not know about (written by
// another tool) are preserved.
type Store struct {
	path string
	now  func() time.Time

	mu sync.Mutex
}

func New(path string, now func() time.Time) *Store {
	if now == nil {
		now = time.Now
	}
	return &Store{path: path, now: now}
}

// readRaw returns the current record as raw fields, a missing or corrupted
// file reads as empty and is overwritten by the next update.
func (s *Store) readRaw() map[string]json.RawMessage {
	raw := map[string]json.RawMessage{}
	err := fsutil.ReadJSON(s.path, &raw)
	if err != nil {
		return map[string]json.RawMessage{}
	}
	return raw
}

func setField(raw map[string]json.RawMessage, key string, v any) error {
	encoded, err := json.Marshal(v)
	if err != nil {
		return err
	}
	raw[key] = encoded
	return nil
}

// Update applies the patch, stamps the record with the current time and writes it atomically.
func (s *Store) Update(p Patch) (Status, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw := s.readRaw()

	fields := []struct {
		key   string
		value any
		set   bool
	}{
		{key: "running", value: p.Running, set: p.Running != nil},
		{key: "login_waiting", value: p.LoginWaiting, set: p.LoginWaiting != nil},
		{key: "message", value: p.Message, set: p.Message != nil},
		{key: "timestamp", value: s.now(), set: true},
	}
	for _, f := range fields {
		if !f.set {
			continue
		}
		err := setField(raw, f.key, f.value)
		if err != nil {
			return Status{}, err
		}
	}

	err := fsutil.WriteJSON(s.path, raw)
	if err != nil {
		return Status{}, fmt.Errorf("write status: %w", err)
	}
	return decode(raw)
}

func decode(raw map[string]json.RawMessage) (Status, error) {
	encoded, err := json.Marshal(raw)
	if err != nil {
		return Status{}, err
	}
	var status Status
	err = json.Unmarshal(encoded, &status)
	return status, err
}

// Read returns the current status, a missing file yields the zero Status.
func (s *Store) Read() (Status, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var status Status
	err := fsutil.ReadJSON(s.path, &status)
	if os.IsNotExist(err) {
		return Status{}, nil
	}
	return status, err
}
