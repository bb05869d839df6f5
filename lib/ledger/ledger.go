// Package ledger keeps the set of listing ids that were already evaluated, it is
// what makes a listing reach the notifier at most once across runs.
package ledger

import (
	"fmt"
	"os"
	"sync"

	"sahibinden-scraper/lib/fsutil"
)

// Ledger is an append-only id set backed by a JSON array file. Ids are never
// removed once added.
type Ledger struct {
	path string

	mu    sync.RWMutex
	ids   map[string]struct{}
	order []string
}

// Open loads the ledger at path, a missing file yields an empty ledger.
// A malformed file is an error: starting over with an empty ledger would
// re-notify every listing on the site.
func Open(path string) (*Ledger, error) {
	l := &Ledger{
		path: path,
		ids:  map[string]struct{}{},
	}

	var ids []string
	err := fsutil.ReadJSON(path, &ids)
	if os.IsNotExist(err) {
		return l, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	for _, id := range ids {
		l.add(id)
	}
	return l, nil
}

// NewMemory creates a ledger that is never persisted.
func NewMemory() *Ledger {
	return &Ledger{ids: map[string]struct{}{}}
}

func (l *Ledger) add(id string) bool {
	if _, ok := l.ids[id]; ok {
		return false
	}
	l.ids[id] = struct{}{}
	l.order = append(l.order, id)
	return true
}

func (l *Ledger) Has(id string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.ids[id]
	return ok
}

// Add adds id to the ledger, returning false if it was already present.
func (l *Ledger) Add(id string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.add(id)
}

func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.order)
}

// IDs returns the ids in insertion order.
func (l *Ledger) IDs() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]string, len(l.order))
	copy(out, l.order)
	return out
}

// Save atomically persists the ledger, it is safe to call after every addition.
func (l *Ledger) Save() error {
	if l.path == "" {
		return nil
	}
	ids := l.IDs()
	err := fsutil.WriteJSON(l.path, ids)
	if err != nil {
		return fmt.Errorf("save ledger: %w", err)
	}
	return nil
}
