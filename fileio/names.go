package fileio

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"media_ingest/milog"
)

// NameRegistry hands out storage names. A name is taken when it already exists in
// the store or is reserved by an upload that has been accepted but not yet persisted.
type NameRegistry struct {
	mu       sync.Mutex
	store    Store
	reserved map[string]struct{}
}

func NewNameRegistry(store Store) *NameRegistry {
	return &NameRegistry{store: store, reserved: make(map[string]struct{})}
}

// CopyName builds the n-th collision candidate for name, e.g. clip_copy2.mp4
func CopyName(name string, n int) string {
	ext := filepath.Ext(name)
	return fmt.Sprintf("%s_copy%d%s", strings.TrimSuffix(name, ext), n, ext)
}

// ResolveName returns name itself when it is free, otherwise the smallest free
// base_copyN.ext. The returned name is reserved until Release is called.
func (r *NameRegistry) ResolveName(ctx context.Context, name string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	candidate := name
	for n := 1; r.takenLocked(ctx, candidate); n++ {
		candidate = CopyName(name, n)
	}
	r.reserved[candidate] = struct{}{}
	return candidate, candidate != name
}

// Release drops a reservation. Releasing an unreserved name is a no-op.
func (r *NameRegistry) Release(name string) {
	r.mu.Lock()
	delete(r.reserved, name)
	r.mu.Unlock()
}

// Reserved reports the number of outstanding reservations
func (r *NameRegistry) Reserved() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.reserved)
}

func (r *NameRegistry) takenLocked(ctx context.Context, name string) bool {
	if _, ok := r.reserved[name]; ok {
		return true
	}
	exists, err := r.store.Exists(ctx, name)
	if err != nil {
		// An unreachable store must not stall admission. Put refuses to replace an
		// existing entry, so a wrong guess fails the item instead of overwriting.
		milog.Warnw("storage lookup failed, treating name as free", "name", name, "error", err)
		return false
	}
	return exists
}
