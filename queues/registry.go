package queues

import (
	"sort"
	"sync/atomic"
)

// Registry holds the current list of adapters, sorted by queue name for
// deterministic presentation. Membership changes only via full replacement;
// readers always observe either the previous complete list or the new one.
type Registry struct {
	snapshot atomic.Pointer[[]Adapter]
}

// NewRegistry returns an empty, not yet populated registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Replace atomically swaps the visible adapter list and returns the
// displaced snapshot so the caller can release superseded adapters. The new
// list is sorted by queue name before publication.
func (r *Registry) Replace(adapters []Adapter) []Adapter {
	next := make([]Adapter, len(adapters))
	copy(next, adapters)
	sort.Slice(next, func(i, j int) bool { return next[i].Name() < next[j].Name() })

	previous := r.snapshot.Swap(&next)
	if previous == nil {
		return nil
	}
	return *previous
}

// Current returns the presently visible adapter list. Callers must treat the
// returned slice as read-only. A registry that was never populated returns
// nil; a populated-but-empty registry returns an empty non-nil slice.
func (r *Registry) Current() []Adapter {
	snapshot := r.snapshot.Load()
	if snapshot == nil {
		return nil
	}
	return *snapshot
}

// Populated reports whether a discovery pass has ever published a list,
// distinguishing "not yet discovered" from "discovered nothing".
func (r *Registry) Populated() bool {
	return r.snapshot.Load() != nil
}

// Len returns the size of the visible list.
func (r *Registry) Len() int {
	snapshot := r.snapshot.Load()
	if snapshot == nil {
		return 0
	}
	return len(*snapshot)
}
