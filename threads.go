package robodbg

import "sync"

// ThreadInfo is the per-thread bookkeeping the dispatch loop and the
// breakpoint tables need: the native handle, the TEB base, and the
// pending-restoration slot it is currently single-stepping through
// (spec.md §4.2, §5).
type ThreadInfo struct {
	ID      uint32
	Handle  uintptr
	TEBBase Address

	// Pending is non-nil while this thread is single-stepping past a
	// restored breakpoint, between the step that disarmed it and the
	// step that re-arms it (spec.md §5 state machine).
	Pending *PendingRestoration
}

// PendingRestoration records the breakpoint a thread disarmed in order to
// step over it, so the dispatch loop's single-step handler knows what to
// re-arm and whether to repeat the callback (spec.md §5).
type PendingRestoration struct {
	// Software is true for an INT3 restoration, false for a hardware
	// debug-register restoration.
	Software bool
	Addr     Address
	Slot     DRSlot
	// LastWasSingleStep is true when the breakpoint callback that armed
	// this restoration returned SingleStep, so the next single-step event
	// must invoke the breakpoint callback
	// again rather than treat the step as a plain single-step event
	// (spec.md §5, "repeat" rule).
	LastWasSingleStep bool
}

// ThreadRegistry tracks every thread known to belong to the debuggee,
// keyed by thread id. Like the breakpoint tables, it is protected by a
// mutex: debug events and callback-issued register/memory requests can
// interleave from the same goroutine, but plugins (freezer, overlay) read
// it from other goroutines.
type ThreadRegistry struct {
	mu      sync.Mutex
	threads map[uint32]*ThreadInfo
}

// NewThreadRegistry returns an empty registry.
func NewThreadRegistry() *ThreadRegistry {
	return &ThreadRegistry{threads: make(map[uint32]*ThreadInfo)}
}

// Add registers a newly observed thread, overwriting any stale entry with
// the same id (native thread ids are recycled by the OS once exited).
func (r *ThreadRegistry) Add(info *ThreadInfo) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.threads[info.ID] = info
}

// Remove drops a thread once an EXIT_THREAD (or process exit) event has
// been observed for it.
func (r *ThreadRegistry) Remove(id uint32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.threads, id)
}

// Get returns the registered thread, if any.
func (r *ThreadRegistry) Get(id uint32) (*ThreadInfo, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.threads[id]
	return t, ok
}

// IDs returns a snapshot of every currently tracked thread id, in no
// particular order.
func (r *ThreadRegistry) IDs() []uint32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]uint32, 0, len(r.threads))
	for id := range r.threads {
		ids = append(ids, id)
	}
	return ids
}

// Len reports how many threads are currently tracked.
func (r *ThreadRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.threads)
}

// Clear empties the registry, used when a process-exit event ends the
// session (spec.md §4.2).
func (r *ThreadRegistry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.threads = make(map[uint32]*ThreadInfo)
}
