package robodbg

import "testing"

// ---------------------------------------------------------------------------
// Thread registry
// ---------------------------------------------------------------------------

func TestThreadRegistryAddGetRemove(t *testing.T) {
	r := NewThreadRegistry()
	r.Add(&ThreadInfo{ID: 1, Handle: 100})
	r.Add(&ThreadInfo{ID: 2, Handle: 200})

	if r.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", r.Len())
	}
	if t1, ok := r.Get(1); !ok || t1.Handle != 100 {
		t.Fatalf("Get(1) = (%v, %v), want (Handle:100, true)", t1, ok)
	}

	r.Remove(1)
	if _, ok := r.Get(1); ok {
		t.Fatal("Get(1) succeeded after Remove")
	}
	if r.Len() != 1 {
		t.Fatalf("Len() after Remove = %d, want 1", r.Len())
	}
}

func TestThreadRegistryAddOverwritesRecycledID(t *testing.T) {
	r := NewThreadRegistry()
	r.Add(&ThreadInfo{ID: 5, Handle: 1})
	r.Add(&ThreadInfo{ID: 5, Handle: 2})

	th, ok := r.Get(5)
	if !ok || th.Handle != 2 {
		t.Fatalf("Get(5) = (%v, %v), want (Handle:2, true)", th, ok)
	}
	if r.Len() != 1 {
		t.Fatalf("Len() = %d, want 1 (recycled id must not double-count)", r.Len())
	}
}

func TestThreadRegistryClear(t *testing.T) {
	r := NewThreadRegistry()
	r.Add(&ThreadInfo{ID: 1})
	r.Add(&ThreadInfo{ID: 2})
	r.Clear()
	if r.Len() != 0 {
		t.Fatalf("Len() after Clear = %d, want 0", r.Len())
	}
	if ids := r.IDs(); len(ids) != 0 {
		t.Fatalf("IDs() after Clear = %v, want empty", ids)
	}
}
