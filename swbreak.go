package robodbg

import "sync"

const int3 = 0xCC

// softwareBreakpoint records the original byte an INT3 patch replaced, so
// it can be restored before the callback inspects the instruction and
// re-armed after the thread steps past it (spec.md §4.5, §5).
type softwareBreakpoint struct {
	addr     Address
	original byte
	enabled  bool
}

// SoftwareBreakpointTable owns every INT3 patch currently applied to the
// target's code, keyed by address (spec.md §4.5). All methods take the
// process handle and a MemoryAccessor so the table itself stays OS-agnostic
// and testable against a fake.
type SoftwareBreakpointTable struct {
	mu  sync.Mutex
	set map[Address]*softwareBreakpoint
}

// NewSoftwareBreakpointTable returns an empty table.
func NewSoftwareBreakpointTable() *SoftwareBreakpointTable {
	return &SoftwareBreakpointTable{set: make(map[Address]*softwareBreakpoint)}
}

// Set patches addr with 0xCC, recording the original byte. Setting an
// address that already has a breakpoint is a no-op that returns nil.
func (t *SoftwareBreakpointTable) Set(mem MemoryAccessor, process uintptr, addr Address) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.set[addr]; ok {
		return nil
	}
	orig, err := readByte(mem, process, addr)
	if err != nil {
		return err
	}
	if err := writeByte(mem, process, addr, int3); err != nil {
		return err
	}
	if err := mem.FlushInstructionCache(process, addr, 1); err != nil {
		return err
	}
	t.set[addr] = &softwareBreakpoint{addr: addr, original: orig, enabled: true}
	return nil
}

// Clear removes a breakpoint, restoring the original byte if it is still
// patched in memory. Clearing an address with no breakpoint is a no-op.
func (t *SoftwareBreakpointTable) Clear(mem MemoryAccessor, process uintptr, addr Address) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	bp, ok := t.set[addr]
	if !ok {
		return nil
	}
	if bp.enabled {
		if err := writeByte(mem, process, addr, bp.original); err != nil {
			return err
		}
		if err := mem.FlushInstructionCache(process, addr, 1); err != nil {
			return err
		}
	}
	delete(t.set, addr)
	return nil
}

// Has reports whether addr currently carries a software breakpoint.
func (t *SoftwareBreakpointTable) Has(addr Address) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.set[addr]
	return ok
}

// Disarm restores the original byte at addr without forgetting the
// breakpoint, so a subsequent Rearm can re-patch it once the thread has
// stepped past (spec.md §5). Returns false if no breakpoint is recorded at
// addr.
func (t *SoftwareBreakpointTable) Disarm(mem MemoryAccessor, process uintptr, addr Address) (bool, error) {
	t.mu.Lock()
	bp, ok := t.set[addr]
	t.mu.Unlock()
	if !ok {
		return false, nil
	}
	if err := writeByte(mem, process, addr, bp.original); err != nil {
		return false, err
	}
	if err := mem.FlushInstructionCache(process, addr, 1); err != nil {
		return false, err
	}
	t.mu.Lock()
	bp.enabled = false
	t.mu.Unlock()
	return true, nil
}

// Rearm re-patches 0xCC at addr after a Disarm, provided the breakpoint has
// not been cleared in the meantime.
func (t *SoftwareBreakpointTable) Rearm(mem MemoryAccessor, process uintptr, addr Address) (bool, error) {
	t.mu.Lock()
	bp, ok := t.set[addr]
	t.mu.Unlock()
	if !ok {
		return false, nil
	}
	if err := writeByte(mem, process, addr, int3); err != nil {
		return false, err
	}
	if err := mem.FlushInstructionCache(process, addr, 1); err != nil {
		return false, err
	}
	t.mu.Lock()
	bp.enabled = true
	t.mu.Unlock()
	return true, nil
}

// OriginalByte returns the byte a breakpoint at addr replaced, for callers
// (backtrace, disassembly-adjacent tooling) that need to see the
// un-patched instruction stream.
func (t *SoftwareBreakpointTable) OriginalByte(addr Address) (byte, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	bp, ok := t.set[addr]
	if !ok {
		return 0, false
	}
	return bp.original, true
}

// Addrs returns every address currently carrying a software breakpoint.
func (t *SoftwareBreakpointTable) Addrs() []Address {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Address, 0, len(t.set))
	for a := range t.set {
		out = append(out, a)
	}
	return out
}
