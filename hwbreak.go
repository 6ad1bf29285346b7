package robodbg

import "sync"

// hardwareBreakpoint records what a DR slot currently watches, so the
// manager can re-apply the same slot assignment to every thread (debug
// registers are per-thread, but the debugger presents hardware breakpoints
// as process-wide, spec.md §4.6).
type hardwareBreakpoint struct {
	addr   Address
	access AccessType
	length BreakpointLength
}

// HardwareBreakpointManager owns the DR0-DR3 slot assignments and knows how
// to encode/decode the DR7 control bits (spec.md §4.6). It does not talk to
// the OS directly; callers supply a RegisterAccessor and the native thread
// handles to apply a slot to.
type HardwareBreakpointManager struct {
	mu    sync.Mutex
	slots [4]*hardwareBreakpoint
}

// NewHardwareBreakpointManager returns a manager with all four slots free.
func NewHardwareBreakpointManager() *HardwareBreakpointManager {
	return &HardwareBreakpointManager{}
}

// Allocate picks the lowest free DR slot, or returns NOP if all four are in
// use (spec.md §4.6 edge case).
func (m *HardwareBreakpointManager) Allocate() DRSlot {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, s := range m.slots {
		if s == nil {
			return DRSlot(i)
		}
	}
	return NOP
}

// Set records the watch for a slot. EXECUTE breakpoints must have length 1
// (spec.md §3 semantic rule); callers should validate with ErrBadLength
// before reaching here, but Set double-checks defensively.
func (m *HardwareBreakpointManager) Set(slot DRSlot, addr Address, access AccessType, length BreakpointLength) error {
	if slot < DR0 || slot > DR3 {
		return ErrInvalidSlot
	}
	if access == AccessExecute && length != LenByte {
		return ErrBadLength
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.slots[slot] = &hardwareBreakpoint{addr: addr, access: access, length: length}
	return nil
}

// Clear frees a slot.
func (m *HardwareBreakpointManager) Clear(slot DRSlot) error {
	if slot < DR0 || slot > DR3 {
		return ErrInvalidSlot
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.slots[slot] = nil
	return nil
}

// Lookup reports what, if anything, is assigned to slot.
func (m *HardwareBreakpointManager) Lookup(slot DRSlot) (Address, AccessType, BreakpointLength, bool) {
	if slot < DR0 || slot > DR3 {
		return 0, 0, 0, false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	bp := m.slots[slot]
	if bp == nil {
		return 0, 0, 0, false
	}
	return bp.addr, bp.access, bp.length, true
}

// SlotFor returns the slot currently watching addr, or NOP if none.
func (m *HardwareBreakpointManager) SlotFor(addr Address) DRSlot {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, bp := range m.slots {
		if bp != nil && bp.addr == addr {
			return DRSlot(i)
		}
	}
	return NOP
}

// lengthBits encodes a BreakpointLength to its DR7 two-bit field (spec.md
// §4.6: 00=1, 01=2, 10=8, 11=4).
func lengthBits(l BreakpointLength) uint32 {
	switch l {
	case LenByte:
		return 0b00
	case LenWord:
		return 0b01
	case LenQword:
		return 0b10
	case LenDword:
		return 0b11
	}
	return 0b00
}

// typeBits encodes an AccessType to its DR7 two-bit field (spec.md §4.6:
// EXECUTE=00, WRITE=01, READWRITE=11).
func typeBits(a AccessType) uint32 {
	switch a {
	case AccessExecute:
		return 0b00
	case AccessWrite:
		return 0b01
	case AccessReadWrite:
		return 0b11
	}
	return 0b00
}

// EncodeDR7 builds a full DR7 value from the manager's current slot
// assignments, local-enabling every occupied slot and clearing the rest
// (spec.md §4.6). The caller is responsible for writing the result into
// every thread's debug register file via a RegisterAccessor.
func (m *HardwareBreakpointManager) EncodeDR7() uint32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	var dr7 uint32
	for i, bp := range m.slots {
		if bp == nil {
			continue
		}
		dr7 |= 1 << uint(2*i) // local enable bit 2i
		dr7 |= typeBits(bp.access) << uint(16+4*i)
		dr7 |= lengthBits(bp.length) << uint(18+4*i)
	}
	return dr7
}

// ApplyToThread writes the manager's DR0-DR3 addresses and the derived DR7
// into one thread's debug register file.
func (m *HardwareBreakpointManager) ApplyToThread(regs RegisterAccessor, thread uintptr) bool {
	m.mu.Lock()
	var addrs [4]uint64
	for i, bp := range m.slots {
		if bp != nil {
			addrs[i] = uint64(bp.addr)
		}
	}
	m.mu.Unlock()

	dr := DebugRegisters{
		Dr0: addrs[0],
		Dr1: addrs[1],
		Dr2: addrs[2],
		Dr3: addrs[3],
		Dr7: uint64(m.EncodeDR7()),
	}
	return regs.WriteDebugRegisters(thread, dr)
}

// HitSlot decodes DR6's B0-B3 bits to report which slot(s) triggered the
// current debug exception (spec.md §4.6 GLOSSARY on DR6).
func HitSlot(dr6 uint64) DRSlot {
	for i := 0; i < 4; i++ {
		if dr6&(1<<uint(i)) != 0 {
			return DRSlot(i)
		}
	}
	return NOP
}
