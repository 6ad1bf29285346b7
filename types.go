package robodbg

// Address is an unsigned pointer-width value identifying a location in the
// target's virtual address space.
type Address uint64

// Arch identifies the target's instruction-set width.
type Arch int

const (
	Arch386 Arch = iota
	ArchAMD64
)

// defaultImageBase returns the compile-time placeholder image base the
// source engine captures before the first process-create event is seen.
// ASLR-aware callers should only trust Slide from OnProcessCreate onward (spec.md
// §9, "Open question" on the compile-time default).
func defaultImageBase(a Arch) Address {
	if a == ArchAMD64 {
		return 0x140000000
	}
	return 0x00400000
}

// AccessType is the kind of memory access a hardware breakpoint triggers on.
type AccessType int

const (
	AccessExecute AccessType = iota
	AccessWrite
	AccessReadWrite
)

// BreakpointLength is the width, in bytes, of a hardware breakpoint's watch
// region. The numeric values match the DR7 length encoding (spec.md §4.6):
// 00=1, 01=2, 10=8, 11=4.
type BreakpointLength int

const (
	LenByte  BreakpointLength = 0
	LenWord  BreakpointLength = 1
	LenQword BreakpointLength = 2
	LenDword BreakpointLength = 3
)

// DRSlot identifies one of the four hardware breakpoint debug registers, or
// NOP when no slot is assigned.
type DRSlot int

const (
	NOP DRSlot = -1
	DR0 DRSlot = 0
	DR1 DRSlot = 1
	DR2 DRSlot = 2
	DR3 DRSlot = 3
)

// Flag identifies one architectural EFLAGS bit.
type Flag uint32

const (
	FlagCF Flag = 1 << 0
	FlagPF Flag = 1 << 2
	FlagAF Flag = 1 << 4
	FlagZF Flag = 1 << 6
	FlagSF Flag = 1 << 7
	FlagTF Flag = 1 << 8
	FlagIF Flag = 1 << 9
	FlagDF Flag = 1 << 10
	FlagOF Flag = 1 << 11
)

// ContinuationAction is the value a breakpoint callback returns to tell the
// dispatch loop how to proceed (spec.md §3 "Continuation decision").
type ContinuationAction int

const (
	// Break continues without single-stepping. On a software breakpoint
	// hit the original byte stays restored and the instruction pointer
	// stays rewound; on a hardware hit the slot is cleared on every
	// thread. When Break ends a SingleStep chain, a software breakpoint,
	// already re-armed by the step, stays armed.
	Break ContinuationAction = iota
	// Restore re-arms the breakpoint after exactly one single-step.
	Restore
	// SingleStep keeps stepping instruction-by-instruction, re-invoking
	// OnBreakpoint/OnHardwareBreakpoint for each subsequent step.
	SingleStep
)
