//go:build windows

package robodbg

import (
	"syscall"
	"unsafe"
)

// CONTEXT flags for amd64 (winnt.h), used to select which register groups
// GetThreadContext/SetThreadContext exchange (spec.md §4.3).
const (
	_CONTEXT_AMD64            = 0x00100000
	_CONTEXT_CONTROL_AMD64    = _CONTEXT_AMD64 | 0x1
	_CONTEXT_INTEGER_AMD64    = _CONTEXT_AMD64 | 0x2
	_CONTEXT_SEGMENTS_AMD64   = _CONTEXT_AMD64 | 0x4
	_CONTEXT_FLOATING_AMD64   = _CONTEXT_AMD64 | 0x8
	_CONTEXT_DEBUG_AMD64      = _CONTEXT_AMD64 | 0x10
	_CONTEXT_FULL_AMD64       = _CONTEXT_CONTROL_AMD64 | _CONTEXT_INTEGER_AMD64 | _CONTEXT_SEGMENTS_AMD64
	_CONTEXT_ALL_AMD64        = _CONTEXT_FULL_AMD64 | _CONTEXT_FLOATING_AMD64 | _CONTEXT_DEBUG_AMD64
)

// m128a mirrors winnt.h's M128A, used as padding inside the floating-point
// save area this package never inspects field-by-field.
type m128a struct {
	Low  uint64
	High int64
}

// xmmSaveArea32 mirrors winnt.h's XMM_SAVE_AREA32 layout field by field;
// the core never reads its individual FPU/SSE fields.
type xmmSaveArea32 struct {
	ControlWord    uint16
	StatusWord     uint16
	TagWord        byte
	Reserved1      byte
	ErrorOpcode    uint16
	ErrorOffset    uint32
	ErrorSelector  uint16
	Reserved2      uint16
	DataOffset     uint32
	DataSelector   uint16
	Reserved3      uint16
	MxCsr          uint32
	MxCsrMask      uint32
	FloatRegisters [8]m128a
	XmmRegisters   [16]m128a
	Reserved4      [96]byte
}

// context64 mirrors winnt.h's CONTEXT struct for amd64 exactly in field
// order and size, so it can be passed directly to GetThreadContext /
// SetThreadContext (spec.md §4.3). Field names match the architectural
// register names the debugger surfaces through RegisterInfo.
type context64 struct {
	P1Home uint64
	P2Home uint64
	P3Home uint64
	P4Home uint64
	P5Home uint64
	P6Home uint64

	ContextFlags uint32
	MxCsr        uint32

	SegCs uint16
	SegDs uint16
	SegEs uint16
	SegFs uint16
	SegGs uint16
	SegSs uint16
	EFlags uint32

	Dr0 uint64
	Dr1 uint64
	Dr2 uint64
	Dr3 uint64
	Dr6 uint64
	Dr7 uint64

	Rax uint64
	Rcx uint64
	Rdx uint64
	Rbx uint64
	Rsp uint64
	Rbp uint64
	Rsi uint64
	Rdi uint64
	R8  uint64
	R9  uint64
	R10 uint64
	R11 uint64
	R12 uint64
	R13 uint64
	R14 uint64
	R15 uint64

	Rip uint64

	FltSave xmmSaveArea32

	VectorRegister [26]m128a
	VectorControl  uint64

	DebugControl         uint64
	LastBranchToRip       uint64
	LastBranchFromRip     uint64
	LastExceptionToRip    uint64
	LastExceptionFromRip  uint64
}

func getThreadContext64(h syscall.Handle, ctx *context64) error {
	ctx.ContextFlags = _CONTEXT_ALL_AMD64
	r, _, e := procGetThreadContext.Call(uintptr(h), uintptr(unsafe.Pointer(ctx)))
	if r == 0 {
		return e
	}
	return nil
}

func setThreadContext64(h syscall.Handle, ctx *context64) error {
	r, _, e := procSetThreadContext.Call(uintptr(h), uintptr(unsafe.Pointer(ctx)))
	if r == 0 {
		return e
	}
	return nil
}

// gpRegisters64 enumerates the general-purpose/control registers Registers()
// reports for an amd64 thread, in the teacher monitor's display order
// (widest/most-significant first).
func gpRegisters64(ctx *context64) []RegisterInfo {
	return []RegisterInfo{
		{Name: "rip", BitWidth: 64, Value: ctx.Rip, Group: "control"},
		{Name: "rsp", BitWidth: 64, Value: ctx.Rsp, Group: "control"},
		{Name: "rbp", BitWidth: 64, Value: ctx.Rbp, Group: "control"},
		{Name: "eflags", BitWidth: 32, Value: uint64(ctx.EFlags), Group: "control"},
		{Name: "rax", BitWidth: 64, Value: ctx.Rax, Group: "general"},
		{Name: "rbx", BitWidth: 64, Value: ctx.Rbx, Group: "general"},
		{Name: "rcx", BitWidth: 64, Value: ctx.Rcx, Group: "general"},
		{Name: "rdx", BitWidth: 64, Value: ctx.Rdx, Group: "general"},
		{Name: "rsi", BitWidth: 64, Value: ctx.Rsi, Group: "general"},
		{Name: "rdi", BitWidth: 64, Value: ctx.Rdi, Group: "general"},
		{Name: "r8", BitWidth: 64, Value: ctx.R8, Group: "general"},
		{Name: "r9", BitWidth: 64, Value: ctx.R9, Group: "general"},
		{Name: "r10", BitWidth: 64, Value: ctx.R10, Group: "general"},
		{Name: "r11", BitWidth: 64, Value: ctx.R11, Group: "general"},
		{Name: "r12", BitWidth: 64, Value: ctx.R12, Group: "general"},
		{Name: "r13", BitWidth: 64, Value: ctx.R13, Group: "general"},
		{Name: "r14", BitWidth: 64, Value: ctx.R14, Group: "general"},
		{Name: "r15", BitWidth: 64, Value: ctx.R15, Group: "general"},
		{Name: "cs", BitWidth: 16, Value: uint64(ctx.SegCs), Group: "segment"},
		{Name: "ds", BitWidth: 16, Value: uint64(ctx.SegDs), Group: "segment"},
		{Name: "es", BitWidth: 16, Value: uint64(ctx.SegEs), Group: "segment"},
		{Name: "fs", BitWidth: 16, Value: uint64(ctx.SegFs), Group: "segment"},
		{Name: "gs", BitWidth: 16, Value: uint64(ctx.SegGs), Group: "segment"},
		{Name: "ss", BitWidth: 16, Value: uint64(ctx.SegSs), Group: "segment"},
	}
}

// setGPRegister64 writes one named register into ctx, returning false for
// an unrecognized name.
func setGPRegister64(ctx *context64, name string, value uint64) bool {
	switch name {
	case "rip":
		ctx.Rip = value
	case "rsp":
		ctx.Rsp = value
	case "rbp":
		ctx.Rbp = value
	case "eflags":
		ctx.EFlags = uint32(value)
	case "rax":
		ctx.Rax = value
	case "rbx":
		ctx.Rbx = value
	case "rcx":
		ctx.Rcx = value
	case "rdx":
		ctx.Rdx = value
	case "rsi":
		ctx.Rsi = value
	case "rdi":
		ctx.Rdi = value
	case "r8":
		ctx.R8 = value
	case "r9":
		ctx.R9 = value
	case "r10":
		ctx.R10 = value
	case "r11":
		ctx.R11 = value
	case "r12":
		ctx.R12 = value
	case "r13":
		ctx.R13 = value
	case "r14":
		ctx.R14 = value
	case "r15":
		ctx.R15 = value
	default:
		return false
	}
	return true
}
