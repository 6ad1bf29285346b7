//go:build windows

package robodbg

import (
	"syscall"
	"unsafe"
)

// CONTEXT flags for x86 (winnt.h).
const (
	_CONTEXT_i386          = 0x00010000
	_CONTEXT_CONTROL_i386  = _CONTEXT_i386 | 0x1
	_CONTEXT_INTEGER_i386  = _CONTEXT_i386 | 0x2
	_CONTEXT_SEGMENTS_i386 = _CONTEXT_i386 | 0x4
	_CONTEXT_DEBUG_i386    = _CONTEXT_i386 | 0x10
	_CONTEXT_FULL_i386     = _CONTEXT_CONTROL_i386 | _CONTEXT_INTEGER_i386 | _CONTEXT_SEGMENTS_i386
	_CONTEXT_ALL_i386      = _CONTEXT_FULL_i386 | _CONTEXT_DEBUG_i386
)

type floatingSaveArea32 struct {
	ControlWord   uint32
	StatusWord    uint32
	TagWord       uint32
	ErrorOffset   uint32
	ErrorSelector uint32
	DataOffset    uint32
	DataSelector  uint32
	RegisterArea  [80]byte
	Cr0NpxState   uint32
}

// context32 mirrors winnt.h's CONTEXT struct for x86, field-for-field, for
// direct use with GetThreadContext/SetThreadContext on a WOW64 or native
// 32-bit target (spec.md §4.3).
type context32 struct {
	ContextFlags uint32

	Dr0 uint32
	Dr1 uint32
	Dr2 uint32
	Dr3 uint32
	Dr6 uint32
	Dr7 uint32

	FloatSave floatingSaveArea32

	SegGs uint32
	SegFs uint32
	SegEs uint32
	SegDs uint32

	Edi uint32
	Esi uint32
	Ebx uint32
	Edx uint32
	Ecx uint32
	Eax uint32

	Ebp    uint32
	Eip    uint32
	SegCs  uint32
	EFlags uint32
	Esp    uint32
	SegSs  uint32

	ExtendedRegisters [512]byte
}

func getThreadContext32(h syscall.Handle, ctx *context32) error {
	ctx.ContextFlags = _CONTEXT_ALL_i386
	r, _, e := procGetThreadContext.Call(uintptr(h), uintptr(unsafe.Pointer(ctx)))
	if r == 0 {
		return e
	}
	return nil
}

func setThreadContext32(h syscall.Handle, ctx *context32) error {
	r, _, e := procSetThreadContext.Call(uintptr(h), uintptr(unsafe.Pointer(ctx)))
	if r == 0 {
		return e
	}
	return nil
}

func gpRegisters32(ctx *context32) []RegisterInfo {
	return []RegisterInfo{
		{Name: "eip", BitWidth: 32, Value: uint64(ctx.Eip), Group: "control"},
		{Name: "esp", BitWidth: 32, Value: uint64(ctx.Esp), Group: "control"},
		{Name: "ebp", BitWidth: 32, Value: uint64(ctx.Ebp), Group: "control"},
		{Name: "eflags", BitWidth: 32, Value: uint64(ctx.EFlags), Group: "control"},
		{Name: "eax", BitWidth: 32, Value: uint64(ctx.Eax), Group: "general"},
		{Name: "ebx", BitWidth: 32, Value: uint64(ctx.Ebx), Group: "general"},
		{Name: "ecx", BitWidth: 32, Value: uint64(ctx.Ecx), Group: "general"},
		{Name: "edx", BitWidth: 32, Value: uint64(ctx.Edx), Group: "general"},
		{Name: "esi", BitWidth: 32, Value: uint64(ctx.Esi), Group: "general"},
		{Name: "edi", BitWidth: 32, Value: uint64(ctx.Edi), Group: "general"},
		{Name: "cs", BitWidth: 16, Value: uint64(ctx.SegCs), Group: "segment"},
		{Name: "ds", BitWidth: 16, Value: uint64(ctx.SegDs), Group: "segment"},
		{Name: "es", BitWidth: 16, Value: uint64(ctx.SegEs), Group: "segment"},
		{Name: "fs", BitWidth: 16, Value: uint64(ctx.SegFs), Group: "segment"},
		{Name: "gs", BitWidth: 16, Value: uint64(ctx.SegGs), Group: "segment"},
	}
}

func setGPRegister32(ctx *context32, name string, value uint64) bool {
	v := uint32(value)
	switch name {
	case "eip":
		ctx.Eip = v
	case "esp":
		ctx.Esp = v
	case "ebp":
		ctx.Ebp = v
	case "eflags":
		ctx.EFlags = v
	case "eax":
		ctx.Eax = v
	case "ebx":
		ctx.Ebx = v
	case "ecx":
		ctx.Ecx = v
	case "edx":
		ctx.Edx = v
	case "esi":
		ctx.Esi = v
	case "edi":
		ctx.Edi = v
	default:
		return false
	}
	return true
}
