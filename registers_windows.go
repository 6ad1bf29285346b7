//go:build windows

package robodbg

import "syscall"

// windowsRegisters is the Windows RegisterAccessor (spec.md §4.3),
// switching between the 32-bit and 64-bit CONTEXT layout by Arch. Thread
// handles are native syscall.Handle values surfaced as uintptr by the
// adapter and thread registry.
type windowsRegisters struct {
	arch Arch
}

// NewRegisterAccessor returns the Windows-backed RegisterAccessor for the
// given architecture.
func NewRegisterAccessor(arch Arch) RegisterAccessor {
	return &windowsRegisters{arch: arch}
}

func (r *windowsRegisters) Registers(thread uintptr) ([]RegisterInfo, error) {
	h := syscall.Handle(thread)
	if r.arch == ArchAMD64 {
		var ctx context64
		if err := getThreadContext64(h, &ctx); err != nil {
			return nil, err
		}
		return gpRegisters64(&ctx), nil
	}
	var ctx context32
	if err := getThreadContext32(h, &ctx); err != nil {
		return nil, err
	}
	return gpRegisters32(&ctx), nil
}

func (r *windowsRegisters) ReadRegister(thread uintptr, name string) (uint64, bool) {
	regs, err := r.Registers(thread)
	if err != nil {
		return 0, false
	}
	for _, reg := range regs {
		if reg.Name == name {
			return reg.Value, true
		}
	}
	return 0, false
}

func (r *windowsRegisters) WriteRegister(thread uintptr, name string, value uint64) bool {
	h := syscall.Handle(thread)
	if err := suspendThread(h); err != nil {
		return false
	}
	defer resumeThread(h)

	if r.arch == ArchAMD64 {
		var ctx context64
		if err := getThreadContext64(h, &ctx); err != nil {
			return false
		}
		if !setGPRegister64(&ctx, name, value) {
			return false
		}
		return setThreadContext64(h, &ctx) == nil
	}
	var ctx context32
	if err := getThreadContext32(h, &ctx); err != nil {
		return false
	}
	if !setGPRegister32(&ctx, name, value) {
		return false
	}
	return setThreadContext32(h, &ctx) == nil
}

func (r *windowsRegisters) IP(thread uintptr) (Address, bool) {
	name := "eip"
	if r.arch == ArchAMD64 {
		name = "rip"
	}
	v, ok := r.ReadRegister(thread, name)
	return Address(v), ok
}

func (r *windowsRegisters) SetIP(thread uintptr, addr Address) bool {
	name := "eip"
	if r.arch == ArchAMD64 {
		name = "rip"
	}
	return r.WriteRegister(thread, name, uint64(addr))
}

func (r *windowsRegisters) RewindIP(thread uintptr) bool {
	ip, ok := r.IP(thread)
	if !ok {
		return false
	}
	return r.SetIP(thread, ip-1)
}

func (r *windowsRegisters) ReadFlag(thread uintptr, flag Flag) (bool, error) {
	h := syscall.Handle(thread)
	if err := suspendThread(h); err != nil {
		return false, err
	}
	defer resumeThread(h)

	eflags, err := r.readEFlags(h)
	if err != nil {
		return false, err
	}
	return eflags&uint32(flag) != 0, nil
}

func (r *windowsRegisters) WriteFlag(thread uintptr, flag Flag, set bool) error {
	h := syscall.Handle(thread)
	if err := suspendThread(h); err != nil {
		return err
	}
	defer resumeThread(h)

	eflags, err := r.readEFlags(h)
	if err != nil {
		return err
	}
	if set {
		eflags |= uint32(flag)
	} else {
		eflags &^= uint32(flag)
	}
	return r.writeEFlags(h, eflags)
}

// EnableSingleStep sets the trap flag without an explicit suspend/resume:
// it is only called from within the dispatch loop's own event handling,
// where the target thread is already stopped at a debug event (spec.md
// §4.3).
func (r *windowsRegisters) EnableSingleStep(thread uintptr) bool {
	h := syscall.Handle(thread)
	eflags, err := r.readEFlags(h)
	if err != nil {
		return false
	}
	return r.writeEFlags(h, eflags|uint32(FlagTF)) == nil
}

func (r *windowsRegisters) readEFlags(h syscall.Handle) (uint32, error) {
	if r.arch == ArchAMD64 {
		var ctx context64
		if err := getThreadContext64(h, &ctx); err != nil {
			return 0, err
		}
		return ctx.EFlags, nil
	}
	var ctx context32
	if err := getThreadContext32(h, &ctx); err != nil {
		return 0, err
	}
	return ctx.EFlags, nil
}

func (r *windowsRegisters) writeEFlags(h syscall.Handle, eflags uint32) error {
	if r.arch == ArchAMD64 {
		var ctx context64
		if err := getThreadContext64(h, &ctx); err != nil {
			return err
		}
		ctx.EFlags = eflags
		return setThreadContext64(h, &ctx)
	}
	var ctx context32
	if err := getThreadContext32(h, &ctx); err != nil {
		return err
	}
	ctx.EFlags = eflags
	return setThreadContext32(h, &ctx)
}

func (r *windowsRegisters) ReadDebugRegisters(thread uintptr) (DebugRegisters, bool) {
	h := syscall.Handle(thread)
	if r.arch == ArchAMD64 {
		var ctx context64
		if err := getThreadContext64(h, &ctx); err != nil {
			return DebugRegisters{}, false
		}
		return DebugRegisters{Dr0: ctx.Dr0, Dr1: ctx.Dr1, Dr2: ctx.Dr2, Dr3: ctx.Dr3, Dr6: ctx.Dr6, Dr7: ctx.Dr7}, true
	}
	var ctx context32
	if err := getThreadContext32(h, &ctx); err != nil {
		return DebugRegisters{}, false
	}
	return DebugRegisters{
		Dr0: uint64(ctx.Dr0), Dr1: uint64(ctx.Dr1), Dr2: uint64(ctx.Dr2), Dr3: uint64(ctx.Dr3),
		Dr6: uint64(ctx.Dr6), Dr7: uint64(ctx.Dr7),
	}, true
}

func (r *windowsRegisters) WriteDebugRegisters(thread uintptr, regs DebugRegisters) bool {
	h := syscall.Handle(thread)
	if err := suspendThread(h); err != nil {
		return false
	}
	defer resumeThread(h)

	if r.arch == ArchAMD64 {
		var ctx context64
		if err := getThreadContext64(h, &ctx); err != nil {
			return false
		}
		ctx.Dr0, ctx.Dr1, ctx.Dr2, ctx.Dr3 = regs.Dr0, regs.Dr1, regs.Dr2, regs.Dr3
		ctx.Dr6, ctx.Dr7 = regs.Dr6, regs.Dr7
		return setThreadContext64(h, &ctx) == nil
	}
	var ctx context32
	if err := getThreadContext32(h, &ctx); err != nil {
		return false
	}
	ctx.Dr0, ctx.Dr1, ctx.Dr2, ctx.Dr3 = uint32(regs.Dr0), uint32(regs.Dr1), uint32(regs.Dr2), uint32(regs.Dr3)
	ctx.Dr6, ctx.Dr7 = uint32(regs.Dr6), uint32(regs.Dr7)
	return setThreadContext32(h, &ctx) == nil
}
