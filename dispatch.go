package robodbg

// Dispatcher drives the OS Debug Port Adapter's wait/continue loop and
// runs the breakpoint restoration state machine (spec.md §4.1, §5). It is
// OS-agnostic: every side effect goes through the Adapter, MemoryAccessor,
// and RegisterAccessor interfaces it is constructed with, so it can be
// exercised against fakes in tests.
type Dispatcher struct {
	adapter Adapter
	mem     MemoryAccessor
	regs    RegisterAccessor
	threads *ThreadRegistry
	sw      *SoftwareBreakpointTable
	hw      *HardwareBreakpointManager
	cb      Callbacks
	process uintptr
	// imageBase is defaultImageBase(arch) until the first ProcessCreate
	// event supplies the real, ASLR-randomized base (spec.md §9).
	imageBase Address
}

// NewDispatcher wires the collaborators together. The caller retains
// ownership of sw/hw so it can inspect or mutate breakpoint state between
// events (e.g. from a REPL command).
func NewDispatcher(arch Arch, adapter Adapter, mem MemoryAccessor, regs RegisterAccessor, sw *SoftwareBreakpointTable, hw *HardwareBreakpointManager, cb Callbacks) *Dispatcher {
	return &Dispatcher{
		adapter:   adapter,
		mem:       mem,
		regs:      regs,
		threads:   NewThreadRegistry(),
		sw:        sw,
		hw:        hw,
		cb:        cb,
		imageBase: defaultImageBase(arch),
	}
}

// ImageBase returns the runtime base of the debuggee's main image: the
// architectural default until the first ProcessCreate event, the real
// (possibly ASLR-randomized) base afterward (spec.md §9).
func (d *Dispatcher) ImageBase() Address { return d.imageBase }

// Threads exposes the live thread registry for callers that need to
// enumerate or inspect threads outside of a callback (freezer plugin,
// overlay HUD).
func (d *Dispatcher) Threads() *ThreadRegistry { return d.threads }

// Process returns the native handle of the current debuggee, or 0 before
// the first process-create event.
func (d *Dispatcher) Process() uintptr { return d.process }

// Run blocks, repeatedly waiting for and handling debug events until the
// adapter reports an error or the target process exits (spec.md §4.1
// Failure, §7). A non-nil return is the terminating error; nil means the
// process exited normally. Either way the adapter is closed on return.
func (d *Dispatcher) Run() error {
	defer d.adapter.Close()
	for {
		ev, err := d.adapter.Wait()
		if err != nil {
			return err
		}

		disposition := d.handle(ev)

		if ev.Kind == EventProcessExit {
			_ = d.adapter.Continue(ev.ProcessID, ev.ThreadID, disposition)
			return nil
		}
		if err := d.adapter.Continue(ev.ProcessID, ev.ThreadID, disposition); err != nil {
			return err
		}
	}
}

// handle classifies one event, updates thread-registry bookkeeping, and
// returns the continuation disposition to hand back to the OS.
func (d *Dispatcher) handle(ev DebugEvent) Continuation {
	switch ev.Kind {
	case EventProcessCreate:
		d.process = ev.ProcessCreate.ProcessHandle
		d.imageBase = ev.ProcessCreate.ImageBase
		d.threads.Add(&ThreadInfo{
			ID:      ev.ThreadID,
			Handle:  ev.ProcessCreate.ThreadHandle,
			TEBBase: ev.ProcessCreate.TEBBase,
		})
		if d.cb.OnProcessCreate != nil {
			d.cb.OnProcessCreate(ev.ProcessID, ev.ProcessCreate)
		}
		return ContinueHandled

	case EventProcessExit:
		if d.cb.OnProcessExit != nil {
			d.cb.OnProcessExit(ev.ProcessID, ev.ProcessExit)
		}
		d.threads.Clear()
		return ContinueHandled

	case EventThreadCreate:
		t := &ThreadInfo{
			ID:      ev.ThreadID,
			Handle:  ev.ThreadCreate.ThreadHandle,
			TEBBase: ev.ThreadCreate.TEBBase,
		}
		d.threads.Add(t)
		// A thread created after hardware breakpoints were set has no DR7
		// programmed yet; mirror the current slot assignment onto it
		// immediately so invariant coverage doesn't depend on event order.
		d.hw.ApplyToThread(d.regs, t.Handle)
		if d.cb.OnThreadCreate != nil {
			d.cb.OnThreadCreate(ev.ThreadID, ev.ThreadCreate)
		}
		return ContinueHandled

	case EventThreadExit:
		d.threads.Remove(ev.ThreadID)
		if d.cb.OnThreadExit != nil {
			d.cb.OnThreadExit(ev.ThreadID)
		}
		return ContinueHandled

	case EventDLLLoad:
		if d.cb.OnDLLLoad != nil {
			d.cb.OnDLLLoad(ev.DLLLoad)
		}
		return ContinueHandled

	case EventDLLUnload:
		if d.cb.OnDLLUnload != nil {
			d.cb.OnDLLUnload(ev.DLLUnload)
		}
		return ContinueHandled

	case EventDebugString:
		if d.cb.OnDebugString != nil {
			d.cb.OnDebugString(ev.DebugString)
		}
		return ContinueHandled

	case EventRipError:
		if d.cb.OnRipError != nil {
			d.cb.OnRipError(ev.RipError)
		}
		return ContinueHandled

	case EventException:
		return d.handleException(ev)

	default:
		return ContinueUnhandled
	}
}

// handleException routes an exception event to the breakpoint or
// single-step state machine, or to the unhandled-exception hook.
func (d *Dispatcher) handleException(ev DebugEvent) Continuation {
	thread, ok := d.threads.Get(ev.ThreadID)
	if !ok {
		return ContinueUnhandled
	}

	switch ev.Exception.Kind {
	case ExceptionBreakpoint:
		return d.handleSoftwareBreakpoint(thread, ev)
	case ExceptionSingleStep:
		// Windows reports both a requested single step and a hardware
		// (debug-register) breakpoint hit as STATUS_SINGLE_STEP; only
		// DR6's sticky bits tell them apart (spec.md §4.6). A pending
		// restoration always wins, since it was this package's own
		// trap-flag step.
		if thread.Pending != nil {
			return d.handleSingleStep(thread, ev)
		}
		if dr, ok := d.regs.ReadDebugRegisters(thread.Handle); ok && HitSlot(dr.Dr6) != NOP {
			return d.handleHardwareBreakpoint(thread, ev)
		}
		return d.handleSingleStep(thread, ev)
	default:
		if d.cb.OnUnhandledException != nil {
			return d.cb.OnUnhandledException(ev.ThreadID, ev.Exception)
		}
		return ContinueUnhandled
	}
}

// handleSoftwareBreakpoint implements the INT3 side of the restoration
// state machine (spec.md §5): restore the original byte, rewind the
// instruction pointer past the patched byte, invoke the callback, and arm
// a single-step restoration unless the callback chose to Break.
func (d *Dispatcher) handleSoftwareBreakpoint(thread *ThreadInfo, ev DebugEvent) Continuation {
	addr := ev.Exception.Addr
	if !d.sw.Has(addr) {
		if d.cb.OnUnhandledException != nil {
			return d.cb.OnUnhandledException(ev.ThreadID, ev.Exception)
		}
		return ContinueUnhandled
	}

	d.regs.RewindIP(thread.Handle)
	if _, err := d.sw.Disarm(d.mem, d.process, addr); err != nil {
		return ContinueUnhandled
	}

	action := Restore
	if d.cb.OnBreakpoint != nil {
		action = d.cb.OnBreakpoint(ev.ThreadID, addr)
	}
	d.armRestoration(thread, action, true, addr, NOP)
	return ContinueHandled
}

// handleHardwareBreakpoint implements the debug-register side of the
// restoration state machine: read and clear DR6's sticky hit bits, invoke
// the callback, and temporarily disable the hit slot while the thread
// steps past it (spec.md §4.6, §5).
func (d *Dispatcher) handleHardwareBreakpoint(thread *ThreadInfo, ev DebugEvent) Continuation {
	dr, ok := d.regs.ReadDebugRegisters(thread.Handle)
	if !ok {
		return ContinueUnhandled
	}
	slot := HitSlot(dr.Dr6)
	if slot == NOP {
		if d.cb.OnUnhandledException != nil {
			return d.cb.OnUnhandledException(ev.ThreadID, ev.Exception)
		}
		return ContinueUnhandled
	}
	addr, access, _, ok := d.hw.Lookup(slot)
	if !ok {
		return ContinueUnhandled
	}

	dr.Dr6 = 0
	d.regs.WriteDebugRegisters(thread.Handle, dr)

	action := Restore
	if d.cb.OnHardwareBreakpoint != nil {
		action = d.cb.OnHardwareBreakpoint(ev.ThreadID, slot, addr, access)
	}
	if action == Break {
		d.clearHardwareSlotEverywhere(slot)
	} else {
		d.disableSlotOnThread(thread, slot)
	}
	d.armRestoration(thread, action, false, addr, slot)
	return ContinueHandled
}

// disableSlotOnThread clears one slot's DR7 local-enable bit on a single
// thread without forgetting the manager's assignment, so ApplyToThread can
// restore it after the single step.
func (d *Dispatcher) disableSlotOnThread(thread *ThreadInfo, slot DRSlot) {
	dr, ok := d.regs.ReadDebugRegisters(thread.Handle)
	if !ok {
		return
	}
	dr.Dr7 &^= 1 << uint(2*slot)
	d.regs.WriteDebugRegisters(thread.Handle, dr)
}

// clearHardwareSlotEverywhere fully disarms slot: it forgets the manager's
// assignment and re-applies the resulting (now-smaller) DR7 to every known
// thread, so a BREAK continuation leaves nothing armed anywhere rather than
// just disabled on the thread that hit it (spec.md §4.7 "BREAK: clear the
// slot").
func (d *Dispatcher) clearHardwareSlotEverywhere(slot DRSlot) {
	d.hw.Clear(slot)
	for _, tid := range d.threads.IDs() {
		t, ok := d.threads.Get(tid)
		if !ok {
			continue
		}
		d.hw.ApplyToThread(d.regs, t.Handle)
	}
}

// armRestoration sets the trap flag and records pending restoration state
// for the following single-step event, unless action is Break — in which
// case no step is armed and the breakpoint is left as the caller left it:
// disarmed after a software hit, already re-armed after a software repeat
// step, cleared everywhere for a hardware slot (spec.md §5, §3 on Break).
func (d *Dispatcher) armRestoration(thread *ThreadInfo, action ContinuationAction, software bool, addr Address, slot DRSlot) {
	if action == Break {
		return
	}
	d.regs.EnableSingleStep(thread.Handle)
	thread.Pending = &PendingRestoration{
		Software:          software,
		Addr:              addr,
		Slot:              slot,
		LastWasSingleStep: action == SingleStep,
	}
}

// handleSingleStep implements the following-step half of the restoration
// state machine: re-arm whatever was disarmed, and if the breakpoint that
// triggered this restoration was itself continued via SingleStep, repeat
// the breakpoint callback immediately rather than waiting for another trap
// (spec.md §5, "repeat" rule). A single-step trap with no pending
// restoration is a plain step request and goes to OnSingleStep instead.
func (d *Dispatcher) handleSingleStep(thread *ThreadInfo, ev DebugEvent) Continuation {
	p := thread.Pending
	if p == nil {
		if d.cb.OnSingleStep != nil {
			d.cb.OnSingleStep(ev.ThreadID)
		}
		return ContinueHandled
	}
	thread.Pending = nil

	if p.Software {
		d.sw.Rearm(d.mem, d.process, p.Addr)
	} else {
		d.hw.ApplyToThread(d.regs, thread.Handle)
	}

	if !p.LastWasSingleStep {
		return ContinueHandled
	}

	action := Restore
	if p.Software {
		if d.cb.OnBreakpoint != nil {
			action = d.cb.OnBreakpoint(ev.ThreadID, p.Addr)
		}
	} else {
		_, access, _, _ := d.hw.Lookup(p.Slot)
		if d.cb.OnHardwareBreakpoint != nil {
			action = d.cb.OnHardwareBreakpoint(ev.ThreadID, p.Slot, p.Addr, access)
		}
	}
	if p.Software && action != Break {
		d.sw.Disarm(d.mem, d.process, p.Addr)
	}
	if !p.Software {
		if action == Break {
			d.clearHardwareSlotEverywhere(p.Slot)
		} else {
			d.disableSlotOnThread(thread, p.Slot)
		}
	}
	d.armRestoration(thread, action, p.Software, p.Addr, p.Slot)
	return ContinueHandled
}
