package robodbg

import "testing"

// ---------------------------------------------------------------------------
// Dispatch loop and breakpoint restoration state machine
// ---------------------------------------------------------------------------

func exceptionEvent(tid uint32, kind ExceptionKind, addr Address) DebugEvent {
	return DebugEvent{
		Kind:      EventException,
		ProcessID: 1,
		ThreadID:  tid,
		Exception: ExceptionInfo{Kind: kind, Addr: addr},
	}
}

func TestDispatchBreakLeavesBreakpointDisarmed(t *testing.T) {
	mem := newFakeMemory()
	mem.data[0x1000] = 0x90
	sw := NewSoftwareBreakpointTable()
	sw.Set(mem, 1, 0x1000)

	regs := newFakeRegisters()
	regs.state(7).ip = 0x1001 // exception reports address past the INT3

	hits := 0
	cb := Callbacks{OnBreakpoint: func(tid uint32, addr Address) ContinuationAction {
		hits++
		return Break
	}}
	adapter := &fakeAdapter{
		process: 1,
		events: []DebugEvent{
			{Kind: EventProcessCreate, ProcessID: 1, ThreadID: 7, ProcessCreate: ProcessCreateInfo{ThreadHandle: 7}},
			exceptionEvent(7, ExceptionBreakpoint, 0x1000),
		},
	}
	d := NewDispatcher(ArchAMD64, adapter, mem, regs, sw, hw(), cb)

	if err := runN(d, adapter, 2); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if hits != 1 {
		t.Fatalf("OnBreakpoint called %d times, want 1", hits)
	}
	if mem.data[0x1000] != 0x90 {
		t.Fatalf("memory at breakpoint = %#x, want original 0x90 (left disarmed after Break)", mem.data[0x1000])
	}
}

func TestDispatchRestoreRearmsAfterOneStep(t *testing.T) {
	mem := newFakeMemory()
	mem.data[0x2000] = 0x90
	sw := NewSoftwareBreakpointTable()
	sw.Set(mem, 1, 0x2000)

	regs := newFakeRegisters()
	regs.state(7).ip = 0x2001

	cb := Callbacks{OnBreakpoint: func(tid uint32, addr Address) ContinuationAction {
		return Restore
	}}
	adapter := &fakeAdapter{
		process: 1,
		events: []DebugEvent{
			exceptionEvent(7, ExceptionBreakpoint, 0x2000),
			exceptionEvent(7, ExceptionSingleStep, 0x2000),
		},
	}
	d := NewDispatcher(ArchAMD64, adapter, mem, regs, sw, hw(), cb)
	d.Threads().Add(&ThreadInfo{ID: 7, Handle: 7})

	if err := runN(d, adapter, 2); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if mem.data[0x2000] != int3 {
		t.Fatalf("memory at breakpoint after restoration = %#x, want re-armed 0xCC", mem.data[0x2000])
	}
	thread, _ := d.Threads().Get(7)
	if thread.Pending != nil {
		t.Fatal("thread still has a pending restoration after the single step")
	}
}

func TestDispatchSingleStepRepeatsUntilBreak(t *testing.T) {
	mem := newFakeMemory()
	mem.data[0x3000] = 0x90
	sw := NewSoftwareBreakpointTable()
	sw.Set(mem, 1, 0x3000)

	regs := newFakeRegisters()
	regs.state(7).ip = 0x3001

	calls := 0
	cb := Callbacks{OnBreakpoint: func(tid uint32, addr Address) ContinuationAction {
		calls++
		if calls < 3 {
			return SingleStep
		}
		return Break
	}}
	adapter := &fakeAdapter{
		process: 1,
		events: []DebugEvent{
			exceptionEvent(7, ExceptionBreakpoint, 0x3000),
			exceptionEvent(7, ExceptionSingleStep, 0x3000),
			exceptionEvent(7, ExceptionSingleStep, 0x3000),
		},
	}
	d := NewDispatcher(ArchAMD64, adapter, mem, regs, sw, hw(), cb)
	d.Threads().Add(&ThreadInfo{ID: 7, Handle: 7})

	if err := runN(d, adapter, 3); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if calls != 3 {
		t.Fatalf("OnBreakpoint invoked %d times across the repeat, want 3", calls)
	}
	thread, _ := d.Threads().Get(7)
	if thread.Pending != nil {
		t.Fatal("thread still pending after the repeat chain settled on Break")
	}
	if mem.data[0x3000] != int3 {
		t.Fatalf("memory at breakpoint after settling on Break = %#x, want re-armed 0xCC", mem.data[0x3000])
	}
}

func TestDispatchHardwareBreakClearsSlotEverywhere(t *testing.T) {
	mem := newFakeMemory()
	regs := newFakeRegisters()
	hwMgr := hw()
	slot := hwMgr.Allocate()
	hwMgr.Set(slot, 0x5000, AccessExecute, LenByte)
	regs.state(7).dr.Dr6 = 1 << uint(slot)
	regs.state(7).dr.Dr7 = uint64(hwMgr.EncodeDR7())
	regs.state(8).dr.Dr7 = uint64(hwMgr.EncodeDR7())

	cb := Callbacks{OnHardwareBreakpoint: func(tid uint32, s DRSlot, addr Address, access AccessType) ContinuationAction {
		return Break
	}}
	adapter := &fakeAdapter{process: 1, events: []DebugEvent{exceptionEvent(7, ExceptionSingleStep, 0x5000)}}
	d := NewDispatcher(ArchAMD64, adapter, mem, regs, NewSoftwareBreakpointTable(), hwMgr, cb)
	d.Threads().Add(&ThreadInfo{ID: 7, Handle: 7})
	d.Threads().Add(&ThreadInfo{ID: 8, Handle: 8})

	if err := runN(d, adapter, 1); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if regs.state(7).dr.Dr7 != 0 {
		t.Fatalf("hit thread DR7 = %#x, want 0 once BREAK clears the slot", regs.state(7).dr.Dr7)
	}
	if regs.state(8).dr.Dr7 != 0 {
		t.Fatalf("other thread DR7 = %#x, want 0: BREAK must clear the slot on every known thread, not just the one that hit it", regs.state(8).dr.Dr7)
	}
	if _, _, _, ok := hwMgr.Lookup(slot); ok {
		t.Fatal("manager still reports the slot assigned after BREAK")
	}
}

func TestDispatchHardwareRestoreRearmsAfterOneStep(t *testing.T) {
	mem := newFakeMemory()
	regs := newFakeRegisters()
	hwMgr := hw()
	slot := hwMgr.Allocate()
	hwMgr.Set(slot, 0x6000, AccessWrite, LenDword)
	regs.state(7).dr.Dr6 = 1 << uint(slot)
	regs.state(7).dr.Dr7 = uint64(hwMgr.EncodeDR7())

	cb := Callbacks{OnHardwareBreakpoint: func(tid uint32, s DRSlot, addr Address, access AccessType) ContinuationAction {
		return Restore
	}}
	adapter := &fakeAdapter{process: 1, events: []DebugEvent{
		exceptionEvent(7, ExceptionSingleStep, 0x6000),
		exceptionEvent(7, ExceptionSingleStep, 0x6000),
	}}
	d := NewDispatcher(ArchAMD64, adapter, mem, regs, NewSoftwareBreakpointTable(), hwMgr, cb)
	d.Threads().Add(&ThreadInfo{ID: 7, Handle: 7})

	if err := runN(d, adapter, 2); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if regs.state(7).dr.Dr7&(1<<uint(2*slot)) == 0 {
		t.Fatalf("DR7 local-enable bit for slot %d not re-armed after RESTORE's single step", slot)
	}
	thread, _ := d.Threads().Get(7)
	if thread.Pending != nil {
		t.Fatal("thread still pending after hardware RESTORE settled")
	}
}

func TestDispatchHardwareSingleStepRepeatsUntilBreakClearsSlot(t *testing.T) {
	mem := newFakeMemory()
	regs := newFakeRegisters()
	hwMgr := hw()
	slot := hwMgr.Allocate()
	hwMgr.Set(slot, 0x7000, AccessWrite, LenDword)
	regs.state(7).dr.Dr6 = 1 << uint(slot)
	regs.state(7).dr.Dr7 = uint64(hwMgr.EncodeDR7())

	calls := 0
	cb := Callbacks{OnHardwareBreakpoint: func(tid uint32, s DRSlot, addr Address, access AccessType) ContinuationAction {
		calls++
		if calls < 3 {
			return SingleStep
		}
		return Break
	}}
	adapter := &fakeAdapter{process: 1, events: []DebugEvent{
		exceptionEvent(7, ExceptionSingleStep, 0x7000),
		exceptionEvent(7, ExceptionSingleStep, 0x7000),
		exceptionEvent(7, ExceptionSingleStep, 0x7000),
	}}
	d := NewDispatcher(ArchAMD64, adapter, mem, regs, NewSoftwareBreakpointTable(), hwMgr, cb)
	d.Threads().Add(&ThreadInfo{ID: 7, Handle: 7})

	if err := runN(d, adapter, 3); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if calls != 3 {
		t.Fatalf("OnHardwareBreakpoint invoked %d times, want 3", calls)
	}
	if regs.state(7).dr.Dr7 != 0 {
		t.Fatalf("DR7 = %#x, want 0 once the repeat chain settles on Break", regs.state(7).dr.Dr7)
	}
	thread, _ := d.Threads().Get(7)
	if thread.Pending != nil {
		t.Fatal("thread still pending after hardware repeat chain settled on Break")
	}
}

func TestDispatchNilBreakpointCallbackDefaultsToRestore(t *testing.T) {
	mem := newFakeMemory()
	mem.data[0x8000] = 0x90
	sw := NewSoftwareBreakpointTable()
	sw.Set(mem, 1, 0x8000)

	regs := newFakeRegisters()
	regs.state(7).ip = 0x8001

	adapter := &fakeAdapter{
		process: 1,
		events: []DebugEvent{
			exceptionEvent(7, ExceptionBreakpoint, 0x8000),
			exceptionEvent(7, ExceptionSingleStep, 0x8000),
		},
	}
	d := NewDispatcher(ArchAMD64, adapter, mem, regs, sw, hw(), Callbacks{})
	d.Threads().Add(&ThreadInfo{ID: 7, Handle: 7})

	if err := runN(d, adapter, 2); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if mem.data[0x8000] != int3 {
		t.Fatalf("memory at breakpoint = %#x, want re-armed 0xCC: a nil OnBreakpoint must default to RESTORE, not BREAK", mem.data[0x8000])
	}
}

func TestDispatchNilHardwareBreakpointCallbackDefaultsToRestore(t *testing.T) {
	mem := newFakeMemory()
	regs := newFakeRegisters()
	hwMgr := hw()
	slot := hwMgr.Allocate()
	hwMgr.Set(slot, 0x9000, AccessExecute, LenByte)
	regs.state(7).dr.Dr6 = 1 << uint(slot)
	regs.state(7).dr.Dr7 = uint64(hwMgr.EncodeDR7())

	adapter := &fakeAdapter{process: 1, events: []DebugEvent{exceptionEvent(7, ExceptionSingleStep, 0x9000)}}
	d := NewDispatcher(ArchAMD64, adapter, mem, regs, NewSoftwareBreakpointTable(), hwMgr, Callbacks{})
	d.Threads().Add(&ThreadInfo{ID: 7, Handle: 7})

	if err := runN(d, adapter, 1); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if _, _, _, ok := hwMgr.Lookup(slot); !ok {
		t.Fatal("manager no longer reports the slot assigned: a nil OnHardwareBreakpoint must default to RESTORE, not BREAK")
	}
	thread, _ := d.Threads().Get(7)
	if thread.Pending == nil {
		t.Fatal("thread has no pending restoration: a nil OnHardwareBreakpoint must arm a single-step restore")
	}
}

func TestDispatchProcessExitStopsTheLoop(t *testing.T) {
	mem := newFakeMemory()
	regs := newFakeRegisters()
	exited := false
	cb := Callbacks{OnProcessExit: func(pid uint32, info ProcessExitInfo) { exited = true }}
	adapter := &fakeAdapter{
		process: 1,
		events: []DebugEvent{
			{Kind: EventProcessExit, ProcessID: 1, ProcessExit: ProcessExitInfo{ExitCode: 0}},
		},
	}
	d := NewDispatcher(ArchAMD64, adapter, mem, regs, NewSoftwareBreakpointTable(), hw(), cb)
	if err := d.Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !exited {
		t.Fatal("OnProcessExit was not called")
	}
	if d.Threads().Len() != 0 {
		t.Fatalf("thread registry not cleared on process exit, len=%d", d.Threads().Len())
	}
}

// hw returns a fresh manager; most tests here don't exercise hardware
// breakpoints but Dispatcher requires one.
func hw() *HardwareBreakpointManager { return NewHardwareBreakpointManager() }

// runN drives exactly n iterations of the dispatch loop directly, bypassing
// Run's process-exit early return so tests can assert state between steps
// without needing a terminating event.
func runN(d *Dispatcher, a *fakeAdapter, n int) error {
	for i := 0; i < n; i++ {
		ev, err := a.Wait()
		if err != nil {
			return err
		}
		disposition := d.handle(ev)
		if err := a.Continue(ev.ProcessID, ev.ThreadID, disposition); err != nil {
			return err
		}
	}
	return nil
}
