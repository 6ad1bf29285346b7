package robodbg

import (
	"fmt"
	"log"
)

// Debugger is the top-level session handle spec.md §2 describes: it owns
// the adapter, the breakpoint tables, and the dispatch loop, and exposes
// the operations a REPL or plugin drives a session with.
type Debugger struct {
	Arch Arch

	// Verbose is the configuration surface's one boolean (spec.md §6):
	// when true, any hook left nil in the Callbacks passed to NewDebugger
	// logs a diagnostic line via DefaultCallbacks instead of doing
	// nothing. It can be toggled at any point in the session's lifetime.
	Verbose bool

	adapter Adapter
	mem     MemoryAccessor
	regs    RegisterAccessor
	sw      *SoftwareBreakpointTable
	hw      *HardwareBreakpointManager
	dsp     *Dispatcher
}

// NewDebugger builds a session around the given OS adapter and accessors.
// Callers on non-Windows platforms get a stub Adapter that fails every
// operation with ErrUnsupportedOS (adapter_stub.go), so the rest of the
// package still builds and tests on any GOOS. Any hook left nil in cb
// falls back to DefaultCallbacks, gated by Debugger.Verbose (spec.md §4.8,
// §6).
func NewDebugger(arch Arch, adapter Adapter, mem MemoryAccessor, regs RegisterAccessor, cb Callbacks) *Debugger {
	sw := NewSoftwareBreakpointTable()
	hw := NewHardwareBreakpointManager()
	d := &Debugger{
		Arch:    arch,
		adapter: adapter,
		mem:     mem,
		regs:    regs,
		sw:      sw,
		hw:      hw,
	}
	cb = mergeCallbacks(cb, DefaultCallbacks(&d.Verbose))
	d.dsp = NewDispatcher(arch, adapter, mem, regs, sw, hw, cb)
	return d
}

// Launch starts path under debug control and begins the dispatch loop,
// blocking until the process exits or the adapter reports an error
// (spec.md §4.1).
func (d *Debugger) Launch(path string, args []string) error {
	if err := d.adapter.Launch(path, args); err != nil {
		return fmt.Errorf("robodbg: launch %s: %w", path, err)
	}
	return d.dsp.Run()
}

// Attach begins debugging an already-running process by pid, refreshes the
// thread registry with every thread that already existed (spec.md §4.2),
// and begins the dispatch loop.
func (d *Debugger) Attach(pid int) error {
	if err := d.adapter.Attach(pid); err != nil {
		return fmt.Errorf("robodbg: attach %d: %w", pid, err)
	}
	d.refreshThreads(uint32(pid))
	return d.dsp.Run()
}

// refreshThreads populates the registry with every thread that existed
// before the debug port connected: only threads created afterward raise
// their own CREATE_THREAD_DEBUG_EVENT, so without this a pre-existing
// thread stays invisible to the registry and to SetHardwareBreakpoint's
// per-thread broadcast until it happens to exit and get replaced (spec.md
// §4.2 "Refresh snapshot"). Enumeration or open failures are logged and
// skipped (spec.md §7 "OS call failure"); the session still proceeds on
// whatever events the dispatch loop observes from here.
func (d *Debugger) refreshThreads(pid uint32) {
	ids, err := EnumerateThreads(pid)
	if err != nil {
		if d.Verbose {
			log.Printf("robodbg: enumerate threads for pid %d: %v", pid, err)
		}
		return
	}
	for _, tid := range ids {
		if _, ok := d.dsp.Threads().Get(tid); ok {
			continue
		}
		handle, err := OpenThreadHandle(tid)
		if err != nil {
			if d.Verbose {
				log.Printf("robodbg: open thread %d: %v", tid, err)
			}
			continue
		}
		t := &ThreadInfo{ID: tid, Handle: handle}
		d.dsp.Threads().Add(t)
		d.hw.ApplyToThread(d.regs, t.Handle)
	}
}

// Detach stops debugging, optionally killing the target, and releases the
// adapter's handles.
func (d *Debugger) Detach(kill bool) error {
	if err := d.adapter.Detach(kill); err != nil {
		return err
	}
	return d.adapter.Close()
}

// SetBreakpoint installs a software breakpoint at addr (spec.md §4.5).
func (d *Debugger) SetBreakpoint(addr Address) error {
	return d.sw.Set(d.mem, d.adapter.ProcessHandle(), addr)
}

// ClearBreakpoint removes a software breakpoint at addr.
func (d *Debugger) ClearBreakpoint(addr Address) error {
	return d.sw.Clear(d.mem, d.adapter.ProcessHandle(), addr)
}

// SetHardwareBreakpoint allocates a DR slot watching addr for the given
// access type and length, and applies it to every currently known thread
// (spec.md §4.6). Returns ErrInvalidSlot if all four slots are occupied.
func (d *Debugger) SetHardwareBreakpoint(addr Address, access AccessType, length BreakpointLength) (DRSlot, error) {
	slot := d.hw.Allocate()
	if slot == NOP {
		return NOP, ErrInvalidSlot
	}
	if err := d.hw.Set(slot, addr, access, length); err != nil {
		return NOP, err
	}
	for _, tid := range d.dsp.Threads().IDs() {
		t, ok := d.dsp.Threads().Get(tid)
		if !ok {
			continue
		}
		d.hw.ApplyToThread(d.regs, t.Handle)
	}
	return slot, nil
}

// ClearHardwareBreakpoint frees slot and re-applies the now-smaller slot
// set to every known thread.
func (d *Debugger) ClearHardwareBreakpoint(slot DRSlot) error {
	if err := d.hw.Clear(slot); err != nil {
		return err
	}
	for _, tid := range d.dsp.Threads().IDs() {
		t, ok := d.dsp.Threads().Get(tid)
		if !ok {
			continue
		}
		d.hw.ApplyToThread(d.regs, t.Handle)
	}
	return nil
}

// ReadMemory reads len(buf) bytes from the debuggee starting at addr.
func (d *Debugger) ReadMemory(addr Address, buf []byte) (int, error) {
	return d.mem.ReadMemory(d.adapter.ProcessHandle(), addr, buf)
}

// WriteMemory writes buf into the debuggee starting at addr.
func (d *Debugger) WriteMemory(addr Address, buf []byte) (int, error) {
	return d.mem.WriteMemory(d.adapter.ProcessHandle(), addr, buf)
}

// Registers returns every displayable register for the given thread id.
func (d *Debugger) Registers(tid uint32) ([]RegisterInfo, error) {
	t, ok := d.dsp.Threads().Get(tid)
	if !ok {
		return nil, ErrThreadNotFound
	}
	return d.regs.Registers(t.Handle)
}

// Threads returns the dispatcher's live thread registry.
func (d *Debugger) Threads() *ThreadRegistry { return d.dsp.Threads() }

// ProcessHandle returns the native handle of the current debuggee.
func (d *Debugger) ProcessHandle() uintptr { return d.adapter.ProcessHandle() }

// Slide translates a file-relative address (an RVA as it appears in the
// static image) to its runtime address: image_base + rva (spec.md §3
// "ImageBase / Slide", GLOSSARY). Before the first ProcessCreate event this
// uses the architectural compile-time default (spec.md §9 Open Question).
func (d *Debugger) Slide(rva Address) Address {
	return d.dsp.ImageBase() + rva
}

// Unslide is the inverse of Slide: it recovers a file-relative address from
// a runtime one.
func (d *Debugger) Unslide(addr Address) Address {
	return addr - d.dsp.ImageBase()
}

// ImageBase returns the debuggee's current runtime image base.
func (d *Debugger) ImageBase() Address { return d.dsp.ImageBase() }

// HideDebugger clears the BeingDebugged byte in the target's PEB, a common
// anti-anti-debug measure the source engine exposes alongside its ordinary
// attach/launch path (spec.md GLOSSARY reference to debugger.cpp's
// hideDebugger). BeingDebugged sits at offset 2 in the PEB on both x86 and
// x64.
func (d *Debugger) HideDebugger() error {
	peb, err := PEBAddress(d.adapter.ProcessHandle())
	if err != nil {
		return err
	}
	const beingDebuggedOffset = 2
	_, err = d.mem.WriteMemory(d.adapter.ProcessHandle(), peb+beingDebuggedOffset, []byte{0})
	return err
}
