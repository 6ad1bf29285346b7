package robodbg

// ---------------------------------------------------------------------------
// Fakes shared across the package's tests. None of this touches the OS; it
// models just enough of process memory and thread register state to drive
// the dispatch loop and breakpoint tables deterministically.
// ---------------------------------------------------------------------------

type fakeMemory struct {
	data map[Address]byte
}

func newFakeMemory() *fakeMemory {
	return &fakeMemory{data: make(map[Address]byte)}
}

func (f *fakeMemory) ReadMemory(process uintptr, addr Address, buf []byte) (int, error) {
	for i := range buf {
		buf[i] = f.data[addr+Address(i)]
	}
	return len(buf), nil
}

func (f *fakeMemory) WriteMemory(process uintptr, addr Address, buf []byte) (int, error) {
	for i, b := range buf {
		f.data[addr+Address(i)] = b
	}
	return len(buf), nil
}

func (f *fakeMemory) Protect(process uintptr, addr Address, size uintptr, newProtect uint32) (uint32, error) {
	return 0, nil
}

func (f *fakeMemory) FlushInstructionCache(process uintptr, addr Address, size uintptr) error {
	return nil
}

func (f *fakeMemory) QueryPage(process uintptr, addr Address) (MemoryRegion, bool) {
	return MemoryRegion{}, false
}

func (f *fakeMemory) EnumeratePages(process uintptr) []MemoryRegion { return nil }

func (f *fakeMemory) SearchPattern(process uintptr, pattern []byte) []Address { return nil }

// fakeThreadState is the per-thread register file a fakeRegisters exposes.
type fakeThreadState struct {
	ip     Address
	eflags uint32
	dr     DebugRegisters
}

type fakeRegisters struct {
	threads map[uintptr]*fakeThreadState
}

func newFakeRegisters() *fakeRegisters {
	return &fakeRegisters{threads: make(map[uintptr]*fakeThreadState)}
}

func (f *fakeRegisters) state(thread uintptr) *fakeThreadState {
	s, ok := f.threads[thread]
	if !ok {
		s = &fakeThreadState{}
		f.threads[thread] = s
	}
	return s
}

func (f *fakeRegisters) Registers(thread uintptr) ([]RegisterInfo, error) {
	s := f.state(thread)
	return []RegisterInfo{{Name: "rip", BitWidth: 64, Value: uint64(s.ip), Group: "control"}}, nil
}

func (f *fakeRegisters) ReadRegister(thread uintptr, name string) (uint64, bool) {
	if name == "rip" {
		return uint64(f.state(thread).ip), true
	}
	return 0, false
}

func (f *fakeRegisters) WriteRegister(thread uintptr, name string, value uint64) bool {
	if name != "rip" {
		return false
	}
	f.state(thread).ip = Address(value)
	return true
}

func (f *fakeRegisters) IP(thread uintptr) (Address, bool) { return f.state(thread).ip, true }

func (f *fakeRegisters) SetIP(thread uintptr, addr Address) bool {
	f.state(thread).ip = addr
	return true
}

func (f *fakeRegisters) RewindIP(thread uintptr) bool {
	s := f.state(thread)
	s.ip--
	return true
}

func (f *fakeRegisters) ReadFlag(thread uintptr, flag Flag) (bool, error) {
	return f.state(thread).eflags&uint32(flag) != 0, nil
}

func (f *fakeRegisters) WriteFlag(thread uintptr, flag Flag, set bool) error {
	s := f.state(thread)
	if set {
		s.eflags |= uint32(flag)
	} else {
		s.eflags &^= uint32(flag)
	}
	return nil
}

func (f *fakeRegisters) EnableSingleStep(thread uintptr) bool {
	f.state(thread).eflags |= uint32(FlagTF)
	return true
}

func (f *fakeRegisters) ReadDebugRegisters(thread uintptr) (DebugRegisters, bool) {
	return f.state(thread).dr, true
}

func (f *fakeRegisters) WriteDebugRegisters(thread uintptr, regs DebugRegisters) bool {
	f.state(thread).dr = regs
	return true
}

// fakeAdapter replays a scripted sequence of events, recording every
// continuation disposition it was given.
type fakeAdapter struct {
	events  []DebugEvent
	idx     int
	seen    []Continuation
	process uintptr
}

func (a *fakeAdapter) Wait() (DebugEvent, error) {
	if a.idx >= len(a.events) {
		return DebugEvent{}, ErrProcessExited
	}
	ev := a.events[a.idx]
	a.idx++
	return ev, nil
}

func (a *fakeAdapter) Continue(pid, tid uint32, disposition Continuation) error {
	a.seen = append(a.seen, disposition)
	return nil
}

func (a *fakeAdapter) Launch(path string, args []string) error { return nil }
func (a *fakeAdapter) Attach(pid int) error                    { return nil }
func (a *fakeAdapter) Detach(kill bool) error                  { return nil }
func (a *fakeAdapter) ProcessHandle() uintptr                  { return a.process }
func (a *fakeAdapter) Close() error                            { return nil }
