package robodbg

// RegisterInfo describes a single CPU register for display, matching the
// shape the teacher's debug adapters expose to the monitor (name, width,
// current value, display group).
type RegisterInfo struct {
	Name     string
	BitWidth int
	Value    uint64
	Group    string
}

// RegisterAccessor is the Register/Flag Accessor (spec.md §4.3): per-thread
// read/write of general-purpose registers, the instruction pointer, EFLAGS
// bits, the trap flag, and the four hardware-breakpoint debug registers.
// Every operation that mutates live CPU state, except EnableSingleStep,
// suspends the target thread
// around the exchange and resumes it on every exit path, including errors
// (spec.md §5).
type RegisterAccessor interface {
	// Registers lists every general-purpose/control register for display.
	Registers(thread uintptr) ([]RegisterInfo, error)

	// ReadRegister fetches one named register's current value.
	ReadRegister(thread uintptr, name string) (uint64, bool)

	// WriteRegister stores a value into one named register.
	WriteRegister(thread uintptr, name string, value uint64) bool

	// IP returns the current instruction pointer.
	IP(thread uintptr) (Address, bool)

	// SetIP overwrites the instruction pointer.
	SetIP(thread uintptr, addr Address) bool

	// RewindIP decrements the instruction pointer by one, used after a
	// software-breakpoint exception whose reported address points past
	// the INT3 byte (spec.md §4.3).
	RewindIP(thread uintptr) bool

	// ReadFlag suspends the thread, masks EFLAGS by the flag's bit,
	// resumes, and returns whether it was set.
	ReadFlag(thread uintptr, flag Flag) (bool, error)

	// WriteFlag suspends the thread, sets or clears the flag bit, writes
	// back, and resumes.
	WriteFlag(thread uintptr, flag Flag, set bool) error

	// EnableSingleStep sets the EFLAGS trap flag (0x100) without
	// suspending the thread — used only at known-safe points in the
	// dispatch loop (spec.md §4.3).
	EnableSingleStep(thread uintptr) bool

	// ReadDebugRegisters fetches the thread's DR0-DR3/DR6/DR7 state.
	ReadDebugRegisters(thread uintptr) (DebugRegisters, bool)

	// WriteDebugRegisters stores DR0-DR3/DR6/DR7 state back, suspending and
	// resuming the thread around the exchange.
	WriteDebugRegisters(thread uintptr, regs DebugRegisters) bool
}

// DebugRegisters is the raw per-thread debug register file: DR0-DR3 hold
// watched addresses, DR6 the hit status, DR7 the enable/type/length control
// bits (spec.md §4.6, GLOSSARY).
type DebugRegisters struct {
	Dr0, Dr1, Dr2, Dr3 uint64
	Dr6                uint64
	Dr7                uint64
}

// flagNames enumerates the architectural EFLAGS bits spec.md §4.3 requires
// (CF, PF, AF, ZF, SF, TF, IF, DF, OF) alongside their bit positions, for
// callers that want to enumerate rather than test one flag at a time.
var flagNames = map[string]Flag{
	"CF": FlagCF,
	"PF": FlagPF,
	"AF": FlagAF,
	"ZF": FlagZF,
	"SF": FlagSF,
	"TF": FlagTF,
	"IF": FlagIF,
	"DF": FlagDF,
	"OF": FlagOF,
}

// FlagByName resolves a flag name to its bit, matching the {CF,PF,AF,ZF,
// SF,TF,IF,DF,OF} enumeration of spec.md §4.3.
func FlagByName(name string) (Flag, bool) {
	f, ok := flagNames[name]
	return f, ok
}
