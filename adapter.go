package robodbg

// Continuation is the disposition passed back to the OS after an event has
// been processed (spec.md §4.1, second operation).
type Continuation int

const (
	// ContinueHandled tells the OS the debugger swallowed the exception.
	// The core always uses this for recognized exceptions (spec.md §4.1).
	ContinueHandled Continuation = iota
	// ContinueUnhandled passes the exception to the target's own handler
	// chain.
	ContinueUnhandled
)

// Adapter is the OS Debug Port Adapter (spec.md §4.1): a blocking wait for
// the next debug event, plus the continue/skip decision. Implementations
// own the process and initial-thread handles and release them in Close,
// which Dispatcher.Run calls when the loop ends.
type Adapter interface {
	// Wait blocks until the next debug event is available and returns it.
	// A non-nil error terminates the dispatch loop (spec.md §4.1 Failure).
	Wait() (DebugEvent, error)

	// Continue acknowledges the given event with the chosen disposition.
	Continue(processID, threadID uint32, disposition Continuation) error

	// Launch creates a new process under debug control.
	Launch(path string, args []string) error

	// Attach begins debugging an already-running process by pid.
	Attach(pid int) error

	// Detach stops debugging the current target. If kill is true the
	// target is terminated instead of resumed.
	Detach(kill bool) error

	// ProcessHandle returns the native handle of the debuggee, or 0 if
	// not attached.
	ProcessHandle() uintptr

	// Close releases any handles still owned by the adapter.
	// Dispatcher.Run calls it when the dispatch loop returns.
	Close() error
}
