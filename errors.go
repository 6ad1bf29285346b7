package robodbg

import "errors"

var (
	// ErrUnsupportedOS is returned by every OS-backed operation on a
	// platform other than Windows. The core only runs against the native
	// Windows debug port (spec.md §1).
	ErrUnsupportedOS = errors.New("robodbg: unsupported operating system")

	// ErrProcessExited reports that the target process has exited. An
	// Adapter's Wait may return it; no operation in this package does.
	ErrProcessExited = errors.New("robodbg: target process has exited")

	// ErrThreadNotFound is returned when an operation names a thread id
	// that is not (or no longer) present in the thread registry.
	ErrThreadNotFound = errors.New("robodbg: thread not found")

	// ErrInvalidSlot is returned when a hardware breakpoint slot index is
	// outside DR0..DR3.
	ErrInvalidSlot = errors.New("robodbg: invalid debug register slot")

	// ErrBadLength is returned when an EXECUTE hardware breakpoint is
	// requested with a length other than one byte (spec.md §3 semantic
	// rule on HardwareBreakpoint).
	ErrBadLength = errors.New("robodbg: execute breakpoints must have length 1")

	// ErrNotAttached reports that no process handle has been established.
	// No operation in this package returns it.
	ErrNotAttached = errors.New("robodbg: not attached to a process")
)
