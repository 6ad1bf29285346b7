package robodbg

import "log"

// Callbacks is the Callback Surface (spec.md §4.7): the set of hooks the
// dispatch loop invokes as it classifies each debug event. Every field is
// optional; a nil hook means "take the default continuation" for that
// event kind. Breakpoint hooks return a ContinuationAction that drives the
// restoration state machine (spec.md §5).
type Callbacks struct {
	OnProcessCreate func(pid uint32, info ProcessCreateInfo)
	OnProcessExit   func(pid uint32, info ProcessExitInfo)
	OnThreadCreate  func(tid uint32, info ThreadCreateInfo)
	OnThreadExit    func(tid uint32)
	OnDLLLoad       func(info DLLLoadInfo)
	OnDLLUnload     func(info DLLUnloadInfo)
	OnDebugString   func(info DebugStringInfo)
	OnRipError      func(info RipErrorInfo)

	// OnBreakpoint fires when execution hits a software (INT3) breakpoint
	// at addr on the given thread. Its return value selects the
	// restoration path (spec.md §5).
	OnBreakpoint func(thread uint32, addr Address) ContinuationAction

	// OnHardwareBreakpoint fires when a debug exception reports a hit
	// slot programmed via HardwareBreakpointManager.
	OnHardwareBreakpoint func(thread uint32, slot DRSlot, addr Address, access AccessType) ContinuationAction

	// OnSingleStep fires for a single-step trap that is not part of a
	// pending breakpoint restoration — i.e. a step the caller itself
	// requested, not one the state machine is using internally.
	OnSingleStep func(thread uint32)

	// OnUnhandledException fires for any exception the core does not
	// recognize as a breakpoint or single-step trap (spec.md §4.1 default
	// continuation: pass through unless overridden here).
	OnUnhandledException func(thread uint32, info ExceptionInfo) Continuation
}

// DefaultCallbacks returns the polymorphic extension point's default
// implementation (spec.md §4.8): every hook just logs via log.Printf when
// *verbose is true, and does nothing otherwise. verbose is captured by
// pointer so flipping Debugger.Verbose at runtime changes the behavior of
// callbacks built from this set without having to rebuild them (spec.md §6
// "one boolean verbose enabling diagnostic output from default callback
// implementations"). The two breakpoint hooks ignore verbose for their
// return value: their default continuation is always RESTORE (spec.md §4.8
// "Defaults for breakpoint callbacks return RESTORE"), and they still log
// the hit when asked to.
func DefaultCallbacks(verbose *bool) Callbacks {
	logf := func(format string, args ...any) {
		if verbose != nil && *verbose {
			log.Printf(format, args...)
		}
	}
	return Callbacks{
		OnProcessCreate: func(pid uint32, info ProcessCreateInfo) {
			logf("robodbg: process %d created, image base %#x, entry %#x", pid, info.ImageBase, info.StartAddress)
		},
		OnProcessExit: func(pid uint32, info ProcessExitInfo) {
			logf("robodbg: process %d exited, code %d", pid, info.ExitCode)
		},
		OnThreadCreate: func(tid uint32, info ThreadCreateInfo) {
			logf("robodbg: thread %d created, start %#x", tid, info.StartAddress)
		},
		OnThreadExit: func(tid uint32) {
			logf("robodbg: thread %d exited", tid)
		},
		OnDLLLoad: func(info DLLLoadInfo) {
			logf("robodbg: DLL loaded %s at %#x", info.Name, info.Base)
		},
		OnDLLUnload: func(info DLLUnloadInfo) {
			logf("robodbg: DLL unloaded %s at %#x", info.Name, info.Base)
		},
		OnDebugString: func(info DebugStringInfo) {
			logf("robodbg: debug string: %s", info.Message)
		},
		OnRipError: func(info RipErrorInfo) {
			logf("robodbg: RIP error type=%d code=%d", info.Type, info.Error)
		},
		OnBreakpoint: func(thread uint32, addr Address) ContinuationAction {
			logf("robodbg: breakpoint at %#x on thread %d, default continuation RESTORE", addr, thread)
			return Restore
		},
		OnHardwareBreakpoint: func(thread uint32, slot DRSlot, addr Address, access AccessType) ContinuationAction {
			logf("robodbg: hardware breakpoint slot %d at %#x on thread %d, default continuation RESTORE", slot, addr, thread)
			return Restore
		},
		OnSingleStep: func(thread uint32) {
			logf("robodbg: single step on thread %d", thread)
		},
		OnUnhandledException: func(thread uint32, info ExceptionInfo) Continuation {
			logf("robodbg: unhandled exception code=%#x at %#x on thread %d", info.Code, info.Addr, thread)
			return ContinueUnhandled
		},
	}
}

// mergeCallbacks fills every nil hook in cb with the matching hook from
// defaults, leaving any hook the caller did supply untouched.
func mergeCallbacks(cb, defaults Callbacks) Callbacks {
	if cb.OnProcessCreate == nil {
		cb.OnProcessCreate = defaults.OnProcessCreate
	}
	if cb.OnProcessExit == nil {
		cb.OnProcessExit = defaults.OnProcessExit
	}
	if cb.OnThreadCreate == nil {
		cb.OnThreadCreate = defaults.OnThreadCreate
	}
	if cb.OnThreadExit == nil {
		cb.OnThreadExit = defaults.OnThreadExit
	}
	if cb.OnDLLLoad == nil {
		cb.OnDLLLoad = defaults.OnDLLLoad
	}
	if cb.OnDLLUnload == nil {
		cb.OnDLLUnload = defaults.OnDLLUnload
	}
	if cb.OnDebugString == nil {
		cb.OnDebugString = defaults.OnDebugString
	}
	if cb.OnRipError == nil {
		cb.OnRipError = defaults.OnRipError
	}
	if cb.OnBreakpoint == nil {
		cb.OnBreakpoint = defaults.OnBreakpoint
	}
	if cb.OnHardwareBreakpoint == nil {
		cb.OnHardwareBreakpoint = defaults.OnHardwareBreakpoint
	}
	if cb.OnSingleStep == nil {
		cb.OnSingleStep = defaults.OnSingleStep
	}
	if cb.OnUnhandledException == nil {
		cb.OnUnhandledException = defaults.OnUnhandledException
	}
	return cb
}
