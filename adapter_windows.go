//go:build windows

package robodbg

import (
	"syscall"
	"unsafe"

	"golang.org/x/sys/windows"
)

// startupInfoW mirrors processthreadsapi.h's STARTUPINFOW, trimmed to the
// fields CreateProcessW requires populated.
type startupInfoW struct {
	Cb            uint32
	Reserved      *uint16
	Desktop       *uint16
	Title         *uint16
	X, Y          uint32
	XSize, YSize  uint32
	XCountChars   uint32
	YCountChars   uint32
	FillAttribute uint32
	Flags         uint32
	ShowWindow    uint16
	CbReserved2   uint16
	LpReserved2   uintptr
	StdInput      syscall.Handle
	StdOutput     syscall.Handle
	StdErr        syscall.Handle
}

// processInformation mirrors processthreadsapi.h's PROCESS_INFORMATION.
type processInformation struct {
	Process   syscall.Handle
	Thread    syscall.Handle
	ProcessId uint32
	ThreadId  uint32
}

// windowsAdapter is the real OS Debug Port Adapter (spec.md §4.1),
// grounded on the wait/continue loop shape in
// other_examples/f29ee12c_wangyanci-delve__pkg-proc-proc_windows.go.go and
// the LazyDLL binding style in
// other_examples/f40faf60_dank0i-pc-bridge__internal-winapi-winapi.go.go.
type windowsAdapter struct {
	process      syscall.Handle
	mainThread   syscall.Handle
	pid          uint32
	lastEventPID uint32
	lastEventTID uint32
}

// NewAdapter returns the Windows-backed Adapter.
func NewAdapter() Adapter { return &windowsAdapter{} }

func (a *windowsAdapter) Launch(path string, args []string) error {
	cmdLine := buildCommandLine(path, args)
	cmdLinePtr, err := windows.UTF16PtrFromString(cmdLine)
	if err != nil {
		return err
	}

	var si startupInfoW
	si.Cb = uint32(unsafe.Sizeof(si))
	var pi processInformation

	r, _, e := procCreateProcessW.Call(
		0,
		uintptr(unsafe.Pointer(cmdLinePtr)),
		0, 0, 0,
		uintptr(_DEBUG_ONLY_THIS_PROCESS),
		0, 0,
		uintptr(unsafe.Pointer(&si)),
		uintptr(unsafe.Pointer(&pi)),
	)
	if r == 0 {
		return e
	}

	a.process = pi.Process
	a.mainThread = pi.Thread
	a.pid = pi.ProcessId
	return debugSetProcessKillOnExit(true)
}

func (a *windowsAdapter) Attach(pid int) error {
	if err := debugActiveProcess(uint32(pid)); err != nil {
		return err
	}
	r, _, e := procOpenProcess.Call(uintptr(_PROCESS_ALL_ACCESS), 0, uintptr(pid))
	if r == 0 {
		return e
	}
	a.process = syscall.Handle(r)
	a.pid = uint32(pid)
	return nil
}

func (a *windowsAdapter) Detach(kill bool) error {
	if kill {
		_, _, _ = procTerminateProcess.Call(uintptr(a.process), 0)
		return nil
	}
	if err := debugSetProcessKillOnExit(false); err != nil {
		return err
	}
	return debugActiveProcessStop(a.pid)
}

func (a *windowsAdapter) ProcessHandle() uintptr { return uintptr(a.process) }

func (a *windowsAdapter) Close() error {
	if a.process != 0 {
		syscall.CloseHandle(a.process)
		a.process = 0
	}
	if a.mainThread != 0 {
		syscall.CloseHandle(a.mainThread)
		a.mainThread = 0
	}
	return nil
}

func (a *windowsAdapter) Wait() (DebugEvent, error) {
	var raw _DEBUG_EVENT
	if err := waitForDebugEvent(&raw, syscall.INFINITE); err != nil {
		return DebugEvent{}, err
	}
	a.lastEventPID = raw.ProcessId
	a.lastEventTID = raw.ThreadId
	return decodeDebugEvent(&raw), nil
}

func (a *windowsAdapter) Continue(processID, threadID uint32, disposition Continuation) error {
	status := uint32(_DBG_CONTINUE)
	if disposition == ContinueUnhandled {
		status = _DBG_EXCEPTION_NOT_HANDLED
	}
	return continueDebugEvent(processID, threadID, status)
}

// decodeDebugEvent reinterprets the DEBUG_EVENT union according to its
// discriminant code (spec.md §4.1), the pattern grounded on
// other_examples/f29ee12c_wangyanci-delve__pkg-proc-proc_windows.go.go's
// waitForDebugEvent switch.
func decodeDebugEvent(raw *_DEBUG_EVENT) DebugEvent {
	ev := DebugEvent{ProcessID: raw.ProcessId, ThreadID: raw.ThreadId}
	u := unsafe.Pointer(&raw.U[0])

	switch raw.DebugEventCode {
	case _CREATE_PROCESS_DEBUG_EVENT:
		info := (*_CREATE_PROCESS_DEBUG_INFO)(u)
		if info.File != 0 && info.File != syscall.InvalidHandle {
			syscall.CloseHandle(info.File)
		}
		ev.Kind = EventProcessCreate
		ev.ProcessCreate = ProcessCreateInfo{
			ProcessHandle: uintptr(info.Process),
			ThreadHandle:  uintptr(info.Thread),
			ImageBase:     Address(info.BaseOfImage),
			TEBBase:       Address(info.ThreadLocalBase),
			StartAddress:  Address(info.StartAddress),
		}

	case _CREATE_THREAD_DEBUG_EVENT:
		info := (*_CREATE_THREAD_DEBUG_INFO)(u)
		ev.Kind = EventThreadCreate
		ev.ThreadCreate = ThreadCreateInfo{
			ThreadHandle: uintptr(info.Thread),
			TEBBase:      Address(info.ThreadLocalBase),
			StartAddress: Address(info.StartAddress),
		}

	case _EXIT_THREAD_DEBUG_EVENT:
		info := (*_EXIT_THREAD_DEBUG_INFO)(u)
		ev.Kind = EventThreadExit
		_ = info

	case _EXIT_PROCESS_DEBUG_EVENT:
		info := (*_EXIT_PROCESS_DEBUG_INFO)(u)
		ev.Kind = EventProcessExit
		ev.ProcessExit = ProcessExitInfo{ExitCode: info.ExitCode}

	case _LOAD_DLL_DEBUG_EVENT:
		info := (*_LOAD_DLL_DEBUG_INFO)(u)
		if info.File != 0 && info.File != syscall.InvalidHandle {
			syscall.CloseHandle(info.File)
		}
		ev.Kind = EventDLLLoad
		ev.DLLLoad = DLLLoadInfo{
			Base:      Address(info.BaseOfDll),
			ImageName: Address(info.ImageName),
			Unicode:   info.Unicode != 0,
		}

	case _UNLOAD_DLL_DEBUG_EVENT:
		info := (*_UNLOAD_DLL_DEBUG_INFO)(u)
		ev.Kind = EventDLLUnload
		ev.DLLUnload = DLLUnloadInfo{Base: Address(info.BaseOfDll)}

	case _OUTPUT_DEBUG_STRING_EVENT:
		info := (*_OUTPUT_DEBUG_STRING_INFO)(u)
		ev.Kind = EventDebugString
		ev.DebugString = DebugStringInfo{
			Pointer: Address(info.DebugStringData),
			Unicode: info.Unicode != 0,
			Length:  info.DebugStringLen,
		}

	case _RIP_EVENT:
		info := (*_RIP_INFO)(u)
		ev.Kind = EventRipError
		ev.RipError = RipErrorInfo{Error: info.Error, Type: info.Type}

	case _EXCEPTION_DEBUG_EVENT:
		info := (*_EXCEPTION_DEBUG_INFO)(u)
		ev.Kind = EventException
		ev.Exception = decodeException(info)

	default:
		ev.Kind = EventUnknown
		ev.UnknownCode = raw.DebugEventCode
	}
	return ev
}

func decodeException(info *_EXCEPTION_DEBUG_INFO) ExceptionInfo {
	rec := info.ExceptionRecord
	e := ExceptionInfo{
		Code: rec.ExceptionCode,
		Addr: Address(rec.ExceptionAddress),
	}
	switch rec.ExceptionCode {
	case _EXCEPTION_BREAKPOINT:
		e.Kind = ExceptionBreakpoint
	case _EXCEPTION_SINGLE_STEP:
		e.Kind = ExceptionSingleStep
	case _EXCEPTION_ACCESS_VIOLATION:
		e.Kind = ExceptionAccessViolation
		if rec.NumberParameters >= 2 {
			e.AccessType = uint64(rec.ExceptionInformation[0])
			e.FaultingAddr = Address(rec.ExceptionInformation[1])
		}
	default:
		e.Kind = ExceptionOther
	}
	return e
}

// buildCommandLine quotes path and joins args the way CreateCommandLine
// implementations in the corpus do: wrap any operand containing a space in
// double quotes.
func buildCommandLine(path string, args []string) string {
	quote := func(s string) string {
		needsQuote := false
		for _, r := range s {
			if r == ' ' || r == '\t' {
				needsQuote = true
				break
			}
		}
		if !needsQuote {
			return s
		}
		return "\"" + s + "\""
	}
	cmd := quote(path)
	for _, a := range args {
		cmd += " " + quote(a)
	}
	return cmd
}
