//go:build windows

package robodbg

import (
	"syscall"
	"unsafe"

	"golang.org/x/sys/windows"
)

// Lazily-loaded DLLs, shared across every file in this package so the
// loader only resolves each module once (spec.md AMBIENT STACK).
var (
	modkernel32 = windows.NewLazySystemDLL("kernel32.dll")
	modadvapi32 = windows.NewLazySystemDLL("advapi32.dll")
	modntdll    = windows.NewLazySystemDLL("ntdll.dll")
	modpsapi    = windows.NewLazySystemDLL("psapi.dll")
)

var (
	procWaitForDebugEvent        = modkernel32.NewProc("WaitForDebugEvent")
	procContinueDebugEvent       = modkernel32.NewProc("ContinueDebugEvent")
	procDebugActiveProcess       = modkernel32.NewProc("DebugActiveProcess")
	procDebugActiveProcessStop   = modkernel32.NewProc("DebugActiveProcessStop")
	procDebugSetProcessKillOnExit = modkernel32.NewProc("DebugSetProcessKillOnExit")
	procCreateProcessW           = modkernel32.NewProc("CreateProcessW")
	procOpenProcess               = modkernel32.NewProc("OpenProcess")
	procOpenThread                 = modkernel32.NewProc("OpenThread")
	procTerminateProcess           = modkernel32.NewProc("TerminateProcess")
	procSuspendThread              = modkernel32.NewProc("SuspendThread")
	procResumeThread                = modkernel32.NewProc("ResumeThread")
	procGetThreadContext             = modkernel32.NewProc("GetThreadContext")
	procSetThreadContext             = modkernel32.NewProc("SetThreadContext")
	procReadProcessMemory            = modkernel32.NewProc("ReadProcessMemory")
	procWriteProcessMemory           = modkernel32.NewProc("WriteProcessMemory")
	procVirtualProtectEx             = modkernel32.NewProc("VirtualProtectEx")
	procVirtualQueryEx               = modkernel32.NewProc("VirtualQueryEx")
	procGetSystemInfo                = modkernel32.NewProc("GetSystemInfo")
	procFlushInstructionCache        = modkernel32.NewProc("FlushInstructionCache")
	procCreateToolhelp32Snapshot     = modkernel32.NewProc("CreateToolhelp32Snapshot")
	procThread32First                = modkernel32.NewProc("Thread32First")
	procThread32Next                 = modkernel32.NewProc("Thread32Next")
	procCloseHandle                  = modkernel32.NewProc("CloseHandle")
	procGetExitCodeProcess           = modkernel32.NewProc("GetExitCodeProcess")

	procGetThreadPriority       = modkernel32.NewProc("GetThreadPriority")
	procSetThreadPriority       = modkernel32.NewProc("SetThreadPriority")
	procGetThreadPriorityBoost  = modkernel32.NewProc("GetThreadPriorityBoost")
	procSetThreadPriorityBoost  = modkernel32.NewProc("SetThreadPriorityBoost")
	procGetThreadGroupAffinity  = modkernel32.NewProc("GetThreadGroupAffinity")
	procSetThreadGroupAffinity  = modkernel32.NewProc("SetThreadGroupAffinity")

	procOpenProcessToken      = modadvapi32.NewProc("OpenProcessToken")
	procLookupPrivilegeValueW = modadvapi32.NewProc("LookupPrivilegeValueW")
	procAdjustTokenPrivileges = modadvapi32.NewProc("AdjustTokenPrivileges")

	procNtQueryInformationProcess = modntdll.NewProc("NtQueryInformationProcess")

	procEnumProcessModulesEx = modpsapi.NewProc("EnumProcessModulesEx")
	procGetModuleFileNameExW = modpsapi.NewProc("GetModuleFileNameExW")
	procGetModuleInformation = modpsapi.NewProc("GetModuleInformation")
)

// Debug event codes (winnt.h / DBG_* constants), matching
// other_examples' mssys.DBG_CONTINUE/_DBG_EXCEPTION_NOT_HANDLED layout.
const (
	_EXCEPTION_DEBUG_EVENT      = 1
	_CREATE_THREAD_DEBUG_EVENT  = 2
	_CREATE_PROCESS_DEBUG_EVENT = 3
	_EXIT_THREAD_DEBUG_EVENT    = 4
	_EXIT_PROCESS_DEBUG_EVENT   = 5
	_LOAD_DLL_DEBUG_EVENT       = 6
	_UNLOAD_DLL_DEBUG_EVENT     = 7
	_OUTPUT_DEBUG_STRING_EVENT  = 8
	_RIP_EVENT                  = 9

	_DBG_CONTINUE              = 0x00010002
	_DBG_EXCEPTION_NOT_HANDLED = 0x80010001

	_EXCEPTION_BREAKPOINT     = 0x80000003
	_EXCEPTION_SINGLE_STEP    = 0x80000004
	_EXCEPTION_ACCESS_VIOLATION = 0xC0000005

	_DEBUG_ONLY_THIS_PROCESS = 0x00000002
	_DEBUG_PROCESS           = 0x00000001

	_PROCESS_ALL_ACCESS = 0x1F0FFF
	_THREAD_ALL_ACCESS   = 0x1F03FF

	_PAGE_EXECUTE_READWRITE = 0x40

	_MEM_COMMIT = 0x1000

	_TH32CS_SNAPTHREAD = 0x00000004

	_TOKEN_ADJUST_PRIVILEGES = 0x0020
	_TOKEN_QUERY             = 0x0008
	_SE_PRIVILEGE_ENABLED    = 0x00000002

	_ProcessBasicInformation = 0

	_THREAD_SUSPEND_RESUME      = 0x0002
	_THREAD_QUERY_INFORMATION   = 0x0040
	_THREAD_SET_INFORMATION     = 0x0020
	_THREAD_SUSPEND_FREEZER     = _THREAD_SUSPEND_RESUME | _THREAD_QUERY_INFORMATION | _THREAD_SET_INFORMATION

	_THREAD_PRIORITY_ERROR_RETURN = 0x7fffffff
	_THREAD_PRIORITY_NORMAL       = 0
)

// _MEMORY_BASIC_INFORMATION mirrors winnt.h's MEMORY_BASIC_INFORMATION, the
// structure VirtualQueryEx fills in (spec.md §4.4 "Query page"/"Enumerate
// pages").
type _MEMORY_BASIC_INFORMATION struct {
	BaseAddress       uintptr
	AllocationBase    uintptr
	AllocationProtect uint32
	RegionSize        uintptr
	State             uint32
	Protect           uint32
	Type              uint32
}

// _SYSTEM_INFO mirrors sysinfoapi.h's SYSTEM_INFO in full; the page sweep
// reads only its two application-address fields (spec.md §4.4 "Enumerate
// pages", grounded on original_source's getMemoryPages/searchInMemory).
type _SYSTEM_INFO struct {
	ProcessorArchitecture     uint16
	Reserved                  uint16
	PageSize                  uint32
	MinimumApplicationAddress uintptr
	MaximumApplicationAddress uintptr
	ActiveProcessorMask       uintptr
	NumberOfProcessors        uint32
	ProcessorType             uint32
	AllocationGranularity     uint32
	ProcessorLevel            uint16
	ProcessorRevision         uint16
}

// groupAffinity mirrors winnt.h's GROUP_AFFINITY.
type groupAffinity struct {
	Mask     uint64
	Group    uint16
	Reserved [3]uint16
}

// _CLIENT_ID mirrors ntdll's CLIENT_ID, used by NtQueryInformationProcess's
// PROCESS_BASIC_INFORMATION output (spec.md §4.9).
type _CLIENT_ID struct {
	UniqueProcess uintptr
	UniqueThread  uintptr
}

// _PROCESS_BASIC_INFORMATION mirrors the documented (if not headers-public)
// ntdll struct PEB pointer lives in.
type _PROCESS_BASIC_INFORMATION struct {
	ExitStatus                   uintptr
	PebBaseAddress                uintptr
	AffinityMask                  uintptr
	BasePriority                  uintptr
	UniqueProcessId                uintptr
	InheritedFromUniqueProcessId   uintptr
}

// _CREATE_PROCESS_DEBUG_INFO mirrors winnt.h's CREATE_PROCESS_DEBUG_INFO,
// grounded on the undoio-delve mssys struct layout.
type _CREATE_PROCESS_DEBUG_INFO struct {
	File                syscall.Handle
	Process             syscall.Handle
	Thread              syscall.Handle
	BaseOfImage         uintptr
	DebugInfoFileOffset uint32
	DebugInfoSize       uint32
	ThreadLocalBase     uintptr
	StartAddress        uintptr
	ImageName           uintptr
	Unicode             uint16
}

type _CREATE_THREAD_DEBUG_INFO struct {
	Thread          syscall.Handle
	ThreadLocalBase uintptr
	StartAddress    uintptr
}

type _EXIT_THREAD_DEBUG_INFO struct {
	ExitCode uint32
}

type _EXIT_PROCESS_DEBUG_INFO struct {
	ExitCode uint32
}

type _LOAD_DLL_DEBUG_INFO struct {
	File                syscall.Handle
	BaseOfDll           uintptr
	DebugInfoFileOffset uint32
	DebugInfoSize       uint32
	ImageName           uintptr
	Unicode             uint16
}

type _UNLOAD_DLL_DEBUG_INFO struct {
	BaseOfDll uintptr
}

type _OUTPUT_DEBUG_STRING_INFO struct {
	DebugStringData uintptr
	Unicode         uint16
	DebugStringLen  uint16
}

type _RIP_INFO struct {
	Error uint32
	Type  uint32
}

// _EXCEPTION_RECORD mirrors winnt.h's EXCEPTION_RECORD in full; the core
// reads the code, the address, and the two info slots used by
// EXCEPTION_ACCESS_VIOLATION.
type _EXCEPTION_RECORD struct {
	ExceptionCode        uint32
	ExceptionFlags       uint32
	ExceptionRecord      uintptr
	ExceptionAddress     uintptr
	NumberParameters     uint32
	ExceptionInformation [15]uintptr
}

type _EXCEPTION_DEBUG_INFO struct {
	ExceptionRecord    _EXCEPTION_RECORD
	FirstChance        uint32
}

// debugEventUnionSize is large enough to hold the biggest member of
// DEBUG_EVENT's union (_EXCEPTION_DEBUG_INFO, 160 bytes on amd64).
const debugEventUnionSize = 160

// _DEBUG_EVENT mirrors winnt.h's DEBUG_EVENT: a discriminated union
// delivered by WaitForDebugEvent, decoded via unsafe.Pointer into the
// matching per-kind struct above (spec.md §4.1). U is made of
// pointer-sized words so the union is pointer-aligned, as in C.
type _DEBUG_EVENT struct {
	DebugEventCode uint32
	ProcessId      uint32
	ThreadId       uint32
	U              [debugEventUnionSize / unsafe.Sizeof(uintptr(0))]uintptr
}

func waitForDebugEvent(ev *_DEBUG_EVENT, millis uint32) error {
	r, _, e := procWaitForDebugEvent.Call(uintptr(unsafe.Pointer(ev)), uintptr(millis))
	if r == 0 {
		return e
	}
	return nil
}

func continueDebugEvent(pid, tid uint32, status uint32) error {
	r, _, e := procContinueDebugEvent.Call(uintptr(pid), uintptr(tid), uintptr(status))
	if r == 0 {
		return e
	}
	return nil
}

func debugActiveProcess(pid uint32) error {
	r, _, e := procDebugActiveProcess.Call(uintptr(pid))
	if r == 0 {
		return e
	}
	return nil
}

func debugActiveProcessStop(pid uint32) error {
	r, _, e := procDebugActiveProcessStop.Call(uintptr(pid))
	if r == 0 {
		return e
	}
	return nil
}

func debugSetProcessKillOnExit(kill bool) error {
	v := uintptr(0)
	if kill {
		v = 1
	}
	r, _, e := procDebugSetProcessKillOnExit.Call(v)
	if r == 0 {
		return e
	}
	return nil
}

func suspendThread(h syscall.Handle) error {
	r, _, e := procSuspendThread.Call(uintptr(h))
	if int32(r) == -1 {
		return e
	}
	return nil
}

func resumeThread(h syscall.Handle) error {
	r, _, e := procResumeThread.Call(uintptr(h))
	if int32(r) == -1 {
		return e
	}
	return nil
}

func readProcessMemory(process syscall.Handle, addr uintptr, buf []byte) (int, error) {
	var n uintptr
	r, _, e := procReadProcessMemory.Call(
		uintptr(process), addr,
		uintptr(unsafe.Pointer(&buf[0])), uintptr(len(buf)),
		uintptr(unsafe.Pointer(&n)),
	)
	if r == 0 {
		return int(n), e
	}
	return int(n), nil
}

func writeProcessMemory(process syscall.Handle, addr uintptr, buf []byte) (int, error) {
	var n uintptr
	r, _, e := procWriteProcessMemory.Call(
		uintptr(process), addr,
		uintptr(unsafe.Pointer(&buf[0])), uintptr(len(buf)),
		uintptr(unsafe.Pointer(&n)),
	)
	if r == 0 {
		return int(n), e
	}
	return int(n), nil
}

func virtualProtectEx(process syscall.Handle, addr uintptr, size uintptr, newProtect uint32) (uint32, error) {
	var old uint32
	r, _, e := procVirtualProtectEx.Call(
		uintptr(process), addr, size, uintptr(newProtect),
		uintptr(unsafe.Pointer(&old)),
	)
	if r == 0 {
		return 0, e
	}
	return old, nil
}

// virtualQueryEx queries the memory region covering addr, returning false
// if the query itself failed (an unmapped address past the process's valid
// range still succeeds, reporting State 0).
func virtualQueryEx(process syscall.Handle, addr uintptr) (_MEMORY_BASIC_INFORMATION, bool) {
	var mbi _MEMORY_BASIC_INFORMATION
	r, _, _ := procVirtualQueryEx.Call(
		uintptr(process), addr,
		uintptr(unsafe.Pointer(&mbi)), unsafe.Sizeof(mbi),
	)
	return mbi, r != 0
}

// getSystemInfo returns the lpMinimumApplicationAddress/
// lpMaximumApplicationAddress bounds a page sweep walks between (spec.md
// §4.4 "Enumerate pages").
func getSystemInfo() _SYSTEM_INFO {
	var si _SYSTEM_INFO
	procGetSystemInfo.Call(uintptr(unsafe.Pointer(&si)))
	return si
}

func flushInstructionCache(process syscall.Handle, addr uintptr, size uintptr) error {
	r, _, e := procFlushInstructionCache.Call(uintptr(process), addr, size)
	if r == 0 {
		return e
	}
	return nil
}

func openThreadHandleWithAccess(tid uint32, access uint32) (syscall.Handle, error) {
	r, _, e := procOpenThread.Call(uintptr(access), 0, uintptr(tid))
	if r == 0 {
		return 0, e
	}
	return syscall.Handle(r), nil
}

func getThreadPriority(h syscall.Handle) int32 {
	r, _, _ := procGetThreadPriority.Call(uintptr(h))
	return int32(r)
}

func setThreadPriority(h syscall.Handle, priority int32) error {
	r, _, e := procSetThreadPriority.Call(uintptr(h), uintptr(priority))
	if r == 0 {
		return e
	}
	return nil
}

func getThreadPriorityBoost(h syscall.Handle) bool {
	var disabled uint32
	procGetThreadPriorityBoost.Call(uintptr(h), uintptr(unsafe.Pointer(&disabled)))
	return disabled != 0
}

func setThreadPriorityBoost(h syscall.Handle, disabled bool) error {
	v := uintptr(0)
	if disabled {
		v = 1
	}
	r, _, e := procSetThreadPriorityBoost.Call(uintptr(h), v)
	if r == 0 {
		return e
	}
	return nil
}

func getThreadGroupAffinity(h syscall.Handle) (groupAffinity, bool) {
	var ga groupAffinity
	r, _, _ := procGetThreadGroupAffinity.Call(uintptr(h), uintptr(unsafe.Pointer(&ga)))
	return ga, r != 0
}

func setThreadGroupAffinity(h syscall.Handle, ga groupAffinity) error {
	r, _, e := procSetThreadGroupAffinity.Call(uintptr(h), uintptr(unsafe.Pointer(&ga)), 0)
	if r == 0 {
		return e
	}
	return nil
}

func ntQueryInformationProcess(process syscall.Handle, class uint32, info unsafe.Pointer, infoLen uint32, retLen *uint32) uint32 {
	r, _, _ := procNtQueryInformationProcess.Call(
		uintptr(process), uintptr(class),
		uintptr(info), uintptr(infoLen),
		uintptr(unsafe.Pointer(retLen)),
	)
	return uint32(r)
}
