//go:build windows

package robodbg

import (
	"syscall"
	"unsafe"

	"golang.org/x/sys/windows"
)

// luid mirrors winnt.h's LUID.
type luid struct {
	LowPart  uint32
	HighPart int32
}

// luidAndAttributes mirrors winnt.h's LUID_AND_ATTRIBUTES.
type luidAndAttributes struct {
	Luid       luid
	Attributes uint32
}

// tokenPrivileges mirrors winnt.h's TOKEN_PRIVILEGES for the single-
// privilege case this package needs.
type tokenPrivileges struct {
	PrivilegeCount uint32
	Privileges     [1]luidAndAttributes
}

// EnableDebugPrivilege acquires SeDebugPrivilege for the current process,
// required before attaching to a process owned by another user account or
// running as a protected service (spec.md §4.2 edge case on Attach
// failure). Grounded on the usual OpenProcessToken / LookupPrivilegeValue /
// AdjustTokenPrivileges sequence every native Windows debugger performs.
func EnableDebugPrivilege() error {
	var token syscall.Token
	curProc, err := syscall.GetCurrentProcess()
	if err != nil {
		return err
	}
	r, _, e := procOpenProcessToken.Call(
		uintptr(curProc),
		uintptr(_TOKEN_ADJUST_PRIVILEGES|_TOKEN_QUERY),
		uintptr(unsafe.Pointer(&token)),
	)
	if r == 0 {
		return e
	}
	defer syscall.CloseHandle(syscall.Handle(token))

	namePtr, err := windows.UTF16PtrFromString("SeDebugPrivilege")
	if err != nil {
		return err
	}
	var id luid
	r, _, e = procLookupPrivilegeValueW.Call(0, uintptr(unsafe.Pointer(namePtr)), uintptr(unsafe.Pointer(&id)))
	if r == 0 {
		return e
	}

	tp := tokenPrivileges{
		PrivilegeCount: 1,
		Privileges:     [1]luidAndAttributes{{Luid: id, Attributes: _SE_PRIVILEGE_ENABLED}},
	}
	r, _, e = procAdjustTokenPrivileges.Call(
		uintptr(token), 0,
		uintptr(unsafe.Pointer(&tp)), 0, 0, 0,
	)
	if r == 0 {
		return e
	}
	return nil
}
