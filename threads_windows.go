//go:build windows

package robodbg

import (
	"syscall"
	"unsafe"
)

// threadEntry32 mirrors tlhelp32.h's THREADENTRY32.
type threadEntry32 struct {
	Size               uint32
	Usage              uint32
	ThreadID           uint32
	OwnerProcessID     uint32
	BasePriority       int32
	DeltaPriority      int32
	Flags              uint32
}

// EnumerateThreads walks a CreateToolhelp32Snapshot thread snapshot and
// returns every thread id belonging to pid, used to seed the thread
// registry right after Attach (spec.md §4.2 — attach must discover threads
// that existed before the debug port connected, since only subsequently
// created threads generate CREATE_THREAD_DEBUG_EVENT).
func EnumerateThreads(pid uint32) ([]uint32, error) {
	snap, _, e := procCreateToolhelp32Snapshot.Call(uintptr(_TH32CS_SNAPTHREAD), 0)
	if snap == 0 || snap == ^uintptr(0) {
		return nil, e
	}
	defer syscall.CloseHandle(syscall.Handle(snap))

	var entry threadEntry32
	entry.Size = uint32(unsafe.Sizeof(entry))

	var ids []uint32
	r, _, _ := procThread32First.Call(snap, uintptr(unsafe.Pointer(&entry)))
	for r != 0 {
		if entry.OwnerProcessID == pid {
			ids = append(ids, entry.ThreadID)
		}
		r, _, _ = procThread32Next.Call(snap, uintptr(unsafe.Pointer(&entry)))
	}
	return ids, nil
}

// OpenThreadHandle opens a native handle for an existing thread id, used to
// register threads discovered via EnumerateThreads that have no debug
// event of their own.
func OpenThreadHandle(tid uint32) (uintptr, error) {
	r, _, e := procOpenThread.Call(uintptr(_THREAD_ALL_ACCESS), 0, uintptr(tid))
	if r == 0 {
		return 0, e
	}
	return r, nil
}
