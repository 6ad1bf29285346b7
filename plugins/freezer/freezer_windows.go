//go:build windows

package freezer

import (
	"fmt"
	"syscall"
	"unsafe"

	"golang.org/x/sys/windows"

	"github.com/m2w4/robodbg"
)

var (
	modkernel32 = windows.NewLazySystemDLL("kernel32.dll")

	procCreateToolhelp32Snapshot = modkernel32.NewProc("CreateToolhelp32Snapshot")
	procThread32First            = modkernel32.NewProc("Thread32First")
	procThread32Next             = modkernel32.NewProc("Thread32Next")
	procOpenThread               = modkernel32.NewProc("OpenThread")
	procSuspendThread            = modkernel32.NewProc("SuspendThread")
	procResumeThread             = modkernel32.NewProc("ResumeThread")
	procGetThreadPriority        = modkernel32.NewProc("GetThreadPriority")
	procSetThreadPriority        = modkernel32.NewProc("SetThreadPriority")
	procGetThreadPriorityBoost   = modkernel32.NewProc("GetThreadPriorityBoost")
	procSetThreadPriorityBoost   = modkernel32.NewProc("SetThreadPriorityBoost")
	procGetThreadGroupAffinity   = modkernel32.NewProc("GetThreadGroupAffinity")
	procSetThreadGroupAffinity   = modkernel32.NewProc("SetThreadGroupAffinity")
)

const (
	_TH32CS_SNAPTHREAD = 0x00000004

	_THREAD_SUSPEND_RESUME    = 0x0002
	_THREAD_QUERY_INFORMATION = 0x0040
	_THREAD_SET_INFORMATION   = 0x0020
	_THREAD_ACCESS            = _THREAD_SUSPEND_RESUME | _THREAD_QUERY_INFORMATION | _THREAD_SET_INFORMATION

	_THREAD_PRIORITY_ERROR_RETURN = 0x7fffffff
	_THREAD_PRIORITY_NORMAL       = 0
)

type threadEntry32 struct {
	Size           uint32
	Usage          uint32
	ThreadID       uint32
	OwnerProcessID uint32
	BasePriority   int32
	DeltaPriority  int32
	Flags          uint32
}

type groupAffinity struct {
	Mask     uint64
	Group    uint16
	Reserved [3]uint16
}

func enumerateThreadIDs(pid uint32) []uint32 {
	snap, _, _ := procCreateToolhelp32Snapshot.Call(uintptr(_TH32CS_SNAPTHREAD), 0)
	if snap == 0 || snap == ^uintptr(0) {
		return nil
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
	return ids
}

func openThread(tid uint32) (syscall.Handle, bool) {
	r, _, _ := procOpenThread.Call(uintptr(_THREAD_ACCESS), 0, uintptr(tid))
	if r == 0 {
		return 0, false
	}
	return syscall.Handle(r), true
}

// Suspend freezes every thread in the process identified by pid, capturing
// the scheduling state needed to put it back exactly as it was (spec.md
// SUPPLEMENTED FEATURES — the freezer plugin, a standalone collaborator
// that talks to the OS directly rather than through the core dispatch
// loop, per its independence from the event loop).
func Suspend(pid uint32) ([]ThreadState, error) {
	tids := enumerateThreadIDs(pid)
	if len(tids) == 0 {
		return nil, fmt.Errorf("freezer: no threads found for pid %d", pid)
	}

	states := make([]ThreadState, 0, len(tids))
	var failures int
	for _, tid := range tids {
		h, ok := openThread(tid)
		if !ok {
			failures++
			continue
		}

		prev, _, _ := procSuspendThread.Call(uintptr(h))
		if int32(prev) == -1 {
			syscall.CloseHandle(h)
			failures++
			continue
		}

		pr, _, _ := procGetThreadPriority.Call(uintptr(h))
		priority := int32(pr)
		if priority == _THREAD_PRIORITY_ERROR_RETURN {
			priority = _THREAD_PRIORITY_NORMAL
		}

		var boost uint32
		procGetThreadPriorityBoost.Call(uintptr(h), uintptr(unsafe.Pointer(&boost)))

		var ga groupAffinity
		procGetThreadGroupAffinity.Call(uintptr(h), uintptr(unsafe.Pointer(&ga)))

		syscall.CloseHandle(h)

		states = append(states, ThreadState{
			TID:              tid,
			PrevSuspendCount: uint32(prev),
			Priority:         priority,
			BoostDisabled:    boost != 0,
			Group:            ga.Group,
			Mask:             ga.Mask,
			WeSuspended:      true,
		})
	}
	if failures > 0 || len(states) == 0 {
		return nil, fmt.Errorf("freezer: failed to suspend %d of %d threads", failures, len(tids))
	}
	return states, nil
}

// Restore puts every thread back the way Suspend found it: group affinity
// and priority first, then, for threads Suspend itself suspended, resumed
// by repeatedly calling ResumeThread until the suspend count is back to
// PrevSuspendCount.
func Restore(states []ThreadState) error {
	var ok = true
	for _, st := range states {
		h, opened := openThread(st.TID)
		if !opened {
			ok = false
			continue
		}

		if st.Mask != 0 {
			ga := groupAffinity{Mask: st.Mask, Group: st.Group}
			procSetThreadGroupAffinity.Call(uintptr(h), uintptr(unsafe.Pointer(&ga)), 0)
		}
		procSetThreadPriority.Call(uintptr(h), uintptr(st.Priority))
		boost := uintptr(0)
		if st.BoostDisabled {
			boost = 1
		}
		procSetThreadPriorityBoost.Call(uintptr(h), boost)

		if st.WeSuspended {
			for {
				prev, _, _ := procResumeThread.Call(uintptr(h))
				if int32(prev) == -1 || uint32(prev) <= st.PrevSuspendCount+1 {
					break
				}
			}
		}
		syscall.CloseHandle(h)
	}
	if !ok {
		return fmt.Errorf("freezer: failed to restore one or more threads")
	}
	return nil
}

// SuspendDebuggee is a convenience entry point taking a robodbg.Debugger's
// process handle directly, resolving its pid first.
func SuspendDebuggee(d *robodbg.Debugger) ([]ThreadState, error) {
	pid, err := processIDFromHandle(d.ProcessHandle())
	if err != nil {
		return nil, err
	}
	return Suspend(pid)
}

func processIDFromHandle(h uintptr) (uint32, error) {
	pid, err := windows.GetProcessId(windows.Handle(h))
	if err != nil {
		return 0, err
	}
	return pid, nil
}
