//go:build windows

package robodbg

import (
	"syscall"
	"unsafe"

	"golang.org/x/sys/windows"
)

// PEBAddress queries the target's PEB base address via
// NtQueryInformationProcess(ProcessBasicInformation); Debugger.HideDebugger
// uses it to locate the PEB's BeingDebugged byte.
func PEBAddress(process uintptr) (Address, error) {
	var info _PROCESS_BASIC_INFORMATION
	var retLen uint32
	status := ntQueryInformationProcess(
		syscall.Handle(process), _ProcessBasicInformation,
		unsafe.Pointer(&info), uint32(unsafe.Sizeof(info)), &retLen,
	)
	if status != 0 {
		return 0, syscall.Errno(status)
	}
	return Address(info.PebBaseAddress), nil
}

// ModuleInfo describes one module loaded into the target, as reported by
// EnumProcessModulesEx.
type ModuleInfo struct {
	Handle    uintptr
	Base      Address
	Size      uint32
	Path      string
}

// moduleInfoRaw mirrors psapi.h's MODULEINFO.
type moduleInfoRaw struct {
	BaseOfDll   uintptr
	SizeOfImage uint32
	EntryPoint  uintptr
}

const (
	_LIST_MODULES_ALL = 0x03
)

// EnumerateModules lists every module currently mapped into process,
// combining EnumProcessModulesEx with GetModuleFileNameExW and
// GetModuleInformation (spec.md SUPPLEMENTED FEATURES — IAT inspector
// needs each module's base and path to resolve import thunks).
func EnumerateModules(process uintptr) ([]ModuleInfo, error) {
	h := syscall.Handle(process)
	handles := make([]uintptr, 256)
	var needed uint32
	r, _, e := procEnumProcessModulesEx.Call(
		uintptr(h),
		uintptr(unsafe.Pointer(&handles[0])),
		uintptr(len(handles))*unsafe.Sizeof(handles[0]),
		uintptr(unsafe.Pointer(&needed)),
		uintptr(_LIST_MODULES_ALL),
	)
	if r == 0 {
		return nil, e
	}
	count := int(needed) / int(unsafe.Sizeof(handles[0]))
	if count > len(handles) {
		count = len(handles)
	}

	out := make([]ModuleInfo, 0, count)
	for _, mh := range handles[:count] {
		var raw moduleInfoRaw
		procGetModuleInformation.Call(
			uintptr(h), mh,
			uintptr(unsafe.Pointer(&raw)), unsafe.Sizeof(raw),
		)

		nameBuf := make([]uint16, windows.MAX_PATH)
		n, _, _ := procGetModuleFileNameExW.Call(
			uintptr(h), mh,
			uintptr(unsafe.Pointer(&nameBuf[0])), uintptr(len(nameBuf)),
		)
		path := ""
		if n > 0 {
			path = syscall.UTF16ToString(nameBuf[:n])
		}

		out = append(out, ModuleInfo{
			Handle: mh,
			Base:   Address(raw.BaseOfDll),
			Size:   raw.SizeOfImage,
			Path:   path,
		})
	}
	return out, nil
}
