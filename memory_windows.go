//go:build windows

package robodbg

import "syscall"

// windowsMemory is the Windows MemoryAccessor (spec.md §4.4), backed
// directly by ReadProcessMemory/WriteProcessMemory/VirtualProtectEx.
type windowsMemory struct{}

// NewMemoryAccessor returns the Windows-backed MemoryAccessor.
func NewMemoryAccessor() MemoryAccessor { return windowsMemory{} }

func (windowsMemory) ReadMemory(process uintptr, addr Address, buf []byte) (int, error) {
	if len(buf) == 0 {
		return 0, nil
	}
	return readProcessMemory(syscall.Handle(process), uintptr(addr), buf)
}

func (windowsMemory) WriteMemory(process uintptr, addr Address, buf []byte) (int, error) {
	if len(buf) == 0 {
		return 0, nil
	}
	h := syscall.Handle(process)
	old, err := virtualProtectEx(h, uintptr(addr), uintptr(len(buf)), _PAGE_EXECUTE_READWRITE)
	if err != nil {
		return 0, err
	}
	n, err := writeProcessMemory(h, uintptr(addr), buf)
	virtualProtectEx(h, uintptr(addr), uintptr(len(buf)), old)
	return n, err
}

func (windowsMemory) Protect(process uintptr, addr Address, size uintptr, newProtect uint32) (uint32, error) {
	return virtualProtectEx(syscall.Handle(process), uintptr(addr), size, newProtect)
}

func (windowsMemory) FlushInstructionCache(process uintptr, addr Address, size uintptr) error {
	return flushInstructionCache(syscall.Handle(process), uintptr(addr), size)
}

// QueryPage walks the process's memory regions starting from the minimum
// application address, returning the first whose bounds contain addr
// (spec.md §4.4 "Query page", grounded on original_source's
// getPageByAddress).
func (m windowsMemory) QueryPage(process uintptr, addr Address) (MemoryRegion, bool) {
	for _, region := range m.EnumeratePages(process) {
		end := region.BaseAddress + Address(region.RegionSize)
		if addr >= region.BaseAddress && addr < end {
			return region, true
		}
	}
	return MemoryRegion{}, false
}

// EnumeratePages sweeps [lpMinimumApplicationAddress,
// lpMaximumApplicationAddress) one VirtualQueryEx call per region (spec.md
// §4.4 "Enumerate pages", grounded on original_source's getMemoryPages).
func (windowsMemory) EnumeratePages(process uintptr) []MemoryRegion {
	h := syscall.Handle(process)
	si := getSystemInfo()
	addr := si.MinimumApplicationAddress
	max := si.MaximumApplicationAddress

	var regions []MemoryRegion
	for addr < max {
		mbi, ok := virtualQueryEx(h, addr)
		if !ok {
			break
		}
		regions = append(regions, MemoryRegion{
			BaseAddress: Address(mbi.BaseAddress),
			RegionSize:  mbi.RegionSize,
			State:       mbi.State,
			Protect:     mbi.Protect,
			Type:        mbi.Type,
		})
		if mbi.RegionSize == 0 {
			break
		}
		addr = mbi.BaseAddress + mbi.RegionSize
	}
	return regions
}

// SearchPattern scans every committed, non-guard, non-no-access region for
// an exact match of pattern (spec.md §4.4 "Search pattern", grounded on
// original_source's searchInMemory).
func (m windowsMemory) SearchPattern(process uintptr, pattern []byte) []Address {
	regions := m.EnumeratePages(process)
	return searchRegions(regions, pattern, func(region MemoryRegion) ([]byte, bool) {
		buf := make([]byte, region.RegionSize)
		n, err := m.ReadMemory(process, region.BaseAddress, buf)
		if err != nil && n == 0 {
			return nil, false
		}
		return buf[:n], true
	})
}
