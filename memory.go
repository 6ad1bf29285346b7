package robodbg

import "encoding/binary"

// MemoryAccessor is the Memory Accessor (spec.md §4.4): byte-range reads and
// writes against the target's virtual address space, plus the page-query,
// page-enumeration, protection-change, and pattern-search primitives the
// breakpoint tables and plugins need.
type MemoryAccessor interface {
	// ReadMemory copies len(buf) bytes starting at addr into buf. A short
	// read (partial copy before a fault) returns the bytes copied so far
	// alongside an error.
	ReadMemory(process uintptr, addr Address, buf []byte) (int, error)

	// WriteMemory copies buf into the target starting at addr.
	WriteMemory(process uintptr, addr Address, buf []byte) (int, error)

	// Protect changes the protection of the page(s) covering [addr,
	// addr+size) and returns the previous protection so callers can
	// restore it.
	Protect(process uintptr, addr Address, size uintptr, newProtect uint32) (uint32, error)

	// FlushInstructionCache invalidates the icache for [addr, addr+size)
	// after a code-memory write, required on architectures where stale
	// decoded instructions would otherwise survive an INT3 patch.
	FlushInstructionCache(process uintptr, addr Address, size uintptr) error

	// QueryPage walks process's memory regions and returns the one whose
	// [BaseAddress, BaseAddress+RegionSize) contains addr. ok is false if
	// no such region exists (spec.md §4.4 "Query page").
	QueryPage(process uintptr, addr Address) (region MemoryRegion, ok bool)

	// EnumeratePages sweeps every region between the process's minimum
	// and maximum application address (spec.md §4.4 "Enumerate pages").
	EnumeratePages(process uintptr) []MemoryRegion

	// SearchPattern scans every committed, non-guard, non-no-access
	// region for an exact match of pattern, returning every absolute
	// match address (spec.md §4.4 "Search pattern", grounded on
	// original_source's searchInMemory).
	SearchPattern(process uintptr, pattern []byte) []Address
}

// MemoryRegion describes one page-granularity region of the target's
// address space, mirroring the fields of a Win32 MEMORY_BASIC_INFORMATION
// that QueryPage/EnumeratePages need (spec.md §4.4).
type MemoryRegion struct {
	BaseAddress Address
	RegionSize  uintptr
	State       uint32
	Protect     uint32
	Type        uint32
}

// Win32 VirtualQueryEx state/protect constants this package filters
// SearchPattern's sweep on (spec.md §4.4, original_source's searchInMemory:
// "Skip regions that are not committed or inaccessible").
const (
	MemCommit    = 0x1000
	PageGuard    = 0x100
	PageNoAccess = 0x01
)

// searchRegions is the OS-agnostic half of SearchPattern: given the region
// list an implementation already enumerated, it reads each eligible region
// through read and scans for pattern. Shared by the Windows implementation
// so the scan/filter logic itself is exercised by plain unit tests.
func searchRegions(regions []MemoryRegion, pattern []byte, read func(MemoryRegion) ([]byte, bool)) []Address {
	var matches []Address
	if len(pattern) == 0 {
		return matches
	}
	for _, region := range regions {
		if region.State != MemCommit || region.Protect&PageGuard != 0 || region.Protect == PageNoAccess {
			continue
		}
		buf, ok := read(region)
		if !ok {
			continue
		}
		for i := 0; i+len(pattern) <= len(buf); i++ {
			match := true
			for j, b := range pattern {
				if buf[i+j] != b {
					match = false
					break
				}
			}
			if match {
				matches = append(matches, region.BaseAddress+Address(i))
			}
		}
	}
	return matches
}

// readByte is a small convenience used by the software breakpoint table to
// fetch the single byte at addr without allocating a throwaway slice at
// each call site.
func readByte(m MemoryAccessor, process uintptr, addr Address) (byte, error) {
	var buf [1]byte
	if _, err := m.ReadMemory(process, addr, buf[:]); err != nil {
		return 0, err
	}
	return buf[0], nil
}

// writeByte is the write-side counterpart of readByte.
func writeByte(m MemoryAccessor, process uintptr, addr Address, b byte) error {
	buf := [1]byte{b}
	_, err := m.WriteMemory(process, addr, buf[:])
	return err
}

// ReadUint32 reads one little-endian uint32 at addr (spec.md §4.4 "Typed
// read/write helpers").
func ReadUint32(m MemoryAccessor, process uintptr, addr Address) (uint32, error) {
	var buf [4]byte
	if _, err := m.ReadMemory(process, addr, buf[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(buf[:]), nil
}

// WriteUint32 writes one little-endian uint32 at addr.
func WriteUint32(m MemoryAccessor, process uintptr, addr Address, v uint32) error {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], v)
	_, err := m.WriteMemory(process, addr, buf[:])
	return err
}

// ReadUint64 reads one little-endian uint64 at addr.
func ReadUint64(m MemoryAccessor, process uintptr, addr Address) (uint64, error) {
	var buf [8]byte
	if _, err := m.ReadMemory(process, addr, buf[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(buf[:]), nil
}

// WriteUint64 writes one little-endian uint64 at addr.
func WriteUint64(m MemoryAccessor, process uintptr, addr Address, v uint64) error {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], v)
	_, err := m.WriteMemory(process, addr, buf[:])
	return err
}

// ReadAddress reads a pointer-width value at addr, using arch to pick
// between the 32-bit and 64-bit encodings of a 386 vs. amd64 target.
func ReadAddress(m MemoryAccessor, process uintptr, addr Address, arch Arch) (Address, error) {
	if arch == Arch386 {
		v, err := ReadUint32(m, process, addr)
		return Address(v), err
	}
	v, err := ReadUint64(m, process, addr)
	return Address(v), err
}

// WriteAddress writes a pointer-width value at addr, mirroring ReadAddress.
func WriteAddress(m MemoryAccessor, process uintptr, addr Address, v Address, arch Arch) error {
	if arch == Arch386 {
		return WriteUint32(m, process, addr, uint32(v))
	}
	return WriteUint64(m, process, addr, uint64(v))
}
