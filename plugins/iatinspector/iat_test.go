package iatinspector

import (
	"encoding/binary"
	"testing"

	"github.com/m2w4/robodbg"
)

// ---------------------------------------------------------------------------
// fakeMemory is a minimal in-memory MemoryAccessor backing the IAT walk.
// ---------------------------------------------------------------------------

type fakeMemory struct {
	data map[robodbg.Address]byte
}

func newFakeMemory() *fakeMemory { return &fakeMemory{data: map[robodbg.Address]byte{}} }

func (f *fakeMemory) ReadMemory(process uintptr, addr robodbg.Address, buf []byte) (int, error) {
	for i := range buf {
		b, ok := f.data[addr+robodbg.Address(i)]
		if !ok {
			return i, nil
		}
		buf[i] = b
	}
	return len(buf), nil
}

func (f *fakeMemory) WriteMemory(process uintptr, addr robodbg.Address, buf []byte) (int, error) {
	for i, b := range buf {
		f.data[addr+robodbg.Address(i)] = b
	}
	return len(buf), nil
}

func (f *fakeMemory) Protect(process uintptr, addr robodbg.Address, size uintptr, newProtect uint32) (uint32, error) {
	return 0, nil
}

func (f *fakeMemory) FlushInstructionCache(process uintptr, addr robodbg.Address, size uintptr) error {
	return nil
}

func (f *fakeMemory) QueryPage(process uintptr, addr robodbg.Address) (robodbg.MemoryRegion, bool) {
	return robodbg.MemoryRegion{}, false
}

func (f *fakeMemory) EnumeratePages(process uintptr) []robodbg.MemoryRegion { return nil }

func (f *fakeMemory) SearchPattern(process uintptr, pattern []byte) []robodbg.Address { return nil }

func (f *fakeMemory) putU64(addr robodbg.Address, v uint64) {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], v)
	f.WriteMemory(0, addr, buf[:])
}

func (f *fakeMemory) putCString(addr robodbg.Address, s string) {
	f.WriteMemory(0, addr, append([]byte(s), 0))
}

// buildMinimalPE64 writes a PE32+ header at base with one import directory
// entry at importRVA/importSize, matching the layout pe.go expects.
func buildMinimalPE64(f *fakeMemory, base robodbg.Address, importRVA, importSize uint32) {
	h := make([]byte, 512)
	binary.LittleEndian.PutUint16(h[0:2], 0x5A4D)
	binary.LittleEndian.PutUint32(h[60:64], 128)

	ntOff := 128
	binary.LittleEndian.PutUint32(h[ntOff:ntOff+4], 0x00004550)
	fileHeaderOff := ntOff + 4
	binary.LittleEndian.PutUint16(h[fileHeaderOff+16:fileHeaderOff+18], 240) // sizeOfOptionalHeader

	optOff := fileHeaderOff + 20
	binary.LittleEndian.PutUint16(h[optOff:optOff+2], 0x20b) // PE32+
	binary.LittleEndian.PutUint32(h[optOff+16:optOff+20], 0x1000) // entry point RVA
	binary.LittleEndian.PutUint64(h[optOff+24:optOff+32], uint64(base))
	binary.LittleEndian.PutUint32(h[optOff+56:optOff+60], 0x10000) // size of image
	binary.LittleEndian.PutUint32(h[optOff+108:optOff+112], 16)    // number of data directories

	dirsOff := optOff + 112
	importDirOff := dirsOff + 8*1
	binary.LittleEndian.PutUint32(h[importDirOff:importDirOff+4], importRVA)
	binary.LittleEndian.PutUint32(h[importDirOff+4:importDirOff+8], importSize)

	f.WriteMemory(0, base, h)
}

func TestCollectModuleIATResolvesNamedImport(t *testing.T) {
	mem := newFakeMemory()
	const base = robodbg.Address(0x400000)

	const importRVA = 0x2000
	const descSize = 20 // one descriptor + zero terminator
	buildMinimalPE64(mem, base, importRVA, 2*descSize)

	const dllNameRVA = 0x3000
	mem.putCString(base+dllNameRVA, "kernel32.dll")

	const intRVA = 0x3100  // original first thunk (names)
	const iatRVA = 0x3200  // first thunk (IAT slots, patched at load time)
	const nameRVA = 0x3300

	// one descriptor: OriginalFirstThunk, TimeDateStamp, ForwarderChain, Name, FirstThunk
	descAddr := base + importRVA
	var descBuf [20]byte
	binary.LittleEndian.PutUint32(descBuf[0:4], intRVA)
	binary.LittleEndian.PutUint32(descBuf[12:16], dllNameRVA)
	binary.LittleEndian.PutUint32(descBuf[16:20], iatRVA)
	mem.WriteMemory(0, descAddr, descBuf[:])
	// second descriptor stays zeroed (end marker), already true by default.

	mem.putU64(base+intRVA, uint64(nameRVA)) // thunk -> IMAGE_IMPORT_BY_NAME RVA (no ordinal flag)
	mem.putCString(base+nameRVA+2, "CreateFileW")
	mem.putU64(base+iatRVA, 0x7ffe0000) // resolved target address

	m := robodbg.ModuleInfo{Path: `C:\test.exe`, Base: base}
	recs, err := collectModuleIAT(mem, 0, m)
	if err != nil {
		t.Fatalf("collectModuleIAT: %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("got %d records, want 1", len(recs))
	}
	r := recs[0]
	if r.DLLName != "kernel32.dll" {
		t.Errorf("DLLName = %q, want kernel32.dll", r.DLLName)
	}
	if r.ByOrdinal {
		t.Error("ByOrdinal = true, want false for a named import")
	}
	if r.FuncName != "CreateFileW" {
		t.Errorf("FuncName = %q, want CreateFileW", r.FuncName)
	}
	if r.Target != 0x7ffe0000 {
		t.Errorf("Target = %#x, want 0x7ffe0000", r.Target)
	}
}

func TestCollectModuleIATResolvesOrdinalImport(t *testing.T) {
	mem := newFakeMemory()
	const base = robodbg.Address(0x10000000)
	const importRVA = 0x1000
	buildMinimalPE64(mem, base, importRVA, 40)

	const dllNameRVA = 0x1100
	mem.putCString(base+dllNameRVA, "ws2_32.dll")
	const intRVA = 0x1200
	const iatRVA = 0x1300

	var descBuf [20]byte
	binary.LittleEndian.PutUint32(descBuf[0:4], intRVA)
	binary.LittleEndian.PutUint32(descBuf[12:16], dllNameRVA)
	binary.LittleEndian.PutUint32(descBuf[16:20], iatRVA)
	mem.WriteMemory(0, base+importRVA, descBuf[:])

	mem.putU64(base+intRVA, ordinalFlag64|7) // ordinal 7
	mem.putU64(base+iatRVA, 0xdeadbeef)

	m := robodbg.ModuleInfo{Path: `C:\net.dll`, Base: base}
	recs, err := collectModuleIAT(mem, 0, m)
	if err != nil {
		t.Fatalf("collectModuleIAT: %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("got %d records, want 1", len(recs))
	}
	if !recs[0].ByOrdinal || recs[0].Ordinal != 7 {
		t.Fatalf("record = %+v, want ByOrdinal ordinal 7", recs[0])
	}
}

func TestFindImportsByDLLIgnoresPathAndCase(t *testing.T) {
	records := []Record{
		{DLLName: "KERNEL32.dll", FuncName: "ExitProcess"},
		{DLLName: "user32.dll", FuncName: "MessageBoxW"},
	}
	got := FindImportsByDLL(records, "kernel32.DLL")
	if len(got) != 1 || got[0].FuncName != "ExitProcess" {
		t.Fatalf("FindImportsByDLL = %+v, want the kernel32 record", got)
	}
}

func TestFindImportsByNameSkipsOrdinals(t *testing.T) {
	records := []Record{
		{FuncName: "Sleep"},
		{ByOrdinal: true, Ordinal: 42, FuncName: "Sleep"},
	}
	got := FindImportsByName(records, "sleep")
	if len(got) != 1 {
		t.Fatalf("FindImportsByName = %+v, want only the named record", got)
	}
}
