// Package iatinspector walks a debuggee's loaded modules and their import
// address tables, resolving each imported function back to the DLL and
// name (or ordinal) it was bound from — useful for locating API hooks and
// unpacked-in-memory imports that never touched disk (spec.md SUPPLEMENTED
// FEATURES, grounded on original_source's plugins/imports.cpp).
package iatinspector

import (
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/m2w4/robodbg"
)

// ModuleInfo is one loaded module, mirroring Imports::ModuleInfo.
type ModuleInfo struct {
	Path string
	Base robodbg.Address
}

// Record is one resolved IAT slot: a single imported function binding
// inside a single module's import table, mirroring Imports::IatRecord.
type Record struct {
	ModulePath string
	ModuleBase robodbg.Address
	DLLName    string
	ByOrdinal  bool
	Ordinal    uint16
	FuncName   string
	IATSlot    robodbg.Address
	Target     robodbg.Address
	IATBase    robodbg.Address
	Index      int
}

const headerPageSize = 4096

// ordinalFlag64/32 is IMAGE_ORDINAL_FLAG64/32: the top bit of a thunk marks
// an import-by-ordinal rather than import-by-name.
const (
	ordinalFlag64 = uint64(1) << 63
	ordinalFlag32 = uint32(1) << 31
)

// Collect enumerates every module loaded in process and walks each one's
// import address table, producing one Record per imported function slot.
// A module whose headers don't parse as PE (stripped, corrupt, or already
// partially unmapped) is skipped rather than aborting the whole walk.
func Collect(mem robodbg.MemoryAccessor, process uintptr) ([]Record, error) {
	mods, err := robodbg.EnumerateModules(process)
	if err != nil {
		return nil, fmt.Errorf("iatinspector: enumerate modules: %w", err)
	}

	var records []Record
	for _, m := range mods {
		recs, err := collectModuleIAT(mem, process, m)
		if err != nil {
			continue
		}
		records = append(records, recs...)
	}
	return records, nil
}

func collectModuleIAT(mem robodbg.MemoryAccessor, process uintptr, m robodbg.ModuleInfo) ([]Record, error) {
	header := make([]byte, headerPageSize)
	n, _ := mem.ReadMemory(process, m.Base, header)
	if n == 0 {
		return nil, fmt.Errorf("iatinspector: read headers of %s", m.Path)
	}
	pe, err := robodbg.ParsePEHeader(header[:n])
	if err != nil {
		return nil, err
	}
	rva, size, ok := pe.ImportDirectory()
	if !ok || size == 0 {
		return nil, nil
	}

	descBuf := make([]byte, size)
	if _, err := mem.ReadMemory(process, m.Base+robodbg.Address(rva), descBuf); err != nil {
		return nil, err
	}

	thunkSize := 4
	ordinalFlag := uint64(ordinalFlag32)
	if pe.Is64Bit {
		thunkSize = 8
		ordinalFlag = ordinalFlag64
	}

	var out []Record
	for off := 0; off+20 <= len(descBuf); off += 20 {
		desc, ok := robodbg.ParseImportDescriptor(descBuf[off : off+20])
		if !ok {
			break
		}
		dllName, _ := robodbg.ResolveString(mem, process, m.Base+robodbg.Address(desc.NameRVA), false)

		iatRVA := desc.FirstThunk
		intRVA := desc.OriginalFirstThunk
		if intRVA == 0 {
			intRVA = iatRVA
		}

		for idx := 0; ; idx++ {
			thunkAddr := m.Base + robodbg.Address(intRVA) + robodbg.Address(idx*thunkSize)
			iatSlot := m.Base + robodbg.Address(iatRVA) + robodbg.Address(idx*thunkSize)

			buf := make([]byte, 8)
			if _, err := mem.ReadMemory(process, thunkAddr, buf[:thunkSize]); err != nil {
				break
			}
			var raw uint64
			if thunkSize == 8 {
				raw = binary.LittleEndian.Uint64(buf)
			} else {
				raw = uint64(binary.LittleEndian.Uint32(buf))
			}
			if raw == 0 {
				break
			}

			targetBuf := make([]byte, 8)
			var target robodbg.Address
			if _, err := mem.ReadMemory(process, iatSlot, targetBuf[:thunkSize]); err == nil {
				if thunkSize == 8 {
					target = robodbg.Address(binary.LittleEndian.Uint64(targetBuf))
				} else {
					target = robodbg.Address(binary.LittleEndian.Uint32(targetBuf))
				}
			}

			rec := Record{
				ModulePath: m.Path,
				ModuleBase: m.Base,
				DLLName:    dllName,
				IATSlot:    iatSlot,
				Target:     target,
				IATBase:    m.Base + robodbg.Address(iatRVA),
				Index:      idx,
			}
			if raw&ordinalFlag != 0 {
				rec.ByOrdinal = true
				rec.Ordinal = uint16(raw & 0xffff)
			} else {
				hintNameAddr := m.Base + robodbg.Address(raw&^ordinalFlag)
				name, err := readImportByName(mem, process, hintNameAddr)
				if err == nil {
					rec.FuncName = name
				}
			}
			out = append(out, rec)
		}
	}
	return out, nil
}

// readImportByName reads an IMAGE_IMPORT_BY_NAME record: a WORD hint
// followed by the NUL-terminated function name.
func readImportByName(mem robodbg.MemoryAccessor, process uintptr, addr robodbg.Address) (string, error) {
	return robodbg.ResolveString(mem, process, addr+2, false)
}

// FindImportsByDLL returns every record whose DLL name matches dll,
// case-insensitively and ignoring any path prefix (mirroring
// Imports::findImportsByDll).
func FindImportsByDLL(records []Record, dll string) []Record {
	var out []Record
	for _, r := range records {
		if strings.EqualFold(baseName(r.DLLName), baseName(dll)) {
			out = append(out, r)
		}
	}
	return out
}

// FindImportsByName returns every record whose resolved function name
// matches name, case-insensitively (import-by-ordinal records never
// match).
func FindImportsByName(records []Record, name string) []Record {
	var out []Record
	for _, r := range records {
		if !r.ByOrdinal && strings.EqualFold(r.FuncName, name) {
			out = append(out, r)
		}
	}
	return out
}

func baseName(s string) string {
	if i := strings.LastIndexAny(s, `/\`); i >= 0 {
		return s[i+1:]
	}
	return s
}
