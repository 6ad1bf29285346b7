package robodbg

import (
	"encoding/binary"
	"errors"
)

// ErrNotPE is returned when a module's first bytes do not carry the MZ/PE
// signatures pe.go expects.
var ErrNotPE = errors.New("robodbg: not a PE image")

const (
	peDOSSignature = 0x5A4D // "MZ"
	peNTSignature  = 0x00004550
)

// PEHeader is the subset of a loaded image's headers the debugger needs:
// the entry point (relative to the base, spec.md §4.8) and whether the
// image is PE32+ (64-bit).
type PEHeader struct {
	EntryPointRVA Address
	ImageBase     Address
	Is64Bit       bool
	SizeOfImage   uint32
	NumberOfRVAsAndSizes uint32
	DataDirectory        []peDataDirectory
}

type peDataDirectory struct {
	VirtualAddress uint32
	Size           uint32
}

// ParsePEHeader decodes the DOS and NT headers from a module's first page,
// already read from the target's memory (spec.md SUPPLEMENTED FEATURES —
// IAT inspection needs the entry point and import data directory). buf must
// hold at least the DOS header and, after following e_lfanew, the NT
// headers; it does not need to hold the whole image.
func ParsePEHeader(buf []byte) (*PEHeader, error) {
	if len(buf) < 64 {
		return nil, ErrNotPE
	}
	if binary.LittleEndian.Uint16(buf[0:2]) != peDOSSignature {
		return nil, ErrNotPE
	}
	lfanew := binary.LittleEndian.Uint32(buf[60:64])
	if int(lfanew)+24 > len(buf) {
		return nil, ErrNotPE
	}
	ntOff := int(lfanew)
	if binary.LittleEndian.Uint32(buf[ntOff:ntOff+4]) != peNTSignature {
		return nil, ErrNotPE
	}

	// IMAGE_FILE_HEADER starts right after the 4-byte NT signature.
	fileHeaderOff := ntOff + 4
	numberOfSections := binary.LittleEndian.Uint16(buf[fileHeaderOff+2 : fileHeaderOff+4])
	_ = numberOfSections
	sizeOfOptionalHeader := binary.LittleEndian.Uint16(buf[fileHeaderOff+16 : fileHeaderOff+18])

	optOff := fileHeaderOff + 20
	if optOff+2 > len(buf) {
		return nil, ErrNotPE
	}
	magic := binary.LittleEndian.Uint16(buf[optOff : optOff+2])
	is64 := magic == 0x20b // IMAGE_NT_OPTIONAL_HDR64_MAGIC

	h := &PEHeader{Is64Bit: is64}
	if int(sizeOfOptionalHeader) == 0 || optOff+int(sizeOfOptionalHeader) > len(buf) {
		return h, nil
	}

	h.EntryPointRVA = Address(binary.LittleEndian.Uint32(buf[optOff+16 : optOff+20]))

	var imageBaseOff, sizeOfImageOff, numDirsOff, dirsOff int
	if is64 {
		imageBaseOff = optOff + 24
		sizeOfImageOff = optOff + 56
		numDirsOff = optOff + 108
		dirsOff = optOff + 112
		h.ImageBase = Address(binary.LittleEndian.Uint64(buf[imageBaseOff : imageBaseOff+8]))
	} else {
		imageBaseOff = optOff + 28
		sizeOfImageOff = optOff + 56
		numDirsOff = optOff + 92
		dirsOff = optOff + 96
		h.ImageBase = Address(binary.LittleEndian.Uint32(buf[imageBaseOff : imageBaseOff+4]))
	}
	if sizeOfImageOff+4 <= len(buf) {
		h.SizeOfImage = binary.LittleEndian.Uint32(buf[sizeOfImageOff : sizeOfImageOff+4])
	}
	if numDirsOff+4 <= len(buf) {
		h.NumberOfRVAsAndSizes = binary.LittleEndian.Uint32(buf[numDirsOff : numDirsOff+4])
	}
	for i := 0; i < int(h.NumberOfRVAsAndSizes) && dirsOff+8*(i+1) <= len(buf); i++ {
		off := dirsOff + 8*i
		h.DataDirectory = append(h.DataDirectory, peDataDirectory{
			VirtualAddress: binary.LittleEndian.Uint32(buf[off : off+4]),
			Size:           binary.LittleEndian.Uint32(buf[off+4 : off+8]),
		})
	}
	return h, nil
}

// importDataDirectoryIndex is IMAGE_DIRECTORY_ENTRY_IMPORT.
const importDataDirectoryIndex = 1

// ImportDirectory returns the RVA and size of the image's import table, if
// present.
func (h *PEHeader) ImportDirectory() (rva, size uint32, ok bool) {
	if importDataDirectoryIndex >= len(h.DataDirectory) {
		return 0, 0, false
	}
	d := h.DataDirectory[importDataDirectoryIndex]
	if d.VirtualAddress == 0 {
		return 0, 0, false
	}
	return d.VirtualAddress, d.Size, true
}

// ImportDescriptor mirrors winnt.h's IMAGE_IMPORT_DESCRIPTOR, one per
// imported DLL.
type ImportDescriptor struct {
	OriginalFirstThunk uint32
	TimeDateStamp      uint32
	ForwarderChain     uint32
	NameRVA            uint32
	FirstThunk         uint32
}

// ParseImportDescriptor decodes one 20-byte IMAGE_IMPORT_DESCRIPTOR entry.
// A zeroed entry (all fields 0) marks the end of the array.
func ParseImportDescriptor(buf []byte) (ImportDescriptor, bool) {
	if len(buf) < 20 {
		return ImportDescriptor{}, false
	}
	d := ImportDescriptor{
		OriginalFirstThunk: binary.LittleEndian.Uint32(buf[0:4]),
		TimeDateStamp:      binary.LittleEndian.Uint32(buf[4:8]),
		ForwarderChain:     binary.LittleEndian.Uint32(buf[8:12]),
		NameRVA:            binary.LittleEndian.Uint32(buf[12:16]),
		FirstThunk:         binary.LittleEndian.Uint32(buf[16:20]),
	}
	if d == (ImportDescriptor{}) {
		return d, false
	}
	return d, true
}
