package robodbg

import "unicode/utf16"

// maxRemoteStringLen bounds how far readRemoteCString/readRemoteWideString
// will walk before giving up on finding a terminator, guarding against a
// corrupt pointer turning a string read into an unbounded memory scan.
const maxRemoteStringLen = 4096

const stringChunk = 64

// readRemoteCString reads a NUL-terminated narrow string from the target
// starting at addr; ResolveString uses it for non-Unicode strings.
func readRemoteCString(m MemoryAccessor, process uintptr, addr Address) (string, error) {
	var out []byte
	buf := make([]byte, stringChunk)
	for len(out) < maxRemoteStringLen {
		n, err := m.ReadMemory(process, addr+Address(len(out)), buf)
		if n == 0 {
			return string(out), err
		}
		for i := 0; i < n; i++ {
			if buf[i] == 0 {
				return string(append(out, buf[:i]...)), nil
			}
		}
		out = append(out, buf[:n]...)
		if err != nil {
			return string(out), err
		}
	}
	return string(out), nil
}

// readRemoteWideString reads a NUL-terminated UTF-16LE string from the
// target; ResolveString uses it for Unicode strings.
func readRemoteWideString(m MemoryAccessor, process uintptr, addr Address) (string, error) {
	var units []uint16
	buf := make([]byte, stringChunk)
	for len(units) < maxRemoteStringLen {
		n, err := m.ReadMemory(process, addr+Address(len(units)*2), buf)
		if n == 0 {
			return string(utf16.Decode(units)), err
		}
		for i := 0; i+1 < n; i += 2 {
			u := uint16(buf[i]) | uint16(buf[i+1])<<8
			if u == 0 {
				return string(utf16.Decode(units)), nil
			}
			units = append(units, u)
		}
		if err != nil {
			return string(utf16.Decode(units)), err
		}
	}
	return string(utf16.Decode(units)), nil
}

// ResolveString reads either a narrow or wide NUL-terminated string
// depending on unicode, returning "" if addr is zero (spec.md §4.1 edge
// case: a DLL load event with no image-name pointer).
func ResolveString(m MemoryAccessor, process uintptr, addr Address, unicode bool) (string, error) {
	if addr == 0 {
		return "", nil
	}
	if unicode {
		return readRemoteWideString(m, process, addr)
	}
	return readRemoteCString(m, process, addr)
}
