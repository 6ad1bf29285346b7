//go:build !windows

package robodbg

// EnumerateThreads and OpenThreadHandle back the attach-time registry
// refresh on non-Windows platforms with a stub that always fails, mirroring
// adapter_stub.go (spec.md §1 — the native debug port is Windows-only).

func EnumerateThreads(pid uint32) ([]uint32, error) {
	return nil, ErrUnsupportedOS
}

func OpenThreadHandle(tid uint32) (uintptr, error) {
	return 0, ErrUnsupportedOS
}
