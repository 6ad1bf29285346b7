package robodbg

import (
	"strings"
	"testing"
)

// ---------------------------------------------------------------------------
// Debugger.Verbose / DefaultCallbacks wiring
// ---------------------------------------------------------------------------

func TestNewDebuggerMergesDefaultCallbacksGatedByVerbose(t *testing.T) {
	var buf strings.Builder
	restore := redirectLogOutput(&buf)
	defer restore()

	d := NewDebugger(ArchAMD64, &fakeAdapter{}, newFakeMemory(), newFakeRegisters(), Callbacks{})

	d.dsp.cb.OnThreadExit(9)
	if buf.Len() != 0 {
		t.Fatalf("default callback logged with Verbose=false: %q", buf.String())
	}

	d.Verbose = true
	d.dsp.cb.OnThreadExit(9)
	if !strings.Contains(buf.String(), "9") {
		t.Fatalf("default callback did not log once Verbose was set to true: %q", buf.String())
	}
}

func TestNewDebuggerKeepsCallerSuppliedCallback(t *testing.T) {
	called := false
	d := NewDebugger(ArchAMD64, &fakeAdapter{}, newFakeMemory(), newFakeRegisters(), Callbacks{
		OnThreadExit: func(tid uint32) { called = true },
	})
	d.dsp.cb.OnThreadExit(1)
	if !called {
		t.Fatal("NewDebugger replaced a caller-supplied callback with the default")
	}
}

// ---------------------------------------------------------------------------
// Attach's thread-registry refresh
// ---------------------------------------------------------------------------

func TestAttachCompletesWhenThreadRefreshFindsNothing(t *testing.T) {
	adapter := &fakeAdapter{
		process: 1,
		events: []DebugEvent{
			{Kind: EventProcessExit, ProcessID: 1, ProcessExit: ProcessExitInfo{ExitCode: 0}},
		},
	}
	d := NewDebugger(ArchAMD64, adapter, newFakeMemory(), newFakeRegisters(), Callbacks{})

	if err := d.Attach(4242); err != nil {
		t.Fatalf("Attach: %v", err)
	}
	// EnumerateThreads/OpenThreadHandle are platform-specific; on a
	// non-Windows build (or any host with no such pid) refreshThreads must
	// fail closed rather than block or panic, leaving the registry to be
	// populated by ordinary dispatch events from here on (spec.md §7 "OS
	// call failure").
	if d.Threads().Len() != 0 {
		t.Fatalf("thread registry = %d entries, want 0 after a clean process-exit with no enumerable threads", d.Threads().Len())
	}
}
