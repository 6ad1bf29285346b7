package robodbg

import (
	"log"
	"strings"
	"testing"
)

// redirectLogOutput captures log package output for the duration of a test
// and returns a func that restores the previous writer.
func redirectLogOutput(w *strings.Builder) func() {
	prev := log.Writer()
	log.SetOutput(w)
	return func() { log.SetOutput(prev) }
}

// ---------------------------------------------------------------------------
// DefaultCallbacks / mergeCallbacks
// ---------------------------------------------------------------------------

func TestDefaultCallbacksBreakpointHooksDefaultToRestore(t *testing.T) {
	verbose := false
	cb := DefaultCallbacks(&verbose)
	if got := cb.OnBreakpoint(1, 0x1000); got != Restore {
		t.Fatalf("OnBreakpoint default = %v, want Restore", got)
	}
	if got := cb.OnHardwareBreakpoint(1, DR0, 0x1000, AccessExecute); got != Restore {
		t.Fatalf("OnHardwareBreakpoint default = %v, want Restore", got)
	}
	if got := cb.OnUnhandledException(1, ExceptionInfo{}); got != ContinueUnhandled {
		t.Fatalf("OnUnhandledException default = %v, want ContinueUnhandled", got)
	}
}

func TestDefaultCallbacksLogOnlyWhenVerbose(t *testing.T) {
	var buf strings.Builder
	restore := redirectLogOutput(&buf)
	defer restore()

	verbose := false
	cb := DefaultCallbacks(&verbose)
	cb.OnProcessCreate(42, ProcessCreateInfo{})
	if buf.Len() != 0 {
		t.Fatalf("default callback logged with Verbose=false: %q", buf.String())
	}

	verbose = true
	cb.OnProcessCreate(42, ProcessCreateInfo{})
	if !strings.Contains(buf.String(), "42") {
		t.Fatalf("default callback did not log with Verbose=true: %q", buf.String())
	}
}

func TestMergeCallbacksKeepsCallerOverrides(t *testing.T) {
	called := false
	cb := Callbacks{OnThreadExit: func(tid uint32) { called = true }}
	merged := mergeCallbacks(cb, DefaultCallbacks(nil))

	merged.OnThreadExit(7)
	if !called {
		t.Fatal("mergeCallbacks replaced a caller-supplied hook")
	}
	if merged.OnProcessCreate == nil {
		t.Fatal("mergeCallbacks left a nil hook the caller didn't supply")
	}
}
