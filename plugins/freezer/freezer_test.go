package freezer

import (
	"bytes"
	"strings"
	"testing"
)

// ---------------------------------------------------------------------------
// CSV capture round trip
// ---------------------------------------------------------------------------

func sampleStates() []ThreadState {
	return []ThreadState{
		{TID: 100, PrevSuspendCount: 0, Priority: 0, BoostDisabled: false, Group: 0, Mask: 0xff, WeSuspended: true},
		{TID: 101, PrevSuspendCount: 1, Priority: 2, BoostDisabled: true, Group: 1, Mask: 0x1, WeSuspended: false},
	}
}

func TestExportImportCSVRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	want := sampleStates()
	if err := ExportCSV(&buf, want); err != nil {
		t.Fatalf("ExportCSV: %v", err)
	}

	got, err := ImportCSV(&buf)
	if err != nil {
		t.Fatalf("ImportCSV: %v", err)
	}
	if len(got) != len(want) {
		t.Fatalf("got %d states, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("state %d = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestExportCSVHeaderOrder(t *testing.T) {
	var buf bytes.Buffer
	if err := ExportCSV(&buf, nil); err != nil {
		t.Fatalf("ExportCSV: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected only the header row for an empty capture, got %d lines", len(lines))
	}
	if lines[0] != strings.Join(csvHeader, ",") {
		t.Fatalf("header = %q, want %q", lines[0], strings.Join(csvHeader, ","))
	}
}

func TestImportCSVRejectsEmptyInput(t *testing.T) {
	_, err := ImportCSV(strings.NewReader(""))
	if err == nil {
		t.Fatal("expected an error importing an empty capture")
	}
}

func TestImportCSVRejectsBadTID(t *testing.T) {
	data := strings.Join(csvHeader, ",") + "\nnotanumber,0,0,0,0,0,0\n"
	_, err := ImportCSV(strings.NewReader(data))
	if err == nil {
		t.Fatal("expected an error for a non-numeric tid field")
	}
}

func TestImportCSVDecodesBoolDigits(t *testing.T) {
	data := strings.Join(csvHeader, ",") + "\n42,0,0,1,0,0,1\n"
	got, err := ImportCSV(strings.NewReader(data))
	if err != nil {
		t.Fatalf("ImportCSV: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d states, want 1", len(got))
	}
	if !got[0].BoostDisabled || !got[0].WeSuspended {
		t.Fatalf("state = %+v, want both boolean flags set", got[0])
	}
}
