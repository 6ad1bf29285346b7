package robodbg

import "testing"

// ---------------------------------------------------------------------------
// Hardware breakpoint manager
// ---------------------------------------------------------------------------

func TestHardwareBreakpointAllocateFillsLowestFreeSlot(t *testing.T) {
	m := NewHardwareBreakpointManager()
	for i := DR0; i <= DR3; i++ {
		slot := m.Allocate()
		if slot != i {
			t.Fatalf("Allocate() = %v, want %v", slot, i)
		}
		if err := m.Set(slot, Address(0x1000+int(i)), AccessExecute, LenByte); err != nil {
			t.Fatalf("Set(%v): %v", slot, err)
		}
	}
	if slot := m.Allocate(); slot != NOP {
		t.Fatalf("Allocate() with all slots full = %v, want NOP", slot)
	}
}

func TestHardwareBreakpointExecuteRequiresByteLength(t *testing.T) {
	m := NewHardwareBreakpointManager()
	if err := m.Set(DR0, 0x1000, AccessExecute, LenDword); err != ErrBadLength {
		t.Fatalf("Set(EXECUTE, LenDword) err = %v, want ErrBadLength", err)
	}
}

func TestHardwareBreakpointInvalidSlot(t *testing.T) {
	m := NewHardwareBreakpointManager()
	if err := m.Set(DRSlot(9), 0x1000, AccessExecute, LenByte); err != ErrInvalidSlot {
		t.Fatalf("Set with out-of-range slot err = %v, want ErrInvalidSlot", err)
	}
}

func TestEncodeDR7EncodesTypeAndLength(t *testing.T) {
	m := NewHardwareBreakpointManager()
	m.Set(DR0, 0x1000, AccessExecute, LenByte)
	m.Set(DR1, 0x2000, AccessWrite, LenDword)

	dr7 := m.EncodeDR7()

	// DR0 local enable (bit 0), type EXECUTE=00 at bits 16-17, length=00
	// (1 byte) at bits 18-19.
	if dr7&(1<<0) == 0 {
		t.Fatal("DR0 local enable bit not set")
	}
	if (dr7>>16)&0b11 != 0b00 {
		t.Fatalf("DR0 type bits = %b, want 00 (execute)", (dr7>>16)&0b11)
	}
	// DR1 local enable (bit 2), type WRITE=01 at bits 20-21, length=11 (4
	// bytes, LenDword) at bits 22-23.
	if dr7&(1<<2) == 0 {
		t.Fatal("DR1 local enable bit not set")
	}
	if (dr7>>20)&0b11 != 0b01 {
		t.Fatalf("DR1 type bits = %b, want 01 (write)", (dr7>>20)&0b11)
	}
	if (dr7>>22)&0b11 != 0b11 {
		t.Fatalf("DR1 length bits = %b, want 11 (4 bytes)", (dr7>>22)&0b11)
	}
}

func TestHitSlotDecodesDR6(t *testing.T) {
	tests := []struct {
		dr6  uint64
		want DRSlot
	}{
		{0b0000, NOP},
		{0b0001, DR0},
		{0b0010, DR1},
		{0b0100, DR2},
		{0b1000, DR3},
		{0b1010, DR1}, // lowest set bit wins
	}
	for _, tt := range tests {
		if got := HitSlot(tt.dr6); got != tt.want {
			t.Errorf("HitSlot(%b) = %v, want %v", tt.dr6, got, tt.want)
		}
	}
}

func TestClearFreesSlotAndLookupFails(t *testing.T) {
	m := NewHardwareBreakpointManager()
	m.Set(DR2, 0x1000, AccessReadWrite, LenQword)
	if err := m.Clear(DR2); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if _, _, _, ok := m.Lookup(DR2); ok {
		t.Fatal("Lookup succeeded after Clear")
	}
	if slot := m.SlotFor(0x1000); slot != NOP {
		t.Fatalf("SlotFor after Clear = %v, want NOP", slot)
	}
}
