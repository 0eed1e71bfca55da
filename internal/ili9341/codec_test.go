package ili9341

import (
	"bytes"
	"errors"
	"testing"
)

func TestDecodeDefaultTable(t *testing.T) {
	frames, err := DefaultInitTable.Decode()
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}

	want := []CommandFrame{
		{CmdPWCTR1, []byte{0x23}},
		{CmdPWCTR2, []byte{0x10}},
		{CmdVMCTR1, []byte{0x3E, 0x28}},
		{CmdVMCTR2, []byte{0x86}},
		{CmdMADCTL, []byte{0x40}},
		{CmdVSCRSADD, []byte{0x00}},
		{CmdPIXFMT, []byte{0x66}},
		{CmdFRMCTR1, []byte{0x00, 0x18}},
		{CmdDFUNCTR, []byte{0x08, 0x82, 0x27}},
	}
	if len(frames) != len(want) {
		t.Fatalf("Decode() returned %d frames, want %d", len(frames), len(want))
	}
	for i, f := range frames {
		if f.Opcode != want[i].Opcode {
			t.Errorf("frame %d opcode = 0x%02X, want 0x%02X", i, f.Opcode, want[i].Opcode)
		}
		if !bytes.Equal(f.Args, want[i].Args) {
			t.Errorf("frame %d args = % X, want % X", i, f.Args, want[i].Args)
		}
	}
}

func TestFramesStopAtSentinel(t *testing.T) {
	// Bytes after the sentinel must never be decoded.
	table := append(Table{1, 0xC0, 0x23, 0x00}, 1, 0xC1, 0x10)

	var got []byte
	for f, err := range table.Frames() {
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		got = append(got, f.Opcode)
	}
	if !bytes.Equal(got, []byte{0xC0}) {
		t.Errorf("decoded opcodes = % X, want C0", got)
	}
}

func TestFramesRestartable(t *testing.T) {
	count := func() int {
		n := 0
		for range DefaultInitTable.Frames() {
			n++
		}
		return n
	}
	if a, b := count(), count(); a != 9 || b != 9 {
		t.Errorf("passes decoded %d and %d frames, want 9 and 9", a, b)
	}
}

func TestFramesEarlyBreak(t *testing.T) {
	n := 0
	for range DefaultInitTable.Frames() {
		n++
		if n == 3 {
			break
		}
	}
	if n != 3 {
		t.Errorf("n = %d, want 3", n)
	}
}

func TestFramesMalformed(t *testing.T) {
	tests := []struct {
		name       string
		table      Table
		wantFrames int
		wantOffset int
	}{
		{"length overruns first group", Table{4, 0xC0, 0x23}, 0, 0},
		{"length overruns second group", Table{1, 0xC0, 0x23, 3, 0xC5, 0x3E}, 1, 3},
		{"missing opcode", Table{1, 0xC0, 0x23, 1}, 1, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frames := 0
			var gotErr error
			for _, err := range tt.table.Frames() {
				if err != nil {
					gotErr = err
					continue
				}
				if gotErr != nil {
					t.Fatal("frame decoded after error")
				}
				frames++
			}
			if frames != tt.wantFrames {
				t.Errorf("frames = %d, want %d", frames, tt.wantFrames)
			}
			var me *MalformedTableError
			if !errors.As(gotErr, &me) {
				t.Fatalf("error = %v, want *MalformedTableError", gotErr)
			}
			if me.Offset != tt.wantOffset {
				t.Errorf("Offset = %d, want %d", me.Offset, tt.wantOffset)
			}
			if !IsMalformedTable(gotErr) {
				t.Error("IsMalformedTable() = false")
			}
		})
	}
}

func TestDecodeWithoutSentinel(t *testing.T) {
	frames, err := Table{1, 0xC0, 0x23}.Decode()
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if len(frames) != 1 {
		t.Errorf("frames = %d, want 1", len(frames))
	}
}

func TestEncodeRoundTripsDefaultTable(t *testing.T) {
	frames, err := DefaultInitTable.Decode()
	if err != nil {
		t.Fatal(err)
	}
	table, err := Encode(frames...)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	if !bytes.Equal(table, DefaultInitTable) {
		t.Errorf("Encode() = % X, want % X", table, DefaultInitTable)
	}
}

func TestEncodeRejects(t *testing.T) {
	tests := []struct {
		name  string
		frame CommandFrame
	}{
		{"no args", CommandFrame{Opcode: CmdSLPOUT}},
		{"too many args", CommandFrame{Opcode: 0xE0, Args: make([]byte, 256)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Encode(tt.frame); err == nil {
				t.Error("Encode() should fail")
			}
		})
	}
}

func TestFrameArgsDoNotAlias(t *testing.T) {
	table := Table{1, 0xC0, 0x23, 1, 0xC1, 0x10, 0x00}
	frames, err := table.Decode()
	if err != nil {
		t.Fatal(err)
	}
	// The args slice is capped, so appending must not clobber the next group.
	_ = append(frames[0].Args, 0xFF)
	if table[3] != 1 {
		t.Errorf("table mutated by append: % X", table)
	}
}
