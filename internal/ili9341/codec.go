package ili9341

import (
	"fmt"
	"iter"
)

// CommandFrame is one controller instruction plus its parameter bytes.
type CommandFrame struct {
	Opcode byte
	Args   []byte
}

// Table is an init table in its compact binary form:
//
//	[len][opcode][len arg bytes] ... [0x00]
//
// A zero length byte is the end-of-table sentinel. The encoding is purely
// positional; a corrupted length byte desynchronizes the rest of the table.
type Table []byte

// Frames returns the frames of t in table order. Each call starts a fresh
// pass over the bytes.
//
// If a length byte claims more arguments than remain, the sequence yields a
// *MalformedTableError and stops. A table that runs out of bytes before the
// sentinel simply ends.
func (t Table) Frames() iter.Seq2[CommandFrame, error] {
	return func(yield func(CommandFrame, error) bool) {
		pos := 0
		for pos < len(t) {
			n := int(t[pos])
			if n == 0 {
				return
			}
			remaining := len(t) - pos - 1
			if remaining < n+1 {
				yield(CommandFrame{}, &MalformedTableError{Offset: pos, Declared: n, Remaining: remaining})
				return
			}
			f := CommandFrame{
				Opcode: t[pos+1],
				Args:   t[pos+2 : pos+2+n : pos+2+n],
			}
			if !yield(f, nil) {
				return
			}
			pos += n + 2
		}
	}
}

// Decode collects every frame of t. On a malformed table it returns the
// frames decoded before the fault together with the error.
func (t Table) Decode() ([]CommandFrame, error) {
	var frames []CommandFrame
	for f, err := range t.Frames() {
		if err != nil {
			return frames, err
		}
		frames = append(frames, f)
	}
	return frames, nil
}

// Encode builds a sentinel-terminated table from frames. Frames without
// arguments cannot be represented because a zero length byte ends the table.
func Encode(frames ...CommandFrame) (Table, error) {
	size := 1
	for _, f := range frames {
		size += len(f.Args) + 2
	}
	t := make(Table, 0, size)
	for i, f := range frames {
		switch {
		case len(f.Args) == 0:
			return nil, fmt.Errorf("ili9341: frame %d (opcode 0x%02X) has no args", i, f.Opcode)
		case len(f.Args) > 255:
			return nil, fmt.Errorf("ili9341: frame %d (opcode 0x%02X) has %d args, max 255", i, f.Opcode, len(f.Args))
		}
		t = append(t, byte(len(f.Args)), f.Opcode)
		t = append(t, f.Args...)
	}
	return append(t, 0x00), nil
}
