package ili9341

import (
	"errors"
	"fmt"
)

var (
	// ErrAlreadyRunning is returned by Refresher.Start when a loop is active.
	ErrAlreadyRunning = errors.New("ili9341: refresh loop already running")
	// ErrNotReady is returned when frames are pushed before Initialize succeeded.
	ErrNotReady = errors.New("ili9341: panel not initialized")
	// ErrClosed is returned by operations on a closed Device.
	ErrClosed = errors.New("ili9341: device closed")
	// ErrBadRegister is returned by SetColReg for an out of range index.
	ErrBadRegister = errors.New("ili9341: palette register out of range")
)

// TransportError wraps a bus-level send failure.
type TransportError struct {
	// Op is the engine operation that was running (reset, init, frame, ...).
	Op     string
	Opcode byte
	Mode   Mode
	Err    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("ili9341: %s: send %s for opcode 0x%02X failed: %v", e.Op, e.Mode, e.Opcode, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// MalformedTableError is returned when a length byte in an init table claims
// more argument bytes than remain in the table.
type MalformedTableError struct {
	Offset    int // offset of the offending length byte
	Declared  int // argument count declared by the length byte
	Remaining int // bytes left after the length byte
}

func (e *MalformedTableError) Error() string {
	return fmt.Sprintf("ili9341: malformed init table at offset %d: declares %d args, %d bytes remain",
		e.Offset, e.Declared, e.Remaining)
}

// ResourceUnavailableError is returned when a bus, pin or buffer required for
// bring-up could not be acquired.
type ResourceUnavailableError struct {
	Resource string
	Err      error
}

func (e *ResourceUnavailableError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("ili9341: %s unavailable", e.Resource)
	}
	return fmt.Sprintf("ili9341: %s unavailable: %v", e.Resource, e.Err)
}

func (e *ResourceUnavailableError) Unwrap() error { return e.Err }

// IsTransportError reports whether err is or wraps a TransportError.
func IsTransportError(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// IsMalformedTable reports whether err is or wraps a MalformedTableError.
func IsMalformedTable(err error) bool {
	var me *MalformedTableError
	return errors.As(err, &me)
}
