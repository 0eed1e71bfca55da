// Package ili9341 drives an ILI9341 TFT controller over a byte transport and
// a data/command select line.
//
// The package is split the same way the panel is talked to:
//
//   - Table / CommandFrame: the compact init table format and its decoder.
//   - Engine: reset, init table playback, power-on and frame transmission.
//   - PixelBuffer: one full 18 bpp frame shared with drawing code.
//   - Refresher: the background loop that keeps pushing the buffer.
//   - Device: owns all of the above for one panel.
//
// Bus and pin acquisition live elsewhere (see internal/hw); this package only
// needs something that implements Transport and Signal.
package ili9341

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	appLog "tftfb/internal/log"
)

// Mode is the state of the data/command select line.
type Mode uint8

const (
	// ModeCommand marks the bytes on the bus as an opcode (D/C low).
	ModeCommand Mode = iota
	// ModeData marks the bytes on the bus as arguments or pixels (D/C high).
	ModeData
)

func (m Mode) String() string {
	switch m {
	case ModeCommand:
		return "COMMAND"
	case ModeData:
		return "DATA"
	default:
		return "UNKNOWN"
	}
}

// Transport sends bytes to the controller. mode is informational for the
// transport; the controller only sees the Signal line.
type Transport interface {
	Send(p []byte, mode Mode) error
}

// Signal drives the data/command select line.
type Signal interface {
	SetMode(mode Mode)
}

// State is the bring-up state of the panel.
type State int32

const (
	StateIdle State = iota
	StateReset
	StateTablePlayback
	StatePowerSequence
	StateReady
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateReset:
		return "reset"
	case StateTablePlayback:
		return "table_playback"
	case StatePowerSequence:
		return "power_sequence"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// SettleDelay is how long the controller needs after SWRESET, SLPOUT and
// DISPON before it accepts further commands.
const SettleDelay = 150 * time.Millisecond

// EngineOpts tunes an Engine. The zero value uses SettleDelay and time.Sleep.
type EngineOpts struct {
	SettleDelay time.Duration
	// Sleep replaces time.Sleep for the settle delays.
	Sleep func(time.Duration)
}

// Engine sequences the controller protocol. Calls are serialized; the engine
// never has two transmissions in flight.
type Engine struct {
	tr  Transport
	sig Signal

	settle time.Duration
	sleep  func(time.Duration)

	mu       sync.Mutex
	state    atomic.Int32
	released bool // guarded by mu
}

// NewEngine returns an Engine talking through tr and sig. opts may be nil.
func NewEngine(tr Transport, sig Signal, opts *EngineOpts) *Engine {
	e := &Engine{
		tr:     tr,
		sig:    sig,
		settle: SettleDelay,
		sleep:  time.Sleep,
	}
	if opts != nil {
		if opts.SettleDelay > 0 {
			e.settle = opts.SettleDelay
		}
		if opts.Sleep != nil {
			e.sleep = opts.Sleep
		}
	}
	return e
}

// State returns the current bring-up state.
func (e *Engine) State() State {
	return State(e.state.Load())
}

func (e *Engine) setState(s State) {
	e.state.Store(int32(s))
	appLog.Debug("ili9341 state", "state", s.String())
}

func (e *Engine) fail(err error) error {
	e.setState(StateFailed)
	return err
}

// Reset sends a software reset and waits for the controller to settle.
//
// The controller forgets its configuration, so a successful Reset leaves the
// engine in StateIdle and SendFrame returns ErrNotReady until Initialize runs
// again.
func (e *Engine) Reset(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.released {
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	e.setState(StateReset)
	if err := e.reset(); err != nil {
		return e.fail(err)
	}
	e.setState(StateIdle)
	return nil
}

func (e *Engine) reset() error {
	if err := e.sendCommand("reset", CmdSWRESET); err != nil {
		return err
	}
	e.sleep(e.settle)
	return nil
}

// Initialize resets the controller, plays back table and powers the panel on.
//
// It stops at the first failure and leaves the engine in StateFailed; there
// is no rollback and no retry. ctx is only checked between commands.
func (e *Engine) Initialize(ctx context.Context, table Table) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.released {
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return e.fail(err)
	}

	e.setState(StateReset)
	if err := e.reset(); err != nil {
		return e.fail(err)
	}

	e.setState(StateTablePlayback)
	count := 0
	for f, err := range table.Frames() {
		if err != nil {
			return e.fail(err)
		}
		if err := ctx.Err(); err != nil {
			return e.fail(err)
		}
		if err := e.sendCommand("init", f.Opcode); err != nil {
			return e.fail(err)
		}
		if len(f.Args) > 0 {
			if err := e.sendData("init", f.Opcode, f.Args); err != nil {
				return e.fail(err)
			}
		}
		count++
	}

	e.setState(StatePowerSequence)
	for _, cmd := range []byte{CmdSLPOUT, CmdDISPON} {
		if err := e.sendCommand("power-on", cmd); err != nil {
			return e.fail(err)
		}
		e.sleep(e.settle)
	}

	e.setState(StateReady)
	appLog.Info("ili9341 initialized", "frames", count)
	return nil
}

// SendFrame transmits RAMWR followed by the full contents of buf as one
// transfer. A failed frame is not resent.
func (e *Engine) SendFrame(buf *PixelBuffer) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.released {
		return ErrClosed
	}
	if e.State() != StateReady {
		return ErrNotReady
	}
	if err := e.sendCommand("frame", CmdRAMWR); err != nil {
		return err
	}
	return buf.ReadFrame(func(pix []byte) error {
		return e.sendData("frame", CmdRAMWR, pix)
	})
}

// Sleep blanks the panel and puts the controller into sleep mode.
func (e *Engine) Sleep() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.released {
		return ErrClosed
	}
	return e.sleepPanel()
}

func (e *Engine) sleepPanel() error {
	for _, cmd := range []byte{CmdDISPOFF, CmdSLPIN} {
		if err := e.sendCommand("sleep", cmd); err != nil {
			return err
		}
	}
	e.sleep(e.settle)
	e.setState(StateIdle)
	return nil
}

// release waits for any call in progress, optionally blanks a ready panel,
// and runs closeFn. Every later call returns ErrClosed.
func (e *Engine) release(blank bool, closeFn func() error) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.released {
		return nil
	}
	var errs []error
	if blank && e.State() == StateReady {
		if err := e.sleepPanel(); err != nil {
			errs = append(errs, err)
		}
	}
	e.released = true
	if closeFn != nil {
		if err := closeFn(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (e *Engine) sendCommand(op string, cmd byte) error {
	e.sig.SetMode(ModeCommand)
	if err := e.tr.Send([]byte{cmd}, ModeCommand); err != nil {
		return &TransportError{Op: op, Opcode: cmd, Mode: ModeCommand, Err: err}
	}
	return nil
}

func (e *Engine) sendData(op string, cmd byte, p []byte) error {
	e.sig.SetMode(ModeData)
	if err := e.tr.Send(p, ModeData); err != nil {
		return &TransportError{Op: op, Opcode: cmd, Mode: ModeData, Err: err}
	}
	return nil
}
