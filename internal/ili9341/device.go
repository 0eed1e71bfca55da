package ili9341

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	appLog "tftfb/internal/log"
)

// Opts configures a Device. The zero value is the reference configuration:
// DefaultInitTable, locked buffer, continuous refresh, no retry.
type Opts struct {
	Table    Table
	Policy   Policy
	Interval time.Duration
	Retry    RetryPolicy

	// SettleDelay and Sleep are passed to the Engine.
	SettleDelay time.Duration
	Sleep       func(time.Duration)

	// SleepOnClose blanks the panel before the transport is released.
	SleepOnClose bool
}

// Stats describes a Device for status reporting.
type Stats struct {
	State    string        `json:"state"`
	Policy   string        `json:"policy"`
	Interval time.Duration `json:"interval_ns"`
	Refresh  RefreshStats  `json:"refresh"`
}

// Device is one attached panel. It owns the engine (and through it the
// transport and the select line), the pixel buffer, the pseudo palette and
// the refresh loop.
type Device struct {
	tr      Transport
	eng     *Engine
	buf     *PixelBuffer
	palette PseudoPalette
	ref     *Refresher

	table        Table
	interval     time.Duration
	sleepOnClose bool

	mu     sync.Mutex
	closed bool
}

// New allocates the buffer and wires the engine and refresher. Nothing is
// sent to the panel until Start or Init. opts may be nil.
func New(tr Transport, sig Signal, opts *Opts) *Device {
	if opts == nil {
		opts = &Opts{}
	}
	table := opts.Table
	if len(table) == 0 {
		table = DefaultInitTable
	}
	eng := NewEngine(tr, sig, &EngineOpts{SettleDelay: opts.SettleDelay, Sleep: opts.Sleep})
	buf := NewPixelBuffer(opts.Policy)
	return &Device{
		tr:           tr,
		eng:          eng,
		buf:          buf,
		ref:          NewRefresher(eng, buf, &RefreshOpts{Interval: opts.Interval, Retry: opts.Retry}),
		table:        table,
		interval:     opts.Interval,
		sleepOnClose: opts.SleepOnClose,
	}
}

// Buffer returns the drawing surface.
func (d *Device) Buffer() *PixelBuffer { return d.buf }

// Palette returns the pseudo palette.
func (d *Device) Palette() *PseudoPalette { return &d.palette }

// Engine returns the protocol engine.
func (d *Device) Engine() *Engine { return d.eng }

// Init runs the bring-up sequence without starting the refresh loop.
func (d *Device) Init(ctx context.Context) error {
	if d.isClosed() {
		return ErrClosed
	}
	if err := d.eng.Initialize(ctx, d.table); err != nil {
		return fmt.Errorf("ili9341: bring-up failed: %w", err)
	}
	return nil
}

// Start brings the panel up and then starts the refresh loop. If bring-up
// fails the loop is not started.
func (d *Device) Start(ctx context.Context) error {
	if err := d.Init(ctx); err != nil {
		return err
	}
	// Close flips closed under mu before stopping the loop, so a loop is
	// either started here and then stopped by Close, or never started.
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrClosed
	}
	return d.ref.Start(ctx)
}

// Flush sends the current buffer once, outside the refresh loop.
func (d *Device) Flush() error {
	if d.isClosed() {
		return ErrClosed
	}
	return d.eng.SendFrame(d.buf)
}

// Done is closed when the refresh loop exits.
func (d *Device) Done() <-chan struct{} { return d.ref.Done() }

// Err returns the error that terminated the refresh loop, if any.
func (d *Device) Err() error { return d.ref.Err() }

// Stats returns a status snapshot.
func (d *Device) Stats() Stats {
	return Stats{
		State:    d.eng.State().String(),
		Policy:   d.buf.Policy().String(),
		Interval: d.interval,
		Refresh:  d.ref.Stats(),
	}
}

// Close stops the refresh loop, waits for it and for any Flush in progress,
// and then releases the transport if it implements io.Closer. The pixel
// buffer stays readable.
func (d *Device) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	d.mu.Unlock()

	d.ref.Stop()

	var closeFn func() error
	if c, ok := d.tr.(io.Closer); ok {
		closeFn = c.Close
	}
	err := d.eng.release(d.sleepOnClose, closeFn)
	appLog.Info("ili9341 device closed")
	return err
}

func (d *Device) isClosed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}
