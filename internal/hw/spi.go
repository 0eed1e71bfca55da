// Package hw binds the ILI9341 driver to real hardware through periph.io:
// the SPI port carries the bytes and one GPIO drives the data/command line.
package hw

import (
	"fmt"
	"io"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"

	"tftfb/internal/ili9341"
	appLog "tftfb/internal/log"
)

// defaultMaxTx is used when the SPI connection does not report its transfer
// limit. It matches the spidev default bufsiz.
const defaultMaxTx = 4096

// Opts selects the bus and pin for a panel.
type Opts struct {
	// Port is the periph SPI port name ("" for the first one, typically
	// /dev/spidev0.0 on Raspberry Pi).
	Port string
	// SpeedHz is the SPI clock. The ILI9341 write cycle allows 10 MHz; most
	// modules work well above that.
	SpeedHz int64
	// Mode is the SPI mode (0..3).
	Mode int
	// DC is the GPIO name of the data/command line, e.g. "GPIO25".
	DC string
}

// Bus is an ili9341.Transport and ili9341.Signal backed by periph.io.
type Bus struct {
	conn   spi.Conn
	dc     gpio.PinOut
	closer io.Closer
	maxTx  int
}

// Open initializes periph.io, opens the SPI port and claims the D/C pin.
// Every failure is reported as an *ili9341.ResourceUnavailableError.
func Open(opts Opts) (*Bus, error) {
	if _, err := host.Init(); err != nil {
		return nil, &ili9341.ResourceUnavailableError{Resource: "periph host", Err: err}
	}

	port, err := spireg.Open(opts.Port)
	if err != nil {
		return nil, &ili9341.ResourceUnavailableError{Resource: "spi port " + opts.Port, Err: err}
	}

	c, err := port.Connect(physic.Frequency(opts.SpeedHz)*physic.Hertz, spi.Mode(opts.Mode), 8)
	if err != nil {
		_ = port.Close()
		return nil, &ili9341.ResourceUnavailableError{Resource: "spi connection", Err: err}
	}

	dc := gpioreg.ByName(opts.DC)
	if dc == nil {
		_ = port.Close()
		return nil, &ili9341.ResourceUnavailableError{Resource: "dc pin " + opts.DC}
	}

	b, err := NewBus(c, dc, port)
	if err != nil {
		_ = port.Close()
		return nil, err
	}
	appLog.Info("spi bus opened",
		"port", port.String(),
		"speed_hz", opts.SpeedHz,
		"mode", opts.Mode,
		"dc", dc.String(),
		"max_tx", b.maxTx,
	)
	return b, nil
}

// NewBus wraps an already connected SPI conn and D/C pin. closer, if not
// nil, is closed by Bus.Close.
func NewBus(c spi.Conn, dc gpio.PinOut, closer io.Closer) (*Bus, error) {
	if dc == nil || dc == gpio.INVALID {
		return nil, &ili9341.ResourceUnavailableError{Resource: "dc pin"}
	}
	// Park the line in command mode until the first transfer.
	if err := dc.Out(gpio.Low); err != nil {
		return nil, &ili9341.ResourceUnavailableError{Resource: "dc pin " + dc.String(), Err: err}
	}
	maxTx := defaultMaxTx
	if l, ok := c.(interface{ MaxTxSize() int }); ok {
		if n := l.MaxTxSize(); n > 0 {
			maxTx = n
		}
	}
	return &Bus{conn: c, dc: dc, closer: closer, maxTx: maxTx}, nil
}

// SetMode drives the D/C line: low for commands, high for data.
func (b *Bus) SetMode(m ili9341.Mode) {
	level := gpio.Low
	if m == ili9341.ModeData {
		level = gpio.High
	}
	if err := b.dc.Out(level); err != nil {
		appLog.Error("dc pin write failed", err, "pin", b.dc.String(), "mode", m.String())
	}
}

// Send writes p as one logical transfer, split into chunks no larger than
// the port allows. The D/C line is not touched between chunks.
func (b *Bus) Send(p []byte, _ ili9341.Mode) error {
	for len(p) > 0 {
		n := min(len(p), b.maxTx)
		if err := b.conn.Tx(p[:n], nil); err != nil {
			return err
		}
		p = p[n:]
	}
	return nil
}

// Close releases the SPI port.
func (b *Bus) Close() error {
	if b.closer == nil {
		return nil
	}
	return b.closer.Close()
}

func (b *Bus) String() string {
	return fmt.Sprintf("hw.Bus{%s, dc=%s}", b.conn, b.dc)
}
