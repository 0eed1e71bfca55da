package hw

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpiotest"
	"periph.io/x/conn/v3/spi"

	"tftfb/internal/ili9341"
)

// tx is one recorded SPI transfer with the D/C level seen during it.
type tx struct {
	dc gpio.Level
	w  []byte
}

// fakeConn is an spi.Conn that records writes.
type fakeConn struct {
	dc    *gpiotest.Pin
	max   int
	txs   []tx
	err   error
	errAt int
}

func (f *fakeConn) String() string { return "fakeConn" }
func (f *fakeConn) Duplex() conn.Duplex { return conn.Half }
func (f *fakeConn) MaxTxSize() int { return f.max }
func (f *fakeConn) TxPackets([]spi.Packet) error { return errors.New("not implemented") }

func (f *fakeConn) Tx(w, r []byte) error {
	f.txs = append(f.txs, tx{dc: f.dc.Read(), w: append([]byte(nil), w...)})
	if f.err != nil && len(f.txs) >= f.errAt {
		return f.err
	}
	return nil
}

type closeCounter struct{ n int }

func (c *closeCounter) Close() error { c.n++; return nil }

func newTestBus(t *testing.T, max int) (*Bus, *fakeConn, *gpiotest.Pin) {
	t.Helper()
	pin := &gpiotest.Pin{N: "GPIO25", Num: 25, L: gpio.High}
	fc := &fakeConn{dc: pin, max: max}
	b, err := NewBus(fc, pin, nil)
	if err != nil {
		t.Fatalf("NewBus() error = %v", err)
	}
	return b, fc, pin
}

func TestNewBusParksDCLow(t *testing.T) {
	_, _, pin := newTestBus(t, 0)
	if pin.Read() != gpio.Low {
		t.Error("D/C should start low")
	}
}

func TestNewBusRejectsMissingPin(t *testing.T) {
	_, err := NewBus(&fakeConn{}, nil, nil)
	var re *ili9341.ResourceUnavailableError
	if !errors.As(err, &re) {
		t.Fatalf("NewBus(nil pin) error = %v, want ResourceUnavailableError", err)
	}
}

func TestSetModeDrivesPin(t *testing.T) {
	b, _, pin := newTestBus(t, 0)
	b.SetMode(ili9341.ModeData)
	if pin.Read() != gpio.High {
		t.Error("data mode should drive D/C high")
	}
	b.SetMode(ili9341.ModeCommand)
	if pin.Read() != gpio.Low {
		t.Error("command mode should drive D/C low")
	}
}

func TestSendChunks(t *testing.T) {
	tests := []struct {
		name   string
		max    int
		size   int
		chunks int
	}{
		{"single byte", 4096, 1, 1},
		{"exact limit", 4096, 4096, 1},
		{"full frame", 4096, ili9341.BufferSize, 57}, // 230400 / 4096 = 56.25
		{"unreported limit", 0, 10000, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, fc, _ := newTestBus(t, tt.max)
			p := make([]byte, tt.size)
			for i := range p {
				p[i] = byte(i)
			}
			if err := b.Send(p, ili9341.ModeData); err != nil {
				t.Fatalf("Send() error = %v", err)
			}
			if len(fc.txs) != tt.chunks {
				t.Errorf("transfers = %d, want %d", len(fc.txs), tt.chunks)
			}
			var got []byte
			for _, x := range fc.txs {
				got = append(got, x.w...)
			}
			if !bytes.Equal(got, p) {
				t.Error("reassembled transfer differs from input")
			}
		})
	}
}

func TestSendStopsOnError(t *testing.T) {
	b, fc, _ := newTestBus(t, 16)
	fc.err = errors.New("spi: EIO")
	fc.errAt = 2
	if err := b.Send(make([]byte, 64), ili9341.ModeData); !errors.Is(err, fc.err) {
		t.Fatalf("Send() error = %v", err)
	}
	if len(fc.txs) != 2 {
		t.Errorf("transfers = %d, want 2", len(fc.txs))
	}
}

func TestEngineOverBus(t *testing.T) {
	b, fc, _ := newTestBus(t, 4096)
	e := ili9341.NewEngine(b, b, &ili9341.EngineOpts{Sleep: func(time.Duration) {}})
	if err := e.Initialize(context.Background(), ili9341.DefaultInitTable); err != nil {
		t.Fatal(err)
	}
	first := fc.txs[0]
	if first.dc != gpio.Low || first.w[0] != ili9341.CmdSWRESET {
		t.Errorf("first transfer = %v % X, want SWRESET at D/C low", first.dc, first.w)
	}
	last := fc.txs[len(fc.txs)-1]
	if last.dc != gpio.Low || last.w[0] != ili9341.CmdDISPON {
		t.Errorf("last transfer = %v % X, want DISPON at D/C low", last.dc, last.w)
	}
	args := fc.txs[2]
	if args.dc != gpio.High || !bytes.Equal(args.w, []byte{0x23}) {
		t.Errorf("PWCTR1 args = %v % X, want 23 at D/C high", args.dc, args.w)
	}
}

func TestBusClose(t *testing.T) {
	pin := &gpiotest.Pin{N: "GPIO25"}
	cc := &closeCounter{}
	b, err := NewBus(&fakeConn{dc: pin}, pin, cc)
	if err != nil {
		t.Fatal(err)
	}
	if err := b.Close(); err != nil || cc.n != 1 {
		t.Errorf("Close() = %v, closes = %d", err, cc.n)
	}
}

func TestNullCounts(t *testing.T) {
	n := NewNull()
	_ = n.Send([]byte{ili9341.CmdRAMWR}, ili9341.ModeCommand)
	_ = n.Send(make([]byte, 10), ili9341.ModeData)
	cmds, total := n.Counters()
	if cmds != 1 || total != 11 {
		t.Errorf("Counters() = %d, %d, want 1, 11", cmds, total)
	}
}
