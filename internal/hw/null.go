package hw

import (
	"sync/atomic"

	"tftfb/internal/ili9341"
	appLog "tftfb/internal/log"
)

// Null is a Transport and Signal that talks to no hardware. It lets the
// daemon run on a development machine; the web preview still works.
type Null struct {
	commands atomic.Uint64
	bytes    atomic.Uint64
}

// NewNull returns a Null transport.
func NewNull() *Null {
	appLog.Info("using null transport; no panel will be driven")
	return &Null{}
}

func (n *Null) SetMode(ili9341.Mode) {}

func (n *Null) Send(p []byte, mode ili9341.Mode) error {
	if mode == ili9341.ModeCommand && len(p) == 1 {
		n.commands.Add(1)
		appLog.Debug("null transport command", "opcode", p[0])
	}
	n.bytes.Add(uint64(len(p)))
	return nil
}

// Counters returns the number of single byte commands and total bytes sent.
func (n *Null) Counters() (commands, bytes uint64) {
	return n.commands.Load(), n.bytes.Load()
}
