package ili9341

// Panel geometry. The controller is driven in 18 bpp mode (PIXFMT 0x66), so
// every pixel occupies three bytes on the wire.
const (
	Width         = 240
	Height        = 320
	BytesPerPixel = 3
	BufferSize    = Width * Height * BytesPerPixel
)

// ILI9341 command opcodes used by this driver (datasheet pp. 83-88).
const (
	CmdSWRESET  byte = 0x01 // Software Reset
	CmdSLPIN    byte = 0x10 // Enter Sleep Mode
	CmdSLPOUT   byte = 0x11 // Sleep Out
	CmdDISPOFF  byte = 0x28 // Display OFF
	CmdDISPON   byte = 0x29 // Display ON
	CmdRAMWR    byte = 0x2C // Memory Write
	CmdMADCTL   byte = 0x36 // Memory Access Control
	CmdVSCRSADD byte = 0x37 // Vertical Scrolling Start Address
	CmdPIXFMT   byte = 0x3A // COLMOD: Pixel Format Set
	CmdFRMCTR1  byte = 0xB1 // Frame Rate Control (Normal Mode)
	CmdDFUNCTR  byte = 0xB6 // Display Function Control
	CmdPWCTR1   byte = 0xC0 // Power Control 1
	CmdPWCTR2   byte = 0xC1 // Power Control 2
	CmdVMCTR1   byte = 0xC5 // VCOM Control 1
	CmdVMCTR2   byte = 0xC7 // VCOM Control 2
)

// DefaultInitTable is the panel bring-up sequence played back by Initialize
// after the software reset.
var DefaultInitTable = Table{
	1, CmdPWCTR1, 0x23,
	1, CmdPWCTR2, 0x10,
	2, CmdVMCTR1, 0x3E, 0x28,
	1, CmdVMCTR2, 0x86,
	1, CmdMADCTL, 0x40, // RGB
	1, CmdVSCRSADD, 0x00,
	1, CmdPIXFMT, 0x66, // 18 bits per pixel
	2, CmdFRMCTR1, 0x00, 0x18,
	3, CmdDFUNCTR, 0x08, 0x82, 0x27,
	0x00,
}
