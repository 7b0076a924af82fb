package device

import "quados/kernel"

// RtcDriver is implemented by real time clocks.
type RtcDriver interface {
	Driver

	// ReadTimestamp returns the current time in nanoseconds since the
	// Unix epoch.
	ReadTimestamp() uint64

	// Read returns the current time in seconds since the Unix epoch.
	Read() uint64
}

// BlkDriver is implemented by block devices.
type BlkDriver interface {
	Driver

	// ReadBlocks fills buf with consecutive blocks starting at blockID.
	// len(buf) must be a multiple of BlockSize.
	ReadBlocks(blockID uint64, buf []byte) *kernel.Error

	// WriteBlocks stores buf into consecutive blocks starting at blockID.
	WriteBlocks(blockID uint64, buf []byte) *kernel.Error

	// Capacity returns the device size in bytes.
	Capacity() uint64
}

// BlockSize is the transfer unit of block devices.
const BlockSize = 512

// ErrNoData is returned by NetDriver.Recv when no packet is pending.
var ErrNoData = &kernel.Error{Module: "net", Message: "no data"}

// NetDriver is implemented by network interfaces.
type NetDriver interface {
	Driver

	// Recv copies one pending packet into buf and returns its length. If
	// no packet is pending it returns ErrNoData.
	Recv(buf []byte) (int, *kernel.Error)

	// Send transmits buf as a single packet.
	Send(buf []byte) *kernel.Error
}

// IntDriver is implemented by interrupt controllers.
type IntDriver interface {
	Driver

	// RegisterIRQ routes irq to drv.
	RegisterIRQ(irq uint32, drv Driver)
}

// InputDriver is implemented by input devices.
type InputDriver interface {
	Driver

	// ReadEvent returns the oldest pending event or 0 if none is pending.
	ReadEvent() uint64

	// HandleIRQ services one device interrupt.
	HandleIRQ()

	// IsEmpty returns true if no event is pending.
	IsEmpty() bool
}

// UartDriver is implemented by serial ports.
type UartDriver interface {
	Driver

	// Put transmits c.
	Put(c byte)

	// Get returns a received byte, if one is available.
	Get() (byte, bool)
}
