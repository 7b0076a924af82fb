// Package hosttty provides a serial port driver backed by the terminal of
// the host process.
package hosttty

import (
	"io"

	"github.com/mattn/go-tty"

	"quados/device"
	"quados/kernel"
	"quados/kernel/hal"
	"quados/kernel/kfmt"
	"quados/kernel/sync"
)

// rxBufferSize is the number of received bytes buffered by the driver.
const rxBufferSize = 256

var (
	errOpenFailed = &kernel.Error{Module: "hosttty", Message: "unable to open host terminal"}

	// openTerminalFn is mocked by tests.
	openTerminalFn = openTerminal
)

// terminal is the host side of the serial port.
type terminal struct {
	in    io.Reader
	out   io.Writer
	close func() error
}

// openTerminal opens the terminal device at path, or the controlling
// terminal if path is empty, and switches it to raw mode.
func openTerminal(path string) (*terminal, error) {
	var (
		t   *tty.TTY
		err error
	)

	if path == "" {
		t, err = tty.Open()
	} else {
		t, err = tty.OpenDevice(path)
	}
	if err != nil {
		return nil, err
	}

	restore, err := t.Raw()
	if err != nil {
		_ = t.Close()
		return nil, err
	}

	return &terminal{
		in:  t.Input(),
		out: t.Output(),
		close: func() error {
			_ = restore()
			return t.Close()
		},
	}, nil
}

// Terminal is a UART whose transmitter writes to the host terminal and
// whose receiver is fed by keystrokes typed into it.
type Terminal struct {
	device.BaseDriver

	path string
	term *terminal

	txLock sync.Spinlock
	rx     chan byte
	done   chan struct{}
}

// DriverName implements device.Driver.
func (*Terminal) DriverName() string { return "hosttty" }

// DriverVersion implements device.Driver.
func (*Terminal) DriverVersion() (uint16, uint16, uint16) { return 0, 1, 0 }

// DriverInit implements device.Driver.
func (d *Terminal) DriverInit(w io.Writer) *kernel.Error {
	term, err := openTerminalFn(d.path)
	if err != nil {
		kfmt.Fprintf(w, "%s; ", err.Error())
		return errOpenFailed
	}

	d.term = term
	d.rx = make(chan byte, rxBufferSize)
	d.done = make(chan struct{})
	go d.receive()

	if d.path != "" {
		kfmt.Fprintf(w, "attached to %s; ", d.path)
	}
	return nil
}

// DeviceType implements device.Driver.
func (d *Terminal) DeviceType() device.DeviceType { return device.UART(d) }

// Put implements device.UartDriver.
func (d *Terminal) Put(c byte) {
	d.txLock.Acquire()
	_, _ = d.term.out.Write([]byte{c})
	d.txLock.Release()
}

// Get implements device.UartDriver. It never blocks.
func (d *Terminal) Get() (byte, bool) {
	select {
	case c, ok := <-d.rx:
		return c, ok
	default:
		return 0, false
	}
}

// TryHandleInterrupt claims receive interrupts while input is pending.
func (d *Terminal) TryHandleInterrupt(irq uint32) bool {
	return device.OwnsInterrupt(d, irq) && len(d.rx) != 0
}

// Close stops the receiver and restores the host terminal.
func (d *Terminal) Close() error {
	close(d.done)
	return d.term.close()
}

// receive forwards bytes read from the host terminal to the rx buffer until
// the terminal is closed or reading fails. Bytes arriving while the buffer
// is full are dropped.
func (d *Terminal) receive() {
	defer close(d.rx)

	buf := make([]byte, 64)
	for {
		n, err := d.term.in.Read(buf)
		for _, c := range buf[:n] {
			select {
			case d.rx <- c:
			case <-d.done:
				return
			default:
			}
		}

		if err != nil {
			return
		}
	}
}

func probeForTerminal(node device.Node) device.Driver {
	return &Terminal{
		BaseDriver: device.BaseDriver{IRQs: node.IRQs},
		path:       hal.BootCmdLine()["tty"],
	}
}

func init() {
	device.RegisterDriver(&device.DriverInfo{
		Order:      device.DetectOrderEarly,
		Compatible: hal.CompatibleHostTTY,
		Probe:      probeForTerminal,
	})
}
