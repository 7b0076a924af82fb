package virt

import (
	"bytes"

	"quados/device"
	"quados/kernel/sync"
)

// BufferedUART is a serial port whose transmitter appends to a buffer and
// whose receiver is fed by the host.
type BufferedUART struct {
	device.BaseDriver

	lock sync.Spinlock
	tx   bytes.Buffer
	rx   []byte
}

// DriverName implements device.Driver.
func (*BufferedUART) DriverName() string { return "virt-uart" }

// DriverVersion implements device.Driver.
func (*BufferedUART) DriverVersion() (uint16, uint16, uint16) { return 0, 1, 0 }

// DeviceType implements device.Driver.
func (u *BufferedUART) DeviceType() device.DeviceType { return device.UART(u) }

// Put implements device.UartDriver.
func (u *BufferedUART) Put(c byte) {
	u.lock.Acquire()
	u.tx.WriteByte(c)
	u.lock.Release()
}

// Get implements device.UartDriver.
func (u *BufferedUART) Get() (byte, bool) {
	u.lock.Acquire()
	defer u.lock.Release()

	if len(u.rx) == 0 {
		return 0, false
	}

	c := u.rx[0]
	u.rx = u.rx[1:]
	return c, true
}

// Feed queues data for the receiver.
func (u *BufferedUART) Feed(data []byte) {
	u.lock.Acquire()
	u.rx = append(u.rx, data...)
	u.lock.Release()
}

// Output returns and clears everything transmitted so far.
func (u *BufferedUART) Output() string {
	u.lock.Acquire()
	defer u.lock.Release()

	out := u.tx.String()
	u.tx.Reset()
	return out
}

// TryHandleInterrupt claims receive interrupts while input is pending.
func (u *BufferedUART) TryHandleInterrupt(irq uint32) bool {
	if !device.OwnsInterrupt(u, irq) {
		return false
	}

	u.lock.Acquire()
	defer u.lock.Release()
	return len(u.rx) != 0
}

func probeForUART(node device.Node) device.Driver {
	return &BufferedUART{BaseDriver: device.BaseDriver{IRQs: node.IRQs}}
}
