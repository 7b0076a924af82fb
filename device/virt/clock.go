package virt

import (
	"io"
	"sync/atomic"
	"time"

	"quados/device"
	"quados/kernel"
	"quados/kernel/kfmt"
)

// Clock is a real time clock that reads the host time.
type Clock struct {
	device.BaseDriver

	nowFn func() time.Time
	ticks uint64
}

// DriverName implements device.Driver.
func (*Clock) DriverName() string { return "virt-rtc" }

// DriverVersion implements device.Driver.
func (*Clock) DriverVersion() (uint16, uint16, uint16) { return 0, 1, 0 }

// DriverInit implements device.Driver.
func (c *Clock) DriverInit(w io.Writer) *kernel.Error {
	kfmt.Fprintf(w, "time is %s; ", c.nowFn().UTC().Format(time.RFC3339))
	return nil
}

// DeviceType implements device.Driver.
func (c *Clock) DeviceType() device.DeviceType { return device.RTC(c) }

// ReadTimestamp implements device.RtcDriver.
func (c *Clock) ReadTimestamp() uint64 { return uint64(c.nowFn().UnixNano()) }

// Read implements device.RtcDriver.
func (c *Clock) Read() uint64 { return uint64(c.nowFn().Unix()) }

// TryHandleInterrupt counts timer ticks.
func (c *Clock) TryHandleInterrupt(irq uint32) bool {
	if !device.OwnsInterrupt(c, irq) {
		return false
	}

	atomic.AddUint64(&c.ticks, 1)
	return true
}

// Ticks returns the number of timer interrupts serviced so far.
func (c *Clock) Ticks() uint64 { return atomic.LoadUint64(&c.ticks) }

func probeForClock(node device.Node) device.Driver {
	return &Clock{
		BaseDriver: device.BaseDriver{IRQs: node.IRQs},
		nowFn:      time.Now,
	}
}
