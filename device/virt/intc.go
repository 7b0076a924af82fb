package virt

import (
	"io"

	"quados/device"
	"quados/kernel"
	"quados/kernel/kfmt"
	"quados/kernel/sync"
)

// IntController routes interrupts raised by hosted devices to the drivers
// registered for them. Raised interrupts stay pending until Dispatch runs.
type IntController struct {
	device.BaseDriver

	lock    sync.Spinlock
	routes  map[uint32][]device.Driver
	pending []uint32
}

// NewIntController returns an interrupt controller without routes.
func NewIntController() *IntController {
	return &IntController{routes: make(map[uint32][]device.Driver)}
}

// DriverName implements device.Driver.
func (*IntController) DriverName() string { return "virt-intc" }

// DriverVersion implements device.Driver.
func (*IntController) DriverVersion() (uint16, uint16, uint16) { return 0, 1, 0 }

// DriverInit implements device.Driver.
func (c *IntController) DriverInit(w io.Writer) *kernel.Error {
	kfmt.Fprintf(w, "ready for IRQ routing; ")
	return nil
}

// DeviceType implements device.Driver.
func (c *IntController) DeviceType() device.DeviceType { return device.Int(c) }

// RegisterIRQ implements device.IntDriver.
func (c *IntController) RegisterIRQ(irq uint32, drv device.Driver) {
	c.lock.Acquire()
	c.routes[irq] = append(c.routes[irq], drv)
	c.lock.Release()
}

// Raise marks irq as pending.
func (c *IntController) Raise(irq uint32) {
	c.lock.Acquire()
	c.pending = append(c.pending, irq)
	c.lock.Release()
}

// Pending returns the number of interrupts waiting to be dispatched.
func (c *IntController) Pending() int {
	c.lock.Acquire()
	defer c.lock.Release()

	return len(c.pending)
}

// Dispatch delivers every pending interrupt to the drivers routed to it and
// returns the number of interrupts that were claimed.
func (c *IntController) Dispatch() int {
	c.lock.Acquire()
	pending := c.pending
	c.pending = nil
	routes := make(map[uint32][]device.Driver, len(c.routes))
	for irq, drivers := range c.routes {
		routes[irq] = drivers
	}
	c.lock.Release()

	var claimed int
	for _, irq := range pending {
		for _, drv := range routes[irq] {
			if drv.TryHandleInterrupt(irq) {
				claimed++
				break
			}
		}
	}

	return claimed
}

func probeForIntController(node device.Node) device.Driver {
	intc := NewIntController()
	intc.IRQs = node.IRQs
	return intc
}
