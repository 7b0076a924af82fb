package virt

import (
	"quados/device"
	"quados/kernel/sync"
)

// EventQueue is an input device. Events injected by the host are latched by
// the device and become readable once its interrupt has been serviced.
type EventQueue struct {
	device.BaseDriver

	lock    sync.Spinlock
	latched []uint64
	events  []uint64
}

// DriverName implements device.Driver.
func (*EventQueue) DriverName() string { return "virt-input" }

// DriverVersion implements device.Driver.
func (*EventQueue) DriverVersion() (uint16, uint16, uint16) { return 0, 1, 0 }

// DeviceType implements device.Driver.
func (q *EventQueue) DeviceType() device.DeviceType { return device.Input(q) }

// Inject latches an event in the device.
func (q *EventQueue) Inject(event uint64) {
	q.lock.Acquire()
	q.latched = append(q.latched, event)
	q.lock.Release()
}

// HandleIRQ implements device.InputDriver.
func (q *EventQueue) HandleIRQ() {
	q.lock.Acquire()
	q.events = append(q.events, q.latched...)
	q.latched = q.latched[:0]
	q.lock.Release()
}

// ReadEvent implements device.InputDriver.
func (q *EventQueue) ReadEvent() uint64 {
	q.lock.Acquire()
	defer q.lock.Release()

	if len(q.events) == 0 {
		return 0
	}

	event := q.events[0]
	q.events = q.events[1:]
	return event
}

// IsEmpty implements device.InputDriver.
func (q *EventQueue) IsEmpty() bool {
	q.lock.Acquire()
	defer q.lock.Release()

	return len(q.events) == 0
}

// TryHandleInterrupt services the device interrupt.
func (q *EventQueue) TryHandleInterrupt(irq uint32) bool {
	if !device.OwnsInterrupt(q, irq) {
		return false
	}

	q.HandleIRQ()
	return true
}

func probeForEventQueue(node device.Node) device.Driver {
	return &EventQueue{BaseDriver: device.BaseDriver{IRQs: node.IRQs}}
}
