// Package device defines the capability contracts implemented by device
// drivers, a registry of driver probes and a manager that keeps track of the
// drivers that were successfully initialized.
package device

import (
	"io"

	"quados/kernel"
)

// Driver is an interface implemented by all drivers.
type Driver interface {
	// DriverName returns the stable identifier of the driver.
	DriverName() string

	// DriverVersion returns the driver version.
	DriverVersion() (major uint16, minor uint16, patch uint16)

	// DriverInit initializes the device driver. If the driver init code
	// needs to log some output, it can use the supplied io.Writer in
	// conjunction with a call to kfmt.Fprintf.
	DriverInit(io.Writer) *kernel.Error

	// Interrupts returns the interrupt numbers owned by the device.
	Interrupts() []uint32

	// TryHandleInterrupt services irq if it was raised by this device
	// and reports whether the interrupt was claimed.
	TryHandleInterrupt(irq uint32) bool

	// DeviceType returns the category handle of this driver.
	DeviceType() DeviceType
}

// BaseDriver provides the default parts of the Driver contract. Drivers embed
// it and override what they need.
type BaseDriver struct {
	// IRQs lists the interrupt numbers owned by the device.
	IRQs []uint32
}

// Interrupts implements Driver.
func (d *BaseDriver) Interrupts() []uint32 { return d.IRQs }

// TryHandleInterrupt implements Driver. The default implementation never
// claims an interrupt.
func (d *BaseDriver) TryHandleInterrupt(_ uint32) bool { return false }

// DriverInit implements Driver.
func (d *BaseDriver) DriverInit(_ io.Writer) *kernel.Error { return nil }

// OwnsInterrupt returns true if irq is listed in drv's interrupts.
func OwnsInterrupt(drv Driver, irq uint32) bool {
	for _, owned := range drv.Interrupts() {
		if owned == irq {
			return true
		}
	}

	return false
}

// UnsupportedDriver is a placeholder for devices that no driver could be
// probed for.
type UnsupportedDriver struct {
	BaseDriver

	// Node is the device description the probe failed for.
	Node Node
}

// DriverName implements Driver.
func (*UnsupportedDriver) DriverName() string { return "unsupported-driver" }

// DriverVersion implements Driver.
func (*UnsupportedDriver) DriverVersion() (uint16, uint16, uint16) { return 0, 0, 0 }

// DeviceType implements Driver.
func (*UnsupportedDriver) DeviceType() DeviceType { return DeviceType{} }

// PageAllocator is used by drivers to obtain physically contiguous memory
// for device buffers.
type PageAllocator interface {
	// AllocPages reserves count contiguous zeroed pages and returns their
	// physical address.
	AllocPages(count uintptr) (uintptr, *kernel.Error)

	// DeallocPages returns pages obtained by AllocPages.
	DeallocPages(physAddr, count uintptr) *kernel.Error

	// PhysToVirt converts a physical address to a kernel virtual address.
	PhysToVirt(physAddr uintptr) uintptr

	// VirtToPhys converts a kernel virtual address to a physical address.
	VirtToPhys(virtAddr uintptr) uintptr

	// Bytes returns the memory behind the kernel virtual range
	// [virtAddr, virtAddr+size).
	Bytes(virtAddr, size uintptr) []byte
}

var pageAllocator PageAllocator

// SetPageAllocator registers the allocator drivers use for device buffers.
func SetPageAllocator(alloc PageAllocator) { pageAllocator = alloc }

// Pages returns the allocator registered with SetPageAllocator or nil.
func Pages() PageAllocator { return pageAllocator }
