// Package virt contains drivers for the devices of the hosted machine. The
// devices are backed by kernel memory instead of hardware registers but
// honor the same driver contracts as real hardware.
package virt

import (
	"quados/device"
	"quados/kernel/hal"
)

func init() {
	device.RegisterDriver(&device.DriverInfo{
		Order:      device.DetectOrderInterruptController,
		Compatible: hal.CompatibleIntController,
		Probe:      probeForIntController,
	})
	device.RegisterDriver(&device.DriverInfo{
		Order:      device.DetectOrderDevice,
		Compatible: hal.CompatibleUART,
		Probe:      probeForUART,
	})
	device.RegisterDriver(&device.DriverInfo{
		Order:      device.DetectOrderDevice,
		Compatible: hal.CompatibleRTC,
		Probe:      probeForClock,
	})
	device.RegisterDriver(&device.DriverInfo{
		Order:      device.DetectOrderDevice,
		Compatible: hal.CompatibleRAMDisk,
		Probe:      probeForRAMDisk,
	})
	device.RegisterDriver(&device.DriverInfo{
		Order:      device.DetectOrderDevice,
		Compatible: hal.CompatibleLoopback,
		Probe:      probeForLoopback,
	})
	device.RegisterDriver(&device.DriverInfo{
		Order:      device.DetectOrderDevice,
		Compatible: hal.CompatibleInput,
		Probe:      probeForEventQueue,
	})
}
