package device

import "quados/kernel/sync"

// DetectOrder specifies when each driver's probe function will be invoked
// by the hardware detection code.
type DetectOrder int8

const (
	// DetectOrderEarly specifies that the driver's probe function should
	// be executed at the beginning of the HW detection phase. It is used
	// by devices whose output is needed by the rest of the probes (e.g.
	// consoles).
	DetectOrderEarly DetectOrder = -128

	// DetectOrderInterruptController specifies that the driver's probe
	// function should run before any device that raises interrupts.
	DetectOrderInterruptController DetectOrder = -64

	// DetectOrderDevice is the order of regular devices.
	DetectOrderDevice DetectOrder = 0

	// DetectOrderLast specifies that the driver's probe function should
	// be executed at the end of the HW detection phase.
	DetectOrderLast DetectOrder = 127
)

// Node describes a device reported by the platform.
type Node struct {
	// Compatible identifies the device model, e.g. "quados,ramdisk".
	Compatible string

	// Base is the physical address of the device registers.
	Base uintptr

	// IRQs lists the interrupt numbers wired to the device.
	IRQs []uint32
}

// ProbeFn is a function that checks whether node describes a device it can
// drive and returns a driver for it or nil.
type ProbeFn func(node Node) Driver

// DriverInfo is a driver-specific function that probes for the presence of
// a particular piece of hardware and returns a driver for it.
type DriverInfo struct {
	// Order specifies at which stage of the HW detection step the probe
	// function should be invoked.
	Order DetectOrder

	// Compatible selects the platform device nodes passed to Probe. An
	// empty value means the device is not enumerated by the platform and
	// Probe is invoked once with an empty Node.
	Compatible string

	// Probe is invoked by the hw detection code to detect the presence of
	// a device and return back a device driver for it.
	Probe ProbeFn
}

// DriverInfoList is a list of registered drivers that implements
// sort.Interface.
type DriverInfoList []*DriverInfo

// Len returns the length of the driver info list.
func (l DriverInfoList) Len() int { return len(l) }

// Swap exchanges 2 elements in the driver info list.
func (l DriverInfoList) Swap(i, j int) { l[i], l[j] = l[j], l[i] }

// Less compares 2 elements of the driver info list.
func (l DriverInfoList) Less(i, j int) bool { return l[i].Order < l[j].Order }

var (
	registryLock      sync.Spinlock
	registeredDrivers DriverInfoList
)

// RegisterDriver adds the supplied driver info entry to the list of
// registered drivers. The list can be retrieved via a call to DriverList.
func RegisterDriver(info *DriverInfo) {
	registryLock.Acquire()
	defer registryLock.Release()

	registeredDrivers = append(registeredDrivers, info)
}

// DriverList returns a copy of the list of registered drivers.
func DriverList() DriverInfoList {
	registryLock.Acquire()
	defer registryLock.Release()

	return append(DriverInfoList(nil), registeredDrivers...)
}
