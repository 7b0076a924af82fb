// Package hal describes the platform the kernel runs on and discovers the
// devices it provides.
package hal

import (
	"bytes"
	"sort"

	"quados/device"
	"quados/kernel/kfmt"
)

// managedDevices contains the devices discovered by the HAL.
type managedDevices struct {
	manager device.Manager

	activeUART device.UartDriver
	activeIntc device.IntDriver
}

var (
	devices managedDevices
	strBuf  bytes.Buffer

	log = kfmt.Logger{Module: "hal"}

	// setOutputSinkFn is mocked by tests.
	setOutputSinkFn = kfmt.SetOutputSink
)

// Devices returns the manager holding every initialized driver.
func Devices() *device.Manager {
	return &devices.manager
}

// ActiveUART returns the serial port used as the kernel console or nil.
func ActiveUART() device.UartDriver {
	return devices.activeUART
}

// DetectHardware probes for hardware devices and initializes the appropriate
// drivers. Platform devices that no driver could be initialized for are
// recorded with a device.UnsupportedDriver. Drivers found by an earlier call
// are discarded.
func DetectHardware() {
	devices = managedDevices{}

	// Get driver list and sort by detection priority
	drivers := device.DriverList()
	sort.Stable(drivers)

	var nodes []device.Node
	if bootInfo != nil {
		nodes = bootInfo.Devices
	}

	probe(drivers, nodes)
	routeInterrupts()
}

// probe executes the probe function of each driver for every platform node
// that matches it and invokes onDriverInit for each successfully
// initialized driver.
func probe(driverInfoList device.DriverInfoList, nodes []device.Node) {
	var (
		w       = kfmt.PrefixWriter{Sink: kfmt.Console{}}
		claimed = make([]bool, len(nodes))
	)

	for _, info := range driverInfoList {
		if info.Compatible == "" {
			tryInit(&w, info, device.Node{})
			continue
		}

		for index, node := range nodes {
			if claimed[index] || node.Compatible != info.Compatible {
				continue
			}

			claimed[index] = tryInit(&w, info, node)
		}
	}

	for index, node := range nodes {
		if claimed[index] {
			continue
		}

		log.Warnf("no driver for device %q at 0x%x", node.Compatible, node.Base)
		devices.manager.Add(&device.UnsupportedDriver{
			BaseDriver: device.BaseDriver{IRQs: node.IRQs},
			Node:       node,
		})
	}
}

// tryInit probes node with info and initializes the returned driver.
func tryInit(w *kfmt.PrefixWriter, info *device.DriverInfo, node device.Node) bool {
	drv := info.Probe(node)
	if drv == nil {
		return false
	}

	strBuf.Reset()
	major, minor, patch := drv.DriverVersion()
	kfmt.Fprintf(&strBuf, "[hal] %s(%d.%d.%d): ", drv.DriverName(), major, minor, patch)
	w.Prefix = strBuf.String()

	if err := drv.DriverInit(w); err != nil {
		kfmt.Fprintf(w, "init failed: %s\n", err.Message)
		return false
	}

	kfmt.Fprintf(w, "initialized\n")
	onDriverInit(drv)
	devices.manager.Add(drv)
	return true
}

// onDriverInit is invoked by probe() whenever a piece of hardware is detected
// and successfully initialized. The serial port selected by the "console"
// boot argument becomes the kernel console and the first interrupt
// controller receives the interrupt routes of the other devices.
func onDriverInit(drv device.Driver) {
	devType := drv.DeviceType()

	if uart, ok := devType.UART(); ok && devices.activeUART == nil && BootCmdLine()["console"] == drv.DriverName() {
		devices.activeUART = uart
		setOutputSinkFn(device.UARTWriter{UART: uart})
	}

	if intc, ok := devType.Int(); ok && devices.activeIntc == nil {
		devices.activeIntc = intc
	}
}

// routeInterrupts registers the interrupts of every device with the active
// interrupt controller.
func routeInterrupts() {
	if devices.activeIntc == nil {
		return
	}

	for _, drv := range devices.manager.Drivers() {
		if _, unsupported := drv.(*device.UnsupportedDriver); unsupported {
			continue
		}

		for _, irq := range drv.Interrupts() {
			devices.activeIntc.RegisterIRQ(irq, drv)
		}
	}
}
