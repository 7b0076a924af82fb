package hal

import (
	"quados/device"
	"quados/kernel/mm"
)

const (
	// HostedRAMBase is the physical address where RAM starts on the hosted
	// machine.
	HostedRAMBase = uintptr(0x8000_0000)

	// HostedKernelSize is the amount of RAM reserved for the kernel image
	// at the beginning of the hosted machine's RAM.
	HostedKernelSize = uintptr(4 * mm.Mb)
)

// Compatible strings of the devices found on the hosted machine.
const (
	CompatibleIntController = "quados,intc"
	CompatibleRTC           = "quados,rtc"
	CompatibleRAMDisk       = "quados,ramdisk"
	CompatibleLoopback      = "quados,loopback"
	CompatibleInput         = "quados,input"
	CompatibleUART          = "quados,uart"
	CompatibleHostTTY       = "quados,hosttty"
)

// NewHostedMachine describes a machine with memSize bytes of RAM whose first
// HostedKernelSize bytes hold the kernel image, plus the default set of
// hosted devices.
func NewHostedMachine(memSize uintptr, cmdLine string) *BootInfo {
	mem := mm.NewPhysicalMemory(HostedRAMBase, memSize)

	return &BootInfo{
		Memory:      mem,
		Regions:     []mm.Region{{Base: mem.Base(), Size: mem.End() - mem.Base()}},
		KernelStart: HostedRAMBase,
		KernelEnd:   HostedRAMBase + HostedKernelSize,
		CmdLine:     cmdLine,
		Devices: []device.Node{
			{Compatible: CompatibleIntController, Base: 0x0c00_0000},
			{Compatible: CompatibleRTC, Base: 0x0010_1000, IRQs: []uint32{11}},
			{Compatible: CompatibleUART, Base: 0x1000_0000, IRQs: []uint32{10}},
			{Compatible: CompatibleRAMDisk, Base: 0x1000_1000, IRQs: []uint32{1}},
			{Compatible: CompatibleLoopback, Base: 0x1000_2000, IRQs: []uint32{2}},
			{Compatible: CompatibleInput, Base: 0x1000_3000, IRQs: []uint32{3}},
		},
	}
}
