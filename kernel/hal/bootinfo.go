package hal

import (
	"strings"

	"quados/device"
	"quados/kernel/mm"
)

// BootInfo describes the machine the kernel boots on.
type BootInfo struct {
	// Memory is the RAM of the machine.
	Memory *mm.PhysicalMemory

	// Regions lists the usable physical memory windows.
	Regions []mm.Region

	// KernelStart and KernelEnd delimit the physical range occupied by
	// the kernel image and its data.
	KernelStart uintptr
	KernelEnd   uintptr

	// CmdLine is the raw boot command line.
	CmdLine string

	// Devices lists the devices reported by the platform.
	Devices []device.Node

	// InitImage holds the ELF image of the first user program, if any.
	InitImage []byte

	// InitArgs is the argument vector passed to the first user program.
	InitArgs []string
}

var (
	bootInfo  *BootInfo
	cmdLineKV map[string]string
)

// SetBootInfo installs the description of the running machine.
func SetBootInfo(info *BootInfo) {
	bootInfo = info
	cmdLineKV = nil
}

// MemRegionVisitor defines a visitor function that gets invoked by
// VisitMemRegions for each usable memory region. The visitor must return
// true to continue or false to abort the scan.
type MemRegionVisitor func(region mm.Region) bool

// VisitMemRegions will invoke the supplied visitor for each usable memory
// region of the running machine.
func VisitMemRegions(visitor MemRegionVisitor) {
	if bootInfo == nil {
		return
	}

	for _, region := range bootInfo.Regions {
		if !visitor(region) {
			return
		}
	}
}

// BootCmdLine returns the command line key-value pairs passed to the kernel.
// The command line is parsed on the first call and cached afterwards.
func BootCmdLine() map[string]string {
	if cmdLineKV != nil {
		return cmdLineKV
	}

	if bootInfo == nil {
		return ParseCmdLine("")
	}

	cmdLineKV = ParseCmdLine(bootInfo.CmdLine)
	return cmdLineKV
}

// ParseCmdLine splits a command line into key-value pairs. A word without
// a '=' maps to itself.
func ParseCmdLine(cmdLine string) map[string]string {
	kv := make(map[string]string)
	for _, pair := range strings.Fields(cmdLine) {
		key, value, found := strings.Cut(pair, "=")
		switch {
		case found: // foo=bar
			kv[key] = value
		default: // nofoo
			kv[key] = key
		}
	}

	return kv
}
