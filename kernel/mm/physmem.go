package mm

import "fmt"

// PhysicalMemory is the machine's RAM: a contiguous byte arena that starts at
// physical address Base. All physical accesses made by the kernel go through
// Slice, which bounds-checks the request against the arena.
type PhysicalMemory struct {
	base uintptr
	data []byte
}

// activeMemory is the RAM of the running machine, reachable through the
// direct map.
var activeMemory *PhysicalMemory

// NewPhysicalMemory returns a zeroed arena of size bytes (rounded up to a
// page) starting at the page-aligned physical address base.
func NewPhysicalMemory(base, size uintptr) *PhysicalMemory {
	return &PhysicalMemory{
		base: PageAlignDown(base),
		data: make([]byte, PageAlignUp(size)),
	}
}

// Base returns the first physical address of the arena.
func (m *PhysicalMemory) Base() uintptr { return m.base }

// End returns the first physical address past the arena.
func (m *PhysicalMemory) End() uintptr { return m.base + uintptr(len(m.data)) }

// Contains returns true if [physAddr, physAddr+size) lies inside the arena.
func (m *PhysicalMemory) Contains(physAddr, size uintptr) bool {
	return physAddr >= m.base && size <= uintptr(len(m.data)) && physAddr-m.base <= uintptr(len(m.data))-size
}

// Slice returns the bytes backing [physAddr, physAddr+size). An access
// outside the arena is the hosted equivalent of a machine check and panics.
func (m *PhysicalMemory) Slice(physAddr, size uintptr) []byte {
	if !m.Contains(physAddr, size) {
		panic(fmt.Sprintf("mm: physical access [0x%x, 0x%x) outside RAM [0x%x, 0x%x)", physAddr, physAddr+size, m.base, m.End()))
	}

	offset := physAddr - m.base
	return m.data[offset : offset+size : offset+size]
}

// FrameData returns the bytes backing count frames starting at f.
func (m *PhysicalMemory) FrameData(f Frame, count uintptr) []byte {
	return m.Slice(f.Address(), count<<PageShift)
}

// SetPhysicalMemory installs the RAM of the running machine.
func SetPhysicalMemory(m *PhysicalMemory) { activeMemory = m }

// Memory returns the RAM of the running machine.
func Memory() *PhysicalMemory { return activeMemory }

// PhysToVirt returns the direct-map virtual address of physAddr.
func PhysToVirt(physAddr uintptr) uintptr { return physAddr | VirtAddrStart }

// VirtToPhys returns the physical address behind a direct-map virtual
// address.
func VirtToPhys(virtAddr uintptr) uintptr { return virtAddr &^ VirtAddrStart }

// VirtBytes returns the bytes behind the direct-map range
// [virtAddr, virtAddr+size).
func VirtBytes(virtAddr, size uintptr) []byte {
	return activeMemory.Slice(VirtToPhys(virtAddr), size)
}

// Region describes a window of usable physical memory reported by the
// platform.
type Region struct {
	Base uintptr
	Size uintptr
}

// End returns the first physical address past the region.
func (r Region) End() uintptr { return r.Base + r.Size }
