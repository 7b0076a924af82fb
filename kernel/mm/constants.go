package mm

const (
	// PointerShift is equal to log2(unsafe.Sizeof(uintptr)). The pointer
	// size for this architecture is defined as (1 << PointerShift).
	PointerShift = uintptr(3)

	// PageShift is equal to log2(PageSize). This constant is used when
	// we need to convert a physical address to a page number (shift right by PageShift)
	// and vice-versa.
	PageShift = uintptr(12)

	// PageSize defines the system's page size in bytes.
	PageSize = uintptr(1 << PageShift)

	// VirtAddrStart is the start of the kernel's direct map: physical
	// address p is accessible by the kernel at virtual address
	// VirtAddrStart|p.
	VirtAddrStart = uintptr(0xffff_8000_0000_0000)
)

// Size represents a memory block size in bytes.
type Size uint64

// Common memory block sizes.
const (
	Byte Size = 1
	Kb        = 1024 * Byte
	Mb        = 1024 * Kb
	Gb        = 1024 * Mb
)

// Pages returns the number of pages required to hold s bytes.
func (s Size) Pages() uintptr {
	return uintptr((uint64(s) + uint64(PageSize-1)) >> PageShift)
}

// PageAlignUp rounds addr up to the next page boundary.
func PageAlignUp(addr uintptr) uintptr {
	return (addr + PageSize - 1) &^ (PageSize - 1)
}

// PageAlignDown rounds addr down to the page boundary that contains it.
func PageAlignDown(addr uintptr) uintptr {
	return addr &^ (PageSize - 1)
}
