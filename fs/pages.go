package fs

import "quados/kernel"

// PageSize is the size of the pages holding file contents.
const PageSize = 4096

// PageAllocator supplies the memory that file systems store contents in.
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

// Pages is an owned run of pages obtained from a PageAllocator.
type Pages struct {
	alloc PageAllocator
	addr  uintptr
	count uintptr
}

// AllocPages reserves count pages from alloc. It fails with ENOSPC when the
// allocator is exhausted.
func AllocPages(alloc PageAllocator, count uintptr) (*Pages, error) {
	addr, err := alloc.AllocPages(count)
	if err != nil {
		return nil, ENOSPC
	}

	return &Pages{alloc: alloc, addr: addr, count: count}, nil
}

// Address returns the physical address of the first page.
func (p *Pages) Address() uintptr { return p.addr }

// Count returns the number of pages in the run.
func (p *Pages) Count() uintptr { return p.count }

// Buffer returns the contents of the run.
func (p *Pages) Buffer() []byte {
	return p.alloc.Bytes(p.alloc.PhysToVirt(p.addr), p.count*PageSize)
}

// Release returns the pages to their allocator.
func (p *Pages) Release() error {
	if p.count == 0 {
		return nil
	}

	count := p.count
	p.count = 0
	if err := p.alloc.DeallocPages(p.addr, count); err != nil {
		return err
	}

	return nil
}
