// Package vmm builds and queries 4-level page tables whose tables live in
// physical frames obtained from a frame allocator.
package vmm

import (
	"quados/kernel"
	"quados/kernel/cpu"
	"quados/kernel/mm"
	"quados/kernel/mm/pmm"
)

var (
	// activePDTFn is used by tests to override calls to cpu.ActivePDT.
	activePDTFn = cpu.ActivePDT

	// switchPDTFn is used by tests to override calls to cpu.SwitchPDT.
	switchPDTFn = cpu.SwitchPDT

	// flushTLBEntryFn is used by tests to override calls to cpu.FlushTLBEntry.
	flushTLBEntryFn = cpu.FlushTLBEntry

	errNoHugePageSupport = &kernel.Error{Module: "vmm", Message: "huge pages are not supported"}
	errAlreadyMapped     = &kernel.Error{Module: "vmm", Message: "virtual page is already mapped"}
	errTableReleased     = &kernel.Error{Module: "vmm", Message: "page table has been released"}
)

// PageTable is an address space: a root table plus the intermediate tables
// created on demand by Map. The PageTable owns every frame that holds one of
// its tables; the frames it maps are owned by the caller.
type PageTable struct {
	alloc  *pmm.BitmapAllocator
	root   *pmm.Frames
	tables []*pmm.Frames
}

// NewPageTable allocates an empty page table whose tables are carved out of
// the frames managed by alloc.
func NewPageTable(alloc *pmm.BitmapAllocator) (*PageTable, *kernel.Error) {
	root, err := alloc.Alloc(1)
	if err != nil {
		return nil, err
	}

	return &PageTable{alloc: alloc, root: root}, nil
}

// Root returns the frame holding the top-level table.
func (pt *PageTable) Root() mm.Frame {
	return pt.root.Frame()
}

// Memory returns the RAM holding the page table and the frames it maps.
func (pt *PageTable) Memory() *mm.PhysicalMemory {
	return pt.alloc.Memory()
}

// TableCount returns the number of frames used by the page table itself.
func (pt *PageTable) TableCount() int {
	if pt.root == nil {
		return 0
	}

	return len(pt.tables) + 1
}

// Activate installs the page table as the active address space.
func (pt *PageTable) Activate() {
	switchPDTFn(pt.root.Address())
}

// isActive returns true if the page table is the active address space.
func (pt *PageTable) isActive() bool {
	return activePDTFn() == pt.root.Address()
}

// Map establishes a mapping between a virtual page and a physical memory
// frame. Missing intermediate tables are allocated and cleared on demand.
// Mapping a page that is already mapped is rejected.
func (pt *PageTable) Map(page mm.Page, frame mm.Frame, flags PageTableEntryFlag) *kernel.Error {
	if pt.root == nil {
		return errTableReleased
	}

	var err *kernel.Error

	pt.walk(page.Address(), func(pteLevel uint8, pte *pageTableEntry) bool {
		// If we reached the last level all we need to do is to map the
		// frame in place and flag it as present and flush its TLB entry
		if pteLevel == pageLevels-1 {
			if pte.HasFlags(FlagPresent) {
				err = errAlreadyMapped
				return false
			}

			*pte = 0
			pte.SetFrame(frame)
			pte.SetFlags(flags)
			if pt.isActive() {
				flushTLBEntryFn(page.Address())
			}
			return true
		}

		if pte.HasFlags(FlagHugePage) {
			err = errNoHugePageSupport
			return false
		}

		// Next table does not yet exist; we need to allocate a
		// physical frame for it. Frames handed out by the allocator
		// are already cleared.
		if !pte.HasFlags(FlagPresent) {
			var table *pmm.Frames
			if table, err = pt.alloc.Alloc(1); err != nil {
				return false
			}
			pt.tables = append(pt.tables, table)

			*pte = 0
			pte.SetFrame(table.Frame())
			pte.SetFlags(FlagPresent | FlagRW | FlagUserAccessible)
		}

		return true
	})

	return err
}

// Unmap removes a mapping previously installed via a call to Map.
func (pt *PageTable) Unmap(page mm.Page) *kernel.Error {
	if pt.root == nil {
		return errTableReleased
	}

	var err *kernel.Error

	pt.walk(page.Address(), func(pteLevel uint8, pte *pageTableEntry) bool {
		// Next table is not present; this is an invalid mapping
		if !pte.HasFlags(FlagPresent) {
			err = ErrInvalidMapping
			return false
		}

		// If we reached the last level all we need to do is to set the
		// page as non-present and flush its TLB entry
		if pteLevel == pageLevels-1 {
			pte.ClearFlags(FlagPresent)
			if pt.isActive() {
				flushTLBEntryFn(page.Address())
			}
			return true
		}

		if pte.HasFlags(FlagHugePage) {
			err = errNoHugePageSupport
			return false
		}

		return true
	})

	return err
}

// Lookup returns the frame and flags of the entry that maps page.
func (pt *PageTable) Lookup(page mm.Page) (mm.Frame, PageTableEntryFlag, *kernel.Error) {
	if pt.root == nil {
		return mm.InvalidFrame, 0, errTableReleased
	}

	var (
		entry pageTableEntry
		err   *kernel.Error
	)

	pt.walk(page.Address(), func(pteLevel uint8, pte *pageTableEntry) bool {
		if !pte.HasFlags(FlagPresent) {
			err = ErrInvalidMapping
			return false
		}

		entry = *pte
		return true
	})

	if err != nil {
		return mm.InvalidFrame, 0, err
	}

	return entry.Frame(), entry.Flags(), nil
}

// Translate returns the physical address that corresponds to the supplied
// virtual address or ErrInvalidMapping if the virtual address does not
// correspond to a mapped physical address.
func (pt *PageTable) Translate(virtAddr uintptr) (uintptr, *kernel.Error) {
	frame, _, err := pt.Lookup(mm.PageFromAddress(virtAddr))
	if err != nil {
		return 0, err
	}

	return frame.Address() + PageOffset(virtAddr), nil
}

// Release returns every frame used by the page table's own tables to the
// frame allocator. Frames referenced by leaf entries are not touched. The
// page table cannot be used after Release.
func (pt *PageTable) Release() *kernel.Error {
	if pt.root == nil {
		return errTableReleased
	}

	var firstErr *kernel.Error
	for _, table := range append(pt.tables, pt.root) {
		if err := table.Release(); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	pt.root, pt.tables = nil, nil
	return firstErr
}
