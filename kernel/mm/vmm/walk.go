package vmm

import (
	"unsafe"

	"quados/kernel/mm"
)

// pageTableWalker is a function that can be passed to the walk method. The
// function receives the current page level and page table entry as its
// arguments. If the function returns false, then the page walk is aborted.
type pageTableWalker func(pteLevel uint8, pte *pageTableEntry) bool

// walk performs a page table walk for the given virtual address. It calls the
// supplied walkFn with the page table entry that corresponds to each page
// table level. If walkFn returns false then the walk is aborted and no further
// page table entries will be visited. The table of each level is located by
// the frame stored in the entry visited at the previous level, so walkFn may
// install a missing table before the walk descends into it.
func (pt *PageTable) walk(virtAddr uintptr, walkFn pageTableWalker) {
	var (
		mem        = pt.alloc.Memory()
		tableFrame = pt.root.Frame()
		entryIndex uintptr
	)

	for level := uint8(0); level < pageLevels; level++ {
		// Extract the bits from virtual address that correspond to the
		// index in this level's page table
		entryIndex = (virtAddr >> pageLevelShifts[level]) & ((1 << pageLevelBits[level]) - 1)

		table := mem.FrameData(tableFrame, 1)
		pte := (*pageTableEntry)(unsafe.Pointer(&table[entryIndex<<mm.PointerShift]))
		if !walkFn(level, pte) {
			return
		}

		tableFrame = pte.Frame()
	}
}
