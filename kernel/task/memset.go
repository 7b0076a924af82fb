package task

import (
	"encoding/binary"

	"quados/kernel"
	"quados/kernel/mm"
	"quados/kernel/mm/pmm"
	"quados/kernel/mm/vmm"
)

var errPageNotMapped = &kernel.Error{Module: "task", Message: "user address is not mapped"}

// MemSet is the resident set of a task: the frames backing every user page
// mapped into its page table. The MemSet owns those frames.
type MemSet struct {
	alloc     *pmm.BitmapAllocator
	pageTable *vmm.PageTable
	pages     map[mm.Page]*pmm.Frames
}

// NewMemSet returns an empty resident set whose pages are mapped into pt
// using frames obtained from alloc.
func NewMemSet(alloc *pmm.BitmapAllocator, pt *vmm.PageTable) *MemSet {
	return &MemSet{
		alloc:     alloc,
		pageTable: pt,
		pages:     make(map[mm.Page]*pmm.Frames),
	}
}

// MapPage backs page with a fresh zeroed frame and maps it with user
// read/write/execute permissions. If the page is already resident its
// existing frame is returned.
func (ms *MemSet) MapPage(page mm.Page) (*pmm.Frames, *kernel.Error) {
	if frames, ok := ms.pages[page]; ok {
		return frames, nil
	}

	frames, err := ms.alloc.Alloc(1)
	if err != nil {
		return nil, err
	}

	if err = ms.pageTable.Map(page, frames.Frame(), vmm.FlagsURWX); err != nil {
		_ = frames.Release()
		return nil, err
	}

	ms.pages[page] = frames
	return frames, nil
}

// MapRange makes every page overlapping [start, end) resident.
func (ms *MemSet) MapRange(start, end uintptr) *kernel.Error {
	for addr := mm.PageAlignDown(start); addr < end; addr += mm.PageSize {
		if _, err := ms.MapPage(mm.PageFromAddress(addr)); err != nil {
			return err
		}
	}

	return nil
}

// Frames returns the frame backing page.
func (ms *MemSet) Frames(page mm.Page) (*pmm.Frames, bool) {
	frames, ok := ms.pages[page]
	return frames, ok
}

// Len returns the number of resident pages.
func (ms *MemSet) Len() int {
	return len(ms.pages)
}

// Translate returns the physical address behind a user virtual address.
func (ms *MemSet) Translate(virtAddr uintptr) (uintptr, *kernel.Error) {
	frames, ok := ms.pages[mm.PageFromAddress(virtAddr)]
	if !ok {
		return 0, errPageNotMapped
	}

	return frames.Address() + vmm.PageOffset(virtAddr), nil
}

// CopyIn writes data to user memory starting at virtAddr. The write may
// span several pages; all of them must be resident.
func (ms *MemSet) CopyIn(virtAddr uintptr, data []byte) *kernel.Error {
	return ms.transfer(virtAddr, len(data), func(page []byte, done int) int {
		return copy(page, data[done:])
	})
}

// CopyOut reads len(buf) bytes of user memory starting at virtAddr.
func (ms *MemSet) CopyOut(virtAddr uintptr, buf []byte) *kernel.Error {
	return ms.transfer(virtAddr, len(buf), func(page []byte, done int) int {
		return copy(buf[done:], page)
	})
}

// WriteWord stores a little-endian 64-bit word at virtAddr.
func (ms *MemSet) WriteWord(virtAddr uintptr, value uint64) *kernel.Error {
	var word [8]byte
	binary.LittleEndian.PutUint64(word[:], value)
	return ms.CopyIn(virtAddr, word[:])
}

// ReadWord loads a little-endian 64-bit word from virtAddr.
func (ms *MemSet) ReadWord(virtAddr uintptr) (uint64, *kernel.Error) {
	var word [8]byte
	if err := ms.CopyOut(virtAddr, word[:]); err != nil {
		return 0, err
	}

	return binary.LittleEndian.Uint64(word[:]), nil
}

// Release returns every resident frame to the frame allocator.
func (ms *MemSet) Release() *kernel.Error {
	var firstErr *kernel.Error
	for page, frames := range ms.pages {
		if err := frames.Release(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(ms.pages, page)
	}

	return firstErr
}

// transfer walks the pages covering [virtAddr, virtAddr+size) and invokes
// copyFn with the part of each page that lies inside the range.
func (ms *MemSet) transfer(virtAddr uintptr, size int, copyFn func(page []byte, done int) int) *kernel.Error {
	for done := 0; done < size; {
		addr := virtAddr + uintptr(done)
		frames, ok := ms.pages[mm.PageFromAddress(addr)]
		if !ok {
			return errPageNotMapped
		}

		offset := vmm.PageOffset(addr)
		chunk := frames.Bytes()[offset:]
		if remaining := size - done; len(chunk) > remaining {
			chunk = chunk[:remaining]
		}

		done += copyFn(chunk, done)
	}

	return nil
}
