// Package heap implements the kernel's dynamic memory allocator. The heap
// starts out on a statically reserved cold arena so that it is usable before
// the physical frame allocator is initialized and grows on demand with
// frames taken from the active frame allocator.
package heap

import (
	"unsafe"

	"quados/kernel"
	"quados/kernel/kfmt"
	"quados/kernel/mm"
	"quados/kernel/sync"
)

const (
	// DefaultHeapSize is the size of the cold arena available at boot.
	DefaultHeapSize = 0x20_0000

	// growMarginPages is the number of pages added on top of the request
	// size whenever the heap is extended.
	growMarginPages = 10
)

var (
	log = kfmt.Logger{Module: "heap"}

	errOutOfMemory  = &kernel.Error{Module: "heap", Message: "out of memory"}
	errInvalidAlign = &kernel.Error{Module: "heap", Message: "alignment must be a power of two"}

	coldArena [DefaultHeapSize]byte

	kernelHeap = NewAllocator(coldArena[:], mm.AllocFrames, mm.Memory)
)

// Stats describes the state of a heap.
type Stats struct {
	// Total is the number of bytes managed by the heap.
	Total uintptr

	// User is the number of bytes requested by outstanding allocations.
	User uintptr

	// Allocated is the number of bytes reserved for outstanding
	// allocations after rounding to block sizes.
	Allocated uintptr

	// Extensions is the number of times the heap grew past its cold arena.
	Extensions int
}

// Allocator is a buddy-backed heap that extends itself with physical frames
// reached through the direct map.
type Allocator struct {
	lock  sync.Spinlock
	buddy Buddy

	arena      []byte
	arenaStart uintptr
	seeded     bool
	extensions int

	allocFramesFn mm.FrameAllocatorFn
	memFn         func() *mm.PhysicalMemory
}

// NewAllocator returns a heap that hands out arena first and then grows
// using frames obtained from allocFramesFn. Extension memory is accessed
// through the direct map of the RAM returned by memFn.
func NewAllocator(arena []byte, allocFramesFn mm.FrameAllocatorFn, memFn func() *mm.PhysicalMemory) *Allocator {
	alloc := &Allocator{
		arena:         arena,
		allocFramesFn: allocFramesFn,
		memFn:         memFn,
	}

	if len(arena) != 0 {
		alloc.arenaStart = uintptr(unsafe.Pointer(&arena[0]))
	}

	return alloc
}

// Alloc reserves size bytes aligned to align and returns their address. The
// heap is extended if the remaining capacity cannot comfortably fit the
// request or if no free block is large enough; it only fails once the frame
// allocator refuses to provide more frames. Frame allocation happens without
// holding the heap lock.
func (alloc *Allocator) Alloc(size, align uintptr) (uintptr, *kernel.Error) {
	if align == 0 {
		align = 1
	}
	if align&(align-1) != 0 {
		return 0, errInvalidAlign
	}
	if size > maxBlockSize || align > maxBlockSize {
		return 0, errOutOfMemory
	}

	alloc.lock.Acquire()
	alloc.seed()
	grow := alloc.buddy.Total()-alloc.buddy.Allocated() < size+mm.PageSize
	alloc.lock.Release()

	for {
		if grow && !alloc.grow(size, align) {
			return 0, errOutOfMemory
		}

		alloc.lock.Acquire()
		addr, ok := alloc.buddy.Alloc(size, align)
		alloc.lock.Release()

		if ok {
			return addr, nil
		}

		// Enough free bytes but no block large enough.
		grow = true
	}
}

// Free releases a block returned by Alloc. Size and alignment must match the
// values passed to Alloc.
func (alloc *Allocator) Free(addr, size, align uintptr) {
	if align == 0 {
		align = 1
	}

	alloc.lock.Acquire()
	alloc.buddy.Free(addr, size, align)
	alloc.lock.Release()
}

// Bytes returns the memory behind [addr, addr+size) of a heap allocation.
func (alloc *Allocator) Bytes(addr, size uintptr) []byte {
	if addr >= alloc.arenaStart && addr-alloc.arenaStart < uintptr(len(alloc.arena)) {
		offset := addr - alloc.arenaStart
		return alloc.arena[offset : offset+size : offset+size]
	}

	return alloc.memFn().Slice(mm.VirtToPhys(addr), size)
}

// Stats returns a snapshot of the heap state.
func (alloc *Allocator) Stats() Stats {
	alloc.lock.Acquire()
	defer alloc.lock.Release()

	return Stats{
		Total:      alloc.buddy.Total(),
		User:       alloc.buddy.User(),
		Allocated:  alloc.buddy.Allocated(),
		Extensions: alloc.extensions,
	}
}

func (alloc *Allocator) seed() {
	if alloc.seeded {
		return
	}

	alloc.seeded = true
	if len(alloc.arena) != 0 {
		alloc.buddy.AddRange(alloc.arenaStart, alloc.arenaStart+uintptr(len(alloc.arena)))
	}
}

// grow extends the heap with enough frames to hold size bytes plus a fixed
// margin. The extension spans at least two blocks of the size serving the
// request so that it contains a naturally aligned one wherever the frames
// are placed. It must be called without holding the heap lock.
func (alloc *Allocator) grow(size, align uintptr) bool {
	pageCount := (size + growMarginPages*mm.PageSize - 1) / mm.PageSize
	if blockPages := (2*blockSizeFor(size, align) + mm.PageSize - 1) / mm.PageSize; blockPages > pageCount {
		pageCount = blockPages
	}

	frame, err := alloc.allocFramesFn(pageCount)
	if err != nil {
		log.Warnf("unable to grow heap by %d pages: %s", pageCount, err.Error())
		return false
	}

	start := mm.PhysToVirt(frame.Address())

	alloc.lock.Acquire()
	alloc.buddy.AddRange(start, start+pageCount*mm.PageSize)
	alloc.extensions++
	alloc.lock.Release()

	log.Debugf("heap grew by %d pages at 0x%x", pageCount, start)
	return true
}

// Alloc reserves size bytes aligned to align from the kernel heap.
func Alloc(size, align uintptr) (uintptr, *kernel.Error) {
	return kernelHeap.Alloc(size, align)
}

// Free returns a block to the kernel heap.
func Free(addr, size, align uintptr) {
	kernelHeap.Free(addr, size, align)
}

// Bytes returns the memory behind a kernel heap allocation.
func Bytes(addr, size uintptr) []byte {
	return kernelHeap.Bytes(addr, size)
}

// KernelStats returns the statistics of the kernel heap.
func KernelStats() Stats {
	return kernelHeap.Stats()
}
