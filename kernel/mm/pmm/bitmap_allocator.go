package pmm

import (
	"math"

	"quados/kernel"
	"quados/kernel/kfmt"
	"quados/kernel/mm"
	"quados/kernel/sync"
)

var (
	log = kfmt.Logger{Module: "pmm"}

	errBitmapAllocOutOfMemory     = &kernel.Error{Module: "bitmap_alloc", Message: "out of memory"}
	errBitmapAllocFrameNotManaged = &kernel.Error{Module: "bitmap_alloc", Message: "frame not managed by this allocator"}
	errBitmapAllocDoubleFree      = &kernel.Error{Module: "bitmap_alloc", Message: "frame is already free"}
	errBitmapAllocInvalidCount    = &kernel.Error{Module: "bitmap_alloc", Message: "frame count must be greater than zero"}
	errBitmapAllocRegionNotInRAM  = &kernel.Error{Module: "bitmap_alloc", Message: "memory region is not backed by RAM"}
)

type markAs bool

const (
	markReserved markAs = false
	markFree     markAs = true
)

type framePool struct {
	// startFrame is the frame number for the first page in this pool.
	// each free bitmap entry i corresponds to frame (startFrame + i).
	startFrame mm.Frame

	// endFrame tracks the last frame in the pool. The total number of
	// frames is given by: (endFrame - startFrame) + 1
	endFrame mm.Frame

	// freeCount tracks the available pages in this pool. The allocator
	// can use this field to skip fully allocated pools without the need
	// to scan the free bitmap.
	freeCount uint32

	// freeBitmap tracks used/free pages in the pool. A set bit marks a
	// reserved frame; frame (startFrame + i) maps to bit 63-(i%64) of
	// block i/64.
	freeBitmap []uint64
}

// BitmapAllocator implements a physical frame allocator that tracks frame
// reservations across the available memory pools using bitmaps. All
// operations are serialized by a single lock.
type BitmapAllocator struct {
	lock sync.Spinlock

	mem *mm.PhysicalMemory

	// totalPages tracks the total number of pages across all pools.
	totalPages uint32

	// reservedPages tracks the number of reserved pages across all pools.
	reservedPages uint32

	pools []framePool
}

// Init registers the page-aligned parts of the supplied regions, minus the
// range occupied by the kernel image, as free frames. The usable memory is
// zero-filled so every allocated frame starts out cleared.
func (alloc *BitmapAllocator) Init(mem *mm.PhysicalMemory, regions []mm.Region, kernelStart, kernelEnd uintptr) *kernel.Error {
	alloc.lock.Acquire()
	defer alloc.lock.Release()

	alloc.mem = mem
	alloc.pools = alloc.pools[:0]
	alloc.totalPages, alloc.reservedPages = 0, 0

	kernelStart, kernelEnd = mm.PageAlignDown(kernelStart), mm.PageAlignUp(kernelEnd)
	for _, region := range regions {
		start, end := mm.PageAlignUp(region.Base), mm.PageAlignDown(region.End())
		if end <= start {
			continue
		}

		// The kernel image may split a region in two.
		pieces := [2]mm.Region{{Base: start, Size: end - start}}
		if kernelStart < end && kernelEnd > start {
			pieces[0] = mm.Region{Base: start, Size: subClamp(kernelStart, start)}
			pieces[1] = mm.Region{Base: kernelEnd, Size: subClamp(end, kernelEnd)}
		}

		for _, piece := range pieces {
			if piece.Size == 0 {
				continue
			}

			if !mem.Contains(piece.Base, piece.Size) {
				return errBitmapAllocRegionNotInRAM
			}

			kernel.Memset(mem.Slice(piece.Base, piece.Size), 0)
			alloc.addPool(piece)
		}
	}

	alloc.printStats()
	return nil
}

func subClamp(a, b uintptr) uintptr {
	if a < b {
		return 0
	}
	return a - b
}

func (alloc *BitmapAllocator) addPool(region mm.Region) {
	pageCount := uint32(region.Size >> mm.PageShift)
	alloc.pools = append(alloc.pools, framePool{
		startFrame: mm.FrameFromAddress(region.Base),
		endFrame:   mm.FrameFromAddress(region.End()) - 1,
		freeCount:  pageCount,
		freeBitmap: make([]uint64, (pageCount+63)>>6),
	})
	alloc.totalPages += pageCount

	log.Debugf("pool %d: [0x%x - 0x%x], pages: %d", len(alloc.pools)-1, region.Base, region.End()-1, pageCount)
}

func (alloc *BitmapAllocator) printStats() {
	log.Infof(
		"page stats: free: %d/%d (%d reserved)",
		alloc.totalPages-alloc.reservedPages,
		alloc.totalPages,
		alloc.reservedPages,
	)
}

// markFrame updates the reservation flag for the bitmap entry that
// corresponds to the supplied frame. Invalid pool indices or frames outside
// the pool are ignored.
func (alloc *BitmapAllocator) markFrame(poolIndex int, frame mm.Frame, flag markAs) {
	if poolIndex < 0 || poolIndex >= len(alloc.pools) {
		return
	}

	pool := &alloc.pools[poolIndex]
	if frame < pool.startFrame || frame > pool.endFrame {
		return
	}

	block, mask := bitmapPosition(pool, frame)
	switch flag {
	case markFree:
		pool.freeBitmap[block] &^= mask
		pool.freeCount++
		alloc.reservedPages--
	case markReserved:
		pool.freeBitmap[block] |= mask
		pool.freeCount--
		alloc.reservedPages++
	}
}

// isReserved returns true if frame, which must belong to the pool, is
// reserved.
func (alloc *BitmapAllocator) isReserved(poolIndex int, frame mm.Frame) bool {
	pool := &alloc.pools[poolIndex]
	block, mask := bitmapPosition(pool, frame)
	return pool.freeBitmap[block]&mask != 0
}

func bitmapPosition(pool *framePool, frame mm.Frame) (uintptr, uint64) {
	relFrame := uintptr(frame - pool.startFrame)
	block := relFrame >> 6
	return block, 1 << (63 - (relFrame & 63))
}

// poolForFrame returns the index of the pool that contains frame or -1 if
// the frame is not managed by the allocator.
func (alloc *BitmapAllocator) poolForFrame(frame mm.Frame) int {
	for poolIndex, pool := range alloc.pools {
		if frame >= pool.startFrame && frame <= pool.endFrame {
			return poolIndex
		}
	}

	return -1
}

// AllocFrames reserves count contiguous free frames and returns the first
// one. The frames are guaranteed to be zero-filled.
func (alloc *BitmapAllocator) AllocFrames(count uintptr) (mm.Frame, *kernel.Error) {
	if count == 0 {
		return mm.InvalidFrame, errBitmapAllocInvalidCount
	}

	alloc.lock.Acquire()
	defer alloc.lock.Release()

	for poolIndex := range alloc.pools {
		pool := &alloc.pools[poolIndex]
		if uintptr(pool.freeCount) < count {
			continue
		}

		start, found := alloc.findRun(pool, count)
		if !found {
			continue
		}

		for frame := start; frame < start+mm.Frame(count); frame++ {
			alloc.markFrame(poolIndex, frame, markReserved)
		}
		return start, nil
	}

	return mm.InvalidFrame, errBitmapAllocOutOfMemory
}

// findRun performs a first-fit scan of the pool bitmap for count contiguous
// free frames.
func (alloc *BitmapAllocator) findRun(pool *framePool, count uintptr) (mm.Frame, bool) {
	var run uintptr

	for frame := pool.startFrame; frame <= pool.endFrame; frame++ {
		block, mask := bitmapPosition(pool, frame)

		// Skip over fully reserved blocks
		if mask == 1<<63 && pool.freeBitmap[block] == math.MaxUint64 {
			run = 0
			frame += 63
			continue
		}

		if pool.freeBitmap[block]&mask != 0 {
			run = 0
			continue
		}

		run++
		if run == count {
			return frame - mm.Frame(count-1), true
		}
	}

	return mm.InvalidFrame, false
}

// AllocFrame reserves a single free frame.
func (alloc *BitmapAllocator) AllocFrame() (mm.Frame, *kernel.Error) {
	return alloc.AllocFrames(1)
}

// FreeFrames zero-fills count frames starting at start and returns them to
// the free set. Freeing frames that are not managed by the allocator or that
// are not currently reserved is rejected without modifying any state.
func (alloc *BitmapAllocator) FreeFrames(start mm.Frame, count uintptr) *kernel.Error {
	if count == 0 {
		return errBitmapAllocInvalidCount
	}

	alloc.lock.Acquire()
	defer alloc.lock.Release()

	poolIndex := alloc.poolForFrame(start)
	if poolIndex < 0 || start+mm.Frame(count-1) > alloc.pools[poolIndex].endFrame {
		log.Errorf("attempt to free unmanaged frames [0x%x, +%d)", start.Address(), count)
		return errBitmapAllocFrameNotManaged
	}

	for frame := start; frame < start+mm.Frame(count); frame++ {
		if !alloc.isReserved(poolIndex, frame) {
			log.Errorf("double free of frame 0x%x", frame.Address())
			return errBitmapAllocDoubleFree
		}
	}

	kernel.Memset(alloc.mem.FrameData(start, count), 0)
	for frame := start; frame < start+mm.Frame(count); frame++ {
		alloc.markFrame(poolIndex, frame, markFree)
	}

	return nil
}

// FreeFrame returns a single frame to the free set.
func (alloc *BitmapAllocator) FreeFrame(frame mm.Frame) *kernel.Error {
	return alloc.FreeFrames(frame, 1)
}

// Memory returns the RAM whose frames are managed by the allocator.
func (alloc *BitmapAllocator) Memory() *mm.PhysicalMemory {
	return alloc.mem
}

// TotalPages returns the number of frames managed by the allocator.
func (alloc *BitmapAllocator) TotalPages() uint32 {
	alloc.lock.Acquire()
	defer alloc.lock.Release()
	return alloc.totalPages
}

// FreePages returns the number of frames that are currently free.
func (alloc *BitmapAllocator) FreePages() uint32 {
	alloc.lock.Acquire()
	defer alloc.lock.Release()
	return alloc.totalPages - alloc.reservedPages
}
