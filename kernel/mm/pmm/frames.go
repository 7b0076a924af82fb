package pmm

import (
	"sync/atomic"

	"quados/kernel"
	"quados/kernel/mm"
)

var errFramesReleased = &kernel.Error{Module: "pmm", Message: "frames already released"}

// Frames is an owned run of contiguous physical frames. The holder is the
// only party allowed to access the frames; Release zero-fills them and hands
// them back to the allocator they came from.
type Frames struct {
	alloc    *BitmapAllocator
	start    mm.Frame
	count    uintptr
	released uint32
}

// Alloc reserves count contiguous frames and wraps them in an owned handle.
func (alloc *BitmapAllocator) Alloc(count uintptr) (*Frames, *kernel.Error) {
	start, err := alloc.AllocFrames(count)
	if err != nil {
		return nil, err
	}

	return &Frames{alloc: alloc, start: start, count: count}, nil
}

// Frame returns the first frame of the run.
func (f *Frames) Frame() mm.Frame { return f.start }

// Count returns the number of frames in the run.
func (f *Frames) Count() uintptr { return f.count }

// Address returns the physical address of the first frame.
func (f *Frames) Address() uintptr { return f.start.Address() }

// Size returns the size of the run in bytes.
func (f *Frames) Size() uintptr { return f.count << mm.PageShift }

// Bytes returns the memory backing the frames.
func (f *Frames) Bytes() []byte {
	return f.alloc.mem.FrameData(f.start, f.count)
}

// Release returns the frames to their allocator. Releasing a handle twice is
// an error and leaves the allocator untouched.
func (f *Frames) Release() *kernel.Error {
	if !atomic.CompareAndSwapUint32(&f.released, 0, 1) {
		return errFramesReleased
	}

	return f.alloc.FreeFrames(f.start, f.count)
}
