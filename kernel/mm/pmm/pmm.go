// Package pmm implements the physical frame allocator.
package pmm

import (
	"quados/kernel"
	"quados/kernel/mm"
)

// FrameAllocator is the BitmapAllocator instance that serves as the primary
// allocator for reserving physical frames.
var FrameAllocator BitmapAllocator

// Init sets up the kernel physical memory allocation sub-system and registers
// FrameAllocator as the frame source of the mm package.
func Init(mem *mm.PhysicalMemory, regions []mm.Region, kernelStart, kernelEnd uintptr) *kernel.Error {
	if err := FrameAllocator.Init(mem, regions, kernelStart, kernelEnd); err != nil {
		return err
	}

	mm.SetFrameAllocator(bitmapAllocFrames)
	return nil
}

// bitmapAllocFrames is passed to mm.SetFrameAllocator instead of a method
// value so the hook stays a plain function.
func bitmapAllocFrames(count uintptr) (mm.Frame, *kernel.Error) {
	return FrameAllocator.AllocFrames(count)
}

// AllocFrames reserves count contiguous frames from FrameAllocator.
func AllocFrames(count uintptr) (*Frames, *kernel.Error) {
	return FrameAllocator.Alloc(count)
}
