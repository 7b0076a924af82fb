package kmain

import (
	"quados/kernel"
	"quados/kernel/mm"
	"quados/kernel/mm/pmm"
)

// framePages hands out runs of physical frames to drivers and file systems.
type framePages struct {
	frames *pmm.BitmapAllocator
}

// AllocPages implements device.PageAllocator and fs.PageAllocator.
func (p framePages) AllocPages(count uintptr) (uintptr, *kernel.Error) {
	frame, err := p.frames.AllocFrames(count)
	if err != nil {
		return 0, err
	}

	return frame.Address(), nil
}

// DeallocPages implements device.PageAllocator and fs.PageAllocator.
func (p framePages) DeallocPages(physAddr, count uintptr) *kernel.Error {
	return p.frames.FreeFrames(mm.FrameFromAddress(physAddr), count)
}

func (framePages) PhysToVirt(physAddr uintptr) uintptr { return mm.PhysToVirt(physAddr) }
func (framePages) VirtToPhys(virtAddr uintptr) uintptr { return mm.VirtToPhys(virtAddr) }

// Bytes implements device.PageAllocator and fs.PageAllocator.
func (p framePages) Bytes(virtAddr, size uintptr) []byte {
	return p.frames.Memory().Slice(mm.VirtToPhys(virtAddr), size)
}
