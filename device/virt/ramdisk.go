package virt

import (
	"io"
	"strconv"

	"quados/device"
	"quados/kernel"
	"quados/kernel/hal"
	"quados/kernel/kfmt"
	"quados/kernel/mm"
	"quados/kernel/sync"
)

// DefaultRAMDiskBlocks is the size of a ramdisk whose size is not set with
// the "ramdisk" boot argument.
const DefaultRAMDiskBlocks = 2048

var (
	errNoPageAllocator = &kernel.Error{Module: "virt", Message: "no page allocator registered"}
	errBadTransferSize = &kernel.Error{Module: "virt", Message: "transfer size is not a multiple of the block size"}
	errBlockOutOfRange = &kernel.Error{Module: "virt", Message: "block range exceeds device capacity"}
	errNotInitialized  = &kernel.Error{Module: "virt", Message: "device not initialized"}
)

// RAMDisk is a block device stored in physically contiguous pages.
type RAMDisk struct {
	device.BaseDriver

	lock   sync.Spinlock
	alloc  device.PageAllocator
	blocks uint64
	phys   uintptr
	pages  uintptr
}

// NewRAMDisk returns a ramdisk of blocks blocks whose storage is obtained
// from alloc when the driver is initialized.
func NewRAMDisk(alloc device.PageAllocator, blocks uint64) *RAMDisk {
	return &RAMDisk{alloc: alloc, blocks: blocks}
}

// DriverName implements device.Driver.
func (*RAMDisk) DriverName() string { return "virt-ramdisk" }

// DriverVersion implements device.Driver.
func (*RAMDisk) DriverVersion() (uint16, uint16, uint16) { return 0, 1, 0 }

// DriverInit implements device.Driver.
func (d *RAMDisk) DriverInit(w io.Writer) *kernel.Error {
	if d.alloc == nil {
		return errNoPageAllocator
	}

	pages := mm.PageAlignUp(uintptr(d.Capacity())) >> mm.PageShift
	phys, err := d.alloc.AllocPages(pages)
	if err != nil {
		return err
	}

	d.phys, d.pages = phys, pages
	kfmt.Fprintf(w, "%d blocks at 0x%x; ", d.blocks, phys)
	return nil
}

// DeviceType implements device.Driver.
func (d *RAMDisk) DeviceType() device.DeviceType { return device.Block(d) }

// Capacity implements device.BlkDriver.
func (d *RAMDisk) Capacity() uint64 { return d.blocks * device.BlockSize }

// ReadBlocks implements device.BlkDriver.
func (d *RAMDisk) ReadBlocks(blockID uint64, buf []byte) *kernel.Error {
	d.lock.Acquire()
	defer d.lock.Release()

	storage, err := d.storage(blockID, len(buf))
	if err != nil {
		return err
	}

	copy(buf, storage)
	return nil
}

// WriteBlocks implements device.BlkDriver.
func (d *RAMDisk) WriteBlocks(blockID uint64, buf []byte) *kernel.Error {
	d.lock.Acquire()
	defer d.lock.Release()

	storage, err := d.storage(blockID, len(buf))
	if err != nil {
		return err
	}

	copy(storage, buf)
	return nil
}

// Release returns the ramdisk storage to the page allocator.
func (d *RAMDisk) Release() *kernel.Error {
	d.lock.Acquire()
	defer d.lock.Release()

	if d.pages == 0 {
		return errNotInitialized
	}

	err := d.alloc.DeallocPages(d.phys, d.pages)
	d.phys, d.pages = 0, 0
	return err
}

func (d *RAMDisk) storage(blockID uint64, size int) ([]byte, *kernel.Error) {
	if d.pages == 0 {
		return nil, errNotInitialized
	}

	if size%device.BlockSize != 0 {
		return nil, errBadTransferSize
	}

	count := uint64(size / device.BlockSize)
	if blockID >= d.blocks || count > d.blocks-blockID {
		return nil, errBlockOutOfRange
	}

	offset := uintptr(blockID * device.BlockSize)
	return d.alloc.Bytes(d.alloc.PhysToVirt(d.phys)+offset, uintptr(size)), nil
}

func probeForRAMDisk(node device.Node) device.Driver {
	blocks := uint64(DefaultRAMDiskBlocks)
	if value, ok := hal.BootCmdLine()["ramdisk"]; ok {
		if parsed, err := strconv.ParseUint(value, 10, 32); err == nil && parsed != 0 {
			blocks = parsed
		}
	}

	disk := NewRAMDisk(device.Pages(), blocks)
	disk.IRQs = node.IRQs
	return disk
}
