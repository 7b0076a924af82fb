package virt

import (
	"quados/device"
	"quados/kernel"
	"quados/kernel/mm/heap"
	"quados/kernel/sync"
)

const (
	// LoopbackMTU is the largest packet accepted by the loopback device.
	LoopbackMTU = 1514

	// loopbackQueueLen is the number of packets the loopback device holds
	// before dropping new ones.
	loopbackQueueLen = 64
)

var (
	errPacketTooLarge = &kernel.Error{Module: "virt", Message: "packet exceeds MTU"}
	errBufferTooSmall = &kernel.Error{Module: "virt", Message: "receive buffer too small"}
	errQueueFull      = &kernel.Error{Module: "virt", Message: "transmit queue full"}

	// heapAllocFn, heapFreeFn and heapBytesFn are mocked by tests.
	heapAllocFn = heap.Alloc
	heapFreeFn  = heap.Free
	heapBytesFn = heap.Bytes
)

type packet struct {
	addr uintptr
	size uintptr
}

// Loopback is a network interface that receives every packet it sends.
// Queued packets live in kernel heap buffers.
type Loopback struct {
	device.BaseDriver

	lock     sync.Spinlock
	queue    []packet
	reserved int
}

// DriverName implements device.Driver.
func (*Loopback) DriverName() string { return "virt-loopback" }

// DriverVersion implements device.Driver.
func (*Loopback) DriverVersion() (uint16, uint16, uint16) { return 0, 1, 0 }

// DeviceType implements device.Driver.
func (l *Loopback) DeviceType() device.DeviceType { return device.Net(l) }

// Send implements device.NetDriver.
func (l *Loopback) Send(buf []byte) *kernel.Error {
	if len(buf) > LoopbackMTU {
		return errPacketTooLarge
	}

	// Queued plus reserved packets never exceed loopbackQueueLen.
	l.lock.Acquire()
	if len(l.queue)+l.reserved >= loopbackQueueLen {
		l.lock.Release()
		return errQueueFull
	}
	l.reserved++
	l.lock.Release()

	size := uintptr(len(buf))
	if size == 0 {
		size = 1
	}

	addr, err := heapAllocFn(size, 8)
	if err == nil {
		copy(heapBytesFn(addr, size), buf)
	}

	l.lock.Acquire()
	l.reserved--
	if err == nil {
		l.queue = append(l.queue, packet{addr: addr, size: uintptr(len(buf))})
	}
	l.lock.Release()
	return err
}

// Recv implements device.NetDriver.
func (l *Loopback) Recv(buf []byte) (int, *kernel.Error) {
	l.lock.Acquire()
	if len(l.queue) == 0 {
		l.lock.Release()
		return 0, device.ErrNoData
	}

	pkt := l.queue[0]
	if uintptr(len(buf)) < pkt.size {
		l.lock.Release()
		return 0, errBufferTooSmall
	}
	l.queue = l.queue[1:]
	l.lock.Release()

	allocSize := pkt.size
	if allocSize == 0 {
		allocSize = 1
	}

	n := copy(buf, heapBytesFn(pkt.addr, pkt.size))
	heapFreeFn(pkt.addr, allocSize, 8)
	return n, nil
}

// TryHandleInterrupt claims receive interrupts while packets are queued.
func (l *Loopback) TryHandleInterrupt(irq uint32) bool {
	if !device.OwnsInterrupt(l, irq) {
		return false
	}

	l.lock.Acquire()
	defer l.lock.Release()
	return len(l.queue) != 0
}

func probeForLoopback(node device.Node) device.Driver {
	return &Loopback{BaseDriver: device.BaseDriver{IRQs: node.IRQs}}
}
