// Package cpu models the processor state the rest of the kernel interacts
// with: the interrupt flag, the active page table root and the TLB. The
// hosted build keeps this state in memory so that the memory-management code
// above it runs unchanged in tests.
package cpu

import (
	"os"
	"sync/atomic"
)

var (
	interruptsEnabled uint32
	activePDT         uintptr
	tlbFlushes        uint64

	// exitFn is invoked by Halt. It is mocked by tests.
	exitFn = os.Exit
)

// EnableInterrupts enables interrupt handling.
func EnableInterrupts() {
	atomic.StoreUint32(&interruptsEnabled, 1)
}

// DisableInterrupts disables interrupt handling.
func DisableInterrupts() {
	atomic.StoreUint32(&interruptsEnabled, 0)
}

// InterruptsEnabled returns true if interrupt handling is enabled.
func InterruptsEnabled() bool {
	return atomic.LoadUint32(&interruptsEnabled) == 1
}

// Halt stops instruction execution. On a hosted machine this terminates the
// process.
func Halt() {
	DisableInterrupts()
	exitFn(1)
}

// FlushTLBEntry flushes a TLB entry for a particular virtual address.
func FlushTLBEntry(_ uintptr) {
	atomic.AddUint64(&tlbFlushes, 1)
}

// TLBFlushes returns the number of TLB entry flushes since boot.
func TLBFlushes() uint64 {
	return atomic.LoadUint64(&tlbFlushes)
}

// SwitchPDT sets the root page table directory to point to the specified
// physical address and flushes the TLB.
func SwitchPDT(pdtPhysAddr uintptr) {
	atomic.StoreUintptr(&activePDT, pdtPhysAddr)
}

// ActivePDT returns the physical address of the currently active page table.
func ActivePDT() uintptr {
	return atomic.LoadUintptr(&activePDT)
}
