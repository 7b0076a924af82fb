package cpu

import (
	"os"
	"testing"
)

func TestSwitchPDT(t *testing.T) {
	defer SwitchPDT(ActivePDT())

	SwitchPDT(0xbadf000)
	if got := ActivePDT(); got != 0xbadf000 {
		t.Fatalf("expected active PDT to be 0xbadf000; got 0x%x", got)
	}
}

func TestFlushTLBEntry(t *testing.T) {
	before := TLBFlushes()
	FlushTLBEntry(0x1000)
	FlushTLBEntry(0x2000)

	if got := TLBFlushes() - before; got != 2 {
		t.Fatalf("expected 2 TLB flushes; got %d", got)
	}
}

func TestHalt(t *testing.T) {
	defer func() { exitFn = os.Exit }()

	var exitCode = -1
	exitFn = func(code int) { exitCode = code }

	EnableInterrupts()
	Halt()

	if exitCode != 1 {
		t.Fatalf("expected Halt to exit with code 1; got %d", exitCode)
	}

	if InterruptsEnabled() {
		t.Fatal("expected Halt to disable interrupts")
	}
}
