// Package gate describes the boundary between user mode and the kernel: the
// register-save frame filled in when user code traps and the reasons a trap
// can occur.
package gate

import (
	"io"

	"quados/kernel/kfmt"
)

// Registers contains a snapshot of all register values when an exception,
// interrupt or syscall occurs. The layout follows the x86-64 user ABI.
type Registers struct {
	RAX uint64
	RBX uint64
	RCX uint64
	RDX uint64
	RSI uint64
	RDI uint64
	RBP uint64
	R8  uint64
	R9  uint64
	R10 uint64
	R11 uint64
	R12 uint64
	R13 uint64
	R14 uint64
	R15 uint64

	// Info contains the exception code for exceptions, the syscall number
	// for syscall entries or the IRQ number for HW interrupts.
	Info uint64

	// The return frame used by IRETQ
	RIP    uint64
	CS     uint64
	RFlags uint64
	RSP    uint64
	SS     uint64

	// FSBase holds the thread pointer installed through arch_prctl.
	FSBase uint64
}

// SyscallNumber returns the system call number requested by user code.
func (r *Registers) SyscallNumber() uint64 { return r.RAX }

// Arg returns the index-th system call argument (0-5). Out of range indices
// yield 0.
func (r *Registers) Arg(index int) uint64 {
	switch index {
	case 0:
		return r.RDI
	case 1:
		return r.RSI
	case 2:
		return r.RDX
	case 3:
		return r.R10
	case 4:
		return r.R8
	case 5:
		return r.R9
	default:
		return 0
	}
}

// SetSyscall loads a system call number and its arguments into the frame.
func (r *Registers) SetSyscall(number uint64, args ...uint64) {
	r.RAX = number
	dst := []*uint64{&r.RDI, &r.RSI, &r.RDX, &r.R10, &r.R8, &r.R9}
	for i := 0; i < len(args) && i < len(dst); i++ {
		*dst[i] = args[i]
	}
}

// SetReturn stores the value returned to user code by a system call.
// Errors are encoded as negated errno values.
func (r *Registers) SetReturn(value uint64) { r.RAX = value }

// Return returns the system call return value slot.
func (r *Registers) Return() uint64 { return r.RAX }

// PC returns the user program counter.
func (r *Registers) PC() uint64 { return r.RIP }

// SetPC sets the user program counter.
func (r *Registers) SetPC(pc uint64) { r.RIP = pc }

// SP returns the user stack pointer.
func (r *Registers) SP() uint64 { return r.RSP }

// SetSP sets the user stack pointer.
func (r *Registers) SetSP(sp uint64) { r.RSP = sp }

// DumpTo outputs the register contents to w.
func (r *Registers) DumpTo(w io.Writer) {
	kfmt.Fprintf(w, "RAX = %016x RBX = %016x\n", r.RAX, r.RBX)
	kfmt.Fprintf(w, "RCX = %016x RDX = %016x\n", r.RCX, r.RDX)
	kfmt.Fprintf(w, "RSI = %016x RDI = %016x\n", r.RSI, r.RDI)
	kfmt.Fprintf(w, "RBP = %016x\n", r.RBP)
	kfmt.Fprintf(w, "R8  = %016x R9  = %016x\n", r.R8, r.R9)
	kfmt.Fprintf(w, "R10 = %016x R11 = %016x\n", r.R10, r.R11)
	kfmt.Fprintf(w, "R12 = %016x R13 = %016x\n", r.R12, r.R13)
	kfmt.Fprintf(w, "R14 = %016x R15 = %016x\n", r.R14, r.R15)
	kfmt.Fprintf(w, "\n")
	kfmt.Fprintf(w, "RIP = %016x CS  = %016x\n", r.RIP, r.CS)
	kfmt.Fprintf(w, "RSP = %016x SS  = %016x\n", r.RSP, r.SS)
	kfmt.Fprintf(w, "RFL = %016x FSB = %016x\n", r.RFlags, r.FSBase)
}
