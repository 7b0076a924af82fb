package gate

// ExitReason describes why user code returned control to the kernel.
type ExitReason uint8

const (
	// ExitSyscall is reported when user code executes a system call.
	ExitSyscall ExitReason = iota

	// ExitInterrupt is reported when a hardware interrupt preempted user
	// code. Registers.Info holds the IRQ number.
	ExitInterrupt

	// ExitPageFault is reported when user code touched an unmapped page or
	// violated its protection.
	ExitPageFault

	// ExitGeneralProtection is reported for general protection faults.
	ExitGeneralProtection

	// ExitIllegalInstruction is reported when user code executed an
	// invalid opcode.
	ExitIllegalInstruction

	// ExitArithmetic is reported for divide errors and floating point
	// exceptions.
	ExitArithmetic

	// ExitUnknown is reported for any other trap.
	ExitUnknown
)

var exitReasonNames = [...]string{
	ExitSyscall:            "syscall",
	ExitInterrupt:          "interrupt",
	ExitPageFault:          "page fault",
	ExitGeneralProtection:  "general protection fault",
	ExitIllegalInstruction: "illegal instruction",
	ExitArithmetic:         "arithmetic exception",
	ExitUnknown:            "unknown trap",
}

// String implements fmt.Stringer for ExitReason.
func (r ExitReason) String() string {
	if int(r) < len(exitReasonNames) {
		return exitReasonNames[r]
	}

	return exitReasonNames[ExitUnknown]
}

// InterruptNumber describes an x86 interrupt/exception/trap slot.
type InterruptNumber uint8

const (
	// DivideByZero occurs when dividing any number by 0 using the DIV or
	// IDIV instruction.
	DivideByZero = InterruptNumber(0)

	// InvalidOpcode occurs when the CPU attempts to execute an invalid or
	// undefined instruction opcode.
	InvalidOpcode = InterruptNumber(6)

	// GPFException occurs when a general protection fault occurs.
	GPFException = InterruptNumber(13)

	// PageFaultException occurs when a page directory table (PDT) or one
	// of its entries is not present or when a privilege and/or RW
	// protection check fails.
	PageFaultException = InterruptNumber(14)

	// FloatingPointException occurs while invoking an FP instruction while:
	//  - CR0.NE = 1 OR
	//  - an unmasked FP exception is pending
	FloatingPointException = InterruptNumber(16)

	// SIMDFloatingPointException occurs when an unmasked SSE exception
	// occurs while CR4.OSXMMEXCPT is set to 1.
	SIMDFloatingPointException = InterruptNumber(19)

	// FirstIRQ is the first vector used for hardware interrupts.
	FirstIRQ = InterruptNumber(32)

	// SyscallVector is the software interrupt vector used for system calls.
	SyscallVector = InterruptNumber(0x80)
)

// ExitReasonFor maps the vector of a trap taken while running user code to
// the matching ExitReason.
func ExitReasonFor(vector InterruptNumber) ExitReason {
	switch {
	case vector == SyscallVector:
		return ExitSyscall
	case vector == PageFaultException:
		return ExitPageFault
	case vector == GPFException:
		return ExitGeneralProtection
	case vector == InvalidOpcode:
		return ExitIllegalInstruction
	case vector == DivideByZero, vector == FloatingPointException, vector == SIMDFloatingPointException:
		return ExitArithmetic
	case vector >= FirstIRQ:
		return ExitInterrupt
	default:
		return ExitUnknown
	}
}
