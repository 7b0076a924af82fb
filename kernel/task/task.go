// Package task builds user address spaces from ELF images and runs them.
package task

import (
	"bytes"
	"crypto/rand"
	"debug/elf"
	"encoding/binary"
	"io"
	"sort"

	"quados/kernel"
	"quados/kernel/gate"
	"quados/kernel/kfmt"
	"quados/kernel/mm"
	"quados/kernel/mm/pmm"
	"quados/kernel/mm/vmm"
)

const (
	// StackSize is the size of the user stack.
	StackSize = uintptr(0x8000)

	// StackTop is the address right above the user stack.
	StackTop = uintptr(0x1_0000_0000)

	// BrkBase is the initial program break.
	BrkBase = uintptr(0x2_0000_0000)

	// brkInitialPages is the number of pages mapped at BrkBase when the
	// task is created.
	brkInitialPages = 10

	// wordSize is the alignment used when placing argument strings.
	wordSize = uintptr(8)

	// elfPhoffOffset is the offset of e_phoff inside an ELF64 header.
	elfPhoffOffset = 32
)

// State describes the lifecycle of a task.
type State uint8

// The states a task goes through.
const (
	// StateBuilding is the state of a task whose address space is being
	// constructed.
	StateBuilding State = iota

	// StateReady is the state of a fully constructed task that has not
	// entered user mode yet.
	StateReady

	// StateRunning is the state of a task executing in user mode.
	StateRunning

	// StateExited is the state of a task that exited or was terminated.
	StateExited

	// StateReleased is the state of a task whose memory has been returned.
	StateReleased
)

// UserRunner resumes user code with the supplied register frame until the
// next trap and reports why it stopped. The runner has exclusive access to
// regs for the duration of the call.
type UserRunner func(pt *vmm.PageTable, regs *gate.Registers) gate.ExitReason

// InterruptHandler services a hardware interrupt taken while user code was
// running. It returns false if nothing claimed the interrupt.
type InterruptHandler func(irq uint8) bool

var (
	log = kfmt.Logger{Module: "task"}

	// runUserFn resumes user code. It is nil unless a runner has been
	// installed with SetUserRunner.
	runUserFn UserRunner

	// interruptHandlerFn receives interrupts that preempted user code.
	interruptHandlerFn InterruptHandler

	// randomBytesFn fills the AT_RANDOM block. Tests override it.
	randomBytesFn = rand.Read

	errInvalidELF          = &kernel.Error{Module: "task", Message: "invalid ELF image"}
	errUnsupportedELF      = &kernel.Error{Module: "task", Message: "unsupported ELF image (need static x86-64 executable)"}
	errSegmentOutOfImage   = &kernel.Error{Module: "task", Message: "ELF segment exceeds image"}
	errArgsTooLarge        = &kernel.Error{Module: "task", Message: "arguments do not fit on the user stack"}
	errUserModeUnavailable = &kernel.Error{Module: "task", Message: "no user mode runner installed"}
	errTaskNotReady        = &kernel.Error{Module: "task", Message: "task is not ready to run"}
	errTaskRunning         = &kernel.Error{Module: "task", Message: "task is still running"}
	errTaskReleased        = &kernel.Error{Module: "task", Message: "task already released"}
)

// SetUserRunner installs the function used to execute user code.
func SetUserRunner(fn UserRunner) { runUserFn = fn }

// UserModeAvailable returns true if a user mode runner is installed.
func UserModeAvailable() bool { return runUserFn != nil }

// SetInterruptHandler installs the function that services interrupts taken
// while user code runs.
func SetInterruptHandler(fn InterruptHandler) { interruptHandlerFn = fn }

// Task is a single user program: its register frame, its page table and the
// frames backing its memory.
type Task struct {
	regs      gate.Registers
	pageTable *vmm.PageTable
	memSet    *MemSet
	state     State

	entry uintptr
	brk   uintptr

	// brkMapped is the end of the resident region starting at BrkBase.
	brkMapped uintptr

	exitCode int
	console  io.Writer
}

// FromELF creates a task from a static ELF executable. Every PT_LOAD segment
// is copied into freshly allocated frames, a stack is mapped below StackTop
// and args plus the auxiliary vector are laid out on it.
func FromELF(alloc *pmm.BitmapAllocator, image []byte, args []string) (*Task, *kernel.Error) {
	file, parseErr := elf.NewFile(bytes.NewReader(image))
	if parseErr != nil {
		return nil, errInvalidELF
	}

	if file.Class != elf.ELFCLASS64 || file.Machine != elf.EM_X86_64 || file.Type != elf.ET_EXEC {
		return nil, errUnsupportedELF
	}

	pageTable, err := vmm.NewPageTable(alloc)
	if err != nil {
		return nil, err
	}

	t := &Task{
		pageTable: pageTable,
		memSet:    NewMemSet(alloc, pageTable),
		entry:     uintptr(file.Entry),
		console:   kfmt.Console{},
	}

	if err = t.build(file, image, args); err != nil {
		_ = t.release()
		return nil, err
	}

	t.state = StateReady
	log.Debugf("loaded task: entry=0x%x sp=0x%x resident pages=%d", t.regs.PC(), t.regs.SP(), t.memSet.Len())
	return t, nil
}

func (t *Task) build(file *elf.File, image []byte, args []string) *kernel.Error {
	for _, prog := range file.Progs {
		if prog.Type != elf.PT_LOAD {
			continue
		}

		if err := t.loadSegment(prog, image); err != nil {
			return err
		}
	}

	if err := t.memSet.MapRange(StackTop-StackSize, StackTop); err != nil {
		return err
	}

	t.brk = BrkBase
	t.brkMapped = BrkBase + brkInitialPages*mm.PageSize
	if err := t.memSet.MapRange(BrkBase, t.brkMapped); err != nil {
		return err
	}

	sp, err := t.setupStack(file, image, args)
	if err != nil {
		return err
	}

	t.regs.SetPC(uint64(t.entry))
	t.regs.SetSP(uint64(sp))
	return nil
}

// loadSegment maps the pages spanned by a PT_LOAD segment and copies its
// file-backed bytes at their offset inside each page. Pages past the file
// contents stay zeroed.
func (t *Task) loadSegment(prog *elf.Prog, image []byte) *kernel.Error {
	if prog.Filesz > prog.Memsz || prog.Off > uint64(len(image)) || prog.Filesz > uint64(len(image))-prog.Off {
		return errSegmentOutOfImage
	}

	var (
		offset  = uintptr(prog.Off)
		end     = offset + uintptr(prog.Filesz)
		vaddr   = uintptr(prog.Vaddr)
		vaddrTo = vaddr + uintptr(prog.Memsz)
	)

	for vaddr < vaddrTo {
		frames, err := t.memSet.MapPage(mm.PageFromAddress(vaddr))
		if err != nil {
			return err
		}

		pageOffset := vmm.PageOffset(vaddr)
		if offset < end {
			size := mm.PageSize - pageOffset
			if end-offset < size {
				size = end - offset
			}

			copy(frames.Bytes()[pageOffset:], image[offset:offset+size])
			offset += size
		}

		vaddr += mm.PageSize - pageOffset
	}

	return nil
}

// setupStack writes the argument strings, the AT_RANDOM block and the
// initial process stack (argc, argv, envp, auxv) and returns the final
// stack pointer.
func (t *Task) setupStack(file *elf.File, image []byte, args []string) (uintptr, *kernel.Error) {
	stack := stackWriter{memSet: t.memSet, sp: StackTop, limit: StackTop - StackSize}

	argPtrs := make([]uint64, len(args))
	for i, arg := range args {
		ptr, err := stack.pushString(arg)
		if err != nil {
			return 0, err
		}
		argPtrs[i] = uint64(ptr)
	}

	var random [16]byte
	_, _ = randomBytesFn(random[:])
	randomPtr, err := stack.pushBytes(random[:])
	if err != nil {
		return 0, err
	}

	auxv := t.auxVector(file, image, argPtrs, uint64(randomPtr))

	// Keep the final stack pointer 16-byte aligned as required by the
	// x86-64 process entry ABI.
	words := 1 + 2*len(auxv) + 1 + 1 + len(argPtrs) + 1
	if (stack.sp/wordSize-uintptr(words))%2 != 0 {
		if err = stack.pushWord(0); err != nil {
			return 0, err
		}
	}

	// The auxiliary vector is read upwards from envp and ends with the
	// AT_NULL entry, so entries are pushed in ascending tag order.
	values := []uint64{0}
	for _, entry := range auxv {
		values = append(values, entry.value, uint64(entry.tag))
	}

	// envp and argv terminators
	values = append(values, 0, 0)
	for i := len(argPtrs) - 1; i >= 0; i-- {
		values = append(values, argPtrs[i])
	}
	values = append(values, uint64(len(argPtrs)))

	for _, value := range values {
		if err = stack.pushWord(value); err != nil {
			return 0, err
		}
	}

	return stack.sp, nil
}

// auxVector returns the auxiliary vector sorted by tag, AT_NULL included.
func (t *Task) auxVector(file *elf.File, image []byte, argPtrs []uint64, randomPtr uint64) []auxEntry {
	auxv := []auxEntry{
		{AuxNull, 0},
		{AuxPHENT, uint64(binary.Size(elf.Prog64{}))},
		{AuxPHNUM, uint64(len(file.Progs))},
		{AuxPageSize, uint64(mm.PageSize)},
		{AuxEntry, uint64(t.entry)},
		{AuxUID, 0},
		{AuxEUID, 0},
		{AuxGID, 0},
		{AuxEGID, 0},
		{AuxClockTck, 100},
		{AuxSecure, 0},
		{AuxRandom, randomPtr},
	}

	if phdr, ok := programHeaderAddress(file, image); ok {
		auxv = append(auxv, auxEntry{AuxPHDR, phdr})
	}

	if len(argPtrs) != 0 {
		auxv = append(auxv, auxEntry{AuxExecFn, argPtrs[0]})
	}

	sort.Slice(auxv, func(i, j int) bool { return auxv[i].tag < auxv[j].tag })
	return auxv
}

// programHeaderAddress returns the virtual address of the program header
// table if a PT_LOAD segment maps it.
func programHeaderAddress(file *elf.File, image []byte) (uint64, bool) {
	if len(image) < elfPhoffOffset+8 {
		return 0, false
	}

	phoff := file.ByteOrder.Uint64(image[elfPhoffOffset:])
	for _, prog := range file.Progs {
		if prog.Type == elf.PT_LOAD && phoff >= prog.Off && phoff < prog.Off+prog.Filesz {
			return prog.Vaddr + (phoff - prog.Off), true
		}
	}

	return 0, false
}

// Registers returns the register frame of the task. It must only be
// modified while the task is not running.
func (t *Task) Registers() *gate.Registers { return &t.regs }

// PageTable returns the page table of the task.
func (t *Task) PageTable() *vmm.PageTable { return t.pageTable }

// MemSet returns the resident set of the task.
func (t *Task) MemSet() *MemSet { return t.memSet }

// State returns the lifecycle state of the task.
func (t *Task) State() State { return t.state }

// ExitCode returns the exit status of an exited task.
func (t *Task) ExitCode() int { return t.exitCode }

// SetConsole redirects the output written by the task to stdout and stderr.
func (t *Task) SetConsole(w io.Writer) { t.console = w }

// IntoUser activates the page table of the task and runs it until it exits.
// System calls are serviced and user code resumed; interrupts are routed to
// the installed interrupt handler. Faults terminate the task.
func (t *Task) IntoUser() (int, *kernel.Error) {
	if runUserFn == nil {
		return 0, errUserModeUnavailable
	}

	if t.state != StateReady {
		return 0, errTaskNotReady
	}

	t.state = StateRunning
	t.pageTable.Activate()

	for t.state == StateRunning {
		reason := runUserFn(t.pageTable, &t.regs)

		switch reason {
		case gate.ExitSyscall:
			t.handleSyscall()
		case gate.ExitInterrupt:
			irq := uint8(t.regs.Info)
			if interruptHandlerFn == nil || !interruptHandlerFn(irq) {
				log.Warnf("unhandled IRQ %d", irq)
			}
		default:
			t.fault(reason)
		}
	}

	return t.exitCode, nil
}

// fault terminates the task with the signal that matches a trap.
func (t *Task) fault(reason gate.ExitReason) {
	signal := sigKILL
	switch reason {
	case gate.ExitPageFault, gate.ExitGeneralProtection:
		signal = sigSEGV
	case gate.ExitIllegalInstruction:
		signal = sigILL
	case gate.ExitArithmetic:
		signal = sigFPE
	}

	log.Errorf("%s at 0x%x (info 0x%x); terminating task", reason.String(), t.regs.PC(), t.regs.Info)
	t.regs.DumpTo(kfmt.Console{})
	t.terminate(signal)
}

// terminate ends the task as if it had been killed by signal.
func (t *Task) terminate(signal int) {
	t.exit(128 + signal)
}

func (t *Task) exit(code int) {
	t.exitCode = code
	t.state = StateExited
}

// Release returns the resident set and the page table of a task that is not
// running to the frame allocator.
func (t *Task) Release() *kernel.Error {
	switch t.state {
	case StateRunning:
		return errTaskRunning
	case StateReleased:
		return errTaskReleased
	}

	return t.release()
}

func (t *Task) release() *kernel.Error {
	t.state = StateReleased

	err := t.memSet.Release()
	if ptErr := t.pageTable.Release(); err == nil {
		err = ptErr
	}

	return err
}

// stackWriter pushes data onto a user stack that grows down from sp and may
// not extend below limit.
type stackWriter struct {
	memSet *MemSet
	sp     uintptr
	limit  uintptr
}

// pushString stores a NUL-terminated copy of s at the next word-aligned
// address and returns its address.
func (sw *stackWriter) pushString(s string) (uintptr, *kernel.Error) {
	size := uintptr(len(s)) + 1
	if sw.sp-sw.limit < size+wordSize {
		return 0, errArgsTooLarge
	}

	sw.sp = (sw.sp - size) / wordSize * wordSize
	return sw.sp, sw.memSet.CopyIn(sw.sp, append([]byte(s), 0))
}

func (sw *stackWriter) pushBytes(data []byte) (uintptr, *kernel.Error) {
	size := uintptr(len(data))
	if sw.sp-sw.limit < size+wordSize {
		return 0, errArgsTooLarge
	}

	sw.sp = (sw.sp - size) / wordSize * wordSize
	return sw.sp, sw.memSet.CopyIn(sw.sp, data)
}

func (sw *stackWriter) pushWord(value uint64) *kernel.Error {
	if sw.sp-sw.limit < wordSize {
		return errArgsTooLarge
	}

	sw.sp -= wordSize
	return sw.memSet.WriteWord(sw.sp, value)
}
