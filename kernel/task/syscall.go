package task

import "quados/kernel/mm"

// Signal numbers of the x86-64 Linux user ABI used to report the fate of a
// terminated task.
const (
	sigILL  = 4
	sigFPE  = 8
	sigKILL = 9
	sigSEGV = 11
	sigSYS  = 31
)

// syscallHandler services one system call and returns the value stored in
// the return register. Handlers that end the task do not need to return a
// meaningful value.
type syscallHandler func(t *Task) uint64

// syscallTable maps system call numbers of the user ABI to their handlers.
// It is populated by the ABI specific files of this package.
var syscallTable = map[uint64]syscallHandler{}

// handleSyscall dispatches the system call requested through the register
// frame. Unknown system calls terminate the task with SIGSYS.
func (t *Task) handleSyscall() {
	number := t.regs.SyscallNumber()

	handler, ok := syscallTable[number]
	if !ok {
		log.Warnf("unimplemented syscall %d at 0x%x; terminating task", number, t.regs.PC())
		t.terminate(sigSYS)
		return
	}

	ret := handler(t)
	if t.state == StateRunning {
		t.regs.SetReturn(ret)
	}
}

// maxUserTransfer bounds the number of bytes a single system call copies
// out of user memory; larger requests are shortened.
const maxUserTransfer = 64 * 1024

// userBytes copies size bytes of user memory starting at addr.
func (t *Task) userBytes(addr, size uint64) ([]byte, bool) {
	if size > maxUserTransfer {
		size = maxUserTransfer
	}

	buf := make([]byte, size)
	if err := t.memSet.CopyOut(uintptr(addr), buf); err != nil {
		return nil, false
	}

	return buf, true
}

// growBrk moves the program break to addr, mapping any missing pages. It
// returns false if addr has no page-aligned end or the pages could not be
// mapped.
func (t *Task) growBrk(addr uintptr) bool {
	end := mm.PageAlignUp(addr)
	if end < addr {
		log.Warnf("brk(0x%x) failed: address out of range", addr)
		return false
	}

	if end > t.brkMapped {
		if err := t.memSet.MapRange(t.brkMapped, end); err != nil {
			log.Warnf("brk(0x%x) failed: %s", addr, err.Error())
			return false
		}
		t.brkMapped = end
	}

	t.brk = addr
	return true
}
