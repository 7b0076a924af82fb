package task

import (
	"bytes"
	"strings"
	"testing"

	"golang.org/x/sys/unix"
	"quados/kernel/gate"
	"quados/kernel/mm"
	"quados/kernel/mm/vmm"
)

type syscallStep struct {
	number uint64
	args   []uint64
	check  func(t *testing.T, ret uint64)
}

func expectReturn(exp uint64) func(*testing.T, uint64) {
	return func(t *testing.T, ret uint64) {
		if ret != exp {
			t.Errorf("expected syscall to return 0x%x; got 0x%x", exp, ret)
		}
	}
}

// runSyscalls runs tsk with a user runner that issues steps one after the
// other and checks the value returned by each of them.
func runSyscalls(t *testing.T, tsk *Task, steps []syscallStep) int {
	t.Helper()
	defer SetUserRunner(nil)

	next := 0
	SetUserRunner(func(_ *vmm.PageTable, regs *gate.Registers) gate.ExitReason {
		if next > 0 && steps[next-1].check != nil {
			steps[next-1].check(t, regs.Return())
		}

		if next == len(steps) {
			t.Fatal("task did not exit")
		}

		regs.SetSyscall(steps[next].number, steps[next].args...)
		next++
		return gate.ExitSyscall
	})

	code, err := tsk.IntoUser()
	if err != nil {
		t.Fatal(err)
	}

	return code
}

func TestSyscalls(t *testing.T) {
	tsk, _ := newTestTask(t, "init")
	ms := tsk.MemSet()

	var console bytes.Buffer
	tsk.SetConsole(&console)

	base := uint64(BrkBase)
	if err := ms.CopyIn(BrkBase, []byte("hello\n")); err != nil {
		t.Fatal(err)
	}
	if err := ms.CopyIn(BrkBase+0x3000, []byte("abc")); err != nil {
		t.Fatal(err)
	}

	// iovec array at BrkBase+0x2000
	for i, word := range []uint64{base, 5, base + 0x3000, 3} {
		if err := ms.WriteWord(BrkBase+0x2000+uintptr(i*8), word); err != nil {
			t.Fatal(err)
		}
	}

	steps := []syscallStep{
		{unix.SYS_WRITE, []uint64{1, base, 6}, expectReturn(6)},
		{unix.SYS_WRITE, []uint64{3, base, 6}, expectReturn(errnoReturn(unix.EBADF))},
		{unix.SYS_WRITE, []uint64{2, 0x10, 4}, expectReturn(errnoReturn(unix.EFAULT))},
		{unix.SYS_WRITEV, []uint64{2, base + 0x2000, 2}, expectReturn(8)},
		{unix.SYS_SET_TID_ADDRESS, []uint64{base}, expectReturn(1)},
		{unix.SYS_GETUID, nil, expectReturn(0)},
		{unix.SYS_GETEGID, nil, expectReturn(0)},
		{unix.SYS_GETPID, nil, expectReturn(1)},
		{unix.SYS_GETPPID, nil, expectReturn(1)},
		{unix.SYS_RT_SIGACTION, []uint64{2, 0, 0}, expectReturn(0)},
		{unix.SYS_IOCTL, []uint64{1, 0x5413, 0}, expectReturn(errnoReturn(unix.ENOTTY))},
		{unix.SYS_DUP3, []uint64{1, 7, 0}, expectReturn(7)},
		{unix.SYS_BRK, []uint64{0}, expectReturn(base)},
		{unix.SYS_BRK, []uint64{base + 0x20000}, expectReturn(base + 0x20000)},
		{unix.SYS_UNAME, []uint64{base + 0x4000}, expectReturn(0)},
		{unix.SYS_UNAME, []uint64{0x10}, expectReturn(errnoReturn(unix.EFAULT))},
		{unix.SYS_GETCWD, []uint64{base + 0x5000, 64}, expectReturn(2)},
		{unix.SYS_GETCWD, []uint64{base + 0x5000, 1}, expectReturn(errnoReturn(unix.ERANGE))},
		{unix.SYS_ARCH_PRCTL, []uint64{archSetFS, 0x1234}, expectReturn(0)},
		{unix.SYS_EXIT_GROUP, []uint64{3}, nil},
	}

	if code := runSyscalls(t, tsk, steps); code != 3 {
		t.Errorf("expected exit code 3; got %d", code)
	}

	if got := console.String(); got != "hello\nhelloabc" {
		t.Errorf("expected console output %q; got %q", "hello\nhelloabc", got)
	}

	if _, ok := ms.Frames(mm.PageFromAddress(BrkBase + 0x1f000)); !ok {
		t.Error("expected brk to map the pages below the new break")
	}

	sysname := make([]byte, 6)
	if err := ms.CopyOut(BrkBase+0x4000, sysname); err != nil || string(sysname) != "QuadOS" {
		t.Errorf("expected uname to report QuadOS; got %q (err %v)", sysname, err)
	}

	machine := make([]byte, 65)
	if err := ms.CopyOut(BrkBase+0x4000+4*65, machine); err != nil || !strings.HasPrefix(string(machine), "x86_64\x00") {
		t.Errorf("expected uname machine to be x86_64; got %q (err %v)", machine, err)
	}

	cwd := make([]byte, 2)
	if err := ms.CopyOut(BrkBase+0x5000, cwd); err != nil || string(cwd) != "/\x00" {
		t.Errorf("expected getcwd to write \"/\"; got %q", cwd)
	}

	if tsk.Registers().FSBase != 0x1234 {
		t.Errorf("expected arch_prctl to set the FS base; got 0x%x", tsk.Registers().FSBase)
	}
}
