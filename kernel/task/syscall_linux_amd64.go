package task

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

// archSetFS is the arch_prctl code that installs the FS segment base.
const archSetFS = 0x1002

func init() {
	syscallTable = map[uint64]syscallHandler{
		unix.SYS_SET_TID_ADDRESS: func(*Task) uint64 { return 1 },
		unix.SYS_GETUID:          sysReturnZero,
		unix.SYS_GETEUID:         sysReturnZero,
		unix.SYS_GETGID:          sysReturnZero,
		unix.SYS_GETEGID:         sysReturnZero,
		unix.SYS_RT_SIGPROCMASK:  sysReturnZero,
		unix.SYS_RT_SIGACTION:    sysReturnZero,
		unix.SYS_GETPID:          func(*Task) uint64 { return 1 },
		unix.SYS_GETPPID:         func(*Task) uint64 { return 1 },
		unix.SYS_IOCTL:           func(*Task) uint64 { return errnoReturn(unix.ENOTTY) },
		unix.SYS_DUP3:            func(t *Task) uint64 { return t.regs.Arg(1) },
		unix.SYS_UNAME:           sysUname,
		unix.SYS_GETCWD:          sysGetcwd,
		unix.SYS_ARCH_PRCTL:      sysArchPrctl,
		unix.SYS_BRK:             sysBrk,
		unix.SYS_WRITE:           sysWrite,
		unix.SYS_WRITEV:          sysWritev,
		unix.SYS_EXIT:            sysExit,
		unix.SYS_EXIT_GROUP:      sysExit,
	}
}

// errnoReturn encodes errno the way the kernel reports failed system calls.
func errnoReturn(errno unix.Errno) uint64 {
	return uint64(-int64(errno))
}

func sysReturnZero(*Task) uint64 { return 0 }

func sysExit(t *Task) uint64 {
	t.exit(int(t.regs.Arg(0) & 0xff))
	return 0
}

func sysUname(t *Task) uint64 {
	var uts unix.Utsname
	copy(uts.Sysname[:], "QuadOS")
	copy(uts.Nodename[:], "quados")
	copy(uts.Release[:], "0.1.0")
	copy(uts.Version[:], "#1")
	copy(uts.Machine[:], "x86_64")

	raw := unsafe.Slice((*byte)(unsafe.Pointer(&uts)), unsafe.Sizeof(uts))
	if err := t.memSet.CopyIn(uintptr(t.regs.Arg(0)), raw); err != nil {
		return errnoReturn(unix.EFAULT)
	}

	return 0
}

func sysGetcwd(t *Task) uint64 {
	const cwd = "/\x00"

	if t.regs.Arg(1) < uint64(len(cwd)) {
		return errnoReturn(unix.ERANGE)
	}

	if err := t.memSet.CopyIn(uintptr(t.regs.Arg(0)), []byte(cwd)); err != nil {
		return errnoReturn(unix.EFAULT)
	}

	return uint64(len(cwd))
}

func sysArchPrctl(t *Task) uint64 {
	if t.regs.Arg(0) == archSetFS {
		t.regs.FSBase = t.regs.Arg(1)
	}

	return 0
}

// sysBrk returns the current break for requests below BrkBase and the new
// break otherwise. A break that cannot be extended stays where it was.
func sysBrk(t *Task) uint64 {
	if addr := uintptr(t.regs.Arg(0)); addr >= BrkBase {
		t.growBrk(addr)
	}

	return uint64(t.brk)
}

func sysWrite(t *Task) uint64 {
	fd, addr, size := t.regs.Arg(0), t.regs.Arg(1), t.regs.Arg(2)
	if fd != 1 && fd != 2 {
		return errnoReturn(unix.EBADF)
	}

	buf, ok := t.userBytes(addr, size)
	if !ok {
		return errnoReturn(unix.EFAULT)
	}

	n, _ := t.console.Write(buf)
	return uint64(n)
}

func sysWritev(t *Task) uint64 {
	fd, iov, count := t.regs.Arg(0), t.regs.Arg(1), t.regs.Arg(2)
	if fd != 1 && fd != 2 {
		return errnoReturn(unix.EBADF)
	}

	var total uint64
	for i := uint64(0); i < count; i++ {
		base, err := t.memSet.ReadWord(uintptr(iov + i*16))
		if err != nil {
			return errnoReturn(unix.EFAULT)
		}

		size, err := t.memSet.ReadWord(uintptr(iov + i*16 + 8))
		if err != nil {
			return errnoReturn(unix.EFAULT)
		}

		buf, ok := t.userBytes(base, size)
		if !ok {
			return errnoReturn(unix.EFAULT)
		}

		n, _ := t.console.Write(buf)
		total += uint64(n)
	}

	return total
}
