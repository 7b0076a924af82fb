package task

import (
	"bytes"
	"crypto/rand"
	"debug/elf"
	"testing"

	"quados/internal/elfgen"
	"quados/kernel"
	"quados/kernel/gate"
	"quados/kernel/mm"
	"quados/kernel/mm/pmm"
	"quados/kernel/mm/vmm"
)

var testCode = []byte{0x48, 0x31, 0xc0, 0x0f, 0x05}

func newTestFrameAllocator(t *testing.T, pageCount uintptr) *pmm.BitmapAllocator {
	t.Helper()

	var (
		alloc = new(pmm.BitmapAllocator)
		base  = uintptr(0x200000)
		mem   = mm.NewPhysicalMemory(base, pageCount*mm.PageSize)
	)

	if err := alloc.Init(mem, []mm.Region{{Base: base, Size: pageCount * mm.PageSize}}, 0, 0); err != nil {
		t.Fatal(err)
	}

	return alloc
}

func testImage() elfgen.Image {
	return elfgen.Image{
		Entry:       0x401000,
		HeaderVaddr: 0x400000,
		Segments: []elfgen.Segment{
			{Vaddr: 0x401000, Data: testCode, Flags: elf.PF_R | elf.PF_X},
			{Vaddr: 0x402010, Data: []byte("data"), MemSize: 0x2000, Flags: elf.PF_R | elf.PF_W},
		},
	}
}

func newTestTask(t *testing.T, args ...string) (*Task, *pmm.BitmapAllocator) {
	t.Helper()

	alloc := newTestFrameAllocator(t, 256)
	tsk, err := FromELF(alloc, testImage().Bytes(), args)
	if err != nil {
		t.Fatal(err)
	}

	return tsk, alloc
}

func readString(t *testing.T, ms *MemSet, addr uint64) string {
	t.Helper()

	var out []byte
	for {
		var b [1]byte
		if err := ms.CopyOut(uintptr(addr), b[:]); err != nil {
			t.Fatalf("unable to read string at 0x%x: %v", addr, err)
		}

		if b[0] == 0 {
			return string(out)
		}

		out = append(out, b[0])
		addr++
	}
}

func TestFromELF(t *testing.T) {
	defer func() {
		randomBytesFn = rand.Read
	}()

	randomBytesFn = func(buf []byte) (int, error) {
		for i := range buf {
			buf[i] = 0xaa
		}
		return len(buf), nil
	}

	tsk, _ := newTestTask(t, "init", "hello")
	ms := tsk.MemSet()
	regs := tsk.Registers()

	if tsk.State() != StateReady {
		t.Errorf("expected task to be ready; got state %d", tsk.State())
	}

	if regs.PC() != 0x401000 {
		t.Errorf("expected PC to be the ELF entry point; got 0x%x", regs.PC())
	}

	sp := regs.SP()
	if sp >= uint64(StackTop) || sp < uint64(StackTop-StackSize) || sp%16 != 0 {
		t.Fatalf("expected an aligned stack pointer inside the stack; got 0x%x", sp)
	}

	// header, code, 3 data/bss pages, stack and initial break
	if exp, got := 1+1+3+int(StackSize/mm.PageSize)+brkInitialPages, ms.Len(); got != exp {
		t.Errorf("expected %d resident pages; got %d", exp, got)
	}

	code := make([]byte, len(testCode))
	if err := ms.CopyOut(0x401000, code); err != nil || !bytes.Equal(code, testCode) {
		t.Errorf("expected code segment to be loaded; got %v (err %v)", code, err)
	}

	data := make([]byte, 0x1000)
	if err := ms.CopyOut(0x402010, data); err != nil {
		t.Fatal(err)
	}
	if string(data[:4]) != "data" {
		t.Errorf("expected data segment contents; got %q", data[:4])
	}
	for i, b := range data[4:] {
		if b != 0 {
			t.Fatalf("expected bss byte at 0x%x to be zero; got 0x%x", 0x402014+i, b)
		}
	}

	word := func(addr uint64) uint64 {
		value, err := ms.ReadWord(uintptr(addr))
		if err != nil {
			t.Fatalf("unable to read stack word at 0x%x: %v", addr, err)
		}
		return value
	}

	if argc := word(sp); argc != 2 {
		t.Fatalf("expected argc to be 2; got %d", argc)
	}

	argv0, argv1 := word(sp+8), word(sp+16)
	if got := readString(t, ms, argv0); got != "init" {
		t.Errorf("expected argv[0] to be %q; got %q", "init", got)
	}
	if got := readString(t, ms, argv1); got != "hello" {
		t.Errorf("expected argv[1] to be %q; got %q", "hello", got)
	}
	if argv0%8 != 0 || argv1%8 != 0 {
		t.Errorf("expected argument strings to be word aligned; got 0x%x, 0x%x", argv0, argv1)
	}

	if word(sp+24) != 0 || word(sp+32) != 0 {
		t.Error("expected argv and envp to be NULL terminated")
	}

	auxv := make(map[AuxType]uint64)
	for addr := sp + 40; ; addr += 16 {
		tag := AuxType(word(addr))
		auxv[tag] = word(addr + 8)
		if tag == AuxNull {
			break
		}
	}

	expAuxv := map[AuxType]uint64{
		AuxPHDR:     0x400000 + 64,
		AuxPHENT:    56,
		AuxPHNUM:    3,
		AuxPageSize: 4096,
		AuxEntry:    0x401000,
		AuxUID:      0,
		AuxEGID:     0,
		AuxExecFn:   argv0,
	}
	for tag, exp := range expAuxv {
		if got, ok := auxv[tag]; !ok || got != exp {
			t.Errorf("expected auxv entry %d to be 0x%x; got 0x%x (present=%t)", tag, exp, got, ok)
		}
	}

	random := make([]byte, 16)
	if err := ms.CopyOut(uintptr(auxv[AuxRandom]), random); err != nil || !bytes.Equal(random, bytes.Repeat([]byte{0xaa}, 16)) {
		t.Errorf("expected AT_RANDOM to point to the random block; got %v (err %v)", random, err)
	}

	// The page table and the resident set must agree.
	for _, addr := range []uintptr{0x401000, 0x403000, StackTop - 8, BrkBase} {
		viaTable, err := tsk.PageTable().Translate(addr)
		if err != nil {
			t.Fatalf("expected 0x%x to be mapped: %v", addr, err)
		}

		viaMemSet, _ := ms.Translate(addr)
		if viaTable != viaMemSet {
			t.Errorf("page table maps 0x%x to 0x%x; resident set to 0x%x", addr, viaTable, viaMemSet)
		}
	}
}

func TestFromELFErrors(t *testing.T) {
	image := testImage().Bytes()

	wrongMachine := append([]byte(nil), image...)
	wrongMachine[18] = byte(elf.EM_386)

	specs := []struct {
		image  []byte
		args   []string
		expErr *kernel.Error
	}{
		{[]byte("not an elf"), nil, errInvalidELF},
		{wrongMachine, nil, errUnsupportedELF},
		{image[:len(image)-2], nil, errSegmentOutOfImage},
		{image, []string{string(make([]byte, StackSize))}, errArgsTooLarge},
	}

	for specIndex, spec := range specs {
		alloc := newTestFrameAllocator(t, 256)
		freeBefore := alloc.FreePages()

		tsk, err := FromELF(alloc, spec.image, spec.args)
		if tsk != nil || err != spec.expErr {
			t.Errorf("[spec %d] expected error %v; got %v", specIndex, spec.expErr, err)
		}

		if got := alloc.FreePages(); got != freeBefore {
			t.Errorf("[spec %d] expected all frames to be returned; free pages %d -> %d", specIndex, freeBefore, got)
		}
	}
}

func TestTaskRelease(t *testing.T) {
	alloc := newTestFrameAllocator(t, 256)
	freeBefore := alloc.FreePages()

	tsk, err := FromELF(alloc, testImage().Bytes(), []string{"init"})
	if err != nil {
		t.Fatal(err)
	}

	if alloc.FreePages() >= freeBefore {
		t.Fatal("expected task creation to consume frames")
	}

	if err = tsk.Release(); err != nil {
		t.Fatal(err)
	}

	if got := alloc.FreePages(); got != freeBefore {
		t.Errorf("expected release to return every frame; free pages %d -> %d", freeBefore, got)
	}

	if err = tsk.Release(); err != errTaskReleased {
		t.Errorf("expected errTaskReleased; got %v", err)
	}
}

func TestIntoUserWithoutRunner(t *testing.T) {
	SetUserRunner(nil)

	tsk, _ := newTestTask(t, "init")
	if _, err := tsk.IntoUser(); err != errUserModeUnavailable {
		t.Errorf("expected errUserModeUnavailable; got %v", err)
	}
}

func TestIntoUserTraps(t *testing.T) {
	defer func() {
		SetUserRunner(nil)
		SetInterruptHandler(nil)
	}()

	var irqs []uint8
	SetInterruptHandler(func(irq uint8) bool {
		irqs = append(irqs, irq)
		return irq == 5
	})

	specs := []struct {
		fault   gate.ExitReason
		expCode int
	}{
		{gate.ExitPageFault, 128 + sigSEGV},
		{gate.ExitGeneralProtection, 128 + sigSEGV},
		{gate.ExitIllegalInstruction, 128 + sigILL},
		{gate.ExitArithmetic, 128 + sigFPE},
		{gate.ExitUnknown, 128 + sigKILL},
	}

	for specIndex, spec := range specs {
		irqs = irqs[:0]

		var (
			calls       int
			activeTable *vmm.PageTable
		)
		SetUserRunner(func(pt *vmm.PageTable, regs *gate.Registers) gate.ExitReason {
			calls++
			activeTable = pt
			switch calls {
			case 1:
				regs.Info = 5
				return gate.ExitInterrupt
			case 2:
				regs.Info = 7
				return gate.ExitInterrupt
			default:
				return spec.fault
			}
		})

		tsk, _ := newTestTask(t, "init")
		code, err := tsk.IntoUser()
		if err != nil {
			t.Fatalf("[spec %d] unexpected error: %v", specIndex, err)
		}

		if code != spec.expCode || tsk.ExitCode() != spec.expCode {
			t.Errorf("[spec %d] expected exit code %d; got %d", specIndex, spec.expCode, code)
		}

		if tsk.State() != StateExited {
			t.Errorf("[spec %d] expected task to have exited; got state %d", specIndex, tsk.State())
		}

		if activeTable != tsk.PageTable() {
			t.Errorf("[spec %d] expected runner to receive the task page table", specIndex)
		}

		if len(irqs) != 2 || irqs[0] != 5 || irqs[1] != 7 {
			t.Errorf("[spec %d] expected IRQs [5 7] to be dispatched; got %v", specIndex, irqs)
		}

		if _, err = tsk.IntoUser(); err != errTaskNotReady {
			t.Errorf("[spec %d] expected errTaskNotReady; got %v", specIndex, err)
		}

		if err = tsk.Release(); err != nil {
			t.Errorf("[spec %d] unexpected release error: %v", specIndex, err)
		}
	}
}

func TestUnknownSyscallTerminatesTask(t *testing.T) {
	defer SetUserRunner(nil)

	SetUserRunner(func(_ *vmm.PageTable, regs *gate.Registers) gate.ExitReason {
		regs.SetSyscall(99999)
		return gate.ExitSyscall
	})

	tsk, _ := newTestTask(t, "init")
	code, err := tsk.IntoUser()
	if err != nil {
		t.Fatal(err)
	}

	if exp := 128 + sigSYS; code != exp {
		t.Errorf("expected exit code %d; got %d", exp, code)
	}
}

func TestScheduler(t *testing.T) {
	s := NewScheduler()
	first, second := new(Task), new(Task)

	if id := s.Add(first); id != 1 {
		t.Errorf("expected first task to get ID 1; got %d", id)
	}
	secondID := s.Add(second)

	if s.Len() != 2 {
		t.Errorf("expected 2 tasks; got %d", s.Len())
	}

	if got, ok := s.Get(secondID); !ok || got != second {
		t.Error("expected Get to return the registered task")
	}

	if got, ok := s.Remove(1); !ok || got != first {
		t.Error("expected Remove to return the removed task")
	}

	if _, ok := s.Get(1); ok || s.Len() != 1 {
		t.Error("expected removed task to be gone")
	}

	if _, ok := s.Remove(1); ok {
		t.Error("expected second removal to fail")
	}
}

func TestGrowBrk(t *testing.T) {
	tsk, _ := newTestTask(t, "init")
	mapped := tsk.brkMapped

	specs := []struct {
		addr   uintptr
		expOK  bool
		expBrk uintptr
	}{
		{^uintptr(0), false, BrkBase},
		{^uintptr(0) - mm.PageSize + 2, false, BrkBase},
		{BrkBase + 0x100, true, BrkBase + 0x100},
		{mapped + 1, true, mapped + 1},
	}

	for specIndex, spec := range specs {
		if got := tsk.growBrk(spec.addr); got != spec.expOK {
			t.Errorf("[spec %d] expected growBrk(0x%x) to return %t; got %t", specIndex, spec.addr, spec.expOK, got)
		}

		if tsk.brk != spec.expBrk {
			t.Errorf("[spec %d] expected break 0x%x; got 0x%x", specIndex, spec.expBrk, tsk.brk)
		}
	}

	if exp := mapped + mm.PageSize; tsk.brkMapped != exp {
		t.Errorf("expected mapped break end 0x%x; got 0x%x", exp, tsk.brkMapped)
	}
}
