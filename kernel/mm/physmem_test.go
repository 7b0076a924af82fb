package mm

import "testing"

func TestPhysicalMemory(t *testing.T) {
	mem := NewPhysicalMemory(0x80001234, 3*PageSize-1)

	if exp, got := uintptr(0x80001000), mem.Base(); got != exp {
		t.Fatalf("expected base to be 0x%x; got 0x%x", exp, got)
	}

	if exp, got := uintptr(0x80004000), mem.End(); got != exp {
		t.Fatalf("expected end to be 0x%x; got 0x%x", exp, got)
	}

	specs := []struct {
		addr, size uintptr
		exp        bool
	}{
		{0x80001000, PageSize, true},
		{0x80003000, PageSize, true},
		{0x80003000, PageSize + 1, false},
		{0x80000fff, 1, false},
		{0x80004000, 0, true},
		{0x80004000, 1, false},
		{0x80001000, ^uintptr(0), false},
	}

	for specIndex, spec := range specs {
		if got := mem.Contains(spec.addr, spec.size); got != spec.exp {
			t.Errorf("[spec %d] expected Contains(0x%x, %d) to return %t", specIndex, spec.addr, spec.size, spec.exp)
		}
	}

	frame := FrameFromAddress(0x80002000)
	mem.FrameData(frame, 1)[10] = 0xaa
	if got := mem.Slice(0x8000200a, 1)[0]; got != 0xaa {
		t.Fatalf("expected FrameData and Slice to alias the same memory; got 0x%x", got)
	}
}

func TestPhysicalMemoryOutOfRange(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected out of range access to panic")
		}
	}()

	NewPhysicalMemory(0, PageSize).Slice(PageSize, 1)
}

func TestDirectMap(t *testing.T) {
	defer SetPhysicalMemory(Memory())

	mem := NewPhysicalMemory(0x100000, 2*PageSize)
	SetPhysicalMemory(mem)

	virt := PhysToVirt(0x101000)
	if exp := VirtAddrStart | 0x101000; virt != exp {
		t.Fatalf("expected direct map address 0x%x; got 0x%x", exp, virt)
	}

	if got := VirtToPhys(virt); got != 0x101000 {
		t.Fatalf("expected VirtToPhys to return 0x101000; got 0x%x", got)
	}

	VirtBytes(virt, 4)[3] = 7
	if got := mem.Slice(0x101003, 1)[0]; got != 7 {
		t.Fatalf("expected direct map write to be visible in RAM; got %d", got)
	}
}

func TestSizePages(t *testing.T) {
	specs := []struct {
		size Size
		exp  uintptr
	}{
		{0, 0},
		{1, 1},
		{4 * Kb, 1},
		{4*Kb + 1, 2},
		{2 * Mb, 512},
	}

	for specIndex, spec := range specs {
		if got := spec.size.Pages(); got != spec.exp {
			t.Errorf("[spec %d] expected %d pages; got %d", specIndex, spec.exp, got)
		}
	}
}
