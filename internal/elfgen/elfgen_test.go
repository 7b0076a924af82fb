package elfgen

import (
	"bytes"
	"debug/elf"
	"testing"
)

func TestImageBytes(t *testing.T) {
	img := Image{
		Entry:       0x401000,
		HeaderVaddr: 0x400000,
		Segments: []Segment{
			{Vaddr: 0x401000, Data: []byte{0x90, 0x90, 0xc3}, Flags: elf.PF_R | elf.PF_X},
			{Vaddr: 0x402010, Data: []byte("data"), MemSize: 0x2000, Flags: elf.PF_R | elf.PF_W},
		},
	}

	data := img.Bytes()
	f, err := elf.NewFile(bytes.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}

	if f.Class != elf.ELFCLASS64 || f.Machine != elf.EM_X86_64 || f.Type != elf.ET_EXEC {
		t.Fatalf("unexpected header: class=%v machine=%v type=%v", f.Class, f.Machine, f.Type)
	}

	if f.Entry != img.Entry {
		t.Errorf("expected entry 0x%x; got 0x%x", img.Entry, f.Entry)
	}

	if len(f.Progs) != 3 {
		t.Fatalf("expected 3 program headers; got %d", len(f.Progs))
	}

	if hdr := f.Progs[0]; hdr.Off != 0 || hdr.Vaddr != 0x400000 || hdr.Filesz != 64+3*56 {
		t.Errorf("unexpected header segment: %+v", hdr.ProgHeader)
	}

	for i, seg := range img.Segments {
		prog := f.Progs[i+1]
		if prog.Type != elf.PT_LOAD {
			t.Errorf("[segment %d] expected PT_LOAD; got %v", i, prog.Type)
		}

		if prog.Off%0x1000 != prog.Vaddr%0x1000 {
			t.Errorf("[segment %d] offset 0x%x and vaddr 0x%x disagree modulo the page size", i, prog.Off, prog.Vaddr)
		}

		if got := data[prog.Off : prog.Off+prog.Filesz]; !bytes.Equal(got, seg.Data) {
			t.Errorf("[segment %d] expected contents %v; got %v", i, seg.Data, got)
		}
	}

	if got := f.Progs[2].Memsz; got != 0x2000 {
		t.Errorf("expected memsz 0x2000; got 0x%x", got)
	}
}

func TestInitProgram(t *testing.T) {
	img := InitProgram(0x401000, "hi\n", 3)
	if len(img.Segments) != 1 {
		t.Fatalf("expected a single segment; got %d", len(img.Segments))
	}

	code := img.Segments[0].Data
	if exp := 36 + 3; len(code) != exp {
		t.Fatalf("expected %d bytes of code; got %d", exp, len(code))
	}

	if string(code[36:]) != "hi\n" {
		t.Errorf("expected the message to follow the code; got %q", code[36:])
	}

	// lea rsi, [rip+19]
	if exp := []byte{0x48, 0x8d, 0x35, 19, 0, 0, 0}; !bytes.Equal(code[10:17], exp) {
		t.Errorf("expected lea encoding %x; got %x", exp, code[10:17])
	}

	// mov edi, 3
	if exp := []byte{0xbf, 3, 0, 0, 0}; !bytes.Equal(code[29:34], exp) {
		t.Errorf("expected exit status encoding %x; got %x", exp, code[29:34])
	}
}
