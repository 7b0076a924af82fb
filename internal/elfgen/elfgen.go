// Package elfgen assembles minimal static x86-64 ELF executables. The images
// it produces are only meant to be loaded, not linked: they carry an ELF
// header, a program header table and the raw contents of each segment.
package elfgen

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
)

const (
	headerSize = 64
	phdrSize   = 56
	pageSize   = 0x1000
)

// Segment describes a PT_LOAD program header.
type Segment struct {
	// Vaddr is the virtual address the segment is loaded at.
	Vaddr uint64

	// Data holds the file-backed contents of the segment.
	Data []byte

	// MemSize is the size of the segment in memory. Bytes past len(Data)
	// are zero-filled by the loader. A MemSize smaller than len(Data) is
	// raised to len(Data).
	MemSize uint64

	// Flags holds the segment permissions.
	Flags elf.ProgFlag
}

// Image describes an executable.
type Image struct {
	// Entry is the virtual address of the first instruction.
	Entry uint64

	// Segments lists the loadable segments in file order.
	Segments []Segment

	// HeaderVaddr, when non-zero, adds a read-only PT_LOAD segment that
	// maps the ELF and program headers at this address.
	HeaderVaddr uint64
}

// Bytes serializes the image.
func (img Image) Bytes() []byte {
	progCount := len(img.Segments)
	if img.HeaderVaddr != 0 {
		progCount++
	}

	tableEnd := uint64(headerSize + phdrSize*progCount)

	var progs []elf.Prog64
	if img.HeaderVaddr != 0 {
		progs = append(progs, elf.Prog64{
			Type:   uint32(elf.PT_LOAD),
			Flags:  uint32(elf.PF_R),
			Off:    0,
			Vaddr:  img.HeaderVaddr,
			Paddr:  img.HeaderVaddr,
			Filesz: tableEnd,
			Memsz:  tableEnd,
			Align:  pageSize,
		})
	}

	// Place every segment so that its file offset and virtual address
	// agree modulo the page size.
	offset := tableEnd
	offsets := make([]uint64, len(img.Segments))
	for i, seg := range img.Segments {
		offset += (seg.Vaddr - offset) % pageSize
		offsets[i] = offset

		memSize := seg.MemSize
		if memSize < uint64(len(seg.Data)) {
			memSize = uint64(len(seg.Data))
		}

		progs = append(progs, elf.Prog64{
			Type:   uint32(elf.PT_LOAD),
			Flags:  uint32(seg.Flags),
			Off:    offset,
			Vaddr:  seg.Vaddr,
			Paddr:  seg.Vaddr,
			Filesz: uint64(len(seg.Data)),
			Memsz:  memSize,
			Align:  pageSize,
		})
		offset += uint64(len(seg.Data))
	}

	var hdr elf.Header64
	copy(hdr.Ident[:], elf.ELFMAG)
	hdr.Ident[elf.EI_CLASS] = byte(elf.ELFCLASS64)
	hdr.Ident[elf.EI_DATA] = byte(elf.ELFDATA2LSB)
	hdr.Ident[elf.EI_VERSION] = byte(elf.EV_CURRENT)
	hdr.Ident[elf.EI_OSABI] = byte(elf.ELFOSABI_NONE)
	hdr.Type = uint16(elf.ET_EXEC)
	hdr.Machine = uint16(elf.EM_X86_64)
	hdr.Version = uint32(elf.EV_CURRENT)
	hdr.Entry = img.Entry
	hdr.Phoff = headerSize
	hdr.Ehsize = headerSize
	hdr.Phentsize = phdrSize
	hdr.Phnum = uint16(progCount)
	hdr.Shentsize = 64

	var buf bytes.Buffer
	_ = binary.Write(&buf, binary.LittleEndian, &hdr)
	for i := range progs {
		_ = binary.Write(&buf, binary.LittleEndian, &progs[i])
	}

	out := make([]byte, offset)
	copy(out, buf.Bytes())
	for i, seg := range img.Segments {
		copy(out[offsets[i]:], seg.Data)
	}

	return out
}

// InitProgram returns an image whose code writes msg to stdout and exits
// with status using the x86-64 Linux system call ABI:
//
//	mov eax, 1          ; write
//	mov edi, 1          ; stdout
//	lea rsi, [rip+msg]
//	mov edx, len(msg)
//	syscall
//	mov eax, 60         ; exit
//	mov edi, status
//	syscall
func InitProgram(entry uint64, msg string, status uint32) Image {
	const codeLen = 36

	var code bytes.Buffer
	movImm32 := func(opcode byte, imm uint32) {
		code.WriteByte(opcode)
		_ = binary.Write(&code, binary.LittleEndian, imm)
	}

	movImm32(0xb8, 1)
	movImm32(0xbf, 1)
	code.Write([]byte{0x48, 0x8d, 0x35})
	_ = binary.Write(&code, binary.LittleEndian, uint32(codeLen-code.Len()-4))
	movImm32(0xba, uint32(len(msg)))
	code.Write([]byte{0x0f, 0x05})
	movImm32(0xb8, 60)
	movImm32(0xbf, status)
	code.Write([]byte{0x0f, 0x05})
	code.WriteString(msg)

	return Image{
		Entry: entry,
		Segments: []Segment{
			{Vaddr: entry, Data: code.Bytes(), Flags: elf.PF_R | elf.PF_X},
		},
	}
}
