// Package emu runs user code on the hosted machine by interpreting a small
// subset of x86-64: register moves and arithmetic, rip-relative address
// loads, unconditional jumps and syscall. Instructions are fetched through
// the page table of the task, so user code only sees the pages the kernel
// mapped for it. Anything outside the subset traps as an invalid opcode.
package emu

import (
	"encoding/binary"

	"quados/kernel/gate"
	"quados/kernel/mm"
	"quados/kernel/mm/vmm"
)

// Page fault error code bits reported in Registers.Info.
const (
	pfPresent = 1 << 0
	pfUser    = 1 << 2
	pfFetch   = 1 << 4
)

const (
	rexW = 0x08
	rexR = 0x04
	rexB = 0x01
)

// Run resumes the user context described by regs until it traps and returns
// the reason. On a syscall RIP already points past the instruction; on a
// fault RIP points at the faulting instruction.
func Run(pt *vmm.PageTable, regs *gate.Registers) gate.ExitReason {
	m := machine{pt: pt, mem: pt.Memory(), regs: regs}
	for {
		if reason, trapped := m.step(); trapped {
			return reason
		}
	}
}

type machine struct {
	pt   *vmm.PageTable
	mem  *mm.PhysicalMemory
	regs *gate.Registers

	// pc is the address of the next byte to decode.
	pc uint64

	// faultCode is set when an instruction fetch fails.
	faultCode uint64
	faulted   bool
}

// reg returns the register encoded as index in ModRM/opcode fields.
func (m *machine) reg(index uint8) *uint64 {
	r := m.regs
	return [16]*uint64{
		&r.RAX, &r.RCX, &r.RDX, &r.RBX, &r.RSP, &r.RBP, &r.RSI, &r.RDI,
		&r.R8, &r.R9, &r.R10, &r.R11, &r.R12, &r.R13, &r.R14, &r.R15,
	}[index&0xf]
}

// next fetches the byte at pc and advances it. A failed fetch marks the
// machine as faulted and yields 0.
func (m *machine) next() byte {
	if m.faulted {
		return 0
	}

	page := mm.PageFromAddress(uintptr(m.pc))
	frame, flags, err := m.pt.Lookup(page)
	switch {
	case err != nil:
		m.faulted, m.faultCode = true, pfUser|pfFetch
		return 0
	case flags&vmm.FlagUserAccessible == 0, flags&vmm.FlagNoExecute != 0:
		m.faulted, m.faultCode = true, pfPresent|pfUser|pfFetch
		return 0
	}

	b := m.mem.Slice(frame.Address()+vmm.PageOffset(uintptr(m.pc)), 1)[0]
	m.pc++
	return b
}

func (m *machine) imm32() uint32 {
	var buf [4]byte
	for i := range buf {
		buf[i] = m.next()
	}
	return binary.LittleEndian.Uint32(buf[:])
}

func (m *machine) imm64() uint64 {
	lo := uint64(m.imm32())
	return lo | uint64(m.imm32())<<32
}

// step executes one instruction. It returns true along with the exit reason
// if the instruction trapped.
func (m *machine) step() (gate.ExitReason, bool) {
	saved := *m.regs
	start := saved.RIP
	m.pc = start

	var rex byte
	op := m.next()
	if op&0xf0 == 0x40 {
		rex, op = op, m.next()
	}

	reason, trapped := m.execute(rex, op)
	switch {
	case m.faulted:
		*m.regs = saved
		m.regs.Info = m.faultCode
		m.faulted = false
		return gate.ExitPageFault, true
	case trapped && reason != gate.ExitSyscall:
		m.regs.RIP = start
		return reason, true
	}

	m.regs.RIP = m.pc
	return reason, trapped
}

func (m *machine) execute(rex, op byte) (gate.ExitReason, bool) {
	wide := rex&rexW != 0

	switch {
	case m.faulted:
		return gate.ExitPageFault, true
	case op == 0x90: // nop
	case op >= 0xb8 && op <= 0xbf: // mov r, imm
		dst := m.reg(op - 0xb8 | (rex&rexB)<<3)
		if wide {
			*dst = m.imm64()
		} else {
			*dst = uint64(m.imm32())
		}
	case op == 0x01, op == 0x29, op == 0x31, op == 0x89: // add, sub, xor, mov r/m, r
		mod, regField, rm := m.modRM(rex)
		if mod != 3 {
			return m.invalidOpcode()
		}
		dst, src := m.reg(rm), *m.reg(regField)
		switch op {
		case 0x01:
			*dst += src
		case 0x29:
			*dst -= src
		case 0x31:
			*dst ^= src
		case 0x89:
			*dst = src
		}
		if !wide {
			*dst &= 0xffff_ffff
		}
	case op == 0xc7: // mov r/m, imm32
		mod, regField, rm := m.modRM(rex)
		if mod != 3 || regField&7 != 0 {
			return m.invalidOpcode()
		}
		imm := m.imm32()
		if wide {
			*m.reg(rm) = uint64(int64(int32(imm)))
		} else {
			*m.reg(rm) = uint64(imm)
		}
	case op == 0x8d: // lea r, [rip+disp32]
		mod, regField, rm := m.modRM(rex)
		if mod != 0 || rm&7 != 5 {
			return m.invalidOpcode()
		}
		disp := int64(int32(m.imm32()))
		*m.reg(regField) = uint64(int64(m.pc) + disp)
	case op == 0xeb: // jmp rel8
		rel := int64(int8(m.next()))
		m.pc = uint64(int64(m.pc) + rel)
	case op == 0xe9: // jmp rel32
		rel := int64(int32(m.imm32()))
		m.pc = uint64(int64(m.pc) + rel)
	case op == 0x0f:
		if m.next() != 0x05 {
			return m.invalidOpcode()
		}
		m.regs.RCX = m.pc
		m.regs.R11 = m.regs.RFlags
		m.regs.Info = m.regs.RAX
		return gate.ExitSyscall, true
	case op == 0xf4, op == 0xfa, op == 0xfb: // hlt, cli, sti
		m.regs.Info = 0
		return gate.ExitGeneralProtection, true
	default:
		return m.invalidOpcode()
	}

	return 0, false
}

// modRM decodes a ModRM byte extending the reg and rm fields with the REX
// prefix bits.
func (m *machine) modRM(rex byte) (mod, reg, rm uint8) {
	b := m.next()
	mod = b >> 6
	reg = (b>>3)&7 | (rex&rexR)<<1
	rm = b&7 | (rex&rexB)<<3
	return mod, reg, rm
}

func (m *machine) invalidOpcode() (gate.ExitReason, bool) {
	m.regs.Info = uint64(gate.InvalidOpcode)
	return gate.ExitIllegalInstruction, true
}
