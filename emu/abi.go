package emu

import (
	"encoding/binary"

	"github.com/steelhorn/steelhorn/arch"
)

// SyscallArgReg returns the register id carrying Linux syscall argument
// n (0-5) for this handle's architecture. Note the x86-64 convention:
// argument 3 lives in R10, not RCX.
func (e *Emu) SyscallArgReg(n int) (int, error) {
	abi, err := e.requireABI()
	if err != nil {
		return 0, err
	}
	return abi.SyscallArgReg(n)
}

// SyscallRetReg returns the register id carrying the Linux syscall
// return value.
func (e *Emu) SyscallRetReg() (int, error) {
	abi, err := e.requireABI()
	if err != nil {
		return 0, err
	}
	return abi.SyscallRetReg()
}

// LinkReg returns the return-address register id (RISC-V only).
func (e *Emu) LinkReg() (int, error) {
	abi, err := e.requireABI()
	if err != nil {
		return 0, err
	}
	return abi.LinkReg()
}

// FunctionArg reads the value of function-call argument n (0-2) at the
// current CPU state. On x86-32 arguments are 32-bit words on the stack
// at SP+4, SP+8 and SP+0xC; everywhere else they are registers.
func (e *Emu) FunctionArg(n int) (uint64, error) {
	abi, err := e.requireABI()
	if err != nil {
		return 0, err
	}
	if abi.StackArgs() {
		if n < 0 || n > 2 {
			return 0, arch.ErrUnsupported
		}
		sp, err := e.RegRead(abi.SP())
		if err != nil {
			return 0, err
		}
		var buf [4]byte
		if err := e.MemReadInto(buf[:], sp+uint64(n+1)*4); err != nil {
			return 0, err
		}
		return uint64(binary.LittleEndian.Uint32(buf[:])), nil
	}
	reg, err := abi.FuncArgReg(n)
	if err != nil {
		return 0, err
	}
	return e.RegRead(reg)
}

// FuncReturnAddr reads the return address of the current function
// without changing CPU state: the top stack word on x86, the link
// register on RISC-V.
func (e *Emu) FuncReturnAddr() (uint64, error) {
	abi, err := e.requireABI()
	if err != nil {
		return 0, err
	}
	switch abi.Arch() {
	case arch.RISCV:
		ra, err := abi.LinkReg()
		if err != nil {
			return 0, err
		}
		return e.RegRead(ra)
	case arch.X86:
		sp, err := e.RegRead(abi.SP())
		if err != nil {
			return 0, err
		}
		buf, err := e.MemRead(sp, uint64(e.bsz))
		if err != nil {
			return 0, err
		}
		return e.UnpackAddr(buf), nil
	}
	return 0, arch.ErrUnsupported
}

// SimulateReturn performs a function return: on x86 it pops the return
// address into the pc, on RISC-V it moves the link register into the pc.
func (e *Emu) SimulateReturn() error {
	abi, err := e.requireABI()
	if err != nil {
		return err
	}
	switch abi.Arch() {
	case arch.RISCV:
		ra, err := abi.LinkReg()
		if err != nil {
			return err
		}
		pc, err := e.RegRead(ra)
		if err != nil {
			return err
		}
		return e.SetPC(pc)
	case arch.X86:
		addr, err := e.Pop()
		if err != nil {
			return err
		}
		return e.SetPC(addr)
	}
	return arch.ErrUnsupported
}
