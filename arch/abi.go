package arch

import (
	"github.com/pkg/errors"
)

// ErrUnsupported marks an (arch, mode) combination a helper intentionally
// does not cover.
var ErrUnsupported = errors.New("unsupported for architecture")

// ABI resolves register roles and Linux calling-convention facts for one
// validated (arch, mode) pair. It is a pure value; construct with NewABI
// and share freely.
type ABI struct {
	arch Arch
	mode Mode
}

// NewABI validates the pair eagerly so role accessors never fail on
// enumeration or mode problems later.
func NewABI(a Arch, m Mode) (*ABI, error) {
	if err := Validate(a, m); err != nil {
		return nil, err
	}
	return &ABI{arch: a, mode: m}, nil
}

func (a *ABI) Arch() Arch { return a.arch }
func (a *ABI) Mode() Mode { return a.mode }
func (a *ABI) Bits() int  { return Bits(a.arch, a.mode) }

// PC returns the program counter register id.
func (a *ABI) PC() int {
	switch a.arch {
	case X86:
		if a.mode&MODE_64 != 0 {
			return X86_REG_RIP
		}
		return X86_REG_EIP
	case ARM:
		return ARM_REG_PC
	case ARM64:
		return ARM64_REG_PC
	case MIPS:
		return MIPS_REG_PC
	case SPARC:
		return SPARC_REG_PC
	case M68K:
		return M68K_REG_PC
	case PPC:
		return PPC_REG_PC
	case RISCV:
		return RISCV_REG_PC
	case S390X:
		return S390X_REG_PC
	case TRICORE:
		return TRICORE_REG_PC
	}
	return 0
}

// SP returns the stack pointer register id.
func (a *ABI) SP() int {
	switch a.arch {
	case X86:
		if a.mode&MODE_64 != 0 {
			return X86_REG_RSP
		}
		return X86_REG_ESP
	case ARM:
		return ARM_REG_SP
	case ARM64:
		return ARM64_REG_SP
	case MIPS:
		return MIPS_REG_SP
	case SPARC:
		return SPARC_REG_SP
	case M68K:
		return M68K_REG_SP
	case PPC:
		return PPC_REG_SP
	case RISCV:
		return RISCV_REG_SP
	case S390X:
		return S390X_REG_SP
	case TRICORE:
		return TRICORE_REG_SP
	}
	return 0
}

// syscall argument registers per the Linux syscall ABI; note x86-64 arg 3
// is R10 where the function-call convention uses RCX, because the syscall
// trap clobbers RCX
var syscallArgs = map[Arch][]int{
	X86:   {X86_REG_RDI, X86_REG_RSI, X86_REG_RDX, X86_REG_R10, X86_REG_R8, X86_REG_R9},
	ARM:   {ARM_REG_R0, ARM_REG_R1, ARM_REG_R2, ARM_REG_R3, ARM_REG_R4, ARM_REG_R5},
	ARM64: {ARM64_REG_X0, ARM64_REG_X1, ARM64_REG_X2, ARM64_REG_X3, ARM64_REG_X4, ARM64_REG_X5},
	MIPS:  {MIPS_REG_A0, MIPS_REG_A1, MIPS_REG_A2, MIPS_REG_A3},
	SPARC: {SPARC_REG_O0, SPARC_REG_O1, SPARC_REG_O2, SPARC_REG_O3, SPARC_REG_O4, SPARC_REG_O5},
	PPC:   {PPC_REG_R3, PPC_REG_R4, PPC_REG_R5, PPC_REG_R6, PPC_REG_R7, PPC_REG_R8},
	RISCV: {RISCV_REG_A0, RISCV_REG_A1, RISCV_REG_A2, RISCV_REG_A3, RISCV_REG_A4, RISCV_REG_A5},
}

// the int $0x80 convention; arg 5 is not implemented
var syscallArgs32 = []int{X86_REG_EBX, X86_REG_ECX, X86_REG_EDX, X86_REG_ESI, X86_REG_EDI}

// SyscallArgReg returns the register id carrying Linux syscall argument n
// (0-5) for the architecture.
func (a *ABI) SyscallArgReg(n int) (int, error) {
	if n < 0 || n > 5 {
		return 0, errors.Wrapf(ErrUnsupported, "syscall argument index %d out of range", n)
	}
	regs, ok := syscallArgs[a.arch]
	if a.arch == X86 && a.mode&MODE_64 == 0 {
		regs, ok = syscallArgs32, true
	}
	if !ok || n >= len(regs) {
		return 0, errors.Wrapf(ErrUnsupported, "syscall arg %d on %s", n, a.arch)
	}
	return regs[n], nil
}

// SyscallRetReg returns the register id carrying the Linux syscall return
// value.
func (a *ABI) SyscallRetReg() (int, error) {
	switch a.arch {
	case X86:
		if a.mode&MODE_64 != 0 {
			return X86_REG_RAX, nil
		}
		return X86_REG_EAX, nil
	case ARM:
		return ARM_REG_R0, nil
	case ARM64:
		return ARM64_REG_X0, nil
	case MIPS:
		return MIPS_REG_V0, nil
	case SPARC:
		return SPARC_REG_O0, nil
	case PPC:
		return PPC_REG_R3, nil
	case RISCV:
		return RISCV_REG_A0, nil
	}
	return 0, errors.Wrapf(ErrUnsupported, "syscall return on %s", a.arch)
}

// LinkReg returns the return-address register. It is defined for RISC-V
// only.
func (a *ABI) LinkReg() (int, error) {
	if a.arch == RISCV {
		return RISCV_REG_RA, nil
	}
	return 0, errors.Wrapf(ErrUnsupported, "link register on %s", a.arch)
}

// function-call integer argument registers, first three only
var funcArgs = map[Arch][]int{
	X86:   {X86_REG_RDI, X86_REG_RSI, X86_REG_RDX},
	ARM:   {ARM_REG_R0, ARM_REG_R1, ARM_REG_R2},
	ARM64: {ARM64_REG_X0, ARM64_REG_X1, ARM64_REG_X2},
	MIPS:  {MIPS_REG_A0, MIPS_REG_A1, MIPS_REG_A2},
	SPARC: {SPARC_REG_O0, SPARC_REG_O1, SPARC_REG_O2},
	PPC:   {PPC_REG_R3, PPC_REG_R4, PPC_REG_R5},
	RISCV: {RISCV_REG_A0, RISCV_REG_A1, RISCV_REG_A2},
}

// StackArgs reports whether function arguments live on the stack (the x86
// 32-bit convention: 32-bit words at SP+4, SP+8, SP+0xC).
func (a *ABI) StackArgs() bool {
	return a.arch == X86 && a.mode&MODE_64 == 0
}

// FuncArgReg returns the register id carrying function-call argument n
// (0-2). For stack-argument conventions use StackArgs and read memory
// instead.
func (a *ABI) FuncArgReg(n int) (int, error) {
	if n < 0 || n > 2 {
		return 0, errors.Wrapf(ErrUnsupported, "function argument index %d out of range", n)
	}
	if a.StackArgs() {
		return 0, errors.Wrap(ErrUnsupported, "x86-32 passes arguments on the stack")
	}
	regs, ok := funcArgs[a.arch]
	if !ok {
		return 0, errors.Wrapf(ErrUnsupported, "function arg %d on %s", n, a.arch)
	}
	return regs[n], nil
}
