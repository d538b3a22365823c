package arch

// Register identifiers are per-architecture numeric spaces; only the
// registers the ABI resolver, the reference engine, and the register dump
// need are enumerated here.

// x86, shared between 32- and 64-bit modes
const (
	X86_REG_EAX = 1 + iota
	X86_REG_EBX
	X86_REG_ECX
	X86_REG_EDX
	X86_REG_ESI
	X86_REG_EDI
	X86_REG_EBP
	X86_REG_ESP
	X86_REG_EIP
	X86_REG_EFLAGS
	X86_REG_RAX
	X86_REG_RBX
	X86_REG_RCX
	X86_REG_RDX
	X86_REG_RSI
	X86_REG_RDI
	X86_REG_RBP
	X86_REG_RSP
	X86_REG_RIP
	X86_REG_R8
	X86_REG_R9
	X86_REG_R10
	X86_REG_R11
	X86_REG_R12
	X86_REG_R13
	X86_REG_R14
	X86_REG_R15
	X86_REG_GDTR
	X86_REG_IDTR
	X86_REG_ST0 // ..ST7
)

const (
	X86_REG_ST7   = X86_REG_ST0 + 7
	X86_REG_XMM0  = X86_REG_ST7 + 1 // ..XMM31
	X86_REG_XMM31 = X86_REG_XMM0 + 31
	X86_REG_YMM0  = X86_REG_XMM31 + 1 // ..YMM31
	X86_REG_YMM31 = X86_REG_YMM0 + 31
	X86_REG_ZMM0  = X86_REG_YMM31 + 1 // ..ZMM31
	X86_REG_ZMM31 = X86_REG_ZMM0 + 31
)

// arm
const (
	ARM_REG_R0 = 1 + iota
	ARM_REG_R1
	ARM_REG_R2
	ARM_REG_R3
	ARM_REG_R4
	ARM_REG_R5
	ARM_REG_R6
	ARM_REG_R7
	ARM_REG_R8
	ARM_REG_R9
	ARM_REG_R10
	ARM_REG_R11
	ARM_REG_R12
	ARM_REG_SP
	ARM_REG_LR
	ARM_REG_PC
	ARM_REG_CPSR
)

// arm64
const (
	ARM64_REG_X0 = 1 + iota
	ARM64_REG_X1
	ARM64_REG_X2
	ARM64_REG_X3
	ARM64_REG_X4
	ARM64_REG_X5
	ARM64_REG_X6
	ARM64_REG_X7
	ARM64_REG_X29
	ARM64_REG_X30
	ARM64_REG_SP
	ARM64_REG_PC
	ARM64_REG_Q0 // ..Q31, aliased by V0..V31
)

const (
	ARM64_REG_Q31 = ARM64_REG_Q0 + 31
	ARM64_REG_V0  = ARM64_REG_Q0
	ARM64_REG_V31 = ARM64_REG_Q31
	ARM64_REG_LR  = ARM64_REG_X30
)

// mips
const (
	MIPS_REG_A0 = 1 + iota
	MIPS_REG_A1
	MIPS_REG_A2
	MIPS_REG_A3
	MIPS_REG_V0
	MIPS_REG_V1
	MIPS_REG_SP
	MIPS_REG_RA
	MIPS_REG_PC
)

// sparc
const (
	SPARC_REG_O0 = 1 + iota
	SPARC_REG_O1
	SPARC_REG_O2
	SPARC_REG_O3
	SPARC_REG_O4
	SPARC_REG_O5
	SPARC_REG_O6
	SPARC_REG_O7
	SPARC_REG_PC
)

const SPARC_REG_SP = SPARC_REG_O6

// m68k
const (
	M68K_REG_D0 = 1 + iota
	M68K_REG_D1
	M68K_REG_A7
	M68K_REG_PC
)

const M68K_REG_SP = M68K_REG_A7

// ppc
const (
	PPC_REG_R1 = 1 + iota
	PPC_REG_R3
	PPC_REG_R4
	PPC_REG_R5
	PPC_REG_R6
	PPC_REG_R7
	PPC_REG_R8
	PPC_REG_LR
	PPC_REG_PC
)

const PPC_REG_SP = PPC_REG_R1

// riscv
const (
	RISCV_REG_RA = 1 + iota
	RISCV_REG_SP
	RISCV_REG_A0
	RISCV_REG_A1
	RISCV_REG_A2
	RISCV_REG_A3
	RISCV_REG_A4
	RISCV_REG_A5
	RISCV_REG_A6
	RISCV_REG_A7
	RISCV_REG_PC
)

// s390x
const (
	S390X_REG_R2 = 1 + iota
	S390X_REG_R3
	S390X_REG_R4
	S390X_REG_R5
	S390X_REG_R6
	S390X_REG_R7
	S390X_REG_R15
	S390X_REG_PC
)

const S390X_REG_SP = S390X_REG_R15

// tricore
const (
	TRICORE_REG_A10 = 1 + iota
	TRICORE_REG_PC
)

const TRICORE_REG_SP = TRICORE_REG_A10

var regNames = map[Arch]map[string]int{
	X86: {
		"eax": X86_REG_EAX, "ebx": X86_REG_EBX, "ecx": X86_REG_ECX,
		"edx": X86_REG_EDX, "esi": X86_REG_ESI, "edi": X86_REG_EDI,
		"ebp": X86_REG_EBP, "esp": X86_REG_ESP, "eip": X86_REG_EIP,
		"eflags": X86_REG_EFLAGS,
		"rax":    X86_REG_RAX, "rbx": X86_REG_RBX, "rcx": X86_REG_RCX,
		"rdx": X86_REG_RDX, "rsi": X86_REG_RSI, "rdi": X86_REG_RDI,
		"rbp": X86_REG_RBP, "rsp": X86_REG_RSP, "rip": X86_REG_RIP,
		"r8": X86_REG_R8, "r9": X86_REG_R9, "r10": X86_REG_R10,
		"r11": X86_REG_R11, "r12": X86_REG_R12, "r13": X86_REG_R13,
		"r14": X86_REG_R14, "r15": X86_REG_R15,
	},
	ARM: {
		"r0": ARM_REG_R0, "r1": ARM_REG_R1, "r2": ARM_REG_R2,
		"r3": ARM_REG_R3, "r4": ARM_REG_R4, "r5": ARM_REG_R5,
		"r6": ARM_REG_R6, "r7": ARM_REG_R7, "r8": ARM_REG_R8,
		"r9": ARM_REG_R9, "r10": ARM_REG_R10, "r11": ARM_REG_R11,
		"r12": ARM_REG_R12, "sp": ARM_REG_SP, "lr": ARM_REG_LR,
		"pc": ARM_REG_PC, "cpsr": ARM_REG_CPSR,
	},
	ARM64: {
		"x0": ARM64_REG_X0, "x1": ARM64_REG_X1, "x2": ARM64_REG_X2,
		"x3": ARM64_REG_X3, "x4": ARM64_REG_X4, "x5": ARM64_REG_X5,
		"x6": ARM64_REG_X6, "x7": ARM64_REG_X7, "x29": ARM64_REG_X29,
		"x30": ARM64_REG_X30, "sp": ARM64_REG_SP, "pc": ARM64_REG_PC,
	},
	MIPS: {
		"a0": MIPS_REG_A0, "a1": MIPS_REG_A1, "a2": MIPS_REG_A2,
		"a3": MIPS_REG_A3, "v0": MIPS_REG_V0, "v1": MIPS_REG_V1,
		"sp": MIPS_REG_SP, "ra": MIPS_REG_RA, "pc": MIPS_REG_PC,
	},
	SPARC: {
		"o0": SPARC_REG_O0, "o1": SPARC_REG_O1, "o2": SPARC_REG_O2,
		"o3": SPARC_REG_O3, "o4": SPARC_REG_O4, "o5": SPARC_REG_O5,
		"o6": SPARC_REG_O6, "o7": SPARC_REG_O7, "pc": SPARC_REG_PC,
	},
	M68K: {
		"d0": M68K_REG_D0, "d1": M68K_REG_D1,
		"a7": M68K_REG_A7, "pc": M68K_REG_PC,
	},
	PPC: {
		"r1": PPC_REG_R1, "r3": PPC_REG_R3, "r4": PPC_REG_R4,
		"r5": PPC_REG_R5, "r6": PPC_REG_R6, "r7": PPC_REG_R7,
		"r8": PPC_REG_R8, "lr": PPC_REG_LR, "pc": PPC_REG_PC,
	},
	RISCV: {
		"ra": RISCV_REG_RA, "sp": RISCV_REG_SP, "a0": RISCV_REG_A0,
		"a1": RISCV_REG_A1, "a2": RISCV_REG_A2, "a3": RISCV_REG_A3,
		"a4": RISCV_REG_A4, "a5": RISCV_REG_A5, "a6": RISCV_REG_A6,
		"a7": RISCV_REG_A7, "pc": RISCV_REG_PC,
	},
	S390X: {
		"r2": S390X_REG_R2, "r3": S390X_REG_R3, "r4": S390X_REG_R4,
		"r5": S390X_REG_R5, "r6": S390X_REG_R6, "r7": S390X_REG_R7,
		"r15": S390X_REG_R15, "pc": S390X_REG_PC,
	},
	TRICORE: {
		"a10": TRICORE_REG_A10, "pc": TRICORE_REG_PC,
	},
}

// RegNames returns the named 64-bit-or-smaller registers of an architecture.
func RegNames(a Arch) map[string]int {
	return regNames[a]
}

// Enums returns every register id an engine register file should back for
// the architecture, including the wide vector/descriptor registers.
func Enums(a Arch) []int {
	var enums []int
	for _, e := range regNames[a] {
		enums = append(enums, e)
	}
	switch a {
	case X86:
		for r := X86_REG_GDTR; r <= X86_REG_ZMM31; r++ {
			enums = append(enums, r)
		}
	case ARM64:
		for r := ARM64_REG_Q0; r <= ARM64_REG_Q31; r++ {
			enums = append(enums, r)
		}
	}
	return enums
}

// LongRegSize returns the buffer length in bytes for a register wider than
// 64 bits: 16 for 128-bit vectors, 32 for 256-bit, 64 for 512-bit, 10 for
// descriptor-table and extended registers. Registers outside these classes,
// or architectures without wide registers, report ok=false.
func LongRegSize(a Arch, reg int) (int, bool) {
	switch a {
	case X86:
		switch {
		case reg >= X86_REG_XMM0 && reg <= X86_REG_XMM31:
			return 16, true
		case reg >= X86_REG_YMM0 && reg <= X86_REG_YMM31:
			return 32, true
		case reg >= X86_REG_ZMM0 && reg <= X86_REG_ZMM31:
			return 64, true
		case reg == X86_REG_GDTR || reg == X86_REG_IDTR:
			return 10, true
		case reg >= X86_REG_ST0 && reg <= X86_REG_ST7:
			return 10, true
		}
	case ARM64:
		if reg >= ARM64_REG_Q0 && reg <= ARM64_REG_Q31 {
			return 16, true
		}
	}
	return 0, false
}
