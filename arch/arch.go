package arch

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

// Arch is the closed set of supported CPU architectures.
type Arch int

const (
	ARM Arch = 1 + iota
	ARM64
	MIPS
	X86
	PPC
	SPARC
	M68K
	RISCV
	S390X
	TRICORE
)

var archNames = map[Arch]string{
	ARM:     "arm",
	ARM64:   "arm64",
	MIPS:    "mips",
	X86:     "x86",
	PPC:     "ppc",
	SPARC:   "sparc",
	M68K:    "m68k",
	RISCV:   "riscv",
	S390X:   "s390x",
	TRICORE: "tricore",
}

func (a Arch) String() string {
	if s, ok := archNames[a]; ok {
		return s
	}
	return "invalid"
}

// Valid reports whether a is inside the closed enumeration.
func (a Arch) Valid() bool {
	_, ok := archNames[a]
	return ok
}

// Mode is a hardware mode bitmask fixed at engine creation.
type Mode int

const (
	LITTLE_ENDIAN Mode = 0
	MODE_16       Mode = 1 << 1
	MODE_32       Mode = 1 << 2
	MODE_64       Mode = 1 << 3
	BIG_ENDIAN    Mode = 1 << 30
)

// width bits; x86 must carry exactly one of these
const wordModes = MODE_16 | MODE_32 | MODE_64

var (
	ErrArch = errors.New("invalid architecture")
	ErrMode = errors.New("invalid or missing mode")
)

// Validate checks the (arch, mode) pair at construction time: a value
// outside the closed enumeration, or a missing width for an architecture
// whose register roles depend on it, is rejected here instead of deep
// inside an accessor.
func Validate(a Arch, m Mode) error {
	if !a.Valid() {
		return errors.Wrapf(ErrArch, "arch %d", int(a))
	}
	switch a {
	case X86:
		w := m & wordModes
		if w != MODE_32 && w != MODE_64 {
			return errors.Wrap(ErrMode, "x86 requires MODE_32 or MODE_64")
		}
	case MIPS, SPARC, PPC, RISCV:
		w := m & wordModes
		if w != 0 && w != MODE_32 && w != MODE_64 {
			return errors.Wrapf(ErrMode, "invalid width for %s", a)
		}
	default:
		if m&wordModes != 0 {
			return errors.Wrapf(ErrMode, "%s does not take a width mode", a)
		}
	}
	return nil
}

// Bits returns the register width for the pair. The pair must validate.
func Bits(a Arch, m Mode) int {
	switch a {
	case ARM, M68K, TRICORE:
		return 32
	case ARM64, S390X:
		return 64
	}
	if m&MODE_32 != 0 {
		return 32
	}
	return 64
}

// ByteOrder returns the data byte order selected by the mode.
func ByteOrder(m Mode) binary.ByteOrder {
	if m&BIG_ENDIAN != 0 {
		return binary.BigEndian
	}
	return binary.LittleEndian
}
