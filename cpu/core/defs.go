package core

import "encoding/binary"

// Fixed-width instruction format, 8 bytes:
//   [0]   opcode
//   [1]   reserved
//   [2:4] register enum, little-endian
//   [4:8] immediate, little-endian
// Instruction encoding is always little-endian, independent of the
// data byte order selected by the mode.
const InsnSize = 8

const (
	OP_NOP = 0x01 + iota
	OP_HALT
	OP_MOVI
	OP_ADD
	OP_LOAD
	OP_STORE
	OP_JMP
	OP_INT
	OP_IN
	OP_OUT
	OP_SYSCALL
	OP_SYSENTER
)

// Ins encodes a single instruction.
func Ins(op byte, reg int, imm uint32) []byte {
	buf := make([]byte, InsnSize)
	buf[0] = op
	binary.LittleEndian.PutUint16(buf[2:4], uint16(reg))
	binary.LittleEndian.PutUint32(buf[4:8], imm)
	return buf
}
