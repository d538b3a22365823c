package cpu

import "fmt"

// Errno is an engine error code. The zero value OK is never returned as an
// error; every other value implements error and passes through the binding
// layer unchanged.
type Errno int

const (
	OK Errno = iota
	ERR_NOMEM
	ERR_ARCH
	ERR_HANDLE
	ERR_MODE
	ERR_READ_UNMAPPED
	ERR_WRITE_UNMAPPED
	ERR_FETCH_UNMAPPED
	ERR_HOOK
	ERR_INSN_INVALID
	ERR_MAP
	ERR_WRITE_PROT
	ERR_READ_PROT
	ERR_FETCH_PROT
	ERR_ARG
	ERR_TIMEOUT
	ERR_EXCEPTION
	ERR_UNSUPPORTED
)

var errnoStrings = map[Errno]string{
	OK:                 "ok",
	ERR_NOMEM:          "out of memory",
	ERR_ARCH:           "invalid or unsupported architecture",
	ERR_HANDLE:         "invalid handle",
	ERR_MODE:           "invalid or missing mode",
	ERR_READ_UNMAPPED:  "read from unmapped memory",
	ERR_WRITE_UNMAPPED: "write to unmapped memory",
	ERR_FETCH_UNMAPPED: "fetch from unmapped memory",
	ERR_HOOK:           "invalid hook",
	ERR_INSN_INVALID:   "invalid instruction",
	ERR_MAP:            "invalid memory mapping",
	ERR_WRITE_PROT:     "write to write-protected memory",
	ERR_READ_PROT:      "read from read-protected memory",
	ERR_FETCH_PROT:     "fetch from non-executable memory",
	ERR_ARG:            "invalid argument",
	ERR_TIMEOUT:        "emulation timed out",
	ERR_EXCEPTION:      "unhandled CPU exception",
	ERR_UNSUPPORTED:    "unsupported operation",
}

func (e Errno) Error() string {
	if s, ok := errnoStrings[e]; ok {
		return s
	}
	return fmt.Sprintf("unknown error %d", int(e))
}

// MemError reports a faulting memory access with its access kind.
type MemError struct {
	Addr uint64
	Size int
	Enum int
}

func (m *MemError) Error() string {
	reason := "memory error"
	switch m.Enum {
	case MEM_WRITE_UNMAPPED:
		reason = "unmapped write"
	case MEM_READ_UNMAPPED:
		reason = "unmapped read"
	case MEM_FETCH_UNMAPPED:
		reason = "unmapped fetch"
	case MEM_WRITE_PROT:
		reason = "protected write"
	case MEM_READ_PROT:
		reason = "protected read"
	case MEM_FETCH_PROT:
		reason = "protected exec"
	}
	return fmt.Sprintf("%s at %#x(%d)", reason, m.Addr, m.Size)
}

// Errno maps the fault to the engine error code reported by Start.
func (m *MemError) Errno() Errno {
	switch m.Enum {
	case MEM_READ_UNMAPPED:
		return ERR_READ_UNMAPPED
	case MEM_WRITE_UNMAPPED:
		return ERR_WRITE_UNMAPPED
	case MEM_FETCH_UNMAPPED:
		return ERR_FETCH_UNMAPPED
	case MEM_READ_PROT:
		return ERR_READ_PROT
	case MEM_WRITE_PROT:
		return ERR_WRITE_PROT
	case MEM_FETCH_PROT:
		return ERR_FETCH_PROT
	}
	return ERR_MAP
}
