package cpu

// hook types, combinable as a bitmask for memory hooks
const (
	// hook CPU interrupts
	HOOK_INTR = 1 << iota

	// hook one instruction (cpu-specific, see INSN_* discriminators)
	HOOK_INSN

	// hook each executed instruction
	HOOK_CODE

	// hook each executed basic block
	HOOK_BLOCK

	// hook invalid memory accesses
	HOOK_MEM_READ_UNMAPPED
	HOOK_MEM_WRITE_UNMAPPED
	HOOK_MEM_FETCH_UNMAPPED
	HOOK_MEM_READ_PROT
	HOOK_MEM_WRITE_PROT
	HOOK_MEM_FETCH_PROT

	// hook (before) each valid memory read/write/fetch
	HOOK_MEM_READ
	HOOK_MEM_WRITE
	HOOK_MEM_FETCH

	// hook memory reads after the value is available
	HOOK_MEM_READ_AFTER

	// hook undecodable instructions
	HOOK_INSN_INVALID
)

const (
	HOOK_MEM_UNMAPPED = HOOK_MEM_READ_UNMAPPED | HOOK_MEM_WRITE_UNMAPPED | HOOK_MEM_FETCH_UNMAPPED
	HOOK_MEM_PROT     = HOOK_MEM_READ_PROT | HOOK_MEM_WRITE_PROT | HOOK_MEM_FETCH_PROT
	HOOK_MEM_INVALID  = HOOK_MEM_UNMAPPED | HOOK_MEM_PROT
	HOOK_MEM_VALID    = HOOK_MEM_READ | HOOK_MEM_WRITE | HOOK_MEM_FETCH

	// every memory-access hook kind; add_mem_hook accepts subsets of
	// HOOK_MEM_ALL | HOOK_MEM_READ_AFTER only
	HOOK_MEM_ALL = HOOK_MEM_VALID | HOOK_MEM_INVALID
)

// memory access kinds passed to memory hook callbacks
const (
	MEM_READ = 16 + iota
	MEM_WRITE
	MEM_FETCH
	MEM_READ_UNMAPPED
	MEM_WRITE_UNMAPPED
	MEM_FETCH_UNMAPPED
	MEM_WRITE_PROT
	MEM_READ_PROT
	MEM_FETCH_PROT
	MEM_READ_AFTER
)

// memory protections
const (
	PROT_NONE  = 0
	PROT_READ  = 1
	PROT_WRITE = 2
	PROT_EXEC  = 4
	PROT_ALL   = 7
)

// HOOK_INSN discriminators
const (
	INSN_IN = 1 + iota
	INSN_OUT
	INSN_SYSCALL
	INSN_SYSENTER
)

// Query selects an engine property for Engine.Query.
type Query int

const (
	QUERY_MODE Query = 1 + iota
	QUERY_PAGE_SIZE
	QUERY_ARCH
)
