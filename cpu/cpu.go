package cpu

// Hook is an opaque token issued by an engine for a registered callback.
type Hook interface{}

// Context is an opaque engine-owned CPU state capture. It is only valid
// against engines of the arch/mode it was allocated from.
type Context interface {
	Free() error
}

// MemRegion describes one mapped region as reported by the engine.
type MemRegion struct {
	Addr uint64
	Size uint64
	Prot int
}

// MmioRead is the engine-level read trampoline for an MMIO region. It
// receives the absolute access address and size and returns the value read.
type MmioRead func(addr uint64, size int) uint64

// MmioWrite is the engine-level write trampoline for an MMIO region.
type MmioWrite func(addr uint64, size int, value uint64)

// Engine is the call boundary between the binding layer and a CPU emulation
// engine. One engine is driven by one logical thread at a time; an engine
// invokes hooks strictly sequentially on the thread blocked in Start and
// never concurrently.
type Engine interface {
	// memory mapping
	MemMap(addr, size uint64, prot int) error
	// MemMapPtr backs the mapping with caller-provided storage. The caller
	// guarantees len(p) >= size.
	MemMapPtr(addr, size uint64, prot int, p []byte) error
	MemProtect(addr, size uint64, prot int) error
	MemUnmap(addr, size uint64) error
	MemRegions() ([]MemRegion, error)

	// MMIO
	MmioMap(addr, size uint64, read MmioRead, write MmioWrite) error

	// memory IO
	MemReadInto(p []byte, addr uint64) error
	MemWrite(addr uint64, p []byte) error

	// register IO; RegReadBuf/RegWriteBuf cover registers wider than 64 bits,
	// with the buffer length chosen by the caller per register class
	RegRead(reg int) (uint64, error)
	RegWrite(reg int, val uint64) error
	RegReadBuf(reg int, p []byte) error
	RegWriteBuf(reg int, p []byte) error
	RegReadI32(reg int) (int32, error)

	// hooks; extra carries the instruction discriminator for HOOK_INSN
	HookAdd(htype int, cb interface{}, begin, end uint64, extra ...int) (Hook, error)
	HookDel(h Hook) error

	// context save/restore
	ContextAlloc() (Context, error)
	ContextSave(ctx Context) error
	ContextRestore(ctx Context) error

	// execution; timeout is in microseconds, count limits executed
	// instructions, zero means unbounded for both
	Start(begin, until, timeout, count uint64) error
	Stop() error
	CheckTimeout() bool

	// introspection
	Query(q Query) (uint64, error)
	TestAndSetDirty(addr uint64) (bool, error)
	ResetDirty(addr uint64) error
	RealSize(addr uint64) (uint64, error)

	// cleanup
	Close() error
}

// Engine-level hook callback signatures, keyed by hook type:
//
//	HOOK_CODE, HOOK_BLOCK  func(addr uint64, size uint32)
//	HOOK_INTR              func(intno uint32)
//	HOOK_INSN_INVALID      func() bool
//	HOOK_MEM_*             func(access int, addr uint64, size int, value int64) bool
//	HOOK_INSN + INSN_IN    func(port uint32, size int) uint32
//	HOOK_INSN + INSN_OUT   func(port uint32, size int, value uint32)
//	HOOK_INSN + INSN_SYS*  func()
type (
	CodeCb        func(addr uint64, size uint32)
	IntrCb        func(intno uint32)
	InsnInvalidCb func() bool
	MemCb         func(access int, addr uint64, size int, value int64) bool
	InsnInCb      func(port uint32, size int) uint32
	InsnOutCb     func(port uint32, size int, value uint32)
	InsnSysCb     func()
)
