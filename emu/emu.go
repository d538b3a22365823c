package emu

import (
	"encoding/binary"

	"github.com/pkg/errors"

	"github.com/steelhorn/steelhorn/arch"
	"github.com/steelhorn/steelhorn/cpu"
	"github.com/steelhorn/steelhorn/cpu/core"
)

// Emu is one emulator instance. The struct owns the engine handle, the
// registered hook callbacks, and the MMIO callback scopes; every hook
// callback receives the same *Emu, so state set from one callback is
// visible to the next. One goroutine drives an Emu at a time.
type Emu struct {
	eng   cpu.Engine
	arch  arch.Arch
	abi   *arch.ABI
	order binary.ByteOrder
	bits  int
	bsz   int

	// owned is false for adopted engines, which outlive Close
	owned  bool
	closed bool

	hooks []*Hook
	mmio  []*mmioScope

	data    interface{}
	crashPC uint64
}

// New opens an emulator for the given architecture and mode.
func New(a arch.Arch, m arch.Mode) (*Emu, error) {
	return NewWithData(a, m, nil)
}

// NewWithData opens an emulator and attaches a user payload, retrievable
// from hook callbacks via Data.
func NewWithData(a arch.Arch, m arch.Mode, data interface{}) (*Emu, error) {
	abi, err := arch.NewABI(a, m)
	if err != nil {
		return nil, err
	}
	eng, err := (&core.Builder{Arch: a, Mode: m}).New()
	if err != nil {
		return nil, err
	}
	e := wrap(eng, a, abi)
	e.owned = true
	e.data = data
	return e, nil
}

// FromEngine adopts an engine opened elsewhere. The architecture is
// queried from the engine; the mode is not recoverable, so operations
// that depend on it fail with ERR_MODE. Close on an adopted handle
// releases the binding state but leaves the engine open.
func FromEngine(eng cpu.Engine) (*Emu, error) {
	if eng == nil {
		return nil, cpu.ERR_HANDLE
	}
	a, err := eng.Query(cpu.QUERY_ARCH)
	if err != nil {
		return nil, errors.Wrap(err, "engine arch query failed")
	}
	if !arch.Arch(a).Valid() {
		return nil, cpu.ERR_ARCH
	}
	return wrap(eng, arch.Arch(a), nil), nil
}

func wrap(eng cpu.Engine, a arch.Arch, abi *arch.ABI) *Emu {
	e := &Emu{
		eng:   eng,
		arch:  a,
		abi:   abi,
		order: binary.LittleEndian,
		bits:  64,
	}
	if abi != nil {
		e.order = arch.ByteOrder(abi.Mode())
		e.bits = abi.Bits()
	}
	e.bsz = e.bits / 8
	return e
}

// requireABI gates the mode-dependent helpers on adopted handles.
func (e *Emu) requireABI() (*arch.ABI, error) {
	if e.abi == nil {
		return nil, cpu.ERR_MODE
	}
	return e.abi, nil
}

func (e *Emu) Arch() arch.Arch {
	return e.arch
}

// Mode returns the hardware mode, or an error on an adopted handle.
func (e *Emu) Mode() (arch.Mode, error) {
	abi, err := e.requireABI()
	if err != nil {
		return 0, err
	}
	return abi.Mode(), nil
}

func (e *Emu) Bits() int {
	return e.bits
}

func (e *Emu) ByteOrder() binary.ByteOrder {
	return e.order
}

// Data returns the payload attached at construction or with SetData.
func (e *Emu) Data() interface{} {
	return e.data
}

func (e *Emu) SetData(data interface{}) {
	e.data = data
}

// CrashPC returns the address recorded by SetCrashPC, for callers that
// log a faulting pc out of band of the error return.
func (e *Emu) CrashPC() uint64 {
	return e.crashPC
}

func (e *Emu) SetCrashPC(pc uint64) {
	e.crashPC = pc
}

// Close releases the handle. The engine itself is closed exactly once,
// and only for owned handles; any call after the first returns
// ERR_HANDLE, as does every other operation on a closed handle.
func (e *Emu) Close() error {
	if e.closed {
		return cpu.ERR_HANDLE
	}
	e.closed = true
	e.hooks = nil
	e.mmio = nil
	if e.owned {
		return e.eng.Close()
	}
	return nil
}

func (e *Emu) MemMap(addr, size uint64, prot int) error {
	if e.closed {
		return cpu.ERR_HANDLE
	}
	return e.eng.MemMap(addr, size, prot)
}

// MemMapPtr maps a region backed by caller-owned memory. The caller
// keeps p alive and correctly sized for the mapping lifetime.
func (e *Emu) MemMapPtr(addr, size uint64, prot int, p []byte) error {
	if e.closed {
		return cpu.ERR_HANDLE
	}
	return e.eng.MemMapPtr(addr, size, prot, p)
}

func (e *Emu) MemProtect(addr, size uint64, prot int) error {
	if e.closed {
		return cpu.ERR_HANDLE
	}
	return e.eng.MemProtect(addr, size, prot)
}

// MemUnmap removes the region from the engine and tears down any MMIO
// callback coverage it intersects. Scope bookkeeping happens regardless
// of the engine result, matching the handle's view of a partial unmap.
func (e *Emu) MemUnmap(addr, size uint64) error {
	if e.closed {
		return cpu.ERR_HANDLE
	}
	err := e.eng.MemUnmap(addr, size)
	e.mmioUnmap(addr, size)
	return err
}

func (e *Emu) MemRegions() ([]cpu.MemRegion, error) {
	if e.closed {
		return nil, cpu.ERR_HANDLE
	}
	return e.eng.MemRegions()
}

// MemRead returns a fresh slice with size bytes read from addr.
func (e *Emu) MemRead(addr, size uint64) ([]byte, error) {
	p := make([]byte, size)
	if err := e.MemReadInto(p, addr); err != nil {
		return nil, err
	}
	return p, nil
}

func (e *Emu) MemReadInto(p []byte, addr uint64) error {
	if e.closed {
		return cpu.ERR_HANDLE
	}
	return e.eng.MemReadInto(p, addr)
}

func (e *Emu) MemWrite(addr uint64, p []byte) error {
	if e.closed {
		return cpu.ERR_HANDLE
	}
	return e.eng.MemWrite(addr, p)
}

func (e *Emu) RegRead(reg int) (uint64, error) {
	if e.closed {
		return 0, cpu.ERR_HANDLE
	}
	return e.eng.RegRead(reg)
}

func (e *Emu) RegWrite(reg int, val uint64) error {
	if e.closed {
		return cpu.ERR_HANDLE
	}
	return e.eng.RegWrite(reg, val)
}

func (e *Emu) RegReadI32(reg int) (int32, error) {
	if e.closed {
		return 0, cpu.ERR_HANDLE
	}
	return e.eng.RegReadI32(reg)
}

// RegReadLong reads a register wider than 64 bits into a fresh buffer
// sized by register class: 16 bytes for 128-bit vectors, 32 for 256-bit,
// 64 for 512-bit, 10 for descriptor tables and the x87 stack. A register
// outside these classes is ERR_ARG; an architecture without wide
// registers is ERR_ARCH.
func (e *Emu) RegReadLong(reg int) ([]byte, error) {
	if e.closed {
		return nil, cpu.ERR_HANDLE
	}
	size, err := e.longSize(reg)
	if err != nil {
		return nil, err
	}
	p := make([]byte, size)
	if err := e.eng.RegReadBuf(reg, p); err != nil {
		return nil, err
	}
	return p, nil
}

// RegWriteLong writes a register wider than 64 bits. The buffer length
// must match the register class size exactly.
func (e *Emu) RegWriteLong(reg int, p []byte) error {
	if e.closed {
		return cpu.ERR_HANDLE
	}
	size, err := e.longSize(reg)
	if err != nil {
		return err
	}
	if len(p) != size {
		return cpu.ERR_ARG
	}
	return e.eng.RegWriteBuf(reg, p)
}

func (e *Emu) longSize(reg int) (int, error) {
	if e.arch != arch.X86 && e.arch != arch.ARM64 {
		return 0, cpu.ERR_ARCH
	}
	size, ok := arch.LongRegSize(e.arch, reg)
	if !ok {
		return 0, cpu.ERR_ARG
	}
	return size, nil
}

// PC reads the program counter.
func (e *Emu) PC() (uint64, error) {
	abi, err := e.requireABI()
	if err != nil {
		return 0, err
	}
	return e.RegRead(abi.PC())
}

// SetPC writes the program counter.
func (e *Emu) SetPC(val uint64) error {
	abi, err := e.requireABI()
	if err != nil {
		return err
	}
	return e.RegWrite(abi.PC(), val)
}

// Start runs the CPU from begin until the pc reaches until, the timeout
// in microseconds expires, or count instructions have executed; zero
// disables the timeout and count limits. Hooks fire on the calling
// goroutine while it is blocked here.
func (e *Emu) Start(begin, until, timeoutMicros, count uint64) error {
	if e.closed {
		return cpu.ERR_HANDLE
	}
	return e.eng.Start(begin, until, timeoutMicros, count)
}

// Stop requests a cooperative stop from within a hook; the engine
// honors it at the next block boundary.
func (e *Emu) Stop() error {
	if e.closed {
		return cpu.ERR_HANDLE
	}
	return e.eng.Stop()
}

// CheckTimeout reports whether the last Start stopped on its timeout.
func (e *Emu) CheckTimeout() bool {
	if e.closed {
		return false
	}
	return e.eng.CheckTimeout()
}

func (e *Emu) Query(q cpu.Query) (uint64, error) {
	if e.closed {
		return 0, cpu.ERR_HANDLE
	}
	return e.eng.Query(q)
}

// TestAndSetDirty marks the page containing addr dirty, reporting
// whether it already was.
func (e *Emu) TestAndSetDirty(addr uint64) (bool, error) {
	if e.closed {
		return false, cpu.ERR_HANDLE
	}
	return e.eng.TestAndSetDirty(addr)
}

func (e *Emu) ResetDirty(addr uint64) error {
	if e.closed {
		return cpu.ERR_HANDLE
	}
	return e.eng.ResetDirty(addr)
}

// RealSize returns the size of the mapped region containing addr.
func (e *Emu) RealSize(addr uint64) (uint64, error) {
	if e.closed {
		return 0, cpu.ERR_HANDLE
	}
	return e.eng.RealSize(addr)
}

// PackAddr packs n into buf at the handle's word size and byte order.
func (e *Emu) PackAddr(buf []byte, n uint64) ([]byte, error) {
	if len(buf) < e.bsz {
		return nil, errors.New("buffer too small")
	}
	if e.bits == 64 {
		e.order.PutUint64(buf[:e.bsz], n)
	} else {
		e.order.PutUint32(buf[:e.bsz], uint32(n))
	}
	return buf[:e.bsz], nil
}

func (e *Emu) UnpackAddr(buf []byte) uint64 {
	if e.bits == 64 {
		return e.order.Uint64(buf)
	}
	return uint64(e.order.Uint32(buf))
}

func (e *Emu) PopBytes(p []byte) error {
	abi, err := e.requireABI()
	if err != nil {
		return err
	}
	sp, err := e.RegRead(abi.SP())
	if err != nil {
		return err
	}
	if err := e.MemReadInto(p, sp); err != nil {
		return err
	}
	return e.RegWrite(abi.SP(), sp+uint64(len(p)))
}

func (e *Emu) PushBytes(p []byte) (uint64, error) {
	abi, err := e.requireABI()
	if err != nil {
		return 0, err
	}
	sp, err := e.RegRead(abi.SP())
	if err != nil {
		return 0, err
	}
	sp -= uint64(len(p))
	if err := e.RegWrite(abi.SP(), sp); err != nil {
		return 0, err
	}
	return sp, e.MemWrite(sp, p)
}

// Push writes a word to the stack and returns the new stack pointer.
func (e *Emu) Push(n uint64) (uint64, error) {
	var tmp [8]byte
	buf, _ := e.PackAddr(tmp[:], n)
	return e.PushBytes(buf)
}

// Pop reads a word off the stack and advances the stack pointer.
func (e *Emu) Pop() (uint64, error) {
	var buf [8]byte
	if err := e.PopBytes(buf[:e.bsz]); err != nil {
		return 0, err
	}
	return e.UnpackAddr(buf[:e.bsz]), nil
}

// RegDump returns the architecture's named registers and values in
// natural name order.
func (e *Emu) RegDump() ([]arch.RegVal, error) {
	if e.closed {
		return nil, cpu.ERR_HANDLE
	}
	return arch.RegDump(e.eng, e.arch)
}
