package core

import (
	"encoding/binary"
	"time"

	"github.com/steelhorn/steelhorn/arch"
	"github.com/steelhorn/steelhorn/cpu"
)

const defaultPageSize = 0x1000

// block hooks fire at most every blockInsns instructions on straight-line code
const blockInsns = 32

type Builder struct {
	Arch arch.Arch
	Mode arch.Mode
	// PageSize must be a power of two. Zero selects the default of 4096.
	PageSize uint64
}

func (b *Builder) New() (cpu.Engine, error) {
	abi, err := arch.NewABI(b.Arch, b.Mode)
	if err != nil {
		return nil, err
	}
	pageSize := b.PageSize
	if pageSize == 0 {
		pageSize = defaultPageSize
	} else if pageSize&(pageSize-1) != 0 {
		return nil, cpu.ERR_ARG
	}
	order := arch.ByteOrder(b.Mode)
	c := &Core{
		Regs:     NewRegs(uint(abi.Bits()), arch.Enums(b.Arch)),
		Hooks:    &Hooks{},
		abi:      abi,
		order:    order,
		pageSize: pageSize,
		sim:      NewMemSim(order, pageSize),
	}
	return c, nil
}

// Core is an interpreting CPU engine. It is not safe for concurrent use;
// hooks run on the thread blocked in Start.
type Core struct {
	*Regs
	*Hooks

	abi      *arch.ABI
	order    binary.ByteOrder
	pageSize uint64
	sim      *MemSim

	stopReq  bool
	timedOut bool
	closed   bool
}

func (c *Core) MemMap(addr, size uint64, prot int) error {
	if c.closed {
		return cpu.ERR_HANDLE
	}
	if !aligned(addr, size, c.pageSize) {
		return cpu.ERR_ARG
	}
	return c.sim.Map(addr, size, prot, nil)
}

func (c *Core) MemMapPtr(addr, size uint64, prot int, p []byte) error {
	if c.closed {
		return cpu.ERR_HANDLE
	}
	if !aligned(addr, size, c.pageSize) || uint64(len(p)) < size {
		return cpu.ERR_ARG
	}
	return c.sim.Map(addr, size, prot, p)
}

func (c *Core) MemProtect(addr, size uint64, prot int) error {
	if c.closed {
		return cpu.ERR_HANDLE
	}
	if !aligned(addr, size, c.pageSize) {
		return cpu.ERR_ARG
	}
	if mapped, _ := c.sim.RangeValid(addr, size, 0); !mapped {
		return cpu.ERR_NOMEM
	}
	c.sim.Prot(addr, size, prot)
	return nil
}

func (c *Core) MemUnmap(addr, size uint64) error {
	if c.closed {
		return cpu.ERR_HANDLE
	}
	if !aligned(addr, size, c.pageSize) {
		return cpu.ERR_ARG
	}
	if mapped, _ := c.sim.RangeValid(addr, size, 0); !mapped {
		return cpu.ERR_NOMEM
	}
	c.sim.Unmap(addr, size)
	return nil
}

func (c *Core) MemRegions() ([]cpu.MemRegion, error) {
	if c.closed {
		return nil, cpu.ERR_HANDLE
	}
	return c.sim.Regions(), nil
}

func (c *Core) MmioMap(addr, size uint64, read cpu.MmioRead, write cpu.MmioWrite) error {
	if c.closed {
		return cpu.ERR_HANDLE
	}
	if !aligned(addr, size, c.pageSize) {
		return cpu.ERR_ARG
	}
	return c.sim.MapMmio(addr, size, read, write)
}

// MemReadInto and MemWrite are the host-side IO path. They require the
// range to be mapped but ignore protections and skip memory hooks; MMIO
// regions still route through their callbacks.

func (c *Core) MemReadInto(p []byte, addr uint64) error {
	if c.closed {
		return cpu.ERR_HANDLE
	}
	if err := c.sim.Read(addr, p, 0); err != nil {
		if merr, ok := err.(*cpu.MemError); ok {
			return merr.Errno()
		}
		return err
	}
	return nil
}

func (c *Core) MemWrite(addr uint64, p []byte) error {
	if c.closed {
		return cpu.ERR_HANDLE
	}
	if err := c.sim.Write(addr, p, 0); err != nil {
		if merr, ok := err.(*cpu.MemError); ok {
			return merr.Errno()
		}
		return err
	}
	return nil
}

func (c *Core) HookAdd(htype int, cb interface{}, begin, end uint64, extra ...int) (cpu.Hook, error) {
	if c.closed {
		return nil, cpu.ERR_HANDLE
	}
	if htype&cpu.HOOK_INSN != 0 && c.abi.Arch() != arch.X86 {
		return nil, cpu.ERR_HOOK
	}
	return c.Hooks.Add(htype, cb, begin, end, extra...)
}

func (c *Core) HookDel(h cpu.Hook) error {
	if c.closed {
		return cpu.ERR_HANDLE
	}
	return c.Hooks.Del(h)
}

type coreContext struct {
	regs  *regState
	arch  arch.Arch
	mode  arch.Mode
	freed bool
}

func (ctx *coreContext) Free() error {
	if ctx.freed {
		return cpu.ERR_HANDLE
	}
	ctx.freed = true
	ctx.regs = nil
	return nil
}

func (c *Core) ContextAlloc() (cpu.Context, error) {
	if c.closed {
		return nil, cpu.ERR_HANDLE
	}
	return &coreContext{arch: c.abi.Arch(), mode: c.abi.Mode()}, nil
}

func (c *Core) ContextSave(ctx cpu.Context) error {
	if c.closed {
		return cpu.ERR_HANDLE
	}
	cc, ok := ctx.(*coreContext)
	if !ok || cc.freed {
		return cpu.ERR_HANDLE
	}
	if cc.arch != c.abi.Arch() || cc.mode != c.abi.Mode() {
		return cpu.ERR_ARG
	}
	cc.regs = c.Regs.save()
	return nil
}

func (c *Core) ContextRestore(ctx cpu.Context) error {
	if c.closed {
		return cpu.ERR_HANDLE
	}
	cc, ok := ctx.(*coreContext)
	if !ok || cc.freed {
		return cpu.ERR_HANDLE
	}
	if cc.regs == nil || cc.arch != c.abi.Arch() || cc.mode != c.abi.Mode() {
		return cpu.ERR_ARG
	}
	c.Regs.restore(cc.regs)
	return nil
}

func (c *Core) Stop() error {
	if c.closed {
		return cpu.ERR_HANDLE
	}
	c.stopReq = true
	return nil
}

func (c *Core) CheckTimeout() bool {
	return c.timedOut
}

func (c *Core) Query(q cpu.Query) (uint64, error) {
	if c.closed {
		return 0, cpu.ERR_HANDLE
	}
	switch q {
	case cpu.QUERY_ARCH:
		return uint64(c.abi.Arch()), nil
	case cpu.QUERY_MODE:
		return uint64(c.abi.Mode()), nil
	case cpu.QUERY_PAGE_SIZE:
		return c.pageSize, nil
	}
	return 0, cpu.ERR_ARG
}

func (c *Core) TestAndSetDirty(addr uint64) (bool, error) {
	if c.closed {
		return false, cpu.ERR_HANDLE
	}
	return c.sim.TestAndSetDirty(addr)
}

func (c *Core) ResetDirty(addr uint64) error {
	if c.closed {
		return cpu.ERR_HANDLE
	}
	return c.sim.ResetDirty(addr)
}

func (c *Core) RealSize(addr uint64) (uint64, error) {
	if c.closed {
		return 0, cpu.ERR_HANDLE
	}
	return c.sim.RealSize(addr), nil
}

func (c *Core) Close() error {
	if c.closed {
		return cpu.ERR_HANDLE
	}
	c.closed = true
	c.sim = nil
	return nil
}

// fetch reads one instruction with exec permission, giving fault hooks
// one chance to map the page or fix protections and retry.
func (c *Core) fetch(pc uint64) ([]byte, error) {
	buf := make([]byte, InsnSize)
	for attempt := 0; ; attempt++ {
		err := c.sim.Read(pc, buf, cpu.PROT_EXEC)
		if err == nil {
			c.OnMem(cpu.MEM_FETCH, pc, InsnSize, 0)
			return buf, nil
		}
		merr, ok := err.(*cpu.MemError)
		if !ok {
			return nil, err
		}
		if attempt > 0 || !c.OnMem(merr.Enum, merr.Addr, merr.Size, 0) {
			return nil, merr.Errno()
		}
	}
}

func (c *Core) memReadUint(addr uint64, size int) (uint64, error) {
	c.OnMem(cpu.MEM_READ, addr, size, 0)
	buf := make([]byte, size)
	for attempt := 0; ; attempt++ {
		err := c.sim.Read(addr, buf, cpu.PROT_READ)
		if err == nil {
			break
		}
		merr, ok := err.(*cpu.MemError)
		if !ok {
			return 0, err
		}
		if attempt > 0 || !c.OnMem(merr.Enum, merr.Addr, merr.Size, 0) {
			return 0, merr.Errno()
		}
	}
	val, err := UnpackUint(c.order, size, buf)
	if err != nil {
		return 0, err
	}
	c.OnMem(cpu.MEM_READ_AFTER, addr, size, int64(val))
	return val, nil
}

func (c *Core) memWriteUint(addr uint64, size int, val uint64) error {
	c.OnMem(cpu.MEM_WRITE, addr, size, int64(val))
	buf, err := PackUint(c.order, size, nil, val)
	if err != nil {
		return err
	}
	for attempt := 0; ; attempt++ {
		err := c.sim.Write(addr, buf, cpu.PROT_WRITE)
		if err == nil {
			return nil
		}
		merr, ok := err.(*cpu.MemError)
		if !ok {
			return err
		}
		if attempt > 0 || !c.OnMem(merr.Enum, merr.Addr, merr.Size, int64(val)) {
			return merr.Errno()
		}
	}
}

// Start runs the interpreter at begin until the pc reaches until, the
// instruction count is exhausted, the timeout expires, a halt executes,
// or Stop is called from a hook. Stop and timeout take effect at block
// boundaries.
func (c *Core) Start(begin, until, timeout, count uint64) error {
	if c.closed {
		return cpu.ERR_HANDLE
	}
	c.stopReq = false
	c.timedOut = false
	var deadline time.Time
	if timeout > 0 {
		deadline = time.Now().Add(time.Duration(timeout) * time.Microsecond)
	}
	pcReg := c.abi.PC()
	if err := c.RegWrite(pcReg, begin); err != nil {
		return err
	}
	isX86 := c.abi.Arch() == arch.X86

	execInvalid := func() error {
		hooked, handled := c.OnInvalid()
		if !hooked || !handled {
			return cpu.ERR_INSN_INVALID
		}
		return nil
	}

	pc := begin
	var executed uint64
	blockLen := 0
	newBlock := true
	for {
		if pc == until {
			return nil
		}
		if newBlock {
			if c.stopReq {
				return nil
			}
			if !deadline.IsZero() && time.Now().After(deadline) {
				c.timedOut = true
				return nil
			}
			c.OnBlock(pc, 0)
			if c.stopReq {
				return nil
			}
			if rpc, _ := c.RegRead(pcReg); rpc != pc {
				pc = rpc
				continue
			}
			newBlock = false
			blockLen = 0
		}
		ins, err := c.fetch(pc)
		if err != nil {
			return err
		}
		c.OnCode(pc, InsnSize)
		if c.stopReq {
			// a code hook may stop before its instruction executes
			return nil
		}
		if rpc, _ := c.RegRead(pcReg); rpc != pc {
			pc = rpc
			newBlock = true
			continue
		}

		next := pc + InsnSize
		jump := false
		op := ins[0]
		reg := int(binary.LittleEndian.Uint16(ins[2:4]))
		imm := binary.LittleEndian.Uint32(ins[4:8])

		switch op {
		case OP_NOP:
		case OP_HALT:
			executed++
			c.RegWrite(pcReg, next)
			return nil
		case OP_MOVI:
			if err := c.RegWrite(reg, uint64(imm)); err != nil {
				return err
			}
		case OP_ADD:
			v, err := c.RegRead(reg)
			if err != nil {
				return err
			}
			c.RegWrite(reg, v+uint64(imm))
		case OP_LOAD:
			val, err := c.memReadUint(uint64(imm), 4)
			if err != nil {
				return err
			}
			if err := c.RegWrite(reg, val); err != nil {
				return err
			}
		case OP_STORE:
			v, err := c.RegRead(reg)
			if err != nil {
				return err
			}
			if err := c.memWriteUint(uint64(imm), 4, v); err != nil {
				return err
			}
		case OP_JMP:
			next = uint64(imm)
			jump = true
		case OP_INT:
			if !c.OnIntr(imm) {
				return cpu.ERR_EXCEPTION
			}
			jump = true
		case OP_IN:
			if !isX86 {
				if err := execInvalid(); err != nil {
					return err
				}
				break
			}
			val := c.OnInsnIn(pc, imm, 4)
			if err := c.RegWrite(reg, uint64(val)); err != nil {
				return err
			}
		case OP_OUT:
			if !isX86 {
				if err := execInvalid(); err != nil {
					return err
				}
				break
			}
			v, err := c.RegRead(reg)
			if err != nil {
				return err
			}
			c.OnInsnOut(pc, imm, 4, uint32(v))
		case OP_SYSCALL:
			if !isX86 {
				if err := execInvalid(); err != nil {
					return err
				}
				break
			}
			if !c.OnInsnSys(cpu.INSN_SYSCALL, pc) {
				return cpu.ERR_EXCEPTION
			}
			jump = true
		case OP_SYSENTER:
			if !isX86 {
				if err := execInvalid(); err != nil {
					return err
				}
				break
			}
			if !c.OnInsnSys(cpu.INSN_SYSENTER, pc) {
				return cpu.ERR_EXCEPTION
			}
			jump = true
		default:
			if err := execInvalid(); err != nil {
				return err
			}
		}

		executed++
		// hooks run inside the instruction may have redirected the pc
		if rpc, _ := c.RegRead(pcReg); rpc != pc {
			next = rpc
			jump = true
		}
		c.RegWrite(pcReg, next)
		pc = next
		if count > 0 && executed >= count {
			return nil
		}
		blockLen++
		if jump || blockLen >= blockInsns {
			newBlock = true
		}
	}
}
