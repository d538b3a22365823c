package core

import (
	"encoding/binary"
	"testing"

	"github.com/steelhorn/steelhorn/arch"
	"github.com/steelhorn/steelhorn/cpu"
)

func makeCore(t testing.TB, a arch.Arch, m arch.Mode) *Core {
	t.Helper()
	eng, err := (&Builder{Arch: a, Mode: m}).New()
	if err != nil {
		t.Fatal(err)
	}
	return eng.(*Core)
}

func prog(ins ...[]byte) []byte {
	var p []byte
	for _, i := range ins {
		p = append(p, i...)
	}
	return p
}

func loadProg(t testing.TB, c *Core, addr uint64, p []byte) {
	t.Helper()
	if err := c.MemMap(addr, 0x1000, cpu.PROT_ALL); err != nil {
		t.Fatal(err)
	}
	if err := c.MemWrite(addr, p); err != nil {
		t.Fatal(err)
	}
}

func TestRun(t *testing.T) {
	c := makeCore(t, arch.X86, arch.MODE_64)
	if err := c.MemMap(0x2000, 0x1000, cpu.PROT_READ|cpu.PROT_WRITE); err != nil {
		t.Fatal(err)
	}
	loadProg(t, c, 0x1000, prog(
		Ins(OP_MOVI, arch.X86_REG_RAX, 5),
		Ins(OP_ADD, arch.X86_REG_RAX, 3),
		Ins(OP_STORE, arch.X86_REG_RAX, 0x2000),
		Ins(OP_LOAD, arch.X86_REG_RBX, 0x2000),
		Ins(OP_HALT, 0, 0),
	))
	if err := c.Start(0x1000, 0, 0, 0); err != nil {
		t.Fatal(err)
	}
	if val, _ := c.RegRead(arch.X86_REG_RAX); val != 8 {
		t.Fatalf("rax = %d, expecting 8", val)
	}
	if val, _ := c.RegRead(arch.X86_REG_RBX); val != 8 {
		t.Fatalf("rbx = %d, expecting 8", val)
	}
	mem := make([]byte, 4)
	if err := c.MemReadInto(mem, 0x2000); err != nil {
		t.Fatal(err)
	}
	if binary.LittleEndian.Uint32(mem) != 8 {
		t.Fatalf("mem = %d, expecting 8", binary.LittleEndian.Uint32(mem))
	}
	if pc, _ := c.RegRead(arch.X86_REG_RIP); pc != 0x1000+5*InsnSize {
		t.Fatalf("pc = %#x after halt", pc)
	}
}

func TestRunUntil(t *testing.T) {
	c := makeCore(t, arch.ARM64, arch.LITTLE_ENDIAN)
	loadProg(t, c, 0x1000, prog(
		Ins(OP_MOVI, arch.ARM64_REG_X0, 1),
		Ins(OP_MOVI, arch.ARM64_REG_X1, 2),
		Ins(OP_MOVI, arch.ARM64_REG_X2, 3),
		Ins(OP_HALT, 0, 0),
	))
	if err := c.Start(0x1000, 0x1000+2*InsnSize, 0, 0); err != nil {
		t.Fatal(err)
	}
	if val, _ := c.RegRead(arch.ARM64_REG_X1); val != 2 {
		t.Fatalf("x1 = %d, expecting 2", val)
	}
	if val, _ := c.RegRead(arch.ARM64_REG_X2); val != 0 {
		t.Fatalf("x2 = %d, ran past the stop address", val)
	}
	if pc, _ := c.RegRead(arch.ARM64_REG_PC); pc != 0x1000+2*InsnSize {
		t.Fatalf("pc = %#x, expecting the stop address", pc)
	}
}

func TestRunCount(t *testing.T) {
	c := makeCore(t, arch.ARM64, arch.LITTLE_ENDIAN)
	loadProg(t, c, 0x1000, prog(
		Ins(OP_NOP, 0, 0),
		Ins(OP_NOP, 0, 0),
		Ins(OP_NOP, 0, 0),
		Ins(OP_HALT, 0, 0),
	))
	if err := c.Start(0x1000, 0, 0, 2); err != nil {
		t.Fatal(err)
	}
	if pc, _ := c.RegRead(arch.ARM64_REG_PC); pc != 0x1000+2*InsnSize {
		t.Fatalf("pc = %#x, expecting 2 executed instructions", pc)
	}
}

func TestRunHooks(t *testing.T) {
	c := makeCore(t, arch.ARM64, arch.LITTLE_ENDIAN)
	loadProg(t, c, 0x1000, prog(
		Ins(OP_MOVI, arch.ARM64_REG_X0, 1),
		Ins(OP_JMP, 0, 0x1000+2*InsnSize),
		Ins(OP_HALT, 0, 0),
	))
	var blocks, codes []uint64
	bh, err := c.HookAdd(cpu.HOOK_BLOCK, cpu.CodeCb(func(addr uint64, size uint32) {
		blocks = append(blocks, addr)
	}), 1, 0)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := c.HookAdd(cpu.HOOK_CODE, cpu.CodeCb(func(addr uint64, size uint32) {
		codes = append(codes, addr)
	}), 1, 0); err != nil {
		t.Fatal(err)
	}
	if err := c.Start(0x1000, 0, 0, 0); err != nil {
		t.Fatal(err)
	}
	if len(blocks) != 2 || blocks[0] != 0x1000 || blocks[1] != 0x1000+2*InsnSize {
		t.Fatalf("block hook addrs: %#v", blocks)
	}
	if len(codes) != 3 {
		t.Fatalf("code hook fired %d times, expecting 3", len(codes))
	}

	// removing the block hook must silence it
	if err := c.HookDel(bh); err != nil {
		t.Fatal(err)
	}
	blocks = nil
	if err := c.Start(0x1000, 0, 0, 0); err != nil {
		t.Fatal(err)
	}
	if len(blocks) != 0 {
		t.Fatal("removed block hook still fired")
	}
}

func TestRunIntr(t *testing.T) {
	c := makeCore(t, arch.ARM64, arch.LITTLE_ENDIAN)
	loadProg(t, c, 0x1000, prog(
		Ins(OP_INT, 0, 80),
		Ins(OP_HALT, 0, 0),
	))
	// with no interrupt hook the trap is an unhandled exception
	if err := c.Start(0x1000, 0, 0, 0); err != cpu.ERR_EXCEPTION {
		t.Fatalf("unhooked trap returned %v, expecting ERR_EXCEPTION", err)
	}
	var intno uint32
	if _, err := c.HookAdd(cpu.HOOK_INTR, cpu.IntrCb(func(n uint32) {
		intno = n
	}), 1, 0); err != nil {
		t.Fatal(err)
	}
	if err := c.Start(0x1000, 0, 0, 0); err != nil {
		t.Fatal(err)
	}
	if intno != 80 {
		t.Fatalf("interrupt hook got %d, expecting 80", intno)
	}
}

func TestRunInvalid(t *testing.T) {
	c := makeCore(t, arch.ARM64, arch.LITTLE_ENDIAN)
	loadProg(t, c, 0x1000, prog(
		[]byte{0x7f, 0, 0, 0, 0, 0, 0, 0},
		Ins(OP_HALT, 0, 0),
	))
	if err := c.Start(0x1000, 0, 0, 0); err != cpu.ERR_INSN_INVALID {
		t.Fatalf("bad opcode returned %v, expecting ERR_INSN_INVALID", err)
	}
	// a handling hook skips the instruction
	if _, err := c.HookAdd(cpu.HOOK_INSN_INVALID, cpu.InsnInvalidCb(func() bool {
		return true
	}), 1, 0); err != nil {
		t.Fatal(err)
	}
	if err := c.Start(0x1000, 0, 0, 0); err != nil {
		t.Fatal(err)
	}
}

func TestRunFaultHook(t *testing.T) {
	c := makeCore(t, arch.ARM64, arch.LITTLE_ENDIAN)
	loadProg(t, c, 0x1000, prog(
		Ins(OP_LOAD, arch.ARM64_REG_X0, 0x8000),
		Ins(OP_HALT, 0, 0),
	))
	// unhandled faults report the access kind
	err := c.Start(0x1000, 0, 0, 0)
	if err != cpu.ERR_READ_UNMAPPED {
		t.Fatalf("unmapped load returned %v, expecting ERR_READ_UNMAPPED", err)
	}
	// a fault hook that maps the page lets the access retry
	var faultAddr uint64
	if _, err := c.HookAdd(cpu.HOOK_MEM_READ_UNMAPPED, cpu.MemCb(func(access int, addr uint64, size int, val int64) bool {
		faultAddr = addr
		c.MemMap(addr&^0xfff, 0x1000, cpu.PROT_ALL)
		c.MemWrite(addr, []byte{0x2a, 0, 0, 0})
		return true
	}), 1, 0); err != nil {
		t.Fatal(err)
	}
	if err := c.Start(0x1000, 0, 0, 0); err != nil {
		t.Fatal(err)
	}
	if faultAddr != 0x8000 {
		t.Fatalf("fault hook addr = %#x, expecting 0x8000", faultAddr)
	}
	if val, _ := c.RegRead(arch.ARM64_REG_X0); val != 0x2a {
		t.Fatalf("x0 = %d after handled fault, expecting 42", val)
	}
}

func TestRunReadHooks(t *testing.T) {
	c := makeCore(t, arch.ARM64, arch.LITTLE_ENDIAN)
	if err := c.MemMap(0x2000, 0x1000, cpu.PROT_READ|cpu.PROT_WRITE); err != nil {
		t.Fatal(err)
	}
	if err := c.MemWrite(0x2000, []byte{0x2a, 0, 0, 0}); err != nil {
		t.Fatal(err)
	}
	loadProg(t, c, 0x1000, prog(
		Ins(OP_LOAD, arch.ARM64_REG_X0, 0x2000),
		Ins(OP_STORE, arch.ARM64_REG_X0, 0x2004),
		Ins(OP_HALT, 0, 0),
	))
	var before, after, wrote []int64
	c.HookAdd(cpu.HOOK_MEM_READ, cpu.MemCb(func(access int, addr uint64, size int, val int64) bool {
		before = append(before, val)
		return false
	}), 1, 0)
	c.HookAdd(cpu.HOOK_MEM_READ_AFTER, cpu.MemCb(func(access int, addr uint64, size int, val int64) bool {
		after = append(after, val)
		return false
	}), 1, 0)
	c.HookAdd(cpu.HOOK_MEM_WRITE, cpu.MemCb(func(access int, addr uint64, size int, val int64) bool {
		wrote = append(wrote, val)
		return false
	}), 1, 0)
	if err := c.Start(0x1000, 0, 0, 0); err != nil {
		t.Fatal(err)
	}
	// the before hook sees no value, the after hook sees the loaded value
	if len(before) != 1 || before[0] != 0 {
		t.Fatalf("read hook values: %#v", before)
	}
	if len(after) != 1 || after[0] != 0x2a {
		t.Fatalf("read-after hook values: %#v", after)
	}
	if len(wrote) != 1 || wrote[0] != 0x2a {
		t.Fatalf("write hook values: %#v", wrote)
	}
}

func TestRunStopFromHook(t *testing.T) {
	c := makeCore(t, arch.ARM64, arch.LITTLE_ENDIAN)
	loadProg(t, c, 0x1000, prog(
		Ins(OP_MOVI, arch.ARM64_REG_X0, 1),
		Ins(OP_MOVI, arch.ARM64_REG_X1, 2),
		Ins(OP_HALT, 0, 0),
	))
	c.HookAdd(cpu.HOOK_CODE, cpu.CodeCb(func(addr uint64, size uint32) {
		if addr == 0x1000+InsnSize {
			c.Stop()
		}
	}), 1, 0)
	if err := c.Start(0x1000, 0, 0, 0); err != nil {
		t.Fatal(err)
	}
	if val, _ := c.RegRead(arch.ARM64_REG_X0); val != 1 {
		t.Fatalf("x0 = %d, expecting 1", val)
	}
	// the stop lands before the hooked instruction executes
	if val, _ := c.RegRead(arch.ARM64_REG_X1); val != 0 {
		t.Fatalf("x1 = %d, instruction ran after Stop", val)
	}
}

func TestRunRedirect(t *testing.T) {
	c := makeCore(t, arch.ARM64, arch.LITTLE_ENDIAN)
	loadProg(t, c, 0x1000, prog(
		Ins(OP_NOP, 0, 0),
		Ins(OP_MOVI, arch.ARM64_REG_X0, 1),
		Ins(OP_HALT, 0, 0),
		Ins(OP_MOVI, arch.ARM64_REG_X1, 2),
		Ins(OP_HALT, 0, 0),
	))
	// move the pc past the first halt when the nop retires
	redirected := false
	c.HookAdd(cpu.HOOK_CODE, cpu.CodeCb(func(addr uint64, size uint32) {
		if addr == 0x1000 && !redirected {
			redirected = true
			c.RegWrite(arch.ARM64_REG_PC, 0x1000+3*InsnSize)
		}
	}), 1, 0)
	if err := c.Start(0x1000, 0, 0, 0); err != nil {
		t.Fatal(err)
	}
	if val, _ := c.RegRead(arch.ARM64_REG_X0); val != 0 {
		t.Fatalf("x0 = %d, redirected branch still ran", val)
	}
	if val, _ := c.RegRead(arch.ARM64_REG_X1); val != 2 {
		t.Fatalf("x1 = %d, expecting 2", val)
	}
}

func TestRunTimeout(t *testing.T) {
	c := makeCore(t, arch.ARM64, arch.LITTLE_ENDIAN)
	loadProg(t, c, 0x1000, prog(
		Ins(OP_JMP, 0, 0x1000),
	))
	if err := c.Start(0x1000, 0, 5000, 0); err != nil {
		t.Fatal(err)
	}
	if !c.CheckTimeout() {
		t.Fatal("CheckTimeout() false after a timed-out run")
	}
}

func TestRunInsnHooks(t *testing.T) {
	c := makeCore(t, arch.X86, arch.MODE_64)
	loadProg(t, c, 0x1000, prog(
		Ins(OP_IN, arch.X86_REG_RAX, 3),
		Ins(OP_OUT, arch.X86_REG_RAX, 4),
		Ins(OP_SYSCALL, 0, 0),
		Ins(OP_HALT, 0, 0),
	))
	var outPort, outVal uint32
	sys := false
	c.HookAdd(cpu.HOOK_INSN, cpu.InsnInCb(func(port uint32, size int) uint32 {
		return port * 2
	}), 1, 0, cpu.INSN_IN)
	c.HookAdd(cpu.HOOK_INSN, cpu.InsnOutCb(func(port uint32, size int, val uint32) {
		outPort, outVal = port, val
	}), 1, 0, cpu.INSN_OUT)
	c.HookAdd(cpu.HOOK_INSN, cpu.InsnSysCb(func() {
		sys = true
	}), 1, 0, cpu.INSN_SYSCALL)
	if err := c.Start(0x1000, 0, 0, 0); err != nil {
		t.Fatal(err)
	}
	if val, _ := c.RegRead(arch.X86_REG_RAX); val != 6 {
		t.Fatalf("rax = %d, expecting the in hook result", val)
	}
	if outPort != 4 || outVal != 6 {
		t.Fatalf("out hook got port=%d val=%d", outPort, outVal)
	}
	if !sys {
		t.Fatal("syscall hook did not fire")
	}
}

func TestRunInsnHooksNonX86(t *testing.T) {
	c := makeCore(t, arch.ARM64, arch.LITTLE_ENDIAN)
	// port io hooks are x86 only
	if _, err := c.HookAdd(cpu.HOOK_INSN, cpu.InsnInCb(func(port uint32, size int) uint32 {
		return 0
	}), 1, 0, cpu.INSN_IN); err != cpu.ERR_HOOK {
		t.Fatalf("HookAdd(HOOK_INSN) returned %v, expecting ERR_HOOK", err)
	}
	// and the port io opcodes decode as invalid off x86
	loadProg(t, c, 0x1000, prog(
		Ins(OP_IN, arch.ARM64_REG_X0, 3),
	))
	if err := c.Start(0x1000, 0, 0, 0); err != cpu.ERR_INSN_INVALID {
		t.Fatalf("in opcode returned %v, expecting ERR_INSN_INVALID", err)
	}
}

func TestRunSyscallNoHook(t *testing.T) {
	c := makeCore(t, arch.X86, arch.MODE_64)
	loadProg(t, c, 0x1000, prog(
		Ins(OP_SYSCALL, 0, 0),
	))
	if err := c.Start(0x1000, 0, 0, 0); err != cpu.ERR_EXCEPTION {
		t.Fatalf("unhooked syscall returned %v, expecting ERR_EXCEPTION", err)
	}
}

func TestCoreContext(t *testing.T) {
	c := makeCore(t, arch.ARM64, arch.LITTLE_ENDIAN)
	ctx, err := c.ContextAlloc()
	if err != nil {
		t.Fatal(err)
	}
	c.RegWrite(arch.ARM64_REG_X0, 7)
	if err := c.ContextSave(ctx); err != nil {
		t.Fatal(err)
	}
	c.RegWrite(arch.ARM64_REG_X0, 9)
	if err := c.ContextRestore(ctx); err != nil {
		t.Fatal(err)
	}
	if val, _ := c.RegRead(arch.ARM64_REG_X0); val != 7 {
		t.Fatalf("x0 = %d after restore, expecting 7", val)
	}

	// a context from a different arch/mode is rejected
	c2 := makeCore(t, arch.X86, arch.MODE_64)
	if err := c2.ContextRestore(ctx); err != cpu.ERR_ARG {
		t.Fatalf("cross-arch restore returned %v, expecting ERR_ARG", err)
	}

	// restore of a never-saved context is rejected
	empty, _ := c.ContextAlloc()
	if err := c.ContextRestore(empty); err != cpu.ERR_ARG {
		t.Fatalf("unsaved restore returned %v, expecting ERR_ARG", err)
	}

	if err := ctx.Free(); err != nil {
		t.Fatal(err)
	}
	if err := ctx.Free(); err != cpu.ERR_HANDLE {
		t.Fatalf("double free returned %v, expecting ERR_HANDLE", err)
	}
	if err := c.ContextRestore(ctx); err != cpu.ERR_HANDLE {
		t.Fatalf("restore of freed context returned %v, expecting ERR_HANDLE", err)
	}
}

func TestCoreClose(t *testing.T) {
	c := makeCore(t, arch.ARM64, arch.LITTLE_ENDIAN)
	if err := c.Close(); err != nil {
		t.Fatal(err)
	}
	if err := c.Close(); err != cpu.ERR_HANDLE {
		t.Fatalf("double close returned %v, expecting ERR_HANDLE", err)
	}
	if err := c.MemMap(0x1000, 0x1000, cpu.PROT_ALL); err != cpu.ERR_HANDLE {
		t.Fatalf("MemMap on closed engine returned %v, expecting ERR_HANDLE", err)
	}
	if err := c.Start(0x1000, 0, 0, 0); err != cpu.ERR_HANDLE {
		t.Fatalf("Start on closed engine returned %v, expecting ERR_HANDLE", err)
	}
}

func TestCoreQuery(t *testing.T) {
	c := makeCore(t, arch.ARM64, arch.LITTLE_ENDIAN)
	if val, err := c.Query(cpu.QUERY_ARCH); err != nil || val != uint64(arch.ARM64) {
		t.Fatalf("QUERY_ARCH = %d, %v", val, err)
	}
	if val, err := c.Query(cpu.QUERY_PAGE_SIZE); err != nil || val != 0x1000 {
		t.Fatalf("QUERY_PAGE_SIZE = %d, %v", val, err)
	}
	if _, err := c.Query(cpu.Query(99)); err != cpu.ERR_ARG {
		t.Fatalf("bad query returned %v, expecting ERR_ARG", err)
	}
}

func TestCoreBadMode(t *testing.T) {
	if _, err := (&Builder{Arch: arch.X86, Mode: arch.LITTLE_ENDIAN}).New(); err == nil {
		t.Fatal("x86 without a width mode must not construct")
	}
	if _, err := (&Builder{Arch: arch.Arch(99), Mode: arch.LITTLE_ENDIAN}).New(); err == nil {
		t.Fatal("unknown arch must not construct")
	}
}
