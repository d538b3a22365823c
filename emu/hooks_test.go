package emu

import (
	"testing"

	"github.com/steelhorn/steelhorn/arch"
	"github.com/steelhorn/steelhorn/cpu"
	"github.com/steelhorn/steelhorn/cpu/core"
)

func prog(ins ...[]byte) []byte {
	var p []byte
	for _, i := range ins {
		p = append(p, i...)
	}
	return p
}

func loadProg(t testing.TB, e *Emu, addr uint64, p []byte) {
	t.Helper()
	if err := e.MemMap(addr, 0x1000, cpu.PROT_ALL); err != nil {
		t.Fatal(err)
	}
	if err := e.MemWrite(addr, p); err != nil {
		t.Fatal(err)
	}
}

func TestEmuCodeHook(t *testing.T) {
	e, err := NewWithData(arch.ARM64, arch.LITTLE_ENDIAN, "tag")
	if err != nil {
		t.Fatal(err)
	}
	defer e.Close()
	loadProg(t, e, 0x1000, prog(
		core.Ins(core.OP_NOP, 0, 0),
		core.Ins(core.OP_NOP, 0, 0),
		core.Ins(core.OP_HALT, 0, 0),
	))
	var addrs []uint64
	h, err := e.AddCodeHook(1, 0, func(inner *Emu, addr uint64, size uint32) {
		if inner != e {
			t.Error("hook called with a different handle")
		}
		if inner.Data() != "tag" {
			t.Error("user data not visible from hook")
		}
		addrs = append(addrs, addr)
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := e.Start(0x1000, 0, 0, 0); err != nil {
		t.Fatal(err)
	}
	if len(addrs) != 3 || addrs[0] != 0x1000 || addrs[2] != 0x1000+2*core.InsnSize {
		t.Fatalf("code hook addrs: %#x", addrs)
	}

	if err := e.RemoveHook(h); err != nil {
		t.Fatal(err)
	}
	addrs = nil
	if err := e.Start(0x1000, 0, 0, 0); err != nil {
		t.Fatal(err)
	}
	if len(addrs) != 0 {
		t.Fatal("removed hook still fired")
	}
	// removing again, or removing a hook that was never added, is a no-op
	if err := e.RemoveHook(h); err != nil {
		t.Fatal(err)
	}
	if err := e.RemoveHook(&Hook{}); err != nil {
		t.Fatal(err)
	}
}

func TestEmuStopFromHook(t *testing.T) {
	e := mk(t, arch.ARM64, arch.LITTLE_ENDIAN)
	defer e.Close()
	loadProg(t, e, 0x1000, prog(
		core.Ins(core.OP_MOVI, arch.ARM64_REG_X0, 1),
		core.Ins(core.OP_MOVI, arch.ARM64_REG_X1, 2),
		core.Ins(core.OP_HALT, 0, 0),
	))
	if _, err := e.AddCodeHook(0x1000+core.InsnSize, 0x1000+core.InsnSize, func(e *Emu, addr uint64, size uint32) {
		e.Stop()
	}); err != nil {
		t.Fatal(err)
	}
	if err := e.Start(0x1000, 0, 0, 0); err != nil {
		t.Fatal(err)
	}
	if val, _ := e.RegRead(arch.ARM64_REG_X0); val != 1 {
		t.Fatalf("x0 = %d, expecting 1", val)
	}
	if val, _ := e.RegRead(arch.ARM64_REG_X1); val != 0 {
		t.Fatal("stopped instruction still executed")
	}
}

func TestEmuIntrHook(t *testing.T) {
	e := mk(t, arch.ARM64, arch.LITTLE_ENDIAN)
	defer e.Close()
	loadProg(t, e, 0x1000, prog(
		core.Ins(core.OP_INT, 0, 80),
		core.Ins(core.OP_HALT, 0, 0),
	))
	var got uint32
	if _, err := e.AddIntrHook(func(e *Emu, intno uint32) {
		got = intno
	}); err != nil {
		t.Fatal(err)
	}
	if err := e.Start(0x1000, 0, 0, 0); err != nil {
		t.Fatal(err)
	}
	if got != 80 {
		t.Fatalf("intno = %d, expecting 80", got)
	}
}

func TestEmuMemFaultHook(t *testing.T) {
	e := mk(t, arch.ARM64, arch.LITTLE_ENDIAN)
	defer e.Close()
	loadProg(t, e, 0x1000, prog(
		core.Ins(core.OP_LOAD, arch.ARM64_REG_X0, 0x2000),
		core.Ins(core.OP_HALT, 0, 0),
	))
	if _, err := e.AddMemHook(cpu.HOOK_MEM_READ_UNMAPPED, 1, 0, func(e *Emu, access int, addr uint64, size int, value int64) bool {
		if access != cpu.MEM_READ_UNMAPPED {
			t.Errorf("access = %d", access)
		}
		if err := e.MemMap(0x2000, 0x1000, cpu.PROT_ALL); err != nil {
			t.Error(err)
			return false
		}
		if err := e.MemWrite(0x2000, []byte{0x2a, 0, 0, 0}); err != nil {
			t.Error(err)
			return false
		}
		return true
	}); err != nil {
		t.Fatal(err)
	}
	if err := e.Start(0x1000, 0, 0, 0); err != nil {
		t.Fatal(err)
	}
	if val, _ := e.RegRead(arch.ARM64_REG_X0); val != 0x2a {
		t.Fatalf("x0 = %#x after remap", val)
	}
}

func TestEmuInsnHooks(t *testing.T) {
	e := mk(t, arch.X86, arch.MODE_64)
	defer e.Close()
	loadProg(t, e, 0x1000, prog(
		core.Ins(core.OP_IN, arch.X86_REG_RAX, 3),
		core.Ins(core.OP_OUT, arch.X86_REG_RAX, 4),
		core.Ins(core.OP_SYSCALL, 0, 0),
		core.Ins(core.OP_HALT, 0, 0),
	))
	var outPort, outVal uint32
	sys := false
	if _, err := e.AddInsnInHook(func(e *Emu, port uint32, size int) uint32 {
		if port != 3 {
			t.Errorf("in port = %d", port)
		}
		return 7
	}); err != nil {
		t.Fatal(err)
	}
	if _, err := e.AddInsnOutHook(func(e *Emu, port uint32, size int, value uint32) {
		outPort, outVal = port, value
	}); err != nil {
		t.Fatal(err)
	}
	if _, err := e.AddInsnSysHook(cpu.INSN_SYSCALL, 1, 0, func(e *Emu) {
		sys = true
	}); err != nil {
		t.Fatal(err)
	}
	if err := e.Start(0x1000, 0, 0, 0); err != nil {
		t.Fatal(err)
	}
	if val, _ := e.RegRead(arch.X86_REG_RAX); val != 7 {
		t.Fatalf("rax = %d, expecting the port read value", val)
	}
	if outPort != 4 || outVal != 7 {
		t.Fatalf("out hook saw port %d value %d", outPort, outVal)
	}
	if !sys {
		t.Fatal("syscall hook did not fire")
	}
}

func TestEmuInvalidInsnHook(t *testing.T) {
	e := mk(t, arch.ARM64, arch.LITTLE_ENDIAN)
	defer e.Close()
	loadProg(t, e, 0x1000, prog(
		[]byte{0x7f, 0, 0, 0, 0, 0, 0, 0},
		core.Ins(core.OP_HALT, 0, 0),
	))
	if err := e.Start(0x1000, 0, 0, 0); err != cpu.ERR_INSN_INVALID {
		t.Fatalf("err = %v, expecting invalid instruction", err)
	}
	if _, err := e.AddInvalidInsnHook(func(e *Emu) bool {
		return true
	}); err != nil {
		t.Fatal(err)
	}
	if err := e.Start(0x1000, 0, 0, 0); err != nil {
		t.Fatal(err)
	}
}

func TestEmuHookBadArgs(t *testing.T) {
	e := mk(t, arch.ARM64, arch.LITTLE_ENDIAN)
	defer e.Close()
	cb := func(e *Emu, access int, addr uint64, size int, value int64) bool { return false }
	if _, err := e.AddMemHook(0, 1, 0, cb); err != cpu.ERR_ARG {
		t.Fatalf("empty mask: %v", err)
	}
	if _, err := e.AddMemHook(cpu.HOOK_MEM_READ|cpu.HOOK_CODE, 1, 0, cb); err != cpu.ERR_ARG {
		t.Fatalf("mixed mask: %v", err)
	}
	if _, err := e.AddInsnSysHook(cpu.INSN_IN, 1, 0, func(e *Emu) {}); err != cpu.ERR_ARG {
		t.Fatalf("in via sys hook: %v", err)
	}
	// x86-only instruction hooks are rejected up front on other arches
	if _, err := e.AddInsnInHook(func(e *Emu, port uint32, size int) uint32 { return 0 }); err != cpu.ERR_HOOK {
		t.Fatalf("insn hook on arm64: %v", err)
	}
}
