package emu

import (
	"github.com/steelhorn/steelhorn/cpu"
)

// Hook callback signatures. Every callback receives the handle it was
// registered on, so hooks can read registers, remap memory, or stop
// execution from inside the engine run loop.
type (
	CodeHook        func(e *Emu, addr uint64, size uint32)
	IntrHook        func(e *Emu, intno uint32)
	InvalidInsnHook func(e *Emu) bool
	MemHook         func(e *Emu, access int, addr uint64, size int, value int64) bool
	InHook          func(e *Emu, port uint32, size int) uint32
	OutHook         func(e *Emu, port uint32, size int, value uint32)
	SysHook         func(e *Emu)
)

// Hook is a registration handle for RemoveHook. The boxed callback is
// retained here for the emulator lifetime so the engine-level closure
// stays reachable.
type Hook struct {
	token cpu.Hook
	cb    interface{}
}

func (e *Emu) addHook(htype int, cb interface{}, engCb interface{}, begin, end uint64, extra ...int) (*Hook, error) {
	if e.closed {
		return nil, cpu.ERR_HANDLE
	}
	token, err := e.eng.HookAdd(htype, engCb, begin, end, extra...)
	if err != nil {
		return nil, err
	}
	h := &Hook{token: token, cb: cb}
	e.hooks = append(e.hooks, h)
	return h, nil
}

// AddCodeHook calls cb before each instruction with an address inside
// [begin, end]. begin > end hooks every address.
func (e *Emu) AddCodeHook(begin, end uint64, cb CodeHook) (*Hook, error) {
	tramp := cpu.CodeCb(func(addr uint64, size uint32) {
		cb(e, addr, size)
	})
	return e.addHook(cpu.HOOK_CODE, cb, tramp, begin, end)
}

// AddBlockHook calls cb at the start of each basic block.
func (e *Emu) AddBlockHook(begin, end uint64, cb CodeHook) (*Hook, error) {
	tramp := cpu.CodeCb(func(addr uint64, size uint32) {
		cb(e, addr, size)
	})
	return e.addHook(cpu.HOOK_BLOCK, cb, tramp, begin, end)
}

// AddIntrHook calls cb on CPU interrupts and traps.
func (e *Emu) AddIntrHook(cb IntrHook) (*Hook, error) {
	tramp := cpu.IntrCb(func(intno uint32) {
		cb(e, intno)
	})
	return e.addHook(cpu.HOOK_INTR, cb, tramp, 1, 0)
}

// AddInvalidInsnHook calls cb on undecodable instructions; returning
// true resumes execution after the instruction.
func (e *Emu) AddInvalidInsnHook(cb InvalidInsnHook) (*Hook, error) {
	tramp := cpu.InsnInvalidCb(func() bool {
		return cb(e)
	})
	return e.addHook(cpu.HOOK_INSN_INVALID, cb, tramp, 1, 0)
}

// AddMemHook calls cb on the memory accesses selected by htype, a mask
// of HOOK_MEM_* bits. For the fault kinds, returning true retries the
// access; for valid-access kinds the return value is ignored. A mask
// with non-memory bits is rejected.
func (e *Emu) AddMemHook(htype int, begin, end uint64, cb MemHook) (*Hook, error) {
	if htype == 0 || htype&^(cpu.HOOK_MEM_ALL|cpu.HOOK_MEM_READ_AFTER) != 0 {
		return nil, cpu.ERR_ARG
	}
	tramp := cpu.MemCb(func(access int, addr uint64, size int, value int64) bool {
		return cb(e, access, addr, size, value)
	})
	return e.addHook(htype, cb, tramp, begin, end)
}

// AddInsnInHook calls cb on x86 port reads; the returned value is what
// the instruction reads.
func (e *Emu) AddInsnInHook(cb InHook) (*Hook, error) {
	tramp := cpu.InsnInCb(func(port uint32, size int) uint32 {
		return cb(e, port, size)
	})
	return e.addHook(cpu.HOOK_INSN, cb, tramp, 1, 0, cpu.INSN_IN)
}

// AddInsnOutHook calls cb on x86 port writes.
func (e *Emu) AddInsnOutHook(cb OutHook) (*Hook, error) {
	tramp := cpu.InsnOutCb(func(port uint32, size int, value uint32) {
		cb(e, port, size, value)
	})
	return e.addHook(cpu.HOOK_INSN, cb, tramp, 1, 0, cpu.INSN_OUT)
}

// AddInsnSysHook calls cb on the x86 syscall or sysenter instruction,
// selected by insn, within [begin, end].
func (e *Emu) AddInsnSysHook(insn int, begin, end uint64, cb SysHook) (*Hook, error) {
	if insn != cpu.INSN_SYSCALL && insn != cpu.INSN_SYSENTER {
		return nil, cpu.ERR_ARG
	}
	tramp := cpu.InsnSysCb(func() {
		cb(e)
	})
	return e.addHook(cpu.HOOK_INSN, cb, tramp, begin, end, insn)
}

// RemoveHook deletes a registration. Removing a hook that is not
// registered, including one removed before, is a no-op.
func (e *Emu) RemoveHook(h *Hook) error {
	if e.closed {
		return cpu.ERR_HANDLE
	}
	for i, v := range e.hooks {
		if v == h {
			e.hooks = append(e.hooks[:i], e.hooks[i+1:]...)
			return e.eng.HookDel(h.token)
		}
	}
	return nil
}
