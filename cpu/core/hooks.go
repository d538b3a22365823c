package core

import (
	"github.com/steelhorn/steelhorn/cpu"
)

type hookInfo struct {
	htype int
	start uint64
	end   uint64
}

func (h *hookInfo) Type() int {
	return h.htype
}

// start > end is the whole-address-space sentinel
func (h *hookInfo) Contains(addr uint64) bool {
	return h.start > h.end || addr >= h.start && addr <= h.end
}

type hinfo interface {
	Type() int
}

type codeHook struct {
	hookInfo
	cb cpu.CodeCb
}

type intrHook struct {
	hookInfo
	cb cpu.IntrCb
}

type invalidHook struct {
	hookInfo
	cb cpu.InsnInvalidCb
}

type memHook struct {
	hookInfo
	cb cpu.MemCb
}

type insnInHook struct {
	hookInfo
	cb cpu.InsnInCb
}

type insnOutHook struct {
	hookInfo
	cb cpu.InsnOutCb
}

type insnSysHook struct {
	hookInfo
	insn int
	cb   cpu.InsnSysCb
}

// Hooks owns registrations and dispatches them during execution. Tokens
// are the hook structs themselves.
type Hooks struct {
	code    []*codeHook
	block   []*codeHook
	intr    []*intrHook
	invalid []*invalidHook
	mem     []*memHook
	insnIn  []*insnInHook
	insnOut []*insnOutHook
	insnSys []*insnSysHook
}

func (h *Hooks) Add(htype int, cb interface{}, start, end uint64, extra ...int) (cpu.Hook, error) {
	info := hookInfo{htype, start, end}
	switch {
	case htype == cpu.HOOK_BLOCK:
		cbc, ok := cb.(cpu.CodeCb)
		if !ok {
			return nil, cpu.ERR_ARG
		}
		hh := &codeHook{info, cbc}
		h.block = append(h.block, hh)
		return hh, nil

	case htype == cpu.HOOK_CODE:
		cbc, ok := cb.(cpu.CodeCb)
		if !ok {
			return nil, cpu.ERR_ARG
		}
		hh := &codeHook{info, cbc}
		h.code = append(h.code, hh)
		return hh, nil

	case htype == cpu.HOOK_INTR:
		cbc, ok := cb.(cpu.IntrCb)
		if !ok {
			return nil, cpu.ERR_ARG
		}
		hh := &intrHook{info, cbc}
		h.intr = append(h.intr, hh)
		return hh, nil

	case htype == cpu.HOOK_INSN_INVALID:
		cbc, ok := cb.(cpu.InsnInvalidCb)
		if !ok {
			return nil, cpu.ERR_ARG
		}
		hh := &invalidHook{info, cbc}
		h.invalid = append(h.invalid, hh)
		return hh, nil

	case htype == cpu.HOOK_INSN:
		if len(extra) != 1 {
			return nil, cpu.ERR_ARG
		}
		switch extra[0] {
		case cpu.INSN_IN:
			cbc, ok := cb.(cpu.InsnInCb)
			if !ok {
				return nil, cpu.ERR_ARG
			}
			hh := &insnInHook{info, cbc}
			h.insnIn = append(h.insnIn, hh)
			return hh, nil
		case cpu.INSN_OUT:
			cbc, ok := cb.(cpu.InsnOutCb)
			if !ok {
				return nil, cpu.ERR_ARG
			}
			hh := &insnOutHook{info, cbc}
			h.insnOut = append(h.insnOut, hh)
			return hh, nil
		case cpu.INSN_SYSCALL, cpu.INSN_SYSENTER:
			cbc, ok := cb.(cpu.InsnSysCb)
			if !ok {
				return nil, cpu.ERR_ARG
			}
			hh := &insnSysHook{info, extra[0], cbc}
			h.insnSys = append(h.insnSys, hh)
			return hh, nil
		}
		return nil, cpu.ERR_ARG

	case htype != 0 && htype&^(cpu.HOOK_MEM_ALL|cpu.HOOK_MEM_READ_AFTER) == 0:
		cbc, ok := cb.(cpu.MemCb)
		if !ok {
			return nil, cpu.ERR_ARG
		}
		hh := &memHook{info, cbc}
		h.mem = append(h.mem, hh)
		return hh, nil
	}
	return nil, cpu.ERR_HOOK
}

func (h *Hooks) Del(hh cpu.Hook) error {
	info, ok := hh.(hinfo)
	if !ok {
		return cpu.ERR_HOOK
	}
	switch t := info.Type(); {
	case t == cpu.HOOK_BLOCK:
		h.block = delHook(h.block, hh)
	case t == cpu.HOOK_CODE:
		h.code = delHook(h.code, hh)
	case t == cpu.HOOK_INTR:
		h.intr = delHook(h.intr, hh)
	case t == cpu.HOOK_INSN_INVALID:
		h.invalid = delHook(h.invalid, hh)
	case t == cpu.HOOK_INSN:
		h.insnIn = delHook(h.insnIn, hh)
		h.insnOut = delHook(h.insnOut, hh)
		h.insnSys = delHook(h.insnSys, hh)
	default:
		h.mem = delHook(h.mem, hh)
	}
	return nil
}

func delHook[T comparable](hooks []T, hh cpu.Hook) []T {
	tmp := hooks[:0]
	for _, v := range hooks {
		if any(v) != hh {
			tmp = append(tmp, v)
		}
	}
	return tmp
}

func (h *Hooks) OnBlock(addr uint64, size uint32) {
	for _, v := range h.block {
		if v.Contains(addr) {
			v.cb(addr, size)
		}
	}
}

func (h *Hooks) OnCode(addr uint64, size uint32) {
	for _, v := range h.code {
		if v.Contains(addr) {
			v.cb(addr, size)
		}
	}
}

func (h *Hooks) OnIntr(intno uint32) bool {
	handled := false
	for _, v := range h.intr {
		v.cb(intno)
		handled = true
	}
	return handled
}

func (h *Hooks) OnInvalid() (hooked, handled bool) {
	for _, v := range h.invalid {
		hooked = true
		if v.cb() {
			handled = true
		}
	}
	return hooked, handled
}

// access enum to hook bit, for dispatch filtering
func memHookBit(access int) int {
	switch access {
	case cpu.MEM_READ:
		return cpu.HOOK_MEM_READ
	case cpu.MEM_WRITE:
		return cpu.HOOK_MEM_WRITE
	case cpu.MEM_FETCH:
		return cpu.HOOK_MEM_FETCH
	case cpu.MEM_READ_AFTER:
		return cpu.HOOK_MEM_READ_AFTER
	case cpu.MEM_READ_UNMAPPED:
		return cpu.HOOK_MEM_READ_UNMAPPED
	case cpu.MEM_WRITE_UNMAPPED:
		return cpu.HOOK_MEM_WRITE_UNMAPPED
	case cpu.MEM_FETCH_UNMAPPED:
		return cpu.HOOK_MEM_FETCH_UNMAPPED
	case cpu.MEM_READ_PROT:
		return cpu.HOOK_MEM_READ_PROT
	case cpu.MEM_WRITE_PROT:
		return cpu.HOOK_MEM_WRITE_PROT
	case cpu.MEM_FETCH_PROT:
		return cpu.HOOK_MEM_FETCH_PROT
	}
	return 0
}

// OnMem dispatches a memory access to matching hooks; the returned bool
// is the or of callback results, which for fault kinds means the fault
// was handled and the access should be retried.
func (h *Hooks) OnMem(access int, addr uint64, size int, val int64) bool {
	bit := memHookBit(access)
	handled := false
	for _, v := range h.mem {
		if v.htype&bit != 0 && v.Contains(addr) {
			if v.cb(access, addr, size, val) {
				handled = true
			}
		}
	}
	return handled
}

func (h *Hooks) OnInsnIn(pc uint64, port uint32, size int) uint32 {
	var val uint32
	for _, v := range h.insnIn {
		if v.Contains(pc) {
			val = v.cb(port, size)
		}
	}
	return val
}

func (h *Hooks) OnInsnOut(pc uint64, port uint32, size int, val uint32) bool {
	fired := false
	for _, v := range h.insnOut {
		if v.Contains(pc) {
			v.cb(port, size, val)
			fired = true
		}
	}
	return fired
}

func (h *Hooks) OnInsnSys(insn int, pc uint64) bool {
	fired := false
	for _, v := range h.insnSys {
		if v.insn == insn && v.Contains(pc) {
			v.cb()
			fired = true
		}
	}
	return fired
}
