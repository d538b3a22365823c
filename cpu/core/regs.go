package core

import (
	"github.com/steelhorn/steelhorn/cpu"
)

// Regs is a map-backed register file. Wide registers (vector and
// descriptor-table classes) get byte storage on first write.
type Regs struct {
	mask  uint64
	vals  map[int]uint64
	longs map[int][]byte
}

func NewRegs(bits uint, enums []int) *Regs {
	r := &Regs{
		mask:  ^uint64(0) >> (64 - bits),
		vals:  make(map[int]uint64),
		longs: make(map[int][]byte),
	}
	for _, e := range enums {
		r.vals[e] = 0
	}
	return r
}

func (r *Regs) RegRead(enum int) (uint64, error) {
	val, ok := r.vals[enum]
	if !ok {
		return 0, cpu.ERR_ARG
	}
	return val, nil
}

func (r *Regs) RegWrite(enum int, val uint64) error {
	if _, ok := r.vals[enum]; !ok {
		return cpu.ERR_ARG
	}
	r.vals[enum] = val & r.mask
	return nil
}

func (r *Regs) RegReadBuf(enum int, p []byte) error {
	if _, ok := r.vals[enum]; !ok {
		return cpu.ERR_ARG
	}
	stored := r.longs[enum]
	for i := range p {
		p[i] = 0
	}
	copy(p, stored)
	return nil
}

func (r *Regs) RegWriteBuf(enum int, p []byte) error {
	if _, ok := r.vals[enum]; !ok {
		return cpu.ERR_ARG
	}
	buf := make([]byte, len(p))
	copy(buf, p)
	r.longs[enum] = buf
	return nil
}

func (r *Regs) RegReadI32(enum int) (int32, error) {
	val, err := r.RegRead(enum)
	if err != nil {
		return 0, err
	}
	return int32(uint32(val)), nil
}

func (r *Regs) save() *regState {
	s := &regState{
		vals:  make(map[int]uint64, len(r.vals)),
		longs: make(map[int][]byte, len(r.longs)),
	}
	for k, v := range r.vals {
		s.vals[k] = v
	}
	for k, v := range r.longs {
		buf := make([]byte, len(v))
		copy(buf, v)
		s.longs[k] = buf
	}
	return s
}

func (r *Regs) restore(s *regState) {
	for k, v := range s.vals {
		r.vals[k] = v
	}
	r.longs = make(map[int][]byte, len(s.longs))
	for k, v := range s.longs {
		buf := make([]byte, len(v))
		copy(buf, v)
		r.longs[k] = buf
	}
}

type regState struct {
	vals  map[int]uint64
	longs map[int][]byte
}
