package emu

import (
	"github.com/steelhorn/steelhorn/cpu"
)

// MmioRead handles reads from an MMIO region. offset is relative to the
// start of the mapping the callback was registered with.
type MmioRead func(e *Emu, offset uint64, size int) uint64

// MmioWrite handles writes to an MMIO region.
type MmioWrite func(e *Emu, offset uint64, size int, value uint64)

type mmioRegion struct {
	addr uint64
	size uint64
}

// mmioScope keeps one mapping's callbacks alive and tracks which parts
// of the original region are still mapped. A scope starts with the full
// mapping as its single region; unmaps shrink or split the regions, and
// a scope with none left is discarded along with its callbacks.
type mmioScope struct {
	regions []mmioRegion
	read    MmioRead
	write   MmioWrite
}

func (s *mmioScope) hasRegions() bool {
	return len(s.regions) > 0
}

func (s *mmioScope) unmap(begin, size uint64) {
	end := begin + size
	tmp := make([]mmioRegion, 0, len(s.regions))
	for _, r := range s.regions {
		b, e := r.addr, r.addr+r.size
		switch {
		case begin > b:
			if begin >= e {
				// the unmapped range is entirely after this region
				tmp = append(tmp, r)
			} else if end >= e {
				// the unmapped range covers the end of this region
				tmp = append(tmp, mmioRegion{b, begin - b})
			} else {
				// the unmapped range is in the middle of this region
				secondB := end + 1
				tmp = append(tmp,
					mmioRegion{b, begin - b},
					mmioRegion{secondB, e - secondB})
			}
		case end > b:
			if end >= e {
				// the unmapped range covers this region entirely
			} else {
				// the unmapped range covers the start of this region
				tmp = append(tmp, mmioRegion{end, e - end})
			}
		default:
			// the unmapped range is entirely before this region
			tmp = append(tmp, r)
		}
	}
	s.regions = tmp
}

// MmioMap maps [addr, addr+size) as a callback-backed region. addr and
// size must be page aligned. Either callback may be nil; reads without a
// read callback return zero, writes without a write callback are
// dropped.
func (e *Emu) MmioMap(addr, size uint64, read MmioRead, write MmioWrite) error {
	if e.closed {
		return cpu.ERR_HANDLE
	}
	var engRead cpu.MmioRead
	var engWrite cpu.MmioWrite
	if read != nil {
		engRead = func(at uint64, asize int) uint64 {
			return read(e, at-addr, asize)
		}
	}
	if write != nil {
		engWrite = func(at uint64, asize int, value uint64) {
			write(e, at-addr, asize, value)
		}
	}
	if err := e.eng.MmioMap(addr, size, engRead, engWrite); err != nil {
		return err
	}
	e.mmio = append(e.mmio, &mmioScope{
		regions: []mmioRegion{{addr, size}},
		read:    read,
		write:   write,
	})
	return nil
}

// MmioMapRO maps a read-only MMIO region.
func (e *Emu) MmioMapRO(addr, size uint64, read MmioRead) error {
	return e.MmioMap(addr, size, read, nil)
}

// MmioMapWO maps a write-only MMIO region.
func (e *Emu) MmioMapWO(addr, size uint64, write MmioWrite) error {
	return e.MmioMap(addr, size, nil, write)
}

func (e *Emu) mmioUnmap(addr, size uint64) {
	for _, scope := range e.mmio {
		scope.unmap(addr, size)
	}
	tmp := e.mmio[:0]
	for _, scope := range e.mmio {
		if scope.hasRegions() {
			tmp = append(tmp, scope)
		}
	}
	e.mmio = tmp
}
