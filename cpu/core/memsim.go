package core

import (
	"encoding/binary"

	"golang.org/x/exp/slices"

	"github.com/steelhorn/steelhorn/cpu"
)

// MemSim is a software page table with MMIO routing and per-page dirty
// bits. Callers validate alignment; the sim works at byte granularity.
type MemSim struct {
	pages    Pages
	order    binary.ByteOrder
	pageSize uint64
	dirty    map[uint64]struct{}
}

func NewMemSim(order binary.ByteOrder, pageSize uint64) *MemSim {
	return &MemSim{
		order:    order,
		pageSize: pageSize,
		dirty:    make(map[uint64]struct{}),
	}
}

// RangeValid checks whether [addr, addr+size) is fully mapped, and if
// prot > 0, whether every page carries the entire protection mask.
func (m *MemSim) RangeValid(addr, size uint64, prot int) (mapGood bool, protGood bool) {
	first := m.pages.bsearch(addr)
	if first == -1 {
		return false, false
	}
	protGood = true
	end := addr + size
	for _, mm := range m.pages[first:] {
		if mm.Contains(addr) {
			if prot > 0 && (mm.Prot == 0 || mm.Prot&prot != prot) {
				protGood = false
			}
			addr = mm.Addr + mm.Size
			if addr >= end {
				break
			}
		} else {
			break
		}
	}
	return addr >= end, protGood
}

func (m *MemSim) overlaps(addr, size uint64) bool {
	for _, mm := range m.pages {
		if _, _, ok := mm.Intersect(addr, size); ok {
			return true
		}
	}
	return false
}

func (m *MemSim) insert(page *Page) {
	m.pages = append(m.pages, page)
	slices.SortFunc(m.pages, func(a, b *Page) int {
		switch {
		case a.Addr < b.Addr:
			return -1
		case a.Addr > b.Addr:
			return 1
		}
		return 0
	})
}

// Map adds a region backed by data (allocated when nil). Overlapping an
// existing region is an error.
func (m *MemSim) Map(addr, size uint64, prot int, data []byte) error {
	if m.overlaps(addr, size) {
		return cpu.ERR_MAP
	}
	if data == nil {
		data = make([]byte, size)
	}
	m.insert(&Page{Addr: addr, Size: size, Prot: prot, Data: data[:size]})
	return nil
}

// MapMmio adds a callback-backed region readable and writable by the CPU.
func (m *MemSim) MapMmio(addr, size uint64, read cpu.MmioRead, write cpu.MmioWrite) error {
	if m.overlaps(addr, size) {
		return cpu.ERR_MAP
	}
	m.insert(&Page{Addr: addr, Size: size, Prot: cpu.PROT_READ | cpu.PROT_WRITE,
		MmioRead: read, MmioWrite: write})
	return nil
}

// Prot is unmap with the middle pages of each split re-protected.
func (m *MemSim) Prot(addr, size uint64, prot int) {
	tmp := make(Pages, 0, len(m.pages))
	for _, mm := range m.pages {
		if oaddr, osize, ok := mm.Intersect(addr, size); ok {
			left, right := mm.Split(oaddr, osize)
			if left != nil {
				tmp = append(tmp, left)
			}
			mm.Prot = prot
			tmp = append(tmp, mm)
			if right != nil {
				tmp = append(tmp, right)
			}
		} else {
			tmp = append(tmp, mm)
		}
	}
	m.pages = tmp
}

func (m *MemSim) Unmap(addr, size uint64) {
	tmp := make(Pages, 0, len(m.pages))
	for _, mm := range m.pages {
		if oaddr, osize, ok := mm.Intersect(addr, size); ok {
			left, right := mm.Split(oaddr, osize)
			if left != nil {
				tmp = append(tmp, left)
			}
			if right != nil {
				tmp = append(tmp, right)
			}
		} else {
			tmp = append(tmp, mm)
		}
	}
	m.pages = tmp
	end := Align(addr+size, m.pageSize)
	for pg := addr &^ (m.pageSize - 1); pg < end; pg += m.pageSize {
		delete(m.dirty, pg)
	}
}

func (m *MemSim) Regions() []cpu.MemRegion {
	ret := make([]cpu.MemRegion, len(m.pages))
	for i, mm := range m.pages {
		ret[i] = cpu.MemRegion{Addr: mm.Addr, Size: mm.Size, Prot: mm.Prot}
	}
	return ret
}

// Read copies mapped bytes into p, routing MMIO pages through their read
// callback in chunks of at most eight bytes.
func (m *MemSim) Read(addr uint64, p []byte, prot int) error {
	if gmap, gprot := m.RangeValid(addr, uint64(len(p)), prot); !gmap {
		if prot&cpu.PROT_EXEC == cpu.PROT_EXEC {
			return &cpu.MemError{Addr: addr, Size: len(p), Enum: cpu.MEM_FETCH_UNMAPPED}
		}
		return &cpu.MemError{Addr: addr, Size: len(p), Enum: cpu.MEM_READ_UNMAPPED}
	} else if !gprot {
		if prot&cpu.PROT_EXEC == cpu.PROT_EXEC {
			return &cpu.MemError{Addr: addr, Size: len(p), Enum: cpu.MEM_FETCH_PROT}
		}
		return &cpu.MemError{Addr: addr, Size: len(p), Enum: cpu.MEM_READ_PROT}
	}
	i := m.pages.bsearch(addr)
	if i >= 0 {
		for _, mm := range m.pages[i:] {
			if !mm.Contains(addr) {
				break
			}
			for len(p) > 0 && mm.Contains(addr) {
				var n int
				if mm.Mmio() {
					n = m.mmioRead(mm, addr, p)
				} else {
					o := addr - mm.Addr
					n = copy(p, mm.Data[o:])
				}
				addr, p = addr+uint64(n), p[n:]
			}
			if len(p) == 0 {
				break
			}
		}
	}
	return nil
}

// Write copies p into mapped bytes, routing MMIO pages through their write
// callback and marking touched pages dirty.
func (m *MemSim) Write(addr uint64, p []byte, prot int) error {
	if gmap, gprot := m.RangeValid(addr, uint64(len(p)), prot); !gmap {
		return &cpu.MemError{Addr: addr, Size: len(p), Enum: cpu.MEM_WRITE_UNMAPPED}
	} else if !gprot {
		return &cpu.MemError{Addr: addr, Size: len(p), Enum: cpu.MEM_WRITE_PROT}
	}
	i := m.pages.bsearch(addr)
	if i >= 0 {
		for _, mm := range m.pages[i:] {
			if !mm.Contains(addr) {
				break
			}
			for len(p) > 0 && mm.Contains(addr) {
				var n int
				if mm.Mmio() {
					n = m.mmioWrite(mm, addr, p)
				} else {
					o := addr - mm.Addr
					n = copy(mm.Data[o:], p)
					for pg := addr &^ (m.pageSize - 1); pg < addr+uint64(n); pg += m.pageSize {
						m.dirty[pg] = struct{}{}
					}
				}
				addr, p = addr+uint64(n), p[n:]
			}
			if len(p) == 0 {
				break
			}
		}
	}
	return nil
}

func (m *MemSim) mmioRead(pg *Page, addr uint64, p []byte) int {
	end := pg.Addr + pg.Size
	n := len(p)
	if uint64(n) > end-addr {
		n = int(end - addr)
	}
	if n > 8 {
		n = 8
	}
	var val uint64
	if pg.MmioRead != nil {
		val = pg.MmioRead(addr, n)
	}
	var buf [8]byte
	m.order.PutUint64(buf[:], val)
	if m.order == binary.BigEndian {
		copy(p[:n], buf[8-n:])
	} else {
		copy(p[:n], buf[:n])
	}
	return n
}

func (m *MemSim) mmioWrite(pg *Page, addr uint64, p []byte) int {
	end := pg.Addr + pg.Size
	n := len(p)
	if uint64(n) > end-addr {
		n = int(end - addr)
	}
	if n > 8 {
		n = 8
	}
	var buf [8]byte
	if m.order == binary.BigEndian {
		copy(buf[8-n:], p[:n])
	} else {
		copy(buf[:n], p[:n])
	}
	if pg.MmioWrite != nil {
		pg.MmioWrite(addr, n, m.order.Uint64(buf[:]))
	}
	return n
}

// TestAndSetDirty marks the page of addr dirty and reports whether it had
// been dirtied before.
func (m *MemSim) TestAndSetDirty(addr uint64) (bool, error) {
	pg := addr &^ (m.pageSize - 1)
	if m.pages.Find(addr) == nil {
		return false, cpu.ERR_ARG
	}
	_, was := m.dirty[pg]
	m.dirty[pg] = struct{}{}
	return was, nil
}

func (m *MemSim) ResetDirty(addr uint64) error {
	if m.pages.Find(addr) == nil {
		return cpu.ERR_ARG
	}
	delete(m.dirty, addr&^(m.pageSize-1))
	return nil
}

// RealSize returns the size of the region containing addr, zero when
// unmapped.
func (m *MemSim) RealSize(addr uint64) uint64 {
	if pg := m.pages.Find(addr); pg != nil {
		return pg.Size
	}
	return 0
}
