package core

import (
	"fmt"
	"strings"

	"github.com/steelhorn/steelhorn/cpu"
)

// Page is one mapped region: plain storage when Data is set, MMIO when
// one of the callbacks is set.
type Page struct {
	Addr uint64
	Size uint64
	Prot int
	Data []byte

	// set for MMIO pages; Data is nil for those
	MmioRead  cpu.MmioRead
	MmioWrite cpu.MmioWrite
}

func (p *Page) String() string {
	prots := []int{cpu.PROT_READ, cpu.PROT_WRITE, cpu.PROT_EXEC}
	chars := []string{"r", "w", "x"}
	prot := ""
	for i := range prots {
		if p.Prot&prots[i] != 0 {
			prot += chars[i]
		} else {
			prot += "-"
		}
	}
	desc := fmt.Sprintf("0x%x-0x%x %s", p.Addr, p.Addr+p.Size, prot)
	if p.Mmio() {
		desc += " [mmio]"
	}
	return desc
}

func (p *Page) Mmio() bool {
	return p.MmioRead != nil || p.MmioWrite != nil
}

func (p *Page) Contains(addr uint64) bool {
	return addr >= p.Addr && addr < p.Addr+p.Size
}

// start = max(s1, s2), end = min(e1, e2), ok = end > start
func (p *Page) Intersect(addr, size uint64) (uint64, uint64, bool) {
	start := p.Addr
	end := p.Addr + p.Size
	e2 := addr + size
	if end > e2 {
		end = e2
	}
	if start < addr {
		start = addr
	}
	return start, end - start, end > start
}

func (p *Page) slice(addr, size uint64) *Page {
	np := &Page{Addr: addr, Size: size, Prot: p.Prot,
		MmioRead: p.MmioRead, MmioWrite: p.MmioWrite}
	if p.Data != nil {
		o := addr - p.Addr
		np.Data = p.Data[o : o+size]
	}
	return np
}

// Split shrinks p to [addr, addr+size) and returns the pages left over on
// either side. The caller guarantees the new range is inside p.
func (p *Page) Split(addr, size uint64) (left, right *Page) {
	if addr+size < p.Addr+p.Size {
		ra := addr + size
		rs := (p.Addr + p.Size) - ra
		right = p.slice(ra, rs)
		if p.Data != nil {
			p.Data = p.Data[:ra-p.Addr]
		}
	}
	if addr > p.Addr {
		ls := addr - p.Addr
		left = p.slice(p.Addr, ls)
		if p.Data != nil {
			p.Data = p.Data[ls:]
		}
	}
	p.Addr, p.Size = addr, size
	return left, right
}

type Pages []*Page

func (p Pages) String() string {
	s := make([]string, len(p))
	for i, v := range p {
		s[i] = v.String()
	}
	return strings.Join(s, "\n")
}

// binary search for the index of the page containing addr, else -1
func (p Pages) bsearch(addr uint64) int {
	l := 0
	r := len(p) - 1
	for l <= r {
		mid := (l + r) / 2
		e := p[mid]
		if addr >= e.Addr {
			if addr < e.Addr+e.Size {
				return mid
			}
			l = mid + 1
		} else {
			r = mid - 1
		}
	}
	return -1
}

func (p Pages) Find(addr uint64) *Page {
	i := p.bsearch(addr)
	if i >= 0 {
		return p[i]
	}
	return nil
}
