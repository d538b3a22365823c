package emu

import (
	"testing"

	"github.com/steelhorn/steelhorn/arch"
)

func scopeEq(a, b []mmioRegion) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// coverage splitting for a scope that starts as [0x1000, 0x3000)
func TestMmioScopeSplit(t *testing.T) {
	table := []struct {
		name  string
		begin uint64
		size  uint64
		want  []mmioRegion
	}{
		{"before", 0x0, 0x800, []mmioRegion{{0x1000, 0x2000}}},
		{"after", 0x3000, 0x1000, []mmioRegion{{0x1000, 0x2000}}},
		{"head", 0x1000, 0x1000, []mmioRegion{{0x2000, 0x1000}}},
		{"tail", 0x2000, 0x1000, []mmioRegion{{0x1000, 0x1000}}},
		{"all", 0x0, 0x4000, nil},
		{"exact", 0x1000, 0x2000, nil},
		// the right remainder of a middle split starts one past the
		// unmapped range
		{"middle", 0x1800, 0x800, []mmioRegion{{0x1000, 0x800}, {0x2001, 0xfff}}},
	}
	for _, v := range table {
		s := &mmioScope{regions: []mmioRegion{{0x1000, 0x2000}}}
		s.unmap(v.begin, v.size)
		if !scopeEq(s.regions, v.want) {
			t.Errorf("%s: unmap(%#x, %#x) left %#v, expecting %#v",
				v.name, v.begin, v.size, s.regions, v.want)
		}
	}
}

func TestMmioMapUnmap(t *testing.T) {
	e := mk(t, arch.ARM64, arch.LITTLE_ENDIAN)
	defer e.Close()

	var reads []uint64
	var writes []uint64
	if err := e.MmioMap(0x1000, 0x2000,
		func(e *Emu, offset uint64, size int) uint64 {
			reads = append(reads, offset)
			return 0x55
		},
		func(e *Emu, offset uint64, size int, value uint64) {
			writes = append(writes, offset)
		}); err != nil {
		t.Fatal(err)
	}
	if len(e.mmio) != 1 || !scopeEq(e.mmio[0].regions, []mmioRegion{{0x1000, 0x2000}}) {
		t.Fatalf("initial scope coverage: %#v", e.mmio)
	}

	// callbacks receive offsets relative to the mapping base
	if val, err := e.MemRead(0x1008, 4); err != nil {
		t.Fatal(err)
	} else if val[0] != 0x55 {
		t.Fatalf("mmio read value: %#v", val)
	}
	if err := e.MemWrite(0x2500, []byte{1, 2, 3, 4}); err != nil {
		t.Fatal(err)
	}
	if len(reads) != 1 || reads[0] != 0x8 {
		t.Fatalf("read offsets: %#v", reads)
	}
	if len(writes) != 1 || writes[0] != 0x1500 {
		t.Fatalf("write offsets: %#v", writes)
	}

	// unmapping the first page shrinks the scope to [0x2000, 0x3000)
	if err := e.MemUnmap(0x1000, 0x1000); err != nil {
		t.Fatal(err)
	}
	if len(e.mmio) != 1 || !scopeEq(e.mmio[0].regions, []mmioRegion{{0x2000, 0x1000}}) {
		t.Fatalf("scope coverage after unmap: %#v", e.mmio[0].regions)
	}

	// the unmapped half no longer reaches the callback
	if _, err := e.MemRead(0x1008, 4); err == nil {
		t.Fatal("read of unmapped mmio half succeeded")
	}
	// the mapped half still does, with offsets from the original base
	reads = nil
	if _, err := e.MemRead(0x2008, 4); err != nil {
		t.Fatal(err)
	}
	if len(reads) != 1 || reads[0] != 0x1008 {
		t.Fatalf("read offsets after unmap: %#v", reads)
	}

	// tearing down the rest discards the scope and its callbacks
	if err := e.MemUnmap(0x2000, 0x1000); err != nil {
		t.Fatal(err)
	}
	if len(e.mmio) != 0 {
		t.Fatalf("empty scope not discarded: %#v", e.mmio)
	}
}

func TestMmioRO(t *testing.T) {
	e := mk(t, arch.ARM64, arch.LITTLE_ENDIAN)
	defer e.Close()

	fired := false
	if err := e.MmioMapRO(0x1000, 0x1000, func(e *Emu, offset uint64, size int) uint64 {
		fired = true
		return 0xaa
	}); err != nil {
		t.Fatal(err)
	}
	if val, err := e.MemRead(0x1000, 1); err != nil || val[0] != 0xaa {
		t.Fatalf("ro mmio read: %v %#v", err, val)
	}
	if !fired {
		t.Fatal("read callback did not fire")
	}

	// unaligned mappings are rejected
	if err := e.MmioMap(0x1234, 0x1000, nil, nil); err == nil {
		t.Fatal("unaligned mmio map succeeded")
	}
	// and leave no scope behind
	if len(e.mmio) != 1 {
		t.Fatalf("scope count after failed map: %d", len(e.mmio))
	}
}
