package core

import "testing"

func TestAlign(t *testing.T) {
	cases := []struct {
		val, to, want uint64
	}{
		{0, 0x1000, 0},
		{1, 0x1000, 0x1000},
		{0x1000, 0x1000, 0x1000},
		{0x1001, 0x1000, 0x2000},
		{0x2fff, 0x1000, 0x3000},
		{7, 8, 8},
	}
	for _, c := range cases {
		if got := Align(c.val, c.to); got != c.want {
			t.Errorf("Align(%#x, %#x) = %#x, expecting %#x", c.val, c.to, got, c.want)
		}
	}
	if !aligned(0x2000, 0x1000, 0x1000) {
		t.Error("aligned range reported unaligned")
	}
	if aligned(0x2000, 0x1800, 0x1000) {
		t.Error("unaligned size reported aligned")
	}
}
