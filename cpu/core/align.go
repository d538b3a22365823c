package core

import "golang.org/x/exp/constraints"

// Align rounds a up to the next multiple of b. b must be a power of two.
func Align[I constraints.Integer](a, b I) I {
	return (a + b - 1) &^ (b - 1)
}

func aligned(addr, size, page uint64) bool {
	return addr&(page-1) == 0 && size&(page-1) == 0
}
