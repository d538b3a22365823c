package arch

import (
	"sort"

	"github.com/lunixbochs/fvbommel-util/sortorder"
)

type Reg struct {
	Enum int
	Name string
}

type RegVal struct {
	Reg
	Val uint64
}

type regList []Reg

func (r regList) Len() int           { return len(r) }
func (r regList) Swap(i, j int)      { r[i], r[j] = r[j], r[i] }
func (r regList) Less(i, j int) bool { return sortorder.NaturalLess(r[i].Name, r[j].Name) }

// RegReader is the register access a dump needs; *emu.Emu and engines
// both satisfy it.
type RegReader interface {
	RegRead(reg int) (uint64, error)
}

var dumpLists = map[Arch]regList{}

func dumpList(a Arch) regList {
	if rl, ok := dumpLists[a]; ok {
		return rl
	}
	names := RegNames(a)
	rl := make(regList, 0, len(names))
	for n, e := range names {
		rl = append(rl, Reg{e, n})
	}
	sort.Sort(rl)
	dumpLists[a] = rl
	return rl
}

// RegDump reads every named register of the architecture, in natural name
// order.
func RegDump(r RegReader, a Arch) ([]RegVal, error) {
	rl := dumpList(a)
	ret := make([]RegVal, len(rl))
	for i, reg := range rl {
		val, err := r.RegRead(reg.Enum)
		if err != nil {
			return nil, err
		}
		ret[i] = RegVal{reg, val}
	}
	return ret, nil
}
