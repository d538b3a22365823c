package emu

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"
	"io"
	"sort"

	"github.com/golang/snappy"
	"github.com/lunixbochs/struc"
	"github.com/pkg/errors"

	"github.com/steelhorn/steelhorn/arch"
	"github.com/steelhorn/steelhorn/cpu"
)

// savestate format, all fields big endian:
//
// file header
// uint32(format version)
// uint32(crc32 of compressed body)
// uint64(length of compressed body)
// remainder is a snappy-compressed body:
//
// uint32(arch enum)
// uint32(mode)
//
// registers
// uint64(number of registers)
// 1..num: uint64(register enum), uint64(register value)
//
// memory
// uint64(number of mapped regions)
// 1..num: uint64(addr), uint64(size), uint32(prot), <raw memory bytes of size>

const saveVersion = 1

// Save serializes the named registers and all mapped memory.
func (e *Emu) Save() ([]byte, error) {
	if e.closed {
		return nil, cpu.ERR_HANDLE
	}
	abi, err := e.requireABI()
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	options := &struc.Options{Order: binary.BigEndian}
	s := StrucStream{&buf, options}

	s.Pack(uint32(e.arch), uint32(abi.Mode()))

	// register list, named registers only, in enum order
	var enums []int
	for _, enum := range arch.RegNames(e.arch) {
		enums = append(enums, enum)
	}
	sort.Ints(enums)
	s.Pack(uint64(len(enums)))
	for _, enum := range enums {
		val, err := e.RegRead(enum)
		if err != nil {
			return nil, errors.Wrapf(err, "saving register %d", enum)
		}
		s.Pack(uint64(enum), val)
	}

	// memory images
	regions, err := e.MemRegions()
	if err != nil {
		return nil, err
	}
	s.Pack(uint64(len(regions)))
	for _, r := range regions {
		s.Pack(r.Addr, r.Size, uint32(r.Prot))
		mem, err := e.MemRead(r.Addr, r.Size)
		if err != nil {
			return nil, errors.Wrapf(err, "saving memory at %#x", r.Addr)
		}
		buf.Write(mem)
	}

	data := snappy.Encode(nil, buf.Bytes())

	var final bytes.Buffer
	s = StrucStream{&final, options}
	s.Pack(uint32(saveVersion), crc32.ChecksumIEEE(data), uint64(len(data)))
	final.Write(data)
	return final.Bytes(), nil
}

// Restore applies a savestate produced by Save: registers are written
// back and each memory image is mapped (when not already present) and
// filled. The savestate must come from a handle of the same arch and
// mode.
func (e *Emu) Restore(p []byte) error {
	if e.closed {
		return cpu.ERR_HANDLE
	}
	abi, err := e.requireABI()
	if err != nil {
		return err
	}
	options := &struc.Options{Order: binary.BigEndian}
	s := StrucStream{bytes.NewBuffer(p), options}

	var version, sum uint32
	var length uint64
	if err := s.Unpack(&version, &sum, &length); err != nil {
		return errors.Wrap(err, "bad savestate header")
	}
	if version != saveVersion {
		return errors.Errorf("unsupported savestate version %d", version)
	}
	if length > uint64(len(p))-16 {
		return errors.New("savestate truncated")
	}
	data := p[16 : 16+length]
	if crc32.ChecksumIEEE(data) != sum {
		return errors.New("savestate checksum mismatch")
	}
	body, err := snappy.Decode(nil, data)
	if err != nil {
		return errors.Wrap(err, "savestate decompression failed")
	}
	rd := bytes.NewBuffer(body)
	s = StrucStream{rd, options}

	var sarch, smode uint32
	if err := s.Unpack(&sarch, &smode); err != nil {
		return err
	}
	if arch.Arch(sarch) != e.arch || arch.Mode(smode) != abi.Mode() {
		return errors.Errorf("savestate is for %s, not %s", arch.Arch(sarch), e.arch)
	}

	var nregs uint64
	if err := s.Unpack(&nregs); err != nil {
		return err
	}
	for i := uint64(0); i < nregs; i++ {
		var enum, val uint64
		if err := s.Unpack(&enum, &val); err != nil {
			return err
		}
		if err := e.RegWrite(int(enum), val); err != nil {
			return errors.Wrapf(err, "restoring register %d", enum)
		}
	}

	var nregions uint64
	if err := s.Unpack(&nregions); err != nil {
		return err
	}
	for i := uint64(0); i < nregions; i++ {
		var addr, size uint64
		var prot uint32
		if err := s.Unpack(&addr, &size, &prot); err != nil {
			return err
		}
		if size > uint64(rd.Len()) {
			return errors.Errorf("savestate memory at %#x truncated", addr)
		}
		mem := make([]byte, size)
		if _, err := io.ReadFull(rd, mem); err != nil {
			return errors.Wrapf(err, "savestate memory at %#x truncated", addr)
		}
		if err := e.MemMap(addr, size, int(prot)); err != nil && err != cpu.ERR_MAP {
			return errors.Wrapf(err, "restoring mapping at %#x", addr)
		}
		if err := e.MemWrite(addr, mem); err != nil {
			return errors.Wrapf(err, "restoring memory at %#x", addr)
		}
	}
	return nil
}
