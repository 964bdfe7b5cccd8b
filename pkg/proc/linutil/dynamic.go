package linutil

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

const (
	maxNumLibraries      = 1000000 // maximum number of loaded libraries, to avoid walking forever on corrupted memory
	maxLibraryPathLength = 1000000 // maximum length for the path of a library, to avoid reading forever on corrupted memory
)

// ErrTooManyLibraries is returned when the link map chain exceeds
// maxNumLibraries entries.
var ErrTooManyLibraries = errors.New("number of loaded libraries exceeds maximum")

const (
	_DT_NULL  = 0  // DT_NULL as defined by SysV ABI specification
	_DT_DEBUG = 21 // DT_DEBUG as defined by SysV ABI specification
)

// MemoryReader is the subset of the target-memory capability this
// package needs to walk loader data structures.
type MemoryReader interface {
	ReadMemory(buf []byte, addr uint64) error
}

// LinkMapEntry is one node of the dynamic linker's link map: a loaded
// object's path and the base address it was relocated to.
type LinkMapEntry struct {
	Addr uint64
	Name string
}

// readUintRaw reads an integer of ptrSize bytes, with the specified byte order, from reader.
func readUintRaw(reader io.Reader, order binary.ByteOrder, ptrSize int) (uint64, error) {
	switch ptrSize {
	case 4:
		var n uint32
		if err := binary.Read(reader, order, &n); err != nil {
			return 0, err
		}
		return uint64(n), nil
	case 8:
		var n uint64
		if err := binary.Read(reader, order, &n); err != nil {
			return 0, err
		}
		return n, nil
	}
	return 0, fmt.Errorf("not supported ptr size %d", ptrSize)
}

func readPtr(mem MemoryReader, ptrSize int, addr uint64) (uint64, error) {
	ptrbuf := make([]byte, ptrSize)
	if err := mem.ReadMemory(ptrbuf, addr); err != nil {
		return 0, err
	}
	return readUintRaw(bytes.NewReader(ptrbuf), binary.LittleEndian, ptrSize)
}

// DynamicDebugAddr searches the .dynamic section mapped at dynAddr in
// the target for the DT_DEBUG entry and returns its value, the address
// of the dynamic linker's r_debug struct. It returns 0 if there is no
// DT_DEBUG entry.
func DynamicDebugAddr(mem MemoryReader, ptrSize int, dynAddr, dynSize uint64) (uint64, error) {
	dynbuf := make([]byte, dynSize)
	if err := mem.ReadMemory(dynbuf, dynAddr); err != nil {
		return 0, err
	}

	rd := bytes.NewReader(dynbuf)
	for {
		tag, err := readUintRaw(rd, binary.LittleEndian, ptrSize)
		if err != nil {
			return 0, err
		}
		val, err := readUintRaw(rd, binary.LittleEndian, ptrSize)
		if err != nil {
			return 0, err
		}
		switch tag {
		case _DT_NULL:
			return 0, nil
		case _DT_DEBUG:
			return val, nil
		}
	}
}

// LoadedLibraries walks the dynamic linker's link map starting from the
// r_debug struct at debugAddr and returns every node. The first node is
// conventionally the main executable with an empty or self-referential
// name. See the SysV ABI for a description of how the .dynamic section
// works: https://www.sco.com/developers/gabi/latest/contents.html
func LoadedLibraries(mem MemoryReader, ptrSize int, debugAddr uint64) ([]LinkMapEntry, error) {
	// Offsets of the fields of the r_debug and link_map structs, see
	// /usr/include/elf/link.h for a full description of those structs.
	debugMapOffset := uint64(ptrSize)

	rMap, err := readPtr(mem, ptrSize, debugAddr+debugMapOffset)
	if err != nil {
		return nil, err
	}

	var libs []LinkMapEntry
	for rMap != 0 {
		if len(libs) > maxNumLibraries {
			return nil, ErrTooManyLibraries
		}
		lm, next, err := readLinkMapNode(mem, ptrSize, rMap)
		if err != nil {
			return nil, err
		}
		libs = append(libs, lm)
		rMap = next
	}
	return libs, nil
}

func readLinkMapNode(mem MemoryReader, ptrSize int, rMap uint64) (LinkMapEntry, uint64, error) {
	// link_map layout: l_addr, l_name, l_ld, l_next, l_prev.
	var ptrs [5]uint64
	for i := range ptrs {
		var err error
		ptrs[i], err = readPtr(mem, ptrSize, rMap+uint64(ptrSize*i))
		if err != nil {
			return LinkMapEntry{}, 0, err
		}
	}
	name, err := readCString(mem, ptrs[1])
	if err != nil {
		return LinkMapEntry{}, 0, err
	}
	return LinkMapEntry{Addr: ptrs[0], Name: name}, ptrs[3], nil
}

func readCString(mem MemoryReader, addr uint64) (string, error) {
	if addr == 0 {
		return "", nil
	}
	buf := make([]byte, 1)
	r := []byte{}
	for {
		if len(r) > maxLibraryPathLength {
			return "", fmt.Errorf("error reading libraries: string too long (%d)", len(r))
		}
		if err := mem.ReadMemory(buf, addr); err != nil {
			return "", err
		}
		if buf[0] == 0 {
			break
		}
		r = append(r, buf[0])
		addr++
	}
	return string(r), nil
}
