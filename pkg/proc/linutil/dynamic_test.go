package linutil

import (
	"encoding/binary"
	"errors"
	"testing"
)

// fakeMemory backs a MemoryReader with a flat byte slice starting at base.
type fakeMemory struct {
	base uint64
	data []byte
}

func (m *fakeMemory) ReadMemory(buf []byte, addr uint64) error {
	if addr < m.base || addr+uint64(len(buf)) > m.base+uint64(len(m.data)) {
		return errors.New("read outside mapped region")
	}
	copy(buf, m.data[addr-m.base:])
	return nil
}

func (m *fakeMemory) putPtr(addr, val uint64) {
	binary.LittleEndian.PutUint64(m.data[addr-m.base:], val)
}

func (m *fakeMemory) putString(addr uint64, s string) {
	copy(m.data[addr-m.base:], s)
	m.data[addr-m.base+uint64(len(s))] = 0
}

func TestDynamicDebugAddr(t *testing.T) {
	mem := &fakeMemory{base: 0x1000, data: make([]byte, 0x100)}
	// .dynamic entries: (DT_NEEDED, x), (DT_DEBUG, 0xbeef), (DT_NULL, 0)
	mem.putPtr(0x1000, 1)
	mem.putPtr(0x1008, 0x42)
	mem.putPtr(0x1010, _DT_DEBUG)
	mem.putPtr(0x1018, 0xbeef)
	mem.putPtr(0x1020, _DT_NULL)
	mem.putPtr(0x1028, 0)

	addr, err := DynamicDebugAddr(mem, 8, 0x1000, 0x30)
	if err != nil {
		t.Fatalf("DynamicDebugAddr: %v", err)
	}
	if addr != 0xbeef {
		t.Errorf("expected 0xbeef, got %#x", addr)
	}
}

func TestDynamicDebugAddrMissing(t *testing.T) {
	mem := &fakeMemory{base: 0x1000, data: make([]byte, 0x20)}
	mem.putPtr(0x1000, _DT_NULL)
	mem.putPtr(0x1008, 0)

	addr, err := DynamicDebugAddr(mem, 8, 0x1000, 0x10)
	if err != nil {
		t.Fatalf("DynamicDebugAddr: %v", err)
	}
	if addr != 0 {
		t.Errorf("expected 0 for a .dynamic without DT_DEBUG, got %#x", addr)
	}
}

func TestLoadedLibraries(t *testing.T) {
	mem := &fakeMemory{base: 0x1000, data: make([]byte, 0x1000)}

	const (
		debugAddr = 0x1000 // r_debug
		node1     = 0x1100 // main executable
		node2     = 0x1200 // libc
		name1     = 0x1300
		name2     = 0x1340
	)
	mem.putPtr(debugAddr+8, node1) // r_debug.r_map

	// link_map: l_addr, l_name, l_ld, l_next, l_prev
	mem.putPtr(node1, 0)
	mem.putPtr(node1+8, name1)
	mem.putPtr(node1+24, node2)
	mem.putString(name1, "")

	mem.putPtr(node2, 0x7f0000000000)
	mem.putPtr(node2+8, name2)
	mem.putPtr(node2+24, 0)
	mem.putString(name2, "/lib/x86_64-linux-gnu/libc.so.6")

	libs, err := LoadedLibraries(mem, 8, debugAddr)
	if err != nil {
		t.Fatalf("LoadedLibraries: %v", err)
	}
	if len(libs) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(libs))
	}
	if libs[0].Addr != 0 || libs[0].Name != "" {
		t.Errorf("wrong first entry: %+v", libs[0])
	}
	if libs[1].Addr != 0x7f0000000000 || libs[1].Name != "/lib/x86_64-linux-gnu/libc.so.6" {
		t.Errorf("wrong second entry: %+v", libs[1])
	}
}

func TestLoadedLibrariesCycle(t *testing.T) {
	mem := &fakeMemory{base: 0x1000, data: make([]byte, 0x200)}

	const (
		debugAddr = 0x1000
		node      = 0x1100
	)
	mem.putPtr(debugAddr+8, node)
	mem.putPtr(node, 0x1234)
	mem.putPtr(node+8, 0)    // NULL l_name
	mem.putPtr(node+24, node) // l_next points back at itself

	if _, err := LoadedLibraries(mem, 8, debugAddr); !errors.Is(err, ErrTooManyLibraries) {
		t.Errorf("expected ErrTooManyLibraries on a link map cycle, got %v", err)
	}
}

func TestReadCString(t *testing.T) {
	mem := &fakeMemory{base: 0x1000, data: make([]byte, 0x40)}
	mem.putString(0x1000, "hello")

	s, err := readCString(mem, 0x1000)
	if err != nil {
		t.Fatalf("readCString: %v", err)
	}
	if s != "hello" {
		t.Errorf("expected %q, got %q", "hello", s)
	}

	s, err = readCString(mem, 0)
	if err != nil || s != "" {
		t.Errorf("NULL name should read as empty, got %q, %v", s, err)
	}
}
