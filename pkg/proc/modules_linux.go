package proc

import (
	"debug/elf"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/I-Al-Istannen/remoteprocess/pkg/logflags"
	"github.com/I-Al-Istannen/remoteprocess/pkg/proc/linutil"
)

const ptrSize = strconv.IntSize / 8

// Module is one binary mapped into the target's address space.
type Module struct {
	// Path identifies the binary on disk.
	Path string
	// Base is the lowest address the binary is mapped at.
	Base uint64
	// End is one past the highest mapped address.
	End uint64
}

// Contains returns whether addr falls into the module's mapped range.
func (m *Module) Contains(addr uint64) bool {
	return addr >= m.Base && addr < m.End
}

// ModuleList tracks the binaries (main executable plus loaded shared
// objects) mapped into the target. The list is a snapshot: the target
// can load or unload modules at any time, at which point the list is
// stale until Reload is called. Staleness is a normal operating
// condition, signalled by NoBinaryForAddressError from Find.
type ModuleList struct {
	p *Process

	mu      sync.Mutex
	modules []*Module // sorted by Base
}

// Modules scans the target's loader data structures and memory mappings
// and returns the list of currently mapped binaries.
func (p *Process) Modules() (*ModuleList, error) {
	ml := &ModuleList{p: p}
	if err := ml.Reload(); err != nil {
		return nil, err
	}
	return ml, nil
}

// Reload re-scans the target and replaces the list contents.
func (ml *ModuleList) Reload() error {
	mappings, err := linutil.Mappings(ml.p.pid)
	if err != nil {
		return &OSError{Err: err}
	}

	spans := make(map[string]*addrSpan)
	order := []string{}
	for i := range mappings {
		m := &mappings[i]
		// Skip anonymous mappings and pseudo-files like [stack] and
		// [vdso]; they have no binary to resolve symbols against.
		if m.Filename == "" || strings.HasPrefix(m.Filename, "[") {
			continue
		}
		s, ok := spans[m.Filename]
		if !ok {
			spans[m.Filename] = &addrSpan{lo: m.Start, hi: m.End}
			order = append(order, m.Filename)
			continue
		}
		if m.Start < s.lo {
			s.lo = m.Start
		}
		if m.End > s.hi {
			s.hi = m.End
		}
	}

	// Walk the dynamic linker's link map through target memory. For
	// dynamically linked targets this is the authoritative list; the
	// mappings above provide the address ranges. A static target has no
	// link map and the mappings alone describe it.
	libs, err := ml.linkMap(spans)
	if err != nil {
		logflags.ProcLogger().Debugf("link map walk for %d failed: %v", ml.p.pid, err)
	}
	for _, lib := range libs {
		if lib.Name == "" {
			continue
		}
		if _, ok := spans[lib.Name]; ok {
			continue
		}
		lo, hi, err := elfSpan(lib.Name, lib.Addr)
		if err != nil {
			logflags.ProcLogger().Debugf("could not size %s: %v", lib.Name, err)
			continue
		}
		spans[lib.Name] = &addrSpan{lo: lo, hi: hi}
		order = append(order, lib.Name)
	}

	modules := make([]*Module, 0, len(order))
	for _, path := range order {
		s := spans[path]
		modules = append(modules, &Module{Path: path, Base: s.lo, End: s.hi})
	}
	sort.Slice(modules, func(i, j int) bool { return modules[i].Base < modules[j].Base })

	ml.mu.Lock()
	ml.modules = modules
	ml.mu.Unlock()
	return nil
}

type addrSpan struct{ lo, hi uint64 }

// linkMap walks r_debug. It returns nil entries for statically linked
// targets, which have no dynamic section or no DT_DEBUG.
func (ml *ModuleList) linkMap(spans map[string]*addrSpan) ([]linutil.LinkMapEntry, error) {
	exePath, err := ml.p.ExePath()
	if err != nil {
		return nil, err
	}
	f, err := elf.Open(exePath)
	if err != nil {
		return nil, &BinaryParseError{Err: err}
	}
	defer f.Close()
	dyn := f.Section(".dynamic")
	if dyn == nil {
		return nil, nil
	}

	exeSpan, ok := spans[exePath]
	if !ok {
		return nil, &OtherError{Msg: "executable not found in the target's mappings"}
	}
	minvaddr, _, err := loadSegmentSpan(f)
	if err != nil {
		return nil, &BinaryParseError{Err: err}
	}
	// Load bias: where the first loadable segment landed relative to
	// where the ELF file says it should be. Zero for non-PIE binaries.
	bias := exeSpan.lo - minvaddr

	mem := ml.p.Memory()
	debugAddr, err := linutil.DynamicDebugAddr(mem, ptrSize, dyn.Addr+bias, dyn.Size)
	if err != nil {
		return nil, err
	}
	if debugAddr == 0 {
		return nil, nil
	}
	return linutil.LoadedLibraries(mem, ptrSize, debugAddr)
}

// Find returns the module whose mapped range contains addr. Exactly one
// module can contain any given address. If none does the module map may
// be stale and the caller should Reload and retry once.
func (ml *ModuleList) Find(addr uint64) (*Module, error) {
	ml.mu.Lock()
	defer ml.mu.Unlock()
	i := sort.Search(len(ml.modules), func(i int) bool { return ml.modules[i].Base > addr })
	if i > 0 && ml.modules[i-1].Contains(addr) {
		return ml.modules[i-1], nil
	}
	return nil, &NoBinaryForAddressError{Addr: addr}
}

// All returns the current module snapshot, sorted by base address.
func (ml *ModuleList) All() []*Module {
	ml.mu.Lock()
	defer ml.mu.Unlock()
	r := make([]*Module, len(ml.modules))
	copy(r, ml.modules)
	return r
}

// Paths returns the paths of all modules, sorted by base address.
func (ml *ModuleList) Paths() []string {
	all := ml.All()
	r := make([]string, len(all))
	for i, m := range all {
		r[i] = m.Path
	}
	return r
}

// loadSegmentSpan returns the lowest and highest virtual address covered
// by the file's loadable segments.
func loadSegmentSpan(f *elf.File) (lo, hi uint64, err error) {
	lo = ^uint64(0)
	for _, prog := range f.Progs {
		if prog.Type != elf.PT_LOAD {
			continue
		}
		if prog.Vaddr < lo {
			lo = prog.Vaddr
		}
		if end := prog.Vaddr + prog.Memsz; end > hi {
			hi = end
		}
	}
	if lo == ^uint64(0) {
		return 0, 0, &OtherError{Msg: "no loadable segments"}
	}
	return lo, hi, nil
}

// elfSpan computes the mapped range of a shared object relocated by the
// given bias.
func elfSpan(path string, bias uint64) (lo, hi uint64, err error) {
	f, err := elf.Open(path)
	if err != nil {
		return 0, 0, &BinaryParseError{Err: err}
	}
	defer f.Close()
	lo, hi, err = loadSegmentSpan(f)
	if err != nil {
		return 0, 0, err
	}
	return bias + lo, bias + hi, nil
}
