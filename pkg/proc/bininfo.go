package proc

import (
	"debug/dwarf"
	"debug/elf"
	"errors"
	"fmt"
	"sort"
	"sync"

	lru "github.com/hashicorp/golang-lru"
	"github.com/ianlancetaylor/demangle"

	"github.com/I-Al-Istannen/remoteprocess/pkg/logflags"
)

// imageCacheSize bounds how many parsed binaries are kept in memory at
// once. Parsing is the expensive part of symbolication; a process
// typically touches far fewer than this many distinct modules.
const imageCacheSize = 128

// Symbolicator resolves addresses in the target to function name,
// source file and line, using debug metadata parsed from the owning
// binary. Metadata is parsed lazily on the first lookup into a module
// and cached for reuse.
type Symbolicator struct {
	modules *ModuleList

	mu     sync.Mutex
	images *lru.Cache // "path@base" -> *binaryImage
}

// Symbolicator builds a resolver bound to the process's module map.
func (p *Process) Symbolicator() (*Symbolicator, error) {
	modules, err := p.Modules()
	if err != nil {
		return nil, err
	}
	return NewSymbolicator(modules)
}

// NewSymbolicator builds a resolver over an existing module list.
func NewSymbolicator(modules *ModuleList) (*Symbolicator, error) {
	images, err := lru.New(imageCacheSize)
	if err != nil {
		return nil, &OtherError{Msg: err.Error()}
	}
	return &Symbolicator{modules: modules, images: images}, nil
}

// Modules returns the module list the symbolicator resolves against.
// Reload it and retry when Symbolicate reports NoBinaryForAddressError;
// that error is the expected signal for "a module loaded since the map
// was built".
func (s *Symbolicator) Modules() *ModuleList {
	return s.modules
}

// Symbolicate resolves addr and delivers the resulting frame to the
// callback, so the caller decides whether frame data is retained or
// rendered immediately. demangleNames selects whether mangled symbol
// names are demangled before being placed in the frame. Function, file
// and line are individually absent when the binary carries no metadata
// for them; that is not an error.
func (s *Symbolicator) Symbolicate(addr uint64, demangleNames bool, cb func(*StackFrame)) error {
	module, err := s.modules.Find(addr)
	if err != nil {
		return err
	}
	img, err := s.image(module)
	if err != nil {
		return err
	}
	cb(img.frameFor(addr, demangleNames))
	return nil
}

func (s *Symbolicator) image(m *Module) (*binaryImage, error) {
	key := fmt.Sprintf("%s@%x", m.Path, m.Base)
	s.mu.Lock()
	defer s.mu.Unlock()
	if img, ok := s.images.Get(key); ok {
		return img.(*binaryImage), nil
	}
	img, err := openBinaryImage(m)
	if err != nil {
		return nil, err
	}
	s.images.Add(key, img)
	return img, nil
}

// binaryImage is the parsed debug metadata of one mapped binary.
type binaryImage struct {
	path  string
	base  uint64
	etype elf.Type
	syms  []elfSym // sorted by addr
	dw    *dwarf.Data

	mu sync.Mutex // protects the dwarf reader inside dw
}

type elfSym struct {
	addr, size uint64
	name       string
}

func openBinaryImage(m *Module) (*binaryImage, error) {
	f, err := elf.Open(m.Path)
	if err != nil {
		return nil, &BinaryParseError{Err: err}
	}
	defer f.Close()

	img := &binaryImage{path: m.Path, base: m.Base, etype: f.Type}

	syms, err := f.Symbols()
	if err != nil && !errors.Is(err, elf.ErrNoSymbols) {
		return nil, &BinaryParseError{Err: err}
	}
	dynsyms, err := f.DynamicSymbols()
	if err != nil && !errors.Is(err, elf.ErrNoSymbols) {
		return nil, &BinaryParseError{Err: err}
	}
	for _, sym := range append(syms, dynsyms...) {
		if elf.ST_TYPE(sym.Info) != elf.STT_FUNC || sym.Value == 0 || sym.Name == "" {
			continue
		}
		img.syms = append(img.syms, elfSym{addr: sym.Value, size: sym.Size, name: sym.Name})
	}
	sort.Slice(img.syms, func(i, j int) bool { return img.syms[i].addr < img.syms[j].addr })

	img.dw, err = f.DWARF()
	if err != nil {
		// Stripped or split debug info: symbolication degrades to
		// symbol names only.
		logflags.SymbolLogger().Debugf("no line information for %s: %v", m.Path, err)
		img.dw = nil
	}
	return img, nil
}

func (img *binaryImage) frameFor(addr uint64, demangleNames bool) *StackFrame {
	// Symbol values in an ET_EXEC binary are absolute addresses; in a
	// shared object or PIE they are relative to the load base.
	off := addr
	if img.etype == elf.ET_DYN {
		off = addr - img.base
	}
	frame := &StackFrame{Addr: addr, Module: img.path}
	if name, ok := img.lookupSym(off); ok {
		if demangleNames {
			name = demangle.Filter(name)
		}
		frame.Function = name
	}
	if img.dw != nil {
		frame.File, frame.Line = img.lineForPC(off)
	}
	return frame
}

// lookupSym returns the name of the nearest function symbol at or
// before off.
func (img *binaryImage) lookupSym(off uint64) (string, bool) {
	i := sort.Search(len(img.syms), func(i int) bool { return img.syms[i].addr > off })
	if i == 0 {
		return "", false
	}
	sym := img.syms[i-1]
	if sym.size > 0 && off >= sym.addr+sym.size {
		return "", false
	}
	return sym.name, true
}

func (img *binaryImage) lineForPC(off uint64) (string, int) {
	img.mu.Lock()
	defer img.mu.Unlock()
	cu, err := img.dw.Reader().SeekPC(off)
	if err != nil || cu == nil {
		return "", 0
	}
	lr, err := img.dw.LineReader(cu)
	if err != nil || lr == nil {
		return "", 0
	}
	var entry dwarf.LineEntry
	if err := lr.SeekPC(off, &entry); err != nil || entry.File == nil {
		return "", 0
	}
	return entry.File.Name, entry.Line
}
