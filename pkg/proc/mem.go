package proc

import (
	"unsafe"
)

// MemoryReader reads memory out of a target address space. The offset is
// a uint64 so that it can address all of 64-bit memory, regardless of the
// size of a pointer in the observing process.
//
// ReadMemory either fills buf completely with bytes copied from the
// target's address space starting at addr, or returns an error. A partial
// read (unmapped page, permission denial, target exited mid-read) is
// reported as an error and the contents of buf are undefined.
type MemoryReader interface {
	ReadMemory(buf []byte, addr uint64) error
}

// Copy allocates a buffer of the given length and fills it from the
// target's memory at addr.
func Copy(mem MemoryReader, addr uint64, length int) ([]byte, error) {
	data := make([]byte, length)
	if length == 0 {
		return data, nil
	}
	if err := mem.ReadMemory(data, addr); err != nil {
		return nil, err
	}
	return data, nil
}

// CopyStruct copies a value of type T out of the target's memory at addr,
// reinterpreting the raw bytes as a T.
//
// This is the one deliberately trust-the-caller primitive in this
// package: the bytes come from a foreign address space and are never
// validated. T must be plain fixed-layout data. It must not contain
// pointers, slices, strings, maps, channels, interfaces or anything else
// whose in-memory representation carries invariants that arbitrary bytes
// could violate.
func CopyStruct[T any](mem MemoryReader, addr uint64) (T, error) {
	var v T
	buf := unsafe.Slice((*byte)(unsafe.Pointer(&v)), unsafe.Sizeof(v))
	if err := mem.ReadMemory(buf, addr); err != nil {
		var zero T
		return zero, err
	}
	return v, nil
}

// CopyPointer follows a pointer read out of the target process: ptr is an
// address in the target's address space that points to a T, and the T it
// points to is returned. It is equivalent to CopyStruct at that address
// and exists so call sites read like pointer dereferences while making
// clear that every dereference crosses a process boundary. The trust
// contract of CopyStruct applies.
func CopyPointer[T any](mem MemoryReader, ptr uint64) (T, error) {
	return CopyStruct[T](mem, ptr)
}

// CopyVec copies length contiguous values of type T starting at addr.
// The trust contract of CopyStruct applies to every element.
func CopyVec[T any](mem MemoryReader, addr uint64, length int) ([]T, error) {
	out := make([]T, length)
	if length == 0 {
		return out, nil
	}
	sz := int(unsafe.Sizeof(out[0])) * length
	buf := unsafe.Slice((*byte)(unsafe.Pointer(&out[0])), sz)
	if err := mem.ReadMemory(buf, addr); err != nil {
		return nil, err
	}
	return out, nil
}

// LocalProcess is a MemoryReader over the observer's own address space.
// Its read is a plain in-process memory copy, so addr must be a valid
// local address for len(buf) bytes. It exists to exercise the generic
// copy helpers without a second process.
type LocalProcess struct{}

func (LocalProcess) ReadMemory(buf []byte, addr uint64) error {
	src := unsafe.Slice((*byte)(unsafe.Pointer(uintptr(addr))), len(buf))
	copy(buf, src)
	return nil
}
