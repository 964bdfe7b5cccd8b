package proc

import (
	"errors"
	"fmt"
)

// ErrProcessDetached is returned when an operation is attempted on a
// Process after Detach has been called on it.
var ErrProcessDetached = errors.New("process has been detached")

// ErrUnwindUnsupported is returned by Process.Unwinder on architectures
// where stack unwinding has not been implemented. Returning an error is
// preferable to a heuristic that silently produces wrong addresses.
var ErrUnwindUnsupported = errors.New("stack unwinding is not supported on this architecture")

// ErrProcessExited indicates that the target process has exited while we
// were inspecting it.
type ErrProcessExited struct {
	Pid int
}

func (pe ErrProcessExited) Error() string {
	return fmt.Sprintf("process %d has exited", pe.Pid)
}

// NoBinaryForAddressError is returned when an address cannot be matched
// to any binary mapped into the target's address space. The most common
// cause is a stale module map: the target loaded a shared object after
// the map was built. Callers should reload the module map and retry once.
type NoBinaryForAddressError struct {
	Addr uint64
}

func (e *NoBinaryForAddressError) Error() string {
	return fmt.Sprintf("no binary found for address 0x%016x, try reloading the module map", e.Addr)
}

// BinaryParseError wraps a failure to parse a binary's symbol or debug
// information.
type BinaryParseError struct {
	Err error
}

func (e *BinaryParseError) Error() string { return e.Err.Error() }

func (e *BinaryParseError) Unwrap() error { return e.Err }

// IOError wraps an I/O failure, typically a short or failed read of the
// target's memory or of a /proc file.
type IOError struct {
	Err error
}

func (e *IOError) Error() string { return e.Err.Error() }

func (e *IOError) Unwrap() error { return e.Err }

// OSError wraps a failed process-control call (ptrace, wait, ...).
type OSError struct {
	Err error
}

func (e *OSError) Error() string { return e.Err.Error() }

func (e *OSError) Unwrap() error { return e.Err }

// UnwindError wraps a failure of a single unwind step.
type UnwindError struct {
	Err error
}

func (e *UnwindError) Error() string { return e.Err.Error() }

func (e *UnwindError) Unwrap() error { return e.Err }

// OtherError describes a platform condition that does not fit any other
// error in this package.
type OtherError struct {
	Msg string
}

func (e *OtherError) Error() string { return e.Msg }
