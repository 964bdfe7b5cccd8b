package proc

import (
	"io"

	sys "golang.org/x/sys/unix"
)

// Memory returns a MemoryReader over the target's address space. Reads
// go through process_vm_readv(2) and do not require the target to be
// stopped, but reads of memory a running thread is concurrently mutating
// are only guaranteed consistent while that thread is locked.
func (p *Process) Memory() MemoryReader {
	return processMemory{p: p}
}

type processMemory struct {
	p *Process
}

func (m processMemory) ReadMemory(buf []byte, addr uint64) error {
	if m.p.isDetached() {
		return &OSError{Err: ErrProcessDetached}
	}
	if len(buf) == 0 {
		return nil
	}
	local := make([]sys.Iovec, 1)
	local[0].Base = &buf[0]
	local[0].SetLen(len(buf))
	remote := []sys.RemoteIovec{
		{Base: uintptr(addr), Len: len(buf)},
	}
	n, err := sys.ProcessVMReadv(m.p.pid, local, remote, 0)
	if err != nil {
		if err == sys.ESRCH {
			return &IOError{Err: ErrProcessExited{Pid: m.p.pid}}
		}
		return &IOError{Err: err}
	}
	if n != len(buf) {
		// The read ran into an unmapped page. No partial success is
		// observable through this interface.
		return &IOError{Err: io.ErrUnexpectedEOF}
	}
	return nil
}
