package proc

import (
	sys "golang.org/x/sys/unix"
)

// Unwinder returns a stack unwinder for the target. The unwinder chases
// frame pointers, so it needs no per-process unwind tables; frames of
// code compiled without frame pointers truncate the walk.
func (p *Process) Unwinder() (*Unwinder, error) {
	if ok, err := p.Valid(); !ok {
		return nil, err
	}
	return &Unwinder{p: p}, nil
}

// Cursor starts a stack walk for the given thread from its current
// register state. The caller must hold the thread's lock for the whole
// walk; the Unwinder does not lock for them, so that the ownership of
// the suspend lifetime stays with the caller. Walking an unlocked
// thread is not prevented but the thread may be mid-mutation and the
// result is not guaranteed to be a consistent stack.
func (u *Unwinder) Cursor(t *Thread) (*Cursor, error) {
	var regs sys.PtraceRegs
	var err error
	if exec := u.p.execPtraceFunc(func() { err = sys.PtraceGetRegs(t.tid, &regs) }); exec != nil {
		return nil, &OSError{Err: exec}
	}
	if err != nil {
		return nil, &OSError{Err: err}
	}
	return newCursor(u.p.Memory(), regs.Rip, regs.Rsp, regs.Rbp), nil
}
