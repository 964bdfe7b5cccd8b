package proc

import (
	"fmt"

	sys "golang.org/x/sys/unix"

	"github.com/I-Al-Istannen/remoteprocess/pkg/logflags"
)

// Thread identifies one thread of a target process.
type Thread struct {
	tid int
	p   *Process
}

// ID returns the thread id. On Linux this is the kernel task id, which
// shares the pid namespace.
func (t *Thread) ID() int {
	return t.tid
}

// Active returns whether the thread was running (as opposed to sleeping
// or otherwise idle) at the moment of the call. It is valid without
// holding the thread's lock.
//
// A locked thread is in ptrace-stop and therefore reports idle. Callers
// that want the genuine pre-suspension state must call Active before
// Lock; this ordering is part of the contract and is relied upon by
// existing callers.
func (t *Thread) Active() (bool, error) {
	state, err := t.State()
	if err != nil {
		return false, err
	}
	return state == statusRunning, nil
}

// State returns the raw scheduler state of the thread as reported by the
// kernel ('R' running, 'S' sleeping, 't' trace-stopped, ...).
func (t *Thread) State() (rune, error) {
	if t.p.isDetached() {
		return 0, &OSError{Err: ErrProcessDetached}
	}
	state, err := statState(t.p.pid, t.tid)
	if err != nil {
		return 0, &OSError{Err: err}
	}
	return state, nil
}

// Lock suspends the thread and returns a guard. While the guard is held
// the thread's register and stack state is stable and reads of different
// addresses are consistent with each other. The caller must call Unlock
// on every exit path; until then the thread does not run.
//
// If suspension fails no guard is returned and the thread is left
// exactly as it was. Locking a thread that is already locked by the same
// observer is not supported.
func (t *Thread) Lock() (*ThreadLock, error) {
	var err error
	exec := t.p.execPtraceFunc(func() {
		err = ptraceAttach(t.tid)
		if err != nil {
			return
		}
		err = waitUntilStopped(t.tid)
		if err != nil {
			// The attach succeeded but the thread vanished before
			// stopping; there is nothing to hold a lock on.
			_ = ptraceDetach(t.tid)
		}
	})
	if exec != nil {
		return nil, &OSError{Err: exec}
	}
	if err != nil {
		return nil, &OSError{Err: err}
	}
	return &ThreadLock{thread: t}, nil
}

// ThreadLock represents a suspended thread. It is returned by
// Thread.Lock and must be released with Unlock.
type ThreadLock struct {
	thread   *Thread
	released bool
}

// Unlock resumes the thread. It is safe to call more than once; calls
// after the first are no-ops. If the thread exited while it was locked
// there is nothing left to resume and the failure is logged and
// swallowed. Unlocking after the Process has been detached fails with
// ErrProcessDetached: the detach already invalidated the lock.
func (l *ThreadLock) Unlock() error {
	if l.released {
		return nil
	}
	l.released = true
	t := l.thread
	var err error
	if exec := t.p.execPtraceFunc(func() { err = ptraceDetach(t.tid) }); exec != nil {
		return &OSError{Err: exec}
	}
	if err == sys.ESRCH {
		logflags.ProcLogger().Debugf("thread %d exited while locked", t.tid)
		return nil
	}
	if err != nil {
		return &OSError{Err: err}
	}
	return nil
}

// SuspendAll locks every thread of the target, giving a consistent
// whole-process snapshot. On failure all locks acquired so far are
// released and no locks are returned. The returned locks should be
// released with ResumeAll.
func (p *Process) SuspendAll() ([]*ThreadLock, error) {
	threads, err := p.Threads()
	if err != nil {
		return nil, err
	}
	locks := make([]*ThreadLock, 0, len(threads))
	for _, th := range threads {
		lock, err := th.Lock()
		if err != nil {
			ResumeAll(locks)
			return nil, fmt.Errorf("suspending thread %d: %w", th.ID(), err)
		}
		locks = append(locks, lock)
	}
	return locks, nil
}

// ResumeAll releases the given thread locks, continuing on individual
// failures. The first failure is returned.
func ResumeAll(locks []*ThreadLock) error {
	var first error
	for _, lock := range locks {
		if err := lock.Unlock(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
