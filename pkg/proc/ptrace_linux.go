package proc

import (
	sys "golang.org/x/sys/unix"
)

// ptraceAttach executes the sys.PtraceAttach call.
func ptraceAttach(tid int) error {
	return sys.PtraceAttach(tid)
}

// ptraceDetach executes the sys.PtraceDetach call, resuming the thread.
func ptraceDetach(tid int) error {
	return sys.PtraceDetach(tid)
}

// waitUntilStopped waits for tid to enter ptrace-stop after a
// PTRACE_ATTACH. It must run on the OS thread that attached.
func waitUntilStopped(tid int) error {
	var status sys.WaitStatus
	for {
		wpid, err := sys.Wait4(tid, &status, sys.WALL, nil)
		if err == sys.EINTR {
			continue
		}
		if err != nil {
			return err
		}
		if wpid != tid {
			continue
		}
		if status.Exited() || status.Signaled() {
			return sys.ESRCH
		}
		if status.Stopped() {
			return nil
		}
	}
}
