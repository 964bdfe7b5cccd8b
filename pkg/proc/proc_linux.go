package proc

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"sync"
)

// Process statuses as reported in the state field of /proc/pid/stat.
const (
	statusRunning   = 'R'
	statusTraceStop = 't'

	// Kernel 2.6 reports trace-stop as T, which on modern kernels means
	// job control stop.
	statusTraceStopT = 'T'
)

// Process is a handle on a running process that can be inspected without
// its cooperation. It is the capability token required to enumerate
// threads, read target memory and build the module map.
//
// A Process is valid until Detach is called; operations on a detached
// Process fail with ErrProcessDetached.
type Process struct {
	pid int

	// ptrace(2) expects every call after PTRACE_ATTACH to come from the
	// thread that attached, so all ptrace operations are funneled through
	// a single locked OS thread.
	ptraceChan     chan func()
	ptraceDoneChan chan interface{}

	// detachMu orders sends on ptraceChan against Detach closing it:
	// senders hold it for reading, Detach holds it for writing.
	detachMu sync.RWMutex
	detached bool
}

// Attach returns a handle on the process with the given pid. It fails if
// the pid does not exist or its /proc entry cannot be read. On Linux no
// tracer relationship is established until a thread is locked, so a
// permission failure can also surface later, from Thread.Lock.
func Attach(pid int) (*Process, error) {
	if _, err := os.Stat(fmt.Sprintf("/proc/%d", pid)); err != nil {
		return nil, &OSError{Err: err}
	}
	p := &Process{
		pid:            pid,
		ptraceChan:     make(chan func()),
		ptraceDoneChan: make(chan interface{}),
	}
	go p.handlePtraceFuncs()
	return p, nil
}

func (p *Process) handlePtraceFuncs() {
	runtime.LockOSThread()
	for fn := range p.ptraceChan {
		fn()
		p.ptraceDoneChan <- nil
	}
}

// execPtraceFunc runs fn on the ptrace OS thread. It fails with
// ErrProcessDetached once Detach has been called; the check and the
// channel send happen under detachMu so a concurrent Detach can never
// turn the send into a panic.
func (p *Process) execPtraceFunc(fn func()) error {
	p.detachMu.RLock()
	defer p.detachMu.RUnlock()
	if p.detached {
		return ErrProcessDetached
	}
	p.ptraceChan <- fn
	<-p.ptraceDoneChan
	return nil
}

// isDetached reads the detach flag under detachMu.
func (p *Process) isDetached() bool {
	p.detachMu.RLock()
	defer p.detachMu.RUnlock()
	return p.detached
}

// Detach releases the handle. The target is left running; any still-held
// thread locks become invalid. Detach is idempotent.
func (p *Process) Detach() error {
	p.detachMu.Lock()
	defer p.detachMu.Unlock()
	if p.detached {
		return nil
	}
	p.detached = true
	close(p.ptraceChan)
	close(p.ptraceDoneChan)
	return nil
}

// Valid returns whether the handle can still be used: the process must
// not have been detached from and must still exist.
func (p *Process) Valid() (bool, error) {
	if p.isDetached() {
		return false, ErrProcessDetached
	}
	if _, err := os.Stat(fmt.Sprintf("/proc/%d", p.pid)); err != nil {
		return false, &OSError{Err: ErrProcessExited{Pid: p.pid}}
	}
	return true, nil
}

// Pid returns the process ID of the target.
func (p *Process) Pid() int {
	return p.pid
}

// ExePath returns the path of the executable the target is running.
func (p *Process) ExePath() (string, error) {
	if p.isDetached() {
		return "", &OSError{Err: ErrProcessDetached}
	}
	path, err := os.Readlink(fmt.Sprintf("/proc/%d/exe", p.pid))
	if err != nil {
		return "", &OSError{Err: err}
	}
	return path, nil
}

// Cwd returns the target's current working directory. On Linux this is
// exact; the same call on some other operating systems is documented to
// be only approximately correct.
func (p *Process) Cwd() (string, error) {
	if p.isDetached() {
		return "", &OSError{Err: ErrProcessDetached}
	}
	path, err := os.Readlink(fmt.Sprintf("/proc/%d/cwd", p.pid))
	if err != nil {
		return "", &OSError{Err: err}
	}
	return path, nil
}

// Cmdline returns the command line the target was started with.
func (p *Process) Cmdline() (string, error) {
	if p.isDetached() {
		return "", &OSError{Err: ErrProcessDetached}
	}
	buf, err := os.ReadFile(fmt.Sprintf("/proc/%d/cmdline", p.pid))
	if err != nil {
		return "", &OSError{Err: err}
	}
	args := strings.Split(string(buf), "\x00")
	for i := range args {
		if strings.Contains(args[i], " ") {
			args[i] = strconv.Quote(args[i])
		}
	}
	if len(args) > 0 && args[len(args)-1] == "" {
		args = args[:len(args)-1]
	}
	return strings.Join(args, " "), nil
}

// Threads enumerates the target's threads, ordered by thread id. The
// list is a snapshot: threads can be created or exit at any time.
func (p *Process) Threads() ([]*Thread, error) {
	if p.isDetached() {
		return nil, &OSError{Err: ErrProcessDetached}
	}
	tidpaths, err := filepath.Glob(fmt.Sprintf("/proc/%d/task/*", p.pid))
	if err != nil {
		return nil, &OSError{Err: err}
	}
	if len(tidpaths) == 0 {
		return nil, &OSError{Err: ErrProcessExited{Pid: p.pid}}
	}
	threads := make([]*Thread, 0, len(tidpaths))
	for _, tidpath := range tidpaths {
		tid, err := strconv.Atoi(filepath.Base(tidpath))
		if err != nil {
			return nil, &OtherError{Msg: fmt.Sprintf("unexpected entry in /proc/%d/task: %q", p.pid, filepath.Base(tidpath))}
		}
		threads = append(threads, &Thread{tid: tid, p: p})
	}
	sort.Slice(threads, func(i, j int) bool { return threads[i].tid < threads[j].tid })
	return threads, nil
}

// ChildProcesses returns the (child, parent) pid pairs of every process
// descending from the target, computed from a snapshot of /proc.
func (p *Process) ChildProcesses() ([]PidPair, error) {
	if p.isDetached() {
		return nil, &OSError{Err: ErrProcessDetached}
	}
	des, err := os.ReadDir("/proc")
	if err != nil {
		return nil, &OSError{Err: err}
	}
	processes := make(map[int]int)
	for _, de := range des {
		if !de.IsDir() {
			continue
		}
		pid, err := strconv.Atoi(de.Name())
		if err != nil {
			continue
		}
		ppid, err := statPpid(pid)
		if err != nil {
			// The process exited between the directory listing and the
			// stat read.
			continue
		}
		processes[pid] = ppid
	}
	return FilterChildPids(p.pid, processes), nil
}

// readStat reads /proc/<pid>/task/<tid>/stat and returns the fields that
// follow the comm field. The comm field is the base name of the
// executable in parentheses; it can itself contain spaces and
// parentheses without escaping, so everything up to the last ')' is
// skipped rather than parsed.
func readStat(pid, tid int) ([]string, error) {
	buf, err := os.ReadFile(fmt.Sprintf("/proc/%d/task/%d/stat", pid, tid))
	if err != nil {
		return nil, err
	}
	closeparen := strings.LastIndexByte(string(buf), ')')
	if closeparen < 0 {
		return nil, fmt.Errorf("malformed /proc/%d/task/%d/stat", pid, tid)
	}
	return strings.Fields(string(buf[closeparen+1:])), nil
}

// statState returns the single-character state of the given thread, or 0
// if it cannot be determined.
func statState(pid, tid int) (rune, error) {
	fields, err := readStat(pid, tid)
	if err != nil {
		return 0, err
	}
	if len(fields) < 1 || len(fields[0]) != 1 {
		return 0, fmt.Errorf("malformed /proc/%d/task/%d/stat", pid, tid)
	}
	return rune(fields[0][0]), nil
}

func statPpid(pid int) (int, error) {
	fields, err := readStat(pid, pid)
	if err != nil {
		return 0, err
	}
	// state ppid pgrp ...
	if len(fields) < 2 {
		return 0, fmt.Errorf("malformed /proc/%d/stat", pid)
	}
	return strconv.Atoi(fields[1])
}
