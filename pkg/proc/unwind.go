package proc

import (
	"encoding/binary"
)

// maxUnwindFrames caps the length of a single stack walk so that a
// corrupted frame pointer chain cannot loop forever.
const maxUnwindFrames = 256

// Unwinder produces call stacks for the target's threads. It is built
// once per Process by Process.Unwinder.
type Unwinder struct {
	p *Process
}

// Cursor is a forward-only iteration over one thread's call stack,
// starting at the thread's current instruction pointer and walking
// outward one calling frame at a time. A Cursor is not restartable;
// build a fresh one to re-walk.
//
// Usage follows the usual iterator shape: Next, then Addr, then check
// Err once Next returns false. A nil Err after exhaustion means the walk
// reached the outermost frame or a frame that cannot be unwound further;
// a truncated trace is not itself an error.
type Cursor struct {
	mem MemoryReader

	pc, sp, bp uint64
	top        bool
	atend      bool
	err        error
	nframes    int
}

func newCursor(mem MemoryReader, pc, sp, bp uint64) *Cursor {
	return &Cursor{mem: mem, pc: pc, sp: sp, bp: bp, top: true}
}

// Next advances the cursor to the next return address. It returns false
// when the stack is exhausted or a step failed; after that it keeps
// returning false.
func (c *Cursor) Next() bool {
	if c.err != nil || c.atend {
		return false
	}
	if c.top {
		// The first address is the instruction pointer itself.
		c.top = false
		return true
	}
	return c.step()
}

// step follows the frame pointer chain one link. Layout per the System V
// AMD64 ABI with frame pointers: [bp] holds the caller's frame pointer,
// [bp+8] the return address, and the caller's stack grows toward higher
// addresses.
func (c *Cursor) step() bool {
	c.nframes++
	if c.nframes >= maxUnwindFrames {
		c.atend = true
		return false
	}
	if c.bp == 0 || c.bp < c.sp || c.bp%8 != 0 {
		// No frame pointer to follow: either the outermost frame or a
		// frame compiled without one. End of the walk.
		c.atend = true
		return false
	}
	newbp, err := readWord(c.mem, c.bp)
	if err != nil {
		c.err = &UnwindError{Err: err}
		return false
	}
	ret, err := readWord(c.mem, c.bp+8)
	if err != nil {
		c.err = &UnwindError{Err: err}
		return false
	}
	if ret == 0 {
		c.atend = true
		return false
	}
	if newbp != 0 && newbp <= c.bp {
		// A saved frame pointer that does not point further up the
		// stack means the chain is corrupt; stop rather than loop.
		c.atend = true
	}
	c.pc = ret
	c.sp = c.bp + 16
	c.bp = newbp
	return true
}

// Addr returns the address the cursor points at. Only valid after Next
// returned true.
func (c *Cursor) Addr() uint64 {
	return c.pc
}

// Err returns the error that ended the walk, if any.
func (c *Cursor) Err() error {
	return c.err
}

func readWord(mem MemoryReader, addr uint64) (uint64, error) {
	buf := make([]byte, 8)
	if err := mem.ReadMemory(buf, addr); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(buf), nil
}
