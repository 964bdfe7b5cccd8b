//go:build linux && !amd64

package proc

// Unwinder returns ErrUnwindUnsupported: the frame layout and register
// set needed for unwinding are hard-coded per architecture and only
// amd64 is implemented. Reporting unavailability beats producing
// plausible-looking wrong addresses.
func (p *Process) Unwinder() (*Unwinder, error) {
	return nil, ErrUnwindUnsupported
}

// Cursor returns ErrUnwindUnsupported, see Process.Unwinder.
func (u *Unwinder) Cursor(t *Thread) (*Cursor, error) {
	return nil, ErrUnwindUnsupported
}
