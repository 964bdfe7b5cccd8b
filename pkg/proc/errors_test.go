package proc

import (
	"errors"
	"strings"
	"testing"
)

func TestNoBinaryForAddressErrorMessage(t *testing.T) {
	err := &NoBinaryForAddressError{Addr: 0x1000}
	msg := err.Error()
	if !strings.Contains(msg, "0x0000000000001000") {
		t.Errorf("message does not contain the address: %q", msg)
	}
	if !strings.Contains(msg, "reload") {
		t.Errorf("message does not suggest reloading: %q", msg)
	}
}

func TestWrappedErrorsRenderUnmodified(t *testing.T) {
	inner := errors.New("something went wrong")
	for _, err := range []error{
		&BinaryParseError{Err: inner},
		&IOError{Err: inner},
		&OSError{Err: inner},
		&UnwindError{Err: inner},
	} {
		if err.Error() != inner.Error() {
			t.Errorf("%T renders %q, want %q", err, err.Error(), inner.Error())
		}
		if !errors.Is(err, inner) {
			t.Errorf("%T does not unwrap to its cause", err)
		}
	}
}

func TestProcessExitedInsideOSError(t *testing.T) {
	err := error(&OSError{Err: ErrProcessExited{Pid: 42}})
	var exited ErrProcessExited
	if !errors.As(err, &exited) {
		t.Fatalf("expected ErrProcessExited inside %v", err)
	}
	if exited.Pid != 42 {
		t.Errorf("expected pid 42, got %d", exited.Pid)
	}
}

func TestOtherError(t *testing.T) {
	err := &OtherError{Msg: "odd platform condition"}
	if err.Error() != "odd platform condition" {
		t.Errorf("unexpected message %q", err.Error())
	}
}
