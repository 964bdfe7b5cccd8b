package proc

import (
	"bytes"
	"runtime"
	"testing"
	"unsafe"
)

type point struct {
	X int32
	Y int64
}

func TestCopyStruct(t *testing.T) {
	original := point{X: 10, Y: 20}
	addr := uint64(uintptr(unsafe.Pointer(&original)))

	copied, err := CopyStruct[point](LocalProcess{}, addr)
	if err != nil {
		t.Fatalf("CopyStruct: %v", err)
	}
	runtime.KeepAlive(&original)
	if copied != original {
		t.Errorf("expected %+v, got %+v", original, copied)
	}
}

func TestCopyPointer(t *testing.T) {
	original := point{X: 15, Y: 25}
	ptr := uint64(uintptr(unsafe.Pointer(&original)))

	copied, err := CopyPointer[point](LocalProcess{}, ptr)
	if err != nil {
		t.Fatalf("CopyPointer: %v", err)
	}
	runtime.KeepAlive(&original)
	if copied != original {
		t.Errorf("expected %+v, got %+v", original, copied)
	}
}

func TestCopy(t *testing.T) {
	data := []byte{1, 2, 3, 4, 5, 6, 7, 8}
	addr := uint64(uintptr(unsafe.Pointer(&data[0])))

	for length := 0; length <= len(data); length++ {
		buf, err := Copy(LocalProcess{}, addr, length)
		if err != nil {
			t.Fatalf("Copy length %d: %v", length, err)
		}
		if len(buf) != length {
			t.Fatalf("Copy length %d: got buffer of length %d", length, len(buf))
		}
		if !bytes.Equal(buf, data[:length]) {
			t.Errorf("Copy length %d: got %v, want %v", length, buf, data[:length])
		}
	}
	runtime.KeepAlive(&data)
}

func TestCopyVec(t *testing.T) {
	original := [4]point{{1, 2}, {3, 4}, {5, 6}, {7, 8}}
	addr := uint64(uintptr(unsafe.Pointer(&original[0])))

	vec, err := CopyVec[point](LocalProcess{}, addr, len(original))
	if err != nil {
		t.Fatalf("CopyVec: %v", err)
	}
	if len(vec) != len(original) {
		t.Fatalf("expected %d elements, got %d", len(original), len(vec))
	}
	elemSize := uint64(unsafe.Sizeof(original[0]))
	for i := range original {
		if vec[i] != original[i] {
			t.Errorf("element %d: expected %+v, got %+v", i, original[i], vec[i])
		}
		single, err := CopyStruct[point](LocalProcess{}, addr+uint64(i)*elemSize)
		if err != nil {
			t.Fatalf("CopyStruct element %d: %v", i, err)
		}
		if single != vec[i] {
			t.Errorf("element %d: CopyVec %+v disagrees with CopyStruct %+v", i, vec[i], single)
		}
	}
	runtime.KeepAlive(&original)
}

func TestCopyVecEmpty(t *testing.T) {
	vec, err := CopyVec[point](LocalProcess{}, 0, 0)
	if err != nil {
		t.Fatalf("CopyVec: %v", err)
	}
	if len(vec) != 0 {
		t.Errorf("expected empty slice, got %v", vec)
	}
}
