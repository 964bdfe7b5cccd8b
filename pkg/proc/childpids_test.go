package proc

import (
	"reflect"
	"testing"
)

func TestFilterChildPids(t *testing.T) {
	processes := map[int]int{2: 1, 3: 2, 4: 1, 5: 9}
	got := FilterChildPids(1, processes)
	want := []PidPair{{2, 1}, {3, 2}, {4, 1}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestFilterChildPidsCycle(t *testing.T) {
	// 5 and 6 are each other's parents; the walk must terminate and
	// exclude both.
	processes := map[int]int{2: 1, 5: 6, 6: 5}
	got := FilterChildPids(1, processes)
	want := []PidPair{{2, 1}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestFilterChildPidsSelfParent(t *testing.T) {
	// A self-referential entry that never reaches the target must not
	// loop.
	processes := map[int]int{7: 7}
	if got := FilterChildPids(1, processes); len(got) != 0 {
		t.Errorf("expected no pids, got %v", got)
	}
}

func TestFilterChildPidsEmpty(t *testing.T) {
	if got := FilterChildPids(1, nil); len(got) != 0 {
		t.Errorf("expected no pids, got %v", got)
	}
}
