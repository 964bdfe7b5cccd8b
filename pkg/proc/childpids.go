package proc

import "sort"

// PidPair is one (child, parent) entry of a process-table snapshot.
type PidPair struct {
	Child  int
	Parent int
}

// FilterChildPids returns the subset of processes that are descendants of
// targetPid. processes maps pid to parent pid for every process on the
// system. A pid is included once its parent chain reaches targetPid; a
// self-referential or missing parent entry terminates the walk so that
// corrupted or racing pid tables cannot loop forever.
func FilterChildPids(targetPid int, processes map[int]int) []PidPair {
	var ret []PidPair
	for child, parent := range processes {
		current := parent
		for {
			if current == targetPid {
				ret = append(ret, PidPair{Child: child, Parent: parent})
				break
			}
			next, ok := processes[current]
			if !ok || next == current {
				break
			}
			current = next
		}
	}
	sort.Slice(ret, func(i, j int) bool { return ret[i].Child < ret[j].Child })
	return ret
}
