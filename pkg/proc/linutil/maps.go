package linutil

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Mapping is one entry of /proc/<pid>/maps.
type Mapping struct {
	Start, End uint64
	Perm       string
	Offset     uint64
	Dev        string
	Filename   string
}

// Read returns whether the mapping is readable.
func (m *Mapping) Read() bool { return len(m.Perm) > 0 && m.Perm[0] == 'r' }

// Exec returns whether the mapping is executable.
func (m *Mapping) Exec() bool { return len(m.Perm) > 2 && m.Perm[2] == 'x' }

// Mappings reads and parses /proc/<pid>/maps.
func Mappings(pid int) ([]Mapping, error) {
	buf, err := os.ReadFile(fmt.Sprintf("/proc/%d/maps", pid))
	if err != nil {
		return nil, err
	}
	return ParseMappings(string(buf))
}

// ParseMappings parses the contents of a /proc/<pid>/maps file.
func ParseMappings(data string) ([]Mapping, error) {
	lines := strings.Split(data, "\n")
	r := make([]Mapping, 0, len(lines))
	for lineno, line := range lines {
		if line == "" {
			continue
		}
		m, err := parseMapsLine(lineno+1, line)
		if err != nil {
			return nil, err
		}
		r = append(r, m)
	}
	return r, nil
}

func parseMapsLine(lineno int, in string) (Mapping, error) {
	var m Mapping
	fields := strings.SplitN(in, " ", 6)
	if len(fields) < 5 {
		return m, fmt.Errorf("malformed /proc/pid/maps on line %d: %q (wrong number of fields)", lineno, in)
	}

	v := strings.Split(fields[0], "-")
	if len(v) != 2 {
		return m, fmt.Errorf("malformed /proc/pid/maps on line %d: %q (bad first field)", lineno, in)
	}
	var err error
	m.Start, err = strconv.ParseUint(v[0], 16, 64)
	if err != nil {
		return m, fmt.Errorf("malformed /proc/pid/maps on line %d: %q (%v)", lineno, in, err)
	}
	m.End, err = strconv.ParseUint(v[1], 16, 64)
	if err != nil {
		return m, fmt.Errorf("malformed /proc/pid/maps on line %d: %q (%v)", lineno, in, err)
	}

	m.Perm = fields[1]
	if len(m.Perm) < 4 {
		return m, fmt.Errorf("malformed /proc/pid/maps on line %d: %q (permissions column too short)", lineno, in)
	}

	m.Offset, err = strconv.ParseUint(fields[2], 16, 64)
	if err != nil {
		return m, fmt.Errorf("malformed /proc/pid/maps on line %d: %q (%v)", lineno, in, err)
	}

	m.Dev = fields[3]

	// fields[4] is the inode; anonymous mappings have no sixth field.
	if len(fields) == 6 {
		m.Filename = strings.TrimLeft(fields[5], " ")
	}
	return m, nil
}
