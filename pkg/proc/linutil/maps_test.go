package linutil

import (
	"os"
	"testing"
)

const mapsSample = `00400000-00452000 r-xp 00000000 08:02 173521      /usr/bin/dbus-daemon
00651000-00652000 r--p 00051000 08:02 173521      /usr/bin/dbus-daemon
00652000-00655000 rw-p 00052000 08:02 173521      /usr/bin/dbus-daemon
00e03000-00e24000 rw-p 00000000 00:00 0           [heap]
7f0f1565b000-7f0f1565e000 rw-p 00000000 00:00 0
7fffb2c0d000-7fffb2c2e000 rw-p 00000000 00:00 0   [stack]
7fffb2d48000-7fffb2d4a000 r-xp 00000000 00:00 0   [vdso]
`

func TestParseMappings(t *testing.T) {
	maps, err := ParseMappings(mapsSample)
	if err != nil {
		t.Fatalf("ParseMappings: %v", err)
	}
	if len(maps) != 7 {
		t.Fatalf("expected 7 mappings, got %d", len(maps))
	}

	first := maps[0]
	if first.Start != 0x400000 || first.End != 0x452000 {
		t.Errorf("wrong range: %#x-%#x", first.Start, first.End)
	}
	if first.Perm != "r-xp" || !first.Read() || !first.Exec() {
		t.Errorf("wrong permissions: %q", first.Perm)
	}
	if first.Offset != 0 || first.Dev != "08:02" {
		t.Errorf("wrong offset/dev: %#x %q", first.Offset, first.Dev)
	}
	if first.Filename != "/usr/bin/dbus-daemon" {
		t.Errorf("wrong filename: %q", first.Filename)
	}

	second := maps[1]
	if second.Offset != 0x51000 {
		t.Errorf("wrong offset: %#x", second.Offset)
	}
	if second.Exec() {
		t.Error("r--p mapping reported executable")
	}

	heap := maps[3]
	if heap.Filename != "[heap]" {
		t.Errorf("wrong pseudo-filename: %q", heap.Filename)
	}

	anon := maps[4]
	if anon.Filename != "" {
		t.Errorf("anonymous mapping has filename %q", anon.Filename)
	}
}

func TestParseMappingsMalformed(t *testing.T) {
	bad := []string{
		"00400000 r-xp 00000000 08:02 173521 /bin/true\n",
		"00400000-zzz r-xp 00000000 08:02 173521 /bin/true\n",
		"00400000-00452000 rx 00000000 08:02 173521 /bin/true\n",
		"00400000-00452000 r-xp qq 08:02 173521 /bin/true\n",
		"garbage\n",
	}
	for _, in := range bad {
		if _, err := ParseMappings(in); err == nil {
			t.Errorf("expected error parsing %q", in)
		}
	}
}

func TestMappingsSelf(t *testing.T) {
	maps, err := Mappings(os.Getpid())
	if err != nil {
		t.Fatalf("Mappings: %v", err)
	}
	if len(maps) == 0 {
		t.Fatal("no mappings for the current process")
	}
	exe, _ := os.Executable()
	for _, m := range maps {
		if m.Filename == exe {
			return
		}
	}
	t.Errorf("executable %s not found in mappings", exe)
}
