package proc

import "fmt"

// StackFrame describes one resolved return address. Function, File and
// Line are individually optional: an empty string or zero means the debug
// information needed to fill the field was genuinely missing, not that
// resolution failed.
type StackFrame struct {
	Addr     uint64
	Module   string
	Function string
	File     string
	Line     int
}

func (f *StackFrame) String() string {
	function := f.Function
	if function == "" {
		function = "?"
	}
	if f.File != "" {
		return fmt.Sprintf("0x%016x %s (%s:%d)", f.Addr, function, f.File, f.Line)
	}
	return fmt.Sprintf("0x%016x %s (%s)", f.Addr, function, f.Module)
}
