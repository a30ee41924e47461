package debugger

import (
	"strings"
	"testing"

	"llsvm/debugdb"
	"llsvm/vm"
)

// TestFormatVariableDereferencesPointerTag exercises the pointer/array
// dereference path in formatDeref, which a TypeTag that could only ever be
// TypeOther could never reach.
func TestFormatVariableDereferencesPointerTag(t *testing.T) {
	var registers [vm.NumRegisters]uint64
	s := vm.NewState(nil, &registers)

	target := uint64(200)
	copy(s.Stack()[target:], []byte("hi\x00"))

	ptrAddr := uint64(100)
	putU64(s.Stack()[ptrAddr:], target)

	v := debugdb.VariableLocation{
		TypeTag:  debugdb.TypeU8Ptr,
		Position: debugdb.GlobalStackOffset,
		Offset:   ptrAddr,
		Name:     "p",
	}

	assertDbg(t, isPointerOrArrayTag(v.TypeTag), "TypeU8Ptr must be recognized as a pointer/array tag")

	out := FormatVariable(s, v)
	assertDbg(t, strings.Contains(out, `ascii="hi"`), "expected dereferenced ascii preview in output, got %q", out)
}

func putU64(b []byte, v uint64) {
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (8 * i))
	}
}
