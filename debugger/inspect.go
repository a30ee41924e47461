package debugger

import (
	"fmt"
	"math"
	"strings"

	"llsvm/debugdb"
	"llsvm/vm"
)

// maxDerefBytes bounds how much of a pointer/array target is dumped.
const maxDerefBytes = 32

// PointerRegion identifies which recognized memory region a guarded probe
// found a candidate address in.
type PointerRegion int

const (
	RegionNone PointerRegion = iota
	RegionStack
	RegionCode
)

// probePointer classifies addr against the VM's recognized regions without
// ever indexing out of bounds - the "safety verdict" SPEC_FULL.md §4.7
// requires before any dereference is attempted.
func probePointer(s *vm.State, addr uint64, width uint64) (PointerRegion, bool) {
	if addr+width <= uint64(len(s.Stack())) && addr+width >= addr {
		return RegionStack, true
	}
	if addr+width <= uint64(len(s.Code())) && addr+width >= addr {
		return RegionCode, true
	}
	return RegionNone, false
}

// FormatVariable renders one variable descriptor as the single line the UI
// prints per SPEC_FULL.md §4.7: name, location classifier, formatted value.
func FormatVariable(s *vm.State, v debugdb.VariableLocation) string {
	loc := formatLocation(v)
	val := formatScalar(s, v)
	if isPointerOrArrayTag(v.TypeTag) {
		val = formatDeref(s, v)
	}
	return fmt.Sprintf("%-20s %-20s %s", v.Name, loc, val)
}

func formatLocation(v debugdb.VariableLocation) string {
	switch v.Position {
	case debugdb.InRegister:
		return fmt.Sprintf("register r%d", v.Offset)
	case debugdb.OnStack:
		return fmt.Sprintf("stack[sp-%d]", v.Offset)
	case debugdb.GlobalStackOffset:
		return fmt.Sprintf("stack[%d]", v.Offset)
	case debugdb.CodeBaseOffset:
		return fmt.Sprintf("code[%d]", v.Offset)
	default:
		return "?"
	}
}

func scalarAddr(s *vm.State, v debugdb.VariableLocation) (uint64, bool) {
	switch v.Position {
	case debugdb.OnStack:
		sp := s.SP()
		if int64(sp)-int64(v.Offset) < 0 {
			return 0, false
		}
		return sp - v.Offset, true
	case debugdb.GlobalStackOffset:
		return v.Offset, true
	case debugdb.CodeBaseOffset:
		return v.Offset, true
	default:
		return 0, false
	}
}

func formatScalar(s *vm.State, v debugdb.VariableLocation) string {
	if v.Position == debugdb.InRegister {
		if v.Offset >= vm.NumRegisters {
			return "<BAD_REG>"
		}
		if v.Offset >= 8 {
			return fmt.Sprintf("%v", s.Registers()[v.Offset])
		}
		return fmt.Sprintf("%d", s.Registers()[v.Offset])
	}
	addr, ok := scalarAddr(s, v)
	if !ok {
		return "<BAD_PTR>"
	}
	width := scalarWidth(v.TypeTag)
	region, ok := probePointer(s, addr, width)
	if !ok || region != RegionStack {
		return "<BAD_PTR>"
	}
	return formatBytesAsTag(s.Stack()[addr:addr+width], v.TypeTag)
}

func formatDeref(s *vm.State, v debugdb.VariableLocation) string {
	addr, ok := scalarAddr(s, v)
	if !ok {
		return "<BAD_PTR>"
	}
	// A pointer/array variable's own storage holds the address to dereference.
	width := uint64(8)
	region, ok := probePointer(s, addr, width)
	if !ok || region != RegionStack {
		return "<BAD_PTR>"
	}
	target := leU64(s.Stack()[addr : addr+width])

	n := uint64(maxDerefBytes)
	region, ok = probePointer(s, target, 1)
	if !ok {
		return "<BAD_PTR>"
	}
	var mem []byte
	switch region {
	case RegionStack:
		end := target + n
		if end > uint64(len(s.Stack())) {
			end = uint64(len(s.Stack()))
		}
		mem = s.Stack()[target:end]
	case RegionCode:
		end := target + n
		if end > uint64(len(s.Code())) {
			end = uint64(len(s.Code()))
		}
		mem = s.Code()[target:end]
	default:
		return "<BAD_PTR>"
	}

	return fmt.Sprintf("hex=%x dec=%v ascii=%q", mem, mem, asciiPreview(mem))
}

func asciiPreview(b []byte) string {
	var sb strings.Builder
	for _, c := range b {
		if c == 0 {
			break
		}
		if c >= 0x20 && c < 0x7f {
			sb.WriteByte(c)
		} else {
			sb.WriteByte('.')
		}
	}
	return sb.String()
}

func isPointerOrArrayTag(t debugdb.TypeTag) bool {
	return t.IsPointer() || t.IsArray()
}

func scalarWidth(t debugdb.TypeTag) uint64 {
	switch t.Scalar() {
	case debugdb.TypeU8, debugdb.TypeI8:
		return 1
	case debugdb.TypeU16, debugdb.TypeI16:
		return 2
	case debugdb.TypeU32, debugdb.TypeI32, debugdb.TypeF32:
		return 4
	default:
		return 8
	}
}

func formatBytesAsTag(b []byte, t debugdb.TypeTag) string {
	v := leU64(append(append([]byte{}, b...), make([]byte, 8-len(b))...))
	switch t.Scalar() {
	case debugdb.TypeF32:
		return fmt.Sprintf("%v", math.Float32frombits(uint32(v)))
	case debugdb.TypeF64:
		return fmt.Sprintf("%v", math.Float64frombits(v))
	case debugdb.TypeI8, debugdb.TypeI16, debugdb.TypeI32, debugdb.TypeI64:
		return fmt.Sprintf("%d", signExtend(v, scalarWidth(t)))
	default:
		return fmt.Sprintf("%d", v)
	}
}

func signExtend(v uint64, width uint64) int64 {
	bits := width * 8
	shift := 64 - bits
	return int64(v<<shift) >> shift
}

func leU64(b []byte) uint64 {
	var v uint64
	for i := 0; i < 8 && i < len(b); i++ {
		v |= uint64(b[i]) << (8 * i)
	}
	return v
}
