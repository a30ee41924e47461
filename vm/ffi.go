package vm

import "math"

// ForeignArgTag distinguishes integer from float arguments in the parameter
// block CALL_EXTERNAL lays down before invoking the bridge.
type ForeignArgTag uint64

const (
	foreignArgTerminator ForeignArgTag = 0
	foreignArgInt        ForeignArgTag = 1
	// Any non-{0,1} tag means a double argument, per SPEC_FULL.md §4.3.
)

// ForeignArg is one marshaled argument from the parameter block.
type ForeignArg struct {
	IsFloat bool
	Int     uint64
	Float   float64
}

// ForeignCaller is the foreign-call bridge collaborator. The real bridge is
// a platform-specific trampoline that unpacks this block and invokes a host
// function pointer (out of scope per SPEC_FULL.md §1); this module only
// models the block format it consumes and the scalar it returns.
type ForeignCaller interface {
	Call(funcAddr uint64, args []ForeignArg, returnsFloat bool) (result uint64)
}

// noopForeignCaller is the zero-value bridge: it always returns 0, which is
// indistinguishable (per SPEC_FULL.md §7) from a foreign function that
// legitimately returned 0 - foreign-call failure is the script's concern,
// not the VM's.
type noopForeignCaller struct{}

func (noopForeignCaller) Call(uint64, []ForeignArg, bool) uint64 { return 0 }

// maxForeignArgs bounds the reverse-ordered argument walk so a corrupt or
// missing terminator can never run past the stack region.
const maxForeignArgs = 256

// walkForeignCallBlock reads the parameter block below stack[sp-8] downward,
// per SPEC_FULL.md §4.3:
//
//	{tag, value} pairs (tag above value in memory), terminated by tag==0,
//	then one 8-byte return-type flag (0=integer/void, 1=float/double),
//	then one 8-byte function address.
//
// `off` is the running displacement from sp (SPEC_FULL.md §3: operand off
// addresses stack[sp-off]); it starts at 8 (the first tag) and grows by 16
// per pair walked. Arguments are returned in walk order: the pair at
// stack[sp-8] is the first argument.
func (s *State) walkForeignCallBlock() (args []ForeignArg, returnsFloat bool, funcAddr uint64, ok bool) {
	off := int64(8)

	for i := 0; i < maxForeignArgs; i++ {
		tag, ok := s.readU64Stack(off)
		if !ok {
			return nil, false, 0, false
		}
		value, ok := s.readU64Stack(off + 8)
		if !ok {
			return nil, false, 0, false
		}
		off += 16

		if ForeignArgTag(tag) == foreignArgTerminator {
			break
		}
		if ForeignArgTag(tag) == foreignArgInt {
			args = append(args, ForeignArg{IsFloat: false, Int: value})
		} else {
			args = append(args, ForeignArg{IsFloat: true, Float: math.Float64frombits(value)})
		}
	}

	retFlag, ok := s.readU64Stack(off)
	if !ok {
		return nil, false, 0, false
	}
	off += 8

	fnAddr, ok := s.readU64Stack(off)
	if !ok {
		return nil, false, 0, false
	}

	return args, retFlag == 1, fnAddr, true
}

// execCallExternal implements CALL_EXTERNAL: walk the block, invoke the
// bridge, and return its scalar result.
func (s *State) execCallExternal() (result uint64, ok bool) {
	args, returnsFloat, fnAddr, ok := s.walkForeignCallBlock()
	if !ok {
		return 0, false
	}
	return s.foreignCaller.Call(fnAddr, args, returnsFloat), true
}
