package vm

import "encoding/binary"

// Decoder performs the sequential, unbuffered reads described in
// SPEC_FULL.md §4.1: one opcode byte, then zero or more fixed-width
// operands. It never looks ahead and never buffers - every Fetch* call
// advances State.ip by exactly the width it consumed.
type decoder struct {
	s *State
}

func (s *State) decoder() decoder { return decoder{s: s} }

// fetchOpcode reads the next opcode byte. Running past the end of the code
// image is reported as ErrProgramFinished, not a decode fault - that is the
// normal "ran off the end" condition the executor checks for.
func (d decoder) fetchOpcode() (Opcode, bool) {
	s := d.s
	if s.ip >= uint64(len(s.code)) {
		return 0, false
	}
	op := Opcode(s.code[s.ip])
	s.ip++
	return op, true
}

// fetchByte reads a single raw byte operand (register reference or width).
func (d decoder) fetchByte() (byte, bool) {
	s := d.s
	if s.ip >= uint64(len(s.code)) {
		return 0, false
	}
	b := s.code[s.ip]
	s.ip++
	return b, true
}

// fetchRegister reads a register-reference operand and validates it.
func (d decoder) fetchRegister() (byte, bool) {
	b, ok := d.fetchByte()
	if !ok || !validRegister(b) {
		return 0, false
	}
	return b, true
}

// fetchWidth reads a width-in-bytes operand and validates it is 1, 2, 4 or 8.
func (d decoder) fetchWidth() (byte, bool) {
	b, ok := d.fetchByte()
	if !ok || !isLegalWidth(b) {
		return 0, false
	}
	return b, true
}

// fetchImm64 reads an 8-byte little-endian immediate (integer or float bit
// pattern - the caller decides how to interpret it).
func (d decoder) fetchImm64() (uint64, bool) {
	s := d.s
	if s.ip+8 > uint64(len(s.code)) {
		return 0, false
	}
	v := binary.LittleEndian.Uint64(s.code[s.ip : s.ip+8])
	s.ip += 8
	return v, true
}

// fetchDisplacement reads a signed 64-bit stack displacement.
func (d decoder) fetchDisplacement() (int64, bool) {
	v, ok := d.fetchImm64()
	return int64(v), ok
}

// fetchRelative reads a signed 64-bit relative jump/call target. Per
// SPEC_FULL.md §4.1 the addend is applied to ip *after* the operand bytes
// have already been consumed, so callers add the returned value to the
// already-advanced s.ip.
func (d decoder) fetchRelative() (int64, bool) {
	v, ok := d.fetchImm64()
	return int64(v), ok
}
