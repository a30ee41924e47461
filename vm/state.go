package vm

import (
	"encoding/binary"
	"math"
)

const (
	// NumRegisters is the size of the register file: 0..7 integer, 8..15 float.
	NumRegisters = 16
	firstFloatReg = 8

	// DefaultStackSize matches the original runtime's default stack.
	DefaultStackSize = 24 * 1024
	// MinStackSize is the stack floor: WithStackSize raises a smaller size to
	// it, and WithStackBuffer rejects a smaller buffer.
	MinStackSize = 4 * 1024
)

// Tracer receives structured per-instruction trace records. The zero Tracer
// (NopTracer) makes tracing free when disabled - no string formatting ever
// runs.
type Tracer interface {
	TraceInstruction(ip uint64, op Opcode)
}

// NopTracer discards every record.
type NopTracer struct{}

func (NopTracer) TraceInstruction(uint64, Opcode) {}

// Option configures a new State.
type Option func(*State)

// WithStackSize reserves a fresh stack buffer of the given size.
func WithStackSize(size int) Option {
	return func(s *State) {
		if size < MinStackSize {
			size = MinStackSize
		}
		s.stack = make([]byte, size)
	}
}

// WithStackBuffer installs a caller-owned stack buffer directly, skipping an
// allocation. Must be at least MinStackSize bytes.
func WithStackBuffer(buf []byte) Option {
	return func(s *State) {
		if len(buf) < MinStackSize {
			panic("vm: stack buffer smaller than MinStackSize")
		}
		s.stack = buf
	}
}

// WithTracer installs a structured instruction tracer.
func WithTracer(t Tracer) Option {
	return func(s *State) { s.tracer = t }
}

// WithAllocator overrides the builtin allocator (see builtins.go).
func WithAllocator(a Allocator) Option {
	return func(s *State) { s.allocator = a }
}

// WithLibraryLoader overrides the LOAD_LIBRARY/GET_PROC_ADDRESS collaborator.
func WithLibraryLoader(l LibraryLoader) Option {
	return func(s *State) { s.loader = l }
}

// WithForeignCaller overrides the CALL_EXTERNAL bridge collaborator.
func WithForeignCaller(c ForeignCaller) Option {
	return func(s *State) { s.foreignCaller = c }
}

// State owns everything the executor touches: the code image, the register
// file, the linear stack, the compare flag, and the handful of external
// collaborators (allocator, library loader, foreign-call bridge). It is not
// safe for concurrent use - see SPEC_FULL.md §5.
type State struct {
	registers [NumRegisters]uint64
	ip        uint64
	sp        uint64
	compare   bool

	code  []byte
	stack []byte

	done    bool
	errcode error

	tracer        Tracer
	allocator     Allocator
	loader        LibraryLoader
	foreignCaller ForeignCaller
}

// NewState builds a VM ready to execute code. registerValues, if non-nil, is
// copied into the register file (the host-supplied persistence contract from
// SPEC_FULL.md §6); on EXIT the same slice is written back by the caller via
// State.Registers.
func NewState(code []byte, registerValues *[NumRegisters]uint64, opts ...Option) *State {
	s := &State{code: code}
	for _, opt := range opts {
		opt(s)
	}
	if s.stack == nil {
		s.stack = make([]byte, DefaultStackSize)
	}
	if s.tracer == nil {
		s.tracer = NopTracer{}
	}
	if s.allocator == nil {
		s.allocator = NewHeapAllocator()
	}
	if s.loader == nil {
		s.loader = noopLibraryLoader{}
	}
	if s.foreignCaller == nil {
		s.foreignCaller = noopForeignCaller{}
	}
	if registerValues != nil {
		s.registers = *registerValues
	}
	return s
}

// Registers returns a copy of the register file, as persisted on EXIT.
func (s *State) Registers() [NumRegisters]uint64 {
	return s.registers
}

// IP returns the current instruction pointer.
func (s *State) IP() uint64 { return s.ip }

// SP returns the current stack pointer.
func (s *State) SP() uint64 { return s.sp }

// CompareFlag returns the current (volatile) compare flag.
func (s *State) CompareFlag() bool { return s.compare }

// SetCompareFlag overwrites the compare flag directly - used by the
// debugger's 'm' (modify) command.
func (s *State) SetCompareFlag(v bool) { s.compare = v }

// Err returns the fault that stopped execution, or nil if still running /
// finished cleanly via EXIT.
func (s *State) Err() error { return s.errcode }

// Done reports whether EXIT has run. A clean exit leaves Err() nil.
func (s *State) Done() bool { return s.done }

// Code returns the read-only program image.
func (s *State) Code() []byte { return s.code }

// Stack returns the raw stack buffer (debugger inspection use only).
func (s *State) Stack() []byte { return s.stack }

func validRegister(r byte) bool { return r < NumRegisters }

func isFloatReg(r byte) bool { return r >= firstFloatReg }

// IntReg reads an integer-class register's raw 64-bit pattern.
func (s *State) IntReg(r byte) uint64 { return s.registers[r] }

// SetIntReg writes an integer-class register's raw 64-bit pattern.
func (s *State) SetIntReg(r byte, v uint64) { s.registers[r] = v }

// FloatReg reads a float-class register, reinterpreting its bit pattern.
func (s *State) FloatReg(r byte) float64 { return math.Float64frombits(s.registers[r]) }

// SetFloatReg writes a float-class register from an IEEE-754 double.
func (s *State) SetFloatReg(r byte, v float64) { s.registers[r] = math.Float64bits(v) }

// fault records a terminal error tagged with the instruction address it
// occurred at (the address of the opcode byte, not any operand within it).
func (s *State) fault(err error, addr uint64) {
	s.errcode = newFault(err, addr)
}

// stackAddr resolves a signed displacement `off` against the current sp,
// per SPEC_FULL.md §3: operand off designates stack[sp-off]. Returns a
// bounds-checked absolute index for a `width`-byte access.
func (s *State) stackAddr(off int64, width uint64) (uint64, bool) {
	signed := int64(s.sp) - off
	if signed < 0 {
		return 0, false
	}
	addr := uint64(signed)
	if addr+width > uint64(len(s.stack)) {
		return 0, false
	}
	return addr, true
}

func (s *State) readStack(off int64, width uint64) ([]byte, bool) {
	addr, ok := s.stackAddr(off, width)
	if !ok {
		return nil, false
	}
	return s.stack[addr : addr+width], true
}

func (s *State) readU64Stack(off int64) (uint64, bool) {
	b, ok := s.readStack(off, 8)
	if !ok {
		return 0, false
	}
	return binary.LittleEndian.Uint64(b), true
}

func (s *State) writeU64Stack(off int64, v uint64) bool {
	b, ok := s.readStack(off, 8)
	if !ok {
		return false
	}
	binary.LittleEndian.PutUint64(b, v)
	return true
}

func (s *State) writeNStack(off int64, v uint64, n uint64) bool {
	b, ok := s.readStack(off, n)
	if !ok {
		return false
	}
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], v)
	copy(b, tmp[:n])
	return true
}

func (s *State) readNStackZeroExtended(off int64, n uint64) (uint64, bool) {
	b, ok := s.readStack(off, n)
	if !ok {
		return 0, false
	}
	var tmp [8]byte
	copy(tmp[:n], b)
	return binary.LittleEndian.Uint64(tmp[:]), true
}

// readPtr addresses absolute memory: for this VM the only addressable memory
// is the stack buffer, so an "absolute address" held in an integer register
// is interpreted as a byte index into the stack buffer. Writes go through
// the returned slice.
func (s *State) readPtr(addr uint64, width uint64) ([]byte, bool) {
	if addr+width > uint64(len(s.stack)) || addr+width < addr {
		return nil, false
	}
	return s.stack[addr : addr+width], true
}

func isLegalWidth(n byte) bool {
	return n == 1 || n == 2 || n == 4 || n == 8
}
