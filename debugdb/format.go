// Package debugdb reads the binary debug database attached to a bytecode
// program: per-instruction source fragments, comments, and variable
// location descriptors, looked up by instruction address.
package debugdb

import "fmt"

// SupportedVersion is the only debug-database version this reader accepts.
const SupportedVersion = 4

// TypeTag classifies a VariableLocation's storage: one of the ten scalar
// kinds, or a pointer-to-scalar, or an array-of-scalar, plus a catch-all
// Other for each shape. This mirrors the original host's 33-value
// DebugDatabaseVariableType enum (DT_Other, DT_U8..DT_F64, DT_OtherPtr,
// DT_U8Ptr..DT_F64Ptr, DT_OtherArray, DT_U8Array..DT_F64Array) byte-for-byte,
// so a raw tag byte from the database decodes directly into the matching
// constant below without any remapping.
type TypeTag byte

const (
	TypeOther TypeTag = iota
	TypeU8
	TypeU16
	TypeU32
	TypeU64
	TypeI8
	TypeI16
	TypeI32
	TypeI64
	TypeF32
	TypeF64

	TypeOtherPtr
	TypeU8Ptr
	TypeU16Ptr
	TypeU32Ptr
	TypeU64Ptr
	TypeI8Ptr
	TypeI16Ptr
	TypeI32Ptr
	TypeI64Ptr
	TypeF32Ptr
	TypeF64Ptr

	TypeOtherArray
	TypeU8Array
	TypeU16Array
	TypeU32Array
	TypeU64Array
	TypeI8Array
	TypeI16Array
	TypeI32Array
	TypeI64Array
	TypeF32Array
	TypeF64Array
)

// scalarBaseNames indexes the ten scalar kinds in base-enum order - shared
// by String() across all three shapes (scalar/pointer/array) since the
// underlying element type is the same in each.
var scalarBaseNames = [...]string{"u8", "u16", "u32", "u64", "i8", "i16", "i32", "i64", "f32", "f64"}

func (t TypeTag) String() string {
	switch {
	case t == TypeOther:
		return "other"
	case t >= TypeU8 && t <= TypeF64:
		return scalarBaseNames[t-TypeU8]
	case t == TypeOtherPtr:
		return "other*"
	case t >= TypeU8Ptr && t <= TypeF64Ptr:
		return scalarBaseNames[t-TypeU8Ptr] + "*"
	case t == TypeOtherArray:
		return "other[]"
	case t >= TypeU8Array && t <= TypeF64Array:
		return scalarBaseNames[t-TypeU8Array] + "[]"
	default:
		return "unknown"
	}
}

// IsPointer reports whether t is one of the *Ptr tags.
func (t TypeTag) IsPointer() bool { return t >= TypeOtherPtr && t <= TypeF64Ptr }

// IsArray reports whether t is one of the *Array tags.
func (t TypeTag) IsArray() bool { return t >= TypeOtherArray && t <= TypeF64Array }

// Scalar returns the scalar base tag underlying a pointer or array tag
// (e.g. TypeU32Ptr and TypeU32Array both return TypeU32); scalar tags
// return themselves.
func (t TypeTag) Scalar() TypeTag {
	switch {
	case t.IsPointer():
		if t == TypeOtherPtr {
			return TypeOther
		}
		return TypeU8 + (t - TypeU8Ptr)
	case t.IsArray():
		if t == TypeOtherArray {
			return TypeOther
		}
		return TypeU8 + (t - TypeU8Array)
	default:
		return t
	}
}

// PositionType classifies where a variable's value lives.
type PositionType byte

const (
	InRegister PositionType = iota + 1
	OnStack
	GlobalStackOffset
	CodeBaseOffset
)

func (p PositionType) String() string {
	switch p {
	case InRegister:
		return "register"
	case OnStack:
		return "stack"
	case GlobalStackOffset:
		return "global-stack-offset"
	case CodeBaseOffset:
		return "code-base-offset"
	default:
		return "unknown"
	}
}

// VariableLocation describes where and how to read one named variable.
type VariableLocation struct {
	TypeTag    TypeTag
	Position   PositionType
	IsVariable bool
	IsConst    bool
	IsStatic   bool
	Offset     uint64
	Name       string
}

// Comment is one free-text annotation attached to an instruction. Per
// SPEC_FULL.md §4.5, text beginning with '#' renders as an indented note;
// anything else renders as a label banner.
type Comment struct {
	Text string
}

// IsNote reports whether this comment renders as an indented note rather
// than a label banner.
func (c Comment) IsNote() bool { return len(c.Text) > 0 && c.Text[0] == '#' }

// Entry is everything known about one instruction address: the source
// fragments that produced it, any comments, and the variables live at that
// point in the program.
type Entry struct {
	InstructionAddr uint64
	CodeFragments   []string
	Comments        []Comment
	Variables       []VariableLocation
}

// VersionMismatchError is returned once per database (not per lookup) when
// the header version isn't SupportedVersion.
type VersionMismatchError struct {
	Got uint64
}

func (e *VersionMismatchError) Error() string {
	return fmt.Sprintf("debugdb: unsupported database version %d (want %d)", e.Got, SupportedVersion)
}
