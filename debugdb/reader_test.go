package debugdb

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"
)

// dbBuilder hand-assembles a debug database byte stream, mirroring the
// hand-rolled instruction-stream builder in vm/exec_test.go: this format has
// no encoder of its own in scope, only a reader.
type dbBuilder struct {
	version    uint64
	entries    []builtEntry
	entryAddrs []uint64
}

type builtEntry struct {
	code, comments []string
	vars           []VariableLocation
}

func (b *dbBuilder) addEntry(addr uint64, e builtEntry) {
	b.entryAddrs = append(b.entryAddrs, addr)
	b.entries = append(b.entries, e)
}

func (b *dbBuilder) build() []byte {
	var entryBlobs [][]byte
	for _, e := range b.entries {
		entryBlobs = append(entryBlobs, encodeEntry(e))
	}

	var out bytes.Buffer
	writeU64(&out, b.version)
	writeU64(&out, uint64(len(b.entries)))

	offset := uint64(0)
	for i, blob := range entryBlobs {
		writeU64(&out, b.entryAddrs[i])
		writeU64(&out, offset)
		offset += uint64(len(blob))
	}
	for _, blob := range entryBlobs {
		out.Write(blob)
	}
	return out.Bytes()
}

func encodeEntry(e builtEntry) []byte {
	var strs [][]byte
	for _, c := range e.code {
		strs = append(strs, append([]byte(c), 0))
	}
	for _, c := range e.comments {
		strs = append(strs, append([]byte(c), 0))
	}
	var varBlobs [][]byte
	for _, v := range e.vars {
		var vb bytes.Buffer
		vb.WriteByte(byte(v.TypeTag))
		vb.WriteByte(byte(v.Position))
		vb.WriteByte(boolByte(v.IsVariable))
		vb.WriteByte(boolByte(v.IsConst))
		vb.WriteByte(boolByte(v.IsStatic))
		writeU64(&vb, v.Offset)
		vb.Write(append([]byte(v.Name), 0))
		varBlobs = append(varBlobs, vb.Bytes())
	}

	total := len(strs) + len(varBlobs)
	headerLen := 24 + total*8

	var out bytes.Buffer
	writeU64(&out, uint64(len(e.code)))
	writeU64(&out, uint64(len(e.comments)))
	writeU64(&out, uint64(len(e.vars)))

	cursor := uint64(headerLen)
	for _, s := range strs {
		writeU64(&out, cursor)
		cursor += uint64(len(s))
	}
	for _, v := range varBlobs {
		writeU64(&out, cursor)
		cursor += uint64(len(v))
	}
	for _, s := range strs {
		out.Write(s)
	}
	for _, v := range varBlobs {
		out.Write(v)
	}
	return out.Bytes()
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}

func writeU64(buf *bytes.Buffer, v uint64) {
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], v)
	buf.Write(tmp[:])
}

func TestLookupHitAndMiss(t *testing.T) {
	var b dbBuilder
	b.version = SupportedVersion
	b.addEntry(0x10, builtEntry{
		code:     []string{"x = 1;"},
		comments: []string{"# entering loop"},
		vars: []VariableLocation{
			{TypeTag: TypeI32, Position: InRegister, IsVariable: true, Offset: 3, Name: "x"},
		},
	})
	b.addEntry(0x20, builtEntry{
		code: []string{"return x;"},
	})

	r, err := NewReader(b.build())
	assert(t, err == nil, "expected no error, got %v", err)

	entry, ok := r.Lookup(0x10)
	assert(t, ok, "expected a hit at 0x10")
	assert(t, len(entry.CodeFragments) == 1 && entry.CodeFragments[0] == "x = 1;", "unexpected code fragments: %+v", entry.CodeFragments)
	assert(t, len(entry.Comments) == 1 && entry.Comments[0].IsNote(), "expected a note-style comment, got %+v", entry.Comments)
	assert(t, len(entry.Variables) == 1 && entry.Variables[0].Name == "x", "unexpected variables: %+v", entry.Variables)

	_, ok = r.Lookup(0x18)
	assert(t, !ok, "expected a miss at an address with no entry")

	entry2, ok := r.Lookup(0x20)
	assert(t, ok, "expected a hit at 0x20")
	assert(t, len(entry2.Variables) == 0, "expected no variables at 0x20")
}

func TestVersionMismatchIsReportedOnce(t *testing.T) {
	var b dbBuilder
	b.version = 3
	b.addEntry(0x0, builtEntry{})

	_, err := NewReader(b.build())
	var mismatch *VersionMismatchError
	assert(t, errors.As(err, &mismatch), "expected a *VersionMismatchError, got %v", err)
	assert(t, mismatch.Got == 3, "expected reported version 3, got %d", mismatch.Got)
}

func assert(t *testing.T, cond bool, format string, args ...any) {
	t.Helper()
	if !cond {
		t.Fatalf(format, args...)
	}
}

func TestTypeTagShapeClassification(t *testing.T) {
	assert(t, !TypeU32.IsPointer() && !TypeU32.IsArray(), "TypeU32 should be neither pointer nor array")
	assert(t, TypeU32Ptr.IsPointer() && !TypeU32Ptr.IsArray(), "TypeU32Ptr should be a pointer, not an array")
	assert(t, TypeU32Array.IsArray() && !TypeU32Array.IsPointer(), "TypeU32Array should be an array, not a pointer")
	assert(t, TypeU32Ptr.Scalar() == TypeU32, "TypeU32Ptr.Scalar() should recover TypeU32, got %v", TypeU32Ptr.Scalar())
	assert(t, TypeI64Array.Scalar() == TypeI64, "TypeI64Array.Scalar() should recover TypeI64, got %v", TypeI64Array.Scalar())
	assert(t, TypeOtherPtr.Scalar() == TypeOther, "TypeOtherPtr.Scalar() should recover TypeOther")
	assert(t, TypeU32Ptr.String() == "u32*", "unexpected String() for TypeU32Ptr: %q", TypeU32Ptr.String())
	assert(t, TypeF64Array.String() == "f64[]", "unexpected String() for TypeF64Array: %q", TypeF64Array.String())
}
