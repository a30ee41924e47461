package debugdb

import (
	"encoding/binary"
	"fmt"
	"sort"
)

const (
	headerSize   = 16 // u64 version, u64 entry_count
	entryIdxSize = 16 // u64 instruction_addr, u64 start_offset
)

type entryIdx struct {
	instructionAddr uint64
	startOffset     uint64
}

// Reader parses the binary debug database described in SPEC_FULL.md §6 and
// answers Lookup queries by instruction address via binary search over the
// sorted entry index. The underlying byte slice is read field-by-field with
// encoding/binary rather than an unsafe cast over a packed C struct - the
// idiomatic Go equivalent of the original's `#pragma pack(1)` layout.
type Reader struct {
	data    []byte
	version uint64
	index   []entryIdx
	// entriesBase is the offset of the first Entry record, immediately
	// after the EntryIdx table.
	entriesBase uint64
}

// NewReader parses data as a debug database. It returns a *VersionMismatchError
// if the header's version isn't SupportedVersion; the caller is expected to
// emit that once and proceed without debug info, per SPEC_FULL.md §7.
func NewReader(data []byte) (*Reader, error) {
	if len(data) < headerSize {
		return nil, fmt.Errorf("debugdb: truncated header")
	}
	version := binary.LittleEndian.Uint64(data[0:8])
	entryCount := binary.LittleEndian.Uint64(data[8:16])

	if version != SupportedVersion {
		return nil, &VersionMismatchError{Got: version}
	}

	idxEnd := headerSize + entryCount*entryIdxSize
	if uint64(len(data)) < idxEnd {
		return nil, fmt.Errorf("debugdb: truncated entry index")
	}

	index := make([]entryIdx, entryCount)
	for i := uint64(0); i < entryCount; i++ {
		off := headerSize + i*entryIdxSize
		index[i] = entryIdx{
			instructionAddr: binary.LittleEndian.Uint64(data[off : off+8]),
			startOffset:     binary.LittleEndian.Uint64(data[off+8 : off+16]),
		}
	}
	if !sort.SliceIsSorted(index, func(i, j int) bool { return index[i].instructionAddr < index[j].instructionAddr }) {
		return nil, fmt.Errorf("debugdb: entry index is not sorted by instruction address")
	}

	return &Reader{data: data, version: version, index: index, entriesBase: idxEnd}, nil
}

// Lookup finds the Entry for instruction address addr, if any, via binary
// search over the sorted index.
func (r *Reader) Lookup(addr uint64) (Entry, bool) {
	i := sort.Search(len(r.index), func(i int) bool { return r.index[i].instructionAddr >= addr })
	if i >= len(r.index) || r.index[i].instructionAddr != addr {
		return Entry{}, false
	}
	entry, err := r.decodeEntry(r.entriesBase+r.index[i].startOffset, addr)
	if err != nil {
		return Entry{}, false
	}
	return entry, true
}

func (r *Reader) decodeEntry(base uint64, addr uint64) (Entry, error) {
	data := r.data
	if base+24 > uint64(len(data)) {
		return Entry{}, fmt.Errorf("debugdb: truncated entry header")
	}
	codeCount := binary.LittleEndian.Uint64(data[base : base+8])
	commentCount := binary.LittleEndian.Uint64(data[base+8 : base+16])
	varCount := binary.LittleEndian.Uint64(data[base+16 : base+24])

	total := codeCount + commentCount + varCount
	offsetsStart := base + 24
	offsetsEnd := offsetsStart + total*8
	if offsetsEnd > uint64(len(data)) {
		return Entry{}, fmt.Errorf("debugdb: truncated offsets table")
	}

	offsets := make([]uint64, total)
	for i := uint64(0); i < total; i++ {
		off := offsetsStart + i*8
		offsets[i] = binary.LittleEndian.Uint64(data[off : off+8])
	}

	entry := Entry{InstructionAddr: addr}
	idx := uint64(0)
	for i := uint64(0); i < codeCount; i++ {
		s, err := readCString(data, base+offsets[idx])
		if err != nil {
			return Entry{}, err
		}
		entry.CodeFragments = append(entry.CodeFragments, s)
		idx++
	}
	for i := uint64(0); i < commentCount; i++ {
		s, err := readCString(data, base+offsets[idx])
		if err != nil {
			return Entry{}, err
		}
		entry.Comments = append(entry.Comments, Comment{Text: s})
		idx++
	}
	for i := uint64(0); i < varCount; i++ {
		v, err := readVariableLocation(data, base+offsets[idx])
		if err != nil {
			return Entry{}, err
		}
		entry.Variables = append(entry.Variables, v)
		idx++
	}

	return entry, nil
}

func readCString(data []byte, at uint64) (string, error) {
	if at >= uint64(len(data)) {
		return "", fmt.Errorf("debugdb: string offset out of range")
	}
	end := at
	for end < uint64(len(data)) && data[end] != 0 {
		end++
	}
	if end >= uint64(len(data)) {
		return "", fmt.Errorf("debugdb: unterminated string")
	}
	return string(data[at:end]), nil
}

// readVariableLocation decodes a packed VariableLocation record:
// {u8 type_tag, u8 position_type, u8 is_variable, u8 is_const, u8 is_static,
// u64 position, char name[]}.
func readVariableLocation(data []byte, at uint64) (VariableLocation, error) {
	const fixedSize = 5 + 8
	if at+fixedSize > uint64(len(data)) {
		return VariableLocation{}, fmt.Errorf("debugdb: truncated variable location")
	}
	v := VariableLocation{
		TypeTag:    TypeTag(data[at]),
		Position:   PositionType(data[at+1]),
		IsVariable: data[at+2] != 0,
		IsConst:    data[at+3] != 0,
		IsStatic:   data[at+4] != 0,
		Offset:     binary.LittleEndian.Uint64(data[at+5 : at+13]),
	}
	name, err := readCString(data, at+fixedSize)
	if err != nil {
		return VariableLocation{}, err
	}
	v.Name = name
	return v, nil
}
