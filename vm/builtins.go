package vm

import "sync"

// BuiltinID selects one of the fixed runtime intrinsics dispatched by
// CALL_BUILTIN, keyed by the current integer value of the id register.
type BuiltinID uint64

const (
	BuiltinAlloc BuiltinID = iota
	BuiltinFree
	BuiltinRealloc
	BuiltinLoadLibrary
	BuiltinGetProcAddress
)

// Allocator is the host allocator collaborator sketched in SPEC_FULL.md §4.4
// (out of scope per §1: on the original system this came from a dynamic
// symbol lookup in a running process). Alloc/Realloc return 0 on failure,
// never an error - the builtin dispatcher reports failure to the script by
// writing 0 into the destination register, not by faulting.
type Allocator interface {
	Alloc(size uint64) (ptr uint64)
	Free(ptr uint64)
	Realloc(ptr uint64, size uint64) (newPtr uint64)
}

// HeapAllocator is a simple bookkeeping allocator over host memory, handing
// out opaque 64-bit handles rather than real addresses (there is no shared
// address space between this VM and the host process to reuse). It only
// frees handles it issued itself - per Open Question 4, "if we own it,
// destroy it; if we borrowed it, don't" - Free/Realloc on an unknown handle
// is a no-op/failure rather than a crash.
type HeapAllocator struct {
	mu      sync.Mutex
	nextID  uint64
	regions map[uint64][]byte
}

// NewHeapAllocator returns the default Allocator used when no Option
// overrides it.
func NewHeapAllocator() *HeapAllocator {
	return &HeapAllocator{nextID: 1, regions: make(map[uint64][]byte)}
}

func (h *HeapAllocator) Alloc(size uint64) uint64 {
	if size == 0 {
		return 0
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	id := h.nextID
	h.nextID++
	h.regions[id] = make([]byte, size)
	return id
}

func (h *HeapAllocator) Free(ptr uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.regions, ptr)
}

func (h *HeapAllocator) Realloc(ptr uint64, size uint64) uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	existing, owned := h.regions[ptr]
	if ptr != 0 && !owned {
		return 0
	}
	if size == 0 {
		delete(h.regions, ptr)
		return 0
	}
	id := h.nextID
	h.nextID++
	buf := make([]byte, size)
	copy(buf, existing)
	h.regions[id] = buf
	if ptr != 0 {
		delete(h.regions, ptr)
	}
	return id
}

// LibraryLoader is the dynamic-library collaborator behind LOAD_LIBRARY and
// GET_PROC_ADDRESS. The real implementation (platform dynamic loading) is an
// external collaborator per SPEC_FULL.md §1; the default here always fails
// closed, which is a legitimate outcome per the builtin-failure fault policy.
type LibraryLoader interface {
	Load(name string) (handle uint64)
	Resolve(handle uint64, name string) (addr uint64)
}

type noopLibraryLoader struct{}

func (noopLibraryLoader) Load(string) uint64            { return 0 }
func (noopLibraryLoader) Resolve(uint64, string) uint64 { return 0 }

// cStringAt reads a null-terminated ASCII string out of the stack buffer
// starting at addr, bounded by the stack length so a malformed pointer can
// never run unbounded.
func (s *State) cStringAt(addr uint64) (string, bool) {
	if addr >= uint64(len(s.stack)) {
		return "", false
	}
	end := addr
	for end < uint64(len(s.stack)) && s.stack[end] != 0 {
		end++
	}
	if end >= uint64(len(s.stack)) {
		return "", false
	}
	return string(s.stack[addr:end]), true
}

// execBuiltin dispatches CALL_BUILTIN. id comes from the current value of
// Rid; the result is written into Rd's raw bits regardless of its register
// class (builtins only ever produce integer-shaped handles/pointers).
func (s *State) execBuiltin(id uint64, r1, r2 uint64) (result uint64, ok bool) {
	switch BuiltinID(id) {
	case BuiltinAlloc:
		return s.allocator.Alloc(r1), true
	case BuiltinFree:
		s.allocator.Free(r1)
		return 0, true
	case BuiltinRealloc:
		return s.allocator.Realloc(r1, r2), true
	case BuiltinLoadLibrary:
		name, ok := s.cStringAt(r1)
		if !ok {
			return 0, true
		}
		return s.loader.Load(name), true
	case BuiltinGetProcAddress:
		name, ok := s.cStringAt(r2)
		if !ok {
			return 0, true
		}
		return s.loader.Resolve(r1, name), true
	default:
		return 0, false
	}
}
