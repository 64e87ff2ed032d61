package memory

import (
	"math"

	bridge "github.com/wippyai/krakatau-bridge"
	"github.com/wippyai/krakatau-bridge/errors"
)

// DefaultArenaBase is the first address of an in-process arena. The page below
// it is never addressable, so 0 and small integers can't alias a live buffer.
const DefaultArenaBase uint32 = 64 << 10

var (
	_ bridge.Memory      = (*Arena)(nil)
	_ bridge.MemorySizer = (*Arena)(nil)
)

// Region is a contiguous address range [Start, Start+Size).
type Region struct {
	Start uint32
	Size  uint32
}

// End returns the first address past the region.
func (r Region) End() uint64 {
	return uint64(r.Start) + uint64(r.Size)
}

// Contains reports whether [ptr, ptr+n) lies inside the region.
func (r Region) Contains(ptr, n uint32) bool {
	return ptr >= r.Start && uint64(ptr)+uint64(n) <= r.End()
}

// Arena is linear memory backed by a Go byte slice mapped at a fixed base
// address. It never grows, moves or resizes.
type Arena struct {
	data []byte
	base uint32
}

// NewArena maps size bytes at base. It panics if base is zero or the mapping
// would not fit in a 32-bit address space.
func NewArena(base, size uint32) *Arena {
	if base == 0 {
		panic("memory: arena base must be non-zero")
	}
	if uint64(base)+uint64(size) > 1<<32 {
		panic("memory: arena exceeds 32-bit address space")
	}
	return &Arena{base: base, data: make([]byte, size)}
}

// Base returns the first addressable offset.
func (a *Arena) Base() uint32 {
	return a.base
}

// Size returns the address one past the last addressable byte, clamped to
// the 32-bit range.
func (a *Arena) Size() uint32 {
	return uint32(min(uint64(a.base)+uint64(len(a.data)), math.MaxUint32))
}

// Region returns the whole arena as an allocatable region.
func (a *Arena) Region() Region {
	return Region{Start: a.base, Size: uint32(len(a.data))}
}

func (a *Arena) slice(offset, length uint32) ([]byte, error) {
	if offset < a.base || uint64(offset)+uint64(length) > uint64(a.base)+uint64(len(a.data)) {
		return nil, errors.OutOfBounds(errors.PhaseMemory, offset, length, a.Size())
	}
	start := offset - a.base
	return a.data[start : start+length : start+length], nil
}

// Read returns a view of length bytes at offset. The view aliases the arena.
func (a *Arena) Read(offset uint32, length uint32) ([]byte, error) {
	return a.slice(offset, length)
}

// Write copies data to offset.
func (a *Arena) Write(offset uint32, data []byte) error {
	dst, err := a.slice(offset, uint32(len(data)))
	if err != nil {
		return err
	}
	copy(dst, data)
	return nil
}
