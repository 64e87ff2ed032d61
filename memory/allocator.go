package memory

import (
	"sort"

	"go.uber.org/zap"

	bridge "github.com/wippyai/krakatau-bridge"
	"github.com/wippyai/krakatau-bridge/errors"
)

// MinAlign is the alignment of every allocation.
const MinAlign = 8

var _ bridge.Allocator = (*Allocator)(nil)

// span is a free range [start, end).
type span struct {
	start uint64
	end   uint64
}

// Allocator hands out exactly sized buffers from a fixed region and takes
// them back with Release. It keeps a ledger of live allocations: releasing a
// pointer that is not live, or with a different size than it was allocated
// with, is rejected instead of corrupting the free list.
//
// Allocator is not safe for concurrent use.
type Allocator struct {
	live   map[uint32]uint32
	free   []span
	region Region
	inUse  uint64
}

// NewAllocator manages region. The usable range is trimmed to MinAlign
// boundaries and never includes address 0.
func NewAllocator(region Region) *Allocator {
	start := alignUp(uint64(region.Start), MinAlign)
	if start == 0 {
		start = MinAlign
	}
	end := region.End() &^ (MinAlign - 1)

	a := &Allocator{
		region: region,
		live:   make(map[uint32]uint32),
	}
	if start < end {
		a.free = []span{{start: start, end: end}}
	}
	return a
}

// Region returns the managed region.
func (a *Allocator) Region() Region {
	return a.region
}

// Alloc reserves size bytes aligned to at least MinAlign. align must be a
// power of two; smaller values are raised to MinAlign.
func (a *Allocator) Alloc(size, align uint32) (uint32, error) {
	if size == 0 {
		return bridge.Null, errors.InvalidInput(errors.PhaseAlloc, "zero-size allocation")
	}
	if align < MinAlign {
		align = MinAlign
	}
	if align&(align-1) != 0 {
		return bridge.Null, errors.InvalidInput(errors.PhaseAlloc, "alignment must be a power of two")
	}

	reserved := alignUp(uint64(size), MinAlign)
	for i, s := range a.free {
		start := alignUp(s.start, uint64(align))
		if start+reserved > s.end {
			continue
		}

		var rest []span
		if start > s.start {
			rest = append(rest, span{start: s.start, end: start})
		}
		if start+reserved < s.end {
			rest = append(rest, span{start: start + reserved, end: s.end})
		}
		a.free = append(a.free[:i], append(rest, a.free[i+1:]...)...)

		ptr := uint32(start)
		a.live[ptr] = size
		a.inUse += reserved
		return ptr, nil
	}

	return bridge.Null, errors.AllocationFailed(errors.PhaseAlloc, size, align)
}

// Free implements bridge.Allocator. Invalid frees are logged and ignored.
func (a *Allocator) Free(ptr, size, _ uint32) {
	if err := a.Release(ptr, size); err != nil {
		Logger().Warn("rejected free", zap.Error(err))
	}
}

// Release returns the buffer at ptr to the free list. size must equal the
// size passed to Alloc.
func (a *Allocator) Release(ptr, size uint32) error {
	want, ok := a.live[ptr]
	if !ok {
		return errors.InvalidFree(ptr, size, "not a live allocation")
	}
	if want != size {
		return errors.New(errors.PhaseAlloc, errors.KindInvalidFree).
			Detail("free(%#x, %d): allocated with size %d", ptr, size, want).
			Value(ptr).
			Build()
	}
	delete(a.live, ptr)

	reserved := alignUp(uint64(size), MinAlign)
	a.inUse -= reserved
	a.insert(span{start: uint64(ptr), end: uint64(ptr) + reserved})
	return nil
}

// insert adds s to the sorted free list, merging with adjacent neighbours.
func (a *Allocator) insert(s span) {
	i := sort.Search(len(a.free), func(i int) bool {
		return a.free[i].start > s.start
	})

	if i > 0 && a.free[i-1].end == s.start {
		i--
		a.free[i].end = s.end
	} else {
		a.free = append(a.free, span{})
		copy(a.free[i+1:], a.free[i:])
		a.free[i] = s
	}

	if i+1 < len(a.free) && a.free[i].end == a.free[i+1].start {
		a.free[i].end = a.free[i+1].end
		a.free = append(a.free[:i+1], a.free[i+2:]...)
	}
}

// SizeOf returns the allocated size of a live buffer.
func (a *Allocator) SizeOf(ptr uint32) (uint32, bool) {
	size, ok := a.live[ptr]
	return size, ok
}

// Stats describes allocator occupancy.
type Stats struct {
	Live    int
	InUse   uint64
	Free    uint64
	Largest uint64
}

// Stats reports the number of live buffers and free space.
func (a *Allocator) Stats() Stats {
	st := Stats{Live: len(a.live), InUse: a.inUse}
	for _, s := range a.free {
		n := s.end - s.start
		st.Free += n
		if n > st.Largest {
			st.Largest = n
		}
	}
	return st
}

func alignUp(v, align uint64) uint64 {
	return (v + align - 1) &^ (align - 1)
}
