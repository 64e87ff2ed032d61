package bridge

// Memory represents linear memory shared with the other side of the boundary.
// Offsets are absolute addresses; address 0 is never a valid buffer.
type Memory interface {
	Read(offset uint32, length uint32) ([]byte, error)
	Write(offset uint32, data []byte) error
}

// MemorySizer provides the current size of linear memory in bytes.
type MemorySizer interface {
	Size() uint32
}

// Allocator allocates buffers in linear memory
type Allocator interface {
	Alloc(size, align uint32) (uint32, error)
	Free(ptr, size, align uint32)
}

// Null is the pointer value reported when an allocation fails.
const Null uint32 = 0

// Buffer is an owned (pointer, length) pair describing one contiguous allocation.
type Buffer struct {
	Ptr uint32
	Len uint32
}

// IsNull reports whether b refers to no allocation.
func (b Buffer) IsNull() bool {
	return b.Ptr == Null
}

// End returns the first address past the buffer.
func (b Buffer) End() uint64 {
	return uint64(b.Ptr) + uint64(b.Len)
}

// Overlaps reports whether b and o share at least one byte.
func (b Buffer) Overlaps(o Buffer) bool {
	if b.Len == 0 || o.Len == 0 {
		return false
	}
	return uint64(b.Ptr) < o.End() && uint64(o.Ptr) < b.End()
}
