package memory

import (
	"github.com/tetratelabs/wazero/api"

	bridge "github.com/wippyai/krakatau-bridge"
	"github.com/wippyai/krakatau-bridge/errors"
)

// PageSize is the WebAssembly page size in bytes.
const PageSize = 65536

var (
	_ bridge.Memory      = (*Wrapper)(nil)
	_ bridge.MemorySizer = (*Wrapper)(nil)
)

// WrapMemory wraps a wazero api.Memory to implement bridge.Memory.
func WrapMemory(mem api.Memory) *Wrapper {
	if mem == nil {
		return nil
	}
	return &Wrapper{Mem: mem}
}

// Wrapper adapts wazero api.Memory to the bridge.Memory interface.
type Wrapper struct {
	Mem api.Memory
}

// Size returns the current memory size in bytes.
func (m *Wrapper) Size() uint32 {
	return m.Mem.Size()
}

// Read reads bytes from memory. The result aliases guest memory and is only
// valid until the guest runs again or memory grows.
func (m *Wrapper) Read(offset uint32, length uint32) ([]byte, error) {
	data, ok := m.Mem.Read(offset, length)
	if !ok {
		return nil, errors.OutOfBounds(errors.PhaseMemory, offset, length, m.Mem.Size())
	}
	return data, nil
}

// Write writes bytes to memory.
func (m *Wrapper) Write(offset uint32, data []byte) error {
	if !m.Mem.Write(offset, data) {
		return errors.OutOfBounds(errors.PhaseMemory, offset, uint32(len(data)), m.Mem.Size())
	}
	return nil
}

// Reserve grows mem by pages and returns the new pages as a region owned by
// the caller. Guest allocators that grow memory later receive pages above it.
func Reserve(mem api.Memory, pages uint32) (Region, error) {
	if mem == nil {
		return Region{}, errors.NotInitialized(errors.PhaseMemory, "memory")
	}
	if pages == 0 {
		return Region{}, errors.InvalidInput(errors.PhaseMemory, "reserve zero pages")
	}
	prev, ok := mem.Grow(pages)
	if !ok {
		return Region{}, errors.New(errors.PhaseMemory, errors.KindAllocation).
			Detail("grow memory by %d pages from %d bytes", pages, mem.Size()).
			Build()
	}
	start := uint64(prev) * PageSize
	size := uint64(pages) * PageSize
	if start == 0 || start+size > 1<<32 {
		return Region{}, errors.OutOfBounds(errors.PhaseMemory, uint32(start), uint32(size), mem.Size())
	}
	return Region{Start: uint32(start), Size: uint32(size)}, nil
}
