// Package memory provides linear memory implementations and the buffer
// allocator used on both sides of the boundary.
//
// # Arena
//
// Arena is an in-process linear memory: a Go byte slice mapped at a fixed,
// non-zero base address so that pointer 0 is always null.
//
//	arena := memory.NewArena(memory.DefaultArenaBase, 4<<20)
//	_ = arena.Write(ptr, payload)
//
// # Wazero Wrapper
//
// WrapMemory adapts a guest's wazero api.Memory. Reserve grows guest memory
// and hands the new pages to the caller as an allocator region:
//
//	region, err := memory.Reserve(mod.Memory(), 16)
//	alloc := memory.NewAllocator(region)
//
// # Allocator
//
// Allocator is an explicit allocate/free allocator over a fixed region.
// Every buffer is aligned to MinAlign, regions never overlap, and memory is
// never moved underneath an outstanding pointer. Freed space is coalesced and
// reused. A ledger of live buffers makes double frees and size-mismatched
// frees fail with errors.KindInvalidFree instead of corrupting state.
package memory
