// Package bridge moves Java class files and assembler source across a
// WebAssembly module boundary to and from the Krakatau assembler/disassembler.
//
// The boundary carries no strings, growable buffers or structured errors. Every
// exchange is a (pointer, length) pair in linear memory, a JSON envelope inside
// that buffer, and a single response buffer the caller reads and releases.
//
// # Architecture Overview
//
//	bridge/              Root package with core Memory and Allocator interfaces
//	├── transcoder/      Base64 transcoding for class file payloads
//	├── memory/          Arena memory, wazero memory adapter, buffer allocator
//	├── toolchain/       Assembler/disassembler contract and the krak2 backend
//	├── protocol/        Envelopes, typed handler, response slot, pointer entry points
//	├── host/            wazero provider (host module) and client (guest exports)
//	├── service/         NATS request/reply transport
//	├── errors/          Structured error types
//	├── internal/config/ Defaults, TOML file and KRAKATAU_* environment
//	└── cmd/krakatau/    Command line interface
//
// # Quick Start
//
// Exchange an envelope in-process:
//
//	arena := memory.NewArena(memory.DefaultArenaBase, 4<<20)
//	b := protocol.NewBoundary(arena, memory.NewAllocator(arena.Region()), toolchain.NewExec("krak2"))
//
//	resp, err := b.Exchange(ctx, protocol.OpDecompile, requestJSON)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(string(resp))
//
// # Pointer Protocol
//
// A caller that only has linear memory follows the raw sequence:
//
//	ptr := b.AllocateInput(uint32(len(req)))  // 0 means allocation failed
//	mem.Write(ptr, req)
//	n := b.Decompile(ctx, ptr, uint32(len(req))) // negative is a status code
//	out, _ := mem.Read(b.ResponsePointer(), uint32(b.ResponseLength()))
//	b.FreeResponse()
//	b.FreeBuffer(ptr, uint32(len(req)))
//
// The response must be read before the next entry-point call, which releases it.
//
// # Thread Safety
//
// Boundary serializes entry points with one mutex. Exchange holds it for the
// whole allocate/call/read/free sequence.
package bridge
