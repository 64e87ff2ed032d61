// Package host connects the boundary to WebAssembly guests through wazero.
//
// Two directions are supported.
//
// Provider serves guests: it registers the host module "krakatau" whose
// functions mirror the boundary ABI. A guest imports them, writes request
// envelopes into buffers the provider carves from pages reserved in the
// guest's own memory, and reads responses from the same memory:
//
//	(import "krakatau" "allocate_input_buffer" (func (param i32) (result i32)))
//	(import "krakatau" "decompile" (func (param i32 i32) (result i32)))
//	(import "krakatau" "assemble" (func (param i32 i32) (result i32)))
//	(import "krakatau" "response_pointer" (func (result i32)))
//	(import "krakatau" "response_length" (func (result i32)))
//	(import "krakatau" "free_response" (func))
//	(import "krakatau" "free_buffer" (func (param i32 i32)))
//
// Client drives a guest that exports the same ABI, such as a wasm build of
// the toolchain. Client.Toolchain adapts it so the rest of the module can
// use the guest in place of the native assembler.
//
// Runtime wraps the wazero runtime and instantiates WASI preview1 for
// guests that import it.
package host
