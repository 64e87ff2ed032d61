// Package protocol implements the request/response boundary in front of the
// Krakatau assembler and disassembler.
//
// Requests and responses are JSON envelopes. A disassemble request carries
// base64 class bytes, an assemble request carries source text:
//
//	{"file_path":"A.class","base64_content":"yv66vg...","roundtrip":false}
//	{"file_path":"A.j","source_code":".class public A ..."}
//
// Responses always echo file_path and set success. On failure the error
// field carries a message whose prefix names the failing stage:
//
//	JSON parse error:         request was not a valid envelope
//	Base64 decode error:      base64_content was malformed
//	Decompilation error:      the disassembler rejected the class
//	Assembly error:           the assembler rejected the source
//	Output encoding error:    disassembly was not valid UTF-8
//	JSON serialization error: the response could not be encoded
//
// When the request cannot be parsed the echoed file_path is "unknown".
//
// Boundary moves envelopes through linear memory using the pointer/length
// protocol: AllocateInput, write, Decompile or Assemble, ResponsePointer and
// ResponseLength, then FreeBuffer and FreeResponse. Negative statuses are
// StatusInvalidInput (-1), StatusAllocationFailed (-2) and StatusWriteFailed
// (-3). Handler is the same logic without memory for in-process callers.
package protocol
