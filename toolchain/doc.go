// Package toolchain defines the contract of the Krakatau assembler and
// disassembler as seen from the boundary.
//
// The boundary treats the toolchain as a black box: it forwards option flags
// verbatim, and a failure's message is shown to the caller unmodified.
//
// Exec drives the krak2 command line tool:
//
//	tc := toolchain.NewExec("krak2")
//	name, text, err := tc.Disassemble(ctx, classBytes,
//	    toolchain.ParserOptions{}, toolchain.DisassemblerOptions{Roundtrip: true})
//
// Funcs adapts plain functions, which is convenient for tests and for
// backends living in other packages.
package toolchain
