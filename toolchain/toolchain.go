package toolchain

import (
	"context"

	"github.com/wippyai/krakatau-bridge/errors"
)

// ParserOptions control how class files are parsed before disassembly.
type ParserOptions struct {
	NoShortCodeAttr bool
}

// DisassemblerOptions control disassembly output.
type DisassemblerOptions struct {
	Roundtrip bool
}

// AssemblerOptions control assembly. There are currently none.
type AssemblerOptions struct{}

// ClassFile is one class produced by the assembler.
type ClassFile struct {
	// Name is the class name, or "" when the assembler could not derive one.
	Name string
	Data []byte
}

// Disassembler turns class file bytes into assembler source.
type Disassembler interface {
	Disassemble(ctx context.Context, data []byte, parse ParserOptions, opts DisassemblerOptions) (name string, out []byte, err error)
}

// Assembler turns assembler source into zero or more class files, in the
// order the source defines them.
type Assembler interface {
	Assemble(ctx context.Context, source string, opts AssemblerOptions) ([]ClassFile, error)
}

// Toolchain is the full assembler/disassembler contract. Option fields are
// passed through without validation.
type Toolchain interface {
	Assembler
	Disassembler
}

// AssembleFunc adapts a function to Assembler.
type AssembleFunc func(ctx context.Context, source string, opts AssemblerOptions) ([]ClassFile, error)

// DisassembleFunc adapts a function to Disassembler.
type DisassembleFunc func(ctx context.Context, data []byte, parse ParserOptions, opts DisassemblerOptions) (string, []byte, error)

// Funcs builds a Toolchain from plain functions. A nil function reports an
// unsupported-operation error.
type Funcs struct {
	AssembleFn    AssembleFunc
	DisassembleFn DisassembleFunc
}

var _ Toolchain = Funcs{}

func (f Funcs) Assemble(ctx context.Context, source string, opts AssemblerOptions) ([]ClassFile, error) {
	if f.AssembleFn == nil {
		return nil, errors.NotFound(errors.PhaseToolchain, "operation", "assemble")
	}
	return f.AssembleFn(ctx, source, opts)
}

func (f Funcs) Disassemble(ctx context.Context, data []byte, parse ParserOptions, opts DisassemblerOptions) (string, []byte, error) {
	if f.DisassembleFn == nil {
		return "", nil, errors.NotFound(errors.PhaseToolchain, "operation", "disassemble")
	}
	return f.DisassembleFn(ctx, data, parse, opts)
}
