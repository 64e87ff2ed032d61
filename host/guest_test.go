package host

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/wippyai/krakatau-bridge/toolchain"
)

// trampoline is a guest function that forwards its parameters to an import
// from the "krakatau" module and is exported under exportName.
type trampoline struct {
	importName string
	exportName string
	params     int
	results    int
}

var abiTrampolines = []trampoline{
	{ExportDecompile, ExportDecompile, 2, 1},
	{ExportAssemble, ExportAssemble, 2, 1},
	{ExportAllocateInput, ExportAllocateInput, 1, 1},
	{ExportFreeBuffer, ExportFreeBuffer, 2, 0},
	{ExportResponseLength, ExportResponseLength, 0, 1},
	{ExportResponsePointer, ExportResponsePointer, 0, 1},
	{ExportFreeResponse, ExportFreeResponse, 0, 0},
}

var aliasTrampolines = []trampoline{
	{AliasDecompile, AliasDecompile, 2, 1},
	{ExportAssemble, ExportAssemble, 2, 1},
	{ExportAllocateInput, ExportAllocateInput, 1, 1},
	{ExportFreeBuffer, ExportFreeBuffer, 2, 0},
	{AliasResponseLength, AliasResponseLength, 0, 1},
	{AliasResponsePointer, AliasResponsePointer, 0, 1},
	{ExportFreeResponse, ExportFreeResponse, 0, 0},
}

func uleb(v uint32) []byte {
	var out []byte
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			out = append(out, b|0x80)
			continue
		}
		return append(out, b)
	}
}

func wasmName(s string) []byte {
	return append(uleb(uint32(len(s))), s...)
}

func section(id byte, content []byte) []byte {
	out := append([]byte{id}, uleb(uint32(len(content)))...)
	return append(out, content...)
}

// buildGuest encodes a core module with one trampoline per entry and, when
// withMemory is set, an exported memory of 1 initial and 256 maximum pages.
func buildGuest(ts []trampoline, withMemory bool) []byte {
	const i32 = 0x7f
	n := uint32(len(ts))

	types := uleb(n)
	imports := uleb(n)
	funcs := uleb(n)
	code := uleb(n)
	for i, t := range ts {
		types = append(types, 0x60)
		types = append(types, uleb(uint32(t.params))...)
		types = append(types, bytes.Repeat([]byte{i32}, t.params)...)
		types = append(types, uleb(uint32(t.results))...)
		types = append(types, bytes.Repeat([]byte{i32}, t.results)...)

		imports = append(imports, wasmName(ModuleName)...)
		imports = append(imports, wasmName(t.importName)...)
		imports = append(imports, 0x00)
		imports = append(imports, uleb(uint32(i))...)

		funcs = append(funcs, uleb(uint32(i))...)

		body := []byte{0x00} // no locals
		for j := 0; j < t.params; j++ {
			body = append(body, 0x20)
			body = append(body, uleb(uint32(j))...)
		}
		body = append(body, 0x10)
		body = append(body, uleb(uint32(i))...)
		body = append(body, 0x0b)
		code = append(code, uleb(uint32(len(body)))...)
		code = append(code, body...)
	}

	exportCount := n
	if withMemory {
		exportCount++
	}
	exports := uleb(exportCount)
	if withMemory {
		exports = append(exports, wasmName("memory")...)
		exports = append(exports, 0x02, 0x00)
	}
	for i, t := range ts {
		exports = append(exports, wasmName(t.exportName)...)
		exports = append(exports, 0x00)
		exports = append(exports, uleb(n+uint32(i))...)
	}

	out := []byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00}
	out = append(out, section(1, types)...)
	out = append(out, section(2, imports)...)
	out = append(out, section(3, funcs)...)
	if withMemory {
		mem := []byte{0x01, 0x01}
		mem = append(mem, uleb(1)...)
		mem = append(mem, uleb(256)...)
		out = append(out, section(5, mem)...)
	}
	out = append(out, section(7, exports)...)
	out = append(out, section(10, code)...)
	return out
}

// buildCommand encodes a command module whose _start allocates a 16 byte
// input buffer through the provider, traps when that yields null and then
// calls proc_exit(code). A negative code returns from _start instead.
func buildCommand(code int) []byte {
	if code > 63 {
		panic("exit code needs a multi-byte immediate")
	}
	types := []byte{0x03,
		0x60, 0x01, 0x7f, 0x01, 0x7f, // (i32) -> i32
		0x60, 0x00, 0x00, // () -> ()
		0x60, 0x01, 0x7f, 0x00, // (i32) -> ()
	}

	imports := uleb(2)
	imports = append(imports, wasmName(ModuleName)...)
	imports = append(imports, wasmName(ExportAllocateInput)...)
	imports = append(imports, 0x00, 0x00)
	imports = append(imports, wasmName(wasiModuleName)...)
	imports = append(imports, wasmName("proc_exit")...)
	imports = append(imports, 0x00, 0x02)

	mem := []byte{0x01, 0x01}
	mem = append(mem, uleb(1)...)
	mem = append(mem, uleb(256)...)

	exports := uleb(2)
	exports = append(exports, wasmName("memory")...)
	exports = append(exports, 0x02, 0x00)
	exports = append(exports, wasmName("_start")...)
	exports = append(exports, 0x00, 0x02)

	body := []byte{0x00,
		0x41, 0x10, 0x10, 0x00, // allocate_input_buffer(16)
		0x45, 0x04, 0x40, 0x00, 0x0b, // if null: unreachable
	}
	if code >= 0 {
		body = append(body, 0x41, byte(code), 0x10, 0x01)
	}
	body = append(body, 0x0b)
	codeSec := append(uleb(1), uleb(uint32(len(body)))...)
	codeSec = append(codeSec, body...)

	out := []byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00}
	out = append(out, section(1, types)...)
	out = append(out, section(2, imports)...)
	out = append(out, section(3, []byte{0x01, 0x01})...)
	out = append(out, section(5, mem)...)
	out = append(out, section(7, exports)...)
	out = append(out, section(10, codeSec)...)
	return out
}

var classMagic = []byte{0xca, 0xfe, 0xba, 0xbe}

func fakeToolchain() toolchain.Funcs {
	return toolchain.Funcs{
		DisassembleFn: func(_ context.Context, data []byte, _ toolchain.ParserOptions, opts toolchain.DisassemblerOptions) (string, []byte, error) {
			if !bytes.HasPrefix(data, classMagic) {
				return "", nil, fmt.Errorf("bad magic")
			}
			out := ".class public Minimal\n"
			if opts.Roundtrip {
				out += "; roundtrip\n"
			}
			return "Minimal", []byte(out), nil
		},
		AssembleFn: func(_ context.Context, source string, _ toolchain.AssemblerOptions) ([]toolchain.ClassFile, error) {
			var classes []toolchain.ClassFile
			for _, line := range strings.Split(source, "\n") {
				name, ok := strings.CutPrefix(strings.TrimSpace(line), ".class ")
				if !ok {
					continue
				}
				classes = append(classes, toolchain.ClassFile{
					Name: name,
					Data: append(append([]byte{}, classMagic...), name...),
				})
			}
			if strings.Contains(source, ".bogus") {
				return nil, fmt.Errorf("unknown directive .bogus")
			}
			return classes, nil
		},
	}
}
