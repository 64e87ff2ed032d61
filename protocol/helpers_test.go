package protocol

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/wippyai/krakatau-bridge/memory"
	"github.com/wippyai/krakatau-bridge/toolchain"
)

var classMagic = []byte{0xca, 0xfe, 0xba, 0xbe}

// minimalClassB64 is the magic number followed by version 52.0.
const minimalClassB64 = "yv66vgAAADQ="

// fakeToolchain disassembles anything that starts with the class magic and
// assembles one class per ".class <name>" line.
func fakeToolchain() toolchain.Funcs {
	return toolchain.Funcs{
		DisassembleFn: func(_ context.Context, data []byte, parse toolchain.ParserOptions, opts toolchain.DisassemblerOptions) (string, []byte, error) {
			if !bytes.HasPrefix(data, classMagic) {
				return "", nil, fmt.Errorf("class file format error: bad magic")
			}
			var out strings.Builder
			out.WriteString(".version 52 0\n.class public Minimal\n")
			if opts.Roundtrip {
				out.WriteString("; roundtrip\n")
			}
			if parse.NoShortCodeAttr {
				out.WriteString("; no short code attr\n")
			}
			return "Minimal", []byte(out.String()), nil
		},
		AssembleFn: func(_ context.Context, source string, _ toolchain.AssemblerOptions) ([]toolchain.ClassFile, error) {
			var classes []toolchain.ClassFile
			for i, line := range strings.Split(source, "\n") {
				fields := strings.Fields(line)
				if len(fields) == 0 {
					continue
				}
				switch fields[0] {
				case ".class":
					name := ""
					if len(fields) > 1 {
						name = fields[len(fields)-1]
					}
					data := append(append([]byte{}, classMagic...), name...)
					classes = append(classes, toolchain.ClassFile{Name: name, Data: data})
				case ".end":
				default:
					return nil, fmt.Errorf("line %d: unknown directive %s", i+1, fields[0])
				}
			}
			return classes, nil
		},
	}
}

func newTestBoundary(size uint32, opts ...Option) (*Boundary, *memory.Arena, *memory.Allocator) {
	arena := memory.NewArena(memory.DefaultArenaBase, size)
	alloc := memory.NewAllocator(arena.Region())
	return NewBoundary(arena, alloc, fakeToolchain(), opts...), arena, alloc
}
