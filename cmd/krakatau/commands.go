package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/wippyai/krakatau-bridge/protocol"
	"github.com/wippyai/krakatau-bridge/service"
	"github.com/wippyai/krakatau-bridge/transcoder"
)

type runner struct {
	ex     service.Exchanger
	stdout io.Writer
	stderr io.Writer
}

type disOptions struct {
	out             string
	roundtrip       bool
	noShortCodeAttr bool
}

// result is one processed input, as shown by the interactive viewer.
type result struct {
	path   string
	title  string
	body   string
	failed bool
}

func (r *runner) disassemble(ctx context.Context, path string, opts disOptions) (protocol.DisassembleResponse, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return protocol.DisassembleResponse{}, err
	}
	req, err := json.Marshal(protocol.DisassembleRequest{
		FilePath:        path,
		Base64Content:   transcoder.Encode(data),
		Roundtrip:       opts.roundtrip,
		NoShortCodeAttr: opts.noShortCodeAttr,
	})
	if err != nil {
		return protocol.DisassembleResponse{}, err
	}

	body, err := r.ex.Exchange(ctx, protocol.OpDecompile, req)
	if err != nil {
		return protocol.DisassembleResponse{}, fmt.Errorf("%s: %w", path, err)
	}
	var resp protocol.DisassembleResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return protocol.DisassembleResponse{}, fmt.Errorf("%s: decode response: %w", path, err)
	}
	return resp, nil
}

// dis disassembles every path. Output goes to stdout unless opts.out names a
// directory, where each result is written as <name>.j.
func (r *runner) dis(ctx context.Context, paths []string, opts disOptions) []result {
	results := make([]result, 0, len(paths))
	for _, path := range paths {
		res := result{path: path, title: filepath.Base(path)}

		resp, err := r.disassemble(ctx, path, opts)
		if err == nil {
			err = resp.Err()
		}
		if err != nil {
			res.failed, res.body = true, err.Error()
			results = append(results, res)
			fmt.Fprintln(r.stderr, err)
			continue
		}
		res.body = *resp.Output
		results = append(results, res)

		if opts.out == "" {
			fmt.Fprint(r.stdout, res.body)
			continue
		}
		dest := filepath.Join(opts.out, strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))+".j")
		if err := os.WriteFile(dest, []byte(res.body), 0o644); err != nil {
			fmt.Fprintf(r.stderr, "%s: %v\n", path, err)
			results[len(results)-1].failed = true
			continue
		}
		fmt.Fprintf(r.stdout, "%s -> %s\n", path, dest)
	}
	return results
}

func (r *runner) assemble(ctx context.Context, path string) (protocol.AssembleResponse, error) {
	source, err := os.ReadFile(path)
	if err != nil {
		return protocol.AssembleResponse{}, err
	}
	req, err := json.Marshal(protocol.AssembleRequest{FilePath: path, SourceCode: string(source)})
	if err != nil {
		return protocol.AssembleResponse{}, err
	}

	body, err := r.ex.Exchange(ctx, protocol.OpAssemble, req)
	if err != nil {
		return protocol.AssembleResponse{}, fmt.Errorf("%s: %w", path, err)
	}
	var resp protocol.AssembleResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return protocol.AssembleResponse{}, fmt.Errorf("%s: decode response: %w", path, err)
	}
	return resp, nil
}

// asm assembles every path and writes each class to out as <name>.class,
// creating package directories as needed.
func (r *runner) asm(ctx context.Context, paths []string, out string) []result {
	results := make([]result, 0, len(paths))
	for _, path := range paths {
		res := result{path: path, title: filepath.Base(path)}
		summary, err := r.assembleOne(ctx, path, out)
		if err != nil {
			res.failed, res.body = true, err.Error()
			fmt.Fprintln(r.stderr, err)
		} else {
			res.body = summary
			fmt.Fprint(r.stdout, summary)
		}
		results = append(results, res)
	}
	return results
}

func (r *runner) assembleOne(ctx context.Context, path, out string) (string, error) {
	resp, err := r.assemble(ctx, path)
	if err != nil {
		return "", err
	}
	if err := resp.Err(); err != nil {
		return "", err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s: %d class(es)\n", path, len(resp.ClassFiles))
	for i, cf := range resp.ClassFiles {
		data, err := transcoder.Decode(cf.Base64Content)
		if err != nil {
			return "", fmt.Errorf("%s: class %d: %w", path, i, err)
		}
		name := fallbackClassName(path, i)
		if cf.Name != nil && *cf.Name != "" {
			name = *cf.Name
		}
		dest, err := classPath(out, name)
		if err != nil {
			return "", fmt.Errorf("%s: %w", path, err)
		}
		if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
			return "", err
		}
		if err := os.WriteFile(dest, data, 0o644); err != nil {
			return "", err
		}
		fmt.Fprintf(&b, "  %s (%d bytes) -> %s\n", name, len(data), dest)
	}
	return b.String(), nil
}

func fallbackClassName(path string, index int) string {
	return strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)) + "_" + strconv.Itoa(index)
}

// classPath maps a class name such as "pkg/Foo" below out. Names that would
// escape out are rejected.
func classPath(out, name string) (string, error) {
	rel := filepath.FromSlash(name) + ".class"
	if !filepath.IsLocal(rel) {
		return "", fmt.Errorf("class name %q escapes the output directory", name)
	}
	return filepath.Join(out, rel), nil
}

func failures(results []result) int {
	n := 0
	for _, r := range results {
		if r.failed {
			n++
		}
	}
	return n
}
