package toolchain

import (
	"bytes"
	"context"
	"io"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zip"
	"go.uber.org/zap"

	"github.com/wippyai/krakatau-bridge/errors"
)

// DefaultBinary is the Krakatau v2 command line tool.
const DefaultBinary = "krak2"

// DiagnosticError carries the tool's own diagnostic text. Error returns that
// text unmodified.
type DiagnosticError struct {
	Err    error
	Op     string
	Output string
}

func (e *DiagnosticError) Error() string {
	if e.Output != "" {
		return e.Output
	}
	return e.Op + ": " + e.Err.Error()
}

func (e *DiagnosticError) Unwrap() error {
	return e.Err
}

// Exec runs the krak2 binary for each operation, exchanging data through a
// private temporary directory that is removed afterwards.
type Exec struct {
	// Path is the krak2 executable, resolved through PATH when not absolute.
	Path string
	// TempDir is the parent for scratch directories; "" uses os.TempDir.
	TempDir string
	// Env is appended to the current environment.
	Env []string
}

var _ Toolchain = (*Exec)(nil)

// NewExec returns an Exec backend for the given binary.
func NewExec(path string) *Exec {
	if path == "" {
		path = DefaultBinary
	}
	return &Exec{Path: path}
}

// Disassemble writes data to a scratch class file and disassembles it. The
// returned name is the output path relative to the output directory, without
// the .j extension.
func (e *Exec) Disassemble(ctx context.Context, data []byte, parse ParserOptions, opts DisassemblerOptions) (string, []byte, error) {
	dir, err := os.MkdirTemp(e.TempDir, "krak2-dis-*")
	if err != nil {
		return "", nil, errors.Wrap(errors.PhaseToolchain, errors.KindInvalidInput, err, "create scratch directory")
	}
	defer os.RemoveAll(dir)

	in := filepath.Join(dir, "input.class")
	if err := os.WriteFile(in, data, 0o600); err != nil {
		return "", nil, errors.Wrap(errors.PhaseToolchain, errors.KindInvalidInput, err, "write class file")
	}
	out := filepath.Join(dir, "out")
	if err := os.Mkdir(out, 0o700); err != nil {
		return "", nil, errors.Wrap(errors.PhaseToolchain, errors.KindInvalidInput, err, "create output directory")
	}

	args := []string{"dis", "--out", out}
	if opts.Roundtrip {
		args = append(args, "--roundtrip")
	}
	if parse.NoShortCodeAttr {
		args = append(args, "--no-short-code-attr")
	}
	args = append(args, in)

	if err := e.run(ctx, "dis", args); err != nil {
		return "", nil, err
	}

	files, err := collect(out, ".j")
	if err != nil {
		return "", nil, err
	}
	if len(files) != 1 {
		return "", nil, errors.New(errors.PhaseToolchain, errors.KindInvalidData).
			Detail("expected one disassembly, found %d", len(files)).
			Build()
	}
	return files[0].Name, files[0].Data, nil
}

// Assemble writes source to a scratch file and assembles it into a jar.
// Class files are returned in the order the assembler wrote them.
func (e *Exec) Assemble(ctx context.Context, source string, _ AssemblerOptions) ([]ClassFile, error) {
	dir, err := os.MkdirTemp(e.TempDir, "krak2-asm-*")
	if err != nil {
		return nil, errors.Wrap(errors.PhaseToolchain, errors.KindInvalidInput, err, "create scratch directory")
	}
	defer os.RemoveAll(dir)

	in := filepath.Join(dir, "input.j")
	if err := os.WriteFile(in, []byte(source), 0o600); err != nil {
		return nil, errors.Wrap(errors.PhaseToolchain, errors.KindInvalidInput, err, "write source file")
	}
	out := filepath.Join(dir, "out.jar")

	if err := e.run(ctx, "asm", []string{"asm", "--out", out, in}); err != nil {
		return nil, err
	}

	return readJar(out)
}

// readJar returns every .class entry of the archive at path in archive order.
// A missing archive means the source defined no classes.
func readJar(path string) ([]ClassFile, error) {
	zr, err := zip.OpenReader(path)
	if os.IsNotExist(err) {
		return []ClassFile{}, nil
	}
	if err != nil {
		return nil, errors.Wrap(errors.PhaseToolchain, errors.KindInvalidData, err, "open assembler output")
	}
	defer zr.Close()

	files := make([]ClassFile, 0, len(zr.File))
	for _, f := range zr.File {
		if f.FileInfo().IsDir() || !strings.HasSuffix(f.Name, ".class") {
			continue
		}
		data, err := readEntry(f)
		if err != nil {
			return nil, errors.New(errors.PhaseToolchain, errors.KindInvalidData).
				Path(f.Name).
				Cause(err).
				Build()
		}
		files = append(files, ClassFile{Name: strings.TrimSuffix(f.Name, ".class"), Data: data})
	}
	return files, nil
}

func readEntry(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

func (e *Exec) run(ctx context.Context, op string, args []string) error {
	cmd := exec.CommandContext(ctx, e.Path, args...)
	if len(e.Env) > 0 {
		cmd.Env = append(os.Environ(), e.Env...)
	}
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	Logger().Debug("run toolchain", zap.String("path", e.Path), zap.Strings("args", args))

	if err := cmd.Run(); err != nil {
		diag := strings.TrimSpace(stderr.String())
		Logger().Debug("toolchain failed", zap.String("op", op), zap.Error(err), zap.String("stderr", diag))
		return &DiagnosticError{Op: op, Output: diag, Err: err}
	}
	return nil
}

// collect reads every file with the given extension under root, in lexical
// path order. Disassembly writes exactly one.
func collect(root, ext string) ([]ClassFile, error) {
	var files []ClassFile
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(path, ext) {
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		files = append(files, ClassFile{
			Name: strings.TrimSuffix(filepath.ToSlash(rel), ext),
			Data: data,
		})
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(errors.PhaseToolchain, errors.KindInvalidData, err, "read toolchain output")
	}
	return files, nil
}
