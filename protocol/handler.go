package protocol

import (
	"context"
	stderrors "errors"
	"fmt"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/wippyai/krakatau-bridge/errors"
	"github.com/wippyai/krakatau-bridge/toolchain"
	"github.com/wippyai/krakatau-bridge/transcoder"
)

// Message prefixes identifying the stage that failed.
const (
	PrefixParse         = "JSON parse error: "
	PrefixBase64        = "Base64 decode error: "
	PrefixDecompile     = "Decompilation error: "
	PrefixAssemble      = "Assembly error: "
	PrefixOutput        = "Output encoding error: "
	PrefixSerialization = "JSON serialization error: "
)

// Handler turns requests into response envelopes. It never returns an error:
// every failure becomes an envelope with success=false.
type Handler struct {
	tc toolchain.Toolchain
}

// NewHandler creates a handler backed by tc.
func NewHandler(tc toolchain.Toolchain) *Handler {
	return &Handler{tc: tc}
}

// HandleDisassemble parses raw as a disassemble request and runs it.
func (h *Handler) HandleDisassemble(ctx context.Context, raw []byte) DisassembleResponse {
	req, err := ParseDisassembleRequest(raw)
	if err != nil {
		return DisassembleFailure(UnknownFilePath, PrefixParse+message(err))
	}
	return h.Disassemble(ctx, req)
}

// HandleAssemble parses raw as an assemble request and runs it.
func (h *Handler) HandleAssemble(ctx context.Context, raw []byte) AssembleResponse {
	req, err := ParseAssembleRequest(raw)
	if err != nil {
		return AssembleFailure(UnknownFilePath, PrefixParse+message(err))
	}
	return h.Assemble(ctx, req)
}

// Disassemble decodes the class bytes and disassembles them.
func (h *Handler) Disassemble(ctx context.Context, req DisassembleRequest) (resp DisassembleResponse) {
	defer func() {
		if r := recover(); r != nil {
			Logger().Error("disassembler panicked", zap.String("file", req.FilePath), zap.Any("panic", r))
			resp = DisassembleFailure(req.FilePath, PrefixDecompile+fmt.Sprint(r))
		}
	}()

	data, err := transcoder.Decode(req.Base64Content)
	if err != nil {
		return DisassembleFailure(req.FilePath, PrefixBase64+message(err))
	}

	_, out, err := h.tc.Disassemble(ctx, data,
		toolchain.ParserOptions{NoShortCodeAttr: req.NoShortCodeAttr},
		toolchain.DisassemblerOptions{Roundtrip: req.Roundtrip})
	if err != nil {
		return DisassembleFailure(req.FilePath, PrefixDecompile+err.Error())
	}

	if !utf8.Valid(out) {
		uerr := errors.InvalidUTF8(errors.PhaseProtocol, []string{"output"}, out, firstInvalid(out))
		return DisassembleFailure(req.FilePath, PrefixOutput+uerr.Detail)
	}
	return DisassembleSuccess(req.FilePath, string(out))
}

// Assemble compiles the source and encodes every produced class.
func (h *Handler) Assemble(ctx context.Context, req AssembleRequest) (resp AssembleResponse) {
	defer func() {
		if r := recover(); r != nil {
			Logger().Error("assembler panicked", zap.String("file", req.FilePath), zap.Any("panic", r))
			resp = AssembleFailure(req.FilePath, PrefixAssemble+fmt.Sprint(r))
		}
	}()

	classes, err := h.tc.Assemble(ctx, req.SourceCode, toolchain.AssemblerOptions{})
	if err != nil {
		return AssembleFailure(req.FilePath, PrefixAssemble+err.Error())
	}

	files := make([]ClassFileResult, 0, len(classes))
	for _, c := range classes {
		r := ClassFileResult{Base64Content: transcoder.Encode(c.Data)}
		if c.Name != "" {
			name := c.Name
			r.Name = &name
		}
		files = append(files, r)
	}
	return AssembleSuccess(req.FilePath, files)
}

// message prefers the bare detail of a structured error so envelope text
// reads "missing field `x`" rather than the full phase/kind form.
func message(err error) string {
	var e *errors.Error
	if stderrors.As(err, &e) && e.Cause == nil && e.Detail != "" {
		return e.Detail
	}
	return err.Error()
}

func firstInvalid(b []byte) int {
	for i := 0; i < len(b); {
		r, size := utf8.DecodeRune(b[i:])
		if r == utf8.RuneError && size <= 1 {
			return i
		}
		i += size
	}
	return len(b)
}
