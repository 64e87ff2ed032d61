package host

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"

	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	bridge "github.com/wippyai/krakatau-bridge"
	"github.com/wippyai/krakatau-bridge/errors"
	"github.com/wippyai/krakatau-bridge/memory"
	"github.com/wippyai/krakatau-bridge/protocol"
	"github.com/wippyai/krakatau-bridge/toolchain"
	"github.com/wippyai/krakatau-bridge/transcoder"
)

// Client drives a guest module that exports the boundary ABI. It performs
// the caller side of the pointer protocol: allocate, write, invoke, read,
// release.
type Client struct {
	mod         api.Module
	mem         *memory.Wrapper
	decompile   api.Function
	assemble    api.Function
	allocate    api.Function
	free        api.Function
	respLength  api.Function
	respPointer api.Function
	respFree    api.Function
	mu          sync.Mutex
}

// NewClient resolves the boundary exports of mod.
func NewClient(mod api.Module) (*Client, error) {
	mem := mod.Memory()
	if mem == nil {
		return nil, errors.NotFound(errors.PhaseHost, "memory of module", mod.Name())
	}

	c := &Client{mod: mod, mem: memory.WrapMemory(mem)}
	targets := []struct {
		fn   *api.Function
		name string
	}{
		{&c.decompile, ExportDecompile},
		{&c.assemble, ExportAssemble},
		{&c.allocate, ExportAllocateInput},
		{&c.free, ExportFreeBuffer},
		{&c.respLength, ExportResponseLength},
		{&c.respPointer, ExportResponsePointer},
		{&c.respFree, ExportFreeResponse},
	}
	for _, t := range targets {
		fn := resolve(mod, t.name)
		if fn == nil {
			return nil, errors.NotFound(errors.PhaseHost, "export", t.name)
		}
		*t.fn = fn
	}
	return c, nil
}

func resolve(mod api.Module, name string) api.Function {
	for _, candidate := range exportNames[name] {
		if fn := mod.ExportedFunction(candidate); fn != nil {
			return fn
		}
	}
	return nil
}

// Module returns the guest module.
func (c *Client) Module() api.Module {
	return c.mod
}

// Close closes the guest module.
func (c *Client) Close(ctx context.Context) error {
	return c.mod.Close(ctx)
}

// Exchange sends one request envelope and returns a copy of the response
// envelope. Both guest buffers are released before it returns.
func (c *Client) Exchange(ctx context.Context, op protocol.Op, req []byte) ([]byte, error) {
	var entry api.Function
	switch op {
	case protocol.OpDecompile:
		entry = c.decompile
	case protocol.OpAssemble:
		entry = c.assemble
	default:
		return nil, errors.NotFound(errors.PhaseHost, "operation", string(op))
	}
	if len(req) == 0 {
		return nil, errors.InvalidInput(errors.PhaseHost, "empty request")
	}
	if uint64(len(req)) > uint64(^uint32(0)) {
		return nil, errors.TooLarge(errors.PhaseHost, "request", ^uint32(0), ^uint32(0))
	}
	size := uint32(len(req))

	c.mu.Lock()
	defer c.mu.Unlock()

	res, err := c.allocate.Call(ctx, api.EncodeU32(size))
	if err != nil {
		return nil, errors.Wrap(errors.PhaseHost, errors.KindAllocation, err, "allocate_input_buffer")
	}
	ptr := api.DecodeU32(res[0])
	if ptr == bridge.Null {
		return nil, errors.AllocationFailed(errors.PhaseHost, size, memory.MinAlign)
	}
	defer func() {
		if _, err := c.free.Call(ctx, api.EncodeU32(ptr), api.EncodeU32(size)); err != nil {
			Logger().Warn("free_buffer failed", zap.Uint32("ptr", ptr), zap.Error(err))
		}
	}()

	if err := c.mem.Write(ptr, req); err != nil {
		return nil, err
	}

	res, err = entry.Call(ctx, api.EncodeU32(ptr), api.EncodeU32(size))
	if err != nil {
		return nil, errors.Wrap(errors.PhaseHost, errors.KindStatus, err, string(op))
	}
	status := api.DecodeI32(res[0])
	if status < 0 {
		return nil, errors.Status(string(op), status)
	}
	defer func() {
		if _, err := c.respFree.Call(ctx); err != nil {
			Logger().Warn("free_response failed", zap.Error(err))
		}
	}()

	res, err = c.respLength.Call(ctx)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseHost, errors.KindStatus, err, ExportResponseLength)
	}
	length := api.DecodeU32(res[0])
	res, err = c.respPointer.Call(ctx)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseHost, errors.KindStatus, err, ExportResponsePointer)
	}
	respPtr := api.DecodeU32(res[0])
	if respPtr == bridge.Null {
		return nil, errors.NotFound(errors.PhaseHost, "response for", string(op))
	}

	data, err := c.mem.Read(respPtr, length)
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(data))
	copy(out, data)

	Logger().Debug("exchange complete",
		zap.String("op", string(op)),
		zap.Uint32("request", size),
		zap.Uint32("response", length))
	return out, nil
}

// Decompile sends a disassemble request. A failed envelope is returned as a
// response, not an error.
func (c *Client) Decompile(ctx context.Context, req protocol.DisassembleRequest) (protocol.DisassembleResponse, error) {
	var resp protocol.DisassembleResponse
	err := c.roundTrip(ctx, protocol.OpDecompile, req, &resp)
	return resp, err
}

// Assemble sends an assemble request. A failed envelope is returned as a
// response, not an error.
func (c *Client) Assemble(ctx context.Context, req protocol.AssembleRequest) (protocol.AssembleResponse, error) {
	var resp protocol.AssembleResponse
	err := c.roundTrip(ctx, protocol.OpAssemble, req, &resp)
	return resp, err
}

func (c *Client) roundTrip(ctx context.Context, op protocol.Op, req, resp any) error {
	body, err := json.Marshal(req)
	if err != nil {
		return errors.Wrap(errors.PhaseEncode, errors.KindInvalidData, err, "encode request")
	}
	out, err := c.Exchange(ctx, op, body)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(out, resp); err != nil {
		return errors.Wrap(errors.PhaseDecode, errors.KindInvalidData, err, "decode response")
	}
	return nil
}

// Toolchain adapts the guest as a toolchain.Toolchain, so a wasm build of
// the assembler can stand in for the native one.
func (c *Client) Toolchain() toolchain.Toolchain {
	return guestToolchain{c: c}
}

// guestFilePath labels requests made through the toolchain adapter.
const guestFilePath = "input"

type guestToolchain struct {
	c *Client
}

func (g guestToolchain) Disassemble(ctx context.Context, data []byte, parse toolchain.ParserOptions, opts toolchain.DisassemblerOptions) (string, []byte, error) {
	resp, err := g.c.Decompile(ctx, protocol.DisassembleRequest{
		FilePath:        guestFilePath,
		Base64Content:   transcoder.Encode(data),
		Roundtrip:       opts.Roundtrip,
		NoShortCodeAttr: parse.NoShortCodeAttr,
	})
	if err != nil {
		return "", nil, err
	}
	if err := resp.Err(); err != nil {
		return "", nil, errors.Toolchain("disassemble", err)
	}
	if resp.Output == nil {
		return "", []byte{}, nil
	}
	return "", []byte(*resp.Output), nil
}

func (g guestToolchain) Assemble(ctx context.Context, source string, _ toolchain.AssemblerOptions) ([]toolchain.ClassFile, error) {
	resp, err := g.c.Assemble(ctx, protocol.AssembleRequest{FilePath: guestFilePath, SourceCode: source})
	if err != nil {
		return nil, err
	}
	if err := resp.Err(); err != nil {
		return nil, errors.Toolchain("assemble", err)
	}

	classes := make([]toolchain.ClassFile, 0, len(resp.ClassFiles))
	for i, cf := range resp.ClassFiles {
		data, err := transcoder.Decode(cf.Base64Content)
		if err != nil {
			return nil, errors.New(errors.PhaseDecode, errors.KindInvalidData).
				Path("class_files", strconv.Itoa(i)).
				Cause(err).
				Build()
		}
		class := toolchain.ClassFile{Data: data}
		if cf.Name != nil {
			class.Name = *cf.Name
		}
		classes = append(classes, class)
	}
	return classes, nil
}
