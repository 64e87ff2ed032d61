package protocol

import (
	"context"
	"math"
	"sync"

	"go.uber.org/zap"

	bridge "github.com/wippyai/krakatau-bridge"
	"github.com/wippyai/krakatau-bridge/errors"
	"github.com/wippyai/krakatau-bridge/memory"
	"github.com/wippyai/krakatau-bridge/toolchain"
)

// Op names a toolchain entry point.
type Op string

const (
	OpDecompile Op = "decompile"
	OpAssemble  Op = "assemble"
)

// Status codes returned by Decompile and Assemble. Non-negative values are
// the stored response length.
const (
	StatusInvalidInput     int32 = -1
	StatusAllocationFailed int32 = -2
	StatusWriteFailed      int32 = -3
)

const (
	DefaultInputCeiling    uint32 = 64 << 10
	DefaultResponseCeiling uint32 = 512 << 10
)

// Limits bound buffer sizes. A size equal to the ceiling is rejected.
type Limits struct {
	InputCeiling    uint32
	ResponseCeiling uint32
}

// DefaultLimits returns the 64 KiB input and 512 KiB response ceilings.
func DefaultLimits() Limits {
	return Limits{InputCeiling: DefaultInputCeiling, ResponseCeiling: DefaultResponseCeiling}
}

// Option configures a Boundary.
type Option func(*Boundary)

// WithLimits overrides the default ceilings. Zero fields keep the default.
func WithLimits(l Limits) Option {
	return func(b *Boundary) {
		if l.InputCeiling != 0 {
			b.limits.InputCeiling = l.InputCeiling
		}
		if l.ResponseCeiling != 0 {
			b.limits.ResponseCeiling = l.ResponseCeiling
		}
	}
}

// Boundary implements the pointer/length protocol over one linear memory.
// The caller allocates an input buffer, writes a request, invokes an entry
// point, reads the response through ResponsePointer/ResponseLength and
// releases both buffers. At most one response is held at a time; a new
// call frees the previous one.
//
// All methods are safe for concurrent use. Exchange holds the lock across
// the whole sequence so concurrent callers never observe each other's
// responses.
type Boundary struct {
	mu      sync.Mutex
	mem     bridge.Memory
	alloc   bridge.Allocator
	handler *Handler
	slot    Slot
	limits  Limits
}

// NewBoundary creates a boundary over mem, carving buffers from alloc and
// dispatching requests to tc.
func NewBoundary(mem bridge.Memory, alloc bridge.Allocator, tc toolchain.Toolchain, opts ...Option) *Boundary {
	b := &Boundary{
		mem:     mem,
		alloc:   alloc,
		handler: NewHandler(tc),
		limits:  DefaultLimits(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Limits returns the active ceilings.
func (b *Boundary) Limits() Limits {
	return b.limits
}

// Handler returns the envelope handler used by the entry points.
func (b *Boundary) Handler() *Handler {
	return b.handler
}

// AllocateInput reserves size bytes for a request. It returns Null when size
// is zero, reaches the input ceiling or cannot be satisfied.
func (b *Boundary) AllocateInput(size uint32) uint32 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.allocateInput(size)
}

func (b *Boundary) allocateInput(size uint32) uint32 {
	if size == 0 || size >= b.limits.InputCeiling {
		Logger().Warn("input allocation rejected",
			zap.Uint32("size", size),
			zap.Uint32("ceiling", b.limits.InputCeiling))
		return bridge.Null
	}
	ptr, err := b.alloc.Alloc(size, memory.MinAlign)
	if err != nil {
		Logger().Warn("input allocation failed", zap.Uint32("size", size), zap.Error(err))
		return bridge.Null
	}
	return ptr
}

// FreeBuffer releases a buffer obtained from AllocateInput. Null is a no-op.
// The held response is never released through this path.
func (b *Boundary) FreeBuffer(ptr, size uint32) {
	if ptr == bridge.Null {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.slot.Holds(ptr) {
		Logger().Warn("free_buffer on the response buffer ignored", zap.Uint32("ptr", ptr))
		return
	}
	b.alloc.Free(ptr, size, memory.MinAlign)
}

// Decompile handles a disassemble request stored at [ptr, ptr+length).
// It returns the response length or a negative status.
func (b *Boundary) Decompile(ctx context.Context, ptr, length uint32) int32 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.invoke(ctx, OpDecompile, ptr, length)
}

// Assemble handles an assemble request stored at [ptr, ptr+length).
// It returns the response length or a negative status.
func (b *Boundary) Assemble(ctx context.Context, ptr, length uint32) int32 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.invoke(ctx, OpAssemble, ptr, length)
}

// Invoke dispatches op by name. Unknown ops yield StatusInvalidInput.
func (b *Boundary) Invoke(ctx context.Context, op Op, ptr, length uint32) int32 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.invoke(ctx, op, ptr, length)
}

// ResponseLength returns the held response length, or 0.
func (b *Boundary) ResponseLength() int32 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return int32(b.slot.Length())
}

// ResponsePointer returns the held response address, or Null.
func (b *Boundary) ResponsePointer() uint32 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.slot.Pointer()
}

// FreeResponse releases the held response. It is idempotent.
func (b *Boundary) FreeResponse() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.releaseResponse()
}

// Exchange runs the whole protocol for one request and returns a copy of the
// response bytes. The input and response buffers are released before it
// returns.
func (b *Boundary) Exchange(ctx context.Context, op Op, req []byte) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(req) == 0 {
		return nil, errors.InvalidInput(errors.PhaseProtocol, "empty request")
	}
	if uint64(len(req)) >= uint64(b.limits.InputCeiling) {
		return nil, errors.TooLarge(errors.PhaseProtocol, "request", clampU32(len(req)), b.limits.InputCeiling)
	}
	size := uint32(len(req))

	ptr := b.allocateInput(size)
	if ptr == bridge.Null {
		return nil, errors.AllocationFailed(errors.PhaseProtocol, size, memory.MinAlign)
	}
	defer b.alloc.Free(ptr, size, memory.MinAlign)

	if err := b.mem.Write(ptr, req); err != nil {
		return nil, errors.Wrap(errors.PhaseProtocol, errors.KindOutOfBounds, err, "write request")
	}

	status := b.invoke(ctx, op, ptr, size)
	if status < 0 {
		return nil, errors.Status(string(op), status)
	}

	buf, _ := b.slot.Take()
	defer b.alloc.Free(buf.Ptr, buf.Len, memory.MinAlign)

	data, err := b.mem.Read(buf.Ptr, buf.Len)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseProtocol, errors.KindOutOfBounds, err, "read response")
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

func (b *Boundary) invoke(ctx context.Context, op Op, ptr, length uint32) int32 {
	if ptr == bridge.Null || length == 0 {
		Logger().Warn("entry point called without input", zap.String("op", string(op)))
		return StatusInvalidInput
	}
	raw, err := b.mem.Read(ptr, length)
	if err != nil {
		Logger().Warn("input unreadable", zap.String("op", string(op)), zap.Error(err))
		return StatusInvalidInput
	}

	var resp any
	switch op {
	case OpDecompile:
		resp = b.handler.HandleDisassemble(ctx, raw)
	case OpAssemble:
		resp = b.handler.HandleAssemble(ctx, raw)
	default:
		Logger().Warn("unknown operation", zap.String("op", string(op)))
		return StatusInvalidInput
	}

	Logger().Debug("request handled", zap.String("op", string(op)), zap.Uint32("input", length))
	return b.store(resp)
}

// store serializes resp into a fresh buffer and arms the slot with it.
// Any previously held response is released first.
func (b *Boundary) store(resp any) int32 {
	body, err := marshal(resp)
	if err != nil {
		body = serializationFailure(err)
	}

	b.releaseResponse()

	if uint64(len(body)) >= uint64(b.limits.ResponseCeiling) {
		Logger().Warn("response exceeds ceiling",
			zap.Int("size", len(body)),
			zap.Uint32("ceiling", b.limits.ResponseCeiling))
		return StatusAllocationFailed
	}
	size := uint32(len(body))

	ptr, err := b.alloc.Alloc(size, memory.MinAlign)
	if err != nil {
		Logger().Warn("response allocation failed", zap.Uint32("size", size), zap.Error(err))
		return StatusAllocationFailed
	}
	if err := b.mem.Write(ptr, body); err != nil {
		Logger().Warn("response write failed", zap.Uint32("ptr", ptr), zap.Error(err))
		b.alloc.Free(ptr, size, memory.MinAlign)
		return StatusWriteFailed
	}

	b.slot.Arm(bridge.Buffer{Ptr: ptr, Len: size})
	return int32(size)
}

func (b *Boundary) releaseResponse() {
	if buf, ok := b.slot.Take(); ok {
		b.alloc.Free(buf.Ptr, buf.Len, memory.MinAlign)
	}
}

func serializationFailure(err error) []byte {
	return FailureEnvelope(UnknownFilePath, PrefixSerialization+err.Error())
}

func clampU32(n int) uint32 {
	if uint64(n) > math.MaxUint32 {
		return math.MaxUint32
	}
	return uint32(n)
}
