package host

import (
	"context"
	"sync"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	bridge "github.com/wippyai/krakatau-bridge"
	"github.com/wippyai/krakatau-bridge/errors"
	"github.com/wippyai/krakatau-bridge/memory"
	"github.com/wippyai/krakatau-bridge/protocol"
	"github.com/wippyai/krakatau-bridge/toolchain"
)

// DefaultRegionPages is the number of guest pages reserved per guest.
const DefaultRegionPages = 16

var (
	none = []api.ValueType{}
	one  = []api.ValueType{api.ValueTypeI32}
	two  = []api.ValueType{api.ValueTypeI32, api.ValueTypeI32}
)

// Provider exposes the boundary to guest modules as host module "krakatau".
// Each calling guest gets its own Boundary over its own linear memory; the
// buffers live in pages the provider reserves by growing that memory on
// first use.
type Provider struct {
	tc          toolchain.Toolchain
	guests      map[api.Module]*protocol.Boundary
	limits      protocol.Limits
	regionPages uint32
	mu          sync.Mutex
}

// ProviderOption configures a Provider.
type ProviderOption func(*Provider)

// WithLimits sets the input and response ceilings for every guest.
func WithLimits(l protocol.Limits) ProviderOption {
	return func(p *Provider) { p.limits = l }
}

// WithRegionPages sets how many pages are reserved in each guest memory.
func WithRegionPages(pages uint32) ProviderOption {
	return func(p *Provider) {
		if pages > 0 {
			p.regionPages = pages
		}
	}
}

// NewProvider creates a provider backed by tc.
func NewProvider(tc toolchain.Toolchain, opts ...ProviderOption) *Provider {
	p := &Provider{
		tc:          tc,
		guests:      make(map[api.Module]*protocol.Boundary),
		limits:      protocol.DefaultLimits(),
		regionPages: DefaultRegionPages,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Register instantiates the "krakatau" host module in r. It must be called
// before instantiating guests that import it.
func (p *Provider) Register(ctx context.Context, r wazero.Runtime) (api.Module, error) {
	builder := r.NewHostModuleBuilder(ModuleName)

	export := func(fn api.GoModuleFunc, params, results []api.ValueType, names ...string) {
		for _, name := range names {
			builder = builder.NewFunctionBuilder().
				WithGoModuleFunction(fn, params, results).
				WithName(name).
				Export(name)
		}
	}

	export(p.entryPoint(protocol.OpDecompile), two, one, ExportDecompile, AliasDecompile)
	export(p.entryPoint(protocol.OpAssemble), two, one, ExportAssemble)
	export(p.allocateInput, one, one, ExportAllocateInput)
	export(p.freeBuffer, two, none, ExportFreeBuffer)
	export(p.responseLength, none, one, ExportResponseLength, AliasResponseLength)
	export(p.responsePointer, none, one, ExportResponsePointer, AliasResponsePointer)
	export(p.freeResponse, none, none, ExportFreeResponse)

	mod, err := builder.Instantiate(ctx)
	if err != nil {
		return nil, errors.Registration(errors.PhaseHost, ModuleName, "host", err)
	}
	Logger().Debug("host module registered", zap.String("module", ModuleName))
	return mod, nil
}

// Boundary returns the boundary serving guest, creating it on first use.
func (p *Provider) Boundary(guest api.Module) (*protocol.Boundary, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for m := range p.guests {
		if m.IsClosed() {
			delete(p.guests, m)
		}
	}

	if b, ok := p.guests[guest]; ok {
		return b, nil
	}

	mem := guest.Memory()
	if mem == nil {
		return nil, errors.NotFound(errors.PhaseHost, "memory of module", guest.Name())
	}
	region, err := memory.Reserve(mem, p.regionPages)
	if err != nil {
		return nil, err
	}

	b := protocol.NewBoundary(memory.WrapMemory(mem), memory.NewAllocator(region), p.tc, protocol.WithLimits(p.limits))
	p.guests[guest] = b
	Logger().Debug("guest attached",
		zap.String("module", guest.Name()),
		zap.Uint32("region_start", region.Start),
		zap.Uint32("region_size", region.Size))
	return b, nil
}

// Forget drops the state kept for guest. Buffers it held are not released.
func (p *Provider) Forget(guest api.Module) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.guests, guest)
}

func (p *Provider) guestCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.guests)
}

// attached returns the boundary of a guest that has already allocated.
// Unlike lookup it never reserves memory.
func (p *Provider) attached(guest api.Module) *protocol.Boundary {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.guests[guest]
}

func (p *Provider) lookup(guest api.Module) *protocol.Boundary {
	b, err := p.Boundary(guest)
	if err != nil {
		Logger().Warn("guest has no boundary", zap.String("module", guest.Name()), zap.Error(err))
		return nil
	}
	return b
}

func (p *Provider) entryPoint(op protocol.Op) api.GoModuleFunc {
	return func(ctx context.Context, mod api.Module, stack []uint64) {
		b := p.lookup(mod)
		if b == nil {
			stack[0] = api.EncodeI32(protocol.StatusAllocationFailed)
			return
		}
		ptr, length := api.DecodeU32(stack[0]), api.DecodeU32(stack[1])
		stack[0] = api.EncodeI32(b.Invoke(ctx, op, ptr, length))
	}
}

func (p *Provider) allocateInput(_ context.Context, mod api.Module, stack []uint64) {
	b := p.lookup(mod)
	if b == nil {
		stack[0] = api.EncodeU32(bridge.Null)
		return
	}
	stack[0] = api.EncodeU32(b.AllocateInput(api.DecodeU32(stack[0])))
}

func (p *Provider) freeBuffer(_ context.Context, mod api.Module, stack []uint64) {
	if b := p.attached(mod); b != nil {
		b.FreeBuffer(api.DecodeU32(stack[0]), api.DecodeU32(stack[1]))
	}
}

func (p *Provider) responseLength(_ context.Context, mod api.Module, stack []uint64) {
	var n int32
	if b := p.attached(mod); b != nil {
		n = b.ResponseLength()
	}
	stack[0] = api.EncodeI32(n)
}

func (p *Provider) responsePointer(_ context.Context, mod api.Module, stack []uint64) {
	ptr := bridge.Null
	if b := p.attached(mod); b != nil {
		ptr = b.ResponsePointer()
	}
	stack[0] = api.EncodeU32(ptr)
}

func (p *Provider) freeResponse(_ context.Context, mod api.Module, _ []uint64) {
	if b := p.attached(mod); b != nil {
		b.FreeResponse()
	}
}
