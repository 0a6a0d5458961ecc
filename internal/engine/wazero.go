package engine

import (
	"context"
	"fmt"

	"github.com/tetratelabs/wazero"
	wazeroapi "github.com/tetratelabs/wazero/api"
)

// NewWazeroEngine returns the default Engine, executing guests with wazero.
// Each instance gets its own wazero runtime, which keeps linear memories and
// import namespaces fully isolated between modules.
func NewWazeroEngine() Engine {
	return &wazeroEngine{}
}

type wazeroEngine struct{}

func (e *wazeroEngine) NewModule(ctx context.Context, name string, guest []byte, host []HostModule, opts ModuleOptions) (Instance, error) {
	cfg := wazero.NewRuntimeConfig()
	if opts.MemoryLimitPages > 0 {
		cfg = cfg.WithMemoryLimitPages(opts.MemoryLimitPages)
	}
	r := wazero.NewRuntimeWithConfig(ctx, cfg)

	for _, hm := range host {
		builder := r.NewHostModuleBuilder(hm.Namespace)
		for _, f := range hm.Functions {
			builder = builder.NewFunctionBuilder().
				WithGoFunction(goFunction(f), f.Params, f.Results).
				Export(f.Name)
		}
		if _, err := builder.Instantiate(ctx); err != nil {
			_ = r.Close(ctx)
			return nil, fmt.Errorf("host namespace %q: %w", hm.Namespace, err)
		}
	}

	// Start functions are not run: typed modules initialize lazily through
	// their exports.
	mod, err := r.InstantiateWithConfig(ctx, guest,
		wazero.NewModuleConfig().WithName(name).WithStartFunctions())
	if err != nil {
		_ = r.Close(ctx)
		return nil, err
	}
	return &wazeroInstance{runtime: r, module: mod}, nil
}

func (e *wazeroEngine) Close(context.Context) error { return nil }

// goFunction adapts a GoFunc to wazero's in-place stack convention. A failing
// host function panics with its error; wazeroFunction.Call recovers it back
// into an error return.
func goFunction(f HostFunc) wazeroapi.GoFunction {
	nParams := len(f.Params)
	fn := f.Fn
	return wazeroapi.GoFunc(func(ctx context.Context, stack []uint64) {
		params := make([]uint64, nParams)
		copy(params, stack[:nParams])
		results, err := fn(ctx, params)
		if err != nil {
			panic(err)
		}
		copy(stack, results)
	})
}

type wazeroInstance struct {
	runtime wazero.Runtime
	module  wazeroapi.Module
}

func (i *wazeroInstance) Memory() Memory {
	mem := i.module.Memory()
	if mem == nil {
		return nil
	}
	return &wazeroMemory{mem: mem}
}

func (i *wazeroInstance) ExportedFunction(name string) (Function, bool) {
	fn := i.module.ExportedFunction(name)
	if fn == nil {
		return nil, false
	}
	return &wazeroFunction{fn: fn}, true
}

func (i *wazeroInstance) Close(ctx context.Context) error {
	return i.runtime.Close(ctx)
}

type wazeroFunction struct {
	fn wazeroapi.Function
}

func (f *wazeroFunction) ParamTypes() []ValueType  { return f.fn.Definition().ParamTypes() }
func (f *wazeroFunction) ResultTypes() []ValueType { return f.fn.Definition().ResultTypes() }

func (f *wazeroFunction) Call(ctx context.Context, params ...uint64) (results []uint64, err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			if e, ok := recovered.(error); ok {
				err = e
			} else {
				err = fmt.Errorf("host function panic: %v", recovered)
			}
		}
	}()
	return f.fn.Call(ctx, params...)
}

type wazeroMemory struct {
	mem wazeroapi.Memory
}

func (m *wazeroMemory) Size() uint32 { return m.mem.Size() }

// Read copies, because wazero's Read returns a view into the guest memory
// that the guest may grow or mutate.
func (m *wazeroMemory) Read(offset, byteCount uint32) ([]byte, bool) {
	view, ok := m.mem.Read(offset, byteCount)
	if !ok {
		return nil, false
	}
	ret := make([]byte, len(view))
	copy(ret, view)
	return ret, true
}

func (m *wazeroMemory) Write(offset uint32, data []byte) bool {
	return m.mem.Write(offset, data)
}
