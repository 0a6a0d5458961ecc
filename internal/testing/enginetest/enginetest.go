// Package enginetest provides a programmable engine.Engine used by unit
// tests: guest functions are Go closures over a plain byte-slice memory with
// a bump allocator, so adapter behavior is testable without real Wasm code.
package enginetest

import (
	"context"
	"fmt"

	"github.com/tetratelabs/wit/internal/engine"
)

// DefaultMemorySize is each fake instance's fixed linear memory size.
const DefaultMemorySize = 1 << 20

// heapBase keeps offset zero unused so a zero pointer is visibly wrong.
const heapBase = 16

// BuildFunc registers the guest functions of one fake module.
type BuildFunc func(m *Instance)

// Engine is a fake engine.Engine keyed by module name.
type Engine struct {
	Builders map[string]BuildFunc
}

// NewEngine returns an empty fake engine.
func NewEngine() *Engine {
	return &Engine{Builders: map[string]BuildFunc{}}
}

// Register installs the builder invoked when a module with the given name is
// instantiated.
func (e *Engine) Register(name string, build BuildFunc) {
	e.Builders[name] = build
}

// NewModule implements engine.Engine. The guest bytes are ignored: tests
// drive behavior through the registered builder.
func (e *Engine) NewModule(_ context.Context, name string, _ []byte, host []engine.HostModule, _ engine.ModuleOptions) (engine.Instance, error) {
	build, ok := e.Builders[name]
	if !ok {
		return nil, fmt.Errorf("enginetest: no builder registered for module %q", name)
	}
	inst := NewInstance(host)
	build(inst)
	return inst, nil
}

// Close implements engine.Engine.
func (e *Engine) Close(context.Context) error { return nil }

// Instance is a fake module instance. Guest closures receive it, so they can
// touch memory, allocate and call back into host imports the way real Wasm
// code would.
type Instance struct {
	mem   *Memory
	funcs map[string]*Func
	host  map[string]engine.HostFunc
	heap  uint32

	// Released counts release_objects invocations.
	Released int

	// ResultPtr and ResultSize mirror the guest-side result globals set by
	// the set_result_* exports.
	ResultPtr  uint32
	ResultSize uint32

	closed bool
}

// NewInstance returns an instance with the well-known exports installed:
// allocate, release_objects, set_result_ptr and set_result_size.
func NewInstance(host []engine.HostModule) *Instance {
	inst := &Instance{
		mem:   &Memory{data: make([]byte, DefaultMemorySize)},
		funcs: map[string]*Func{},
		host:  map[string]engine.HostFunc{},
		heap:  heapBase,
	}
	for _, hm := range host {
		for _, f := range hm.Functions {
			inst.host[hm.Namespace+"."+f.Name] = f
		}
	}

	i32 := engine.ValueTypeI32
	inst.AddFunc("allocate", []engine.ValueType{i32, i32}, []engine.ValueType{i32},
		func(_ context.Context, m *Instance, params []uint64) ([]uint64, error) {
			return []uint64{uint64(m.Alloc(uint32(params[0]), uint32(params[1])))}, nil
		})
	inst.AddFunc("release_objects", nil, nil,
		func(_ context.Context, m *Instance, _ []uint64) ([]uint64, error) {
			m.Released++
			return nil, nil
		})
	inst.AddFunc("set_result_ptr", []engine.ValueType{i32}, nil,
		func(_ context.Context, m *Instance, params []uint64) ([]uint64, error) {
			m.ResultPtr = uint32(params[0])
			return nil, nil
		})
	inst.AddFunc("set_result_size", []engine.ValueType{i32}, nil,
		func(_ context.Context, m *Instance, params []uint64) ([]uint64, error) {
			m.ResultSize = uint32(params[0])
			return nil, nil
		})
	return inst
}

// AddFunc registers a guest function.
func (m *Instance) AddFunc(name string, params, results []engine.ValueType,
	fn func(ctx context.Context, m *Instance, params []uint64) ([]uint64, error)) {
	m.funcs[name] = &Func{inst: m, params: params, results: results, fn: fn}
}

// RemoveFunc drops a guest function, e.g. to model a module without an
// allocator.
func (m *Instance) RemoveFunc(name string) {
	delete(m.funcs, name)
}

// Alloc bump-allocates size bytes at the requested alignment.
func (m *Instance) Alloc(size, align uint32) uint32 {
	if align == 0 {
		align = 1
	}
	offset := (m.heap + align - 1) / align * align
	m.heap = offset + size
	return offset
}

// CallImport invokes a registered host function the way guest code would.
func (m *Instance) CallImport(ctx context.Context, ns, name string, params ...uint64) ([]uint64, error) {
	f, ok := m.host[ns+"."+name]
	if !ok {
		return nil, fmt.Errorf("enginetest: no host function %s.%s", ns, name)
	}
	return f.Fn(ctx, params)
}

// Bytes exposes the raw memory for direct fixture setup.
func (m *Instance) Bytes() []byte { return m.mem.data }

// Memory implements engine.Instance.
func (m *Instance) Memory() engine.Memory { return m.mem }

// ExportedFunction implements engine.Instance.
func (m *Instance) ExportedFunction(name string) (engine.Function, bool) {
	f, ok := m.funcs[name]
	return f, ok
}

// Close implements engine.Instance.
func (m *Instance) Close(context.Context) error {
	m.closed = true
	return nil
}

// Closed reports whether Close was called.
func (m *Instance) Closed() bool { return m.closed }

// Func is a fake engine.Function.
type Func struct {
	inst    *Instance
	params  []engine.ValueType
	results []engine.ValueType
	fn      func(ctx context.Context, m *Instance, params []uint64) ([]uint64, error)
}

func (f *Func) ParamTypes() []engine.ValueType  { return f.params }
func (f *Func) ResultTypes() []engine.ValueType { return f.results }

func (f *Func) Call(ctx context.Context, params ...uint64) ([]uint64, error) {
	return f.fn(ctx, f.inst, params)
}

// Memory is a fixed-size engine.Memory over a byte slice.
type Memory struct {
	data []byte
}

func (m *Memory) Size() uint32 { return uint32(len(m.data)) }

func (m *Memory) Read(offset, byteCount uint32) ([]byte, bool) {
	if uint64(offset)+uint64(byteCount) > uint64(len(m.data)) {
		return nil, false
	}
	ret := make([]byte, byteCount)
	copy(ret, m.data[offset:offset+byteCount])
	return ret, true
}

func (m *Memory) Write(offset uint32, data []byte) bool {
	if uint64(offset)+uint64(len(data)) > uint64(len(m.data)) {
		return false
	}
	copy(m.data[offset:], data)
	return true
}
