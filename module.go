package wit

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/tetratelabs/wit/api"
	"github.com/tetratelabs/wit/errdefs"
	"github.com/tetratelabs/wit/internal/engine"
	"github.com/tetratelabs/wit/internal/interpreter"
	"github.com/tetratelabs/wit/internal/memview"
	"github.com/tetratelabs/wit/it"
	"github.com/tetratelabs/wit/itgen"
)

// moduleFunc is one typed export: its adapter instructions and signature.
type moduleFunc struct {
	instructions []it.Instruction
	arguments    []api.FunctionArg
	outputs      []api.IType
}

// Module is one loaded, instantiated module owned by a Runtime. It holds the
// instance, the immutable interface-types AST and the resolved adapter
// tables.
type Module struct {
	name    string
	runtime *Runtime
	config  *ModuleConfig

	instance engine.Instance
	view     *memview.View
	ifaces   *it.Interfaces
	records  map[uint64]*api.RecordType
	exports  map[string]*moduleFunc
	core     []interpreter.CoreFunction

	allocate    engine.Function
	allocParams int

	// Import shims capture the Module before instantiation completes
	// (the instance needs the shims, the shims need the instance), so this
	// flag guards against calls racing initialization.
	initialized bool
}

// newModule builds and instantiates a module in two phases: the shims are
// created against an uninitialized Module, and the instance fields are
// filled in before the module becomes callable.
func newModule(ctx context.Context, r *Runtime, name string, guest []byte, ifaces *it.Interfaces, config *ModuleConfig) (*Module, error) {
	m := &Module{
		name:    name,
		runtime: r,
		config:  config,
		ifaces:  ifaces,
		records: map[uint64]*api.RecordType{},
		exports: map[string]*moduleFunc{},
	}

	var hostModules []engine.HostModule
	if ifaces != nil {
		for id, t := range ifaces.Types {
			if rt, ok := t.(*it.RecordType); ok {
				m.records[uint64(id)] = rt.AsAPI()
			}
		}
		if err := m.resolveImports(); err != nil {
			return nil, err
		}
		var err error
		if hostModules, err = m.importShims(); err != nil {
			return nil, err
		}
	}

	instance, err := r.engine.NewModule(ctx, name, guest, hostModules,
		engine.ModuleOptions{MemoryLimitPages: config.memoryLimitPages})
	if err != nil {
		return nil, &errdefs.InstantiationError{Err: err}
	}

	m.instance = instance
	mem := instance.Memory()
	if mem == nil {
		mem = noMemory{}
	}
	m.view = memview.New(mem)

	if alloc, ok := instance.ExportedFunction(itgen.ExportAllocate); ok {
		m.allocate = alloc
		m.allocParams = len(alloc.ParamTypes())
	}

	if ifaces != nil {
		if err := m.buildCoreTable(); err != nil {
			_ = instance.Close(ctx)
			return nil, err
		}
		if err := m.buildExports(); err != nil {
			_ = instance.Close(ctx)
			return nil, err
		}
	}

	m.initialized = true
	return m, nil
}

// resolveImports verifies every typed import is satisfiable, either by a
// host import from the config or by a loaded module's typed export.
func (m *Module) resolveImports() error {
	for _, imp := range m.ifaces.Imports {
		if _, ok := m.config.hostImports[importKey(imp.Namespace, imp.Name)]; ok {
			continue
		}
		if other, ok := m.runtime.modules[imp.Namespace]; ok {
			if _, ok := other.exports[imp.Name]; ok {
				continue
			}
		}
		return &errdefs.NoSuchFunctionError{Module: imp.Namespace, Name: imp.Name}
	}
	return nil
}

// importShims builds one raw host function per typed import. The shim's Wasm
// signature is the import's flattened input scalars with no results: the
// adapter communicates results by writing into this module's memory.
func (m *Module) importShims() ([]engine.HostModule, error) {
	byNamespace := map[string][]engine.HostFunc{}
	var namespaces []string

	for _, impl := range m.ifaces.Implementations {
		imp, ok := m.ifaces.ImportByType(impl.CoreFunctionType)
		if !ok {
			continue // export implementation
		}
		adapter, ok := m.ifaces.AdapterByType(impl.AdapterFunctionType)
		if !ok {
			return nil, &errdefs.DecodeError{Reason: fmt.Sprintf(
				"no adapter found for import %s.%s (type %d)", imp.Namespace, imp.Name, impl.AdapterFunctionType)}
		}
		ft, err := m.ifaces.FunctionTypeAt(impl.CoreFunctionType)
		if err != nil {
			return nil, err
		}
		params, err := flattenArgs(ft.Arguments)
		if err != nil {
			return nil, fmt.Errorf("import %s.%s: %w", imp.Namespace, imp.Name, err)
		}

		instructions := adapter.Instructions
		shim := func(ctx context.Context, raw []uint64) ([]uint64, error) {
			if !m.initialized {
				return nil, fmt.Errorf("module %q isn't initialized yet", m.name)
			}
			args := scalarsToValues(params, raw)
			// The return stack is discarded: results were written into this
			// module's memory by the adapter.
			_, err := interpreter.Run(ctx, m, instructions, args)
			return nil, err
		}

		if _, seen := byNamespace[imp.Namespace]; !seen {
			namespaces = append(namespaces, imp.Namespace)
		}
		byNamespace[imp.Namespace] = append(byNamespace[imp.Namespace], engine.HostFunc{
			Name:   imp.Name,
			Params: params,
			Fn:     shim,
		})
	}

	ret := make([]engine.HostModule, 0, len(namespaces))
	for _, ns := range namespaces {
		ret = append(ret, engine.HostModule{Namespace: ns, Functions: byNamespace[ns]})
	}
	return ret, nil
}

// buildCoreTable lays out the core function index space: imports first in
// declaration order, then exports.
func (m *Module) buildCoreTable() error {
	for _, imp := range m.ifaces.Imports {
		ft, err := m.ifaces.FunctionTypeAt(imp.TypeIndex)
		if err != nil {
			return err
		}
		m.core = append(m.core, &importCoreFunction{
			module:    m,
			namespace: imp.Namespace,
			name:      imp.Name,
			arity:     len(ft.Arguments),
		})
	}
	for _, exp := range m.ifaces.Exports {
		ft, err := m.ifaces.FunctionTypeAt(exp.TypeIndex)
		if err != nil {
			return err
		}
		arity := 0
		for _, arg := range ft.Arguments {
			w, err := flattenWidth(arg.Type)
			if err != nil {
				return fmt.Errorf("export %s: %w", exp.Name, err)
			}
			arity += w
		}
		m.core = append(m.core, &rawCoreFunction{module: m, name: exp.Name, arity: arity})
	}
	return nil
}

// buildExports constructs one typed export per implementation whose core
// function type is exported.
func (m *Module) buildExports() error {
	for _, impl := range m.ifaces.Implementations {
		name, ok := m.ifaces.ExportByType(impl.CoreFunctionType)
		if !ok {
			continue // import implementation
		}
		adapter, ok := m.ifaces.AdapterByType(impl.AdapterFunctionType)
		if !ok {
			return &errdefs.DecodeError{Reason: fmt.Sprintf(
				"no adapter found for export %s (type %d)", name, impl.AdapterFunctionType)}
		}
		ft, err := m.ifaces.FunctionTypeAt(impl.AdapterFunctionType)
		if err != nil {
			return err
		}
		m.exports[name] = &moduleFunc{
			instructions: adapter.Instructions,
			arguments:    ft.Arguments,
			outputs:      ft.Outputs,
		}
	}
	return nil
}

// call checks args against a typed export's signature and runs its adapter.
func (m *Module) call(ctx context.Context, name string, args []api.IValue) ([]api.IValue, error) {
	fn, ok := m.exports[name]
	if !ok {
		return nil, &errdefs.NoSuchFunctionError{Module: m.name, Name: name}
	}
	if err := validateArgs(fn.arguments, args, m); err != nil {
		return nil, err
	}
	return interpreter.Run(ctx, m, fn.instructions, args)
}

// ResolveRecord implements api.RecordResolver over the module's record
// table.
func (m *Module) ResolveRecord(id uint64) (*api.RecordType, bool) {
	rt, ok := m.records[id]
	return rt, ok
}

// MemoryView implements interpreter.Instance.
func (m *Module) MemoryView() *memview.View { return m.view }

// Allocate implements interpreter.Instance through the module's allocate
// export, tolerating the legacy single-parameter signature.
func (m *Module) Allocate(ctx context.Context, size, align uint32) (uint32, error) {
	if m.allocate == nil {
		return 0, errdefs.ErrAllocatorMissing
	}
	var results []uint64
	var err error
	if m.allocParams == 1 {
		results, err = m.allocate.Call(ctx, uint64(size))
	} else {
		results, err = m.allocate.Call(ctx, uint64(size), uint64(align))
	}
	if err != nil {
		return 0, &errdefs.AllocatorFailedError{Err: err}
	}
	if len(results) != 1 {
		return 0, &errdefs.AllocatorFailedError{Err: fmt.Errorf("allocate returned %d values", len(results))}
	}
	return uint32(results[0]), nil
}

// CoreFunction implements interpreter.Instance.
func (m *Module) CoreFunction(idx uint32) (interpreter.CoreFunction, bool) {
	if idx >= uint32(len(m.core)) {
		return nil, false
	}
	return m.core[idx], true
}

// rawCoreFunction is an export-backed core function: operands and results
// are raw core scalars.
type rawCoreFunction struct {
	module *Module
	name   string
	arity  int

	fn engine.Function
}

func (f *rawCoreFunction) Arity() int { return f.arity }

func (f *rawCoreFunction) Call(ctx context.Context, args []api.IValue) ([]api.IValue, error) {
	if f.fn == nil {
		fn, ok := f.module.instance.ExportedFunction(f.name)
		if !ok {
			return nil, &errdefs.NoSuchFunctionError{Module: f.module.name, Name: f.name}
		}
		f.fn = fn
	}

	params := f.fn.ParamTypes()
	if len(params) != len(args) {
		return nil, &errdefs.TypeMismatchError{
			Expected: fmt.Sprintf("%d operands for %s", len(params), f.name),
			Got:      fmt.Sprintf("%d", len(args)),
			At:       "call-core",
		}
	}
	raw := make([]uint64, len(args))
	for i, arg := range args {
		scalar, err := valueToScalar(params[i], arg)
		if err != nil {
			return nil, err
		}
		raw[i] = scalar
	}

	results, err := f.fn.Call(ctx, raw...)
	if err != nil {
		return nil, &errdefs.TrapError{Err: err}
	}
	return scalarsToValues(f.fn.ResultTypes(), results), nil
}

// importCoreFunction is an import-backed core function: operands and results
// are typed values, served by a host import or another module's export.
type importCoreFunction struct {
	module    *Module
	namespace string
	name      string
	arity     int
}

func (f *importCoreFunction) Arity() int { return f.arity }

func (f *importCoreFunction) Call(ctx context.Context, args []api.IValue) ([]api.IValue, error) {
	if host, ok := f.module.config.hostImports[importKey(f.namespace, f.name)]; ok {
		return host(ctx, args)
	}
	// Cross-module call: arguments are lowered into the callee's own memory
	// by its export adapter; nothing is shared.
	other, ok := f.module.runtime.modules[f.namespace]
	if !ok {
		return nil, &errdefs.NoSuchModuleError{Name: f.namespace}
	}
	return other.call(ctx, f.name, args)
}

// noMemory stands in for modules that define no linear memory: every access
// is out of bounds.
type noMemory struct{}

func (noMemory) Size() uint32 { return 0 }

func (noMemory) Read(uint32, uint32) ([]byte, bool) { return nil, false }

func (noMemory) Write(uint32, []byte) bool { return false }

// flattenWidth is how many raw scalars a type occupies at the Wasm boundary.
func flattenWidth(t api.IType) (int, error) {
	switch t.Kind() {
	case api.KindString, api.KindByteArray, api.KindArray:
		return 2, nil
	case api.KindAnyRef:
		return 0, fmt.Errorf("type %s can't cross the wasm boundary", t)
	default:
		return 1, nil
	}
}

// flattenArgs derives a raw Wasm parameter list from typed arguments.
func flattenArgs(args []api.FunctionArg) ([]engine.ValueType, error) {
	var ret []engine.ValueType
	for _, arg := range args {
		switch arg.Type.Kind() {
		case api.KindS64, api.KindU64, api.KindI64:
			ret = append(ret, engine.ValueTypeI64)
		case api.KindF32:
			ret = append(ret, engine.ValueTypeF32)
		case api.KindF64:
			ret = append(ret, engine.ValueTypeF64)
		case api.KindString, api.KindByteArray, api.KindArray:
			ret = append(ret, engine.ValueTypeI32, engine.ValueTypeI32)
		case api.KindAnyRef:
			return nil, fmt.Errorf("type %s can't cross the wasm boundary", arg.Type)
		default:
			ret = append(ret, engine.ValueTypeI32)
		}
	}
	return ret, nil
}

// scalarsToValues wraps raw scalars into typed core values per the Wasm
// value types.
func scalarsToValues(types []engine.ValueType, raw []uint64) []api.IValue {
	ret := make([]api.IValue, len(raw))
	for i, r := range raw {
		var t engine.ValueType
		if i < len(types) {
			t = types[i]
		} else {
			t = engine.ValueTypeI32
		}
		switch t {
		case engine.ValueTypeI64:
			ret[i] = api.I64(r)
		case engine.ValueTypeF32:
			ret[i] = api.F32(math.Float32frombits(uint32(r)))
		case engine.ValueTypeF64:
			ret[i] = api.F64(math.Float64frombits(r))
		default:
			ret[i] = api.I32(uint32(r))
		}
	}
	return ret
}

// valueToScalar unwraps a typed core value into the raw scalar a Wasm
// parameter expects.
func valueToScalar(t engine.ValueType, v api.IValue) (uint64, error) {
	switch t {
	case engine.ValueTypeI32:
		n, ok := v.(api.I32)
		if !ok {
			return 0, coreOperandMismatch("i32", v)
		}
		return uint64(uint32(n)), nil
	case engine.ValueTypeI64:
		n, ok := v.(api.I64)
		if !ok {
			return 0, coreOperandMismatch("i64", v)
		}
		return uint64(n), nil
	case engine.ValueTypeF32:
		f, ok := v.(api.F32)
		if !ok {
			return 0, coreOperandMismatch("f32", v)
		}
		return uint64(math.Float32bits(float32(f))), nil
	case engine.ValueTypeF64:
		f, ok := v.(api.F64)
		if !ok {
			return 0, coreOperandMismatch("f64", v)
		}
		return uint64(math.Float64bits(float64(f))), nil
	default:
		return 0, errors.New("unsupported wasm value type")
	}
}

func coreOperandMismatch(expected string, got api.IValue) error {
	return &errdefs.TypeMismatchError{Expected: expected, Got: got.Type().String(), At: "call-core"}
}
