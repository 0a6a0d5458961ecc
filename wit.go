// Package wit links WebAssembly modules through an interface-types layer:
// modules declare typed signatures in a custom section, and the runtime
// bridges typed host calls (strings, arrays, records) onto the raw scalar
// ABI, including typed calls between loaded modules.
package wit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/tetratelabs/wit/api"
	"github.com/tetratelabs/wit/errdefs"
	"github.com/tetratelabs/wit/internal/engine"
	"github.com/tetratelabs/wit/internal/itbinary"
	"github.com/tetratelabs/wit/internal/version"
	"github.com/tetratelabs/wit/internal/wasmparser"
	"github.com/tetratelabs/wit/it"
)

// anonymousModule is the reserved name CallCode loads under.
const anonymousModule = "__anonymous"

// Runtime instantiates modules and dispatches typed calls. It isn't safe for
// concurrent use: one service owns one Runtime and calls it from one
// goroutine at a time.
type Runtime struct {
	engine  engine.Engine
	logger  logrus.FieldLogger
	modules map[string]*Module
}

// NewRuntime returns a Runtime with the default configuration.
func NewRuntime() *Runtime {
	return NewRuntimeWithConfig(NewRuntimeConfig())
}

// NewRuntimeWithConfig returns a Runtime using config.
func NewRuntimeWithConfig(config *RuntimeConfig) *Runtime {
	return &Runtime{
		engine:  config.engine,
		logger:  config.logger,
		modules: map[string]*Module{},
	}
}

// LoadModule decodes, verifies and instantiates a module under name. The
// SDK-version section is checked before anything is instantiated; a module
// without an interface-types section loads as a pure scalar module with no
// typed exports.
func (r *Runtime) LoadModule(ctx context.Context, name string, guest []byte, config *ModuleConfig) error {
	if _, ok := r.modules[name]; ok {
		return fmt.Errorf("module %q has already been loaded", name)
	}
	if config == nil {
		config = NewModuleConfig()
	}

	if err := version.Check(guest); err != nil {
		return err
	}

	ifaces, err := extractInterfaces(guest)
	if err != nil {
		return err
	}

	m, err := newModule(ctx, r, name, guest, ifaces, config)
	if err != nil {
		return err
	}
	r.modules[name] = m

	r.logger.WithFields(logrus.Fields{"module": name, "exports": len(m.exports)}).
		Debug("module loaded")
	return nil
}

// UnloadModule drops a module. Remaining modules keep functioning; calls
// that still import the dropped module fail at call time.
func (r *Runtime) UnloadModule(ctx context.Context, name string) error {
	m, ok := r.modules[name]
	if !ok {
		return &errdefs.NoSuchModuleError{Name: name}
	}
	delete(r.modules, name)
	err := m.instance.Close(ctx)
	r.logger.WithField("module", name).Debug("module unloaded")
	return err
}

// Call runs the typed export of a loaded module. Errors carry a
// module/function breadcrumb.
func (r *Runtime) Call(ctx context.Context, module, function string, args []api.IValue) ([]api.IValue, error) {
	m, ok := r.modules[module]
	if !ok {
		return nil, &errdefs.NoSuchModuleError{Name: module}
	}
	results, err := m.call(ctx, function, args)
	if err != nil {
		r.logger.WithFields(logrus.Fields{"module": module, "function": function}).
			WithError(err).Debug("call failed")
		return nil, fmt.Errorf("%s/%s: %w", module, function, err)
	}
	return results, nil
}

// CallJSON decodes a JSON argument payload against the export's signature,
// calls it, and encodes the results back to JSON.
func (r *Runtime) CallJSON(ctx context.Context, module, function string, payload []byte) (json.RawMessage, error) {
	m, ok := r.modules[module]
	if !ok {
		return nil, &errdefs.NoSuchModuleError{Name: module}
	}
	fn, ok := m.exports[function]
	if !ok {
		return nil, &errdefs.NoSuchFunctionError{Module: module, Name: function}
	}

	args, err := api.ArgsFromJSON(payload, fn.arguments, m)
	if err != nil {
		return nil, err
	}
	results, err := r.Call(ctx, module, function, args)
	if err != nil {
		return nil, err
	}
	return api.ResultsToJSON(results, m)
}

// CallCode loads transient Wasm code under an internal anonymous name, calls
// one export, and unloads it again even when the call fails.
func (r *Runtime) CallCode(ctx context.Context, guest []byte, function string, args []api.IValue, config *ModuleConfig) ([]api.IValue, error) {
	if err := r.LoadModule(ctx, anonymousModule, guest, config); err != nil {
		return nil, err
	}
	defer func() {
		_ = r.UnloadModule(ctx, anonymousModule)
	}()
	return r.Call(ctx, anonymousModule, function, args)
}

// ModuleInterface describes one loaded module: its typed exports and the
// record table they reference.
type ModuleInterface struct {
	FunctionSignatures []api.FunctionSignature
	RecordTypes        map[uint64]*api.RecordType
}

// Interface returns the typed signatures of every loaded module, keyed by
// module name. Recursive records stay flattened by reference: a record field
// of record type names its id.
func (r *Runtime) Interface() map[string]*ModuleInterface {
	ret := make(map[string]*ModuleInterface, len(r.modules))
	for name, m := range r.modules {
		mi := &ModuleInterface{RecordTypes: m.records}
		for fnName, fn := range m.exports {
			mi.FunctionSignatures = append(mi.FunctionSignatures, api.FunctionSignature{
				Name:      fnName,
				Arguments: fn.arguments,
				Outputs:   fn.outputs,
			})
		}
		sort.Slice(mi.FunctionSignatures, func(i, j int) bool {
			return mi.FunctionSignatures[i].Name < mi.FunctionSignatures[j].Name
		})
		ret[name] = mi
	}
	return ret
}

// Close unloads every module and shuts the executor down.
func (r *Runtime) Close(ctx context.Context) error {
	var firstErr error
	for name, m := range r.modules {
		if err := m.instance.Close(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(r.modules, name)
	}
	if err := r.engine.Close(ctx); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// extractInterfaces reads and validates the interface-types section, or
// returns nil when the module doesn't carry one.
func extractInterfaces(guest []byte) (*it.Interfaces, error) {
	sections, err := wasmparser.ExtractCustomSections(guest, itbinary.SectionName)
	if err != nil {
		return nil, &errdefs.DecodeError{Reason: "malformed wasm binary", Err: err}
	}
	payload, err := wasmparser.ExactlyOne(sections, itbinary.SectionName)
	if err != nil {
		var noSection *errdefs.NoCustomSectionError
		if errors.As(err, &noSection) {
			return nil, nil // pure scalar module
		}
		return nil, err
	}
	ifaces, err := itbinary.DecodeInterfaces(payload)
	if err != nil {
		return nil, err
	}
	if err := ifaces.Validate(); err != nil {
		return nil, err
	}
	return ifaces, nil
}

// validateArgs checks a typed argument vector against the declared
// signature before the adapter runs.
func validateArgs(declared []api.FunctionArg, args []api.IValue, records api.RecordResolver) error {
	if len(args) != len(declared) {
		return &errdefs.InvalidArgumentError{
			Reason: fmt.Sprintf("expected %d arguments, got %d", len(declared), len(args)),
		}
	}
	for i, arg := range declared {
		if err := validateValue(arg.Type, args[i], records, arg.Name); err != nil {
			return err
		}
	}
	return nil
}

// validateValue checks one value structurally conforms to a type, walking
// arrays and records with a path breadcrumb.
func validateValue(t api.IType, v api.IValue, records api.RecordResolver, path string) error {
	mismatch := func() error {
		return &errdefs.InvalidArgumentError{
			Path:   path,
			Reason: fmt.Sprintf("expected %s, got %s", t, v.Type()),
		}
	}
	switch t.Kind() {
	case api.KindArray:
		a, ok := v.(api.Array)
		if !ok || !a.Elem.Equal(t.Elem()) {
			return mismatch()
		}
		for i, elem := range a.Values {
			if err := validateValue(t.Elem(), elem, records, fmt.Sprintf("%s[%d]", path, i)); err != nil {
				return err
			}
		}
		return nil
	case api.KindRecord:
		rec, ok := v.(api.Record)
		if !ok || rec.ID != t.RecordID() {
			return mismatch()
		}
		rt, ok := records.ResolveRecord(rec.ID)
		if !ok {
			return &errdefs.InvalidArgumentError{
				Path:   path,
				Reason: fmt.Sprintf("record %d isn't declared by the module", rec.ID),
			}
		}
		if len(rec.Fields) != len(rt.Fields) {
			return &errdefs.InvalidArgumentError{
				Path:   path,
				Reason: fmt.Sprintf("record %d expects %d fields, got %d", rec.ID, len(rt.Fields), len(rec.Fields)),
			}
		}
		for i, f := range rt.Fields {
			if err := validateValue(f.Type, rec.Fields[i], records, path+"."+f.Name); err != nil {
				return err
			}
		}
		return nil
	default:
		if !v.Type().Equal(t) {
			return mismatch()
		}
		return nil
	}
}
