// Package itgen produces the interface-types section for a module from its
// typed function signatures: the type table entries, export/import records,
// adapter instruction sequences and implementation pairs.
package itgen

import (
	"fmt"

	"github.com/tetratelabs/wit/api"
	"github.com/tetratelabs/wit/internal/itbinary"
	"github.com/tetratelabs/wit/internal/wasmparser"
	"github.com/tetratelabs/wit/it"
)

// Well-known exports every typed module provides. The first four export
// ordinals are reserved for them, in this order.
const (
	ExportAllocate       = "allocate"
	ExportReleaseObjects = "release_objects"
	ExportSetResultSize  = "set_result_size"
	ExportSetResultPtr   = "set_result_ptr"
)

// Reserved export ordinals of the well-known exports.
const (
	ordinalAllocate       = 0
	ordinalReleaseObjects = 1
	ordinalSetResultSize  = 2
	ordinalSetResultPtr   = 3
	reservedExports       = 4
)

type pendingFunc struct {
	namespace string // imports only
	name      string
	args      []api.FunctionArg
	outputs   []api.IType
}

// Resolver accumulates record declarations and function signatures, then
// assembles the whole section at once so every CallCore index is final.
type Resolver struct {
	records []*it.RecordType
	imports []pendingFunc
	exports []pendingFunc
}

// NewResolver returns an empty Resolver.
func NewResolver() *Resolver { return &Resolver{} }

// AddRecord declares a record and returns its id. Records occupy the front
// of the type table in declaration order, so fields may only reference
// records already added.
func (r *Resolver) AddRecord(name string, fields []api.RecordField) (uint64, error) {
	if len(fields) == 0 {
		return 0, fmt.Errorf("record %q must have at least one field", name)
	}
	id := uint64(len(r.records))
	r.records = append(r.records, &it.RecordType{Name: name, Fields: fields})
	return id, nil
}

// AddImport declares a typed import and queues generation of its adapter.
func (r *Resolver) AddImport(namespace, name string, args []api.FunctionArg, outputs []api.IType) error {
	if len(outputs) > 1 {
		return fmt.Errorf("import %s.%s: at most one output is supported", namespace, name)
	}
	r.imports = append(r.imports, pendingFunc{namespace: namespace, name: name, args: args, outputs: outputs})
	return nil
}

// AddFunc declares a typed export and queues generation of its adapter.
func (r *Resolver) AddFunc(name string, args []api.FunctionArg, outputs []api.IType) error {
	if len(outputs) > 1 {
		return fmt.Errorf("export %s: at most one output is supported", name)
	}
	r.exports = append(r.exports, pendingFunc{name: name, args: args, outputs: outputs})
	return nil
}

// Interfaces assembles the section. The type table is records, then the
// well-known export types, then two identical Function entries per import
// and per export.
//
// TODO: replace the second entry of each pair with raw Wasm types.
func (r *Resolver) Interfaces() (*it.Interfaces, error) {
	ret := &it.Interfaces{}
	for _, rec := range r.records {
		ret.Types = append(ret.Types, rec)
	}

	nImports := uint32(len(r.imports))
	addType := func(t it.Type) uint32 {
		ret.Types = append(ret.Types, t)
		return uint32(len(ret.Types) - 1)
	}

	// well-known exports, at the reserved ordinals
	i32 := api.TypeI32
	wellKnown := []struct {
		name string
		ft   *it.FunctionType
	}{
		{ExportAllocate, &it.FunctionType{
			Arguments: []api.FunctionArg{{Name: "size", Type: i32}, {Name: "alignment", Type: i32}},
			Outputs:   []api.IType{i32},
		}},
		{ExportReleaseObjects, &it.FunctionType{}},
		{ExportSetResultSize, &it.FunctionType{Arguments: []api.FunctionArg{{Name: "size", Type: i32}}}},
		{ExportSetResultPtr, &it.FunctionType{Arguments: []api.FunctionArg{{Name: "ptr", Type: i32}}}},
	}
	for _, wk := range wellKnown {
		ret.Exports = append(ret.Exports, &it.Export{Name: wk.name, TypeIndex: addType(wk.ft)})
	}

	for i, imp := range r.imports {
		ft := &it.FunctionType{Arguments: imp.args, Outputs: imp.outputs}
		adapterIdx := addType(ft)
		coreIdx := addType(&it.FunctionType{Arguments: imp.args, Outputs: imp.outputs})

		instructions, err := r.importAdapter(uint32(i), nImports, imp)
		if err != nil {
			return nil, fmt.Errorf("import %s.%s: %w", imp.namespace, imp.name, err)
		}

		ret.Imports = append(ret.Imports, &it.Import{Namespace: imp.namespace, Name: imp.name, TypeIndex: coreIdx})
		ret.Adapters = append(ret.Adapters, &it.Adapter{TypeIndex: adapterIdx, Instructions: instructions})
		ret.Implementations = append(ret.Implementations, &it.Implementation{
			CoreFunctionType:    coreIdx,
			AdapterFunctionType: adapterIdx,
		})
	}

	for i, exp := range r.exports {
		ft := &it.FunctionType{Arguments: exp.args, Outputs: exp.outputs}
		adapterIdx := addType(ft)
		coreIdx := addType(&it.FunctionType{Arguments: exp.args, Outputs: exp.outputs})

		ordinal := uint32(reservedExports + i)
		instructions, err := exportAdapter(nImports, ordinal, exp)
		if err != nil {
			return nil, fmt.Errorf("export %s: %w", exp.name, err)
		}

		ret.Exports = append(ret.Exports, &it.Export{Name: exp.name, TypeIndex: coreIdx})
		ret.Adapters = append(ret.Adapters, &it.Adapter{TypeIndex: adapterIdx, Instructions: instructions})
		ret.Implementations = append(ret.Implementations, &it.Implementation{
			CoreFunctionType:    coreIdx,
			AdapterFunctionType: adapterIdx,
		})
	}

	if err := ret.Validate(); err != nil {
		return nil, err
	}
	return ret, nil
}

// Embed generates the section and embeds it into the module binary.
func (r *Resolver) Embed(module []byte) ([]byte, error) {
	ifaces, err := r.Interfaces()
	if err != nil {
		return nil, err
	}
	return wasmparser.EmbedCustomSection(module, itbinary.SectionName, itbinary.EncodeInterfaces(ifaces))
}

// exportAdapter builds: per-argument lowering, one CallCore of the export,
// per-output lifting, and a trailing release_objects call when the output
// needs guest memory.
func exportAdapter(nImports, ordinal uint32, fn pendingFunc) ([]it.Instruction, error) {
	var instrs []it.Instruction
	for i, arg := range fn.args {
		argInstrs, err := lowerArgInstructions(arg.Type, uint32(i))
		if err != nil {
			return nil, fmt.Errorf("argument %q: %w", arg.Name, err)
		}
		instrs = append(instrs, argInstrs...)
	}

	instrs = append(instrs, it.CallCore(nImports+ordinal))

	release := false
	for _, out := range fn.outputs {
		outInstrs, err := liftOutputInstructions(out)
		if err != nil {
			return nil, err
		}
		instrs = append(instrs, outInstrs...)
		release = release || out.IsComplex()
	}
	if release {
		instrs = append(instrs, it.CallCore(nImports+ordinalReleaseObjects))
	}
	return instrs, nil
}

// importAdapter builds the inverse: the shim hands over flattened core
// scalars, the adapter lifts them, calls the import target, and communicates
// the result through the caller's memory and set_result_* exports instead of
// Wasm return values.
func (r *Resolver) importAdapter(importIdx, nImports uint32, fn pendingFunc) ([]it.Instruction, error) {
	var instrs []it.Instruction
	slot := uint32(0)
	for _, arg := range fn.args {
		argInstrs, slots, err := liftArgInstructions(arg.Type, slot)
		if err != nil {
			return nil, fmt.Errorf("argument %q: %w", arg.Name, err)
		}
		instrs = append(instrs, argInstrs...)
		slot += slots
	}

	instrs = append(instrs, it.CallCore(importIdx))

	for _, out := range fn.outputs {
		outInstrs, err := lowerImportOutputInstructions(out, nImports)
		if err != nil {
			return nil, err
		}
		instrs = append(instrs, outInstrs...)
	}
	return instrs, nil
}

// lowerArgInstructions converts typed argument i into the core scalars the
// raw callee expects.
func lowerArgInstructions(t api.IType, i uint32) ([]it.Instruction, error) {
	get := it.ArgumentGet(i)
	switch t.Kind() {
	case api.KindBool:
		return []it.Instruction{get, {Op: it.OpI32FromBool}}, nil
	case api.KindS8:
		return []it.Instruction{get, {Op: it.OpI32FromS8}}, nil
	case api.KindS16:
		return []it.Instruction{get, {Op: it.OpI32FromS16}}, nil
	case api.KindS32:
		return []it.Instruction{get, {Op: it.OpI32FromS32}}, nil
	case api.KindS64:
		return []it.Instruction{get, {Op: it.OpI64FromS64}}, nil
	case api.KindU8:
		return []it.Instruction{get, {Op: it.OpI32FromU8}}, nil
	case api.KindU16:
		return []it.Instruction{get, {Op: it.OpI32FromU16}}, nil
	case api.KindU32:
		return []it.Instruction{get, {Op: it.OpI32FromU32}}, nil
	case api.KindU64:
		return []it.Instruction{get, {Op: it.OpI64FromU64}}, nil
	case api.KindF32, api.KindF64, api.KindI32, api.KindI64:
		return []it.Instruction{get}, nil
	case api.KindString:
		return []it.Instruction{get, {Op: it.OpStringLowerMemory}}, nil
	case api.KindByteArray:
		return []it.Instruction{get, {Op: it.OpByteArrayLowerMemory}}, nil
	case api.KindArray:
		return []it.Instruction{get, it.ArrayLowerMemory(t.Elem())}, nil
	case api.KindRecord:
		return []it.Instruction{get, it.RecordLowerMemory(t.RecordID())}, nil
	default:
		return nil, fmt.Errorf("type %s can't cross the wasm boundary", t)
	}
}

// liftOutputInstructions converts the core scalars pushed by CallCore back
// into a typed value.
func liftOutputInstructions(t api.IType) ([]it.Instruction, error) {
	switch t.Kind() {
	case api.KindBool:
		return []it.Instruction{{Op: it.OpBoolFromI32}}, nil
	case api.KindS8:
		return []it.Instruction{{Op: it.OpS8FromI32}}, nil
	case api.KindS16:
		return []it.Instruction{{Op: it.OpS16FromI32}}, nil
	case api.KindS32:
		return []it.Instruction{{Op: it.OpS32FromI32}}, nil
	case api.KindS64:
		return []it.Instruction{{Op: it.OpS64FromI64}}, nil
	case api.KindU8:
		return []it.Instruction{{Op: it.OpU8FromI32}}, nil
	case api.KindU16:
		return []it.Instruction{{Op: it.OpU16FromI32}}, nil
	case api.KindU32:
		return []it.Instruction{{Op: it.OpU32FromI32}}, nil
	case api.KindU64:
		return []it.Instruction{{Op: it.OpU64FromI64}}, nil
	case api.KindF32, api.KindF64, api.KindI32, api.KindI64:
		return nil, nil
	case api.KindString:
		return []it.Instruction{{Op: it.OpStringLiftMemory}}, nil
	case api.KindByteArray:
		return []it.Instruction{{Op: it.OpByteArrayLiftMemory}}, nil
	case api.KindArray:
		return []it.Instruction{it.ArrayLiftMemory(t.Elem())}, nil
	case api.KindRecord:
		return []it.Instruction{it.RecordLiftMemory(t.RecordID())}, nil
	default:
		return nil, fmt.Errorf("type %s can't cross the wasm boundary", t)
	}
}

// liftArgInstructions lifts one import argument from its flattened scalar
// slots, returning how many slots it consumed.
func liftArgInstructions(t api.IType, slot uint32) ([]it.Instruction, uint32, error) {
	get := it.ArgumentGet(slot)
	switch t.Kind() {
	case api.KindBool:
		return []it.Instruction{get, {Op: it.OpBoolFromI32}}, 1, nil
	case api.KindS8:
		return []it.Instruction{get, {Op: it.OpS8FromI32}}, 1, nil
	case api.KindS16:
		return []it.Instruction{get, {Op: it.OpS16FromI32}}, 1, nil
	case api.KindS32:
		return []it.Instruction{get, {Op: it.OpS32FromI32}}, 1, nil
	case api.KindS64:
		return []it.Instruction{get, {Op: it.OpS64FromI64}}, 1, nil
	case api.KindU8:
		return []it.Instruction{get, {Op: it.OpU8FromI32}}, 1, nil
	case api.KindU16:
		return []it.Instruction{get, {Op: it.OpU16FromI32}}, 1, nil
	case api.KindU32:
		return []it.Instruction{get, {Op: it.OpU32FromI32}}, 1, nil
	case api.KindU64:
		return []it.Instruction{get, {Op: it.OpU64FromI64}}, 1, nil
	case api.KindF32, api.KindF64, api.KindI32, api.KindI64:
		return []it.Instruction{get}, 1, nil
	case api.KindString:
		return []it.Instruction{get, it.ArgumentGet(slot + 1), {Op: it.OpStringLiftMemory}}, 2, nil
	case api.KindByteArray:
		return []it.Instruction{get, it.ArgumentGet(slot + 1), {Op: it.OpByteArrayLiftMemory}}, 2, nil
	case api.KindArray:
		return []it.Instruction{get, it.ArgumentGet(slot + 1), it.ArrayLiftMemory(t.Elem())}, 2, nil
	case api.KindRecord:
		return []it.Instruction{get, it.RecordLiftMemory(t.RecordID())}, 1, nil
	default:
		return nil, 0, fmt.Errorf("type %s can't cross the wasm boundary", t)
	}
}

// lowerImportOutputInstructions writes an import result into the caller's
// memory, then records where through the caller's set_result_* exports. The
// shim's Wasm result list stays empty for every signature.
func lowerImportOutputInstructions(t api.IType, nImports uint32) ([]it.Instruction, error) {
	setSize := it.CallCore(nImports + ordinalSetResultSize)
	setPtr := it.CallCore(nImports + ordinalSetResultPtr)
	switch t.Kind() {
	case api.KindString:
		return []it.Instruction{{Op: it.OpStringLowerMemory}, setSize, setPtr}, nil
	case api.KindByteArray:
		return []it.Instruction{{Op: it.OpByteArrayLowerMemory}, setSize, setPtr}, nil
	case api.KindArray:
		return []it.Instruction{it.ArrayLowerMemory(t.Elem()), setSize, setPtr}, nil
	case api.KindRecord:
		return []it.Instruction{it.RecordLowerMemory(t.RecordID()), setPtr}, nil
	case api.KindBool:
		return []it.Instruction{{Op: it.OpI32FromBool}, setPtr}, nil
	case api.KindS8:
		return []it.Instruction{{Op: it.OpI32FromS8}, setPtr}, nil
	case api.KindS16:
		return []it.Instruction{{Op: it.OpI32FromS16}, setPtr}, nil
	case api.KindS32:
		return []it.Instruction{{Op: it.OpI32FromS32}, setPtr}, nil
	case api.KindU8:
		return []it.Instruction{{Op: it.OpI32FromU8}, setPtr}, nil
	case api.KindU16:
		return []it.Instruction{{Op: it.OpI32FromU16}, setPtr}, nil
	case api.KindU32:
		return []it.Instruction{{Op: it.OpI32FromU32}, setPtr}, nil
	case api.KindI32:
		return []it.Instruction{setPtr}, nil
	default:
		return nil, fmt.Errorf("import output type %s isn't supported", t)
	}
}
