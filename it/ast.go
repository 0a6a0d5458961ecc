// Package it defines the logical content of the interface-types custom
// section: the type table, imports, exports, adapters and implementations,
// plus the adapter instruction set. The binary layout lives in
// internal/itbinary.
package it

import (
	"fmt"

	"github.com/tetratelabs/wit/api"
	"github.com/tetratelabs/wit/errdefs"
)

// Type is one entry of the type table: either *FunctionType or *RecordType.
type Type interface {
	isType()
}

// FunctionType declares a typed function shape. Argument names are carried
// so the host can address JSON arguments by name.
type FunctionType struct {
	Arguments []api.FunctionArg
	Outputs   []api.IType
}

func (*FunctionType) isType() {}

// RecordType declares a record shape, referenced by other type-table entries
// through its index.
type RecordType struct {
	Name   string
	Fields []api.RecordField
}

func (*RecordType) isType() {}

// AsAPI converts the declaration into the typed-model representation.
func (r *RecordType) AsAPI() *api.RecordType {
	return &api.RecordType{Name: r.Name, Fields: r.Fields}
}

// Import declares a typed import under (Namespace, Name) with the function
// type at TypeIndex.
type Import struct {
	Namespace string
	Name      string
	TypeIndex uint32
}

// Export declares a typed export with the function type at TypeIndex.
type Export struct {
	Name      string
	TypeIndex uint32
}

// Adapter pairs a function type with the instruction sequence bridging it to
// the scalar ABI.
type Adapter struct {
	TypeIndex    uint32
	Instructions []Instruction
}

// Implementation links a core function type with its adapter function type.
// Today both entries carry identical input and output sequences; the
// duplication is preserved for forward compatibility.
type Implementation struct {
	CoreFunctionType    uint32
	AdapterFunctionType uint32
}

// Interfaces is the whole interface-types section.
type Interfaces struct {
	Types           []Type
	Imports         []*Import
	Adapters        []*Adapter
	Exports         []*Export
	Implementations []*Implementation
}

// FunctionTypeAt returns the function type at idx, or an error if idx is out
// of range or refers to a record.
func (i *Interfaces) FunctionTypeAt(idx uint32) (*FunctionType, error) {
	if idx >= uint32(len(i.Types)) {
		return nil, &errdefs.DecodeError{Reason: fmt.Sprintf("type index %d is out of range (%d types)", idx, len(i.Types))}
	}
	ft, ok := i.Types[idx].(*FunctionType)
	if !ok {
		return nil, &errdefs.DecodeError{Reason: fmt.Sprintf("type index %d isn't a function type", idx)}
	}
	return ft, nil
}

// RecordTypeAt returns the record declared at idx of the type table.
func (i *Interfaces) RecordTypeAt(id uint64) (*RecordType, bool) {
	if id >= uint64(len(i.Types)) {
		return nil, false
	}
	rt, ok := i.Types[id].(*RecordType)
	return rt, ok
}

// AdapterByType returns the adapter registered for the given function type
// index.
func (i *Interfaces) AdapterByType(typeIndex uint32) (*Adapter, bool) {
	for _, a := range i.Adapters {
		if a.TypeIndex == typeIndex {
			return a, true
		}
	}
	return nil, false
}

// ExportByType returns the export name registered at the given function type
// index.
func (i *Interfaces) ExportByType(typeIndex uint32) (string, bool) {
	for _, e := range i.Exports {
		if e.TypeIndex == typeIndex {
			return e.Name, true
		}
	}
	return "", false
}

// ImportByType returns the import registered at the given function type
// index.
func (i *Interfaces) ImportByType(typeIndex uint32) (*Import, bool) {
	for _, imp := range i.Imports {
		if imp.TypeIndex == typeIndex {
			return imp, true
		}
	}
	return nil, false
}

// Validate checks the section invariants: every referenced type index is in
// range and refers to a function, record fields reference only
// earlier-declared records, and each implementation pairs structurally
// identical function types.
func (i *Interfaces) Validate() error {
	for idx, t := range i.Types {
		rt, ok := t.(*RecordType)
		if !ok {
			continue
		}
		for _, f := range rt.Fields {
			if err := validateFieldType(f.Type, uint64(idx)); err != nil {
				return &errdefs.DecodeError{Reason: fmt.Sprintf("record %d, field %q: %v", idx, f.Name, err)}
			}
		}
	}
	for _, imp := range i.Imports {
		if _, err := i.FunctionTypeAt(imp.TypeIndex); err != nil {
			return fmt.Errorf("import %s.%s: %w", imp.Namespace, imp.Name, err)
		}
	}
	for _, e := range i.Exports {
		if _, err := i.FunctionTypeAt(e.TypeIndex); err != nil {
			return fmt.Errorf("export %s: %w", e.Name, err)
		}
	}
	for _, a := range i.Adapters {
		if _, err := i.FunctionTypeAt(a.TypeIndex); err != nil {
			return fmt.Errorf("adapter: %w", err)
		}
	}
	for _, impl := range i.Implementations {
		core, err := i.FunctionTypeAt(impl.CoreFunctionType)
		if err != nil {
			return fmt.Errorf("implementation: %w", err)
		}
		adapter, err := i.FunctionTypeAt(impl.AdapterFunctionType)
		if err != nil {
			return fmt.Errorf("implementation: %w", err)
		}
		if !functionTypesEqual(core, adapter) {
			return &errdefs.DecodeError{Reason: fmt.Sprintf(
				"implementation pairs differing function types %d and %d",
				impl.CoreFunctionType, impl.AdapterFunctionType)}
		}
	}
	return nil
}

// validateFieldType rejects record references at or after the declaring
// record, which also rules out cycles.
func validateFieldType(t api.IType, declaredAt uint64) error {
	switch t.Kind() {
	case api.KindArray:
		return validateFieldType(t.Elem(), declaredAt)
	case api.KindRecord:
		if t.RecordID() >= declaredAt {
			return fmt.Errorf("references record %d, declared at or after index %d", t.RecordID(), declaredAt)
		}
	}
	return nil
}

func functionTypesEqual(a, b *FunctionType) bool {
	if len(a.Arguments) != len(b.Arguments) || len(a.Outputs) != len(b.Outputs) {
		return false
	}
	for i := range a.Arguments {
		if !a.Arguments[i].Type.Equal(b.Arguments[i].Type) {
			return false
		}
	}
	for i := range a.Outputs {
		if !a.Outputs[i].Equal(b.Outputs[i]) {
			return false
		}
	}
	return true
}
