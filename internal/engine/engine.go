// Package engine abstracts the raw WebAssembly executor behind narrow
// interfaces, so the adapter interpreter and the linker never see a concrete
// runtime. The default implementation is backed by wazero; tests substitute
// a programmable fake.
package engine

import "context"

// ValueType is a raw Wasm value type, using the same binary encoding as the
// Wasm format (and wazero's api.ValueType).
type ValueType = byte

const (
	ValueTypeI32 ValueType = 0x7f
	ValueTypeI64 ValueType = 0x7e
	ValueTypeF32 ValueType = 0x7d
	ValueTypeF64 ValueType = 0x7c
)

// GoFunc is a host function exposed to a guest module. params holds the raw
// scalar arguments; the returned slice holds the raw results.
type GoFunc func(ctx context.Context, params []uint64) ([]uint64, error)

// HostFunc describes one host function registered under a namespace.
type HostFunc struct {
	Name    string
	Params  []ValueType
	Results []ValueType
	Fn      GoFunc
}

// HostModule is a namespace of host functions resolved by guest imports.
type HostModule struct {
	Namespace string
	Functions []HostFunc
}

// ModuleOptions tunes one instantiation.
type ModuleOptions struct {
	// MemoryLimitPages caps the module's linear memory, in 64KiB pages.
	// Zero keeps the executor default.
	MemoryLimitPages uint32
}

// Engine compiles and instantiates guest modules. Instances are isolated
// from each other: nothing is shared between two NewModule calls.
type Engine interface {
	NewModule(ctx context.Context, name string, guest []byte, host []HostModule, opts ModuleOptions) (Instance, error)
	Close(ctx context.Context) error
}

// Instance is one instantiated guest module.
type Instance interface {
	// Memory returns the instance's linear memory, or nil if the module
	// defines none.
	Memory() Memory
	// ExportedFunction returns the raw export with the given name.
	ExportedFunction(name string) (Function, bool)
	Close(ctx context.Context) error
}

// Function is a raw scalar-ABI function of an instance.
type Function interface {
	ParamTypes() []ValueType
	ResultTypes() []ValueType
	Call(ctx context.Context, params ...uint64) ([]uint64, error)
}

// Memory is a byte-addressable linear memory. The guest may mutate it
// between calls, so readers must not cache ranges across calls.
type Memory interface {
	// Size returns the current size in bytes.
	Size() uint32
	// Read returns a copy of the byte range, or false when out of bounds.
	Read(offset, byteCount uint32) ([]byte, bool)
	// Write copies data into memory, or returns false when out of bounds.
	Write(offset uint32, data []byte) bool
}
