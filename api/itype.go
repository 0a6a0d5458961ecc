// Package api includes the typed value model shared by end-users and internal
// implementations: interface-level types (IType), their value carriers
// (IValue) and record declarations.
package api

import "fmt"

// TypeKind classifies an IType.
type TypeKind byte

const (
	KindBool TypeKind = iota
	KindS8
	KindS16
	KindS32
	KindS64
	KindU8
	KindU16
	KindU32
	KindU64
	KindF32
	KindF64
	KindString
	KindByteArray
	KindArray
	KindRecord
	KindAnyRef

	// KindI32 and KindI64 are the raw core scalar types. Adapters use them as
	// the carrier between a typed value and the Wasm ABI, and they appear in
	// the signatures of the well-known exports (allocate, set_result_size,
	// set_result_ptr).
	KindI32
	KindI64
)

// IType describes an interface-level value type. An array type carries its
// element type, a record type references an entry in the owning module's
// record table by index. The zero value is TypeBool; use the package
// constructors instead of composite literals.
type IType struct {
	kind     TypeKind
	elem     *IType
	recordID uint64
}

var (
	TypeBool      = IType{kind: KindBool}
	TypeS8        = IType{kind: KindS8}
	TypeS16       = IType{kind: KindS16}
	TypeS32       = IType{kind: KindS32}
	TypeS64       = IType{kind: KindS64}
	TypeU8        = IType{kind: KindU8}
	TypeU16       = IType{kind: KindU16}
	TypeU32       = IType{kind: KindU32}
	TypeU64       = IType{kind: KindU64}
	TypeF32       = IType{kind: KindF32}
	TypeF64       = IType{kind: KindF64}
	TypeString    = IType{kind: KindString}
	TypeByteArray = IType{kind: KindByteArray}
	TypeAnyRef    = IType{kind: KindAnyRef}
	TypeI32       = IType{kind: KindI32}
	TypeI64       = IType{kind: KindI64}
)

// TypeArrayOf returns the type of a homogenous array with the given element
// type.
func TypeArrayOf(elem IType) IType {
	e := elem
	return IType{kind: KindArray, elem: &e}
}

// TypeRecordOf returns a reference to the record declared at the given index
// of the owning module's record table.
func TypeRecordOf(recordID uint64) IType {
	return IType{kind: KindRecord, recordID: recordID}
}

// Kind returns the type's classification.
func (t IType) Kind() TypeKind { return t.kind }

// Elem returns the element type of an array type. It panics unless
// Kind() == KindArray.
func (t IType) Elem() IType {
	if t.kind != KindArray || t.elem == nil {
		panic("api: Elem on non-array IType")
	}
	return *t.elem
}

// RecordID returns the record table index of a record type. It panics unless
// Kind() == KindRecord.
func (t IType) RecordID() uint64 {
	if t.kind != KindRecord {
		panic("api: RecordID on non-record IType")
	}
	return t.recordID
}

// IsComplex reports whether values of this type require linear memory at the
// Wasm boundary: strings, byte arrays, arrays and records.
func (t IType) IsComplex() bool {
	switch t.kind {
	case KindString, KindByteArray, KindArray, KindRecord:
		return true
	default:
		return false
	}
}

// Equal reports structural equality.
func (t IType) Equal(o IType) bool {
	if t.kind != o.kind {
		return false
	}
	switch t.kind {
	case KindArray:
		return t.Elem().Equal(o.Elem())
	case KindRecord:
		return t.recordID == o.recordID
	default:
		return true
	}
}

// String implements fmt.Stringer with the type grammar used in diagnostics,
// e.g. "u32", "array(string)", "record(3)".
func (t IType) String() string {
	switch t.kind {
	case KindBool:
		return "bool"
	case KindS8:
		return "s8"
	case KindS16:
		return "s16"
	case KindS32:
		return "s32"
	case KindS64:
		return "s64"
	case KindU8:
		return "u8"
	case KindU16:
		return "u16"
	case KindU32:
		return "u32"
	case KindU64:
		return "u64"
	case KindF32:
		return "f32"
	case KindF64:
		return "f64"
	case KindString:
		return "string"
	case KindByteArray:
		return "byte_array"
	case KindArray:
		return fmt.Sprintf("array(%s)", t.Elem())
	case KindRecord:
		return fmt.Sprintf("record(%d)", t.recordID)
	case KindAnyRef:
		return "anyref"
	case KindI32:
		return "i32"
	case KindI64:
		return "i64"
	}
	return fmt.Sprintf("itype(%#x)", byte(t.kind))
}
