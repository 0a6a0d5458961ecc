package api

import (
	"fmt"
	"strings"
)

// IValue is a typed interface-level value. Implementations are the concrete
// value types in this package; no other implementations exist. Values are
// immutable: ownership transfers when a value is pushed onto or popped from
// an adapter stack.
type IValue interface {
	// Type returns the IType this value inhabits.
	Type() IType
	fmt.Stringer
}

type (
	Bool      bool
	S8        int8
	S16       int16
	S32       int32
	S64       int64
	U8        uint8
	U16       uint16
	U32       uint32
	U64       uint64
	F32       float32
	F64       float64
	String    string
	ByteArray []byte

	// I32 and I64 are raw core scalars, produced and consumed only by
	// adapters at the Wasm boundary.
	I32 int32
	I64 int64

	// Array is a homogenous sequence. Elem is the element type, kept on the
	// value so an empty array still knows its type.
	Array struct {
		Elem   IType
		Values []IValue
	}

	// Record is an ordered, non-empty field sequence matching the record
	// declared at ID in the owning module's record table. Construct with
	// NewRecord to keep the arity invariant.
	Record struct {
		ID     uint64
		Fields []IValue
	}
)

func (Bool) Type() IType      { return TypeBool }
func (S8) Type() IType        { return TypeS8 }
func (S16) Type() IType       { return TypeS16 }
func (S32) Type() IType       { return TypeS32 }
func (S64) Type() IType       { return TypeS64 }
func (U8) Type() IType        { return TypeU8 }
func (U16) Type() IType       { return TypeU16 }
func (U32) Type() IType       { return TypeU32 }
func (U64) Type() IType       { return TypeU64 }
func (F32) Type() IType       { return TypeF32 }
func (F64) Type() IType       { return TypeF64 }
func (String) Type() IType    { return TypeString }
func (ByteArray) Type() IType { return TypeByteArray }
func (I32) Type() IType       { return TypeI32 }
func (I64) Type() IType       { return TypeI64 }
func (a Array) Type() IType   { return TypeArrayOf(a.Elem) }
func (r Record) Type() IType  { return TypeRecordOf(r.ID) }

func (v Bool) String() string      { return fmt.Sprintf("bool(%t)", bool(v)) }
func (v S8) String() string        { return fmt.Sprintf("s8(%d)", int8(v)) }
func (v S16) String() string       { return fmt.Sprintf("s16(%d)", int16(v)) }
func (v S32) String() string       { return fmt.Sprintf("s32(%d)", int32(v)) }
func (v S64) String() string       { return fmt.Sprintf("s64(%d)", int64(v)) }
func (v U8) String() string        { return fmt.Sprintf("u8(%d)", uint8(v)) }
func (v U16) String() string       { return fmt.Sprintf("u16(%d)", uint16(v)) }
func (v U32) String() string       { return fmt.Sprintf("u32(%d)", uint32(v)) }
func (v U64) String() string       { return fmt.Sprintf("u64(%d)", uint64(v)) }
func (v F32) String() string       { return fmt.Sprintf("f32(%g)", float32(v)) }
func (v F64) String() string       { return fmt.Sprintf("f64(%g)", float64(v)) }
func (v String) String() string    { return fmt.Sprintf("string(%q)", string(v)) }
func (v ByteArray) String() string { return fmt.Sprintf("byte_array(%#x)", []byte(v)) }
func (v I32) String() string       { return fmt.Sprintf("i32(%d)", int32(v)) }
func (v I64) String() string       { return fmt.Sprintf("i64(%d)", int64(v)) }

func (a Array) String() string {
	elems := make([]string, len(a.Values))
	for i, v := range a.Values {
		elems[i] = v.String()
	}
	return fmt.Sprintf("array(%s)[%s]", a.Elem, strings.Join(elems, ", "))
}

func (r Record) String() string {
	fields := make([]string, len(r.Fields))
	for i, v := range r.Fields {
		fields[i] = v.String()
	}
	return fmt.Sprintf("record(%d){%s}", r.ID, strings.Join(fields, ", "))
}

// NewRecord returns a Record value, rejecting an empty field sequence.
func NewRecord(id uint64, fields []IValue) (Record, error) {
	if len(fields) == 0 {
		return Record{}, fmt.Errorf("record %d must have at least one field", id)
	}
	return Record{ID: id, Fields: fields}, nil
}

// ValuesEqual reports deep structural equality of two value slices.
func ValuesEqual(a, b []IValue) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !ValueEqual(a[i], b[i]) {
			return false
		}
	}
	return true
}

// ValueEqual reports deep structural equality.
func ValueEqual(a, b IValue) bool {
	switch av := a.(type) {
	case Array:
		bv, ok := b.(Array)
		return ok && av.Elem.Equal(bv.Elem) && ValuesEqual(av.Values, bv.Values)
	case Record:
		bv, ok := b.(Record)
		return ok && av.ID == bv.ID && ValuesEqual(av.Fields, bv.Fields)
	case ByteArray:
		bv, ok := b.(ByteArray)
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if av[i] != bv[i] {
				return false
			}
		}
		return true
	default:
		return a == b
	}
}
