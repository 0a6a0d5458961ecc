package values

import (
	"fmt"

	"github.com/tetratelabs/wit/api"
	"github.com/tetratelabs/wit/errdefs"
	"github.com/tetratelabs/wit/internal/memview"
)

// LowerString places the string bytes in guest memory, returning the
// (offset, byte length) scalar pair.
func LowerString(mem *memview.View, alloc Allocator, s api.String) (offset, size uint32, err error) {
	return lowerPayload(mem, alloc, []byte(s))
}

// LowerBytes places the byte array in guest memory, returning the
// (offset, byte length) scalar pair.
func LowerBytes(mem *memview.View, alloc Allocator, b api.ByteArray) (offset, size uint32, err error) {
	return lowerPayload(mem, alloc, b)
}

func lowerPayload(mem *memview.View, alloc Allocator, payload []byte) (uint32, uint32, error) {
	offset, err := alloc(uint32(len(payload)), 1)
	if err != nil {
		return 0, 0, err
	}
	if len(payload) == 0 {
		return offset, 0, nil
	}
	if err := mem.WriteBytes(offset, payload); err != nil {
		return 0, 0, err
	}
	return offset, uint32(len(payload)), nil
}

// LowerArray places the elements contiguously in guest memory with the
// element type's inline layout, returning the (offset, element count) scalar
// pair.
func LowerArray(mem *memview.View, alloc Allocator, records api.RecordResolver, elem api.IType, a api.Array) (offset, count uint32, err error) {
	if !a.Elem.Equal(elem) {
		return 0, 0, typeMismatch(api.TypeArrayOf(elem), a, "array lowering")
	}
	stride, align, err := SizeAlignOf(elem, records)
	if err != nil {
		return 0, 0, err
	}
	offset, err = alloc(stride*uint32(len(a.Values)), align)
	if err != nil {
		return 0, 0, err
	}
	for i, v := range a.Values {
		if err := lowerInline(mem, alloc, records, elem, v, offset+uint32(i)*stride); err != nil {
			return 0, 0, err
		}
	}
	return offset, uint32(len(a.Values)), nil
}

// LowerRecord places the record's fields in guest memory in declaration
// order, returning the record offset.
func LowerRecord(mem *memview.View, alloc Allocator, records api.RecordResolver, id uint64, r api.Record) (uint32, error) {
	rt, err := resolveRecord(records, id)
	if err != nil {
		return 0, err
	}
	if r.ID != id || len(r.Fields) != len(rt.Fields) {
		return 0, &errdefs.TypeMismatchError{
			Expected: fmt.Sprintf("record %d with %d fields", id, len(rt.Fields)),
			Got:      r.Type().String(),
			At:       "record lowering",
		}
	}
	offsets, size, align, err := recordLayout(rt, records)
	if err != nil {
		return 0, err
	}
	base, err := alloc(size, align)
	if err != nil {
		return 0, err
	}
	for i, f := range rt.Fields {
		if err := lowerInline(mem, alloc, records, f.Type, r.Fields[i], base+offsets[i]); err != nil {
			return 0, err
		}
	}
	return base, nil
}

// lowerInline writes one value at its inline position inside a record or
// array. Variable-length payloads are allocated out of line.
func lowerInline(mem *memview.View, alloc Allocator, records api.RecordResolver, t api.IType, v api.IValue, at uint32) error {
	switch t.Kind() {
	case api.KindBool:
		b, ok := v.(api.Bool)
		if !ok {
			return typeMismatch(t, v, "field lowering")
		}
		var byteVal byte
		if b {
			byteVal = 1
		}
		return mem.WriteU8(at, byteVal)
	case api.KindS8:
		n, ok := v.(api.S8)
		if !ok {
			return typeMismatch(t, v, "field lowering")
		}
		return mem.WriteU8(at, byte(n))
	case api.KindU8:
		n, ok := v.(api.U8)
		if !ok {
			return typeMismatch(t, v, "field lowering")
		}
		return mem.WriteU8(at, byte(n))
	case api.KindS16:
		n, ok := v.(api.S16)
		if !ok {
			return typeMismatch(t, v, "field lowering")
		}
		return mem.WriteU16Le(at, uint16(n))
	case api.KindU16:
		n, ok := v.(api.U16)
		if !ok {
			return typeMismatch(t, v, "field lowering")
		}
		return mem.WriteU16Le(at, uint16(n))
	case api.KindS32:
		n, ok := v.(api.S32)
		if !ok {
			return typeMismatch(t, v, "field lowering")
		}
		return mem.WriteU32Le(at, uint32(n))
	case api.KindU32:
		n, ok := v.(api.U32)
		if !ok {
			return typeMismatch(t, v, "field lowering")
		}
		return mem.WriteU32Le(at, uint32(n))
	case api.KindI32:
		n, ok := v.(api.I32)
		if !ok {
			return typeMismatch(t, v, "field lowering")
		}
		return mem.WriteU32Le(at, uint32(n))
	case api.KindS64:
		n, ok := v.(api.S64)
		if !ok {
			return typeMismatch(t, v, "field lowering")
		}
		return mem.WriteU64Le(at, uint64(n))
	case api.KindU64:
		n, ok := v.(api.U64)
		if !ok {
			return typeMismatch(t, v, "field lowering")
		}
		return mem.WriteU64Le(at, uint64(n))
	case api.KindI64:
		n, ok := v.(api.I64)
		if !ok {
			return typeMismatch(t, v, "field lowering")
		}
		return mem.WriteU64Le(at, uint64(n))
	case api.KindF32:
		f, ok := v.(api.F32)
		if !ok {
			return typeMismatch(t, v, "field lowering")
		}
		return mem.WriteF32Le(at, float32(f))
	case api.KindF64:
		f, ok := v.(api.F64)
		if !ok {
			return typeMismatch(t, v, "field lowering")
		}
		return mem.WriteF64Le(at, float64(f))
	case api.KindString:
		s, ok := v.(api.String)
		if !ok {
			return typeMismatch(t, v, "field lowering")
		}
		offset, size, err := LowerString(mem, alloc, s)
		if err != nil {
			return err
		}
		return writePair(mem, at, offset, size)
	case api.KindByteArray:
		b, ok := v.(api.ByteArray)
		if !ok {
			return typeMismatch(t, v, "field lowering")
		}
		offset, size, err := LowerBytes(mem, alloc, b)
		if err != nil {
			return err
		}
		return writePair(mem, at, offset, size)
	case api.KindArray:
		a, ok := v.(api.Array)
		if !ok {
			return typeMismatch(t, v, "field lowering")
		}
		offset, count, err := LowerArray(mem, alloc, records, t.Elem(), a)
		if err != nil {
			return err
		}
		return writePair(mem, at, offset, count)
	case api.KindRecord:
		r, ok := v.(api.Record)
		if !ok {
			return typeMismatch(t, v, "field lowering")
		}
		offset, err := LowerRecord(mem, alloc, records, t.RecordID(), r)
		if err != nil {
			return err
		}
		return mem.WriteU32Le(at, offset)
	default:
		return fmt.Errorf("type %s can't be lowered", t)
	}
}

func writePair(mem *memview.View, at, first, second uint32) error {
	if err := mem.WriteU32Le(at, first); err != nil {
		return err
	}
	return mem.WriteU32Le(at+4, second)
}
