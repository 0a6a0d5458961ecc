package values

import (
	"fmt"
	"unicode/utf8"

	"github.com/tetratelabs/wit/api"
	"github.com/tetratelabs/wit/errdefs"
	"github.com/tetratelabs/wit/internal/memview"
)

// LiftString reads size bytes at offset and validates them as UTF-8.
func LiftString(mem *memview.View, offset, size uint32) (api.String, error) {
	buf, err := mem.ReadBytes(offset, size)
	if err != nil {
		return "", err
	}
	if !utf8.Valid(buf) {
		return "", &errdefs.InvalidUTF8Error{Offset: offset, Len: size}
	}
	return api.String(buf), nil
}

// LiftBytes reads size bytes at offset with no validation.
func LiftBytes(mem *memview.View, offset, size uint32) (api.ByteArray, error) {
	buf, err := mem.ReadBytes(offset, size)
	if err != nil {
		return nil, err
	}
	return api.ByteArray(buf), nil
}

// LiftArray reads count contiguous elements of elem starting at offset.
func LiftArray(mem *memview.View, records api.RecordResolver, elem api.IType, offset, count uint32) (api.Array, error) {
	stride, _, err := SizeAlignOf(elem, records)
	if err != nil {
		return api.Array{}, err
	}
	values := make([]api.IValue, 0, count)
	for i := uint32(0); i < count; i++ {
		v, err := liftInline(mem, records, elem, offset+i*stride)
		if err != nil {
			return api.Array{}, err
		}
		values = append(values, v)
	}
	return api.Array{Elem: elem, Values: values}, nil
}

// LiftRecord reads the record declared at id from offset, fields in
// declaration order.
func LiftRecord(mem *memview.View, records api.RecordResolver, id uint64, offset uint32) (api.Record, error) {
	rt, err := resolveRecord(records, id)
	if err != nil {
		return api.Record{}, err
	}
	offsets, _, _, err := recordLayout(rt, records)
	if err != nil {
		return api.Record{}, err
	}
	fields := make([]api.IValue, len(rt.Fields))
	for i, f := range rt.Fields {
		v, err := liftInline(mem, records, f.Type, offset+offsets[i])
		if err != nil {
			return api.Record{}, err
		}
		fields[i] = v
	}
	return api.NewRecord(id, fields)
}

// liftInline reads one value from its inline position inside a record or
// array.
func liftInline(mem *memview.View, records api.RecordResolver, t api.IType, at uint32) (api.IValue, error) {
	switch t.Kind() {
	case api.KindBool:
		b, err := mem.ReadU8(at)
		if err != nil {
			return nil, err
		}
		return api.Bool(b != 0), nil
	case api.KindS8:
		b, err := mem.ReadU8(at)
		if err != nil {
			return nil, err
		}
		return api.S8(b), nil
	case api.KindU8:
		b, err := mem.ReadU8(at)
		if err != nil {
			return nil, err
		}
		return api.U8(b), nil
	case api.KindS16:
		n, err := mem.ReadU16Le(at)
		if err != nil {
			return nil, err
		}
		return api.S16(n), nil
	case api.KindU16:
		n, err := mem.ReadU16Le(at)
		if err != nil {
			return nil, err
		}
		return api.U16(n), nil
	case api.KindS32:
		n, err := mem.ReadU32Le(at)
		if err != nil {
			return nil, err
		}
		return api.S32(n), nil
	case api.KindU32:
		n, err := mem.ReadU32Le(at)
		if err != nil {
			return nil, err
		}
		return api.U32(n), nil
	case api.KindI32:
		n, err := mem.ReadU32Le(at)
		if err != nil {
			return nil, err
		}
		return api.I32(n), nil
	case api.KindS64:
		n, err := mem.ReadU64Le(at)
		if err != nil {
			return nil, err
		}
		return api.S64(n), nil
	case api.KindU64:
		n, err := mem.ReadU64Le(at)
		if err != nil {
			return nil, err
		}
		return api.U64(n), nil
	case api.KindI64:
		n, err := mem.ReadU64Le(at)
		if err != nil {
			return nil, err
		}
		return api.I64(n), nil
	case api.KindF32:
		f, err := mem.ReadF32Le(at)
		if err != nil {
			return nil, err
		}
		return api.F32(f), nil
	case api.KindF64:
		f, err := mem.ReadF64Le(at)
		if err != nil {
			return nil, err
		}
		return api.F64(f), nil
	case api.KindString:
		offset, size, err := readPair(mem, at)
		if err != nil {
			return nil, err
		}
		return LiftString(mem, offset, size)
	case api.KindByteArray:
		offset, size, err := readPair(mem, at)
		if err != nil {
			return nil, err
		}
		return LiftBytes(mem, offset, size)
	case api.KindArray:
		offset, count, err := readPair(mem, at)
		if err != nil {
			return nil, err
		}
		return LiftArray(mem, records, t.Elem(), offset, count)
	case api.KindRecord:
		offset, err := mem.ReadU32Le(at)
		if err != nil {
			return nil, err
		}
		return LiftRecord(mem, records, t.RecordID(), offset)
	default:
		return nil, fmt.Errorf("type %s can't be lifted", t)
	}
}

func readPair(mem *memview.View, at uint32) (uint32, uint32, error) {
	first, err := mem.ReadU32Le(at)
	if err != nil {
		return 0, 0, err
	}
	second, err := mem.ReadU32Le(at + 4)
	if err != nil {
		return 0, 0, err
	}
	return first, second, nil
}
