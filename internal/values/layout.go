// Package values moves typed values between their IValue form and a module's
// linear memory: lowering writes a value out through an allocator, lifting
// reads it back. The layout is the natural one: scalars at their natural
// size and alignment, variable-length payloads stored elsewhere and
// referenced by inline (offset, length) pairs, records by inline offset.
package values

import (
	"fmt"

	"github.com/tetratelabs/wit/api"
	"github.com/tetratelabs/wit/errdefs"
)

// Allocator obtains guest memory for lowered payloads, normally backed by
// the module's allocate export.
type Allocator func(size, align uint32) (uint32, error)

// SizeAlignOf returns the inline storage size and alignment of a type, i.e.
// its footprint as a record field or array element.
func SizeAlignOf(t api.IType, records api.RecordResolver) (size, align uint32, err error) {
	switch t.Kind() {
	case api.KindBool, api.KindS8, api.KindU8:
		return 1, 1, nil
	case api.KindS16, api.KindU16:
		return 2, 2, nil
	case api.KindS32, api.KindU32, api.KindF32, api.KindI32:
		return 4, 4, nil
	case api.KindS64, api.KindU64, api.KindF64, api.KindI64:
		return 8, 8, nil
	case api.KindString, api.KindByteArray, api.KindArray:
		// inline (offset, length) pair
		return 8, 4, nil
	case api.KindRecord:
		// inline offset of the out-of-line record storage
		return 4, 4, nil
	default:
		return 0, 0, fmt.Errorf("type %s has no memory layout", t)
	}
}

// recordLayout resolves the field offsets, total size and alignment of a
// record: fields in declaration order at their natural alignment.
func recordLayout(rt *api.RecordType, records api.RecordResolver) (offsets []uint32, size, align uint32, err error) {
	offsets = make([]uint32, len(rt.Fields))
	align = 1
	for i, f := range rt.Fields {
		fsize, falign, err := SizeAlignOf(f.Type, records)
		if err != nil {
			return nil, 0, 0, err
		}
		size = alignUp(size, falign)
		offsets[i] = size
		size += fsize
		if falign > align {
			align = falign
		}
	}
	size = alignUp(size, align)
	return offsets, size, align, nil
}

func alignUp(n, align uint32) uint32 {
	return (n + align - 1) / align * align
}

func resolveRecord(records api.RecordResolver, id uint64) (*api.RecordType, error) {
	rt, ok := records.ResolveRecord(id)
	if !ok {
		return nil, &errdefs.TypeMismatchError{
			Expected: "a declared record",
			Got:      fmt.Sprintf("record id %d", id),
			At:       "record table",
		}
	}
	return rt, nil
}

func typeMismatch(expected api.IType, got api.IValue, at string) error {
	return &errdefs.TypeMismatchError{Expected: expected.String(), Got: got.Type().String(), At: at}
}
