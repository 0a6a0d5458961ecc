package api

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIType_String(t *testing.T) {
	tests := []struct {
		ty       IType
		expected string
	}{
		{ty: TypeBool, expected: "bool"},
		{ty: TypeS8, expected: "s8"},
		{ty: TypeU64, expected: "u64"},
		{ty: TypeF32, expected: "f32"},
		{ty: TypeString, expected: "string"},
		{ty: TypeByteArray, expected: "byte_array"},
		{ty: TypeArrayOf(TypeString), expected: "array(string)"},
		{ty: TypeArrayOf(TypeArrayOf(TypeU8)), expected: "array(array(u8))"},
		{ty: TypeRecordOf(3), expected: "record(3)"},
		{ty: TypeAnyRef, expected: "anyref"},
		{ty: TypeI32, expected: "i32"},
	}
	for _, tc := range tests {
		require.Equal(t, tc.expected, tc.ty.String())
	}
}

func TestIType_Equal(t *testing.T) {
	require.True(t, TypeU32.Equal(TypeU32))
	require.False(t, TypeU32.Equal(TypeS32))
	require.True(t, TypeArrayOf(TypeString).Equal(TypeArrayOf(TypeString)))
	require.False(t, TypeArrayOf(TypeString).Equal(TypeArrayOf(TypeU8)))
	require.True(t, TypeRecordOf(1).Equal(TypeRecordOf(1)))
	require.False(t, TypeRecordOf(1).Equal(TypeRecordOf(2)))
	require.False(t, TypeRecordOf(1).Equal(TypeArrayOf(TypeU8)))
}

func TestIType_IsComplex(t *testing.T) {
	for _, ty := range []IType{TypeString, TypeByteArray, TypeArrayOf(TypeU8), TypeRecordOf(0)} {
		require.True(t, ty.IsComplex(), ty.String())
	}
	for _, ty := range []IType{TypeBool, TypeS8, TypeU64, TypeF32, TypeF64, TypeI32, TypeAnyRef} {
		require.False(t, ty.IsComplex(), ty.String())
	}
}

func TestNewRecord(t *testing.T) {
	_, err := NewRecord(0, nil)
	require.Error(t, err)

	r, err := NewRecord(2, []IValue{S32(1)})
	require.NoError(t, err)
	require.Equal(t, uint64(2), r.ID)
	require.True(t, TypeRecordOf(2).Equal(r.Type()))
}

func TestValueEqual(t *testing.T) {
	require.True(t, ValueEqual(String("a"), String("a")))
	require.False(t, ValueEqual(String("a"), String("b")))
	require.False(t, ValueEqual(S32(1), U32(1)))
	require.True(t, ValueEqual(ByteArray{1, 2}, ByteArray{1, 2}))
	require.False(t, ValueEqual(ByteArray{1, 2}, ByteArray{1, 3}))
	require.True(t, ValueEqual(
		Array{Elem: TypeU8, Values: []IValue{U8(1)}},
		Array{Elem: TypeU8, Values: []IValue{U8(1)}},
	))
	require.False(t, ValueEqual(
		Array{Elem: TypeU8, Values: []IValue{U8(1)}},
		Array{Elem: TypeU8, Values: []IValue{U8(2)}},
	))
	require.True(t, ValueEqual(
		Record{ID: 0, Fields: []IValue{Bool(true)}},
		Record{ID: 0, Fields: []IValue{Bool(true)}},
	))
	require.False(t, ValueEqual(
		Record{ID: 0, Fields: []IValue{Bool(true)}},
		Record{ID: 1, Fields: []IValue{Bool(true)}},
	))
}
