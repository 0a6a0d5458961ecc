package itbinary

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tetratelabs/wit/api"
	"github.com/tetratelabs/wit/errdefs"
	"github.com/tetratelabs/wit/it"
)

// TestEncodeDecode_RoundTrip relies on decode being the inverse of encode,
// which avoids asserting against full byte arrays for every shape.
func TestEncodeDecode_RoundTrip(t *testing.T) {
	tests := []struct {
		name  string
		input *it.Interfaces
	}{
		{
			name:  "empty",
			input: &it.Interfaces{},
		},
		{
			name: "scalar function",
			input: &it.Interfaces{
				Types: []it.Type{
					&it.FunctionType{
						Arguments: []api.FunctionArg{{Name: "x", Type: api.TypeS32}, {Name: "y", Type: api.TypeS32}},
						Outputs:   []api.IType{api.TypeS32},
					},
				},
				Exports: []*it.Export{{Name: "add", TypeIndex: 0}},
			},
		},
		{
			name: "record and array types",
			input: &it.Interfaces{
				Types: []it.Type{
					&it.RecordType{
						Name: "point",
						Fields: []api.RecordField{
							{Name: "x", Type: api.TypeF64},
							{Name: "y", Type: api.TypeF64},
						},
					},
					&it.FunctionType{
						Arguments: []api.FunctionArg{
							{Name: "points", Type: api.TypeArrayOf(api.TypeRecordOf(0))},
							{Name: "tags", Type: api.TypeArrayOf(api.TypeString)},
						},
						Outputs: []api.IType{api.TypeRecordOf(0), api.TypeByteArray},
					},
				},
				Exports: []*it.Export{{Name: "centroid", TypeIndex: 1}},
			},
		},
		{
			name: "imports adapters implementations",
			input: &it.Interfaces{
				Types: []it.Type{
					&it.FunctionType{
						Arguments: []api.FunctionArg{{Name: "url", Type: api.TypeString}},
						Outputs:   []api.IType{api.TypeString},
					},
					&it.FunctionType{
						Arguments: []api.FunctionArg{{Name: "url", Type: api.TypeString}},
						Outputs:   []api.IType{api.TypeString},
					},
				},
				Imports: []*it.Import{{Namespace: "curl", Name: "get", TypeIndex: 0}},
				Adapters: []*it.Adapter{
					{
						TypeIndex: 1,
						Instructions: []it.Instruction{
							it.ArgumentGet(0),
							{Op: it.OpStringLowerMemory},
							it.CallCore(3),
							{Op: it.OpStringLiftMemory},
							it.CallCore(1),
						},
					},
				},
				Exports:         []*it.Export{{Name: "fetch", TypeIndex: 1}},
				Implementations: []*it.Implementation{{CoreFunctionType: 1, AdapterFunctionType: 0}},
			},
		},
		{
			name: "every instruction shape",
			input: &it.Interfaces{
				Types: []it.Type{
					&it.FunctionType{Outputs: []api.IType{api.TypeU64}},
				},
				Adapters: []*it.Adapter{
					{
						TypeIndex: 0,
						Instructions: []it.Instruction{
							it.ArgumentGet(7),
							it.CallCore(129),
							{Op: it.OpBoolFromI32},
							{Op: it.OpS8FromI32},
							{Op: it.OpS16FromI32},
							{Op: it.OpS32FromI32},
							{Op: it.OpS64FromI64},
							{Op: it.OpU8FromI32},
							{Op: it.OpU16FromI32},
							{Op: it.OpU32FromI32},
							{Op: it.OpU64FromI64},
							{Op: it.OpF32FromF64},
							{Op: it.OpF64FromF32},
							{Op: it.OpI32FromBool},
							{Op: it.OpI32FromS8},
							{Op: it.OpI32FromS16},
							{Op: it.OpI32FromS32},
							{Op: it.OpI64FromS64},
							{Op: it.OpI32FromU8},
							{Op: it.OpI32FromU16},
							{Op: it.OpI32FromU32},
							{Op: it.OpI64FromU64},
							{Op: it.OpStringLiftMemory},
							{Op: it.OpStringLowerMemory},
							{Op: it.OpByteArrayLiftMemory},
							{Op: it.OpByteArrayLowerMemory},
							it.ArrayLiftMemory(api.TypeArrayOf(api.TypeU8)),
							it.ArrayLowerMemory(api.TypeString),
							it.RecordLiftMemory(3),
							it.RecordLowerMemory(3),
							it.RecordLift(4),
							it.RecordLower(4),
							{Op: it.OpDup},
							{Op: it.OpSwap},
						},
					},
				},
			},
		},
	}

	for _, tt := range tests {
		tc := tt

		t.Run(tc.name, func(t *testing.T) {
			encoded := EncodeInterfaces(tc.input)
			decoded, err := DecodeInterfaces(encoded)
			require.NoError(t, err)
			require.Equal(t, tc.input, decoded)
		})
	}
}

func TestDecodeInterfaces_Errors(t *testing.T) {
	tests := []struct {
		name  string
		input []byte
	}{
		{name: "empty payload", input: []byte{}},
		{name: "bad version", input: []byte{0x2a}},
		{name: "truncated type count", input: []byte{0x01}},
		{
			name: "invalid type kind",
			input: []byte{
				0x01, // version
				0x01, // 1 type
				0x7b, // neither function nor record
			},
		},
		{
			name: "record without fields",
			input: []byte{
				0x01,      // version
				0x01,      // 1 type
				0x01,      // record
				0x01, 'r', // name
				0x00, // 0 fields
			},
		},
	}

	for _, tt := range tests {
		tc := tt

		t.Run(tc.name, func(t *testing.T) {
			_, err := DecodeInterfaces(tc.input)
			require.Error(t, err)
			var decodeErr *errdefs.DecodeError
			require.ErrorAs(t, err, &decodeErr)
		})
	}
}

func TestDecodeInterfaces_UnknownInstruction(t *testing.T) {
	input := []byte{
		0x01, // version
		0x00, // 0 types
		0x00, // 0 imports
		0x01, // 1 adapter
		0x00, // type index
		0x01, // 1 instruction
		0xee, // unknown opcode
	}
	_, err := DecodeInterfaces(input)
	var unknown *errdefs.UnknownInstructionError
	require.ErrorAs(t, err, &unknown)
	require.Equal(t, byte(0xee), unknown.Opcode)
}

func TestDecodeInterfaces_TrailingBytes(t *testing.T) {
	encoded := EncodeInterfaces(&it.Interfaces{})
	_, err := DecodeInterfaces(append(encoded, 0x00))
	require.Error(t, err)
}
