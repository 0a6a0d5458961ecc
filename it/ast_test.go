package it

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tetratelabs/wit/api"
)

func TestInterfaces_Validate(t *testing.T) {
	fn := func() *FunctionType {
		return &FunctionType{
			Arguments: []api.FunctionArg{{Name: "x", Type: api.TypeS32}},
			Outputs:   []api.IType{api.TypeString},
		}
	}

	tests := []struct {
		name        string
		input       *Interfaces
		expectedErr string
	}{
		{
			name:  "empty",
			input: &Interfaces{},
		},
		{
			name: "well-formed",
			input: &Interfaces{
				Types: []Type{
					&RecordType{Name: "r", Fields: []api.RecordField{{Name: "a", Type: api.TypeBool}}},
					fn(),
					fn(),
				},
				Exports:         []*Export{{Name: "f", TypeIndex: 2}},
				Adapters:        []*Adapter{{TypeIndex: 1}},
				Implementations: []*Implementation{{CoreFunctionType: 2, AdapterFunctionType: 1}},
			},
		},
		{
			name: "export type out of range",
			input: &Interfaces{
				Types:   []Type{fn()},
				Exports: []*Export{{Name: "f", TypeIndex: 9}},
			},
			expectedErr: "out of range",
		},
		{
			name: "import references a record type",
			input: &Interfaces{
				Types:   []Type{&RecordType{Name: "r", Fields: []api.RecordField{{Name: "a", Type: api.TypeBool}}}},
				Imports: []*Import{{Namespace: "ns", Name: "f", TypeIndex: 0}},
			},
			expectedErr: "isn't a function type",
		},
		{
			name: "record references itself",
			input: &Interfaces{
				Types: []Type{
					&RecordType{Name: "r", Fields: []api.RecordField{{Name: "a", Type: api.TypeRecordOf(0)}}},
				},
			},
			expectedErr: "declared at or after",
		},
		{
			name: "record references a later record",
			input: &Interfaces{
				Types: []Type{
					&RecordType{Name: "a", Fields: []api.RecordField{{Name: "b", Type: api.TypeRecordOf(1)}}},
					&RecordType{Name: "b", Fields: []api.RecordField{{Name: "x", Type: api.TypeBool}}},
				},
			},
			expectedErr: "declared at or after",
		},
		{
			name: "record reference nested in an array",
			input: &Interfaces{
				Types: []Type{
					&RecordType{Name: "a", Fields: []api.RecordField{{Name: "b", Type: api.TypeArrayOf(api.TypeRecordOf(2))}}},
				},
			},
			expectedErr: "declared at or after",
		},
		{
			name: "implementation pairs differing types",
			input: &Interfaces{
				Types: []Type{
					fn(),
					&FunctionType{Outputs: []api.IType{api.TypeString}},
				},
				Implementations: []*Implementation{{CoreFunctionType: 0, AdapterFunctionType: 1}},
			},
			expectedErr: "differing function types",
		},
	}

	for _, tt := range tests {
		tc := tt

		t.Run(tc.name, func(t *testing.T) {
			err := tc.input.Validate()
			if tc.expectedErr == "" {
				require.NoError(t, err)
			} else {
				require.ErrorContains(t, err, tc.expectedErr)
			}
		})
	}
}

func TestInterfaces_Lookups(t *testing.T) {
	ifaces := &Interfaces{
		Types: []Type{
			&RecordType{Name: "r", Fields: []api.RecordField{{Name: "a", Type: api.TypeBool}}},
			&FunctionType{},
			&FunctionType{},
		},
		Imports:  []*Import{{Namespace: "ns", Name: "f", TypeIndex: 1}},
		Exports:  []*Export{{Name: "g", TypeIndex: 2}},
		Adapters: []*Adapter{{TypeIndex: 1}},
	}

	rt, ok := ifaces.RecordTypeAt(0)
	require.True(t, ok)
	require.Equal(t, "r", rt.Name)
	_, ok = ifaces.RecordTypeAt(1)
	require.False(t, ok)
	_, ok = ifaces.RecordTypeAt(9)
	require.False(t, ok)

	imp, ok := ifaces.ImportByType(1)
	require.True(t, ok)
	require.Equal(t, "f", imp.Name)
	_, ok = ifaces.ImportByType(2)
	require.False(t, ok)

	name, ok := ifaces.ExportByType(2)
	require.True(t, ok)
	require.Equal(t, "g", name)
	_, ok = ifaces.ExportByType(1)
	require.False(t, ok)

	a, ok := ifaces.AdapterByType(1)
	require.True(t, ok)
	require.Equal(t, uint32(1), a.TypeIndex)
	_, ok = ifaces.AdapterByType(0)
	require.False(t, ok)

	_, err := ifaces.FunctionTypeAt(0)
	require.Error(t, err)
	ft, err := ifaces.FunctionTypeAt(1)
	require.NoError(t, err)
	require.NotNil(t, ft)
}
