package api

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tetratelabs/wit/errdefs"
)

var jsonTestRecords = RecordMap{
	0: {
		Name: "point",
		Fields: []RecordField{
			{Name: "x", Type: TypeS32},
			{Name: "y", Type: TypeS32},
		},
	},
}

func TestArgsFromJSON(t *testing.T) {
	args := []FunctionArg{
		{Name: "name", Type: TypeString},
		{Name: "count", Type: TypeU32},
	}

	tests := []struct {
		name     string
		payload  string
		expected []IValue
	}{
		{
			name:     "object by name",
			payload:  `{"name": "n", "count": 3}`,
			expected: []IValue{String("n"), U32(3)},
		},
		{
			name:     "positional array",
			payload:  `["n", 3]`,
			expected: []IValue{String("n"), U32(3)},
		},
		{
			name:     "object ignores order",
			payload:  `{"count": 3, "name": "n"}`,
			expected: []IValue{String("n"), U32(3)},
		},
	}

	for _, tt := range tests {
		tc := tt

		t.Run(tc.name, func(t *testing.T) {
			values, err := ArgsFromJSON([]byte(tc.payload), args, jsonTestRecords)
			require.NoError(t, err)
			require.Equal(t, tc.expected, values)
		})
	}
}

func TestArgsFromJSON_EmptyPayloads(t *testing.T) {
	for _, payload := range []string{"null", "{}", "[]", ""} {
		values, err := ArgsFromJSON([]byte(payload), nil, jsonTestRecords)
		require.NoError(t, err, payload)
		require.Empty(t, values, payload)
	}
}

func TestArgsFromJSON_Errors(t *testing.T) {
	args := []FunctionArg{{Name: "n", Type: TypeU8}}

	tests := []struct {
		name    string
		payload string
	}{
		{name: "missing argument", payload: `{}`},
		{name: "unknown argument", payload: `{"n": 1, "extra": 2}`},
		{name: "wrong arity", payload: `[1, 2]`},
		{name: "scalar payload", payload: `7`},
		{name: "out of range", payload: `{"n": 256}`},
		{name: "negative for unsigned", payload: `{"n": -1}`},
		{name: "float for integer", payload: `{"n": 1.5}`},
	}

	for _, tt := range tests {
		tc := tt

		t.Run(tc.name, func(t *testing.T) {
			_, err := ArgsFromJSON([]byte(tc.payload), args, jsonTestRecords)
			require.True(t, errdefs.IsInvalidArgument(err), "got %v", err)
		})
	}
}

func TestValueFromJSON_ScalarRanges(t *testing.T) {
	tests := []struct {
		name     string
		ty       IType
		payload  string
		expected IValue
		wantErr  bool
	}{
		{name: "s8 min", ty: TypeS8, payload: "-128", expected: S8(-128)},
		{name: "s8 overflow", ty: TypeS8, payload: "128", wantErr: true},
		{name: "s16", ty: TypeS16, payload: "-30000", expected: S16(-30000)},
		{name: "u16 overflow", ty: TypeU16, payload: "65536", wantErr: true},
		{name: "s64 large", ty: TypeS64, payload: "-9223372036854775808", expected: S64(-9223372036854775808)},
		{name: "u64 max", ty: TypeU64, payload: "18446744073709551615", expected: U64(18446744073709551615)},
		{name: "f32", ty: TypeF32, payload: "9.5", expected: F32(9.5)},
		{name: "f64 integer literal", ty: TypeF64, payload: "10", expected: F64(10)},
		{name: "bool", ty: TypeBool, payload: "true", expected: Bool(true)},
		{name: "bool from number", ty: TypeBool, payload: "1", wantErr: true},
		{name: "string", ty: TypeString, payload: `"hi"`, expected: String("hi")},
	}

	for _, tt := range tests {
		tc := tt

		t.Run(tc.name, func(t *testing.T) {
			v, err := ValueFromJSON(json.RawMessage(tc.payload), tc.ty, jsonTestRecords, "arg")
			if tc.wantErr {
				require.True(t, errdefs.IsInvalidArgument(err), "got %v", err)
			} else {
				require.NoError(t, err)
				require.Equal(t, tc.expected, v)
			}
		})
	}
}

func TestValueFromJSON_ByteArray(t *testing.T) {
	v, err := ValueFromJSON(json.RawMessage(`[19, 55]`), TypeByteArray, jsonTestRecords, "b")
	require.NoError(t, err)
	require.Equal(t, ByteArray{0x13, 0x37}, v)

	_, err = ValueFromJSON(json.RawMessage(`[256]`), TypeByteArray, jsonTestRecords, "b")
	require.True(t, errdefs.IsInvalidArgument(err))

	_, err = ValueFromJSON(json.RawMessage(`"AAE="`), TypeByteArray, jsonTestRecords, "b")
	require.True(t, errdefs.IsInvalidArgument(err))
}

func TestValueFromJSON_Record(t *testing.T) {
	expected := Record{ID: 0, Fields: []IValue{S32(1), S32(2)}}

	t.Run("object with exact field names", func(t *testing.T) {
		v, err := ValueFromJSON(json.RawMessage(`{"x": 1, "y": 2}`), TypeRecordOf(0), jsonTestRecords, "p")
		require.NoError(t, err)
		require.Equal(t, expected, v)
	})

	t.Run("positional array", func(t *testing.T) {
		v, err := ValueFromJSON(json.RawMessage(`[1, 2]`), TypeRecordOf(0), jsonTestRecords, "p")
		require.NoError(t, err)
		require.Equal(t, expected, v)
	})

	t.Run("missing field", func(t *testing.T) {
		_, err := ValueFromJSON(json.RawMessage(`{"x": 1}`), TypeRecordOf(0), jsonTestRecords, "p")
		require.True(t, errdefs.IsInvalidArgument(err))
	})

	t.Run("wrong field name has a path", func(t *testing.T) {
		_, err := ValueFromJSON(json.RawMessage(`{"x": 1, "z": 2}`), TypeRecordOf(0), jsonTestRecords, "p")
		var invalid *errdefs.InvalidArgumentError
		require.ErrorAs(t, err, &invalid)
		require.Equal(t, "p.y", invalid.Path)
	})

	t.Run("wrong arity array", func(t *testing.T) {
		_, err := ValueFromJSON(json.RawMessage(`[1, 2, 3]`), TypeRecordOf(0), jsonTestRecords, "p")
		require.True(t, errdefs.IsInvalidArgument(err))
	})

	t.Run("undeclared record", func(t *testing.T) {
		_, err := ValueFromJSON(json.RawMessage(`[1]`), TypeRecordOf(9), jsonTestRecords, "p")
		require.True(t, errdefs.IsInvalidArgument(err))
	})
}

func TestValueToJSON_RoundTrip(t *testing.T) {
	tests := []struct {
		name     string
		value    IValue
		expected string
	}{
		{name: "bool", value: Bool(true), expected: `true`},
		{name: "s64", value: S64(-4), expected: `-4`},
		{name: "u64", value: U64(18446744073709551615), expected: `18446744073709551615`},
		{name: "f64", value: F64(10), expected: `10`},
		{name: "string", value: String("hi"), expected: `"hi"`},
		{name: "byte array as integers", value: ByteArray{0x13, 0x37}, expected: `[19,55]`},
		{
			name:     "array",
			value:    Array{Elem: TypeString, Values: []IValue{String("a"), String("b")}},
			expected: `["a","b"]`,
		},
		{
			name:     "record as object",
			value:    Record{ID: 0, Fields: []IValue{S32(1), S32(2)}},
			expected: `{"x":1,"y":2}`,
		},
	}

	for _, tt := range tests {
		tc := tt

		t.Run(tc.name, func(t *testing.T) {
			encoded, err := ValueToJSON(tc.value, jsonTestRecords)
			require.NoError(t, err)
			require.JSONEq(t, tc.expected, string(encoded))

			// decoding the encoding yields the value back
			decoded, err := ValueFromJSON(encoded, tc.value.Type(), jsonTestRecords, "")
			require.NoError(t, err)
			require.True(t, ValueEqual(tc.value, decoded), "expected %s, got %s", tc.value, decoded)
		})
	}
}

func TestResultsToJSON(t *testing.T) {
	single, err := ResultsToJSON([]IValue{String("ok")}, jsonTestRecords)
	require.NoError(t, err)
	require.JSONEq(t, `"ok"`, string(single))

	several, err := ResultsToJSON([]IValue{S32(1), S32(2)}, jsonTestRecords)
	require.NoError(t, err)
	require.JSONEq(t, `[1,2]`, string(several))

	none, err := ResultsToJSON(nil, jsonTestRecords)
	require.NoError(t, err)
	require.JSONEq(t, `[]`, string(none))
}
