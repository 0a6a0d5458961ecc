package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"

	"github.com/tetratelabs/wit/errdefs"
)

// ArgsFromJSON decodes a JSON argument payload against a declared signature.
//
// The payload is either a JSON object keyed by argument name, or a JSON array
// in argument position order. null, {} and [] are all equivalent to the empty
// argument vector.
func ArgsFromJSON(data []byte, args []FunctionArg, records RecordResolver) ([]IValue, error) {
	raws, err := rawArgs(data, args)
	if err != nil {
		return nil, err
	}
	values := make([]IValue, len(args))
	for i, arg := range args {
		v, err := ValueFromJSON(raws[i], arg.Type, records, arg.Name)
		if err != nil {
			return nil, err
		}
		values[i] = v
	}
	return values, nil
}

func rawArgs(data []byte, args []FunctionArg) ([]json.RawMessage, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		data = []byte("{}")
	}
	switch data[0] {
	case '{':
		var byName map[string]json.RawMessage
		if err := json.Unmarshal(data, &byName); err != nil {
			return nil, &errdefs.InvalidArgumentError{Reason: err.Error()}
		}
		if len(byName) == 0 && len(args) == 0 {
			return nil, nil
		}
		raws := make([]json.RawMessage, len(args))
		for i, arg := range args {
			raw, ok := byName[arg.Name]
			if !ok {
				return nil, &errdefs.InvalidArgumentError{Path: arg.Name, Reason: "missing argument"}
			}
			raws[i] = raw
		}
		if len(byName) != len(args) {
			return nil, &errdefs.InvalidArgumentError{Reason: fmt.Sprintf("expected %d arguments, got %d", len(args), len(byName))}
		}
		return raws, nil
	case '[':
		var byPos []json.RawMessage
		if err := json.Unmarshal(data, &byPos); err != nil {
			return nil, &errdefs.InvalidArgumentError{Reason: err.Error()}
		}
		if len(byPos) != len(args) {
			return nil, &errdefs.InvalidArgumentError{Reason: fmt.Sprintf("expected %d arguments, got %d", len(args), len(byPos))}
		}
		return byPos, nil
	default:
		return nil, &errdefs.InvalidArgumentError{Reason: "arguments must be a JSON object or array"}
	}
}

// ValueFromJSON decodes one JSON value against an IType. path is the
// breadcrumb reported on mismatch.
func ValueFromJSON(raw json.RawMessage, ty IType, records RecordResolver, path string) (IValue, error) {
	switch ty.Kind() {
	case KindBool:
		var b bool
		if err := json.Unmarshal(raw, &b); err != nil {
			return nil, invalidArg(path, "expected a boolean")
		}
		return Bool(b), nil
	case KindS8:
		n, err := jsonInt(raw, path, math.MinInt8, math.MaxInt8)
		return S8(n), err
	case KindS16:
		n, err := jsonInt(raw, path, math.MinInt16, math.MaxInt16)
		return S16(n), err
	case KindS32:
		n, err := jsonInt(raw, path, math.MinInt32, math.MaxInt32)
		return S32(n), err
	case KindS64:
		n, err := jsonInt(raw, path, math.MinInt64, math.MaxInt64)
		return S64(n), err
	case KindU8:
		n, err := jsonUint(raw, path, math.MaxUint8)
		return U8(n), err
	case KindU16:
		n, err := jsonUint(raw, path, math.MaxUint16)
		return U16(n), err
	case KindU32:
		n, err := jsonUint(raw, path, math.MaxUint32)
		return U32(n), err
	case KindU64:
		n, err := jsonUint(raw, path, math.MaxUint64)
		return U64(n), err
	case KindF32:
		f, err := jsonFloat(raw, path)
		return F32(f), err
	case KindF64:
		f, err := jsonFloat(raw, path)
		return F64(f), err
	case KindString:
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, invalidArg(path, "expected a string")
		}
		return String(s), nil
	case KindByteArray:
		return byteArrayFromJSON(raw, path)
	case KindArray:
		return arrayFromJSON(raw, ty.Elem(), records, path)
	case KindRecord:
		return recordFromJSON(raw, ty.RecordID(), records, path)
	default:
		return nil, invalidArg(path, fmt.Sprintf("type %s has no JSON representation", ty))
	}
}

func byteArrayFromJSON(raw json.RawMessage, path string) (IValue, error) {
	var elems []json.RawMessage
	if err := json.Unmarshal(raw, &elems); err != nil {
		return nil, invalidArg(path, "expected an array of bytes")
	}
	out := make(ByteArray, len(elems))
	for i, e := range elems {
		n, err := jsonUint(e, elemPath(path, i), math.MaxUint8)
		if err != nil {
			return nil, err
		}
		out[i] = byte(n)
	}
	return out, nil
}

func arrayFromJSON(raw json.RawMessage, elem IType, records RecordResolver, path string) (IValue, error) {
	var elems []json.RawMessage
	if err := json.Unmarshal(raw, &elems); err != nil {
		return nil, invalidArg(path, "expected an array")
	}
	values := make([]IValue, len(elems))
	for i, e := range elems {
		v, err := ValueFromJSON(e, elem, records, elemPath(path, i))
		if err != nil {
			return nil, err
		}
		values[i] = v
	}
	return Array{Elem: elem, Values: values}, nil
}

// recordFromJSON accepts either an object with the exact field names or a
// positional array of the exact arity.
func recordFromJSON(raw json.RawMessage, id uint64, records RecordResolver, path string) (IValue, error) {
	rt, ok := records.ResolveRecord(id)
	if !ok {
		return nil, invalidArg(path, fmt.Sprintf("record %d isn't declared by the module", id))
	}

	trimmed := bytes.TrimSpace(raw)
	var raws []json.RawMessage
	switch {
	case len(trimmed) > 0 && trimmed[0] == '{':
		var byName map[string]json.RawMessage
		if err := json.Unmarshal(raw, &byName); err != nil {
			return nil, invalidArg(path, err.Error())
		}
		if len(byName) != len(rt.Fields) {
			return nil, invalidArg(path, fmt.Sprintf("expected %d fields, got %d", len(rt.Fields), len(byName)))
		}
		raws = make([]json.RawMessage, len(rt.Fields))
		for i, f := range rt.Fields {
			fr, ok := byName[f.Name]
			if !ok {
				return nil, invalidArg(fieldPath(path, f.Name), "missing field")
			}
			raws[i] = fr
		}
	case len(trimmed) > 0 && trimmed[0] == '[':
		if err := json.Unmarshal(raw, &raws); err != nil {
			return nil, invalidArg(path, err.Error())
		}
		if len(raws) != len(rt.Fields) {
			return nil, invalidArg(path, fmt.Sprintf("expected %d fields, got %d", len(rt.Fields), len(raws)))
		}
	default:
		return nil, invalidArg(path, "expected an object or an array for a record")
	}

	fields := make([]IValue, len(rt.Fields))
	for i, f := range rt.Fields {
		v, err := ValueFromJSON(raws[i], f.Type, records, fieldPath(path, f.Name))
		if err != nil {
			return nil, err
		}
		fields[i] = v
	}
	rec, err := NewRecord(id, fields)
	if err != nil {
		return nil, invalidArg(path, err.Error())
	}
	return rec, nil
}

// ResultsToJSON encodes call results. A single result encodes as its value,
// anything else as a JSON array.
func ResultsToJSON(results []IValue, records RecordResolver) (json.RawMessage, error) {
	if len(results) == 1 {
		return ValueToJSON(results[0], records)
	}
	encoded := make([]json.RawMessage, len(results))
	for i, v := range results {
		e, err := ValueToJSON(v, records)
		if err != nil {
			return nil, err
		}
		encoded[i] = e
	}
	return json.Marshal(encoded)
}

// ValueToJSON encodes one value. Records encode as objects keyed by declared
// field name, byte arrays as arrays of integers.
func ValueToJSON(v IValue, records RecordResolver) (json.RawMessage, error) {
	switch val := v.(type) {
	case Bool:
		return json.Marshal(bool(val))
	case S8:
		return json.Marshal(int8(val))
	case S16:
		return json.Marshal(int16(val))
	case S32:
		return json.Marshal(int32(val))
	case S64:
		return json.Marshal(int64(val))
	case U8:
		return json.Marshal(uint8(val))
	case U16:
		return json.Marshal(uint16(val))
	case U32:
		return json.Marshal(uint32(val))
	case U64:
		return json.Marshal(uint64(val))
	case F32:
		return json.Marshal(float32(val))
	case F64:
		return json.Marshal(float64(val))
	case String:
		return json.Marshal(string(val))
	case ByteArray:
		ints := make([]uint16, len(val))
		for i, b := range val {
			ints[i] = uint16(b)
		}
		return json.Marshal(ints)
	case Array:
		encoded := make([]json.RawMessage, len(val.Values))
		for i, e := range val.Values {
			enc, err := ValueToJSON(e, records)
			if err != nil {
				return nil, err
			}
			encoded[i] = enc
		}
		return json.Marshal(encoded)
	case Record:
		rt, ok := records.ResolveRecord(val.ID)
		if !ok || len(rt.Fields) != len(val.Fields) {
			return nil, fmt.Errorf("record %d doesn't match its declaration", val.ID)
		}
		var buf bytes.Buffer
		buf.WriteByte('{')
		for i, f := range rt.Fields {
			if i > 0 {
				buf.WriteByte(',')
			}
			name, _ := json.Marshal(f.Name)
			buf.Write(name)
			buf.WriteByte(':')
			enc, err := ValueToJSON(val.Fields[i], records)
			if err != nil {
				return nil, err
			}
			buf.Write(enc)
		}
		buf.WriteByte('}')
		return buf.Bytes(), nil
	default:
		return nil, fmt.Errorf("value %s has no JSON representation", v)
	}
}

func jsonInt(raw json.RawMessage, path string, min, max int64) (int64, error) {
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return 0, invalidArg(path, "expected an integer")
	}
	i, err := n.Int64()
	if err != nil {
		return 0, invalidArg(path, "expected an integer")
	}
	if i < min || i > max {
		return 0, invalidArg(path, fmt.Sprintf("%d is out of range [%d, %d]", i, min, max))
	}
	return i, nil
}

func jsonUint(raw json.RawMessage, path string, max uint64) (uint64, error) {
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return 0, invalidArg(path, "expected an unsigned integer")
	}
	u, err := strconv.ParseUint(n.String(), 10, 64)
	if err != nil {
		return 0, invalidArg(path, "expected an unsigned integer")
	}
	if u > max {
		return 0, invalidArg(path, fmt.Sprintf("%d is out of range [0, %d]", u, max))
	}
	return u, nil
}

func jsonFloat(raw json.RawMessage, path string) (float64, error) {
	var f float64
	if err := json.Unmarshal(raw, &f); err != nil {
		return 0, invalidArg(path, "expected a number")
	}
	return f, nil
}

func invalidArg(path, reason string) error {
	return &errdefs.InvalidArgumentError{Path: path, Reason: reason}
}

func elemPath(path string, i int) string {
	return fmt.Sprintf("%s[%d]", path, i)
}

func fieldPath(path, field string) string {
	if path == "" {
		return field
	}
	return path + "." + field
}
