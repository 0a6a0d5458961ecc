package itbinary

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"unicode/utf8"

	"github.com/tetratelabs/wit/api"
	"github.com/tetratelabs/wit/errdefs"
	"github.com/tetratelabs/wit/internal/leb128"
	"github.com/tetratelabs/wit/it"
)

// DecodeInterfaces decodes a section payload produced by EncodeInterfaces.
// Any malformation is reported as errdefs.DecodeError; an unrecognized
// adapter opcode as errdefs.UnknownInstructionError.
func DecodeInterfaces(data []byte) (*it.Interfaces, error) {
	r := bytes.NewReader(data)

	version, _, err := leb128.DecodeUint32(r)
	if err != nil {
		return nil, decodeErr("format version", err)
	}
	if version != FormatVersion {
		return nil, &errdefs.DecodeError{Reason: fmt.Sprintf("unsupported format version %d, expected %d", version, FormatVersion)}
	}

	ret := &it.Interfaces{}

	typeCount, _, err := leb128.DecodeUint32(r)
	if err != nil {
		return nil, decodeErr("type count", err)
	}
	for i := uint32(0); i < typeCount; i++ {
		t, err := decodeType(r)
		if err != nil {
			return nil, decodeErr(fmt.Sprintf("type %d", i), err)
		}
		ret.Types = append(ret.Types, t)
	}

	importCount, _, err := leb128.DecodeUint32(r)
	if err != nil {
		return nil, decodeErr("import count", err)
	}
	for i := uint32(0); i < importCount; i++ {
		imp, err := decodeImport(r)
		if err != nil {
			return nil, decodeErr(fmt.Sprintf("import %d", i), err)
		}
		ret.Imports = append(ret.Imports, imp)
	}

	adapterCount, _, err := leb128.DecodeUint32(r)
	if err != nil {
		return nil, decodeErr("adapter count", err)
	}
	for i := uint32(0); i < adapterCount; i++ {
		a, err := decodeAdapter(r)
		if err != nil {
			return nil, decodeErr(fmt.Sprintf("adapter %d", i), err)
		}
		ret.Adapters = append(ret.Adapters, a)
	}

	exportCount, _, err := leb128.DecodeUint32(r)
	if err != nil {
		return nil, decodeErr("export count", err)
	}
	for i := uint32(0); i < exportCount; i++ {
		name, err := decodeName(r)
		if err != nil {
			return nil, decodeErr(fmt.Sprintf("export %d name", i), err)
		}
		typeIndex, _, err := leb128.DecodeUint32(r)
		if err != nil {
			return nil, decodeErr(fmt.Sprintf("export %d type index", i), err)
		}
		ret.Exports = append(ret.Exports, &it.Export{Name: name, TypeIndex: typeIndex})
	}

	implCount, _, err := leb128.DecodeUint32(r)
	if err != nil {
		return nil, decodeErr("implementation count", err)
	}
	for i := uint32(0); i < implCount; i++ {
		core, _, err := leb128.DecodeUint32(r)
		if err != nil {
			return nil, decodeErr(fmt.Sprintf("implementation %d", i), err)
		}
		adapter, _, err := leb128.DecodeUint32(r)
		if err != nil {
			return nil, decodeErr(fmt.Sprintf("implementation %d", i), err)
		}
		ret.Implementations = append(ret.Implementations, &it.Implementation{
			CoreFunctionType:    core,
			AdapterFunctionType: adapter,
		})
	}

	if r.Len() != 0 {
		return nil, &errdefs.DecodeError{Reason: fmt.Sprintf("%d trailing bytes after implementations", r.Len())}
	}
	return ret, nil
}

func decodeType(r *bytes.Reader) (it.Type, error) {
	kind, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	switch kind {
	case typeKindFunction:
		argCount, _, err := leb128.DecodeUint32(r)
		if err != nil {
			return nil, err
		}
		var args []api.FunctionArg
		for i := uint32(0); i < argCount; i++ {
			name, err := decodeName(r)
			if err != nil {
				return nil, err
			}
			ty, err := decodeIType(r)
			if err != nil {
				return nil, err
			}
			args = append(args, api.FunctionArg{Name: name, Type: ty})
		}
		outCount, _, err := leb128.DecodeUint32(r)
		if err != nil {
			return nil, err
		}
		var outs []api.IType
		for i := uint32(0); i < outCount; i++ {
			ty, err := decodeIType(r)
			if err != nil {
				return nil, err
			}
			outs = append(outs, ty)
		}
		return &it.FunctionType{Arguments: args, Outputs: outs}, nil
	case typeKindRecord:
		name, err := decodeName(r)
		if err != nil {
			return nil, err
		}
		fieldCount, _, err := leb128.DecodeUint32(r)
		if err != nil {
			return nil, err
		}
		if fieldCount == 0 {
			return nil, fmt.Errorf("record %q has no fields", name)
		}
		var fields []api.RecordField
		for i := uint32(0); i < fieldCount; i++ {
			fname, err := decodeName(r)
			if err != nil {
				return nil, err
			}
			ty, err := decodeIType(r)
			if err != nil {
				return nil, err
			}
			fields = append(fields, api.RecordField{Name: fname, Type: ty})
		}
		return &it.RecordType{Name: name, Fields: fields}, nil
	default:
		return nil, fmt.Errorf("invalid type kind %#x", kind)
	}
}

func decodeImport(r *bytes.Reader) (*it.Import, error) {
	ns, err := decodeName(r)
	if err != nil {
		return nil, err
	}
	name, err := decodeName(r)
	if err != nil {
		return nil, err
	}
	typeIndex, _, err := leb128.DecodeUint32(r)
	if err != nil {
		return nil, err
	}
	return &it.Import{Namespace: ns, Name: name, TypeIndex: typeIndex}, nil
}

func decodeAdapter(r *bytes.Reader) (*it.Adapter, error) {
	typeIndex, _, err := leb128.DecodeUint32(r)
	if err != nil {
		return nil, err
	}
	instrCount, _, err := leb128.DecodeUint32(r)
	if err != nil {
		return nil, err
	}
	var instrs []it.Instruction
	for i := uint32(0); i < instrCount; i++ {
		instr, err := decodeInstruction(r)
		if err != nil {
			return nil, err
		}
		instrs = append(instrs, instr)
	}
	return &it.Adapter{TypeIndex: typeIndex, Instructions: instrs}, nil
}

func decodeInstruction(r *bytes.Reader) (it.Instruction, error) {
	op, err := r.ReadByte()
	if err != nil {
		return it.Instruction{}, err
	}
	instr := it.Instruction{Op: it.Opcode(op)}
	switch instr.Op {
	case it.OpArgumentGet, it.OpCallCore:
		instr.Index, _, err = leb128.DecodeUint32(r)
	case it.OpArrayLiftMemory, it.OpArrayLowerMemory:
		instr.Type, err = decodeIType(r)
	case it.OpRecordLiftMemory, it.OpRecordLowerMemory, it.OpRecordLift, it.OpRecordLower:
		instr.RecordID, _, err = leb128.DecodeUint64(r)
	case it.OpBoolFromI32, it.OpS8FromI32, it.OpS16FromI32, it.OpS32FromI32, it.OpS64FromI64,
		it.OpU8FromI32, it.OpU16FromI32, it.OpU32FromI32, it.OpU64FromI64,
		it.OpF32FromF64, it.OpF64FromF32,
		it.OpI32FromBool, it.OpI32FromS8, it.OpI32FromS16, it.OpI32FromS32, it.OpI64FromS64,
		it.OpI32FromU8, it.OpI32FromU16, it.OpI32FromU32, it.OpI64FromU64,
		it.OpStringLiftMemory, it.OpStringLowerMemory,
		it.OpByteArrayLiftMemory, it.OpByteArrayLowerMemory,
		it.OpDup, it.OpSwap:
		// no operands
	default:
		return it.Instruction{}, &errdefs.UnknownInstructionError{Opcode: op}
	}
	return instr, err
}

func decodeIType(r *bytes.Reader) (api.IType, error) {
	tag, err := r.ReadByte()
	if err != nil {
		return api.IType{}, err
	}
	switch tag {
	case tagBool:
		return api.TypeBool, nil
	case tagS8:
		return api.TypeS8, nil
	case tagS16:
		return api.TypeS16, nil
	case tagS32:
		return api.TypeS32, nil
	case tagS64:
		return api.TypeS64, nil
	case tagU8:
		return api.TypeU8, nil
	case tagU16:
		return api.TypeU16, nil
	case tagU32:
		return api.TypeU32, nil
	case tagU64:
		return api.TypeU64, nil
	case tagF32:
		return api.TypeF32, nil
	case tagF64:
		return api.TypeF64, nil
	case tagString:
		return api.TypeString, nil
	case tagByteArray:
		return api.TypeByteArray, nil
	case tagArray:
		elem, err := decodeIType(r)
		if err != nil {
			return api.IType{}, err
		}
		return api.TypeArrayOf(elem), nil
	case tagRecord:
		id, _, err := leb128.DecodeUint64(r)
		if err != nil {
			return api.IType{}, err
		}
		return api.TypeRecordOf(id), nil
	case tagAnyRef:
		return api.TypeAnyRef, nil
	case tagI32:
		return api.TypeI32, nil
	case tagI64:
		return api.TypeI64, nil
	default:
		return api.IType{}, fmt.Errorf("invalid itype tag %#x", tag)
	}
}

func decodeName(r *bytes.Reader) (string, error) {
	size, _, err := leb128.DecodeUint32(r)
	if err != nil {
		return "", err
	}
	buf := make([]byte, size)
	if _, err = io.ReadFull(r, buf); err != nil {
		return "", err
	}
	if !utf8.Valid(buf) {
		return "", fmt.Errorf("name %#x isn't valid utf-8", buf)
	}
	return string(buf), nil
}

// decodeErr wraps a low-level failure with where it happened, keeping
// UnknownInstructionError intact so callers can classify it.
func decodeErr(at string, err error) error {
	var unknown *errdefs.UnknownInstructionError
	if errors.As(err, &unknown) {
		return err
	}
	return &errdefs.DecodeError{Reason: at, Err: err}
}
