// Package itbinary implements the versioned wire format of the
// interface-types custom section. All lengths and indices are unsigned
// leb128, names are length-prefixed UTF-8, and the section head carries a
// leb128 format version.
package itbinary

import (
	"bytes"

	"github.com/tetratelabs/wit/api"
	"github.com/tetratelabs/wit/internal/leb128"
	"github.com/tetratelabs/wit/it"
)

// SectionName is the conventional custom section name carrying this format.
const SectionName = "interface-types"

// FormatVersion is the current wire format version, the first leb128 of the
// section payload.
const FormatVersion uint32 = 1

// Type table entry kinds.
const (
	typeKindFunction byte = 0x00
	typeKindRecord   byte = 0x01
)

// IType wire tags.
const (
	tagBool      byte = 0x00
	tagS8        byte = 0x01
	tagS16       byte = 0x02
	tagS32       byte = 0x03
	tagS64       byte = 0x04
	tagU8        byte = 0x05
	tagU16       byte = 0x06
	tagU32       byte = 0x07
	tagU64       byte = 0x08
	tagF32       byte = 0x09
	tagF64       byte = 0x0a
	tagString    byte = 0x0b
	tagByteArray byte = 0x0c
	tagArray     byte = 0x0d
	tagRecord    byte = 0x0e
	tagAnyRef    byte = 0x0f
	tagI32       byte = 0x10
	tagI64       byte = 0x11
)

// EncodeInterfaces encodes the AST into the section payload. Encode is the
// inverse of DecodeInterfaces on well-formed inputs.
func EncodeInterfaces(i *it.Interfaces) []byte {
	var buf bytes.Buffer
	buf.Write(leb128.EncodeUint32(FormatVersion))

	buf.Write(leb128.EncodeUint32(uint32(len(i.Types))))
	for _, t := range i.Types {
		encodeType(&buf, t)
	}

	buf.Write(leb128.EncodeUint32(uint32(len(i.Imports))))
	for _, imp := range i.Imports {
		encodeName(&buf, imp.Namespace)
		encodeName(&buf, imp.Name)
		buf.Write(leb128.EncodeUint32(imp.TypeIndex))
	}

	buf.Write(leb128.EncodeUint32(uint32(len(i.Adapters))))
	for _, a := range i.Adapters {
		buf.Write(leb128.EncodeUint32(a.TypeIndex))
		buf.Write(leb128.EncodeUint32(uint32(len(a.Instructions))))
		for _, instr := range a.Instructions {
			encodeInstruction(&buf, instr)
		}
	}

	buf.Write(leb128.EncodeUint32(uint32(len(i.Exports))))
	for _, e := range i.Exports {
		encodeName(&buf, e.Name)
		buf.Write(leb128.EncodeUint32(e.TypeIndex))
	}

	buf.Write(leb128.EncodeUint32(uint32(len(i.Implementations))))
	for _, impl := range i.Implementations {
		buf.Write(leb128.EncodeUint32(impl.CoreFunctionType))
		buf.Write(leb128.EncodeUint32(impl.AdapterFunctionType))
	}

	return buf.Bytes()
}

func encodeType(buf *bytes.Buffer, t it.Type) {
	switch tt := t.(type) {
	case *it.FunctionType:
		buf.WriteByte(typeKindFunction)
		buf.Write(leb128.EncodeUint32(uint32(len(tt.Arguments))))
		for _, arg := range tt.Arguments {
			encodeName(buf, arg.Name)
			encodeIType(buf, arg.Type)
		}
		buf.Write(leb128.EncodeUint32(uint32(len(tt.Outputs))))
		for _, out := range tt.Outputs {
			encodeIType(buf, out)
		}
	case *it.RecordType:
		buf.WriteByte(typeKindRecord)
		encodeName(buf, tt.Name)
		buf.Write(leb128.EncodeUint32(uint32(len(tt.Fields))))
		for _, f := range tt.Fields {
			encodeName(buf, f.Name)
			encodeIType(buf, f.Type)
		}
	}
}

func encodeIType(buf *bytes.Buffer, t api.IType) {
	switch t.Kind() {
	case api.KindBool:
		buf.WriteByte(tagBool)
	case api.KindS8:
		buf.WriteByte(tagS8)
	case api.KindS16:
		buf.WriteByte(tagS16)
	case api.KindS32:
		buf.WriteByte(tagS32)
	case api.KindS64:
		buf.WriteByte(tagS64)
	case api.KindU8:
		buf.WriteByte(tagU8)
	case api.KindU16:
		buf.WriteByte(tagU16)
	case api.KindU32:
		buf.WriteByte(tagU32)
	case api.KindU64:
		buf.WriteByte(tagU64)
	case api.KindF32:
		buf.WriteByte(tagF32)
	case api.KindF64:
		buf.WriteByte(tagF64)
	case api.KindString:
		buf.WriteByte(tagString)
	case api.KindByteArray:
		buf.WriteByte(tagByteArray)
	case api.KindArray:
		buf.WriteByte(tagArray)
		encodeIType(buf, t.Elem())
	case api.KindRecord:
		buf.WriteByte(tagRecord)
		buf.Write(leb128.EncodeUint64(t.RecordID()))
	case api.KindAnyRef:
		buf.WriteByte(tagAnyRef)
	case api.KindI32:
		buf.WriteByte(tagI32)
	case api.KindI64:
		buf.WriteByte(tagI64)
	}
}

func encodeInstruction(buf *bytes.Buffer, instr it.Instruction) {
	buf.WriteByte(byte(instr.Op))
	switch instr.Op {
	case it.OpArgumentGet, it.OpCallCore:
		buf.Write(leb128.EncodeUint32(instr.Index))
	case it.OpArrayLiftMemory, it.OpArrayLowerMemory:
		encodeIType(buf, instr.Type)
	case it.OpRecordLiftMemory, it.OpRecordLowerMemory, it.OpRecordLift, it.OpRecordLower:
		buf.Write(leb128.EncodeUint64(instr.RecordID))
	}
}

func encodeName(buf *bytes.Buffer, name string) {
	buf.Write(leb128.EncodeUint32(uint32(len(name))))
	buf.WriteString(name)
}
