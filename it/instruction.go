package it

import (
	"fmt"

	"github.com/tetratelabs/wit/api"
)

// Opcode identifies one adapter instruction. The values are part of the wire
// format and must not be renumbered.
type Opcode byte

const (
	OpArgumentGet Opcode = 0x00
	OpCallCore    Opcode = 0x01

	// Lift casts: core scalar to typed value, trapping on overflow.
	OpBoolFromI32 Opcode = 0x02
	OpS8FromI32   Opcode = 0x03
	OpS16FromI32  Opcode = 0x04
	OpS32FromI32  Opcode = 0x05
	OpS64FromI64  Opcode = 0x06
	OpU8FromI32   Opcode = 0x07
	OpU16FromI32  Opcode = 0x08
	OpU32FromI32  Opcode = 0x09
	OpU64FromI64  Opcode = 0x0a
	OpF32FromF64  Opcode = 0x0b
	OpF64FromF32  Opcode = 0x0c

	// Lower casts: typed value to core scalar. Sign is bit-preserved; range
	// validation happened on the typed side.
	OpI32FromBool Opcode = 0x0d
	OpI32FromS8   Opcode = 0x0e
	OpI32FromS16  Opcode = 0x0f
	OpI32FromS32  Opcode = 0x10
	OpI64FromS64  Opcode = 0x11
	OpI32FromU8   Opcode = 0x12
	OpI32FromU16  Opcode = 0x13
	OpI32FromU32  Opcode = 0x14
	OpI64FromU64  Opcode = 0x15

	OpStringLiftMemory     Opcode = 0x16
	OpStringLowerMemory    Opcode = 0x17
	OpByteArrayLiftMemory  Opcode = 0x18
	OpByteArrayLowerMemory Opcode = 0x19
	OpArrayLiftMemory      Opcode = 0x1a
	OpArrayLowerMemory     Opcode = 0x1b
	OpRecordLiftMemory     Opcode = 0x1c
	OpRecordLowerMemory    Opcode = 0x1d

	// RecordLift assembles a record from its fields on the stack; RecordLower
	// explodes a record back into fields. These never touch memory.
	OpRecordLift  Opcode = 0x1e
	OpRecordLower Opcode = 0x1f

	OpDup  Opcode = 0x20
	OpSwap Opcode = 0x21
)

// Instruction is one adapter instruction. Operand fields are meaningful only
// for the opcodes that declare them.
type Instruction struct {
	Op Opcode

	// Index is the argument index for OpArgumentGet and the core function
	// index for OpCallCore.
	Index uint32

	// Type is the element type for OpArrayLiftMemory / OpArrayLowerMemory.
	Type api.IType

	// RecordID is the record table index for the record opcodes.
	RecordID uint64
}

// ArgumentGet pushes caller argument i.
func ArgumentGet(i uint32) Instruction { return Instruction{Op: OpArgumentGet, Index: i} }

// CallCore invokes the function at index i of the core function index space
// (imports first, then exports).
func CallCore(i uint32) Instruction { return Instruction{Op: OpCallCore, Index: i} }

// ArrayLiftMemory lifts a homogenous array of elem from (offset, count).
func ArrayLiftMemory(elem api.IType) Instruction {
	return Instruction{Op: OpArrayLiftMemory, Type: elem}
}

// ArrayLowerMemory lowers a homogenous array of elem to (offset, count).
func ArrayLowerMemory(elem api.IType) Instruction {
	return Instruction{Op: OpArrayLowerMemory, Type: elem}
}

// RecordLiftMemory lifts the record declared at id from an offset.
func RecordLiftMemory(id uint64) Instruction {
	return Instruction{Op: OpRecordLiftMemory, RecordID: id}
}

// RecordLowerMemory lowers the record declared at id to an offset.
func RecordLowerMemory(id uint64) Instruction {
	return Instruction{Op: OpRecordLowerMemory, RecordID: id}
}

// RecordLift assembles the record declared at id from field values on the
// stack, pushed in declaration order.
func RecordLift(id uint64) Instruction { return Instruction{Op: OpRecordLift, RecordID: id} }

// RecordLower explodes a record into its field values, leaving the last
// field on top.
func RecordLower(id uint64) Instruction { return Instruction{Op: OpRecordLower, RecordID: id} }

func (i Instruction) String() string {
	switch i.Op {
	case OpArgumentGet:
		return fmt.Sprintf("arg.get %d", i.Index)
	case OpCallCore:
		return fmt.Sprintf("call-core %d", i.Index)
	case OpArrayLiftMemory:
		return fmt.Sprintf("array.lift_memory %s", i.Type)
	case OpArrayLowerMemory:
		return fmt.Sprintf("array.lower_memory %s", i.Type)
	case OpRecordLiftMemory:
		return fmt.Sprintf("record.lift_memory %d", i.RecordID)
	case OpRecordLowerMemory:
		return fmt.Sprintf("record.lower_memory %d", i.RecordID)
	case OpRecordLift:
		return fmt.Sprintf("record.lift %d", i.RecordID)
	case OpRecordLower:
		return fmt.Sprintf("record.lower %d", i.RecordID)
	default:
		if name, ok := opcodeNames[i.Op]; ok {
			return name
		}
		return fmt.Sprintf("unknown(%#x)", byte(i.Op))
	}
}

var opcodeNames = map[Opcode]string{
	OpBoolFromI32:          "bool.from_i32",
	OpS8FromI32:            "s8.from_i32",
	OpS16FromI32:           "s16.from_i32",
	OpS32FromI32:           "s32.from_i32",
	OpS64FromI64:           "s64.from_i64",
	OpU8FromI32:            "u8.from_i32",
	OpU16FromI32:           "u16.from_i32",
	OpU32FromI32:           "u32.from_i32",
	OpU64FromI64:           "u64.from_i64",
	OpF32FromF64:           "f32.from_f64",
	OpF64FromF32:           "f64.from_f32",
	OpI32FromBool:          "i32.from_bool",
	OpI32FromS8:            "i32.from_s8",
	OpI32FromS16:           "i32.from_s16",
	OpI32FromS32:           "i32.from_s32",
	OpI64FromS64:           "i64.from_s64",
	OpI32FromU8:            "i32.from_u8",
	OpI32FromU16:           "i32.from_u16",
	OpI32FromU32:           "i32.from_u32",
	OpI64FromU64:           "i64.from_u64",
	OpStringLiftMemory:     "string.lift_memory",
	OpStringLowerMemory:    "string.lower_memory",
	OpByteArrayLiftMemory:  "byte_array.lift_memory",
	OpByteArrayLowerMemory: "byte_array.lower_memory",
	OpDup:                  "dup",
	OpSwap:                 "swap",
}
