// Package interpreter executes adapter instruction sequences: a small stack
// machine over IValues with access to the owning module's memory, its core
// function index space and its record table.
package interpreter

import (
	"context"
	"fmt"
	"math"

	"github.com/tetratelabs/wit/api"
	"github.com/tetratelabs/wit/errdefs"
	"github.com/tetratelabs/wit/internal/memview"
	"github.com/tetratelabs/wit/internal/values"
	"github.com/tetratelabs/wit/it"
)

// CoreFunction is one entry of a module's core function index space. An
// export-backed entry consumes and produces raw core scalars; an
// import-backed entry consumes and produces typed values.
type CoreFunction interface {
	// Arity reports how many stack operands Call consumes.
	Arity() int
	// Call consumes operands popped from the stack (in push order) and
	// returns the values to push back.
	Call(ctx context.Context, args []api.IValue) ([]api.IValue, error)
}

// Instance is what an adapter run needs from its owning module.
type Instance interface {
	api.RecordResolver

	// MemoryView returns the module's linear memory.
	MemoryView() *memview.View
	// Allocate obtains guest memory through the module's allocate export.
	Allocate(ctx context.Context, size, align uint32) (uint32, error)
	// CoreFunction resolves an index of the core function index space:
	// imports first, then exports.
	CoreFunction(idx uint32) (CoreFunction, bool)
}

// Run executes one adapter over the caller-supplied arguments and returns
// whatever remains on the stack, bottom first. On any error the stack is
// discarded and the error surfaces unchanged.
func Run(ctx context.Context, inst Instance, instrs []it.Instruction, args []api.IValue) ([]api.IValue, error) {
	mem := inst.MemoryView()
	alloc := func(size, align uint32) (uint32, error) {
		return inst.Allocate(ctx, size, align)
	}

	var s stack
	for _, instr := range instrs {
		if err := step(ctx, inst, mem, alloc, &s, instr, args); err != nil {
			return nil, err
		}
	}
	return s.values, nil
}

func step(ctx context.Context, inst Instance, mem *memview.View, alloc values.Allocator, s *stack, instr it.Instruction, args []api.IValue) error {
	switch instr.Op {
	case it.OpArgumentGet:
		if instr.Index >= uint32(len(args)) {
			return &errdefs.InvalidArgumentError{
				Path:   fmt.Sprintf("argument %d", instr.Index),
				Reason: fmt.Sprintf("only %d arguments were supplied", len(args)),
			}
		}
		s.push(args[instr.Index])
		return nil

	case it.OpCallCore:
		fn, ok := inst.CoreFunction(instr.Index)
		if !ok {
			return &errdefs.NoSuchFunctionError{Name: fmt.Sprintf("core function %d", instr.Index)}
		}
		operands, err := s.popN(fn.Arity())
		if err != nil {
			return err
		}
		results, err := fn.Call(ctx, operands)
		if err != nil {
			return err
		}
		for _, r := range results {
			s.push(r)
		}
		return nil

	case it.OpBoolFromI32:
		v, err := popI32(s, instr)
		if err != nil {
			return err
		}
		s.push(api.Bool(v != 0))
		return nil
	case it.OpS8FromI32:
		v, err := popI32(s, instr)
		if err != nil {
			return err
		}
		if v < math.MinInt8 || v > math.MaxInt8 {
			return castOverflow(instr, v)
		}
		s.push(api.S8(v))
		return nil
	case it.OpS16FromI32:
		v, err := popI32(s, instr)
		if err != nil {
			return err
		}
		if v < math.MinInt16 || v > math.MaxInt16 {
			return castOverflow(instr, v)
		}
		s.push(api.S16(v))
		return nil
	case it.OpS32FromI32:
		v, err := popI32(s, instr)
		if err != nil {
			return err
		}
		s.push(api.S32(v))
		return nil
	case it.OpS64FromI64:
		v, err := popI64(s, instr)
		if err != nil {
			return err
		}
		s.push(api.S64(v))
		return nil
	case it.OpU8FromI32:
		v, err := popI32(s, instr)
		if err != nil {
			return err
		}
		if uint32(v) > math.MaxUint8 {
			return castOverflow(instr, v)
		}
		s.push(api.U8(v))
		return nil
	case it.OpU16FromI32:
		v, err := popI32(s, instr)
		if err != nil {
			return err
		}
		if uint32(v) > math.MaxUint16 {
			return castOverflow(instr, v)
		}
		s.push(api.U16(v))
		return nil
	case it.OpU32FromI32:
		// bit-preserving reinterpretation
		v, err := popI32(s, instr)
		if err != nil {
			return err
		}
		s.push(api.U32(uint32(v)))
		return nil
	case it.OpU64FromI64:
		v, err := popI64(s, instr)
		if err != nil {
			return err
		}
		s.push(api.U64(uint64(v)))
		return nil
	case it.OpF32FromF64:
		v, err := popValue(s)
		if err != nil {
			return err
		}
		f, ok := v.(api.F64)
		if !ok {
			return stackTypeMismatch(instr, "f64", v)
		}
		if !math.IsInf(float64(f), 0) && math.Abs(float64(f)) > math.MaxFloat32 {
			return &errdefs.CastOverflowError{From: "f64", To: "f32", Value: fmt.Sprintf("%g", float64(f))}
		}
		s.push(api.F32(float32(f)))
		return nil
	case it.OpF64FromF32:
		v, err := popValue(s)
		if err != nil {
			return err
		}
		f, ok := v.(api.F32)
		if !ok {
			return stackTypeMismatch(instr, "f32", v)
		}
		s.push(api.F64(float64(f)))
		return nil

	case it.OpI32FromBool:
		v, err := popValue(s)
		if err != nil {
			return err
		}
		b, ok := v.(api.Bool)
		if !ok {
			return stackTypeMismatch(instr, "bool", v)
		}
		if b {
			s.push(api.I32(1))
		} else {
			s.push(api.I32(0))
		}
		return nil
	case it.OpI32FromS8:
		return lowerCastI32(s, instr, func(v api.IValue) (int32, bool) {
			n, ok := v.(api.S8)
			return int32(n), ok
		})
	case it.OpI32FromS16:
		return lowerCastI32(s, instr, func(v api.IValue) (int32, bool) {
			n, ok := v.(api.S16)
			return int32(n), ok
		})
	case it.OpI32FromS32:
		return lowerCastI32(s, instr, func(v api.IValue) (int32, bool) {
			n, ok := v.(api.S32)
			return int32(n), ok
		})
	case it.OpI32FromU8:
		return lowerCastI32(s, instr, func(v api.IValue) (int32, bool) {
			n, ok := v.(api.U8)
			return int32(uint32(n)), ok
		})
	case it.OpI32FromU16:
		return lowerCastI32(s, instr, func(v api.IValue) (int32, bool) {
			n, ok := v.(api.U16)
			return int32(uint32(n)), ok
		})
	case it.OpI32FromU32:
		return lowerCastI32(s, instr, func(v api.IValue) (int32, bool) {
			n, ok := v.(api.U32)
			return int32(uint32(n)), ok
		})
	case it.OpI64FromS64:
		return lowerCastI64(s, instr, func(v api.IValue) (int64, bool) {
			n, ok := v.(api.S64)
			return int64(n), ok
		})
	case it.OpI64FromU64:
		return lowerCastI64(s, instr, func(v api.IValue) (int64, bool) {
			n, ok := v.(api.U64)
			return int64(uint64(n)), ok
		})

	case it.OpStringLiftMemory:
		offset, size, err := popPair(s, instr)
		if err != nil {
			return err
		}
		str, err := values.LiftString(mem, offset, size)
		if err != nil {
			return err
		}
		s.push(str)
		return nil
	case it.OpStringLowerMemory:
		v, err := popValue(s)
		if err != nil {
			return err
		}
		str, ok := v.(api.String)
		if !ok {
			return stackTypeMismatch(instr, "string", v)
		}
		offset, size, err := values.LowerString(mem, alloc, str)
		if err != nil {
			return err
		}
		s.push(api.I32(offset))
		s.push(api.I32(size))
		return nil
	case it.OpByteArrayLiftMemory:
		offset, size, err := popPair(s, instr)
		if err != nil {
			return err
		}
		b, err := values.LiftBytes(mem, offset, size)
		if err != nil {
			return err
		}
		s.push(b)
		return nil
	case it.OpByteArrayLowerMemory:
		v, err := popValue(s)
		if err != nil {
			return err
		}
		b, ok := v.(api.ByteArray)
		if !ok {
			return stackTypeMismatch(instr, "byte_array", v)
		}
		offset, size, err := values.LowerBytes(mem, alloc, b)
		if err != nil {
			return err
		}
		s.push(api.I32(offset))
		s.push(api.I32(size))
		return nil
	case it.OpArrayLiftMemory:
		offset, count, err := popPair(s, instr)
		if err != nil {
			return err
		}
		a, err := values.LiftArray(mem, inst, instr.Type, offset, count)
		if err != nil {
			return err
		}
		s.push(a)
		return nil
	case it.OpArrayLowerMemory:
		v, err := popValue(s)
		if err != nil {
			return err
		}
		a, ok := v.(api.Array)
		if !ok {
			return stackTypeMismatch(instr, api.TypeArrayOf(instr.Type).String(), v)
		}
		offset, count, err := values.LowerArray(mem, alloc, inst, instr.Type, a)
		if err != nil {
			return err
		}
		s.push(api.I32(offset))
		s.push(api.I32(count))
		return nil
	case it.OpRecordLiftMemory:
		v, err := popValue(s)
		if err != nil {
			return err
		}
		offset, ok := v.(api.I32)
		if !ok {
			return stackTypeMismatch(instr, "i32", v)
		}
		r, err := values.LiftRecord(mem, inst, instr.RecordID, uint32(offset))
		if err != nil {
			return err
		}
		s.push(r)
		return nil
	case it.OpRecordLowerMemory:
		r, err := popRecord(s, instr)
		if err != nil {
			return err
		}
		offset, err := values.LowerRecord(mem, alloc, inst, instr.RecordID, r)
		if err != nil {
			return err
		}
		s.push(api.I32(offset))
		return nil

	case it.OpRecordLift:
		rt, ok := inst.ResolveRecord(instr.RecordID)
		if !ok {
			return &errdefs.TypeMismatchError{
				Expected: "a declared record",
				Got:      fmt.Sprintf("record id %d", instr.RecordID),
				At:       instr.String(),
			}
		}
		fields, err := s.popN(len(rt.Fields))
		if err != nil {
			return err
		}
		for i, f := range rt.Fields {
			if !f.Type.Equal(fields[i].Type()) {
				return &errdefs.TypeMismatchError{
					Expected: f.Type.String(),
					Got:      fields[i].Type().String(),
					At:       fmt.Sprintf("%s, field %q", instr, f.Name),
				}
			}
		}
		r, err := api.NewRecord(instr.RecordID, fields)
		if err != nil {
			return err
		}
		s.push(r)
		return nil
	case it.OpRecordLower:
		r, err := popRecord(s, instr)
		if err != nil {
			return err
		}
		for _, f := range r.Fields {
			s.push(f)
		}
		return nil

	case it.OpDup:
		v, err := popValue(s)
		if err != nil {
			return err
		}
		s.push(v)
		s.push(v)
		return nil
	case it.OpSwap:
		a, err := popValue(s)
		if err != nil {
			return err
		}
		b, err := popValue(s)
		if err != nil {
			return err
		}
		s.push(a)
		s.push(b)
		return nil

	default:
		return &errdefs.UnknownInstructionError{Opcode: byte(instr.Op)}
	}
}

type stack struct {
	values []api.IValue
}

func (s *stack) push(v api.IValue) {
	s.values = append(s.values, v)
}

func (s *stack) pop() (api.IValue, error) {
	if len(s.values) == 0 {
		return nil, errdefs.ErrStackUnderflow
	}
	v := s.values[len(s.values)-1]
	s.values = s.values[:len(s.values)-1]
	return v, nil
}

// popN pops n values and returns them in push order.
func (s *stack) popN(n int) ([]api.IValue, error) {
	if len(s.values) < n {
		return nil, errdefs.ErrStackUnderflow
	}
	ret := make([]api.IValue, n)
	copy(ret, s.values[len(s.values)-n:])
	s.values = s.values[:len(s.values)-n]
	return ret, nil
}

func popValue(s *stack) (api.IValue, error) { return s.pop() }

func popI32(s *stack, instr it.Instruction) (int32, error) {
	v, err := s.pop()
	if err != nil {
		return 0, err
	}
	n, ok := v.(api.I32)
	if !ok {
		return 0, stackTypeMismatch(instr, "i32", v)
	}
	return int32(n), nil
}

func popI64(s *stack, instr it.Instruction) (int64, error) {
	v, err := s.pop()
	if err != nil {
		return 0, err
	}
	n, ok := v.(api.I64)
	if !ok {
		return 0, stackTypeMismatch(instr, "i64", v)
	}
	return int64(n), nil
}

// popPair pops the (offset, length) scalars pushed by a lowering, length on
// top.
func popPair(s *stack, instr it.Instruction) (uint32, uint32, error) {
	second, err := popI32(s, instr)
	if err != nil {
		return 0, 0, err
	}
	first, err := popI32(s, instr)
	if err != nil {
		return 0, 0, err
	}
	return uint32(first), uint32(second), nil
}

func popRecord(s *stack, instr it.Instruction) (api.Record, error) {
	v, err := s.pop()
	if err != nil {
		return api.Record{}, err
	}
	r, ok := v.(api.Record)
	if !ok || r.ID != instr.RecordID {
		return api.Record{}, stackTypeMismatch(instr, fmt.Sprintf("record(%d)", instr.RecordID), v)
	}
	return r, nil
}

func lowerCastI32(s *stack, instr it.Instruction, convert func(api.IValue) (int32, bool)) error {
	v, err := s.pop()
	if err != nil {
		return err
	}
	n, ok := convert(v)
	if !ok {
		return stackTypeMismatch(instr, "a typed integer", v)
	}
	s.push(api.I32(n))
	return nil
}

func lowerCastI64(s *stack, instr it.Instruction, convert func(api.IValue) (int64, bool)) error {
	v, err := s.pop()
	if err != nil {
		return err
	}
	n, ok := convert(v)
	if !ok {
		return stackTypeMismatch(instr, "a typed integer", v)
	}
	s.push(api.I64(n))
	return nil
}

func stackTypeMismatch(instr it.Instruction, expected string, got api.IValue) error {
	return &errdefs.TypeMismatchError{Expected: expected, Got: got.Type().String(), At: instr.String()}
}

func castOverflow(instr it.Instruction, v interface{}) error {
	return &errdefs.CastOverflowError{From: "i32", To: instr.String(), Value: fmt.Sprintf("%d", v)}
}
