// Package memview provides bounds-checked typed reads and writes over one
// module's linear memory. All accesses go through the engine.Memory
// interface because the guest side may mutate the same memory.
package memview

import (
	"encoding/binary"
	"math"

	"github.com/tetratelabs/wit/errdefs"
	"github.com/tetratelabs/wit/internal/engine"
)

// View is a byte-cell window over a single module's linear memory.
type View struct {
	mem engine.Memory
}

// New returns a view over mem.
func New(mem engine.Memory) *View { return &View{mem: mem} }

// Size returns the current memory size in bytes.
func (v *View) Size() uint32 { return v.mem.Size() }

// ReadBytes returns a copy of [offset, offset+n).
func (v *View) ReadBytes(offset, n uint32) ([]byte, error) {
	buf, ok := v.mem.Read(offset, n)
	if !ok {
		return nil, v.accessErr(offset, n)
	}
	return buf, nil
}

// ReadU8 reads one byte.
func (v *View) ReadU8(offset uint32) (byte, error) {
	buf, err := v.ReadBytes(offset, 1)
	if err != nil {
		return 0, err
	}
	return buf[0], nil
}

// ReadU16Le reads a little-endian uint16.
func (v *View) ReadU16Le(offset uint32) (uint16, error) {
	buf, err := v.ReadBytes(offset, 2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(buf), nil
}

// ReadU32Le reads a little-endian uint32.
func (v *View) ReadU32Le(offset uint32) (uint32, error) {
	buf, err := v.ReadBytes(offset, 4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(buf), nil
}

// ReadU64Le reads a little-endian uint64.
func (v *View) ReadU64Le(offset uint32) (uint64, error) {
	buf, err := v.ReadBytes(offset, 8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(buf), nil
}

// ReadF32Le reads a little-endian IEEE 754 float32.
func (v *View) ReadF32Le(offset uint32) (float32, error) {
	bits, err := v.ReadU32Le(offset)
	if err != nil {
		return 0, err
	}
	return math.Float32frombits(bits), nil
}

// ReadF64Le reads a little-endian IEEE 754 float64.
func (v *View) ReadF64Le(offset uint32) (float64, error) {
	bits, err := v.ReadU64Le(offset)
	if err != nil {
		return 0, err
	}
	return math.Float64frombits(bits), nil
}

// WriteBytes copies data to [offset, offset+len(data)).
func (v *View) WriteBytes(offset uint32, data []byte) error {
	if !v.mem.Write(offset, data) {
		return v.accessErr(offset, uint32(len(data)))
	}
	return nil
}

// WriteU8 writes one byte.
func (v *View) WriteU8(offset uint32, value byte) error {
	return v.WriteBytes(offset, []byte{value})
}

// WriteU16Le writes a little-endian uint16.
func (v *View) WriteU16Le(offset uint32, value uint16) error {
	var buf [2]byte
	binary.LittleEndian.PutUint16(buf[:], value)
	return v.WriteBytes(offset, buf[:])
}

// WriteU32Le writes a little-endian uint32.
func (v *View) WriteU32Le(offset uint32, value uint32) error {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], value)
	return v.WriteBytes(offset, buf[:])
}

// WriteU64Le writes a little-endian uint64.
func (v *View) WriteU64Le(offset uint32, value uint64) error {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], value)
	return v.WriteBytes(offset, buf[:])
}

// WriteF32Le writes a little-endian IEEE 754 float32.
func (v *View) WriteF32Le(offset uint32, value float32) error {
	return v.WriteU32Le(offset, math.Float32bits(value))
}

// WriteF64Le writes a little-endian IEEE 754 float64.
func (v *View) WriteF64Le(offset uint32, value float64) error {
	return v.WriteU64Le(offset, math.Float64bits(value))
}

func (v *View) accessErr(offset, n uint32) error {
	return &errdefs.MemoryAccessError{Offset: offset, Len: n, Size: v.mem.Size()}
}
