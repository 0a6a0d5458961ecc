// Package leb128 implements the variable-length integer encoding used
// throughout the Wasm binary format and the interface-types custom section.
package leb128

import (
	"errors"
	"fmt"
	"io"
)

const (
	maxVarintLen32 = 5
	maxVarintLen64 = 10
)

var (
	errOverflow32 = errors.New("overflows a 32-bit integer")
	errOverflow64 = errors.New("overflows a 64-bit integer")
)

// EncodeInt32 encodes the signed value into a buffer in LEB128 format.
func EncodeInt32(value int32) []byte {
	return EncodeInt64(int64(value))
}

// EncodeInt64 encodes the signed value into a buffer in LEB128 format.
func EncodeInt64(value int64) (buf []byte) {
	for {
		// Take 7 remaining low-order bits of the value.
		b := uint8(value & 0x7f)
		signBit := b & 0x40
		value >>= 7
		// The unit is terminal when the remaining value is 0 with the sign
		// bit clear, or -1 with the sign bit set.
		if (value != 0 || signBit == 0x40) && (value != -1 || signBit == 0) {
			b |= 0x80
		}
		buf = append(buf, b)
		if b&0x80 == 0 {
			break
		}
	}
	return buf
}

// EncodeUint32 encodes the unsigned value into a buffer in LEB128 format.
func EncodeUint32(value uint32) []byte {
	return EncodeUint64(uint64(value))
}

// EncodeUint64 encodes the unsigned value into a buffer in LEB128 format.
func EncodeUint64(value uint64) (buf []byte) {
	for {
		b := uint8(value & 0x7f)
		value >>= 7
		if value != 0 {
			b |= 0x80
		}
		buf = append(buf, b)
		if b&0x80 == 0 {
			return buf
		}
	}
}

// LoadUint32 reads a uint32 from the start of buf, returning the value and
// the number of bytes consumed.
func LoadUint32(buf []byte) (uint32, uint64, error) {
	r := newBufReader(buf)
	v, n, err := DecodeUint32(r)
	return v, n, err
}

// LoadUint64 is a uint64 variant of LoadUint32.
func LoadUint64(buf []byte) (uint64, uint64, error) {
	r := newBufReader(buf)
	v, n, err := DecodeUint64(r)
	return v, n, err
}

// LoadInt32 is a signed variant of LoadUint32.
func LoadInt32(buf []byte) (int32, uint64, error) {
	r := newBufReader(buf)
	v, n, err := DecodeInt32(r)
	return v, n, err
}

// LoadInt64 is a signed variant of LoadUint64.
func LoadInt64(buf []byte) (int64, uint64, error) {
	r := newBufReader(buf)
	v, n, err := DecodeInt64(r)
	return v, n, err
}

// DecodeUint32 reads a LEB128-encoded uint32 from r, returning the value and
// the number of bytes read.
func DecodeUint32(r io.ByteReader) (ret uint32, bytesRead uint64, err error) {
	// Derived from https://github.com/golang/go/blob/go1.17/src/encoding/binary/varint.go
	var s uint32
	for i := 0; i < maxVarintLen32; i++ {
		b, err := r.ReadByte()
		if err != nil {
			return 0, 0, fmt.Errorf("readByte failed: %w", err)
		}
		if b < 0x80 {
			// Unused bits must be all zero.
			if i == maxVarintLen32-1 && (b&0xf0) > 0 {
				return 0, 0, errOverflow32
			}
			return ret | uint32(b)<<s, uint64(i) + 1, nil
		}
		ret |= (uint32(b) & 0x7f) << s
		s += 7
	}
	return 0, 0, errOverflow32
}

// DecodeUint64 is a uint64 variant of DecodeUint32.
func DecodeUint64(r io.ByteReader) (ret uint64, bytesRead uint64, err error) {
	var s uint64
	for i := 0; i < maxVarintLen64; i++ {
		b, err := r.ReadByte()
		if err != nil {
			return 0, 0, err
		}
		if b < 0x80 {
			// Unused bits must be all zero.
			if i == maxVarintLen64-1 && b > 1 {
				return 0, 0, errOverflow64
			}
			return ret | uint64(b)<<s, uint64(i) + 1, nil
		}
		ret |= (uint64(b) & 0x7f) << s
		s += 7
	}
	return 0, 0, errOverflow64
}

// DecodeInt32 is a signed variant of DecodeUint32.
func DecodeInt32(r io.ByteReader) (ret int32, bytesRead uint64, err error) {
	var shift int
	var b byte
	for {
		b, err = r.ReadByte()
		if err != nil {
			return 0, 0, fmt.Errorf("readByte failed: %w", err)
		}
		ret |= (int32(b) & 0x7f) << shift
		shift += 7
		bytesRead++
		if b&0x80 == 0 {
			if shift < 32 && (b&0x40) != 0 {
				ret |= ^0 << shift
			}
			// Over flow checks.
			// fixme: can be optimized.
			if bytesRead > maxVarintLen32 {
				return 0, 0, errOverflow32
			} else if unused := b & 0b00110000; bytesRead == maxVarintLen32 && ret < 0 && unused != 0b00110000 {
				return 0, 0, errOverflow32
			} else if bytesRead == maxVarintLen32 && ret >= 0 && unused != 0x00 {
				return 0, 0, errOverflow32
			}
			return
		}
	}
}

// DecodeInt64 is a signed variant of DecodeUint64.
func DecodeInt64(r io.ByteReader) (ret int64, bytesRead uint64, err error) {
	const (
		int64Mask3 = 1 << 6
		int64Mask4 = ^0
	)
	var shift int
	var b byte
	for {
		b, err = r.ReadByte()
		if err != nil {
			return 0, 0, fmt.Errorf("readByte failed: %w", err)
		}
		ret |= (int64(b) & 0x7f) << shift
		shift += 7
		bytesRead++
		if b&0x80 == 0 {
			if shift < 64 && (b&int64Mask3) > 0 {
				ret |= int64Mask4 << shift
			}
			// Over flow checks.
			// fixme: can be optimized.
			if bytesRead > maxVarintLen64 {
				return 0, 0, errOverflow64
			} else if unused := b & 0b00111110; bytesRead == maxVarintLen64 && ret < 0 && unused != 0b00111110 {
				return 0, 0, errOverflow64
			} else if bytesRead == maxVarintLen64 && ret >= 0 && unused != 0x00 {
				return 0, 0, errOverflow64
			}
			return
		}
	}
}

// bufReader is a tiny io.ByteReader over a byte slice that avoids pulling in
// bytes.Reader for the Load variants.
type bufReader struct {
	buf []byte
	pos int
}

func newBufReader(buf []byte) *bufReader { return &bufReader{buf: buf} }

func (r *bufReader) ReadByte() (byte, error) {
	if r.pos >= len(r.buf) {
		return 0, io.EOF
	}
	b := r.buf[r.pos]
	r.pos++
	return b, nil
}
