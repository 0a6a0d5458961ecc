package memview

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tetratelabs/wit/errdefs"
	"github.com/tetratelabs/wit/internal/testing/enginetest"
)

func TestView_ReadWrite(t *testing.T) {
	inst := enginetest.NewInstance(nil)
	v := New(inst.Memory())

	require.NoError(t, v.WriteU8(0, 0xab))
	b, err := v.ReadU8(0)
	require.NoError(t, err)
	require.Equal(t, byte(0xab), b)

	require.NoError(t, v.WriteU16Le(2, 0xbeef))
	u16, err := v.ReadU16Le(2)
	require.NoError(t, err)
	require.Equal(t, uint16(0xbeef), u16)

	require.NoError(t, v.WriteU32Le(4, 0xdeadbeef))
	u32, err := v.ReadU32Le(4)
	require.NoError(t, err)
	require.Equal(t, uint32(0xdeadbeef), u32)

	require.NoError(t, v.WriteU64Le(8, 0x0123456789abcdef))
	u64, err := v.ReadU64Le(8)
	require.NoError(t, err)
	require.Equal(t, uint64(0x0123456789abcdef), u64)

	require.NoError(t, v.WriteF32Le(16, 9.5))
	f32, err := v.ReadF32Le(16)
	require.NoError(t, err)
	require.Equal(t, float32(9.5), f32)

	require.NoError(t, v.WriteF64Le(24, -10.25))
	f64, err := v.ReadF64Le(24)
	require.NoError(t, err)
	require.Equal(t, -10.25, f64)

	require.NoError(t, v.WriteBytes(32, []byte{0x13, 0x37}))
	buf, err := v.ReadBytes(32, 2)
	require.NoError(t, err)
	require.Equal(t, []byte{0x13, 0x37}, buf)

	// little-endian layout check
	buf, err = v.ReadBytes(4, 4)
	require.NoError(t, err)
	require.Equal(t, []byte{0xef, 0xbe, 0xad, 0xde}, buf)
}

func TestView_OutOfBounds(t *testing.T) {
	inst := enginetest.NewInstance(nil)
	v := New(inst.Memory())
	size := v.Size()

	_, err := v.ReadBytes(size-1, 2)
	var access *errdefs.MemoryAccessError
	require.ErrorAs(t, err, &access)
	require.Equal(t, size-1, access.Offset)
	require.Equal(t, uint32(2), access.Len)
	require.Equal(t, size, access.Size)

	err = v.WriteU32Le(size-3, 1)
	require.ErrorAs(t, err, &access)

	_, err = v.ReadU64Le(size)
	require.ErrorAs(t, err, &access)
}
