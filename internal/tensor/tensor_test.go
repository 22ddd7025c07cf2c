package tensor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTensor_Constructors(t *testing.T) {
	t.Run("float32 vector", func(t *testing.T) {
		v := FromFloat32s([]int64{2}, []float32{1.5, -2})
		require.NoError(t, v.Validate())
		assert.Equal(t, Float32, v.DType)
		assert.Equal(t, 8, v.ByteSize())
		assert.Equal(t, []float64{1.5, -2}, v.Float64s())
	})

	t.Run("half precision rounds", func(t *testing.T) {
		v := FromFloat16s([]int64{1}, []float32{1.5})
		require.NoError(t, v.Validate())
		assert.Equal(t, []byte{0x00, 0x3e}, v.Data)
		assert.Equal(t, []float64{1.5}, v.Float64s())
	})

	t.Run("scalar has no dimensions", func(t *testing.T) {
		v := ScalarInt32(143)
		assert.Equal(t, 0, v.Rank())
		assert.Equal(t, int64(1), v.NumElements())
		assert.Equal(t, []int64{143}, v.Int64s())
	})

	t.Run("int32 wraps on overflow", func(t *testing.T) {
		v, err := FromInt64Values(Int32, []int64{1}, []int64{1 << 32})
		require.NoError(t, err)
		assert.Equal(t, []int64{0}, v.Int64s())
	})

	t.Run("value count must fill shape", func(t *testing.T) {
		assert.Panics(t, func() { FromInt32s([]int64{3}, []int32{1}) })
	})
}

func TestTensor_Equal(t *testing.T) {
	a := FromFloat32s([]int64{1}, []float32{3})
	b := FromFloat32s([]int64{1}, []float32{3})
	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(FromFloat32s(nil, []float32{3})), "shape differs")
	assert.False(t, a.Equal(FromFloat64s([]int64{1}, []float64{3})), "dtype differs")

	c := a.Clone()
	c.Data[0] ^= 1
	assert.False(t, a.Equal(c))
}

func TestParseDType(t *testing.T) {
	for in, want := range map[string]DType{
		"float32":  Float32,
		"DT_FLOAT": Float32,
		"DT_HALF":  Float16,
		"double":   Float64,
		"int64":    Int64,
		"DT_BOOL":  Bool,
	} {
		got, err := ParseDType(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseDType("complex64")
	assert.Error(t, err)
}

func TestElementCount(t *testing.T) {
	n, err := ElementCount([]int64{3, 4})
	require.NoError(t, err)
	assert.Equal(t, int64(12), n)

	n, err = ElementCount(nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = ElementCount([]int64{1 << 40, 0, 1 << 40})
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	for _, shape := range [][]int64{
		{-2, -3},
		{4, -1},
		{1 << 32, 1 << 32},
		{3037000500, 3037000500},
	} {
		_, err := ElementCount(shape)
		assert.ErrorIs(t, err, ErrShape, "%v", shape)
	}
}

func TestTensor_ValidateRejectsBadShapes(t *testing.T) {
	wrapped := &Tensor{DType: Float32, Shape: []int64{1 << 32, 1 << 32}, Data: []byte{}}
	assert.ErrorIs(t, wrapped.Validate(), ErrShape)

	negative := &Tensor{DType: Int32, Shape: []int64{-2, -3}, Data: make([]byte, 24)}
	assert.ErrorIs(t, negative.Validate(), ErrShape)

	// Element count fits, byte size does not.
	huge := &Tensor{DType: Float64, Shape: []int64{1 << 61}, Data: []byte{}}
	assert.ErrorIs(t, huge.Validate(), ErrShape)
}
