package cpu

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/papercatnku/DDTrainer/internal/tensor"
)

func TestCat_Channels(t *testing.T) {
	backend := newTestBackend()
	a := mustFromSlice(t, []float32{1, 2, 3, 4}, tensor.Shape{2, 1, 1, 2})
	b := mustFromSlice(t, []float32{5, 6, 7, 8, 9, 10, 11, 12}, tensor.Shape{2, 2, 1, 2})

	out, err := backend.Cat([]*tensor.Tensor{a, b}, 1)
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{2, 3, 1, 2}, out.Shape())
	assert.Equal(t, []float32{
		1, 2, 5, 6, 7, 8, // batch 0
		3, 4, 9, 10, 11, 12, // batch 1
	}, out.Data())
}

func TestCat_NegativeDim(t *testing.T) {
	backend := newTestBackend()
	a := mustFromSlice(t, []float32{1, 2}, tensor.Shape{2, 1})
	b := mustFromSlice(t, []float32{3, 4}, tensor.Shape{2, 1})

	out, err := backend.Cat([]*tensor.Tensor{a, b}, -1)
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 3, 2, 4}, out.Data())
}

func TestCat_Errors(t *testing.T) {
	backend := newTestBackend()

	_, err := backend.Cat(nil, 1)
	assert.Error(t, err)

	_, err = backend.Cat([]*tensor.Tensor{tensor.Zeros(tensor.Shape{1, 2, 4, 4}), tensor.Zeros(tensor.Shape{1, 2, 3, 4})}, 1)
	assert.ErrorIs(t, err, tensor.ErrShapeMismatch)

	_, err = backend.Cat([]*tensor.Tensor{tensor.Zeros(tensor.Shape{1, 2, 4, 4}), tensor.Zeros(tensor.Shape{2, 4, 4})}, 1)
	assert.ErrorIs(t, err, tensor.ErrShapeMismatch)

	_, err = backend.Cat([]*tensor.Tensor{tensor.Zeros(tensor.Shape{1, 2})}, 2)
	assert.Error(t, err)
}

func TestStridedSlice2D(t *testing.T) {
	backend := newTestBackend()
	x := tensor.Arange(tensor.Shape{1, 1, 4, 4})

	tests := []struct {
		row, col int
		want     []float32
	}{
		{0, 0, []float32{0, 2, 8, 10}},
		{1, 0, []float32{4, 6, 12, 14}},
		{0, 1, []float32{1, 3, 9, 11}},
		{1, 1, []float32{5, 7, 13, 15}},
	}
	for _, tt := range tests {
		out, err := backend.StridedSlice2D(x, tt.row, tt.col, 2)
		require.NoError(t, err)
		assert.Equal(t, tensor.Shape{1, 1, 2, 2}, out.Shape())
		assert.Equal(t, tt.want, out.Data(), "offset (%d, %d)", tt.row, tt.col)
	}
}

func TestStridedSlice2D_OddSizes(t *testing.T) {
	backend := newTestBackend()
	x := tensor.Zeros(tensor.Shape{1, 2, 5, 3})

	even, err := backend.StridedSlice2D(x, 0, 0, 2)
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{1, 2, 3, 2}, even.Shape())

	odd, err := backend.StridedSlice2D(x, 1, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{1, 2, 2, 1}, odd.Shape())
}

func TestStridedSlice2D_Errors(t *testing.T) {
	backend := newTestBackend()

	_, err := backend.StridedSlice2D(tensor.Zeros(tensor.Shape{4}), 0, 0, 2)
	assert.Error(t, err)

	_, err = backend.StridedSlice2D(tensor.Zeros(tensor.Shape{2, 2}), 2, 0, 2)
	assert.Error(t, err)

	_, err = backend.StridedSlice2D(tensor.Zeros(tensor.Shape{1, 2}), 1, 0, 2)
	assert.ErrorIs(t, err, tensor.ErrShapeMismatch)
}
