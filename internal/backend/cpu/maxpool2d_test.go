package cpu

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/papercatnku/DDTrainer/internal/tensor"
)

func TestMaxPool2D_Basic(t *testing.T) {
	backend := newTestBackend()
	x := mustFromSlice(t, []float32{
		1, 2, 3, 4,
		5, 6, 7, 8,
		9, 10, 11, 12,
		13, 14, 15, 16,
	}, tensor.Shape{1, 1, 4, 4})

	out, err := backend.MaxPool2D(x, 2, 2, 0)
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{1, 1, 2, 2}, out.Shape())
	assert.Equal(t, []float32{6, 8, 14, 16}, out.Data())
}

// TestMaxPool2D_SamePadding checks the stride-1, padding k/2 configuration:
// spatial size is kept and padding never wins, even for all-negative input.
func TestMaxPool2D_SamePadding(t *testing.T) {
	backend := newTestBackend()
	x := mustFromSlice(t, []float32{
		-9, -8, -7,
		-6, -5, -4,
		-3, -2, -1,
	}, tensor.Shape{1, 1, 3, 3})

	out, err := backend.MaxPool2D(x, 3, 1, 1)
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{1, 1, 3, 3}, out.Shape())
	assert.Equal(t, []float32{
		-5, -4, -4,
		-2, -1, -1,
		-2, -1, -1,
	}, out.Data())
}

func TestMaxPool2D_PreservesSizeForSPPKernels(t *testing.T) {
	backend := newTestBackend()
	x := tensor.Randn(tensor.Shape{2, 3, 13, 13}, nil)
	for _, k := range []int{5, 9, 13} {
		out, err := backend.MaxPool2D(x, k, 1, k/2)
		require.NoError(t, err)
		assert.Equal(t, x.Shape(), out.Shape(), "kernel %d", k)
	}
}

func TestMaxPool2D_Errors(t *testing.T) {
	backend := newTestBackend()
	x := tensor.Zeros(tensor.Shape{1, 1, 4, 4})

	_, err := backend.MaxPool2D(x, 0, 1, 0)
	assert.Error(t, err)

	_, err = backend.MaxPool2D(x, 3, 1, 2)
	assert.Error(t, err, "padding larger than half the kernel")

	_, err = backend.MaxPool2D(x, 5, 1, 0)
	assert.ErrorIs(t, err, tensor.ErrShapeMismatch)

	_, err = backend.MaxPool2D(tensor.Zeros(tensor.Shape{4, 4}), 2, 2, 0)
	assert.Error(t, err)
}
