package cpu

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/papercatnku/DDTrainer/internal/parallel"
	"github.com/papercatnku/DDTrainer/internal/tensor"
)

func newTestBackend() *CPUBackend {
	return NewWithConfig(parallel.Config{Enabled: true, NumWorkers: 4, MinItems: 1})
}

func mustFromSlice(t *testing.T, data []float32, shape tensor.Shape) *tensor.Tensor {
	t.Helper()
	x, err := tensor.FromSlice(data, shape)
	require.NoError(t, err)
	return x
}

func assertAllClose(t *testing.T, expected, actual []float32, delta float64) {
	t.Helper()
	require.Len(t, actual, len(expected))
	for i := range expected {
		assert.InDelta(t, expected[i], actual[i], delta, "index %d", i)
	}
}

func TestCPUBackend_Name(t *testing.T) {
	assert.Equal(t, "CPU", New().Name())
}

func TestCPUBackend_AddMul(t *testing.T) {
	backend := newTestBackend()
	a := mustFromSlice(t, []float32{1, 2, 3, 4}, tensor.Shape{2, 2})
	b := mustFromSlice(t, []float32{10, 20, 30, 40}, tensor.Shape{2, 2})

	sum, err := backend.Add(a, b)
	require.NoError(t, err)
	assert.Equal(t, []float32{11, 22, 33, 44}, sum.Data())

	prod, err := backend.Mul(a, b)
	require.NoError(t, err)
	assert.Equal(t, []float32{10, 40, 90, 160}, prod.Data())

	// Operands are untouched.
	assert.Equal(t, []float32{1, 2, 3, 4}, a.Data())
}

func TestCPUBackend_AddShapeMismatch(t *testing.T) {
	backend := newTestBackend()
	_, err := backend.Add(tensor.Zeros(tensor.Shape{1, 2, 4, 4}), tensor.Zeros(tensor.Shape{1, 2, 4, 3}))
	require.Error(t, err)

	var se *tensor.ShapeError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, "add", se.Op)
	assert.ErrorIs(t, err, tensor.ErrShapeMismatch)
}

func TestCPUBackend_Activations(t *testing.T) {
	backend := newTestBackend()
	in := []float32{-8, -1, 0, 1, 8}
	x := mustFromSlice(t, in, tensor.Shape{5})

	sig, err := backend.Sigmoid(x)
	require.NoError(t, err)
	for i, v := range in {
		assert.InDelta(t, 1/(1+math.Exp(-float64(v))), sig.Data()[i], 1e-6)
	}

	r, err := backend.ReLU(x)
	require.NoError(t, err)
	assert.Equal(t, []float32{0, 0, 0, 1, 8}, r.Data())

	r6, err := backend.ReLU6(x)
	require.NoError(t, err)
	assert.Equal(t, []float32{0, 0, 0, 1, 6}, r6.Data())

	lr, err := backend.LeakyReLU(x, 0.1)
	require.NoError(t, err)
	assertAllClose(t, []float32{-0.8, -0.1, 0, 1, 8}, lr.Data(), 1e-6)

	assert.Equal(t, in, x.Data())
}

func TestCPUBackend_InplaceActivations(t *testing.T) {
	backend := newTestBackend()

	x := mustFromSlice(t, []float32{-2, 3, 9}, tensor.Shape{3})
	require.NoError(t, backend.ReLUInplace(x))
	assert.Equal(t, []float32{0, 3, 9}, x.Data())

	require.NoError(t, backend.ReLU6Inplace(x))
	assert.Equal(t, []float32{0, 3, 6}, x.Data())

	y := mustFromSlice(t, []float32{-10, 5}, tensor.Shape{2})
	require.NoError(t, backend.LeakyReLUInplace(y, 0.1))
	assertAllClose(t, []float32{-1, 5}, y.Data(), 1e-6)
}
