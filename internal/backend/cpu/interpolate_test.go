package cpu

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/papercatnku/DDTrainer/internal/tensor"
)

func TestInterpolate_Nearest(t *testing.T) {
	backend := newTestBackend()
	x := mustFromSlice(t, []float32{1, 2, 3, 4}, tensor.Shape{1, 1, 2, 2})

	out, err := backend.Interpolate(x, 2, tensor.Nearest)
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{1, 1, 4, 4}, out.Shape())
	assert.Equal(t, []float32{
		1, 1, 2, 2,
		1, 1, 2, 2,
		3, 3, 4, 4,
		3, 3, 4, 4,
	}, out.Data())
}

// TestInterpolate_Bilinear checks align_corners=false sampling:
// for a 1x2 row [0, 4] upsampled x2, sources are -0.25(->0), 0.25, 0.75, 1.25(->1).
func TestInterpolate_Bilinear(t *testing.T) {
	backend := newTestBackend()
	x := mustFromSlice(t, []float32{0, 4, 0, 4}, tensor.Shape{1, 1, 2, 2})

	out, err := backend.Interpolate(x, 2, tensor.Bilinear)
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{1, 1, 4, 4}, out.Shape())

	row := []float32{0, 1, 3, 4}
	for h := 0; h < 4; h++ {
		for w := 0; w < 4; w++ {
			assert.InDelta(t, row[w], out.At(0, 0, h, w), 1e-6)
		}
	}
}

func TestInterpolate_BilinearConstantStaysConstant(t *testing.T) {
	backend := newTestBackend()
	out, err := backend.Interpolate(tensor.Full(tensor.Shape{2, 3, 3, 5}, 1.5), 3, tensor.Bilinear)
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{2, 3, 9, 15}, out.Shape())
	for _, v := range out.Data() {
		assert.InDelta(t, 1.5, v, 1e-6)
	}
}

func TestInterpolate_Errors(t *testing.T) {
	backend := newTestBackend()
	x := tensor.Zeros(tensor.Shape{1, 1, 2, 2})

	_, err := backend.Interpolate(x, 0, tensor.Bilinear)
	assert.Error(t, err)

	_, err = backend.Interpolate(x, 2, tensor.InterpolateMode(42))
	assert.Error(t, err)
}
