package tensor

import (
	"errors"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShape_NumElements(t *testing.T) {
	assert.Equal(t, 1, Shape{}.NumElements())
	assert.Equal(t, 24, Shape{2, 3, 4}.NumElements())
}

func TestShape_Validate(t *testing.T) {
	require.NoError(t, Shape{1, 3, 8, 8}.Validate())
	assert.Error(t, Shape{1, 0, 8}.Validate())
	assert.Error(t, Shape{-1}.Validate())
}

func TestShape_ComputeStrides(t *testing.T) {
	assert.Equal(t, []int{60, 20, 5, 1}, Shape{2, 3, 4, 5}.ComputeStrides())
	assert.Empty(t, Shape{}.ComputeStrides())
}

func TestShape_NCHW(t *testing.T) {
	n, c, h, w, err := Shape{2, 3, 4, 5}.NCHW()
	require.NoError(t, err)
	assert.Equal(t, []int{2, 3, 4, 5}, []int{n, c, h, w})

	_, _, _, _, err = Shape{3, 4}.NCHW()
	assert.Error(t, err)
}

func TestShape_CloneIsIndependent(t *testing.T) {
	s := Shape{1, 2}
	c := s.Clone()
	c[0] = 9
	assert.Equal(t, 1, s[0])
}

func TestFromSlice(t *testing.T) {
	data := []float32{1, 2, 3, 4, 5, 6}
	x, err := FromSlice(data, Shape{2, 3})
	require.NoError(t, err)

	data[0] = 100 // must not alias
	assert.Equal(t, float32(1), x.At(0, 0))
	assert.Equal(t, float32(6), x.At(1, 2))

	_, err = FromSlice(data, Shape{4, 2})
	assert.Error(t, err)
}

func TestTensor_SetAt(t *testing.T) {
	x := Zeros(Shape{2, 2, 2})
	x.Set(7, 1, 0, 1)
	assert.Equal(t, float32(7), x.At(1, 0, 1))
	assert.Equal(t, float32(7), x.Data()[5])

	assert.Panics(t, func() { x.At(2, 0, 0) })
	assert.Panics(t, func() { x.At(0, 0) })
}

func TestTensor_Reshape(t *testing.T) {
	x := Arange(Shape{2, 6})
	y, err := x.Reshape(Shape{3, 4})
	require.NoError(t, err)
	assert.Equal(t, float32(5), y.At(1, 1))

	_, err = x.Reshape(Shape{5})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrShapeMismatch))
}

func TestTensor_Clone(t *testing.T) {
	x := Ones(Shape{3})
	y := x.Clone()
	y.Data()[0] = 5
	assert.Equal(t, float32(1), x.Data()[0])
}

func TestCreation(t *testing.T) {
	assert.Equal(t, []float32{2.5, 2.5}, Full(Shape{2}, 2.5).Data())
	assert.Equal(t, []float32{0, 1, 2, 3}, Arange(Shape{2, 2}).Data())
	assert.Panics(t, func() { Zeros(Shape{0}) })

	a := Randn(Shape{16}, rand.New(rand.NewSource(1)))
	b := Randn(Shape{16}, rand.New(rand.NewSource(1)))
	assert.Equal(t, a.Data(), b.Data())
}

func TestShapeError(t *testing.T) {
	err := NewShapeError("cat", "dim 2 differs", Shape{1, 2, 3, 3}, Shape{1, 2, 4, 3})

	var se *ShapeError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, "cat", se.Op)
	assert.Len(t, se.Shapes, 2)
	assert.ErrorIs(t, err, ErrShapeMismatch)
	assert.Contains(t, err.Error(), "dim 2 differs")
}
