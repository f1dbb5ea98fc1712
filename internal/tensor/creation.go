package tensor

import "math/rand"

// Zeros creates a tensor filled with zeros.
// Panics if the shape is invalid.
//
// Example:
//
//	t := tensor.Zeros(Shape{1, 3, 32, 32})
func Zeros(shape Shape) *Tensor {
	t, err := New(shape)
	if err != nil {
		panic(err)
	}
	return t
}

// Ones creates a tensor filled with ones.
func Ones(shape Shape) *Tensor {
	return Full(shape, 1)
}

// Full creates a tensor filled with a specific value.
func Full(shape Shape, value float32) *Tensor {
	t := Zeros(shape)
	for i := range t.data {
		t.data[i] = value
	}
	return t
}

// Randn creates a tensor with values drawn from N(0, 1).
// A nil rng uses the global math/rand source.
// Note: Uses math/rand (not crypto/rand) - appropriate for ML/statistical purposes.
func Randn(shape Shape, rng *rand.Rand) *Tensor {
	t := Zeros(shape)
	for i := range t.data {
		if rng != nil {
			t.data[i] = float32(rng.NormFloat64())
		} else {
			//nolint:gosec // Test/initialization data, not security-critical.
			t.data[i] = float32(rand.NormFloat64())
		}
	}
	return t
}

// Arange creates a tensor holding 0, 1, 2, ... in row-major order.
// Handy for layout-sensitive tests (slicing, concatenation, pooling).
func Arange(shape Shape) *Tensor {
	t := Zeros(shape)
	for i := range t.data {
		t.data[i] = float32(i)
	}
	return t
}
