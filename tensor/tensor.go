// Copyright 2025 The DDTrainer Authors. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package tensor

import (
	"math/rand"

	"github.com/papercatnku/DDTrainer/internal/tensor"
)

// Tensor is a dense row-major float32 array.
type Tensor = tensor.Tensor

// Shape is a tensor shape.
type Shape = tensor.Shape

// Backend is the primitive op provider.
type Backend = tensor.Backend

// InplaceBackend is implemented by backends with in-place activations.
type InplaceBackend = tensor.InplaceBackend

// ConvParams configures Backend.Conv2D.
type ConvParams = tensor.ConvParams

// NormParams configures Backend.BatchNorm2D.
type NormParams = tensor.NormParams

// QParams configures Backend.FakeQuantize.
type QParams = tensor.QParams

// InterpolateMode selects the Backend.Interpolate kernel.
type InterpolateMode = tensor.InterpolateMode

// Interpolation modes.
const (
	Nearest  = tensor.Nearest
	Bilinear = tensor.Bilinear
)

// ShapeError describes a shape mismatch between operands.
type ShapeError = tensor.ShapeError

// ErrShapeMismatch is matched by every *ShapeError.
var ErrShapeMismatch = tensor.ErrShapeMismatch

// New allocates a zero tensor.
func New(shape Shape) (*Tensor, error) {
	return tensor.New(shape)
}

// FromSlice copies data into a new tensor of the given shape.
func FromSlice(data []float32, shape Shape) (*Tensor, error) {
	return tensor.FromSlice(data, shape)
}

// Zeros creates a zero tensor. Panics on an invalid shape.
func Zeros(shape Shape) *Tensor {
	return tensor.Zeros(shape)
}

// Ones creates a tensor of ones.
func Ones(shape Shape) *Tensor {
	return tensor.Ones(shape)
}

// Full creates a tensor filled with value.
func Full(shape Shape, value float32) *Tensor {
	return tensor.Full(shape, value)
}

// Randn creates a tensor of standard normal samples. A nil rng uses the
// global source.
func Randn(shape Shape, rng *rand.Rand) *Tensor {
	return tensor.Randn(shape, rng)
}

// Arange creates a tensor holding 0, 1, 2, ... in row-major order.
func Arange(shape Shape) *Tensor {
	return tensor.Arange(shape)
}
