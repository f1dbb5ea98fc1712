package nn

import (
	"fmt"

	"github.com/papercatnku/DDTrainer/internal/tensor"
)

// MaxPool2D is a 2D max pooling layer. Padded positions never win the max.
//
// Output size: (H + 2*padding - kernel) / stride + 1.
type MaxPool2D struct {
	stateless
	kernelSize int
	stride     int
	padding    int
	backend    tensor.Backend
}

// NewMaxPool2D creates a max pooling layer. padding must not exceed kernelSize/2.
func NewMaxPool2D(kernelSize, stride, padding int, backend tensor.Backend) (*MaxPool2D, error) {
	if kernelSize <= 0 || stride <= 0 {
		return nil, fmt.Errorf("%w: maxpool kernel %d stride %d", ErrInvalidConfig, kernelSize, stride)
	}
	if padding < 0 || 2*padding > kernelSize {
		return nil, fmt.Errorf("%w: maxpool padding %d for kernel %d", ErrInvalidConfig, padding, kernelSize)
	}
	return &MaxPool2D{kernelSize: kernelSize, stride: stride, padding: padding, backend: backend}, nil
}

// newSamePool returns a stride-1 pool that keeps the spatial size; kernelSize must be odd.
func newSamePool(kernelSize int, backend tensor.Backend) (*MaxPool2D, error) {
	if kernelSize <= 0 || kernelSize%2 == 0 {
		return nil, fmt.Errorf("%w: pool kernel %d must be positive and odd", ErrInvalidConfig, kernelSize)
	}
	return NewMaxPool2D(kernelSize, 1, kernelSize/2, backend)
}

// Forward applies max pooling.
func (m *MaxPool2D) Forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	return m.backend.MaxPool2D(x, m.kernelSize, m.stride, m.padding)
}

// KernelSize returns the pooling window size.
func (m *MaxPool2D) KernelSize() int { return m.kernelSize }

// Stride returns the pooling stride.
func (m *MaxPool2D) Stride() int { return m.stride }

// Padding returns the pooling padding.
func (m *MaxPool2D) Padding() int { return m.padding }

// ComputeOutputSize returns the output height and width for the given input size.
func (m *MaxPool2D) ComputeOutputSize(inputH, inputW int) [2]int {
	return [2]int{
		(inputH+2*m.padding-m.kernelSize)/m.stride + 1,
		(inputW+2*m.padding-m.kernelSize)/m.stride + 1,
	}
}

// String returns a human-readable description.
func (m *MaxPool2D) String() string {
	return fmt.Sprintf("MaxPool2D(kernel=%d, stride=%d, padding=%d)", m.kernelSize, m.stride, m.padding)
}
