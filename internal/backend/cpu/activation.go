package cpu

import (
	"github.com/chewxy/math32"

	"github.com/papercatnku/DDTrainer/internal/tensor"
)

func sigmoid(v float32) float32 {
	return 1 / (1 + math32.Exp(-v))
}

func relu(v float32) float32 {
	return math32.Max(v, 0)
}

func relu6(v float32) float32 {
	return math32.Min(math32.Max(v, 0), 6)
}

func leakyReLU(slope float32) func(float32) float32 {
	return func(v float32) float32 {
		if v < 0 {
			return v * slope
		}
		return v
	}
}

// Sigmoid applies σ(x) = 1 / (1 + exp(-x)) element-wise.
func (cpu *CPUBackend) Sigmoid(x *tensor.Tensor) (*tensor.Tensor, error) {
	return unary(x, sigmoid)
}

// ReLU applies max(0, x) element-wise.
func (cpu *CPUBackend) ReLU(x *tensor.Tensor) (*tensor.Tensor, error) {
	return unary(x, relu)
}

// ReLU6 applies min(max(0, x), 6) element-wise.
func (cpu *CPUBackend) ReLU6(x *tensor.Tensor) (*tensor.Tensor, error) {
	return unary(x, relu6)
}

// LeakyReLU applies x for x >= 0 and slope*x otherwise.
func (cpu *CPUBackend) LeakyReLU(x *tensor.Tensor, slope float32) (*tensor.Tensor, error) {
	return unary(x, leakyReLU(slope))
}

// ReLUInplace is the in-place variant of ReLU.
func (cpu *CPUBackend) ReLUInplace(x *tensor.Tensor) error {
	inplace(x, relu)
	return nil
}

// ReLU6Inplace is the in-place variant of ReLU6.
func (cpu *CPUBackend) ReLU6Inplace(x *tensor.Tensor) error {
	inplace(x, relu6)
	return nil
}

// LeakyReLUInplace is the in-place variant of LeakyReLU.
func (cpu *CPUBackend) LeakyReLUInplace(x *tensor.Tensor, slope float32) error {
	inplace(x, leakyReLU(slope))
	return nil
}
