// Package cpu implements the pure Go CPU backend.
//
// Convolutions are lowered to matrix products (im2col + gonum blas32 GEMM);
// the remaining kernels are direct loops over NCHW planes, fanned out with
// internal/parallel.
package cpu

import (
	"github.com/papercatnku/DDTrainer/internal/parallel"
	"github.com/papercatnku/DDTrainer/internal/tensor"
)

// CPUBackend implements tensor.Backend on the CPU.
type CPUBackend struct {
	parallel parallel.Config
}

// Compile-time interface checks.
var (
	_ tensor.Backend        = (*CPUBackend)(nil)
	_ tensor.InplaceBackend = (*CPUBackend)(nil)
)

// New creates a CPU backend using every available core.
func New() *CPUBackend {
	return NewWithConfig(parallel.DefaultConfig())
}

// NewWithConfig creates a CPU backend with explicit parallelism settings.
func NewWithConfig(cfg parallel.Config) *CPUBackend {
	return &CPUBackend{parallel: cfg}
}

// Name returns the backend name.
func (cpu *CPUBackend) Name() string {
	return "CPU"
}

// Add performs element-wise addition of two equally shaped tensors.
func (cpu *CPUBackend) Add(a, b *tensor.Tensor) (*tensor.Tensor, error) {
	return cpu.binary("add", a, b, func(x, y float32) float32 { return x + y })
}

// Mul performs element-wise multiplication of two equally shaped tensors.
func (cpu *CPUBackend) Mul(a, b *tensor.Tensor) (*tensor.Tensor, error) {
	return cpu.binary("mul", a, b, func(x, y float32) float32 { return x * y })
}

func (cpu *CPUBackend) binary(op string, a, b *tensor.Tensor, f func(x, y float32) float32) (*tensor.Tensor, error) {
	if !a.Shape().Equal(b.Shape()) {
		return nil, tensor.NewShapeError(op, "", a.Shape(), b.Shape())
	}

	out, err := tensor.New(a.Shape())
	if err != nil {
		return nil, err
	}

	ad, bd, od := a.Data(), b.Data(), out.Data()
	for i := range od {
		od[i] = f(ad[i], bd[i])
	}
	return out, nil
}

// unary applies f element-wise into a new tensor.
func unary(x *tensor.Tensor, f func(v float32) float32) (*tensor.Tensor, error) {
	out, err := tensor.New(x.Shape())
	if err != nil {
		return nil, err
	}

	xd, od := x.Data(), out.Data()
	for i := range od {
		od[i] = f(xd[i])
	}
	return out, nil
}

// inplace applies f element-wise, overwriting x.
func inplace(x *tensor.Tensor, f func(v float32) float32) {
	xd := x.Data()
	for i := range xd {
		xd[i] = f(xd[i])
	}
}
