package nn

import (
	"fmt"

	"github.com/papercatnku/DDTrainer/internal/tensor"
)

// Default BatchNorm2D hyperparameters.
const (
	DefaultBatchNormEps      float32 = 1e-5
	DefaultBatchNormMomentum float32 = 0.1
)

// BatchNorm2D normalizes each channel with its running statistics:
//
//	y = (x - running_mean) / sqrt(running_var + eps) * weight + bias
//
// Only inference-mode normalization is performed; the running statistics
// are loaded or left at their initial values (mean 0, var 1). Momentum is
// kept so that exported state matches the training configuration.
type BatchNorm2D struct {
	channels int
	eps      float32
	momentum float32

	weight      *Parameter // gamma, [C]
	bias        *Parameter // beta, [C]
	runningMean *Parameter // [C]
	runningVar  *Parameter // [C]

	backend tensor.Backend
}

// NewBatchNorm2D creates a batch norm over the given number of channels with
// eps 1e-5 and momentum 0.1.
func NewBatchNorm2D(channels int, backend tensor.Backend) (*BatchNorm2D, error) {
	if channels <= 0 {
		return nil, fmt.Errorf("%w: batchnorm channels %d", ErrInvalidConfig, channels)
	}
	shape := tensor.Shape{channels}
	return &BatchNorm2D{
		channels:    channels,
		eps:         DefaultBatchNormEps,
		momentum:    DefaultBatchNormMomentum,
		weight:      NewParameter("weight", tensor.Ones(shape)),
		bias:        NewParameter("bias", tensor.Zeros(shape)),
		runningMean: NewParameter("running_mean", tensor.Zeros(shape)),
		runningVar:  NewParameter("running_var", tensor.Ones(shape)),
		backend:     backend,
	}, nil
}

// Forward normalizes x of shape [N, C, H, W].
func (b *BatchNorm2D) Forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	return b.backend.BatchNorm2D(x, tensor.NormParams{
		Weight:      b.weight.Tensor(),
		Bias:        b.bias.Tensor(),
		RunningMean: b.runningMean.Tensor(),
		RunningVar:  b.runningVar.Tensor(),
		Eps:         b.eps,
	})
}

// Parameters returns the affine weight and bias.
func (b *BatchNorm2D) Parameters() []*Parameter {
	return []*Parameter{b.weight, b.bias}
}

func (b *BatchNorm2D) tensors() []*Parameter {
	return []*Parameter{b.weight, b.bias, b.runningMean, b.runningVar}
}

// StateDict returns the affine parameters and running statistics.
func (b *BatchNorm2D) StateDict() map[string]*tensor.Tensor {
	sd := make(map[string]*tensor.Tensor, 4)
	for _, p := range b.tensors() {
		sd[p.Name()] = p.Tensor()
	}
	return sd
}

// LoadStateDict loads the affine parameters and running statistics.
func (b *BatchNorm2D) LoadStateDict(stateDict map[string]*tensor.Tensor) error {
	return loadParams(stateDict, b.tensors()...)
}

// SetEps overrides the variance epsilon.
func (b *BatchNorm2D) SetEps(eps float32) {
	b.eps = eps
}

// SetMomentum overrides the running-statistics momentum.
func (b *BatchNorm2D) SetMomentum(momentum float32) {
	b.momentum = momentum
}

// Eps returns the variance epsilon.
func (b *BatchNorm2D) Eps() float32 { return b.eps }

// Momentum returns the running-statistics momentum.
func (b *BatchNorm2D) Momentum() float32 { return b.momentum }

// Weight returns gamma.
func (b *BatchNorm2D) Weight() *Parameter { return b.weight }

// Bias returns beta.
func (b *BatchNorm2D) Bias() *Parameter { return b.bias }

// RunningMean returns the running mean.
func (b *BatchNorm2D) RunningMean() *Parameter { return b.runningMean }

// RunningVar returns the running variance.
func (b *BatchNorm2D) RunningVar() *Parameter { return b.runningVar }

// String returns a human-readable description.
func (b *BatchNorm2D) String() string {
	return fmt.Sprintf("BatchNorm2D(%d, eps=%g, momentum=%g)", b.channels, b.eps, b.momentum)
}
