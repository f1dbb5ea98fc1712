package cpu

import (
	"fmt"

	"github.com/chewxy/math32"

	"github.com/papercatnku/DDTrainer/internal/parallel"
	"github.com/papercatnku/DDTrainer/internal/tensor"
)

// BatchNorm2D normalizes every channel with its running statistics:
//
//	y = (x - running_mean) / sqrt(running_var + eps) * weight + bias
//
// Input shape: [N, C, H, W]; every NormParams tensor has shape [C].
func (cpu *CPUBackend) BatchNorm2D(x *tensor.Tensor, p tensor.NormParams) (*tensor.Tensor, error) {
	N, C, H, W, err := x.Shape().NCHW()
	if err != nil {
		return nil, fmt.Errorf("batchnorm2d: %w", err)
	}

	channel := tensor.Shape{C}
	for _, stat := range []*tensor.Tensor{p.Weight, p.Bias, p.RunningMean, p.RunningVar} {
		if stat == nil {
			return nil, fmt.Errorf("batchnorm2d: missing statistics tensor")
		}
		if !stat.Shape().Equal(channel) {
			return nil, tensor.NewShapeError("batchnorm2d", "statistics must be [C]", x.Shape(), stat.Shape())
		}
	}

	scale := make([]float32, C)
	gamma, mean, variance := p.Weight.Data(), p.RunningMean.Data(), p.RunningVar.Data()
	for c := range scale {
		scale[c] = gamma[c] / math32.Sqrt(variance[c]+p.Eps)
	}

	out, err := tensor.New(x.Shape())
	if err != nil {
		return nil, fmt.Errorf("batchnorm2d: %w", err)
	}

	beta := p.Bias.Data()
	xd, od := x.Data(), out.Data()
	plane := H * W
	parallel.ForPlanes(N, C, func(n, c int) {
		off := (n*C + c) * plane
		src, dst := xd[off:off+plane], od[off:off+plane]
		for i, v := range src {
			dst[i] = (v-mean[c])*scale[c] + beta[c]
		}
	}, cpu.parallel)

	return out, nil
}
