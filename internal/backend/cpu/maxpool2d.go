package cpu

import (
	"fmt"

	"github.com/chewxy/math32"

	"github.com/papercatnku/DDTrainer/internal/parallel"
	"github.com/papercatnku/DDTrainer/internal/tensor"
)

// MaxPool2D performs 2D max pooling with implicit -inf padding.
//
// Input shape:  [N, C, H, W]
// Output shape: [N, C, H_out, W_out]
//
// Where:
//
//	H_out = (H + 2*padding - kernelSize) / stride + 1
//	W_out = (W + 2*padding - kernelSize) / stride + 1
//
// Padded positions never win the max, so stride 1 with padding kernelSize/2
// keeps the spatial size (the SPP configuration).
//
// Example (2x2 pool, stride=2, padding=0):
//
//	Input: [[1,2,3,4],    Output: [[6,8],
//	        [5,6,7,8],             [14,16]]
//	        [9,10,11,12],
//	        [13,14,15,16]]
func (cpu *CPUBackend) MaxPool2D(x *tensor.Tensor, kernelSize, stride, padding int) (*tensor.Tensor, error) {
	if kernelSize <= 0 || stride <= 0 {
		return nil, fmt.Errorf("maxpool2d: invalid kernel size %d or stride %d", kernelSize, stride)
	}
	if padding < 0 || 2*padding > kernelSize {
		return nil, fmt.Errorf("maxpool2d: padding %d must be in [0, kernelSize/2] for kernel %d", padding, kernelSize)
	}

	N, C, H, W, err := x.Shape().NCHW()
	if err != nil {
		return nil, fmt.Errorf("maxpool2d: %w", err)
	}

	HOut := (H+2*padding-kernelSize)/stride + 1
	WOut := (W+2*padding-kernelSize)/stride + 1
	if HOut <= 0 || WOut <= 0 {
		return nil, tensor.NewShapeError("maxpool2d",
			fmt.Sprintf("kernel %d too large for input %dx%d", kernelSize, H, W), x.Shape())
	}

	out, err := tensor.New(tensor.Shape{N, C, HOut, WOut})
	if err != nil {
		return nil, fmt.Errorf("maxpool2d: %w", err)
	}

	xd, od := x.Data(), out.Data()
	parallel.ForPlanes(N, C, func(n, c int) {
		plane := xd[(n*C+c)*H*W : (n*C+c+1)*H*W]
		dst := od[(n*C+c)*HOut*WOut : (n*C+c+1)*HOut*WOut]

		for oh := 0; oh < HOut; oh++ {
			h0 := max(oh*stride-padding, 0)
			h1 := min(oh*stride-padding+kernelSize, H)
			for ow := 0; ow < WOut; ow++ {
				w0 := max(ow*stride-padding, 0)
				w1 := min(ow*stride-padding+kernelSize, W)

				best := math32.Inf(-1)
				for h := h0; h < h1; h++ {
					row := plane[h*W : (h+1)*W]
					for w := w0; w < w1; w++ {
						if row[w] > best {
							best = row[w]
						}
					}
				}
				dst[oh*WOut+ow] = best
			}
		}
	}, cpu.parallel)

	return out, nil
}
