package cpu

import (
	"fmt"

	"github.com/papercatnku/DDTrainer/internal/parallel"
	"github.com/papercatnku/DDTrainer/internal/tensor"
)

// Interpolate upsamples the spatial axes of an NCHW tensor by an integer factor.
//
// Bilinear follows the align_corners=false convention: output pixel centers
// map back to src = (dst + 0.5) / scale - 0.5, clamped at 0, and the two
// nearest source pixels along each axis are blended.
// Nearest maps dst to floor(dst / scale).
func (cpu *CPUBackend) Interpolate(x *tensor.Tensor, scale int, mode tensor.InterpolateMode) (*tensor.Tensor, error) {
	if scale <= 0 {
		return nil, fmt.Errorf("interpolate: invalid scale factor %d", scale)
	}

	N, C, H, W, err := x.Shape().NCHW()
	if err != nil {
		return nil, fmt.Errorf("interpolate: %w", err)
	}

	HOut, WOut := H*scale, W*scale
	out, err := tensor.New(tensor.Shape{N, C, HOut, WOut})
	if err != nil {
		return nil, fmt.Errorf("interpolate: %w", err)
	}

	var rows, cols []lerpTap
	switch mode {
	case tensor.Nearest:
		rows, cols = nearestTaps(H, scale), nearestTaps(W, scale)
	case tensor.Bilinear:
		rows, cols = bilinearTaps(H, scale), bilinearTaps(W, scale)
	default:
		return nil, fmt.Errorf("interpolate: unsupported mode %s", mode)
	}

	xd, od := x.Data(), out.Data()
	parallel.ForPlanes(N, C, func(n, c int) {
		src := xd[(n*C+c)*H*W : (n*C+c+1)*H*W]
		dst := od[(n*C+c)*HOut*WOut : (n*C+c+1)*HOut*WOut]
		for oh, r := range rows {
			top, bottom := src[r.i0*W:(r.i0+1)*W], src[r.i1*W:(r.i1+1)*W]
			for ow, cl := range cols {
				upper := top[cl.i0]*(1-cl.frac) + top[cl.i1]*cl.frac
				lower := bottom[cl.i0]*(1-cl.frac) + bottom[cl.i1]*cl.frac
				dst[oh*WOut+ow] = upper*(1-r.frac) + lower*r.frac
			}
		}
	}, cpu.parallel)

	return out, nil
}

// lerpTap blends source indices i0 and i1 with weight frac on i1.
type lerpTap struct {
	i0, i1 int
	frac   float32
}

func nearestTaps(size, scale int) []lerpTap {
	taps := make([]lerpTap, size*scale)
	for d := range taps {
		taps[d] = lerpTap{i0: d / scale, i1: d / scale}
	}
	return taps
}

func bilinearTaps(size, scale int) []lerpTap {
	taps := make([]lerpTap, size*scale)
	inv := 1 / float32(scale)
	for d := range taps {
		src := max((float32(d)+0.5)*inv-0.5, 0)
		i0 := int(src)
		i1 := i0
		if i0 < size-1 {
			i1 = i0 + 1
		}
		taps[d] = lerpTap{i0: i0, i1: i1, frac: src - float32(i0)}
	}
	return taps
}
