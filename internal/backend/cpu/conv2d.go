package cpu

import (
	"fmt"

	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas32"

	"github.com/papercatnku/DDTrainer/internal/parallel"
	"github.com/papercatnku/DDTrainer/internal/tensor"
)

// Conv2D performs grouped, dilated 2D convolution using the im2col algorithm.
//
// Input shape:  [N, C_in, H, W]
// Weight shape: [C_out, C_in/groups, K_h, K_w]
// Bias shape:   [C_out] (optional, nil for none)
// Output shape: [N, C_out, H_out, W_out]
//
// Where:
//
//	H_out = (H + 2*padding - dilation*(K_h-1) - 1) / stride + 1
//	W_out = (W + 2*padding - dilation*(K_w-1) - 1) / stride + 1
//
// Algorithm, per (batch entry, group):
//  1. Im2col: unfold the group's input channels into a [C_in/g * K_h * K_w, H_out * W_out] matrix
//  2. GEMM: weight_g [C_out/g, C_in/g * K_h * K_w] @ col -> output_g [C_out/g, H_out * W_out]
//
// output_g is a contiguous slice of the NCHW output, so the GEMM writes in place.
func (cpu *CPUBackend) Conv2D(x, weight, bias *tensor.Tensor, p tensor.ConvParams) (*tensor.Tensor, error) {
	if p.Stride <= 0 || p.Padding < 0 || p.Groups <= 0 || p.Dilation <= 0 {
		return nil, fmt.Errorf("conv2d: invalid params stride=%d padding=%d groups=%d dilation=%d",
			p.Stride, p.Padding, p.Groups, p.Dilation)
	}

	N, CIn, H, W, err := x.Shape().NCHW()
	if err != nil {
		return nil, fmt.Errorf("conv2d: input: %w", err)
	}
	COut, CInG, KH, KW, err := weight.Shape().NCHW()
	if err != nil {
		return nil, fmt.Errorf("conv2d: weight: %w", err)
	}

	if CIn%p.Groups != 0 || COut%p.Groups != 0 {
		return nil, tensor.NewShapeError("conv2d",
			fmt.Sprintf("channels in=%d out=%d not divisible by groups=%d", CIn, COut, p.Groups),
			x.Shape(), weight.Shape())
	}
	if CInG != CIn/p.Groups {
		return nil, tensor.NewShapeError("conv2d",
			fmt.Sprintf("weight expects %d input channels per group, input provides %d", CInG, CIn/p.Groups),
			x.Shape(), weight.Shape())
	}
	if bias != nil && !bias.Shape().Equal(tensor.Shape{COut}) {
		return nil, tensor.NewShapeError("conv2d", "bias must be [C_out]", weight.Shape(), bias.Shape())
	}

	HOut := (H+2*p.Padding-p.Dilation*(KH-1)-1)/p.Stride + 1
	WOut := (W+2*p.Padding-p.Dilation*(KW-1)-1)/p.Stride + 1
	if HOut <= 0 || WOut <= 0 {
		return nil, tensor.NewShapeError("conv2d",
			fmt.Sprintf("empty output %dx%d (check stride/padding/dilation)", HOut, WOut),
			x.Shape(), weight.Shape())
	}

	out, err := tensor.New(tensor.Shape{N, COut, HOut, WOut})
	if err != nil {
		return nil, fmt.Errorf("conv2d: %w", err)
	}

	g := convGeom{
		cInG: CInG, cOutG: COut / p.Groups,
		h: H, w: W, kh: KH, kw: KW, hOut: HOut, wOut: WOut,
		stride: p.Stride, padding: p.Padding, dilation: p.Dilation,
	}

	xd, wd, od := x.Data(), weight.Data(), out.Data()
	var bd []float32
	if bias != nil {
		bd = bias.Data()
	}

	parallel.ForPlanes(N, p.Groups, func(n, grp int) {
		inPlane := xd[(n*CIn+grp*g.cInG)*H*W:]
		kernel := wd[grp*g.cOutG*g.rows():]
		outPlane := od[(n*COut+grp*g.cOutG)*g.cols():]
		var groupBias []float32
		if bd != nil {
			groupBias = bd[grp*g.cOutG : (grp+1)*g.cOutG]
		}
		g.convGroup(outPlane, inPlane, kernel, groupBias)
	}, cpu.parallel)

	return out, nil
}

// convGeom holds the per-group dimensions of a convolution.
type convGeom struct {
	cInG, cOutG               int
	h, w                      int
	kh, kw                    int
	hOut, wOut                int
	stride, padding, dilation int
}

// rows is the im2col row count: one row per kernel tap.
func (g convGeom) rows() int {
	return g.cInG * g.kh * g.kw
}

// cols is the im2col column count: one column per output pixel.
func (g convGeom) cols() int {
	return g.hOut * g.wOut
}

// convGroup convolves one group of one batch entry.
func (g convGeom) convGroup(out, in, kernel, bias []float32) {
	rows, cols := g.rows(), g.cols()

	col := make([]float32, rows*cols)
	g.im2col(col, in)

	dst := blas32.General{Rows: g.cOutG, Cols: cols, Stride: cols, Data: out[:g.cOutG*cols]}
	beta := float32(0)
	if bias != nil {
		for oc := 0; oc < g.cOutG; oc++ {
			row := dst.Data[oc*cols : (oc+1)*cols]
			for i := range row {
				row[i] = bias[oc]
			}
		}
		beta = 1
	}

	blas32.Gemm(blas.NoTrans, blas.NoTrans, 1,
		blas32.General{Rows: g.cOutG, Cols: rows, Stride: rows, Data: kernel[:g.cOutG*rows]},
		blas32.General{Rows: rows, Cols: cols, Stride: cols, Data: col},
		beta, dst)
}

// im2col unfolds a [C_in/g, H, W] input block into col [C_in/g*K_h*K_w, H_out*W_out].
// Taps that fall into the padding read as zero.
func (g convGeom) im2col(col, in []float32) {
	cols := g.cols()
	for c := 0; c < g.cInG; c++ {
		plane := in[c*g.h*g.w : (c+1)*g.h*g.w]
		for kh := 0; kh < g.kh; kh++ {
			for kw := 0; kw < g.kw; kw++ {
				row := col[((c*g.kh+kh)*g.kw+kw)*cols:]
				for oh := 0; oh < g.hOut; oh++ {
					ih := oh*g.stride - g.padding + kh*g.dilation
					for ow := 0; ow < g.wOut; ow++ {
						iw := ow*g.stride - g.padding + kw*g.dilation
						v := float32(0)
						if ih >= 0 && ih < g.h && iw >= 0 && iw < g.w {
							v = plane[ih*g.w+iw]
						}
						row[oh*g.wOut+ow] = v
					}
				}
			}
		}
	}
}
