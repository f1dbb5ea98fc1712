package nn

import (
	"fmt"

	"github.com/chewxy/math32"

	"github.com/papercatnku/DDTrainer/internal/tensor"
)

// ConvConfig describes the basic conv unit: Conv2d -> BatchNorm -> activation
// with "same" padding (KernelSize-1)/2.
type ConvConfig struct {
	InChannels  int
	OutChannels int
	KernelSize  int
	Stride      int
	Groups      int // zero means 1
	Bias        bool
	Act         Activation
}

// ConvBlockConfig describes a conv unit with explicit padding and dilation and
// optional normalization.
type ConvBlockConfig struct {
	InChannels  int
	OutChannels int
	KernelSize  int
	Stride      int
	Padding     int
	Groups      int
	Dilation    int
	Bias        bool
	Norm        bool // BatchNorm2D after the convolution
	Act         Activation
}

// DefaultConvBlockConfig returns a 3x3 stride-1 pad-1 conv with bias,
// BatchNorm and ReLU6.
func DefaultConvBlockConfig(in, out int) ConvBlockConfig {
	return ConvBlockConfig{
		InChannels:  in,
		OutChannels: out,
		KernelSize:  3,
		Stride:      1,
		Padding:     1,
		Groups:      1,
		Dilation:    1,
		Bias:        true,
		Norm:        true,
		Act:         ReLU6,
	}
}

// DefaultConvBNReLUConfig returns a bias-free 3x3 conv followed by BatchNorm
// and ReLU6.
func DefaultConvBNReLUConfig(in, out int) ConvBlockConfig {
	cfg := DefaultConvBlockConfig(in, out)
	cfg.Bias = false
	return cfg
}

// DefaultConvBNConfig is DefaultConvBNReLUConfig without the activation.
func DefaultConvBNConfig(in, out int) ConvBlockConfig {
	cfg := DefaultConvBNReLUConfig(in, out)
	cfg.Act = Identity
	return cfg
}

// Conv is a convolution followed by an optional BatchNorm2D and an activation.
//
// Forward computes act(bn(conv(x))). ForwardFused computes act(conv(x)) and
// is meant for weights whose normalization has been folded into the
// convolution, see Fuse.
type Conv struct {
	conv    *Conv2D
	bn      *BatchNorm2D // nil without normalization or after Fuse
	act     ActivationFunc
	actKind Activation
	fused   bool
}

// NewConv creates the basic conv unit.
func NewConv(cfg ConvConfig, backend tensor.Backend) (*Conv, error) {
	if cfg.KernelSize <= 0 {
		return nil, fmt.Errorf("%w: conv kernel size %d", ErrInvalidConfig, cfg.KernelSize)
	}
	return NewConvBlock(ConvBlockConfig{
		InChannels:  cfg.InChannels,
		OutChannels: cfg.OutChannels,
		KernelSize:  cfg.KernelSize,
		Stride:      cfg.Stride,
		Padding:     (cfg.KernelSize - 1) / 2,
		Groups:      cfg.Groups,
		Dilation:    1,
		Bias:        cfg.Bias,
		Norm:        true,
		Act:         cfg.Act,
	}, backend)
}

// NewConvBlock creates a conv unit with explicit padding.
func NewConvBlock(cfg ConvBlockConfig, backend tensor.Backend) (*Conv, error) {
	act, err := cfg.Act.Func(backend, true)
	if err != nil {
		return nil, err
	}

	conv, err := NewConv2D(Conv2DConfig{
		InChannels:  cfg.InChannels,
		OutChannels: cfg.OutChannels,
		KernelSize:  cfg.KernelSize,
		Stride:      cfg.Stride,
		Padding:     cfg.Padding,
		Groups:      cfg.Groups,
		Dilation:    cfg.Dilation,
		Bias:        cfg.Bias,
	}, backend)
	if err != nil {
		return nil, err
	}

	c := &Conv{conv: conv, act: act, actKind: cfg.Act}
	if cfg.Norm {
		if c.bn, err = NewBatchNorm2D(cfg.OutChannels, backend); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Forward computes act(bn(conv(x))).
func (c *Conv) Forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	y, err := c.conv.Forward(x)
	if err != nil {
		return nil, err
	}
	if c.bn != nil {
		if y, err = c.bn.Forward(y); err != nil {
			return nil, err
		}
	}
	return c.act(y)
}

// ForwardFused computes act(conv(x)), skipping normalization.
func (c *Conv) ForwardFused(x *tensor.Tensor) (*tensor.Tensor, error) {
	y, err := c.conv.Forward(x)
	if err != nil {
		return nil, err
	}
	return c.act(y)
}

// Fuse folds the BatchNorm running statistics and affine parameters into the
// convolution weight and bias, then drops the BatchNorm. The convolution gains
// a bias if it had none. Afterwards Forward and ForwardFused are identical and
// both match the pre-fusion Forward up to float rounding.
//
// Fuse is a no-op for a unit without normalization or one already fused.
func (c *Conv) Fuse() error {
	if c.bn == nil {
		return nil
	}

	outC := c.conv.OutChannels()
	gamma := c.bn.Weight().Tensor().Data()
	beta := c.bn.Bias().Tensor().Data()
	mean := c.bn.RunningMean().Tensor().Data()
	variance := c.bn.RunningVar().Tensor().Data()

	if c.conv.Bias() == nil {
		c.conv.setBias(tensor.Zeros(tensor.Shape{outC}))
	}
	w := c.conv.Weight().Tensor().Data()
	b := c.conv.Bias().Tensor().Data()
	perOut := len(w) / outC

	for o := 0; o < outC; o++ {
		scale := gamma[o] / math32.Sqrt(variance[o]+c.bn.Eps())
		row := w[o*perOut : (o+1)*perOut]
		for i := range row {
			row[i] *= scale
		}
		b[o] = (b[o]-mean[o])*scale + beta[o]
	}

	c.bn = nil
	c.fused = true
	return nil
}

// Fused reports whether Fuse has folded the normalization.
func (c *Conv) Fused() bool {
	return c.fused
}

// Parameters returns the conv parameters followed by the BatchNorm affine
// parameters.
func (c *Conv) Parameters() []*Parameter {
	params := c.conv.Parameters()
	if c.bn != nil {
		params = append(params, c.bn.Parameters()...)
	}
	return params
}

func (c *Conv) children() []child {
	ch := []child{{"conv", c.conv}}
	if c.bn != nil {
		ch = append(ch, child{"bn", c.bn})
	}
	return ch
}

// StateDict returns "conv.*" and, with normalization, "bn.*" entries.
func (c *Conv) StateDict() map[string]*tensor.Tensor {
	return stateDictOf(c.children()...)
}

// LoadStateDict loads "conv.*" and, with normalization, "bn.*" entries.
func (c *Conv) LoadStateDict(stateDict map[string]*tensor.Tensor) error {
	return loadStateDictOf(stateDict, c.children()...)
}

// Conv2D returns the convolution layer.
func (c *Conv) Conv2D() *Conv2D {
	return c.conv
}

// BatchNorm returns the normalization layer, or nil.
func (c *Conv) BatchNorm() *BatchNorm2D {
	return c.bn
}

// Activation returns the activation kind.
func (c *Conv) Activation() Activation {
	return c.actKind
}

// InChannels returns the number of input channels.
func (c *Conv) InChannels() int {
	return c.conv.InChannels()
}

// OutChannels returns the number of output channels.
func (c *Conv) OutChannels() int {
	return c.conv.OutChannels()
}

// String returns a human-readable description.
func (c *Conv) String() string {
	return fmt.Sprintf("Conv(%s, bn=%t, act=%s)", c.conv, c.bn != nil, c.actKind)
}
