package nn

import (
	"fmt"

	"github.com/papercatnku/DDTrainer/internal/tensor"
)

// Conv2DConfig describes a 2D convolution.
//
// Zero Stride, Groups and Dilation are treated as 1.
type Conv2DConfig struct {
	InChannels  int
	OutChannels int
	KernelSize  int // square kernel
	Stride      int
	Padding     int
	Groups      int
	Dilation    int
	Bias        bool
}

func (c Conv2DConfig) withDefaults() Conv2DConfig {
	if c.Stride == 0 {
		c.Stride = 1
	}
	if c.Groups == 0 {
		c.Groups = 1
	}
	if c.Dilation == 0 {
		c.Dilation = 1
	}
	return c
}

// Validate checks the configuration.
func (c Conv2DConfig) Validate() error {
	c = c.withDefaults()
	if c.InChannels <= 0 || c.OutChannels <= 0 {
		return fmt.Errorf("%w: conv2d channels in=%d out=%d", ErrInvalidConfig, c.InChannels, c.OutChannels)
	}
	if c.KernelSize <= 0 {
		return fmt.Errorf("%w: conv2d kernel size %d", ErrInvalidConfig, c.KernelSize)
	}
	if c.Stride < 0 || c.Padding < 0 || c.Groups < 0 || c.Dilation < 0 {
		return fmt.Errorf("%w: conv2d stride=%d padding=%d groups=%d dilation=%d",
			ErrInvalidConfig, c.Stride, c.Padding, c.Groups, c.Dilation)
	}
	if c.InChannels%c.Groups != 0 || c.OutChannels%c.Groups != 0 {
		return fmt.Errorf("%w: channels in=%d out=%d not divisible by groups=%d",
			ErrInvalidGrouping, c.InChannels, c.OutChannels, c.Groups)
	}
	return nil
}

// Conv2D is a 2D convolutional layer.
//
// Input shape:  [batch, in_channels, height, width]
// Weight shape: [out_channels, in_channels/groups, kernel, kernel]
// Bias shape:   [out_channels]
// Output shape: [batch, out_channels, out_h, out_w]
//
// Where:
//
//	out_h = (height + 2*padding - dilation*(kernel-1) - 1) / stride + 1
//	out_w = (width + 2*padding - dilation*(kernel-1) - 1) / stride + 1
type Conv2D struct {
	cfg Conv2DConfig

	weight *Parameter // [out_channels, in_channels/groups, kernel, kernel]
	bias   *Parameter // [out_channels] or nil

	backend tensor.Backend
}

// NewConv2D creates a convolution with kaiming-uniform weights and, when
// cfg.Bias is set, a uniform bias in the same range.
func NewConv2D(cfg Conv2DConfig, backend tensor.Backend) (*Conv2D, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg = cfg.withDefaults()

	inPerGroup := cfg.InChannels / cfg.Groups
	fanIn := inPerGroup * cfg.KernelSize * cfg.KernelSize
	weightShape := tensor.Shape{cfg.OutChannels, inPerGroup, cfg.KernelSize, cfg.KernelSize}

	c := &Conv2D{
		cfg:     cfg,
		weight:  NewParameter("weight", KaimingUniform(fanIn, weightShape)),
		backend: backend,
	}
	if cfg.Bias {
		c.bias = NewParameter("bias", KaimingUniform(fanIn, tensor.Shape{cfg.OutChannels}))
	}
	return c, nil
}

// Forward computes the convolution.
func (c *Conv2D) Forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	var bias *tensor.Tensor
	if c.bias != nil {
		bias = c.bias.Tensor()
	}
	return c.backend.Conv2D(x, c.weight.Tensor(), bias, tensor.ConvParams{
		Stride:   c.cfg.Stride,
		Padding:  c.cfg.Padding,
		Groups:   c.cfg.Groups,
		Dilation: c.cfg.Dilation,
	})
}

// Parameters returns the weight and, if present, the bias.
func (c *Conv2D) Parameters() []*Parameter {
	if c.bias != nil {
		return []*Parameter{c.weight, c.bias}
	}
	return []*Parameter{c.weight}
}

// StateDict returns "weight" and, if present, "bias".
func (c *Conv2D) StateDict() map[string]*tensor.Tensor {
	sd := map[string]*tensor.Tensor{"weight": c.weight.Tensor()}
	if c.bias != nil {
		sd["bias"] = c.bias.Tensor()
	}
	return sd
}

// LoadStateDict loads "weight" and, if the layer has one, "bias".
func (c *Conv2D) LoadStateDict(stateDict map[string]*tensor.Tensor) error {
	return loadParams(stateDict, c.Parameters()...)
}

// Weight returns the weight parameter.
func (c *Conv2D) Weight() *Parameter {
	return c.weight
}

// Bias returns the bias parameter, or nil.
func (c *Conv2D) Bias() *Parameter {
	return c.bias
}

// setBias installs a bias tensor of shape [out_channels].
func (c *Conv2D) setBias(b *tensor.Tensor) {
	c.bias = NewParameter("bias", b)
	c.cfg.Bias = true
}

// Config returns the layer configuration with defaults applied.
func (c *Conv2D) Config() Conv2DConfig {
	return c.cfg
}

// InChannels returns the number of input channels.
func (c *Conv2D) InChannels() int {
	return c.cfg.InChannels
}

// OutChannels returns the number of output channels.
func (c *Conv2D) OutChannels() int {
	return c.cfg.OutChannels
}

// String returns a human-readable description.
func (c *Conv2D) String() string {
	return fmt.Sprintf("Conv2D(in=%d, out=%d, kernel=%d, stride=%d, padding=%d, groups=%d, dilation=%d, bias=%t)",
		c.cfg.InChannels, c.cfg.OutChannels, c.cfg.KernelSize, c.cfg.Stride,
		c.cfg.Padding, c.cfg.Groups, c.cfg.Dilation, c.bias != nil)
}
