// Copyright 2025 The DDTrainer Authors. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package nn provides the convolutional building blocks of YOLO-style
// backbones and necks: conv units, depthwise-separable units, bottlenecks,
// residual layers, spatial pyramid pooling, CSP layers and the Focus stem.
//
// Blocks that merge tensors accept a QAT flag. With it set, every add or
// concatenation passes through a fake-quant observer so the network can be
// trained for 8-bit deployment.
//
// # Basic Usage
//
//	backend := cpu.New()
//	csp, err := nn.NewCSP(nn.DefaultCSPConfig(64, 64), backend)
//	if err != nil {
//	    return err
//	}
//	y, err := csp.Forward(x)
package nn

import (
	"github.com/papercatnku/DDTrainer/internal/nn"
	"github.com/papercatnku/DDTrainer/internal/quant"
	"github.com/papercatnku/DDTrainer/tensor"
)

// Module is implemented by every block.
type Module = nn.Module

// Parameter is a named tensor owned by a module.
type Parameter = nn.Parameter

// NewParameter wraps t under the given name.
func NewParameter(name string, t *tensor.Tensor) *Parameter {
	return nn.NewParameter(name, t)
}

// Errors returned by block constructors.
var (
	ErrUnsupportedActivation = nn.ErrUnsupportedActivation
	ErrInvalidGrouping       = nn.ErrInvalidGrouping
	ErrInvalidConfig         = nn.ErrInvalidConfig
	ErrMissingKey            = nn.ErrMissingKey
)

// Activations

// Activation identifies an element-wise nonlinearity.
type Activation = nn.Activation

// ActivationFunc applies an activation to a tensor.
type ActivationFunc = nn.ActivationFunc

// Supported activations.
const (
	SiLU      = nn.SiLU
	ReLU      = nn.ReLU
	LeakyReLU = nn.LeakyReLU
	ReLU6     = nn.ReLU6
	Identity  = nn.Identity
)

// ParseActivation resolves "silu", "relu", "lrelu", "relu6" or "identity".
func ParseActivation(name string) (Activation, error) {
	return nn.ParseActivation(name)
}

// Activate is a parameterless activation module.
type Activate = nn.Activate

// NewActivate creates an activation module.
func NewActivate(kind Activation, backend tensor.Backend) (*Activate, error) {
	return nn.NewActivate(kind, backend)
}

// Layers

// Conv2D is a grouped, dilated 2D convolution.
type Conv2D = nn.Conv2D

// Conv2DConfig describes a Conv2D.
type Conv2DConfig = nn.Conv2DConfig

// NewConv2D creates a convolution with kaiming-uniform weights.
func NewConv2D(cfg Conv2DConfig, backend tensor.Backend) (*Conv2D, error) {
	return nn.NewConv2D(cfg, backend)
}

// BatchNorm2D normalizes channels with running statistics.
type BatchNorm2D = nn.BatchNorm2D

// NewBatchNorm2D creates a batch norm with eps 1e-5 and momentum 0.1.
func NewBatchNorm2D(channels int, backend tensor.Backend) (*BatchNorm2D, error) {
	return nn.NewBatchNorm2D(channels, backend)
}

// MaxPool2D is a 2D max pooling layer.
type MaxPool2D = nn.MaxPool2D

// NewMaxPool2D creates a max pooling layer.
func NewMaxPool2D(kernelSize, stride, padding int, backend tensor.Backend) (*MaxPool2D, error) {
	return nn.NewMaxPool2D(kernelSize, stride, padding, backend)
}

// UpSample scales the spatial dimensions by an integer factor.
type UpSample = nn.UpSample

// UpSampleConfig describes an UpSample.
type UpSampleConfig = nn.UpSampleConfig

// DefaultUpSampleConfig returns 2x bilinear upsampling.
func DefaultUpSampleConfig() UpSampleConfig { return nn.DefaultUpSampleConfig() }

// NewUpSample creates an upsampling layer.
func NewUpSample(cfg UpSampleConfig, backend tensor.Backend) (*UpSample, error) {
	return nn.NewUpSample(cfg, backend)
}

// Sequential chains modules.
type Sequential = nn.Sequential

// NewSequential creates a Sequential container.
func NewSequential(modules ...Module) *Sequential {
	return nn.NewSequential(modules...)
}

// Conv units

// Conv is a convolution followed by BatchNorm2D and an activation.
type Conv = nn.Conv

// ConvConfig describes the basic conv unit with "same" padding.
type ConvConfig = nn.ConvConfig

// ConvBlockConfig describes a conv unit with explicit padding.
type ConvBlockConfig = nn.ConvBlockConfig

// NewConv creates the basic conv unit.
func NewConv(cfg ConvConfig, backend tensor.Backend) (*Conv, error) {
	return nn.NewConv(cfg, backend)
}

// NewConvBlock creates a conv unit with explicit padding.
func NewConvBlock(cfg ConvBlockConfig, backend tensor.Backend) (*Conv, error) {
	return nn.NewConvBlock(cfg, backend)
}

// DefaultConvBlockConfig returns a 3x3 conv with bias, BatchNorm and ReLU6.
func DefaultConvBlockConfig(in, out int) ConvBlockConfig { return nn.DefaultConvBlockConfig(in, out) }

// DefaultConvBNReLUConfig returns a bias-free 3x3 conv, BatchNorm and ReLU6.
func DefaultConvBNReLUConfig(in, out int) ConvBlockConfig { return nn.DefaultConvBNReLUConfig(in, out) }

// DefaultConvBNConfig returns a bias-free 3x3 conv and BatchNorm.
func DefaultConvBNConfig(in, out int) ConvBlockConfig { return nn.DefaultConvBNConfig(in, out) }

// DWConv is a depthwise conv unit followed by a pointwise conv unit.
type DWConv = nn.DWConv

// DWConvConfig describes a DWConv.
type DWConvConfig = nn.DWConvConfig

// NewDWConv creates a depthwise-separable conv unit.
func NewDWConv(cfg DWConvConfig, backend tensor.Backend) (*DWConv, error) {
	return nn.NewDWConv(cfg, backend)
}

// Blocks

// Bottleneck is a 1x1 + 3x3 block with an optional residual add.
type Bottleneck = nn.Bottleneck

// BottleneckConfig describes a Bottleneck.
type BottleneckConfig = nn.BottleneckConfig

// DefaultBottleneckConfig returns a bottleneck with shortcut and expansion 0.5.
func DefaultBottleneckConfig(in, out int) BottleneckConfig { return nn.DefaultBottleneckConfig(in, out) }

// NewBottleneck creates a bottleneck.
func NewBottleneck(cfg BottleneckConfig, backend tensor.Backend) (*Bottleneck, error) {
	return nn.NewBottleneck(cfg, backend)
}

// ResLayer is the Darknet residual layer.
type ResLayer = nn.ResLayer

// NewResLayer creates a residual layer.
func NewResLayer(inChannels int, backend tensor.Backend) (*ResLayer, error) {
	return nn.NewResLayer(inChannels, backend)
}

// SPP is a spatial pyramid pooling bottleneck with parallel pools.
type SPP = nn.SPP

// SPPConfig describes an SPP.
type SPPConfig = nn.SPPConfig

// DefaultSPPConfig returns pools 5, 9 and 13.
func DefaultSPPConfig(in, out int) SPPConfig { return nn.DefaultSPPConfig(in, out) }

// NewSPP creates an SPP bottleneck.
func NewSPP(cfg SPPConfig, backend tensor.Backend) (*SPP, error) {
	return nn.NewSPP(cfg, backend)
}

// SPPF is a spatial pyramid pooling bottleneck with three chained pools.
type SPPF = nn.SPPF

// SPPFConfig describes an SPPF.
type SPPFConfig = nn.SPPFConfig

// DefaultSPPFConfig returns three 5x5 pools.
func DefaultSPPFConfig(in, out int) SPPFConfig { return nn.DefaultSPPFConfig(in, out) }

// NewSPPF creates an SPPF bottleneck.
func NewSPPF(cfg SPPFConfig, backend tensor.Backend) (*SPPF, error) {
	return nn.NewSPPF(cfg, backend)
}

// CSP is a CSP layer with three convolutions.
type CSP = nn.CSP

// CSPConfig describes a CSP layer.
type CSPConfig = nn.CSPConfig

// DefaultCSPConfig returns one bottleneck with shortcut and expansion 0.5.
func DefaultCSPConfig(in, out int) CSPConfig { return nn.DefaultCSPConfig(in, out) }

// NewCSP creates a CSP layer.
func NewCSP(cfg CSPConfig, backend tensor.Backend) (*CSP, error) {
	return nn.NewCSP(cfg, backend)
}

// Focus is the space-to-depth stem.
type Focus = nn.Focus

// FocusConfig describes a Focus stem.
type FocusConfig = nn.FocusConfig

// DefaultFocusConfig returns a Focus stem with a 1x1 conv.
func DefaultFocusConfig(in, out int) FocusConfig { return nn.DefaultFocusConfig(in, out) }

// NewFocus creates a Focus stem.
func NewFocus(cfg FocusConfig, backend tensor.Backend) (*Focus, error) {
	return nn.NewFocus(cfg, backend)
}

// DepthToSpace inverts Focus.SpaceToDepth.
func DepthToSpace(y *tensor.Tensor) (*tensor.Tensor, error) {
	return nn.DepthToSpace(y)
}

// Quantization-aware training

// Combiner merges tensors inside composite blocks.
type Combiner = nn.Combiner

// QATCombiner fake-quantizes merged tensors.
type QATCombiner = nn.QATCombiner

// FakeQuant is a min/max observer with 8-bit fake quantization.
type FakeQuant = quant.FakeQuant

// NewCombiner selects the float or QAT combiner.
func NewCombiner(backend tensor.Backend, qat bool) (Combiner, error) {
	return nn.NewCombiner(backend, qat)
}

// Fuse folds BatchNorm into the convolutions of m.
func Fuse(m Module) error { return nn.Fuse(m) }

// FakeQuants returns every observer reachable from m.
func FakeQuants(m Module) []*FakeQuant { return nn.FakeQuants(m) }

// EnableFakeQuant switches fake quantization for every observer in m.
func EnableFakeQuant(m Module, enabled bool) { nn.EnableFakeQuant(m, enabled) }

// EnableObserver freezes or resumes range tracking for every observer in m.
func EnableObserver(m Module, enabled bool) { nn.EnableObserver(m, enabled) }

// CountParameters returns the total number of scalars across params.
func CountParameters(params []*Parameter) int { return nn.CountParameters(params) }
