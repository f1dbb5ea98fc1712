package nn

import (
	"fmt"

	"github.com/papercatnku/DDTrainer/internal/quant"
	"github.com/papercatnku/DDTrainer/internal/tensor"
)

// BottleneckConfig describes a standard bottleneck.
type BottleneckConfig struct {
	InChannels  int
	OutChannels int
	Shortcut    bool    // add the input when InChannels == OutChannels
	Expansion   float64 // hidden = int(OutChannels * Expansion)
	Depthwise   bool    // 3x3 stage as DWConv instead of Conv
	Act         Activation
	QAT         bool
}

// DefaultBottleneckConfig returns a SiLU bottleneck with shortcut and
// expansion 0.5.
func DefaultBottleneckConfig(in, out int) BottleneckConfig {
	return BottleneckConfig{
		InChannels:  in,
		OutChannels: out,
		Shortcut:    true,
		Expansion:   0.5,
		Act:         SiLU,
	}
}

// Bottleneck is a 1x1 reduction followed by a 3x3 conv, with an optional
// residual add of the block input.
type Bottleneck struct {
	conv1    *Conv
	conv2    Module // *Conv or *DWConv
	useAdd   bool
	combiner Combiner
}

// NewBottleneck creates a bottleneck.
func NewBottleneck(cfg BottleneckConfig, backend tensor.Backend) (*Bottleneck, error) {
	hidden := int(float64(cfg.OutChannels) * cfg.Expansion)
	if hidden <= 0 {
		return nil, fmt.Errorf("%w: bottleneck hidden channels %d (out=%d, expansion=%g)",
			ErrInvalidConfig, hidden, cfg.OutChannels, cfg.Expansion)
	}

	conv1, err := NewConv(ConvConfig{
		InChannels: cfg.InChannels, OutChannels: hidden, KernelSize: 1, Stride: 1, Act: cfg.Act,
	}, backend)
	if err != nil {
		return nil, fmt.Errorf("bottleneck conv1: %w", err)
	}

	var conv2 Module
	if cfg.Depthwise {
		conv2, err = NewDWConv(DWConvConfig{
			InChannels: hidden, OutChannels: cfg.OutChannels, KernelSize: 3, Stride: 1, Act: cfg.Act,
		}, backend)
	} else {
		conv2, err = NewConv(ConvConfig{
			InChannels: hidden, OutChannels: cfg.OutChannels, KernelSize: 3, Stride: 1, Act: cfg.Act,
		}, backend)
	}
	if err != nil {
		return nil, fmt.Errorf("bottleneck conv2: %w", err)
	}

	combiner, err := NewCombiner(backend, cfg.QAT)
	if err != nil {
		return nil, err
	}

	return &Bottleneck{
		conv1:    conv1,
		conv2:    conv2,
		useAdd:   cfg.Shortcut && cfg.InChannels == cfg.OutChannels,
		combiner: combiner,
	}, nil
}

// Forward computes conv2(conv1(x)), plus x when the shortcut is active.
func (b *Bottleneck) Forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	y, err := b.conv1.Forward(x)
	if err != nil {
		return nil, err
	}
	if y, err = b.conv2.Forward(y); err != nil {
		return nil, err
	}
	if !b.useAdd {
		return y, nil
	}
	return b.combiner.Add(y, x)
}

// UsesShortcut reports whether Forward adds the block input.
func (b *Bottleneck) UsesShortcut() bool {
	return b.useAdd
}

func (b *Bottleneck) children() []child {
	return []child{{"conv1", b.conv1}, {"conv2", b.conv2}}
}

// Parameters returns the parameters of both convolutions.
func (b *Bottleneck) Parameters() []*Parameter { return parametersOf(b.children()...) }

// StateDict returns "conv1.*" and "conv2.*" entries.
func (b *Bottleneck) StateDict() map[string]*tensor.Tensor { return stateDictOf(b.children()...) }

// LoadStateDict loads "conv1.*" and "conv2.*" entries.
func (b *Bottleneck) LoadStateDict(stateDict map[string]*tensor.Tensor) error {
	return loadStateDictOf(stateDict, b.children()...)
}

// Fuse folds normalization in both convolutions.
func (b *Bottleneck) Fuse() error { return fuseChildren(b.children()...) }

// FakeQuants returns the shortcut observer when QAT is enabled.
func (b *Bottleneck) FakeQuants() []*quant.FakeQuant { return combinerFakeQuants(b.combiner) }
