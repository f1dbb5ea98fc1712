package nn

import (
	"fmt"

	"github.com/papercatnku/DDTrainer/internal/quant"
	"github.com/papercatnku/DDTrainer/internal/tensor"
)

// CSPConfig describes a CSP layer (C3 in YOLOv5).
type CSPConfig struct {
	InChannels  int
	OutChannels int
	N           int     // number of bottlenecks, zero allowed
	Shortcut    bool    // passed to every bottleneck
	Expansion   float64 // hidden = int(OutChannels * Expansion)
	Depthwise   bool
	Act         Activation
	QAT         bool // applies to the layer's concat and to every bottleneck
}

// DefaultCSPConfig returns a one-bottleneck SiLU CSP layer with shortcut and
// expansion 0.5.
func DefaultCSPConfig(in, out int) CSPConfig {
	return CSPConfig{
		InChannels:  in,
		OutChannels: out,
		N:           1,
		Shortcut:    true,
		Expansion:   0.5,
		Act:         SiLU,
	}
}

// CSP splits the input into two 1x1 projections, runs N bottlenecks on the
// first, concatenates both on channels and fuses them with a third 1x1 conv.
type CSP struct {
	conv1    *Conv
	conv2    *Conv
	conv3    *Conv
	m        *Sequential
	combiner Combiner
}

// NewCSP creates a CSP layer.
func NewCSP(cfg CSPConfig, backend tensor.Backend) (*CSP, error) {
	if cfg.N < 0 {
		return nil, fmt.Errorf("%w: csp bottleneck count %d", ErrInvalidConfig, cfg.N)
	}
	hidden := int(float64(cfg.OutChannels) * cfg.Expansion)
	if hidden <= 0 {
		return nil, fmt.Errorf("%w: csp hidden channels %d (out=%d, expansion=%g)",
			ErrInvalidConfig, hidden, cfg.OutChannels, cfg.Expansion)
	}

	c := &CSP{m: NewSequential()}
	var err error
	if c.conv1, err = NewConv(ConvConfig{
		InChannels: cfg.InChannels, OutChannels: hidden, KernelSize: 1, Stride: 1, Act: cfg.Act,
	}, backend); err != nil {
		return nil, fmt.Errorf("csp conv1: %w", err)
	}
	if c.conv2, err = NewConv(ConvConfig{
		InChannels: cfg.InChannels, OutChannels: hidden, KernelSize: 1, Stride: 1, Act: cfg.Act,
	}, backend); err != nil {
		return nil, fmt.Errorf("csp conv2: %w", err)
	}
	if c.conv3, err = NewConv(ConvConfig{
		InChannels: 2 * hidden, OutChannels: cfg.OutChannels, KernelSize: 1, Stride: 1, Act: cfg.Act,
	}, backend); err != nil {
		return nil, fmt.Errorf("csp conv3: %w", err)
	}

	for i := 0; i < cfg.N; i++ {
		b, err := NewBottleneck(BottleneckConfig{
			InChannels:  hidden,
			OutChannels: hidden,
			Shortcut:    cfg.Shortcut,
			Expansion:   1.0,
			Depthwise:   cfg.Depthwise,
			Act:         cfg.Act,
			QAT:         cfg.QAT,
		}, backend)
		if err != nil {
			return nil, fmt.Errorf("csp bottleneck %d: %w", i, err)
		}
		c.m.Add(b)
	}

	if c.combiner, err = NewCombiner(backend, cfg.QAT); err != nil {
		return nil, err
	}
	return c, nil
}

// Forward computes conv3(cat(m(conv1(x)), conv2(x))).
func (c *CSP) Forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	x1, err := c.conv1.Forward(x)
	if err != nil {
		return nil, err
	}
	x2, err := c.conv2.Forward(x)
	if err != nil {
		return nil, err
	}
	if x1, err = c.m.Forward(x1); err != nil {
		return nil, err
	}
	y, err := c.combiner.Cat([]*tensor.Tensor{x1, x2}, channelDim)
	if err != nil {
		return nil, err
	}
	return c.conv3.Forward(y)
}

// Bottlenecks returns the number of stacked bottlenecks.
func (c *CSP) Bottlenecks() int {
	return c.m.Len()
}

func (c *CSP) children() []child {
	return []child{{"conv1", c.conv1}, {"conv2", c.conv2}, {"conv3", c.conv3}, {"m", c.m}}
}

// Parameters returns the parameters of the three convolutions and all bottlenecks.
func (c *CSP) Parameters() []*Parameter { return parametersOf(c.children()...) }

// StateDict returns "conv1.*", "conv2.*", "conv3.*" and "m.<i>.*" entries.
func (c *CSP) StateDict() map[string]*tensor.Tensor { return stateDictOf(c.children()...) }

// LoadStateDict loads all entries returned by StateDict.
func (c *CSP) LoadStateDict(stateDict map[string]*tensor.Tensor) error {
	return loadStateDictOf(stateDict, c.children()...)
}

// Fuse folds normalization in all convolutions.
func (c *CSP) Fuse() error { return fuseChildren(c.children()...) }

// FakeQuants returns the concat observer followed by those of the bottlenecks.
func (c *CSP) FakeQuants() []*quant.FakeQuant {
	return append(combinerFakeQuants(c.combiner), c.m.FakeQuants()...)
}
