package backbone

import (
	"fmt"

	"github.com/papercatnku/DDTrainer/internal/nn"
	"github.com/papercatnku/DDTrainer/internal/quant"
	"github.com/papercatnku/DDTrainer/internal/tensor"
)

// Layer is one built layer of a Backbone.
type Layer struct {
	Name        string
	Type        string
	Module      nn.Module
	InChannels  int
	OutChannels int
}

// Backbone is a chain of blocks built from a Spec.
type Backbone struct {
	seq     *nn.Sequential
	layers  []Layer
	outputs []int
	inC     int
}

// Build instantiates every layer of spec on backend.
//
// Per-type defaults for zero fields:
//
//	out        input channels of the layer
//	conv       ksize 3, stride 1
//	dwconv     ksize 3, stride 1
//	focus      ksize 1, stride 1
//	bottleneck shortcut true, expansion 0.5
//	csp        n 1, shortcut true, expansion 0.5
//	spp        kernels [5, 9, 13]
//	sppf       kernels [5, 5, 5] (exactly three when given)
//	upsample   scale 2, mode bilinear
//	maxpool    ksize 2, stride ksize, pad 0
//
// act and qat fall back to the description-wide values. reslayer and dwconv take no
// qat; reslayer and the pooling layers keep the channel count.
func Build(spec *Spec, backend tensor.Backend) (*Backbone, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	defaultAct, err := parseAct(spec.Act, nn.SiLU)
	if err != nil {
		return nil, err
	}

	b := &Backbone{seq: nn.NewSequential(), outputs: spec.Outputs, inC: spec.InputChannels}
	inC := spec.InputChannels
	for i, ls := range spec.Layers {
		l, err := buildLayer(ls, inC, defaultAct, spec.QAT, backend)
		if err != nil {
			return nil, fmt.Errorf("layer %d (%s): %w", i, ls.Type, err)
		}
		l.Name = ls.Name
		if l.Name == "" {
			l.Name = fmt.Sprintf("%d_%s", i, ls.Type)
		}
		b.layers = append(b.layers, l)
		b.seq.Add(l.Module)
		inC = l.OutChannels
	}
	return b, nil
}

// BuildFile loads and builds a YAML description.
func BuildFile(path string, backend tensor.Backend) (*Backbone, error) {
	spec, err := Load(path)
	if err != nil {
		return nil, err
	}
	return Build(spec, backend)
}

func parseAct(name string, fallback nn.Activation) (nn.Activation, error) {
	if name == "" {
		return fallback, nil
	}
	return nn.ParseActivation(name)
}

func orDefault(v, def int) int {
	if v == 0 {
		return def
	}
	return v
}

func orDefaultFloat(v, def float64) float64 {
	if v == 0 {
		return def
	}
	return v
}

func boolOr(v *bool, def bool) bool {
	if v == nil {
		return def
	}
	return *v
}

//nolint:gocyclo // one case per layer type
func buildLayer(ls LayerSpec, inC int, defaultAct nn.Activation, defaultQAT bool, backend tensor.Backend) (Layer, error) {
	act, err := parseAct(ls.Act, defaultAct)
	if err != nil {
		return Layer{}, err
	}
	qat := boolOr(ls.QAT, defaultQAT)
	out := orDefault(ls.Out, inC)
	l := Layer{Type: ls.Type, InChannels: inC, OutChannels: out}

	switch ls.Type {
	case TypeConv:
		l.Module, err = nn.NewConv(nn.ConvConfig{
			InChannels:  inC,
			OutChannels: out,
			KernelSize:  orDefault(ls.KSize, 3),
			Stride:      orDefault(ls.Stride, 1),
			Act:         act,
		}, backend)

	case TypeDWConv:
		l.Module, err = nn.NewDWConv(nn.DWConvConfig{
			InChannels:  inC,
			OutChannels: out,
			KernelSize:  orDefault(ls.KSize, 3),
			Stride:      orDefault(ls.Stride, 1),
			Act:         act,
		}, backend)

	case TypeFocus:
		l.Module, err = nn.NewFocus(nn.FocusConfig{
			InChannels:  inC,
			OutChannels: out,
			KernelSize:  orDefault(ls.KSize, 1),
			Stride:      orDefault(ls.Stride, 1),
			Act:         act,
			QAT:         qat,
		}, backend)

	case TypeBottleneck:
		l.Module, err = nn.NewBottleneck(nn.BottleneckConfig{
			InChannels:  inC,
			OutChannels: out,
			Shortcut:    boolOr(ls.Shortcut, true),
			Expansion:   orDefaultFloat(ls.Expansion, 0.5),
			Depthwise:   ls.Depthwise,
			Act:         act,
			QAT:         qat,
		}, backend)

	case TypeResLayer:
		if out != inC {
			return Layer{}, fmt.Errorf("%w: reslayer keeps %d channels, got out=%d", ErrInvalidSpec, inC, out)
		}
		l.Module, err = nn.NewResLayer(inC, backend)

	case TypeSPP:
		cfg := nn.DefaultSPPConfig(inC, out)
		if len(ls.Kernels) > 0 {
			cfg.KernelSizes = ls.Kernels
		}
		cfg.Act, cfg.QAT = act, qat
		l.Module, err = nn.NewSPP(cfg, backend)

	case TypeSPPF:
		cfg := nn.DefaultSPPFConfig(inC, out)
		if len(ls.Kernels) > 0 {
			if len(ls.Kernels) != 3 {
				return Layer{}, fmt.Errorf("%w: sppf takes exactly 3 kernels, got %d", ErrInvalidSpec, len(ls.Kernels))
			}
			copy(cfg.KernelSizes[:], ls.Kernels)
		}
		cfg.Act, cfg.QAT = act, qat
		l.Module, err = nn.NewSPPF(cfg, backend)

	case TypeCSP:
		n := 1
		if ls.N != nil {
			n = *ls.N
		}
		l.Module, err = nn.NewCSP(nn.CSPConfig{
			InChannels:  inC,
			OutChannels: out,
			N:           n,
			Shortcut:    boolOr(ls.Shortcut, true),
			Expansion:   orDefaultFloat(ls.Expansion, 0.5),
			Depthwise:   ls.Depthwise,
			Act:         act,
			QAT:         qat,
		}, backend)

	case TypeUpSample:
		cfg := nn.DefaultUpSampleConfig()
		cfg.Scale = orDefault(ls.Scale, cfg.Scale)
		if ls.Mode != "" {
			if cfg.Mode, err = nn.ParseInterpolateMode(ls.Mode); err != nil {
				return Layer{}, err
			}
		}
		l.OutChannels = inC
		l.Module, err = nn.NewUpSample(cfg, backend)

	case TypeMaxPool:
		k := orDefault(ls.KSize, 2)
		pad := 0
		if ls.Pad != nil {
			pad = *ls.Pad
		}
		l.OutChannels = inC
		l.Module, err = nn.NewMaxPool2D(k, orDefault(ls.Stride, k), pad, backend)

	default:
		return Layer{}, fmt.Errorf("%w: unknown type %q", ErrInvalidSpec, ls.Type)
	}
	if err != nil {
		return Layer{}, err
	}
	return l, nil
}

// Forward runs x through every layer.
func (b *Backbone) Forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	return b.seq.Forward(x)
}

// Walk runs x through every layer and calls fn after each one.
func (b *Backbone) Walk(x *tensor.Tensor, fn func(i int, l Layer, y *tensor.Tensor)) (*tensor.Tensor, error) {
	y := x
	for i, l := range b.layers {
		var err error
		if y, err = l.Module.Forward(y); err != nil {
			return nil, fmt.Errorf("layer %d (%s): %w", i, l.Name, err)
		}
		if fn != nil {
			fn(i, l, y)
		}
	}
	return y, nil
}

// ForwardFeatures returns the outputs of the layers listed in the Spec's
// outputs, in that order. Without outputs it returns the final output only.
func (b *Backbone) ForwardFeatures(x *tensor.Tensor) ([]*tensor.Tensor, error) {
	all := make([]*tensor.Tensor, len(b.layers))
	last, err := b.Walk(x, func(i int, _ Layer, y *tensor.Tensor) { all[i] = y })
	if err != nil {
		return nil, err
	}
	if len(b.outputs) == 0 {
		return []*tensor.Tensor{last}, nil
	}
	feats := make([]*tensor.Tensor, len(b.outputs))
	for i, idx := range b.outputs {
		feats[i] = all[idx]
	}
	return feats, nil
}

// Layers returns the built layers in order.
func (b *Backbone) Layers() []Layer {
	return b.layers
}

// InChannels returns the expected input channel count.
func (b *Backbone) InChannels() int {
	return b.inC
}

// OutChannels returns the channel count of the final layer.
func (b *Backbone) OutChannels() int {
	return b.layers[len(b.layers)-1].OutChannels
}

// Parameters returns all trainable parameters.
func (b *Backbone) Parameters() []*nn.Parameter { return b.seq.Parameters() }

// StateDict returns all tensors keyed by layer index ("0.conv.conv.weight").
func (b *Backbone) StateDict() map[string]*tensor.Tensor { return b.seq.StateDict() }

// LoadStateDict loads tensors keyed as in StateDict.
func (b *Backbone) LoadStateDict(stateDict map[string]*tensor.Tensor) error {
	return b.seq.LoadStateDict(stateDict)
}

// Fuse folds normalization into every convolution.
func (b *Backbone) Fuse() error { return b.seq.Fuse() }

// FakeQuants returns every QAT observer in the backbone.
func (b *Backbone) FakeQuants() []*quant.FakeQuant { return b.seq.FakeQuants() }

var (
	_ nn.Module    = (*Backbone)(nil)
	_ nn.Fuser     = (*Backbone)(nil)
	_ nn.Quantized = (*Backbone)(nil)
)
