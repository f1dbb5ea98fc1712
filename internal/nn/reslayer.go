package nn

import (
	"fmt"

	"github.com/papercatnku/DDTrainer/internal/tensor"
)

// ResLayer is the Darknet residual layer: a 1x1 halving conv, a 3x3 conv
// back to the input width (both LeakyReLU), and an unconditional add of the
// input. It has no QAT variant.
type ResLayer struct {
	layer1  *Conv
	layer2  *Conv
	backend tensor.Backend
}

// NewResLayer creates a residual layer over inChannels channels.
// inChannels must be at least 2.
func NewResLayer(inChannels int, backend tensor.Backend) (*ResLayer, error) {
	mid := inChannels / 2
	if mid <= 0 {
		return nil, fmt.Errorf("%w: reslayer channels %d", ErrInvalidConfig, inChannels)
	}
	layer1, err := NewConv(ConvConfig{
		InChannels: inChannels, OutChannels: mid, KernelSize: 1, Stride: 1, Act: LeakyReLU,
	}, backend)
	if err != nil {
		return nil, err
	}
	layer2, err := NewConv(ConvConfig{
		InChannels: mid, OutChannels: inChannels, KernelSize: 3, Stride: 1, Act: LeakyReLU,
	}, backend)
	if err != nil {
		return nil, err
	}
	return &ResLayer{layer1: layer1, layer2: layer2, backend: backend}, nil
}

// Forward computes x + layer2(layer1(x)).
func (r *ResLayer) Forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	out, err := r.layer1.Forward(x)
	if err != nil {
		return nil, err
	}
	if out, err = r.layer2.Forward(out); err != nil {
		return nil, err
	}
	return r.backend.Add(x, out)
}

func (r *ResLayer) children() []child {
	return []child{{"layer1", r.layer1}, {"layer2", r.layer2}}
}

// Parameters returns the parameters of both layers.
func (r *ResLayer) Parameters() []*Parameter { return parametersOf(r.children()...) }

// StateDict returns "layer1.*" and "layer2.*" entries.
func (r *ResLayer) StateDict() map[string]*tensor.Tensor { return stateDictOf(r.children()...) }

// LoadStateDict loads "layer1.*" and "layer2.*" entries.
func (r *ResLayer) LoadStateDict(stateDict map[string]*tensor.Tensor) error {
	return loadStateDictOf(stateDict, r.children()...)
}

// Fuse folds normalization in both layers.
func (r *ResLayer) Fuse() error { return fuseChildren(r.children()...) }
