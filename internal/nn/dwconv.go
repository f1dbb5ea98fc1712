package nn

import (
	"fmt"

	"github.com/papercatnku/DDTrainer/internal/tensor"
)

// DWConvConfig describes a depthwise-separable conv unit.
type DWConvConfig struct {
	InChannels  int
	OutChannels int
	KernelSize  int
	Stride      int
	// Groups of the depthwise stage. Zero means InChannels (one filter per
	// channel); any other value must divide InChannels.
	Groups int
	Act    Activation
}

// DWConv is a depthwise conv unit followed by a 1x1 pointwise conv unit.
type DWConv struct {
	dconv *Conv
	pconv *Conv
}

// NewDWConv creates a depthwise-separable conv unit.
func NewDWConv(cfg DWConvConfig, backend tensor.Backend) (*DWConv, error) {
	if cfg.InChannels <= 0 || cfg.OutChannels <= 0 {
		return nil, fmt.Errorf("%w: dwconv channels in=%d out=%d", ErrInvalidConfig, cfg.InChannels, cfg.OutChannels)
	}
	groups := cfg.Groups
	if groups == 0 {
		groups = cfg.InChannels
	}
	if groups < 0 || cfg.InChannels%groups != 0 {
		return nil, fmt.Errorf("%w: dwconv input channels %d not divisible by groups %d",
			ErrInvalidGrouping, cfg.InChannels, groups)
	}

	dconv, err := NewConv(ConvConfig{
		InChannels:  cfg.InChannels,
		OutChannels: cfg.InChannels,
		KernelSize:  cfg.KernelSize,
		Stride:      cfg.Stride,
		Groups:      groups,
		Act:         cfg.Act,
	}, backend)
	if err != nil {
		return nil, fmt.Errorf("dwconv depthwise: %w", err)
	}
	pconv, err := NewConv(ConvConfig{
		InChannels:  cfg.InChannels,
		OutChannels: cfg.OutChannels,
		KernelSize:  1,
		Stride:      1,
		Groups:      1,
		Act:         cfg.Act,
	}, backend)
	if err != nil {
		return nil, fmt.Errorf("dwconv pointwise: %w", err)
	}
	return &DWConv{dconv: dconv, pconv: pconv}, nil
}

// Forward computes pconv(dconv(x)).
func (d *DWConv) Forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	y, err := d.dconv.Forward(x)
	if err != nil {
		return nil, err
	}
	return d.pconv.Forward(y)
}

// ForwardFused runs both stages without normalization.
func (d *DWConv) ForwardFused(x *tensor.Tensor) (*tensor.Tensor, error) {
	y, err := d.dconv.ForwardFused(x)
	if err != nil {
		return nil, err
	}
	return d.pconv.ForwardFused(y)
}

// Fuse folds normalization in both stages.
func (d *DWConv) Fuse() error {
	if err := d.dconv.Fuse(); err != nil {
		return err
	}
	return d.pconv.Fuse()
}

func (d *DWConv) children() []child {
	return []child{{"dconv", d.dconv}, {"pconv", d.pconv}}
}

// Parameters returns the parameters of both stages.
func (d *DWConv) Parameters() []*Parameter { return parametersOf(d.children()...) }

// StateDict returns "dconv.*" and "pconv.*" entries.
func (d *DWConv) StateDict() map[string]*tensor.Tensor { return stateDictOf(d.children()...) }

// LoadStateDict loads "dconv.*" and "pconv.*" entries.
func (d *DWConv) LoadStateDict(stateDict map[string]*tensor.Tensor) error {
	return loadStateDictOf(stateDict, d.children()...)
}

// Depthwise returns the depthwise stage.
func (d *DWConv) Depthwise() *Conv { return d.dconv }

// Pointwise returns the pointwise stage.
func (d *DWConv) Pointwise() *Conv { return d.pconv }
