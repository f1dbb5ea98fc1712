package nn

import (
	"fmt"

	"github.com/papercatnku/DDTrainer/internal/quant"
	"github.com/papercatnku/DDTrainer/internal/tensor"
)

// FocusConfig describes a Focus stem.
type FocusConfig struct {
	InChannels  int
	OutChannels int
	KernelSize  int
	Stride      int
	Act         Activation
	QAT         bool
}

// DefaultFocusConfig returns a Focus stem with a 1x1 stride-1 SiLU conv.
func DefaultFocusConfig(in, out int) FocusConfig {
	return FocusConfig{InChannels: in, OutChannels: out, KernelSize: 1, Stride: 1, Act: SiLU}
}

// Focus moves 2x2 spatial neighborhoods into channels: [B, C, H, W] becomes
// [B, 4C, H/2, W/2], then a conv unit is applied. H and W must be even.
//
// The channel blocks are ordered top-left, bottom-left, top-right,
// bottom-right. Pretrained weights depend on this order.
type Focus struct {
	conv     *Conv
	backend  tensor.Backend
	combiner Combiner
}

// focusPatches lists (row, col) offsets of the 2x2 sub-grids in channel order.
var focusPatches = [4][2]int{
	{0, 0}, // top-left
	{1, 0}, // bottom-left
	{0, 1}, // top-right
	{1, 1}, // bottom-right
}

// NewFocus creates a Focus stem.
func NewFocus(cfg FocusConfig, backend tensor.Backend) (*Focus, error) {
	if cfg.InChannels <= 0 {
		return nil, fmt.Errorf("%w: focus input channels %d", ErrInvalidConfig, cfg.InChannels)
	}
	conv, err := NewConv(ConvConfig{
		InChannels:  4 * cfg.InChannels,
		OutChannels: cfg.OutChannels,
		KernelSize:  cfg.KernelSize,
		Stride:      cfg.Stride,
		Act:         cfg.Act,
	}, backend)
	if err != nil {
		return nil, fmt.Errorf("focus conv: %w", err)
	}
	combiner, err := NewCombiner(backend, cfg.QAT)
	if err != nil {
		return nil, err
	}
	return &Focus{conv: conv, backend: backend, combiner: combiner}, nil
}

// SpaceToDepth returns the [B, 4C, H/2, W/2] concatenation that Forward
// feeds into the conv unit.
func (f *Focus) SpaceToDepth(x *tensor.Tensor) (*tensor.Tensor, error) {
	patches := make([]*tensor.Tensor, len(focusPatches))
	for i, off := range focusPatches {
		p, err := f.backend.StridedSlice2D(x, off[0], off[1], 2)
		if err != nil {
			return nil, err
		}
		patches[i] = p
	}
	return f.combiner.Cat(patches, channelDim)
}

// Forward computes conv(SpaceToDepth(x)).
func (f *Focus) Forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	y, err := f.SpaceToDepth(x)
	if err != nil {
		return nil, err
	}
	return f.conv.Forward(y)
}

// Parameters returns the conv unit's parameters.
func (f *Focus) Parameters() []*Parameter { return f.conv.Parameters() }

// StateDict returns "conv.*" entries.
func (f *Focus) StateDict() map[string]*tensor.Tensor {
	return stateDictOf(child{"conv", f.conv})
}

// LoadStateDict loads "conv.*" entries.
func (f *Focus) LoadStateDict(stateDict map[string]*tensor.Tensor) error {
	return loadStateDictOf(stateDict, child{"conv", f.conv})
}

// Fuse folds normalization in the conv unit.
func (f *Focus) Fuse() error { return f.conv.Fuse() }

// FakeQuants returns the concatenation observer when QAT is enabled.
func (f *Focus) FakeQuants() []*quant.FakeQuant { return combinerFakeQuants(f.combiner) }

// DepthToSpace inverts SpaceToDepth: [B, 4C, H, W] becomes [B, C, 2H, 2W].
func DepthToSpace(y *tensor.Tensor) (*tensor.Tensor, error) {
	B, C4, H, W, err := y.Shape().NCHW()
	if err != nil {
		return nil, err
	}
	if C4%4 != 0 {
		return nil, tensor.NewShapeError("depth_to_space", "channels not divisible by 4", y.Shape())
	}
	C := C4 / 4
	out := tensor.Zeros(tensor.Shape{B, C, 2 * H, 2 * W})
	src, dst := y.Data(), out.Data()
	for b := 0; b < B; b++ {
		for p, off := range focusPatches {
			for c := 0; c < C; c++ {
				in := src[((b*C4+p*C+c)*H)*W:]
				plane := dst[((b*C+c)*2*H)*2*W:]
				for h := 0; h < H; h++ {
					for w := 0; w < W; w++ {
						plane[(2*h+off[0])*2*W+2*w+off[1]] = in[h*W+w]
					}
				}
			}
		}
	}
	return out, nil
}
