package nn

import (
	"fmt"

	"github.com/papercatnku/DDTrainer/internal/quant"
	"github.com/papercatnku/DDTrainer/internal/tensor"
)

// SPPConfig describes a spatial pyramid pooling bottleneck.
type SPPConfig struct {
	InChannels  int
	OutChannels int
	KernelSizes []int // odd pool sizes applied in parallel
	Act         Activation
	QAT         bool
}

// DefaultSPPConfig returns the YOLOv3-SPP layout with pools 5, 9 and 13.
func DefaultSPPConfig(in, out int) SPPConfig {
	return SPPConfig{InChannels: in, OutChannels: out, KernelSizes: []int{5, 9, 13}, Act: SiLU}
}

// SPP halves the channels, max-pools the result with every kernel size in
// parallel, concatenates the unpooled tensor with all pooled ones and
// projects back with a 1x1 conv.
type SPP struct {
	conv1    *Conv
	pools    []*MaxPool2D
	conv2    *Conv
	combiner Combiner
}

// NewSPP creates an SPP bottleneck.
func NewSPP(cfg SPPConfig, backend tensor.Backend) (*SPP, error) {
	if len(cfg.KernelSizes) == 0 {
		return nil, fmt.Errorf("%w: spp needs at least one kernel size", ErrInvalidConfig)
	}
	hidden := cfg.InChannels / 2
	if hidden <= 0 {
		return nil, fmt.Errorf("%w: spp input channels %d", ErrInvalidConfig, cfg.InChannels)
	}

	s := &SPP{}
	for _, k := range cfg.KernelSizes {
		pool, err := newSamePool(k, backend)
		if err != nil {
			return nil, fmt.Errorf("spp: %w", err)
		}
		s.pools = append(s.pools, pool)
	}

	var err error
	s.conv1, err = NewConv(ConvConfig{
		InChannels: cfg.InChannels, OutChannels: hidden, KernelSize: 1, Stride: 1, Act: cfg.Act,
	}, backend)
	if err != nil {
		return nil, fmt.Errorf("spp conv1: %w", err)
	}
	s.conv2, err = NewConv(ConvConfig{
		InChannels: hidden * (len(cfg.KernelSizes) + 1), OutChannels: cfg.OutChannels, KernelSize: 1, Stride: 1, Act: cfg.Act,
	}, backend)
	if err != nil {
		return nil, fmt.Errorf("spp conv2: %w", err)
	}
	if s.combiner, err = NewCombiner(backend, cfg.QAT); err != nil {
		return nil, err
	}
	return s, nil
}

// Forward computes conv2(cat(x', pool_1(x'), ..., pool_K(x'))) with x' = conv1(x).
func (s *SPP) Forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	x, err := s.conv1.Forward(x)
	if err != nil {
		return nil, err
	}
	branches := make([]*tensor.Tensor, 0, len(s.pools)+1)
	branches = append(branches, x)
	for _, pool := range s.pools {
		p, err := pool.Forward(x)
		if err != nil {
			return nil, err
		}
		branches = append(branches, p)
	}
	y, err := s.combiner.Cat(branches, channelDim)
	if err != nil {
		return nil, err
	}
	return s.conv2.Forward(y)
}

func (s *SPP) children() []child {
	return []child{{"conv1", s.conv1}, {"conv2", s.conv2}}
}

// Parameters returns the parameters of both convolutions.
func (s *SPP) Parameters() []*Parameter { return parametersOf(s.children()...) }

// StateDict returns "conv1.*" and "conv2.*" entries.
func (s *SPP) StateDict() map[string]*tensor.Tensor { return stateDictOf(s.children()...) }

// LoadStateDict loads "conv1.*" and "conv2.*" entries.
func (s *SPP) LoadStateDict(stateDict map[string]*tensor.Tensor) error {
	return loadStateDictOf(stateDict, s.children()...)
}

// Fuse folds normalization in both convolutions.
func (s *SPP) Fuse() error { return fuseChildren(s.children()...) }

// FakeQuants returns the concatenation observer when QAT is enabled.
func (s *SPP) FakeQuants() []*quant.FakeQuant { return combinerFakeQuants(s.combiner) }

// ConcatChannels returns the channel count fed to the output conv.
func (s *SPP) ConcatChannels() int { return s.conv2.InChannels() }

// SPPFConfig describes a fast spatial pyramid pooling bottleneck.
type SPPFConfig struct {
	InChannels  int
	OutChannels int
	KernelSizes [3]int // odd sizes of the three chained pools
	Act         Activation
	QAT         bool
}

// DefaultSPPFConfig returns three chained 5x5 pools.
func DefaultSPPFConfig(in, out int) SPPFConfig {
	return SPPFConfig{InChannels: in, OutChannels: out, KernelSizes: [3]int{5, 5, 5}, Act: SiLU}
}

// SPPF is SPP with three pools applied in sequence rather than in parallel,
// each pool consuming the previous one's output. The concatenation always
// holds four branches.
type SPPF struct {
	conv1    *Conv
	pools    [3]*MaxPool2D
	conv2    *Conv
	combiner Combiner
}

// NewSPPF creates an SPPF bottleneck.
func NewSPPF(cfg SPPFConfig, backend tensor.Backend) (*SPPF, error) {
	hidden := cfg.InChannels / 2
	if hidden <= 0 {
		return nil, fmt.Errorf("%w: sppf input channels %d", ErrInvalidConfig, cfg.InChannels)
	}

	s := &SPPF{}
	var err error
	for i, k := range cfg.KernelSizes {
		if s.pools[i], err = newSamePool(k, backend); err != nil {
			return nil, fmt.Errorf("sppf: %w", err)
		}
	}
	s.conv1, err = NewConv(ConvConfig{
		InChannels: cfg.InChannels, OutChannels: hidden, KernelSize: 1, Stride: 1, Act: cfg.Act,
	}, backend)
	if err != nil {
		return nil, fmt.Errorf("sppf conv1: %w", err)
	}
	s.conv2, err = NewConv(ConvConfig{
		InChannels: hidden * 4, OutChannels: cfg.OutChannels, KernelSize: 1, Stride: 1, Act: cfg.Act,
	}, backend)
	if err != nil {
		return nil, fmt.Errorf("sppf conv2: %w", err)
	}
	if s.combiner, err = NewCombiner(backend, cfg.QAT); err != nil {
		return nil, err
	}
	return s, nil
}

// Forward computes conv2(cat(x', p1, p2, p3)) with x' = conv1(x),
// p1 = pool0(x'), p2 = pool1(p1) and p3 = pool2(p2).
func (s *SPPF) Forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	x, err := s.conv1.Forward(x)
	if err != nil {
		return nil, err
	}
	branches := []*tensor.Tensor{x}
	cur := x
	for _, pool := range s.pools {
		if cur, err = pool.Forward(cur); err != nil {
			return nil, err
		}
		branches = append(branches, cur)
	}
	y, err := s.combiner.Cat(branches, channelDim)
	if err != nil {
		return nil, err
	}
	return s.conv2.Forward(y)
}

func (s *SPPF) children() []child {
	return []child{{"conv1", s.conv1}, {"conv2", s.conv2}}
}

// Parameters returns the parameters of both convolutions.
func (s *SPPF) Parameters() []*Parameter { return parametersOf(s.children()...) }

// StateDict returns "conv1.*" and "conv2.*" entries.
func (s *SPPF) StateDict() map[string]*tensor.Tensor { return stateDictOf(s.children()...) }

// LoadStateDict loads "conv1.*" and "conv2.*" entries.
func (s *SPPF) LoadStateDict(stateDict map[string]*tensor.Tensor) error {
	return loadStateDictOf(stateDict, s.children()...)
}

// Fuse folds normalization in both convolutions.
func (s *SPPF) Fuse() error { return fuseChildren(s.children()...) }

// FakeQuants returns the concatenation observer when QAT is enabled.
func (s *SPPF) FakeQuants() []*quant.FakeQuant { return combinerFakeQuants(s.combiner) }

// ConcatChannels returns the channel count fed to the output conv.
func (s *SPPF) ConcatChannels() int { return s.conv2.InChannels() }
